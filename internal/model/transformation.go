package model

import "strings"

// TransformationKind groups catalog entries for display.
type TransformationKind string

const (
	KindFilter     TransformationKind = "filter"
	KindAdjustment TransformationKind = "adjustment"
	KindFormat     TransformationKind = "format"
)

// Transformation is one operation the backend can apply to an image.
// ID is the stable catalog key ("brightness"); Parameters holds the
// operation-specific values ("value", "radius", "degrees", "text").
type Transformation struct {
	ID         string             `json:"id"`
	Name       string             `json:"name"`
	Kind       TransformationKind `json:"type"`
	Parameters map[string]any     `json:"parameters"`
}

// Clone returns a copy whose parameter map can be mutated independently.
func (t Transformation) Clone() Transformation {
	out := t
	if t.Parameters != nil {
		out.Parameters = make(map[string]any, len(t.Parameters))
		for k, v := range t.Parameters {
			out.Parameters[k] = v
		}
	}
	return out
}

// OutputFormat is the requested output encoding. FormatOriginal keeps the
// uploaded encoding and does not consume a slot.
type OutputFormat string

const (
	FormatOriginal OutputFormat = "ORIGINAL"
	FormatJPG      OutputFormat = "JPG"
	FormatPNG      OutputFormat = "PNG"
	FormatTIF      OutputFormat = "TIF"
)

// OutputFormats lists the concrete formats the backend accepts.
var OutputFormats = []OutputFormat{FormatJPG, FormatPNG, FormatTIF}

// IsConcrete reports whether f names an actual conversion.
func (f OutputFormat) IsConcrete() bool {
	switch f {
	case FormatJPG, FormatPNG, FormatTIF:
		return true
	}
	return false
}

// ParseOutputFormat accepts format names case-insensitively, including the
// common aliases jpeg, tiff and keep. ok is false for anything else.
func ParseOutputFormat(s string) (f OutputFormat, ok bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "original", "keep":
		return FormatOriginal, true
	case "jpg", "jpeg":
		return FormatJPG, true
	case "png":
		return FormatPNG, true
	case "tif", "tiff":
		return FormatTIF, true
	}
	return "", false
}
