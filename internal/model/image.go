package model

import (
	"bytes"
	"encoding/json"
)

// ImageRef is a local image the user picked for upload.
//
// ID starts out equal to ClientID, a token generated on selection, and is
// overwritten with the backend-issued id once the upload succeeds.
type ImageRef struct {
	ID         string `json:"id"`
	ClientID   string `json:"clientId"`
	Name       string `json:"name"`
	SizeBytes  int64  `json:"size"`
	MIMEType   string `json:"type"`
	Path       string `json:"-"`
	PreviewURL string `json:"previewUrl,omitempty"`
	Selected   bool   `json:"selected"`
	Uploaded   bool   `json:"uploaded"`
}

// UploadedImage is one entry of the upload response. ClientID is echoed back
// by backends that support it and is the preferred reconciliation key.
type UploadedImage struct {
	ID       FlexString `json:"id"`
	Name     string     `json:"name"`
	ClientID string     `json:"clientId,omitempty"`
	Size     int64      `json:"size,omitempty"`
}

// UploadResponse is returned by POST /images/upload.
type UploadResponse struct {
	Success bool            `json:"success"`
	Message string          `json:"message,omitempty"`
	Images  []UploadedImage `json:"images"`
}

// FlexString decodes from either a JSON string or a JSON number. Backend ids
// arrive in both forms depending on the endpoint.
type FlexString string

// UnmarshalJSON implements json.Unmarshaler.
func (f *FlexString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*f = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = FlexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*f = FlexString(n.String())
	return nil
}
