// Package imagefile finds local files the backend accepts and prepares them
// for upload.
package imagefile

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"

	"github.com/raysh454/iro/internal/model"
)

var validExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".tif":  true,
	".tiff": true,
	".zip":  true,
}

var validTypes = []string{"image/jpeg", "image/png", "image/tiff", "application/zip"}

var typeByExtension = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".tif":  "image/tiff",
	".tiff": "image/tiff",
	".zip":  "application/zip",
}

// Result splits scanned paths into accepted images and rejected names.
type Result struct {
	Valid   []model.ImageRef
	Invalid []string
}

// IsValidFileType accepts a file when either its extension or its MIME type
// is one the backend takes.
func IsValidFileType(name, mimeType string) bool {
	if validExtensions[strings.ToLower(filepath.Ext(name))] {
		return true
	}
	base := strings.TrimSpace(strings.SplitN(mimeType, ";", 2)[0])
	for _, t := range validTypes {
		if strings.EqualFold(base, t) {
			return true
		}
	}
	return false
}

// Scan checks every path. Directories contribute their regular files, not
// recursively. Each accepted file gets a fresh client id and starts selected.
func Scan(paths []string) Result {
	var res Result
	for _, p := range expand(paths, &res) {
		ref, err := inspect(p)
		if err != nil {
			res.Invalid = append(res.Invalid, filepath.Base(p))
			continue
		}
		res.Valid = append(res.Valid, ref)
	}
	return res
}

func expand(paths []string, res *Result) []string {
	var out []string
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			res.Invalid = append(res.Invalid, filepath.Base(p))
			continue
		}
		if !info.IsDir() {
			out = append(out, p)
			continue
		}
		entries, err := os.ReadDir(p)
		if err != nil {
			res.Invalid = append(res.Invalid, filepath.Base(p))
			continue
		}
		var names []string
		for _, e := range entries {
			if e.Type().IsRegular() {
				names = append(names, e.Name())
			}
		}
		sort.Strings(names)
		for _, n := range names {
			out = append(out, filepath.Join(p, n))
		}
	}
	return out
}

func inspect(p string) (model.ImageRef, error) {
	info, err := os.Stat(p)
	if err != nil {
		return model.ImageRef{}, err
	}
	detected, err := mimetype.DetectFile(p)
	if err != nil {
		return model.ImageRef{}, err
	}

	name := filepath.Base(p)
	mimeType := ""
	for _, t := range validTypes {
		if detected.Is(t) {
			mimeType = t
			break
		}
	}
	if mimeType == "" {
		mimeType = typeByExtension[strings.ToLower(filepath.Ext(name))]
	}
	if !IsValidFileType(name, mimeType) {
		return model.ImageRef{}, fmt.Errorf("%s: unsupported type %s", name, detected.String())
	}

	id := uuid.NewString()
	return model.ImageRef{
		ID:        id,
		ClientID:  id,
		Name:      name,
		SizeBytes: info.Size(),
		MIMEType:  mimeType,
		Path:      p,
		Selected:  true,
	}, nil
}
