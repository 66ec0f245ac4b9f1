package imagefile

import (
	"bytes"
	"encoding/base64"
	"strings"

	"github.com/disintegration/imaging"

	"github.com/raysh454/iro/internal/logging"
	"github.com/raysh454/iro/internal/model"
)

// DefaultPreviewSize is the edge, in pixels, of generated thumbnails.
const DefaultPreviewSize = 160

// Preview renders a PNG thumbnail of ref as a data URL. Non-image files such
// as zip archives have no preview and return "".
func Preview(ref model.ImageRef, size int) (string, error) {
	if !strings.HasPrefix(ref.MIMEType, "image/") {
		return "", nil
	}
	if size <= 0 {
		size = DefaultPreviewSize
	}
	img, err := imaging.Open(ref.Path, imaging.AutoOrientation(true))
	if err != nil {
		return "", err
	}
	thumb := imaging.Thumbnail(img, size, size, imaging.Lanczos)

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, thumb, imaging.PNG); err != nil {
		return "", err
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

// AttachPreviews fills PreviewURL on every image it can decode. Failures are
// logged and leave the preview empty. A negative size skips previews.
func AttachPreviews(refs []model.ImageRef, size int, logger logging.Logger) []model.ImageRef {
	if size < 0 {
		return append([]model.ImageRef(nil), refs...)
	}
	out := make([]model.ImageRef, len(refs))
	for i, ref := range refs {
		url, err := Preview(ref, size)
		if err != nil {
			logger.Warn("preview failed",
				logging.Field{Key: "file", Value: ref.Name},
				logging.Field{Key: "error", Value: err})
		}
		ref.PreviewURL = url
		out[i] = ref
	}
	return out
}
