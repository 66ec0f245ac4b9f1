package api

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"os"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	"github.com/raysh454/iro/internal/logging"
	"github.com/raysh454/iro/internal/model"
)

var ErrNothingToUpload = errors.New("api: no images to upload")

// Endpoint paths of the two transform forms.
const (
	PathTransformBatch      = "/images/transform"
	PathTransformIndividual = "/lote-individual/procesar"
)

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

// UploadImages sends every image as a repeated "images" file part. Each
// image's ClientID goes in a parallel repeated "clientIds" field so the
// backend can echo it back.
func (c *Client) UploadImages(ctx context.Context, images []model.ImageRef) (*model.UploadResponse, error) {
	if len(images) == 0 {
		return nil, ErrNothingToUpload
	}

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for _, img := range images {
		if err := writeFilePart(mw, img); err != nil {
			return nil, fmt.Errorf("upload: %w", err)
		}
	}
	for _, img := range images {
		if err := mw.WriteField("clientIds", img.ClientID); err != nil {
			return nil, fmt.Errorf("upload: %w", err)
		}
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("upload: %w", err)
	}

	var out model.UploadResponse
	err := c.doJSON(ctx, call{
		op:          "upload",
		method:      http.MethodPost,
		path:        "/images/upload",
		body:        buf.Bytes(),
		contentType: mw.FormDataContentType(),
	}, nil, &out)
	if err != nil {
		return nil, err
	}
	c.logger.Info("images uploaded",
		logging.Field{Key: "sent", Value: len(images)},
		logging.Field{Key: "accepted", Value: len(out.Images)})
	return &out, nil
}

func writeFilePart(mw *multipart.Writer, img model.ImageRef) error {
	f, err := os.Open(img.Path)
	if err != nil {
		return fmt.Errorf("open %s: %w", img.Name, err)
	}
	defer f.Close()

	contentType := img.MIMEType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition",
		fmt.Sprintf(`form-data; name="images"; filename="%s"`, quoteEscaper.Replace(img.Name)))
	h.Set("Content-Type", contentType)

	part, err := mw.CreatePart(h)
	if err != nil {
		return err
	}
	if _, err := io.Copy(part, f); err != nil {
		return fmt.Errorf("read %s: %w", img.Name, err)
	}
	return nil
}

// ApplyBatch submits an applyToAll request.
func (c *Client) ApplyBatch(ctx context.Context, req model.BatchTransformationRequest) (*model.BatchResult, error) {
	return c.apply(ctx, "transform batch", PathTransformBatch, req)
}

// ApplyIndividual submits a per-image request.
func (c *Client) ApplyIndividual(ctx context.Context, req model.BatchTransformationRequest) (*model.BatchResult, error) {
	return c.apply(ctx, "transform individual", PathTransformIndividual, req)
}

// ApplyTransformations picks the endpoint from req.ApplyToAll.
func (c *Client) ApplyTransformations(ctx context.Context, req model.BatchTransformationRequest) (*model.BatchResult, error) {
	if req.ApplyToAll {
		return c.ApplyBatch(ctx, req)
	}
	return c.ApplyIndividual(ctx, req)
}

func (c *Client) apply(ctx context.Context, op, path string, req model.BatchTransformationRequest) (*model.BatchResult, error) {
	c.logger.Debug("submitting transformation",
		logging.Field{Key: "path", Value: path},
		logging.Field{Key: "images", Value: len(req.Images)})

	var out model.BatchResult
	if err := c.doJSON(ctx, call{op: op, method: http.MethodPost, path: path}, req, &out); err != nil {
		return nil, err
	}
	c.logger.Info("transformation completed",
		logging.Field{Key: "batch_id", Value: string(out.BatchID)},
		logging.Field{Key: "image_count", Value: out.ImageCount})
	return &out, nil
}

// Download is a file returned by the backend.
type Download struct {
	Filename    string
	ContentType string
	Data        []byte
}

// DownloadBatch fetches the zip of every output of a batch.
func (c *Client) DownloadBatch(ctx context.Context, batchID string) (*Download, error) {
	return c.download(ctx, "download batch", "/images/download/batch/"+url.PathEscape(batchID), "batch_"+batchID)
}

// DownloadImage fetches one transformed image.
func (c *Client) DownloadImage(ctx context.Context, imageID string) (*Download, error) {
	return c.download(ctx, "download image", "/images/download/"+url.PathEscape(imageID), "image_"+imageID)
}

func (c *Client) download(ctx context.Context, op, path, fallbackName string) (*Download, error) {
	resp, err := c.do(ctx, call{op: op, method: http.MethodGet, path: path})
	if err != nil {
		return nil, err
	}

	detected := mimetype.Detect(resp.Body)
	d := &Download{
		ContentType: resp.Headers.Get("Content-Type"),
		Data:        resp.Body,
	}
	if d.ContentType == "" {
		d.ContentType = detected.String()
	}
	if _, params, err := mime.ParseMediaType(resp.Headers.Get("Content-Disposition")); err == nil {
		d.Filename = safeFilename(params["filename"])
	}
	if d.Filename == "" {
		d.Filename = safeFilename(fallbackName) + detected.Extension()
	}
	return d, nil
}

// safeFilename strips any directory part so a download cannot escape the
// target directory.
func safeFilename(name string) string {
	name = strings.ReplaceAll(name, "\\", "/")
	if i := strings.LastIndex(name, "/"); i >= 0 {
		name = name[i+1:]
	}
	if name == "." || name == ".." {
		return ""
	}
	return name
}
