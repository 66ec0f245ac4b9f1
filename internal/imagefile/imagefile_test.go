package imagefile_test

import (
	"archive/zip"
	"bytes"
	"encoding/base64"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"

	"github.com/raysh454/iro/internal/imagefile"
	"github.com/raysh454/iro/internal/model"
	"github.com/raysh454/iro/internal/testutil"
)

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		img.Set(x, x%h, color.RGBA{R: 200, A: 255})
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

func zipBytes(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	fw, _ := zw.Create("inner.txt")
	_, _ = fw.Write([]byte("hello"))
	if err := zw.Close(); err != nil {
		t.Fatalf("zip: %v", err)
	}
	return buf.Bytes()
}

func write(t *testing.T, dir, name string, data []byte) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, data, 0o600); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return p
}

func TestIsValidFileType(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name, mime string
		want       bool
	}{
		{"photo.JPG", "", true},
		{"scan.tiff", "", true},
		{"bundle.zip", "", true},
		{"noext", "image/png", true},
		{"noext", "image/jpeg; charset=binary", true},
		{"notes.txt", "text/plain", false},
		{"anim.gif", "image/gif", false},
	}
	for _, tt := range tests {
		if got := imagefile.IsValidFileType(tt.name, tt.mime); got != tt.want {
			t.Errorf("IsValidFileType(%q, %q) = %v, want %v", tt.name, tt.mime, got, tt.want)
		}
	}
}

func TestScan(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	pngPath := write(t, dir, "a.png", pngBytes(t, 20, 10))
	sniffed := write(t, dir, "upload.bin", pngBytes(t, 4, 4))
	zipPath := write(t, dir, "bundle.zip", zipBytes(t))
	txt := write(t, dir, "notes.txt", []byte("plain text"))
	missing := filepath.Join(dir, "missing.png")

	res := imagefile.Scan([]string{pngPath, sniffed, zipPath, txt, missing})

	if len(res.Valid) != 3 {
		t.Fatalf("expected 3 valid files, got %d (%v)", len(res.Valid), res.Invalid)
	}
	sort.Strings(res.Invalid)
	if strings.Join(res.Invalid, ",") != "missing.png,notes.txt" {
		t.Errorf("unexpected invalid list %v", res.Invalid)
	}

	byName := map[string]model.ImageRef{}
	ids := map[string]bool{}
	for _, ref := range res.Valid {
		byName[ref.Name] = ref
		if ref.ID == "" || ref.ID != ref.ClientID || !ref.Selected {
			t.Errorf("%s: expected fresh selected client id, got %+v", ref.Name, ref)
		}
		ids[ref.ID] = true
	}
	if len(ids) != 3 {
		t.Error("client ids must be unique")
	}
	if byName["upload.bin"].MIMEType != "image/png" {
		t.Errorf("expected sniffed png, got %q", byName["upload.bin"].MIMEType)
	}
	if byName["bundle.zip"].MIMEType != "application/zip" {
		t.Errorf("expected zip, got %q", byName["bundle.zip"].MIMEType)
	}
	if byName["a.png"].SizeBytes == 0 || byName["a.png"].Path != pngPath {
		t.Errorf("size and path should be recorded: %+v", byName["a.png"])
	}
}

func TestScan_Directory(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	write(t, dir, "b.png", pngBytes(t, 2, 2))
	write(t, dir, "a.png", pngBytes(t, 2, 2))
	if err := os.Mkdir(filepath.Join(dir, "nested"), 0o700); err != nil {
		t.Fatal(err)
	}
	write(t, filepath.Join(dir, "nested"), "c.png", pngBytes(t, 2, 2))

	res := imagefile.Scan([]string{dir})
	if len(res.Valid) != 2 || res.Valid[0].Name != "a.png" || res.Valid[1].Name != "b.png" {
		t.Errorf("expected a.png and b.png in order, got %+v", res.Valid)
	}
}

func TestPreview(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	res := imagefile.Scan([]string{
		write(t, dir, "wide.png", pngBytes(t, 640, 320)),
		write(t, dir, "bundle.zip", zipBytes(t)),
	})

	url, err := imagefile.Preview(res.Valid[0], 0)
	if err != nil {
		t.Fatalf("Preview: %v", err)
	}
	const prefix = "data:image/png;base64,"
	if !strings.HasPrefix(url, prefix) {
		t.Fatalf("expected png data url, got %.40q", url)
	}
	raw, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(url, prefix))
	if err != nil {
		t.Fatalf("decode base64: %v", err)
	}
	cfg, err := png.DecodeConfig(bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("decode png: %v", err)
	}
	if cfg.Width != imagefile.DefaultPreviewSize || cfg.Height != imagefile.DefaultPreviewSize {
		t.Errorf("expected %dx%d thumbnail, got %dx%d", imagefile.DefaultPreviewSize, imagefile.DefaultPreviewSize, cfg.Width, cfg.Height)
	}

	if url, err := imagefile.Preview(res.Valid[1], 0); err != nil || url != "" {
		t.Errorf("zip should have no preview, got %q, %v", url, err)
	}
}

func TestAttachPreviews_LogsFailures(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	broken := model.ImageRef{Name: "broken.png", MIMEType: "image/png", Path: write(t, dir, "broken.png", []byte("not a png"))}
	logger := &testutil.DummyLogger{}

	out := imagefile.AttachPreviews([]model.ImageRef{broken}, 32, logger)
	if out[0].PreviewURL != "" {
		t.Error("broken image should have no preview")
	}
	if !logger.HasWarn("preview failed") {
		t.Error("expected a warning")
	}
}
