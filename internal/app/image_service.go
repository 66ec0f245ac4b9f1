package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/raysh454/iro/internal/api"
	"github.com/raysh454/iro/internal/imagefile"
	"github.com/raysh454/iro/internal/logging"
	"github.com/raysh454/iro/internal/model"
	"github.com/raysh454/iro/internal/selection"
	"github.com/raysh454/iro/internal/signal"
)

var (
	ErrNoImages         = errors.New("no images selected")
	ErrNotUploaded      = errors.New("selected images are not uploaded")
	ErrInvalidSelection = errors.New("invalid selection")
	ErrNoBatch          = errors.New("no processed batch")
	ErrUnmatchedUpload  = errors.New("could not match uploaded images")
)

// ImageService owns the local image list, the current selection and the
// lifecycle of a transform submission.
type ImageService struct {
	api              *api.Client
	catalog          *selection.Catalog
	logger           logging.Logger
	progressInterval time.Duration
	previewSize      int

	selMu sync.Mutex
	sel   *selection.Model

	Images       *signal.Value[[]model.ImageRef]
	IsLoading    *signal.Value[bool]
	ErrorMessage *signal.Value[string]
	Progress     *signal.Value[model.TransformationProgress]
	CurrentBatch *signal.Value[*model.BatchResult]
}

func NewImageService(client *api.Client, catalog *selection.Catalog, cfg *Config, logger logging.Logger) *ImageService {
	if catalog == nil {
		catalog = selection.DefaultCatalog()
	}
	if cfg == nil {
		cfg = DefaultConfig()
	}
	interval := cfg.ProgressInterval
	if interval <= 0 {
		interval = DefaultProgressInterval
	}
	return &ImageService{
		api:              client,
		catalog:          catalog,
		logger:           logger.With(logging.Field{Key: "component", Value: "images"}),
		progressInterval: interval,
		previewSize:      cfg.PreviewSize,
		Images:           signal.New[[]model.ImageRef](nil),
		IsLoading:        signal.New(false),
		ErrorMessage:     signal.New(""),
		Progress:         signal.New(model.TransformationProgress{Status: model.ProgressIdle}),
		CurrentBatch:     signal.New[*model.BatchResult](nil),
	}
}

// Catalog returns the transformation catalog selections draw from.
func (s *ImageService) Catalog() *selection.Catalog { return s.catalog }

// AddFiles scans paths and appends the supported files, selected, to Images.
// Rejected files are named in ErrorMessage.
func (s *ImageService) AddFiles(paths []string) imagefile.Result {
	res := imagefile.Scan(paths)
	res.Valid = imagefile.AttachPreviews(res.Valid, s.previewSize, s.logger)

	if len(res.Invalid) > 0 {
		s.ErrorMessage.Set("unsupported files: " + strings.Join(res.Invalid, ", "))
	} else {
		s.ErrorMessage.Set("")
	}
	if len(res.Valid) > 0 {
		s.setImages(func(list []model.ImageRef) []model.ImageRef {
			return append(list, res.Valid...)
		})
	}
	s.logger.Info("files added",
		logging.Field{Key: "valid", Value: len(res.Valid)},
		logging.Field{Key: "invalid", Value: len(res.Invalid)})
	return res
}

// SetSelected marks image id as selected or not.
func (s *ImageService) SetSelected(id string, selected bool) bool {
	found := false
	s.setImages(func(list []model.ImageRef) []model.ImageRef {
		out := append([]model.ImageRef(nil), list...)
		for i := range out {
			if out[i].ID == id || out[i].ClientID == id {
				out[i].Selected = selected
				found = true
			}
		}
		return out
	})
	return found
}

// RemoveImage drops image id from the list.
func (s *ImageService) RemoveImage(id string) bool {
	found := false
	s.setImages(func(list []model.ImageRef) []model.ImageRef {
		out := make([]model.ImageRef, 0, len(list))
		for _, img := range list {
			if img.ID == id || img.ClientID == id {
				found = true
				continue
			}
			out = append(out, img)
		}
		return out
	})
	return found
}

// Image returns image id by backend or client id.
func (s *ImageService) Image(id string) (model.ImageRef, bool) {
	for _, img := range s.Images.Get() {
		if img.ID == id || img.ClientID == id {
			return img, true
		}
	}
	return model.ImageRef{}, false
}

// SelectedImages returns the images currently selected.
func (s *ImageService) SelectedImages() []model.ImageRef {
	var out []model.ImageRef
	for _, img := range s.Images.Get() {
		if img.Selected {
			out = append(out, img)
		}
	}
	return out
}

// setImages updates the list and keeps the current selection in step.
func (s *ImageService) setImages(fn func([]model.ImageRef) []model.ImageRef) {
	list := s.Images.Update(fn)
	s.selMu.Lock()
	sel := s.sel
	s.selMu.Unlock()
	if sel != nil {
		sel.SetImages(list)
	}
}

// Upload sends the selected images that have no backend id yet and adopts
// the ids the backend returns. Images whose id cannot be reconciled stay
// not uploaded and are named in an ErrUnmatchedUpload error.
func (s *ImageService) Upload(ctx context.Context) error {
	selected := s.SelectedImages()
	if len(selected) == 0 {
		s.ErrorMessage.Set(ErrNoImages.Error())
		return ErrNoImages
	}
	var pending []model.ImageRef
	for _, img := range selected {
		if !img.Uploaded {
			pending = append(pending, img)
		}
	}
	if len(pending) == 0 {
		return nil
	}

	s.IsLoading.Set(true)
	s.ErrorMessage.Set("")
	defer s.IsLoading.Set(false)

	resp, err := s.api.UploadImages(ctx, pending)
	if err != nil {
		s.logger.Warn("upload failed", logging.Field{Key: "error", Value: err})
		s.ErrorMessage.Set(api.UserMessage(err))
		return err
	}

	matches, unmatched := reconcile(pending, resp.Images)
	s.setImages(func(list []model.ImageRef) []model.ImageRef {
		out := append([]model.ImageRef(nil), list...)
		for i := range out {
			if id, ok := matches[out[i].ClientID]; ok {
				out[i].ID = id
				out[i].Uploaded = true
			}
		}
		return out
	})

	s.logger.Info("images uploaded",
		logging.Field{Key: "sent", Value: len(pending)},
		logging.Field{Key: "matched", Value: len(matches)})
	if len(unmatched) > 0 {
		s.logger.Warn("uploaded images could not be matched", logging.Field{Key: "names", Value: unmatched})
		err := fmt.Errorf("%w: %s", ErrUnmatchedUpload, strings.Join(unmatched, ", "))
		s.ErrorMessage.Set(err.Error())
		return err
	}
	return nil
}

// reconcile maps client ids of sent to backend ids. The echoed client id
// wins; otherwise a file name is used only when it is unique among both the
// sent images and the response.
func reconcile(sent []model.ImageRef, got []model.UploadedImage) (map[string]string, []string) {
	byClient := make(map[string]model.UploadedImage, len(got))
	gotNames := map[string][]model.UploadedImage{}
	for _, u := range got {
		if u.ClientID != "" {
			byClient[u.ClientID] = u
		}
		gotNames[u.Name] = append(gotNames[u.Name], u)
	}
	sentNames := map[string]int{}
	for _, img := range sent {
		sentNames[img.Name]++
	}

	used := map[model.FlexString]bool{}
	matches := make(map[string]string, len(sent))
	var unmatched []string
	for _, img := range sent {
		if u, ok := byClient[img.ClientID]; ok && u.ID != "" {
			matches[img.ClientID] = string(u.ID)
			used[u.ID] = true
			continue
		}
		if cands := gotNames[img.Name]; sentNames[img.Name] == 1 && len(cands) == 1 && cands[0].ID != "" && !used[cands[0].ID] {
			matches[img.ClientID] = string(cands[0].ID)
			used[cands[0].ID] = true
			continue
		}
		unmatched = append(unmatched, img.Name)
	}
	return matches, unmatched
}

// Selection returns the current selection, starting one over the selected
// images if none exists.
func (s *ImageService) Selection() *selection.Model {
	s.selMu.Lock()
	defer s.selMu.Unlock()
	if s.sel == nil {
		s.sel = selection.New(s.catalog, s.Images.Get())
	}
	return s.sel
}

// NewSelection discards the current selection and starts a fresh one.
func (s *ImageService) NewSelection() *selection.Model {
	sel := selection.New(s.catalog, s.Images.Get())
	s.selMu.Lock()
	s.sel = sel
	s.selMu.Unlock()
	return sel
}

// Apply submits sel. While the request is in flight Progress advances one
// image per progress interval; it jumps to completion when the response
// arrives. A failed submission leaves sel untouched so it can be retried.
func (s *ImageService) Apply(ctx context.Context, sel *selection.Model) (*model.BatchResult, error) {
	if sel == nil {
		sel = s.Selection()
	}
	v := sel.Validate()
	if !v.Valid {
		s.ErrorMessage.Set(v.Message)
		return nil, fmt.Errorf("%w: %s", ErrInvalidSelection, v.Message)
	}
	images := sel.Images()
	for _, img := range images {
		if !img.Uploaded {
			s.ErrorMessage.Set(ErrNotUploaded.Error())
			return nil, fmt.Errorf("%w: %s", ErrNotUploaded, img.Name)
		}
	}

	req := sel.BuildRequest()
	total := len(req.Images)
	if !req.ApplyToAll {
		total = len(req.ImageConfigs)
	}

	s.IsLoading.Set(true)
	s.ErrorMessage.Set("")
	s.Progress.Set(model.TransformationProgress{Total: total, Status: model.ProgressProcessing})
	defer s.IsLoading.Set(false)

	stop := s.tickProgress()
	result, err := s.api.ApplyTransformations(ctx, req)
	stop()

	if err != nil {
		s.logger.Warn("transform failed", logging.Field{Key: "error", Value: err})
		s.ErrorMessage.Set(api.UserMessage(err))
		s.Progress.Update(func(p model.TransformationProgress) model.TransformationProgress {
			p.Status = model.ProgressError
			return p
		})
		return nil, err
	}

	s.CurrentBatch.Set(result)
	s.Progress.Set(model.TransformationProgress{
		Total:      result.ImageCount,
		Processed:  result.ImageCount,
		Percentage: 100,
		Status:     model.ProgressCompleted,
	})
	s.logger.Info("batch processed",
		logging.Field{Key: "batch_id", Value: string(result.BatchID)},
		logging.Field{Key: "images", Value: result.ImageCount},
		logging.Field{Key: "apply_to_all", Value: req.ApplyToAll})
	return result, nil
}

// tickProgress advances Progress until the returned stop function is called.
// stop waits for the ticker goroutine to exit.
func (s *ImageService) tickProgress() (stop func()) {
	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		t := time.NewTicker(s.progressInterval)
		defer t.Stop()
		for {
			select {
			case <-done:
				return
			case <-t.C:
				if p := s.Progress.Get(); p.Status != model.ProgressProcessing || p.Processed >= p.Total {
					continue
				}
				s.Progress.Update(func(p model.TransformationProgress) model.TransformationProgress {
					if p.Status != model.ProgressProcessing || p.Processed >= p.Total {
						return p
					}
					p.Processed++
					p.Percentage = int(math.Round(float64(p.Processed) / float64(p.Total) * 100))
					return p
				})
			}
		}
	}()
	return func() {
		close(done)
		wg.Wait()
	}
}

// Download writes the archive of batchID to w and returns its file name.
// An empty batchID means the current batch.
func (s *ImageService) Download(ctx context.Context, batchID string, w io.Writer) (string, error) {
	if batchID == "" {
		b := s.CurrentBatch.Get()
		if b == nil {
			return "", ErrNoBatch
		}
		batchID = string(b.BatchID)
	}
	d, err := s.api.DownloadBatch(ctx, batchID)
	if err != nil {
		s.ErrorMessage.Set(api.UserMessage(err))
		return "", err
	}
	return d.Filename, writeDownload(w, d)
}

// DownloadImage writes one transformed image to w and returns its file name.
func (s *ImageService) DownloadImage(ctx context.Context, imageID string, w io.Writer) (string, error) {
	d, err := s.api.DownloadImage(ctx, imageID)
	if err != nil {
		s.ErrorMessage.Set(api.UserMessage(err))
		return "", err
	}
	return d.Filename, writeDownload(w, d)
}

func writeDownload(w io.Writer, d *api.Download) error {
	if _, err := w.Write(d.Data); err != nil {
		return fmt.Errorf("write %s: %w", d.Filename, err)
	}
	return nil
}

// HasProcessedBatch reports whether the last submission completed.
func (s *ImageService) HasProcessedBatch() bool {
	return s.CurrentBatch.Get() != nil && s.Progress.Get().Status == model.ProgressCompleted
}

// Reset forgets images, selection, batch, progress and error.
func (s *ImageService) Reset() {
	s.selMu.Lock()
	s.sel = nil
	s.selMu.Unlock()
	s.Images.Set(nil)
	s.CurrentBatch.Set(nil)
	s.Progress.Set(model.TransformationProgress{Status: model.ProgressIdle})
	s.ErrorMessage.Set("")
	s.IsLoading.Set(false)
}
