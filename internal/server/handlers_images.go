package server

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/gabriel-vasile/mimetype"
	"github.com/go-chi/chi/v5"

	"github.com/raysh454/iro/internal/logging"
	"github.com/raysh454/iro/internal/model"
	"github.com/raysh454/iro/internal/selection"
)

// Images

func (s *Server) handleCatalog(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.app.Images.Catalog().Entries())
}

func (s *Server) handleScan(w http.ResponseWriter, r *http.Request) {
	var body ScanRequest
	if !decodeBody(w, r, &body) {
		return
	}
	if len(body.Paths) == 0 {
		writeError(w, http.StatusBadRequest, "paths are required")
		return
	}
	res := s.app.Images.AddFiles(body.Paths)
	resp := ScanResponse{Added: res.Valid, Invalid: res.Invalid}
	if resp.Added == nil {
		resp.Added = []model.ImageRef{}
	}
	if resp.Invalid == nil {
		resp.Invalid = []string{}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleListImages(w http.ResponseWriter, r *http.Request) {
	imgs := s.app.Images.Images.Get()
	if imgs == nil {
		imgs = []model.ImageRef{}
	}
	writeJSON(w, http.StatusOK, imgs)
}

func (s *Server) handleResetImages(w http.ResponseWriter, r *http.Request) {
	s.app.Images.Reset()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handlePatchImage(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var body PatchImageRequest
	if !decodeBody(w, r, &body) {
		return
	}
	if !s.app.Images.SetSelected(id, body.Selected) {
		writeError(w, http.StatusNotFound, "image not found")
		return
	}
	img, _ := s.app.Images.Image(id)
	writeJSON(w, http.StatusOK, img)
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	if err := s.app.Images.Upload(r.Context()); err != nil {
		s.fail(w, "upload", err)
		return
	}
	writeJSON(w, http.StatusOK, s.app.Images.SelectedImages())
}

// Selection

func (s *Server) handleGetSelection(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.app.Images.Selection().View())
}

func (s *Server) handleResetSelection(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.app.Images.NewSelection().View())
}

func (s *Server) handleSetMode(w http.ResponseWriter, r *http.Request) {
	var body ModeRequest
	if !decodeBody(w, r, &body) {
		return
	}
	mode, ok := selection.ParseMode(body.Mode)
	if !ok {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown mode %q", body.Mode))
		return
	}
	sel := s.app.Images.Selection()
	sel.SetMode(mode)
	writeJSON(w, http.StatusOK, sel.View())
}

// writeSelectionChange answers a mutation: 200 with the new view when it
// applied, 409 with the unchanged view when it was refused.
func writeSelectionChange(w http.ResponseWriter, sel *selection.Model, changed bool) {
	status := http.StatusOK
	if !changed {
		status = http.StatusConflict
	}
	writeJSON(w, status, sel.View())
}

func (s *Server) handleToggle(w http.ResponseWriter, r *http.Request) {
	var body ToggleRequest
	if !decodeBody(w, r, &body) {
		return
	}
	sel := s.app.Images.Selection()
	writeSelectionChange(w, sel, sel.Toggle(body.ID, body.Target))
}

func (s *Server) handleSetFormat(w http.ResponseWriter, r *http.Request) {
	var body FormatRequest
	if !decodeBody(w, r, &body) {
		return
	}
	format, ok := model.ParseOutputFormat(body.Format)
	if !ok {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown format %q", body.Format))
		return
	}
	sel := s.app.Images.Selection()
	writeSelectionChange(w, sel, sel.SetOutputFormat(format, body.Target))
}

func (s *Server) handleSetParameter(w http.ResponseWriter, r *http.Request) {
	var body ParameterRequest
	if !decodeBody(w, r, &body) {
		return
	}
	sel := s.app.Images.Selection()
	writeSelectionChange(w, sel, sel.UpdateParameter(body.ID, body.Key, body.Value, body.Target))
}

// handleSubmit applies the current selection. With ?async=true it starts a
// job and answers 202; progress then streams on /ws/jobs/{jobID}.
func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	if async, _ := strconv.ParseBool(r.URL.Query().Get("async")); async {
		job, err := s.app.Orchestrator.StartTransformJob(s.jobCtx, nil)
		if err != nil {
			s.fail(w, "starting transform job", err)
			return
		}
		s.logger.Info("started transform job", logging.Field{Key: "job_id", Value: job.ID})
		writeJSON(w, http.StatusAccepted, job)
		return
	}

	res, err := s.app.Images.Apply(r.Context(), nil)
	if err != nil {
		s.fail(w, "submit", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// Batches and downloads

func (s *Server) handleCurrentBatch(w http.ResponseWriter, r *http.Request) {
	b := s.app.Images.CurrentBatch.Get()
	if b == nil {
		writeError(w, http.StatusNotFound, "no processed batch")
		return
	}
	writeJSON(w, http.StatusOK, b)
}

func (s *Server) handleDownloadBatch(w http.ResponseWriter, r *http.Request) {
	batchID := chi.URLParam(r, "batchID")
	if batchID == "current" {
		batchID = ""
	}
	s.serveDownload(w, "download batch", func(dst io.Writer) (string, error) {
		return s.app.Images.Download(r.Context(), batchID, dst)
	})
}

func (s *Server) handleDownloadImage(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	s.serveDownload(w, "download image", func(dst io.Writer) (string, error) {
		return s.app.Images.DownloadImage(r.Context(), id, dst)
	})
}

// serveDownload buffers fetch's output so a failure can still be reported
// as JSON.
func (s *Server) serveDownload(w http.ResponseWriter, op string, fetch func(io.Writer) (string, error)) {
	var buf bytes.Buffer
	name, err := fetch(&buf)
	if err != nil {
		s.fail(w, op, err)
		return
	}
	w.Header().Set("Content-Type", mimetype.Detect(buf.Bytes()).String())
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}
