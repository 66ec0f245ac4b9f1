package server

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/raysh454/iro/internal/history"
	"github.com/raysh454/iro/internal/logging"
)

func parseID(w http.ResponseWriter, r *http.Request, param string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, param), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid "+param)
		return 0, false
	}
	return id, true
}

// handleListHistory returns the grouped history, loading it first when it
// was never loaded or ?refresh=true is given.
func (s *Server) handleListHistory(w http.ResponseWriter, r *http.Request) {
	agg := s.app.History.Aggregator()
	refresh, _ := strconv.ParseBool(r.URL.Query().Get("refresh"))
	if refresh || agg.Status() == history.StatusIdle {
		if err := s.app.History.Load(r.Context()); err != nil {
			s.fail(w, "loading history", err)
			return
		}
	}
	groups := agg.Groups()
	if groups == nil {
		groups = []history.Group{}
	}
	writeJSON(w, http.StatusOK, HistoryResponse{Status: agg.Status(), Error: agg.Err(), Groups: groups})
}

func (s *Server) handleHistoryDetail(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r, "id")
	if !ok {
		return
	}
	rec, err := s.app.History.Detail(r.Context(), id)
	if err != nil {
		s.fail(w, "history detail", err)
		return
	}
	writeJSON(w, http.StatusOK, HistoryDetailResponse{
		Record:     *rec,
		Parameters: history.ParametersOf(*rec).Display(),
	})
}

func (s *Server) handleDeleteHistory(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r, "id")
	if !ok {
		return
	}
	if err := s.app.History.Delete(r.Context(), id); err != nil {
		s.fail(w, "deleting history record", err)
		return
	}
	s.logger.Info("deleted history record", logging.Field{Key: "transformation_id", Value: id})
	w.WriteHeader(http.StatusNoContent)
}

// handleDeleteImageHistory deletes every record of one image. With
// ?async=true it runs as a job and answers 202.
func (s *Server) handleDeleteImageHistory(w http.ResponseWriter, r *http.Request) {
	imageID, ok := parseID(w, r, "imageID")
	if !ok {
		return
	}

	if async, _ := strconv.ParseBool(r.URL.Query().Get("async")); async {
		job, err := s.app.Orchestrator.StartDeleteImageJob(s.jobCtx, imageID)
		if err != nil {
			s.fail(w, "starting delete job", err)
			return
		}
		writeJSON(w, http.StatusAccepted, job)
		return
	}

	report, err := s.app.History.DeleteImage(r.Context(), imageID)
	if err != nil && len(report.Deleted) == 0 && len(report.Failed) == 0 {
		s.fail(w, "deleting image history", err)
		return
	}

	resp := DeleteImageResponse{Deleted: report.Deleted}
	if resp.Deleted == nil {
		resp.Deleted = []int64{}
	}
	status := http.StatusOK
	if err != nil {
		status = statusFor(err)
		resp.Error = err.Error()
		resp.Failed = make(map[int64]string, len(report.Failed))
		for id, ferr := range report.Failed {
			resp.Failed[id] = ferr.Error()
		}
	}
	writeJSON(w, status, resp)
}
