package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/raysh454/iro/internal/logging"
	"github.com/raysh454/iro/internal/model"
)

// Jobs (REST)

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")
	job := s.app.Orchestrator.GetJob(jobID)
	if job == nil {
		s.logger.Warn("getting job: not found", logging.Field{Key: "job_id", Value: jobID})
		writeError(w, http.StatusNotFound, "job not found")
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (s *Server) handleCancelJob(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")
	if s.app.Orchestrator.GetJob(jobID) == nil {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}
	s.app.Orchestrator.CancelJob(jobID)
	s.logger.Info("canceled job", logging.Field{Key: "job_id", Value: jobID})
	w.WriteHeader(http.StatusNoContent)
}

// WebSockets

// watchClose drains incoming frames so control messages are handled and
// returns a channel closed once the peer goes away.
func watchClose(conn *websocket.Conn) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
	return done
}

// handleProgressWS streams every TransformationProgress update, starting
// with the current one, until the client disconnects.
func (s *Server) handleProgressWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("upgrading to websocket", logging.Field{Key: "error", Value: err.Error()})
		return
	}
	defer conn.Close()

	updates := make(chan model.TransformationProgress, 16)
	unsubscribe := s.app.Images.Progress.Subscribe(func(p model.TransformationProgress) {
		// Non-blocking send; a slow client misses intermediate ticks.
		select {
		case updates <- p:
		default:
		}
	})
	defer unsubscribe()

	if err := conn.WriteJSON(s.app.Images.Progress.Get()); err != nil {
		return
	}

	closed := watchClose(conn)
	for {
		select {
		case <-closed:
			return
		case <-s.jobCtx.Done():
			return
		case p := <-updates:
			if err := conn.WriteJSON(p); err != nil {
				return
			}
		}
	}
}

// handleJobWS sends the job snapshot followed by its events. The stream ends
// when the job does; a client that disconnects early cancels the job.
func (s *Server) handleJobWS(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")
	job := s.app.Orchestrator.GetJob(jobID)
	events, ok := s.app.Orchestrator.Events(jobID)
	if job == nil || !ok {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("upgrading to websocket", logging.Field{Key: "error", Value: err.Error()})
		return
	}
	defer conn.Close()

	_ = conn.WriteJSON(job)
	for ev := range events {
		if err := conn.WriteJSON(ev); err != nil {
			// Assume client disconnected; cancel job
			s.app.Orchestrator.CancelJob(jobID)
			return
		}
	}
	_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "job finished"))
}
