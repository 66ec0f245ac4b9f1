package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"slices"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/rs/cors"

	"github.com/raysh454/iro/internal/api"
	"github.com/raysh454/iro/internal/app"
	"github.com/raysh454/iro/internal/history"
	"github.com/raysh454/iro/internal/logging"
)

// Server is the HTTP + WebSocket bridge between a local UI and the
// application services.
type Server struct {
	cfg      Config
	app      *app.Application
	router   chi.Router
	upgrader websocket.Upgrader
	logger   logging.Logger

	// jobCtx outlives requests so background jobs survive the request that
	// started them.
	jobCtx    context.Context
	cancelJob context.CancelFunc
}

// NewServer wires the routes over cfg.App.
func NewServer(cfg Config) (*Server, error) {
	if cfg.App == nil {
		return nil, errors.New("server: application is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.NewStdoutLogger("Server")
	}
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = cfg.App.Config.ListenAddr
	}
	if cfg.AllowedOrigins == nil {
		cfg.AllowedOrigins = cfg.App.Config.AllowedOrigins
	}

	jobCtx, cancel := context.WithCancel(context.Background())
	s := &Server{
		cfg:       cfg,
		app:       cfg.App,
		router:    chi.NewRouter(),
		logger:    logger,
		jobCtx:    jobCtx,
		cancelJob: cancel,
	}
	s.upgrader = websocket.Upgrader{CheckOrigin: s.checkOrigin}

	s.routes()
	return s, nil
}

// App returns the application the server exposes.
func (s *Server) App() *app.Application {
	return s.app
}

func (s *Server) routes() {
	r := s.router

	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.New(cors.Options{
		AllowedOrigins: s.cfg.AllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		MaxAge:         86400,
	}).Handler)

	// Auth
	r.Post("/auth/login", s.handleLogin)
	r.Post("/auth/register", s.handleRegister)
	r.Post("/auth/logout", s.handleLogout)
	r.Get("/auth/me", s.handleMe)

	// Images
	r.Get("/catalog", s.handleCatalog)
	r.Post("/images/scan", s.handleScan)
	r.Get("/images", s.handleListImages)
	r.Delete("/images", s.handleResetImages)
	r.Post("/images/upload", s.handleUpload)
	r.Patch("/images/{id}", s.handlePatchImage)
	r.Get("/images/{id}/download", s.handleDownloadImage)

	// Selection
	r.Get("/selection", s.handleGetSelection)
	r.Post("/selection/reset", s.handleResetSelection)
	r.Put("/selection/mode", s.handleSetMode)
	r.Post("/selection/toggle", s.handleToggle)
	r.Put("/selection/format", s.handleSetFormat)
	r.Put("/selection/parameter", s.handleSetParameter)
	r.Post("/selection/submit", s.handleSubmit)

	// Batches
	r.Get("/batches/current", s.handleCurrentBatch)
	r.Get("/batches/{batchID}/download", s.handleDownloadBatch)

	// History
	r.Get("/history", s.handleListHistory)
	r.Get("/history/{id}", s.handleHistoryDetail)
	r.Delete("/history/{id}", s.handleDeleteHistory)
	r.Delete("/history/images/{imageID}", s.handleDeleteImageHistory)

	// Jobs
	r.Get("/jobs/{jobID}", s.handleGetJob)
	r.Delete("/jobs/{jobID}", s.handleCancelJob)

	// WebSockets
	r.Get("/ws/progress", s.handleProgressWS)
	r.Get("/ws/jobs/{jobID}", s.handleJobWS)
}

func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	return slices.Contains(s.cfg.AllowedOrigins, "*") || slices.Contains(s.cfg.AllowedOrigins, origin)
}

// ServeHTTP implements http.Handler. Request bodies are not logged since
// auth routes carry passwords.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	fields := []logging.Field{
		{Key: "method", Value: r.Method},
		{Key: "path", Value: r.URL.Path},
	}
	if q := r.URL.Query(); len(q) > 0 {
		fields = append(fields, logging.Field{Key: "query", Value: q})
	}
	s.logger.Info("http_request", fields...)

	s.router.ServeHTTP(w, r)
}

// Close cancels background jobs started through the server.
func (s *Server) Close() {
	s.cancelJob()
}

// HTTPServer creates an *http.Server ready to ListenAndServe.
func (s *Server) HTTPServer() *http.Server {
	return &http.Server{
		Addr:              s.cfg.ListenAddr,
		Handler:           s,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      0, // allow streaming
	}
}

// --- JSON helpers ---

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, ErrorResponse{Error: msg})
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return false
	}
	return true
}

// statusFor maps service and API errors to an HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, app.ErrInvalidSelection), errors.Is(err, app.ErrNotUploaded), errors.Is(err, app.ErrNoImages):
		return http.StatusUnprocessableEntity
	case errors.Is(err, app.ErrNoBatch), errors.Is(err, history.ErrRecordNotFound):
		return http.StatusNotFound
	case errors.Is(err, app.ErrNotLoggedIn):
		return http.StatusUnauthorized
	case errors.Is(err, app.ErrJobRunning), errors.Is(err, app.ErrUnmatchedUpload):
		return http.StatusConflict
	}
	switch api.KindOf(err) {
	case api.KindAuth:
		return http.StatusUnauthorized
	case api.KindValidation:
		return http.StatusBadRequest
	case api.KindNotFound:
		return http.StatusNotFound
	case api.KindNetwork, api.KindServer:
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

// fail writes err with the status statusFor picks. Backend messages are
// passed through as they are meant for display.
func (s *Server) fail(w http.ResponseWriter, op string, err error) {
	status := statusFor(err)
	s.logger.Warn(op, logging.Field{Key: "status", Value: status}, logging.Field{Key: "error", Value: err})
	msg := err.Error()
	if api.KindOf(err) != api.KindUnknown {
		msg = api.UserMessage(err)
	}
	writeError(w, status, msg)
}
