package server

import (
	"errors"
	"net/http"
	"time"

	"github.com/raysh454/iro/internal/app"
	"github.com/raysh454/iro/internal/logging"
)

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var body LoginRequest
	if !decodeBody(w, r, &body) {
		return
	}
	if err := s.app.Auth.Login(r.Context(), body.Email, body.Password); err != nil {
		s.fail(w, "login", err)
		return
	}
	writeJSON(w, http.StatusOK, MeResponse{User: s.app.Auth.CurrentUser.Get()})
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var body RegisterRequest
	if !decodeBody(w, r, &body) {
		return
	}
	if body.Email == "" || body.Password == "" {
		writeError(w, http.StatusBadRequest, "email and password are required")
		return
	}
	if err := s.app.Auth.Register(r.Context(), body.Name, body.Email, body.Password); err != nil {
		s.fail(w, "register", err)
		return
	}
	writeJSON(w, http.StatusCreated, MeResponse{User: s.app.Auth.CurrentUser.Get()})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if err := s.app.Logout(r.Context()); err != nil {
		s.fail(w, "logout", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	if !s.app.Auth.HasSession(r.Context()) {
		writeError(w, http.StatusUnauthorized, "not logged in")
		return
	}
	resp := MeResponse{User: s.app.Auth.CurrentUser.Get()}
	claims, err := s.app.Auth.SessionClaims(r.Context())
	switch {
	case errors.Is(err, app.ErrNotLoggedIn):
		writeError(w, http.StatusUnauthorized, "not logged in")
		return
	case err != nil:
		s.logger.Debug("session token carries no claims", logging.Field{Key: "error", Value: err})
	default:
		resp.Name, resp.Email = claims.Name, claims.Email
		if claims.ExpiresAt != nil {
			resp.ExpiresAt = claims.ExpiresAt.UTC().Format(time.RFC3339)
		}
	}
	writeJSON(w, http.StatusOK, resp)
}
