package server

import (
	"github.com/raysh454/iro/internal/history"
	"github.com/raysh454/iro/internal/model"
)

// LoginRequest carries credentials for POST /auth/login.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// RegisterRequest creates an account via POST /auth/register.
type RegisterRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// MeResponse describes the current session.
type MeResponse struct {
	User      *model.User `json:"user,omitempty"`
	Name      string      `json:"name,omitempty"`
	Email     string      `json:"email,omitempty"`
	ExpiresAt string      `json:"expiresAt,omitempty"`
}

// ScanRequest lists local files or directories to add.
type ScanRequest struct {
	Paths []string `json:"paths"`
}

// ScanResponse reports which files were accepted.
type ScanResponse struct {
	Added   []model.ImageRef `json:"added"`
	Invalid []string         `json:"invalid"`
}

// PatchImageRequest toggles an image's selection.
type PatchImageRequest struct {
	Selected bool `json:"selected"`
}

type ModeRequest struct {
	Mode string `json:"mode"`
}

// ToggleRequest adds or removes transformation ID for Target. Target is
// ignored in batch mode.
type ToggleRequest struct {
	ID     string `json:"id"`
	Target string `json:"target,omitempty"`
}

type FormatRequest struct {
	Format string `json:"format"`
	Target string `json:"target,omitempty"`
}

type ParameterRequest struct {
	ID     string `json:"id"`
	Key    string `json:"key"`
	Value  any    `json:"value"`
	Target string `json:"target,omitempty"`
}

// HistoryResponse is the grouped history and its load state.
type HistoryResponse struct {
	Status history.Status  `json:"status"`
	Error  string          `json:"error,omitempty"`
	Groups []history.Group `json:"groups"`
}

// HistoryDetailResponse is one record with its parameters decoded.
type HistoryDetailResponse struct {
	Record     model.TransformationHistoryRecord `json:"record"`
	Parameters string                            `json:"parameters"`
}

// DeleteImageResponse reports a synchronous per-image delete.
type DeleteImageResponse struct {
	Deleted []int64          `json:"deleted"`
	Failed  map[int64]string `json:"failed,omitempty"`
	Error   string           `json:"error,omitempty"`
}

// ErrorResponse is a uniform error payload returned by the API.
type ErrorResponse struct {
	Error string `json:"error"`
}
