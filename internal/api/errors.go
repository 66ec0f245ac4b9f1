package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Kind classifies a failed backend call.
type Kind string

const (
	KindNetwork    Kind = "network"    // no HTTP response
	KindAuth       Kind = "auth"       // 401, 403 or rejected credentials
	KindValidation Kind = "validation" // 400, 422
	KindNotFound   Kind = "not_found"  // 404
	KindServer     Kind = "server"     // any other failure reported by the backend
	KindUnknown    Kind = "unknown"
)

// Error is returned by every Client method that talks to the backend.
type Error struct {
	Kind   Kind
	Op     string
	Status int
	// Message is the backend's own explanation, when it sent one.
	Message string
	Err     error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Op)
	b.WriteString(": ")
	b.WriteString(string(e.Kind))
	if e.Status != 0 {
		fmt.Fprintf(&b, " (status %d)", e.Status)
	}
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf returns the Kind of err. Context errors count as network failures.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.Kind
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return KindNetwork
	}
	return KindUnknown
}

// UserMessage turns err into a short status line for display. The backend's
// message wins when there is one.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	var apiErr *Error
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		return apiErr.Message
	}
	switch KindOf(err) {
	case KindNetwork:
		return "cannot reach the server, check your connection and try again"
	case KindAuth:
		return "authentication failed, please log in again"
	case KindValidation:
		return "the server rejected the request as invalid"
	case KindNotFound:
		return "the requested item was not found"
	case KindServer:
		return "the server could not complete the request, try again later"
	}
	return err.Error()
}

// kindForStatus maps a non-2xx status code to a Kind.
func kindForStatus(status int) Kind {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return KindAuth
	case status == http.StatusBadRequest || status == http.StatusUnprocessableEntity:
		return KindValidation
	case status == http.StatusNotFound:
		return KindNotFound
	}
	return KindServer
}

// errorBody is what the backend sends alongside a failure.
type errorBody struct {
	Success *bool  `json:"success"`
	Message string `json:"message"`
	Error   string `json:"error"`
}

func decodeErrorMessage(body []byte) string {
	var eb errorBody
	if err := json.Unmarshal(body, &eb); err != nil {
		return ""
	}
	if eb.Message != "" {
		return eb.Message
	}
	return eb.Error
}
