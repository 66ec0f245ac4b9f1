// Package testutil holds test doubles and fixtures shared by package tests.
package testutil

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/raysh454/iro/internal/logging"
	"github.com/raysh454/iro/internal/webclient"
)

// ─── Logger ────────────────────────────────────────────────────────────

// DummyLogger records messages per level. Fields are dropped.
type DummyLogger struct {
	mu     sync.Mutex
	Errors []string
	Infos  []string
	Debugs []string
	Warns  []string
}

func (l *DummyLogger) Debug(msg string, fields ...logging.Field) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.Debugs = append(l.Debugs, msg)
}

func (l *DummyLogger) Info(msg string, fields ...logging.Field) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.Infos = append(l.Infos, msg)
}

func (l *DummyLogger) Warn(msg string, fields ...logging.Field) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.Warns = append(l.Warns, msg)
}

func (l *DummyLogger) Error(msg string, fields ...logging.Field) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.Errors = append(l.Errors, msg)
}

func (l *DummyLogger) With(_ ...logging.Field) logging.Logger { return l }

// HasWarn reports whether a warning containing substr was logged.
func (l *DummyLogger) HasWarn(substr string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, m := range l.Warns {
		if strings.Contains(m, substr) {
			return true
		}
	}
	return false
}

// ─── WebClient ─────────────────────────────────────────────────────────

// StubWebClient is a webclient.WebClient answering from canned routes, for
// tests that need exact bytes the FakeBackend would never send. Routes are
// keyed "METHOD /path" with the path taken from the request URL. Unrouted
// requests get 404 with a backend-style error body.
type StubWebClient struct {
	mu       sync.Mutex
	routes   map[string]*webclient.Response
	fail     map[string]error
	requests []*webclient.Request
	closed   bool
}

// Respond makes method+path answer status with body.
func (s *StubWebClient) Respond(method, path string, status int, body string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.routes == nil {
		s.routes = map[string]*webclient.Response{}
	}
	s.routes[method+" "+path] = &webclient.Response{
		Headers:    http.Header{"Content-Type": []string{"application/json"}},
		Body:       []byte(body),
		StatusCode: status,
	}
}

// FailWith makes method+path return err instead of a response.
func (s *StubWebClient) FailWith(method, path string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail == nil {
		s.fail = map[string]error{}
	}
	s.fail[method+" "+path] = err
}

func (s *StubWebClient) Do(ctx context.Context, req *webclient.Request) (*webclient.Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	u, err := url.Parse(req.URL)
	if err != nil {
		return nil, err
	}
	key := strings.ToUpper(req.Method) + " " + u.Path

	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = append(s.requests, req)
	if err := s.fail[key]; err != nil {
		return nil, err
	}
	canned, ok := s.routes[key]
	if !ok {
		return &webclient.Response{
			Request:    req,
			Body:       []byte(`{"success":false,"message":"no stub for ` + key + `"}`),
			StatusCode: http.StatusNotFound,
			FetchedAt:  time.Now(),
		}, nil
	}
	resp := *canned
	resp.Request = req
	resp.FetchedAt = time.Now()
	return &resp, nil
}

// Requests returns every request received so far.
func (s *StubWebClient) Requests() []*webclient.Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*webclient.Request(nil), s.requests...)
}

func (s *StubWebClient) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

// Closed reports whether Close was called.
func (s *StubWebClient) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}
