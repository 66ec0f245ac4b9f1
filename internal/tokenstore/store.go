// Package tokenstore persists the auth token between runs. It stands in for
// the browser local storage the token lived in before.
package tokenstore

import (
	"context"
	"errors"
	"sync"
)

var ErrNoToken = errors.New("tokenstore: no token stored")

// Store holds at most one auth token. Load returns ErrNoToken when empty.
type Store interface {
	Load(ctx context.Context) (string, error)
	Save(ctx context.Context, token string) error
	Clear(ctx context.Context) error
	Close() error
}

// MemoryStore keeps the token in process memory.
type MemoryStore struct {
	mu    sync.RWMutex
	token string
}

func NewMemoryStore() *MemoryStore { return &MemoryStore{} }

func (m *MemoryStore) Load(context.Context) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.token == "" {
		return "", ErrNoToken
	}
	return m.token, nil
}

func (m *MemoryStore) Save(_ context.Context, token string) error {
	if token == "" {
		return errors.New("tokenstore: empty token")
	}
	m.mu.Lock()
	m.token = token
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) Clear(context.Context) error {
	m.mu.Lock()
	m.token = ""
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) Close() error { return nil }
