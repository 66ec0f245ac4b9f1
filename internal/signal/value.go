// Package signal provides a small observable value used by the client
// services to publish state changes to whatever UI layer is attached.
package signal

import "sync"

// Value holds a T and notifies subscribers after every Set or Update.
// Subscribers are called synchronously, outside the lock, in subscription order.
type Value[T any] struct {
	mu     sync.RWMutex
	v      T
	nextID int
	subs   []subscriber[T]
}

type subscriber[T any] struct {
	id int
	fn func(T)
}

// New returns a Value initialised to v.
func New[T any](v T) *Value[T] {
	return &Value[T]{v: v}
}

// Get returns the current value.
func (s *Value[T]) Get() T {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.v
}

// Set replaces the value and notifies subscribers.
func (s *Value[T]) Set(v T) {
	s.mu.Lock()
	s.v = v
	subs := append([]subscriber[T](nil), s.subs...)
	s.mu.Unlock()

	for _, sub := range subs {
		sub.fn(v)
	}
}

// Update applies fn to the current value under the lock, stores the result
// and notifies subscribers.
func (s *Value[T]) Update(fn func(T) T) T {
	s.mu.Lock()
	s.v = fn(s.v)
	v := s.v
	subs := append([]subscriber[T](nil), s.subs...)
	s.mu.Unlock()

	for _, sub := range subs {
		sub.fn(v)
	}
	return v
}

// Subscribe registers fn and returns a function that removes it.
func (s *Value[T]) Subscribe(fn func(T)) (unsubscribe func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	id := s.nextID
	s.subs = append(s.subs, subscriber[T]{id: id, fn: fn})

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		for i, sub := range s.subs {
			if sub.id == id {
				s.subs = append(s.subs[:i], s.subs[i+1:]...)
				return
			}
		}
	}
}
