// Package memory provides the generic thread-safe map behind the in-memory
// repositories.
package memory

import (
	"context"
	"errors"
	"sync"
)

var (
	// ErrNotFound is returned when the requested key does not exist.
	ErrNotFound = errors.New("not found")
	// ErrExists is returned by Insert when the key is already taken.
	ErrExists = errors.New("already exists")
)

// Store is a generic thread-safe key-value store.
type Store[V any] struct {
	mu      sync.RWMutex
	data    map[string]V
	keyFunc func(V) string
}

// New creates a Store with a key extractor function.
func New[V any](keyFunc func(V) string) *Store[V] {
	return &Store[V]{
		data:    make(map[string]V),
		keyFunc: keyFunc,
	}
}

// Insert stores v, failing with ErrExists if its key is already present.
func (s *Store[V]) Insert(_ context.Context, v V) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := s.keyFunc(v)
	if _, ok := s.data[k]; ok {
		return ErrExists
	}
	s.data[k] = v
	return nil
}

// Get returns the value for key, or ErrNotFound if absent.
func (s *Store[V]) Get(_ context.Context, key string) (V, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.data[key]
	if !ok {
		var zero V
		return zero, ErrNotFound
	}
	return v, nil
}

// Update replaces the value for key with fn's result while holding the
// write lock. An error from fn leaves the stored value untouched.
func (s *Store[V]) Update(_ context.Context, key string, fn func(V) (V, error)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.data[key]
	if !ok {
		return ErrNotFound
	}
	nv, err := fn(v)
	if err != nil {
		return err
	}
	s.data[key] = nv
	return nil
}

// Filter returns all values for which pred returns true, in arbitrary order.
func (s *Store[V]) Filter(_ context.Context, pred func(V) bool) ([]V, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []V
	for _, v := range s.data {
		if pred(v) {
			out = append(out, v)
		}
	}
	return out, nil
}
