// Package memstore is an in-process token store. Nothing survives the
// process; it backs tests and one-shot commands.
package memstore

import (
	"context"
	"sync"
	"time"

	"github.com/tjfontaine/creatorlink/internal/tokens"
)

type record struct {
	value     string
	expiresAt time.Time
}

// Store is safe for concurrent use.
type Store struct {
	mu      sync.RWMutex
	records map[string]record
	closed  bool
}

var _ tokens.Store = (*Store)(nil)

// New creates an empty store.
func New() *Store {
	return &Store{records: make(map[string]record)}
}

// Get returns the value for key. Expired records are dropped on read.
func (s *Store) Get(_ context.Context, key string) (string, bool, error) {
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return "", false, tokens.ErrClosed
	}
	rec, ok := s.records[key]
	s.mu.RUnlock()

	if !ok {
		return "", false, nil
	}
	if !rec.expiresAt.IsZero() && time.Now().After(rec.expiresAt) {
		s.mu.Lock()
		delete(s.records, key)
		s.mu.Unlock()
		return "", false, nil
	}
	return rec.value, true, nil
}

// Set overwrites any existing value for key.
func (s *Store) Set(_ context.Context, key, value string, expiresAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return tokens.ErrClosed
	}
	s.records[key] = record{value: value, expiresAt: expiresAt}
	return nil
}

// Delete is a no-op for missing keys.
func (s *Store) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return tokens.ErrClosed
	}
	delete(s.records, key)
	return nil
}

// Close drops all records.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.records = nil
	return nil
}
