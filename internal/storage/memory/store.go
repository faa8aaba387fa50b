// Package memory provides an in-memory KV implementation. It backs tests
// and lets callers substitute a fake for the durable stores.
package memory

import (
	"context"
	"maps"
	"sync"

	"github.com/rezkam/prefstate/internal/storage"
)

// Store is an in-memory implementation of storage.KV.
type Store struct {
	mu     sync.Mutex
	data   map[string]string
	hub    *storage.Notifier
	closed bool
}

// NewStore creates an empty in-memory store.
func NewStore() *Store {
	return &Store{
		data: make(map[string]string),
		hub:  storage.NewNotifier(),
	}
}

// Get returns the value stored under key.
func (s *Store) Get(ctx context.Context, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return "", storage.ErrClosed
	}
	value, ok := s.data[key]
	if !ok {
		return "", storage.ErrNotFound
	}
	return value, nil
}

// Set writes key=value and signals watchers.
func (s *Store) Set(ctx context.Context, key, value string) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return storage.ErrClosed
	}
	s.data[key] = value
	s.mu.Unlock()

	s.hub.Notify()
	return nil
}

// Update applies fn to a snapshot of the current state and writes the
// returned keys back under the same lock, so concurrent updates serialize.
func (s *Store) Update(ctx context.Context, fn storage.UpdateFunc) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return storage.ErrClosed
	}

	snapshot := maps.Clone(s.data)
	writes, err := fn(snapshot)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	maps.Copy(s.data, writes)
	s.mu.Unlock()

	if len(writes) > 0 {
		s.hub.Notify()
	}
	return nil
}

// Watch returns a change-signal channel.
func (s *Store) Watch(ctx context.Context) <-chan struct{} {
	return s.hub.Subscribe(ctx)
}

// Close shuts the store down and closes watcher channels.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.hub.Close()
	return nil
}
