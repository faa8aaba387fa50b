package storage

import (
	"context"
	"errors"
)

// Preference keys in the primary store. The names are a stable wire format
// shared with the legacy settings consumer.
const (
	KeyShowCompleted = "show_completed"
	KeySortOrder     = "sort_order"
)

// Errors returned by KV implementations.
var (
	// ErrNotFound indicates the key has never been written.
	ErrNotFound = errors.New("key not found")

	// ErrCorrupted indicates the backing data could not be read but the
	// condition is recoverable: callers substitute defaults and continue.
	ErrCorrupted = errors.New("store data corrupted")

	// ErrClosed indicates the store has been closed.
	ErrClosed = errors.New("store closed")
)

// KV is a durable key-value store for preference state.
// Implementations serialize updates: a read-modify-write via Update observes
// a consistent prior state even under concurrent callers.
type KV interface {
	// Get returns the value stored under key. Returns ErrNotFound when the
	// key is absent and ErrCorrupted when the backing data is unreadable
	// but recoverable.
	Get(ctx context.Context, key string) (string, error)

	// Set durably writes key=value as a single atomic update and signals
	// watchers on success.
	Set(ctx context.Context, key, value string) error

	// Update applies fn atomically: fn receives a snapshot of the current
	// state and returns the keys to write back. Returning an error from fn
	// aborts the update without writing. Watchers are signalled once per
	// committed update.
	Update(ctx context.Context, fn UpdateFunc) error

	// Watch returns a channel that receives a signal after every committed
	// write. Delivery is coalescing: a slow receiver observes that state
	// changed, not every intermediate signal. The channel is closed when
	// ctx is done or the store is closed.
	Watch(ctx context.Context) <-chan struct{}

	// Close releases the store. Pending watch channels are closed.
	Close() error
}

// UpdateFunc computes the keys to write from a snapshot of current state.
// The snapshot is a copy; mutating it has no effect beyond the returned map.
type UpdateFunc func(current map[string]string) (map[string]string, error)

// Mirror is the legacy write-only settings sink kept in sync for
// backward-compatible consumers. It is never read by this module and its
// failures are not part of the primary write's outcome.
type Mirror interface {
	Put(ctx context.Context, key, value string) error
}
