package prefstore

import (
	"context"
	"errors"
	"sync"

	"github.com/rezkam/prefstate/internal/domain"
	"github.com/rezkam/prefstate/internal/storage"
)

// Subscription is a live stream of preference snapshots. The stream starts
// with the current snapshot and then carries a fresh one after every write
// committed through the owning Store, in commit order.
type Subscription struct {
	updates chan domain.UserPreference

	mu  sync.Mutex
	err error
}

// Updates returns the snapshot channel. It is closed when the subscription
// context is cancelled, the underlying store closes, or a fatal read error
// occurs; in the last case Err reports the cause.
func (s *Subscription) Updates() <-chan domain.UserPreference {
	return s.updates
}

// Err returns the fatal error that terminated the stream, or nil. Valid
// after Updates is closed.
func (s *Subscription) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *Subscription) fail(err error) {
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
}

// Watch subscribes to preference changes. The subscription lives until ctx
// is cancelled or the stream terminates; callers resubscribe after a fatal
// error.
func (s *Store) Watch(ctx context.Context) *Subscription {
	sub := &Subscription{updates: make(chan domain.UserPreference)}
	signals := s.kv.Watch(ctx)

	go s.watchLoop(ctx, sub, signals)
	return sub
}

func (s *Store) watchLoop(ctx context.Context, sub *Subscription, signals <-chan struct{}) {
	defer close(sub.updates)

	// Current snapshot first, then one per committed write.
	if !s.emit(ctx, sub) {
		return
	}

	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-signals:
			if !ok {
				return
			}
			if !s.emit(ctx, sub) {
				return
			}
		}
	}
}

// emit reads a fresh snapshot and delivers it. Recoverable corruption is
// downgraded to the default snapshot; any other read failure ends the
// stream. Reports whether the stream should continue.
func (s *Store) emit(ctx context.Context, sub *Subscription) bool {
	pref, err := s.snapshot(ctx)
	if err != nil {
		if !errors.Is(err, storage.ErrCorrupted) {
			sub.fail(err)
			return false
		}
		s.logger.WarnContext(ctx, "preference state unreadable, emitting defaults", "error", err)
		pref = domain.DefaultUserPreference()
	}

	select {
	case sub.updates <- pref:
		return true
	case <-ctx.Done():
		return false
	}
}
