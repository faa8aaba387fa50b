package storage

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// Notifier is the in-process change-notification hub shared by KV
// implementations. Each committed write produces one Notify call; delivery
// to subscribers is non-blocking and coalescing.
type Notifier struct {
	mu     sync.Mutex
	subs   map[uuid.UUID]chan struct{}
	closed bool
}

// NewNotifier creates an empty hub.
func NewNotifier() *Notifier {
	return &Notifier{subs: make(map[uuid.UUID]chan struct{})}
}

// Subscribe registers a watcher. The returned channel receives a signal
// after every committed write and is closed when ctx is done or the hub
// shuts down.
func (n *Notifier) Subscribe(ctx context.Context) <-chan struct{} {
	// Buffer of one so a signal is never lost between receives; further
	// signals coalesce into the pending one.
	ch := make(chan struct{}, 1)

	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		close(ch)
		return ch
	}
	id := uuid.New()
	n.subs[id] = ch
	n.mu.Unlock()

	go func() {
		<-ctx.Done()
		n.mu.Lock()
		defer n.mu.Unlock()
		if _, ok := n.subs[id]; ok {
			delete(n.subs, id)
			close(ch)
		}
	}()

	return ch
}

// Notify signals all subscribers that state changed.
func (n *Notifier) Notify() {
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, ch := range n.subs {
		select {
		case ch <- struct{}{}:
		default:
			// Subscriber already has a pending signal.
		}
	}
}

// Close closes all subscriber channels. Subsequent Subscribe calls return
// a closed channel.
func (n *Notifier) Close() {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed {
		return
	}
	n.closed = true
	for id, ch := range n.subs {
		delete(n.subs, id)
		close(ch)
	}
}
