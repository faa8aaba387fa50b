package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNotifier_DeliversSignal(t *testing.T) {
	n := NewNotifier()
	defer n.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch := n.Subscribe(ctx)
	n.Notify()

	select {
	case _, ok := <-ch:
		assert.True(t, ok)
	case <-time.After(time.Second):
		t.Fatal("no signal delivered")
	}
}

func TestNotifier_CoalescesSignals(t *testing.T) {
	n := NewNotifier()
	defer n.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch := n.Subscribe(ctx)

	// Without a receive in between, repeated notifies collapse into one
	// pending signal instead of blocking the notifier.
	n.Notify()
	n.Notify()
	n.Notify()

	<-ch
	select {
	case <-ch:
		t.Fatal("expected signals to coalesce into a single pending one")
	default:
	}
}

func TestNotifier_UnsubscribeOnContextCancel(t *testing.T) {
	n := NewNotifier()
	defer n.Close()

	ctx, cancel := context.WithCancel(context.Background())
	ch := n.Subscribe(ctx)
	cancel()

	// The channel closes once the cancellation is observed.
	select {
	case _, ok := <-ch:
		require.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("channel not closed after context cancel")
	}

	// Notifying after unsubscribe must not panic.
	n.Notify()
}

func TestNotifier_CloseClosesSubscribers(t *testing.T) {
	n := NewNotifier()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch := n.Subscribe(ctx)
	n.Close()

	select {
	case _, ok := <-ch:
		require.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("channel not closed after hub close")
	}

	// Subscribing after close yields an already-closed channel.
	_, ok := <-n.Subscribe(ctx)
	assert.False(t, ok)
}
