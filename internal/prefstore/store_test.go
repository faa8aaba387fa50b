package prefstore

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rezkam/prefstate/internal/domain"
	"github.com/rezkam/prefstate/internal/storage"
	"github.com/rezkam/prefstate/internal/storage/memory"
)

// flakyKV wraps the in-memory store with injectable failures.
type flakyKV struct {
	*memory.Store

	mu        sync.Mutex
	getErr    map[string]error
	updateErr error
}

func newFlakyKV() *flakyKV {
	return &flakyKV{Store: memory.NewStore(), getErr: make(map[string]error)}
}

func (f *flakyKV) failGet(key string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.getErr[key] = err
}

func (f *flakyKV) failUpdate(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updateErr = err
}

func (f *flakyKV) Get(ctx context.Context, key string) (string, error) {
	f.mu.Lock()
	err := f.getErr[key]
	f.mu.Unlock()
	if err != nil {
		return "", err
	}
	return f.Store.Get(ctx, key)
}

func (f *flakyKV) Update(ctx context.Context, fn storage.UpdateFunc) error {
	f.mu.Lock()
	err := f.updateErr
	f.mu.Unlock()
	if err != nil {
		return err
	}
	return f.Store.Update(ctx, fn)
}

// recordingMirror captures legacy write-through calls.
type recordingMirror struct {
	mu   sync.Mutex
	puts []string
	err  error
}

func (m *recordingMirror) Put(ctx context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.puts = append(m.puts, key+"="+value)
	return nil
}

func (m *recordingMirror) recorded() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.puts...)
}

func receiveSnapshot(t *testing.T, sub *Subscription) domain.UserPreference {
	t.Helper()
	select {
	case pref, ok := <-sub.Updates():
		require.True(t, ok, "stream terminated: %v", sub.Err())
		return pref
	case <-time.After(2 * time.Second):
		t.Fatal("no snapshot delivered")
		return domain.UserPreference{}
	}
}

func storedSortOrder(t *testing.T, kv storage.KV) domain.SortOrder {
	t.Helper()
	raw, err := kv.Get(context.Background(), storage.KeySortOrder)
	require.NoError(t, err)
	order, err := domain.NewSortOrder(raw)
	require.NoError(t, err)
	return order
}

func TestSetDeadlineSort_TransitionTable(t *testing.T) {
	tests := []struct {
		current domain.SortOrder
		enable  bool
		want    domain.SortOrder
	}{
		{domain.SortOrderNone, true, domain.SortOrderByDeadline},
		{domain.SortOrderNone, false, domain.SortOrderNone},
		{domain.SortOrderByDeadline, true, domain.SortOrderByDeadline},
		{domain.SortOrderByDeadline, false, domain.SortOrderNone},
		{domain.SortOrderByPriority, true, domain.SortOrderByDeadlineAndPriority},
		{domain.SortOrderByPriority, false, domain.SortOrderByPriority},
		{domain.SortOrderByDeadlineAndPriority, true, domain.SortOrderByDeadlineAndPriority},
		{domain.SortOrderByDeadlineAndPriority, false, domain.SortOrderByPriority},
	}

	for _, tt := range tests {
		ctx := context.Background()
		kv := memory.NewStore()
		store := New(kv, nil)

		require.NoError(t, kv.Set(ctx, storage.KeySortOrder, tt.current.String()))
		require.NoError(t, store.SetDeadlineSort(ctx, tt.enable))

		assert.Equalf(t, tt.want, storedSortOrder(t, kv), "from %s, enable=%v", tt.current, tt.enable)
		kv.Close()
	}
}

func TestSetPrioritySort_TransitionTable(t *testing.T) {
	tests := []struct {
		current domain.SortOrder
		enable  bool
		want    domain.SortOrder
	}{
		{domain.SortOrderNone, true, domain.SortOrderByPriority},
		{domain.SortOrderNone, false, domain.SortOrderNone},
		{domain.SortOrderByPriority, true, domain.SortOrderByPriority},
		{domain.SortOrderByPriority, false, domain.SortOrderNone},
		{domain.SortOrderByDeadline, true, domain.SortOrderByDeadlineAndPriority},
		{domain.SortOrderByDeadline, false, domain.SortOrderByDeadline},
		{domain.SortOrderByDeadlineAndPriority, true, domain.SortOrderByDeadlineAndPriority},
		{domain.SortOrderByDeadlineAndPriority, false, domain.SortOrderByDeadline},
	}

	for _, tt := range tests {
		ctx := context.Background()
		kv := memory.NewStore()
		store := New(kv, nil)

		require.NoError(t, kv.Set(ctx, storage.KeySortOrder, tt.current.String()))
		require.NoError(t, store.SetPrioritySort(ctx, tt.enable))

		assert.Equalf(t, tt.want, storedSortOrder(t, kv), "from %s, enable=%v", tt.current, tt.enable)
		kv.Close()
	}
}

func TestSetDeadlineSort_Idempotent(t *testing.T) {
	ctx := context.Background()
	kv := memory.NewStore()
	defer kv.Close()
	store := New(kv, nil)

	require.NoError(t, store.SetDeadlineSort(ctx, true))
	once := storedSortOrder(t, kv)

	require.NoError(t, store.SetDeadlineSort(ctx, true))
	assert.Equal(t, once, storedSortOrder(t, kv))
}

func TestWatch_DefaultFirstSnapshot(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	kv := memory.NewStore()
	defer kv.Close()
	store := New(kv, nil)

	sub := store.Watch(ctx)

	pref := receiveSnapshot(t, sub)
	assert.Equal(t, domain.DefaultUserPreference(), pref)
}

func TestWatch_ShowCompletedRoundTrip(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	kv := memory.NewStore()
	defer kv.Close()
	store := New(kv, nil)

	sub := store.Watch(ctx)
	receiveSnapshot(t, sub) // initial defaults

	require.NoError(t, store.SetShowCompleted(ctx, true))

	pref := receiveSnapshot(t, sub)
	assert.True(t, pref.ShowCompleted)
	assert.Equal(t, domain.SortOrderNone, pref.SortOrder)
}

func TestWatch_ToggleScenario(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	kv := memory.NewStore()
	defer kv.Close()
	store := New(kv, nil)

	sub := store.Watch(ctx)
	assert.Equal(t, domain.SortOrderNone, receiveSnapshot(t, sub).SortOrder)

	steps := []struct {
		op     func(context.Context, bool) error
		enable bool
		want   domain.SortOrder
	}{
		{store.SetDeadlineSort, true, domain.SortOrderByDeadline},
		{store.SetPrioritySort, true, domain.SortOrderByDeadlineAndPriority},
		{store.SetDeadlineSort, false, domain.SortOrderByPriority},
		{store.SetPrioritySort, false, domain.SortOrderNone},
	}

	for _, step := range steps {
		require.NoError(t, step.op(ctx, step.enable))
		assert.Equal(t, step.want, receiveSnapshot(t, sub).SortOrder)
	}
}

func TestWatch_CorruptedStateEmitsDefaults(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	kv := memory.NewStore()
	defer kv.Close()
	store := New(kv, nil)

	sub := store.Watch(ctx)
	receiveSnapshot(t, sub)

	// A write nobody can decode: the stream substitutes defaults instead
	// of terminating.
	require.NoError(t, kv.Set(ctx, storage.KeySortOrder, "garbage"))
	assert.Equal(t, domain.DefaultUserPreference(), receiveSnapshot(t, sub))

	// The stream is still alive and follows later writes.
	require.NoError(t, store.SetPrioritySort(ctx, true))
	assert.Equal(t, domain.SortOrderByPriority, receiveSnapshot(t, sub).SortOrder)
}

func TestWatch_FatalReadErrorTerminatesStream(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	kv := newFlakyKV()
	defer kv.Close()
	store := New(kv, nil)

	sub := store.Watch(ctx)
	receiveSnapshot(t, sub)

	kv.failGet(storage.KeyShowCompleted, assert.AnError)
	require.NoError(t, kv.Set(ctx, storage.KeyShowCompleted, "true"))

	select {
	case _, ok := <-sub.Updates():
		require.False(t, ok, "stream should terminate on a fatal read error")
	case <-time.After(2 * time.Second):
		t.Fatal("stream did not terminate")
	}
	assert.ErrorIs(t, sub.Err(), assert.AnError)
}

func TestGet_CorruptedStateYieldsDefaults(t *testing.T) {
	ctx := context.Background()
	kv := memory.NewStore()
	defer kv.Close()
	store := New(kv, nil)

	require.NoError(t, kv.Set(ctx, storage.KeySortOrder, "garbage"))

	pref, err := store.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.DefaultUserPreference(), pref)
}

func TestGet_StrictDecodeSurfacesError(t *testing.T) {
	ctx := context.Background()
	kv := memory.NewStore()
	defer kv.Close()
	store := New(kv, nil, WithStrictDecode())

	require.NoError(t, kv.Set(ctx, storage.KeySortOrder, "garbage"))

	_, err := store.Get(ctx)
	assert.ErrorIs(t, err, domain.ErrInvalidSortOrder)
}

func TestSetSortToggle_MirrorWriteThrough(t *testing.T) {
	ctx := context.Background()
	kv := memory.NewStore()
	defer kv.Close()
	mirror := &recordingMirror{}
	store := New(kv, mirror)

	require.NoError(t, store.SetDeadlineSort(ctx, true))
	require.NoError(t, store.SetPrioritySort(ctx, true))

	assert.Equal(t, []string{
		"sort_order=BY_DEADLINE",
		"sort_order=BY_DEADLINE_AND_PRIORITY",
	}, mirror.recorded())
}

func TestSetSortToggle_MirrorFailureSwallowed(t *testing.T) {
	ctx := context.Background()
	kv := memory.NewStore()
	defer kv.Close()
	mirror := &recordingMirror{err: assert.AnError}
	store := New(kv, mirror)

	// The mirror is a compatibility shim, not a source of truth.
	require.NoError(t, store.SetDeadlineSort(ctx, true))
	assert.Equal(t, domain.SortOrderByDeadline, storedSortOrder(t, kv))
}

func TestSetSortToggle_PrimaryWriteFailurePropagates(t *testing.T) {
	ctx := context.Background()
	kv := newFlakyKV()
	defer kv.Close()
	mirror := &recordingMirror{}
	store := New(kv, mirror)

	kv.failUpdate(assert.AnError)

	err := store.SetDeadlineSort(ctx, true)
	require.ErrorIs(t, err, assert.AnError)

	// A failed primary write must not reach the mirror.
	assert.Empty(t, mirror.recorded())
}

func TestSetShowCompleted_DoesNotTouchMirror(t *testing.T) {
	ctx := context.Background()
	kv := memory.NewStore()
	defer kv.Close()
	mirror := &recordingMirror{}
	store := New(kv, mirror)

	require.NoError(t, store.SetShowCompleted(ctx, true))
	assert.Empty(t, mirror.recorded())
}
