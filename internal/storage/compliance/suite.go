package compliance

import (
	"context"
	"testing"
	"time"

	"github.com/rezkam/prefstate/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RunKVComplianceTest runs a standard set of tests against a KV implementation.
// setup is a function that returns a fresh (clean) KV instance for the test.
// The returned cleanup func is called after the test to release resources.
func RunKVComplianceTest(t *testing.T, setup func() (storage.KV, func())) {
	t.Run("SetAndGet", func(t *testing.T) {
		store, teardown := setup()
		defer teardown()
		ctx := context.Background()

		require.NoError(t, store.Set(ctx, storage.KeySortOrder, "BY_DEADLINE"))

		value, err := store.Get(ctx, storage.KeySortOrder)
		require.NoError(t, err)
		assert.Equal(t, "BY_DEADLINE", value)
	})

	t.Run("GetMissingKey", func(t *testing.T) {
		store, teardown := setup()
		defer teardown()
		ctx := context.Background()

		_, err := store.Get(ctx, "never_written")
		assert.ErrorIs(t, err, storage.ErrNotFound)
	})

	t.Run("SetOverwrites", func(t *testing.T) {
		store, teardown := setup()
		defer teardown()
		ctx := context.Background()

		require.NoError(t, store.Set(ctx, storage.KeyShowCompleted, "false"))
		require.NoError(t, store.Set(ctx, storage.KeyShowCompleted, "true"))

		value, err := store.Get(ctx, storage.KeyShowCompleted)
		require.NoError(t, err)
		assert.Equal(t, "true", value)
	})

	t.Run("UpdateReadModifyWrite", func(t *testing.T) {
		store, teardown := setup()
		defer teardown()
		ctx := context.Background()

		require.NoError(t, store.Set(ctx, storage.KeySortOrder, "BY_PRIORITY"))

		err := store.Update(ctx, func(current map[string]string) (map[string]string, error) {
			require.Equal(t, "BY_PRIORITY", current[storage.KeySortOrder])
			return map[string]string{storage.KeySortOrder: "BY_DEADLINE_AND_PRIORITY"}, nil
		})
		require.NoError(t, err)

		value, err := store.Get(ctx, storage.KeySortOrder)
		require.NoError(t, err)
		assert.Equal(t, "BY_DEADLINE_AND_PRIORITY", value)
	})

	t.Run("UpdateAbortWritesNothing", func(t *testing.T) {
		store, teardown := setup()
		defer teardown()
		ctx := context.Background()

		require.NoError(t, store.Set(ctx, storage.KeySortOrder, "NONE"))

		err := store.Update(ctx, func(current map[string]string) (map[string]string, error) {
			return map[string]string{storage.KeySortOrder: "BY_DEADLINE"}, assert.AnError
		})
		require.ErrorIs(t, err, assert.AnError)

		value, err := store.Get(ctx, storage.KeySortOrder)
		require.NoError(t, err)
		assert.Equal(t, "NONE", value)
	})

	t.Run("WatchSignalsOnWrite", func(t *testing.T) {
		store, teardown := setup()
		defer teardown()
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		ch := store.Watch(ctx)

		require.NoError(t, store.Set(ctx, storage.KeyShowCompleted, "true"))

		select {
		case _, ok := <-ch:
			assert.True(t, ok)
		case <-time.After(2 * time.Second):
			t.Fatal("no change signal after write")
		}
	})

	t.Run("WatchClosedOnStoreClose", func(t *testing.T) {
		store, teardown := setup()
		defer teardown()
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		ch := store.Watch(ctx)
		require.NoError(t, store.Close())

		select {
		case _, ok := <-ch:
			assert.False(t, ok)
		case <-time.After(2 * time.Second):
			t.Fatal("watch channel not closed after store close")
		}
	})
}
