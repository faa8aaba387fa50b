package postgres

import (
	"context"
	"os"
	"testing"

	"github.com/rezkam/prefstate/internal/storage"
	"github.com/rezkam/prefstate/internal/storage/compliance"
	"github.com/stretchr/testify/require"
)

func TestPostgresStore_Compliance(t *testing.T) {
	pgURL := os.Getenv("TEST_POSTGRES_URL")
	if pgURL == "" {
		t.Skip("TEST_POSTGRES_URL not set, skipping integration tests")
	}

	compliance.RunKVComplianceTest(t, func() (storage.KV, func()) {
		ctx := context.Background()

		store, err := NewStore(ctx, DBConfig{DSN: pgURL})
		require.NoError(t, err)

		_, err = store.db.ExecContext(ctx, "TRUNCATE TABLE preferences")
		require.NoError(t, err)

		return store, func() { store.Close() }
	})
}
