package memory

import (
	"testing"

	"github.com/rezkam/prefstate/internal/storage"
	"github.com/rezkam/prefstate/internal/storage/compliance"
)

func TestMemoryStore_Compliance(t *testing.T) {
	compliance.RunKVComplianceTest(t, func() (storage.KV, func()) {
		store := NewStore()
		return store, func() { store.Close() }
	})
}
