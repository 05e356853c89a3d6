package testutil

import (
	"testing"

	"packsync-go/internal/index"
	"packsync-go/internal/packsync"
)

// NewTestIndex creates a new in-memory index with the schema migrated.
// The index is automatically closed when the test completes.
func NewTestIndex(t *testing.T, clock packsync.Clock) *index.SQLiteIndex {
	t.Helper()

	idx, err := index.NewSQLiteIndex(":memory:", clock)
	if err != nil {
		t.Fatalf("failed to open index: %v", err)
	}
	if err := idx.MigrateUp(); err != nil {
		idx.Close()
		t.Fatalf("failed to migrate index: %v", err)
	}

	t.Cleanup(func() {
		idx.Close()
	})
	return idx
}
