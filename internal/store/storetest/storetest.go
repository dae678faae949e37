// Package storetest opens throwaway stores for tests.
package storetest

import (
	"context"
	"testing"

	"github.com/zhouzirui/z-support/backend/internal/store"
	"github.com/zhouzirui/z-support/backend/internal/store/db/sqlite"
)

// New returns a migrated in-memory sqlite store closed at test cleanup.
func New(t testing.TB) *store.Store {
	t.Helper()
	ctx := context.Background()

	driver, err := sqlite.NewDB(ctx, ":memory:")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	st := store.New(driver)
	if err := st.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	return st
}
