package testsupport

import (
	"context"
	"testing"

	"olcsync/internal/catalog"
	"olcsync/internal/config"
)

// MustOpenCatalog opens the catalog at cfg's path and registers cleanup.
func MustOpenCatalog(t testing.TB, cfg *config.Config) *catalog.Store {
	t.Helper()

	store, err := catalog.Open(context.Background(), cfg.Paths.CatalogPath)
	if err != nil {
		t.Fatalf("catalog.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}
