package testsupport

import (
	"context"
	"testing"

	"bibtag/internal/config"
	"bibtag/internal/imagefile"
	"bibtag/internal/queue"
)

// MustOpenStore opens a queue.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *queue.Store {
	t.Helper()

	store, err := queue.Open(cfg)
	if err != nil {
		t.Fatalf("queue.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// NewRun creates a run for tests using the provided store.
func NewRun(t testing.TB, store *queue.Store) *queue.Run {
	t.Helper()

	run, err := store.CreateRun(context.Background(), "")
	if err != nil {
		t.Fatalf("store.CreateRun: %v", err)
	}
	return run
}

// NewItem enqueues a work item for tests using the provided store.
func NewItem(t testing.TB, store *queue.Store, runID, sourcePath string, kind imagefile.Kind) *queue.Item {
	t.Helper()

	item, err := store.InsertItem(context.Background(), runID, sourcePath, kind)
	if err != nil {
		t.Fatalf("store.InsertItem: %v", err)
	}
	return item
}
