package testsupport

import (
	"context"
	"testing"

	"dubcast/internal/config"
	"dubcast/internal/queue"
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

// NewJob inserts a queued job with a local-file source and returns it.
func NewJob(t testing.TB, store *queue.Store, name string) *queue.Job {
	t.Helper()

	job := &queue.Job{
		ID:     name + "-id",
		Status: queue.StatusQueued,
		Source: queue.Source{AudioPath: "/tmp/" + name + ".wav"},
		Name:   name,
	}
	if err := store.Insert(context.Background(), job); err != nil {
		t.Fatalf("store.Insert: %v", err)
	}
	return job
}
