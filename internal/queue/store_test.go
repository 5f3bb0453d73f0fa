package queue_test

import (
	"context"
	"path/filepath"
	"testing"

	"relip/internal/config"
	"relip/internal/queue"
)

func newStore(t *testing.T) *queue.Store {
	t.Helper()
	dir := t.TempDir()
	cfg := config.Default()
	cfg.Paths.WorkDir = filepath.Join(dir, "work")
	cfg.Paths.LogDir = filepath.Join(dir, "logs")

	store, err := queue.Open(&cfg)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func addJob(t *testing.T, store *queue.Store, n string) *queue.Job {
	t.Helper()
	job, err := store.Add(context.Background(),
		"/in/synced-"+n+".mp4", "/in/original-"+n+".mp4", "/out/"+n+".mp4")
	if err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	return job
}

func TestAddAssignsIdentityAndDefaults(t *testing.T) {
	store := newStore(t)
	job := addJob(t, store, "a")

	if job.ID == 0 {
		t.Fatal("job id not assigned")
	}
	if job.Token == "" {
		t.Fatal("job token not assigned")
	}
	if job.Status != queue.StatusPending {
		t.Fatalf("status = %s, want pending", job.Status)
	}

	loaded, err := store.GetByID(context.Background(), job.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if loaded == nil || loaded.SyncedPath != job.SyncedPath {
		t.Fatalf("loaded job mismatch: %+v", loaded)
	}
}

func TestNextPendingClaimsOldestFirst(t *testing.T) {
	store := newStore(t)
	first := addJob(t, store, "a")
	addJob(t, store, "b")

	claimed, err := store.NextPending(context.Background())
	if err != nil {
		t.Fatalf("NextPending failed: %v", err)
	}
	if claimed == nil || claimed.ID != first.ID {
		t.Fatalf("claimed %+v, want job %d", claimed, first.ID)
	}
	if claimed.Status != queue.StatusRunning {
		t.Fatalf("claimed status = %s, want running", claimed.Status)
	}

	// The claim must be visible to other readers.
	loaded, err := store.GetByID(context.Background(), first.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if loaded.Status != queue.StatusRunning {
		t.Fatalf("persisted status = %s, want running", loaded.Status)
	}
}

func TestNextPendingReturnsNilWhenDrained(t *testing.T) {
	store := newStore(t)
	job, err := store.NextPending(context.Background())
	if err != nil {
		t.Fatalf("NextPending failed: %v", err)
	}
	if job != nil {
		t.Fatalf("expected nil on empty queue, got %+v", job)
	}
}

func TestUpdatePersistsProgressAndStatus(t *testing.T) {
	store := newStore(t)
	job := addJob(t, store, "a")

	job.Status = queue.StatusRunning
	job.SetProgress(42, 35.5, "processing frames")
	if err := store.Update(context.Background(), job); err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	loaded, err := store.GetByID(context.Background(), job.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if loaded.ProgressFrames != 42 || loaded.ProgressPercent != 35.5 {
		t.Fatalf("progress not persisted: %+v", loaded)
	}
	if loaded.ProgressMessage != "processing frames" {
		t.Fatalf("progress message = %q", loaded.ProgressMessage)
	}
}

func TestRetryRequiresFailedStatus(t *testing.T) {
	store := newStore(t)
	job := addJob(t, store, "a")

	if err := store.Retry(context.Background(), job.ID); err == nil {
		t.Fatal("retry of a pending job must fail")
	}

	job.SetFailed("assembly failed")
	if err := store.Update(context.Background(), job); err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if err := store.Retry(context.Background(), job.ID); err != nil {
		t.Fatalf("Retry failed: %v", err)
	}

	loaded, err := store.GetByID(context.Background(), job.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if loaded.Status != queue.StatusPending {
		t.Fatalf("status after retry = %s, want pending", loaded.Status)
	}
	if loaded.ErrorMessage != "" {
		t.Fatalf("error message not cleared: %q", loaded.ErrorMessage)
	}
}

func TestResetRunningReturnsOrphansToPending(t *testing.T) {
	store := newStore(t)
	addJob(t, store, "a")
	addJob(t, store, "b")
	if _, err := store.NextPending(context.Background()); err != nil {
		t.Fatalf("NextPending failed: %v", err)
	}

	reset, err := store.ResetRunning(context.Background())
	if err != nil {
		t.Fatalf("ResetRunning failed: %v", err)
	}
	if reset != 1 {
		t.Fatalf("reset %d jobs, want 1", reset)
	}

	stats, err := store.Stats(context.Background())
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if stats.Pending != 2 || stats.Running != 0 {
		t.Fatalf("stats after reset: %+v", stats)
	}
}

func TestClearRemovesTerminalJobsByDefault(t *testing.T) {
	store := newStore(t)
	done := addJob(t, store, "a")
	failed := addJob(t, store, "b")
	addJob(t, store, "c")

	done.Status = queue.StatusCompleted
	if err := store.Update(context.Background(), done); err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	failed.SetFailed("boom")
	if err := store.Update(context.Background(), failed); err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	removed, err := store.Clear(context.Background())
	if err != nil {
		t.Fatalf("Clear failed: %v", err)
	}
	if removed != 2 {
		t.Fatalf("cleared %d jobs, want 2", removed)
	}

	remaining, err := store.List(context.Background())
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(remaining) != 1 || remaining[0].Status != queue.StatusPending {
		t.Fatalf("remaining jobs: %+v", remaining)
	}
}

func TestListFiltersByStatus(t *testing.T) {
	store := newStore(t)
	addJob(t, store, "a")
	failed := addJob(t, store, "b")
	failed.SetFailed("boom")
	if err := store.Update(context.Background(), failed); err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	jobs, err := store.List(context.Background(), queue.StatusFailed)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(jobs) != 1 || jobs[0].ID != failed.ID {
		t.Fatalf("filtered list: %+v", jobs)
	}
}

func TestParseStatus(t *testing.T) {
	cases := []struct {
		in   string
		want queue.Status
		ok   bool
	}{
		{"pending", queue.StatusPending, true},
		{"  Running ", queue.StatusRunning, true},
		{"COMPLETED", queue.StatusCompleted, true},
		{"nope", "", false},
		{"", "", false},
	}
	for _, tc := range cases {
		got, ok := queue.ParseStatus(tc.in)
		if ok != tc.ok || (ok && got != tc.want) {
			t.Fatalf("ParseStatus(%q) = %q, %v; want %q, %v", tc.in, got, ok, tc.want, tc.ok)
		}
	}
}
