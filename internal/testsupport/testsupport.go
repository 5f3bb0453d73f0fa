// Package testsupport provides shared constructors for package tests.
package testsupport

import (
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"relip/internal/config"
	"relip/internal/queue"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*config.Config)

// NewConfig produces a config seeded with unique temp directories per test.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfg := config.Default()
	cfg.Paths.WorkDir = filepath.Join(base, "work")
	cfg.Paths.LogDir = filepath.Join(base, "logs")
	cfg.Paths.CascadeDir = filepath.Join(base, "cascades")
	cfg.Mask.DilateIterations = 2
	cfg.Mask.BlurKernel = 5
	cfg.Pipeline.KeepWork = true

	for _, opt := range opts {
		opt(&cfg)
	}
	return &cfg
}

// WithWorkers sets the frame worker count on the test config.
func WithWorkers(workers int) ConfigOption {
	return func(cfg *config.Config) {
		cfg.Pipeline.Workers = workers
	}
}

// MustOpenStore opens a job store against the test config and registers
// cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *queue.Store {
	t.Helper()
	store, err := queue.Open(cfg)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() {
		if err := store.Close(); err != nil {
			t.Errorf("close store: %v", err)
		}
	})
	return store
}

// NewLogger returns a logger that discards all output.
func NewLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
