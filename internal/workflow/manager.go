// Package workflow drains the job queue through the enhancement pipeline.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"

	"relip/internal/config"
	"relip/internal/pipeline"
	"relip/internal/queue"
	"relip/internal/services"
)

// Runner executes one enhancement job. Satisfied by *pipeline.Pipeline.
type Runner interface {
	Run(ctx context.Context, req pipeline.Request) (pipeline.Result, error)
}

// ErrLockHeld is returned when another processor already owns the work lock.
var ErrLockHeld = errors.New("workflow: another processor holds the lock")

// Manager claims pending jobs one at a time, runs the pipeline, and persists
// status and progress back to the store. A file lock keeps two processors off
// the same work directory.
type Manager struct {
	cfg    *config.Config
	store  *queue.Store
	runner Runner
	logger *slog.Logger

	lockPath string
	lock     *flock.Flock
}

// NewManager constructs a workflow manager.
func NewManager(cfg *config.Config, store *queue.Store, runner Runner, logger *slog.Logger) *Manager {
	lockPath := filepath.Join(cfg.Paths.LogDir, "relip.lock")
	return &Manager{
		cfg:      cfg,
		store:    store,
		runner:   runner,
		logger:   logger,
		lockPath: lockPath,
		lock:     flock.New(lockPath),
	}
}

// Drain processes pending jobs until the queue is empty or the context is
// cancelled, and returns how many jobs it ran. Jobs left running by a crashed
// processor are returned to pending first; the frame cache makes their rerun
// cheap.
func (m *Manager) Drain(ctx context.Context) (int, error) {
	ok, err := m.lock.TryLock()
	if err != nil {
		return 0, fmt.Errorf("acquire lock %s: %w", m.lockPath, err)
	}
	if !ok {
		return 0, ErrLockHeld
	}
	defer func() {
		if err := m.lock.Unlock(); err != nil {
			m.logger.Warn("failed to release processor lock",
				"component", "workflow", "lock", m.lockPath, "error", err)
		}
	}()

	if reset, err := m.store.ResetRunning(ctx); err != nil {
		return 0, err
	} else if reset > 0 {
		m.logger.Info("returned orphaned jobs to pending",
			"component", "workflow", "jobs", reset)
	}

	processed := 0
	for {
		if err := ctx.Err(); err != nil {
			return processed, err
		}
		job, err := m.store.NextPending(ctx)
		if err != nil {
			return processed, err
		}
		if job == nil {
			return processed, nil
		}
		m.processJob(ctx, job)
		processed++
	}
}

// processJob runs a single claimed job and records the outcome. Job failures
// are persisted, not returned; one bad job must not stall the drain.
func (m *Manager) processJob(ctx context.Context, job *queue.Job) {
	logger := m.logger.With("component", "workflow", "job", job.ID, "token", job.Token)
	logger.Info("processing job", "synced", job.SyncedPath, "output", job.OutputPath)
	start := time.Now()

	job.SetProgress(0, 0, "processing frames")
	if err := m.store.Update(ctx, job); err != nil {
		logger.Warn("failed to persist job start", "error", err)
	}

	runCtx := services.WithJobID(ctx, job.ID)
	result, err := m.runner.Run(runCtx, pipeline.Request{
		SyncedPath:   job.SyncedPath,
		OriginalPath: job.OriginalPath,
		OutputPath:   job.OutputPath,
	})
	if err != nil {
		job.SetFailed(failureMessage(err))
		if updateErr := m.store.Update(ctx, job); updateErr != nil {
			logger.Error("failed to persist job failure", "error", updateErr)
		}
		logger.Error("job failed",
			"error", err,
			"retryable", !services.IsFatalConfig(err),
			"duration", time.Since(start).Round(time.Millisecond))
		return
	}

	job.Status = queue.StatusCompleted
	job.SetProgress(result.Frames, 100, "completed")
	if err := m.store.Update(ctx, job); err != nil {
		logger.Error("failed to persist job completion", "error", err)
	}
	logger.Info("job completed",
		"frames", result.Frames,
		"cached", result.Cached,
		"no_face", result.NoFace,
		"duration", time.Since(start).Round(time.Millisecond))
}

// failureMessage marks failures rooted in configuration or missing inputs so
// the queue listing shows that a plain retry will not help.
func failureMessage(err error) string {
	if services.IsFatalConfig(err) {
		return "needs intervention: " + err.Error()
	}
	return err.Error()
}
