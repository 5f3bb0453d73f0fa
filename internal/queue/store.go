// Package queue persists enhancement jobs in SQLite so runs submitted ahead
// of time survive restarts and can be drained by a single processor.
package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"relip/internal/config"
)

// Store manages job persistence backed by SQLite.
type Store struct {
	db   *sql.DB
	path string
}

const (
	sqliteBusyCode          = 5
	busyRetryAttempts       = 5
	busyRetryInitialBackoff = 10 * time.Millisecond
	busyRetryMaxBackoff     = 200 * time.Millisecond
)

const schema = `
CREATE TABLE IF NOT EXISTS jobs (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	token TEXT NOT NULL UNIQUE,
	synced_path TEXT NOT NULL,
	original_path TEXT NOT NULL,
	output_path TEXT NOT NULL,
	status TEXT NOT NULL DEFAULT 'pending',
	error_message TEXT NOT NULL DEFAULT '',
	progress_frames INTEGER NOT NULL DEFAULT 0,
	progress_percent REAL NOT NULL DEFAULT 0,
	progress_message TEXT NOT NULL DEFAULT '',
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_jobs_status ON jobs(status);
`

const jobColumns = `id, token, synced_path, original_path, output_path, status,
	error_message, progress_frames, progress_percent, progress_message,
	created_at, updated_at`

// Open initializes or connects to the job database under the log directory.
func Open(cfg *config.Config) (*Store, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}

	dbPath := filepath.Join(cfg.Paths.LogDir, "queue.db")
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}

	return &Store{db: db, path: dbPath}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Path returns the database file location.
func (s *Store) Path() string { return s.path }

// Add inserts a new pending job and returns it.
func (s *Store) Add(ctx context.Context, syncedPath, originalPath, outputPath string) (*Job, error) {
	now := time.Now().UTC()
	job := &Job{
		Token:        uuid.NewString(),
		SyncedPath:   syncedPath,
		OriginalPath: originalPath,
		OutputPath:   outputPath,
		Status:       StatusPending,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	res, err := s.execWithRetry(ctx, `
		INSERT INTO jobs (token, synced_path, original_path, output_path, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		job.Token, job.SyncedPath, job.OriginalPath, job.OutputPath, string(job.Status),
		now.Format(time.RFC3339Nano), now.Format(time.RFC3339Nano),
	)
	if err != nil {
		return nil, fmt.Errorf("insert job: %w", err)
	}
	job.ID, err = res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("read job id: %w", err)
	}
	return job, nil
}

// Update persists the job's mutable fields.
func (s *Store) Update(ctx context.Context, job *Job) error {
	job.UpdatedAt = time.Now().UTC()
	err := s.execWithoutResultRetry(ctx, `
		UPDATE jobs SET status = ?, error_message = ?, progress_frames = ?,
			progress_percent = ?, progress_message = ?, updated_at = ?
		WHERE id = ?`,
		string(job.Status), job.ErrorMessage, job.ProgressFrames,
		job.ProgressPercent, job.ProgressMessage,
		job.UpdatedAt.Format(time.RFC3339Nano), job.ID,
	)
	if err != nil {
		return fmt.Errorf("update job %d: %w", job.ID, err)
	}
	return nil
}

// GetByID returns the job with the given id, or nil when absent.
func (s *Store) GetByID(ctx context.Context, id int64) (*Job, error) {
	row := s.db.QueryRowContext(ensureContext(ctx),
		`SELECT `+jobColumns+` FROM jobs WHERE id = ?`, id)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return job, err
}

// NextPending atomically claims the oldest pending job, moving it to running.
// Returns nil when the queue is drained.
func (s *Store) NextPending(ctx context.Context) (*Job, error) {
	ctx = ensureContext(ctx)
	var job *Job
	err := retryOnBusy(ctx, func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer tx.Rollback()

		row := tx.QueryRowContext(ctx,
			`SELECT `+jobColumns+` FROM jobs WHERE status = ? ORDER BY id LIMIT 1`,
			string(StatusPending))
		claimed, err := scanJob(row)
		if errors.Is(err, sql.ErrNoRows) {
			job = nil
			return nil
		}
		if err != nil {
			return err
		}

		now := time.Now().UTC()
		if _, err := tx.ExecContext(ctx,
			`UPDATE jobs SET status = ?, updated_at = ? WHERE id = ?`,
			string(StatusRunning), now.Format(time.RFC3339Nano), claimed.ID); err != nil {
			return err
		}
		if err := tx.Commit(); err != nil {
			return err
		}
		claimed.Status = StatusRunning
		claimed.UpdatedAt = now
		job = claimed
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("claim pending job: %w", err)
	}
	return job, nil
}

// List returns jobs ordered by id, optionally filtered by status.
func (s *Store) List(ctx context.Context, statuses ...Status) ([]*Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs`
	args := make([]any, 0, len(statuses))
	if len(statuses) > 0 {
		placeholders := make([]string, len(statuses))
		for i, status := range statuses {
			placeholders[i] = "?"
			args = append(args, string(status))
		}
		query += ` WHERE status IN (` + strings.Join(placeholders, ", ") + `)`
	}
	query += ` ORDER BY id`

	rows, err := s.db.QueryContext(ensureContext(ctx), query, args...)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

// Retry moves a failed job back to pending and clears its error state.
func (s *Store) Retry(ctx context.Context, id int64) error {
	res, err := s.execWithRetry(ctx, `
		UPDATE jobs SET status = ?, error_message = '', progress_frames = 0,
			progress_percent = 0, progress_message = '', updated_at = ?
		WHERE id = ? AND status = ?`,
		string(StatusPending), time.Now().UTC().Format(time.RFC3339Nano),
		id, string(StatusFailed),
	)
	if err != nil {
		return fmt.Errorf("retry job %d: %w", id, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("retry job %d: %w", id, err)
	}
	if affected == 0 {
		return fmt.Errorf("retry job %d: no failed job with that id", id)
	}
	return nil
}

// ResetRunning returns any running jobs to pending. Called at processor
// startup so jobs orphaned by a crash get picked up again; the frame cache
// makes the rerun cheap.
func (s *Store) ResetRunning(ctx context.Context) (int64, error) {
	res, err := s.execWithRetry(ctx, `
		UPDATE jobs SET status = ?, updated_at = ? WHERE status = ?`,
		string(StatusPending), time.Now().UTC().Format(time.RFC3339Nano),
		string(StatusRunning),
	)
	if err != nil {
		return 0, fmt.Errorf("reset running jobs: %w", err)
	}
	return res.RowsAffected()
}

// Clear deletes jobs in the given statuses and reports how many were removed.
// With no statuses it clears terminal jobs only.
func (s *Store) Clear(ctx context.Context, statuses ...Status) (int64, error) {
	if len(statuses) == 0 {
		statuses = []Status{StatusCompleted, StatusFailed}
	}
	placeholders := make([]string, len(statuses))
	args := make([]any, len(statuses))
	for i, status := range statuses {
		placeholders[i] = "?"
		args[i] = string(status)
	}
	res, err := s.execWithRetry(ctx,
		`DELETE FROM jobs WHERE status IN (`+strings.Join(placeholders, ", ")+`)`, args...)
	if err != nil {
		return 0, fmt.Errorf("clear jobs: %w", err)
	}
	return res.RowsAffected()
}

// Stats returns aggregate job counts.
func (s *Store) Stats(ctx context.Context) (Stats, error) {
	rows, err := s.db.QueryContext(ensureContext(ctx),
		`SELECT status, COUNT(*) FROM jobs GROUP BY status`)
	if err != nil {
		return Stats{}, fmt.Errorf("job stats: %w", err)
	}
	defer rows.Close()

	var stats Stats
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return Stats{}, err
		}
		stats.Total += count
		switch Status(status) {
		case StatusPending:
			stats.Pending = count
		case StatusRunning:
			stats.Running = count
		case StatusCompleted:
			stats.Completed = count
		case StatusFailed:
			stats.Failed = count
		}
	}
	return stats, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*Job, error) {
	var job Job
	var status, createdAt, updatedAt string
	err := row.Scan(
		&job.ID, &job.Token, &job.SyncedPath, &job.OriginalPath, &job.OutputPath,
		&status, &job.ErrorMessage, &job.ProgressFrames, &job.ProgressPercent,
		&job.ProgressMessage, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}
	job.Status = Status(status)
	if job.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	if job.UpdatedAt, err = time.Parse(time.RFC3339Nano, updatedAt); err != nil {
		return nil, fmt.Errorf("parse updated_at: %w", err)
	}
	return &job, nil
}

func ensureContext(ctx context.Context) context.Context {
	if ctx != nil {
		return ctx
	}
	return context.Background()
}

func isSQLiteBusy(err error) bool {
	if err == nil {
		return false
	}
	var coder interface{ Code() int }
	if errors.As(err, &coder) && coder.Code() == sqliteBusyCode {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

func retryOnBusy(ctx context.Context, op func() error) error {
	delay := busyRetryInitialBackoff
	var lastErr error
	for attempt := 0; attempt < busyRetryAttempts; attempt++ {
		lastErr = op()
		if lastErr == nil {
			return nil
		}
		if !isSQLiteBusy(lastErr) || attempt == busyRetryAttempts-1 {
			break
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
		if next := delay * 2; next <= busyRetryMaxBackoff {
			delay = next
		}
	}
	return lastErr
}

func (s *Store) execWithRetry(ctx context.Context, query string, args ...any) (sql.Result, error) {
	ctx = ensureContext(ctx)
	var (
		res     sql.Result
		execErr error
	)
	if err := retryOnBusy(ctx, func() error {
		res, execErr = s.db.ExecContext(ctx, query, args...)
		return execErr
	}); err != nil {
		return nil, err
	}
	return res, nil
}

func (s *Store) execWithoutResultRetry(ctx context.Context, query string, args ...any) error {
	ctx = ensureContext(ctx)
	return retryOnBusy(ctx, func() error {
		_, err := s.db.ExecContext(ctx, query, args...)
		return err
	})
}
