package queue

import (
	"strings"
	"time"
)

// Status represents the lifecycle of an enhancement job.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

var allStatuses = []Status{
	StatusPending,
	StatusRunning,
	StatusCompleted,
	StatusFailed,
}

var statusSet = func() map[Status]struct{} {
	set := make(map[Status]struct{}, len(allStatuses))
	for _, status := range allStatuses {
		set[status] = struct{}{}
	}
	return set
}()

// Job represents an enhancement job persisted in SQLite.
type Job struct {
	ID              int64
	Token           string
	SyncedPath      string
	OriginalPath    string
	OutputPath      string
	Status          Status
	ErrorMessage    string
	ProgressFrames  int
	ProgressPercent float64
	ProgressMessage string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// AllStatuses returns the ordered list of known statuses.
func AllStatuses() []Status {
	cp := make([]Status, len(allStatuses))
	copy(cp, allStatuses)
	return cp
}

// ParseStatus converts a string into a known Status.
func ParseStatus(value string) (Status, bool) {
	normalized := Status(strings.ToLower(strings.TrimSpace(value)))
	if normalized == "" {
		return "", false
	}
	_, ok := statusSet[normalized]
	return normalized, ok
}

// IsTerminal reports whether the status is an end state.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// SetProgress updates the progress fields together.
func (j *Job) SetProgress(frames int, percent float64, message string) {
	j.ProgressFrames = frames
	j.ProgressPercent = percent
	j.ProgressMessage = message
}

// SetFailed marks the job as failed with the given error message.
func (j *Job) SetFailed(message string) {
	j.Status = StatusFailed
	j.ErrorMessage = message
	j.ProgressMessage = message
}

// Stats describes aggregated job counts per lifecycle state.
type Stats struct {
	Total     int
	Pending   int
	Running   int
	Completed int
	Failed    int
}
