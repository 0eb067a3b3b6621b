package scheduler

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Run statuses recorded in the ledger.
const (
	StatusRunning   = "running"
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
	StatusSkipped   = "skipped"
	StatusTimeout   = "timeout"
)

var (
	// ErrUnknownJob is returned when a job name is not registered.
	ErrUnknownJob = errors.New("scheduler: unknown job")
	// ErrJobBusy is returned when another run of the job holds its lock.
	ErrJobBusy = errors.New("scheduler: job already running")
	// ErrDuplicateJob is returned when a job name is registered twice.
	ErrDuplicateJob = errors.New("scheduler: duplicate job")
)

// Run is one ledger row.
type Run struct {
	ID         uuid.UUID  `json:"id"`
	Job        string     `json:"job"`
	Trigger    string     `json:"trigger"`
	Status     string     `json:"status"`
	Processed  int        `json:"processed"`
	Error      string     `json:"error,omitempty"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// RunStore persists the job run ledger.
type RunStore interface {
	Start(ctx context.Context, run Run) error
	Finish(ctx context.Context, run Run) error
	// List returns the most recent runs first.
	List(ctx context.Context, limit int) ([]Run, error)
}

// Locker grants named, non-blocking mutual exclusion.
type Locker interface {
	// TryLock returns ok=false without error when the lock is held elsewhere.
	TryLock(ctx context.Context, name string, ttl time.Duration) (unlock func(), ok bool, err error)
}

// Notifier is told about failed and timed-out runs.
type Notifier interface {
	NotifyFailure(ctx context.Context, run Run) error
}
