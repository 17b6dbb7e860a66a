package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

// Status of a scheduled job. One-time jobs treat Executed, Cancelled and
// Failed as terminal. Recurring jobs return to Scheduled after each fire
// until explicitly cancelled.
type Status string

const (
	StatusScheduled Status = "scheduled"
	StatusPaused    Status = "paused"
	StatusExecuted  Status = "executed"
	StatusCancelled Status = "cancelled"
	StatusFailed    Status = "failed"
)

// ActionFunc executes a job's payload. The scheduler knows nothing about
// the action's semantics, only its outcome.
type ActionFunc func(ctx context.Context, job *Job) error

// Store persists job definitions for audit and restart recovery.
// The vault satisfies this.
type Store interface {
	Put(key, content, category string) error
}

// Job is a scheduled unit of work.
type Job struct {
	ID        string                 `json:"id"`
	Name      string                 `json:"name"`
	Payload   map[string]interface{} `json:"payload,omitempty"`
	Resource  string                 `json:"resource"`
	Priority  int                    `json:"priority"`
	Status    Status                 `json:"status"`
	Recurring bool                   `json:"recurring"`
	Spec      string                 `json:"spec,omitempty"` // cron expression for recurring jobs
	NextFire  time.Time              `json:"next_fire"`
	CreatedAt time.Time              `json:"created_at"`
	LastFire  *time.Time             `json:"last_fire,omitempty"`
	RunCount  int                    `json:"run_count"`
	FailCount int                    `json:"fail_count"`
	LastError string                 `json:"last_error,omitempty"`
	Sequence  string                 `json:"sequence,omitempty"` // template name for sequence-derived jobs
	Step      int                    `json:"step,omitempty"`

	schedule cron.Schedule
}

// Terminal reports whether the job can no longer fire.
func (j *Job) Terminal() bool {
	switch j.Status {
	case StatusExecuted, StatusCancelled, StatusFailed:
		return true
	}
	return false
}

// Live reports whether the job still holds a trigger (scheduled or paused).
func (j *Job) Live() bool {
	return j.Status == StatusScheduled || j.Status == StatusPaused
}

// ConflictGroup is a set of live jobs sharing an identical fire timestamp
// and resource class.
type ConflictGroup struct {
	At       time.Time `json:"at"`
	Resource string    `json:"resource"`
	JobIDs   []string  `json:"job_ids"`
}

// ConflictError reports a schedule call that could not be placed legally.
type ConflictError struct {
	Resource string
	At       time.Time
	JobIDs   []string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("no free slot for resource %q near %s (%d conflicting jobs)",
		e.Resource, e.At.Format(time.RFC3339), len(e.JobIDs))
}

// Sentinel errors for the scheduler package.
var (
	ErrJobNotFound     = errors.New("job not found")
	ErrInvalidJobState = errors.New("invalid job state for operation")
	ErrUnknownTemplate = errors.New("unknown sequence template")
)
