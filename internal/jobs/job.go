// Package jobs runs search scrapes asynchronously. Jobs are persisted so a
// restart picks pending work back up; jobs left running by a crashed worker
// are requeued once they have been running longer than Options.StaleAfter.
package jobs

import (
	"context"
	"errors"
	"time"
)

const (
	StatusPending   = "pending"
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

var (
	ErrJobNotFound = errors.New("job not found")
	ErrInvalidJob  = errors.New("invalid job")
)

// Job is one asynchronous search scrape.
type Job struct {
	ID          string     `json:"id"`
	OwnerID     int64      `json:"owner_id"`
	SearchURL   string     `json:"search_url"`
	MaxItems    int        `json:"max_items"`
	MaxScroll   int        `json:"max_scroll"`
	Status      string     `json:"status"`
	ItemsFound  int        `json:"items_found"`
	ItemsSaved  int        `json:"items_saved"`
	Error       string     `json:"error,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// Store persists jobs.
type Store interface {
	Insert(ctx context.Context, job *Job) error
	Get(ctx context.Context, id string) (*Job, error)
	List(ctx context.Context, limit int) ([]*Job, error)
	// ClaimNext marks the oldest pending job running and returns it, or
	// nil when none is pending.
	ClaimNext(ctx context.Context, at time.Time) (*Job, error)
	Finish(ctx context.Context, job *Job) error
	// RequeueStale returns running jobs started before cutoff to pending
	// and reports how many were reset.
	RequeueStale(ctx context.Context, cutoff time.Time) (int, error)
}
