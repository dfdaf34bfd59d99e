package jobstore

import (
	"context"
	"time"

	"github.com/c360studio/ucc/clause"
)

// Store is the persistence contract for jobs. Implementations must provide
// single-writer semantics per job id: Update validates the status transition
// against the stored row and terminal states are write-once.
type Store interface {
	// Create inserts a new PENDING job.
	Create(ctx context.Context, job *Job) error

	// Get returns the job or ErrNotFound.
	Get(ctx context.Context, jobID string) (*Job, error)

	// Update applies the non-nil fields. Status changes are checked against
	// the state machine; ErrTerminal or ErrBadChange reject invalid writes.
	Update(ctx context.Context, jobID string, update Update) (*Job, error)

	// List returns jobs newest-first, optionally filtered by status.
	List(ctx context.Context, filter Filter) ([]*Job, error)

	// SetResult stores the assembled comparison result for the job.
	SetResult(ctx context.Context, jobID string, result *clause.ComparisonResult) error

	// GetResult returns the stored result or ErrNoResult.
	GetResult(ctx context.Context, jobID string) (*clause.ComparisonResult, error)

	// Delete removes the job row entirely (retention purge).
	Delete(ctx context.Context, jobID string) error

	// ListExpired returns terminal jobs whose completion predates the TTL.
	ListExpired(ctx context.Context, ttl time.Duration, now time.Time) ([]*Job, error)
}
