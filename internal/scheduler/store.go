package scheduler

import "context"

// Store persists jobs. Implementations: sqlite (default, single-file)
// and postgres.
type Store interface {
	// Init creates the schema, including the backward-compatible
	// use_tools column when upgrading an old table.
	Init(ctx context.Context) error

	// Save inserts a job, assigning its ID when empty. A duplicate
	// name fails with ErrDuplicateName.
	Save(ctx context.Context, job *Job) error

	// GetAll returns jobs, optionally only active ones, ordered by
	// creation time.
	GetAll(ctx context.Context, activeOnly bool) ([]Job, error)

	// GetByName returns the job with the given unique name.
	GetByName(ctx context.Context, name string) (*Job, error)

	// GetDue returns active jobs with 0 < next_run <= now.
	GetDue(ctx context.Context, now int64) ([]Job, error)

	// UpdateAfterRun persists the post-fire state. nextRun == 0
	// deactivates the job.
	UpdateAfterRun(ctx context.Context, id string, nextRun, lastRun int64) error

	// SetNextRun rewrites next_run without touching last_run, used by
	// the startup skip-forward pass. nextRun == 0 deactivates.
	SetNextRun(ctx context.Context, id string, nextRun int64) error

	// Delete removes a job by id.
	Delete(ctx context.Context, id string) error

	Close() error
}
