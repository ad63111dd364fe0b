package scheduler

import "context"

// Job is a unit of work the worker pool executes. Different job types
// (sync jobs, cleanup jobs, notification jobs) implement this interface.
type Job interface {
	// Execute runs the job. The context carries cancellation and timeouts.
	Execute(ctx context.Context) error

	// UserID identifies whose data the job touches, for logging.
	UserID() string

	// Description is a human-readable label used in logs.
	Description() string
}
