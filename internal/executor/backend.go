package executor

import "context"

// Backend starts jobs somewhere. Implementations must be safe for concurrent
// use by several executors.
type Backend interface {
	Name() string
	// Start launches the job described by job.Spec and returns without
	// waiting for it to finish.
	Start(ctx context.Context, job *Job) (Handle, error)
}

// Handle controls one started job.
type Handle interface {
	// Wait blocks until the job finished. It returns nil on success and an
	// *ExitError (possibly wrapped) for a non-zero exit.
	Wait() error
	// Terminate requests cancellation. It must not block until the job exits.
	Terminate() error
}
