package executor

import (
	"errors"
	"fmt"
)

var (
	// ErrClosed is returned by Submit after Close.
	ErrClosed = errors.New("executor closed")
	// ErrUnknownJob is returned when an id was not submitted through this executor.
	ErrUnknownJob = errors.New("unknown job")
	// ErrDuplicateJob is returned when an id is submitted twice.
	ErrDuplicateJob = errors.New("duplicate job id")
)

// ExitError reports a command that did not exit zero.
type ExitError struct {
	Code int
	// Signal is set when the process was killed by a signal.
	Signal string
}

func (e *ExitError) Error() string {
	if e.Signal != "" {
		return fmt.Sprintf("killed by signal %s (exit status %d)", e.Signal, e.Code)
	}
	return fmt.Sprintf("exit status %d", e.Code)
}

// ExitCode extracts the exit status from err, or -1 when err carries none.
func ExitCode(err error) int {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	if err == nil {
		return 0
	}
	return -1
}
