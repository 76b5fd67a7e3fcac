package schedule

import (
	"fmt"
	"strings"

	"samplepipe/internal/failure"
)

// CycleError reports hooks whose constraints cannot all be satisfied.
type CycleError struct {
	Phase string
	// Path is one witness cycle, first name repeated at the end.
	Path []string
}

func (e *CycleError) Error() string {
	if e == nil {
		return ""
	}
	msg := fmt.Sprintf("%s: dependency cycle", failure.ErrConfiguration)
	if e.Phase != "" {
		msg += " in " + e.Phase + " hooks"
	}
	if len(e.Path) > 0 {
		msg += ": " + strings.Join(e.Path, " -> ")
	}
	return msg
}

// Unwrap classifies cycles as configuration errors.
func (e *CycleError) Unwrap() error { return failure.ErrConfiguration }

func duplicateError(phase, name string) error {
	return failure.Wrap(failure.ErrConfiguration, "schedule", phase, fmt.Sprintf("duplicate hook name %q", name), nil)
}
