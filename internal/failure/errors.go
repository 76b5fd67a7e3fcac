package failure

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrConfiguration marks problems detected before any hook runs:
	// dependency cycles, duplicate module names, invalid record extensions.
	ErrConfiguration = errors.New("configuration error")
	// ErrRecord marks a failure attributed to individual samples.
	ErrRecord = errors.New("record failure")
	// ErrJob marks a non-zero exit or backend failure of an executor job.
	ErrJob = errors.New("job failure")
	// ErrContext marks a runner context that crashed or returned an error.
	ErrContext = errors.New("context failure")
	// ErrPipeline marks a terminal failure that aborts the run.
	ErrPipeline = errors.New("pipeline failure")
	// ErrInterrupted marks work stopped by cancellation.
	ErrInterrupted = errors.New("interrupted")
)

// Wrap builds an error message that includes scope context while tagging it with
// the provided marker for later classification. The marker should be one
// of the exported sentinel errors above.
func Wrap(marker error, scope, operation, message string, err error) error {
	detail := buildDetail(scope, operation, message)
	if marker == nil {
		marker = ErrPipeline
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// Kind returns a short label for the most specific marker err carries.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInterrupted), errors.Is(err, context.Canceled):
		return "interrupted"
	case errors.Is(err, ErrConfiguration):
		return "configuration"
	case errors.Is(err, ErrJob):
		return "job"
	case errors.Is(err, ErrContext):
		return "context"
	case errors.Is(err, ErrRecord):
		return "record"
	default:
		return "pipeline"
	}
}

// Interrupted reports whether err stems from cancellation.
func Interrupted(err error) bool {
	return errors.Is(err, ErrInterrupted) || errors.Is(err, context.Canceled)
}

func buildDetail(scope, operation, message string) string {
	parts := make([]string, 0, 3)
	if scope = strings.TrimSpace(scope); scope != "" {
		parts = append(parts, scope)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "pipeline failure"
	}
	return strings.Join(parts, ": ")
}
