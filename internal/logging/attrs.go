package logging

import (
	"log/slog"
	"slices"
	"strconv"
	"strings"
	"time"
)

type Attr = slog.Attr

func Any(key string, value any) Attr { return slog.Any(key, value) }

func Bool(key string, value bool) Attr { return slog.Bool(key, value) }

func Duration(key string, value time.Duration) Attr { return slog.Duration(key, value) }

func Int(key string, value int) Attr { return slog.Int(key, value) }

func Uint64(key string, value uint64) Attr { return slog.Uint64(key, value) }

func String(key string, value string) Attr { return slog.String(key, value) }

func Error(err error) Attr {
	if err == nil {
		return slog.String("error", "<nil>")
	}
	return slog.Any("error", err)
}

// maxLoggedIDs bounds the sample identifiers listed in one attribute.
const maxLoggedIDs = 10

// SampleIDs lists sample identifiers, truncated for large partitions.
func SampleIDs(ids []string) Attr {
	if len(ids) <= maxLoggedIDs {
		return slog.String(FieldSamples, strings.Join(ids, ","))
	}
	head := strings.Join(ids[:maxLoggedIDs], ",")
	return slog.String(FieldSamples, head+",... ("+strconv.Itoa(len(ids))+" total)")
}

func NewNop() *slog.Logger {
	return slog.New(NoopHandler{})
}

// NewComponentLogger creates a logger with a standardized component attribute.
// If logger is nil, a no-op logger is used as the base.
func NewComponentLogger(logger *slog.Logger, component string) *slog.Logger {
	if logger == nil {
		logger = NewNop()
	}
	return logger.With(String(FieldComponent, component))
}

// FieldImpact is the standardized key for the user-facing consequence of a warning.
const FieldImpact = "impact"

func withDefaults(attrs []Attr, defaults ...Attr) []any {
	args := make([]any, 0, len(attrs)+len(defaults))
	for _, a := range attrs {
		args = append(args, a)
	}
	for _, d := range defaults {
		if !slices.ContainsFunc(attrs, func(a Attr) bool { return a.Key == d.Key }) {
			args = append(args, d)
		}
	}
	return args
}

// WarnWithContext logs a warning carrying event_type, error_hint, and impact.
// Missing fields get generic defaults so every warning states cause,
// consequence, and next step.
func WarnWithContext(logger *slog.Logger, msg, eventType string, attrs ...Attr) {
	if logger == nil {
		return
	}
	logger.Warn(msg, withDefaults(attrs,
		String(FieldEventType, eventType),
		String(FieldErrorHint, "check the run log for details"),
		String(FieldImpact, "run continues with affected samples failed"),
	)...)
}

// ErrorWithContext logs an error carrying event_type and error_hint.
func ErrorWithContext(logger *slog.Logger, msg, eventType string, attrs ...Attr) {
	if logger == nil {
		return
	}
	logger.Error(msg, withDefaults(attrs,
		String(FieldEventType, eventType),
		String(FieldErrorHint, "check the run log for details"),
	)...)
}
