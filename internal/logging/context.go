package logging

import (
	"context"
	"log/slog"
)

const (
	// FieldComponent is the standardized structured logging key for component names.
	FieldComponent = "component"
	// FieldTag is the structured logging key for the run tag.
	FieldTag = "tag"
	// FieldPhase is the structured logging key for the hook phase (pre/post).
	FieldPhase = "phase"
	// FieldHook is the structured logging key for hook names.
	FieldHook = "hook"
	// FieldRunner is the structured logging key for runner names.
	FieldRunner = "runner"
	// FieldPartition is the structured logging key for the partition key of a runner context.
	FieldPartition = "partition"
	// FieldJobID is the structured logging key for executor job identifiers.
	FieldJobID = "job_id"
	// FieldSampleID is the structured logging key for sample identifiers.
	FieldSampleID = "sample_id"
	// FieldSamples lists the identifiers of several samples.
	FieldSamples = "samples"
	// FieldEventType classifies a log line for downstream filtering.
	FieldEventType = "event_type"
	// FieldErrorHint carries a short operator-facing next step.
	FieldErrorHint = "error_hint"
)

type contextKey string

const (
	tagKey       contextKey = "tag"
	phaseKey     contextKey = "phase"
	hookKey      contextKey = "hook"
	runnerKey    contextKey = "runner"
	partitionKey contextKey = "partition"
)

// WithTag annotates context with the run tag.
func WithTag(ctx context.Context, tag string) context.Context {
	return withString(ctx, tagKey, tag)
}

// WithHook annotates context with the hook phase and name.
func WithHook(ctx context.Context, phase, name string) context.Context {
	return withString(withString(ctx, phaseKey, phase), hookKey, name)
}

// WithRunner annotates context with the runner name and partition key.
func WithRunner(ctx context.Context, runner, partition string) context.Context {
	return withString(withString(ctx, runnerKey, runner), partitionKey, partition)
}

// HookFromContext returns the hook name if present.
func HookFromContext(ctx context.Context) (string, bool) {
	return stringFrom(ctx, hookKey)
}

// RunnerFromContext returns the runner name if present.
func RunnerFromContext(ctx context.Context) (string, bool) {
	return stringFrom(ctx, runnerKey)
}

func withString(ctx context.Context, key contextKey, value string) context.Context {
	if value == "" {
		return ctx
	}
	return context.WithValue(ctx, key, value)
}

func stringFrom(ctx context.Context, key contextKey) (string, bool) {
	if ctx == nil {
		return "", false
	}
	if v, ok := ctx.Value(key).(string); ok && v != "" {
		return v, true
	}
	return "", false
}

// ContextFields extracts standardized slog attributes from the provided context.
func ContextFields(ctx context.Context) []slog.Attr {
	if ctx == nil {
		return nil
	}
	fields := make([]slog.Attr, 0, 5)
	for _, pair := range []struct {
		key   contextKey
		field string
	}{
		{tagKey, FieldTag},
		{phaseKey, FieldPhase},
		{hookKey, FieldHook},
		{runnerKey, FieldRunner},
		{partitionKey, FieldPartition},
	} {
		if value, ok := stringFrom(ctx, pair.key); ok {
			fields = append(fields, slog.String(pair.field, value))
		}
	}
	return fields
}

// WithContext returns a logger augmented with structured fields derived from the supplied context.
func WithContext(ctx context.Context, logger *slog.Logger) *slog.Logger {
	if logger == nil {
		logger = NewNop()
	}
	fields := ContextFields(ctx)
	if len(fields) == 0 {
		return logger
	}
	return slog.New(logger.Handler().WithAttrs(fields))
}
