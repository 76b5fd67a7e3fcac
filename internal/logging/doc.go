// Package logging assembles structured slog loggers and formatting helpers used
// across samplepipe.
//
// It owns the configurable console/JSON handlers, centralizes level and output
// plumbing, and exposes context-aware helpers so hooks and runners can tag log
// lines with the run tag, hook phase, runner name, and partition key. Runner
// contexts that execute in a child process log JSON to stderr; Relay decodes
// those lines back onto the parent logger so a run produces one stream.
//
// Prefer these constructors over hand-rolled slog setup to ensure new
// components emit data with the same shape and routing guarantees as the rest
// of the system.
package logging
