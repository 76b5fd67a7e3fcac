// Package mock provides an executor backend that logs jobs instead of
// running them. It serves dry runs and tests.
package mock

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"samplepipe/internal/executor"
	"samplepipe/internal/logging"
)

// Options configures the mock backend.
type Options struct {
	Logger *slog.Logger
	// Delay keeps each job running for the given time, or until terminated.
	Delay time.Duration
	// Outcome decides the result of a job; nil means success.
	Outcome func(executor.JobSpec) error
}

// Backend records submitted jobs.
type Backend struct {
	opts   Options
	logger *slog.Logger

	mu   sync.Mutex
	jobs []executor.JobSpec
}

// New constructs a mock backend.
func New(opts Options) *Backend {
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Backend{opts: opts, logger: logger}
}

// Name implements executor.Backend.
func (b *Backend) Name() string { return "mock" }

// Start implements executor.Backend.
func (b *Backend) Start(_ context.Context, job *executor.Job) (executor.Handle, error) {
	spec := job.Spec
	b.mu.Lock()
	b.jobs = append(b.jobs, spec)
	b.mu.Unlock()

	b.logger.Debug("mock job",
		logging.String(logging.FieldJobID, job.ID),
		logging.String("job", job.Name),
		logging.String("command", spec.CommandLine()),
		logging.String("workdir", spec.Workdir),
		logging.Int("cpus", spec.CPUs),
		logging.Uint64("memory", spec.Memory),
		logging.Bool("isolate_env", spec.IsolateEnv),
	)

	var result error
	if b.opts.Outcome != nil {
		result = b.opts.Outcome(spec)
	}
	return &handle{delay: b.opts.Delay, result: result, stop: make(chan struct{})}, nil
}

// Jobs returns the specs of every job started so far.
func (b *Backend) Jobs() []executor.JobSpec {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]executor.JobSpec(nil), b.jobs...)
}

type handle struct {
	delay  time.Duration
	result error
	stop   chan struct{}
	once   sync.Once
}

func (h *handle) Wait() error {
	if h.delay <= 0 {
		return h.result
	}
	timer := time.NewTimer(h.delay)
	defer timer.Stop()
	select {
	case <-timer.C:
		return h.result
	case <-h.stop:
		return &executor.ExitError{Code: 143, Signal: "SIGTERM"}
	}
}

func (h *handle) Terminate() error {
	h.once.Do(func() { close(h.stop) })
	return nil
}
