package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"samplepipe/internal/failure"
	"samplepipe/internal/logging"
)

// Options configures an Executor.
type Options struct {
	Logger *slog.Logger
	// Workdir is the parent of default job working directories.
	Workdir string
	// CPUs and Memory fill unset resource hints.
	CPUs   int
	Memory uint64
	// Observer is called once per job after it became terminal.
	Observer func(*Job)
}

// Executor submits jobs to a backend and tracks the ones it owns.
type Executor struct {
	backend Backend
	opts    Options
	logger  *slog.Logger

	mu     sync.Mutex
	jobs   map[string]*Job
	order  []*Job
	closed bool
}

// New returns an executor bound to backend.
func New(backend Backend, opts Options) *Executor {
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Executor{
		backend: backend,
		opts:    opts,
		logger:  logger.With(logging.String("backend", backend.Name())),
		jobs:    make(map[string]*Job),
	}
}

// Backend returns the backend name.
func (e *Executor) Backend() string { return e.backend.Name() }

// Submit starts a job. Unless spec.Wait is set it returns as soon as the
// backend accepted the job. With Wait the job's failure is returned unless
// OnError handled it. Cancelling ctx terminates the job.
func (e *Executor) Submit(ctx context.Context, spec JobSpec) (*Job, error) {
	if spec.Command == "" {
		return nil, errors.New("submit: command is required")
	}
	if spec.ID == "" {
		spec.ID = uuid.NewString()
	}
	if spec.Name == "" {
		spec.Name = filepath.Base(spec.Command)
	}
	if spec.Workdir == "" && e.opts.Workdir != "" {
		spec.Workdir = filepath.Join(e.opts.Workdir, spec.ID)
	}
	if spec.CPUs <= 0 {
		spec.CPUs = max(e.opts.CPUs, 1)
	}
	if spec.Memory == 0 {
		spec.Memory = e.opts.Memory
	}

	job := newJob(spec, e.backend.Name())
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil, ErrClosed
	}
	if _, dup := e.jobs[spec.ID]; dup {
		e.mu.Unlock()
		return nil, fmt.Errorf("submit %s: %w", spec.ID, ErrDuplicateJob)
	}
	e.jobs[spec.ID] = job
	e.order = append(e.order, job)
	e.mu.Unlock()

	logger := e.logger.With(logging.String(logging.FieldJobID, job.ID), logging.String("job", job.Name))
	logger.Debug("submitting job", logging.String("command", spec.CommandLine()), logging.String("workdir", spec.Workdir))

	job.mu.Lock()
	job.started = time.Now()
	job.mu.Unlock()

	handle, err := e.backend.Start(ctx, job)
	if err != nil {
		e.finish(job, logger, fmt.Errorf("start: %w", err))
		if !spec.Wait {
			return job, nil
		}
		return job, job.pendingErr()
	}

	job.mu.Lock()
	job.handle = handle
	job.state = StateRunning
	cancelled := job.terminated
	job.mu.Unlock()
	if cancelled {
		_ = handle.Terminate()
	}

	go func() {
		e.finish(job, logger, handle.Wait())
	}()
	go func() {
		select {
		case <-ctx.Done():
			e.terminate(job, logger)
		case <-job.done:
		}
	}()

	if !spec.Wait {
		return job, nil
	}
	<-job.done
	return job, job.pendingErr()
}

func (e *Executor) finish(job *Job, logger *slog.Logger, runErr error) {
	job.mu.Lock()
	job.finished = time.Now()
	switch {
	case runErr == nil:
		job.state = StateSucceeded
	case job.terminated:
		job.state = StateTerminated
		job.err = failure.Wrap(failure.ErrInterrupted, "job", job.Name, "terminated", runErr)
	default:
		job.state = StateFailed
		job.err = failure.Wrap(failure.ErrJob, "job", job.Name, job.ID, runErr)
	}
	state, err := job.state, job.err
	duration := job.finished.Sub(job.started)
	job.absorbed = state == StateFailed && job.Spec.OnError != nil
	job.mu.Unlock()

	switch state {
	case StateSucceeded:
		logger.Debug("job completed", logging.Duration("duration", duration))
		e.callback(logger, func() {
			if job.Spec.OnSuccess != nil {
				job.Spec.OnSuccess(job)
			}
		})
	case StateFailed:
		logger.Warn("job failed",
			logging.String(logging.FieldEventType, "job_failed"),
			logging.Int("exit_code", ExitCode(runErr)),
			logging.Error(runErr),
		)
		e.callback(logger, func() {
			if job.Spec.OnError != nil {
				job.Spec.OnError(job, err)
			}
		})
	default:
		logger.Info("job terminated", logging.String(logging.FieldEventType, "job_terminated"))
	}

	if e.opts.Observer != nil {
		e.opts.Observer(job)
	}
	close(job.done)
}

func (e *Executor) callback(logger *slog.Logger, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("job callback panicked", logging.Any("panic", r))
		}
	}()
	fn()
}

// Wait blocks until the named jobs, or every job of this executor when no
// ids are given, are terminal. It returns the joined failures of failed jobs
// that had no OnError callback.
func (e *Executor) Wait(ctx context.Context, ids ...string) error {
	jobs, err := e.lookup(ids)
	if err != nil {
		return err
	}
	var errs []error
	for _, job := range jobs {
		select {
		case <-job.done:
		case <-ctx.Done():
			return failure.Wrap(failure.ErrInterrupted, "executor", "wait", "", ctx.Err())
		}
		if err := job.pendingErr(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Terminate requests cancellation of the named jobs, or of every job when no
// ids are given. Terminal jobs are left alone.
func (e *Executor) Terminate(ids ...string) error {
	jobs, err := e.lookup(ids)
	if err != nil {
		return err
	}
	for _, job := range jobs {
		e.terminate(job, e.logger.With(logging.String(logging.FieldJobID, job.ID)))
	}
	return nil
}

func (e *Executor) terminate(job *Job, logger *slog.Logger) {
	job.mu.Lock()
	if job.state.Terminal() || job.terminated {
		job.mu.Unlock()
		return
	}
	job.terminated = true
	handle := job.handle
	job.mu.Unlock()
	if handle == nil {
		return
	}
	logger.Debug("terminating job")
	if err := handle.Terminate(); err != nil {
		logger.Warn("terminate job failed", logging.Error(err))
	}
}

// Close terminates outstanding jobs and waits for them. Submit fails afterwards.
func (e *Executor) Close() error {
	e.mu.Lock()
	e.closed = true
	jobs := append([]*Job(nil), e.order...)
	e.mu.Unlock()
	for _, job := range jobs {
		e.terminate(job, e.logger.With(logging.String(logging.FieldJobID, job.ID)))
	}
	for _, job := range jobs {
		<-job.done
	}
	return nil
}

// Jobs returns the jobs submitted through this executor in submission order.
func (e *Executor) Jobs() []*Job {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]*Job(nil), e.order...)
}

func (e *Executor) lookup(ids []string) ([]*Job, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(ids) == 0 {
		return append([]*Job(nil), e.order...), nil
	}
	jobs := make([]*Job, 0, len(ids))
	for _, id := range ids {
		job, ok := e.jobs[id]
		if !ok {
			return nil, fmt.Errorf("%s: %w", id, ErrUnknownJob)
		}
		jobs = append(jobs, job)
	}
	return jobs, nil
}
