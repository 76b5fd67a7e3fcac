// Package local runs executor jobs as child processes of the current host.
package local

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"golang.org/x/sys/unix"

	"samplepipe/internal/executor"
	"samplepipe/internal/logging"
)

const defaultGrace = 10 * time.Second

// Options configures the local backend.
type Options struct {
	// LogDir receives jobs/<id>.out and jobs/<id>.err.
	LogDir string
	// Grace is the delay between SIGTERM and SIGKILL on terminate.
	Grace  time.Duration
	Logger *slog.Logger
}

// Backend starts each job in its own process group.
type Backend struct {
	logDir string
	grace  time.Duration
	logger *slog.Logger
}

// New constructs a local backend.
func New(opts Options) *Backend {
	grace := opts.Grace
	if grace <= 0 {
		grace = defaultGrace
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Backend{logDir: opts.LogDir, grace: grace, logger: logger}
}

// Name implements executor.Backend.
func (b *Backend) Name() string { return "local" }

// Start implements executor.Backend.
func (b *Backend) Start(_ context.Context, job *executor.Job) (executor.Handle, error) {
	spec := job.Spec
	if spec.Workdir != "" {
		if err := os.MkdirAll(spec.Workdir, 0o755); err != nil {
			return nil, fmt.Errorf("create workdir: %w", err)
		}
	}

	stdout, stderr, err := b.openLogs(job.ID)
	if err != nil {
		return nil, err
	}

	cmd := exec.Command(spec.Command, spec.Args...)
	cmd.Dir = spec.Workdir
	cmd.Env = spec.Environ()
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	if err := cmd.Start(); err != nil {
		closeAll(stdout, stderr)
		return nil, err
	}
	b.logger.Debug("started process",
		logging.String(logging.FieldJobID, job.ID),
		logging.Int("pid", cmd.Process.Pid),
	)
	return &process{
		cmd:    cmd,
		files:  []*os.File{stdout, stderr},
		grace:  b.grace,
		exited: make(chan struct{}),
	}, nil
}

func (b *Backend) openLogs(id string) (*os.File, *os.File, error) {
	if b.logDir == "" {
		devnull, err := os.OpenFile(os.DevNull, os.O_WRONLY, 0)
		if err != nil {
			return nil, nil, fmt.Errorf("open %s: %w", os.DevNull, err)
		}
		other, err := os.OpenFile(os.DevNull, os.O_WRONLY, 0)
		if err != nil {
			devnull.Close()
			return nil, nil, fmt.Errorf("open %s: %w", os.DevNull, err)
		}
		return devnull, other, nil
	}
	outPath, errPath := executor.LogPaths(b.logDir, id)
	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return nil, nil, fmt.Errorf("create job log dir: %w", err)
	}
	stdout, err := os.Create(outPath)
	if err != nil {
		return nil, nil, fmt.Errorf("create stdout log: %w", err)
	}
	stderr, err := os.Create(errPath)
	if err != nil {
		stdout.Close()
		return nil, nil, fmt.Errorf("create stderr log: %w", err)
	}
	return stdout, stderr, nil
}

type process struct {
	cmd    *exec.Cmd
	files  []*os.File
	grace  time.Duration
	exited chan struct{}
	once   sync.Once
}

func (p *process) Wait() error {
	err := p.cmd.Wait()
	closeAll(p.files...)
	p.once.Do(func() { close(p.exited) })
	return exitError(err)
}

// Terminate signals the whole process group and escalates to SIGKILL after
// the grace period.
func (p *process) Terminate() error {
	pgid := p.cmd.Process.Pid
	if err := unix.Kill(-pgid, unix.SIGTERM); err != nil && !errors.Is(err, unix.ESRCH) {
		return fmt.Errorf("signal process group %d: %w", pgid, err)
	}
	go func() {
		timer := time.NewTimer(p.grace)
		defer timer.Stop()
		select {
		case <-p.exited:
		case <-timer.C:
			_ = unix.Kill(-pgid, unix.SIGKILL)
		}
	}()
	return nil
}

func exitError(err error) error {
	if err == nil {
		return nil
	}
	var exitErr *exec.ExitError
	if !errors.As(err, &exitErr) {
		return err
	}
	if status, ok := exitErr.Sys().(syscall.WaitStatus); ok && status.Signaled() {
		sig := status.Signal()
		return &executor.ExitError{Code: 128 + int(sig), Signal: unix.SignalName(sig)}
	}
	return &executor.ExitError{Code: exitErr.ExitCode()}
}

func closeAll(files ...*os.File) {
	for _, f := range files {
		if f != nil {
			_ = f.Close()
		}
	}
}
