package sge

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"samplepipe/internal/executor"
	"samplepipe/internal/logging"
)

// Runner executes a queue client command and returns its stdout.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

type commandRunner struct{}

func (commandRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return out, fmt.Errorf("%s: %w: %s", name, err, msg)
		}
		return out, fmt.Errorf("%s: %w", name, err)
	}
	return out, nil
}

// Options configures the backend.
type Options struct {
	Queue string
	PE    string
	Slots int
	// LogDir receives jobs/<id>.out and jobs/<id>.err via -o and -e.
	LogDir       string
	PollInterval time.Duration
	// AcctRetries bounds how often qacct is asked for a finished job.
	AcctRetries int
	Qsub        string
	Qstat       string
	Qacct       string
	Qdel        string
	Logger      *slog.Logger
}

// Option customises a Backend.
type Option func(*Backend)

// WithRunner injects the command runner (primarily for tests).
func WithRunner(r Runner) Option {
	return func(b *Backend) {
		if r != nil {
			b.runner = r
		}
	}
}

// Backend submits jobs with qsub.
type Backend struct {
	opts   Options
	runner Runner
	logger *slog.Logger
}

// New constructs an SGE backend. A queue is required.
func New(opts Options, options ...Option) (*Backend, error) {
	if strings.TrimSpace(opts.Queue) == "" {
		return nil, errors.New("sge queue required")
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = 5 * time.Second
	}
	if opts.AcctRetries <= 0 {
		opts.AcctRetries = 10
	}
	if opts.Slots <= 0 {
		opts.Slots = 1
	}
	opts.Qsub = defaultString(opts.Qsub, "qsub")
	opts.Qstat = defaultString(opts.Qstat, "qstat")
	opts.Qacct = defaultString(opts.Qacct, "qacct")
	opts.Qdel = defaultString(opts.Qdel, "qdel")

	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	b := &Backend{opts: opts, runner: commandRunner{}, logger: logger}
	for _, option := range options {
		option(b)
	}
	return b, nil
}

// Name implements executor.Backend.
func (b *Backend) Name() string { return "sge" }

// Start implements executor.Backend.
func (b *Backend) Start(ctx context.Context, job *executor.Job) (executor.Handle, error) {
	spec := job.Spec
	if spec.Workdir != "" {
		if err := os.MkdirAll(spec.Workdir, 0o755); err != nil {
			return nil, fmt.Errorf("create workdir: %w", err)
		}
	}
	args, err := b.submitArgs(job)
	if err != nil {
		return nil, err
	}
	out, err := b.runner.Run(ctx, b.opts.Qsub, args...)
	if err != nil {
		return nil, fmt.Errorf("qsub: %w", err)
	}
	sgeID, err := parseJobNumber(out)
	if err != nil {
		return nil, err
	}
	b.logger.Info("submitted batch job",
		logging.String(logging.FieldJobID, job.ID),
		logging.String("sge_job", sgeID),
		logging.String("queue", b.opts.Queue),
	)
	return &handle{
		backend: b,
		sgeID:   sgeID,
		stop:    make(chan struct{}),
	}, nil
}

func (b *Backend) submitArgs(job *executor.Job) ([]string, error) {
	spec := job.Spec
	args := []string{"-terse", "-b", "y", "-N", sanitizeName(job.Name), "-q", b.opts.Queue}
	if b.opts.PE != "" {
		slots := b.opts.Slots
		if spec.CPUs > slots {
			slots = spec.CPUs
		}
		args = append(args, "-pe", b.opts.PE, strconv.Itoa(slots))
	}
	if spec.Memory > 0 {
		args = append(args, "-l", fmt.Sprintf("h_vmem=%dM", max(spec.Memory>>20, 1)))
	}
	if spec.Workdir != "" {
		args = append(args, "-wd", spec.Workdir)
	}
	if b.opts.LogDir != "" {
		outPath, errPath := executor.LogPaths(b.opts.LogDir, job.ID)
		if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
			return nil, fmt.Errorf("create job log dir: %w", err)
		}
		args = append(args, "-o", outPath, "-e", errPath)
	} else {
		args = append(args, "-o", os.DevNull, "-e", os.DevNull)
	}
	if !spec.IsolateEnv {
		args = append(args, "-V")
	}
	// qsub splits -v lists on commas, so each variable gets its own flag and
	// values holding a comma cannot be passed at all.
	overlay := spec
	overlay.IsolateEnv = true
	for _, kv := range overlay.Environ() {
		if strings.Contains(kv, ",") {
			key, _, _ := strings.Cut(kv, "=")
			return nil, fmt.Errorf("environment variable %s: qsub cannot pass values containing commas", key)
		}
		args = append(args, "-v", kv)
	}
	args = append(args, spec.Command)
	args = append(args, spec.Args...)
	return args, nil
}

type handle struct {
	backend *Backend
	sgeID   string
	stop    chan struct{}
	once    sync.Once
}

// Wait polls qstat until the job left the queue, then reads its exit status.
func (h *handle) Wait() error {
	b := h.backend
	ticker := time.NewTicker(b.opts.PollInterval)
	defer ticker.Stop()
	stop := h.stop
	for {
		if _, err := b.runner.Run(context.Background(), b.opts.Qstat, "-j", h.sgeID); err != nil {
			break
		}
		select {
		case <-ticker.C:
		case <-stop:
			stop = nil
		}
	}

	var lastErr error
	for attempt := 0; attempt < b.opts.AcctRetries; attempt++ {
		out, err := b.runner.Run(context.Background(), b.opts.Qacct, "-j", h.sgeID)
		if err == nil {
			return parseAccounting(out)
		}
		lastErr = err
		<-ticker.C
	}
	return fmt.Errorf("sge job %s: exit status unavailable: %w", h.sgeID, lastErr)
}

// Terminate deletes the job from the queue.
func (h *handle) Terminate() error {
	h.once.Do(func() { close(h.stop) })
	b := h.backend
	if _, err := b.runner.Run(context.Background(), b.opts.Qdel, h.sgeID); err != nil {
		return fmt.Errorf("qdel %s: %w", h.sgeID, err)
	}
	return nil
}

// parseJobNumber reads the job number printed by qsub -terse; array jobs
// print "<id>.<range>".
func parseJobNumber(out []byte) (string, error) {
	line := strings.TrimSpace(string(out))
	if line == "" {
		return "", errors.New("qsub printed no job number")
	}
	line, _, _ = strings.Cut(strings.Fields(line)[0], ".")
	if _, err := strconv.Atoi(line); err != nil {
		return "", fmt.Errorf("unexpected qsub output %q", strings.TrimSpace(string(out)))
	}
	return line, nil
}

// parseAccounting maps qacct output to the executor's exit semantics.
func parseAccounting(out []byte) error {
	exitStatus, failed := -1, 0
	scanner := bufio.NewScanner(bytes.NewReader(out))
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 2 {
			continue
		}
		switch fields[0] {
		case "exit_status":
			if code, err := strconv.Atoi(fields[1]); err == nil {
				exitStatus = code
			}
		case "failed":
			if code, err := strconv.Atoi(fields[1]); err == nil {
				failed = code
			}
		}
	}
	switch {
	case exitStatus < 0:
		return errors.New("qacct reported no exit_status")
	case exitStatus != 0:
		return &executor.ExitError{Code: exitStatus}
	case failed != 0:
		return fmt.Errorf("sge reported failure code %d: %w", failed, &executor.ExitError{Code: 1})
	}
	return nil
}

func sanitizeName(name string) string {
	var b strings.Builder
	for _, r := range name {
		switch {
		case r == '/' || r == ':' || r == '@' || r == '\\' || r == '*' || r == '?' || r == ' ':
			b.WriteByte('_')
		default:
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 {
		return "samplepipe"
	}
	out := b.String()
	if out[0] >= '0' && out[0] <= '9' {
		out = "j" + out
	}
	return out
}

func defaultString(value, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return value
}
