package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"samplepipe/internal/cleanup"
	"samplepipe/internal/config"
	"samplepipe/internal/executor"
	"samplepipe/internal/logging"
	"samplepipe/internal/module"
)

// ResultFD is the descriptor a context process writes its response to.
const ResultFD = 3

type request struct {
	Config    string          `json:"config"`
	Runner    string          `json:"runner"`
	Partition string          `json:"partition"`
	Workdir   string          `json:"workdir"`
	Timestamp time.Time       `json:"timestamp"`
	Samples   json.RawMessage `json:"samples"`
}

type response struct {
	Samples json.RawMessage `json:"samples,omitempty"`
	Cleanup []cleanup.Call  `json:"cleanup,omitempty"`
	Jobs    []JobRecord     `json:"jobs,omitempty"`
	Error   string          `json:"error,omitempty"`
}

// ProcessLauncher runs each context in a child process. The child receives
// the request on stdin, logs JSON on stderr, and writes its response to
// descriptor ResultFD.
type ProcessLauncher struct {
	Executable string
	Args       []string
	Config     []byte
	Timestamp  time.Time
	Logger     *slog.Logger
	Grace      time.Duration
}

// NewProcessLauncher re-executes the running binary with args.
func NewProcessLauncher(cfg *config.Config, logger *slog.Logger, timestamp time.Time, args ...string) (*ProcessLauncher, error) {
	exe, err := os.Executable()
	if err != nil {
		return nil, fmt.Errorf("locate executable: %w", err)
	}
	encoded, err := cfg.Encode()
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &ProcessLauncher{
		Executable: exe,
		Args:       args,
		Config:     encoded,
		Timestamp:  timestamp,
		Logger:     logger,
		// The child spends up to one grace period terminating its own jobs.
		Grace:      2*time.Duration(cfg.Executor.TerminateGrace)*time.Second + time.Second,
	}, nil
}

// Launch implements Launcher.
func (l *ProcessLauncher) Launch(ctx context.Context, c *Context) (*Outcome, error) {
	payload, err := json.Marshal(c.Samples)
	if err != nil {
		return nil, fmt.Errorf("encode samples: %w", err)
	}
	body, err := json.Marshal(request{
		Config:    string(l.Config),
		Runner:    c.Runner.Name,
		Partition: c.Partition,
		Workdir:   c.Workdir,
		Timestamp: l.Timestamp,
		Samples:   payload,
	})
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	resultR, resultW, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("create result pipe: %w", err)
	}
	defer resultR.Close()

	cmd := exec.CommandContext(ctx, l.Executable, l.Args...)
	cmd.Stdin = bytes.NewReader(body)
	cmd.ExtraFiles = []*os.File{resultW}
	cmd.Cancel = func() error { return cmd.Process.Signal(syscall.SIGTERM) }
	cmd.WaitDelay = l.Grace
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		resultW.Close()
		return nil, err
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		resultW.Close()
		return nil, err
	}
	if err := cmd.Start(); err != nil {
		resultW.Close()
		return nil, fmt.Errorf("start context process: %w", err)
	}
	resultW.Close()

	logger := l.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	var relay sync.WaitGroup
	for _, r := range []io.Reader{stdout, stderr} {
		relay.Add(1)
		go func() {
			defer relay.Done()
			logging.Relay(ctx, logger, r)
		}()
	}

	data, readErr := io.ReadAll(resultR)
	relay.Wait()
	waitErr := cmd.Wait()

	if len(bytes.TrimSpace(data)) == 0 {
		switch {
		case ctx.Err() != nil:
			return nil, fmt.Errorf("context process interrupted: %w", ctx.Err())
		case waitErr != nil:
			return nil, fmt.Errorf("context process died without a result: %w", waitErr)
		case readErr != nil:
			return nil, fmt.Errorf("read context result: %w", readErr)
		}
		return nil, errors.New("context process exited without a result")
	}

	var resp response
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("decode context result: %w", err)
	}
	outcome := &Outcome{Cleanup: resp.Cleanup, Jobs: resp.Jobs}
	if resp.Error != "" {
		return outcome, errors.New(resp.Error)
	}
	if waitErr != nil {
		return outcome, fmt.Errorf("context process: %w", waitErr)
	}
	outcome.Samples, err = c.Samples.Type.Decode(resp.Samples)
	if err != nil {
		return outcome, err
	}
	return outcome, nil
}

// Host is what a context process builds from the shipped configuration.
type Host struct {
	Registry *module.Registry
	Backend  executor.Backend
	Logger   *slog.Logger
}

// HostFunc builds the host of a context process.
type HostFunc func(cfg *config.Config) (*Host, error)

// Serve is the body of a context process: it reads one request from in,
// runs the named runner, and writes the response to out. The returned error
// is also reported in the response.
func Serve(ctx context.Context, in io.Reader, out io.Writer, build HostFunc) error {
	var resp response
	err := serve(ctx, in, build, &resp)
	if err != nil {
		resp.Samples = nil
		resp.Error = err.Error()
	}
	if encErr := json.NewEncoder(out).Encode(resp); encErr != nil {
		return errors.Join(err, fmt.Errorf("write context result: %w", encErr))
	}
	return err
}

// ServeProcess runs Serve until the request is answered or the process is
// told to stop. SIGINT and SIGTERM cancel the runner, and its executor
// terminates the outstanding jobs before the response is written.
func ServeProcess(ctx context.Context, in io.Reader, out io.Writer, build HostFunc) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return Serve(ctx, in, out, build)
}

func serve(ctx context.Context, in io.Reader, build HostFunc, resp *response) error {
	var req request
	if err := json.NewDecoder(in).Decode(&req); err != nil {
		return fmt.Errorf("decode context request: %w", err)
	}
	cfg, err := config.Parse([]byte(req.Config))
	if err != nil {
		return err
	}
	host, err := build(cfg)
	if err != nil {
		return err
	}
	runner, ok := host.Registry.Runner(req.Runner)
	if !ok {
		return fmt.Errorf("unknown runner %q", req.Runner)
	}
	typ, err := host.Registry.RecordType()
	if err != nil {
		return err
	}
	samples, err := typ.Decode(req.Samples)
	if err != nil {
		return err
	}

	env := Environment{Config: cfg, Logger: host.Logger, Backend: host.Backend, Timestamp: req.Timestamp}
	outcome, err := Execute(ctx, env, runner, samples, req.Workdir, req.Partition)
	if outcome != nil {
		resp.Cleanup = outcome.Cleanup
		resp.Jobs = outcome.Jobs
	}
	if err != nil {
		return err
	}
	resp.Samples, err = json.Marshal(outcome.Samples)
	return err
}
