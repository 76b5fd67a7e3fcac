package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"samplepipe/internal/checkpoint"
	"samplepipe/internal/cleanup"
	"samplepipe/internal/config"
	"samplepipe/internal/executor"
	"samplepipe/internal/logging"
	"samplepipe/internal/module"
	"samplepipe/internal/sample"
)

// Environment is what a context needs besides its partition.
type Environment struct {
	Config    *config.Config
	Logger    *slog.Logger
	Backend   executor.Backend
	Timestamp time.Time
}

// JobRecord summarises one executor job of a context.
type JobRecord struct {
	ID       string         `json:"id"`
	Backend  string         `json:"backend"`
	State    executor.State `json:"state"`
	Duration time.Duration  `json:"duration"`
}

// Outcome is what a context hands back to the dispatcher.
type Outcome struct {
	Samples *sample.Samples
	Cleanup []cleanup.Call
	Jobs    []JobRecord
}

// Execute runs runner over samples in workdir. It is the body of every
// context, whether launched in a child process or inline.
func Execute(ctx context.Context, env Environment, runner *module.Runner, samples *sample.Samples, workdir, partition string) (*Outcome, error) {
	cfg := env.Config
	logger := logging.ForModule(env.Logger, cfg, runner.Name)
	ctx = logging.WithRunner(ctx, runner.Name, partition)
	logger = logging.WithContext(ctx, logger)

	if err := os.MkdirAll(workdir, 0o755); err != nil {
		return nil, fmt.Errorf("create context workdir: %w", err)
	}

	store, err := checkpoint.Open(workdir)
	if err != nil {
		logger.Warn("checkpoints unavailable",
			logging.Error(err),
			logging.String(logging.FieldEventType, "checkpoint_unavailable"),
			logging.String(logging.FieldImpact, "completed work will be redone"),
		)
		store = nil
	}
	defer store.Close()

	memory, err := cfg.MemoryBytes()
	if err != nil {
		return nil, err
	}

	var (
		mu   sync.Mutex
		jobs []JobRecord
	)
	exec := executor.New(env.Backend, executor.Options{
		Logger:  logger,
		Workdir: workdir,
		CPUs:    cfg.Executor.CPUs,
		Memory:  memory,
		Observer: func(job *executor.Job) {
			mu.Lock()
			defer mu.Unlock()
			jobs = append(jobs, JobRecord{ID: job.ID, Backend: job.Backend(), State: job.State(), Duration: job.Duration()})
		},
	})
	deferred := cleanup.NewDeferred(workdir)

	inv := &module.Invocation{
		Samples:     samples,
		Config:      cfg,
		Logger:      logger,
		Root:        cfg.Paths.Root,
		ScriptsDir:  cfg.Paths.ScriptsDir,
		Workdir:     workdir,
		Timestamp:   env.Timestamp,
		Executor:    exec,
		Cleaner:     deferred,
		Checkpoints: store,
	}

	logger.Debug("context started", logging.SampleIDs(samples.UniqueIDs()), logging.String("workdir", workdir))
	out, runErr := module.Call(ctx, runner.Func, inv)
	_ = exec.Close()

	mu.Lock()
	outcome := &Outcome{Cleanup: deferred.Calls(), Jobs: jobs}
	mu.Unlock()
	if runErr != nil {
		return outcome, runErr
	}
	if out == nil {
		out = samples
	}

	warnings, err := out.ResolveGlobs(workdir, cfg.Paths.ResultDir, cfg)
	if err != nil {
		return outcome, fmt.Errorf("resolve outputs: %w", err)
	}
	for _, warning := range warnings {
		logger.Warn(warning, logging.String(logging.FieldEventType, "output_unresolved"))
	}
	outcome.Samples = out
	return outcome, nil
}

// isolate copies samples through the wire codec, decoding into typ.
func isolate(samples *sample.Samples, typ *sample.RecordType) (*sample.Samples, error) {
	data, err := json.Marshal(samples)
	if err != nil {
		return nil, err
	}
	return typ.Decode(data)
}
