package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"samplepipe/internal/cleanup"
	"samplepipe/internal/config"
	"samplepipe/internal/dispatch"
	"samplepipe/internal/executor"
	"samplepipe/internal/failure"
	"samplepipe/internal/logging"
	"samplepipe/internal/merge"
	"samplepipe/internal/metrics"
	"samplepipe/internal/module"
	"samplepipe/internal/sample"
	"samplepipe/internal/workspace"
)

// ContextCommand is the hidden CLI command a ProcessLauncher re-executes.
const ContextCommand = "context"

// Options configures a Controller.
type Options struct {
	Config   *config.Config
	Registry *module.Registry
	Backend  executor.Backend
	// Launcher overrides the launcher chosen from pipeline.context_mode.
	Launcher  dispatch.Launcher
	Logger    *slog.Logger
	Metrics   *metrics.Collector
	Timestamp time.Time
}

// Controller runs the pipeline once.
type Controller struct {
	cfg       *config.Config
	backend   executor.Backend
	logger    *slog.Logger
	metrics   *metrics.Collector
	timestamp time.Time

	typ     *sample.RecordType
	pre     []*module.Hook
	post    []*module.Hook
	runners []*module.Runner

	ws         *workspace.Workspace
	cleaner    *cleanup.Cleaner
	dispatcher *dispatch.Dispatcher

	mu    sync.Mutex
	state State
}

// New schedules the registered hooks and prepares the run. Scheduling and
// record type errors are configuration errors.
func New(opts Options) (*Controller, error) {
	if opts.Config == nil || opts.Registry == nil || opts.Backend == nil {
		return nil, errors.New("pipeline: config, registry, and backend are required")
	}
	cfg := opts.Config
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	logger = logging.NewComponentLogger(logger, "pipeline")
	timestamp := opts.Timestamp
	if timestamp.IsZero() {
		timestamp = time.Now()
	}

	pre, err := opts.Registry.Schedule(module.PhasePre)
	if err != nil {
		return nil, err
	}
	post, err := opts.Registry.Schedule(module.PhasePost)
	if err != nil {
		return nil, err
	}
	for _, phase := range []module.Phase{module.PhasePre, module.PhasePost} {
		for _, dangling := range opts.Registry.Dangling(phase) {
			logger.Debug("hook constraint names no registered hook",
				logging.String(logging.FieldPhase, string(phase)),
				logging.String("constraint", dangling),
			)
		}
	}
	typ, err := opts.Registry.RecordType()
	if err != nil {
		return nil, err
	}

	ws := workspace.New(cfg)
	cleaner := cleanup.New(ws.Dir(), logging.NewComponentLogger(opts.Logger, "cleanup"))
	launcher := opts.Launcher
	if launcher == nil {
		launcher, err = newLauncher(cfg, opts.Backend, opts.Logger, timestamp)
		if err != nil {
			return nil, err
		}
	}

	dispatcher := dispatch.New(dispatch.Options{
		Workers:  cfg.Pipeline.Workers,
		Launcher: launcher,
		Dir:      ws.ContextDir,
		Cleaner:  cleaner,
		Metrics:  opts.Metrics,
		Logger:   opts.Logger,
	})

	return &Controller{
		cfg:        cfg,
		backend:    opts.Backend,
		logger:     logger,
		metrics:    opts.Metrics,
		timestamp:  timestamp,
		typ:        typ,
		pre:        pre,
		post:       post,
		runners:    opts.Registry.Runners(),
		ws:         ws,
		cleaner:    cleaner,
		dispatcher: dispatcher,
		state:      StateInit,
	}, nil
}

func newLauncher(cfg *config.Config, backend executor.Backend, logger *slog.Logger, timestamp time.Time) (dispatch.Launcher, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Pipeline.ContextMode)) {
	case "inline":
		env := dispatch.Environment{Config: cfg, Logger: logger, Backend: backend, Timestamp: timestamp}
		return &dispatch.InlineLauncher{Env: env}, nil
	case "", "process":
		return dispatch.NewProcessLauncher(cfg, logger, timestamp, ContextCommand)
	default:
		return nil, failure.Wrap(failure.ErrConfiguration, "pipeline", "select launcher",
			fmt.Sprintf("unknown context mode %q", cfg.Pipeline.ContextMode), nil)
	}
}

// RecordType is the record type composed from the registered extensions.
// Samples passed to Run must be created from it.
func (c *Controller) RecordType() *sample.RecordType { return c.typ }

// PreHooks returns the pre-hooks in execution order.
func (c *Controller) PreHooks() []*module.Hook { return c.pre }

// PostHooks returns the post-hooks in execution order.
func (c *Controller) PostHooks() []*module.Hook { return c.post }

// Runners returns the registered runners.
func (c *Controller) Runners() []*module.Runner { return c.runners }

// Workspace returns the run workspace.
func (c *Controller) Workspace() *workspace.Workspace { return c.ws }

// State returns the current state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Controller) transition(to State) error {
	c.mu.Lock()
	from := c.state
	if !from.canTransition(to) {
		c.mu.Unlock()
		return invalidTransition(from, to)
	}
	c.state = to
	c.mu.Unlock()
	c.logger.Debug("pipeline state changed",
		logging.String("from", string(from)),
		logging.String("to", string(to)),
		logging.String(logging.FieldEventType, "state_change"),
	)
	return nil
}

// Run executes the pipeline over samples. A Controller runs once.
func (c *Controller) Run(ctx context.Context, samples *sample.Samples) (*Result, error) {
	start := time.Now()
	result := &Result{Tag: c.ws.Tag()}
	defer func() {
		result.State = c.State()
		result.Duration = time.Since(start)
	}()
	if samples == nil {
		samples = sample.New(c.typ)
	}
	ctx = logging.WithTag(ctx, c.ws.Tag())

	if err := c.transition(StatePreHooks); err != nil {
		return result, err
	}
	if err := c.ws.Acquire(); err != nil {
		return c.fail(result, failure.Wrap(failure.ErrPipeline, "pipeline", "acquire workspace", "", err))
	}
	defer func() {
		if err := c.ws.Release(); err != nil {
			c.logger.Warn("failed to release workspace lock", logging.Error(err))
		}
	}()
	c.logger.Info("pipeline started",
		logging.String(logging.FieldEventType, "pipeline_start"),
		logging.Int("samples", samples.Len()),
		logging.Int("pre_hooks", len(c.pre)),
		logging.Int("runners", len(c.runners)),
		logging.Int("post_hooks", len(c.post)),
		logging.String("run_dir", c.ws.Dir()),
	)

	current := samples
	result.Samples = current
	for _, hook := range c.pre {
		out, err := c.runHook(ctx, result, hook, current)
		if err != nil {
			return c.fail(result, failure.Wrap(failure.ErrPipeline, "pipeline", "pre-hook", hook.Name, err))
		}
		if out != nil {
			current = out
			result.Samples = current
		}
	}
	if c.cfg.Pipeline.RequireFiles {
		if n := failMissingFiles(current); n > 0 {
			logging.WarnWithContext(c.logger, "samples with missing files", "missing_files",
				logging.Int("samples", n),
				logging.String(logging.FieldErrorHint, "check the files listed in the samples file"),
				logging.String(logging.FieldImpact, "these samples are not dispatched"),
			)
		}
	}

	if err := c.transition(StateDispatch); err != nil {
		return c.fail(result, err)
	}
	pending := current.Unprocessed()
	settled := current.Filter(func(item *sample.Sample) bool { return item.Processed || item.IsFailed() })
	var dispatched *sample.Samples
	if len(c.runners) == 0 {
		c.logger.Warn("no runners registered", logging.String(logging.FieldImpact, "every sample fails"))
		dispatched = pending.Clone()
		for _, item := range dispatched.Items {
			item.Fail(dispatch.ReasonNotProcessed)
		}
	} else {
		res := c.dispatcher.Dispatch(ctx, c.runners, pending)
		dispatched = res.Samples
		result.Contexts = res.Contexts
	}

	if err := c.transition(StateMerge); err != nil {
		return c.fail(result, err)
	}
	merged := merge.Collections(c.typ, dispatched)
	merged.Add(settled.Items...)
	merged.AddOutput(current.Outputs...)
	merged.AddGlob(current.Globs...)
	result.Samples = merged
	c.logger.Info("observations merged",
		logging.Int("observations", dispatched.Len()),
		logging.Int("samples", merged.Len()),
		logging.Int("complete", merged.Complete().Len()),
	)
	if ctx.Err() != nil {
		return c.fail(result, failure.Wrap(failure.ErrInterrupted, "pipeline", "dispatch", "", ctx.Err()))
	}

	if err := c.transition(StatePostHooks); err != nil {
		return c.fail(result, err)
	}
	for _, hook := range c.post {
		subset := selectSamples(merged, hook.Condition)
		out, err := c.runHook(ctx, result, hook, subset)
		if err != nil {
			logging.ErrorWithContext(c.logger, "post-hook failed", "hook_failed",
				logging.String(logging.FieldHook, hook.Name),
				logging.Error(err),
				logging.String(logging.FieldImpact, "later post-hooks still run"),
			)
			continue
		}
		if out != nil {
			merged = replaceSubset(merged, subset, out)
			result.Samples = merged
		}
	}

	if err := c.transition(StateDone); err != nil {
		return c.fail(result, err)
	}
	c.finish(ctx, result, merged)
	return result, nil
}

func (c *Controller) fail(result *Result, err error) (*Result, error) {
	if terr := c.transition(StateFailed); terr != nil {
		err = errors.Join(err, terr)
	}
	logging.ErrorWithContext(c.logger, "pipeline failed", "pipeline_failed",
		logging.Error(err),
		logging.String("kind", failure.Kind(err)),
	)
	c.writeMetrics(result)
	return result, err
}

// finish resolves outstanding output patterns, reports outputs that were
// never copied, and cleans up.
func (c *Controller) finish(ctx context.Context, result *Result, samples *sample.Samples) {
	warnings, err := samples.ResolveGlobs(c.ws.Dir(), c.cfg.Paths.ResultDir, c.cfg)
	if err != nil {
		c.logger.Warn("failed to resolve output patterns", logging.Error(err))
	}
	for _, warning := range warnings {
		c.logger.Warn(warning, logging.String(logging.FieldEventType, "output_unresolved"))
	}
	for _, out := range samples.Outputs {
		if _, err := os.Stat(out.Dst); err == nil {
			continue
		}
		result.Unsaved = append(result.Unsaved, out.Dst)
		if !out.Optional {
			logging.WarnWithContext(c.logger, "output was not copied", "output_not_copied",
				logging.String("src", out.Src),
				logging.String("dst", out.Dst),
				logging.String(logging.FieldErrorHint, "register a post-hook that copies outputs"),
				logging.String(logging.FieldImpact, "result is only available in the workdir"),
			)
		}
	}

	failed := samples.Failed().Len()
	if failed == 0 && c.cfg.Pipeline.Clean {
		c.cleaner.Register(c.ws.Dir())
	}
	cleaned := c.cleaner.Clean(ctx)
	result.Cleaned = cleaned.Removed

	c.writeMetrics(result)
	c.logger.Info("pipeline finished",
		logging.String(logging.FieldEventType, "pipeline_complete"),
		logging.Int("complete", samples.Len()-failed),
		logging.Int("failed", failed),
		logging.Int("context_failures", len(failedContexts(result.Contexts))),
		logging.Int("hook_failures", len(result.HookErrors())),
	)
}

func (c *Controller) writeMetrics(result *Result) {
	if c.metrics == nil {
		return
	}
	c.metrics.SetSamples(result.Complete(), result.Failed())
	path := strings.TrimSpace(c.cfg.Metrics.Textfile)
	if path == "" {
		return
	}
	if err := c.metrics.WriteTextfile(path); err != nil {
		c.logger.Warn("failed to write metrics", logging.Error(err), logging.String("path", path))
	}
}

func (c *Controller) runHook(ctx context.Context, result *Result, hook *module.Hook, samples *sample.Samples) (*sample.Samples, error) {
	ctx = logging.WithHook(ctx, string(hook.Phase), hook.Name)
	logger := logging.WithContext(ctx, logging.ForModule(c.logger, c.cfg, hook.Name))

	memory, err := c.cfg.MemoryBytes()
	if err != nil {
		return nil, err
	}
	exec := executor.New(c.backend, executor.Options{
		Logger:  logger,
		Workdir: c.ws.HookDir(),
		CPUs:    c.cfg.Executor.CPUs,
		Memory:  memory,
	})
	inv := &module.Invocation{
		Samples:    samples,
		Config:     c.cfg,
		Logger:     logger,
		Root:       c.cfg.Paths.Root,
		ScriptsDir: c.cfg.Paths.ScriptsDir,
		Workdir:    c.ws.HookDir(),
		Timestamp:  c.timestamp,
		Executor:   exec,
		Cleaner:    c.cleaner,
	}

	start := time.Now()
	logger.Info("hook started",
		logging.String(logging.FieldEventType, "hook_start"),
		logging.Int("samples", samples.Len()),
	)
	out, err := module.Call(ctx, hook.Func, inv)
	if closeErr := exec.Close(); closeErr != nil && err == nil {
		logger.Warn("hook left failing jobs behind", logging.Error(closeErr))
	}
	elapsed := time.Since(start)
	c.metrics.ObserveHook(string(hook.Phase), hook.Name, elapsed)
	result.Hooks = append(result.Hooks, HookResult{
		Phase:    hook.Phase,
		Name:     hook.Name,
		Samples:  samples.Len(),
		Duration: elapsed,
		Err:      err,
	})
	if err != nil {
		return nil, err
	}
	logger.Info("hook completed",
		logging.String(logging.FieldEventType, "hook_complete"),
		logging.Duration("hook_duration", elapsed),
	)
	return out, nil
}

// failMissingFiles fails samples whose files do not exist and returns how
// many were failed.
func failMissingFiles(samples *sample.Samples) int {
	n := 0
	for _, item := range samples.Items {
		if item.IsFailed() {
			continue
		}
		var missing []string
		for _, file := range item.Files {
			if _, err := os.Stat(file); err != nil {
				missing = append(missing, file)
			}
		}
		if len(missing) > 0 {
			item.Fail("missing files: " + strings.Join(missing, ", "))
			n++
		}
	}
	return n
}

func selectSamples(samples *sample.Samples, condition module.Condition) *sample.Samples {
	switch condition {
	case module.ConditionComplete:
		return samples.Complete()
	case module.ConditionFailed:
		return samples.Failed()
	default:
		return samples.Filter(func(*sample.Sample) bool { return true })
	}
}

// replaceSubset swaps the records of subset for out, keeping the records
// outside subset.
func replaceSubset(all, subset, out *sample.Samples) *sample.Samples {
	picked := make(map[*sample.Sample]struct{}, subset.Len())
	for _, item := range subset.Items {
		picked[item] = struct{}{}
	}
	next := sample.New(all.Type)
	next.Add(out.Items...)
	for _, item := range all.Items {
		if _, ok := picked[item]; !ok {
			next.Add(item)
		}
	}
	next.AddOutput(all.Outputs...)
	next.AddOutput(out.Outputs...)
	next.AddGlob(all.Globs...)
	next.AddGlob(out.Globs...)
	return next
}

func failedContexts(contexts []dispatch.ContextResult) []dispatch.ContextResult {
	var out []dispatch.ContextResult
	for _, c := range contexts {
		if c.Err != nil {
			out = append(out, c)
		}
	}
	return out
}
