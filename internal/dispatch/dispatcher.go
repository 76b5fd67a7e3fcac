package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"samplepipe/internal/cleanup"
	"samplepipe/internal/failure"
	"samplepipe/internal/logging"
	"samplepipe/internal/metrics"
	"samplepipe/internal/module"
	"samplepipe/internal/sample"
)

// DefaultWorkers bounds concurrent contexts when Options.Workers is unset.
const DefaultWorkers = 4

// ReasonNotProcessed is recorded on samples a runner returned unprocessed.
const ReasonNotProcessed = "sample was not processed"

// Options configures a Dispatcher.
type Options struct {
	Workers  int
	Launcher Launcher
	Dir      DirFunc
	Cleaner  *cleanup.Cleaner
	Metrics  *metrics.Collector
	Logger   *slog.Logger
}

// Dispatcher runs runner contexts in parallel.
type Dispatcher struct {
	workers  int
	launcher Launcher
	dir      DirFunc
	cleaner  *cleanup.Cleaner
	metrics  *metrics.Collector
	logger   *slog.Logger
}

// ContextResult reports how one context ended.
type ContextResult struct {
	Runner    string
	Partition string
	Samples   int
	Duration  time.Duration
	Err       error
}

// Result is the concatenated output of every context, in plan order.
type Result struct {
	Samples  *sample.Samples
	Contexts []ContextResult
}

// Failed returns the contexts that ended with an error.
func (r *Result) Failed() []ContextResult {
	var out []ContextResult
	for _, c := range r.Contexts {
		if c.Err != nil {
			out = append(out, c)
		}
	}
	return out
}

// New returns a dispatcher.
func New(opts Options) *Dispatcher {
	workers := opts.Workers
	if workers <= 0 {
		workers = DefaultWorkers
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Dispatcher{
		workers:  workers,
		launcher: opts.Launcher,
		dir:      opts.Dir,
		cleaner:  opts.Cleaner,
		metrics:  opts.Metrics,
		logger:   logging.NewComponentLogger(logger, "dispatch"),
	}
}

// Dispatch runs every runner over its partitions of samples. Errors are
// confined to their context: the samples of a failed context come back
// failed and every other context is unaffected.
func (d *Dispatcher) Dispatch(ctx context.Context, runners []*module.Runner, samples *sample.Samples) *Result {
	contexts := Plan(runners, samples, d.dir)
	d.logger.Info("dispatching runners",
		logging.Int("runners", len(runners)),
		logging.Int("contexts", len(contexts)),
		logging.Int("workers", d.workers),
	)

	outputs := make([]*sample.Samples, len(contexts))
	reports := make([]ContextResult, len(contexts))
	var g errgroup.Group
	g.SetLimit(d.workers)
	for i, c := range contexts {
		g.Go(func() error {
			outputs[i], reports[i] = d.run(ctx, c)
			return nil
		})
	}
	_ = g.Wait()

	out := sample.New(samples.Type)
	for _, o := range outputs {
		out.Add(o.Items...)
		out.AddOutput(o.Outputs...)
		out.AddGlob(o.Globs...)
	}
	return &Result{Samples: out, Contexts: reports}
}

func (d *Dispatcher) run(ctx context.Context, c *Context) (*sample.Samples, ContextResult) {
	logger := logging.WithContext(logging.WithRunner(ctx, c.Runner.Name, c.Partition), d.logger)
	report := ContextResult{Runner: c.Runner.Name, Partition: c.Partition, Samples: c.Samples.Len()}
	start := time.Now()

	var (
		outcome *Outcome
		err     error
	)
	if ctx.Err() != nil {
		err = failure.Wrap(failure.ErrInterrupted, "dispatch", "launch context", "", ctx.Err())
	} else {
		logger.Debug("context launched", logging.Int("samples", c.Samples.Len()), logging.String("workdir", c.Workdir))
		outcome, err = d.launcher.Launch(ctx, c)
	}
	report.Duration = time.Since(start)

	if outcome != nil {
		if d.cleaner != nil {
			d.cleaner.Replay(outcome.Cleanup)
		}
		for _, job := range outcome.Jobs {
			d.metrics.ObserveJob(job.Backend, string(job.State), job.Duration)
		}
	}

	var out *sample.Samples
	if err != nil {
		reason := fmt.Sprintf("runner %s failed: %s", c.Runner.Name, firstLine(err.Error()))
		switch {
		case errors.Is(err, failure.ErrInterrupted):
		case ctx.Err() != nil:
			err = failure.Wrap(failure.ErrInterrupted, "dispatch", "run context", "", err)
		default:
			err = failure.Wrap(failure.ErrContext, "dispatch", "run context", c.Runner.Name, err)
		}
		report.Err = err
		out = c.Samples.Clone()
		for _, item := range out.Items {
			item.Fail(reason)
		}
		logging.ErrorWithContext(logger, "runner context failed", "context_failed",
			logging.Error(err),
			logging.Int("samples", c.Samples.Len()),
			logging.Duration("duration", report.Duration),
			logging.String(logging.FieldImpact, "samples of this partition are marked failed"),
		)
		d.metrics.ObserveContext(c.Runner.Name, "failed")
	} else {
		out = outcome.Samples
		logger.Info("runner context finished",
			logging.Int("samples", out.Len()),
			logging.Duration("duration", report.Duration),
		)
		d.metrics.ObserveContext(c.Runner.Name, "succeeded")
	}

	for _, item := range out.Items {
		if !item.Processed && !item.IsFailed() {
			item.Fail(ReasonNotProcessed)
		}
		item.Tag(c.Runner.Name, item.Processed && !item.IsFailed())
	}
	return out, report
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
