package pipeline_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"

	"samplepipe/internal/config"
	"samplepipe/internal/executor/mock"
	"samplepipe/internal/failure"
	"samplepipe/internal/merge"
	"samplepipe/internal/module"
	"samplepipe/internal/pipeline"
	"samplepipe/internal/sample"
	"samplepipe/internal/schedule"
	"samplepipe/internal/workspace"
)

type recorder struct {
	mu     sync.Mutex
	events []string
}

func (r *recorder) add(event string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

func (r *recorder) list() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.events...)
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Paths.Workdir = t.TempDir()
	cfg.Paths.ResultDir = t.TempDir()
	cfg.Pipeline.Tag = "t1"
	cfg.Pipeline.ContextMode = "inline"
	cfg.Pipeline.RequireFiles = false
	return &cfg
}

func newController(t *testing.T, cfg *config.Config, registry *module.Registry) *pipeline.Controller {
	t.Helper()
	c, err := pipeline.New(pipeline.Options{Config: cfg, Registry: registry, Backend: mock.New(mock.Options{})})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c
}

func hookFunc(rec *recorder, event string) module.Func {
	return func(_ context.Context, inv *module.Invocation) (*sample.Samples, error) {
		rec.add(event)
		return nil, nil
	}
}

func processAll(_ context.Context, inv *module.Invocation) (*sample.Samples, error) {
	for _, item := range inv.Samples.Items {
		item.Processed = true
	}
	return inv.Samples, nil
}

func mustAdd(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("register: %v", err)
	}
}

func newSamples(c *pipeline.Controller, ids ...string) *sample.Samples {
	samples := sample.New(c.RecordType())
	for _, id := range ids {
		samples.NewSample(id)
	}
	return samples
}

func TestControllerRunsPhasesInOrder(t *testing.T) {
	rec := &recorder{}
	registry := module.NewRegistry()
	mustAdd(t, registry.AddHook(module.Hook{Name: "report", Phase: module.PhasePre, Func: hookFunc(rec, "pre:report")}))
	mustAdd(t, registry.AddHook(module.Hook{Name: "validate", Phase: module.PhasePre, Before: schedule.AllHooks(), Func: hookFunc(rec, "pre:validate")}))
	mustAdd(t, registry.AddHook(module.Hook{Name: "summary", Phase: module.PhasePost, Func: hookFunc(rec, "post:summary")}))
	mustAdd(t, registry.AddRunner(module.Runner{Name: "align", Func: func(ctx context.Context, inv *module.Invocation) (*sample.Samples, error) {
		rec.add("runner:align")
		return processAll(ctx, inv)
	}}))

	c := newController(t, testConfig(t), registry)
	if c.State() != pipeline.StateInit {
		t.Fatalf("expected init state, got %s", c.State())
	}
	result, err := c.Run(context.Background(), newSamples(c, "s1", "s2"))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	want := []string{"pre:validate", "pre:report", "runner:align", "post:summary"}
	if diff := cmp.Diff(want, rec.list()); diff != "" {
		t.Fatalf("event order mismatch (-want +got):\n%s", diff)
	}
	if result.State != pipeline.StateDone || c.State() != pipeline.StateDone {
		t.Fatalf("expected done state, got %s", result.State)
	}
	if result.Complete() != 2 || result.Failed() != 0 {
		t.Fatalf("expected 2 complete samples, got %d complete %d failed", result.Complete(), result.Failed())
	}
	if len(result.Hooks) != 3 {
		t.Fatalf("expected 3 hook results, got %d", len(result.Hooks))
	}
}

func TestControllerPreHookErrorIsTerminal(t *testing.T) {
	rec := &recorder{}
	registry := module.NewRegistry()
	mustAdd(t, registry.AddHook(module.Hook{Name: "fetch", Func: func(context.Context, *module.Invocation) (*sample.Samples, error) {
		return nil, errors.New("reference unreachable")
	}}))
	mustAdd(t, registry.AddRunner(module.Runner{Name: "align", Func: func(ctx context.Context, inv *module.Invocation) (*sample.Samples, error) {
		rec.add("runner")
		return processAll(ctx, inv)
	}}))

	c := newController(t, testConfig(t), registry)
	result, err := c.Run(context.Background(), newSamples(c, "s1"))
	if !errors.Is(err, failure.ErrPipeline) {
		t.Fatalf("expected pipeline failure, got %v", err)
	}
	if !strings.Contains(err.Error(), "reference unreachable") {
		t.Fatalf("expected hook error in %q", err)
	}
	if result.State != pipeline.StateFailed {
		t.Fatalf("expected failed state, got %s", result.State)
	}
	if len(rec.list()) != 0 {
		t.Fatal("runner ran after a failing pre-hook")
	}
}

func TestControllerPreHookPanicIsTerminal(t *testing.T) {
	registry := module.NewRegistry()
	mustAdd(t, registry.AddHook(module.Hook{Name: "broken", Func: func(context.Context, *module.Invocation) (*sample.Samples, error) {
		panic("nil reference")
	}}))

	c := newController(t, testConfig(t), registry)
	if _, err := c.Run(context.Background(), newSamples(c, "s1")); !errors.Is(err, failure.ErrPipeline) {
		t.Fatalf("expected pipeline failure, got %v", err)
	}
}

func TestControllerRejectsHookCycles(t *testing.T) {
	registry := module.NewRegistry()
	noop := hookFunc(&recorder{}, "")
	mustAdd(t, registry.AddHook(module.Hook{Name: "a", Before: schedule.Names("b"), Func: noop}))
	mustAdd(t, registry.AddHook(module.Hook{Name: "b", Before: schedule.Names("a"), Func: noop}))

	_, err := pipeline.New(pipeline.Options{Config: testConfig(t), Registry: registry, Backend: mock.New(mock.Options{})})
	if !errors.Is(err, failure.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}

func TestControllerWithoutRunnersFailsEverySample(t *testing.T) {
	c := newController(t, testConfig(t), module.NewRegistry())
	result, err := c.Run(context.Background(), newSamples(c, "s1", "s2"))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Failed() != 2 {
		t.Fatalf("expected every sample to fail, got %d", result.Failed())
	}
	for _, item := range result.Samples.Items {
		if item.FailureReason != "sample was not processed" {
			t.Fatalf("unexpected reason %q", item.FailureReason)
		}
	}
}

func TestControllerFailsSamplesWithMissingFiles(t *testing.T) {
	cfg := testConfig(t)
	cfg.Pipeline.RequireFiles = true
	present := filepath.Join(t.TempDir(), "s1.fastq")
	if err := os.WriteFile(present, []byte("@r1\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	var seen []string
	var mu sync.Mutex
	registry := module.NewRegistry()
	mustAdd(t, registry.AddRunner(module.Runner{Name: "align", Func: func(ctx context.Context, inv *module.Invocation) (*sample.Samples, error) {
		mu.Lock()
		seen = append(seen, inv.Samples.UniqueIDs()...)
		mu.Unlock()
		return processAll(ctx, inv)
	}}))

	c := newController(t, cfg, registry)
	samples := sample.New(c.RecordType())
	samples.NewSample("s1", present)
	samples.NewSample("s2", filepath.Join(t.TempDir(), "missing.fastq"))
	result, err := c.Run(context.Background(), samples)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if diff := cmp.Diff([]string{"s1"}, seen); diff != "" {
		t.Fatalf("dispatched samples mismatch (-want +got):\n%s", diff)
	}
	failed := result.Samples.Failed()
	if diff := cmp.Diff([]string{"s2"}, failed.UniqueIDs()); diff != "" {
		t.Fatalf("failed samples mismatch (-want +got):\n%s", diff)
	}
	if !strings.HasPrefix(failed.Items[0].FailureReason, "missing files") {
		t.Fatalf("unexpected reason %q", failed.Items[0].FailureReason)
	}
}

func TestControllerPostHookConditions(t *testing.T) {
	var mu sync.Mutex
	seen := map[string][]string{}
	observe := func(name string, fail bool) module.Func {
		return func(_ context.Context, inv *module.Invocation) (*sample.Samples, error) {
			mu.Lock()
			seen[name] = inv.Samples.UniqueIDs()
			mu.Unlock()
			if fail {
				return nil, errors.New("notify failed")
			}
			return nil, nil
		}
	}
	registry := module.NewRegistry()
	mustAdd(t, registry.AddRunner(module.Runner{Name: "call", Individual: true, Func: func(ctx context.Context, inv *module.Invocation) (*sample.Samples, error) {
		for _, item := range inv.Samples.Items {
			if item.ID == "bad" {
				item.Fail("low coverage")
			}
		}
		return processAll(ctx, inv)
	}}))
	mustAdd(t, registry.AddHook(module.Hook{Name: "notify", Phase: module.PhasePost, Before: schedule.AllHooks(), Func: observe("notify", true)}))
	mustAdd(t, registry.AddHook(module.Hook{Name: "publish", Phase: module.PhasePost, Condition: module.ConditionComplete, Func: observe("publish", false)}))
	mustAdd(t, registry.AddHook(module.Hook{Name: "triage", Phase: module.PhasePost, Condition: module.ConditionFailed, Func: observe("triage", false)}))

	c := newController(t, testConfig(t), registry)
	result, err := c.Run(context.Background(), newSamples(c, "good", "bad"))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	want := map[string][]string{
		"notify":  {"good", "bad"},
		"publish": {"good"},
		"triage":  {"bad"},
	}
	if diff := cmp.Diff(want, seen); diff != "" {
		t.Fatalf("post-hook subsets mismatch (-want +got):\n%s", diff)
	}
	if errs := result.HookErrors(); len(errs) != 1 || errs[0].Name != "notify" {
		t.Fatalf("expected the notify failure to be recorded, got %+v", errs)
	}
}

func TestControllerMergesRunnerObservations(t *testing.T) {
	registry := module.NewRegistry()
	registry.AddExtension(sample.Extension{Name: "calls", Fields: []sample.Field{{Name: "caller", Default: ""}}})
	caller := func(name string) module.Func {
		return func(ctx context.Context, inv *module.Invocation) (*sample.Samples, error) {
			for _, item := range inv.Samples.Items {
				if err := item.Set("caller", name); err != nil {
					return nil, err
				}
			}
			return processAll(ctx, inv)
		}
	}
	mustAdd(t, registry.AddRunner(module.Runner{Name: "gatk", Func: caller("gatk")}))
	mustAdd(t, registry.AddRunner(module.Runner{Name: "freebayes", Func: caller("freebayes")}))

	c := newController(t, testConfig(t), registry)
	result, err := c.Run(context.Background(), newSamples(c, "s1"))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Samples.Len() != 1 {
		t.Fatalf("expected one merged sample, got %d", result.Samples.Len())
	}
	merged := result.Samples.Items[0]
	if diff := cmp.Diff(merge.Tuple{"gatk", "freebayes"}, merged.Attr("caller")); diff != "" {
		t.Fatalf("caller mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(map[string]bool{"gatk": true, "freebayes": true}, merged.Runs); diff != "" {
		t.Fatalf("runs mismatch (-want +got):\n%s", diff)
	}
}

func TestControllerKeepsSettledSamples(t *testing.T) {
	registry := module.NewRegistry()
	mustAdd(t, registry.AddHook(module.Hook{Name: "screen", Func: func(_ context.Context, inv *module.Invocation) (*sample.Samples, error) {
		for _, item := range inv.Samples.Items {
			if item.ID == "contaminated" {
				item.Fail("contamination above threshold")
			}
		}
		return inv.Samples, nil
	}}))
	mustAdd(t, registry.AddRunner(module.Runner{Name: "align", Func: processAll}))

	c := newController(t, testConfig(t), registry)
	result, err := c.Run(context.Background(), newSamples(c, "clean", "contaminated"))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if diff := cmp.Diff([]string{"clean", "contaminated"}, result.Samples.UniqueIDs()); diff != "" {
		t.Fatalf("samples mismatch (-want +got):\n%s", diff)
	}
	for _, item := range result.Samples.Items {
		if item.ID == "contaminated" && (item.FailureReason != "contamination above threshold" || len(item.Runs) != 0) {
			t.Fatalf("settled sample was dispatched: %+v", item)
		}
	}
}

func TestControllerCleansOnlyWhenEverythingCompleted(t *testing.T) {
	tests := []struct {
		name     string
		fail     bool
		wantGone bool
	}{
		{name: "complete", wantGone: true},
		{name: "failed", fail: true, wantGone: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig(t)
			cfg.Pipeline.Clean = true
			registry := module.NewRegistry()
			mustAdd(t, registry.AddRunner(module.Runner{Name: "align", Func: func(ctx context.Context, inv *module.Invocation) (*sample.Samples, error) {
				if tt.fail {
					return nil, errors.New("aligner crashed")
				}
				return processAll(ctx, inv)
			}}))

			c := newController(t, cfg, registry)
			if _, err := c.Run(context.Background(), newSamples(c, "s1")); err != nil {
				t.Fatalf("Run: %v", err)
			}
			_, statErr := os.Stat(cfg.RunDir())
			if gone := os.IsNotExist(statErr); gone != tt.wantGone {
				t.Fatalf("run dir removed = %v, want %v", gone, tt.wantGone)
			}
		})
	}
}

func TestControllerRefusesLockedTag(t *testing.T) {
	cfg := testConfig(t)
	held := workspace.New(cfg)
	if err := held.Acquire(); err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	defer held.Release()

	c := newController(t, cfg, module.NewRegistry())
	result, err := c.Run(context.Background(), newSamples(c, "s1"))
	if !errors.Is(err, workspace.ErrLocked) {
		t.Fatalf("expected locked error, got %v", err)
	}
	if result.State != pipeline.StateFailed {
		t.Fatalf("expected failed state, got %s", result.State)
	}
}

func TestControllerInterruptedRunFails(t *testing.T) {
	registry := module.NewRegistry()
	mustAdd(t, registry.AddRunner(module.Runner{Name: "align", Func: processAll}))
	c := newController(t, testConfig(t), registry)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	result, err := c.Run(ctx, newSamples(c, "s1"))
	if !failure.Interrupted(err) {
		t.Fatalf("expected interruption, got %v", err)
	}
	if result.Failed() != 1 {
		t.Fatalf("expected the sample to fail, got %d failed", result.Failed())
	}
}
