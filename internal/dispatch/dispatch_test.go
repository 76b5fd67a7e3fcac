package dispatch_test

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"samplepipe/internal/cleanup"
	"samplepipe/internal/config"
	"samplepipe/internal/dispatch"
	"samplepipe/internal/executor"
	"samplepipe/internal/executor/mock"
	"samplepipe/internal/failure"
	"samplepipe/internal/module"
	"samplepipe/internal/sample"
	"samplepipe/internal/workspace"
)

func laneType(t *testing.T) *sample.RecordType {
	t.Helper()
	typ, err := sample.Compose(sample.Extension{
		Name:   "lanes",
		Fields: []sample.Field{{Name: "lane", Default: 0}, {Name: "note", Default: ""}},
	})
	if err != nil {
		t.Fatalf("Compose: %v", err)
	}
	return typ
}

func laneSamples(t *testing.T, typ *sample.RecordType, lanes ...int) *sample.Samples {
	t.Helper()
	samples := sample.New(typ)
	for i, lane := range lanes {
		item := samples.NewSample(string(rune('a' + i)))
		if err := item.Set("lane", lane); err != nil {
			t.Fatalf("Set lane: %v", err)
		}
	}
	return samples
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Paths.Workdir = t.TempDir()
	cfg.Paths.ResultDir = t.TempDir()
	cfg.Pipeline.Tag = "test"
	cfg.Pipeline.ContextMode = "inline"
	return &cfg
}

type harness struct {
	cfg        *config.Config
	ws         *workspace.Workspace
	cleaner    *cleanup.Cleaner
	dispatcher *dispatch.Dispatcher
	backend    *mock.Backend
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	cfg := testConfig(t)
	ws := workspace.New(cfg)
	backend := mock.New(mock.Options{})
	cleaner := cleanup.New(ws.Dir(), nil)
	d := dispatch.New(dispatch.Options{
		Workers:  2,
		Launcher: &dispatch.InlineLauncher{Env: dispatch.Environment{Config: cfg, Backend: backend}},
		Dir:      ws.ContextDir,
		Cleaner:  cleaner,
	})
	return &harness{cfg: cfg, ws: ws, cleaner: cleaner, dispatcher: d, backend: backend}
}

func processAll(_ context.Context, inv *module.Invocation) (*sample.Samples, error) {
	for _, item := range inv.Samples.Items {
		item.Processed = true
	}
	return inv.Samples, nil
}

func sizes(contexts []*dispatch.Context) []int {
	out := make([]int, 0, len(contexts))
	for _, c := range contexts {
		out = append(out, c.Samples.Len())
	}
	return out
}

func TestPlanSplitsByLane(t *testing.T) {
	typ := laneType(t)
	samples := laneSamples(t, typ, 1, 1, 2, 2, 3)
	runner := &module.Runner{Name: "align", Label: "Align", SplitBy: "lane", Func: processAll}

	contexts := dispatch.Plan([]*module.Runner{runner}, samples, func(runner, partition string) string {
		return filepath.Join("/work", runner, partition)
	})
	if diff := cmp.Diff([]int{2, 2, 1}, sizes(contexts)); diff != "" {
		t.Fatalf("context sizes mismatch (-want +got):\n%s", diff)
	}
	var keys, dirs []string
	for _, c := range contexts {
		keys = append(keys, c.Partition)
		dirs = append(dirs, c.Workdir)
	}
	if diff := cmp.Diff([]string{"1", "2", "3"}, keys); diff != "" {
		t.Fatalf("partition keys mismatch (-want +got):\n%s", diff)
	}
	if dirs[2] != "/work/align/3" {
		t.Fatalf("unexpected workdir %q", dirs[2])
	}
}

func TestPlanIsSetPartition(t *testing.T) {
	typ := laneType(t)
	samples := laneSamples(t, typ, 1, 0, 2, 1, 0, 3)

	for _, runner := range []*module.Runner{
		{Name: "whole", Func: processAll},
		{Name: "split", SplitBy: "lane", Func: processAll},
		{Name: "each", Individual: true, Func: processAll},
	} {
		t.Run(runner.Name, func(t *testing.T) {
			contexts := dispatch.Plan([]*module.Runner{runner}, samples, func(string, string) string { return "" })
			seen := make(map[*sample.Sample]int)
			for _, c := range contexts {
				if c.Samples.Len() == 0 {
					t.Fatalf("empty partition %q", c.Partition)
				}
				for _, item := range c.Samples.Items {
					seen[item]++
				}
			}
			if len(seen) != samples.Len() {
				t.Fatalf("expected %d samples covered, got %d", samples.Len(), len(seen))
			}
			for item, n := range seen {
				if n != 1 {
					t.Fatalf("sample %s appears in %d partitions", item.ID, n)
				}
			}
		})
	}
}

func TestPlanUnsetValuesFormSingletons(t *testing.T) {
	typ := laneType(t)
	samples := sample.New(typ)
	samples.NewSample("a")
	samples.NewSample("b")
	runner := &module.Runner{Name: "call", SplitBy: "note", Func: processAll}

	contexts := dispatch.Plan([]*module.Runner{runner}, samples, func(string, string) string { return "" })
	if diff := cmp.Diff([]int{1, 1}, sizes(contexts)); diff != "" {
		t.Fatalf("context sizes mismatch (-want +got):\n%s", diff)
	}
}

func TestPlanWorkdirsAreUnique(t *testing.T) {
	cfg := testConfig(t)
	ws := workspace.New(cfg)
	samples := sample.New(laneType(t))
	for i, note := range []string{"run/1", "run_1", "run 1"} {
		item := samples.NewSample(string(rune('a' + i)))
		if err := item.Set("note", note); err != nil {
			t.Fatalf("Set note: %v", err)
		}
	}
	runners := []*module.Runner{
		{Name: "align_x", Label: "Align X", Func: processAll},
		{Name: "align-x", Label: "Align X", Func: processAll},
		{Name: "call", SplitBy: "note", Func: processAll},
	}

	contexts := dispatch.Plan(runners, samples, ws.ContextDir)
	if len(contexts) != 5 {
		t.Fatalf("expected 5 contexts, got %d", len(contexts))
	}
	seen := make(map[string]string)
	for _, c := range contexts {
		if other, dup := seen[c.Workdir]; dup {
			t.Fatalf("contexts %s and %s/%s share workdir %q", other, c.Runner.Name, c.Partition, c.Workdir)
		}
		seen[c.Workdir] = c.Runner.Name + "/" + c.Partition
	}
	if contexts[2].Partition != "run/1" {
		t.Fatalf("first partition should keep its key, got %q", contexts[2].Partition)
	}
	for _, c := range contexts[3:] {
		if c.Partition == "run_1" || c.Partition == "run 1" {
			t.Fatalf("colliding partition %q kept its bare key", c.Partition)
		}
	}
}

func TestPlanDeduplicatesPartitionKeys(t *testing.T) {
	samples := sample.New(nil)
	samples.NewSample("s1")
	samples.NewSample("s1")
	runner := &module.Runner{Name: "each", Individual: true, Func: processAll}

	contexts := dispatch.Plan([]*module.Runner{runner}, samples, func(_, partition string) string { return partition })
	if len(contexts) != 2 {
		t.Fatalf("expected 2 contexts, got %d", len(contexts))
	}
	if contexts[0].Workdir == contexts[1].Workdir {
		t.Fatalf("expected distinct workdirs, both are %q", contexts[0].Workdir)
	}
	if !strings.HasPrefix(contexts[1].Partition, "s1-") {
		t.Fatalf("unexpected partition key %q", contexts[1].Partition)
	}
}

func TestDispatchConfinesFailuresToTheirContext(t *testing.T) {
	h := newHarness(t)
	typ := laneType(t)
	samples := laneSamples(t, typ, 1, 1, 2, 2, 3)
	runner := &module.Runner{Name: "call", Label: "Call", SplitBy: "lane", Func: func(ctx context.Context, inv *module.Invocation) (*sample.Samples, error) {
		switch inv.Samples.Items[0].Attr("lane") {
		case 2:
			return nil, errors.New("boom")
		case 3:
			panic("exploded")
		}
		return processAll(ctx, inv)
	}}

	result := h.dispatcher.Dispatch(context.Background(), []*module.Runner{runner}, samples)
	if result.Samples.Len() != 5 {
		t.Fatalf("expected 5 records, got %d", result.Samples.Len())
	}
	if diff := cmp.Diff([]string{"a", "b"}, result.Samples.Complete().UniqueIDs()); diff != "" {
		t.Fatalf("complete samples mismatch (-want +got):\n%s", diff)
	}
	for _, item := range result.Samples.Failed().Items {
		lane := item.Attr("lane")
		switch {
		case lane == 2 && !strings.Contains(item.FailureReason, "boom"):
			t.Fatalf("sample %s: unexpected reason %q", item.ID, item.FailureReason)
		case lane == 3 && !strings.Contains(item.FailureReason, "panic: exploded"):
			t.Fatalf("sample %s: unexpected reason %q", item.ID, item.FailureReason)
		}
		if item.Runs["call"] {
			t.Fatalf("sample %s: expected runner tag false", item.ID)
		}
	}
	failed := result.Failed()
	if len(failed) != 2 {
		t.Fatalf("expected 2 failed contexts, got %d", len(failed))
	}
	for _, c := range failed {
		if !errors.Is(c.Err, failure.ErrContext) {
			t.Fatalf("expected context failure, got %v", c.Err)
		}
	}
}

func TestDispatchFailsUnprocessedSamples(t *testing.T) {
	h := newHarness(t)
	samples := sample.New(nil)
	samples.NewSample("s1")
	samples.NewSample("s2")
	runner := &module.Runner{Name: "noop", Func: func(context.Context, *module.Invocation) (*sample.Samples, error) {
		return nil, nil
	}}

	result := h.dispatcher.Dispatch(context.Background(), []*module.Runner{runner}, samples)
	if result.Samples.Len() != 2 {
		t.Fatalf("expected the partition to be kept, got %d records", result.Samples.Len())
	}
	for _, item := range result.Samples.Items {
		if item.FailureReason != dispatch.ReasonNotProcessed {
			t.Fatalf("sample %s: unexpected reason %q", item.ID, item.FailureReason)
		}
		if ok, tagged := item.Runs["noop"]; !tagged || ok {
			t.Fatalf("sample %s: expected runner tag false, got %v", item.ID, item.Runs)
		}
	}
	if len(result.Failed()) != 0 {
		t.Fatal("a nil return is not a context failure")
	}
}

func TestDispatchIsolatesRecords(t *testing.T) {
	h := newHarness(t)
	typ := laneType(t)
	samples := laneSamples(t, typ, 1, 2)
	mutate := func(ctx context.Context, inv *module.Invocation) (*sample.Samples, error) {
		for _, item := range inv.Samples.Items {
			if err := item.Set("note", "touched"); err != nil {
				return nil, err
			}
		}
		return processAll(ctx, inv)
	}
	runners := []*module.Runner{
		{Name: "first", Func: mutate},
		{Name: "second", Func: processAll},
	}

	result := h.dispatcher.Dispatch(context.Background(), runners, samples)
	for _, item := range samples.Items {
		if item.Attr("note") != "" || item.Processed {
			t.Fatalf("input sample %s was modified", item.ID)
		}
	}
	if result.Samples.Len() != 4 {
		t.Fatalf("expected one record per runner and sample, got %d", result.Samples.Len())
	}
	var notes []any
	for _, item := range result.Samples.Items {
		notes = append(notes, item.Attr("note"))
		if item.InstanceID() != samples.Items[0].InstanceID() && item.InstanceID() != samples.Items[1].InstanceID() {
			t.Fatalf("record %s lost its instance identifier", item.ID)
		}
	}
	if diff := cmp.Diff([]any{"touched", "touched", "", ""}, notes); diff != "" {
		t.Fatalf("notes mismatch (-want +got):\n%s", diff)
	}
}

func TestDispatchRunsJobsAndReplaysCleanup(t *testing.T) {
	h := newHarness(t)
	samples := sample.New(nil)
	samples.NewSample("s1", "/data/s1.fastq")
	runner := &module.Runner{Name: "align", Label: "Align", Func: func(ctx context.Context, inv *module.Invocation) (*sample.Samples, error) {
		for _, item := range inv.Samples.Items {
			if _, err := inv.Executor.Submit(ctx, executor.JobSpec{Command: "bwa", Args: item.Files, Wait: true}); err != nil {
				return nil, err
			}
			item.Processed = true
		}
		inv.Cleaner.Register("tmp")
		return inv.Samples, nil
	}}

	result := h.dispatcher.Dispatch(context.Background(), []*module.Runner{runner}, samples)
	if len(result.Samples.Complete().Items) != 1 {
		t.Fatalf("expected the sample to complete, failed: %v", result.Samples.Failed().Items)
	}
	jobs := h.backend.Jobs()
	if len(jobs) != 1 || jobs[0].Command != "bwa" {
		t.Fatalf("unexpected jobs %+v", jobs)
	}
	want := []string{filepath.Join(h.ws.ContextDir("align", ""), "tmp")}
	if diff := cmp.Diff(want, h.cleaner.Paths()); diff != "" {
		t.Fatalf("cleanup paths mismatch (-want +got):\n%s", diff)
	}
}

func TestDispatchFailsEverythingWhenCancelled(t *testing.T) {
	h := newHarness(t)
	samples := sample.New(nil)
	samples.NewSample("s1")
	runner := &module.Runner{Name: "align", Func: processAll}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	result := h.dispatcher.Dispatch(ctx, []*module.Runner{runner}, samples)
	if len(result.Samples.Failed().Items) != 1 {
		t.Fatal("expected the sample to fail")
	}
	if !failure.Interrupted(result.Contexts[0].Err) {
		t.Fatalf("expected an interruption, got %v", result.Contexts[0].Err)
	}
}
