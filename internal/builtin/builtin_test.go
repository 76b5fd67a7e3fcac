package builtin_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"samplepipe/internal/builtin"
	"samplepipe/internal/checkpoint"
	"samplepipe/internal/config"
	"samplepipe/internal/executor"
	"samplepipe/internal/executor/local"
	"samplepipe/internal/logging"
	"samplepipe/internal/module"
	"samplepipe/internal/sample"
)

func writeFile(t *testing.T, path, content string, mode os.FileMode) string {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), mode); err != nil {
		t.Fatal(err)
	}
	return path
}

func invocation(t *testing.T, samples *sample.Samples) *module.Invocation {
	t.Helper()
	cfg := config.Default()
	cfg.Paths.ResultDir = t.TempDir()
	cfg.Pipeline.Tag = "t1"
	workdir := t.TempDir()
	exec := executor.New(local.New(local.Options{}), executor.Options{Workdir: workdir})
	t.Cleanup(func() { _ = exec.Close() })
	return &module.Invocation{
		Samples:  samples,
		Config:   &cfg,
		Logger:   logging.NewNop(),
		Workdir:  workdir,
		Executor: exec,
	}
}

func TestValidateSamplesFailsMissingFiles(t *testing.T) {
	dir := t.TempDir()
	present := writeFile(t, filepath.Join(dir, "s1.fastq"), "@r\n", 0o644)
	samples := sample.New(nil)
	samples.NewSample("s1", present)
	samples.NewSample("s2", filepath.Join(dir, "gone.fastq"))
	samples.NewSample("s3", dir)

	out, err := builtin.ValidateSamples(context.Background(), invocation(t, samples))
	if err != nil {
		t.Fatalf("ValidateSamples: %v", err)
	}
	var failed []string
	for _, item := range out.Items {
		if item.IsFailed() {
			failed = append(failed, item.ID)
			if !strings.HasPrefix(item.FailureReason, "missing files: ") {
				t.Fatalf("unexpected reason %q", item.FailureReason)
			}
		}
	}
	if diff := cmp.Diff([]string{"s2", "s3"}, failed); diff != "" {
		t.Fatalf("failed samples mismatch (-want +got):\n%s", diff)
	}
}

func TestValidateSamplesKeepsDuplicates(t *testing.T) {
	dir := t.TempDir()
	file := writeFile(t, filepath.Join(dir, "s1.fastq"), "@r\n", 0o644)
	samples := sample.New(nil)
	samples.NewSample("s1", file)
	samples.NewSample("s1", file)

	out, err := builtin.ValidateSamples(context.Background(), invocation(t, samples))
	if err != nil {
		t.Fatalf("ValidateSamples: %v", err)
	}
	if out.Len() != 2 {
		t.Fatalf("expected both entries to be kept, got %d", out.Len())
	}
	for _, item := range out.Items {
		if item.IsFailed() {
			t.Fatalf("duplicates must only be reported, got %q", item.FailureReason)
		}
	}
}

func TestCopyOutputs(t *testing.T) {
	src := t.TempDir()
	samples := sample.New(nil)
	samples.NewSample("s1")
	inv := invocation(t, samples)
	result := inv.Config.Paths.ResultDir

	samples.AddOutput(
		sample.Output{Src: writeFile(t, filepath.Join(src, "s1.bam"), "bam", 0o644), Dst: filepath.Join(result, "bams", "s1.bam")},
		sample.Output{Src: filepath.Join(src, "s1.bai"), Dst: filepath.Join(result, "bams", "s1.bai"), Optional: true},
	)
	if _, err := builtin.CopyOutputs(context.Background(), inv); err != nil {
		t.Fatalf("CopyOutputs: %v", err)
	}
	got, err := os.ReadFile(filepath.Join(result, "bams", "s1.bam"))
	if err != nil || string(got) != "bam" {
		t.Fatalf("expected copied output, got %q (%v)", got, err)
	}

	samples.AddOutput(sample.Output{Src: filepath.Join(src, "s1.vcf"), Dst: filepath.Join(result, "s1.vcf")})
	_, err = builtin.CopyOutputs(context.Background(), inv)
	if err == nil || !strings.Contains(err.Error(), "s1.vcf") {
		t.Fatalf("expected missing required output error, got %v", err)
	}
}

func TestScriptRunnerRunsOncePerSample(t *testing.T) {
	dir := t.TempDir()
	script := writeFile(t, filepath.Join(dir, "align.sh"), `#!/bin/sh
echo "$SAMPLE_ID $*" > "$SAMPLEPIPE_WORKDIR/$SAMPLE_ID.txt"
[ "$SAMPLE_ID" != bad ]
`, 0o755)
	samples := sample.New(nil)
	samples.NewSample("good", "/data/good_R1.fastq", "/data/good_R2.fastq")
	samples.NewSample("bad", "/data/bad_R1.fastq")
	inv := invocation(t, samples)

	runner := builtin.ScriptRunner(config.ScriptModule{Name: "align", Script: script, Args: []string{"--threads", "2"}, PerSample: true})
	out, err := runner.Func(context.Background(), inv)
	if err != nil {
		t.Fatalf("runner: %v", err)
	}

	got, err := os.ReadFile(filepath.Join(inv.Workdir, "good.txt"))
	if err != nil {
		t.Fatal(err)
	}
	if want := "good --threads 2 /data/good_R1.fastq /data/good_R2.fastq\n"; string(got) != want {
		t.Fatalf("script saw %q, want %q", got, want)
	}
	good, bad := out.Items[0], out.Items[1]
	if !good.Processed || good.IsFailed() {
		t.Fatalf("expected good to be processed, got %+v", good)
	}
	if !bad.IsFailed() || !strings.Contains(bad.FailureReason, "exited with status 1") {
		t.Fatalf("expected bad to fail with its exit status, got %q", bad.FailureReason)
	}
}

func TestScriptRunnerSkipsCheckpointedSamples(t *testing.T) {
	dir := t.TempDir()
	input := writeFile(t, filepath.Join(dir, "s1.fastq"), "@r\n", 0o644)
	script := writeFile(t, filepath.Join(dir, "call.sh"), "#!/bin/sh\nexit 0\n", 0o755)
	mod := config.ScriptModule{Name: "call", Script: script, PerSample: true}

	run := func() *sample.Sample {
		samples := sample.New(nil)
		samples.NewSample("s1", input)
		inv := invocation(t, samples)
		store, err := checkpoint.Open(dir)
		if err != nil {
			t.Fatalf("Open: %v", err)
		}
		defer store.Close()
		inv.Checkpoints = store
		out, err := builtin.ScriptRunner(mod).Func(context.Background(), inv)
		if err != nil {
			t.Fatalf("runner: %v", err)
		}
		return out.Items[0]
	}

	if first := run(); !first.Processed {
		t.Fatal("expected first run to process the sample")
	}
	writeFile(t, script, "#!/bin/sh\nexit 1\n", 0o755)
	if second := run(); !second.Processed || second.IsFailed() {
		t.Fatalf("expected checkpoint to skip the job, got %q", second.FailureReason)
	}
}

func TestScriptRunnerRunsOncePerPartition(t *testing.T) {
	dir := t.TempDir()
	script := writeFile(t, filepath.Join(dir, "joint.sh"), `#!/bin/sh
echo "$SAMPLE_IDS $*" >> "$SAMPLEPIPE_WORKDIR/joint.txt"
`, 0o755)
	samples := sample.New(nil)
	samples.NewSample("s1", "/data/s1.bam")
	samples.NewSample("s2", "/data/s2.bam")
	inv := invocation(t, samples)

	runner := builtin.ScriptRunner(config.ScriptModule{Name: "joint", Script: script})
	out, err := runner.Func(context.Background(), inv)
	if err != nil {
		t.Fatalf("runner: %v", err)
	}

	got, err := os.ReadFile(filepath.Join(inv.Workdir, "joint.txt"))
	if err != nil {
		t.Fatal(err)
	}
	if want := "s1 s2 /data/s1.bam /data/s2.bam\n"; string(got) != want {
		t.Fatalf("script saw %q, want %q", got, want)
	}
	for _, item := range out.Items {
		if !item.Processed {
			t.Fatalf("expected %s to be processed", item.ID)
		}
	}
}

func TestScriptHookRunsOnceWithAllSamples(t *testing.T) {
	dir := t.TempDir()
	script := writeFile(t, filepath.Join(dir, "report.sh"), `#!/bin/sh
echo "$SAMPLE_IDS" > "$SAMPLEPIPE_WORKDIR/report.txt"
`, 0o755)
	samples := sample.New(nil)
	samples.NewSample("s1")
	samples.NewSample("s2")
	inv := invocation(t, samples)

	hook, err := builtin.ScriptHook(config.ScriptModule{Name: "report", Script: script, Phase: "post"})
	if err != nil {
		t.Fatalf("ScriptHook: %v", err)
	}
	if _, err := hook.Func(context.Background(), inv); err != nil {
		t.Fatalf("hook: %v", err)
	}
	got, err := os.ReadFile(filepath.Join(inv.Workdir, "report.txt"))
	if err != nil || string(got) != "s1 s2\n" {
		t.Fatalf("unexpected report %q (%v)", got, err)
	}
}

func TestRegisterBuildsModules(t *testing.T) {
	cfg := config.Default()
	cfg.Runners = []config.ScriptModule{{Name: "align", Script: "align.sh", SplitBy: "lane"}}
	cfg.Hooks = []config.ScriptModule{{Name: "notify", Script: "notify.sh", Phase: "post", After: []string{"copy_outputs"}}}

	registry := module.NewRegistry()
	if err := builtin.Register(registry, &cfg); err != nil {
		t.Fatalf("Register: %v", err)
	}
	pre, err := registry.Schedule(module.PhasePre)
	if err != nil {
		t.Fatalf("Schedule pre: %v", err)
	}
	post, err := registry.Schedule(module.PhasePost)
	if err != nil {
		t.Fatalf("Schedule post: %v", err)
	}
	names := func(hooks []*module.Hook) []string {
		var out []string
		for _, h := range hooks {
			out = append(out, h.Name)
		}
		return out
	}
	if diff := cmp.Diff([]string{"validate_samples"}, names(pre)); diff != "" {
		t.Fatalf("pre-hooks mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"copy_outputs", "notify"}, names(post)); diff != "" {
		t.Fatalf("post-hooks mismatch (-want +got):\n%s", diff)
	}
	runner, ok := registry.Runner("align")
	if !ok || runner.SplitBy != "lane" {
		t.Fatalf("expected align runner split by lane, got %+v", runner)
	}
}

func TestScriptHookRejectsUnknownPhase(t *testing.T) {
	if _, err := builtin.ScriptHook(config.ScriptModule{Name: "x", Script: "x.sh", Phase: "during"}); err == nil {
		t.Fatal("expected unknown phase error")
	}
}
