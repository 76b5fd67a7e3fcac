package metrics

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestWriteTextfile(t *testing.T) {
	c := New()
	c.ObserveJob("local", "succeeded", 2*time.Second)
	c.ObserveJob("local", "failed", time.Second)
	c.ObserveContext("align", "ok")
	c.ObserveHook("pre", "validate_samples", 10*time.Millisecond)
	c.SetSamples(3, 1)

	path := filepath.Join(t.TempDir(), "metrics", "run.prom")
	if err := c.WriteTextfile(path); err != nil {
		t.Fatalf("WriteTextfile: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	text := string(data)
	for _, want := range []string{
		`samplepipe_jobs_total{backend="local",state="succeeded"} 1`,
		`samplepipe_jobs_total{backend="local",state="failed"} 1`,
		`samplepipe_contexts_total{outcome="ok",runner="align"} 1`,
		`samplepipe_samples{state="complete"} 3`,
		`samplepipe_samples{state="failed"} 1`,
		`samplepipe_hook_duration_seconds_count{hook="validate_samples",phase="pre"} 1`,
	} {
		if !strings.Contains(text, want) {
			t.Fatalf("metrics output missing %q:\n%s", want, text)
		}
	}
}

func TestNilCollectorIsNoop(t *testing.T) {
	var c *Collector
	c.ObserveJob("local", "failed", time.Second)
	c.ObserveContext("align", "failed")
	c.SetSamples(1, 1)
	if err := c.WriteTextfile(filepath.Join(t.TempDir(), "x.prom")); err != nil {
		t.Fatalf("expected nil collector to be a no-op, got %v", err)
	}
}
