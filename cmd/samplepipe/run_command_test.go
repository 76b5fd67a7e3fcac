package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"samplepipe/internal/failure"
)

const alignRunner = `
[[runners]]
name = "align"
script = "align.sh"
per_sample = true
`

func TestRunCommandReportsCompleteAndFailedSamples(t *testing.T) {
	env := setupCLITestEnv(t, alignRunner)
	env.touch(t, "s1_R1.fastq", "s2_R1.fastq")
	samples := env.writeSamples(t, `
- id: s1
  files: [s1_R1.fastq]
- id: s2
  files: [s2_R1.fastq]
- id: s3
  files: [s3_R1.fastq]
`)

	out, _, err := runCLI(t, "-c", env.configPath, "run", samples)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	requireContains(t, out, "Failed samples")
	requireContains(t, out, "s3")
	requireContains(t, out, "missing files")
	if strings.Contains(out, "│ s1 ") || strings.Contains(out, "│ s2 ") {
		t.Fatalf("expected only s3 to be listed as failed:\n%s", out)
	}
	if _, err := os.Stat(filepath.Join(env.base, "work", "cli")); err != nil {
		t.Fatalf("expected run directory: %v", err)
	}
}

func TestRunCommandFlagsOverrideConfig(t *testing.T) {
	env := setupCLITestEnv(t, alignRunner)
	env.touch(t, "s1_R1.fastq")
	samples := env.writeSamples(t, "- id: s1\n  files: [s1_R1.fastq]\n")

	out, _, err := runCLI(t, "-c", env.configPath, "run", "--tag", "override", "--dry-run", samples)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	requireContains(t, out, "override")
	if strings.Contains(out, "Failed samples") {
		t.Fatalf("expected every sample to complete:\n%s", out)
	}
	if _, err := os.Stat(filepath.Join(env.base, "work", "override")); err != nil {
		t.Fatalf("expected run directory for the overridden tag: %v", err)
	}
}

func TestRunCommandWithoutRunnersFailsEverySample(t *testing.T) {
	env := setupCLITestEnv(t, "")
	env.touch(t, "s1_R1.fastq")
	samples := env.writeSamples(t, "- id: s1\n  files: [s1_R1.fastq]\n")

	out, _, err := runCLI(t, "-c", env.configPath, "run", samples)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	requireContains(t, out, "sample was not processed")
}

func TestRunCommandRequiresSamplesFile(t *testing.T) {
	env := setupCLITestEnv(t, alignRunner)

	_, _, err := runCLI(t, "-c", env.configPath, "run", filepath.Join(env.dataDir, "absent.yaml"))
	if err == nil {
		t.Fatal("expected an error for a missing samples file")
	}
	if failure.Kind(err) != "configuration" {
		t.Fatalf("expected configuration error, got %q: %v", failure.Kind(err), err)
	}
}
