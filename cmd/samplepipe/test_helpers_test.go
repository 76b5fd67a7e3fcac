package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func runCLI(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func requireContains(t *testing.T, out, want string) {
	t.Helper()
	if !strings.Contains(out, want) {
		t.Fatalf("expected output to contain %q, got:\n%s", want, out)
	}
}

type cliTestEnv struct {
	base       string
	configPath string
	dataDir    string
}

// setupCLITestEnv writes a configuration that runs contexts inline on the
// mock backend, with every directory under a temporary base.
func setupCLITestEnv(t *testing.T, extra string) *cliTestEnv {
	t.Helper()
	base := t.TempDir()
	t.Setenv("HOME", filepath.Join(base, "home"))
	t.Setenv("SAMPLEPIPE_TAG", "")
	t.Setenv("SAMPLEPIPE_EXECUTOR", "")
	t.Chdir(base)

	env := &cliTestEnv{
		base:       base,
		configPath: filepath.Join(base, "samplepipe.toml"),
		dataDir:    filepath.Join(base, "data"),
	}
	if err := os.MkdirAll(env.dataDir, 0o755); err != nil {
		t.Fatalf("mkdir data: %v", err)
	}
	body := `[paths]
workdir = "` + filepath.Join(base, "work") + `"
resultdir = "` + filepath.Join(base, "results") + `"
root = "` + base + `"

[pipeline]
tag = "cli"
workers = 2
context_mode = "inline"

[executor]
backend = "mock"

[logging]
level = "error"
no_color = true
` + extra
	if err := os.WriteFile(env.configPath, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return env
}

func (e *cliTestEnv) writeSamples(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(e.dataDir, "samples.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write samples: %v", err)
	}
	return path
}

func (e *cliTestEnv) touch(t *testing.T, names ...string) {
	t.Helper()
	for _, name := range names {
		if err := os.WriteFile(filepath.Join(e.dataDir, name), []byte(name), 0o644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
}
