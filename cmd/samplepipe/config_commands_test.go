package main

import (
	"os"
	"path/filepath"
	"testing"
)

func TestConfigInitAndValidate(t *testing.T) {
	base := t.TempDir()
	t.Setenv("HOME", filepath.Join(base, "home"))
	t.Chdir(base)

	target := filepath.Join(base, "conf", "samplepipe.toml")
	out, _, err := runCLI(t, "config", "init", "--path", target)
	if err != nil {
		t.Fatalf("config init: %v", err)
	}
	requireContains(t, out, "Wrote sample configuration")
	if _, err := os.Stat(target); err != nil {
		t.Fatalf("expected config file at %s: %v", target, err)
	}

	if _, _, err := runCLI(t, "config", "init", "--path", target); err == nil {
		t.Fatal("expected init to refuse overwriting an existing file")
	}
	if _, _, err := runCLI(t, "config", "init", "--path", target, "--overwrite"); err != nil {
		t.Fatalf("config init --overwrite: %v", err)
	}

	out, _, err = runCLI(t, "--config", target, "config", "validate")
	if err != nil {
		t.Fatalf("config validate: %v", err)
	}
	requireContains(t, out, "Configuration valid")
	requireContains(t, out, "Runners: 0, hooks: 2")
}

func TestConfigValidateRejectsBadModules(t *testing.T) {
	env := setupCLITestEnv(t, `
[[hooks]]
name = "notify"
script = "notify.sh"
phase = "sideways"
`)
	if _, _, err := runCLI(t, "-c", env.configPath, "config", "validate"); err == nil {
		t.Fatal("expected validation error for unknown hook phase")
	}
}

func TestConfigValidateReportsMissingScripts(t *testing.T) {
	env := setupCLITestEnv(t, alignRunner)
	t.Setenv("SAMPLEPIPE_EXECUTOR", "local")

	out, _, err := runCLI(t, "-c", env.configPath, "config", "validate")
	if err == nil {
		t.Fatal("expected validation to fail for a missing runner script")
	}
	requireContains(t, out, "Dependencies")
	requireContains(t, err.Error(), "align")

	scripts := filepath.Join(env.base, "scripts")
	if err := os.MkdirAll(scripts, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(scripts, "align.sh"), []byte("#!/bin/sh\nexit 0\n"), 0o755); err != nil {
		t.Fatal(err)
	}
	out, _, err = runCLI(t, "-c", env.configPath, "config", "validate")
	if err != nil {
		t.Fatalf("config validate: %v", err)
	}
	requireContains(t, out, "Configuration valid")
}
