package workspace

import (
	"errors"
	"path/filepath"
	"testing"

	"samplepipe/internal/config"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Paths.Workdir = t.TempDir()
	cfg.Pipeline.Tag = "run1"
	return &cfg
}

func TestAcquireIsExclusive(t *testing.T) {
	cfg := testConfig(t)
	first := New(cfg)
	if err := first.Acquire(); err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	second := New(cfg)
	if err := second.Acquire(); !errors.Is(err, ErrLocked) {
		t.Fatalf("expected ErrLocked, got %v", err)
	}
	if err := first.Release(); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if err := second.Acquire(); err != nil {
		t.Fatalf("Acquire after release: %v", err)
	}
	_ = second.Release()
}

func TestContextDir(t *testing.T) {
	cfg := testConfig(t)
	w := New(cfg)
	tests := []struct {
		runner, partition, want string
	}{
		{"Align", "", filepath.Join(cfg.Paths.Workdir, "run1", "Align")},
		{"Align", "lane/1", filepath.Join(cfg.Paths.Workdir, "run1", "Align", "lane_1")},
		{"Call Variants", "..", filepath.Join(cfg.Paths.Workdir, "run1", "Call_Variants", "_..")},
	}
	for _, tt := range tests {
		if got := w.ContextDir(tt.runner, tt.partition); got != tt.want {
			t.Fatalf("ContextDir(%q, %q) = %q, want %q", tt.runner, tt.partition, got, tt.want)
		}
	}
}
