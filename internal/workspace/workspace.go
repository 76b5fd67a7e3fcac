// Package workspace lays out the working directory of a run and guards it
// with a lock so two runs cannot share a tag.
package workspace

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/gofrs/flock"

	"samplepipe/internal/config"
)

// ErrLocked is returned when another run holds the tag.
var ErrLocked = errors.New("run tag is locked by another process")

// Workspace is the directory tree of one run: <workdir>/<tag>.
type Workspace struct {
	dir      string
	tag      string
	lockPath string
	lock     *flock.Flock
}

// New returns the workspace of the configured run.
func New(cfg *config.Config) *Workspace {
	dir := cfg.RunDir()
	lockPath := filepath.Join(cfg.Paths.Workdir, "."+cfg.Pipeline.Tag+".lock")
	return &Workspace{
		dir:      dir,
		tag:      cfg.Pipeline.Tag,
		lockPath: lockPath,
		lock:     flock.New(lockPath),
	}
}

// Dir returns the run directory.
func (w *Workspace) Dir() string { return w.dir }

// Tag returns the run tag.
func (w *Workspace) Tag() string { return w.tag }

// Acquire creates the run directory and takes the tag lock.
func (w *Workspace) Acquire() error {
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return fmt.Errorf("create run dir: %w", err)
	}
	ok, err := w.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return fmt.Errorf("%w: %s (%s)", ErrLocked, w.tag, w.lockPath)
	}
	return nil
}

// Release drops the tag lock and removes the lock file.
func (w *Workspace) Release() error {
	if !w.lock.Locked() {
		return nil
	}
	if err := w.lock.Unlock(); err != nil {
		return fmt.Errorf("release lock: %w", err)
	}
	_ = os.Remove(w.lockPath)
	return nil
}

// HookDir returns the run directory; hooks share it.
func (w *Workspace) HookDir() string { return w.dir }

// ContextDir returns the directory of one runner context:
// <run dir>/<runner>[/<partition>].
func (w *Workspace) ContextDir(runner, partition string) string {
	dir := filepath.Join(w.dir, SanitizeKey(runner))
	if partition != "" {
		dir = filepath.Join(dir, SanitizeKey(partition))
	}
	return dir
}

// SanitizeKey turns a label or partition value into a single path element.
func SanitizeKey(key string) string {
	key = strings.TrimSpace(key)
	var b strings.Builder
	for _, r := range key {
		switch {
		case r == '/' || r == '\\' || r == 0:
			b.WriteByte('_')
		case r == ' ':
			b.WriteByte('_')
		default:
			b.WriteRune(r)
		}
	}
	out := b.String()
	if out == "" || out == "." || out == ".." {
		return "_" + out
	}
	return out
}
