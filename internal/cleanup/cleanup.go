package cleanup

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"samplepipe/internal/logging"
)

// Registrar is implemented by Cleaner and Deferred.
type Registrar interface {
	Register(path string)
	Unregister(path string)
}

// Action is a deferred registrar operation.
type Action string

const (
	ActionRegister   Action = "register"
	ActionUnregister Action = "unregister"
)

// Call is one recorded registrar operation.
type Call struct {
	Action Action `json:"action"`
	Path   string `json:"path"`
}

// Result reports what Clean removed.
type Result struct {
	Removed []string
	Errors  []Error
}

// Error pairs a path with its removal error.
type Error struct {
	Path  string
	Error error
}

// Cleaner holds the set of paths to remove under root.
type Cleaner struct {
	root   string
	logger *slog.Logger

	mu    sync.Mutex
	trash map[string]struct{}
}

// New returns a cleaner for paths under root.
func New(root string, logger *slog.Logger) *Cleaner {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Cleaner{root: filepath.Clean(root), logger: logger, trash: make(map[string]struct{})}
}

// Root returns the directory relative paths are resolved against.
func (c *Cleaner) Root() string { return c.root }

// Register marks path for removal. Paths outside root are refused.
func (c *Cleaner) Register(path string) {
	resolved, ok := c.resolve(path, "register")
	if !ok {
		return
	}
	c.mu.Lock()
	c.trash[resolved] = struct{}{}
	c.mu.Unlock()
}

// Unregister keeps path. When an ancestor directory is registered it is
// replaced by its remaining children, and registered paths below path are
// dropped.
func (c *Cleaner) Unregister(path string) {
	resolved, ok := c.resolve(path, "unregister")
	if !ok {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, ancestor := range ancestors(c.root, resolved) {
		if _, registered := c.trash[ancestor]; !registered {
			continue
		}
		delete(c.trash, ancestor)
		entries, err := os.ReadDir(ancestor)
		if err != nil {
			continue
		}
		for _, entry := range entries {
			c.trash[filepath.Join(ancestor, entry.Name())] = struct{}{}
		}
	}
	for registered := range c.trash {
		if within(resolved, registered) {
			delete(c.trash, registered)
		}
	}
}

// Replay applies calls recorded by a Deferred registrar.
func (c *Cleaner) Replay(calls []Call) {
	for _, call := range calls {
		switch call.Action {
		case ActionRegister:
			c.Register(call.Path)
		case ActionUnregister:
			c.Unregister(call.Path)
		default:
			c.logger.Warn("ignoring unknown cleanup action", logging.String("action", string(call.Action)))
		}
	}
}

// Paths returns the registered paths, sorted.
func (c *Cleaner) Paths() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.trash))
	for path := range c.trash {
		out = append(out, path)
	}
	slices.Sort(out)
	return out
}

// Clean removes every registered path. Missing paths are skipped.
func (c *Cleaner) Clean(ctx context.Context) Result {
	var result Result
	paths := c.Paths()
	if len(paths) == 0 {
		return result
	}
	c.logger.Info("cleaning up", logging.Int("paths", len(paths)), logging.String("root", c.root))
	for _, path := range paths {
		if ctx.Err() != nil {
			break
		}
		if _, err := os.Lstat(path); os.IsNotExist(err) {
			c.logger.Debug("cleanup path does not exist", logging.String("path", path))
			continue
		}
		if err := os.RemoveAll(path); err != nil {
			result.Errors = append(result.Errors, Error{Path: path, Error: err})
			c.logger.Warn("failed to remove path",
				logging.String("path", path),
				logging.Error(err),
				logging.String(logging.FieldEventType, "cleanup_failed"),
				logging.String(logging.FieldErrorHint, "check workdir permissions"),
				logging.String(logging.FieldImpact, "disk space not reclaimed"),
			)
			continue
		}
		result.Removed = append(result.Removed, path)
		c.logger.Debug("removed path", logging.String("path", path))
	}
	c.mu.Lock()
	for _, path := range result.Removed {
		delete(c.trash, path)
	}
	c.mu.Unlock()
	return result
}

func (c *Cleaner) resolve(path, action string) (string, bool) {
	resolved := resolvePath(c.root, path)
	if !within(c.root, resolved) {
		c.logger.Warn("refusing cleanup path outside root",
			logging.String("action", action),
			logging.String("path", resolved),
			logging.String("root", c.root),
		)
		return "", false
	}
	return resolved, true
}

// Deferred records registrar calls for later replay.
type Deferred struct {
	root string

	mu    sync.Mutex
	calls []Call
}

// NewDeferred returns a recorder resolving relative paths against root.
func NewDeferred(root string) *Deferred {
	return &Deferred{root: filepath.Clean(root)}
}

// Register implements Registrar.
func (d *Deferred) Register(path string) { d.add(ActionRegister, path) }

// Unregister implements Registrar.
func (d *Deferred) Unregister(path string) { d.add(ActionUnregister, path) }

// Calls returns the recorded calls in order.
func (d *Deferred) Calls() []Call {
	d.mu.Lock()
	defer d.mu.Unlock()
	return slices.Clone(d.calls)
}

func (d *Deferred) add(action Action, path string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls = append(d.calls, Call{Action: action, Path: resolvePath(d.root, path)})
}

func resolvePath(root, path string) string {
	if filepath.IsAbs(path) {
		return filepath.Clean(path)
	}
	return filepath.Join(root, path)
}

// within reports whether path is root or below it.
func within(root, path string) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}

// ancestors lists the directories between root (inclusive) and path
// (exclusive), outermost first.
func ancestors(root, path string) []string {
	var out []string
	for dir := filepath.Dir(path); within(root, dir); dir = filepath.Dir(dir) {
		out = append(out, dir)
		if dir == root {
			break
		}
	}
	slices.Reverse(out)
	return out
}
