package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/mattn/go-isatty"

	"samplepipe/internal/config"
)

// Options describes logger construction parameters.
type Options struct {
	Level       string
	Format      string
	OutputPaths []string
	Development bool
	NoColor     bool
}

// New constructs a slog logger using the provided options.
func New(opts Options) (*slog.Logger, error) {
	handler, err := newHandler(opts, parseLevel(opts.Level))
	if err != nil {
		return nil, err
	}
	return slog.New(handler), nil
}

func newHandler(opts Options, level slog.Level) (slog.Handler, error) {
	levelVar := new(slog.LevelVar)
	levelVar.Set(level)

	outputWriter, err := openWriters(defaultSlice(opts.OutputPaths, []string{"stdout"}))
	if err != nil {
		return nil, err
	}

	addSource := opts.Development || level <= slog.LevelDebug

	format := strings.ToLower(strings.TrimSpace(opts.Format))
	if format == "" {
		format = "console"
	}

	switch format {
	case "json":
		return newJSONHandler(outputWriter, levelVar, addSource)
	case "console":
		color := !opts.NoColor && isTerminal(outputWriter)
		return newPrettyHandler(outputWriter, levelVar, addSource, color), nil
	default:
		return nil, fmt.Errorf("log format: unsupported value %q", opts.Format)
	}
}

// NewFromConfig creates the run logger. Console (or JSON) output goes to
// stdout; when a log directory is configured every record is also written as
// JSON to <log_dir>/<tag>.log. Per-module level overrides are honoured by
// ForModule.
func NewFromConfig(cfg *config.Config) (*slog.Logger, error) {
	if cfg == nil {
		return New(Options{Level: "info", Format: "console", OutputPaths: []string{"stdout"}})
	}

	level, floor := levels(cfg)
	console, err := newHandler(Options{
		Level:       cfg.Logging.Level,
		Format:      cfg.Logging.Format,
		OutputPaths: []string{"stdout"},
		NoColor:     cfg.Logging.NoColor,
	}, floor)
	if err != nil {
		return nil, err
	}

	handlers := []slog.Handler{console}
	if cfg.Paths.LogDir != "" {
		if err := os.MkdirAll(cfg.Paths.LogDir, 0o755); err != nil {
			return nil, fmt.Errorf("ensure log directory: %w", err)
		}
		logPath := filepath.Join(cfg.Paths.LogDir, cfg.Pipeline.Tag+".log")
		file, err := newHandler(Options{Format: "json", OutputPaths: []string{logPath}}, floor)
		if err != nil {
			return nil, err
		}
		handlers = append(handlers, file)
	}

	return slog.New(newLevelOverrideHandler(TeeHandler(handlers...), level)), nil
}

// NewForContext creates the logger of a runner context process: JSON lines
// on stderr, which the parent relays into its own handlers.
func NewForContext(cfg *config.Config) (*slog.Logger, error) {
	level, floor := levels(cfg)
	handler, err := newHandler(Options{Format: "json", OutputPaths: []string{"stderr"}}, floor)
	if err != nil {
		return nil, err
	}
	return slog.New(newLevelOverrideHandler(handler, level)), nil
}

// levels returns the configured level and the lowest level any module
// override asks for.
func levels(cfg *config.Config) (slog.Level, slog.Level) {
	level := parseLevel(cfg.Logging.Level)
	floor := level
	for _, override := range cfg.Logging.Overrides {
		if lvl := parseLevel(override); lvl < floor {
			floor = lvl
		}
	}
	return level, floor
}

// ForModule returns a logger tagged with the module name, applying any
// per-module level from logging.overrides.
func ForModule(logger *slog.Logger, cfg *config.Config, name string) *slog.Logger {
	logger = NewComponentLogger(logger, name)
	if cfg == nil {
		return logger
	}
	if override, ok := cfg.Logging.Overrides[name]; ok {
		return WithLevelOverride(logger, parseLevel(override))
	}
	return logger
}

// ParseLevel exposes the level parsing rules for other packages.
func ParseLevel(level string) slog.Level {
	return parseLevel(level)
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error", "critical":
		return slog.LevelError
	case "info", "":
		return slog.LevelInfo
	default:
		return slog.LevelInfo
	}
}

func defaultSlice(value []string, fallback []string) []string {
	if len(value) == 0 {
		cp := make([]string, len(fallback))
		copy(cp, fallback)
		return cp
	}
	cp := make([]string, len(value))
	copy(cp, value)
	return cp
}

func openWriters(paths []string) (io.Writer, error) {
	seen := map[string]struct{}{}
	var writers []io.Writer

	for _, path := range paths {
		trimmed := strings.TrimSpace(path)
		if trimmed == "" {
			continue
		}
		if _, ok := seen[trimmed]; ok {
			continue
		}
		seen[trimmed] = struct{}{}

		switch trimmed {
		case "stdout":
			writers = append(writers, os.Stdout)
		case "stderr":
			writers = append(writers, os.Stderr)
		default:
			if err := ensureLogDir(trimmed); err != nil {
				return nil, err
			}
			file, err := os.OpenFile(trimmed, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o664)
			if err != nil {
				return nil, fmt.Errorf("open log file %s: %w", trimmed, err)
			}
			writers = append(writers, file)
		}
	}

	if len(writers) == 0 {
		return os.Stdout, nil
	}
	if len(writers) == 1 {
		return writers[0], nil
	}
	return io.MultiWriter(writers...), nil
}

func ensureLogDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}

func isTerminal(w io.Writer) bool {
	file, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(file.Fd()) || isatty.IsCygwinTerminal(file.Fd())
}
