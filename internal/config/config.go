package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory configuration.
type Paths struct {
	Workdir    string `toml:"workdir"`
	ResultDir  string `toml:"resultdir"`
	LogDir     string `toml:"log_dir"`
	Root       string `toml:"root"`
	ScriptsDir string `toml:"scripts_dir"`
}

// Pipeline contains run-level settings.
type Pipeline struct {
	Tag          string `toml:"tag"`
	SamplesFile  string `toml:"samples_file"`
	Workers      int    `toml:"workers"`
	RequireFiles bool   `toml:"require_files"`
	Clean        bool   `toml:"clean"`
	ContextMode  string `toml:"context_mode"`
}

// Executor selects the job backend and its default resource hints.
type Executor struct {
	Backend        string `toml:"backend"`
	CPUs           int    `toml:"cpus"`
	Memory         string `toml:"memory"`
	TerminateGrace int    `toml:"terminate_grace"`
}

// SGE contains Sun Grid Engine submission settings.
type SGE struct {
	Queue        string `toml:"queue"`
	PE           string `toml:"pe"`
	Slots        int    `toml:"slots"`
	PollInterval int    `toml:"poll_interval"`
	Qsub         string `toml:"qsub"`
	Qstat        string `toml:"qstat"`
	Qacct        string `toml:"qacct"`
	Qdel         string `toml:"qdel"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format    string            `toml:"format"`
	Level     string            `toml:"level"`
	NoColor   bool              `toml:"no_color"`
	Overrides map[string]string `toml:"overrides"`
}

// Metrics contains configuration for run metrics.
type Metrics struct {
	Textfile string `toml:"textfile"`
}

// ScriptModule declares a hook or runner backed by an external script.
type ScriptModule struct {
	Name       string            `toml:"name"`
	Script     string            `toml:"script"`
	Args       []string          `toml:"args"`
	Env        map[string]string `toml:"env"`
	Phase      string            `toml:"phase"`
	Before     []string          `toml:"before"`
	After      []string          `toml:"after"`
	Condition  string            `toml:"condition"`
	SplitBy    string            `toml:"split_by"`
	Individual bool              `toml:"individual"`
	PerSample  bool              `toml:"per_sample"`
}

// Config encapsulates all configuration values for samplepipe.
//
// Configuration sections by subsystem:
//   - Paths: work, result, log, root, and scripts directories
//   - Pipeline: tag, samples file, worker bound, file checks, cleanup
//   - Executor: job backend selection and resource hints
//   - SGE: batch queue submission settings
//   - Logging: log format, level, and per-module overrides
//   - Metrics: optional Prometheus textfile output
//   - Runners/Hooks: script-backed modules declared in the file
//   - Modules: free-form per-module settings
type Config struct {
	Paths    Paths                     `toml:"paths"`
	Pipeline Pipeline                  `toml:"pipeline"`
	Executor Executor                  `toml:"executor"`
	SGE      SGE                       `toml:"sge"`
	Logging  Logging                   `toml:"logging"`
	Metrics  Metrics                   `toml:"metrics"`
	Runners  []ScriptModule            `toml:"runners"`
	Hooks    []ScriptModule            `toml:"hooks"`
	Modules  map[string]map[string]any `toml:"modules"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/samplepipe/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

// Parse decodes an already-normalized configuration, as produced by Encode.
// Runner contexts in child processes receive their configuration this way.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return &cfg, nil
}

// Encode serializes the configuration as TOML.
func (c *Config) Encode() ([]byte, error) {
	data, err := toml.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("encode config: %w", err)
	}
	return data, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("samplepipe.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}
	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates the work, result, and log directories.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.Workdir, c.Paths.ResultDir, c.Paths.LogDir} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// RunDir returns the working directory of the current run (<workdir>/<tag>).
func (c *Config) RunDir() string {
	return filepath.Join(c.Paths.Workdir, c.Pipeline.Tag)
}

// MemoryBytes parses executor.memory ("8 GB", "512MiB") into bytes.
// Zero means no memory hint.
func (c *Config) MemoryBytes() (uint64, error) {
	return ParseMemory(c.Executor.Memory)
}

// ParseMemory parses a human readable memory amount. Empty input yields zero.
func ParseMemory(value string) (uint64, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, nil
	}
	bytes, err := humanize.ParseBytes(value)
	if err != nil {
		return 0, fmt.Errorf("parse memory %q: %w", value, err)
	}
	return bytes, nil
}

// Module returns the free-form settings of the named module. The result is
// never nil.
func (c *Config) Module(name string) Values {
	if values, ok := c.Modules[name]; ok && values != nil {
		return Values(values)
	}
	return Values{}
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}

// ScriptPath resolves the script of a script module. Bare names are looked up
// in scriptsDir; anything containing a path separator is used as is.
func ScriptPath(scriptsDir, script string) string {
	if scriptsDir != "" && !filepath.IsAbs(script) && !strings.ContainsRune(script, filepath.Separator) {
		return filepath.Join(scriptsDir, script)
	}
	return script
}
