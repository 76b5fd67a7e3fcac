package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizePipeline()
	c.normalizeExecutor()
	c.normalizeLogging()
	c.normalizeModules()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.Workdir) == "" {
		c.Paths.Workdir = defaultWorkdir
	}
	if c.Paths.Workdir, err = expandPath(c.Paths.Workdir); err != nil {
		return fmt.Errorf("paths.workdir: %w", err)
	}
	if strings.TrimSpace(c.Paths.ResultDir) == "" {
		c.Paths.ResultDir = defaultResultDir
	}
	if c.Paths.ResultDir, err = expandPath(c.Paths.ResultDir); err != nil {
		return fmt.Errorf("paths.resultdir: %w", err)
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.Root) == "" {
		if wd, wdErr := os.Getwd(); wdErr == nil {
			c.Paths.Root = wd
		}
	}
	if c.Paths.Root, err = expandPath(c.Paths.Root); err != nil {
		return fmt.Errorf("paths.root: %w", err)
	}
	if strings.TrimSpace(c.Paths.ScriptsDir) == "" && c.Paths.Root != "" {
		c.Paths.ScriptsDir = filepath.Join(c.Paths.Root, "scripts")
	}
	if c.Paths.ScriptsDir, err = expandPath(c.Paths.ScriptsDir); err != nil {
		return fmt.Errorf("paths.scripts_dir: %w", err)
	}
	if c.Pipeline.SamplesFile != "" {
		if c.Pipeline.SamplesFile, err = expandPath(c.Pipeline.SamplesFile); err != nil {
			return fmt.Errorf("pipeline.samples_file: %w", err)
		}
	}
	if c.Metrics.Textfile != "" {
		if c.Metrics.Textfile, err = expandPath(c.Metrics.Textfile); err != nil {
			return fmt.Errorf("metrics.textfile: %w", err)
		}
	}
	return nil
}

func (c *Config) normalizePipeline() {
	c.Pipeline.Tag = strings.TrimSpace(c.Pipeline.Tag)
	if c.Pipeline.Tag == "" {
		if value, ok := os.LookupEnv("SAMPLEPIPE_TAG"); ok {
			c.Pipeline.Tag = strings.TrimSpace(value)
		}
	}
	if c.Pipeline.Tag == "" {
		c.Pipeline.Tag = time.Now().Format(defaultTagLayout)
	}
	if c.Pipeline.Workers <= 0 {
		c.Pipeline.Workers = defaultWorkers
	}
	c.Pipeline.ContextMode = strings.ToLower(strings.TrimSpace(c.Pipeline.ContextMode))
	if c.Pipeline.ContextMode == "" {
		c.Pipeline.ContextMode = defaultContextMode
	}
}

func (c *Config) normalizeExecutor() {
	if value, ok := os.LookupEnv("SAMPLEPIPE_EXECUTOR"); ok && strings.TrimSpace(value) != "" {
		c.Executor.Backend = value
	}
	c.Executor.Backend = strings.ToLower(strings.TrimSpace(c.Executor.Backend))
	if c.Executor.Backend == "" {
		c.Executor.Backend = defaultBackend
	}
	if c.Executor.CPUs <= 0 {
		c.Executor.CPUs = defaultCPUs
	}
	if c.Executor.TerminateGrace <= 0 {
		c.Executor.TerminateGrace = defaultTerminateGrace
	}
	c.Executor.Memory = strings.TrimSpace(c.Executor.Memory)
	if c.SGE.Slots <= 0 {
		c.SGE.Slots = c.Executor.CPUs
	}
	if c.SGE.PollInterval <= 0 {
		c.SGE.PollInterval = defaultSGEPoll
	}
	for _, bin := range []*string{&c.SGE.Qsub, &c.SGE.Qstat, &c.SGE.Qacct, &c.SGE.Qdel} {
		*bin = strings.TrimSpace(*bin)
	}
	if c.SGE.Qsub == "" {
		c.SGE.Qsub = "qsub"
	}
	if c.SGE.Qstat == "" {
		c.SGE.Qstat = "qstat"
	}
	if c.SGE.Qacct == "" {
		c.SGE.Qacct = "qacct"
	}
	if c.SGE.Qdel == "" {
		c.SGE.Qdel = "qdel"
	}
}

func (c *Config) normalizeLogging() {
	format := strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch format {
	case "", "console":
		c.Logging.Format = defaultLogFormat
	case "json":
		c.Logging.Format = "json"
	default:
		c.Logging.Format = format
	}
	level := strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if level == "" {
		level = defaultLogLevel
	}
	c.Logging.Level = level
	for name, value := range c.Logging.Overrides {
		c.Logging.Overrides[name] = strings.ToLower(strings.TrimSpace(value))
	}
}

func (c *Config) normalizeModules() {
	for i := range c.Runners {
		c.Runners[i].Name = strings.TrimSpace(c.Runners[i].Name)
		c.Runners[i].SplitBy = strings.TrimSpace(c.Runners[i].SplitBy)
	}
	for i := range c.Hooks {
		c.Hooks[i].Name = strings.TrimSpace(c.Hooks[i].Name)
		c.Hooks[i].Phase = strings.ToLower(strings.TrimSpace(c.Hooks[i].Phase))
		if c.Hooks[i].Phase == "" {
			c.Hooks[i].Phase = "pre"
		}
		c.Hooks[i].Condition = strings.ToLower(strings.TrimSpace(c.Hooks[i].Condition))
		if c.Hooks[i].Condition == "" {
			c.Hooks[i].Condition = "always"
		}
	}
}
