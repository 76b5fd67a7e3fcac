package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePipeline(); err != nil {
		return err
	}
	if err := c.validateExecutor(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	if err := c.validateScriptModules(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validatePipeline() error {
	if c.Pipeline.Workers <= 0 {
		return errors.New("pipeline.workers must be positive")
	}
	if strings.ContainsAny(c.Pipeline.Tag, `/\`) {
		return fmt.Errorf("pipeline.tag %q must not contain path separators", c.Pipeline.Tag)
	}
	switch c.Pipeline.ContextMode {
	case "process", "inline":
	default:
		return fmt.Errorf("pipeline.context_mode must be process or inline, got %q", c.Pipeline.ContextMode)
	}
	return nil
}

func (c *Config) validateExecutor() error {
	switch c.Executor.Backend {
	case "local", "sge", "mock":
	default:
		return fmt.Errorf("executor.backend must be local, sge, or mock, got %q", c.Executor.Backend)
	}
	if _, err := c.MemoryBytes(); err != nil {
		return fmt.Errorf("executor.memory: %w", err)
	}
	if c.Executor.Backend == "sge" && strings.TrimSpace(c.SGE.Queue) == "" {
		return errors.New("sge.queue must be set when executor.backend is sge")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format must be console or json, got %q", c.Logging.Format)
	}
	return nil
}

func (c *Config) validateScriptModules() error {
	seen := make(map[string]struct{}, len(c.Runners))
	for i, runner := range c.Runners {
		if runner.Name == "" {
			return fmt.Errorf("runners[%d].name must be set", i)
		}
		if runner.Script == "" {
			return fmt.Errorf("runners[%d] (%s): script must be set", i, runner.Name)
		}
		if _, dup := seen[runner.Name]; dup {
			return fmt.Errorf("runners[%d]: duplicate runner name %q", i, runner.Name)
		}
		seen[runner.Name] = struct{}{}
		if runner.Individual && runner.SplitBy != "" {
			return fmt.Errorf("runners[%d] (%s): individual and split_by are mutually exclusive", i, runner.Name)
		}
	}
	for i, hook := range c.Hooks {
		if hook.Name == "" {
			return fmt.Errorf("hooks[%d].name must be set", i)
		}
		if hook.Script == "" {
			return fmt.Errorf("hooks[%d] (%s): script must be set", i, hook.Name)
		}
		switch hook.Phase {
		case "pre", "post":
		default:
			return fmt.Errorf("hooks[%d] (%s): phase must be pre or post, got %q", i, hook.Name, hook.Phase)
		}
		switch hook.Condition {
		case "always", "complete", "failed":
		default:
			return fmt.Errorf("hooks[%d] (%s): condition must be always, complete, or failed, got %q", i, hook.Name, hook.Condition)
		}
		if hook.Phase == "pre" && hook.Condition != "always" {
			return fmt.Errorf("hooks[%d] (%s): condition only applies to post hooks", i, hook.Name)
		}
	}
	return nil
}
