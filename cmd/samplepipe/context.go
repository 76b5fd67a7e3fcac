package main

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"samplepipe/internal/builtin"
	"samplepipe/internal/config"
	"samplepipe/internal/executor"
	"samplepipe/internal/executor/local"
	"samplepipe/internal/executor/mock"
	"samplepipe/internal/executor/sge"
	"samplepipe/internal/logging"
	"samplepipe/internal/module"
)

type commandContext struct {
	configFlag *string

	configOnce   sync.Once
	config       *config.Config
	configPath   string
	configExists bool
	configErr    error
}

func newCommandContext(configFlag *string) *commandContext {
	return &commandContext{configFlag: configFlag}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, resolved, exists, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
		c.configPath = resolved
		c.configExists = exists
	})
	return c.config, c.configErr
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}

// buildRegistry assembles the modules of a run. The parent and every
// context process build the same registry from the same configuration.
func buildRegistry(cfg *config.Config) (*module.Registry, error) {
	registry := module.NewRegistry()
	if err := builtin.Register(registry, cfg); err != nil {
		return nil, err
	}
	return registry, nil
}

// newBackend returns the executor backend selected by executor.backend.
func newBackend(cfg *config.Config, logger *slog.Logger) (executor.Backend, error) {
	logDir := ""
	if cfg.Paths.LogDir != "" {
		logDir = filepath.Join(cfg.Paths.LogDir, cfg.Pipeline.Tag)
	}
	logger = logging.NewComponentLogger(logger, "executor")
	switch cfg.Executor.Backend {
	case "local", "":
		return local.New(local.Options{
			LogDir: logDir,
			Grace:  time.Duration(cfg.Executor.TerminateGrace) * time.Second,
			Logger: logger,
		}), nil
	case "sge":
		return sge.New(sge.Options{
			Queue:        cfg.SGE.Queue,
			PE:           cfg.SGE.PE,
			Slots:        cfg.SGE.Slots,
			LogDir:       logDir,
			PollInterval: time.Duration(cfg.SGE.PollInterval) * time.Second,
			Qsub:         cfg.SGE.Qsub,
			Qstat:        cfg.SGE.Qstat,
			Qacct:        cfg.SGE.Qacct,
			Qdel:         cfg.SGE.Qdel,
			Logger:       logger,
		})
	case "mock":
		return mock.New(mock.Options{Logger: logger}), nil
	default:
		return nil, fmt.Errorf("unknown executor backend %q", cfg.Executor.Backend)
	}
}
