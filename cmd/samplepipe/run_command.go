package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"samplepipe/internal/config"
	"samplepipe/internal/failure"
	"samplepipe/internal/logging"
	"samplepipe/internal/metrics"
	"samplepipe/internal/pipeline"
	"samplepipe/internal/sample"
)

type runOptions struct {
	tag     string
	workers int
	backend string
	inline  bool
	dryRun  bool
	clean   bool
}

func newRunCommand(ctx *commandContext) *cobra.Command {
	var opts runOptions

	cmd := &cobra.Command{
		Use:   "run [samples.yaml]",
		Short: "Run the pipeline over a samples file",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			opts.apply(cmd, cfg)
			if len(args) == 1 {
				if cfg.Pipeline.SamplesFile, err = config.ExpandPath(args[0]); err != nil {
					return err
				}
			}
			if err := cfg.Validate(); err != nil {
				return failure.Wrap(failure.ErrConfiguration, "cli", "validate config", "", err)
			}
			if _, err := checkDependencies(cfg); err != nil {
				return err
			}
			if err := cfg.EnsureDirectories(); err != nil {
				return err
			}

			runCtx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runPipeline(runCtx, cmd, cfg)
		},
	}

	cmd.Flags().StringVarP(&opts.tag, "tag", "t", "", "Run tag (names the work directory)")
	cmd.Flags().IntVarP(&opts.workers, "workers", "w", 0, "Maximum concurrent runner contexts")
	cmd.Flags().StringVar(&opts.backend, "backend", "", "Executor backend: local, sge, or mock")
	cmd.Flags().BoolVar(&opts.inline, "inline", false, "Run contexts in-process instead of child processes")
	cmd.Flags().BoolVar(&opts.dryRun, "dry-run", false, "Log jobs instead of running them (mock backend)")
	cmd.Flags().BoolVar(&opts.clean, "clean", false, "Remove the run directory when every sample completed")
	return cmd
}

func (o runOptions) apply(cmd *cobra.Command, cfg *config.Config) {
	if tag := strings.TrimSpace(o.tag); tag != "" {
		cfg.Pipeline.Tag = tag
	}
	if o.workers > 0 {
		cfg.Pipeline.Workers = o.workers
	}
	if backend := strings.TrimSpace(o.backend); backend != "" {
		cfg.Executor.Backend = strings.ToLower(backend)
	}
	if o.dryRun {
		cfg.Executor.Backend = "mock"
	}
	if o.inline {
		cfg.Pipeline.ContextMode = "inline"
	}
	if cmd.Flags().Changed("clean") {
		cfg.Pipeline.Clean = o.clean
	}
}

func runPipeline(ctx context.Context, cmd *cobra.Command, cfg *config.Config) error {
	logger, err := logging.NewFromConfig(cfg)
	if err != nil {
		return fmt.Errorf("init logging: %w", err)
	}
	registry, err := buildRegistry(cfg)
	if err != nil {
		return err
	}
	backend, err := newBackend(cfg, logger)
	if err != nil {
		return err
	}

	collector := metrics.New()
	controller, err := pipeline.New(pipeline.Options{
		Config:    cfg,
		Registry:  registry,
		Backend:   backend,
		Logger:    logger,
		Metrics:   collector,
		Timestamp: time.Now(),
	})
	if err != nil {
		return err
	}

	samples, err := loadSamples(cfg, controller.RecordType())
	if err != nil {
		return err
	}

	result, runErr := controller.Run(ctx, samples)
	fmt.Fprintln(cmd.OutOrStdout(), renderSummary(result))
	return runErr
}

func loadSamples(cfg *config.Config, typ *sample.RecordType) (*sample.Samples, error) {
	path := strings.TrimSpace(cfg.Pipeline.SamplesFile)
	if path == "" {
		return nil, failure.Wrap(failure.ErrConfiguration, "cli", "load samples", "no samples file given", nil)
	}
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, failure.Wrap(failure.ErrConfiguration, "cli", "load samples", fmt.Sprintf("samples file %s not found", path), nil)
		}
		return nil, err
	}
	return sample.LoadFile(path, typ)
}
