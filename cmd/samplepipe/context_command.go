package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/sys/unix"

	"samplepipe/internal/config"
	"samplepipe/internal/dispatch"
	"samplepipe/internal/logging"
	"samplepipe/internal/pipeline"
)

// newContextCommand is the entry point of a runner context process. The
// parent writes the request to stdin and reads the result from fd 3.
func newContextCommand() *cobra.Command {
	return &cobra.Command{
		Use:         pipeline.ContextCommand,
		Short:       "Run one runner context (internal)",
		Hidden:      true,
		Args:        cobra.NoArgs,
		Annotations: map[string]string{"skipConfigLoad": "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			// Jobs started from here must not hold the result pipe open.
			unix.CloseOnExec(dispatch.ResultFD)
			result := os.NewFile(uintptr(dispatch.ResultFD), "result")
			if result == nil {
				return fmt.Errorf("context result descriptor %d is not open", dispatch.ResultFD)
			}
			defer result.Close()
			return dispatch.ServeProcess(cmd.Context(), os.Stdin, result, buildContextHost)
		},
	}
}

func buildContextHost(cfg *config.Config) (*dispatch.Host, error) {
	logger, err := logging.NewForContext(cfg)
	if err != nil {
		return nil, err
	}
	registry, err := buildRegistry(cfg)
	if err != nil {
		return nil, err
	}
	backend, err := newBackend(cfg, logger)
	if err != nil {
		return nil, err
	}
	return &dispatch.Host{Registry: registry, Backend: backend, Logger: logger}, nil
}
