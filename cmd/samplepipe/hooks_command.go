package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"samplepipe/internal/module"
)

func newHooksCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "hooks",
		Short: "Show the scheduled hooks and registered runners",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			registry, err := buildRegistry(cfg)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			for _, phase := range []module.Phase{module.PhasePre, module.PhasePost} {
				hooks, err := registry.Schedule(phase)
				if err != nil {
					return err
				}
				fmt.Fprintln(out, renderHooks(phase, hooks))
			}
			fmt.Fprintln(out, renderRunners(registry.Runners()))
			return nil
		},
	}
}

func renderHooks(phase module.Phase, hooks []*module.Hook) string {
	title := strings.ToUpper(string(phase[:1])) + string(phase[1:]) + "-hooks"
	if len(hooks) == 0 {
		return title + ": none"
	}
	rows := make([][]string, 0, len(hooks))
	for i, h := range hooks {
		row := []string{strconv.Itoa(i + 1), h.Name, h.Label, h.Before.String(), h.After.String()}
		if phase == module.PhasePost {
			row = append(row, string(h.Condition))
		}
		rows = append(rows, row)
	}
	headers := []string{"#", "Hook", "Label", "Before", "After"}
	if phase == module.PhasePost {
		headers = append(headers, "Condition")
	}
	return renderTable(title, headers, rows, 0)
}

func renderRunners(runners []*module.Runner) string {
	if len(runners) == 0 {
		return "Runners: none"
	}
	rows := make([][]string, 0, len(runners))
	for _, r := range runners {
		rows = append(rows, []string{r.Name, r.Label, partitioning(r)})
	}
	return renderTable("Runners", []string{"Runner", "Label", "Partition"}, rows)
}

func partitioning(r *module.Runner) string {
	switch {
	case r.Individual:
		return "per sample"
	case r.SplitBy != "":
		return "by " + r.SplitBy
	default:
		return "whole"
	}
}
