package main

import (
	"fmt"
	"strings"

	"samplepipe/internal/config"
	"samplepipe/internal/deps"
	"samplepipe/internal/failure"
)

// checkDependencies reports every external command the configuration needs.
// The mock backend runs nothing, so dry runs skip the check.
func checkDependencies(cfg *config.Config) ([]deps.Status, error) {
	statuses := deps.CheckBinaries(deps.Requirements(cfg))
	if cfg.Executor.Backend == "mock" {
		return statuses, nil
	}
	missing := deps.Missing(statuses)
	if len(missing) == 0 {
		return statuses, nil
	}
	names := make([]string, 0, len(missing))
	for _, s := range missing {
		names = append(names, s.Name+" ("+s.Detail+")")
	}
	return statuses, failure.Wrap(failure.ErrConfiguration, "cli", "check dependencies",
		fmt.Sprintf("missing commands: %s", strings.Join(names, ", ")), nil)
}

func renderDependencies(statuses []deps.Status) string {
	if len(statuses) == 0 {
		return ""
	}
	rows := make([][]string, 0, len(statuses))
	for _, s := range statuses {
		state := "ok"
		switch {
		case !s.Available && s.Optional:
			state = "optional, " + s.Detail
		case !s.Available:
			state = s.Detail
		}
		rows = append(rows, []string{s.Name, s.Command, s.Description, state})
	}
	return renderTable("Dependencies", []string{"Name", "Command", "Used for", "Status"}, rows)
}
