// Package deps checks that the external commands a run depends on are
// present: batch queue tools for the sge backend and the scripts of
// configured script modules.
package deps

import (
	"fmt"
	"os/exec"
	"strings"

	"samplepipe/internal/config"
)

// Requirement defines an external command a run relies on.
type Requirement struct {
	Name        string
	Command     string
	Description string
	Optional    bool
}

// Status reports the availability of a requirement.
type Status struct {
	Name        string
	Command     string
	Description string
	Optional    bool
	Available   bool
	Detail      string
}

// Requirements lists the commands the configuration needs.
func Requirements(cfg *config.Config) []Requirement {
	var reqs []Requirement
	if cfg.Executor.Backend == "sge" {
		reqs = append(reqs,
			Requirement{Name: "qsub", Command: cfg.SGE.Qsub, Description: "Submits SGE jobs"},
			Requirement{Name: "qstat", Command: cfg.SGE.Qstat, Description: "Polls SGE job state"},
			Requirement{Name: "qacct", Command: cfg.SGE.Qacct, Description: "Reads SGE exit status", Optional: true},
			Requirement{Name: "qdel", Command: cfg.SGE.Qdel, Description: "Terminates SGE jobs"},
		)
	}
	for _, runner := range cfg.Runners {
		reqs = append(reqs, Requirement{
			Name:        runner.Name,
			Command:     config.ScriptPath(cfg.Paths.ScriptsDir, runner.Script),
			Description: "Runner script",
		})
	}
	for _, hook := range cfg.Hooks {
		reqs = append(reqs, Requirement{
			Name:        hook.Name,
			Command:     config.ScriptPath(cfg.Paths.ScriptsDir, hook.Script),
			Description: hook.Phase + "-hook script",
		})
	}
	return reqs
}

// CheckBinaries evaluates the provided requirements and reports availability.
func CheckBinaries(requirements []Requirement) []Status {
	results := make([]Status, 0, len(requirements))
	for _, req := range requirements {
		cmd := strings.TrimSpace(req.Command)
		status := Status{
			Name:        req.Name,
			Command:     cmd,
			Description: strings.TrimSpace(req.Description),
			Optional:    req.Optional,
		}
		if cmd == "" {
			status.Detail = "command not configured"
			results = append(results, status)
			continue
		}
		if _, err := exec.LookPath(cmd); err != nil {
			status.Detail = fmt.Sprintf("%q not found or not executable", cmd)
			results = append(results, status)
			continue
		}
		status.Available = true
		results = append(results, status)
	}
	return results
}

// Missing returns the required statuses that are unavailable.
func Missing(statuses []Status) []Status {
	var out []Status
	for _, s := range statuses {
		if !s.Available && !s.Optional {
			out = append(out, s)
		}
	}
	return out
}
