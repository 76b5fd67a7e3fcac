package module

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"samplepipe/internal/checkpoint"
	"samplepipe/internal/cleanup"
	"samplepipe/internal/config"
	"samplepipe/internal/executor"
	"samplepipe/internal/sample"
	"samplepipe/internal/schedule"
)

// Phase places a hook before or after the runners.
type Phase string

const (
	PhasePre  Phase = "pre"
	PhasePost Phase = "post"
)

// Condition selects the samples a post-hook receives.
type Condition string

const (
	ConditionAlways   Condition = "always"
	ConditionComplete Condition = "complete"
	ConditionFailed   Condition = "failed"
)

// Invocation is everything a hook or runner receives.
type Invocation struct {
	Samples    *sample.Samples
	Config     *config.Config
	Logger     *slog.Logger
	Root       string
	ScriptsDir string
	Workdir    string
	Timestamp  time.Time
	Executor   *executor.Executor
	Cleaner    cleanup.Registrar
	// Checkpoints is only set for runner contexts.
	Checkpoints *checkpoint.Store
}

// Checkpoint returns the checkpoint for label over the invocation's samples.
func (inv *Invocation) Checkpoint(label string) *checkpoint.Checkpoint {
	if inv.Checkpoints == nil {
		return nil
	}
	return inv.Checkpoints.Checkpoint(label, inv.Samples, inv.Workdir, inv.Config)
}

// Func is the body of a hook or runner.
type Func func(ctx context.Context, inv *Invocation) (*sample.Samples, error)

// Call runs fn, turning a panic into an error.
func Call(ctx context.Context, fn Func, inv *Invocation) (out *sample.Samples, err error) {
	defer func() {
		if r := recover(); r != nil {
			out = nil
			err = fmt.Errorf("panic: %v\n%s", r, debug.Stack())
		}
	}()
	return fn(ctx, inv)
}

// Hook runs sequentially before or after the runners.
type Hook struct {
	Name      string
	Label     string
	Phase     Phase
	Before    schedule.Constraint
	After     schedule.Constraint
	Condition Condition
	Func      Func
}

func (h *Hook) node() schedule.Node {
	return schedule.Node{Name: h.Name, Before: h.Before, After: h.After}
}

// Runner runs in parallel contexts, one per partition of the samples.
type Runner struct {
	Name       string
	Label      string
	SplitBy    string
	Individual bool
	Func       Func
}

// Label derives a display label from a module name: "copy_outputs" becomes
// "Copy Outputs".
func Label(name string) string {
	words := strings.FieldsFunc(name, func(r rune) bool { return r == '_' || r == '-' || r == ' ' })
	return cases.Title(language.English).String(strings.Join(words, " "))
}

func (h *Hook) normalize() error {
	h.Name = strings.TrimSpace(h.Name)
	if h.Name == "" {
		return fmt.Errorf("hook name is required")
	}
	if h.Func == nil {
		return fmt.Errorf("hook %s: function is required", h.Name)
	}
	if h.Label == "" {
		h.Label = Label(h.Name)
	}
	switch h.Phase {
	case PhasePre, PhasePost:
	case "":
		h.Phase = PhasePre
	default:
		return fmt.Errorf("hook %s: unknown phase %q", h.Name, h.Phase)
	}
	switch h.Condition {
	case "":
		h.Condition = ConditionAlways
	case ConditionAlways:
	case ConditionComplete, ConditionFailed:
		if h.Phase == PhasePre {
			return fmt.Errorf("hook %s: condition %q only applies to post-hooks", h.Name, h.Condition)
		}
	default:
		return fmt.Errorf("hook %s: unknown condition %q", h.Name, h.Condition)
	}
	return nil
}

func (r *Runner) normalize() error {
	r.Name = strings.TrimSpace(r.Name)
	if r.Name == "" {
		return fmt.Errorf("runner name is required")
	}
	if r.Func == nil {
		return fmt.Errorf("runner %s: function is required", r.Name)
	}
	if r.Label == "" {
		r.Label = Label(r.Name)
	}
	if r.Individual && r.SplitBy != "" {
		return fmt.Errorf("runner %s: individual and split_by are exclusive", r.Name)
	}
	return nil
}
