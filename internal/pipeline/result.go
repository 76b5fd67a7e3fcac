package pipeline

import (
	"time"

	"samplepipe/internal/dispatch"
	"samplepipe/internal/module"
	"samplepipe/internal/sample"
)

// HookResult reports one hook invocation.
type HookResult struct {
	Phase    module.Phase
	Name     string
	Samples  int
	Duration time.Duration
	Err      error
}

// Result summarises a run. It is returned even when the run fails, carrying
// whatever state was reached.
type Result struct {
	Tag      string
	State    State
	Samples  *sample.Samples
	Hooks    []HookResult
	Contexts []dispatch.ContextResult
	// Unsaved lists declared output destinations that do not exist at the
	// end of the run.
	Unsaved  []string
	Cleaned  []string
	Duration time.Duration
}

// Complete returns the number of complete samples.
func (r *Result) Complete() int {
	if r == nil || r.Samples == nil {
		return 0
	}
	return r.Samples.Complete().Len()
}

// Failed returns the number of samples that did not complete.
func (r *Result) Failed() int {
	if r == nil || r.Samples == nil {
		return 0
	}
	return r.Samples.Failed().Len()
}

// HookErrors returns the hooks that returned an error.
func (r *Result) HookErrors() []HookResult {
	var out []HookResult
	for _, h := range r.Hooks {
		if h.Err != nil {
			out = append(out, h)
		}
	}
	return out
}
