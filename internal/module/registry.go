package module

import (
	"fmt"
	"slices"

	"samplepipe/internal/failure"
	"samplepipe/internal/sample"
	"samplepipe/internal/schedule"
)

// Registry collects hooks, runners, and record extensions before a pipeline
// is built. It is not safe for concurrent use.
type Registry struct {
	hooks      []*Hook
	runners    []*Runner
	extensions []sample.Extension
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// AddHook registers a hook. Duplicate names are reported by Schedule.
func (r *Registry) AddHook(h Hook) error {
	if err := h.normalize(); err != nil {
		return failure.Wrap(failure.ErrConfiguration, "registry", "add hook", "", err)
	}
	r.hooks = append(r.hooks, &h)
	return nil
}

// AddRunner registers a runner. Runner names must be unique.
func (r *Registry) AddRunner(rn Runner) error {
	if err := rn.normalize(); err != nil {
		return failure.Wrap(failure.ErrConfiguration, "registry", "add runner", "", err)
	}
	if slices.ContainsFunc(r.runners, func(existing *Runner) bool { return existing.Name == rn.Name }) {
		return failure.Wrap(failure.ErrConfiguration, "registry", "add runner", fmt.Sprintf("duplicate runner name %q", rn.Name), nil)
	}
	r.runners = append(r.runners, &rn)
	return nil
}

// AddExtension registers record extensions.
func (r *Registry) AddExtension(exts ...sample.Extension) {
	r.extensions = append(r.extensions, exts...)
}

// Hooks returns the hooks of a phase in registration order.
func (r *Registry) Hooks(phase Phase) []*Hook {
	var out []*Hook
	for _, h := range r.hooks {
		if h.Phase == phase {
			out = append(out, h)
		}
	}
	return out
}

// Runners returns the runners in registration order.
func (r *Registry) Runners() []*Runner {
	return slices.Clone(r.runners)
}

// Runner looks a runner up by name.
func (r *Registry) Runner(name string) (*Runner, bool) {
	for _, rn := range r.runners {
		if rn.Name == name {
			return rn, true
		}
	}
	return nil, false
}

// Extensions returns the registered record extensions.
func (r *Registry) Extensions() []sample.Extension {
	return slices.Clone(r.extensions)
}

// Schedule orders the hooks of a phase by their constraints.
func (r *Registry) Schedule(phase Phase) ([]*Hook, error) {
	return schedule.Order(string(phase), r.Hooks(phase), (*Hook).node)
}

// Dangling lists constraints of a phase naming no registered hook.
func (r *Registry) Dangling(phase Phase) []string {
	return schedule.Dangling(r.Hooks(phase), (*Hook).node)
}

// RecordType composes the registered extensions.
func (r *Registry) RecordType() (*sample.RecordType, error) {
	return sample.Compose(r.extensions...)
}
