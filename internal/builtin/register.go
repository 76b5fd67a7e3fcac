package builtin

import (
	"fmt"

	"samplepipe/internal/config"
	"samplepipe/internal/failure"
	"samplepipe/internal/module"
	"samplepipe/internal/schedule"
)

const (
	ValidateSamplesName = "validate_samples"
	CopyOutputsName     = "copy_outputs"
)

// Register adds the built-in hooks and the script modules declared in cfg.
func Register(registry *module.Registry, cfg *config.Config) error {
	if err := registry.AddHook(module.Hook{
		Name:   ValidateSamplesName,
		Phase:  module.PhasePre,
		Before: schedule.AllHooks(),
		Func:   ValidateSamples,
	}); err != nil {
		return err
	}
	if err := registry.AddHook(module.Hook{
		Name:  CopyOutputsName,
		Phase: module.PhasePost,
		After: schedule.AllHooks(),
		Func:  CopyOutputs,
	}); err != nil {
		return err
	}
	for _, mod := range cfg.Runners {
		if err := registry.AddRunner(ScriptRunner(mod)); err != nil {
			return err
		}
	}
	for _, mod := range cfg.Hooks {
		hook, err := ScriptHook(mod)
		if err != nil {
			return err
		}
		if err := registry.AddHook(hook); err != nil {
			return err
		}
	}
	return nil
}

// ScriptRunner turns a [[runners]] entry into a runner.
func ScriptRunner(mod config.ScriptModule) module.Runner {
	return module.Runner{
		Name:       mod.Name,
		SplitBy:    mod.SplitBy,
		Individual: mod.Individual,
		Func:       (&script{mod: mod, perSample: mod.PerSample, runner: true}).run,
	}
}

// ScriptHook turns a [[hooks]] entry into a hook.
func ScriptHook(mod config.ScriptModule) (module.Hook, error) {
	phase := module.Phase(mod.Phase)
	switch phase {
	case "", module.PhasePre, module.PhasePost:
	default:
		return module.Hook{}, failure.Wrap(failure.ErrConfiguration, "builtin", "script hook",
			fmt.Sprintf("hook %s: unknown phase %q", mod.Name, mod.Phase), nil)
	}
	return module.Hook{
		Name:      mod.Name,
		Phase:     phase,
		Before:    schedule.Names(mod.Before...),
		After:     schedule.Names(mod.After...),
		Condition: module.Condition(mod.Condition),
		Func:      (&script{mod: mod, perSample: mod.PerSample}).run,
	}, nil
}
