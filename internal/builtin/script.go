package builtin

import (
	"context"
	"fmt"
	"strings"

	"samplepipe/internal/checkpoint"
	"samplepipe/internal/config"
	"samplepipe/internal/executor"
	"samplepipe/internal/logging"
	"samplepipe/internal/module"
	"samplepipe/internal/sample"
)

// Environment variables exported to script jobs.
const (
	EnvSampleID  = "SAMPLE_ID"
	EnvSampleIDs = "SAMPLE_IDS"
	EnvWorkdir   = "SAMPLEPIPE_WORKDIR"
	EnvTag       = "SAMPLEPIPE_TAG"
)

type script struct {
	mod       config.ScriptModule
	perSample bool
	// runner scripts mark the samples they ran on as processed or failed.
	runner bool
}

func (s *script) command(inv *module.Invocation) string {
	return config.ScriptPath(inv.ScriptsDir, s.mod.Script)
}

func (s *script) env(inv *module.Invocation) map[string]string {
	env := make(map[string]string, len(s.mod.Env)+3)
	for k, v := range s.mod.Env {
		env[k] = v
	}
	env[EnvWorkdir] = inv.Workdir
	env[EnvTag] = inv.Config.Pipeline.Tag
	return env
}

func (s *script) run(ctx context.Context, inv *module.Invocation) (*sample.Samples, error) {
	if !s.perSample {
		env := s.env(inv)
		env[EnvSampleIDs] = strings.Join(inv.Samples.UniqueIDs(), " ")
		var files []string
		for _, item := range inv.Samples.Items {
			files = append(files, item.Files...)
		}
		_, err := inv.Executor.Submit(ctx, executor.JobSpec{
			Name:    s.mod.Name,
			Command: s.command(inv),
			Args:    append(append([]string(nil), s.mod.Args...), files...),
			Env:     env,
			Wait:    true,
		})
		if err != nil {
			return nil, err
		}
		if s.runner {
			for _, item := range inv.Samples.Items {
				if !item.IsFailed() {
					item.Processed = true
				}
			}
		}
		return inv.Samples, nil
	}

	skipped := 0
	for _, item := range inv.Samples.Items {
		if item.IsFailed() {
			continue
		}
		cp := s.checkpoint(inv, item)
		if cp != nil {
			if done, err := cp.Check(ctx, s.mod.Script, s.mod.Args); err == nil && done {
				item.Processed = true
				skipped++
				continue
			}
		}

		env := s.env(inv)
		env[EnvSampleID] = item.ID
		_, err := inv.Executor.Submit(ctx, executor.JobSpec{
			Name:    s.mod.Name + "-" + item.ID,
			Command: s.command(inv),
			Args:    append(append([]string(nil), s.mod.Args...), item.Files...),
			Env:     env,
			OnSuccess: func(*executor.Job) {
				if !s.runner {
					return
				}
				item.Processed = true
				if cp == nil {
					return
				}
				if err := cp.Store(ctx, s.mod.Script, s.mod.Args); err != nil {
					inv.Logger.Warn("failed to store checkpoint",
						logging.String(logging.FieldSampleID, item.ID),
						logging.Error(err),
					)
				}
			},
			OnError: func(job *executor.Job, err error) {
				item.Fail(fmt.Sprintf("%s exited with status %d", s.mod.Name, executor.ExitCode(err)))
				inv.Logger.Warn("script failed",
					logging.String(logging.FieldSampleID, item.ID),
					logging.String(logging.FieldJobID, job.ID),
					logging.Error(err),
				)
			},
		})
		if err != nil {
			return nil, err
		}
	}
	if err := inv.Executor.Wait(ctx); err != nil {
		return nil, err
	}
	if skipped > 0 {
		inv.Logger.Info("samples skipped by checkpoint", logging.Int("samples", skipped))
	}
	return inv.Samples, nil
}

func (s *script) checkpoint(inv *module.Invocation, item *sample.Sample) *checkpoint.Checkpoint {
	if !s.runner || inv.Checkpoints == nil {
		return nil
	}
	return inv.Checkpoints.Checkpoint(s.mod.Name+"/"+item.ID, sample.New(inv.Samples.Type, item), inv.Workdir, inv.Config)
}
