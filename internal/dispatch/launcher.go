package dispatch

import (
	"context"
)

// Launcher runs one context to completion.
type Launcher interface {
	Launch(ctx context.Context, c *Context) (*Outcome, error)
}

// InlineLauncher runs contexts in the calling goroutine. Samples are still
// copied through the wire codec in both directions.
type InlineLauncher struct {
	Env Environment
}

// Launch implements Launcher.
func (l *InlineLauncher) Launch(ctx context.Context, c *Context) (*Outcome, error) {
	in, err := isolate(c.Samples, c.Samples.Type)
	if err != nil {
		return nil, err
	}
	outcome, err := Execute(ctx, l.Env, c.Runner, in, c.Workdir, c.Partition)
	if err != nil {
		return outcome, err
	}
	outcome.Samples, err = isolate(outcome.Samples, c.Samples.Type)
	if err != nil {
		return outcome, err
	}
	return outcome, nil
}
