package cmd

import "context"

// Middleware wraps a command (logging, access checks). The wrapped value is
// still a Command.
type Middleware func(Command) Command

// Apply applies middlewares in order; the first in the list is the outermost.
func Apply(c Command, mws ...Middleware) Command {
	for i := len(mws) - 1; i >= 0; i-- {
		c = mws[i](c)
	}
	return c
}

// Wrapped replaces Run while keeping the inner command's identity.
type Wrapped struct {
	Inner   Command
	RunFunc func(ctx context.Context, inv *Invocation) error
}

func (w *Wrapped) Name() string        { return w.Inner.Name() }
func (w *Wrapped) Description() string { return w.Inner.Description() }

func (w *Wrapped) Run(ctx context.Context, inv *Invocation) error {
	if w.RunFunc != nil {
		return w.RunFunc(ctx, inv)
	}
	return w.Inner.Run(ctx, inv)
}

func (w *Wrapped) Unwrap() Command { return w.Inner }

// Wrap returns a command that runs run instead of c.Run.
func Wrap(c Command, run func(ctx context.Context, inv *Invocation) error) Command {
	return &Wrapped{Inner: c, RunFunc: run}
}

// Root unwraps c until it reaches a command that is not a *Wrapped.
func Root(c Command) Command {
	for {
		w, ok := c.(*Wrapped)
		if !ok {
			return c
		}
		c = w.Inner
	}
}
