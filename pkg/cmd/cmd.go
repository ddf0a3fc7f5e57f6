// Package cmd is a transport-agnostic command core. A command has a name, a
// description and Run(ctx, invocation); the chat relay and the terminal client
// parse lines into invocations and hand them to the same commands.
package cmd

import (
	"context"
	"errors"
	"strings"
)

// ErrUsage is returned by commands that were invoked with bad arguments.
var ErrUsage = errors.New("bad arguments")

// Invocation carries the arguments and a way to answer. Data is an optional
// transport payload, e.g. the Discord event.
type Invocation struct {
	Args  []string
	Reply func(text string) error
	Data  any
}

// Respond sends text through Reply, ignoring empty replies.
func (inv *Invocation) Respond(text string) error {
	if inv.Reply == nil || strings.TrimSpace(text) == "" {
		return nil
	}
	return inv.Reply(text)
}

type Command interface {
	Name() string
	Description() string
	Run(ctx context.Context, inv *Invocation) error
}

// Func adapts a function to Command.
type Func struct {
	ID   string
	Help string
	Fn   func(ctx context.Context, inv *Invocation) error
}

func (f Func) Name() string        { return f.ID }
func (f Func) Description() string { return f.Help }

func (f Func) Run(ctx context.Context, inv *Invocation) error { return f.Fn(ctx, inv) }
