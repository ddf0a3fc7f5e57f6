// Package middleware holds cross-cutting wrappers for chat commands.
package middleware

import (
	"context"
	"errors"
	"time"

	"github.com/keshon/heartline/pkg/cmd"
	"github.com/rs/zerolog"
)

// WithCommandLogger logs every command run with its outcome.
func WithCommandLogger(log zerolog.Logger) cmd.Middleware {
	log = log.With().Str("component", "commands").Logger()
	return func(c cmd.Command) cmd.Command {
		return cmd.Wrap(c, func(ctx context.Context, inv *cmd.Invocation) error {
			start := time.Now()
			err := c.Run(ctx, inv)

			ev := log.Info()
			if err != nil && !errors.Is(err, cmd.ErrUsage) {
				ev = log.Error().Err(err)
			}
			ev.Str("action", "command").
				Str("command", c.Name()).
				Strs("args", inv.Args).
				Dur("took", time.Since(start)).
				Msg("command executed")
			return err
		})
	}
}

// WithUsageReply turns cmd.ErrUsage into a short help reply instead of an
// error.
func WithUsageReply() cmd.Middleware {
	return func(c cmd.Command) cmd.Command {
		return cmd.Wrap(c, func(ctx context.Context, inv *cmd.Invocation) error {
			err := c.Run(ctx, inv)
			if errors.Is(err, cmd.ErrUsage) {
				return inv.Respond("Usage: " + c.Name() + ": " + c.Description())
			}
			return err
		})
	}
}
