// Package middleware wraps qhist command execution with cross-cutting
// concerns such as run context logging and timing.
package middleware

import (
	"context"
	"fmt"
	"time"

	"qhist/internal/logger"

	"github.com/spf13/cobra"
)

// RunFunc is the function signature for cobra command execution.
type RunFunc func(cmd *cobra.Command, args []string) error

// Middleware wraps a RunFunc with additional behavior.
type Middleware func(next RunFunc) RunFunc

// Chain combines multiple middleware into a single middleware.
// The first middleware wraps outermost.
func Chain(middlewares ...Middleware) Middleware {
	return func(final RunFunc) RunFunc {
		for i := len(middlewares) - 1; i >= 0; i-- {
			final = middlewares[i](final)
		}
		return final
	}
}

// Apply applies middleware to a cobra command's RunE function.
func Apply(cmd *cobra.Command, middlewares ...Middleware) {
	if cmd.RunE == nil {
		return
	}
	cmd.RunE = Chain(middlewares...)(cmd.RunE)
}

// ApplyRecursive applies middleware to a command and all its subcommands.
func ApplyRecursive(cmd *cobra.Command, middlewares ...Middleware) {
	Apply(cmd, middlewares...)
	for _, child := range cmd.Commands() {
		ApplyRecursive(child, middlewares...)
	}
}

// Logging attaches a RunContext and the logger returned by log to the
// command context, and logs start and completion of the command. log is
// called at run time, after configuration has been loaded.
func Logging(log func() *logger.Logger) Middleware {
	return func(next RunFunc) RunFunc {
		return func(cmd *cobra.Command, args []string) error {
			l := log()
			if l == nil {
				l = logger.Default()
			}

			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			rc := logger.NewCommandContext(cmd, args)
			ctx = logger.WithRunContext(ctx, rc)
			ctx = logger.WithLogger(ctx, l)
			cmd.SetContext(ctx)

			cl := logger.LoggerFrom(ctx)
			cl.Debug("command started")

			err := next(cmd, args)

			duration := time.Since(rc.Started)
			if err != nil {
				cl.Debug("command failed", "duration_ms", duration.Milliseconds(), logger.WithError(err))
			} else {
				cl.Debug("command completed", "duration_ms", duration.Milliseconds())
			}
			return err
		}
	}
}

// Timing prints the command duration to stderr when verbose returns true.
func Timing(verbose func() bool) Middleware {
	return func(next RunFunc) RunFunc {
		return func(cmd *cobra.Command, args []string) error {
			start := time.Now()
			err := next(cmd, args)
			if verbose() {
				fmt.Fprintf(cmd.ErrOrStderr(), "\nCompleted in %s\n", time.Since(start).Round(time.Millisecond))
			}
			return err
		}
	}
}
