package panicerr

import (
	"context"
	"log/slog"

	"github.com/sourcegraph/conc/panics"
)

// Safe converts a panic inside fn into an error.
func Safe(fn func() error) func() error {
	return func() error {
		var (
			catcher panics.Catcher
			err     error
		)
		catcher.Try(func() { err = fn() })
		if err != nil {
			return err
		}
		return catcher.Recovered().AsError()
	}
}

// SafeContext is Safe for context-taking functions.
func SafeContext(fn func(context.Context) error) func(context.Context) error {
	return func(ctx context.Context) error {
		return Safe(func() error { return fn(ctx) })()
	}
}

// Go runs fn in a new goroutine. A panic or returned error is logged under
// name instead of crashing the process.
func Go(ctx context.Context, name string, fn func(context.Context) error) {
	go func() {
		if err := SafeContext(fn)(ctx); err != nil && ctx.Err() == nil {
			slog.ErrorContext(ctx, "background worker stopped", "worker", name, "error", err)
		}
	}()
}
