package cli

import (
	"context"

	"go.opentelemetry.io/otel/trace"

	"github.com/roach88/dirsync/internal/app"
)

// openApp opens the configured database with the configured profile.
func openApp(ctx context.Context, opts *RootOptions, tracer trace.Tracer) (*app.App, error) {
	profile, err := app.LoadProfile(opts.Config.Profile)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, ErrCodeCompile, err)
	}
	a, err := app.Open(ctx, app.Options{
		Database: opts.Config.Database,
		Profile:  profile,
		MaxSteps: opts.Config.Engine.MaxSteps,
		Tracer:   tracer,
	})
	if err != nil {
		return nil, WrapExitError(ExitCommandError, ErrorCodeOf(err), err)
	}
	return a, nil
}
