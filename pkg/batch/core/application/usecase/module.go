package usecase

import (
	"context"

	"go.uber.org/fx"
)

// Module is the Fx module for JobLauncher, JobOperator, and JobExplorer.
// Running executions are cancelled when the application stops.
var Module = fx.Options(
	fx.Provide(
		NewSimpleJobLauncher,
		func(l *SimpleJobLauncher) JobLauncher { return l },
	),
	fx.Provide(fx.Annotate(
		NewDefaultJobOperator,
		fx.As(new(JobOperator)),
	)),
	fx.Provide(fx.Annotate(
		NewSimpleJobExplorer,
		fx.As(new(JobExplorer)),
	)),
	fx.Invoke(func(lc fx.Lifecycle, launcher *SimpleJobLauncher) {
		lc.Append(fx.Hook{
			OnStop: func(ctx context.Context) error { return launcher.Shutdown(ctx) },
		})
	}),
)
