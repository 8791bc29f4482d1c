package logger

import "go.uber.org/fx"

// Module routes Fx lifecycle events through the package logger.
var Module = fx.Options(
	fx.WithLogger(NewFxLoggerAdapter),
)
