package logging

import (
	"go.uber.org/fx"

	port "github.com/tigerroll/surfin-engine/pkg/batch/core/application/port"
)

// Module contributes the LoggingListener to the "listeners" group.
var Module = fx.Provide(
	fx.Annotate(
		NewLoggingListener,
		fx.As(new(port.StepListener)),
		fx.ResultTags(`group:"listeners"`),
	),
)
