package tracing

import (
	"go.uber.org/fx"

	port "github.com/tigerroll/surfin-engine/pkg/batch/core/application/port"
)

// Module contributes the TracingListener to the "listeners" group. The Tracer itself is
// provided by the infrastructure metrics module.
var Module = fx.Provide(
	fx.Annotate(
		NewTracingListener,
		fx.As(new(port.StepListener)),
		fx.ResultTags(`group:"listeners"`),
	),
)
