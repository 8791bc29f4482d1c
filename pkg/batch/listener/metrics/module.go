package metrics

import (
	"go.uber.org/fx"

	port "github.com/tigerroll/surfin-engine/pkg/batch/core/application/port"
)

// Module contributes the MetricsListener to the "listeners" group and optionally makes
// metric recording asynchronous.
var Module = fx.Options(
	fx.Decorate(DecorateAsync),
	fx.Provide(
		fx.Annotate(
			NewMetricsListener,
			fx.As(new(port.StepListener)),
			fx.ResultTags(`group:"listeners"`),
		),
	),
)
