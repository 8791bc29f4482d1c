package listener

import (
	"go.uber.org/fx"

	port "github.com/tigerroll/surfin-engine/pkg/batch/core/application/port"
	"github.com/tigerroll/surfin-engine/pkg/batch/listener/logging"
	"github.com/tigerroll/surfin-engine/pkg/batch/listener/metrics"
	"github.com/tigerroll/surfin-engine/pkg/batch/listener/tracing"
)

// RegistryParams receives every listener contributed to the "listeners" group.
type RegistryParams struct {
	fx.In
	Listeners []port.StepListener `group:"listeners"`
}

// NewRegistryProvider builds the Registry shared by jobs and steps.
func NewRegistryProvider(p RegistryParams) *Registry {
	return NewRegistry(p.Listeners...)
}

// Module aggregates all listener modules of the batch framework.
var Module = fx.Options(
	logging.Module,
	metrics.Module,
	tracing.Module,
	fx.Provide(NewRegistryProvider),
)
