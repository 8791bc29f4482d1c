package metrics

import (
	"context"
	"strings"

	"go.uber.org/fx"

	config "github.com/tigerroll/surfin-engine/pkg/batch/core/config"
	metrics "github.com/tigerroll/surfin-engine/pkg/batch/core/metrics"
	logger "github.com/tigerroll/surfin-engine/pkg/batch/support/util/logger"
)

// NewTelemetryProvider builds the Telemetry and shuts it down with the application.
func NewTelemetryProvider(lc fx.Lifecycle, cfg *config.ObservabilityConfig) (*Telemetry, error) {
	t, err := NewTelemetry(context.Background(), cfg)
	if err != nil {
		return nil, err
	}
	lc.Append(fx.Hook{OnStop: t.Shutdown})
	return t, nil
}

// NewMetricRecorderProvider selects the MetricRecorder from the metrics configuration.
func NewMetricRecorderProvider(lc fx.Lifecycle, cfg *config.ObservabilityConfig, telemetry *Telemetry) (metrics.MetricRecorder, error) {
	if !cfg.Metrics.Enabled {
		return metrics.NewNoOpMetricRecorder(), nil
	}
	if strings.EqualFold(cfg.Metrics.Exporter, config.MetricsExporterOTLP) {
		return NewOpenTelemetryRecorder(telemetry.MeterProvider, cfg.Metrics.Namespace)
	}

	recorder := NewPrometheusRecorder(cfg.Metrics.Namespace)
	if url := cfg.Metrics.PushGatewayURL; url != "" {
		lc.Append(fx.Hook{OnStop: func(ctx context.Context) error {
			if err := recorder.Push(ctx, url, cfg.ServiceName); err != nil {
				logger.Warnf("Failed to push metrics to %s: %v", url, err)
			}
			return nil
		}})
	}
	return recorder, nil
}

// NewTracerProvider selects the Tracer from the tracing configuration.
func NewTracerProvider(cfg *config.ObservabilityConfig, telemetry *Telemetry) metrics.Tracer {
	if !cfg.Tracing.Enabled {
		return metrics.NewNoOpTracer()
	}
	return NewOpenTelemetryTracer(telemetry.TracerProvider)
}

// Module provides the MetricRecorder and Tracer configured under surfin.observability.
var Module = fx.Options(
	fx.Provide(
		NewTelemetryProvider,
		NewMetricRecorderProvider,
		NewTracerProvider,
	),
)
