package telemetry

import (
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

func noopProvider() metric.MeterProvider { return noop.NewMeterProvider() }
