// ABOUTME: OpenTelemetry wiring for the wallet gateway: OTLP exporters and shared instruments
// ABOUTME: Counters cover authorization outcomes; spans cover pipeline phases

package telemetry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

// InstrumentationName names the tracer and meter used across the gateway.
const InstrumentationName = "github.com/2389/wallet-gateway"

// Config controls telemetry export.
type Config struct {
	Enabled      bool
	ServiceName  string
	OTLPEndpoint string
	Insecure     bool
}

// Provider owns the SDK providers when export is enabled.
type Provider struct {
	tracerProvider *sdktrace.TracerProvider
	meterProvider  *sdkmetric.MeterProvider
	logger         *slog.Logger
}

// New installs global tracer and meter providers exporting over OTLP/gRPC.
// When disabled it returns a Provider that leaves the no-op globals alone.
func New(ctx context.Context, cfg Config) (*Provider, error) {
	p := &Provider{logger: slog.Default().With("component", "telemetry")}
	if !cfg.Enabled {
		p.logger.DebugContext(ctx, "telemetry disabled")
		return p, nil
	}

	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(cfg.ServiceName),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("creating resource: %w", err)
	}

	traceOpts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(cfg.OTLPEndpoint)}
	metricOpts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithEndpoint(cfg.OTLPEndpoint)}
	if cfg.Insecure {
		traceOpts = append(traceOpts, otlptracegrpc.WithInsecure())
		metricOpts = append(metricOpts, otlpmetricgrpc.WithInsecure())
	}

	traceExporter, err := otlptracegrpc.New(ctx, traceOpts...)
	if err != nil {
		return nil, fmt.Errorf("creating trace exporter: %w", err)
	}
	p.tracerProvider = sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
		sdktrace.WithBatcher(traceExporter),
	)
	otel.SetTracerProvider(p.tracerProvider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	metricExporter, err := otlpmetricgrpc.New(ctx, metricOpts...)
	if err != nil {
		return nil, fmt.Errorf("creating metric exporter: %w", err)
	}
	p.meterProvider = sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(metricExporter,
			sdkmetric.WithInterval(15*time.Second),
		)),
	)
	otel.SetMeterProvider(p.meterProvider)

	p.logger.InfoContext(ctx, "telemetry initialized",
		"service", cfg.ServiceName,
		"endpoint", cfg.OTLPEndpoint,
	)
	return p, nil
}

// Shutdown flushes and stops the SDK providers.
func (p *Provider) Shutdown(ctx context.Context) error {
	var errs []error
	if p.tracerProvider != nil {
		errs = append(errs, p.tracerProvider.Shutdown(ctx))
	}
	if p.meterProvider != nil {
		errs = append(errs, p.meterProvider.Shutdown(ctx))
	}
	return errors.Join(errs...)
}

// Metrics holds the gateway's counters.
type Metrics struct {
	autoApproved   metric.Int64Counter
	prompts        metric.Int64Counter
	decisions      metric.Int64Counter
	strictRejected metric.Int64Counter
	phaseErrors    metric.Int64Counter
	phaseDuration  metric.Float64Histogram
}

// NewMetrics creates instruments on mp. A nil mp uses the global provider.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	if mp == nil {
		mp = otel.GetMeterProvider()
	}
	meter := mp.Meter(InstrumentationName)

	m := &Metrics{}
	var err error
	if m.autoApproved, err = meter.Int64Counter("wallet.authz.auto_approved",
		metric.WithDescription("Authorization items approved from stored grants"),
		metric.WithUnit("{item}"),
	); err != nil {
		return nil, err
	}
	if m.prompts, err = meter.Int64Counter("wallet.authz.prompts",
		metric.WithDescription("Authorization requests published to the UI"),
		metric.WithUnit("{request}"),
	); err != nil {
		return nil, err
	}
	if m.decisions, err = meter.Int64Counter("wallet.authz.decisions",
		metric.WithDescription("Settled authorization requests by outcome"),
		metric.WithUnit("{request}"),
	); err != nil {
		return nil, err
	}
	if m.strictRejected, err = meter.Int64Counter("wallet.authz.strict_rejected",
		metric.WithDescription("Requests rejected by strict mode without prompting"),
		metric.WithUnit("{request}"),
	); err != nil {
		return nil, err
	}
	if m.phaseErrors, err = meter.Int64Counter("wallet.pipeline.phase_errors",
		metric.WithDescription("Operation phase failures"),
		metric.WithUnit("{error}"),
	); err != nil {
		return nil, err
	}
	if m.phaseDuration, err = meter.Float64Histogram("wallet.pipeline.phase_duration",
		metric.WithDescription("Operation phase duration"),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}
	return m, nil
}

// MustMetrics is NewMetrics for the global provider, falling back to no-op
// instruments if creation fails.
func MustMetrics() *Metrics {
	m, err := NewMetrics(nil)
	if err != nil {
		slog.Default().Warn("creating metrics failed, using no-op instruments", "error", err)
		m, _ = NewMetrics(noopProvider())
	}
	return m
}

func (m *Metrics) AutoApproved(ctx context.Context, appID string, n int) {
	m.autoApproved.Add(ctx, int64(n), metric.WithAttributes(attribute.String("app_id", appID)))
}

func (m *Metrics) Prompted(ctx context.Context, appID string, items int) {
	m.prompts.Add(ctx, 1, metric.WithAttributes(
		attribute.String("app_id", appID),
		attribute.Int("items", items),
	))
}

func (m *Metrics) Decided(ctx context.Context, appID, outcome string) {
	m.decisions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("app_id", appID),
		attribute.String("outcome", outcome),
	))
}

func (m *Metrics) StrictRejected(ctx context.Context, appID string) {
	m.strictRejected.Add(ctx, 1, metric.WithAttributes(attribute.String("app_id", appID)))
}

func (m *Metrics) PhaseFailed(ctx context.Context, method, phase string) {
	m.phaseErrors.Add(ctx, 1, metric.WithAttributes(
		attribute.String("method", method),
		attribute.String("phase", phase),
	))
}

func (m *Metrics) PhaseDone(ctx context.Context, method, phase string, d time.Duration) {
	m.phaseDuration.Record(ctx, d.Seconds(), metric.WithAttributes(
		attribute.String("method", method),
		attribute.String("phase", phase),
	))
}
