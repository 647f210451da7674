// Package telemetry wires OpenTelemetry tracing and metrics for the
// classification pipeline. A disabled provider is a working no-op.
package telemetry

import (
	"context"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"

	"github.com/straja-ai/soundlens/internal/redact"
)

// Config controls telemetry setup.
type Config struct {
	Enabled  bool
	Endpoint string
	Protocol string // grpc | http
	Service  string
	Version  string
}

// Provider wires tracer/meter providers and exposes helpers.
type Provider struct {
	Enabled bool
	tracer  trace.Tracer
	meter   metric.Meter

	requestsCounter       metric.Int64Counter
	requestDuration       metric.Float64Histogram
	stageDuration         metric.Float64Histogram
	fallbackCounter       metric.Int64Counter
	eventsDroppedCounter  metric.Int64Counter
	shutdownTraceProvider func(context.Context) error
	shutdownMeterProvider func(context.Context) error
}

// NewProvider configures OTEL exporters + providers. When disabled, returns no-op providers.
func NewProvider(ctx context.Context, cfg Config) (*Provider, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if !cfg.Enabled {
		return Noop(), nil
	}
	if cfg.Service == "" {
		cfg.Service = "soundlens"
	}

	redact.Logf("telemetry enabled (OpenTelemetry OTLP %s) endpoint=%s; if no collector is listening, periodic 'failed to upload metrics' warnings are expected", strings.ToLower(cfg.Protocol), cfg.Endpoint)

	res, err := resource.New(ctx,
		resource.WithFromEnv(),
		resource.WithTelemetrySDK(),
		resource.WithAttributes(
			attribute.String("service.name", cfg.Service),
			attribute.String("service.version", cfg.Version),
		),
	)
	if err != nil {
		return nil, err
	}

	var traceExporter sdktrace.SpanExporter
	var metricExporter sdkmetric.Exporter
	switch strings.ToLower(cfg.Protocol) {
	case "", "grpc":
		traceExporter, err = otlptracegrpc.New(ctx, otlptracegrpc.WithEndpoint(cfg.Endpoint), otlptracegrpc.WithInsecure())
		if err != nil {
			return nil, err
		}
		metricExporter, err = otlpmetricgrpc.New(ctx, otlpmetricgrpc.WithEndpoint(cfg.Endpoint), otlpmetricgrpc.WithInsecure())
		if err != nil {
			return nil, err
		}
	case "http":
		traceExporter, err = otlptracehttp.New(ctx, otlptracehttp.WithEndpoint(cfg.Endpoint), otlptracehttp.WithInsecure())
		if err != nil {
			return nil, err
		}
		metricExporter, err = otlpmetrichttp.New(ctx, otlpmetrichttp.WithEndpoint(cfg.Endpoint), otlpmetrichttp.WithInsecure())
		if err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unsupported telemetry protocol %q", cfg.Protocol)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
		sdktrace.WithBatcher(traceExporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)

	mp := sdkmetric.NewMeterProvider(sdkmetric.WithResource(res), sdkmetric.WithReader(sdkmetric.NewPeriodicReader(metricExporter)))
	otel.SetMeterProvider(mp)

	p := &Provider{
		Enabled:               true,
		tracer:                tp.Tracer("soundlens"),
		meter:                 mp.Meter("soundlens"),
		shutdownTraceProvider: tp.Shutdown,
		shutdownMeterProvider: mp.Shutdown,
	}
	p.initInstruments()
	return p, nil
}

// Noop returns a disabled provider whose instruments discard everything.
func Noop() *Provider {
	p := &Provider{
		tracer: tracenoop.NewTracerProvider().Tracer(""),
		meter:  metricnoop.NewMeterProvider().Meter(""),
	}
	p.initInstruments()
	return p
}

func (p *Provider) initInstruments() {
	// Telemetry is best-effort; instrument errors leave nil instruments behind
	// which the record helpers skip.
	p.requestsCounter, _ = p.meter.Int64Counter("soundlens_requests_total")
	p.requestDuration, _ = p.meter.Float64Histogram("soundlens_request_duration_ms")
	p.stageDuration, _ = p.meter.Float64Histogram("soundlens_stage_duration_ms")
	p.fallbackCounter, _ = p.meter.Int64Counter("soundlens_content_fallback_total")
	p.eventsDroppedCounter, _ = p.meter.Int64Counter("soundlens_events_dropped_total")
}

// Tracer returns the tracer.
func (p *Provider) Tracer() trace.Tracer {
	if p == nil {
		return tracenoop.NewTracerProvider().Tracer("")
	}
	return p.tracer
}

// Meter returns the meter.
func (p *Provider) Meter() metric.Meter {
	if p == nil {
		return metricnoop.NewMeterProvider().Meter("")
	}
	return p.meter
}

// StartSpan opens a span carrying only attributes that pass SafeAttributes.
func (p *Provider) StartSpan(ctx context.Context, name string, attrs map[string]interface{}) (context.Context, trace.Span) {
	return p.Tracer().Start(ctx, name, trace.WithAttributes(SafeAttributes(attrs)...))
}

// Shutdown flushes providers.
func (p *Provider) Shutdown(ctx context.Context) {
	if p == nil {
		return
	}
	if p.shutdownTraceProvider != nil {
		_ = p.shutdownTraceProvider(ctx)
	}
	if p.shutdownMeterProvider != nil {
		_ = p.shutdownMeterProvider(ctx)
	}
}

// RecordRequest counts one pipeline run and its total latency.
func (p *Provider) RecordRequest(ctx context.Context, outcome, format, label string, durMs float64) {
	if p == nil || p.requestsCounter == nil {
		return
	}
	labels := metric.WithAttributes(
		attribute.String("soundlens.outcome", outcome),
		attribute.String("soundlens.format", format),
		attribute.String("soundlens.label", label),
	)
	p.requestsCounter.Add(ctx, 1, labels)
	if p.requestDuration != nil {
		p.requestDuration.Record(ctx, durMs, labels)
	}
}

// RecordStage records the latency of one pipeline stage (decode, spectrogram, inference).
func (p *Provider) RecordStage(ctx context.Context, stage string, durMs float64) {
	if p == nil || p.stageDuration == nil {
		return
	}
	p.stageDuration.Record(ctx, durMs, metric.WithAttributes(attribute.String("soundlens.stage", stage)))
}

// RecordFallback counts a label served with placeholder content.
func (p *Provider) RecordFallback(ctx context.Context, label string) {
	if p == nil || p.fallbackCounter == nil {
		return
	}
	p.fallbackCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("soundlens.label", label)))
}

// RecordEventDropped counts events discarded because the emitter queue was full.
func (p *Provider) RecordEventDropped(ctx context.Context) {
	if p == nil || p.eventsDroppedCounter == nil {
		return
	}
	p.eventsDroppedCounter.Add(ctx, 1)
}
