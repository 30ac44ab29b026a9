package runtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.30.0"

	"github.com/loqalabs/loqa-reader/internal/config"
)

// telemetry owns the global tracer and meter providers for one runtime.
type telemetry struct {
	tracer  *sdktrace.TracerProvider
	meter   *sdkmetric.MeterProvider
	metrics http.Handler
}

func setupTelemetry(cfg config.Config, logger *slog.Logger) (*telemetry, error) {
	ctx := context.Background()
	res, err := resource.New(ctx,
		resource.WithHost(),
		resource.WithProcessRuntimeName(),
		resource.WithAttributes(
			semconv.ServiceName(cfg.RuntimeName),
			semconv.DeploymentEnvironmentName(cfg.Environment),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("build telemetry resource: %w", err)
	}

	tp, err := newTracerProvider(ctx, cfg.Telemetry, res, logger)
	if err != nil {
		return nil, err
	}
	mp, handler, err := newMeterProvider(res)
	if err != nil {
		_ = tp.Shutdown(ctx)
		return nil, err
	}

	otel.SetTracerProvider(tp)
	otel.SetMeterProvider(mp)
	return &telemetry{tracer: tp, meter: mp, metrics: handler}, nil
}

func traceExporter(cfg config.TelemetryConfig) string {
	name := strings.ToLower(strings.TrimSpace(cfg.TraceExporter))
	if name != "" {
		return name
	}
	if strings.TrimSpace(cfg.OTLPEndpoint) != "" {
		return "otlp"
	}
	return "none"
}

func newTracerProvider(ctx context.Context, cfg config.TelemetryConfig, res *resource.Resource, logger *slog.Logger) (*sdktrace.TracerProvider, error) {
	opts := []sdktrace.TracerProviderOption{
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.TraceSampleRatio))),
	}

	exporter := traceExporter(cfg)
	switch exporter {
	case "otlp":
		endpoint := strings.TrimSpace(cfg.OTLPEndpoint)
		clientOpts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(endpoint)}
		if cfg.OTLPInsecure {
			clientOpts = append(clientOpts, otlptracegrpc.WithInsecure())
		}
		exp, err := otlptracegrpc.New(ctx, clientOpts...)
		if err != nil {
			return nil, fmt.Errorf("create otlp exporter: %w", err)
		}
		opts = append(opts, sdktrace.WithBatcher(exp))
	case "stdout":
		// stderr keeps spans out of the JSON log stream on stdout.
		exp, err := stdouttrace.New(stdouttrace.WithWriter(os.Stderr))
		if err != nil {
			return nil, fmt.Errorf("create stdout exporter: %w", err)
		}
		opts = append(opts, sdktrace.WithBatcher(exp))
	}

	logger.Info("telemetry initialized",
		slog.String("trace_exporter", exporter),
		slog.Float64("sample_ratio", cfg.TraceSampleRatio))
	return sdktrace.NewTracerProvider(opts...), nil
}

// newMeterProvider serves OTel metrics alongside the Go and process
// collectors from a registry owned by this runtime.
func newMeterProvider(res *resource.Resource) (*sdkmetric.MeterProvider, http.Handler, error) {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	exporter, err := otelprom.New(otelprom.WithRegisterer(registry))
	if err != nil {
		return nil, nil, fmt.Errorf("create prometheus exporter: %w", err)
	}
	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(exporter),
		sdkmetric.WithResource(res),
	)
	return mp, promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry}), nil
}

// Shutdown flushes metrics and pending spans.
func (t *telemetry) Shutdown(ctx context.Context) error {
	if t == nil {
		return nil
	}
	return errors.Join(t.meter.Shutdown(ctx), t.tracer.Shutdown(ctx))
}
