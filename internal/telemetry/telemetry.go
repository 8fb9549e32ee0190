// Package telemetry configures optional OpenTelemetry trace export.
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	sdkresource "go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/neoclaw-ai/repcoach/internal/config"
	"github.com/neoclaw-ai/repcoach/internal/logging"
)

// Shutdown flushes and stops trace export.
type Shutdown func(context.Context) error

func noopShutdown(context.Context) error { return nil }

// Init installs a global TracerProvider exporting over OTLP/HTTP. An empty
// endpoint leaves the global no-op provider in place.
func Init(ctx context.Context, cfg config.TelemetryConfig, version string) (Shutdown, error) {
	endpoint := strings.TrimSpace(cfg.OTLPEndpoint)
	if endpoint == "" {
		return noopShutdown, nil
	}
	serviceName := strings.TrimSpace(cfg.ServiceName)
	if serviceName == "" {
		return nil, errors.New("telemetry service name is required")
	}

	opts, err := exporterOptions(endpoint)
	if err != nil {
		return nil, err
	}
	exporter, err := otlptracehttp.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create otlp exporter: %w", err)
	}

	tp, err := newTracerProvider(exporter, serviceName, version)
	if err != nil {
		_ = exporter.Shutdown(ctx)
		return nil, err
	}

	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{}))
	otel.SetTracerProvider(tp)
	logging.Logger().Info("trace export enabled", "endpoint", endpoint, "service", serviceName)
	return tp.Shutdown, nil
}

// exporterOptions accepts "http://host:port", "https://host:port" or a bare
// "host:port". Plain http and bare endpoints are exported without TLS.
func exporterOptions(endpoint string) ([]otlptracehttp.Option, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("parse otlp endpoint %q: %w", endpoint, err)
	}

	host := u.Host
	insecure := u.Scheme == "http"
	if host == "" {
		host = endpoint
		insecure = true
	}
	if u.Scheme != "" && u.Scheme != "http" && u.Scheme != "https" && u.Host != "" {
		return nil, fmt.Errorf("unsupported otlp endpoint scheme %q", u.Scheme)
	}

	opts := []otlptracehttp.Option{otlptracehttp.WithEndpoint(host)}
	if insecure {
		opts = append(opts, otlptracehttp.WithInsecure())
	}
	if u.Host != "" && u.Path != "" && u.Path != "/" {
		opts = append(opts, otlptracehttp.WithURLPath(u.Path))
	}
	return opts, nil
}

func newTracerProvider(exporter sdktrace.SpanExporter, serviceName, version string) (*sdktrace.TracerProvider, error) {
	res, err := sdkresource.New(context.Background(), sdkresource.WithAttributes(
		attribute.String("service.name", serviceName),
		attribute.String("service.version", version),
	))
	if err != nil {
		return nil, fmt.Errorf("build trace resource: %w", err)
	}

	return sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.AlwaysSample())),
		sdktrace.WithResource(res),
		sdktrace.WithBatcher(exporter),
	), nil
}
