package observability

import (
	"context"
	"fmt"
	"os"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

// TelemetryConfig controls trace export. Sessions and served connections
// become spans; nothing is exported unless Enabled is set.
type TelemetryConfig struct {
	Enabled     bool
	Endpoint    string
	ServiceName string
	Version     string
	Commit      string
	Environment string
}

// TelemetryFromEnv builds a config from OTEL_ENABLED (or TETHER_TELEMETRY),
// OTEL_SERVICE_NAME, OTEL_ENVIRONMENT and TETHER_OTEL_ENDPOINT. The
// standard OTEL_EXPORTER_OTLP_* variables are read by the exporter itself.
func TelemetryFromEnv(version, commit string) *TelemetryConfig {
	return &TelemetryConfig{
		Enabled:     IsTelemetryEnabled(),
		Endpoint:    os.Getenv("TETHER_OTEL_ENDPOINT"),
		ServiceName: os.Getenv("OTEL_SERVICE_NAME"),
		Version:     version,
		Commit:      commit,
		Environment: os.Getenv("OTEL_ENVIRONMENT"),
	}
}

// TelemetryShutdown flushes pending spans and restores the previous globals.
type TelemetryShutdown func(ctx context.Context) error

// SetupTelemetry installs a batching OTLP/HTTP tracer provider. A nil or
// disabled config leaves the global noop provider in place.
func SetupTelemetry(ctx context.Context, cfg *TelemetryConfig) (TelemetryShutdown, error) {
	if cfg == nil || !cfg.Enabled {
		return noopShutdown, nil
	}

	res, err := resource.Merge(resource.Default(), resource.NewSchemaless(resourceAttrs(cfg)...))
	if err != nil {
		return noopShutdown, fmt.Errorf("merge otel resource: %w", err)
	}

	opts := []otlptracehttp.Option{otlptracehttp.WithCompression(otlptracehttp.GzipCompression)}
	if cfg.Endpoint != "" {
		opts = append(opts, otlptracehttp.WithEndpoint(cfg.Endpoint))
	}

	exporter, err := otlptracehttp.New(ctx, opts...)
	if err != nil {
		return noopShutdown, fmt.Errorf("create otel exporter: %w", err)
	}

	prevProvider := otel.GetTracerProvider()
	prevPropagator := otel.GetTextMapPropagator()
	prevHandler := otel.GetErrorHandler()

	provider := sdktrace.NewTracerProvider(sdktrace.WithBatcher(exporter), sdktrace.WithResource(res))

	otel.SetTracerProvider(provider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{}))
	// Export failures must never reach a terminal in raw mode.
	otel.SetErrorHandler(otel.ErrorHandlerFunc(func(error) {}))

	return func(shutdownCtx context.Context) error {
		err := provider.Shutdown(shutdownCtx)

		otel.SetTracerProvider(prevProvider)
		otel.SetTextMapPropagator(prevPropagator)
		otel.SetErrorHandler(prevHandler)

		if err != nil {
			return fmt.Errorf("shutdown otel provider: %w", err)
		}

		return nil
	}, nil
}

func resourceAttrs(cfg *TelemetryConfig) []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		attribute.String("service.name", orDefault(cfg.ServiceName, "tether")),
		attribute.String("service.version", cfg.Version),
		attribute.String("service.namespace", "tether"),
		attribute.String("deployment.environment", orDefault(cfg.Environment, "development")),
	}

	if cfg.Commit != "" {
		attrs = append(attrs, attribute.String("service.commit", cfg.Commit))
	}

	return attrs
}

// Tracer returns a named tracer from the global provider.
func Tracer(name string) trace.Tracer {
	return otel.GetTracerProvider().Tracer(name)
}

// IsTelemetryEnabled reports whether OTEL_ENABLED or TETHER_TELEMETRY is
// set to a true value.
func IsTelemetryEnabled() bool {
	for _, key := range []string{"OTEL_ENABLED", "TETHER_TELEMETRY"} {
		switch strings.ToLower(strings.TrimSpace(os.Getenv(key))) {
		case "1", "true", "yes", "on":
			return true
		}
	}

	return false
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}

	return v
}

func noopShutdown(context.Context) error { return nil }
