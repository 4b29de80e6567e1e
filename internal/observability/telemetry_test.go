package observability_test

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/musher-dev/tether/internal/observability"
)

type stubPropagator struct{}

func (stubPropagator) Inject(context.Context, propagation.TextMapCarrier) {}

func (stubPropagator) Extract(ctx context.Context, _ propagation.TextMapCarrier) context.Context {
	return ctx
}

func (stubPropagator) Fields() []string { return nil }

type stubErrorHandler struct{}

func (stubErrorHandler) Handle(error) {}

// pinGlobals installs recognisable otel globals for the test and puts the
// real ones back afterwards.
func pinGlobals(t *testing.T) *sdktrace.TracerProvider {
	t.Helper()

	prevProvider := otel.GetTracerProvider()
	prevPropagator := otel.GetTextMapPropagator()
	prevHandler := otel.GetErrorHandler()

	pinned := sdktrace.NewTracerProvider()

	t.Cleanup(func() {
		_ = pinned.Shutdown(context.Background())

		otel.SetTracerProvider(prevProvider)
		otel.SetTextMapPropagator(prevPropagator)
		otel.SetErrorHandler(prevHandler)
	})

	otel.SetTracerProvider(pinned)
	otel.SetTextMapPropagator(stubPropagator{})
	otel.SetErrorHandler(stubErrorHandler{})

	return pinned
}

func assertGlobalsRestored(t *testing.T, pinned *sdktrace.TracerProvider) {
	t.Helper()

	if otel.GetTracerProvider() != pinned {
		t.Error("tracer provider was not restored")
	}

	if _, ok := otel.GetTextMapPropagator().(stubPropagator); !ok {
		t.Error("propagator was not restored")
	}

	if _, ok := otel.GetErrorHandler().(stubErrorHandler); !ok {
		t.Error("error handler was not restored")
	}
}

func TestSetupTelemetryOff(t *testing.T) {
	for name, cfg := range map[string]*observability.TelemetryConfig{
		"nil":      nil,
		"disabled": {Enabled: false, ServiceName: "ignored"},
	} {
		t.Run(name, func(t *testing.T) {
			pinned := pinGlobals(t)

			shutdown, err := observability.SetupTelemetry(t.Context(), cfg)
			if err != nil {
				t.Fatalf("SetupTelemetry() error = %v", err)
			}

			if otel.GetTracerProvider() != pinned {
				t.Fatal("disabled telemetry replaced the tracer provider")
			}

			if err := shutdown(t.Context()); err != nil {
				t.Fatalf("shutdown error = %v", err)
			}
		})
	}
}

func TestSetupTelemetryOnAndShutdown(t *testing.T) {
	pinned := pinGlobals(t)

	shutdown, err := observability.SetupTelemetry(t.Context(), &observability.TelemetryConfig{
		Enabled:     true,
		Endpoint:    "localhost:4318",
		ServiceName: "tether-test",
		Version:     "0.0.1",
		Commit:      "abc123",
		Environment: "test",
	})
	if err != nil {
		t.Fatalf("SetupTelemetry() error = %v", err)
	}

	tp := otel.GetTracerProvider()
	if _, isNoop := tp.(*noop.TracerProvider); isNoop || tp == pinned {
		t.Fatalf("tracer provider = %T, want a new sdk provider", tp)
	}

	if err := shutdown(t.Context()); err != nil {
		t.Fatalf("shutdown error = %v", err)
	}

	assertGlobalsRestored(t, pinned)
}

func TestShutdownRestoresGlobalsOnCanceledContext(t *testing.T) {
	pinned := pinGlobals(t)

	shutdown, err := observability.SetupTelemetry(t.Context(), &observability.TelemetryConfig{Enabled: true})
	if err != nil {
		t.Fatalf("SetupTelemetry() error = %v", err)
	}

	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	_ = shutdown(ctx)

	assertGlobalsRestored(t, pinned)
}

func TestIsTelemetryEnabled(t *testing.T) {
	tests := []struct {
		otel, tether string
		want         bool
	}{
		{"", "", false},
		{"true", "", true},
		{"  TRUE ", "", true},
		{"1", "", true},
		{"yes", "", true},
		{"off", "", false},
		{"0", "", false},
		{"", "on", true},
		{"false", "1", true},
		{"", "nope", false},
	}

	for _, tt := range tests {
		t.Run(tt.otel+"/"+tt.tether, func(t *testing.T) {
			t.Setenv("OTEL_ENABLED", tt.otel)
			t.Setenv("TETHER_TELEMETRY", tt.tether)

			if got := observability.IsTelemetryEnabled(); got != tt.want {
				t.Errorf("IsTelemetryEnabled() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestTelemetryFromEnv(t *testing.T) {
	t.Setenv("OTEL_ENABLED", "1")
	t.Setenv("TETHER_TELEMETRY", "")
	t.Setenv("TETHER_OTEL_ENDPOINT", "collector:4318")
	t.Setenv("OTEL_SERVICE_NAME", "tether-ci")
	t.Setenv("OTEL_ENVIRONMENT", "ci")

	cfg := observability.TelemetryFromEnv("1.2.3", "deadbeef")

	want := observability.TelemetryConfig{
		Enabled:     true,
		Endpoint:    "collector:4318",
		ServiceName: "tether-ci",
		Version:     "1.2.3",
		Commit:      "deadbeef",
		Environment: "ci",
	}

	if *cfg != want {
		t.Errorf("TelemetryFromEnv() = %+v, want %+v", *cfg, want)
	}
}

func TestTracerIsUsableWithoutSetup(t *testing.T) {
	_, span := observability.Tracer("tether.session").Start(t.Context(), "terminal.session")
	defer span.End()

	if span == nil {
		t.Fatal("Start() returned a nil span")
	}
}
