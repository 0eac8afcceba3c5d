package observability

import (
	"context"
	"fmt"
	"testing"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric/noop"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/kbukum/gokit-discovery/component"
	"github.com/kbukum/gokit-discovery/logger"
)

func TestDefaultTracerConfig(t *testing.T) {
	cfg := DefaultTracerConfig("discoveryctl")

	if cfg.ServiceName != "discoveryctl" {
		t.Errorf("expected ServiceName 'discoveryctl', got %s", cfg.ServiceName)
	}
	if cfg.Endpoint != "localhost:4318" {
		t.Errorf("expected Endpoint 'localhost:4318', got %s", cfg.Endpoint)
	}
	if cfg.SampleRate != 1.0 {
		t.Errorf("expected SampleRate 1.0, got %f", cfg.SampleRate)
	}
	if !cfg.Insecure {
		t.Error("expected Insecure to be true")
	}
}

func TestDefaultMeterConfig(t *testing.T) {
	cfg := DefaultMeterConfig("discoveryctl")

	if cfg.ServiceName != "discoveryctl" {
		t.Errorf("expected ServiceName 'discoveryctl', got %s", cfg.ServiceName)
	}
	if cfg.Interval != 15*time.Second {
		t.Errorf("expected Interval 15s, got %v", cfg.Interval)
	}
}

func TestNewMetrics(t *testing.T) {
	metrics, err := NewMetrics(noop.NewMeterProvider().Meter("test"))
	if err != nil {
		t.Fatalf("unexpected error creating metrics: %v", err)
	}

	ctx := context.Background()
	metrics.RecordRequestStart(ctx)
	metrics.RecordRequestEnd(ctx, "admin", "GET /healthz", "ok", 100*time.Millisecond)
	metrics.RecordDiscovery("shop", "orders", false, time.Millisecond)
	metrics.RecordDiscovery("shop", "orders", true, time.Millisecond)
	metrics.RecordPull("shop", "orders", nil, 20*time.Millisecond)
	metrics.RecordPull("shop", "orders", fmt.Errorf("timeout"), 20*time.Millisecond)
	metrics.RecordIsolation(ctx, "consecutive_failures")
	metrics.RecordError(ctx, "validation", "admin")
}

func TestOperationContextRoundTrip(t *testing.T) {
	oc := NewOperationContext("admin", "discover", "req-1", nil)
	ctx := WithOperationContext(context.Background(), oc)

	if got := OperationContextFromContext(ctx); got != oc {
		t.Fatal("expected the stored operation context")
	}
	if OperationContextFromContext(context.Background()) != nil {
		t.Error("expected nil without a stored operation context")
	}
	if oc.Duration() < 0 {
		t.Error("duration must not be negative")
	}
}

func TestOperationContextSpans(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	defer otel.SetTracerProvider(prev)

	metrics, _ := NewMetrics(noop.NewMeterProvider().Meter("test"))
	oc := NewOperationContext("admin", "discover", "req-2", metrics)
	ctx, span := oc.StartSpanForOperation(context.Background(), SpanHTTPRequest)
	SetSpanAttribute(ctx, AttrAppID, "shop")
	SetSpanAttribute(ctx, AttrInstances, 3)
	oc.EndOperation(ctx, span, "error", fmt.Errorf("boom"))

	spans := exporter.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}
	if spans[0].Name != SpanHTTPRequest {
		t.Errorf("unexpected span name %q", spans[0].Name)
	}
	if len(spans[0].Events) == 0 {
		t.Error("expected the error to be recorded")
	}
}

func TestSpanHelpersWithoutSpan(t *testing.T) {
	ctx := context.Background()
	SetSpanAttribute(ctx, AttrService, "orders")
	SetSpanError(ctx, fmt.Errorf("ignored"))
}

func TestServiceHealth(t *testing.T) {
	tests := []struct {
		name     string
		statuses []component.HealthStatus
		want     HealthStatus
	}{
		{"all healthy", []component.HealthStatus{component.StatusHealthy, component.StatusHealthy}, HealthStatusUp},
		{"degraded", []component.HealthStatus{component.StatusHealthy, component.StatusDegraded}, HealthStatusDegraded},
		{"down wins", []component.HealthStatus{component.StatusUnhealthy, component.StatusDegraded}, HealthStatusDown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sh := NewServiceHealth("discoveryctl", "0.1.0")
			for i, s := range tt.statuses {
				sh.AddComponent(component.Health{Name: fmt.Sprintf("c%d", i), Status: s})
			}
			if sh.Status != tt.want {
				t.Errorf("expected %s, got %s", tt.want, sh.Status)
			}
			if len(sh.Components) != len(tt.statuses) {
				t.Errorf("expected %d components, got %d", len(tt.statuses), len(sh.Components))
			}
		})
	}
}

func TestInitTracerSamplingRates(t *testing.T) {
	for _, rate := range []float64{1.0, 0.0, 0.5} {
		t.Run(fmt.Sprintf("rate %.1f", rate), func(t *testing.T) {
			cfg := DefaultTracerConfig("test")
			cfg.SampleRate = rate
			tp, err := InitTracer(context.Background(), &cfg, logger.NewNop())
			if err != nil {
				t.Skipf("InitTracer failed (schema conflict): %v", err)
			}
			defer tp.Shutdown(context.Background())
		})
	}
}

func TestInitMeter(t *testing.T) {
	cfg := DefaultMeterConfig("test")
	cfg.Interval = 0
	mp, err := InitMeter(context.Background(), &cfg, logger.NewNop())
	if err != nil {
		t.Skipf("InitMeter failed (schema conflict): %v", err)
	}
	defer mp.Shutdown(context.Background())
}
