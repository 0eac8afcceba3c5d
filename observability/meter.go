package observability

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/kbukum/gokit-discovery/logger"
)

// MeterConfig configures the OpenTelemetry meter provider.
type MeterConfig struct {
	// ServiceName is the name of the service.
	ServiceName string
	// ServiceVersion is the version of the service.
	ServiceVersion string
	// Environment is the deployment environment (dev, staging, prod).
	Environment string
	// Endpoint is the OTLP HTTP endpoint host:port (e.g., "localhost:4318").
	Endpoint string
	// Insecure allows insecure connections (for development).
	Insecure bool
	// Interval is the metric export interval.
	Interval time.Duration
}

// DefaultMeterConfig returns sensible defaults for development.
func DefaultMeterConfig(serviceName string) MeterConfig {
	return MeterConfig{
		ServiceName:    serviceName,
		ServiceVersion: "0.1.0",
		Environment:    "development",
		Endpoint:       "localhost:4318",
		Insecure:       true,
		Interval:       15 * time.Second,
	}
}

// InitMeter initializes the OpenTelemetry meter provider.
// Returns a MeterProvider that should be shut down on application exit.
func InitMeter(ctx context.Context, config *MeterConfig, log *logger.Logger) (*sdkmetric.MeterProvider, error) {
	opts := []otlpmetrichttp.Option{
		otlpmetrichttp.WithEndpoint(config.Endpoint),
	}
	if config.Insecure {
		opts = append(opts, otlpmetrichttp.WithInsecure())
	}

	exporter, err := otlpmetrichttp.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating metric exporter: %w", err)
	}

	res, err := newResource(config.ServiceName, config.ServiceVersion, config.Environment)
	if err != nil {
		return nil, fmt.Errorf("creating resource: %w", err)
	}

	readerOpts := []sdkmetric.PeriodicReaderOption{}
	if config.Interval > 0 {
		readerOpts = append(readerOpts, sdkmetric.WithInterval(config.Interval))
	}

	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter, readerOpts...)),
		sdkmetric.WithResource(res),
	)

	otel.SetMeterProvider(mp)

	logger.OrNop(log).Info("meter initialized", logger.Fields(
		"service", config.ServiceName,
		"endpoint", config.Endpoint,
		"interval", config.Interval.String(),
	))

	return mp, nil
}

// Meter returns a named meter from the global provider.
func Meter(name string) metric.Meter {
	return otel.Meter(name)
}

// Metrics holds the instruments of the discovery core and its admin API.
type Metrics struct {
	requestTotal      metric.Int64Counter
	requestDuration   metric.Float64Histogram
	requestActive     metric.Int64UpDownCounter
	discoveryTotal    metric.Int64Counter
	discoveryDuration metric.Float64Histogram
	pullTotal         metric.Int64Counter
	pullDuration      metric.Float64Histogram
	isolationTotal    metric.Int64Counter
	errorTotal        metric.Int64Counter
}

// NewMetrics creates metric instruments on the given meter.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{}
	var err error

	if m.requestTotal, err = meter.Int64Counter("request.total",
		metric.WithDescription("Total number of admin API requests"),
	); err != nil {
		return nil, fmt.Errorf("creating request.total counter: %w", err)
	}
	if m.requestDuration, err = meter.Float64Histogram("request.duration",
		metric.WithDescription("Duration of admin API requests in seconds"),
		metric.WithUnit("s"),
	); err != nil {
		return nil, fmt.Errorf("creating request.duration histogram: %w", err)
	}
	if m.requestActive, err = meter.Int64UpDownCounter("request.active",
		metric.WithDescription("Number of in-flight admin API requests"),
	); err != nil {
		return nil, fmt.Errorf("creating request.active gauge: %w", err)
	}
	if m.discoveryTotal, err = meter.Int64Counter("discovery.total",
		metric.WithDescription("Total number of discovery tree resolutions"),
	); err != nil {
		return nil, fmt.Errorf("creating discovery.total counter: %w", err)
	}
	if m.discoveryDuration, err = meter.Float64Histogram("discovery.duration",
		metric.WithDescription("Duration of discovery tree resolutions in seconds"),
		metric.WithUnit("s"),
	); err != nil {
		return nil, fmt.Errorf("creating discovery.duration histogram: %w", err)
	}
	if m.pullTotal, err = meter.Int64Counter("registry.pull.total",
		metric.WithDescription("Total number of registry pulls"),
	); err != nil {
		return nil, fmt.Errorf("creating registry.pull.total counter: %w", err)
	}
	if m.pullDuration, err = meter.Float64Histogram("registry.pull.duration",
		metric.WithDescription("Duration of registry pulls in seconds"),
		metric.WithUnit("s"),
	); err != nil {
		return nil, fmt.Errorf("creating registry.pull.duration histogram: %w", err)
	}
	if m.isolationTotal, err = meter.Int64Counter("instance.isolation.total",
		metric.WithDescription("Total number of instance isolations"),
	); err != nil {
		return nil, fmt.Errorf("creating instance.isolation.total counter: %w", err)
	}
	if m.errorTotal, err = meter.Int64Counter("error.total",
		metric.WithDescription("Total errors by type and component"),
	); err != nil {
		return nil, fmt.Errorf("creating error.total counter: %w", err)
	}
	return m, nil
}

// RecordRequestStart increments the active request count.
func (m *Metrics) RecordRequestStart(ctx context.Context) {
	m.requestActive.Add(ctx, 1)
}

// RecordRequestEnd decrements active requests and records the completed request.
func (m *Metrics) RecordRequestEnd(ctx context.Context, service, method, status string, duration time.Duration) {
	attrs := metric.WithAttributes(
		attribute.String("service", service),
		attribute.String("method", method),
		attribute.String("status", status),
	)
	m.requestActive.Add(ctx, -1)
	m.requestTotal.Add(ctx, 1, attrs)
	m.requestDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(
		attribute.String("service", service),
		attribute.String("method", method),
	))
}

// RecordDiscovery records one tree resolution.
func (m *Metrics) RecordDiscovery(appID, serviceName string, empty bool, elapsed time.Duration) {
	ctx := context.Background()
	result := "ok"
	if empty {
		result = "empty"
	}
	m.discoveryTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String(AttrAppID, appID),
		attribute.String(AttrService, serviceName),
		attribute.String("result", result),
	))
	m.discoveryDuration.Record(ctx, elapsed.Seconds(), metric.WithAttributes(
		attribute.String(AttrAppID, appID),
		attribute.String(AttrService, serviceName),
	))
}

// RecordPull records one registry pull.
func (m *Metrics) RecordPull(appID, serviceName string, err error, elapsed time.Duration) {
	ctx := context.Background()
	status := "ok"
	if err != nil {
		status = "error"
		m.RecordError(ctx, "pull", "consumer")
	}
	m.pullTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String(AttrAppID, appID),
		attribute.String(AttrService, serviceName),
		attribute.String(AttrStatus, status),
	))
	m.pullDuration.Record(ctx, elapsed.Seconds(), metric.WithAttributes(
		attribute.String(AttrAppID, appID),
		attribute.String(AttrService, serviceName),
	))
}

// RecordIsolation records one instance isolation.
func (m *Metrics) RecordIsolation(ctx context.Context, reason string) {
	m.isolationTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
}

// RecordError records an error by type and component.
func (m *Metrics) RecordError(ctx context.Context, errType, component string) {
	m.errorTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("type", errType),
		attribute.String("component", component),
	))
}
