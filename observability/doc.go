// Package observability provides OpenTelemetry tracing and metrics for the
// discovery core and its admin API.
//
// Tracing:
//
//	tp, err := observability.InitTracer(ctx, &cfg, log)
//	defer tp.Shutdown(ctx)
//
//	ctx, span := observability.StartSpan(ctx, observability.SpanRegistryPull)
//	defer span.End()
//
// Metrics:
//
//	mp, err := observability.InitMeter(ctx, &cfg, log)
//	defer mp.Shutdown(ctx)
//
//	metrics, err := observability.NewMetrics(observability.Meter("discovery"))
//	tree := discovery.NewTree(source, log, filters, discovery.WithRecorder(metrics))
//
// Health:
//
//	health := observability.NewServiceHealth("discoveryctl", version)
//	for _, h := range components.HealthAll(ctx) {
//		health.AddComponent(h)
//	}
package observability
