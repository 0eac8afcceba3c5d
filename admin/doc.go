// Package admin serves a read-only HTTP view of a running resolver.
//
// Routes:
//
//   - GET /healthz: aggregated component health
//   - GET /livez: process liveness
//   - GET /readyz: readiness, 503 while a component is unhealthy
//   - GET /v1/discovery/:app/:service?rule=&transport=: resolved endpoints
//   - GET /v1/versions/:app/:service?rule=: version selection of a rule
//   - GET /v1/instances/:app/:service?rule=: instance cache snapshot
//   - GET /v1/services: tracked services
//   - GET /v1/isolation: isolated instances and breaker counters
//
// Every request gets an X-Request-Id, is logged, traced and counted.
package admin
