package resolver

import (
	"github.com/kbukum/gokit-discovery/event"
	"github.com/kbukum/gokit-discovery/observability"
	"github.com/kbukum/gokit-discovery/registry"
)

// Option configures a Resolver.
type Option func(*Resolver)

// WithClient uses client instead of opening the configured backend. The
// resolver does not close an injected client.
func WithClient(client registry.Client) Option {
	return func(r *Resolver) { r.client = client }
}

// WithBus shares an existing event bus.
func WithBus(bus *event.Bus) Option {
	return func(r *Resolver) { r.bus = bus }
}

// WithMetrics records discovery, pull and isolation measurements.
func WithMetrics(m *observability.Metrics) Option {
	return func(r *Resolver) { r.metrics = m }
}
