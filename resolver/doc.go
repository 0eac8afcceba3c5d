// Package resolver assembles the discovery core into one lifecycle
// component.
//
// A Resolver owns the event bus, the registry client, both lookup paths
// (the instance cache manager and the version-aware app manager), the
// discovery tree with its version-rule, isolation and endpoint filters, and
// the per-instance breaker. Start subscribes everything to the bus, warms
// the configured targets up and runs the periodic pull, the registry health
// probe and, when the backend supports it, one watcher per tracked service.
//
//	r, err := resolver.New(cfg, log)
//	if err := r.Start(ctx); err != nil { ... }
//	defer r.Stop(ctx)
//
//	eps, err := r.Discover(nil, "shop", "orders", "1.0.0+", "rest")
//	err = call(eps[0])
//	r.RecordOutcome(eps[0], err)
package resolver
