package resolver

import (
	"context"
	"sort"
	"time"

	"github.com/kbukum/gokit-discovery/errors"
	"github.com/kbukum/gokit-discovery/event"
	"github.com/kbukum/gokit-discovery/logger"
	"github.com/kbukum/gokit-discovery/registry"
	"github.com/kbukum/gokit-discovery/resilience"
)

// warmup tracks the configured targets and pulls them with retries.
func (r *Resolver) warmup(ctx context.Context) {
	if len(r.cfg.Targets) == 0 {
		return
	}
	for _, t := range r.cfg.Targets {
		appID := t.AppID
		if appID == "" {
			appID = r.cfg.AppID
		}
		app, svc := registry.SplitServiceName(appID, t.ServiceName)
		if _, err := r.apps.GetOrCreateMicroserviceManager(app).GetOrCreateMicroserviceVersionRule(svc, t.Rule()); err != nil {
			r.log.Error("invalid target", logger.Fields(
				logger.FieldAppID, app, logger.FieldService, svc, logger.FieldError, err.Error()))
		}
	}

	retry := r.cfg.Pull.Warmup
	retry.OnRetry = func(attempt int, err error, backoff time.Duration) {
		r.log.Warn("warm-up pull failed, retrying", logger.Fields(
			"attempt", attempt, "backoff", backoff.String(), logger.FieldError, err.Error()))
	}
	err := resilience.RetryFunc(ctx, retry, func() error {
		pullCtx, cancel := context.WithTimeout(ctx, r.cfg.Pull.Timeout)
		defer cancel()
		return r.apps.PullAll(pullCtx)
	})
	if err != nil {
		r.log.Warn("warm-up incomplete, continuing with partial data", logger.ErrorFields("warmup", err))
		if !errors.HasCode(err, errors.ErrCodeServiceNotFound) {
			r.bus.PublishException(event.ExceptionEvent{Err: err, At: time.Now()})
		}
	}
}

// goLoop runs fn every interval until the resolver stops.
func (r *Resolver) goLoop(interval time.Duration, fn func(context.Context)) {
	ctx := r.runCtx
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				fn(ctx)
			}
		}
	}()
}

// tick drives the periodic pull, expires isolation records and drops
// watchers of services that are no longer tracked.
func (r *Resolver) tick(context.Context) {
	r.bus.PublishPeriodicPull(event.PeriodicPullEvent{At: time.Now()})
	if n := r.isolation.Sweep(); n > 0 {
		r.log.Debug("isolation records expired", logger.Fields("count", n))
	}
	r.reconcileWatchers()
}

// probe pings the registry and turns the outcome into exception and
// recovery events.
func (r *Resolver) probe(ctx context.Context) {
	pinger, ok := r.client.(registry.Pinger)
	if !ok {
		return
	}
	pingCtx, cancel := context.WithTimeout(ctx, r.cfg.Pull.Timeout)
	defer cancel()
	if err := pinger.Ping(pingCtx); err != nil {
		if ctx.Err() != nil {
			return
		}
		r.bus.PublishException(event.ExceptionEvent{Err: err, At: time.Now()})
		return
	}
	if r.registryDown.Load() {
		r.bus.PublishRecovery(event.RecoveryEvent{At: time.Now()})
	}
}

func (r *Resolver) onException(ev event.ExceptionEvent) {
	msg := "unknown error"
	if ev.Err != nil {
		msg = ev.Err.Error()
	}
	r.lastErr.Store(&msg)
	if !r.registryDown.Swap(true) {
		r.log.Warn("registry unavailable", logger.Fields(logger.FieldError, msg))
	}
	if r.metrics != nil {
		r.metrics.RecordError(context.Background(), "registry_unavailable", componentName)
	}
}

func (r *Resolver) onRecovery(event.RecoveryEvent) {
	if r.registryDown.Swap(false) {
		r.log.Info("registry recovered")
	}
}

// onTracked starts a watcher for a newly tracked service when watching is
// enabled, the backend supports it and the resolver runs.
func (r *Resolver) onTracked(appID, serviceName string) {
	watcher, ok := r.client.(event.Watcher)
	if !ok || !r.cfg.Registry.Watch {
		return
	}
	key := registry.Key(appID, serviceName)

	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.running {
		return
	}
	if _, exists := r.watchers[key]; exists {
		return
	}
	ctx, cancel := context.WithCancel(r.runCtx)
	r.watchers[key] = cancel

	fields := logger.ServiceFields(appID, serviceName)
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		r.log.Debug("watching service", fields)
		if err := watcher.Watch(ctx, appID, serviceName, r.bus); err != nil && ctx.Err() == nil {
			r.log.Warn("watch ended, falling back to periodic pull", logger.Fields(
				logger.FieldAppID, appID, logger.FieldService, serviceName, logger.FieldError, err.Error()))
		}
		r.mu.Lock()
		if ctx.Err() == nil {
			delete(r.watchers, key)
		}
		r.mu.Unlock()
		cancel()
	}()
}

// reconcileWatchers cancels watchers of services the app manager dropped
// and restarts the ones that ended.
func (r *Resolver) reconcileWatchers() {
	tracked := make(map[string][2]string)
	for _, m := range r.apps.Managers() {
		for _, mv := range m.Services() {
			tracked[registry.Key(mv.AppID(), mv.ServiceName())] = [2]string{mv.AppID(), mv.ServiceName()}
		}
	}

	r.mu.Lock()
	for key, cancel := range r.watchers {
		if _, ok := tracked[key]; !ok {
			cancel()
			delete(r.watchers, key)
		}
	}
	r.mu.Unlock()

	for _, svc := range tracked {
		r.onTracked(svc[0], svc[1])
	}
}

// Watched lists the services with a running watcher.
func (r *Resolver) Watched() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.watchers))
	for key := range r.watchers {
		out = append(out, key)
	}
	sort.Strings(out)
	return out
}
