package resolver

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/kbukum/gokit-discovery/component"
	"github.com/kbukum/gokit-discovery/config"
	"github.com/kbukum/gokit-discovery/consumer"
	"github.com/kbukum/gokit-discovery/discovery"
	"github.com/kbukum/gokit-discovery/discovery/filter"
	"github.com/kbukum/gokit-discovery/event"
	"github.com/kbukum/gokit-discovery/instancecache"
	"github.com/kbukum/gokit-discovery/logger"
	"github.com/kbukum/gokit-discovery/observability"
	"github.com/kbukum/gokit-discovery/registry"
	"github.com/kbukum/gokit-discovery/resilience"
	"github.com/kbukum/gokit-discovery/version"
)

const componentName = "resolver"

var (
	_ component.Component   = (*Resolver)(nil)
	_ component.Describable = (*Resolver)(nil)
)

// Resolver is the process root of the discovery core.
type Resolver struct {
	cfg        *config.Discovery
	log        *logger.Logger
	bus        *event.Bus
	client     registry.Client
	ownsClient bool
	metrics    *observability.Metrics

	rules     *version.RuleCache
	instances *instancecache.Manager
	apps      *consumer.AppManager
	isolation *filter.IsolationFilter
	endpoints *filter.EndpointFilter
	tree      *discovery.Tree
	breaker   *resilience.InstanceBreaker

	mu       sync.Mutex
	running  bool
	runCtx   context.Context
	cancel   context.CancelFunc
	unsubs   []func()
	watchers map[string]context.CancelFunc
	wg       sync.WaitGroup

	registryDown atomic.Bool
	lastErr      atomic.Pointer[string]
}

// New assembles a resolver from cfg. The registry backend is opened unless
// a client is injected with WithClient.
func New(cfg *config.Discovery, log *logger.Logger, opts ...Option) (*Resolver, error) {
	if cfg == nil {
		cfg = &config.Discovery{}
		cfg.ApplyDefaults()
	}
	r := &Resolver{
		cfg:      cfg,
		log:      logger.OrNop(log).WithComponent(componentName),
		watchers: make(map[string]context.CancelFunc),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.bus == nil {
		r.bus = event.NewBus()
	}
	if r.client == nil {
		client, err := registry.Open(cfg.Registry.Backend, cfg.Registry.Provider(), log)
		if err != nil {
			return nil, err
		}
		r.client = client
		r.ownsClient = true
	}

	r.rules = version.NewRuleCache()
	r.instances = instancecache.NewManager(r.client, log,
		instancecache.WithPullTimeout(cfg.Pull.Timeout),
		instancecache.WithRuleCache(r.rules))

	appOpts := []consumer.Option{
		consumer.WithPullTimeout(cfg.Pull.Timeout),
		consumer.WithFirstPullWait(cfg.Pull.FirstWait),
		consumer.WithRuleCache(r.rules),
		consumer.WithTrackHook(r.onTracked),
	}
	treeOpts := []discovery.Option{discovery.WithRuleCache(r.rules)}
	if r.metrics != nil {
		appOpts = append(appOpts, consumer.WithPullRecorder(r.metrics))
		treeOpts = append(treeOpts, discovery.WithRecorder(r.metrics))
	}
	r.apps = consumer.NewAppManager(r.client, log, appOpts...)

	r.isolation = filter.NewIsolationFilter(cfg.Isolation, r.bus, log)
	r.endpoints = filter.NewEndpointFilter(cfg.Endpoint, log)
	r.tree = discovery.NewTree(r.apps, log, []discovery.Filter{
		filter.NewVersionRuleFilter(),
		filter.NewPriorityPropertyFilter(cfg.Priority, log),
		r.isolation,
		r.endpoints,
	}, treeOpts...)
	r.breaker = resilience.NewInstanceBreaker(cfg.Breaker, r.bus, log)
	return r, nil
}

// Name implements component.Component.
func (r *Resolver) Name() string { return componentName }

// Start subscribes the core to the bus, warms the configured targets up and
// starts the background loops. A failed warm-up is logged; lookups then
// start empty and fill with the next successful pull.
func (r *Resolver) Start(ctx context.Context) error {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return fmt.Errorf("resolver already started")
	}
	r.running = true
	r.runCtx, r.cancel = context.WithCancel(context.Background())
	r.unsubs = []func(){
		r.apps.Subscribe(r.bus),
		r.instances.Subscribe(r.bus),
		r.bus.OnInstanceChanged(r.breaker.OnInstanceChanged),
		r.bus.OnException(r.onException),
		r.bus.OnRecovery(r.onRecovery),
	}
	if r.metrics != nil {
		r.unsubs = append(r.unsubs, r.bus.OnInstanceIsolated(func(event.InstanceIsolatedEvent) {
			r.metrics.RecordIsolation(context.Background(), "breaker")
		}))
	}
	r.mu.Unlock()

	// Services tracked before Start get their watchers now.
	for _, m := range r.apps.Managers() {
		for _, mv := range m.Services() {
			r.onTracked(mv.AppID(), mv.ServiceName())
		}
	}

	r.warmup(ctx)

	if r.cfg.Pull.Interval > 0 {
		r.goLoop(r.cfg.Pull.Interval, r.tick)
	}
	if _, ok := r.client.(registry.Pinger); ok && r.cfg.Registry.HealthInterval > 0 {
		r.goLoop(r.cfg.Registry.HealthInterval, r.probe)
	}

	r.log.Info("resolver started", logger.Fields(
		"backend", r.cfg.Registry.Backend,
		"targets", len(r.cfg.Targets),
		"pull_interval", r.cfg.Pull.Interval.String()))
	return nil
}

// Stop cancels the background loops and watchers, detaches from the bus and
// closes an owned registry client.
func (r *Resolver) Stop(ctx context.Context) error {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return nil
	}
	r.running = false
	r.cancel()
	for _, u := range r.unsubs {
		u()
	}
	r.unsubs = nil
	r.watchers = make(map[string]context.CancelFunc)
	r.mu.Unlock()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		r.log.Warn("stop deadline reached before background loops finished")
	}

	r.isolation.Close()
	r.instances.CleanUp()
	if r.ownsClient {
		if err := r.client.Close(); err != nil {
			return fmt.Errorf("close registry client: %w", err)
		}
	}
	r.log.Info("resolver stopped")
	return nil
}

// Health implements component.Component. A reachable registry is healthy;
// an unreachable one degrades the resolver since it keeps serving the
// last known data.
func (r *Resolver) Health(context.Context) component.Health {
	r.mu.Lock()
	running := r.running
	r.mu.Unlock()
	if !running {
		return component.Health{Name: componentName, Status: component.StatusUnhealthy, Message: "not started"}
	}
	if r.registryDown.Load() || r.instances.Unavailable() {
		msg := "registry unavailable, serving cached data"
		if last := r.lastErr.Load(); last != nil {
			msg += ": " + *last
		}
		return component.Health{Name: componentName, Status: component.StatusDegraded, Message: msg}
	}
	return component.Health{Name: componentName, Status: component.StatusHealthy}
}

// Describe implements component.Describable.
func (r *Resolver) Describe() component.Description {
	_, watches := r.client.(event.Watcher)
	return component.Description{
		Name: "Discovery Resolver",
		Type: "resolver",
		Details: fmt.Sprintf("backend=%s app=%s pull=%s watch=%t isolation=%t",
			r.cfg.Registry.Backend, r.cfg.AppID, r.cfg.Pull.Interval,
			r.cfg.Registry.Watch && watches, r.cfg.Isolation.Enabled),
	}
}

// Bus returns the event bus the core is subscribed to.
func (r *Resolver) Bus() *event.Bus { return r.bus }

// Tree returns the discovery tree.
func (r *Resolver) Tree() *discovery.Tree { return r.tree }

// Apps returns the version-aware lookup path.
func (r *Resolver) Apps() *consumer.AppManager { return r.apps }

// Instances returns the instance cache lookup path.
func (r *Resolver) Instances() *instancecache.Manager { return r.instances }

// Breaker returns the per-instance failure detector.
func (r *Resolver) Breaker() *resilience.InstanceBreaker { return r.breaker }
