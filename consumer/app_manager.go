package consumer

import (
	"context"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kbukum/gokit-discovery/discovery"
	"github.com/kbukum/gokit-discovery/event"
	"github.com/kbukum/gokit-discovery/logger"
	"github.com/kbukum/gokit-discovery/registry"
	"github.com/kbukum/gokit-discovery/version"
)

const (
	// DefaultPullTimeout bounds one asynchronous pull.
	DefaultPullTimeout = 10 * time.Second
	// DefaultFirstPullWait is how long Resolve waits for the first pull of a
	// newly tracked service.
	DefaultFirstPullWait = 3 * time.Second
)

// PullRecorder receives the outcome of every registry pull.
type PullRecorder interface {
	RecordPull(appID, serviceName string, err error, elapsed time.Duration)
}

// Option configures an AppManager.
type Option func(*AppManager)

func WithPullTimeout(d time.Duration) Option {
	return func(a *AppManager) {
		if d > 0 {
			a.pullTimeout = d
		}
	}
}

// WithFirstPullWait sets how long Resolve blocks on a new service. Zero
// returns immediately with whatever the rule holds.
func WithFirstPullWait(d time.Duration) Option {
	return func(a *AppManager) { a.firstPullWait = d }
}

func WithRuleCache(rules *version.RuleCache) Option {
	return func(a *AppManager) { a.rules = rules }
}

func WithPullRecorder(r PullRecorder) Option {
	return func(a *AppManager) { a.recorder = r }
}

// WithTrackHook is called once for every newly tracked service.
func WithTrackHook(fn func(appID, serviceName string)) Option {
	return func(a *AppManager) { a.onTracked = fn }
}

// AppManager is the entry point of version resolution. It lazily tracks every
// service that is asked for.
type AppManager struct {
	client        registry.Client
	rules         *version.RuleCache
	log           *logger.Logger
	pullTimeout   time.Duration
	firstPullWait time.Duration
	recorder      PullRecorder
	onTracked     func(appID, serviceName string)

	mu   sync.RWMutex
	apps map[string]*MicroserviceManager
}

// NewAppManager creates an AppManager pulling from client.
func NewAppManager(client registry.Client, log *logger.Logger, opts ...Option) *AppManager {
	a := &AppManager{
		client:        client,
		rules:         version.NewRuleCache(),
		log:           logger.OrNop(log).WithComponent("app-manager"),
		pullTimeout:   DefaultPullTimeout,
		firstPullWait: DefaultFirstPullWait,
		apps:          make(map[string]*MicroserviceManager),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Subscribe attaches the manager to the bus and returns a func that detaches it.
func (a *AppManager) Subscribe(bus *event.Bus) func() {
	unsubs := []func(){
		bus.OnPeriodicPull(func(event.PeriodicPullEvent) {
			for _, m := range a.Managers() {
				m.OnPeriodicPull()
			}
		}),
		bus.OnRecovery(func(event.RecoveryEvent) {
			for _, m := range a.Managers() {
				m.OnRecovery()
			}
		}),
		bus.OnInstanceChanged(a.onInstanceChanged),
	}
	return func() {
		for _, u := range unsubs {
			u()
		}
	}
}

// GetOrCreateMicroserviceManager returns the manager of appID.
func (a *AppManager) GetOrCreateMicroserviceManager(appID string) *MicroserviceManager {
	a.mu.RLock()
	m := a.apps[appID]
	a.mu.RUnlock()
	if m != nil {
		return m
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if m = a.apps[appID]; m == nil {
		m = newMicroserviceManager(a, appID)
		a.apps[appID] = m
	}
	return m
}

// Managers returns the application managers ordered by app id.
func (a *AppManager) Managers() []*MicroserviceManager {
	a.mu.RLock()
	out := make([]*MicroserviceManager, 0, len(a.apps))
	for _, m := range a.apps {
		out = append(out, m)
	}
	a.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].appID < out[j].appID })
	return out
}

// Resolve returns the live rule for the service. A service name of the form
// "app:service" overrides appID. Only a malformed rule is an error.
func (a *AppManager) Resolve(appID, serviceName, versionRule string) (*MicroserviceVersionRule, error) {
	rule, err := a.rules.GetOrCreate(versionRule)
	if err != nil {
		return nil, err
	}
	appID, serviceName = registry.SplitServiceName(appID, serviceName)

	mv := a.GetOrCreateMicroserviceManager(appID).GetOrCreateMicroserviceVersions(serviceName)
	r, err := mv.GetOrCreateMicroserviceVersionRule(rule.Raw())
	if err != nil {
		return nil, err
	}
	mv.WaitReady(a.firstPullWait)
	return r, nil
}

// VersionedCache implements discovery.Source.
func (a *AppManager) VersionedCache(appID, serviceName, versionRule string) (*discovery.VersionedCache, error) {
	r, err := a.Resolve(appID, serviceName, versionRule)
	if err != nil {
		return nil, err
	}
	return r.VersionedCache(), nil
}

// PullAll pulls every tracked service of every application.
func (a *AppManager) PullAll(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, m := range a.Managers() {
		m := m
		g.Go(func() error { return m.PullAll(ctx) })
	}
	return g.Wait()
}

func (a *AppManager) onInstanceChanged(ev event.InstanceChangedEvent) {
	appID, _ := registry.SplitServiceName(ev.AppID, ev.ServiceName)
	a.mu.RLock()
	m := a.apps[appID]
	a.mu.RUnlock()
	if m != nil {
		m.onInstanceChanged(ev)
	}
}
