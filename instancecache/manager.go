package instancecache

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kbukum/gokit-discovery/discovery"
	"github.com/kbukum/gokit-discovery/event"
	"github.com/kbukum/gokit-discovery/logger"
	"github.com/kbukum/gokit-discovery/registry"
	"github.com/kbukum/gokit-discovery/version"
)

// DefaultPullTimeout bounds the registry calls made on a cache miss.
const DefaultPullTimeout = 5 * time.Second

// Entry summarises one cached snapshot.
type Entry struct {
	AppID        string `json:"app_id" yaml:"app_id"`
	ServiceName  string `json:"service_name" yaml:"service_name"`
	VersionRule  string `json:"version_rule" yaml:"version_rule"`
	Instances    int    `json:"instances" yaml:"instances"`
	CacheVersion int64  `json:"cache_version" yaml:"cache_version"`
}

// Option configures a Manager.
type Option func(*Manager)

// WithPullTimeout overrides DefaultPullTimeout.
func WithPullTimeout(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.timeout = d
		}
	}
}

// WithRuleCache shares a parsed rule cache.
func WithRuleCache(rules *version.RuleCache) Option {
	return func(m *Manager) { m.rules = rules }
}

// Manager keeps one InstanceCache per service and version rule, built on
// first use from the registry and maintained from change events.
type Manager struct {
	client  registry.Client
	rules   *version.RuleCache
	log     *logger.Logger
	timeout time.Duration

	mu            sync.RWMutex
	caches        map[string]map[string]*InstanceCache // app/service -> raw rule -> snapshot
	microservices map[string]*registry.Microservice

	unavailable atomic.Bool
}

// NewManager creates a Manager over client.
func NewManager(client registry.Client, log *logger.Logger, opts ...Option) *Manager {
	m := &Manager{
		client:        client,
		rules:         version.NewRuleCache(),
		log:           logger.OrNop(log).WithComponent("instance-cache"),
		timeout:       DefaultPullTimeout,
		caches:        make(map[string]map[string]*InstanceCache),
		microservices: make(map[string]*registry.Microservice),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Subscribe attaches the manager to the bus and returns a func that detaches it.
func (m *Manager) Subscribe(bus *event.Bus) func() {
	unsubs := []func(){
		bus.OnInstanceChanged(m.OnInstanceChanged),
		bus.OnException(m.OnException),
		bus.OnRecovery(m.OnRecovered),
	}
	return func() {
		for _, u := range unsubs {
			u()
		}
	}
}

// GetOrCreate returns the snapshot for the service and rule, building it from
// the registry on first use. A malformed rule is an error; a registry failure
// yields an empty snapshot that is not retained.
func (m *Manager) GetOrCreate(appID, serviceName, versionRule string) (*InstanceCache, error) {
	rule, err := m.rules.GetOrCreate(versionRule)
	if err != nil {
		return nil, err
	}
	appID, serviceName = registry.SplitServiceName(appID, serviceName)
	key := registry.Key(appID, serviceName)

	m.mu.RLock()
	cache := m.caches[key][rule.Raw()]
	m.mu.RUnlock()
	if cache != nil {
		return cache, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if cache := m.caches[key][rule.Raw()]; cache != nil {
		return cache, nil
	}

	cache, err = m.buildLocked(appID, serviceName, rule)
	if err != nil {
		m.log.Warn("instance cache build failed", logger.Fields(
			logger.FieldAppID, appID, logger.FieldService, serviceName,
			logger.FieldVersionRule, rule.Raw(), logger.FieldError, err.Error()))
		return emptyInstanceCache(appID, serviceName, rule), nil
	}
	if m.caches[key] == nil {
		m.caches[key] = make(map[string]*InstanceCache)
	}
	m.caches[key][rule.Raw()] = cache
	return cache, nil
}

// VersionedCache implements discovery.Source.
func (m *Manager) VersionedCache(appID, serviceName, versionRule string) (*discovery.VersionedCache, error) {
	cache, err := m.GetOrCreate(appID, serviceName, versionRule)
	if err != nil {
		return nil, err
	}
	return cache.VersionedCache(), nil
}

func (m *Manager) buildLocked(appID, serviceName string, rule version.Rule) (*InstanceCache, error) {
	ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
	defer cancel()

	all, err := m.client.ListInstances(ctx, appID, serviceName)
	if err != nil {
		return nil, err
	}

	versions := make(map[string]version.Version, len(all))
	latest := version.Zero
	for _, inst := range all {
		if !inst.IsUp() {
			continue
		}
		v, err := m.versionLocked(ctx, inst.ServiceID)
		if err != nil {
			m.log.Warn("skipping instance without a usable version", logger.Fields(
				logger.FieldInstanceID, inst.InstanceID, logger.FieldServiceID, inst.ServiceID,
				logger.FieldError, err.Error()))
			continue
		}
		versions[inst.InstanceID] = v
		if latest.Less(v) {
			latest = v
		}
	}

	instances := make(registry.InstanceMap, len(versions))
	for _, inst := range all {
		v, ok := versions[inst.InstanceID]
		if !ok {
			continue
		}
		if rule.Match(v, latest) {
			instances[inst.InstanceID] = inst
		} else {
			delete(versions, inst.InstanceID)
		}
	}
	return newInstanceCache(appID, serviceName, rule, latest, instances, versions), nil
}

func (m *Manager) versionLocked(ctx context.Context, serviceID string) (version.Version, error) {
	ms, ok := m.microservices[serviceID]
	if !ok {
		var err error
		ms, err = m.client.GetMicroservice(ctx, serviceID)
		if err != nil {
			return version.Zero, err
		}
		m.microservices[serviceID] = ms
	}
	return version.Parse(ms.Version)
}

// OnInstanceChanged applies a change event to every cached snapshot of the
// service. Events for services without a snapshot are dropped.
func (m *Manager) OnInstanceChanged(ev event.InstanceChangedEvent) {
	if !ev.Action.Known() {
		m.log.Error("unknown instance change action", logger.Fields(
			logger.FieldAction, string(ev.Action), logger.FieldAppID, ev.AppID, logger.FieldService, ev.ServiceName))
		return
	}
	key := ev.Key()

	m.mu.Lock()
	defer m.mu.Unlock()

	caches, ok := m.caches[key]
	if !ok {
		return
	}
	if ev.Action == event.ActionExpire {
		delete(m.caches, key)
		m.log.Info("instance cache expired", logger.Fields(logger.FieldAppID, ev.AppID, logger.FieldService, ev.ServiceName))
		return
	}
	if ev.Instance == nil {
		m.log.Warn("instance change without instance", logger.Fields(logger.FieldAction, string(ev.Action)))
		return
	}

	v, err := version.Parse(ev.Version)
	if err != nil && ev.Action != event.ActionDelete {
		m.log.Error("instance change with invalid version", logger.Fields(
			logger.FieldInstanceID, ev.Instance.InstanceID, logger.FieldVersion, ev.Version, logger.FieldError, err.Error()))
		return
	}

	for raw, cache := range caches {
		next := applyChange(cache, ev, v)
		if next == nil {
			delete(caches, raw)
			continue
		}
		caches[raw] = next
	}
	if len(caches) == 0 {
		delete(m.caches, key)
	}
}

// applyChange returns the snapshot after ev, or nil when the snapshot must be
// rebuilt from the registry. A "latest" snapshot emptied by a removal is
// rebuilt so the next highest version takes over.
func applyChange(cache *InstanceCache, ev event.InstanceChangedEvent, v version.Version) *InstanceCache {
	inst := ev.Instance
	if ev.Action == event.ActionDelete || !inst.IsUp() {
		next := cache.with(inst, v, false)
		if cache.rule.Kind() == version.KindLatest && len(next.instances) == 0 && len(cache.instances) > 0 {
			return nil
		}
		return next
	}
	if cache.rule.Kind() == version.KindLatest && cache.latest.Less(v) {
		return nil
	}
	return cache.with(inst, v, cache.rule.Match(v, cache.latest))
}

// OnException records that the registry is unreachable.
func (m *Manager) OnException(ev event.ExceptionEvent) {
	if m.unavailable.CompareAndSwap(false, true) {
		fields := logger.Fields()
		if ev.Err != nil {
			fields[logger.FieldError] = ev.Err.Error()
		}
		m.log.Warn("registry unavailable, serving cached instances", fields)
	}
}

// OnRecovered drops every snapshot after an outage so the next lookup pulls
// fresh data.
func (m *Manager) OnRecovered(event.RecoveryEvent) {
	if m.unavailable.CompareAndSwap(true, false) {
		m.log.Info("registry recovered, clearing instance cache")
		m.CleanUp()
	}
}

// Unavailable reports whether an exception was seen without a recovery.
func (m *Manager) Unavailable() bool {
	return m.unavailable.Load()
}

// CleanUp drops every snapshot.
func (m *Manager) CleanUp() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.caches = make(map[string]map[string]*InstanceCache)
	m.microservices = make(map[string]*registry.Microservice)
}

// Entries lists the cached snapshots ordered by service and rule.
func (m *Manager) Entries() []Entry {
	m.mu.RLock()
	out := make([]Entry, 0, len(m.caches))
	for _, caches := range m.caches {
		for _, c := range caches {
			out = append(out, Entry{
				AppID:        c.appID,
				ServiceName:  c.serviceName,
				VersionRule:  c.rule.Raw(),
				Instances:    len(c.instances),
				CacheVersion: c.cache.CacheVersion(),
			})
		}
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].AppID != out[j].AppID {
			return out[i].AppID < out[j].AppID
		}
		if out[i].ServiceName != out[j].ServiceName {
			return out[i].ServiceName < out[j].ServiceName
		}
		return out[i].VersionRule < out[j].VersionRule
	})
	return out
}
