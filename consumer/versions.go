package consumer

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/kbukum/gokit-discovery/errors"
	"github.com/kbukum/gokit-discovery/event"
	"github.com/kbukum/gokit-discovery/logger"
	"github.com/kbukum/gokit-discovery/observability"
	"github.com/kbukum/gokit-discovery/registry"
)

// MicroserviceVersions holds everything known about one service: its
// registered versions, its current UP instances and the version rules callers
// asked for.
type MicroserviceVersions struct {
	app         *AppManager
	appID       string
	serviceName string
	log         *logger.Logger

	mu        sync.Mutex
	versions  map[string]*MicroserviceVersion // serviceID -> version
	instances []*registry.MicroserviceInstance

	rulesMu sync.RWMutex
	rules   map[string]*MicroserviceVersionRule

	pulls   singleflight.Group
	pending atomic.Bool
	running atomic.Bool

	waitingDelete atomic.Bool
	lastPull      atomic.Int64
	ready         chan struct{}
	readyOnce     sync.Once
}

func newMicroserviceVersions(app *AppManager, appID, serviceName string) *MicroserviceVersions {
	return &MicroserviceVersions{
		app:         app,
		appID:       appID,
		serviceName: serviceName,
		log:         app.log.WithFields(logger.ServiceFields(appID, serviceName)),
		versions:    make(map[string]*MicroserviceVersion),
		rules:       make(map[string]*MicroserviceVersionRule),
		ready:       make(chan struct{}),
	}
}

func (m *MicroserviceVersions) AppID() string       { return m.appID }
func (m *MicroserviceVersions) ServiceName() string { return m.serviceName }

// WaitingDelete reports that the registry no longer knows the service.
func (m *MicroserviceVersions) WaitingDelete() bool { return m.waitingDelete.Load() }

// LastPull is the time of the last successful pull, or zero.
func (m *MicroserviceVersions) LastPull() time.Time {
	if ns := m.lastPull.Load(); ns > 0 {
		return time.Unix(0, ns)
	}
	return time.Time{}
}

// Instances returns the UP instances of the last pull ordered by instance id.
func (m *MicroserviceVersions) Instances() []*registry.MicroserviceInstance {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*registry.MicroserviceInstance(nil), m.instances...)
}

// Versions returns the known versions in ascending order.
func (m *MicroserviceVersions) Versions() []*MicroserviceVersion {
	m.mu.Lock()
	defer m.mu.Unlock()
	return sortedVersions(m.versions)
}

// Rules returns the tracked rules ordered by raw text.
func (m *MicroserviceVersions) Rules() []*MicroserviceVersionRule {
	m.rulesMu.RLock()
	out := make([]*MicroserviceVersionRule, 0, len(m.rules))
	for _, r := range m.rules {
		out = append(out, r)
	}
	m.rulesMu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].VersionRule() < out[j].VersionRule() })
	return out
}

// GetOrCreateMicroserviceVersionRule returns the tracked rule for raw. A new
// rule is brought up to date with the current state before other callers can
// see it.
func (m *MicroserviceVersions) GetOrCreateMicroserviceVersionRule(raw string) (*MicroserviceVersionRule, error) {
	rule, err := m.app.rules.GetOrCreate(raw)
	if err != nil {
		return nil, err
	}

	m.rulesMu.RLock()
	r := m.rules[rule.Raw()]
	m.rulesMu.RUnlock()
	if r != nil {
		return r, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.rulesMu.Lock()
	defer m.rulesMu.Unlock()
	if r := m.rules[rule.Raw()]; r != nil {
		return r, nil
	}
	r = newMicroserviceVersionRule(m.appID, m.serviceName, rule, m.app.log)
	r.Update(m.versions, m.instances)
	m.rules[rule.Raw()] = r
	return r, nil
}

// WaitReady blocks until the first pull finished or timeout elapsed. Once
// ready it returns immediately, whatever the timeout.
func (m *MicroserviceVersions) WaitReady(timeout time.Duration) bool {
	select {
	case <-m.ready:
		return true
	default:
	}
	if timeout <= 0 {
		return false
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-m.ready:
		return true
	case <-timer.C:
		return false
	}
}

// Pull refreshes the state from the registry. Concurrent calls share one
// registry round trip.
func (m *MicroserviceVersions) Pull(ctx context.Context) error {
	_, err, _ := m.pulls.Do("pull", func() (interface{}, error) {
		return nil, m.pull(ctx)
	})
	return err
}

// SubmitPull schedules an asynchronous pull. Requests arriving while a pull
// runs are folded into one follow-up pull.
func (m *MicroserviceVersions) SubmitPull() {
	m.pending.Store(true)
	if !m.running.CompareAndSwap(false, true) {
		return
	}
	go func() {
		for m.pending.Swap(false) {
			ctx, cancel := context.WithTimeout(context.Background(), m.app.pullTimeout)
			if err := m.Pull(ctx); err != nil {
				m.log.Warn("pull failed", logger.ErrorFields("pull", err))
			}
			cancel()
		}
		m.running.Store(false)
		if m.pending.Load() {
			m.SubmitPull()
		}
	}()
}

// OnInstanceChanged re-pulls on a change of this service. Events are not
// applied directly since they may race with pull results.
func (m *MicroserviceVersions) OnInstanceChanged(ev event.InstanceChangedEvent) {
	if ev.Key() != registry.Key(m.appID, m.serviceName) {
		return
	}
	m.SubmitPull()
}

func (m *MicroserviceVersions) markReady() {
	m.readyOnce.Do(func() { close(m.ready) })
}

func (m *MicroserviceVersions) pull(ctx context.Context) (err error) {
	defer m.markReady()

	start := time.Now()
	ctx, span := observability.StartSpan(ctx, observability.SpanRegistryPull)
	observability.SetSpanAttribute(ctx, observability.AttrAppID, m.appID)
	observability.SetSpanAttribute(ctx, observability.AttrService, m.serviceName)
	defer func() {
		if err != nil {
			observability.SetSpanError(ctx, err)
		}
		span.End()
		if m.app.recorder != nil {
			m.app.recorder.RecordPull(m.appID, m.serviceName, err, time.Since(start))
		}
	}()

	all, err := m.app.client.ListInstances(ctx, m.appID, m.serviceName)
	if err != nil {
		if errors.HasCode(err, errors.ErrCodeServiceNotFound) && !m.waitingDelete.Swap(true) {
			m.log.Info("service no longer registered, waiting for delete")
		}
		return err
	}

	up := make([]*registry.MicroserviceInstance, 0, len(all))
	for _, inst := range all {
		if inst.IsUp() {
			up = append(up, inst)
		}
	}
	sort.Slice(up, func(i, j int) bool { return up[i].InstanceID < up[j].InstanceID })

	fetched := m.fetchMissing(ctx, up)

	m.mu.Lock()
	for id, mv := range fetched {
		m.versions[id] = mv
	}
	known := make([]*registry.MicroserviceInstance, 0, len(up))
	for _, inst := range up {
		if _, ok := m.versions[inst.ServiceID]; ok {
			known = append(known, inst)
		}
	}
	m.instances = known

	m.rulesMu.RLock()
	for _, r := range m.rules {
		r.Update(m.versions, m.instances)
	}
	m.rulesMu.RUnlock()
	m.mu.Unlock()

	m.waitingDelete.Store(false)
	m.lastPull.Store(time.Now().UnixNano())
	observability.SetSpanAttribute(ctx, observability.AttrInstances, len(known))
	return nil
}

// fetchMissing resolves the version records of service ids not seen yet.
// Failures are logged and the affected instances are skipped.
func (m *MicroserviceVersions) fetchMissing(ctx context.Context, instances []*registry.MicroserviceInstance) map[string]*MicroserviceVersion {
	m.mu.Lock()
	var missing []string
	seen := make(map[string]bool)
	for _, inst := range instances {
		if _, ok := m.versions[inst.ServiceID]; ok || seen[inst.ServiceID] {
			continue
		}
		seen[inst.ServiceID] = true
		missing = append(missing, inst.ServiceID)
	}
	m.mu.Unlock()

	fetched := make(map[string]*MicroserviceVersion, len(missing))
	for _, id := range missing {
		ms, err := m.app.client.GetMicroservice(ctx, id)
		if err != nil {
			m.log.Warn("microservice lookup failed", logger.Fields(logger.FieldServiceID, id, logger.FieldError, err.Error()))
			continue
		}
		mv, err := NewMicroserviceVersion(ms)
		if err != nil {
			m.log.Warn("microservice has an invalid version", logger.Fields(
				logger.FieldServiceID, id, logger.FieldVersion, ms.Version, logger.FieldError, err.Error()))
			continue
		}
		fetched[id] = mv
	}
	return fetched
}
