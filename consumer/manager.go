package consumer

import (
	"context"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/kbukum/gokit-discovery/event"
	"github.com/kbukum/gokit-discovery/logger"
)

// MicroserviceManager tracks the services of one application.
type MicroserviceManager struct {
	app   *AppManager
	appID string

	mu       sync.RWMutex
	services map[string]*MicroserviceVersions
}

func newMicroserviceManager(app *AppManager, appID string) *MicroserviceManager {
	return &MicroserviceManager{app: app, appID: appID, services: make(map[string]*MicroserviceVersions)}
}

func (m *MicroserviceManager) AppID() string { return m.appID }

// GetOrCreateMicroserviceVersions returns the tracked service, creating it and
// scheduling its first pull when absent.
func (m *MicroserviceManager) GetOrCreateMicroserviceVersions(serviceName string) *MicroserviceVersions {
	m.mu.RLock()
	mv := m.services[serviceName]
	m.mu.RUnlock()
	if mv != nil {
		return mv
	}

	m.mu.Lock()
	if mv = m.services[serviceName]; mv != nil {
		m.mu.Unlock()
		return mv
	}
	mv = newMicroserviceVersions(m.app, m.appID, serviceName)
	m.services[serviceName] = mv
	m.mu.Unlock()

	m.app.log.Info("tracking service", logger.ServiceFields(m.appID, serviceName))
	mv.SubmitPull()
	if m.app.onTracked != nil {
		m.app.onTracked(m.appID, serviceName)
	}
	return mv
}

// GetOrCreateMicroserviceVersionRule is a shortcut through the service.
func (m *MicroserviceManager) GetOrCreateMicroserviceVersionRule(serviceName, rule string) (*MicroserviceVersionRule, error) {
	return m.GetOrCreateMicroserviceVersions(serviceName).GetOrCreateMicroserviceVersionRule(rule)
}

// Lookup returns the tracked service without creating it.
func (m *MicroserviceManager) Lookup(serviceName string) (*MicroserviceVersions, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	mv, ok := m.services[serviceName]
	return mv, ok
}

// Services returns the tracked services ordered by name.
func (m *MicroserviceManager) Services() []*MicroserviceVersions {
	m.mu.RLock()
	out := make([]*MicroserviceVersions, 0, len(m.services))
	for _, mv := range m.services {
		out = append(out, mv)
	}
	m.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].serviceName < out[j].serviceName })
	return out
}

// OnPeriodicPull drops services the registry no longer knows and schedules a
// pull for the rest.
func (m *MicroserviceManager) OnPeriodicPull() {
	m.mu.Lock()
	live := make([]*MicroserviceVersions, 0, len(m.services))
	for name, mv := range m.services {
		if mv.WaitingDelete() {
			delete(m.services, name)
			m.app.log.Info("stopped tracking deleted service", logger.ServiceFields(m.appID, name))
			continue
		}
		live = append(live, mv)
	}
	m.mu.Unlock()

	for _, mv := range live {
		mv.SubmitPull()
	}
}

// OnRecovery schedules a pull for every tracked service.
func (m *MicroserviceManager) OnRecovery() {
	for _, mv := range m.Services() {
		mv.SubmitPull()
	}
}

// PullAll pulls every tracked service and returns the first error.
func (m *MicroserviceManager) PullAll(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, mv := range m.Services() {
		mv := mv
		g.Go(func() error { return mv.Pull(ctx) })
	}
	return g.Wait()
}

func (m *MicroserviceManager) onInstanceChanged(ev event.InstanceChangedEvent) {
	for _, mv := range m.Services() {
		mv.OnInstanceChanged(ev)
	}
}
