// Package memory is an in-process registry backend. It serves static
// configurations and tests, and pushes membership changes to watchers.
package memory

import (
	"context"
	"net/http"
	"sync"

	"github.com/google/uuid"

	"github.com/kbukum/gokit-discovery/errors"
	"github.com/kbukum/gokit-discovery/event"
	"github.com/kbukum/gokit-discovery/logger"
	"github.com/kbukum/gokit-discovery/registry"
)

// Backend is the factory name of this package.
const Backend = "memory"

func init() {
	registry.RegisterFactory(Backend, func(providerCfg any, log *logger.Logger) (registry.Client, error) {
		r := New(log)
		if cfg, ok := providerCfg.(*Config); ok && cfg != nil {
			if err := r.Seed(*cfg); err != nil {
				return nil, err
			}
		}
		return r, nil
	})
}

// Registry keeps microservices and instances in memory.
type Registry struct {
	mu            sync.RWMutex
	microservices map[string]*registry.Microservice                     // serviceID -> record
	instances     map[string]map[string]*registry.MicroserviceInstance  // serviceID -> instanceID -> instance
	watchers      map[string]map[uint64]chan event.InstanceChangedEvent // app/service -> watchers
	nextWatcher   uint64
	failure       error
	log           *logger.Logger
}

// New creates an empty registry.
func New(log *logger.Logger) *Registry {
	return &Registry{
		microservices: make(map[string]*registry.Microservice),
		instances:     make(map[string]map[string]*registry.MicroserviceInstance),
		watchers:      make(map[string]map[uint64]chan event.InstanceChangedEvent),
		log:           logger.OrNop(log).WithComponent("registry.memory"),
	}
}

// Seed registers every service and instance of cfg.
func (r *Registry) Seed(cfg Config) error {
	for _, svc := range cfg.Services {
		serviceID, err := r.RegisterMicroservice(&registry.Microservice{
			AppID:       svc.AppID,
			ServiceName: svc.ServiceName,
			Version:     svc.Version,
			Environment: svc.Environment,
			Properties:  svc.Properties,
		})
		if err != nil {
			return err
		}
		for _, inst := range svc.Instances {
			if _, err := r.RegisterInstance(&registry.MicroserviceInstance{
				InstanceID: inst.InstanceID,
				ServiceID:  serviceID,
				Status:     registry.InstanceStatus(inst.Status),
				Endpoints:  inst.Endpoints,
				Properties: inst.Properties,
			}); err != nil {
				return err
			}
		}
	}
	return nil
}

// RegisterMicroservice stores a version record and returns its service id.
// A record with the same app, name and version reuses the existing id.
func (r *Registry) RegisterMicroservice(ms *registry.Microservice) (string, error) {
	if ms.ServiceName == "" {
		return "", errors.InvalidConfig("service_name", "is required")
	}
	if ms.AppID == "" {
		ms.AppID = registry.DefaultAppID
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for id, existing := range r.microservices {
		if existing.AppID == ms.AppID && existing.ServiceName == ms.ServiceName && existing.Version == ms.Version {
			return id, nil
		}
	}
	if ms.ServiceID == "" {
		ms.ServiceID = uuid.NewString()
	}
	cp := *ms
	r.microservices[cp.ServiceID] = &cp
	r.instances[cp.ServiceID] = make(map[string]*registry.MicroserviceInstance)
	return cp.ServiceID, nil
}

// RegisterInstance adds or replaces an instance of a registered microservice
// and notifies watchers with CREATE or UPDATE.
func (r *Registry) RegisterInstance(inst *registry.MicroserviceInstance) (string, error) {
	r.mu.Lock()
	ms, ok := r.microservices[inst.ServiceID]
	if !ok {
		r.mu.Unlock()
		return "", errors.MicroserviceNotFound(inst.ServiceID)
	}
	cp := cloneInstance(inst)
	if cp.InstanceID == "" {
		cp.InstanceID = uuid.NewString()
	}
	if cp.Status == "" {
		cp.Status = registry.StatusUp
	}
	action := event.ActionCreate
	if _, exists := r.instances[ms.ServiceID][cp.InstanceID]; exists {
		action = event.ActionUpdate
	}
	r.instances[ms.ServiceID][cp.InstanceID] = cp
	r.notifyLocked(ms, action, cp)
	r.mu.Unlock()

	return cp.InstanceID, nil
}

// UpdateStatus changes the status of an instance and notifies watchers.
func (r *Registry) UpdateStatus(serviceID, instanceID string, status registry.InstanceStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	ms, ok := r.microservices[serviceID]
	if !ok {
		return errors.MicroserviceNotFound(serviceID)
	}
	cur, ok := r.instances[serviceID][instanceID]
	if !ok {
		return errors.New(errors.ErrCodeServiceNotFound, "instance "+instanceID+" is not registered", http.StatusNotFound)
	}
	cp := cloneInstance(cur)
	cp.Status = status
	r.instances[serviceID][instanceID] = cp
	r.notifyLocked(ms, event.ActionUpdate, cp)
	return nil
}

// Deregister removes an instance and notifies watchers with DELETE.
func (r *Registry) Deregister(serviceID, instanceID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	ms, ok := r.microservices[serviceID]
	if !ok {
		return errors.MicroserviceNotFound(serviceID)
	}
	cur, ok := r.instances[serviceID][instanceID]
	if !ok {
		return nil
	}
	delete(r.instances[serviceID], instanceID)
	r.notifyLocked(ms, event.ActionDelete, cur)
	return nil
}

// SetFailure makes every pull fail with REGISTRY_UNAVAILABLE until it is
// called again with nil.
func (r *Registry) SetFailure(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failure = err
}

// ListInstances implements registry.Client.
func (r *Registry) ListInstances(_ context.Context, appID, serviceName string) ([]*registry.MicroserviceInstance, error) {
	appID, serviceName = registry.SplitServiceName(appID, serviceName)

	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.failure != nil {
		return nil, errors.RegistryUnavailable(Backend, r.failure)
	}

	found := false
	var out []*registry.MicroserviceInstance
	for id, ms := range r.microservices {
		if ms.AppID != appID || ms.ServiceName != serviceName {
			continue
		}
		found = true
		for _, inst := range r.instances[id] {
			out = append(out, cloneInstance(inst))
		}
	}
	if !found {
		return nil, errors.ServiceNotFound(appID, serviceName)
	}
	return out, nil
}

// GetMicroservice implements registry.Client.
func (r *Registry) GetMicroservice(_ context.Context, serviceID string) (*registry.Microservice, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.failure != nil {
		return nil, errors.RegistryUnavailable(Backend, r.failure)
	}
	ms, ok := r.microservices[serviceID]
	if !ok {
		return nil, errors.MicroserviceNotFound(serviceID)
	}
	cp := *ms
	return &cp, nil
}

// Ping implements registry.Pinger.
func (r *Registry) Ping(context.Context) error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.failure != nil {
		return errors.RegistryUnavailable(Backend, r.failure)
	}
	return nil
}

// Watch implements event.Watcher. Changes are forwarded to bus on the
// calling goroutine until ctx is done.
func (r *Registry) Watch(ctx context.Context, appID, serviceName string, bus *event.Bus) error {
	key := registry.Key(appID, serviceName)
	ch := make(chan event.InstanceChangedEvent, 64)

	r.mu.Lock()
	r.nextWatcher++
	id := r.nextWatcher
	if r.watchers[key] == nil {
		r.watchers[key] = make(map[uint64]chan event.InstanceChangedEvent)
	}
	r.watchers[key][id] = ch
	r.mu.Unlock()

	defer func() {
		r.mu.Lock()
		delete(r.watchers[key], id)
		if len(r.watchers[key]) == 0 {
			delete(r.watchers, key)
		}
		r.mu.Unlock()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev := <-ch:
			bus.PublishInstanceChanged(ev)
		}
	}
}

// WatcherCount returns the number of active watchers of a service.
func (r *Registry) WatcherCount(appID, serviceName string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.watchers[registry.Key(appID, serviceName)])
}

// Close implements registry.Client.
func (r *Registry) Close() error {
	return nil
}

func (r *Registry) notifyLocked(ms *registry.Microservice, action event.Action, inst *registry.MicroserviceInstance) {
	key := registry.Key(ms.AppID, ms.ServiceName)
	ev := event.InstanceChangedEvent{
		AppID:       ms.AppID,
		ServiceName: ms.ServiceName,
		Version:     ms.Version,
		Action:      action,
		Instance:    cloneInstance(inst),
	}
	for _, ch := range r.watchers[key] {
		select {
		case ch <- ev:
		default:
			// A slow watcher falls back to the periodic pull.
			r.log.Warn("watcher queue full, dropping change", logger.Fields(
				logger.FieldAppID, ms.AppID, logger.FieldService, ms.ServiceName,
				logger.FieldInstanceID, inst.InstanceID, logger.FieldAction, string(action)))
		}
	}
}

func cloneInstance(in *registry.MicroserviceInstance) *registry.MicroserviceInstance {
	cp := *in
	cp.Endpoints = append([]string(nil), in.Endpoints...)
	if in.Properties != nil {
		cp.Properties = make(map[string]string, len(in.Properties))
		for k, v := range in.Properties {
			cp.Properties[k] = v
		}
	}
	return &cp
}

var (
	_ registry.Client = (*Registry)(nil)
	_ registry.Pinger = (*Registry)(nil)
	_ event.Watcher   = (*Registry)(nil)
)
