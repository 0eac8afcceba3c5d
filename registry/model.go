package registry

import (
	"maps"
	"net/url"
	"slices"
	"sort"
	"strings"
)

// DefaultAppID is used when a registry record carries no application id.
const DefaultAppID = "default"

// InstanceStatus is the registry's view of an instance.
type InstanceStatus string

const (
	StatusUp           InstanceStatus = "UP"
	StatusDown         InstanceStatus = "DOWN"
	StatusStarting     InstanceStatus = "STARTING"
	StatusOutOfService InstanceStatus = "OUTOFSERVICE"
	StatusTesting      InstanceStatus = "TESTING"
)

// Microservice is one registered version of a service.
type Microservice struct {
	ServiceID   string            `json:"service_id" yaml:"service_id"`
	AppID       string            `json:"app_id" yaml:"app_id"`
	ServiceName string            `json:"service_name" yaml:"service_name"`
	Version     string            `json:"version" yaml:"version"`
	Environment string            `json:"environment,omitempty" yaml:"environment,omitempty"`
	Properties  map[string]string `json:"properties,omitempty" yaml:"properties,omitempty"`
}

// MicroserviceInstance is one running copy of a Microservice.
type MicroserviceInstance struct {
	InstanceID string            `json:"instance_id" yaml:"instance_id"`
	ServiceID  string            `json:"service_id" yaml:"service_id"`
	HostName   string            `json:"host_name,omitempty" yaml:"host_name,omitempty"`
	Status     InstanceStatus    `json:"status" yaml:"status"`
	Endpoints  []string          `json:"endpoints" yaml:"endpoints"`
	Properties map[string]string `json:"properties,omitempty" yaml:"properties,omitempty"`
}

// IsUp reports whether the instance accepts traffic. An empty status is
// treated as UP.
func (i *MicroserviceInstance) IsUp() bool {
	return i.Status == "" || i.Status == StatusUp
}

// Transports returns the distinct endpoint schemes of the instance, in
// endpoint order.
func (i *MicroserviceInstance) Transports() []string {
	seen := make(map[string]bool, len(i.Endpoints))
	var out []string
	for _, ep := range i.Endpoints {
		u, err := url.Parse(ep)
		if err != nil || u.Scheme == "" || seen[u.Scheme] {
			continue
		}
		seen[u.Scheme] = true
		out = append(out, u.Scheme)
	}
	return out
}

// SplitServiceName resolves a service name of the form "app:service",
// which overrides the caller's application id.
func SplitServiceName(appID, serviceName string) (string, string) {
	if idx := strings.Index(serviceName, ":"); idx > 0 && idx < len(serviceName)-1 {
		return serviceName[:idx], serviceName[idx+1:]
	}
	return appID, serviceName
}

// Key is the canonical "app/service" lookup key.
func Key(appID, serviceName string) string {
	appID, serviceName = SplitServiceName(appID, serviceName)
	return appID + "/" + serviceName
}

// InstanceMap indexes instances by instance id. Maps published in a snapshot
// are never mutated.
type InstanceMap map[string]*MicroserviceInstance

// NewInstanceMap indexes instances by id. Later duplicates win.
func NewInstanceMap(instances []*MicroserviceInstance) InstanceMap {
	m := make(InstanceMap, len(instances))
	for _, inst := range instances {
		m[inst.InstanceID] = inst
	}
	return m
}

func (m InstanceMap) Len() int { return len(m) }

// IDs returns the instance ids in ascending order.
func (m InstanceMap) IDs() []string {
	ids := make([]string, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Sorted returns the instances ordered by instance id.
func (m InstanceMap) Sorted() []*MicroserviceInstance {
	out := make([]*MicroserviceInstance, 0, len(m))
	for _, id := range m.IDs() {
		out = append(out, m[id])
	}
	return out
}

// Clone returns a shallow copy that can be modified.
func (m InstanceMap) Clone() InstanceMap {
	out := make(InstanceMap, len(m))
	maps.Copy(out, m)
	return out
}

// Equal reports whether both maps hold the same instances with the same
// service, host, status, endpoints and properties.
func (m InstanceMap) Equal(other InstanceMap) bool {
	if len(m) != len(other) {
		return false
	}
	for id, a := range m {
		b, ok := other[id]
		if !ok {
			return false
		}
		if a.ServiceID != b.ServiceID || a.HostName != b.HostName || a.Status != b.Status {
			return false
		}
		if !slices.Equal(a.Endpoints, b.Endpoints) || !maps.Equal(a.Properties, b.Properties) {
			return false
		}
	}
	return true
}
