package instancecache

import (
	"github.com/kbukum/gokit-discovery/discovery"
	"github.com/kbukum/gokit-discovery/registry"
	"github.com/kbukum/gokit-discovery/version"
)

// InstanceCache is an immutable snapshot of the instances of one service that
// match one version rule. Updates produce a new InstanceCache.
type InstanceCache struct {
	appID       string
	serviceName string
	rule        version.Rule
	latest      version.Version
	instances   registry.InstanceMap
	versions    map[string]version.Version // instanceID -> microservice version
	cache       *discovery.VersionedCache
}

// New wraps instances in a snapshot with a fresh cache version.
func New(appID, serviceName string, rule version.Rule, latest version.Version, instances registry.InstanceMap) *InstanceCache {
	return newInstanceCache(appID, serviceName, rule, latest, instances, nil)
}

func newInstanceCache(appID, serviceName string, rule version.Rule, latest version.Version,
	instances registry.InstanceMap, versions map[string]version.Version) *InstanceCache {
	if instances == nil {
		instances = registry.InstanceMap{}
	}
	return &InstanceCache{
		appID:       appID,
		serviceName: serviceName,
		rule:        rule,
		latest:      latest,
		instances:   instances,
		versions:    versions,
		cache:       discovery.NewVersionedCache(registry.Key(appID, serviceName)+"/"+rule.Raw(), instances),
	}
}

func emptyInstanceCache(appID, serviceName string, rule version.Rule) *InstanceCache {
	return newInstanceCache(appID, serviceName, rule, version.Zero, nil, nil)
}

func (c *InstanceCache) AppID() string       { return c.appID }
func (c *InstanceCache) ServiceName() string { return c.serviceName }
func (c *InstanceCache) VersionRule() string { return c.rule.Raw() }
func (c *InstanceCache) Rule() version.Rule  { return c.rule }

// Instances returns the snapshot's instances. The map must not be modified.
func (c *InstanceCache) Instances() registry.InstanceMap { return c.instances }

// LatestVersion is the highest version seen when the snapshot was built.
func (c *InstanceCache) LatestVersion() version.Version { return c.latest }

// VersionedCache exposes the snapshot as discovery input.
func (c *InstanceCache) VersionedCache() *discovery.VersionedCache { return c.cache }

// with returns a copy with inst upserted or removed.
func (c *InstanceCache) with(inst *registry.MicroserviceInstance, v version.Version, keep bool) *InstanceCache {
	instances := c.instances.Clone()
	versions := make(map[string]version.Version, len(c.versions)+1)
	for id, ver := range c.versions {
		versions[id] = ver
	}
	if keep {
		instances[inst.InstanceID] = inst
		versions[inst.InstanceID] = v
	} else {
		delete(instances, inst.InstanceID)
		delete(versions, inst.InstanceID)
	}
	return newInstanceCache(c.appID, c.serviceName, c.rule, c.latest, instances, versions)
}
