package consumer

import (
	"sort"
	"sync/atomic"

	"github.com/kbukum/gokit-discovery/discovery"
	"github.com/kbukum/gokit-discovery/instancecache"
	"github.com/kbukum/gokit-discovery/logger"
	"github.com/kbukum/gokit-discovery/registry"
	"github.com/kbukum/gokit-discovery/version"
)

type ruleSnapshot struct {
	latest   *MicroserviceVersion
	selected *MicroserviceVersion
	versions []*MicroserviceVersion
	cache    *instancecache.InstanceCache
}

// MicroserviceVersionRule is the live selection of one version rule over the
// versions of a service. Readers always observe a complete snapshot.
type MicroserviceVersionRule struct {
	appID       string
	serviceName string
	rule        version.Rule
	log         *logger.Logger

	state atomic.Pointer[ruleSnapshot]
}

func newMicroserviceVersionRule(appID, serviceName string, rule version.Rule, log *logger.Logger) *MicroserviceVersionRule {
	r := &MicroserviceVersionRule{
		appID:       appID,
		serviceName: serviceName,
		rule:        rule,
		log: logger.OrNop(log).WithFields(map[string]interface{}{
			logger.FieldAppID:       appID,
			logger.FieldService:     serviceName,
			logger.FieldVersionRule: rule.Raw(),
		}),
	}
	r.state.Store(&ruleSnapshot{cache: instancecache.New(appID, serviceName, rule, version.Zero, nil)})
	return r
}

func (r *MicroserviceVersionRule) AppID() string       { return r.appID }
func (r *MicroserviceVersionRule) ServiceName() string { return r.serviceName }
func (r *MicroserviceVersionRule) Rule() version.Rule  { return r.rule }
func (r *MicroserviceVersionRule) VersionRule() string { return r.rule.Raw() }

// LatestVersion is the highest version seen by the last update, or nil.
func (r *MicroserviceVersionRule) LatestVersion() *MicroserviceVersion { return r.state.Load().latest }

// SelectedVersion is the highest version among the selected instances, or nil.
func (r *MicroserviceVersionRule) SelectedVersion() *MicroserviceVersion {
	return r.state.Load().selected
}

// Versions are the known versions the rule matches, ascending.
func (r *MicroserviceVersionRule) Versions() []*MicroserviceVersion { return r.state.Load().versions }

// Instances are the selected instances. The map must not be modified.
func (r *MicroserviceVersionRule) Instances() registry.InstanceMap {
	return r.state.Load().cache.Instances()
}

func (r *MicroserviceVersionRule) InstanceCache() *instancecache.InstanceCache {
	return r.state.Load().cache
}

func (r *MicroserviceVersionRule) VersionedCache() *discovery.VersionedCache {
	return r.state.Load().cache.VersionedCache()
}

// Update recomputes the selection from the known versions and the current
// instances. When the new selection is empty the previous instances are kept.
func (r *MicroserviceVersionRule) Update(versions map[string]*MicroserviceVersion, instances []*registry.MicroserviceInstance) {
	prev := r.state.Load()
	latest := latestVersion(versions, instances)
	latestV := version.Zero
	if latest != nil {
		latestV = latest.Version()
	}

	matched := make(map[string]*MicroserviceVersion)
	if latest != nil || r.rule.Kind() != version.KindLatest {
		for id, mv := range versions {
			if r.rule.Match(mv.Version(), latestV) {
				matched[id] = mv
			}
		}
	}

	selected := make(registry.InstanceMap)
	var selectedVersion *MicroserviceVersion
	for _, inst := range instances {
		mv, ok := matched[inst.ServiceID]
		if !ok {
			continue
		}
		selected[inst.InstanceID] = inst
		if selectedVersion == nil || selectedVersion.Version().Less(mv.Version()) {
			selectedVersion = mv
		}
	}

	next := &ruleSnapshot{latest: latest, versions: sortedVersions(matched)}
	switch {
	case len(selected) == 0:
		if prev.cache.Instances().Len() > 0 {
			r.log.Warn("version rule matched no instances, keeping previous selection", logger.Fields(
				logger.FieldVersion, prev.selected.String(), "instances", prev.cache.Instances().Len()))
			next.versions = prev.versions
		}
		next.selected = prev.selected
		next.cache = prev.cache
	case prev.cache.Instances().Equal(selected):
		next.selected = selectedVersion
		next.cache = prev.cache
	default:
		next.selected = selectedVersion
		next.cache = instancecache.New(r.appID, r.serviceName, r.rule, latestV, selected)
		r.log.Debug("version rule selection changed", logger.Fields(
			logger.FieldVersion, selectedVersion.String(), "instances", len(selected),
			logger.FieldCacheVersion, next.cache.VersionedCache().CacheVersion()))
	}
	r.state.Store(next)
}

// latestVersion returns the version of the highest versioned instance, or the
// highest known version when no instance has a known version.
func latestVersion(versions map[string]*MicroserviceVersion, instances []*registry.MicroserviceInstance) *MicroserviceVersion {
	var latest *MicroserviceVersion
	for _, inst := range instances {
		mv, ok := versions[inst.ServiceID]
		if ok && (latest == nil || latest.Version().Less(mv.Version())) {
			latest = mv
		}
	}
	if latest != nil {
		return latest
	}
	for _, mv := range versions {
		if latest == nil || latest.Version().Less(mv.Version()) {
			latest = mv
		}
	}
	return latest
}

func sortedVersions(m map[string]*MicroserviceVersion) []*MicroserviceVersion {
	out := make([]*MicroserviceVersion, 0, len(m))
	for _, mv := range m {
		out = append(out, mv)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Version().Equal(out[j].Version()) {
			return out[i].ServiceID() < out[j].ServiceID()
		}
		return out[i].Version().Less(out[j].Version())
	})
	return out
}
