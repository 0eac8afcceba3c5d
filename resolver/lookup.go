package resolver

import (
	"time"

	"github.com/kbukum/gokit-discovery/consumer"
	"github.com/kbukum/gokit-discovery/discovery"
	"github.com/kbukum/gokit-discovery/discovery/filter"
	"github.com/kbukum/gokit-discovery/registry"
	"github.com/kbukum/gokit-discovery/resilience"
)

// InstanceView is the read-only rendering of one instance.
type InstanceView struct {
	InstanceID string   `json:"instance_id" yaml:"instance_id"`
	ServiceID  string   `json:"service_id" yaml:"service_id"`
	Status     string   `json:"status" yaml:"status"`
	Endpoints  []string `json:"endpoints" yaml:"endpoints"`
}

// RuleView is the state of one version rule of a service.
type RuleView struct {
	AppID           string         `json:"app_id" yaml:"app_id"`
	ServiceName     string         `json:"service_name" yaml:"service_name"`
	VersionRule     string         `json:"version_rule" yaml:"version_rule"`
	LatestVersion   string         `json:"latest_version,omitempty" yaml:"latest_version,omitempty"`
	SelectedVersion string         `json:"selected_version,omitempty" yaml:"selected_version,omitempty"`
	Versions        []string       `json:"versions" yaml:"versions"`
	Instances       []InstanceView `json:"instances" yaml:"instances"`
	CacheVersion    int64          `json:"cache_version" yaml:"cache_version"`
}

// ServiceView summarises one tracked service.
type ServiceView struct {
	AppID         string    `json:"app_id" yaml:"app_id"`
	ServiceName   string    `json:"service_name" yaml:"service_name"`
	Rules         []string  `json:"rules" yaml:"rules"`
	Versions      []string  `json:"versions" yaml:"versions"`
	Instances     int       `json:"instances" yaml:"instances"`
	WaitingDelete bool      `json:"waiting_delete" yaml:"waiting_delete"`
	LastPull      time.Time `json:"last_pull,omitempty" yaml:"last_pull,omitempty"`
}

// Discover returns the endpoints of the service for the rule and transport.
// An empty transport uses the configured default. Only a malformed rule is
// an error; an unknown or empty service yields no endpoints.
func (r *Resolver) Discover(dc *discovery.Context, appID, serviceName, versionRule, transport string) ([]filter.Endpoint, error) {
	if dc == nil {
		dc = discovery.NewContext()
	}
	if transport != "" {
		dc.WithTransport(transport)
	}
	if appID == "" {
		appID = r.cfg.AppID
	}
	node, err := r.tree.Discovery(dc, appID, serviceName, versionRule)
	if err != nil {
		return nil, err
	}
	return filter.Endpoints(node), nil
}

// RecordOutcome feeds the result of a call to ep into the breaker, which
// isolates the instance once it keeps failing.
func (r *Resolver) RecordOutcome(ep filter.Endpoint, err error) {
	if ep.Instance == nil {
		return
	}
	r.breaker.Record(ep.Instance.InstanceID, err)
}

// Versions resolves the rule and reports what it currently selects.
func (r *Resolver) Versions(appID, serviceName, versionRule string) (*RuleView, error) {
	if appID == "" {
		appID = r.cfg.AppID
	}
	rule, err := r.apps.Resolve(appID, serviceName, versionRule)
	if err != nil {
		return nil, err
	}
	return ruleView(rule), nil
}

// InstanceCache resolves the rule through the instance cache manager, which
// keeps snapshots fed by change events rather than pulls.
func (r *Resolver) InstanceCache(appID, serviceName, versionRule string) ([]InstanceView, error) {
	if appID == "" {
		appID = r.cfg.AppID
	}
	appID, serviceName = registry.SplitServiceName(appID, serviceName)
	cache, err := r.instances.GetOrCreate(appID, serviceName, versionRule)
	if err != nil {
		return nil, err
	}
	return instanceViews(cache.Instances().Sorted()), nil
}

// Services lists every tracked service.
func (r *Resolver) Services() []ServiceView {
	var out []ServiceView
	for _, m := range r.apps.Managers() {
		for _, mv := range m.Services() {
			view := ServiceView{
				AppID:         mv.AppID(),
				ServiceName:   mv.ServiceName(),
				Instances:     len(mv.Instances()),
				WaitingDelete: mv.WaitingDelete(),
				LastPull:      mv.LastPull(),
			}
			for _, rule := range mv.Rules() {
				view.Rules = append(view.Rules, rule.VersionRule())
			}
			for _, v := range mv.Versions() {
				view.Versions = append(view.Versions, v.Version().String())
			}
			out = append(out, view)
		}
	}
	return out
}

// Isolated lists the instances currently excluded by the isolation filter.
func (r *Resolver) Isolated() []string { return r.isolation.Isolated() }

// BreakerStats reports the breaker counters per instance.
func (r *Resolver) BreakerStats() []resilience.InstanceStats { return r.breaker.Stats() }

func ruleView(rule *consumer.MicroserviceVersionRule) *RuleView {
	view := &RuleView{
		AppID:        rule.AppID(),
		ServiceName:  rule.ServiceName(),
		VersionRule:  rule.VersionRule(),
		Versions:     []string{},
		Instances:    instanceViews(rule.Instances().Sorted()),
		CacheVersion: rule.VersionedCache().CacheVersion(),
	}
	if latest := rule.LatestVersion(); latest != nil {
		view.LatestVersion = latest.Version().String()
	}
	if selected := rule.SelectedVersion(); selected != nil {
		view.SelectedVersion = selected.Version().String()
	}
	for _, v := range rule.Versions() {
		view.Versions = append(view.Versions, v.Version().String())
	}
	return view
}

func instanceViews(instances []*registry.MicroserviceInstance) []InstanceView {
	out := make([]InstanceView, 0, len(instances))
	for _, inst := range instances {
		out = append(out, InstanceView{
			InstanceID: inst.InstanceID,
			ServiceID:  inst.ServiceID,
			Status:     string(inst.Status),
			Endpoints:  inst.Endpoints,
		})
	}
	return out
}
