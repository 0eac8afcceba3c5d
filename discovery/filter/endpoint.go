package filter

import (
	"net/url"
	"slices"

	"github.com/kbukum/gokit-discovery/discovery"
	"github.com/kbukum/gokit-discovery/logger"
	"github.com/kbukum/gokit-discovery/registry"
)

// EndpointOrder positions the endpoint filter last.
const EndpointOrder = 1000

// Endpoint is one addressable candidate for a load balancer.
type Endpoint struct {
	Transport string                         `json:"transport" yaml:"transport"`
	Address   string                         `json:"address" yaml:"address"`
	URI       string                         `json:"uri" yaml:"uri"`
	Instance  *registry.MicroserviceInstance `json:"instance" yaml:"instance"`
}

// EndpointConfig configures the endpoint filter.
type EndpointConfig struct {
	// Transports restricts the transports children are built for. Empty
	// allows every transport.
	Transports []string `mapstructure:"transports" json:"transports,omitempty"`
	// DefaultTransport is used when the invocation names none.
	DefaultTransport string `mapstructure:"default_transport" json:"default_transport,omitempty"`
}

// EndpointFilter groups the instance set into endpoints per transport.
type EndpointFilter struct {
	cfg EndpointConfig
	log *logger.Logger
}

// NewEndpointFilter creates an endpoint filter.
func NewEndpointFilter(cfg EndpointConfig, log *logger.Logger) *EndpointFilter {
	return &EndpointFilter{cfg: cfg, log: logger.OrNop(log).WithComponent("endpoint-filter")}
}

func (f *EndpointFilter) Name() string           { return "endpoint" }
func (f *EndpointFilter) Order() int             { return EndpointOrder }
func (f *EndpointFilter) Enabled() bool          { return true }
func (f *EndpointFilter) IsGroupingFilter() bool { return true }
func (f *EndpointFilter) EmptyData() any         { return []Endpoint{} }

func (f *EndpointFilter) Discovery(ctx *discovery.Context, parent *discovery.Node) *discovery.Node {
	return discovery.DiscoverChild(ctx, parent, f)
}

// Init builds one child per transport. Instances are visited in id order so
// the endpoint lists are stable across rebuilds.
func (f *EndpointFilter) Init(_ *discovery.Context, parent *discovery.Node) {
	groups := make(map[string][]Endpoint)
	for _, inst := range discovery.DataAs[registry.InstanceMap](parent).Sorted() {
		for _, raw := range inst.Endpoints {
			ep, ok := f.parse(inst, raw)
			if !ok {
				continue
			}
			groups[ep.Transport] = append(groups[ep.Transport], ep)
		}
	}
	for transport, endpoints := range groups {
		parent.PutChild(transport, parent.Derive(endpoints))
	}
}

func (f *EndpointFilter) FindChildName(ctx *discovery.Context, _ *discovery.Node) string {
	if ctx.Transport == "" {
		return f.cfg.DefaultTransport
	}
	return ctx.Transport
}

func (f *EndpointFilter) parse(inst *registry.MicroserviceInstance, raw string) (Endpoint, bool) {
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" {
		f.log.Warn("skipping malformed endpoint", map[string]interface{}{
			logger.FieldInstanceID: inst.InstanceID,
			"endpoint":             raw,
		})
		return Endpoint{}, false
	}
	if len(f.cfg.Transports) > 0 && !slices.Contains(f.cfg.Transports, u.Scheme) {
		return Endpoint{}, false
	}
	return Endpoint{Transport: u.Scheme, Address: u.Host, URI: raw, Instance: inst}, true
}

// Endpoints returns the endpoint payload of a node produced by the filter.
func Endpoints(n *discovery.Node) []Endpoint {
	return discovery.DataAs[[]Endpoint](n)
}
