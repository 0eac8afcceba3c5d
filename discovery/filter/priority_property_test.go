package filter

import (
	"testing"
	"time"

	"github.com/kbukum/gokit-discovery/discovery"
	"github.com/kbukum/gokit-discovery/event"
	"github.com/kbukum/gokit-discovery/logger"
	"github.com/kbukum/gokit-discovery/registry"
)

func zonedInstances() registry.InstanceMap {
	inst := func(id, ip, env string) *registry.MicroserviceInstance {
		i := &registry.MicroserviceInstance{InstanceID: id, ServiceID: "s-1", Status: registry.StatusUp, Endpoints: []string{"rest://" + ip + ":80"}}
		if env != "" {
			i.Properties = map[string]string{"environment": env}
		}
		return i
	}
	return registry.NewInstanceMap([]*registry.MicroserviceInstance{
		inst("p-1", "10.0.1.1", "prod.eu.az1"),
		inst("p-2", "10.0.1.2", "prod.eu"),
		inst("p-3", "10.0.1.3", "prod"),
		inst("p-4", "10.0.1.4", ""),
	})
}

func resolveIDs(t *testing.T, tree *discovery.Tree, ctx *discovery.Context) []string {
	t.Helper()
	node, err := tree.Discovery(ctx.WithTransport("rest"), "default", "orders", "1.0.0+")
	if err != nil {
		t.Fatalf("Discovery() error = %v", err)
	}
	var ids []string
	for _, ep := range Endpoints(node) {
		ids = append(ids, ep.Instance.InstanceID)
	}
	return ids
}

func sameIDs(got, want []string) bool {
	if len(got) != len(want) {
		return false
	}
	for i := range got {
		if got[i] != want[i] {
			return false
		}
	}
	return true
}

func TestPriorityPropertySelectsMostSpecificGroup(t *testing.T) {
	tests := []struct {
		name  string
		cfg   PriorityPropertyConfig
		input string
		want  []string
	}{
		{"exact match", PriorityPropertyConfig{Enabled: true}, "prod.eu.az1", []string{"p-1"}},
		{"walks up to existing group", PriorityPropertyConfig{Enabled: true}, "prod.eu.az9", []string{"p-2"}},
		{"unknown value uses unlabelled group", PriorityPropertyConfig{Enabled: true}, "staging", []string{"p-4"}},
		{"configured value without input", PriorityPropertyConfig{Enabled: true, Value: "prod"}, "", []string{"p-3"}},
		{"input wins over configured value", PriorityPropertyConfig{Enabled: true, Value: "prod"}, "prod.eu", []string{"p-2"}},
		{"all instances", PriorityPropertyConfig{Enabled: true}, AllInstances, []string{"p-1", "p-2", "p-3", "p-4"}},
		{"disabled", PriorityPropertyConfig{}, "prod.eu.az1", []string{"p-1", "p-2", "p-3", "p-4"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tree := discovery.NewTree(staticSource(zonedInstances()), logger.NewNop(), []discovery.Filter{
				NewVersionRuleFilter(),
				NewPriorityPropertyFilter(tt.cfg, nil),
				NewEndpointFilter(EndpointConfig{}, nil),
			})
			ctx := discovery.NewContext()
			if tt.input != "" {
				ctx = ctx.WithInput("x-environment", tt.input)
			}
			if got := resolveIDs(t, tree, ctx); !sameIDs(got, tt.want) {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestPriorityPropertyFallsBackWhenGroupIsIsolated(t *testing.T) {
	iso := NewIsolationFilter(IsolationConfig{Enabled: true}, nil, nil)
	tree := discovery.NewTree(staticSource(zonedInstances()), logger.NewNop(), []discovery.Filter{
		NewVersionRuleFilter(),
		NewPriorityPropertyFilter(PriorityPropertyConfig{Enabled: true}, nil),
		iso,
		NewEndpointFilter(EndpointConfig{}, nil),
	})
	input := func() *discovery.Context {
		return discovery.NewContext().WithInput("x-environment", "prod.eu.az1")
	}

	if got := resolveIDs(t, tree, input()); !sameIDs(got, []string{"p-1"}) {
		t.Fatalf("expected p-1 before isolation, got %v", got)
	}

	iso.OnInstanceIsolated(event.InstanceIsolatedEvent{InstanceID: "p-1", Duration: time.Minute})
	if got := resolveIDs(t, tree, input()); !sameIDs(got, []string{"p-2"}) {
		t.Errorf("expected fallback to prod.eu, got %v", got)
	}

	iso.OnInstanceIsolated(event.InstanceIsolatedEvent{InstanceID: "p-2", Duration: time.Minute})
	if got := resolveIDs(t, tree, input()); !sameIDs(got, []string{"p-3"}) {
		t.Errorf("expected fallback to prod, got %v", got)
	}

	iso.OnInstanceIsolated(event.InstanceIsolatedEvent{InstanceID: "p-3", Duration: time.Minute})
	if got := resolveIDs(t, tree, input()); !sameIDs(got, []string{"p-4"}) {
		t.Errorf("expected fallback to the unlabelled group, got %v", got)
	}
}

func TestPriorityPropertyCustomKey(t *testing.T) {
	data := registry.NewInstanceMap([]*registry.MicroserviceInstance{
		{InstanceID: "z-1", Status: registry.StatusUp, Endpoints: []string{"rest://10.0.2.1:80"}, Properties: map[string]string{"zone": "eu.a"}},
		{InstanceID: "z-2", Status: registry.StatusUp, Endpoints: []string{"rest://10.0.2.2:80"}, Properties: map[string]string{"zone": "eu"}},
	})
	tree := discovery.NewTree(staticSource(data), logger.NewNop(), []discovery.Filter{
		NewVersionRuleFilter(),
		NewPriorityPropertyFilter(PriorityPropertyConfig{Enabled: true, Key: "zone"}, nil),
		NewEndpointFilter(EndpointConfig{}, nil),
	})
	ctx := discovery.NewContext().WithInput("x-zone", "eu.b")
	if got := resolveIDs(t, tree, ctx); !sameIDs(got, []string{"z-2"}) {
		t.Errorf("got %v, want [z-2]", got)
	}
}

func TestLowerPriority(t *testing.T) {
	tests := map[string]string{
		"prod.eu.az1": "prod.eu",
		"prod":        "",
		"":            "",
		".x":          "",
	}
	for in, want := range tests {
		if got := lowerPriority(in); got != want {
			t.Errorf("lowerPriority(%q) = %q, want %q", in, got, want)
		}
	}
}
