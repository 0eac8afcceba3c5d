package consul

import (
	"context"
	"testing"

	"github.com/hashicorp/consul/api"

	"github.com/kbukum/gokit-discovery/errors"
	"github.com/kbukum/gokit-discovery/event"
	"github.com/kbukum/gokit-discovery/registry"
)

func entry(id, app, ver, status string, meta map[string]string, tags ...string) *api.ServiceEntry {
	m := map[string]string{}
	if app != "" {
		m[MetaAppID] = app
	}
	if ver != "" {
		m[MetaVersion] = ver
	}
	for k, v := range meta {
		m[k] = v
	}
	return &api.ServiceEntry{
		Node:    &api.Node{Node: "node-1", Address: "10.0.0.9"},
		Service: &api.AgentService{ID: id, Service: "orders", Address: "10.0.0.1", Port: 8080, Meta: m, Tags: tags},
		Checks:  api.HealthChecks{{Status: status}},
	}
}

func TestEntryToRecord_Endpoints(t *testing.T) {
	tests := []struct {
		name string
		e    *api.ServiceEntry
		want []string
	}{
		{"default transport", entry("i1", "shop", "1.0.0", api.HealthPassing, nil), []string{"rest://10.0.0.1:8080"}},
		{"protocol meta", entry("i1", "shop", "1.0.0", api.HealthPassing, map[string]string{MetaProtocol: "highway"}), []string{"highway://10.0.0.1:8080"}},
		{"protocol tag", entry("i1", "shop", "1.0.0", api.HealthPassing, nil, "v1", "grpc"), []string{"grpc://10.0.0.1:8080"}},
		{"explicit endpoints", entry("i1", "shop", "1.0.0", api.HealthPassing, map[string]string{MetaEndpoints: "rest://a:1, highway://a:2"}), []string{"rest://a:1", "highway://a:2"}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			r := entryToRecord(tc.e, "rest")
			got := r.instance.Endpoints
			if len(got) != len(tc.want) {
				t.Fatalf("endpoints = %v, want %v", got, tc.want)
			}
			for i := range got {
				if got[i] != tc.want[i] {
					t.Errorf("endpoints = %v, want %v", got, tc.want)
				}
			}
		})
	}
}

func TestEntryToRecord_NodeAddressFallback(t *testing.T) {
	e := entry("i1", "shop", "1.0.0", api.HealthPassing, nil)
	e.Service.Address = ""
	r := entryToRecord(e, "rest")
	if r.instance.Endpoints[0] != "rest://10.0.0.9:8080" {
		t.Errorf("expected node address, got %v", r.instance.Endpoints)
	}
	if r.instance.HostName != "node-1" {
		t.Errorf("unexpected host %q", r.instance.HostName)
	}
}

func TestEntryToRecord_StatusAndIDs(t *testing.T) {
	r := entryToRecord(entry("i1", "", "", api.HealthCritical, nil), "rest")
	if r.instance.Status != registry.StatusDown {
		t.Errorf("expected DOWN, got %s", r.instance.Status)
	}
	if r.version != defaultVersion {
		t.Errorf("expected default version, got %s", r.version)
	}
	if r.instance.ServiceID != "default/orders/0.0.0" {
		t.Errorf("unexpected service id %q", r.instance.ServiceID)
	}

	maint := entryToRecord(entry("i2", "shop", "1", api.HealthMaint, nil), "rest")
	if maint.instance.Status != registry.StatusOutOfService {
		t.Errorf("expected OUTOFSERVICE, got %s", maint.instance.Status)
	}
	warn := entryToRecord(entry("i3", "shop", "1", api.HealthWarning, nil), "rest")
	if warn.instance.Status != registry.StatusUp {
		t.Errorf("expected UP for warning, got %s", warn.instance.Status)
	}
}

func TestServiceIDRoundTrip(t *testing.T) {
	ms, err := parseServiceID(serviceID("shop", "orders", "1.2.0"))
	if err != nil {
		t.Fatal(err)
	}
	if ms.AppID != "shop" || ms.ServiceName != "orders" || ms.Version != "1.2.0" {
		t.Errorf("unexpected microservice %+v", ms)
	}
	if _, err := parseServiceID("garbage"); !errors.HasCode(err, errors.ErrCodeServiceNotFound) {
		t.Errorf("expected SERVICE_NOT_FOUND, got %v", err)
	}

	c := &Client{}
	if _, err := c.GetMicroservice(context.Background(), "shop/orders/1"); err != nil {
		t.Errorf("GetMicroservice failed: %v", err)
	}
}

func TestSnapshot_FiltersApp(t *testing.T) {
	entries := []*api.ServiceEntry{
		entry("i1", "shop", "1", api.HealthPassing, nil),
		entry("i2", "billing", "1", api.HealthPassing, nil),
		{Service: nil},
	}
	snap := snapshot(entries, "shop", "rest")
	if len(snap) != 1 {
		t.Fatalf("expected 1 record, got %d", len(snap))
	}
	if _, ok := snap["i1"]; !ok {
		t.Error("expected i1")
	}
}

func TestDiff(t *testing.T) {
	prev := snapshot([]*api.ServiceEntry{
		entry("keep", "shop", "1", api.HealthPassing, nil),
		entry("change", "shop", "1", api.HealthPassing, nil),
		entry("gone", "shop", "1", api.HealthPassing, nil),
	}, "shop", "rest")
	cur := snapshot([]*api.ServiceEntry{
		entry("keep", "shop", "1", api.HealthPassing, nil),
		entry("change", "shop", "1", api.HealthCritical, nil),
		entry("new", "shop", "2", api.HealthPassing, nil),
	}, "shop", "rest")

	got := map[string]event.Action{}
	for _, ev := range diff("shop", "orders", prev, cur) {
		got[ev.Instance.InstanceID] = ev.Action
		if ev.AppID != "shop" || ev.ServiceName != "orders" {
			t.Errorf("unexpected key on %+v", ev)
		}
	}
	want := map[string]event.Action{"change": event.ActionUpdate, "gone": event.ActionDelete, "new": event.ActionCreate}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for id, a := range want {
		if got[id] != a {
			t.Errorf("%s: got %s, want %s", id, got[id], a)
		}
	}
}

func TestConfig_DefaultsAndValidate(t *testing.T) {
	var cfg Config
	cfg.ApplyDefaults()
	if cfg.Address != "localhost:8500" || cfg.Scheme != "http" || cfg.DefaultTransport != "rest" {
		t.Errorf("unexpected defaults %+v", cfg)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}
	cfg.TLS = &TLSConfig{Enabled: true}
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for TLS without https")
	}
	cfg.Scheme = "ftp"
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for bad scheme")
	}
}

func TestNewClient(t *testing.T) {
	c, err := NewClient(Config{}, nil)
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	if c.cfg.WatchWait == 0 {
		t.Error("expected defaults applied")
	}
	if _, err := NewClient(Config{Scheme: "ftp"}, nil); !errors.HasCode(err, errors.ErrCodeInvalidConfig) {
		t.Errorf("expected INVALID_CONFIG, got %v", err)
	}
}
