package admin

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/kbukum/gokit-discovery/component"
	"github.com/kbukum/gokit-discovery/config"
	"github.com/kbukum/gokit-discovery/discovery"
	"github.com/kbukum/gokit-discovery/discovery/filter"
	"github.com/kbukum/gokit-discovery/errors"
	"github.com/kbukum/gokit-discovery/logger"
	"github.com/kbukum/gokit-discovery/registry"
	"github.com/kbukum/gokit-discovery/resilience"
	"github.com/kbukum/gokit-discovery/resolver"
)

type fakeBackend struct {
	lastApp, lastService, lastRule, lastTransport string
	lastContextID                                 string
	endpoints                                     []filter.Endpoint
	err                                           error
}

func (f *fakeBackend) Discover(dc *discovery.Context, appID, serviceName, versionRule, transport string) ([]filter.Endpoint, error) {
	f.lastApp, f.lastService, f.lastRule, f.lastTransport = appID, serviceName, versionRule, transport
	f.lastContextID = dc.ID
	return f.endpoints, f.err
}

func (f *fakeBackend) Versions(appID, serviceName, versionRule string) (*resolver.RuleView, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &resolver.RuleView{AppID: appID, ServiceName: serviceName, VersionRule: versionRule, SelectedVersion: "2.0.0"}, nil
}

func (f *fakeBackend) InstanceCache(appID, serviceName, versionRule string) ([]resolver.InstanceView, error) {
	return []resolver.InstanceView{{InstanceID: "i1"}}, f.err
}

func (f *fakeBackend) Services() []resolver.ServiceView { return nil }
func (f *fakeBackend) Isolated() []string               { return []string{"i9"} }
func (f *fakeBackend) BreakerStats() []resilience.InstanceStats {
	return []resilience.InstanceStats{{InstanceID: "i9", State: "open"}}
}

func newTestServer(backend Backend, health HealthChecker) *Server {
	return New(config.AdminConfig{Address: "127.0.0.1:0"}, NewHandlers("discoveryctl", "0.1.0", backend, health), nil, logger.NewNop())
}

func get(t *testing.T, s *Server, path string, header map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, http.NoBody)
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rr := httptest.NewRecorder()
	s.Engine().ServeHTTP(rr, req)
	return rr
}

func decode(t *testing.T, rr *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(rr.Body.Bytes(), v); err != nil {
		t.Fatalf("invalid JSON %q: %v", rr.Body.String(), err)
	}
}

func TestDiscovery(t *testing.T) {
	backend := &fakeBackend{endpoints: []filter.Endpoint{{
		Transport: "rest", Address: "10.0.0.1:8080", URI: "rest://10.0.0.1:8080",
		Instance: &registry.MicroserviceInstance{InstanceID: "i1"},
	}}}
	s := newTestServer(backend, nil)

	rr := get(t, s, "/v1/discovery/shop/orders?rule=1.0.0%2B&transport=rest", map[string]string{headerRequestID: "req-7"})
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var body struct {
		Data []filter.Endpoint `json:"data"`
		Meta Meta              `json:"meta"`
	}
	decode(t, rr, &body)
	if len(body.Data) != 1 || body.Data[0].Address != "10.0.0.1:8080" || body.Meta.Total != 1 {
		t.Errorf("unexpected body %+v", body)
	}
	if backend.lastApp != "shop" || backend.lastService != "orders" || backend.lastRule != "1.0.0+" || backend.lastTransport != "rest" {
		t.Errorf("unexpected backend call %+v", backend)
	}
	if backend.lastContextID != "req-7" {
		t.Errorf("expected the request id to flow into the discovery context, got %q", backend.lastContextID)
	}
	if rr.Header().Get(headerRequestID) != "req-7" {
		t.Errorf("expected the request id to be echoed")
	}
}

func TestDiscoveryDefaultsToLatest(t *testing.T) {
	backend := &fakeBackend{}
	s := newTestServer(backend, nil)
	rr := get(t, s, "/v1/discovery/shop/orders", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if backend.lastRule != "latest" {
		t.Errorf("expected latest, got %q", backend.lastRule)
	}
	if rr.Header().Get(headerRequestID) == "" {
		t.Error("expected a generated request id")
	}
}

func TestInvalidRule(t *testing.T) {
	s := newTestServer(&fakeBackend{}, nil)
	for _, path := range []string{"/v1/discovery/shop/orders?rule=abc", "/v1/versions/shop/orders?rule=2.0.0-1.0.0"} {
		t.Run(path, func(t *testing.T) {
			rr := get(t, s, path, nil)
			if rr.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d", rr.Code)
			}
			var body errors.ErrorResponse
			decode(t, rr, &body)
			if body.Error.Code != errors.ErrCodeValidation {
				t.Errorf("unexpected error body %+v", body)
			}
		})
	}
}

func TestBackendErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"app error keeps its status", errors.ServiceNotFound("shop", "orders"), http.StatusNotFound},
		{"plain error is internal", context.DeadlineExceeded, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(&fakeBackend{err: tt.err}, nil)
			if rr := get(t, s, "/v1/versions/shop/orders", nil); rr.Code != tt.want {
				t.Errorf("expected %d, got %d", tt.want, rr.Code)
			}
		})
	}
}

func TestVersionsInstancesServicesIsolation(t *testing.T) {
	s := newTestServer(&fakeBackend{}, nil)

	rr := get(t, s, "/v1/versions/shop/orders?rule=latest", nil)
	var versions struct {
		Data resolver.RuleView `json:"data"`
	}
	decode(t, rr, &versions)
	if versions.Data.SelectedVersion != "2.0.0" || versions.Data.VersionRule != "latest" {
		t.Errorf("unexpected versions %+v", versions.Data)
	}

	rr = get(t, s, "/v1/instances/shop/orders", nil)
	var instances struct {
		Data []resolver.InstanceView `json:"data"`
	}
	decode(t, rr, &instances)
	if len(instances.Data) != 1 {
		t.Errorf("unexpected instances %+v", instances.Data)
	}

	rr = get(t, s, "/v1/services", nil)
	if rr.Code != http.StatusOK || !json.Valid(rr.Body.Bytes()) {
		t.Errorf("unexpected services response %d %s", rr.Code, rr.Body.String())
	}
	var services struct {
		Data []resolver.ServiceView `json:"data"`
	}
	decode(t, rr, &services)
	if services.Data == nil {
		t.Error("expected an empty list rather than null")
	}

	rr = get(t, s, "/v1/isolation", nil)
	var isolation struct {
		Data struct {
			Isolated []string                   `json:"isolated"`
			Breaker  []resilience.InstanceStats `json:"breaker"`
		} `json:"data"`
	}
	decode(t, rr, &isolation)
	if len(isolation.Data.Isolated) != 1 || isolation.Data.Breaker[0].State != "open" {
		t.Errorf("unexpected isolation %+v", isolation.Data)
	}
}

func TestHealthAndProbes(t *testing.T) {
	tests := []struct {
		name       string
		status     component.HealthStatus
		wantHealth int
		wantReady  int
		wantStatus string
	}{
		{"healthy", component.StatusHealthy, http.StatusOK, http.StatusOK, "up"},
		{"degraded", component.StatusDegraded, http.StatusOK, http.StatusOK, "degraded"},
		{"unhealthy", component.StatusUnhealthy, http.StatusServiceUnavailable, http.StatusServiceUnavailable, "down"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			checker := func(context.Context) []component.Health {
				return []component.Health{{Name: "resolver", Status: tt.status}}
			}
			s := newTestServer(&fakeBackend{}, checker)

			rr := get(t, s, "/healthz", nil)
			if rr.Code != tt.wantHealth {
				t.Errorf("healthz: expected %d, got %d", tt.wantHealth, rr.Code)
			}
			var body struct {
				Status string `json:"status"`
			}
			decode(t, rr, &body)
			if body.Status != tt.wantStatus {
				t.Errorf("expected status %q, got %q", tt.wantStatus, body.Status)
			}
			if rr := get(t, s, "/readyz", nil); rr.Code != tt.wantReady {
				t.Errorf("readyz: expected %d, got %d", tt.wantReady, rr.Code)
			}
			if rr := get(t, s, "/livez", nil); rr.Code != http.StatusOK {
				t.Errorf("livez: expected 200, got %d", rr.Code)
			}
		})
	}
}

func TestRecovery(t *testing.T) {
	s := newTestServer(&fakeBackend{}, nil)
	s.Engine().GET("/panic", func(*gin.Context) { panic("boom") })
	if rr := get(t, s, "/panic", nil); rr.Code != http.StatusInternalServerError {
		t.Errorf("expected 500, got %d", rr.Code)
	}
}

func TestServerLifecycle(t *testing.T) {
	s := newTestServer(&fakeBackend{}, nil)
	ctx := context.Background()
	if h := s.Health(ctx); h.Status != component.StatusUnhealthy {
		t.Errorf("expected unhealthy before start, got %s", h.Status)
	}
	if err := s.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if h := s.Health(ctx); h.Status != component.StatusHealthy {
		t.Errorf("expected healthy, got %s", h.Status)
	}

	resp, err := http.Get("http://" + s.Addr() + "/livez")
	if err != nil {
		t.Fatalf("GET /livez: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected 200, got %d", resp.StatusCode)
	}

	if err := s.Stop(ctx); err != nil {
		t.Fatalf("Stop: %v", err)
	}
}

func TestRoutes(t *testing.T) {
	s := newTestServer(&fakeBackend{}, nil)
	routes := s.Routes()
	if len(routes) != 8 {
		t.Fatalf("expected 8 routes, got %d", len(routes))
	}
	if probePaths[routes[0].Path] {
		t.Errorf("expected API routes first, got %s", routes[0].Path)
	}
	if got := handlerName("github.com/kbukum/gokit-discovery/admin.(*Handlers).Discovery-fm"); got != "Handlers.Discovery" {
		t.Errorf("unexpected handler name %q", got)
	}
}
