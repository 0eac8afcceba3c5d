package admin

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/kbukum/gokit-discovery/component"
	"github.com/kbukum/gokit-discovery/discovery"
	"github.com/kbukum/gokit-discovery/discovery/filter"
	"github.com/kbukum/gokit-discovery/observability"
	"github.com/kbukum/gokit-discovery/resilience"
	"github.com/kbukum/gokit-discovery/resolver"
	"github.com/kbukum/gokit-discovery/validation"
	"github.com/kbukum/gokit-discovery/version"
)

// Backend is the resolver surface the handlers read from.
type Backend interface {
	Discover(dc *discovery.Context, appID, serviceName, versionRule, transport string) ([]filter.Endpoint, error)
	Versions(appID, serviceName, versionRule string) (*resolver.RuleView, error)
	InstanceCache(appID, serviceName, versionRule string) ([]resolver.InstanceView, error)
	Services() []resolver.ServiceView
	Isolated() []string
	BreakerStats() []resilience.InstanceStats
}

// HealthChecker returns the health of the registered components.
type HealthChecker func(ctx context.Context) []component.Health

// Handlers serves the inspection routes.
type Handlers struct {
	serviceName string
	version     string
	backend     Backend
	health      HealthChecker
}

// NewHandlers creates the handlers. health may be nil.
func NewHandlers(serviceName, version string, backend Backend, health HealthChecker) *Handlers {
	return &Handlers{serviceName: serviceName, version: version, backend: backend, health: health}
}

// Register mounts every route on r.
func (h *Handlers) Register(r gin.IRouter) {
	r.GET("/healthz", h.Health)
	r.GET("/livez", h.Liveness)
	r.GET("/readyz", h.Readiness)

	v1 := r.Group("/v1")
	v1.GET("/discovery/:app/:service", h.Discovery)
	v1.GET("/versions/:app/:service", h.Versions)
	v1.GET("/instances/:app/:service", h.Instances)
	v1.GET("/services", h.Services)
	v1.GET("/isolation", h.Isolation)
}

// target reads and validates the service coordinates of a request.
func target(c *gin.Context) (appID, serviceName, rule string, err error) {
	appID = c.Param("app")
	serviceName = c.Param("service")
	rule = c.DefaultQuery("rule", version.LatestKeyword)

	v := validation.New().
		Required("app", appID).
		Required("service", serviceName).
		VersionRule("rule", rule)
	if appErr := v.Validate(); appErr != nil {
		return "", "", "", appErr
	}
	return appID, serviceName, rule, nil
}

// Health reports the aggregated component health.
func (h *Handlers) Health(c *gin.Context) {
	sh := observability.NewServiceHealth(h.serviceName, h.version)
	if h.health != nil {
		for _, ch := range h.health(c.Request.Context()) {
			sh.AddComponent(ch)
		}
	}
	status := http.StatusOK
	if sh.Status == observability.HealthStatusDown {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, sh)
}

// Liveness confirms the process serves HTTP.
func (h *Handlers) Liveness(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "alive",
		"service":   h.serviceName,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// Readiness fails while any component is unhealthy.
func (h *Handlers) Readiness(c *gin.Context) {
	status, code := "ready", http.StatusOK
	if h.health != nil {
		for _, ch := range h.health(c.Request.Context()) {
			if ch.Status == component.StatusUnhealthy {
				status, code = "not_ready", http.StatusServiceUnavailable
				break
			}
		}
	}
	c.JSON(code, gin.H{
		"status":    status,
		"service":   h.serviceName,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// Discovery resolves the endpoints of a service.
func (h *Handlers) Discovery(c *gin.Context) {
	appID, serviceName, rule, err := target(c)
	if err != nil {
		RespondWithError(c, err)
		return
	}
	transport := c.Query("transport")
	observability.SetSpanAttribute(c.Request.Context(), observability.AttrAppID, appID)
	observability.SetSpanAttribute(c.Request.Context(), observability.AttrService, serviceName)
	observability.SetSpanAttribute(c.Request.Context(), observability.AttrVersionRule, rule)

	dc := discovery.NewContext()
	if id := c.GetString(keyRequestID); id != "" {
		dc.ID = id
	}
	endpoints, err := h.backend.Discover(dc, appID, serviceName, rule, transport)
	if err != nil {
		RespondWithError(c, err)
		return
	}
	observability.SetSpanAttribute(c.Request.Context(), observability.AttrInstances, len(endpoints))
	RespondList(c, endpoints, len(endpoints))
}

// Versions reports the version selection of a rule.
func (h *Handlers) Versions(c *gin.Context) {
	appID, serviceName, rule, err := target(c)
	if err != nil {
		RespondWithError(c, err)
		return
	}
	view, err := h.backend.Versions(appID, serviceName, rule)
	if err != nil {
		RespondWithError(c, err)
		return
	}
	RespondOK(c, view)
}

// Instances reports the instance cache snapshot of a rule.
func (h *Handlers) Instances(c *gin.Context) {
	appID, serviceName, rule, err := target(c)
	if err != nil {
		RespondWithError(c, err)
		return
	}
	instances, err := h.backend.InstanceCache(appID, serviceName, rule)
	if err != nil {
		RespondWithError(c, err)
		return
	}
	RespondList(c, instances, len(instances))
}

// Services lists the tracked services.
func (h *Handlers) Services(c *gin.Context) {
	services := h.backend.Services()
	if services == nil {
		services = []resolver.ServiceView{}
	}
	RespondList(c, services, len(services))
}

// Isolation reports the isolated instances and breaker counters.
func (h *Handlers) Isolation(c *gin.Context) {
	RespondOK(c, gin.H{
		"isolated": h.backend.Isolated(),
		"breaker":  h.backend.BreakerStats(),
	})
}
