package config

import (
	"net/http"
	"slices"
	"time"

	"github.com/kbukum/gokit-discovery/discovery/filter"
	"github.com/kbukum/gokit-discovery/errors"
	"github.com/kbukum/gokit-discovery/logger"
	"github.com/kbukum/gokit-discovery/observability"
	"github.com/kbukum/gokit-discovery/registry/consul"
	"github.com/kbukum/gokit-discovery/registry/etcd"
	"github.com/kbukum/gokit-discovery/registry/memory"
	"github.com/kbukum/gokit-discovery/resilience"
	"github.com/kbukum/gokit-discovery/validation"
)

// Backends the registry section accepts.
var Backends = []string{memory.Backend, consul.Backend, etcd.Backend}

// Discovery is the root configuration of a discovery consumer.
type Discovery struct {
	ServiceConfig `yaml:",inline" mapstructure:",squash"`

	// AppID is the application the consumer belongs to. Service names
	// without an "app:" prefix resolve inside it.
	AppID string `yaml:"app_id" mapstructure:"app_id" validate:"required"`

	Registry  RegistryConfig                `yaml:"registry" mapstructure:"registry"`
	Pull      PullConfig                    `yaml:"pull" mapstructure:"pull"`
	Priority  filter.PriorityPropertyConfig `yaml:"priority" mapstructure:"priority"`
	Isolation filter.IsolationConfig        `yaml:"isolation" mapstructure:"isolation"`
	Breaker   resilience.BreakerConfig      `yaml:"breaker" mapstructure:"breaker"`
	Endpoint  filter.EndpointConfig         `yaml:"endpoint" mapstructure:"endpoint"`
	Telemetry TelemetryConfig               `yaml:"telemetry" mapstructure:"telemetry"`
	Admin     AdminConfig                   `yaml:"admin" mapstructure:"admin"`

	// Targets are tracked and pulled during start so the first lookups
	// are served from a warm cache.
	Targets []Target `yaml:"targets" mapstructure:"targets" validate:"dive"`
}

// RegistryConfig selects and configures the registry backend.
type RegistryConfig struct {
	Backend string        `yaml:"backend" mapstructure:"backend"`
	Memory  memory.Config `yaml:"memory" mapstructure:"memory"`
	Consul  consul.Config `yaml:"consul" mapstructure:"consul"`
	Etcd    etcd.Config   `yaml:"etcd" mapstructure:"etcd"`
	// Watch starts a registry watcher per tracked service when the backend
	// supports it.
	Watch bool `yaml:"watch" mapstructure:"watch"`
	// HealthInterval is the period of the registry ping that drives
	// exception and recovery events.
	HealthInterval time.Duration `yaml:"health_interval" mapstructure:"health_interval"`
}

// Provider returns the backend specific configuration for registry.Open.
func (c *RegistryConfig) Provider() any {
	switch c.Backend {
	case consul.Backend:
		return &c.Consul
	case etcd.Backend:
		return &c.Etcd
	default:
		return &c.Memory
	}
}

// PullConfig controls how the registry is polled.
type PullConfig struct {
	// Interval is the period of the periodic pull. Zero disables it.
	Interval time.Duration `yaml:"interval" mapstructure:"interval"`
	// Timeout bounds one pull.
	Timeout time.Duration `yaml:"timeout" mapstructure:"timeout"`
	// FirstWait bounds how long a lookup waits for the first pull of a
	// service that was not tracked yet.
	FirstWait time.Duration `yaml:"first_wait" mapstructure:"first_wait"`
	// Warmup retries the initial pull of the configured targets.
	Warmup resilience.RetryConfig `yaml:"warmup" mapstructure:"warmup"`
}

// TelemetryConfig configures OTLP export of traces and metrics.
type TelemetryConfig struct {
	Enabled        bool          `yaml:"enabled" mapstructure:"enabled"`
	Endpoint       string        `yaml:"endpoint" mapstructure:"endpoint"`
	Insecure       bool          `yaml:"insecure" mapstructure:"insecure"`
	SampleRate     float64       `yaml:"sample_rate" mapstructure:"sample_rate" validate:"gte=0,lte=1"`
	MetricInterval time.Duration `yaml:"metric_interval" mapstructure:"metric_interval"`
}

// AdminConfig configures the read-only inspection API.
type AdminConfig struct {
	Enabled bool   `yaml:"enabled" mapstructure:"enabled"`
	Address string `yaml:"address" mapstructure:"address"`
}

// Target is one service the consumer calls.
type Target struct {
	AppID       string `yaml:"app_id" mapstructure:"app_id"`
	ServiceName string `yaml:"service_name" mapstructure:"service_name" validate:"required"`
	VersionRule string `yaml:"version_rule" mapstructure:"version_rule" validate:"omitempty,version_rule"`
	Transport   string `yaml:"transport" mapstructure:"transport"`
}

// Rule returns the target's rule, "latest" when unset.
func (t Target) Rule() string {
	if t.VersionRule == "" {
		return "latest"
	}
	return t.VersionRule
}

// ApplyDefaults fills unset fields.
func (c *Discovery) ApplyDefaults() {
	if c.Name == "" {
		c.Name = "discoveryctl"
	}
	c.ServiceConfig.ApplyDefaults()

	if c.AppID == "" {
		c.AppID = "default"
	}
	if c.Registry.Backend == "" {
		c.Registry.Backend = memory.Backend
	}
	switch c.Registry.Backend {
	case consul.Backend:
		c.Registry.Consul.ApplyDefaults()
	case etcd.Backend:
		c.Registry.Etcd.ApplyDefaults()
	}
	if c.Registry.HealthInterval == 0 {
		c.Registry.HealthInterval = 10 * time.Second
	}

	if c.Pull.Interval == 0 {
		c.Pull.Interval = 30 * time.Second
	}
	if c.Pull.Timeout == 0 {
		c.Pull.Timeout = 10 * time.Second
	}
	if c.Pull.FirstWait == 0 {
		c.Pull.FirstWait = 3 * time.Second
	}
	if c.Pull.Warmup.MaxAttempts == 0 {
		c.Pull.Warmup = resilience.DefaultRetryConfig()
	}

	if c.Priority.Key == "" {
		c.Priority.Key = filter.DefaultPriorityKey
	}
	if c.Priority.Value == "" && c.Priority.Key == filter.DefaultPriorityKey {
		c.Priority.Value = c.Environment
	}

	defaults := resilience.DefaultBreakerConfig()
	if c.Breaker.EnableRequestThreshold == 0 {
		c.Breaker.EnableRequestThreshold = defaults.EnableRequestThreshold
	}
	if c.Breaker.ContinuousFailureThreshold == 0 && c.Breaker.ErrorThresholdPercentage == 0 {
		c.Breaker.ContinuousFailureThreshold = defaults.ContinuousFailureThreshold
	}
	if c.Breaker.IsolationDuration == 0 {
		c.Breaker.IsolationDuration = defaults.IsolationDuration
	}

	if c.Endpoint.DefaultTransport == "" {
		c.Endpoint.DefaultTransport = "rest"
	}

	if c.Telemetry.Endpoint == "" {
		c.Telemetry.Endpoint = "localhost:4318"
	}
	if c.Telemetry.SampleRate == 0 {
		c.Telemetry.SampleRate = 1.0
	}
	if c.Telemetry.MetricInterval == 0 {
		c.Telemetry.MetricInterval = 15 * time.Second
	}

	if c.Admin.Address == "" {
		c.Admin.Address = ":8081"
	}
}

// Validate checks the configuration. Struct tags are checked first, then
// the cross-field rules.
func (c *Discovery) Validate() error {
	if err := c.ServiceConfig.Validate(); err != nil {
		return err
	}
	if err := validation.Validate(c); err != nil {
		return err
	}

	v := validation.New().
		OneOf("registry.backend", c.Registry.Backend, Backends).
		Positive("pull.timeout", c.Pull.Timeout).
		Positive("breaker.isolation_duration", c.Breaker.IsolationDuration).
		Custom(c.Pull.Interval >= 0, "pull.interval", "must be non-negative").
		Custom(c.Breaker.EnableRequestThreshold >= 0, "breaker.enable_request_threshold", "must be non-negative").
		Custom(c.Breaker.ContinuousFailureThreshold >= 0, "breaker.continuous_failure_threshold", "must be non-negative")
	if c.Endpoint.DefaultTransport != "" && len(c.Endpoint.Transports) > 0 {
		v.Custom(slices.Contains(c.Endpoint.Transports, c.Endpoint.DefaultTransport),
			"endpoint.default_transport", "must be one of endpoint.transports")
	}
	if appErr := v.Validate(); appErr != nil {
		invalid := errors.New(errors.ErrCodeInvalidConfig, appErr.Message, http.StatusBadRequest)
		invalid.Details = appErr.Details
		return invalid
	}

	switch c.Registry.Backend {
	case consul.Backend:
		if err := c.Registry.Consul.Validate(); err != nil {
			return errors.InvalidConfig("registry.consul", "registry.consul: "+err.Error()).WithCause(err)
		}
	case etcd.Backend:
		if err := c.Registry.Etcd.Validate(); err != nil {
			return errors.InvalidConfig("registry.etcd", "registry.etcd: "+err.Error()).WithCause(err)
		}
	}
	return nil
}

// TracerConfig returns the tracer settings derived from the service identity.
func (c *Discovery) TracerConfig() *observability.TracerConfig {
	return &observability.TracerConfig{
		ServiceName:    c.Name,
		ServiceVersion: c.Version,
		Environment:    c.Environment,
		Endpoint:       c.Telemetry.Endpoint,
		Insecure:       c.Telemetry.Insecure,
		SampleRate:     c.Telemetry.SampleRate,
	}
}

// MeterConfig returns the meter settings derived from the service identity.
func (c *Discovery) MeterConfig() *observability.MeterConfig {
	return &observability.MeterConfig{
		ServiceName:    c.Name,
		ServiceVersion: c.Version,
		Environment:    c.Environment,
		Endpoint:       c.Telemetry.Endpoint,
		Insecure:       c.Telemetry.Insecure,
		Interval:       c.Telemetry.MetricInterval,
	}
}

// Load reads the configuration of serviceName, applies defaults and
// validates the result.
func Load(serviceName string, opts ...LoaderOption) (*Discovery, error) {
	cfg := &Discovery{}
	if err := LoadConfig(serviceName, cfg, opts...); err != nil {
		return nil, err
	}
	if cfg.Name == "" {
		cfg.Name = serviceName
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// NewLogger builds the process logger from the logging section.
func (c *Discovery) NewLogger() *logger.Logger {
	return logger.New(&c.Logging, c.Name)
}
