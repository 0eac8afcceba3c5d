package consul

import (
	"fmt"
	"time"
)

// Config holds Consul connection settings.
type Config struct {
	// Address is the Consul agent address (default: localhost:8500).
	Address string `yaml:"address" mapstructure:"address"`

	// Scheme is the URI scheme (http/https).
	Scheme string `yaml:"scheme" mapstructure:"scheme"`

	// Datacenter to use.
	Datacenter string `yaml:"datacenter" mapstructure:"datacenter"`

	// Token is the ACL token.
	Token string `yaml:"token" mapstructure:"token"`

	// Namespace for Consul Enterprise.
	Namespace string `yaml:"namespace" mapstructure:"namespace"`

	// Partition for Consul Enterprise.
	Partition string `yaml:"partition" mapstructure:"partition"`

	// TLS configuration.
	TLS *TLSConfig `yaml:"tls" mapstructure:"tls"`

	// DefaultTransport is the endpoint scheme used for services that do not
	// advertise endpoints or a protocol in their metadata.
	DefaultTransport string `yaml:"default_transport" mapstructure:"default_transport"`

	// WatchWait is the blocking query wait time.
	WatchWait time.Duration `yaml:"watch_wait" mapstructure:"watch_wait"`

	// RetryBackoff is the pause after a failed blocking query.
	RetryBackoff time.Duration `yaml:"retry_backoff" mapstructure:"retry_backoff"`
}

// TLSConfig holds TLS configuration for Consul connections.
type TLSConfig struct {
	Enabled            bool   `yaml:"enabled" mapstructure:"enabled"`
	CACert             string `yaml:"ca_cert" mapstructure:"ca_cert"`
	CAPath             string `yaml:"ca_path" mapstructure:"ca_path"`
	ClientCert         string `yaml:"client_cert" mapstructure:"client_cert"`
	ClientKey          string `yaml:"client_key" mapstructure:"client_key"`
	InsecureSkipVerify bool   `yaml:"insecure_skip_verify" mapstructure:"insecure_skip_verify"`
	ServerName         string `yaml:"server_name" mapstructure:"server_name"`
}

// ApplyDefaults sets defaults for Config.
func (c *Config) ApplyDefaults() {
	if c.Address == "" {
		c.Address = "localhost:8500"
	}
	if c.Scheme == "" {
		c.Scheme = "http"
	}
	if c.DefaultTransport == "" {
		c.DefaultTransport = "rest"
	}
	if c.WatchWait == 0 {
		c.WatchWait = 30 * time.Second
	}
	if c.RetryBackoff == 0 {
		c.RetryBackoff = time.Second
	}
}

// Validate checks if the Consul configuration is valid.
func (c *Config) Validate() error {
	if c.Address == "" {
		return fmt.Errorf("consul address is required")
	}
	if c.Scheme != "http" && c.Scheme != "https" {
		return fmt.Errorf("consul scheme must be 'http' or 'https', got '%s'", c.Scheme)
	}
	if c.TLS != nil && c.TLS.Enabled && c.Scheme != "https" {
		return fmt.Errorf("TLS enabled but scheme is not https")
	}
	if c.WatchWait < 0 {
		return fmt.Errorf("watch_wait must be non-negative")
	}
	if c.RetryBackoff < 0 {
		return fmt.Errorf("retry_backoff must be non-negative")
	}
	return nil
}
