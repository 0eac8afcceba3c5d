package etcd

import (
	"fmt"
	"strings"
	"time"
)

// Config holds etcd connection settings and the key layout prefix.
type Config struct {
	Endpoints    []string      `yaml:"endpoints" mapstructure:"endpoints"`
	Prefix       string        `yaml:"prefix" mapstructure:"prefix"`
	Username     string        `yaml:"username" mapstructure:"username"`
	Password     string        `yaml:"password" mapstructure:"password"`
	DialTimeout  time.Duration `yaml:"dial_timeout" mapstructure:"dial_timeout"`
	RetryBackoff time.Duration `yaml:"retry_backoff" mapstructure:"retry_backoff"`
}

// ApplyDefaults sets defaults for Config.
func (c *Config) ApplyDefaults() {
	if len(c.Endpoints) == 0 {
		c.Endpoints = []string{"localhost:2379"}
	}
	if c.Prefix == "" {
		c.Prefix = "/discovery"
	}
	c.Prefix = "/" + strings.Trim(c.Prefix, "/")
	if c.DialTimeout == 0 {
		c.DialTimeout = 5 * time.Second
	}
	if c.RetryBackoff == 0 {
		c.RetryBackoff = 200 * time.Millisecond
	}
}

// Validate checks if the etcd configuration is valid.
func (c *Config) Validate() error {
	for _, ep := range c.Endpoints {
		if strings.TrimSpace(ep) == "" {
			return fmt.Errorf("etcd endpoints must not be empty")
		}
	}
	if c.DialTimeout < 0 {
		return fmt.Errorf("dial_timeout must be non-negative")
	}
	if c.Username != "" && c.Password == "" {
		return fmt.Errorf("password is required when username is set")
	}
	return nil
}
