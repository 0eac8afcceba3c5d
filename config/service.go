package config

import (
	"fmt"
	"slices"

	"github.com/kbukum/gokit-discovery/errors"
	"github.com/kbukum/gokit-discovery/logger"
)

var environments = []string{"development", "staging", "production"}

// ServiceConfig is the process identity and logging section shared by
// every binary. Discovery embeds it.
type ServiceConfig struct {
	Name        string        `yaml:"name" mapstructure:"name"`
	Environment string        `yaml:"environment" mapstructure:"environment"`
	Version     string        `yaml:"version" mapstructure:"version"`
	Debug       bool          `yaml:"debug" mapstructure:"debug"`
	Logging     logger.Config `yaml:"logging" mapstructure:"logging"`
}

// ApplyDefaults applies default values to the base configuration.
func (c *ServiceConfig) ApplyDefaults() {
	if c.Environment == "" {
		c.Environment = "development"
	}
	if c.Environment == "development" {
		c.Debug = true
	}
	c.Logging.ApplyDefaults()
}

// Validate validates the base configuration fields.
func (c *ServiceConfig) Validate() error {
	if c.Name == "" {
		return errors.InvalidConfig("name", "name is required")
	}
	if !slices.Contains(environments, c.Environment) {
		return errors.InvalidConfig("environment",
			fmt.Sprintf("environment must be one of %v (got: %s)", environments, c.Environment))
	}
	if err := c.Logging.Validate(); err != nil {
		return errors.InvalidConfig("logging", "logging: "+err.Error()).WithCause(err)
	}
	return nil
}

// GetServiceConfig returns the embedded identity section.
func (c *ServiceConfig) GetServiceConfig() *ServiceConfig { return c }
