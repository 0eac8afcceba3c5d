package memory

// Config seeds the in-memory registry, typically from the config file.
type Config struct {
	Services []ServiceConfig `yaml:"services" mapstructure:"services"`
}

// ServiceConfig is one registered version of a service with its instances.
type ServiceConfig struct {
	AppID       string            `yaml:"app_id" mapstructure:"app_id"`
	ServiceName string            `yaml:"service_name" mapstructure:"service_name" validate:"required"`
	Version     string            `yaml:"version" mapstructure:"version" validate:"required,dotted_version"`
	Environment string            `yaml:"environment" mapstructure:"environment"`
	Instances   []InstanceConfig  `yaml:"instances" mapstructure:"instances" validate:"dive"`
	Properties  map[string]string `yaml:"properties" mapstructure:"properties"`
}

// InstanceConfig is one statically configured instance.
type InstanceConfig struct {
	InstanceID string            `yaml:"instance_id" mapstructure:"instance_id"`
	Endpoints  []string          `yaml:"endpoints" mapstructure:"endpoints" validate:"required,min=1"`
	Status     string            `yaml:"status" mapstructure:"status"`
	Properties map[string]string `yaml:"properties" mapstructure:"properties"`
}
