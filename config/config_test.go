package config

import (
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/kbukum/gokit-discovery/errors"
	"github.com/kbukum/gokit-discovery/registry/consul"
	"github.com/kbukum/gokit-discovery/registry/memory"
)

func TestServiceConfigApplyDefaults(t *testing.T) {
	t.Run("empty environment defaults to development", func(t *testing.T) {
		cfg := ServiceConfig{Name: "svc"}
		cfg.ApplyDefaults()
		if cfg.Environment != "development" {
			t.Errorf("expected 'development', got %q", cfg.Environment)
		}
		if !cfg.Debug {
			t.Error("expected debug=true for development")
		}
		if cfg.Logging.Level != "info" {
			t.Errorf("expected logging defaults, got level %q", cfg.Logging.Level)
		}
	})

	t.Run("production environment keeps debug false", func(t *testing.T) {
		cfg := ServiceConfig{Name: "svc", Environment: "production"}
		cfg.ApplyDefaults()
		if cfg.Debug {
			t.Error("expected debug=false for production")
		}
	})
}

func TestServiceConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     ServiceConfig
		wantErr string
	}{
		{"valid staging", ServiceConfig{Name: "svc", Environment: "staging"}, ""},
		{"missing name", ServiceConfig{Environment: "production"}, "name is required"},
		{"invalid environment", ServiceConfig{Name: "svc", Environment: "invalid"}, "environment must be one of"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			tc.cfg.Logging.ApplyDefaults()
			err := tc.cfg.Validate()
			if tc.wantErr == "" {
				if err != nil {
					t.Errorf("unexpected error: %v", err)
				}
				return
			}
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tc.wantErr) {
				t.Errorf("expected error containing %q, got %q", tc.wantErr, err.Error())
			}
			if !errors.HasCode(err, errors.ErrCodeInvalidConfig) {
				t.Errorf("expected INVALID_CONFIG, got %v", err)
			}
		})
	}
}

const sampleYAML = `
name: orders-client
environment: staging
app_id: shop
registry:
  backend: memory
  memory:
    services:
      - service_name: orders
        version: 1.2.0
        instances:
          - instance_id: i1
            endpoints: ["rest://10.0.0.1:8080"]
pull:
  interval: 5s
  first_wait: 250ms
isolation:
  enabled: true
  empty_protection: true
breaker:
  continuous_failure_threshold: 3
  isolation_duration: 30s
endpoint:
  transports: [rest, grpc]
  default_transport: rest
targets:
  - service_name: orders
    version_rule: 1.0.0+
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

func TestLoad(t *testing.T) {
	cfg, err := Load("orders-client", WithConfigFile(writeConfig(t, sampleYAML)), WithEnvFile("/nonexistent/.env"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Name != "orders-client" || cfg.Environment != "staging" || cfg.AppID != "shop" {
		t.Errorf("unexpected identity %q/%q/%q", cfg.Name, cfg.Environment, cfg.AppID)
	}
	if cfg.Pull.Interval != 5*time.Second || cfg.Pull.FirstWait != 250*time.Millisecond {
		t.Errorf("unexpected pull settings %+v", cfg.Pull)
	}
	if cfg.Pull.Timeout != 10*time.Second {
		t.Errorf("expected default pull timeout, got %v", cfg.Pull.Timeout)
	}
	if cfg.Priority.Enabled || cfg.Priority.Key != "environment" || cfg.Priority.Value != "staging" {
		t.Errorf("unexpected priority defaults %+v", cfg.Priority)
	}
	if !cfg.Isolation.Enabled || !cfg.Isolation.EmptyProtection {
		t.Errorf("unexpected isolation %+v", cfg.Isolation)
	}
	if cfg.Breaker.ContinuousFailureThreshold != 3 || cfg.Breaker.IsolationDuration != 30*time.Second {
		t.Errorf("unexpected breaker %+v", cfg.Breaker)
	}
	if cfg.Breaker.EnableRequestThreshold != 5 {
		t.Errorf("expected default request threshold, got %d", cfg.Breaker.EnableRequestThreshold)
	}
	if len(cfg.Registry.Memory.Services) != 1 || cfg.Registry.Memory.Services[0].Instances[0].InstanceID != "i1" {
		t.Errorf("unexpected memory seed %+v", cfg.Registry.Memory)
	}
	if _, ok := cfg.Registry.Provider().(*memory.Config); !ok {
		t.Errorf("expected memory provider config, got %T", cfg.Registry.Provider())
	}
	if len(cfg.Targets) != 1 || cfg.Targets[0].Rule() != "1.0.0+" {
		t.Errorf("unexpected targets %+v", cfg.Targets)
	}
	if cfg.TracerConfig().ServiceName != "orders-client" || cfg.MeterConfig().Interval != 15*time.Second {
		t.Error("telemetry settings must carry the service identity and defaults")
	}
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("DISCOVERYTEST_PULL_INTERVAL", "7s")
	t.Setenv("DISCOVERYTEST_APP_ID", "billing")

	cfg, err := Load("orders-client",
		WithConfigFile(writeConfig(t, sampleYAML)),
		WithEnvFile("/nonexistent/.env"),
		WithEnvPrefix("discoverytest"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Pull.Interval != 7*time.Second {
		t.Errorf("expected env override 7s, got %v", cfg.Pull.Interval)
	}
	if cfg.AppID != "billing" {
		t.Errorf("expected env override billing, got %q", cfg.AppID)
	}
}

func TestDiscoveryDefaults(t *testing.T) {
	var cfg Discovery
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults must validate: %v", err)
	}
	if cfg.Registry.Backend != memory.Backend || cfg.AppID != "default" || cfg.Name != "discoveryctl" {
		t.Errorf("unexpected defaults %+v", cfg)
	}
	if (Target{ServiceName: "orders"}).Rule() != "latest" {
		t.Error("an unset rule means latest")
	}
}

func TestDiscoveryValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Discovery)
		field  string
	}{
		{"unknown backend", func(c *Discovery) { c.Registry.Backend = "zookeeper" }, "registry.backend"},
		{"bad target rule", func(c *Discovery) {
			c.Targets = []Target{{ServiceName: "orders", VersionRule: "abc"}}
		}, "version_rule"},
		{"missing target service", func(c *Discovery) { c.Targets = []Target{{}} }, "service_name"},
		{"default transport not allowed", func(c *Discovery) {
			c.Endpoint.Transports = []string{"grpc"}
			c.Endpoint.DefaultTransport = "rest"
		}, "endpoint.default_transport"},
		{"bad consul scheme", func(c *Discovery) {
			c.Registry.Backend = consul.Backend
			c.Registry.Consul = consul.Config{Scheme: "ftp"}
		}, "scheme"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var cfg Discovery
			tt.mutate(&cfg)
			cfg.ApplyDefaults()
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected a validation error")
			}
			if !errors.HasCode(err, errors.ErrCodeInvalidConfig) {
				t.Errorf("expected INVALID_CONFIG, got %v", err)
			}
			if !strings.Contains(err.Error(), tt.field) {
				t.Errorf("expected %q to be reported, got %v", tt.field, err)
			}
		})
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	var cfg Discovery
	// With no config file found, LoadConfig should still succeed (just empty config)
	err := LoadConfig("nonexistent-service", &cfg, WithConfigFile("/nonexistent/path.yml"), WithEnvFile("/nonexistent/.env"))
	if err != nil {
		t.Fatalf("expected LoadConfig to succeed with missing file, got %v", err)
	}
}

func TestFileResolverWithMockFS(t *testing.T) {
	tests := []struct {
		name  string
		files []string
		want  string
	}{
		{"cmd directory", []string{"./cmd/discoveryctl/config.yml", "./config.yml"}, "./cmd/discoveryctl/config.yml"},
		{"named file", []string{"./discoveryctl.yml", "./config.yml"}, "./discoveryctl.yml"},
		{"root fallback", []string{"./config.yml"}, "./config.yml"},
		{"nothing", nil, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fs := &mockFS{files: map[string]bool{}}
			for _, f := range tt.files {
				fs.files[f] = true
			}
			resolver := &FileResolver{FileSystem: fs}
			files := resolver.ResolveFiles("discoveryctl", LoaderConfig{})
			if files.ConfigFile != tt.want {
				t.Errorf("expected %q, got %q", tt.want, files.ConfigFile)
			}
		})
	}
}

type mockFS struct {
	files map[string]bool
}

func (m *mockFS) Exists(path string) bool   { return m.files[path] }
func (m *mockFS) LoadEnv(path string) error { return nil }
func (m *mockFS) Getwd() (string, error)    { return "/mock", nil }

func TestGenerateEnvKeyVariants(t *testing.T) {
	variants := generateEnvKeyVariants("PULL_FIRST_WAIT")
	for _, want := range []string{"pull_first_wait", "pull.first.wait", "pull.first_wait"} {
		if !slices.Contains(variants, want) {
			t.Errorf("expected variant %q in %v", want, variants)
		}
	}
	if got := generateEnvKeyVariants("DEBUG"); len(got) != 1 || got[0] != "debug" {
		t.Errorf("unexpected single-word variants %v", got)
	}
}

func TestLoaderOptions(t *testing.T) {
	var lc LoaderConfig
	WithFileSystem(&mockFS{})(&lc)
	WithConfigFile("/path/to/config.yml")(&lc)
	WithEnvFile("/path/to/.env")(&lc)
	WithEnvPrefix("discovery_")(&lc)

	if lc.FileSystem == nil {
		t.Error("expected FileSystem to be set")
	}
	if lc.ConfigFile != "/path/to/config.yml" || lc.EnvFile != "/path/to/.env" {
		t.Errorf("unexpected file overrides %+v", lc)
	}
	if lc.EnvPrefix != "DISCOVERY" {
		t.Errorf("expected normalised prefix, got %q", lc.EnvPrefix)
	}
}
