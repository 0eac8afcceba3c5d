package validation

import (
	"strings"
	"testing"
	"time"

	"github.com/kbukum/gokit-discovery/errors"
)

func TestValidator_Required(t *testing.T) {
	if New().Required("service", "orders").HasErrors() {
		t.Error("expected no errors for valid input")
	}
	if !New().Required("service", "   ").HasErrors() {
		t.Error("expected error for whitespace-only required field")
	}
}

func TestValidator_VersionRule(t *testing.T) {
	tests := []struct {
		rule    string
		wantErr bool
	}{
		{"", false},
		{"1.0.0", false},
		{"1.0.0+", false},
		{"1.0.0-2.0.0", false},
		{"latest", false},
		{"2.0-1.0", true},
		{"newest", true},
	}
	for _, tc := range tests {
		t.Run(tc.rule, func(t *testing.T) {
			got := New().VersionRule("rule", tc.rule).HasErrors()
			if got != tc.wantErr {
				t.Errorf("VersionRule(%q) hasErrors = %v, want %v", tc.rule, got, tc.wantErr)
			}
		})
	}
}

func TestValidator_Version(t *testing.T) {
	if New().Version("version", "1.2.3").HasErrors() {
		t.Error("expected 1.2.3 to be valid")
	}
	if !New().Version("version", "1.2.3.4").HasErrors() {
		t.Error("expected 1.2.3.4 to be rejected")
	}
}

func TestValidator_OneOfAndPositive(t *testing.T) {
	v := New().
		OneOf("backend", "zookeeper", []string{"memory", "consul", "etcd"}).
		Positive("pull_interval", 0).
		OneOf("output", "", []string{"json"})
	if len(v.Errors()) != 2 {
		t.Fatalf("expected 2 errors, got %v", v.Errors())
	}
}

func TestValidator_ValidateBuildsAppError(t *testing.T) {
	v := New().Required("app", "").VersionRule("rule", "x")
	appErr := v.Validate()
	if appErr == nil {
		t.Fatal("expected an error")
	}
	if appErr.Code != errors.ErrCodeValidation {
		t.Errorf("expected VALIDATION_ERROR, got %s", appErr.Code)
	}
	if !strings.Contains(appErr.Message, "app: is required") || !strings.Contains(appErr.Message, "rule:") {
		t.Errorf("unexpected message %q", appErr.Message)
	}
	if New().Validate() != nil {
		t.Error("expected nil for an empty validator")
	}
}

func TestRequired(t *testing.T) {
	if err := Required("service", ""); err == nil {
		t.Error("expected error")
	}
	if err := Required("service", "orders"); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

type pullSettings struct {
	Interval time.Duration `mapstructure:"interval" validate:"gt=0"`
}

type targetConfig struct {
	AppID       string       `mapstructure:"app_id" validate:"required"`
	VersionRule string       `mapstructure:"version_rule" validate:"required,version_rule"`
	MinVersion  string       `mapstructure:"min_version" validate:"omitempty,dotted_version"`
	Backend     string       `mapstructure:"backend" validate:"oneof=memory consul etcd"`
	Pull        pullSettings `mapstructure:"pull"`
}

func TestValidate_Struct(t *testing.T) {
	valid := targetConfig{AppID: "default", VersionRule: "1.0.0+", Backend: "consul", Pull: pullSettings{Interval: time.Second}}
	if err := Validate(valid); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	invalid := targetConfig{VersionRule: "1.0-0.5", MinVersion: "x", Backend: "zk"}
	err := Validate(invalid)
	if err == nil {
		t.Fatal("expected validation error")
	}
	if !errors.HasCode(err, errors.ErrCodeInvalidConfig) {
		t.Errorf("expected INVALID_CONFIG, got %v", err)
	}
	msg := err.Error()
	for _, want := range []string{"app_id: is required", "version_rule: must be a valid version rule", "min_version: must be a valid version", "backend: must be one of", "pull.interval: must be greater than 0"} {
		if !strings.Contains(msg, want) {
			t.Errorf("expected %q in %q", want, msg)
		}
	}
}

func TestToSnakeCase(t *testing.T) {
	if got := toSnakeCase("PullInterval"); got != "pull_interval" {
		t.Errorf("got %q", got)
	}
}
