package bootstrap

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/kbukum/gokit-discovery/component"
	"github.com/kbukum/gokit-discovery/config"
	"github.com/kbukum/gokit-discovery/logger"
)

type testConfig struct {
	config.ServiceConfig
}

type mockComponent struct {
	name     string
	startErr error
	stopErr  error
	health   component.Health
	started  bool
	stopped  bool
	order    *[]string
}

func (m *mockComponent) Name() string { return m.name }
func (m *mockComponent) Start(context.Context) error {
	m.started = true
	if m.order != nil {
		*m.order = append(*m.order, "start:"+m.name)
	}
	return m.startErr
}
func (m *mockComponent) Stop(context.Context) error {
	m.stopped = true
	if m.order != nil {
		*m.order = append(*m.order, "stop:"+m.name)
	}
	return m.stopErr
}
func (m *mockComponent) Health(context.Context) component.Health { return m.health }
func (m *mockComponent) Describe() component.Description {
	return component.Description{Type: "test", Details: "mock", Port: 8081}
}
func (m *mockComponent) Routes() []component.Route {
	return []component.Route{{Method: "GET", Path: "/v1/services", Handler: "Handlers.Services"}}
}

func newTestApp(t *testing.T, opts ...Option) *App[*testConfig] {
	t.Helper()
	cfg := &testConfig{ServiceConfig: config.ServiceConfig{Name: "discoveryctl", Version: "0.1.0"}}
	opts = append([]Option{WithLogger(logger.NewNop()), WithSummaryOutput(io.Discard)}, opts...)
	app, err := NewApp(cfg, opts...)
	if err != nil {
		t.Fatalf("NewApp failed: %v", err)
	}
	return app
}

func healthy(name string) component.Health {
	return component.Health{Name: name, Status: component.StatusHealthy}
}

func TestNewApp(t *testing.T) {
	app := newTestApp(t, WithGracefulTimeout(time.Second))
	if app.Name != "discoveryctl" || app.Version != "0.1.0" {
		t.Errorf("unexpected identity %s %s", app.Name, app.Version)
	}
	if app.Cfg.Environment != "development" {
		t.Errorf("expected defaults to be applied, got environment %q", app.Cfg.Environment)
	}
	if app.gracefulTimeout != time.Second {
		t.Errorf("expected graceful timeout 1s, got %v", app.gracefulTimeout)
	}
}

func TestNewAppInvalidConfig(t *testing.T) {
	cfg := &testConfig{ServiceConfig: config.ServiceConfig{Name: "x", Environment: "moon"}}
	if _, err := NewApp(cfg, WithLogger(logger.NewNop())); err == nil {
		t.Fatal("expected a validation error")
	}
}

func TestRunTaskLifecycle(t *testing.T) {
	var order []string
	app := newTestApp(t)
	a := &mockComponent{name: "resolver", health: healthy("resolver"), order: &order}
	b := &mockComponent{name: "admin", health: healthy("admin"), order: &order}
	if err := app.RegisterComponent(a); err != nil {
		t.Fatal(err)
	}
	if err := app.RegisterComponent(b); err != nil {
		t.Fatal(err)
	}
	app.OnStart(func(context.Context) error { order = append(order, "onStart"); return nil })
	app.OnReady(func(context.Context) error { order = append(order, "onReady"); return nil })
	app.OnStop(func(context.Context) error { order = append(order, "onStop"); return nil })

	err := app.RunTask(context.Background(), func(context.Context) error {
		order = append(order, "task")
		return nil
	})
	if err != nil {
		t.Fatalf("RunTask failed: %v", err)
	}

	want := []string{"start:resolver", "start:admin", "onStart", "onReady", "task", "onStop", "stop:admin", "stop:resolver"}
	if strings.Join(order, ",") != strings.Join(want, ",") {
		t.Errorf("unexpected order\n got %v\nwant %v", order, want)
	}
}

func TestRunTaskReturnsTaskError(t *testing.T) {
	app := newTestApp(t)
	c := &mockComponent{name: "resolver", health: healthy("resolver")}
	_ = app.RegisterComponent(c)

	taskErr := errors.New("resolution failed")
	if err := app.RunTask(context.Background(), func(context.Context) error { return taskErr }); !errors.Is(err, taskErr) {
		t.Fatalf("expected the task error, got %v", err)
	}
	if !c.stopped {
		t.Error("expected components to be stopped after the task")
	}
}

func TestStartFailure(t *testing.T) {
	app := newTestApp(t)
	_ = app.RegisterComponent(&mockComponent{name: "resolver", startErr: errors.New("registry down")})
	err := app.RunTask(context.Background(), func(context.Context) error {
		t.Fatal("task must not run")
		return nil
	})
	if err == nil || !strings.Contains(err.Error(), "registry down") {
		t.Fatalf("expected the start error, got %v", err)
	}
}

func TestOnStartHookFailureStopsComponents(t *testing.T) {
	app := newTestApp(t)
	c := &mockComponent{name: "resolver", health: healthy("resolver")}
	_ = app.RegisterComponent(c)
	app.OnStart(func(context.Context) error { return errors.New("telemetry") })

	if err := app.RunTask(context.Background(), func(context.Context) error { return nil }); err == nil {
		t.Fatal("expected the hook error")
	}
	if !c.stopped {
		t.Error("expected the started component to be stopped")
	}
}

func TestReadyCheck(t *testing.T) {
	tests := []struct {
		name    string
		status  component.HealthStatus
		wantErr bool
	}{
		{"healthy", component.StatusHealthy, false},
		{"degraded still ready", component.StatusDegraded, false},
		{"unhealthy", component.StatusUnhealthy, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app := newTestApp(t)
			_ = app.RegisterComponent(&mockComponent{
				name:   "resolver",
				health: component.Health{Name: "resolver", Status: tt.status, Message: "registry"},
			})
			err := app.ReadyCheck(context.Background())
			if (err != nil) != tt.wantErr {
				t.Errorf("ReadyCheck() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestRunStopsOnContextCancel(t *testing.T) {
	app := newTestApp(t)
	c := &mockComponent{name: "resolver", health: healthy("resolver")}
	_ = app.RegisterComponent(c)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- app.Run(ctx) }()

	time.Sleep(20 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run returned %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	if !c.started || !c.stopped {
		t.Errorf("expected start and stop, got started=%v stopped=%v", c.started, c.stopped)
	}
}

func TestSummaryWrite(t *testing.T) {
	var buf bytes.Buffer
	app := newTestApp(t, WithSummaryOutput(&buf))
	_ = app.RegisterComponent(&mockComponent{name: "admin", health: component.Health{Name: "admin", Status: component.StatusDegraded, Message: "slow"}})

	if err := app.RunTask(context.Background(), func(context.Context) error { return nil }); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	for _, want := range []string{"discoveryctl v0.1.0", "admin [test] mock (:8081)", "/v1/services -> Handlers.Services", "Health (degraded)", "degraded: slow"} {
		if !strings.Contains(out, want) {
			t.Errorf("summary missing %q:\n%s", want, out)
		}
	}
}
