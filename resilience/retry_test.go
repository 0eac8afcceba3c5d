package resilience

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kbukum/gokit-discovery/consumer"
	apperrors "github.com/kbukum/gokit-discovery/errors"
	"github.com/kbukum/gokit-discovery/logger"
	"github.com/kbukum/gokit-discovery/registry/memory"
)

func fastRetry(attempts int) RetryConfig {
	return RetryConfig{MaxAttempts: attempts, InitialBackoff: time.Millisecond, MaxBackoff: 5 * time.Millisecond}
}

func TestDefaultRetryIf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"plain error", errors.New("io"), true},
		{"canceled", context.Canceled, false},
		{"deadline", fmt.Errorf("pull: %w", context.DeadlineExceeded), false},
		{"registry down", apperrors.RegistryUnavailable("consul", errors.New("refused")), true},
		{"wrapped registry down", fmt.Errorf("pull orders: %w", apperrors.RegistryUnavailable(memory.Backend, errors.New("refused"))), true},
		{"unknown service", apperrors.ServiceNotFound("shop", "orders"), false},
		{"bad rule", apperrors.InvalidVersionRule("1.x", "bad"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DefaultRetryIf(tt.err); got != tt.want {
				t.Errorf("DefaultRetryIf(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

// warmRegistry seeds one service and tracks it, so every PullAll reaches the
// registry.
func warmRegistry(t *testing.T) (*memory.Registry, *consumer.AppManager) {
	t.Helper()
	reg := memory.New(logger.NewNop())
	err := reg.Seed(memory.Config{Services: []memory.ServiceConfig{
		{AppID: "shop", ServiceName: "orders", Version: "1.0.0", Instances: []memory.InstanceConfig{
			{InstanceID: "o-1", Endpoints: []string{"rest://10.0.0.1:80"}},
		}},
	}})
	if err != nil {
		t.Fatalf("Seed() error = %v", err)
	}
	app := consumer.NewAppManager(reg, logger.NewNop(), consumer.WithFirstPullWait(2*time.Second))
	if _, err := app.Resolve("shop", "orders", "latest"); err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	return reg, app
}

func TestRetryFunc_WarmupRecoversFromOutage(t *testing.T) {
	reg, app := warmRegistry(t)
	reg.SetFailure(errors.New("connection refused"))

	var calls atomic.Int32
	var retries []int
	cfg := fastRetry(4)
	cfg.OnRetry = func(attempt int, err error, _ time.Duration) {
		if !apperrors.HasCode(err, apperrors.ErrCodeRegistryUnavailable) {
			t.Errorf("retry %d on unexpected error %v", attempt, err)
		}
		retries = append(retries, attempt)
		if attempt == 2 {
			reg.SetFailure(nil)
		}
	}

	err := RetryFunc(context.Background(), cfg, func() error {
		calls.Add(1)
		return app.PullAll(context.Background())
	})
	if err != nil {
		t.Fatalf("RetryFunc() error = %v", err)
	}
	if calls.Load() != 3 {
		t.Errorf("expected 3 pulls, got %d", calls.Load())
	}
	if fmt.Sprint(retries) != "[1 2]" {
		t.Errorf("unexpected retries %v", retries)
	}
}

func TestRetryFunc_WarmupGivesUpOnPersistentOutage(t *testing.T) {
	reg, app := warmRegistry(t)
	reg.SetFailure(errors.New("connection refused"))

	calls := 0
	err := RetryFunc(context.Background(), fastRetry(3), func() error {
		calls++
		return app.PullAll(context.Background())
	})
	if !apperrors.HasCode(err, apperrors.ErrCodeRegistryUnavailable) {
		t.Fatalf("expected REGISTRY_UNAVAILABLE, got %v", err)
	}
	if calls != 3 {
		t.Errorf("expected every attempt to be used, got %d", calls)
	}
}

func TestRetryFunc_WarmupStopsOnUnknownService(t *testing.T) {
	_, app := warmRegistry(t)
	if _, err := app.Resolve("shop", "billing", "latest"); err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}

	calls := 0
	err := RetryFunc(context.Background(), fastRetry(4), func() error {
		calls++
		return app.PullAll(context.Background())
	})
	if !apperrors.HasCode(err, apperrors.ErrCodeServiceNotFound) {
		t.Fatalf("expected SERVICE_NOT_FOUND, got %v", err)
	}
	if calls != 1 {
		t.Errorf("an unknown service must not be retried, got %d pulls", calls)
	}
}

func TestRetryFunc_CanceledBetweenAttempts(t *testing.T) {
	reg, app := warmRegistry(t)
	reg.SetFailure(errors.New("connection refused"))

	ctx, cancel := context.WithCancel(context.Background())
	cfg := RetryConfig{MaxAttempts: 5, InitialBackoff: time.Hour}
	cfg.OnRetry = func(int, error, time.Duration) { cancel() }

	calls := 0
	err := RetryFunc(ctx, cfg, func() error {
		calls++
		return app.PullAll(ctx)
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if calls != 1 {
		t.Errorf("expected 1 pull before cancellation, got %d", calls)
	}
}

func TestRetryConfigDefaults(t *testing.T) {
	got := RetryConfig{}.withDefaults()
	want := DefaultRetryConfig()
	if got.MaxAttempts != want.MaxAttempts || got.InitialBackoff != want.InitialBackoff ||
		got.MaxBackoff != want.MaxBackoff || got.BackoffFactor != want.BackoffFactor {
		t.Errorf("withDefaults() = %+v, want %+v", got, want)
	}
	if got.Jitter != 0 {
		t.Errorf("an explicit zero jitter must be kept, got %v", got.Jitter)
	}
}

func TestBackoffFor(t *testing.T) {
	cfg := RetryConfig{InitialBackoff: 100 * time.Millisecond, MaxBackoff: time.Second, BackoffFactor: 2.0}
	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{1, 100 * time.Millisecond},
		{2, 200 * time.Millisecond},
		{4, 800 * time.Millisecond},
		{5, time.Second},
	}
	for _, tt := range tests {
		if got := backoffFor(tt.attempt, cfg); got != tt.want {
			t.Errorf("attempt %d: got %v, want %v", tt.attempt, got, tt.want)
		}
	}

	cfg.Jitter = 0.5
	for i := 0; i < 50; i++ {
		if got := backoffFor(2, cfg); got < 100*time.Millisecond || got > 300*time.Millisecond {
			t.Fatalf("jittered backoff %v outside [100ms, 300ms]", got)
		}
	}
}
