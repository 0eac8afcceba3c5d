package resilience

import (
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/kbukum/gokit-discovery/event"
	"github.com/kbukum/gokit-discovery/logger"
)

// ErrInstanceIsolated is returned by Execute for an isolated instance.
var ErrInstanceIsolated = errors.New("instance is isolated")

// BreakerConfig configures per-instance failure detection.
type BreakerConfig struct {
	// EnableRequestThreshold is the number of calls an instance must have
	// served before it can be isolated.
	EnableRequestThreshold int64 `mapstructure:"enable_request_threshold" json:"enable_request_threshold"`
	// ContinuousFailureThreshold isolates after this many failures in a row.
	// Zero disables the check.
	ContinuousFailureThreshold int `mapstructure:"continuous_failure_threshold" json:"continuous_failure_threshold"`
	// ErrorThresholdPercentage isolates once the failed share reaches it.
	// Zero disables the check.
	ErrorThresholdPercentage int `mapstructure:"error_threshold_percentage" json:"error_threshold_percentage" validate:"gte=0,lte=100"`
	// IsolationDuration is how long an instance stays out before it is
	// tried again.
	IsolationDuration time.Duration `mapstructure:"isolation_duration" json:"isolation_duration"`
	// OnStateChange is called outside the breaker lock on every transition.
	OnStateChange func(instanceID string, from, to State) `mapstructure:"-" json:"-"`
}

// DefaultBreakerConfig returns the stock thresholds.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		EnableRequestThreshold:     5,
		ContinuousFailureThreshold: 5,
		ErrorThresholdPercentage:   0,
		IsolationDuration:          60 * time.Second,
	}
}

// InstanceStats is a point-in-time view of one instance.
type InstanceStats struct {
	InstanceID  string `json:"instance_id" yaml:"instance_id"`
	State       string `json:"state" yaml:"state"`
	Total       int64  `json:"total" yaml:"total"`
	Failed      int64  `json:"failed" yaml:"failed"`
	Consecutive int    `json:"consecutive" yaml:"consecutive"`
}

// InstanceBreaker tracks call outcomes per instance and publishes an
// InstanceIsolatedEvent when an instance crosses the thresholds. An instance
// that fails its first call after isolation is isolated again; a success
// closes it.
type InstanceBreaker struct {
	cfg BreakerConfig
	bus *event.Bus
	log *logger.Logger
	now func() time.Time

	mu    sync.Mutex
	stats map[string]*instanceStats
}

type transition struct {
	instanceID string
	from, to   State
}

// NewInstanceBreaker creates a breaker that publishes to bus.
func NewInstanceBreaker(cfg BreakerConfig, bus *event.Bus, log *logger.Logger) *InstanceBreaker {
	defaults := DefaultBreakerConfig()
	if cfg.EnableRequestThreshold < 0 {
		cfg.EnableRequestThreshold = defaults.EnableRequestThreshold
	}
	if cfg.IsolationDuration <= 0 {
		cfg.IsolationDuration = defaults.IsolationDuration
	}
	return &InstanceBreaker{
		cfg:   cfg,
		bus:   bus,
		log:   logger.OrNop(log).WithComponent("instance-breaker"),
		now:   time.Now,
		stats: make(map[string]*instanceStats),
	}
}

// Execute runs fn against instanceID unless it is isolated, and records the
// outcome.
func (b *InstanceBreaker) Execute(instanceID string, fn func() error) error {
	if b.State(instanceID) == StateOpen {
		return ErrInstanceIsolated
	}
	err := fn()
	b.Record(instanceID, err)
	return err
}

// Record counts one call outcome.
func (b *InstanceBreaker) Record(instanceID string, err error) {
	if err != nil {
		b.RecordFailure(instanceID)
		return
	}
	b.RecordSuccess(instanceID)
}

// RecordSuccess counts a successful call.
func (b *InstanceBreaker) RecordSuccess(instanceID string) {
	b.mu.Lock()
	s := b.statsLocked(instanceID)
	from := s.currentState(b.now(), b.cfg.IsolationDuration)
	s.lastVisit = b.now()

	var changes []transition
	switch from {
	case StateClosed:
		s.total++
		s.consecutive = 0
	case StateHalfOpen:
		s.reset()
		changes = append(changes, transition{instanceID, StateHalfOpen, StateClosed})
	}
	b.mu.Unlock()

	b.emit(changes)
}

// RecordFailure counts a failed call and isolates the instance when a
// threshold is crossed.
func (b *InstanceBreaker) RecordFailure(instanceID string) {
	b.mu.Lock()
	s := b.statsLocked(instanceID)
	now := b.now()
	from := s.currentState(now, b.cfg.IsolationDuration)
	s.lastVisit = now

	var changes []transition
	switch from {
	case StateClosed:
		s.total++
		s.failed++
		s.consecutive++
		if s.tripped(&b.cfg) {
			s.state = StateOpen
			s.openedAt = now
			changes = append(changes, transition{instanceID, StateClosed, StateOpen})
		}
	case StateHalfOpen:
		s.state = StateOpen
		s.openedAt = now
		changes = append(changes, transition{instanceID, StateHalfOpen, StateOpen})
	}
	b.mu.Unlock()

	b.emit(changes)
}

// State returns the current state of instanceID.
func (b *InstanceBreaker) State(instanceID string) State {
	b.mu.Lock()
	defer b.mu.Unlock()
	s, ok := b.stats[instanceID]
	if !ok {
		return StateClosed
	}
	return s.currentState(b.now(), b.cfg.IsolationDuration)
}

// Forget drops the counters of an instance that left the registry.
func (b *InstanceBreaker) Forget(instanceID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.stats, instanceID)
}

// OnInstanceChanged forgets deleted instances.
func (b *InstanceBreaker) OnInstanceChanged(ev event.InstanceChangedEvent) {
	if ev.Action == event.ActionDelete && ev.Instance != nil {
		b.Forget(ev.Instance.InstanceID)
	}
}

// Stats lists every tracked instance ordered by id.
func (b *InstanceBreaker) Stats() []InstanceStats {
	b.mu.Lock()
	out := make([]InstanceStats, 0, len(b.stats))
	now := b.now()
	for id, s := range b.stats {
		out = append(out, InstanceStats{
			InstanceID:  id,
			State:       s.currentState(now, b.cfg.IsolationDuration).String(),
			Total:       s.total,
			Failed:      s.failed,
			Consecutive: s.consecutive,
		})
	}
	b.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].InstanceID < out[j].InstanceID })
	return out
}

func (b *InstanceBreaker) statsLocked(instanceID string) *instanceStats {
	s, ok := b.stats[instanceID]
	if !ok {
		s = &instanceStats{}
		b.stats[instanceID] = s
	}
	return s
}

func (b *InstanceBreaker) emit(changes []transition) {
	for _, c := range changes {
		if c.to == StateOpen {
			b.log.Warn("isolating instance", logger.Fields(
				logger.FieldInstanceID, c.instanceID,
				"from", c.from.String(),
				logger.FieldDuration, b.cfg.IsolationDuration.String()))
			if b.bus != nil {
				b.bus.PublishInstanceIsolated(event.InstanceIsolatedEvent{
					InstanceID: c.instanceID,
					Duration:   b.cfg.IsolationDuration,
				})
			}
		} else {
			b.log.Info("instance recovered from isolation", logger.Fields(logger.FieldInstanceID, c.instanceID))
		}
		if b.cfg.OnStateChange != nil {
			b.cfg.OnStateChange(c.instanceID, c.from, c.to)
		}
	}
}
