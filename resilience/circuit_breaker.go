package resilience

import "time"

// State is the isolation state of one instance.
type State int

const (
	// StateClosed lets calls through and counts their outcomes.
	StateClosed State = iota
	// StateOpen isolates the instance.
	StateOpen
	// StateHalfOpen lets the instance back in; the next outcome decides
	// whether it stays.
	StateHalfOpen
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// instanceStats holds the counters of one instance. Counters reset whenever
// the instance returns to closed.
type instanceStats struct {
	state       State
	total       int64
	failed      int64
	consecutive int
	openedAt    time.Time
	lastVisit   time.Time
}

// failureRate is the failed share of all calls in percent.
func (s *instanceStats) failureRate() int {
	if s.total == 0 {
		return 0
	}
	return int(s.failed * 100 / s.total)
}

// tripped reports whether the counters cross the configured thresholds. The
// continuous failure threshold takes priority over the error rate.
func (s *instanceStats) tripped(cfg *BreakerConfig) bool {
	if s.total < cfg.EnableRequestThreshold {
		return false
	}
	if cfg.ContinuousFailureThreshold > 0 && s.consecutive >= cfg.ContinuousFailureThreshold {
		return true
	}
	if cfg.ErrorThresholdPercentage == 0 {
		return false
	}
	return s.failureRate() >= cfg.ErrorThresholdPercentage
}

// currentState moves an open instance to half-open once its isolation
// elapsed.
func (s *instanceStats) currentState(now time.Time, isolation time.Duration) State {
	if s.state == StateOpen && now.Sub(s.openedAt) >= isolation {
		s.state = StateHalfOpen
	}
	return s.state
}

func (s *instanceStats) reset() {
	s.state = StateClosed
	s.total = 0
	s.failed = 0
	s.consecutive = 0
	s.openedAt = time.Time{}
}
