package event

import "sync"

type subscribers[T any] struct {
	mu     sync.RWMutex
	nextID uint64
	subs   []subscription[T]
}

type subscription[T any] struct {
	id uint64
	fn func(T)
}

func (s *subscribers[T]) add(fn func(T)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	id := s.nextID
	// Copy so that publishers iterating an older slice are unaffected.
	next := make([]subscription[T], len(s.subs), len(s.subs)+1)
	copy(next, s.subs)
	s.subs = append(next, subscription[T]{id: id, fn: fn})

	var once sync.Once
	return func() { once.Do(func() { s.remove(id) }) }
}

func (s *subscribers[T]) remove(id uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	next := make([]subscription[T], 0, len(s.subs))
	for _, sub := range s.subs {
		if sub.id != id {
			next = append(next, sub)
		}
	}
	s.subs = next
}

func (s *subscribers[T]) publish(ev T) {
	s.mu.RLock()
	subs := s.subs
	s.mu.RUnlock()
	for _, sub := range subs {
		sub.fn(ev)
	}
}

func (s *subscribers[T]) len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.subs)
}

// Bus delivers events synchronously on the publishing goroutine, to each
// subscriber in subscription order. Subscribe functions return a func that
// removes the subscription; calling it more than once is harmless.
type Bus struct {
	instanceChanged  subscribers[InstanceChangedEvent]
	periodicPull     subscribers[PeriodicPullEvent]
	recovery         subscribers[RecoveryEvent]
	exception        subscribers[ExceptionEvent]
	instanceIsolated subscribers[InstanceIsolatedEvent]
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{}
}

func (b *Bus) OnInstanceChanged(fn func(InstanceChangedEvent)) (unsubscribe func()) {
	return b.instanceChanged.add(fn)
}

func (b *Bus) OnPeriodicPull(fn func(PeriodicPullEvent)) (unsubscribe func()) {
	return b.periodicPull.add(fn)
}

func (b *Bus) OnRecovery(fn func(RecoveryEvent)) (unsubscribe func()) {
	return b.recovery.add(fn)
}

func (b *Bus) OnException(fn func(ExceptionEvent)) (unsubscribe func()) {
	return b.exception.add(fn)
}

func (b *Bus) OnInstanceIsolated(fn func(InstanceIsolatedEvent)) (unsubscribe func()) {
	return b.instanceIsolated.add(fn)
}

func (b *Bus) PublishInstanceChanged(ev InstanceChangedEvent) { b.instanceChanged.publish(ev) }
func (b *Bus) PublishPeriodicPull(ev PeriodicPullEvent)       { b.periodicPull.publish(ev) }
func (b *Bus) PublishRecovery(ev RecoveryEvent)               { b.recovery.publish(ev) }
func (b *Bus) PublishException(ev ExceptionEvent)             { b.exception.publish(ev) }
func (b *Bus) PublishInstanceIsolated(ev InstanceIsolatedEvent) {
	b.instanceIsolated.publish(ev)
}

// Subscribers returns the number of subscriptions per event kind.
func (b *Bus) Subscribers() map[string]int {
	return map[string]int{
		"instance_changed":  b.instanceChanged.len(),
		"periodic_pull":     b.periodicPull.len(),
		"recovery":          b.recovery.len(),
		"exception":         b.exception.len(),
		"instance_isolated": b.instanceIsolated.len(),
	}
}
