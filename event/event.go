package event

import (
	"context"
	"strings"
	"time"

	"github.com/kbukum/gokit-discovery/registry"
)

// Action is the kind of membership change an InstanceChangedEvent reports.
type Action string

const (
	ActionCreate Action = "CREATE"
	ActionUpdate Action = "UPDATE"
	ActionDelete Action = "DELETE"
	// ActionExpire invalidates the whole cached entry of the service.
	ActionExpire Action = "EXPIRE"
)

// ParseAction maps a registry action name to an Action. Unknown names are
// returned as is; consumers log and ignore them.
func ParseAction(s string) Action {
	return Action(strings.ToUpper(strings.TrimSpace(s)))
}

// Known reports whether a is one of the defined actions.
func (a Action) Known() bool {
	switch a {
	case ActionCreate, ActionUpdate, ActionDelete, ActionExpire:
		return true
	}
	return false
}

// InstanceChangedEvent reports one instance joining, changing or leaving.
type InstanceChangedEvent struct {
	AppID       string
	ServiceName string
	Version     string
	Action      Action
	Instance    *registry.MicroserviceInstance
}

// Key returns the "app/service" key the event applies to.
func (e InstanceChangedEvent) Key() string {
	return registry.Key(e.AppID, e.ServiceName)
}

// PeriodicPullEvent is emitted by the pull ticker.
type PeriodicPullEvent struct {
	At time.Time
}

// RecoveryEvent is emitted when the registry is reachable again after an outage.
type RecoveryEvent struct {
	At time.Time
}

// ExceptionEvent is emitted when a registry call fails.
type ExceptionEvent struct {
	Err error
	At  time.Time
}

// InstanceIsolatedEvent removes an instance from the candidate set for Duration.
type InstanceIsolatedEvent struct {
	InstanceID string
	Duration   time.Duration
}

// Watcher pushes membership changes of one service onto a Bus. Watch
// blocks until ctx is cancelled or the watch fails permanently.
type Watcher interface {
	Watch(ctx context.Context, appID, serviceName string, bus *Bus) error
}
