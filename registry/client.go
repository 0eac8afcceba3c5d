package registry

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/kbukum/gokit-discovery/logger"
)

// Client is the pull side of a service registry.
type Client interface {
	// ListInstances returns every instance of every version of the service.
	// An unknown service yields an error with code SERVICE_NOT_FOUND.
	ListInstances(ctx context.Context, appID, serviceName string) ([]*MicroserviceInstance, error)

	// GetMicroservice returns the registered version record for serviceID.
	GetMicroservice(ctx context.Context, serviceID string) (*Microservice, error)

	// Close releases any resources held by the client.
	Close() error
}

// Pinger is optionally implemented by clients that can check connectivity.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Factory creates a Client from backend specific configuration. The
// concrete configuration type is owned by the backend package.
type Factory func(providerCfg any, log *logger.Logger) (Client, error)

var (
	factoriesMu sync.RWMutex
	factories   = make(map[string]Factory)
)

// RegisterFactory makes a backend available under name. Backend packages
// call this from init.
func RegisterFactory(name string, f Factory) {
	factoriesMu.Lock()
	defer factoriesMu.Unlock()
	factories[name] = f
}

// Open creates a Client for the named backend.
func Open(name string, providerCfg any, log *logger.Logger) (Client, error) {
	factoriesMu.RLock()
	f, ok := factories[name]
	factoriesMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unsupported registry backend %q (not registered)", name)
	}
	return f(providerCfg, log)
}

// Backends lists the registered backend names.
func Backends() []string {
	factoriesMu.RLock()
	defer factoriesMu.RUnlock()
	names := make([]string, 0, len(factories))
	for name := range factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
