// Package consul is a registry backend reading the Consul health API.
//
// Consul has no notion of application ids or versions, so both are read
// from service metadata (app_id, version). Endpoints come from the
// "endpoints" metadata key, or are derived from address, port and protocol.
package consul

import (
	"context"
	"fmt"
	"time"

	"github.com/hashicorp/consul/api"

	"github.com/kbukum/gokit-discovery/errors"
	"github.com/kbukum/gokit-discovery/event"
	"github.com/kbukum/gokit-discovery/logger"
	"github.com/kbukum/gokit-discovery/registry"
)

// Backend is the factory name of this package.
const Backend = "consul"

func init() {
	registry.RegisterFactory(Backend, func(providerCfg any, log *logger.Logger) (registry.Client, error) {
		cfg, ok := providerCfg.(*Config)
		if !ok || cfg == nil {
			cfg = &Config{}
		}
		return NewClient(*cfg, log)
	})
}

// Client implements registry.Client and event.Watcher on top of Consul.
type Client struct {
	client *api.Client
	cfg    Config
	log    *logger.Logger
}

// NewClient creates a Client from cfg.
func NewClient(cfg Config, log *logger.Logger) (*Client, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, errors.InvalidConfig("consul", err.Error())
	}

	apiCfg := api.DefaultConfig()
	apiCfg.Address = cfg.Address
	apiCfg.Scheme = cfg.Scheme
	apiCfg.Token = cfg.Token
	apiCfg.Namespace = cfg.Namespace
	apiCfg.Partition = cfg.Partition
	if cfg.Datacenter != "" {
		apiCfg.Datacenter = cfg.Datacenter
	}
	if cfg.TLS != nil && cfg.TLS.Enabled {
		apiCfg.TLSConfig = api.TLSConfig{
			Address:            cfg.TLS.ServerName,
			CAFile:             cfg.TLS.CACert,
			CAPath:             cfg.TLS.CAPath,
			CertFile:           cfg.TLS.ClientCert,
			KeyFile:            cfg.TLS.ClientKey,
			InsecureSkipVerify: cfg.TLS.InsecureSkipVerify,
		}
	}

	client, err := api.NewClient(apiCfg)
	if err != nil {
		return nil, errors.RegistryUnavailable(Backend, fmt.Errorf("consul client: %w", err))
	}

	return &Client{
		client: client,
		cfg:    cfg,
		log:    logger.OrNop(log).WithComponent("registry.consul"),
	}, nil
}

// ListInstances implements registry.Client.
func (c *Client) ListInstances(ctx context.Context, appID, serviceName string) ([]*registry.MicroserviceInstance, error) {
	appID, serviceName = registry.SplitServiceName(appID, serviceName)

	entries, _, err := c.client.Health().Service(serviceName, "", false, (&api.QueryOptions{}).WithContext(ctx))
	if err != nil {
		return nil, errors.RegistryUnavailable(Backend, fmt.Errorf("consul list %q: %w", serviceName, err))
	}

	snap := snapshot(entries, appID, c.cfg.DefaultTransport)
	if len(snap) == 0 {
		return nil, errors.ServiceNotFound(appID, serviceName)
	}
	out := make([]*registry.MicroserviceInstance, 0, len(snap))
	for _, r := range snap {
		out = append(out, r.instance)
	}
	return out, nil
}

// GetMicroservice implements registry.Client. Service ids are derived from
// app, name and version and decode without a round trip.
func (c *Client) GetMicroservice(_ context.Context, serviceID string) (*registry.Microservice, error) {
	return parseServiceID(serviceID)
}

// Ping implements registry.Pinger.
func (c *Client) Ping(context.Context) error {
	if _, err := c.client.Status().Leader(); err != nil {
		return errors.RegistryUnavailable(Backend, err)
	}
	return nil
}

// Watch implements event.Watcher with Consul blocking queries. Each
// returned index change is diffed against the previous result.
func (c *Client) Watch(ctx context.Context, appID, serviceName string, bus *event.Bus) error {
	appID, serviceName = registry.SplitServiceName(appID, serviceName)
	log := c.log.WithFields(logger.ServiceFields(appID, serviceName))

	var (
		lastIndex uint64
		prev      map[string]record
	)
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		opts := (&api.QueryOptions{WaitIndex: lastIndex, WaitTime: c.cfg.WatchWait}).WithContext(ctx)
		entries, meta, err := c.client.Health().Service(serviceName, "", false, opts)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			log.Warn("consul watch error", logger.ErrorFields("watch", err))
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(c.cfg.RetryBackoff):
			}
			continue
		}

		if meta.LastIndex == lastIndex {
			continue
		}
		// Consul may reset the index; start over from zero as the docs require.
		if meta.LastIndex < lastIndex {
			lastIndex = 0
		} else {
			lastIndex = meta.LastIndex
		}

		cur := snapshot(entries, appID, c.cfg.DefaultTransport)
		if prev != nil {
			for _, ev := range diff(appID, serviceName, prev, cur) {
				bus.PublishInstanceChanged(ev)
			}
		}
		prev = cur
	}
}

// Close is a no-op; the HTTP client does not require explicit closing.
func (c *Client) Close() error {
	return nil
}

var (
	_ registry.Client = (*Client)(nil)
	_ registry.Pinger = (*Client)(nil)
	_ event.Watcher   = (*Client)(nil)
)
