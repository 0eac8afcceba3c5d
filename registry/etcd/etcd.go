// Package etcd is a registry backend reading microservice and instance
// records from an etcd key prefix and watching it by revision.
package etcd

import (
	"context"
	"time"

	clientv3 "go.etcd.io/etcd/client/v3"

	"github.com/kbukum/gokit-discovery/errors"
	"github.com/kbukum/gokit-discovery/event"
	"github.com/kbukum/gokit-discovery/logger"
	"github.com/kbukum/gokit-discovery/registry"
)

// Backend is the factory name of this package.
const Backend = "etcd"

func init() {
	registry.RegisterFactory(Backend, func(providerCfg any, log *logger.Logger) (registry.Client, error) {
		cfg, ok := providerCfg.(*Config)
		if !ok || cfg == nil {
			cfg = &Config{}
		}
		return NewClient(*cfg, log)
	})
}

// Client implements registry.Client and event.Watcher on top of etcd v3.
type Client struct {
	client *clientv3.Client
	keys   keys
	cfg    Config
	log    *logger.Logger
}

// NewClient dials etcd with cfg.
func NewClient(cfg Config, log *logger.Logger) (*Client, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, errors.InvalidConfig("etcd", err.Error())
	}

	cli, err := clientv3.New(clientv3.Config{
		Endpoints:   cfg.Endpoints,
		DialTimeout: cfg.DialTimeout,
		Username:    cfg.Username,
		Password:    cfg.Password,
	})
	if err != nil {
		return nil, errors.RegistryUnavailable(Backend, err)
	}
	return newWithClient(cli, cfg, log), nil
}

func newWithClient(cli *clientv3.Client, cfg Config, log *logger.Logger) *Client {
	return &Client{
		client: cli,
		keys:   keys{prefix: cfg.Prefix},
		cfg:    cfg,
		log:    logger.OrNop(log).WithComponent("registry.etcd"),
	}
}

// ListInstances implements registry.Client. Undecodable records are
// logged and skipped.
func (c *Client) ListInstances(ctx context.Context, appID, serviceName string) ([]*registry.MicroserviceInstance, error) {
	appID, serviceName = registry.SplitServiceName(appID, serviceName)

	res, err := c.client.Get(ctx, c.keys.instances(appID, serviceName), clientv3.WithPrefix())
	if err != nil {
		return nil, errors.RegistryUnavailable(Backend, err)
	}
	if len(res.Kvs) == 0 {
		return nil, errors.ServiceNotFound(appID, serviceName)
	}

	out := make([]*registry.MicroserviceInstance, 0, len(res.Kvs))
	for _, kv := range res.Kvs {
		rec, err := decodeInstance(string(kv.Key), kv.Value)
		if err != nil {
			c.log.Warn("skipping instance record", logger.ErrorFields("list", err))
			continue
		}
		out = append(out, &rec.MicroserviceInstance)
	}
	return out, nil
}

// GetMicroservice implements registry.Client.
func (c *Client) GetMicroservice(ctx context.Context, serviceID string) (*registry.Microservice, error) {
	key := c.keys.microservice(serviceID)
	res, err := c.client.Get(ctx, key)
	if err != nil {
		return nil, errors.RegistryUnavailable(Backend, err)
	}
	if len(res.Kvs) == 0 {
		return nil, errors.MicroserviceNotFound(serviceID)
	}
	return decodeMicroservice(key, res.Kvs[0].Value)
}

// Ping implements registry.Pinger.
func (c *Client) Ping(ctx context.Context) error {
	if _, err := c.client.Status(ctx, c.cfg.Endpoints[0]); err != nil {
		return errors.RegistryUnavailable(Backend, err)
	}
	return nil
}

// Watch implements event.Watcher. It watches the service's instance
// prefix from the current revision, resuming after cancellation and
// skipping past compacted history.
func (c *Client) Watch(ctx context.Context, appID, serviceName string, bus *event.Bus) error {
	appID, serviceName = registry.SplitServiceName(appID, serviceName)
	log := c.log.WithFields(logger.ServiceFields(appID, serviceName))
	prefix := c.keys.instances(appID, serviceName)

	var startRev int64
	if res, err := c.client.Get(ctx, prefix, clientv3.WithPrefix(), clientv3.WithCountOnly()); err == nil && res.Header != nil {
		startRev = res.Header.Revision + 1
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		opts := []clientv3.OpOption{clientv3.WithPrefix(), clientv3.WithPrevKV()}
		if startRev > 0 {
			opts = append(opts, clientv3.WithRev(startRev))
		}

		for resp := range c.client.Watch(ctx, prefix, opts...) {
			if resp.Canceled {
				if resp.Err() != nil {
					log.Warn("etcd watch canceled", logger.ErrorFields("watch", resp.Err()))
				}
				if resp.CompactRevision > 0 {
					startRev = resp.CompactRevision + 1
				}
				break
			}
			if resp.Header.Revision > 0 && resp.Header.Revision+1 > startRev {
				startRev = resp.Header.Revision + 1
			}
			for _, e := range resp.Events {
				ev, err := c.keys.toEvent(appID, serviceName, fromWatchEvent(e))
				if err != nil {
					log.Warn("skipping watch event", logger.ErrorFields("watch", err))
					continue
				}
				bus.PublishInstanceChanged(ev)
			}
		}

		timer := time.NewTimer(c.cfg.RetryBackoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}
	}
}

// Close closes the etcd client.
func (c *Client) Close() error {
	return c.client.Close()
}

func fromWatchEvent(e *clientv3.Event) change {
	ch := change{deleted: e.Type == clientv3.EventTypeDelete}
	if e.Kv != nil {
		ch.key = string(e.Kv.Key)
		ch.value = e.Kv.Value
	}
	if e.PrevKv != nil {
		ch.prev = e.PrevKv.Value
		if ch.key == "" {
			ch.key = string(e.PrevKv.Key)
		}
	}
	return ch
}

var (
	_ registry.Client = (*Client)(nil)
	_ registry.Pinger = (*Client)(nil)
	_ event.Watcher   = (*Client)(nil)
)
