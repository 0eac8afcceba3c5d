package etcd

import (
	"encoding/json"
	"strings"

	"github.com/kbukum/gokit-discovery/errors"
	"github.com/kbukum/gokit-discovery/event"
	"github.com/kbukum/gokit-discovery/registry"
)

// Key layout under the configured prefix:
//
//	{prefix}/microservices/{serviceID}                     -> registry.Microservice
//	{prefix}/instances/{appID}/{service}/{instanceID}      -> instanceRecord
type keys struct {
	prefix string
}

func (k keys) microservice(serviceID string) string {
	return k.prefix + "/microservices/" + serviceID
}

func (k keys) instances(appID, serviceName string) string {
	return k.prefix + "/instances/" + appID + "/" + serviceName + "/"
}

// instanceID extracts the trailing id from an instance key.
func (k keys) instanceID(key string) string {
	if idx := strings.LastIndex(key, "/"); idx >= 0 {
		return key[idx+1:]
	}
	return key
}

// instanceRecord is the stored form of an instance; it carries the version
// so watch events can be built without a second read.
type instanceRecord struct {
	registry.MicroserviceInstance
	Version string `json:"version"`
}

func decodeInstance(key string, value []byte) (*instanceRecord, error) {
	var rec instanceRecord
	if err := json.Unmarshal(value, &rec); err != nil {
		return nil, errors.InvalidRecord(key, err)
	}
	if rec.InstanceID == "" || rec.ServiceID == "" {
		return nil, errors.InvalidRecord(key, nil).WithDetail("reason", "instance_id and service_id are required")
	}
	return &rec, nil
}

func decodeMicroservice(key string, value []byte) (*registry.Microservice, error) {
	var ms registry.Microservice
	if err := json.Unmarshal(value, &ms); err != nil {
		return nil, errors.InvalidRecord(key, err)
	}
	return &ms, nil
}

// change is the backend-neutral form of one etcd watch event.
type change struct {
	key     string
	deleted bool
	value   []byte
	prev    []byte
}

// toEvent converts a watch change into an InstanceChangedEvent. PUT reads
// the new value, DELETE the previous one (requires WithPrevKV); a DELETE
// without a previous value still removes the instance by the id in its key.
func (k keys) toEvent(appID, serviceName string, c change) (event.InstanceChangedEvent, error) {
	ev := event.InstanceChangedEvent{AppID: appID, ServiceName: serviceName}
	if c.deleted {
		ev.Action = event.ActionDelete
		if c.prev == nil {
			ev.Instance = &registry.MicroserviceInstance{InstanceID: k.instanceID(c.key)}
			return ev, nil
		}
		rec, err := decodeInstance(c.key, c.prev)
		if err != nil {
			return ev, err
		}
		ev.Version, ev.Instance = rec.Version, &rec.MicroserviceInstance
		return ev, nil
	}

	rec, err := decodeInstance(c.key, c.value)
	if err != nil {
		return ev, err
	}
	ev.Action = event.ActionCreate
	if c.prev != nil {
		ev.Action = event.ActionUpdate
	}
	ev.Version, ev.Instance = rec.Version, &rec.MicroserviceInstance
	return ev, nil
}
