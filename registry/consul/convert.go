package consul

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/hashicorp/consul/api"

	"github.com/kbukum/gokit-discovery/errors"
	"github.com/kbukum/gokit-discovery/event"
	"github.com/kbukum/gokit-discovery/registry"
)

// Service metadata keys read from Consul registrations.
const (
	MetaAppID       = "app_id"
	MetaVersion     = "version"
	MetaEnvironment = "environment"
	MetaEndpoints   = "endpoints"
	MetaProtocol    = "protocol"
)

const defaultVersion = "0.0.0"

var knownTransports = map[string]bool{"rest": true, "highway": true, "grpc": true, "http": true, "https": true}

// record is one instance together with the version it was registered with.
type record struct {
	version  string
	instance *registry.MicroserviceInstance
}

// serviceID builds a stable id for a (app, service, version) triple.
// Consul has no version records of its own.
func serviceID(appID, serviceName, version string) string {
	return strings.Join([]string{appID, serviceName, version}, "/")
}

// parseServiceID is the inverse of serviceID.
func parseServiceID(id string) (*registry.Microservice, error) {
	parts := strings.Split(id, "/")
	if len(parts) != 3 || parts[0] == "" || parts[1] == "" || parts[2] == "" {
		return nil, errors.MicroserviceNotFound(id)
	}
	return &registry.Microservice{
		ServiceID:   id,
		AppID:       parts[0],
		ServiceName: parts[1],
		Version:     parts[2],
	}, nil
}

func metaOr(meta map[string]string, key, def string) string {
	if v, ok := meta[key]; ok && v != "" {
		return v
	}
	return def
}

// entryApp returns the application id a service entry is registered under.
func entryApp(e *api.ServiceEntry) string {
	return metaOr(e.Service.Meta, MetaAppID, registry.DefaultAppID)
}

// entryToRecord converts a health entry into a registry instance.
func entryToRecord(e *api.ServiceEntry, defaultTransport string) record {
	svc := e.Service
	appID := entryApp(e)
	ver := metaOr(svc.Meta, MetaVersion, defaultVersion)

	address := svc.Address
	if address == "" && e.Node != nil {
		address = e.Node.Address
	}

	var endpoints []string
	if raw := svc.Meta[MetaEndpoints]; raw != "" {
		for _, ep := range strings.Split(raw, ",") {
			if ep = strings.TrimSpace(ep); ep != "" {
				endpoints = append(endpoints, ep)
			}
		}
	} else {
		transport := metaOr(svc.Meta, MetaProtocol, "")
		if transport == "" {
			for _, tag := range svc.Tags {
				if knownTransports[tag] {
					transport = tag
					break
				}
			}
		}
		if transport == "" {
			transport = defaultTransport
		}
		endpoints = []string{fmt.Sprintf("%s://%s:%s", transport, address, strconv.Itoa(svc.Port))}
	}

	props := make(map[string]string, len(svc.Meta)+len(svc.Tags))
	for k, v := range svc.Meta {
		props[k] = v
	}
	for _, tag := range svc.Tags {
		props["tag:"+tag] = "true"
	}

	host := ""
	if e.Node != nil {
		host = e.Node.Node
	}

	return record{
		version: ver,
		instance: &registry.MicroserviceInstance{
			InstanceID: svc.ID,
			ServiceID:  serviceID(appID, svc.Service, ver),
			HostName:   host,
			Status:     checksToStatus(e.Checks),
			Endpoints:  endpoints,
			Properties: props,
		},
	}
}

func checksToStatus(checks api.HealthChecks) registry.InstanceStatus {
	switch checks.AggregatedStatus() {
	case api.HealthCritical:
		return registry.StatusDown
	case api.HealthMaint:
		return registry.StatusOutOfService
	default:
		return registry.StatusUp
	}
}

// snapshot keys the records of one app by instance id.
func snapshot(entries []*api.ServiceEntry, appID, defaultTransport string) map[string]record {
	out := make(map[string]record, len(entries))
	for _, e := range entries {
		if e.Service == nil || entryApp(e) != appID {
			continue
		}
		r := entryToRecord(e, defaultTransport)
		out[r.instance.InstanceID] = r
	}
	return out
}

// diff turns two consecutive snapshots into change events.
func diff(appID, serviceName string, prev, cur map[string]record) []event.InstanceChangedEvent {
	var out []event.InstanceChangedEvent
	for id, r := range cur {
		old, ok := prev[id]
		switch {
		case !ok:
			out = append(out, changed(appID, serviceName, event.ActionCreate, r))
		case !sameRecord(old, r):
			out = append(out, changed(appID, serviceName, event.ActionUpdate, r))
		}
	}
	for id, r := range prev {
		if _, ok := cur[id]; !ok {
			out = append(out, changed(appID, serviceName, event.ActionDelete, r))
		}
	}
	return out
}

func changed(appID, serviceName string, action event.Action, r record) event.InstanceChangedEvent {
	return event.InstanceChangedEvent{
		AppID:       appID,
		ServiceName: serviceName,
		Version:     r.version,
		Action:      action,
		Instance:    r.instance,
	}
}

func sameRecord(a, b record) bool {
	if a.version != b.version || a.instance.Status != b.instance.Status || len(a.instance.Endpoints) != len(b.instance.Endpoints) {
		return false
	}
	for i := range a.instance.Endpoints {
		if a.instance.Endpoints[i] != b.instance.Endpoints[i] {
			return false
		}
	}
	return true
}
