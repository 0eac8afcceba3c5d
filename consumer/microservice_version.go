package consumer

import (
	"github.com/kbukum/gokit-discovery/registry"
	"github.com/kbukum/gokit-discovery/version"
)

// MicroserviceVersion pairs a registered microservice record with its parsed
// version.
type MicroserviceVersion struct {
	microservice *registry.Microservice
	version      version.Version
}

// NewMicroserviceVersion parses the version of ms.
func NewMicroserviceVersion(ms *registry.Microservice) (*MicroserviceVersion, error) {
	v, err := version.Parse(ms.Version)
	if err != nil {
		return nil, err
	}
	return &MicroserviceVersion{microservice: ms, version: v}, nil
}

func (v *MicroserviceVersion) ServiceID() string                    { return v.microservice.ServiceID }
func (v *MicroserviceVersion) Microservice() *registry.Microservice { return v.microservice }
func (v *MicroserviceVersion) Version() version.Version             { return v.version }

func (v *MicroserviceVersion) String() string {
	if v == nil {
		return ""
	}
	return v.version.String()
}
