package logger

// Standard field keys used by the discovery packages.
const (
	FieldComponent    = "component"
	FieldAppID        = "app_id"
	FieldService      = "service"
	FieldServiceID    = "service_id"
	FieldVersionRule  = "version_rule"
	FieldVersion      = "version"
	FieldInstanceID   = "instance_id"
	FieldTransport    = "transport"
	FieldCacheVersion = "cache_version"
	FieldFilter       = "filter"
	FieldAction       = "action"
	FieldOperation    = "operation"
	FieldError        = "error"
	FieldDuration     = "duration_ms"
)

// Fields builds a map[string]interface{} from alternating key-value pairs.
//
//	log.Info("pulled", logger.Fields(logger.FieldService, name, "instances", n))
func Fields(kvs ...interface{}) map[string]interface{} {
	m := make(map[string]interface{}, len(kvs)/2)
	for i := 0; i < len(kvs)-1; i += 2 {
		if key, ok := kvs[i].(string); ok {
			m[key] = kvs[i+1]
		}
	}
	return m
}

// ErrorFields creates fields for an operation that failed.
func ErrorFields(op string, err error) map[string]interface{} {
	return map[string]interface{}{
		FieldOperation: op,
		FieldError:     err.Error(),
	}
}

// ServiceFields creates the fields identifying a call target.
func ServiceFields(appID, serviceName string) map[string]interface{} {
	return map[string]interface{}{
		FieldAppID:   appID,
		FieldService: serviceName,
	}
}
