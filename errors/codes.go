package errors

// ErrorCode represents a machine-readable error code.
type ErrorCode string

// Configuration errors, fatal at parse time.
const (
	// ErrCodeInvalidVersion indicates a malformed version string.
	ErrCodeInvalidVersion ErrorCode = "INVALID_VERSION"
	// ErrCodeInvalidVersionRule indicates a malformed version rule.
	ErrCodeInvalidVersionRule ErrorCode = "INVALID_VERSION_RULE"
	// ErrCodeInvalidConfig indicates invalid module configuration.
	ErrCodeInvalidConfig ErrorCode = "INVALID_CONFIG"
	// ErrCodeValidation indicates invalid caller input, such as a query parameter.
	ErrCodeValidation ErrorCode = "VALIDATION_ERROR"
)

// Registry errors
const (
	// ErrCodeServiceNotFound indicates the registry does not know the service.
	ErrCodeServiceNotFound ErrorCode = "SERVICE_NOT_FOUND"
	// ErrCodeRegistryUnavailable indicates the registry could not be reached.
	ErrCodeRegistryUnavailable ErrorCode = "REGISTRY_UNAVAILABLE"
	// ErrCodeInvalidRecord indicates the registry returned data that could not be decoded.
	ErrCodeInvalidRecord ErrorCode = "INVALID_RECORD"
)

// Internal errors
const (
	// ErrCodeInternal indicates an internal error.
	ErrCodeInternal ErrorCode = "INTERNAL_ERROR"
)

var retryableCodes = map[ErrorCode]bool{
	ErrCodeRegistryUnavailable: true,
}

// IsRetryableCode returns true if the error code indicates a retryable error.
func IsRetryableCode(code ErrorCode) bool {
	return retryableCodes[code]
}
