package errors

import (
	"fmt"
	"net/http"
)

// AppError is the unified application error type.
type AppError struct {
	// Code is a machine-readable error code.
	Code ErrorCode `json:"code"`
	// Message is a human-readable error message.
	Message string `json:"message"`
	// Retryable indicates if the operation can be retried.
	Retryable bool `json:"retryable"`
	// HTTPStatus is the status the admin API answers with for this error.
	HTTPStatus int `json:"-"`
	// Details contains additional context for the error.
	Details map[string]any `json:"details,omitempty"`
	// Cause is the underlying error that caused this error.
	Cause error `json:"-"`
}

// Error returns the string representation of the error.
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (cause: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause of the error.
func (e *AppError) Unwrap() error { return e.Cause }

// WithCause sets the underlying cause of the error and returns the receiver.
func (e *AppError) WithCause(cause error) *AppError {
	e.Cause = cause
	return e
}

// WithDetail sets a single detail key-value pair and returns the receiver.
func (e *AppError) WithDetail(key string, value any) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// New creates a new AppError with automatic retryable detection.
func New(code ErrorCode, message string, httpStatus int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
		Retryable:  IsRetryableCode(code),
	}
}

// InvalidVersion reports a version string that cannot be parsed.
func InvalidVersion(raw, reason string) *AppError {
	return &AppError{
		Code: ErrCodeInvalidVersion, Message: fmt.Sprintf("Invalid version %q: %s", raw, reason),
		HTTPStatus: http.StatusBadRequest, Retryable: false,
		Details: map[string]any{"version": raw},
	}
}

// InvalidVersionRule reports a version rule that no parser accepts.
func InvalidVersionRule(raw, reason string) *AppError {
	return &AppError{
		Code: ErrCodeInvalidVersionRule, Message: fmt.Sprintf("Invalid version rule %q: %s", raw, reason),
		HTTPStatus: http.StatusBadRequest, Retryable: false,
		Details: map[string]any{"version_rule": raw},
	}
}

// InvalidConfig reports a configuration value that failed validation.
func InvalidConfig(field, reason string) *AppError {
	details := make(map[string]any)
	if field != "" {
		details["field"] = field
	}
	return &AppError{
		Code: ErrCodeInvalidConfig, Message: fmt.Sprintf("Invalid configuration: %s", reason),
		HTTPStatus: http.StatusInternalServerError, Retryable: false, Details: details,
	}
}

// ServiceNotFound reports that the registry has no such service.
func ServiceNotFound(appID, serviceName string) *AppError {
	return &AppError{
		Code: ErrCodeServiceNotFound, Message: fmt.Sprintf("Service %s/%s is not registered.", appID, serviceName),
		HTTPStatus: http.StatusNotFound, Retryable: false,
		Details: map[string]any{"app_id": appID, "service": serviceName},
	}
}

// MicroserviceNotFound reports that the registry has no microservice with the given id.
func MicroserviceNotFound(serviceID string) *AppError {
	return &AppError{
		Code: ErrCodeServiceNotFound, Message: fmt.Sprintf("Microservice %s is not registered.", serviceID),
		HTTPStatus: http.StatusNotFound, Retryable: false,
		Details: map[string]any{"service_id": serviceID},
	}
}

// RegistryUnavailable reports a failed call to the registry backend.
func RegistryUnavailable(backend string, cause error) *AppError {
	return &AppError{
		Code: ErrCodeRegistryUnavailable, Message: fmt.Sprintf("The %s registry is unavailable.", backend),
		HTTPStatus: http.StatusServiceUnavailable, Retryable: true,
		Details: map[string]any{"backend": backend}, Cause: cause,
	}
}

// InvalidRecord reports a registry record that could not be decoded.
func InvalidRecord(key string, cause error) *AppError {
	return &AppError{
		Code: ErrCodeInvalidRecord, Message: fmt.Sprintf("Registry record %s could not be decoded.", key),
		HTTPStatus: http.StatusBadGateway, Retryable: false,
		Details: map[string]any{"key": key}, Cause: cause,
	}
}

// Validation reports invalid caller input.
func Validation(message string) *AppError {
	return &AppError{
		Code: ErrCodeValidation, Message: message,
		HTTPStatus: http.StatusBadRequest, Retryable: false,
	}
}

// Internal creates a new AppError for an internal error.
func Internal(cause error) *AppError {
	return &AppError{
		Code: ErrCodeInternal, Message: "An unexpected error occurred.",
		HTTPStatus: http.StatusInternalServerError, Retryable: false, Cause: cause,
	}
}
