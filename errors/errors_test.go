package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"strings"
	"testing"
)

func TestAppError_New_Retryable(t *testing.T) {
	err := New(ErrCodeRegistryUnavailable, "down", http.StatusServiceUnavailable)
	if !err.Retryable {
		t.Error("REGISTRY_UNAVAILABLE should be retryable")
	}
	err = New(ErrCodeInvalidVersion, "bad", http.StatusBadRequest)
	if err.Retryable {
		t.Error("INVALID_VERSION should not be retryable")
	}
}

func TestInvalidVersionRule(t *testing.T) {
	err := InvalidVersionRule("1.0-x", "bad upper bound")
	if err.Code != ErrCodeInvalidVersionRule {
		t.Errorf("expected INVALID_VERSION_RULE, got %s", err.Code)
	}
	if err.Details["version_rule"] != "1.0-x" {
		t.Errorf("expected version_rule detail, got %v", err.Details["version_rule"])
	}
	if !strings.Contains(err.Error(), "bad upper bound") {
		t.Errorf("expected reason in message, got %q", err.Error())
	}
}

func TestRegistryUnavailable_Unwrap(t *testing.T) {
	cause := fmt.Errorf("dial tcp: refused")
	err := RegistryUnavailable("consul", cause)
	if !stderrors.Is(err, cause) {
		t.Error("expected errors.Is to find the cause")
	}
	if !IsRetryable(err) {
		t.Error("expected registry errors to be retryable")
	}
	if !strings.Contains(err.Error(), "dial tcp") {
		t.Errorf("expected cause in message, got %q", err.Error())
	}
}

func TestHasCode_Wrapped(t *testing.T) {
	wrapped := fmt.Errorf("pull: %w", ServiceNotFound("app", "svc"))
	if !HasCode(wrapped, ErrCodeServiceNotFound) {
		t.Error("expected wrapped error to carry SERVICE_NOT_FOUND")
	}
	if HasCode(stderrors.New("plain"), ErrCodeServiceNotFound) {
		t.Error("plain error must not match")
	}
	if IsRetryable(stderrors.New("plain")) {
		t.Error("plain error must not be retryable")
	}
}

func TestWithDetail(t *testing.T) {
	err := Internal(nil).WithDetail("op", "pull")
	if err.Details["op"] != "pull" {
		t.Errorf("expected op detail, got %v", err.Details)
	}
}

func TestToResponse(t *testing.T) {
	resp := InvalidVersion("a.b", "not a number").ToResponse()
	if resp.Error.Code != ErrCodeInvalidVersion {
		t.Errorf("expected INVALID_VERSION, got %s", resp.Error.Code)
	}
	if resp.Error.Retryable {
		t.Error("expected non-retryable response")
	}
}
