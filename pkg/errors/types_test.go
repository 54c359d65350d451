package errors

import (
	"errors"
	"fmt"
	"testing"
)

func TestNewError(t *testing.T) {
	err := New(ErrCodeProviderAuth, "bad key")
	if err.Code != ErrCodeProviderAuth {
		t.Errorf("expected code %s, got %s", ErrCodeProviderAuth, err.Code)
	}
	if err.Retryable {
		t.Error("new errors should not be retryable by default")
	}
}

func TestWrapNil(t *testing.T) {
	if Wrap(nil, ErrCodeInternal, "nope") != nil {
		t.Error("wrapping nil should return nil")
	}
}

func TestWrapAndUnwrap(t *testing.T) {
	underlying := fmt.Errorf("dial tcp: connection refused")
	err := Wrap(underlying, ErrCodeProviderConnection, "chat request failed")

	if !errors.Is(err, underlying) {
		t.Error("errors.Is should find the underlying error")
	}
	if got := GetCode(err); got != ErrCodeProviderConnection {
		t.Errorf("expected PROVIDER_CONNECTION, got %s", got)
	}
}

func TestErrorStringIncludesContext(t *testing.T) {
	err := New(ErrCodeVehicleCommand, "takeoff rejected").WithContext("altitude", 30.0)
	s := err.Error()
	if s == "" || !IsCode(err, ErrCodeVehicleCommand) {
		t.Fatalf("unexpected error string %q", s)
	}
}

func TestRetryable(t *testing.T) {
	err := New(ErrCodeProviderTimeout, "timed out").WithRetryable(true)
	if !IsRetryable(err) {
		t.Error("expected retryable")
	}
	if IsRetryable(fmt.Errorf("plain")) {
		t.Error("plain errors are not retryable")
	}
}

func TestGetCodeOnForeignError(t *testing.T) {
	if got := GetCode(fmt.Errorf("plain")); got != ErrCodeInternal {
		t.Errorf("expected INTERNAL for foreign errors, got %s", got)
	}
}
