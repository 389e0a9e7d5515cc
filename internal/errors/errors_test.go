package errors

import (
	"fmt"
	"testing"
)

// TestAppErrorCodes tests the constructor-to-code mapping
func TestAppErrorCodes(t *testing.T) {
	tests := []struct {
		err  *AppError
		code string
	}{
		{ConfigInvalid("bad"), CodeConfigInvalid},
		{DataInvalid("bad"), CodeDataInvalid},
		{NumericalFailure("bad"), CodeNumericalFailure},
		{UndefinedMetric("bad"), CodeUndefinedMetric},
		{StoreError("bad", nil), CodeStoreError},
		{NotFound("run"), CodeNotFound},
		{InternalError("bad"), CodeInternalError},
	}
	for _, test := range tests {
		if GetCode(test.err) != test.code {
			t.Errorf("Expected code %s, got %s", test.code, GetCode(test.err))
		}
	}
}

// TestWrapPreservesCode tests that wrapping keeps the original code
func TestWrapPreservesCode(t *testing.T) {
	inner := ConfigInvalid("chains too few")
	wrapped := Wrap(inner, "loading configuration")
	if GetCode(wrapped) != CodeConfigInvalid {
		t.Errorf("Expected wrapped error to keep code %s, got %s", CodeConfigInvalid, GetCode(wrapped))
	}

	plain := Wrap(fmt.Errorf("disk full"), "saving run")
	if GetCode(plain) != CodeInternalError {
		t.Errorf("Expected plain error to gain code %s, got %s", CodeInternalError, GetCode(plain))
	}

	if Wrap(nil, "anything") != nil {
		t.Error("Wrapping nil should stay nil")
	}
}

// TestErrorMessage tests message formatting with and without a cause
func TestErrorMessage(t *testing.T) {
	bare := DataInvalid("empty series")
	if bare.Error() != "empty series" {
		t.Errorf("Unexpected message: %s", bare.Error())
	}

	caused := StoreError("insert failed", fmt.Errorf("connection reset"))
	if caused.Error() != "insert failed: connection reset" {
		t.Errorf("Unexpected message: %s", caused.Error())
	}
	if caused.Unwrap() == nil {
		t.Error("Expected Unwrap to expose the cause")
	}
}

// TestGetCodeUnknown tests non-AppError handling
func TestGetCodeUnknown(t *testing.T) {
	if GetCode(fmt.Errorf("plain")) != "UNKNOWN" {
		t.Error("Expected UNKNOWN for plain errors")
	}
	if IsAppError(fmt.Errorf("plain")) {
		t.Error("Plain errors are not AppErrors")
	}
}
