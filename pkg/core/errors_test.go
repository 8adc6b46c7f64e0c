package core

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestError_Error(t *testing.T) {
	err := &Error{
		Type:    ErrInvalidRequest,
		Message: "query must not be empty",
	}

	expected := "invalid_request_error: query must not be empty"
	if err.Error() != expected {
		t.Errorf("Error() = %q, want %q", err.Error(), expected)
	}
}

func TestError_WithCode(t *testing.T) {
	err := &Error{
		Type:    ErrRateLimit,
		Message: "too many requests",
		Code:    "rate_limit_exceeded",
	}

	expected := "rate_limit_error: too many requests (code: rate_limit_exceeded)"
	if err.Error() != expected {
		t.Errorf("Error() = %q, want %q", err.Error(), expected)
	}
}

func TestNewRateLimitError(t *testing.T) {
	err := NewRateLimitError("rate limit exceeded", 60)
	if err.Type != ErrRateLimit {
		t.Errorf("Type = %v, want %v", err.Type, ErrRateLimit)
	}
	if err.RetryAfter == nil || *err.RetryAfter != 60 {
		t.Errorf("RetryAfter = %v, want 60", err.RetryAfter)
	}
}

func TestWrappedErrors_UnwrapToCause(t *testing.T) {
	cause := errors.New("permission denied")
	tests := []struct {
		name string
		err  *Error
		typ  ErrorType
	}{
		{name: "device", err: NewDeviceError("microphone unavailable", cause), typ: ErrDevice},
		{name: "transport", err: NewTransportError("connect failed", cause), typ: ErrTransport},
		{name: "playback", err: NewPlaybackError("bad pcm", cause), typ: ErrPlayback},
		{name: "inference", err: NewInferenceError("retries exhausted", cause), typ: ErrInference},
		{name: "provider", err: NewProviderError("gemini", cause), typ: ErrProvider},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.err.Type != tt.typ {
				t.Fatalf("Type=%q, want %q", tt.err.Type, tt.typ)
			}
			if !errors.Is(tt.err, cause) {
				t.Fatalf("errors.Is(cause)=false for %v", tt.err)
			}
			wrappedErr := fmt.Errorf("outer: %w", tt.err)
			typ, ok := TypeOf(wrappedErr)
			if !ok || typ != tt.typ {
				t.Fatalf("TypeOf=%q,%v want %q", typ, ok, tt.typ)
			}
		})
	}
}

func TestWrappedErrors_NilCause(t *testing.T) {
	err := NewTransportError("connect timeout", nil)
	if err.Unwrap() != nil {
		t.Fatalf("Unwrap()=%v, want nil", err.Unwrap())
	}
	if err.ProviderError != nil {
		t.Fatalf("ProviderError=%v, want nil", err.ProviderError)
	}
}

func TestTypeOf_NonCoreError(t *testing.T) {
	if _, ok := TypeOf(context.Canceled); ok {
		t.Fatalf("TypeOf(context.Canceled) should be false")
	}
}

func TestError_IsRetryable(t *testing.T) {
	tests := []struct {
		errType   ErrorType
		retryable bool
	}{
		{ErrInvalidRequest, false},
		{ErrAuthentication, false},
		{ErrPermission, false},
		{ErrNotFound, false},
		{ErrRateLimit, true},
		{ErrAPI, true},
		{ErrOverloaded, true},
		{ErrProvider, false},
		{ErrTransport, true},
		{ErrDevice, false},
		{ErrInference, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.errType), func(t *testing.T) {
			err := &Error{Type: tt.errType}
			if err.IsRetryable() != tt.retryable {
				t.Errorf("IsRetryable() = %v, want %v", err.IsRetryable(), tt.retryable)
			}
		})
	}
}
