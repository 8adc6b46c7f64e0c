package core

import (
	"errors"
	"fmt"
)

// Error represents an API error.
type Error struct {
	Type          ErrorType `json:"type"`
	Message       string    `json:"message"`
	Param         string    `json:"param,omitempty"`
	Code          string    `json:"code,omitempty"`
	RequestID     string    `json:"request_id,omitempty"`
	ProviderError any       `json:"provider_error,omitempty"`
	RetryAfter    *int      `json:"retry_after,omitempty"`

	cause error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s: %s (code: %s)", e.Type, e.Message, e.Code)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// ErrorType categorizes errors.
type ErrorType string

const (
	ErrInvalidRequest ErrorType = "invalid_request_error"
	ErrAuthentication ErrorType = "authentication_error"
	ErrPermission     ErrorType = "permission_error"
	ErrNotFound       ErrorType = "not_found_error"
	ErrRateLimit      ErrorType = "rate_limit_error"
	ErrAPI            ErrorType = "api_error"
	ErrOverloaded     ErrorType = "overloaded_error"
	ErrProvider       ErrorType = "provider_error"

	// Live-session failure classes.
	ErrDevice    ErrorType = "device_error"
	ErrTransport ErrorType = "transport_error"
	ErrPlayback  ErrorType = "playback_error"

	// ErrInference marks a turn whose bounded retries were exhausted.
	ErrInference ErrorType = "inference_error"
)

// NewInvalidRequestError creates an invalid request error.
func NewInvalidRequestError(message string) *Error {
	return &Error{
		Type:    ErrInvalidRequest,
		Message: message,
	}
}

// NewInvalidRequestErrorWithParam creates an invalid request error with a parameter.
func NewInvalidRequestErrorWithParam(message, param string) *Error {
	return &Error{
		Type:    ErrInvalidRequest,
		Message: message,
		Param:   param,
	}
}

func NewNotFoundError(message string) *Error {
	return &Error{
		Type:    ErrNotFound,
		Message: message,
	}
}

// NewRateLimitError creates a rate limit error.
func NewRateLimitError(message string, retryAfter int) *Error {
	return &Error{
		Type:       ErrRateLimit,
		Message:    message,
		RetryAfter: &retryAfter,
	}
}

// NewAPIError creates a generic API error.
func NewAPIError(message string) *Error {
	return &Error{
		Type:    ErrAPI,
		Message: message,
	}
}

// NewProviderError creates a provider-specific error.
func NewProviderError(provider string, underlying error) *Error {
	return &Error{
		Type:          ErrProvider,
		Message:       fmt.Sprintf("%s: %v", provider, underlying),
		ProviderError: underlying.Error(),
		cause:         underlying,
	}
}

// NewDeviceError reports that microphone or camera acquisition failed.
func NewDeviceError(message string, underlying error) *Error {
	return wrapped(ErrDevice, message, underlying)
}

// NewTransportError reports a failed or dropped streaming connection.
func NewTransportError(message string, underlying error) *Error {
	return wrapped(ErrTransport, message, underlying)
}

// NewPlaybackError reports an undecodable or unplayable audio payload.
func NewPlaybackError(message string, underlying error) *Error {
	return wrapped(ErrPlayback, message, underlying)
}

// NewInferenceError reports that a turn could not be completed.
func NewInferenceError(message string, underlying error) *Error {
	return wrapped(ErrInference, message, underlying)
}

func wrapped(typ ErrorType, message string, underlying error) *Error {
	e := &Error{Type: typ, Message: message, cause: underlying}
	if underlying != nil {
		e.ProviderError = underlying.Error()
	}
	return e
}

// IsRetryable returns true if the error is retryable.
func (e *Error) IsRetryable() bool {
	switch e.Type {
	case ErrRateLimit, ErrOverloaded, ErrAPI, ErrTransport:
		return true
	default:
		return false
	}
}

// Unwrap returns the underlying error for error wrapping.
func (e *Error) Unwrap() error {
	if e.cause != nil {
		return e.cause
	}
	if ue, ok := e.ProviderError.(error); ok {
		return ue
	}
	return nil
}

// TypeOf returns the ErrorType of the first *Error in err's chain.
func TypeOf(err error) (ErrorType, bool) {
	var coreErr *Error
	if errors.As(err, &coreErr) && coreErr != nil {
		return coreErr.Type, true
	}
	return "", false
}
