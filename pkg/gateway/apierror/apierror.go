package apierror

import (
	"context"
	"errors"
	"net/http"

	"github.com/vango-go/antron/pkg/core"
)

type Envelope struct {
	Error *core.Error `json:"error"`
}

func FromError(err error, requestID string) (*core.Error, int) {
	if err == nil {
		return nil, http.StatusOK
	}

	// Context timeouts/cancellation.
	if errors.Is(err, context.DeadlineExceeded) {
		return &core.Error{
			Type:      core.ErrAPI,
			Message:   "request timeout",
			RequestID: requestID,
		}, http.StatusGatewayTimeout
	}
	if errors.Is(err, context.Canceled) {
		return &core.Error{
			Type:      core.ErrAPI,
			Message:   "request cancelled",
			Code:      "cancelled",
			RequestID: requestID,
		}, http.StatusRequestTimeout
	}

	// Already canonical. Provider payloads and causes stay server-side.
	var coreErr *core.Error
	if errors.As(err, &coreErr) && coreErr != nil {
		out := core.Error{
			Type:       coreErr.Type,
			Message:    coreErr.Message,
			Param:      coreErr.Param,
			Code:       coreErr.Code,
			RetryAfter: coreErr.RetryAfter,
			RequestID:  requestID,
		}
		return &out, statusFromType(coreErr.Type)
	}

	// MaxBody rejections.
	var maxBytesErr *http.MaxBytesError
	if errors.As(err, &maxBytesErr) {
		return &core.Error{
			Type:      core.ErrInvalidRequest,
			Message:   "request body too large",
			Code:      "body_too_large",
			RequestID: requestID,
		}, http.StatusRequestEntityTooLarge
	}

	// Unknown errors: treat as internal API error (do not leak details by default).
	return &core.Error{
		Type:      core.ErrAPI,
		Message:   "internal error",
		RequestID: requestID,
	}, http.StatusInternalServerError
}

func statusFromType(t core.ErrorType) int {
	switch t {
	case core.ErrInvalidRequest:
		return http.StatusBadRequest
	case core.ErrAuthentication:
		return http.StatusUnauthorized
	case core.ErrPermission:
		return http.StatusForbidden
	case core.ErrNotFound:
		return http.StatusNotFound
	case core.ErrRateLimit:
		return http.StatusTooManyRequests
	case core.ErrOverloaded:
		return 529
	case core.ErrProvider:
		return http.StatusBadGateway
	case core.ErrAPI:
		return http.StatusBadGateway
	case core.ErrInference, core.ErrTransport:
		return http.StatusBadGateway
	case core.ErrDevice:
		return http.StatusServiceUnavailable
	case core.ErrPlayback:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}
