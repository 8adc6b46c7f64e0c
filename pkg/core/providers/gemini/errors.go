package gemini

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"google.golang.org/genai"

	"github.com/vango-go/antron/pkg/core"
)

// mapError converts genai failures into *core.Error. Context errors are
// returned unchanged so callers can tell cancellation from failure.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	var apiErr genai.APIError
	if !errors.As(err, &apiErr) {
		var apiErrPtr *genai.APIError
		if !errors.As(err, &apiErrPtr) || apiErrPtr == nil {
			return core.NewProviderError(providerName, err)
		}
		apiErr = *apiErrPtr
	}

	out := &core.Error{
		Type:          errorType(apiErr.Status, apiErr.Code),
		Message:       apiErr.Message,
		Code:          apiErr.Status,
		ProviderError: apiErr,
	}
	if out.Message == "" {
		out.Message = err.Error()
	}
	if out.Code == "" && apiErr.Code != 0 {
		out.Code = strconv.Itoa(apiErr.Code)
	}
	return out
}

// errorType maps Gemini status names, then HTTP codes, to core error types.
func errorType(status string, code int) core.ErrorType {
	var typ core.ErrorType
	switch status {
	case "INVALID_ARGUMENT", "FAILED_PRECONDITION":
		typ = core.ErrInvalidRequest
	case "UNAUTHENTICATED":
		typ = core.ErrAuthentication
	case "PERMISSION_DENIED":
		typ = core.ErrPermission
	case "NOT_FOUND":
		typ = core.ErrNotFound
	case "RESOURCE_EXHAUSTED":
		typ = core.ErrRateLimit
	case "INTERNAL":
		typ = core.ErrAPI
	case "UNAVAILABLE":
		typ = core.ErrOverloaded
	default:
		typ = core.ErrProvider
	}

	switch code {
	case http.StatusTooManyRequests:
		typ = core.ErrRateLimit
	case http.StatusServiceUnavailable:
		typ = core.ErrOverloaded
	case http.StatusUnauthorized, http.StatusForbidden:
		typ = core.ErrAuthentication
	case http.StatusInternalServerError:
		if typ == core.ErrProvider {
			typ = core.ErrAPI
		}
	}
	return typ
}
