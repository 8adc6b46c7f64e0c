package mw

import (
	"net/http"
	"strings"

	"github.com/vango-go/antron/pkg/core"
)

const (
	apiVersionHeader = "X-Antron-Version"
	apiVersion       = "1"
)

// APIVersion pins /v1 requests to version 1. A missing header means the
// current version; any other value is rejected. Accepted responses echo
// the version so clients can detect a mismatched gateway.
func APIVersion(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions || isWebSocketUpgrade(r) || !isV1Path(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		if bad, ok := unsupportedVersion(r.Header.Values(apiVersionHeader)); ok {
			reqID, _ := RequestIDFrom(r.Context())
			writeJSONError(w, http.StatusBadRequest, &core.Error{
				Type:      core.ErrInvalidRequest,
				Message:   "unsupported API version " + quoteVersion(bad),
				Param:     apiVersionHeader,
				Code:      "unsupported_version",
				RequestID: reqID,
			})
			return
		}

		w.Header().Set(apiVersionHeader, apiVersion)
		next.ServeHTTP(w, r)
	})
}

// unsupportedVersion returns the first listed version other than the
// current one. Values may repeat the header or be comma separated.
func unsupportedVersion(values []string) (string, bool) {
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			part = strings.TrimSpace(part)
			if part != "" && part != apiVersion {
				return part, true
			}
		}
	}
	return "", false
}

func quoteVersion(v string) string {
	if len(v) > 16 {
		v = v[:16]
	}
	return `"` + v + `"`
}

func isV1Path(path string) bool {
	return path == "/v1" || strings.HasPrefix(path, "/v1/")
}

func isWebSocketUpgrade(r *http.Request) bool {
	if !strings.EqualFold(strings.TrimSpace(r.Header.Get("Upgrade")), "websocket") {
		return false
	}
	for _, v := range r.Header.Values("Connection") {
		for _, tok := range strings.Split(v, ",") {
			if strings.EqualFold(strings.TrimSpace(tok), "upgrade") {
				return true
			}
		}
	}
	return false
}
