package mw

import (
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/vango-go/antron/pkg/core"
	"github.com/vango-go/antron/pkg/gateway/ratelimit"
)

// RateLimit admits requests through limiter, keyed by client address.
// A nil limiter disables it.
func RateLimit(limiter *ratelimit.Limiter, next http.Handler) http.Handler {
	if limiter == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions {
			next.ServeHTTP(w, r)
			return
		}

		dec := limiter.Acquire(clientKey(r), time.Now())
		if !dec.Allowed {
			reqID, _ := RequestIDFrom(r.Context())
			coreErr := core.NewRateLimitError("rate limit exceeded", dec.RetryAfter)
			if dec.Busy {
				coreErr.Message = "a reply is already pending"
				coreErr.Code = "busy"
			}
			coreErr.RequestID = reqID
			w.Header().Set("Retry-After", strconv.Itoa(dec.RetryAfter))
			writeJSONError(w, http.StatusTooManyRequests, coreErr)
			return
		}
		defer dec.Permit.Release()

		next.ServeHTTP(w, r)
	})
}

func clientKey(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
