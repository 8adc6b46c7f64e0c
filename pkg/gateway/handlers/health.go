package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/vango-go/antron/pkg/gateway/config"
	"github.com/vango-go/antron/pkg/gateway/lifecycle"
)

type HealthHandler struct{}

func (h HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok\n"))
}

// Pinger reports whether a backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

type ReadyHandler struct {
	Config    config.Config
	Lifecycle *lifecycle.Lifecycle
	// Store is optional.
	Store Pinger
}

func (h ReadyHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	type readyResp struct {
		OK            bool       `json:"ok"`
		StoreDriver   string     `json:"store_driver"`
		LiveModel     string     `json:"live_model"`
		DrainingSince *time.Time `json:"draining_since,omitempty"`
		Issues        []string   `json:"issues,omitempty"`
	}

	var resp readyResp
	issues := make([]string, 0, 2)
	if since, draining := h.Lifecycle.DrainingSince(); draining {
		issues = append(issues, "draining")
		resp.DrainingSince = &since
	}
	if err := h.Config.Validate(); err != nil {
		issues = append(issues, err.Error())
	}
	if h.Store != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		err := h.Store.Ping(ctx)
		cancel()
		if err != nil {
			issues = append(issues, "store unreachable")
		}
	}

	ok := len(issues) == 0
	status := http.StatusOK
	if !ok {
		status = http.StatusServiceUnavailable
	}
	resp.OK = ok
	resp.StoreDriver = h.Config.StoreDriver
	resp.LiveModel = h.Config.LiveModel
	resp.Issues = issues
	writeJSON(w, status, resp)
}
