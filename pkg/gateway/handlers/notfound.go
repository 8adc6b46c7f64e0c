package handlers

import (
	"net/http"

	"github.com/vango-go/antron/pkg/core"
)

// NotFoundHandler answers unmatched routes with the JSON error envelope
// instead of the mux's plain-text 404.
type NotFoundHandler struct{}

func (NotFoundHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	writeCoreErrorJSON(w, requestIDFromContext(r.Context()), &core.Error{
		Type:    core.ErrNotFound,
		Message: "no route for " + r.Method + " " + r.URL.Path,
	}, http.StatusNotFound)
}
