package gemini

import (
	"net/http"
	"strings"
)

// Option configures the Provider.
type Option func(*Provider)

// WithBaseURL points the client at another endpoint. Blank values keep
// the SDK default.
func WithBaseURL(url string) Option {
	return func(p *Provider) {
		if url = strings.TrimSpace(url); url != "" {
			p.baseURL = strings.TrimRight(url, "/") + "/"
		}
	}
}

// WithAPIVersion selects the REST version, such as "v1beta" or
// "v1alpha". Blank values keep the SDK default.
func WithAPIVersion(version string) Option {
	return func(p *Provider) {
		p.apiVersion = strings.TrimSpace(version)
	}
}

// WithHTTPClient sets the client used for unary calls. Live sessions
// dial their own WebSocket.
func WithHTTPClient(client *http.Client) Option {
	return func(p *Provider) {
		p.httpClient = client
	}
}
