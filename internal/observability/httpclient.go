package observability

import (
	"net/http"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// NewHTTPClient wraps base (or a fresh client) with the otelhttp transport
// so outbound LLM, search, and calendar calls carry trace context.
func NewHTTPClient(base *http.Client) *http.Client {
	if base == nil {
		base = &http.Client{}
	}
	next := base.Transport
	if next == nil {
		next = http.DefaultTransport
	}
	base.Transport = otelhttp.NewTransport(next)
	return base
}

// WithHeaders returns a client that sets the given headers on every request
// it sends. Headers already present on a request are left alone.
func WithHeaders(base *http.Client, headers map[string]string) *http.Client {
	if base == nil {
		base = &http.Client{}
	}
	if len(headers) == 0 {
		return base
	}
	next := base.Transport
	if next == nil {
		next = http.DefaultTransport
	}
	base.Transport = headerTransport{next: next, headers: headers}
	return base
}

type headerTransport struct {
	next    http.RoundTripper
	headers map[string]string
}

func (t headerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	clone := req.Clone(req.Context())
	for k, v := range t.headers {
		if clone.Header.Get(k) == "" {
			clone.Header.Set(k, v)
		}
	}
	return t.next.RoundTrip(clone)
}
