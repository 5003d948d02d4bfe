// Package observe wires OpenTelemetry instrumentation onto the SDK's
// outbound HTTP transport. Exporter and SDK setup belong to the consuming
// application; the SDK only instruments.
package observe

import (
	"net/http"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// HTTPTransport wraps base with OTel HTTP client instrumentation when
// enabled. Span names carry the request method so feed fetches and like
// toggles are distinguishable in traces.
func HTTPTransport(base http.RoundTripper, enabled bool) http.RoundTripper {
	if !enabled {
		return base
	}
	if base == nil {
		base = http.DefaultTransport
	}

	return otelhttp.NewTransport(
		base,
		otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
			return r.Method + " " + r.URL.Path
		}),
	)
}
