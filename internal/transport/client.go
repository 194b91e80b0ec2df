// Package transport builds the outbound HTTP client shared by every call to
// the SaluteSpeech endpoints.
package transport

import (
	"crypto/tls"
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// NewClient returns a pooled, trace-instrumented client. insecure disables
// certificate verification for deployments without the vendor's root CA.
func NewClient(insecure bool) *http.Client {
	base := http.DefaultTransport.(*http.Transport).Clone()
	base.MaxIdleConnsPerHost = 16
	base.IdleConnTimeout = 90 * time.Second
	if insecure {
		base.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec // opt-in via speech.tls_insecure
	}
	return &http.Client{Transport: otelhttp.NewTransport(base)}
}
