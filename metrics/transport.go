package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"
)

// Transport instruments an http.RoundTripper talking to the prescriptions API.
// Requests are labelled by resource (first path segment) and method.
type Transport struct {
	Base http.RoundTripper
}

// NewTransport wraps base, falling back to http.DefaultTransport
func NewTransport(base http.RoundTripper) *Transport {
	if base == nil {
		base = http.DefaultTransport
	}
	return &Transport{Base: base}
}

// RoundTrip implements http.RoundTripper
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	start := time.Now()
	resource := ResourceFromPath(req.URL.Path)

	resp, err := t.Base.RoundTrip(req)

	status := "error"
	if err == nil {
		status = strconv.Itoa(resp.StatusCode)
	}

	UpstreamRequestTotals.WithLabelValues(resource, req.Method, status).Inc()
	UpstreamRequestDuration.WithLabelValues(resource, req.Method).Observe(time.Since(start).Seconds())

	return resp, err
}

// ResourceFromPath returns the last non-numeric path segment, so that
// "/api/Prescription/12" and "/api/Prescription" both map to "Prescription".
func ResourceFromPath(path string) string {
	segments := strings.Split(strings.Trim(path, "/"), "/")
	for i := len(segments) - 1; i >= 0; i-- {
		seg := segments[i]
		if seg == "" {
			continue
		}
		if _, err := strconv.Atoi(seg); err == nil {
			continue
		}
		return seg
	}
	return "root"
}
