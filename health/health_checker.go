// Package health reports whether the prescriptions API is reachable, based on
// periodic probes run by the scheduler.
package health

import (
	"context"
	"math"
	"net/http"
	"sync"
	"time"

	"github.com/giygas/prescriptions-web/interfaces"
	"github.com/giygas/prescriptions-web/metrics"
)

// ProbeTimeout bounds a single probe
const ProbeTimeout = 5 * time.Second

// Compile-time check
var _ interfaces.HealthChecker = (*HealthCheckerImpl)(nil)

// HealthCheckerImpl keeps the outcome of the last probes
type HealthCheckerImpl struct {
	pinger     interfaces.Pinger
	staleAfter time.Duration
	startedAt  time.Time
	now        func() time.Time

	mu                  sync.RWMutex
	lastProbe           time.Time
	lastSuccess         time.Time
	lastError           string
	consecutiveFailures int
}

// NewHealthChecker creates a checker. A last success older than staleAfter
// reports degraded.
func NewHealthChecker(pinger interfaces.Pinger, staleAfter time.Duration) *HealthCheckerImpl {
	return &HealthCheckerImpl{
		pinger:     pinger,
		staleAfter: staleAfter,
		startedAt:  time.Now(),
		now:        time.Now,
	}
}

// Probe pings the API once and records the outcome
func (h *HealthCheckerImpl) Probe(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, ProbeTimeout)
	defer cancel()

	err := h.pinger.Ping(ctx)
	now := h.now()

	h.mu.Lock()
	defer h.mu.Unlock()

	h.lastProbe = now
	if err != nil {
		h.lastError = err.Error()
		h.consecutiveFailures++
		metrics.UpstreamUp.Set(0)
		return err
	}
	h.lastSuccess = now
	h.lastError = ""
	h.consecutiveFailures = 0
	metrics.UpstreamUp.Set(1)
	return nil
}

// HealthCheck returns the status for the /health endpoint
func (h *HealthCheckerImpl) HealthCheck() (status string, data map[string]any, httpStatus int) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	now := h.now()

	switch {
	case h.consecutiveFailures > 0:
		status = "unhealthy"
		httpStatus = http.StatusServiceUnavailable

	case h.lastSuccess.IsZero():
		status = "degraded"
		httpStatus = http.StatusOK

	case h.staleAfter > 0 && now.Sub(h.lastSuccess) > h.staleAfter:
		status = "degraded"
		httpStatus = http.StatusOK

	default:
		status = "healthy"
		httpStatus = http.StatusOK
	}

	data = map[string]any{
		"uptime_seconds":       math.Round(now.Sub(h.startedAt).Seconds()),
		"consecutive_failures": h.consecutiveFailures,
	}
	if !h.lastProbe.IsZero() {
		data["last_probe"] = h.lastProbe.Format(time.RFC3339)
	}
	if !h.lastSuccess.IsZero() {
		data["last_success"] = h.lastSuccess.Format(time.RFC3339)
	}
	if h.lastError != "" {
		data["last_error"] = h.lastError
	}

	return status, data, httpStatus
}
