package handler

import (
	"net/http"

	"github.com/alanyoungcy/arbscan/internal/aggregator"
	"github.com/alanyoungcy/arbscan/internal/ratelimit"
)

// BreakerSource reports per-venue circuit breaker state.
type BreakerSource interface {
	Status() []aggregator.BreakerStatus
}

// UsageSource reports rate-limit window occupancy.
type UsageSource interface {
	Usage() []ratelimit.Usage
}

// HealthDetailHandler serves breaker and rate-limit diagnostics.
type HealthDetailHandler struct {
	breakers BreakerSource
	usage    UsageSource
}

// NewHealthDetailHandler creates a HealthDetailHandler. usage may be nil
// when the limiter is not in-process.
func NewHealthDetailHandler(breakers BreakerSource, usage UsageSource) *HealthDetailHandler {
	return &HealthDetailHandler{breakers: breakers, usage: usage}
}

// Breakers GET /api/breakers
func (h *HealthDetailHandler) Breakers(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"breakers": h.breakers.Status()})
}

// RateLimits GET /api/ratelimits
func (h *HealthDetailHandler) RateLimits(w http.ResponseWriter, r *http.Request) {
	if h.usage == nil {
		writeError(w, http.StatusNotFound, "rate limit usage is not tracked in-process")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"endpoints": h.usage.Usage()})
}
