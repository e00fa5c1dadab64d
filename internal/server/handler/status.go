package handler

import (
	"net/http"
	"time"

	"github.com/alanyoungcy/arbscan/internal/domain"
)

// StatusHandler serves static runtime information.
type StatusHandler struct {
	mode       string
	strategies []string
	venues     []domain.Venue
	pairs      []domain.Pair
	startedAt  time.Time
}

// NewStatusHandler creates a StatusHandler.
func NewStatusHandler(mode string, strategies []string, venues []domain.Venue, pairs []domain.Pair, startedAt time.Time) *StatusHandler {
	return &StatusHandler{mode: mode, strategies: strategies, venues: venues, pairs: pairs, startedAt: startedAt}
}

// GetStatus GET /api/status
func (h *StatusHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.Snapshot())
}

// Snapshot is the body of GetStatus, also pushed to new WebSocket clients.
func (h *StatusHandler) Snapshot() map[string]any {
	return map[string]any{
		"mode":           h.mode,
		"strategies":     h.strategies,
		"venues":         h.venues,
		"pairs":          h.pairs,
		"started_at":     h.startedAt.UTC().Format(time.RFC3339),
		"uptime_seconds": int64(time.Since(h.startedAt).Seconds()),
	}
}
