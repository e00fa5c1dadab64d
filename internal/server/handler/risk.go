package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/arbscan/internal/domain"
)

// RiskController is the part of the risk manager exposed over HTTP.
type RiskController interface {
	Metrics() domain.RiskMetrics
	EmergencyStop(ctx context.Context, reason string) (bool, []domain.Position)
}

// RiskHandler serves portfolio metrics and the emergency stop.
type RiskHandler struct {
	risk    RiskController
	journal domain.Journal
	logger  *slog.Logger
}

// NewRiskHandler creates a RiskHandler. journal may be nil; when set, the
// positions closed by an emergency stop are written to it.
func NewRiskHandler(risk RiskController, journal domain.Journal, logger *slog.Logger) *RiskHandler {
	return &RiskHandler{risk: risk, journal: journal, logger: logger.With(slog.String("handler", "risk"))}
}

// GetRisk GET /api/risk
func (h *RiskHandler) GetRisk(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.risk.Metrics())
}

type emergencyStopRequest struct {
	Reason string `json:"reason"`
}

// EmergencyStop halts all new trading and closes open positions. The stop is
// permanent for the process; a second call reports it was already engaged.
// POST /api/emergency-stop
func (h *RiskHandler) EmergencyStop(w http.ResponseWriter, r *http.Request) {
	var req emergencyStopRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
	}
	if req.Reason == "" {
		req.Reason = "manual"
	}

	engaged, closed := h.risk.EmergencyStop(r.Context(), req.Reason)
	h.logger.WarnContext(r.Context(), "handler: emergency stop requested",
		slog.String("reason", req.Reason),
		slog.Bool("newly_engaged", engaged),
		slog.Int("positions_closed", len(closed)),
	)
	if h.journal != nil {
		jctx := context.WithoutCancel(r.Context())
		for _, pos := range closed {
			if err := h.journal.UpsertPosition(jctx, pos); err != nil {
				h.logger.WarnContext(r.Context(), "handler: journal closed position failed",
					slog.String("position_id", pos.ID),
					slog.String("error", err.Error()),
				)
			}
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"emergency_stopped": true,
		"already_engaged":   !engaged,
		"closed_positions":  closed,
		"reason":            req.Reason,
	})
}
