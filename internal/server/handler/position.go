package handler

import (
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/arbscan/internal/domain"
)

// PositionSource lists the positions tracked in memory by the risk manager.
type PositionSource interface {
	Positions() []domain.Position
}

// PositionHandler serves positions from the live session or, with
// ?source=journal, from the persistent journal.
type PositionHandler struct {
	live    PositionSource
	journal domain.Journal
	logger  *slog.Logger
}

// NewPositionHandler creates a PositionHandler. journal may be nil.
func NewPositionHandler(live PositionSource, journal domain.Journal, logger *slog.Logger) *PositionHandler {
	return &PositionHandler{live: live, journal: journal, logger: logger.With(slog.String("handler", "positions"))}
}

type listPositionsResponse struct {
	Positions []domain.Position `json:"positions"`
}

// ListPositions filters by ?status=open|closed|<exact status>.
// GET /api/positions
func (h *PositionHandler) ListPositions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	status := q.Get("status")

	if q.Get("source") == "journal" {
		if h.journal == nil {
			writeError(w, http.StatusNotFound, "journal not configured")
			return
		}
		var filter domain.PositionStatus
		if status != "" && status != "closed" {
			filter = domain.PositionStatus(status)
		}
		positions, err := h.journal.ListPositions(r.Context(), filter, parseListOpts(r))
		if err != nil {
			h.logger.ErrorContext(r.Context(), "handler: list journal positions failed",
				slog.String("error", err.Error()),
			)
			writeError(w, http.StatusInternalServerError, "failed to list positions")
			return
		}
		writeJSON(w, http.StatusOK, listPositionsResponse{Positions: filterStatus(positions, status)})
		return
	}

	positions := filterStatus(h.live.Positions(), status)
	if limit := parseLimit(r); len(positions) > limit {
		positions = positions[:limit]
	}
	writeJSON(w, http.StatusOK, listPositionsResponse{Positions: positions})
}

func filterStatus(in []domain.Position, status string) []domain.Position {
	out := make([]domain.Position, 0, len(in))
	for _, p := range in {
		switch status {
		case "", "all":
		case "closed":
			if !p.Status.Closed() {
				continue
			}
		default:
			if string(p.Status) != status {
				continue
			}
		}
		out = append(out, p)
	}
	return out
}
