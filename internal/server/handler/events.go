package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/arbscan/internal/domain"
)

// RecentEvents is the in-memory ring of recent events.
type RecentEvents interface {
	List(kind domain.EventKind, limit int) []domain.Event
}

// StreamTailer reads the newest payloads of a durable event stream.
type StreamTailer interface {
	StreamTail(ctx context.Context, stream string, count int) ([][]byte, error)
}

// EventHandler serves recent opportunities and events.
type EventHandler struct {
	recent RecentEvents
	tail   StreamTailer
	stream string
	logger *slog.Logger
}

// NewEventHandler creates an EventHandler. tail may be nil when no durable
// stream is configured.
func NewEventHandler(recent RecentEvents, tail StreamTailer, stream string, logger *slog.Logger) *EventHandler {
	return &EventHandler{recent: recent, tail: tail, stream: stream, logger: logger.With(slog.String("handler", "events"))}
}

type listEventsResponse struct {
	Events []domain.Event `json:"events"`
}

// RecentOpportunities GET /api/opportunities/recent
func (h *EventHandler) RecentOpportunities(w http.ResponseWriter, r *http.Request) {
	evs := h.recent.List(domain.EventOpportunityFound, parseLimit(r))
	writeJSON(w, http.StatusOK, listEventsResponse{Events: nonNil(evs)})
}

// RecentEvents lists events of ?kind= (required), newest first.
// GET /api/events/recent
func (h *EventHandler) RecentEvents(w http.ResponseWriter, r *http.Request) {
	kind := r.URL.Query().Get("kind")
	if kind == "" {
		writeError(w, http.StatusBadRequest, "kind query parameter required")
		return
	}
	evs := h.recent.List(domain.EventKind(kind), parseLimit(r))
	writeJSON(w, http.StatusOK, listEventsResponse{Events: nonNil(evs)})
}

// History returns raw events from the durable stream, newest first.
// GET /api/events/history
func (h *EventHandler) History(w http.ResponseWriter, r *http.Request) {
	if h.tail == nil {
		writeError(w, http.StatusNotFound, "event history not configured")
		return
	}
	payloads, err := h.tail.StreamTail(r.Context(), h.stream, parseLimit(r))
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: event history failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to read event history")
		return
	}
	out := make([]json.RawMessage, 0, len(payloads))
	for _, p := range payloads {
		if json.Valid(p) {
			out = append(out, json.RawMessage(p))
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": out})
}

func nonNil(evs []domain.Event) []domain.Event {
	if evs == nil {
		return []domain.Event{}
	}
	return evs
}
