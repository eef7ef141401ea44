package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/arbengine/internal/domain"
)

// EventHandler pages through the durable engine event stream.
type EventHandler struct {
	bus    domain.SignalBus
	stream string
	logger *slog.Logger
}

// NewEventHandler creates an EventHandler reading stream from bus.
func NewEventHandler(bus domain.SignalBus, stream string, logger *slog.Logger) *EventHandler {
	return &EventHandler{bus: bus, stream: stream, logger: logger.With(slog.String("handler", "events"))}
}

type eventPage struct {
	Events []json.RawMessage `json:"events"`
	LastID string            `json:"last_id"`
}

// ListEvents returns events after the given stream id.
// GET /api/events?after=0&count=100
func (h *EventHandler) ListEvents(w http.ResponseWriter, r *http.Request) {
	after := r.URL.Query().Get("after")
	if after == "" {
		after = "0"
	}
	msgs, err := h.bus.StreamRead(r.Context(), h.stream, after, queryInt(r, "count", 100, maxLimit))
	if err != nil {
		h.logger.ErrorContext(r.Context(), "read events failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to read events")
		return
	}
	page := eventPage{Events: make([]json.RawMessage, 0, len(msgs)), LastID: after}
	for _, m := range msgs {
		if json.Valid(m.Payload) {
			page.Events = append(page.Events, json.RawMessage(m.Payload))
		}
		page.LastID = m.ID
	}
	writeJSON(w, http.StatusOK, page)
}
