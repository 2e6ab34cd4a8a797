package api

import (
	"encoding/json"
	"net/http"

	"github.com/crmkit/webhook-notifier/internal/bus"
	"github.com/crmkit/webhook-notifier/internal/domain"
)

// EventHandler exposes an operator-facing emit hook. In-process domain code
// calls bus.Emit directly; this endpoint exists for tooling and manual tests.
type EventHandler struct {
	bus *bus.Bus
}

func NewEventHandler(b *bus.Bus) *EventHandler {
	return &EventHandler{bus: b}
}

type emitEventRequest struct {
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
}

func (h *EventHandler) Emit(w http.ResponseWriter, r *http.Request) {
	var req emitEventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if !domain.ValidEventName(domain.EventName(req.Event)) {
		respondError(w, http.StatusBadRequest, "unknown event name")
		return
	}
	if len(req.Payload) == 0 || !json.Valid(req.Payload) {
		respondError(w, http.StatusBadRequest, "payload must be valid JSON")
		return
	}

	h.bus.Emit(r.Context(), domain.EventName(req.Event), req.Payload)

	// Delivery is asynchronous; accepted is all we can promise.
	respondJSON(w, http.StatusAccepted, map[string]string{"event": req.Event, "status": "accepted"})
}
