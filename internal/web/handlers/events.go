package handlers

import (
	"net/http"

	"github.com/kozaktomas/attendance-tracker/internal/app"
)

// EventsHandler streams coordinator outcomes to the operator dashboard.
type EventsHandler struct {
	app *app.App
}

func NewEventsHandler(a *app.App) *EventsHandler {
	return &EventsHandler{app: a}
}

// Stream sends every coordinator event until the client disconnects.
func (h *EventsHandler) Stream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := startSSE(w)
	if !ok {
		return
	}

	events := h.app.Coordinator.Events()
	ch := events.AddListener()
	defer events.RemoveListener(ch)

	sendSSEEvent(w, flusher, "confirmations", h.app.Coordinator.Confirmations().List())
	for {
		select {
		case <-r.Context().Done():
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}
			sendSSEEvent(w, flusher, ev.Type, ev.Data)
		}
	}
}
