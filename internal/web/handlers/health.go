package handlers

import (
	"net/http"
	"time"

	"github.com/kozaktomas/attendance-tracker/internal/app"
	"github.com/kozaktomas/attendance-tracker/internal/worker"
)

// HealthResponse reports liveness plus a few runtime counters.
type HealthResponse struct {
	Status     string       `json:"status"`
	Recognizer string       `json:"recognizer"`
	Threshold  float64      `json:"threshold"`
	Students   int          `json:"students"`
	LastTick   *time.Time   `json:"last_tick,omitempty"`
	Worker     worker.Stats `json:"worker"`
}

// HealthHandler handles the health check endpoint.
type HealthHandler struct {
	app *app.App
}

func NewHealthHandler(a *app.App) *HealthHandler {
	return &HealthHandler{app: a}
}

func (h *HealthHandler) Get(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{
		Status:     "ok",
		Recognizer: string(h.app.Recognizer.Kind()),
		Threshold:  h.app.Recognizer.ConfidenceThreshold(),
		Students:   h.app.Roster.Len(),
		Worker:     h.app.Worker.Stats(),
	}
	if t := h.app.Lifecycle.LastTick(); !t.IsZero() {
		resp.LastTick = &t
	}
	respondJSON(w, http.StatusOK, resp)
}
