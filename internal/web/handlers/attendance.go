package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/kozaktomas/attendance-tracker/internal/app"
	"github.com/kozaktomas/attendance-tracker/internal/attendance"
)

// AttendanceHandler handles manual record edits and operator confirmations.
type AttendanceHandler struct {
	app *app.App
}

func NewAttendanceHandler(a *app.App) *AttendanceHandler {
	return &AttendanceHandler{app: a}
}

// EditRequest is the body of PATCH /attendance/{id}. Omitted fields are kept.
type EditRequest struct {
	Status *string `json:"status"`
	Note   *string `json:"note"`
}

// Edit changes status and/or note without committing the change.
func (h *AttendanceHandler) Edit(w http.ResponseWriter, r *http.Request) {
	var req EditRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}
	if req.Status == nil && req.Note == nil {
		respondError(w, http.StatusBadRequest, "status or note is required")
		return
	}

	var status *attendance.Status
	if req.Status != nil {
		st, err := attendance.ParseStatus(*req.Status)
		if err != nil {
			respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		status = &st
	}

	rec, err := h.app.Coordinator.Edit(r.Context(), chi.URLParam(r, "id"), status, req.Note)
	if err != nil {
		respondServiceError(w, h.app.Log, "failed to edit attendance", err)
		return
	}
	respondJSON(w, http.StatusOK, rec.View())
}

// Commit makes the record's current values its baseline.
func (h *AttendanceHandler) Commit(w http.ResponseWriter, r *http.Request) {
	rec, err := h.app.Coordinator.Commit(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondServiceError(w, h.app.Log, "failed to commit attendance", err)
		return
	}
	respondJSON(w, http.StatusOK, rec.View())
}

// ListConfirmations returns recognitions waiting for an operator decision.
func (h *AttendanceHandler) ListConfirmations(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.app.Coordinator.Confirmations().List())
}

// ResolveRequest is the body of POST /confirmations/{id}.
type ResolveRequest struct {
	Accept *bool `json:"accept"`
}

// ResolveConfirmation accepts or rejects a queued recognition.
func (h *AttendanceHandler) ResolveConfirmation(w http.ResponseWriter, r *http.Request) {
	var req ResolveRequest
	if err := decodeJSON(r, &req); err != nil || req.Accept == nil {
		respondError(w, http.StatusBadRequest, "accept is required")
		return
	}
	out, err := h.app.Coordinator.Resolve(r.Context(), chi.URLParam(r, "id"), *req.Accept)
	if err != nil {
		respondServiceError(w, h.app.Log, "failed to resolve confirmation", err)
		return
	}
	respondJSON(w, http.StatusOK, out)
}
