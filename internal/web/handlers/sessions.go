package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/kozaktomas/attendance-tracker/internal/app"
	"github.com/kozaktomas/attendance-tracker/internal/attendance"
	"github.com/kozaktomas/attendance-tracker/internal/session"
)

const dateLayout = "2006-01-02"

// SessionsHandler handles session scheduling and manual transitions.
type SessionsHandler struct {
	app *app.App
}

func NewSessionsHandler(a *app.App) *SessionsHandler {
	return &SessionsHandler{app: a}
}

// CreateSessionRequest is the body of POST /sessions.
type CreateSessionRequest struct {
	ID                   string    `json:"id"`
	CourseID             string    `json:"course_id"`
	CourseName           string    `json:"course_name"`
	Start                time.Time `json:"start"`
	End                  time.Time `json:"end"`
	Location             string    `json:"location"`
	LateThresholdMinutes int       `json:"late_threshold_minutes"`
	AutoStart            bool      `json:"auto_start"`
	AutoStop             bool      `json:"auto_stop"`
}

func (req CreateSessionRequest) validate() error {
	switch {
	case req.CourseID == "":
		return errors.New("course_id is required")
	case req.Start.IsZero() || req.End.IsZero():
		return errors.New("start and end are required")
	case !req.End.After(req.Start):
		return errors.New("end must be after start")
	case req.LateThresholdMinutes < 0:
		return errors.New("late_threshold_minutes must not be negative")
	}
	return nil
}

func snapshots(sessions []*session.Session) []session.Snapshot {
	out := make([]session.Snapshot, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, s.Snapshot())
	}
	return out
}

// parseRange reads the from/to query dates in the scheduler's time zone.
// Without them it returns today and the following seven days.
func (h *SessionsHandler) parseRange(r *http.Request) (time.Time, time.Time, error) {
	loc := h.app.Config.Scheduler.Location()
	now := time.Now().In(loc)
	from := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, loc)
	to := from.AddDate(0, 0, 8)

	if v := r.URL.Query().Get("from"); v != "" {
		t, err := time.ParseInLocation(dateLayout, v, loc)
		if err != nil {
			return time.Time{}, time.Time{}, errors.New("invalid from date, expected YYYY-MM-DD")
		}
		from = t
	}
	if v := r.URL.Query().Get("to"); v != "" {
		t, err := time.ParseInLocation(dateLayout, v, loc)
		if err != nil {
			return time.Time{}, time.Time{}, errors.New("invalid to date, expected YYYY-MM-DD")
		}
		to = t.AddDate(0, 0, 1)
	}
	if !to.After(from) {
		return time.Time{}, time.Time{}, errors.New("to must not be before from")
	}
	return from, to, nil
}

// List returns sessions starting in the requested date range.
func (h *SessionsHandler) List(w http.ResponseWriter, r *http.Request) {
	from, to, err := h.parseRange(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	sessions, err := h.app.Stores.Sessions.ListSessions(r.Context(), from, to)
	if err != nil {
		respondServiceError(w, h.app.Log, "failed to list sessions", err)
		return
	}
	respondJSON(w, http.StatusOK, snapshots(sessions))
}

// Create schedules a new pending session.
func (h *SessionsHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateSessionRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}
	if err := req.validate(); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.ID == "" {
		req.ID = uuid.NewString()
	}

	s := session.New(session.Info{
		ID:                   req.ID,
		CourseID:             req.CourseID,
		CourseName:           req.CourseName,
		Start:                req.Start,
		End:                  req.End,
		Location:             req.Location,
		LateThresholdMinutes: req.LateThresholdMinutes,
		AutoStart:            req.AutoStart,
		AutoStop:             req.AutoStop,
	})
	if err := h.app.Stores.Sessions.CreateSession(r.Context(), s); err != nil {
		respondServiceError(w, h.app.Log, "failed to create session", err)
		return
	}
	h.app.Log.Info("session scheduled", "session", s.ID, "course", sanitizeForLog(s.CourseID), "start", s.Start)
	respondJSON(w, http.StatusCreated, s.Snapshot())
}

func (h *SessionsHandler) Get(w http.ResponseWriter, r *http.Request) {
	s, err := h.app.Stores.Sessions.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondServiceError(w, h.app.Log, "failed to get session", err)
		return
	}
	respondJSON(w, http.StatusOK, s.Snapshot())
}

func (h *SessionsHandler) transition(w http.ResponseWriter, r *http.Request, apply func(*http.Request, string) (*session.Session, error)) {
	s, err := apply(r, chi.URLParam(r, "id"))
	if err != nil {
		respondServiceError(w, h.app.Log, "failed to change session status", err)
		return
	}
	respondJSON(w, http.StatusOK, s.Snapshot())
}

// Open opens a pending session, bypassing the rule chain.
func (h *SessionsHandler) Open(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, func(r *http.Request, id string) (*session.Session, error) {
		return h.app.Lifecycle.Open(r.Context(), id)
	})
}

// Close closes a pending or open session.
func (h *SessionsHandler) Close(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, func(r *http.Request, id string) (*session.Session, error) {
		return h.app.Lifecycle.Close(r.Context(), id)
	})
}

// Reset returns an open or closed session to pending.
func (h *SessionsHandler) Reset(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, func(r *http.Request, id string) (*session.Session, error) {
		return h.app.Lifecycle.Reset(r.Context(), id)
	})
}

// Rules reports whether the rule chain would auto-open or auto-close the session now.
func (h *SessionsHandler) Rules(w http.ResponseWriter, r *http.Request) {
	report, err := h.app.Lifecycle.Evaluate(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondServiceError(w, h.app.Log, "failed to evaluate rules", err)
		return
	}
	respondJSON(w, http.StatusOK, report)
}

// Attendance lists the records of a session with their change flags.
func (h *SessionsHandler) Attendance(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := h.app.Stores.Sessions.Get(r.Context(), id); err != nil {
		respondServiceError(w, h.app.Log, "failed to get session", err)
		return
	}
	records, err := h.app.Coordinator.Records(r.Context(), id)
	if err != nil {
		respondServiceError(w, h.app.Log, "failed to list attendance", err)
		return
	}
	views := make([]attendance.View, 0, len(records))
	for _, rec := range records {
		views = append(views, rec.View())
	}
	respondJSON(w, http.StatusOK, views)
}
