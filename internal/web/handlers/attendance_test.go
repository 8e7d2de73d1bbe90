package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/kozaktomas/attendance-tracker/internal/attendance"
	"github.com/kozaktomas/attendance-tracker/internal/facematch"
)

func seededRecord(t *testing.T, env *testEnv, studentID string) *attendance.Record {
	t.Helper()
	rec, err := env.attendance.Find(context.Background(), studentID, "lec1")
	if err != nil {
		t.Fatalf("find record of %s: %v", studentID, err)
	}
	return rec
}

func TestAttendanceHandler_EditAndCommit(t *testing.T) {
	env := newTestEnv(t)
	env.openLecture(t)
	h := NewAttendanceHandler(env.app)
	rec := seededRecord(t, env, "s2")
	params := map[string]string{"id": rec.ID}

	recorder := httptest.NewRecorder()
	h.Edit(recorder, jsonRequest("PATCH", "/api/v1/attendance/"+rec.ID, `{"status":"absent","note":"sick"}`, params))
	assertStatusCode(t, recorder, http.StatusOK)

	var view struct {
		Status        attendance.Status `json:"status"`
		Method        attendance.Method `json:"method"`
		Note          string            `json:"note"`
		StatusChanged bool              `json:"status_changed"`
		NoteChanged   bool              `json:"note_changed"`
	}
	parseJSONResponse(t, recorder, &view)
	if view.Status != attendance.StatusAbsent || view.Method != attendance.MethodManual || view.Note != "sick" {
		t.Errorf("unexpected record %+v", view)
	}
	if !view.StatusChanged || !view.NoteChanged {
		t.Errorf("edit should be pending commit, got %+v", view)
	}

	recorder = httptest.NewRecorder()
	h.Commit(recorder, jsonRequest("POST", "/api/v1/attendance/"+rec.ID+"/commit", "", params))
	assertStatusCode(t, recorder, http.StatusOK)
	parseJSONResponse(t, recorder, &view)
	if view.StatusChanged || view.NoteChanged {
		t.Errorf("commit should clear change flags, got %+v", view)
	}
}

func TestAttendanceHandler_EditErrors(t *testing.T) {
	env := newTestEnv(t)
	env.openLecture(t)
	h := NewAttendanceHandler(env.app)
	rec := seededRecord(t, env, "s1")

	tests := []struct {
		name       string
		id         string
		body       string
		wantStatus int
	}{
		{"unknown status", rec.ID, `{"status":"excused"}`, http.StatusBadRequest},
		{"empty edit", rec.ID, `{}`, http.StatusBadRequest},
		{"unknown record", "missing", `{"note":"x"}`, http.StatusNotFound},
		{"malformed", rec.ID, `[`, http.StatusBadRequest},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			recorder := httptest.NewRecorder()
			h.Edit(recorder, jsonRequest("PATCH", "/api/v1/attendance/"+tc.id, tc.body, map[string]string{"id": tc.id}))
			assertStatusCode(t, recorder, tc.wantStatus)
		})
	}
}

func TestAttendanceHandler_Confirmations(t *testing.T) {
	env := newTestEnv(t)
	env.openLecture(t)
	h := NewAttendanceHandler(env.app)

	student, _ := env.app.Roster.Get("s1")
	out, err := env.app.Coordinator.HandleResult(context.Background(),
		facematch.RecognitionResult{Student: student, Confidence: 61}, time.Now())
	if err != nil || out.Kind != attendance.OutcomeQueued {
		t.Fatalf("got %+v, %v, want queued", out, err)
	}

	recorder := httptest.NewRecorder()
	h.ListConfirmations(recorder, jsonRequest("GET", "/api/v1/confirmations", "", nil))
	assertStatusCode(t, recorder, http.StatusOK)
	var list []attendance.Confirmation
	parseJSONResponse(t, recorder, &list)
	if len(list) != 1 || list[0].StudentID != "s1" {
		t.Fatalf("got %+v, want one confirmation for s1", list)
	}
	params := map[string]string{"id": list[0].ID}

	recorder = httptest.NewRecorder()
	h.ResolveConfirmation(recorder, jsonRequest("POST", "/api/v1/confirmations/x", `{}`, params))
	assertStatusCode(t, recorder, http.StatusBadRequest)

	recorder = httptest.NewRecorder()
	h.ResolveConfirmation(recorder, jsonRequest("POST", "/api/v1/confirmations/x", `{"accept":true}`, params))
	assertStatusCode(t, recorder, http.StatusOK)
	var resolved attendance.Outcome
	parseJSONResponse(t, recorder, &resolved)
	if resolved.Kind != attendance.OutcomeMarked || resolved.Status != attendance.StatusPresent {
		t.Errorf("got %+v, want marked present", resolved)
	}

	recorder = httptest.NewRecorder()
	h.ResolveConfirmation(recorder, jsonRequest("POST", "/api/v1/confirmations/x", `{"accept":false}`, params))
	assertStatusCode(t, recorder, http.StatusNotFound)
}
