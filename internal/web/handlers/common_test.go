package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/kozaktomas/attendance-tracker/internal/attendance"
	"github.com/kozaktomas/attendance-tracker/internal/database"
	"github.com/kozaktomas/attendance-tracker/internal/roster"
	"github.com/kozaktomas/attendance-tracker/internal/session"
)

func TestRespondJSON(t *testing.T) {
	recorder := httptest.NewRecorder()
	respondJSON(recorder, http.StatusOK, session.Decision{Allowed: true, Err: errors.New("ignored")})

	assertStatusCode(t, recorder, http.StatusOK)
	if ct := recorder.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", ct)
	}
	var got map[string]any
	if err := json.Unmarshal(recorder.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got["allowed"] != true || len(got) != 1 {
		t.Errorf("body = %v, want only allowed=true", got)
	}

	recorder = httptest.NewRecorder()
	respondJSON(recorder, http.StatusNoContent, nil)
	if recorder.Code != http.StatusNoContent || recorder.Body.Len() != 0 {
		t.Errorf("nil payload wrote %d %q", recorder.Code, recorder.Body.String())
	}
}

func TestRespondServiceError_PassesDomainErrors(t *testing.T) {
	recorder := httptest.NewRecorder()
	err := fmt.Errorf("commit: %w", session.ErrInvalidTransition)
	respondServiceError(recorder, nil, "failed to commit", err)

	assertStatusCode(t, recorder, http.StatusConflict)
	assertJSONError(t, recorder, err.Error())
}

func TestStatusForError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"session missing", fmt.Errorf("load: %w", session.ErrNotFound), http.StatusNotFound},
		{"record missing", attendance.ErrNotFound, http.StatusNotFound},
		{"student missing", database.ErrStudentNotFound, http.StatusNotFound},
		{"bad transition", session.ErrInvalidTransition, http.StatusConflict},
		{"bad status", attendance.ErrInvalidStatus, http.StatusBadRequest},
		{"too many images", roster.ErrTooManyImages, http.StatusBadRequest},
		{"anything else", errors.New("connection refused"), http.StatusInternalServerError},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := statusForError(tc.err); got != tc.want {
				t.Errorf("got %d, want %d", got, tc.want)
			}
		})
	}
}

func TestRespondServiceError_HidesInternalErrors(t *testing.T) {
	recorder := httptest.NewRecorder()
	respondServiceError(recorder, nil, "failed to list sessions", errors.New("pq: password authentication failed"))

	assertStatusCode(t, recorder, http.StatusInternalServerError)
	assertJSONError(t, recorder, "failed to list sessions")
}

func TestDecodeJSON_RejectsUnknownFields(t *testing.T) {
	req := httptest.NewRequest("POST", "/", strings.NewReader(`{"accept": true, "force": true}`))
	var body ResolveRequest
	if err := decodeJSON(req, &body); err == nil {
		t.Error("expected error for unknown field")
	}
}

func TestReadMultipartImages(t *testing.T) {
	req := multipartRequest(t, "/api/v1/recognize", "face", []byte("a"), []byte("bb"))
	images, err := readMultipartImages(req, "face", 1<<20)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(images) != 2 || string(images[1]) != "bb" {
		t.Errorf("got %q", images)
	}

	req = multipartRequest(t, "/api/v1/recognize", "other", []byte("a"))
	if _, err := readMultipartImages(req, "face", 1<<20); err == nil {
		t.Error("expected error when the field is missing")
	}
}
