package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/kozaktomas/attendance-tracker/internal/app"
	"github.com/kozaktomas/attendance-tracker/internal/config"
	"github.com/kozaktomas/attendance-tracker/internal/database"
	"github.com/kozaktomas/attendance-tracker/internal/database/mock"
	"github.com/kozaktomas/attendance-tracker/internal/facematch"
	"github.com/kozaktomas/attendance-tracker/internal/session"
)

// testEnv is an app wired to in-memory repositories.
type testEnv struct {
	app        *app.App
	students   *mock.MockStudentRepository
	sessions   *mock.MockSessionRepository
	attendance *mock.MockAttendanceRepository
}

var lectureStart = time.Now().Add(-10 * time.Minute).Truncate(time.Second)

// grayPNG encodes a solid gray square.
func grayPNG(t *testing.T, level uint8) []byte {
	t.Helper()
	img := image.NewGray(image.Rect(0, 0, 32, 32))
	for y := range 32 {
		for x := range 32 {
			img.SetGray(x, y, color.Gray{Y: level})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

// newTestEnv creates two enrolled CS101 students and a pending lecture "lec1".
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	cfg := config.Load()
	cfg.Recognition.Mode = facematch.ModeHistogram

	env := &testEnv{
		students:   mock.NewMockStudentRepository(),
		sessions:   mock.NewMockSessionRepository(),
		attendance: mock.NewMockAttendanceRepository(),
	}
	env.students.AddStudent(database.StoredStudent{ID: "s1", Name: "Jana Nováková", Course: "CS101"}, grayPNG(t, 40))
	env.students.AddStudent(database.StoredStudent{ID: "s2", Name: "Petr Svoboda", Course: "CS101"}, grayPNG(t, 220))
	env.sessions.AddSession(session.New(session.Info{
		ID:                   "lec1",
		CourseID:             "CS101",
		CourseName:           "Algorithms",
		Start:                lectureStart,
		End:                  lectureStart.Add(90 * time.Minute),
		LateThresholdMinutes: 15,
	}))

	a, err := app.New(context.Background(), cfg, app.Stores{
		Students:   env.students,
		Sessions:   env.sessions,
		Attendance: env.attendance,
	}, nil, nil)
	if err != nil {
		t.Fatalf("app.New: %v", err)
	}
	env.app = a
	return env
}

// openLecture trains the roster and opens lec1, which seeds pending records.
func (e *testEnv) openLecture(t *testing.T) {
	t.Helper()
	ctx := context.Background()
	if _, err := e.app.Trainer.Train(ctx, nil); err != nil {
		t.Fatalf("train: %v", err)
	}
	if _, err := e.app.Lifecycle.Open(ctx, "lec1"); err != nil {
		t.Fatalf("open: %v", err)
	}
}

// requestWithChiParams creates a request with chi URL parameters
func requestWithChiParams(r *http.Request, params map[string]string) *http.Request {
	rctx := chi.NewRouteContext()
	for key, value := range params {
		rctx.URLParams.Add(key, value)
	}
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

// jsonRequest creates a request with a JSON body and chi URL parameters.
func jsonRequest(method, path, body string, params map[string]string) *http.Request {
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	req.Header.Set("Content-Type", "application/json")
	return requestWithChiParams(req, params)
}

// multipartRequest uploads files under field.
func multipartRequest(t *testing.T, path, field string, files ...[]byte) *http.Request {
	t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	for i, data := range files {
		part, err := writer.CreateFormFile(field, "face"+string(rune('a'+i))+".png")
		if err != nil {
			t.Fatalf("failed to create form file: %v", err)
		}
		part.Write(data)
	}
	writer.Close()

	req := httptest.NewRequest("POST", path, body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return req
}

// parseJSONResponse parses a JSON response body into the target type
func parseJSONResponse(t *testing.T, recorder *httptest.ResponseRecorder, target any) {
	t.Helper()
	if err := json.Unmarshal(recorder.Body.Bytes(), target); err != nil {
		t.Fatalf("failed to parse JSON response: %v\nBody: %s", err, recorder.Body.String())
	}
}

// assertStatusCode checks if the response has the expected status code
func assertStatusCode(t *testing.T, recorder *httptest.ResponseRecorder, expected int) {
	t.Helper()
	if recorder.Code != expected {
		t.Errorf("expected status %d, got %d\nBody: %s", expected, recorder.Code, recorder.Body.String())
	}
}

// assertContentType checks if the response has the expected content type
func assertContentType(t *testing.T, recorder *httptest.ResponseRecorder, expected string) {
	t.Helper()
	ct := recorder.Header().Get("Content-Type")
	if ct != expected {
		t.Errorf("expected Content-Type '%s', got '%s'", expected, ct)
	}
}

// assertJSONError checks if the response is a JSON error with the expected message
func assertJSONError(t *testing.T, recorder *httptest.ResponseRecorder, expectedMessage string) {
	t.Helper()
	var result map[string]string
	if err := json.Unmarshal(recorder.Body.Bytes(), &result); err != nil {
		t.Fatalf("failed to parse error response: %v\nBody: %s", err, recorder.Body.String())
	}
	if result["error"] != expectedMessage {
		t.Errorf("expected error '%s', got '%s'", expectedMessage, result["error"])
	}
}
