// Package handlers provides HTTP handlers for the web API.
package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/kozaktomas/attendance-tracker/internal/attendance"
	"github.com/kozaktomas/attendance-tracker/internal/database"
	"github.com/kozaktomas/attendance-tracker/internal/logger"
	"github.com/kozaktomas/attendance-tracker/internal/roster"
	"github.com/kozaktomas/attendance-tracker/internal/session"
)

// errInvalidRequestBody is a shared error message for invalid JSON request bodies.
const errInvalidRequestBody = "invalid request body"

// sanitizeForLog removes newlines and carriage returns to prevent log injection.
func sanitizeForLog(s string) string {
	return strings.NewReplacer("\n", "", "\r", "").Replace(s)
}

// respondJSON sends a JSON response.
func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// respondError sends an error response.
func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// statusForError maps domain errors onto HTTP status codes.
func statusForError(err error) int {
	switch {
	case errors.Is(err, session.ErrNotFound),
		errors.Is(err, attendance.ErrNotFound),
		errors.Is(err, database.ErrStudentNotFound):
		return http.StatusNotFound
	case errors.Is(err, session.ErrInvalidTransition):
		return http.StatusConflict
	case errors.Is(err, attendance.ErrInvalidStatus),
		errors.Is(err, roster.ErrTooManyImages):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// respondServiceError writes err with the status it maps to. Internal errors
// are logged and hidden from the client.
func respondServiceError(w http.ResponseWriter, log *logger.Logger, msg string, err error) {
	status := statusForError(err)
	if status == http.StatusInternalServerError {
		logger.OrNop(log).Error(msg, "error", err)
		respondError(w, status, msg)
		return
	}
	respondError(w, status, err.Error())
}

// readMultipartImages returns the contents of every file uploaded under field.
func readMultipartImages(r *http.Request, field string, maxSize int64) ([][]byte, error) {
	if err := r.ParseMultipartForm(maxSize); err != nil {
		return nil, errors.New("failed to parse multipart form")
	}
	files := r.MultipartForm.File[field]
	if len(files) == 0 {
		return nil, fmt.Errorf("no %s provided", field)
	}

	images := make([][]byte, 0, len(files))
	for _, fh := range files {
		data, err := func() ([]byte, error) {
			f, err := fh.Open()
			if err != nil {
				return nil, fmt.Errorf("failed to open file: %s", sanitizeForLog(fh.Filename))
			}
			defer f.Close()
			return io.ReadAll(f)
		}()
		if err != nil {
			return nil, err
		}
		images = append(images, data)
	}
	return images, nil
}

// decodeJSON decodes a size-limited JSON request body into v.
func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, 1<<20))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}
