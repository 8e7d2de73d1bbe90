package handlers

import (
	"net/http"
	"time"

	"github.com/kozaktomas/attendance-tracker/internal/app"
	"github.com/kozaktomas/attendance-tracker/internal/constants"
)

// RecognizeHandler matches uploaded face crops against the roster.
type RecognizeHandler struct {
	app *app.App
}

func NewRecognizeHandler(a *app.App) *RecognizeHandler {
	return &RecognizeHandler{app: a}
}

// RecognizeResponse is a recognition result with the candidate flattened out.
type RecognizeResponse struct {
	StudentID            string  `json:"student_id,omitempty"`
	StudentName          string  `json:"student_name,omitempty"`
	Confidence           float64 `json:"confidence"`
	Match                bool    `json:"match"`
	RequiresConfirmation bool    `json:"requires_confirmation"`
}

// FrameResponse acknowledges a frame handed to the recognition worker.
type FrameResponse struct {
	Seq     uint64 `json:"seq"`
	Dropped uint64 `json:"dropped"`
}

func firstImage(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	images, err := readMultipartImages(r, "face", constants.MaxUploadSize)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return nil, false
	}
	return images[0], true
}

// Recognize scores one face crop synchronously. It does not touch attendance.
func (h *RecognizeHandler) Recognize(w http.ResponseWriter, r *http.Request) {
	face, ok := firstImage(w, r)
	if !ok {
		return
	}
	res := h.app.Recognizer.Recognize(r.Context(), face, h.app.Roster.Snapshot())
	resp := RecognizeResponse{
		StudentID:            res.StudentID(),
		Confidence:           res.Confidence,
		Match:                res.Match,
		RequiresConfirmation: res.RequiresConfirmation(),
	}
	if res.Student != nil {
		resp.StudentName = res.Student.Name
	}
	respondJSON(w, http.StatusOK, resp)
}

// Frame hands a face crop to the recognition worker. A frame still waiting
// in the mailbox is replaced.
func (h *RecognizeHandler) Frame(w http.ResponseWriter, r *http.Request) {
	face, ok := firstImage(w, r)
	if !ok {
		return
	}
	seq := h.app.Worker.Mailbox().Publish(face, time.Now())
	if seq == 0 {
		respondError(w, http.StatusServiceUnavailable, "recognition worker is not running")
		return
	}
	respondJSON(w, http.StatusAccepted, FrameResponse{Seq: seq, Dropped: h.app.Worker.Mailbox().Stats().Dropped})
}
