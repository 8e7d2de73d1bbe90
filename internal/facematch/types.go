package facematch

import (
	"errors"

	"github.com/kozaktomas/attendance-tracker/internal/constants"
)

var (
	// ErrThresholdOutOfRange is returned when a confidence threshold is outside [0,100].
	ErrThresholdOutOfRange = errors.New("confidence threshold out of range [0,100]")
	// ErrEmptyImage is returned for empty or zero-sized images.
	ErrEmptyImage = errors.New("empty image")
	// ErrBackendNotLoaded is returned when the embedding backend has no model loaded.
	ErrBackendNotLoaded = errors.New("embedding backend not loaded")
	// ErrDimensionMismatch is returned when a backend produces a vector of unexpected length.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
	// ErrUnknownMode is returned for an unknown recognizer mode.
	ErrUnknownMode = errors.New("unknown recognizer mode")
)

// Kind identifies a recognizer variant.
type Kind string

const (
	KindHistogram Kind = "histogram"
	KindEmbedding Kind = "embedding"
)

// RecognitionResult is the outcome of matching one face crop against the roster.
// Student is the best candidate and may be set even when Match is false.
type RecognitionResult struct {
	Student    *Student `json:"-"`
	Confidence float64  `json:"confidence"`
	Match      bool     `json:"match"`
}

// NoMatch is the result returned for every failure condition.
func NoMatch() RecognitionResult {
	return RecognitionResult{}
}

// RequiresConfirmation reports whether the confidence falls in the band that
// needs a human decision, regardless of the match flag.
func (r RecognitionResult) RequiresConfirmation() bool {
	return r.Confidence >= constants.ConfirmationMinConfidence &&
		r.Confidence < constants.ConfirmationMaxConfidence
}

// StudentID returns the candidate's id or "" when there is none.
func (r RecognitionResult) StudentID() string {
	if r.Student == nil {
		return ""
	}
	return r.Student.ID
}

// StudentTraining holds the training outcome of one student.
type StudentTraining struct {
	StudentID string `json:"student_id"`
	Succeeded int    `json:"succeeded"` // images that contributed to the representation
	Failed    int    `json:"failed"`    // images that failed preprocessing or embedding
	Skipped   bool   `json:"skipped"`   // no enrollment images
	Stale     bool   `json:"stale"`     // images changed while training, result discarded
}

// TrainingReport summarizes a Train call.
type TrainingReport struct {
	Kind     Kind              `json:"kind"`
	Students []StudentTraining `json:"students"`
	Err      string            `json:"error,omitempty"` // set when the whole run could not start
}

// Trained returns the number of students with at least one usable image.
func (r TrainingReport) Trained() int {
	n := 0
	for _, s := range r.Students {
		if s.Succeeded > 0 && !s.Stale {
			n++
		}
	}
	return n
}

// Skipped returns the number of students without enrollment images.
func (r TrainingReport) Skipped() int {
	n := 0
	for _, s := range r.Students {
		if s.Skipped {
			n++
		}
	}
	return n
}

// FailedImages returns the total number of images that could not be used.
func (r TrainingReport) FailedImages() int {
	n := 0
	for _, s := range r.Students {
		n += s.Failed
	}
	return n
}
