package facematch

import (
	"context"
	"fmt"
	"image"

	"github.com/kozaktomas/attendance-tracker/internal/logger"
)

// Recognizer trains face representations and matches face crops against them.
// Variants share a *Settings and differ only in the representation they use.
type Recognizer interface {
	// Kind names the variant.
	Kind() Kind
	// Train derives the variant's representation for every student with images.
	// Students without images are skipped; per-image failures are counted, not returned.
	Train(ctx context.Context, students []*Student) TrainingReport
	// Recognize scores face against students. Every failure yields NoMatch.
	Recognize(ctx context.Context, face []byte, students []*Student) RecognitionResult
	// ConfidenceThreshold returns the current match threshold.
	ConfidenceThreshold() float64
	// SetConfidenceThreshold updates the threshold, rejecting values outside [0,100].
	SetConfidenceThreshold(v float64) error
}

// EmbeddingBackend maps a fixed-size face image to a fixed-length vector.
type EmbeddingBackend interface {
	Load(ctx context.Context) error
	Unload()
	IsLoaded() bool
	Embed(ctx context.Context, img image.Image) ([]float32, error)
}

// Recognizer modes accepted by New.
const (
	ModeAuto      = "auto"
	ModeEmbedding = "embedding"
	ModeHistogram = "histogram"
)

// New selects a recognizer variant. In auto mode the embedding variant is used
// when the backend loads, otherwise the histogram variant. Forced embedding
// mode needs a backend; a load failure is logged and the variant stays
// disabled until the backend reports loaded.
func New(ctx context.Context, mode string, settings *Settings, backend EmbeddingBackend, log *logger.Logger) (Recognizer, error) {
	log = logger.OrNop(log)
	switch mode {
	case ModeHistogram:
		return NewHistogramRecognizer(settings, log), nil
	case ModeEmbedding:
		if backend == nil {
			return nil, fmt.Errorf("%w: no embedding backend configured", ErrBackendNotLoaded)
		}
		if !backend.IsLoaded() {
			if err := backend.Load(ctx); err != nil {
				log.Warn("embedding backend failed to load", "error", err)
			}
		}
		return NewEmbeddingRecognizer(settings, backend, log), nil
	case ModeAuto, "":
		if backend == nil {
			return NewHistogramRecognizer(settings, log), nil
		}
		if !backend.IsLoaded() {
			if err := backend.Load(ctx); err != nil {
				log.Warn("embedding backend unavailable, running histogram-only", "error", err)
				return NewHistogramRecognizer(settings, log), nil
			}
		}
		return NewEmbeddingRecognizer(settings, backend, log), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownMode, mode)
	}
}
