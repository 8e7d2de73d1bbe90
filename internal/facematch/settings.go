package facematch

import (
	"fmt"
	"math"
	"sync"

	"github.com/kozaktomas/attendance-tracker/internal/constants"
	"github.com/kozaktomas/attendance-tracker/internal/logger"
)

// Options configures the recognizers built from one Settings value.
type Options struct {
	Threshold float64           // initial confidence threshold, 0..100
	Mapping   SimilarityMapping // cosine similarity to confidence mapping
	Dim       int               // expected embedding length
	InputSize int               // square edge of embedding input images
	Workers   int               // parallel embedding calls while training
}

// DefaultOptions returns options built from the package defaults.
func DefaultOptions() Options {
	return Options{
		Threshold: constants.DefaultConfidenceThreshold,
		Mapping:   DefaultSimilarityMapping(),
		Dim:       constants.EmbeddingDim,
		InputSize: constants.DefaultEmbeddingInputSize,
		Workers:   constants.WorkerPoolSize,
	}
}

// Settings is the configuration shared by every recognizer variant.
// The threshold may change at runtime; everything else is fixed at construction.
type Settings struct {
	mu        sync.RWMutex
	threshold float64

	mapping   SimilarityMapping
	dim       int
	inputSize int
	workers   int
	log       *logger.Logger
}

// NewSettings validates opts. An out-of-range threshold falls back to the default.
func NewSettings(opts Options, log *logger.Logger) *Settings {
	log = logger.OrNop(log)
	def := DefaultOptions()
	if opts.Dim <= 0 {
		opts.Dim = def.Dim
	}
	if opts.InputSize <= 0 {
		opts.InputSize = def.InputSize
	}
	if opts.Workers <= 0 {
		opts.Workers = def.Workers
	}
	if opts.Mapping == (SimilarityMapping{}) {
		opts.Mapping = def.Mapping
	}
	s := &Settings{
		threshold: def.Threshold,
		mapping:   opts.Mapping,
		dim:       opts.Dim,
		inputSize: opts.InputSize,
		workers:   opts.Workers,
		log:       log,
	}
	if err := s.SetThreshold(opts.Threshold); err != nil {
		log.Warn("using default confidence threshold", "threshold", def.Threshold)
	}
	return s
}

// Threshold returns the current confidence threshold.
func (s *Settings) Threshold() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.threshold
}

// SetThreshold updates the threshold. Values outside [0,100] are rejected and
// logged; the previous value stays in effect.
func (s *Settings) SetThreshold(v float64) error {
	if math.IsNaN(v) || v < 0 || v > 100 {
		s.log.Warn("rejected confidence threshold", "value", v, "current", s.Threshold())
		return fmt.Errorf("%w: %v", ErrThresholdOutOfRange, v)
	}
	s.mu.Lock()
	s.threshold = v
	s.mu.Unlock()
	s.log.Info("confidence threshold updated", "threshold", v)
	return nil
}

func (s *Settings) Mapping() SimilarityMapping {
	return s.mapping
}

func (s *Settings) Dim() int {
	return s.dim
}

func (s *Settings) InputSize() int {
	return s.inputSize
}
