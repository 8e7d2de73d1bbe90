package facematch

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kozaktomas/attendance-tracker/internal/logger"
)

// EmbeddingRecognizer matches faces by cosine similarity of backend embeddings.
type EmbeddingRecognizer struct {
	settings *Settings
	backend  EmbeddingBackend
	log      *logger.Logger
	now      func() time.Time

	unloadedOnce sync.Once
}

func NewEmbeddingRecognizer(settings *Settings, backend EmbeddingBackend, log *logger.Logger) *EmbeddingRecognizer {
	return &EmbeddingRecognizer{
		settings: settings,
		backend:  backend,
		log:      logger.OrNop(log).With("recognizer", KindEmbedding),
		now:      time.Now,
	}
}

func (r *EmbeddingRecognizer) Kind() Kind { return KindEmbedding }

func (r *EmbeddingRecognizer) ConfidenceThreshold() float64 { return r.settings.Threshold() }

func (r *EmbeddingRecognizer) SetConfidenceThreshold(v float64) error {
	return r.settings.SetThreshold(v)
}

func (r *EmbeddingRecognizer) ready() bool {
	if r.backend != nil && r.backend.IsLoaded() {
		return true
	}
	r.unloadedOnce.Do(func() {
		r.log.Warn("embedding backend not loaded, embedding recognition disabled")
	})
	return false
}

// embed preprocesses one face crop and returns its normalized embedding.
func (r *EmbeddingRecognizer) embed(ctx context.Context, data []byte) ([]float32, error) {
	img, err := DecodeImage(data)
	if err != nil {
		return nil, err
	}
	vec, err := r.backend.Embed(ctx, PrepareInput(img, r.settings.InputSize()))
	if err != nil {
		return nil, fmt.Errorf("failed to embed face: %w", err)
	}
	if len(vec) != r.settings.Dim() {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(vec), r.settings.Dim())
	}
	return L2Normalize(vec), nil
}

func (r *EmbeddingRecognizer) Train(ctx context.Context, students []*Student) TrainingReport {
	report := TrainingReport{Kind: KindEmbedding}
	if !r.ready() {
		report.Err = ErrBackendNotLoaded.Error()
		return report
	}
	for _, s := range students {
		if ctx.Err() != nil {
			report.Err = ctx.Err().Error()
			break
		}
		report.Students = append(report.Students, r.trainStudent(ctx, s))
	}
	r.log.Debug("embedding training finished",
		"students", len(students),
		"trained", report.Trained(),
		"skipped", report.Skipped(),
		"failed_images", report.FailedImages())
	return report
}

func (r *EmbeddingRecognizer) trainStudent(ctx context.Context, s *Student) StudentTraining {
	st := StudentTraining{StudentID: s.ID}
	base := s.Representation()
	if base == nil || base.ImageCount() == 0 {
		st.Skipped = true
		return st
	}

	images := base.Images()
	vectors := make([][]float32, len(images))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.settings.workers)
	for i, data := range images {
		g.Go(func() error {
			vec, err := r.embed(gctx, data)
			if err != nil {
				r.log.Debug("skipping enrollment image", "student", s.ID, "image", i, "error", err)
				return nil
			}
			vectors[i] = vec
			return nil
		})
	}
	_ = g.Wait()

	var ok [][]float32
	for _, v := range vectors {
		if v != nil {
			ok = append(ok, v)
		}
	}
	st.Succeeded = len(ok)
	st.Failed = len(images) - len(ok)

	emb := AverageEmbeddings(ok)
	at := r.now()
	if !s.attach(base, func(cur *FaceRepresentation) *FaceRepresentation { return cur.withEmbedding(emb, at) }) {
		st.Stale = true
		r.log.Warn("enrollment images changed during training, discarding embedding", "student", s.ID)
	}
	return st
}

func (r *EmbeddingRecognizer) Recognize(ctx context.Context, face []byte, students []*Student) RecognitionResult {
	if len(face) == 0 || len(students) == 0 || !r.ready() {
		return NoMatch()
	}
	probe, err := r.embed(ctx, face)
	if err != nil {
		r.log.Debug("cannot embed face crop", "error", err)
		return NoMatch()
	}

	mapping := r.settings.Mapping()
	var best *Student
	bestSim := -2.0
	for _, s := range students {
		rep := s.Representation()
		if rep == nil || len(rep.Embedding()) != len(probe) {
			continue
		}
		sim := CosineSimilarity(probe, rep.Embedding())
		if mapping.Excluded(sim) {
			continue
		}
		if sim > bestSim {
			best, bestSim = s, sim
		}
	}
	if best == nil {
		return NoMatch()
	}
	confidence := mapping.Confidence(bestSim)
	return RecognitionResult{
		Student:    best,
		Confidence: confidence,
		Match:      confidence >= r.settings.Threshold(),
	}
}
