package facematch

import (
	"context"
	"time"

	"github.com/kozaktomas/attendance-tracker/internal/logger"
)

// HistogramRecognizer matches faces by correlating intensity histograms.
type HistogramRecognizer struct {
	settings *Settings
	log      *logger.Logger
	now      func() time.Time
}

func NewHistogramRecognizer(settings *Settings, log *logger.Logger) *HistogramRecognizer {
	return &HistogramRecognizer{
		settings: settings,
		log:      logger.OrNop(log).With("recognizer", KindHistogram),
		now:      time.Now,
	}
}

func (r *HistogramRecognizer) Kind() Kind { return KindHistogram }

func (r *HistogramRecognizer) ConfidenceThreshold() float64 { return r.settings.Threshold() }

func (r *HistogramRecognizer) SetConfidenceThreshold(v float64) error {
	return r.settings.SetThreshold(v)
}

func (r *HistogramRecognizer) Train(ctx context.Context, students []*Student) TrainingReport {
	report := TrainingReport{Kind: KindHistogram}
	for _, s := range students {
		if ctx.Err() != nil {
			report.Err = ctx.Err().Error()
			break
		}
		report.Students = append(report.Students, r.trainStudent(s))
	}
	r.log.Debug("histogram training finished",
		"students", len(students),
		"trained", report.Trained(),
		"skipped", report.Skipped(),
		"failed_images", report.FailedImages())
	return report
}

func (r *HistogramRecognizer) trainStudent(s *Student) StudentTraining {
	st := StudentTraining{StudentID: s.ID}
	base := s.Representation()
	if base == nil || base.ImageCount() == 0 {
		st.Skipped = true
		return st
	}

	var hists [][]float32
	for i, data := range base.Images() {
		img, err := DecodeImage(data)
		if err != nil {
			st.Failed++
			r.log.Debug("skipping enrollment image", "student", s.ID, "image", i, "error", err)
			continue
		}
		hists = append(hists, ComputeHistogram(img))
	}
	st.Succeeded = len(hists)

	hist := AverageHistograms(hists)
	at := r.now()
	if !s.attach(base, func(cur *FaceRepresentation) *FaceRepresentation { return cur.withHistogram(hist, at) }) {
		st.Stale = true
		r.log.Warn("enrollment images changed during training, discarding histogram", "student", s.ID)
	}
	return st
}

func (r *HistogramRecognizer) Recognize(ctx context.Context, face []byte, students []*Student) RecognitionResult {
	if len(face) == 0 || len(students) == 0 || ctx.Err() != nil {
		return NoMatch()
	}
	img, err := DecodeImage(face)
	if err != nil {
		r.log.Debug("cannot decode face crop", "error", err)
		return NoMatch()
	}
	probe := ComputeHistogram(img)

	var best *Student
	bestScore := -1.0
	for _, s := range students {
		rep := s.Representation()
		if rep == nil || rep.Histogram() == nil {
			continue
		}
		score := HistogramConfidence(Correlation(probe, rep.Histogram()))
		if score > bestScore {
			best, bestScore = s, score
		}
	}
	if best == nil {
		return NoMatch()
	}
	return RecognitionResult{
		Student:    best,
		Confidence: bestScore,
		Match:      bestScore >= r.settings.Threshold(),
	}
}
