package roster

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kozaktomas/attendance-tracker/internal/constants"
	"github.com/kozaktomas/attendance-tracker/internal/database"
	"github.com/kozaktomas/attendance-tracker/internal/facematch"
	"github.com/kozaktomas/attendance-tracker/internal/logger"
)

// ErrTooManyImages is returned when an enrollment exceeds MaxEnrollmentImages.
var ErrTooManyImages = errors.New("too many enrollment images")

// TrainerOptions tune enrollment de-duplication and duplicate-student detection.
type TrainerOptions struct {
	DuplicateHashDistance    int
	DuplicateStudentDistance float64
	IndexPath                string
}

// Trainer enrolls students, trains the active recognizer and keeps storage
// and the student index in sync with the in-memory roster.
type Trainer struct {
	roster     *Roster
	store      database.StudentWriter
	recognizer facematch.Recognizer
	index      *database.StudentIndex
	opts       TrainerOptions
	log        *logger.Logger
}

// NewTrainer wires a trainer. index may be nil to disable nearest-student search.
func NewTrainer(roster *Roster, store database.StudentWriter, recognizer facematch.Recognizer, index *database.StudentIndex, opts TrainerOptions, log *logger.Logger) *Trainer {
	return &Trainer{
		roster:     roster,
		store:      store,
		recognizer: recognizer,
		index:      index,
		opts:       opts,
		log:        logger.OrNop(log).With("component", "trainer"),
	}
}

// Register stores a student's identity and adds it to the roster. An
// existing student keeps its images and trained representation.
func (t *Trainer) Register(ctx context.Context, st database.StoredStudent) (*facematch.Student, error) {
	if st.ID == "" || st.Name == "" {
		return nil, errors.New("student id and name are required")
	}
	if err := t.store.UpsertStudent(ctx, &st); err != nil {
		return nil, fmt.Errorf("store student %s: %w", st.ID, err)
	}

	s := facematch.NewStudent(st.ID, st.Name, st.Course)
	if old, ok := t.roster.Get(st.ID); ok {
		if rep := old.Representation(); rep != nil {
			s.SetRepresentation(rep)
			if t.index != nil && len(rep.Embedding()) > 0 {
				t.index.Upsert(s.ID, s.Name, rep.Embedding())
			}
		}
	}
	t.roster.Put(s)
	return s, nil
}

// Delete removes a student from storage, the roster and the index.
func (t *Trainer) Delete(ctx context.Context, studentID string) error {
	if err := t.store.DeleteStudent(ctx, studentID); err != nil {
		return err
	}
	t.roster.Remove(studentID)
	if t.index != nil {
		t.index.Remove(studentID)
	}
	t.log.Info("student deleted", "student", studentID)
	return nil
}

// EnrollResult reports what happened to an uploaded image set.
type EnrollResult struct {
	StudentID string `json:"student_id"`
	Stored    int    `json:"stored"`
	Dropped   int    `json:"dropped"`
}

// Enroll replaces the enrollment images of a stored student. Near-identical
// images are dropped first. The student must be retrained afterwards.
func (t *Trainer) Enroll(ctx context.Context, studentID string, images [][]byte) (EnrollResult, error) {
	if len(images) > constants.MaxEnrollmentImages {
		return EnrollResult{}, fmt.Errorf("%w: %d > %d", ErrTooManyImages, len(images), constants.MaxEnrollmentImages)
	}
	stored, err := t.store.GetStudent(ctx, studentID)
	if err != nil {
		return EnrollResult{}, err
	}

	kept, dropped := facematch.DedupeImages(images, t.opts.DuplicateHashDistance)
	if err := t.store.ReplaceImages(ctx, studentID, kept); err != nil {
		return EnrollResult{}, fmt.Errorf("store images: %w", err)
	}

	s, ok := t.roster.Get(studentID)
	if !ok {
		s = facematch.NewStudent(stored.ID, stored.Name, stored.Course)
		t.roster.Put(s)
	}
	s.Enroll(kept)
	if t.index != nil {
		t.index.Remove(studentID)
	}

	t.log.Info("student enrolled", "student", studentID, "images", len(kept), "dropped_duplicates", dropped)
	return EnrollResult{StudentID: studentID, Stored: len(kept), Dropped: dropped}, nil
}

// TrainResult is a training report plus students that look enrolled twice.
type TrainResult struct {
	facematch.TrainingReport
	Duplicates []database.DuplicatePair `json:"duplicates,omitempty"`
}

// Train trains every roster student one by one, persists each new
// representation and rebuilds the student index. progress, when set, is
// called after each student.
func (t *Trainer) Train(ctx context.Context, progress func(facematch.StudentTraining)) (TrainResult, error) {
	students := t.roster.Snapshot()
	result := TrainResult{TrainingReport: facematch.TrainingReport{Kind: t.recognizer.Kind()}}

	for _, s := range students {
		report := t.recognizer.Train(ctx, []*facematch.Student{s})
		if report.Err != "" {
			result.Err = report.Err
			break
		}
		for _, st := range report.Students {
			if err := t.persistTraining(ctx, s, st, report.Kind); err != nil {
				return result, err
			}
			result.Students = append(result.Students, st)
			if progress != nil {
				progress(st)
			}
		}
	}

	if t.index != nil {
		t.rebuildIndex()
		result.Duplicates = t.index.Duplicates(t.opts.DuplicateStudentDistance)
		for _, d := range result.Duplicates {
			t.log.Warn("students look like the same person", "a", d.A, "b", d.B, "distance", d.Distance)
		}
		if err := t.SaveIndex(); err != nil {
			t.log.Warn("failed to save student index", "error", err)
		}
	}

	t.log.Info("training finished",
		"kind", result.Kind,
		"students", len(students),
		"trained", result.Trained(),
		"skipped", result.Skipped(),
		"failed_images", result.FailedImages(),
		"duplicates", len(result.Duplicates))
	return result, nil
}

// persistTraining writes one student's training outcome. A student whose
// images all failed has its stored vector of that kind cleared so a restart
// does not bring the old one back.
func (t *Trainer) persistTraining(ctx context.Context, s *facematch.Student, st facematch.StudentTraining, kind facematch.Kind) error {
	switch {
	case st.Skipped || st.Stale:
		return nil
	case st.Succeeded > 0:
		return t.persist(ctx, s)
	default:
		if err := t.store.ClearRepresentation(ctx, s.ID, kind); err != nil {
			return fmt.Errorf("clear representation of %s: %w", s.ID, err)
		}
		return nil
	}
}

func (t *Trainer) persist(ctx context.Context, s *facematch.Student) error {
	rep := s.Representation()
	if rep == nil {
		return nil
	}
	if err := t.store.SaveRepresentation(ctx, s.ID, rep.Histogram(), rep.Embedding(), rep.TrainedAt()); err != nil {
		return fmt.Errorf("save representation of %s: %w", s.ID, err)
	}
	return nil
}

// trainedRows converts roster students with an embedding into index rows.
func (t *Trainer) trainedRows() []database.StoredStudent {
	var stored []database.StoredStudent
	for _, s := range t.roster.Snapshot() {
		rep := s.Representation()
		if rep == nil || len(rep.Embedding()) == 0 {
			continue
		}
		trainedAt := rep.TrainedAt()
		stored = append(stored, database.StoredStudent{ID: s.ID, Name: s.Name, Embedding: rep.Embedding(), TrainedAt: &trainedAt})
	}
	return stored
}

func (t *Trainer) rebuildIndex() {
	t.index.Build(t.trainedRows())
}

// LoadIndex restores the student index from disk when it matches stored,
// otherwise builds it and writes a fresh copy.
func (t *Trainer) LoadIndex(stored []database.StoredStudent) {
	if t.index == nil {
		return
	}
	if t.opts.IndexPath != "" {
		err := t.index.Load(t.opts.IndexPath, stored)
		if err == nil {
			t.log.Info("student index loaded", "path", t.opts.IndexPath, "students", t.index.Count())
			return
		}
		t.log.Debug("student index cache not usable", "error", err)
	}
	t.index.Build(stored)
	if err := t.SaveIndex(); err != nil {
		t.log.Warn("failed to save student index", "error", err)
	}
}

// SaveIndex writes the index when a path is configured.
func (t *Trainer) SaveIndex() error {
	if t.index == nil || t.opts.IndexPath == "" {
		return nil
	}
	return t.index.SaveWithMetadata(t.opts.IndexPath, database.StudentIndexMetadata{
		LastTrainedAt: database.LastTrained(t.trainedRows()),
		BuildTime:     time.Now(),
	})
}

// Similar returns the students whose embeddings are closest to studentID's.
// The in-memory index is used when populated, storage otherwise.
func (t *Trainer) Similar(ctx context.Context, studentID string, limit int) ([]database.SimilarStudent, error) {
	s, ok := t.roster.Get(studentID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", database.ErrStudentNotFound, studentID)
	}
	rep := s.Representation()
	if rep == nil || len(rep.Embedding()) == 0 {
		return nil, nil
	}
	if t.index != nil && t.index.Count() > 0 {
		return t.index.Nearest(rep.Embedding(), limit, studentID), nil
	}
	return t.store.FindSimilar(ctx, rep.Embedding(), limit, studentID)
}
