package database

import (
	"errors"
	"time"

	"github.com/kozaktomas/attendance-tracker/internal/facematch"
)

// ErrStudentNotFound is returned when a student id is unknown.
var ErrStudentNotFound = errors.New("student not found")

// StoredStudent is a roster entry with its persisted face representation.
// Histogram and Embedding are nil until the student has been trained.
type StoredStudent struct {
	ID         string
	Name       string
	Course     string
	Email      string
	Histogram  []float32
	Embedding  []float32
	TrainedAt  *time.Time
	ImageCount int
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Student rebuilds the in-memory student from the stored row and its images.
func (s *StoredStudent) Student(images [][]byte) *facematch.Student {
	st := facematch.NewStudent(s.ID, s.Name, s.Course)
	var trainedAt time.Time
	if s.TrainedAt != nil {
		trainedAt = *s.TrainedAt
	}
	st.SetRepresentation(facematch.RestoreRepresentation(images, s.Histogram, s.Embedding, trainedAt))
	return st
}

// SimilarStudent is a nearest-neighbour hit on student embeddings.
type SimilarStudent struct {
	StudentID string  `json:"student_id"`
	Name      string  `json:"name"`
	Distance  float64 `json:"distance"`
}

// RegistrarStudent is a student as listed by the registrar's system.
type RegistrarStudent struct {
	ID     string
	Name   string
	Course string
	Email  string
}

// HNSW index parameters for student embeddings.
const (
	// HNSWMaxNeighbors (M) is the maximum number of neighbors per node.
	HNSWMaxNeighbors = 16

	// HNSWSearchMultiplier is the factor to request more candidates from HNSW
	// to ensure we have enough after excluding and distance filtering.
	HNSWSearchMultiplier = 3
)
