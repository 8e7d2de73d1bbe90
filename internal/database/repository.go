package database

import (
	"context"
	"time"

	"github.com/kozaktomas/attendance-tracker/internal/attendance"
	"github.com/kozaktomas/attendance-tracker/internal/facematch"
	"github.com/kozaktomas/attendance-tracker/internal/session"
)

// StudentReader provides read-only access to the roster
type StudentReader interface {
	// GetStudent returns a student by id or ErrStudentNotFound
	GetStudent(ctx context.Context, id string) (*StoredStudent, error)
	// ListStudents returns all students ordered by name
	ListStudents(ctx context.Context) ([]StoredStudent, error)
	// StudentImages returns the enrollment images of a student in upload order
	StudentImages(ctx context.Context, id string) ([][]byte, error)
	// StudentIDsInCourse returns the ids of students enrolled in a course
	StudentIDsInCourse(ctx context.Context, courseID string) ([]string, error)
	// FindSimilar returns trained students ordered by cosine distance to embedding,
	// skipping excludeID
	FindSimilar(ctx context.Context, embedding []float32, limit int, excludeID string) ([]SimilarStudent, error)
}

// StudentWriter provides write access to the roster
type StudentWriter interface {
	StudentReader

	// UpsertStudent inserts a student or updates its name, course and email.
	// The stored representation is kept.
	UpsertStudent(ctx context.Context, s *StoredStudent) error

	// DeleteStudent removes a student together with images and attendance
	DeleteStudent(ctx context.Context, id string) error

	// ReplaceImages swaps the enrollment images of a student and clears
	// its stored histogram and embedding
	ReplaceImages(ctx context.Context, studentID string, images [][]byte) error

	// SaveRepresentation stores the trained histogram and embedding.
	// Either may be nil to leave the stored value alone.
	SaveRepresentation(ctx context.Context, studentID string, histogram, embedding []float32, trainedAt time.Time) error

	// ClearRepresentation drops the stored vector of one kind, e.g. after a
	// retrain in which every image failed. trained_at is cleared once no
	// vector is left.
	ClearRepresentation(ctx context.Context, studentID string, kind facematch.Kind) error
}

// SessionRepository stores sessions and answers the queries the lifecycle rules ask
type SessionRepository interface {
	session.Store
	session.Query
	attendance.SessionSource

	// CreateSession inserts a new session
	CreateSession(ctx context.Context, s *session.Session) error
	// ListSessions returns sessions starting in [from, to) ordered by start
	ListSessions(ctx context.Context, from, to time.Time) ([]*session.Session, error)
}

// AttendanceRepository stores attendance records
type AttendanceRepository interface {
	attendance.Store
}

// RegistrarReader reads the student list from the registrar's database
type RegistrarReader interface {
	// ListRegistrarStudents returns students, restricted to one course when course is set
	ListRegistrarStudents(ctx context.Context, course string) ([]RegistrarStudent, error)
}
