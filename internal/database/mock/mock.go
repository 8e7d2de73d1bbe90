// Package mock provides mock implementations of database interfaces for testing.
package mock

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/kozaktomas/attendance-tracker/internal/attendance"
	"github.com/kozaktomas/attendance-tracker/internal/database"
	"github.com/kozaktomas/attendance-tracker/internal/facematch"
	"github.com/kozaktomas/attendance-tracker/internal/session"
)

// MockStudentRepository is a mock implementation of database.StudentWriter
type MockStudentRepository struct {
	mu       sync.RWMutex
	students map[string]*database.StoredStudent
	images   map[string][][]byte

	// Track calls
	SaveRepresentationCalls  []string
	ClearRepresentationCalls []string

	// Error injection
	GetError                error
	ListError               error
	ImagesError             error
	UpsertError             error
	ReplaceImagesError      error
	SaveRepresentationError error
}

// NewMockStudentRepository creates a new mock student repository
func NewMockStudentRepository() *MockStudentRepository {
	return &MockStudentRepository{
		students: make(map[string]*database.StoredStudent),
		images:   make(map[string][][]byte),
	}
}

// AddStudent adds a student with its enrollment images
func (m *MockStudentRepository) AddStudent(s database.StoredStudent, images ...[]byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s.ImageCount = len(images)
	m.students[s.ID] = &s
	m.images[s.ID] = images
}

// GetStudent returns a student by id
func (m *MockStudentRepository) GetStudent(ctx context.Context, id string) (*database.StoredStudent, error) {
	if m.GetError != nil {
		return nil, m.GetError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.students[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", database.ErrStudentNotFound, id)
	}
	cp := *s
	return &cp, nil
}

// ListStudents returns all students ordered by name
func (m *MockStudentRepository) ListStudents(ctx context.Context) ([]database.StoredStudent, error) {
	if m.ListError != nil {
		return nil, m.ListError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]database.StoredStudent, 0, len(m.students))
	for _, s := range m.students {
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name == out[j].Name {
			return out[i].ID < out[j].ID
		}
		return out[i].Name < out[j].Name
	})
	return out, nil
}

// StudentImages returns the enrollment images of a student
func (m *MockStudentRepository) StudentImages(ctx context.Context, id string) ([][]byte, error) {
	if m.ImagesError != nil {
		return nil, m.ImagesError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.images[id], nil
}

// StudentIDsInCourse returns the ids of students in a course
func (m *MockStudentRepository) StudentIDsInCourse(ctx context.Context, courseID string) ([]string, error) {
	students, err := m.ListStudents(ctx)
	if err != nil {
		return nil, err
	}
	var ids []string
	for _, s := range students {
		if s.Course == courseID {
			ids = append(ids, s.ID)
		}
	}
	return ids, nil
}

// FindSimilar ranks trained students by cosine distance
func (m *MockStudentRepository) FindSimilar(ctx context.Context, embedding []float32, limit int, excludeID string) ([]database.SimilarStudent, error) {
	students, err := m.ListStudents(ctx)
	if err != nil {
		return nil, err
	}
	var out []database.SimilarStudent
	for _, s := range students {
		if s.ID == excludeID || len(s.Embedding) == 0 {
			continue
		}
		out = append(out, database.SimilarStudent{
			StudentID: s.ID,
			Name:      s.Name,
			Distance:  1 - facematch.CosineSimilarity(embedding, s.Embedding),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Distance < out[j].Distance })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// UpsertStudent inserts or updates roster fields
func (m *MockStudentRepository) UpsertStudent(ctx context.Context, s *database.StoredStudent) error {
	if m.UpsertError != nil {
		return m.UpsertError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.students[s.ID]; ok {
		existing.Name = s.Name
		existing.Course = s.Course
		existing.Email = s.Email
		return nil
	}
	cp := *s
	cp.Histogram, cp.Embedding, cp.TrainedAt, cp.ImageCount = nil, nil, nil, 0
	m.students[s.ID] = &cp
	return nil
}

// DeleteStudent removes a student
func (m *MockStudentRepository) DeleteStudent(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.students[id]; !ok {
		return fmt.Errorf("%w: %s", database.ErrStudentNotFound, id)
	}
	delete(m.students, id)
	delete(m.images, id)
	return nil
}

// ReplaceImages swaps images and clears the representation
func (m *MockStudentRepository) ReplaceImages(ctx context.Context, studentID string, images [][]byte) error {
	if m.ReplaceImagesError != nil {
		return m.ReplaceImagesError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.students[studentID]
	if !ok {
		return fmt.Errorf("%w: %s", database.ErrStudentNotFound, studentID)
	}
	s.Histogram, s.Embedding, s.TrainedAt = nil, nil, nil
	s.ImageCount = len(images)
	m.images[studentID] = images
	return nil
}

// SaveRepresentation stores trained vectors; nil keeps the old value
func (m *MockStudentRepository) SaveRepresentation(ctx context.Context, studentID string, histogram, embedding []float32, trainedAt time.Time) error {
	if m.SaveRepresentationError != nil {
		return m.SaveRepresentationError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.students[studentID]
	if !ok {
		return fmt.Errorf("%w: %s", database.ErrStudentNotFound, studentID)
	}
	if histogram != nil {
		s.Histogram = histogram
	}
	if embedding != nil {
		s.Embedding = embedding
	}
	s.TrainedAt = &trainedAt
	m.SaveRepresentationCalls = append(m.SaveRepresentationCalls, studentID)
	return nil
}

// ClearRepresentation drops one stored vector kind
func (m *MockStudentRepository) ClearRepresentation(ctx context.Context, studentID string, kind facematch.Kind) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.students[studentID]
	if !ok {
		return fmt.Errorf("%w: %s", database.ErrStudentNotFound, studentID)
	}
	switch kind {
	case facematch.KindHistogram:
		s.Histogram = nil
	case facematch.KindEmbedding:
		s.Embedding = nil
	}
	if s.Histogram == nil && s.Embedding == nil {
		s.TrainedAt = nil
	}
	m.ClearRepresentationCalls = append(m.ClearRepresentationCalls, studentID)
	return nil
}

// MockSessionRepository is a mock implementation of database.SessionRepository.
// Sessions are stored as snapshots so callers never share state with the store.
type MockSessionRepository struct {
	mu       sync.RWMutex
	sessions map[string]session.Snapshot

	// Now is used for the "not over yet" check; defaults to time.Now
	Now func() time.Time

	// Error injection
	GetError        error
	SaveStatusError error
	QueryError      error
	CurrentError    error
}

// NewMockSessionRepository creates a new mock session repository
func NewMockSessionRepository() *MockSessionRepository {
	return &MockSessionRepository{sessions: make(map[string]session.Snapshot), Now: time.Now}
}

// AddSession stores the current state of s
func (m *MockSessionRepository) AddSession(s *session.Session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[s.ID] = s.Snapshot()
}

func restore(snap session.Snapshot) *session.Session {
	return session.Restore(snap.Info, snap.Status, snap.OpenedAt, snap.ClosedAt)
}

func (m *MockSessionRepository) sorted(keep func(session.Snapshot) bool) []*session.Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*session.Session
	for _, snap := range m.sessions {
		if keep(snap) {
			out = append(out, restore(snap))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Start.Equal(out[j].Start) {
			return out[i].ID < out[j].ID
		}
		return out[i].Start.Before(out[j].Start)
	})
	return out
}

// CreateSession inserts a session
func (m *MockSessionRepository) CreateSession(ctx context.Context, s *session.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[s.ID]; ok {
		return fmt.Errorf("session %s already exists", s.ID)
	}
	m.sessions[s.ID] = s.Snapshot()
	return nil
}

// ListSessions returns sessions starting in [from, to)
func (m *MockSessionRepository) ListSessions(ctx context.Context, from, to time.Time) ([]*session.Session, error) {
	return m.sorted(func(s session.Snapshot) bool {
		return !s.Start.Before(from) && s.Start.Before(to)
	}), nil
}

// ListUnclosed returns pending and open sessions
func (m *MockSessionRepository) ListUnclosed(ctx context.Context) ([]*session.Session, error) {
	return m.sorted(func(s session.Snapshot) bool { return s.Status != session.StatusClosed }), nil
}

// Get returns a session by id
func (m *MockSessionRepository) Get(ctx context.Context, id string) (*session.Session, error) {
	if m.GetError != nil {
		return nil, m.GetError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	snap, ok := m.sessions[id]
	if !ok {
		return nil, session.ErrNotFound
	}
	return restore(snap), nil
}

// CurrentOpen returns the most recently opened open session
func (m *MockSessionRepository) CurrentOpen(ctx context.Context) (*session.Session, error) {
	if m.CurrentError != nil {
		return nil, m.CurrentError
	}
	open := m.sorted(func(s session.Snapshot) bool { return s.Status == session.StatusOpen })
	if len(open) == 0 {
		return nil, session.ErrNotFound
	}
	latest := open[0]
	for _, s := range open[1:] {
		if s.OpenedAt() != nil && (latest.OpenedAt() == nil || s.OpenedAt().After(*latest.OpenedAt())) {
			latest = s
		}
	}
	return latest, nil
}

// SaveStatus persists the status fields of s
func (m *MockSessionRepository) SaveStatus(ctx context.Context, s *session.Session) error {
	if m.SaveStatusError != nil {
		return m.SaveStatusError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[s.ID]; !ok {
		return session.ErrNotFound
	}
	m.sessions[s.ID] = s.Snapshot()
	return nil
}

func (m *MockSessionRepository) exists(match func(id string, s session.Snapshot) bool) (bool, error) {
	if m.QueryError != nil {
		return false, m.QueryError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	for id, snap := range m.sessions {
		if match(id, snap) {
			return true, nil
		}
	}
	return false, nil
}

// HasOtherAutoStartSession reports another pending auto-start session that is not over
func (m *MockSessionRepository) HasOtherAutoStartSession(ctx context.Context, excludingID string) (bool, error) {
	now := m.Now()
	return m.exists(func(id string, s session.Snapshot) bool {
		return id != excludingID && s.AutoStart && s.Status == session.StatusPending && now.Before(s.End)
	})
}

// IsSessionOpen reports whether any session is open
func (m *MockSessionRepository) IsSessionOpen(ctx context.Context) (bool, error) {
	return m.exists(func(_ string, s session.Snapshot) bool { return s.Status == session.StatusOpen })
}

// HasOtherAutoStopSession reports another open auto-stop session
func (m *MockSessionRepository) HasOtherAutoStopSession(ctx context.Context, excludingID string) (bool, error) {
	return m.exists(func(id string, s session.Snapshot) bool {
		return id != excludingID && s.AutoStop && s.Status == session.StatusOpen
	})
}

// MockAttendanceRepository is a mock implementation of database.AttendanceRepository
type MockAttendanceRepository struct {
	mu      sync.RWMutex
	records map[string]attendance.Record

	// Track calls
	SaveCalls int

	// Error injection
	FindError error
	SaveError error
	ListError error
}

// NewMockAttendanceRepository creates a new mock attendance repository
func NewMockAttendanceRepository() *MockAttendanceRepository {
	return &MockAttendanceRepository{records: make(map[string]attendance.Record)}
}

// Find returns the record of a student in a session
func (m *MockAttendanceRepository) Find(ctx context.Context, studentID, sessionID string) (*attendance.Record, error) {
	if m.FindError != nil {
		return nil, m.FindError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, r := range m.records {
		if r.StudentID == studentID && r.SessionID == sessionID {
			cp := r
			return &cp, nil
		}
	}
	return nil, attendance.ErrNotFound
}

// Get returns a record by id
func (m *MockAttendanceRepository) Get(ctx context.Context, id string) (*attendance.Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.records[id]
	if !ok {
		return nil, attendance.ErrNotFound
	}
	return &r, nil
}

// Save stores a copy of rec, enforcing one record per student and session
func (m *MockAttendanceRepository) Save(ctx context.Context, rec *attendance.Record) error {
	if m.SaveError != nil {
		return m.SaveError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, r := range m.records {
		if id != rec.ID && r.StudentID == rec.StudentID && r.SessionID == rec.SessionID {
			return fmt.Errorf("duplicate attendance for %s in %s", rec.StudentID, rec.SessionID)
		}
	}
	m.records[rec.ID] = *rec
	m.SaveCalls++
	return nil
}

// ListBySession returns records of a session ordered by creation
func (m *MockAttendanceRepository) ListBySession(ctx context.Context, sessionID string) ([]*attendance.Record, error) {
	if m.ListError != nil {
		return nil, m.ListError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*attendance.Record
	for _, r := range m.records {
		if r.SessionID == sessionID {
			cp := r
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].StudentID < out[j].StudentID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

// MockRegistrar is a mock implementation of database.RegistrarReader
type MockRegistrar struct {
	Students []database.RegistrarStudent
	Error    error
}

// ListRegistrarStudents returns the configured students filtered by course
func (m *MockRegistrar) ListRegistrarStudents(ctx context.Context, course string) ([]database.RegistrarStudent, error) {
	if m.Error != nil {
		return nil, m.Error
	}
	var out []database.RegistrarStudent
	for _, s := range m.Students {
		if course == "" || s.Course == course {
			out = append(out, s)
		}
	}
	return out, nil
}

var (
	_ database.StudentWriter        = (*MockStudentRepository)(nil)
	_ database.SessionRepository    = (*MockSessionRepository)(nil)
	_ database.AttendanceRepository = (*MockAttendanceRepository)(nil)
	_ database.RegistrarReader      = (*MockRegistrar)(nil)
)
