// Package roster keeps the in-memory set of enrolled students that the
// recognizers match against, and the enrollment and training workflow that
// keeps it in sync with storage.
package roster

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/kozaktomas/attendance-tracker/internal/database"
	"github.com/kozaktomas/attendance-tracker/internal/facematch"
	"github.com/kozaktomas/attendance-tracker/internal/logger"
)

// Roster is a concurrency-safe set of students. Snapshot returns a stable
// slice that can be read while the roster is being reloaded.
type Roster struct {
	mu       sync.RWMutex
	students map[string]*facematch.Student
	ordered  []*facematch.Student
	source   database.StudentReader
	log      *logger.Logger
}

// New creates an empty roster backed by source.
func New(source database.StudentReader, log *logger.Logger) *Roster {
	return &Roster{
		students: make(map[string]*facematch.Student),
		source:   source,
		log:      logger.OrNop(log).With("component", "roster"),
	}
}

// Load replaces the roster with every stored student, including images and
// any persisted representation. It returns the stored rows for callers that
// need the raw vectors, e.g. to build the student index.
func (r *Roster) Load(ctx context.Context) ([]database.StoredStudent, error) {
	stored, err := r.source.ListStudents(ctx)
	if err != nil {
		return nil, fmt.Errorf("list students: %w", err)
	}

	students := make(map[string]*facematch.Student, len(stored))
	trained := 0
	for i := range stored {
		images, err := r.source.StudentImages(ctx, stored[i].ID)
		if err != nil {
			return nil, fmt.Errorf("load images of %s: %w", stored[i].ID, err)
		}
		students[stored[i].ID] = stored[i].Student(images)
		if stored[i].TrainedAt != nil {
			trained++
		}
	}

	r.mu.Lock()
	r.students = students
	r.reorder()
	r.mu.Unlock()

	r.log.Info("roster loaded", "students", len(stored), "trained", trained)
	return stored, nil
}

// reorder rebuilds the name-ordered slice. Callers hold mu.
func (r *Roster) reorder() {
	ordered := make([]*facematch.Student, 0, len(r.students))
	for _, s := range r.students {
		ordered = append(ordered, s)
	}
	sort.Slice(ordered, func(i, j int) bool {
		if ordered[i].Name == ordered[j].Name {
			return ordered[i].ID < ordered[j].ID
		}
		return ordered[i].Name < ordered[j].Name
	})
	r.ordered = ordered
}

// Snapshot returns the current students ordered by name. The slice is never
// modified after it is returned.
func (r *Roster) Snapshot() []*facematch.Student {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.ordered
}

// Get returns a student by id.
func (r *Roster) Get(id string) (*facematch.Student, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.students[id]
	return s, ok
}

// Put adds or replaces a student.
func (r *Roster) Put(s *facematch.Student) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.students[s.ID] = s
	r.reorder()
}

// Remove drops a student.
func (r *Roster) Remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.students[id]; ok {
		delete(r.students, id)
		r.reorder()
	}
}

// Len returns the number of students.
func (r *Roster) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.students)
}

// Search returns students whose name matches every word of query, ignoring
// case and diacritics. An empty query returns everyone.
func (r *Roster) Search(query, course string) []*facematch.Student {
	var out []*facematch.Student
	for _, s := range r.Snapshot() {
		if course != "" && s.Course != course {
			continue
		}
		if facematch.MatchesName(s.Name, query) {
			out = append(out, s)
		}
	}
	return out
}
