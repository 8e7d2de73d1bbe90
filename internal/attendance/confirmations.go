package attendance

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Confirmation is a recognition in the confirmation band waiting for an operator.
type Confirmation struct {
	ID          string    `json:"id"`
	StudentID   string    `json:"student_id"`
	StudentName string    `json:"student_name"`
	SessionID   string    `json:"session_id"`
	Confidence  float64   `json:"confidence"`
	SeenAt      time.Time `json:"seen_at"`
	CreatedAt   time.Time `json:"created_at"`
}

type confirmationKey struct {
	studentID string
	sessionID string
}

// ConfirmationQueue holds at most one confirmation per student and session,
// keeping the highest confidence seen.
type ConfirmationQueue struct {
	mu    sync.Mutex
	items map[string]*Confirmation
	byKey map[confirmationKey]string
}

func NewConfirmationQueue() *ConfirmationQueue {
	return &ConfirmationQueue{
		items: make(map[string]*Confirmation),
		byKey: make(map[confirmationKey]string),
	}
}

// Add queues c or merges it into the existing entry for the same student and
// session. Returns the stored confirmation and whether it is new.
func (q *ConfirmationQueue) Add(c Confirmation) (Confirmation, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	key := confirmationKey{c.StudentID, c.SessionID}
	if id, ok := q.byKey[key]; ok {
		existing := q.items[id]
		if c.Confidence > existing.Confidence {
			existing.Confidence = c.Confidence
		}
		if c.SeenAt.After(existing.SeenAt) {
			existing.SeenAt = c.SeenAt
		}
		return *existing, false
	}

	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = c.SeenAt
	}
	stored := c
	q.items[c.ID] = &stored
	q.byKey[key] = c.ID
	return stored, true
}

// Take removes and returns the confirmation with the given id.
func (q *ConfirmationQueue) Take(id string) (Confirmation, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	c, ok := q.items[id]
	if !ok {
		return Confirmation{}, false
	}
	delete(q.items, id)
	delete(q.byKey, confirmationKey{c.StudentID, c.SessionID})
	return *c, true
}

// List returns pending confirmations, oldest first.
func (q *ConfirmationQueue) List() []Confirmation {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]Confirmation, 0, len(q.items))
	for _, c := range q.items {
		out = append(out, *c)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// DropSession discards every confirmation of a session. Returns how many were dropped.
func (q *ConfirmationQueue) DropSession(sessionID string) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := 0
	for id, c := range q.items {
		if c.SessionID == sessionID {
			delete(q.items, id)
			delete(q.byKey, confirmationKey{c.StudentID, c.SessionID})
			n++
		}
	}
	return n
}

func (q *ConfirmationQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
