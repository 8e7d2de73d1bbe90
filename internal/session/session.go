// Package session models class sessions, the rules that decide whether a
// session may open or close on its own, and the lifecycle that applies them.
package session

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

var (
	// ErrInvalidTransition is returned when a status change is not allowed from the current status.
	ErrInvalidTransition = errors.New("invalid session transition")
	// ErrNotFound is returned when a session does not exist.
	ErrNotFound = errors.New("session not found")
)

// Status is the lifecycle state of a session.
type Status string

const (
	StatusPending Status = "pending"
	StatusOpen    Status = "open"
	StatusClosed  Status = "closed"
)

// ParseStatus converts a stored status string.
func ParseStatus(s string) (Status, error) {
	switch Status(s) {
	case StatusPending, StatusOpen, StatusClosed:
		return Status(s), nil
	}
	return "", fmt.Errorf("unknown session status %q", s)
}

// Info holds the schedule of a session. It can be edited freely; status cannot.
type Info struct {
	ID                   string    `json:"id"`
	CourseID             string    `json:"course_id"`
	CourseName           string    `json:"course_name"`
	Start                time.Time `json:"start"`
	End                  time.Time `json:"end"`
	Location             string    `json:"location"`
	LateThresholdMinutes int       `json:"late_threshold_minutes"`
	AutoStart            bool      `json:"auto_start"`
	AutoStop             bool      `json:"auto_stop"`
}

// Session is a scheduled class meeting. Status changes only through
// Open, Close and Reset, which validate the current status.
type Session struct {
	Info

	mu       sync.RWMutex
	status   Status
	openedAt *time.Time
	closedAt *time.Time
}

// New creates a pending session.
func New(info Info) *Session {
	return &Session{Info: info, status: StatusPending}
}

// Restore rebuilds a session loaded from storage.
func Restore(info Info, status Status, openedAt, closedAt *time.Time) *Session {
	return &Session{Info: info, status: status, openedAt: openedAt, closedAt: closedAt}
}

func (s *Session) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

// OpenedAt returns when the session was last opened, nil if never.
func (s *Session) OpenedAt() *time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.openedAt
}

// ClosedAt returns when the session was closed, nil if not closed.
func (s *Session) ClosedAt() *time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.closedAt
}

// Date returns the calendar day the session starts on.
func (s *Session) Date() time.Time {
	y, m, d := s.Start.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, s.Start.Location())
}

// LateDeadline is the last instant a student can be marked present.
func (s *Session) LateDeadline() time.Time {
	return s.Start.Add(time.Duration(s.LateThresholdMinutes) * time.Minute)
}

// Open moves a pending session to open.
func (s *Session) Open(now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status != StatusPending {
		return fmt.Errorf("%w: open from %s", ErrInvalidTransition, s.status)
	}
	s.status = StatusOpen
	s.openedAt = &now
	return nil
}

// Close moves a pending or open session to closed.
func (s *Session) Close(now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status == StatusClosed {
		return fmt.Errorf("%w: close from %s", ErrInvalidTransition, s.status)
	}
	s.status = StatusClosed
	s.closedAt = &now
	return nil
}

// Reset returns an open or closed session to pending.
func (s *Session) Reset() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status == StatusPending {
		return fmt.Errorf("%w: reset from %s", ErrInvalidTransition, s.status)
	}
	s.status = StatusPending
	s.openedAt = nil
	s.closedAt = nil
	return nil
}

// Snapshot is a JSON-friendly copy of a session.
type Snapshot struct {
	Info
	Status   Status     `json:"status"`
	OpenedAt *time.Time `json:"opened_at,omitempty"`
	ClosedAt *time.Time `json:"closed_at,omitempty"`
}

func (s *Session) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Snapshot{Info: s.Info, Status: s.status, OpenedAt: s.openedAt, ClosedAt: s.closedAt}
}
