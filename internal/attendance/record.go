// Package attendance holds attendance records and the coordinator that turns
// recognition results and operator edits into record changes.
package attendance

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrNotFound is returned when a record or confirmation does not exist.
	ErrNotFound = errors.New("attendance record not found")
	// ErrInvalidStatus is returned for an unknown status value.
	ErrInvalidStatus = errors.New("invalid attendance status")
	// ErrNoOpenSession is returned when a match arrives while no session is open.
	ErrNoOpenSession = errors.New("no open session")
)

// Status of a student in one session.
type Status string

const (
	StatusPending Status = "pending"
	StatusPresent Status = "present"
	StatusAbsent  Status = "absent"
	StatusLate    Status = "late"
)

// ParseStatus validates a status string.
func ParseStatus(s string) (Status, error) {
	switch Status(s) {
	case StatusPending, StatusPresent, StatusAbsent, StatusLate:
		return Status(s), nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidStatus, s)
}

// Method records how a status was set.
type Method string

const (
	MethodAuto   Method = "auto"
	MethodManual Method = "manual"
	MethodQR     Method = "qr"
	MethodNone   Method = "none"
)

// ParseMethod validates a method string.
func ParseMethod(s string) (Method, error) {
	switch Method(s) {
	case MethodAuto, MethodManual, MethodQR, MethodNone:
		return Method(s), nil
	}
	return "", fmt.Errorf("unknown attendance method %q", s)
}

// Record is the attendance of one student in one session. Confidence is only
// meaningful when Method is MethodAuto. The original status and note are
// captured on load and refreshed only by Commit.
type Record struct {
	ID         string     `json:"id"`
	StudentID  string     `json:"student_id"`
	SessionID  string     `json:"session_id"`
	Status     Status     `json:"status"`
	Method     Method     `json:"method"`
	Confidence float64    `json:"confidence"`
	Note       string     `json:"note"`
	MarkedAt   *time.Time `json:"marked_at,omitempty"`
	LastSeen   *time.Time `json:"last_seen,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`

	originalStatus Status
	originalNote   string
}

// NewRecord creates a pending record.
func NewRecord(studentID, sessionID string, now time.Time) *Record {
	r := &Record{
		ID:        uuid.NewString(),
		StudentID: studentID,
		SessionID: sessionID,
		Status:    StatusPending,
		Method:    MethodNone,
		CreatedAt: now,
		UpdatedAt: now,
	}
	r.Commit()
	return r
}

// Commit makes the current status and note the baseline for change tracking.
// Repositories restore the persisted baseline with RestoreBaseline instead;
// saving a record does not commit it.
func (r *Record) Commit() {
	r.originalStatus = r.Status
	r.originalNote = r.Note
}

// CommitStatus makes the current status the baseline and leaves the note baseline alone.
func (r *Record) CommitStatus() {
	r.originalStatus = r.Status
}

// RestoreBaseline sets the committed status and note, as persisted by a repository.
func (r *Record) RestoreBaseline(status Status, note string) {
	r.originalStatus = status
	r.originalNote = note
}

// IsStatusChanged reports whether the status differs from the committed one.
func (r *Record) IsStatusChanged() bool {
	return r.Status != r.originalStatus
}

// IsNoteChanged reports whether the note differs from the committed one.
func (r *Record) IsNoteChanged() bool {
	return r.Note != r.originalNote
}

// IsDirty reports whether anything tracked changed.
func (r *Record) IsDirty() bool {
	return r.IsStatusChanged() || r.IsNoteChanged()
}

func (r *Record) OriginalStatus() Status { return r.originalStatus }

func (r *Record) OriginalNote() string { return r.originalNote }

// touch records a sighting, never earlier than the record's creation.
func (r *Record) touch(at time.Time) {
	if at.Before(r.CreatedAt) {
		at = r.CreatedAt
	}
	if r.LastSeen == nil || at.After(*r.LastSeen) {
		r.LastSeen = &at
	}
	r.UpdatedAt = at
}

// ApplyMatch records a recognition at time at. A pending record becomes Late
// when at is after lateDeadline and Present otherwise; a record that is
// already marked only has its last-seen time bumped. The note is never touched.
// Returns true when the status changed.
func (r *Record) ApplyMatch(at time.Time, confidence float64, lateDeadline time.Time) bool {
	r.touch(at)
	if r.Status != StatusPending {
		return false
	}
	r.Status = StatusPresent
	if at.After(lateDeadline) {
		r.Status = StatusLate
	}
	r.Method = MethodAuto
	r.Confidence = confidence
	marked := at
	r.MarkedAt = &marked
	return true
}

// SetStatus applies an operator edit. Setting Pending is the explicit manual reset.
func (r *Record) SetStatus(status Status, now time.Time) error {
	if _, err := ParseStatus(string(status)); err != nil {
		return err
	}
	r.Status = status
	r.Confidence = 0
	r.UpdatedAt = now
	if status == StatusPending {
		r.Method = MethodNone
		r.MarkedAt = nil
		return nil
	}
	r.Method = MethodManual
	r.MarkedAt = &now
	if r.LastSeen == nil {
		r.LastSeen = &now
	}
	return nil
}

// SetNote replaces the free-text note.
func (r *Record) SetNote(note string, now time.Time) {
	r.Note = note
	r.UpdatedAt = now
}

// MarkAbsent turns a still pending record into Absent when a session closes.
// Returns false for records that were already marked.
func (r *Record) MarkAbsent(now time.Time) bool {
	if r.Status != StatusPending {
		return false
	}
	r.Status = StatusAbsent
	r.Method = MethodNone
	r.Confidence = 0
	r.MarkedAt = &now
	r.UpdatedAt = now
	return true
}

// View is a JSON-friendly record with change flags.
type View struct {
	*Record
	StatusChanged bool `json:"status_changed"`
	NoteChanged   bool `json:"note_changed"`
}

func (r *Record) View() View {
	return View{Record: r, StatusChanged: r.IsStatusChanged(), NoteChanged: r.IsNoteChanged()}
}
