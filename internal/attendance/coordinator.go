package attendance

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/kozaktomas/attendance-tracker/internal/facematch"
	"github.com/kozaktomas/attendance-tracker/internal/logger"
	"github.com/kozaktomas/attendance-tracker/internal/session"
)

// Store persists attendance records. Save must keep one record per
// (student, session) and persist the committed baseline alongside the record.
type Store interface {
	// Find returns the record of a student in a session or ErrNotFound.
	Find(ctx context.Context, studentID, sessionID string) (*Record, error)
	// Get returns a record by id or ErrNotFound.
	Get(ctx context.Context, id string) (*Record, error)
	// Save inserts or updates r.
	Save(ctx context.Context, r *Record) error
	// ListBySession returns all records of a session.
	ListBySession(ctx context.Context, sessionID string) ([]*Record, error)
}

// SessionSource finds the session recognition results belong to.
type SessionSource interface {
	// CurrentOpen returns the open session or session.ErrNotFound.
	CurrentOpen(ctx context.Context) (*session.Session, error)
	// Get returns a session by id or session.ErrNotFound.
	Get(ctx context.Context, id string) (*session.Session, error)
}

// Roster lists the students enrolled in a course.
type Roster interface {
	StudentIDsInCourse(ctx context.Context, courseID string) ([]string, error)
}

// Observation is a recognition result together with the time its face crop was captured.
type Observation struct {
	Result     facematch.RecognitionResult
	CapturedAt time.Time
}

// OutcomeKind says what the coordinator did with an observation.
type OutcomeKind string

const (
	OutcomeIgnored  OutcomeKind = "ignored"  // no match or nothing to attach it to
	OutcomeMarked   OutcomeKind = "marked"   // pending record became present or late
	OutcomeSeen     OutcomeKind = "seen"     // already marked, last seen bumped
	OutcomeQueued   OutcomeKind = "queued"   // waiting for operator confirmation
	OutcomeRejected OutcomeKind = "rejected" // operator rejected a confirmation
)

// Outcome describes the effect of one observation or confirmation.
type Outcome struct {
	Kind       OutcomeKind `json:"kind"`
	StudentID  string      `json:"student_id,omitempty"`
	SessionID  string      `json:"session_id,omitempty"`
	RecordID   string      `json:"record_id,omitempty"`
	Status     Status      `json:"status,omitempty"`
	Confidence float64     `json:"confidence"`
	At         time.Time   `json:"at"`
}

// Coordinator applies recognition results and operator edits to attendance records.
// Record mutations are serialized; it is the only writer of records.
type Coordinator struct {
	mu       sync.Mutex
	store    Store
	sessions SessionSource
	roster   Roster
	queue    *ConfirmationQueue
	events   *EventBroadcaster
	log      *logger.Logger
	now      func() time.Time
}

// NewCoordinator wires a coordinator. roster may be nil, in which case no
// records are seeded when a session opens.
func NewCoordinator(store Store, sessions SessionSource, roster Roster, log *logger.Logger) *Coordinator {
	return &Coordinator{
		store:    store,
		sessions: sessions,
		roster:   roster,
		queue:    NewConfirmationQueue(),
		events:   &EventBroadcaster{},
		log:      logger.OrNop(log).With("component", "coordinator"),
		now:      time.Now,
	}
}

// SetClock overrides the time source.
func (c *Coordinator) SetClock(now func() time.Time) {
	c.now = now
}

func (c *Coordinator) Confirmations() *ConfirmationQueue { return c.queue }

func (c *Coordinator) Events() *EventBroadcaster { return c.events }

// Run consumes observations until ctx is done or in is closed.
func (c *Coordinator) Run(ctx context.Context, in <-chan Observation) {
	for {
		select {
		case <-ctx.Done():
			return
		case obs, ok := <-in:
			if !ok {
				return
			}
			if _, err := c.HandleResult(ctx, obs.Result, obs.CapturedAt); err != nil {
				c.log.Error("failed to apply recognition", "student", obs.Result.StudentID(), "error", err)
			}
		}
	}
}

// HandleResult applies one recognition result. Results in the confirmation
// band are queued, matches update the record of the open session and
// everything else is ignored.
func (c *Coordinator) HandleResult(ctx context.Context, res facematch.RecognitionResult, at time.Time) (Outcome, error) {
	ignored := Outcome{Kind: OutcomeIgnored, StudentID: res.StudentID(), Confidence: res.Confidence, At: at}
	if res.Student == nil || (!res.Match && !res.RequiresConfirmation()) {
		return ignored, nil
	}

	sess, err := c.sessions.CurrentOpen(ctx)
	if errors.Is(err, session.ErrNotFound) {
		c.log.Debug("recognition without open session", "student", res.StudentID(), "confidence", res.Confidence)
		return ignored, nil
	}
	if err != nil {
		return ignored, fmt.Errorf("find open session: %w", err)
	}

	if res.RequiresConfirmation() {
		conf, added := c.queue.Add(Confirmation{
			StudentID:   res.Student.ID,
			StudentName: res.Student.Name,
			SessionID:   sess.ID,
			Confidence:  res.Confidence,
			SeenAt:      at,
		})
		if added {
			c.log.Info("recognition needs confirmation", "student", res.Student.ID, "session", sess.ID, "confidence", res.Confidence)
			c.events.SendEvent(Event{Type: "confirmation", Data: conf})
		}
		return Outcome{Kind: OutcomeQueued, StudentID: res.Student.ID, SessionID: sess.ID, Confidence: res.Confidence, At: at}, nil
	}

	return c.apply(ctx, res.Student.ID, sess, res.Confidence, at)
}

// apply fetches or creates the record and marks it.
func (c *Coordinator) apply(ctx context.Context, studentID string, sess *session.Session, confidence float64, at time.Time) (Outcome, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	rec, err := c.store.Find(ctx, studentID, sess.ID)
	if errors.Is(err, ErrNotFound) {
		rec = NewRecord(studentID, sess.ID, c.now())
	} else if err != nil {
		return Outcome{}, fmt.Errorf("find record: %w", err)
	}

	clean := !rec.IsStatusChanged()
	changed := rec.ApplyMatch(at, confidence, sess.LateDeadline())
	if changed && clean {
		// an automatic mark is not an operator edit
		rec.CommitStatus()
	}
	if err := c.store.Save(ctx, rec); err != nil {
		return Outcome{}, fmt.Errorf("save record: %w", err)
	}

	out := Outcome{
		Kind:       OutcomeSeen,
		StudentID:  studentID,
		SessionID:  sess.ID,
		RecordID:   rec.ID,
		Status:     rec.Status,
		Confidence: confidence,
		At:         at,
	}
	if changed {
		out.Kind = OutcomeMarked
		c.log.Info("attendance marked", "student", studentID, "session", sess.ID, "status", rec.Status, "confidence", confidence)
	}
	c.events.SendEvent(Event{Type: string(out.Kind), Data: out})
	return out, nil
}

// Resolve accepts or rejects a queued confirmation. Accepting applies it like a match.
func (c *Coordinator) Resolve(ctx context.Context, confirmationID string, accept bool) (Outcome, error) {
	conf, ok := c.queue.Take(confirmationID)
	if !ok {
		return Outcome{}, fmt.Errorf("confirmation %s: %w", confirmationID, ErrNotFound)
	}
	if !accept {
		c.log.Info("confirmation rejected", "student", conf.StudentID, "session", conf.SessionID)
		out := Outcome{Kind: OutcomeRejected, StudentID: conf.StudentID, SessionID: conf.SessionID, Confidence: conf.Confidence, At: conf.SeenAt}
		c.events.SendEvent(Event{Type: string(out.Kind), Data: out})
		return out, nil
	}

	sess, err := c.sessions.Get(ctx, conf.SessionID)
	if err != nil {
		return Outcome{}, fmt.Errorf("load session %s: %w", conf.SessionID, err)
	}
	c.log.Info("confirmation accepted", "student", conf.StudentID, "session", conf.SessionID)
	return c.apply(ctx, conf.StudentID, sess, conf.Confidence, conf.SeenAt)
}

// Edit applies an operator change. Nil arguments leave the field alone.
// The change is saved but not committed.
func (c *Coordinator) Edit(ctx context.Context, recordID string, status *Status, note *string) (*Record, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	rec, err := c.store.Get(ctx, recordID)
	if err != nil {
		return nil, err
	}
	now := c.now()
	if status != nil {
		if err := rec.SetStatus(*status, now); err != nil {
			return nil, err
		}
	}
	if note != nil {
		rec.SetNote(*note, now)
	}
	if err := c.store.Save(ctx, rec); err != nil {
		return nil, fmt.Errorf("save record: %w", err)
	}
	c.log.Info("attendance edited", "record", rec.ID, "student", rec.StudentID,
		"status_changed", rec.IsStatusChanged(), "note_changed", rec.IsNoteChanged())
	c.events.SendEvent(Event{Type: "edited", Data: rec.View()})
	return rec, nil
}

// Commit makes the record's current status and note its new baseline.
func (c *Coordinator) Commit(ctx context.Context, recordID string) (*Record, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	rec, err := c.store.Get(ctx, recordID)
	if err != nil {
		return nil, err
	}
	if !rec.IsDirty() {
		return rec, nil
	}
	rec.Commit()
	if err := c.store.Save(ctx, rec); err != nil {
		return nil, fmt.Errorf("save record: %w", err)
	}
	return rec, nil
}

// Records returns the records of a session.
func (c *Coordinator) Records(ctx context.Context, sessionID string) ([]*Record, error) {
	return c.store.ListBySession(ctx, sessionID)
}

// SessionOpened creates a pending record for every enrolled student of the course.
func (c *Coordinator) SessionOpened(ctx context.Context, s *session.Session) error {
	if c.roster == nil {
		return nil
	}
	ids, err := c.roster.StudentIDsInCourse(ctx, s.CourseID)
	if err != nil {
		return fmt.Errorf("list course students: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	created := 0
	for _, id := range ids {
		_, err := c.store.Find(ctx, id, s.ID)
		if err == nil {
			continue
		}
		if !errors.Is(err, ErrNotFound) {
			return fmt.Errorf("find record: %w", err)
		}
		if err := c.store.Save(ctx, NewRecord(id, s.ID, c.now())); err != nil {
			return fmt.Errorf("seed record: %w", err)
		}
		created++
	}
	c.log.Info("attendance seeded", "session", s.ID, "course", s.CourseID, "records", created)
	return nil
}

// SessionClosed marks every still pending record absent and drops open confirmations.
func (c *Coordinator) SessionClosed(ctx context.Context, s *session.Session) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	dropped := c.queue.DropSession(s.ID)
	records, err := c.store.ListBySession(ctx, s.ID)
	if err != nil {
		return fmt.Errorf("list records: %w", err)
	}
	now := c.now()
	absent := 0
	for _, rec := range records {
		clean := !rec.IsStatusChanged()
		if !rec.MarkAbsent(now) {
			continue
		}
		if clean {
			rec.CommitStatus()
		}
		if err := c.store.Save(ctx, rec); err != nil {
			return fmt.Errorf("save record: %w", err)
		}
		absent++
	}
	c.log.Info("attendance finalized", "session", s.ID, "absent", absent, "dropped_confirmations", dropped)
	c.events.SendEvent(Event{Type: "finalized", Data: map[string]any{"session_id": s.ID, "absent": absent}})
	return nil
}
