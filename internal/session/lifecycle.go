package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-co-op/gocron"

	"github.com/kozaktomas/attendance-tracker/internal/logger"
)

// Store persists sessions.
type Store interface {
	// ListUnclosed returns pending and open sessions ordered by start time.
	ListUnclosed(ctx context.Context) ([]*Session, error)
	// Get returns a session by id or ErrNotFound.
	Get(ctx context.Context, id string) (*Session, error)
	// SaveStatus persists status, opened-at and closed-at of s.
	SaveStatus(ctx context.Context, s *Session) error
}

// Hooks react to status changes, e.g. to seed or finalize attendance.
type Hooks interface {
	SessionOpened(ctx context.Context, s *Session) error
	SessionClosed(ctx context.Context, s *Session) error
}

// Lifecycle is the single writer of session status. Scheduled ticks and manual
// operator requests are serialized through it.
type Lifecycle struct {
	mu    sync.Mutex
	store Store
	chain *Chain
	hooks Hooks
	log   *logger.Logger
	now   func() time.Time

	schedMu   sync.Mutex
	scheduler *gocron.Scheduler
	lastTick  time.Time
}

// NewLifecycle wires a lifecycle. hooks may be nil.
func NewLifecycle(store Store, chain *Chain, hooks Hooks, log *logger.Logger) *Lifecycle {
	return &Lifecycle{
		store: store,
		chain: chain,
		hooks: hooks,
		log:   logger.OrNop(log).With("component", "lifecycle"),
		now:   time.Now,
	}
}

// SetClock overrides the time source.
func (l *Lifecycle) SetClock(now func() time.Time) {
	l.now = now
}

// Chain returns the rule chain used for automatic transitions.
func (l *Lifecycle) Chain() *Chain {
	return l.chain
}

// TickReport lists what one tick changed.
type TickReport struct {
	Opened []string `json:"opened"`
	Closed []string `json:"closed"`
	Failed int      `json:"failed"`
}

// Tick evaluates every unclosed session. Closes run before opens so a session
// ending at the same moment another starts does not block it.
func (l *Lifecycle) Tick(ctx context.Context) (TickReport, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	var report TickReport
	sessions, err := l.store.ListUnclosed(ctx)
	if err != nil {
		return report, fmt.Errorf("list sessions: %w", err)
	}
	now := l.now()

	for _, s := range sessions {
		if !s.AutoStop || s.Status() == StatusClosed {
			continue
		}
		d := l.chain.CanAutoClose(ctx, s, now)
		l.audit("close", s, d)
		if !d.Allowed {
			continue
		}
		if err := l.transition(ctx, s, "auto-close", func() error { return s.Close(now) }); err != nil {
			report.Failed++
			continue
		}
		report.Closed = append(report.Closed, s.ID)
	}

	for _, s := range sessions {
		if !s.AutoStart || s.Status() != StatusPending {
			continue
		}
		d := l.chain.CanAutoOpen(ctx, s, now)
		l.audit("open", s, d)
		if !d.Allowed {
			continue
		}
		if err := l.transition(ctx, s, "auto-open", func() error { return s.Open(now) }); err != nil {
			report.Failed++
			continue
		}
		report.Opened = append(report.Opened, s.ID)
	}

	l.schedMu.Lock()
	l.lastTick = now
	l.schedMu.Unlock()
	return report, nil
}

func (l *Lifecycle) audit(action string, s *Session, d Decision) {
	l.log.Info("session rule decision",
		"session", s.ID,
		"action", action,
		"allowed", d.Allowed,
		"denied_by", d.DeniedBy,
		"rules", l.chain.Description())
}

// transition applies change, persists it and runs hooks. Callers hold l.mu.
func (l *Lifecycle) transition(ctx context.Context, s *Session, action string, change func() error) error {
	from := s.Status()
	if err := change(); err != nil {
		return err
	}
	if err := l.store.SaveStatus(ctx, s); err != nil {
		l.log.Error("failed to persist session status", "session", s.ID, "action", action, "error", err)
		return fmt.Errorf("save session %s: %w", s.ID, err)
	}
	l.log.Info("session transition", "session", s.ID, "action", action, "from", from, "to", s.Status())

	if l.hooks == nil {
		return nil
	}
	var hookErr error
	switch s.Status() {
	case StatusOpen:
		hookErr = l.hooks.SessionOpened(ctx, s)
	case StatusClosed:
		hookErr = l.hooks.SessionClosed(ctx, s)
	}
	if hookErr != nil {
		l.log.Warn("session hook failed", "session", s.ID, "action", action, "error", hookErr)
	}
	return nil
}

func (l *Lifecycle) manual(ctx context.Context, id, action string, change func(s *Session, now time.Time) error) (*Session, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	s, err := l.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	now := l.now()
	if err := l.transition(ctx, s, action, func() error { return change(s, now) }); err != nil {
		return nil, err
	}
	return s, nil
}

// Open opens a pending session on operator request, bypassing the rule chain.
func (l *Lifecycle) Open(ctx context.Context, id string) (*Session, error) {
	return l.manual(ctx, id, "open", func(s *Session, now time.Time) error { return s.Open(now) })
}

// Close closes a session on operator request.
func (l *Lifecycle) Close(ctx context.Context, id string) (*Session, error) {
	return l.manual(ctx, id, "close", func(s *Session, now time.Time) error { return s.Close(now) })
}

// Reset returns a session to pending on operator request.
func (l *Lifecycle) Reset(ctx context.Context, id string) (*Session, error) {
	return l.manual(ctx, id, "reset", func(s *Session, _ time.Time) error { return s.Reset() })
}

// RuleReport is the read-only outcome of evaluating a session against the chain.
type RuleReport struct {
	SessionID   string   `json:"session_id"`
	Status      Status   `json:"status"`
	CanOpen     Decision `json:"can_open"`
	CanClose    Decision `json:"can_close"`
	Description string   `json:"description"`
}

// Evaluate runs the chain for one session without changing anything.
func (l *Lifecycle) Evaluate(ctx context.Context, id string) (RuleReport, error) {
	s, err := l.store.Get(ctx, id)
	if err != nil {
		return RuleReport{}, err
	}
	now := l.now()
	return RuleReport{
		SessionID:   s.ID,
		Status:      s.Status(),
		CanOpen:     l.chain.CanAutoOpen(ctx, s, now),
		CanClose:    l.chain.CanAutoClose(ctx, s, now),
		Description: l.chain.Description(),
	}, nil
}

// Start schedules Tick every interval until Stop is called.
func (l *Lifecycle) Start(ctx context.Context, interval time.Duration, loc *time.Location) error {
	l.schedMu.Lock()
	defer l.schedMu.Unlock()
	if l.scheduler != nil {
		return errors.New("lifecycle scheduler already running")
	}
	if loc == nil {
		loc = time.Local
	}

	scheduler := gocron.NewScheduler(loc)
	scheduler.SingletonModeAll()
	_, err := scheduler.Every(interval).Do(func() {
		report, err := l.Tick(ctx)
		if err != nil {
			l.log.Error("session tick failed", "error", err)
			return
		}
		if len(report.Opened)+len(report.Closed)+report.Failed > 0 {
			l.log.Info("session tick", "opened", report.Opened, "closed", report.Closed, "failed", report.Failed)
		}
	})
	if err != nil {
		return fmt.Errorf("failed to schedule session tick: %w", err)
	}
	scheduler.StartAsync()
	l.scheduler = scheduler
	l.log.Info("lifecycle scheduler started", "interval", interval.String())
	return nil
}

// Stop halts scheduled ticks. It is safe to call when not running.
func (l *Lifecycle) Stop() {
	l.schedMu.Lock()
	defer l.schedMu.Unlock()
	if l.scheduler == nil {
		return
	}
	l.scheduler.Stop()
	l.scheduler = nil
	l.log.Info("lifecycle scheduler stopped")
}

// LastTick returns when the last tick completed, zero if none ran yet.
func (l *Lifecycle) LastTick() time.Time {
	l.schedMu.Lock()
	defer l.schedMu.Unlock()
	return l.lastTick
}
