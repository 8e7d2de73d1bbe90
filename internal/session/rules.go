package session

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/kozaktomas/attendance-tracker/internal/logger"
)

// Query exposes the state of other sessions to the rule chain.
type Query interface {
	// HasOtherAutoStartSession reports whether a session other than excludingID
	// has auto start enabled, is still pending and ends after now. Sessions
	// that already opened, closed or ended do not count; an open one is left
	// to IsSessionOpen.
	HasOtherAutoStartSession(ctx context.Context, excludingID string) (bool, error)
	// IsSessionOpen reports whether any session is currently open.
	IsSessionOpen(ctx context.Context) (bool, error)
	// HasOtherAutoStopSession reports whether a session other than excludingID
	// has auto stop enabled and is open right now. Pending auto-stop sessions
	// do not count.
	HasOtherAutoStopSession(ctx context.Context, excludingID string) (bool, error)
}

// Evaluation is the input of one rule check.
type Evaluation struct {
	Ctx     context.Context
	Session *Session
	Now     time.Time
	Query   Query
}

// Predicate returns true to let evaluation continue inward, false to deny.
type Predicate func(ev Evaluation) (bool, error)

// Rule is one layer of the chain with separate open and close predicates.
type Rule struct {
	Name        string
	Description string
	CanOpen     Predicate
	CanClose    Predicate
}

func allow(Evaluation) (bool, error) { return true, nil }

// TimeRule allows opening once the start time is reached and closing once the end time is reached.
func TimeRule() Rule {
	return Rule{
		Name:        "time",
		Description: "open after start, close after end",
		CanOpen: func(ev Evaluation) (bool, error) {
			return !ev.Now.Before(ev.Session.Start), nil
		},
		CanClose: func(ev Evaluation) (bool, error) {
			return !ev.Now.Before(ev.Session.End), nil
		},
	}
}

// StatusValidationRule only opens pending sessions and never closes closed ones.
func StatusValidationRule() Rule {
	return Rule{
		Name:        "status",
		Description: "open only pending, never close closed",
		CanOpen: func(ev Evaluation) (bool, error) {
			return ev.Session.Status() == StatusPending, nil
		},
		CanClose: func(ev Evaluation) (bool, error) {
			return ev.Session.Status() != StatusClosed, nil
		},
	}
}

// SessionEndedRule refuses to open a session whose end time has passed.
func SessionEndedRule() Rule {
	return Rule{
		Name:        "ended",
		Description: "never open after end",
		CanOpen: func(ev Evaluation) (bool, error) {
			return ev.Now.Before(ev.Session.End), nil
		},
		CanClose: allow,
	}
}

// ConflictPreventionRule keeps automatic transitions unambiguous: a session
// does not auto-open while another auto-start session exists or any session is
// open, and does not auto-close while another auto-stop session exists.
func ConflictPreventionRule() Rule {
	return Rule{
		Name:        "conflict",
		Description: "no competing auto sessions, no open session",
		CanOpen: func(ev Evaluation) (bool, error) {
			if !ev.Session.AutoStart {
				return true, nil
			}
			other, err := ev.Query.HasOtherAutoStartSession(ev.Ctx, ev.Session.ID)
			if err != nil || other {
				return false, err
			}
			open, err := ev.Query.IsSessionOpen(ev.Ctx)
			if err != nil {
				return false, err
			}
			return !open, nil
		},
		CanClose: func(ev Evaluation) (bool, error) {
			if !ev.Session.AutoStop {
				return true, nil
			}
			other, err := ev.Query.HasOtherAutoStopSession(ev.Ctx, ev.Session.ID)
			if err != nil {
				return false, err
			}
			return !other, nil
		},
	}
}

// Chain evaluates rules outermost first and stops at the first denial.
type Chain struct {
	rules []Rule // outermost first
	query Query
	log   *logger.Logger
}

// NewChain builds a chain from rules listed innermost to outermost.
func NewChain(query Query, log *logger.Logger, innermostFirst ...Rule) *Chain {
	rules := make([]Rule, len(innermostFirst))
	for i, r := range innermostFirst {
		rules[len(rules)-1-i] = r
	}
	return &Chain{rules: rules, query: query, log: logger.OrNop(log)}
}

// DefaultChain returns time, status, ended and conflict rules in that nesting order.
func DefaultChain(query Query, log *logger.Logger) *Chain {
	return NewChain(query, log, TimeRule(), StatusValidationRule(), SessionEndedRule(), ConflictPreventionRule())
}

// Decision is the outcome of one chain evaluation.
type Decision struct {
	Allowed  bool   `json:"allowed"`
	DeniedBy string `json:"denied_by,omitempty"`
	Err      error  `json:"-"`
}

// CanAutoOpen evaluates the open predicates of every layer.
func (c *Chain) CanAutoOpen(ctx context.Context, s *Session, now time.Time) Decision {
	return c.evaluate(ctx, s, now, "open", func(r Rule) Predicate { return r.CanOpen })
}

// CanAutoClose evaluates the close predicates of every layer.
func (c *Chain) CanAutoClose(ctx context.Context, s *Session, now time.Time) Decision {
	return c.evaluate(ctx, s, now, "close", func(r Rule) Predicate { return r.CanClose })
}

func (c *Chain) evaluate(ctx context.Context, s *Session, now time.Time, action string, pick func(Rule) Predicate) Decision {
	ev := Evaluation{Ctx: ctx, Session: s, Now: now, Query: c.query}
	for _, r := range c.rules {
		ok, err := pick(r)(ev)
		if err != nil {
			c.log.Error("session rule failed, denying", "rule", r.Name, "action", action, "session", s.ID, "error", err)
			return Decision{DeniedBy: r.Name, Err: fmt.Errorf("rule %s: %w", r.Name, err)}
		}
		if !ok {
			c.log.Debug("session rule denied", "rule", r.Name, "action", action, "session", s.ID)
			return Decision{DeniedBy: r.Name}
		}
	}
	return Decision{Allowed: true}
}

// Description lists every layer outermost first.
func (c *Chain) Description() string {
	parts := make([]string, 0, len(c.rules))
	for _, r := range c.rules {
		parts = append(parts, fmt.Sprintf("%s(%s)", r.Name, r.Description))
	}
	return strings.Join(parts, " -> ")
}
