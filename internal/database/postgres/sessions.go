package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/kozaktomas/attendance-tracker/internal/session"
)

// SessionRepository provides PostgreSQL-backed class session storage
type SessionRepository struct {
	pool *Pool
}

// NewSessionRepository creates a new PostgreSQL session repository
func NewSessionRepository(pool *Pool) *SessionRepository {
	return &SessionRepository{pool: pool}
}

const sessionColumns = `
	id, course_id, course_name, start_time, end_time, location,
	late_threshold_minutes, auto_start, auto_stop, status, opened_at, closed_at`

func scanSessionRow(scanner interface{ Scan(...any) error }) (*session.Session, error) {
	var info session.Info
	var status string
	var openedAt, closedAt sql.NullTime

	if err := scanner.Scan(
		&info.ID,
		&info.CourseID,
		&info.CourseName,
		&info.Start,
		&info.End,
		&info.Location,
		&info.LateThresholdMinutes,
		&info.AutoStart,
		&info.AutoStop,
		&status,
		&openedAt,
		&closedAt,
	); err != nil {
		return nil, fmt.Errorf("scan session: %w", err)
	}

	st, err := session.ParseStatus(status)
	if err != nil {
		return nil, err
	}
	return session.Restore(info, st, timePtr(openedAt), timePtr(closedAt)), nil
}

func (r *SessionRepository) list(ctx context.Context, query string, args ...any) ([]*session.Session, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var out []*session.Session
	for rows.Next() {
		s, err := scanSessionRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sessions: %w", err)
	}
	return out, nil
}

func (r *SessionRepository) one(ctx context.Context, query string, args ...any) (*session.Session, error) {
	s, err := scanSessionRow(r.pool.QueryRow(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, session.ErrNotFound
	}
	return s, err
}

// CreateSession inserts a new session with its current status
func (r *SessionRepository) CreateSession(ctx context.Context, s *session.Session) error {
	query := `
		INSERT INTO sessions (` + sessionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`
	_, err := r.pool.Exec(ctx, query,
		s.ID, s.CourseID, s.CourseName, s.Start, s.End, s.Location,
		s.LateThresholdMinutes, s.AutoStart, s.AutoStop,
		string(s.Status()), s.OpenedAt(), s.ClosedAt(),
	)
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	return nil
}

// ListSessions returns sessions starting in [from, to)
func (r *SessionRepository) ListSessions(ctx context.Context, from, to time.Time) ([]*session.Session, error) {
	return r.list(ctx, `
		SELECT `+sessionColumns+` FROM sessions
		WHERE start_time >= $1 AND start_time < $2
		ORDER BY start_time, id
	`, from, to)
}

// ListUnclosed returns pending and open sessions ordered by start time
func (r *SessionRepository) ListUnclosed(ctx context.Context) ([]*session.Session, error) {
	return r.list(ctx, `
		SELECT `+sessionColumns+` FROM sessions
		WHERE status <> 'closed'
		ORDER BY start_time, id
	`)
}

// Get returns a session by id
func (r *SessionRepository) Get(ctx context.Context, id string) (*session.Session, error) {
	return r.one(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE id = $1`, id)
}

// CurrentOpen returns the most recently opened session that is still open
func (r *SessionRepository) CurrentOpen(ctx context.Context) (*session.Session, error) {
	return r.one(ctx, `
		SELECT `+sessionColumns+` FROM sessions
		WHERE status = 'open'
		ORDER BY opened_at DESC NULLS LAST
		LIMIT 1
	`)
}

// SaveStatus persists status, opened_at and closed_at
func (r *SessionRepository) SaveStatus(ctx context.Context, s *session.Session) error {
	res, err := r.pool.Exec(ctx, `
		UPDATE sessions SET status = $2, opened_at = $3, closed_at = $4
		WHERE id = $1
	`, s.ID, string(s.Status()), s.OpenedAt(), s.ClosedAt())
	if err != nil {
		return fmt.Errorf("save session status: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return session.ErrNotFound
	}
	return nil
}

func (r *SessionRepository) exists(ctx context.Context, query string, args ...any) (bool, error) {
	var ok bool
	if err := r.pool.QueryRow(ctx, `SELECT EXISTS (`+query+`)`, args...).Scan(&ok); err != nil {
		return false, fmt.Errorf("session query: %w", err)
	}
	return ok, nil
}

// HasOtherAutoStartSession reports another auto-start session that is pending and not over
func (r *SessionRepository) HasOtherAutoStartSession(ctx context.Context, excludingID string) (bool, error) {
	return r.exists(ctx, `
		SELECT 1 FROM sessions
		WHERE id <> $1 AND auto_start AND status = 'pending' AND end_time > NOW()
	`, excludingID)
}

// IsSessionOpen reports whether any session is open
func (r *SessionRepository) IsSessionOpen(ctx context.Context) (bool, error) {
	return r.exists(ctx, `SELECT 1 FROM sessions WHERE status = 'open'`)
}

// HasOtherAutoStopSession reports another open auto-stop session
func (r *SessionRepository) HasOtherAutoStopSession(ctx context.Context, excludingID string) (bool, error) {
	return r.exists(ctx, `
		SELECT 1 FROM sessions
		WHERE id <> $1 AND auto_stop AND status = 'open'
	`, excludingID)
}
