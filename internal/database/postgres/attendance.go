package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/kozaktomas/attendance-tracker/internal/attendance"
)

// AttendanceRepository provides PostgreSQL-backed attendance storage
type AttendanceRepository struct {
	pool *Pool
}

// NewAttendanceRepository creates a new PostgreSQL attendance repository
func NewAttendanceRepository(pool *Pool) *AttendanceRepository {
	return &AttendanceRepository{pool: pool}
}

const attendanceColumns = `
	id, student_id, session_id, status, method, confidence, note,
	marked_at, last_seen, original_status, original_note, created_at, updated_at`

func scanRecordRow(scanner interface{ Scan(...any) error }) (*attendance.Record, error) {
	var rec attendance.Record
	var status, method, originalStatus, originalNote string
	var markedAt, lastSeen sql.NullTime

	if err := scanner.Scan(
		&rec.ID,
		&rec.StudentID,
		&rec.SessionID,
		&status,
		&method,
		&rec.Confidence,
		&rec.Note,
		&markedAt,
		&lastSeen,
		&originalStatus,
		&originalNote,
		&rec.CreatedAt,
		&rec.UpdatedAt,
	); err != nil {
		return nil, fmt.Errorf("scan attendance: %w", err)
	}

	var err error
	if rec.Status, err = attendance.ParseStatus(status); err != nil {
		return nil, err
	}
	if rec.Method, err = attendance.ParseMethod(method); err != nil {
		return nil, err
	}
	orig, err := attendance.ParseStatus(originalStatus)
	if err != nil {
		return nil, err
	}
	rec.MarkedAt = timePtr(markedAt)
	rec.LastSeen = timePtr(lastSeen)
	rec.RestoreBaseline(orig, originalNote)
	return &rec, nil
}

func (r *AttendanceRepository) one(ctx context.Context, query string, args ...any) (*attendance.Record, error) {
	rec, err := scanRecordRow(r.pool.QueryRow(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, attendance.ErrNotFound
	}
	return rec, err
}

// Find returns the record of a student in a session
func (r *AttendanceRepository) Find(ctx context.Context, studentID, sessionID string) (*attendance.Record, error) {
	return r.one(ctx, `
		SELECT `+attendanceColumns+` FROM attendance
		WHERE student_id = $1 AND session_id = $2
	`, studentID, sessionID)
}

// Get returns a record by id
func (r *AttendanceRepository) Get(ctx context.Context, id string) (*attendance.Record, error) {
	return r.one(ctx, `SELECT `+attendanceColumns+` FROM attendance WHERE id = $1`, id)
}

// Save inserts or updates a record together with its committed baseline
func (r *AttendanceRepository) Save(ctx context.Context, rec *attendance.Record) error {
	query := `
		INSERT INTO attendance (` + attendanceColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			method = EXCLUDED.method,
			confidence = EXCLUDED.confidence,
			note = EXCLUDED.note,
			marked_at = EXCLUDED.marked_at,
			last_seen = EXCLUDED.last_seen,
			original_status = EXCLUDED.original_status,
			original_note = EXCLUDED.original_note,
			updated_at = EXCLUDED.updated_at
	`
	_, err := r.pool.Exec(ctx, query,
		rec.ID, rec.StudentID, rec.SessionID, string(rec.Status), string(rec.Method),
		rec.Confidence, rec.Note, rec.MarkedAt, rec.LastSeen,
		string(rec.OriginalStatus()), rec.OriginalNote(), rec.CreatedAt, rec.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("save attendance: %w", err)
	}
	return nil
}

// ListBySession returns all records of a session ordered by creation
func (r *AttendanceRepository) ListBySession(ctx context.Context, sessionID string) ([]*attendance.Record, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+attendanceColumns+` FROM attendance
		WHERE session_id = $1
		ORDER BY created_at, id
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list attendance: %w", err)
	}
	defer rows.Close()

	var out []*attendance.Record
	for rows.Next() {
		rec, err := scanRecordRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate attendance: %w", err)
	}
	return out, nil
}
