package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/pgvector/pgvector-go"

	"github.com/kozaktomas/attendance-tracker/internal/database"
	"github.com/kozaktomas/attendance-tracker/internal/facematch"
)

// StudentRepository provides PostgreSQL-backed roster storage
type StudentRepository struct {
	pool *Pool
}

// NewStudentRepository creates a new PostgreSQL student repository
func NewStudentRepository(pool *Pool) *StudentRepository {
	return &StudentRepository{pool: pool}
}

const studentColumns = `
	s.id, s.name, s.course, s.email, s.histogram, s.embedding, s.trained_at,
	(SELECT COUNT(*) FROM enrollment_images i WHERE i.student_id = s.id),
	s.created_at, s.updated_at`

func scanStudentRow(scanner interface{ Scan(...any) error }) (database.StoredStudent, error) {
	var st database.StoredStudent
	var hist, emb *pgvector.Vector
	var trainedAt sql.NullTime

	if err := scanner.Scan(
		&st.ID,
		&st.Name,
		&st.Course,
		&st.Email,
		&hist,
		&emb,
		&trainedAt,
		&st.ImageCount,
		&st.CreatedAt,
		&st.UpdatedAt,
	); err != nil {
		return st, fmt.Errorf("scan student: %w", err)
	}

	st.Histogram = vectorSlice(hist)
	st.Embedding = vectorSlice(emb)
	st.TrainedAt = timePtr(trainedAt)
	return st, nil
}

// GetStudent returns a student by id
func (r *StudentRepository) GetStudent(ctx context.Context, id string) (*database.StoredStudent, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+studentColumns+` FROM students s WHERE s.id = $1`, id)
	st, err := scanStudentRow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", database.ErrStudentNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return &st, nil
}

// ListStudents returns all students ordered by name
func (r *StudentRepository) ListStudents(ctx context.Context) ([]database.StoredStudent, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+studentColumns+` FROM students s ORDER BY s.name, s.id`)
	if err != nil {
		return nil, fmt.Errorf("list students: %w", err)
	}
	defer rows.Close()

	var students []database.StoredStudent
	for rows.Next() {
		st, err := scanStudentRow(rows)
		if err != nil {
			return nil, err
		}
		students = append(students, st)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate students: %w", err)
	}
	return students, nil
}

// StudentImages returns the enrollment images of a student in upload order
func (r *StudentRepository) StudentImages(ctx context.Context, id string) ([][]byte, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT data FROM enrollment_images
		WHERE student_id = $1
		ORDER BY position
	`, id)
	if err != nil {
		return nil, fmt.Errorf("list images: %w", err)
	}
	defer rows.Close()

	var images [][]byte
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("scan image: %w", err)
		}
		images = append(images, data)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate images: %w", err)
	}
	return images, nil
}

// StudentIDsInCourse returns the ids of students enrolled in a course
func (r *StudentRepository) StudentIDsInCourse(ctx context.Context, courseID string) ([]string, error) {
	rows, err := r.pool.Query(ctx, `SELECT id FROM students WHERE course = $1 ORDER BY name, id`, courseID)
	if err != nil {
		return nil, fmt.Errorf("list course students: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan student id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate student ids: %w", err)
	}
	return ids, nil
}

// FindSimilar returns trained students ordered by cosine distance
func (r *StudentRepository) FindSimilar(ctx context.Context, embedding []float32, limit int, excludeID string) ([]database.SimilarStudent, error) {
	query := `
		SELECT id, name, embedding <=> $1::vector AS distance
		FROM students
		WHERE embedding IS NOT NULL AND id <> $2
		ORDER BY embedding <=> $1::vector
		LIMIT $3
	`

	rows, err := r.pool.Query(ctx, query, pgvector.NewVector(embedding), excludeID, limit)
	if err != nil {
		return nil, fmt.Errorf("find similar students: %w", err)
	}
	defer rows.Close()

	var out []database.SimilarStudent
	for rows.Next() {
		var s database.SimilarStudent
		if err := rows.Scan(&s.StudentID, &s.Name, &s.Distance); err != nil {
			return nil, fmt.Errorf("scan similar student: %w", err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate similar students: %w", err)
	}
	return out, nil
}

// UpsertStudent inserts a student or updates its roster fields
func (r *StudentRepository) UpsertStudent(ctx context.Context, s *database.StoredStudent) error {
	query := `
		INSERT INTO students (id, name, course, email)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			course = EXCLUDED.course,
			email = EXCLUDED.email,
			updated_at = NOW()
	`
	if _, err := r.pool.Exec(ctx, query, s.ID, s.Name, s.Course, s.Email); err != nil {
		return fmt.Errorf("upsert student: %w", err)
	}
	return nil
}

// DeleteStudent removes a student; images and attendance cascade
func (r *StudentRepository) DeleteStudent(ctx context.Context, id string) error {
	res, err := r.pool.Exec(ctx, `DELETE FROM students WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete student: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", database.ErrStudentNotFound, id)
	}
	return nil
}

// ReplaceImages swaps the enrollment images and clears the trained representation
func (r *StudentRepository) ReplaceImages(ctx context.Context, studentID string, images [][]byte) error {
	tx, err := r.pool.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		UPDATE students
		SET histogram = NULL, embedding = NULL, trained_at = NULL, updated_at = NOW()
		WHERE id = $1
	`, studentID)
	if err != nil {
		return fmt.Errorf("clear representation: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", database.ErrStudentNotFound, studentID)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM enrollment_images WHERE student_id = $1`, studentID); err != nil {
		return fmt.Errorf("delete images: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO enrollment_images (student_id, position, data)
		VALUES ($1, $2, $3)
	`)
	if err != nil {
		return fmt.Errorf("prepare image insert: %w", err)
	}
	defer stmt.Close()

	for i, data := range images {
		if _, err := stmt.ExecContext(ctx, studentID, i, data); err != nil {
			return fmt.Errorf("insert image %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit images: %w", err)
	}
	return nil
}

// ClearRepresentation nulls the histogram or embedding column
func (r *StudentRepository) ClearRepresentation(ctx context.Context, studentID string, kind facematch.Kind) error {
	clearHist, clearEmb := kind == facematch.KindHistogram, kind == facematch.KindEmbedding
	query := `
		UPDATE students SET
			histogram = CASE WHEN $2 THEN NULL ELSE histogram END,
			embedding = CASE WHEN $3 THEN NULL ELSE embedding END,
			trained_at = CASE
				WHEN ($2 OR histogram IS NULL) AND ($3 OR embedding IS NULL) THEN NULL
				ELSE trained_at
			END,
			updated_at = NOW()
		WHERE id = $1
	`
	res, err := r.pool.Exec(ctx, query, studentID, clearHist, clearEmb)
	if err != nil {
		return fmt.Errorf("clear representation: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", database.ErrStudentNotFound, studentID)
	}
	return nil
}

// SaveRepresentation stores trained vectors; nil vectors keep the stored value
func (r *StudentRepository) SaveRepresentation(ctx context.Context, studentID string, histogram, embedding []float32, trainedAt time.Time) error {
	query := `
		UPDATE students SET
			histogram = COALESCE($2::vector, histogram),
			embedding = COALESCE($3::vector, embedding),
			trained_at = $4,
			updated_at = NOW()
		WHERE id = $1
	`
	res, err := r.pool.Exec(ctx, query, studentID, nullableVector(histogram), nullableVector(embedding), trainedAt)
	if err != nil {
		return fmt.Errorf("save representation: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", database.ErrStudentNotFound, studentID)
	}
	return nil
}
