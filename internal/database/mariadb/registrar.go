package mariadb

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/kozaktomas/attendance-tracker/internal/database"
)

// ListRegistrarStudents reads active enrollments from the registrar's
// enrollments view. An empty course returns every course.
func (p *Pool) ListRegistrarStudents(ctx context.Context, course string) ([]database.RegistrarStudent, error) {
	query := `
		SELECT student_no, first_name, last_name, course_code, email
		FROM enrollments
		WHERE active = 1 AND (? = '' OR course_code = ?)
		ORDER BY course_code, last_name, first_name
	`
	rows, err := p.db.QueryContext(ctx, query, course, course)
	if err != nil {
		return nil, fmt.Errorf("query registrar enrollments: %w", err)
	}
	defer rows.Close()

	var out []database.RegistrarStudent
	for rows.Next() {
		var s database.RegistrarStudent
		var first, last string
		var email sql.NullString
		if err := rows.Scan(&s.ID, &first, &last, &s.Course, &email); err != nil {
			return nil, fmt.Errorf("scan enrollment: %w", err)
		}
		s.Name = strings.TrimSpace(first + " " + last)
		s.Email = email.String
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate enrollments: %w", err)
	}
	return out, nil
}

var _ database.RegistrarReader = (*Pool)(nil)
