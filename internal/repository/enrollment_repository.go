package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/enroll-api/internal/models"
	appErrors "github.com/noah-isme/enroll-api/pkg/errors"
)

// EnrollmentRepository handles persistence of the enrollment ledger. The
// (student_id, course_id) composite primary key is the single source of
// truth for uniqueness: concurrent inserts for the same pair are serialized
// by the database and exactly one caller sees the constraint violation.
type EnrollmentRepository struct {
	db *sqlx.DB
}

// NewEnrollmentRepository constructs the repository.
func NewEnrollmentRepository(db *sqlx.DB) *EnrollmentRepository {
	return &EnrollmentRepository{db: db}
}

// Create inserts the enrollment pair. A unique violation becomes a conflict,
// a foreign key violation becomes a not-found for the missing side.
func (r *EnrollmentRepository) Create(ctx context.Context, studentID, courseID int64) error {
	const query = `INSERT INTO enrollments (student_id, course_id) VALUES ($1, $2)`
	if _, err := r.db.ExecContext(ctx, query, studentID, courseID); err != nil {
		if pqErr, ok := err.(*pq.Error); ok {
			switch pqErr.Code {
			case "23505":
				return appErrors.Clone(appErrors.ErrConflict, "student already enrolled in course")
			case "23503":
				if pqErr.Constraint == "enrollments_course_id_fkey" {
					return appErrors.Clone(appErrors.ErrNotFound, "course not found")
				}
				return appErrors.Clone(appErrors.ErrNotFound, "student not found")
			}
		}
		return fmt.Errorf("create enrollment: %w", err)
	}
	return nil
}

// Delete removes the enrollment pair. Returns sql.ErrNoRows when no such
// enrollment existed, so callers see that nothing happened.
func (r *EnrollmentRepository) Delete(ctx context.Context, studentID, courseID int64) error {
	const query = `DELETE FROM enrollments WHERE student_id = $1 AND course_id = $2`
	res, err := r.db.ExecContext(ctx, query, studentID, courseID)
	if err != nil {
		return fmt.Errorf("delete enrollment: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete enrollment rows: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// ListCoursesForStudent returns the courses a student is enrolled in,
// ordered by course name.
func (r *EnrollmentRepository) ListCoursesForStudent(ctx context.Context, studentID int64) ([]models.Course, error) {
	const query = `SELECT c.id, c.course_code, c.name, c.description, c.duration_hours
        FROM courses c
        JOIN enrollments e ON e.course_id = c.id
        WHERE e.student_id = $1
        ORDER BY c.name`
	var courses []models.Course
	if err := r.db.SelectContext(ctx, &courses, query, studentID); err != nil {
		return nil, fmt.Errorf("list courses for student: %w", err)
	}
	return courses, nil
}

// ListStudentsForCourse returns the students enrolled in a course joined
// with their identity email, ordered by last name then first name.
func (r *EnrollmentRepository) ListStudentsForCourse(ctx context.Context, courseID int64) ([]models.StudentSearchResult, error) {
	const query = `SELECT s.id, s.first_name, s.last_name, u.email
        FROM students s
        JOIN users u ON u.id = s.user_id
        JOIN enrollments e ON e.student_id = s.id
        WHERE e.course_id = $1
        ORDER BY s.last_name, s.first_name`
	var students []models.StudentSearchResult
	if err := r.db.SelectContext(ctx, &students, query, courseID); err != nil {
		return nil, fmt.Errorf("list students for course: %w", err)
	}
	return students, nil
}

// ListAll returns the administrative audit view: every enrollment joined
// with student, identity email and course, in one consistent read.
func (r *EnrollmentRepository) ListAll(ctx context.Context) ([]models.EnrollmentRecord, error) {
	const query = `SELECT e.student_id, e.course_id, s.first_name, s.last_name, u.email, c.course_code, c.name AS course_name
        FROM enrollments e
        JOIN students s ON s.id = e.student_id
        JOIN users u ON u.id = s.user_id
        JOIN courses c ON c.id = e.course_id
        ORDER BY s.last_name, c.name`
	var records []models.EnrollmentRecord
	if err := r.db.SelectContext(ctx, &records, query); err != nil {
		return nil, fmt.Errorf("list all enrollments: %w", err)
	}
	return records, nil
}

// CountForPair reports how many ledger rows exist for the pair. Only used by
// tests and diagnostics; the composite key keeps this at zero or one.
func (r *EnrollmentRepository) CountForPair(ctx context.Context, studentID, courseID int64) (int, error) {
	const query = `SELECT COUNT(*) FROM enrollments WHERE student_id = $1 AND course_id = $2`
	var count int
	if err := r.db.GetContext(ctx, &count, query, studentID, courseID); err != nil {
		return 0, fmt.Errorf("count enrollment pair: %w", err)
	}
	return count, nil
}
