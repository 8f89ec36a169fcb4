package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/enroll-api/internal/models"
	appErrors "github.com/noah-isme/enroll-api/pkg/errors"
)

// CourseRepository handles persistence of catalog entries.
type CourseRepository struct {
	db *sqlx.DB
}

// NewCourseRepository constructs the repository.
func NewCourseRepository(db *sqlx.DB) *CourseRepository {
	return &CourseRepository{db: db}
}

// translateCourseConstraint maps the catalog's unique constraints onto
// distinguishable conflicts. Backstop for races that slip past the service
// pre-checks; the constraint names come from the schema.
func translateCourseConstraint(err error) error {
	pqErr, ok := err.(*pq.Error)
	if !ok || pqErr.Code != "23505" {
		return nil
	}
	switch pqErr.Constraint {
	case "courses_course_code_key":
		return appErrors.Clone(appErrors.ErrConflict, "course code already in use")
	case "courses_name_key":
		return appErrors.Clone(appErrors.ErrConflict, "course name already exists")
	}
	return appErrors.Clone(appErrors.ErrConflict, "course already exists")
}

// Create inserts a catalog entry and fills in the generated id.
func (r *CourseRepository) Create(ctx context.Context, course *models.Course) error {
	const query = `INSERT INTO courses (course_code, name, description, duration_hours) VALUES ($1, $2, $3, $4) RETURNING id`
	if err := r.db.QueryRowxContext(ctx, query, course.CourseCode, course.Name, course.Description, course.DurationHours).Scan(&course.ID); err != nil {
		if conflict := translateCourseConstraint(err); conflict != nil {
			return conflict
		}
		return fmt.Errorf("create course: %w", err)
	}
	return nil
}

// FindByID returns a course by its identifier.
func (r *CourseRepository) FindByID(ctx context.Context, id int64) (*models.Course, error) {
	const query = `SELECT id, course_code, name, description, duration_hours FROM courses WHERE id = $1 LIMIT 1`
	var course models.Course
	if err := r.db.GetContext(ctx, &course, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find course by id: %w", err)
	}
	return &course, nil
}

// ExistsByCode checks uniqueness of the course code, optionally excluding one record.
func (r *CourseRepository) ExistsByCode(ctx context.Context, code string, excludeID int64) (bool, error) {
	query := `SELECT 1 FROM courses WHERE course_code = $1`
	args := []interface{}{code}
	if excludeID > 0 {
		query += ` AND id <> $2`
		args = append(args, excludeID)
	}
	query += ` LIMIT 1`
	var exists int
	if err := r.db.GetContext(ctx, &exists, query, args...); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check course code: %w", err)
	}
	return true, nil
}

// ExistsByName checks uniqueness of the course name, optionally excluding one record.
func (r *CourseRepository) ExistsByName(ctx context.Context, name string, excludeID int64) (bool, error) {
	query := `SELECT 1 FROM courses WHERE name = $1`
	args := []interface{}{name}
	if excludeID > 0 {
		query += ` AND id <> $2`
		args = append(args, excludeID)
	}
	query += ` LIMIT 1`
	var exists int
	if err := r.db.GetContext(ctx, &exists, query, args...); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check course name: %w", err)
	}
	return true, nil
}

// Update rewrites the catalog entry.
func (r *CourseRepository) Update(ctx context.Context, course *models.Course) error {
	const query = `UPDATE courses SET course_code = $2, name = $3, description = $4, duration_hours = $5 WHERE id = $1`
	res, err := r.db.ExecContext(ctx, query, course.ID, course.CourseCode, course.Name, course.Description, course.DurationHours)
	if err != nil {
		if conflict := translateCourseConstraint(err); conflict != nil {
			return conflict
		}
		return fmt.Errorf("update course: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update course rows: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// Delete removes a course; enrollments referencing it cascade away. Returns
// sql.ErrNoRows when the course does not exist.
func (r *CourseRepository) Delete(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM courses WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete course: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete course rows: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// List returns a page of courses ordered by id ascending with the total count.
// A page beyond the last simply yields an empty slice.
func (r *CourseRepository) List(ctx context.Context, page, limit int) ([]models.Course, int, error) {
	if page < 1 {
		page = 1
	}
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	offset := (page - 1) * limit

	const query = `SELECT id, course_code, name, description, duration_hours FROM courses ORDER BY id ASC LIMIT $1 OFFSET $2`
	var courses []models.Course
	if err := r.db.SelectContext(ctx, &courses, query, limit, offset); err != nil {
		return nil, 0, fmt.Errorf("list courses: %w", err)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM courses`); err != nil {
		return nil, 0, fmt.Errorf("count courses: %w", err)
	}
	return courses, total, nil
}

// ListForStudentView returns every course annotated with the student's
// enrollment state in a single left outer join, ordered by name.
func (r *CourseRepository) ListForStudentView(ctx context.Context, studentID int64) ([]models.CourseWithEnrollment, error) {
	const query = `SELECT c.id, c.course_code, c.name, c.description, c.duration_hours,
        CASE WHEN e.student_id IS NOT NULL THEN TRUE ELSE FALSE END AS is_enrolled
        FROM courses c
        LEFT JOIN enrollments e ON e.course_id = c.id AND e.student_id = $1
        ORDER BY c.name`
	var courses []models.CourseWithEnrollment
	if err := r.db.SelectContext(ctx, &courses, query, studentID); err != nil {
		return nil, fmt.Errorf("list courses for student view: %w", err)
	}
	return courses, nil
}

// SearchUnenrolled matches courses by name or code, case-insensitively,
// excluding those the student is already enrolled in, capped at 10 rows.
func (r *CourseRepository) SearchUnenrolled(ctx context.Context, q string, studentID int64) ([]models.CourseSearchResult, error) {
	const query = `SELECT c.id, c.name, c.course_code
        FROM courses c
        WHERE (c.name ILIKE $1 OR c.course_code ILIKE $1)
          AND c.id NOT IN (SELECT course_id FROM enrollments WHERE student_id = $2)
        LIMIT 10`
	pattern := "%" + strings.TrimSpace(q) + "%"
	var courses []models.CourseSearchResult
	if err := r.db.SelectContext(ctx, &courses, query, pattern, studentID); err != nil {
		return nil, fmt.Errorf("search unenrolled courses: %w", err)
	}
	return courses, nil
}
