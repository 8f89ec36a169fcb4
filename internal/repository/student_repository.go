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

// StudentRepository handles persistence of student profiles and their owning
// identity rows.
type StudentRepository struct {
	db *sqlx.DB
}

// NewStudentRepository constructs the repository.
func NewStudentRepository(db *sqlx.DB) *StudentRepository {
	return &StudentRepository{db: db}
}

// CreateWithUser inserts the user and its student profile inside a single
// transaction; both rows commit together or neither does.
func (r *StudentRepository) CreateWithUser(ctx context.Context, user *models.User, student *models.Student) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin registration: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	const userQuery = `INSERT INTO users (email, password_hash, role) VALUES ($1, $2, $3) RETURNING id, created_at`
	if err := tx.QueryRowxContext(ctx, userQuery, user.Email, user.PasswordHash, user.Role).Scan(&user.ID, &user.CreatedAt); err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
			return appErrors.Clone(appErrors.ErrConflict, "email already in use")
		}
		return fmt.Errorf("insert user: %w", err)
	}

	student.UserID = user.ID
	const studentQuery = `INSERT INTO students (user_id, first_name, last_name, date_of_birth) VALUES ($1, $2, $3, $4) RETURNING id`
	if err := tx.QueryRowxContext(ctx, studentQuery, student.UserID, student.FirstName, student.LastName, student.DateOfBirth).Scan(&student.ID); err != nil {
		return fmt.Errorf("insert student: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit registration: %w", err)
	}
	return nil
}

// List returns a page of students joined with their identity email, ordered
// by student id ascending, plus the total row count.
func (r *StudentRepository) List(ctx context.Context, page, limit int) ([]models.StudentDetail, int, error) {
	if page < 1 {
		page = 1
	}
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	offset := (page - 1) * limit

	const query = `SELECT s.id, s.first_name, s.last_name, s.date_of_birth, u.email
        FROM students s
        JOIN users u ON u.id = s.user_id
        ORDER BY s.id ASC
        LIMIT $1 OFFSET $2`
	var students []models.StudentDetail
	if err := r.db.SelectContext(ctx, &students, query, limit, offset); err != nil {
		return nil, 0, fmt.Errorf("list students: %w", err)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM students`); err != nil {
		return nil, 0, fmt.Errorf("count students: %w", err)
	}
	return students, total, nil
}

// FindByID returns a student by its identifier.
func (r *StudentRepository) FindByID(ctx context.Context, id int64) (*models.Student, error) {
	const query = `SELECT id, user_id, first_name, last_name, date_of_birth FROM students WHERE id = $1 LIMIT 1`
	var student models.Student
	if err := r.db.GetContext(ctx, &student, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find student by id: %w", err)
	}
	return &student, nil
}

// FindByUserID resolves the student profile owned by an identity.
func (r *StudentRepository) FindByUserID(ctx context.Context, userID int64) (*models.Student, error) {
	const query = `SELECT id, user_id, first_name, last_name, date_of_birth FROM students WHERE user_id = $1 LIMIT 1`
	var student models.Student
	if err := r.db.GetContext(ctx, &student, query, userID); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find student by user id: %w", err)
	}
	return &student, nil
}

// Update rewrites the mutable profile fields. Returns sql.ErrNoRows when the
// student does not exist.
func (r *StudentRepository) Update(ctx context.Context, student *models.Student) error {
	const query = `UPDATE students SET first_name = $2, last_name = $3, date_of_birth = $4 WHERE id = $1`
	res, err := r.db.ExecContext(ctx, query, student.ID, student.FirstName, student.LastName, student.DateOfBirth)
	if err != nil {
		return fmt.Errorf("update student: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update student rows: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// DeleteOwningUser removes the user row that owns the student; the student
// and its enrollments go with it via ON DELETE CASCADE. Returns
// sql.ErrNoRows when the student does not exist.
func (r *StudentRepository) DeleteOwningUser(ctx context.Context, studentID int64) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin student delete: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	var userID int64
	if err := tx.GetContext(ctx, &userID, `SELECT user_id FROM students WHERE id = $1`, studentID); err != nil {
		if err == sql.ErrNoRows {
			return err
		}
		return fmt.Errorf("resolve owning user: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM users WHERE id = $1`, userID); err != nil {
		return fmt.Errorf("delete owning user: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit student delete: %w", err)
	}
	return nil
}

// Search matches students by first name, last name or email, excluding those
// already enrolled in the given course, capped at 10 rows.
func (r *StudentRepository) Search(ctx context.Context, q string, excludeCourseID int64) ([]models.StudentSearchResult, error) {
	const query = `SELECT s.id, s.first_name, s.last_name, u.email
        FROM students s
        JOIN users u ON u.id = s.user_id
        WHERE (s.first_name ILIKE $1 OR s.last_name ILIKE $1 OR u.email ILIKE $1)
          AND s.id NOT IN (SELECT student_id FROM enrollments WHERE course_id = $2)
        LIMIT 10`
	pattern := "%" + strings.TrimSpace(q) + "%"
	var students []models.StudentSearchResult
	if err := r.db.SelectContext(ctx, &students, query, pattern, excludeCourseID); err != nil {
		return nil, fmt.Errorf("search students: %w", err)
	}
	return students, nil
}
