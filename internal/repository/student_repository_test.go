package repository

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/enroll-api/internal/models"
	appErrors "github.com/noah-isme/enroll-api/pkg/errors"
)

func newStudentRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func TestStudentRepositoryCreateWithUser(t *testing.T) {
	db, mock, cleanup := newStudentRepoMock(t)
	defer cleanup()

	repo := NewStudentRepository(db)
	dob := time.Date(2000, 5, 14, 0, 0, 0, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO users (email, password_hash, role)")).
		WithArgs("ada@example.com", "hashed", models.RoleStudent).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(3, time.Now()))
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO students (user_id, first_name, last_name, date_of_birth)")).
		WithArgs(int64(3), "Ada", "Lovelace", dob).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(9))
	mock.ExpectCommit()

	user := &models.User{Email: "ada@example.com", PasswordHash: "hashed", Role: models.RoleStudent}
	student := &models.Student{FirstName: "Ada", LastName: "Lovelace", DateOfBirth: dob}
	require.NoError(t, repo.CreateWithUser(context.Background(), user, student))
	require.Equal(t, int64(3), user.ID)
	require.Equal(t, int64(3), student.UserID)
	require.Equal(t, int64(9), student.ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStudentRepositoryCreateWithUserDuplicateEmail(t *testing.T) {
	db, mock, cleanup := newStudentRepoMock(t)
	defer cleanup()

	repo := NewStudentRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO users")).
		WillReturnError(&pq.Error{Code: "23505", Constraint: "users_email_key"})
	mock.ExpectRollback()

	user := &models.User{Email: "dup@example.com", PasswordHash: "hashed", Role: models.RoleStudent}
	student := &models.Student{FirstName: "Ada", LastName: "Lovelace", DateOfBirth: time.Now().AddDate(-20, 0, 0)}
	err := repo.CreateWithUser(context.Background(), user, student)
	var appErr *appErrors.Error
	require.True(t, errors.As(err, &appErr))
	require.Equal(t, appErrors.ErrConflict.Status, appErr.Status)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStudentRepositoryDeleteOwningUser(t *testing.T) {
	db, mock, cleanup := newStudentRepoMock(t)
	defer cleanup()

	repo := NewStudentRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT user_id FROM students WHERE id = $1")).
		WithArgs(int64(9)).
		WillReturnRows(sqlmock.NewRows([]string{"user_id"}).AddRow(3))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM users WHERE id = $1")).
		WithArgs(int64(3)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, repo.DeleteOwningUser(context.Background(), 9))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStudentRepositoryDeleteOwningUserMissing(t *testing.T) {
	db, mock, cleanup := newStudentRepoMock(t)
	defer cleanup()

	repo := NewStudentRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT user_id FROM students WHERE id = $1")).
		WithArgs(int64(404)).
		WillReturnError(sql.ErrNoRows)
	mock.ExpectRollback()

	require.ErrorIs(t, repo.DeleteOwningUser(context.Background(), 404), sql.ErrNoRows)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStudentRepositoryList(t *testing.T) {
	db, mock, cleanup := newStudentRepoMock(t)
	defer cleanup()

	repo := NewStudentRepository(db)
	rows := sqlmock.NewRows([]string{"id", "first_name", "last_name", "date_of_birth", "email"}).
		AddRow(1, "Ada", "Lovelace", time.Date(2000, 5, 14, 0, 0, 0, 0, time.UTC), "ada@example.com")
	mock.ExpectQuery(regexp.QuoteMeta("ORDER BY s.id ASC")).
		WithArgs(20, 0).
		WillReturnRows(rows)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM students")).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	students, total, err := repo.List(context.Background(), 0, 0)
	require.NoError(t, err)
	require.Len(t, students, 1)
	require.Equal(t, 1, total)
	require.Equal(t, "ada@example.com", students[0].Email)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStudentRepositorySearchExcludesEnrolled(t *testing.T) {
	db, mock, cleanup := newStudentRepoMock(t)
	defer cleanup()

	repo := NewStudentRepository(db)
	rows := sqlmock.NewRows([]string{"id", "first_name", "last_name", "email"}).
		AddRow(1, "Ada", "Lovelace", "ada@example.com")
	mock.ExpectQuery(regexp.QuoteMeta("AND s.id NOT IN (SELECT student_id FROM enrollments WHERE course_id = $2)")).
		WithArgs("%ada%", int64(2)).
		WillReturnRows(rows)

	results, err := repo.Search(context.Background(), "ada", 2)
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Equal(t, "Lovelace", results[0].LastName)
	require.NoError(t, mock.ExpectationsWereMet())
}
