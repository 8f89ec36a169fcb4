package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/enroll-api/internal/models"
)

func newUserRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func TestUserRepositoryFindByEmail(t *testing.T) {
	db, mock, cleanup := newUserRepoMock(t)
	defer cleanup()

	repo := NewUserRepository(db)
	rows := sqlmock.NewRows([]string{"id", "email", "password_hash", "role", "created_at"}).
		AddRow(1, "ada@example.com", "hashed", "STUDENT", time.Now())
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, email, password_hash, role, created_at FROM users WHERE email = $1")).
		WithArgs("ada@example.com").
		WillReturnRows(rows)

	user, err := repo.FindByEmail(context.Background(), "ada@example.com")
	require.NoError(t, err)
	require.Equal(t, int64(1), user.ID)
	require.Equal(t, models.RoleStudent, user.Role)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRepositoryFindByEmailMissing(t *testing.T) {
	db, mock, cleanup := newUserRepoMock(t)
	defer cleanup()

	repo := NewUserRepository(db)
	mock.ExpectQuery(regexp.QuoteMeta("FROM users WHERE email = $1")).
		WithArgs("ghost@example.com").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.FindByEmail(context.Background(), "ghost@example.com")
	require.ErrorIs(t, err, sql.ErrNoRows)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRepositoryExistsByEmail(t *testing.T) {
	db, mock, cleanup := newUserRepoMock(t)
	defer cleanup()

	repo := NewUserRepository(db)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT 1 FROM users WHERE email = $1")).
		WithArgs("ada@example.com").
		WillReturnRows(sqlmock.NewRows([]string{"?column?"}).AddRow(1))

	exists, err := repo.ExistsByEmail(context.Background(), "ada@example.com")
	require.NoError(t, err)
	require.True(t, exists)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT 1 FROM users WHERE email = $1")).
		WithArgs("ghost@example.com").
		WillReturnError(sql.ErrNoRows)

	exists, err = repo.ExistsByEmail(context.Background(), "ghost@example.com")
	require.NoError(t, err)
	require.False(t, exists)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRepositoryCreateRefreshTokenDefaults(t *testing.T) {
	db, mock, cleanup := newUserRepoMock(t)
	defer cleanup()

	repo := NewUserRepository(db)
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO refresh_tokens")).
		WillReturnResult(sqlmock.NewResult(0, 1))

	token := &models.RefreshToken{UserID: 1, Token: "opaque", ExpiresAt: time.Now().Add(time.Hour)}
	require.NoError(t, repo.CreateRefreshToken(context.Background(), token))
	require.NotEmpty(t, token.ID)
	require.False(t, token.CreatedAt.IsZero())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRepositoryCreateAuditLogDefaults(t *testing.T) {
	db, mock, cleanup := newUserRepoMock(t)
	defer cleanup()

	repo := NewUserRepository(db)
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO audit_logs")).
		WillReturnResult(sqlmock.NewResult(0, 1))

	userID := int64(1)
	entry := &models.AuditLog{UserID: &userID, Action: models.AuditActionLogin, Resource: "auth"}
	require.NoError(t, repo.CreateAuditLog(context.Background(), entry))
	require.NotEmpty(t, entry.ID)
	require.False(t, entry.CreatedAt.IsZero())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRepositoryRevokeRefreshToken(t *testing.T) {
	db, mock, cleanup := newUserRepoMock(t)
	defer cleanup()

	repo := NewUserRepository(db)
	now := time.Now().UTC()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE refresh_tokens SET revoked = TRUE, revoked_at = $2 WHERE id = $1")).
		WithArgs("token-id", now).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.RevokeRefreshToken(context.Background(), "token-id", now))
	require.NoError(t, mock.ExpectationsWereMet())
}
