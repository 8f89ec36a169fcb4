package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/enroll-api/internal/models"
)

// UserRepository provides database access for identity records.
type UserRepository struct {
	db *sqlx.DB
}

// NewUserRepository creates a new instance of UserRepository.
func NewUserRepository(db *sqlx.DB) *UserRepository {
	return &UserRepository{db: db}
}

// FindByEmail returns a user by email address.
func (r *UserRepository) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	const query = `SELECT id, email, password_hash, role, created_at FROM users WHERE email = $1 LIMIT 1`
	var user models.User
	if err := r.db.GetContext(ctx, &user, query, email); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find user by email: %w", err)
	}
	return &user, nil
}

// FindByID returns a user by identifier.
func (r *UserRepository) FindByID(ctx context.Context, id int64) (*models.User, error) {
	const query = `SELECT id, email, password_hash, role, created_at FROM users WHERE id = $1 LIMIT 1`
	var user models.User
	if err := r.db.GetContext(ctx, &user, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find user by id: %w", err)
	}
	return &user, nil
}

// ExistsByEmail checks whether an email address is already registered.
func (r *UserRepository) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	const query = `SELECT 1 FROM users WHERE email = $1 LIMIT 1`
	var exists int
	if err := r.db.GetContext(ctx, &exists, query, email); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check email: %w", err)
	}
	return true, nil
}

// CreateRefreshToken persists a refresh token entry.
func (r *UserRepository) CreateRefreshToken(ctx context.Context, token *models.RefreshToken) error {
	if token.ID == "" {
		token.ID = uuid.NewString()
	}
	if token.CreatedAt.IsZero() {
		token.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO refresh_tokens (id, user_id, token, expires_at, created_at, revoked, revoked_at, ip_address, user_agent) VALUES (:id, :user_id, :token, :expires_at, :created_at, :revoked, :revoked_at, :ip_address, :user_agent)`
	if _, err := r.db.NamedExecContext(ctx, query, token); err != nil {
		return fmt.Errorf("create refresh token: %w", err)
	}
	return nil
}

// FindRefreshToken returns a refresh token by token string.
func (r *UserRepository) FindRefreshToken(ctx context.Context, token string) (*models.RefreshToken, error) {
	const query = `SELECT id, user_id, token, expires_at, created_at, revoked, revoked_at, ip_address, user_agent FROM refresh_tokens WHERE token = $1 LIMIT 1`
	var rt models.RefreshToken
	if err := r.db.GetContext(ctx, &rt, query, token); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find refresh token: %w", err)
	}
	return &rt, nil
}

// RevokeRefreshToken marks a token as revoked.
func (r *UserRepository) RevokeRefreshToken(ctx context.Context, id string, revokedAt time.Time) error {
	const query = `UPDATE refresh_tokens SET revoked = TRUE, revoked_at = $2 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, revokedAt); err != nil {
		return fmt.Errorf("revoke refresh token: %w", err)
	}
	return nil
}

// RevokeUserRefreshTokens revokes all refresh tokens for a user.
func (r *UserRepository) RevokeUserRefreshTokens(ctx context.Context, userID int64) error {
	const query = `UPDATE refresh_tokens SET revoked = TRUE, revoked_at = $2 WHERE user_id = $1 AND revoked = FALSE`
	if _, err := r.db.ExecContext(ctx, query, userID, time.Now().UTC()); err != nil {
		return fmt.Errorf("revoke user refresh tokens: %w", err)
	}
	return nil
}

// CreateAuditLog stores an audit log entry.
func (r *UserRepository) CreateAuditLog(ctx context.Context, log *models.AuditLog) error {
	if log.ID == "" {
		log.ID = uuid.NewString()
	}
	if log.CreatedAt.IsZero() {
		log.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO audit_logs (id, user_id, action, resource, detail, ip_address, user_agent, created_at) VALUES (:id, :user_id, :action, :resource, :detail, :ip_address, :user_agent, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, log); err != nil {
		return fmt.Errorf("create audit log: %w", err)
	}
	return nil
}
