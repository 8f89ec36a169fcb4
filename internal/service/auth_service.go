package service

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/noah-isme/enroll-api/internal/models"
	appErrors "github.com/noah-isme/enroll-api/pkg/errors"
)

type authUserRepository interface {
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	FindByID(ctx context.Context, id int64) (*models.User, error)
	ExistsByEmail(ctx context.Context, email string) (bool, error)
	RevokeUserRefreshTokens(ctx context.Context, userID int64) error
	CreateRefreshToken(ctx context.Context, token *models.RefreshToken) error
	FindRefreshToken(ctx context.Context, token string) (*models.RefreshToken, error)
	RevokeRefreshToken(ctx context.Context, id string, revokedAt time.Time) error
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

type studentCreator interface {
	CreateWithUser(ctx context.Context, user *models.User, student *models.Student) error
}

// AuthConfig defines configuration for authentication flows.
type AuthConfig struct {
	AccessTokenSecret  string
	AccessTokenExpiry  time.Duration
	RefreshTokenExpiry time.Duration
	Issuer             string
	SingleSession      bool
}

// AuthService provides authentication use cases.
type AuthService struct {
	repo      authUserRepository
	students  studentCreator
	validator *validator.Validate
	logger    *zap.Logger
	config    AuthConfig
}

// NewAuthService constructs an AuthService instance.
func NewAuthService(repo authUserRepository, students studentCreator, validate *validator.Validate, logger *zap.Logger, config AuthConfig) *AuthService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &AuthService{repo: repo, students: students, validator: validate, logger: logger, config: config}
}

// Register creates a user with the student role and its student profile in
// one transaction.
func (s *AuthService) Register(ctx context.Context, req models.RegisterRequest) (*models.UserInfo, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "all fields are required")
	}
	dob, err := parseDateOfBirth(req.DateOfBirth)
	if err != nil {
		return nil, err
	}
	taken, err := s.repo.ExistsByEmail(ctx, req.Email)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to validate email")
	}
	if taken {
		return nil, appErrors.Clone(appErrors.ErrConflict, "email already in use")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to hash password")
	}

	user := &models.User{Email: req.Email, PasswordHash: string(hash), Role: models.RoleStudent}
	student := &models.Student{FirstName: req.FirstName, LastName: req.LastName, DateOfBirth: dob}
	if err := s.students.CreateWithUser(ctx, user, student); err != nil {
		var appErr *appErrors.Error
		if errors.As(err, &appErr) {
			return nil, appErr
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to register user")
	}
	return &models.UserInfo{ID: user.ID, Email: user.Email, Role: user.Role}, nil
}

// Login authenticates a user and returns issued tokens.
func (s *AuthService) Login(ctx context.Context, req models.LoginRequest) (*models.LoginResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid login payload")
	}

	user, err := s.repo.FindByEmail(ctx, req.Email)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrInvalidCredentials, "invalid email or password")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch user")
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		return nil, appErrors.Clone(appErrors.ErrInvalidCredentials, "invalid email or password")
	}

	if s.config.SingleSession {
		if err := s.repo.RevokeUserRefreshTokens(ctx, user.ID); err != nil {
			s.logger.Warn("failed to revoke previous refresh tokens", zap.Error(err))
		}
	}

	accessToken, err := s.generateAccessToken(user)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create access token")
	}

	refreshTokenValue, err := s.generateRefreshTokenString()
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create refresh token")
	}

	refreshToken := &models.RefreshToken{
		ID:        uuid.NewString(),
		UserID:    user.ID,
		Token:     refreshTokenValue,
		ExpiresAt: time.Now().UTC().Add(s.config.RefreshTokenExpiry),
		CreatedAt: time.Now().UTC(),
		IPAddress: req.IP,
		UserAgent: req.UserAgent,
	}
	if err := s.repo.CreateRefreshToken(ctx, refreshToken); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to persist refresh token")
	}

	if err := s.repo.CreateAuditLog(ctx, &models.AuditLog{
		UserID:    &user.ID,
		Action:    models.AuditActionLogin,
		Resource:  "auth",
		IPAddress: req.IP,
		UserAgent: req.UserAgent,
	}); err != nil {
		s.logger.Warn("failed to record login audit log", zap.Error(err))
	}

	return &models.LoginResponse{
		Token:        accessToken,
		RefreshToken: refreshToken.Token,
		ExpiresIn:    int64(s.config.AccessTokenExpiry.Seconds()),
		User:         models.UserInfo{ID: user.ID, Email: user.Email, Role: user.Role},
	}, nil
}

// RefreshToken exchanges a refresh token for a new token pair, rotating the
// stored token.
func (s *AuthService) RefreshToken(ctx context.Context, req models.RefreshTokenRequest) (*models.RefreshTokenResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid refresh payload")
	}

	storedToken, err := s.repo.FindRefreshToken(ctx, req.RefreshToken)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrUnauthorized, "refresh token not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch refresh token")
	}

	if storedToken.Revoked || time.Now().UTC().After(storedToken.ExpiresAt) {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "refresh token is expired or revoked")
	}

	user, err := s.repo.FindByID(ctx, storedToken.UserID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrUnauthorized, "associated user no longer exists")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load user")
	}

	if err := s.repo.RevokeRefreshToken(ctx, storedToken.ID, time.Now().UTC()); err != nil {
		s.logger.Warn("failed to revoke used refresh token", zap.Error(err))
	}

	accessToken, err := s.generateAccessToken(user)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to generate access token")
	}

	refreshTokenValue, err := s.generateRefreshTokenString()
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create refresh token")
	}

	newRefresh := &models.RefreshToken{
		ID:        uuid.NewString(),
		UserID:    user.ID,
		Token:     refreshTokenValue,
		ExpiresAt: time.Now().UTC().Add(s.config.RefreshTokenExpiry),
		CreatedAt: time.Now().UTC(),
		IPAddress: req.IP,
		UserAgent: req.UserAgent,
	}
	if err := s.repo.CreateRefreshToken(ctx, newRefresh); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to persist refresh token")
	}

	return &models.RefreshTokenResponse{
		Token:        accessToken,
		RefreshToken: newRefresh.Token,
		ExpiresIn:    int64(s.config.AccessTokenExpiry.Seconds()),
	}, nil
}

// Logout revokes the presented refresh token for the current user.
func (s *AuthService) Logout(ctx context.Context, refreshToken string, userID int64, meta models.LoginRequest) error {
	storedToken, err := s.repo.FindRefreshToken(ctx, refreshToken)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrUnauthorized, "refresh token not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch refresh token")
	}
	if storedToken.UserID != userID {
		return appErrors.Clone(appErrors.ErrForbidden, "refresh token does not belong to the current user")
	}
	if err := s.repo.RevokeRefreshToken(ctx, storedToken.ID, time.Now().UTC()); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to revoke refresh token")
	}

	if err := s.repo.CreateAuditLog(ctx, &models.AuditLog{
		UserID:    &userID,
		Action:    models.AuditActionLogout,
		Resource:  "auth",
		IPAddress: meta.IP,
		UserAgent: meta.UserAgent,
	}); err != nil {
		s.logger.Warn("failed to record logout audit log", zap.Error(err))
	}
	return nil
}

// ValidateToken parses and validates an access token, returning its claims.
func (s *AuthService) ValidateToken(tokenString string) (*models.JWTClaims, error) {
	claims := &models.JWTClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(s.config.AccessTokenSecret), nil
	})
	if err != nil || !token.Valid {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid or expired token")
	}
	return claims, nil
}

func (s *AuthService) generateAccessToken(user *models.User) (string, error) {
	now := time.Now().UTC()
	claims := &models.JWTClaims{
		UserID: user.ID,
		Role:   user.Role,
		Email:  user.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.config.Issuer,
			Subject:   fmt.Sprintf("%d", user.ID),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.config.AccessTokenExpiry)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(s.config.AccessTokenSecret))
}

func (s *AuthService) generateRefreshTokenString() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
