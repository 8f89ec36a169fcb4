package models

import "github.com/golang-jwt/jwt/v5"

// AuthContext carries the resolved caller identity into core operations.
// Handlers build it from validated JWT claims; services never read tokens.
type AuthContext struct {
	UserID int64
	Role   UserRole
}

// IsAdmin reports whether the caller holds the admin role.
func (a AuthContext) IsAdmin() bool {
	return a.Role == RoleAdmin
}

// LoginRequest holds credentials for authenticating a user.
type LoginRequest struct {
	Email     string `json:"email" validate:"required,email"`
	Password  string `json:"password" validate:"required"`
	IP        string `json:"-"`
	UserAgent string `json:"-"`
}

// LoginResponse returns the issued tokens and user info.
type LoginResponse struct {
	Token        string   `json:"token"`
	RefreshToken string   `json:"refresh_token"`
	ExpiresIn    int64    `json:"expires_in"`
	User         UserInfo `json:"user"`
}

// RegisterRequest creates a user and its student profile in one transaction.
type RegisterRequest struct {
	FirstName   string `json:"first_name" validate:"required"`
	LastName    string `json:"last_name" validate:"required"`
	Email       string `json:"email" validate:"required,email"`
	Password    string `json:"password" validate:"required,min=6"`
	DateOfBirth string `json:"date_of_birth" validate:"required"`
}

// RefreshTokenRequest exchanges a refresh token for a new access token.
type RefreshTokenRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
	IP           string `json:"-"`
	UserAgent    string `json:"-"`
}

// RefreshTokenResponse returns the refreshed token pair.
type RefreshTokenResponse struct {
	Token        string `json:"token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
}

// UserInfo describes the authenticated user in responses.
type UserInfo struct {
	ID    int64    `json:"id"`
	Email string   `json:"email"`
	Role  UserRole `json:"role"`
}

// JWTClaims represents the JWT payload for access tokens.
type JWTClaims struct {
	UserID int64    `json:"user_id"`
	Role   UserRole `json:"role"`
	Email  string   `json:"email"`
	jwt.RegisteredClaims
}

// Context returns the AuthContext equivalent of the claims.
func (c *JWTClaims) Context() AuthContext {
	return AuthContext{UserID: c.UserID, Role: c.Role}
}
