package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/enroll-api/internal/middleware"
	"github.com/noah-isme/enroll-api/internal/models"
	appErrors "github.com/noah-isme/enroll-api/pkg/errors"
)

type authServiceMock struct {
	registerErr  error
	loginErr     error
	refreshErr   error
	logoutErr    error
	lastLoginReq models.LoginRequest
	loggedOut    string
}

func (m *authServiceMock) Register(ctx context.Context, req models.RegisterRequest) (*models.UserInfo, error) {
	if m.registerErr != nil {
		return nil, m.registerErr
	}
	return &models.UserInfo{ID: 1, Email: req.Email, Role: models.RoleStudent}, nil
}

func (m *authServiceMock) Login(ctx context.Context, req models.LoginRequest) (*models.LoginResponse, error) {
	if m.loginErr != nil {
		return nil, m.loginErr
	}
	m.lastLoginReq = req
	return &models.LoginResponse{
		Token:        "access",
		RefreshToken: "refresh",
		ExpiresIn:    3600,
		User:         models.UserInfo{ID: 1, Email: req.Email, Role: models.RoleStudent},
	}, nil
}

func (m *authServiceMock) RefreshToken(ctx context.Context, req models.RefreshTokenRequest) (*models.RefreshTokenResponse, error) {
	if m.refreshErr != nil {
		return nil, m.refreshErr
	}
	return &models.RefreshTokenResponse{Token: "access2", RefreshToken: "refresh2", ExpiresIn: 3600}, nil
}

func (m *authServiceMock) Logout(ctx context.Context, refreshToken string, userID int64, meta models.LoginRequest) error {
	if m.logoutErr != nil {
		return m.logoutErr
	}
	m.loggedOut = refreshToken
	return nil
}

func TestAuthHandlerRegister(t *testing.T) {
	h := NewAuthHandler(&authServiceMock{})
	body, _ := json.Marshal(models.RegisterRequest{
		FirstName:   "Ada",
		LastName:    "Lovelace",
		Email:       "ada@example.com",
		Password:    "s3cret!",
		DateOfBirth: "2000-05-14",
	})
	c, w := newHandlerTestContext(t, http.MethodPost, "/auth/register", body)

	h.Register(c)
	require.Equal(t, http.StatusCreated, w.Code)
	var resp struct {
		Data models.UserInfo `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "ada@example.com", resp.Data.Email)
	assert.Equal(t, models.RoleStudent, resp.Data.Role)
}

func TestAuthHandlerRegisterConflict(t *testing.T) {
	svc := &authServiceMock{registerErr: appErrors.Clone(appErrors.ErrConflict, "email already in use")}
	h := NewAuthHandler(svc)
	body, _ := json.Marshal(models.RegisterRequest{
		FirstName:   "Ada",
		LastName:    "Lovelace",
		Email:       "ada@example.com",
		Password:    "s3cret!",
		DateOfBirth: "2000-05-14",
	})
	c, w := newHandlerTestContext(t, http.MethodPost, "/auth/register", body)

	h.Register(c)
	require.Equal(t, http.StatusConflict, w.Code)
	var resp map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "email already in use", resp["message"])
}

func TestAuthHandlerLoginRecordsClientMeta(t *testing.T) {
	svc := &authServiceMock{}
	h := NewAuthHandler(svc)
	body, _ := json.Marshal(models.LoginRequest{Email: "ada@example.com", Password: "s3cret!"})
	c, w := newHandlerTestContext(t, http.MethodPost, "/auth/login", body)
	c.Request.Header.Set("User-Agent", "test-agent")
	c.Request.RemoteAddr = "192.0.2.1:1234"

	h.Login(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "test-agent", svc.lastLoginReq.UserAgent)
	assert.NotEmpty(t, svc.lastLoginReq.IP)
}

func TestAuthHandlerLoginInvalidCredentials(t *testing.T) {
	svc := &authServiceMock{loginErr: appErrors.Clone(appErrors.ErrInvalidCredentials, "invalid email or password")}
	h := NewAuthHandler(svc)
	body, _ := json.Marshal(models.LoginRequest{Email: "ada@example.com", Password: "nope"})
	c, w := newHandlerTestContext(t, http.MethodPost, "/auth/login", body)

	h.Login(c)
	assert.Equal(t, appErrors.ErrInvalidCredentials.Status, w.Code)
}

func TestAuthHandlerRefresh(t *testing.T) {
	h := NewAuthHandler(&authServiceMock{})
	body, _ := json.Marshal(models.RefreshTokenRequest{RefreshToken: "refresh"})
	c, w := newHandlerTestContext(t, http.MethodPost, "/auth/refresh", body)

	h.Refresh(c)
	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Data models.RefreshTokenResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "access2", resp.Data.Token)
	assert.Equal(t, "refresh2", resp.Data.RefreshToken)
}

func TestAuthHandlerLogout(t *testing.T) {
	svc := &authServiceMock{}
	h := NewAuthHandler(svc)
	body, _ := json.Marshal(map[string]string{"refresh_token": "refresh"})
	c, w := newHandlerTestContext(t, http.MethodPost, "/auth/logout", body)
	c.Set(middleware.ContextUserKey, studentClaims())

	h.Logout(c)
	c.Writer.WriteHeaderNow()
	require.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "refresh", svc.loggedOut)
}

func TestAuthHandlerLogoutRequiresClaims(t *testing.T) {
	h := NewAuthHandler(&authServiceMock{})
	body, _ := json.Marshal(map[string]string{"refresh_token": "refresh"})
	c, w := newHandlerTestContext(t, http.MethodPost, "/auth/logout", body)

	h.Logout(c)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}
