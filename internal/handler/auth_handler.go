package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/enroll-api/internal/models"
	appErrors "github.com/noah-isme/enroll-api/pkg/errors"
	"github.com/noah-isme/enroll-api/pkg/response"
)

type authService interface {
	Register(ctx context.Context, req models.RegisterRequest) (*models.UserInfo, error)
	Login(ctx context.Context, req models.LoginRequest) (*models.LoginResponse, error)
	RefreshToken(ctx context.Context, req models.RefreshTokenRequest) (*models.RefreshTokenResponse, error)
	Logout(ctx context.Context, refreshToken string, userID int64, meta models.LoginRequest) error
}

// AuthHandler wires HTTP endpoints to the auth service.
type AuthHandler struct {
	service authService
}

// NewAuthHandler creates a new handler.
func NewAuthHandler(svc authService) *AuthHandler {
	return &AuthHandler{service: svc}
}

// Register godoc
// @Summary Register a student account
// @Description Create a user with the student role and its student profile
// @Tags Authentication
// @Accept json
// @Produce json
// @Param payload body models.RegisterRequest true "Registration payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /auth/register [post]
func (h *AuthHandler) Register(c *gin.Context) {
	var req models.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid registration payload"))
		return
	}

	user, err := h.service.Register(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, user)
}

// Login godoc
// @Summary Authenticate user
// @Description Authenticate user by email and password
// @Tags Authentication
// @Accept json
// @Produce json
// @Param payload body models.LoginRequest true "Login payload"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Router /auth/login [post]
func (h *AuthHandler) Login(c *gin.Context) {
	var req models.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid login payload"))
		return
	}
	req.IP = c.ClientIP()
	req.UserAgent = c.GetHeader("User-Agent")

	res, err := h.service.Login(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, res, nil)
}

// Refresh godoc
// @Summary Refresh access token
// @Description Exchange refresh token for a new token pair
// @Tags Authentication
// @Accept json
// @Produce json
// @Param payload body models.RefreshTokenRequest true "Refresh payload"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Router /auth/refresh [post]
func (h *AuthHandler) Refresh(c *gin.Context) {
	var req models.RefreshTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid refresh payload"))
		return
	}
	req.IP = c.ClientIP()
	req.UserAgent = c.GetHeader("User-Agent")

	res, err := h.service.RefreshToken(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, res, nil)
}

// Logout godoc
// @Summary Logout current session
// @Description Revoke the presented refresh token
// @Tags Authentication
// @Accept json
// @Produce json
// @Param payload body map[string]string true "Refresh token"
// @Success 204 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Router /auth/logout [post]
func (h *AuthHandler) Logout(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var payload struct {
		RefreshToken string `json:"refresh_token" binding:"required"`
	}
	if err := c.ShouldBindJSON(&payload); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "refresh token required"))
		return
	}

	meta := models.LoginRequest{IP: c.ClientIP(), UserAgent: c.GetHeader("User-Agent")}
	if err := h.service.Logout(c.Request.Context(), payload.RefreshToken, claims.UserID, meta); err != nil {
		response.Error(c, err)
		return
	}

	response.NoContent(c)
}
