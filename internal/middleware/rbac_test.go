package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"github.com/noah-isme/enroll-api/internal/models"
)

func runRBAC(t *testing.T, claims *models.JWTClaims, params gin.Params, allowed ...string) (*httptest.ResponseRecorder, bool) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodGet, "/students", nil)
	c.Request = req
	c.Params = params
	if claims != nil {
		c.Set(ContextUserKey, claims)
	}

	RBAC(allowed...)(c)
	return w, !c.IsAborted()
}

func TestRBACAllowsMatchingRole(t *testing.T) {
	_, reached := runRBAC(t, &models.JWTClaims{UserID: 1, Role: models.RoleAdmin}, nil, "ADMIN")
	assert.True(t, reached)
}

func TestRBACRejectsOtherRole(t *testing.T) {
	w, reached := runRBAC(t, &models.JWTClaims{UserID: 7, Role: models.RoleStudent}, nil, "ADMIN")
	assert.False(t, reached)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestRBACRejectsMissingClaims(t *testing.T) {
	w, reached := runRBAC(t, nil, nil, "ADMIN")
	assert.False(t, reached)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRBACSelfMatchesUserIDParam(t *testing.T) {
	params := gin.Params{{Key: "userId", Value: "7"}}
	_, reached := runRBAC(t, &models.JWTClaims{UserID: 7, Role: models.RoleStudent}, params, "ADMIN", "SELF")
	assert.True(t, reached)
}

func TestRBACSelfRejectsOtherUser(t *testing.T) {
	params := gin.Params{{Key: "userId", Value: "8"}}
	w, reached := runRBAC(t, &models.JWTClaims{UserID: 7, Role: models.RoleStudent}, params, "ADMIN", "SELF")
	assert.False(t, reached)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestRequireRolesAllowsAnyListedRole(t *testing.T) {
	_, reached := runRBAC(t, &models.JWTClaims{UserID: 7, Role: models.RoleStudent}, nil, string(models.RoleAdmin), string(models.RoleStudent))
	assert.True(t, reached)
}
