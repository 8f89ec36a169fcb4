package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/enroll-api/internal/middleware"
	"github.com/noah-isme/enroll-api/internal/models"
	"github.com/noah-isme/enroll-api/internal/service"
	appErrors "github.com/noah-isme/enroll-api/pkg/errors"
)

type studentServiceMock struct {
	createErr      error
	updateCalled   bool
	updateOwnUsed  bool
	deleteErr      error
	searchQ        string
	searchCourseID int64
}

func (m *studentServiceMock) List(ctx context.Context, page, limit int) ([]models.StudentDetail, *models.Pagination, error) {
	return []models.StudentDetail{{FirstName: "Ada", LastName: "Lovelace"}}, models.NewPagination(1, page, limit), nil
}

func (m *studentServiceMock) Create(ctx context.Context, req service.CreateStudentRequest) (*models.Student, error) {
	if m.createErr != nil {
		return nil, m.createErr
	}
	return &models.Student{ID: 1, FirstName: req.FirstName, LastName: req.LastName}, nil
}

func (m *studentServiceMock) Update(ctx context.Context, id int64, req service.UpdateStudentRequest) (*models.Student, error) {
	m.updateCalled = true
	return &models.Student{ID: id, FirstName: req.FirstName, LastName: req.LastName}, nil
}

func (m *studentServiceMock) UpdateOwnProfile(ctx context.Context, studentID int64, caller models.AuthContext, req service.UpdateStudentRequest) (*models.Student, error) {
	m.updateOwnUsed = true
	return &models.Student{ID: studentID, FirstName: req.FirstName, LastName: req.LastName}, nil
}

func (m *studentServiceMock) Delete(ctx context.Context, id int64) error {
	return m.deleteErr
}

func (m *studentServiceMock) Search(ctx context.Context, q string, excludeCourseID int64) ([]models.StudentSearchResult, error) {
	m.searchQ = q
	m.searchCourseID = excludeCourseID
	return []models.StudentSearchResult{}, nil
}

func (m *studentServiceMock) GetByUserID(ctx context.Context, userID int64) (*models.Student, error) {
	if userID != 7 {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "student profile not found")
	}
	return &models.Student{ID: 1, UserID: userID}, nil
}

func TestStudentHandlerListDefaults(t *testing.T) {
	h := NewStudentHandler(&studentServiceMock{})
	c, w := newHandlerTestContext(t, http.MethodGet, "/students", nil)

	h.List(c)
	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Data       []models.StudentDetail `json:"data"`
		Pagination *models.Pagination     `json:"pagination"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Data, 1)
	require.NotNil(t, resp.Pagination)
	assert.Equal(t, 1, resp.Pagination.Page)
	assert.Equal(t, 20, resp.Pagination.Limit)
}

func TestStudentHandlerCreateInvalidBody(t *testing.T) {
	h := NewStudentHandler(&studentServiceMock{})
	c, w := newHandlerTestContext(t, http.MethodPost, "/students", []byte(`not json`))

	h.Create(c)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestStudentHandlerCreateConflict(t *testing.T) {
	svc := &studentServiceMock{createErr: appErrors.Clone(appErrors.ErrConflict, "email already in use")}
	h := NewStudentHandler(svc)
	body, _ := json.Marshal(service.CreateStudentRequest{
		FirstName:   "Ada",
		LastName:    "Lovelace",
		Email:       "ada@example.com",
		Password:    "s3cret!",
		DateOfBirth: "2000-05-14",
	})
	c, w := newHandlerTestContext(t, http.MethodPost, "/students", body)

	h.Create(c)
	require.Equal(t, http.StatusConflict, w.Code)
	var resp map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "email already in use", resp["message"])
}

func TestStudentHandlerUpdateAsAdmin(t *testing.T) {
	svc := &studentServiceMock{}
	h := NewStudentHandler(svc)
	body, _ := json.Marshal(service.UpdateStudentRequest{FirstName: "Ada", LastName: "King", DateOfBirth: "2000-05-14"})
	c, w := newHandlerTestContext(t, http.MethodPut, "/students/1", body)
	c.Params = gin.Params{{Key: "id", Value: "1"}}
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: 1, Role: models.RoleAdmin})

	h.Update(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, svc.updateCalled)
	assert.False(t, svc.updateOwnUsed)
}

func TestStudentHandlerUpdateAsStudent(t *testing.T) {
	svc := &studentServiceMock{}
	h := NewStudentHandler(svc)
	body, _ := json.Marshal(service.UpdateStudentRequest{FirstName: "Ada", LastName: "King", DateOfBirth: "2000-05-14"})
	c, w := newHandlerTestContext(t, http.MethodPut, "/students/1", body)
	c.Params = gin.Params{{Key: "id", Value: "1"}}
	c.Set(middleware.ContextUserKey, studentClaims())

	h.Update(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, svc.updateOwnUsed)
	assert.False(t, svc.updateCalled)
}

func TestStudentHandlerDeleteMissing(t *testing.T) {
	svc := &studentServiceMock{deleteErr: appErrors.Clone(appErrors.ErrNotFound, "student not found")}
	h := NewStudentHandler(svc)
	c, w := newHandlerTestContext(t, http.MethodDelete, "/students/99", nil)
	c.Params = gin.Params{{Key: "id", Value: "99"}}

	h.Delete(c)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestStudentHandlerSearchParams(t *testing.T) {
	svc := &studentServiceMock{}
	h := NewStudentHandler(svc)
	c, w := newHandlerTestContext(t, http.MethodGet, "/students/search?q=%20ada%20&courseId=3", nil)

	h.Search(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ada", svc.searchQ)
	assert.Equal(t, int64(3), svc.searchCourseID)
}

func TestStudentHandlerGetByUserID(t *testing.T) {
	h := NewStudentHandler(&studentServiceMock{})
	c, w := newHandlerTestContext(t, http.MethodGet, "/students/user/7", nil)
	c.Params = gin.Params{{Key: "userId", Value: "7"}}

	h.GetByUserID(c)
	require.Equal(t, http.StatusOK, w.Code)
}

func TestStudentHandlerGetByUserIDMissing(t *testing.T) {
	h := NewStudentHandler(&studentServiceMock{})
	c, w := newHandlerTestContext(t, http.MethodGet, "/students/user/8", nil)
	c.Params = gin.Params{{Key: "userId", Value: "8"}}

	h.GetByUserID(c)
	assert.Equal(t, http.StatusNotFound, w.Code)
}
