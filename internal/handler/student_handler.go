package handler

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/enroll-api/internal/models"
	"github.com/noah-isme/enroll-api/internal/service"
	appErrors "github.com/noah-isme/enroll-api/pkg/errors"
	"github.com/noah-isme/enroll-api/pkg/response"
)

type studentService interface {
	List(ctx context.Context, page, limit int) ([]models.StudentDetail, *models.Pagination, error)
	Create(ctx context.Context, req service.CreateStudentRequest) (*models.Student, error)
	Update(ctx context.Context, id int64, req service.UpdateStudentRequest) (*models.Student, error)
	UpdateOwnProfile(ctx context.Context, studentID int64, caller models.AuthContext, req service.UpdateStudentRequest) (*models.Student, error)
	Delete(ctx context.Context, id int64) error
	Search(ctx context.Context, q string, excludeCourseID int64) ([]models.StudentSearchResult, error)
	GetByUserID(ctx context.Context, userID int64) (*models.Student, error)
}

// StudentHandler exposes student roster endpoints.
type StudentHandler struct {
	students studentService
}

// NewStudentHandler constructs StudentHandler.
func NewStudentHandler(students studentService) *StudentHandler {
	return &StudentHandler{students: students}
}

// List godoc
// @Summary List students
// @Tags Students
// @Produce json
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /students [get]
func (h *StudentHandler) List(c *gin.Context) {
	page, limit := pageParams(c)

	students, pagination, err := h.students.List(c.Request.Context(), page, limit)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, students, pagination)
}

// Create godoc
// @Summary Create student
// @Description Create a student profile together with its login account
// @Tags Students
// @Accept json
// @Produce json
// @Param payload body service.CreateStudentRequest true "Student payload"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /students [post]
func (h *StudentHandler) Create(c *gin.Context) {
	var req service.CreateStudentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid student payload"))
		return
	}
	student, err := h.students.Create(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, student)
}

// Update godoc
// @Summary Update student
// @Description Admins may update any student, students only their own profile
// @Tags Students
// @Accept json
// @Produce json
// @Param id path int true "Student ID"
// @Param payload body service.UpdateStudentRequest true "Student payload"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /students/{id} [put]
func (h *StudentHandler) Update(c *gin.Context) {
	id, err := idParam(c, "id")
	if err != nil {
		response.Error(c, err)
		return
	}
	var req service.UpdateStudentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid student payload"))
		return
	}

	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var student *models.Student
	if claims.Role == models.RoleAdmin {
		student, err = h.students.Update(c.Request.Context(), id, req)
	} else {
		student, err = h.students.UpdateOwnProfile(c.Request.Context(), id, claims.Context(), req)
	}
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, student, nil)
}

// Delete godoc
// @Summary Delete student
// @Description Delete the student and its owning user account
// @Tags Students
// @Produce json
// @Param id path int true "Student ID"
// @Success 204 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /students/{id} [delete]
func (h *StudentHandler) Delete(c *gin.Context) {
	id, err := idParam(c, "id")
	if err != nil {
		response.Error(c, err)
		return
	}
	if err := h.students.Delete(c.Request.Context(), id); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Search godoc
// @Summary Search students not enrolled in a course
// @Tags Students
// @Produce json
// @Param q query string true "Name or email fragment"
// @Param courseId query int false "Exclude students enrolled in this course"
// @Success 200 {object} response.Envelope
// @Router /students/search [get]
func (h *StudentHandler) Search(c *gin.Context) {
	q := strings.TrimSpace(c.Query("q"))
	courseID, _ := strconv.ParseInt(c.Query("courseId"), 10, 64)

	results, err := h.students.Search(c.Request.Context(), q, courseID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, results, nil)
}

// GetByUserID godoc
// @Summary Resolve student profile by user id
// @Tags Students
// @Produce json
// @Param userId path int true "User ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /students/user/{userId} [get]
func (h *StudentHandler) GetByUserID(c *gin.Context) {
	userID, err := idParam(c, "userId")
	if err != nil {
		response.Error(c, err)
		return
	}
	student, err := h.students.GetByUserID(c.Request.Context(), userID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, student, nil)
}
