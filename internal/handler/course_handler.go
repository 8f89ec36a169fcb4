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

type courseService interface {
	List(ctx context.Context, page, limit int) ([]models.Course, *models.Pagination, error)
	Create(ctx context.Context, req service.CreateCourseRequest) (*models.Course, error)
	Update(ctx context.Context, id int64, req service.UpdateCourseRequest) (*models.Course, error)
	Delete(ctx context.Context, id int64) error
	StudentView(ctx context.Context, caller models.AuthContext) ([]models.CourseWithEnrollment, error)
	SearchUnenrolledForStudent(ctx context.Context, q string, studentID int64) ([]models.CourseSearchResult, error)
}

// CourseHandler exposes course catalog endpoints.
type CourseHandler struct {
	courses courseService
}

// NewCourseHandler constructs CourseHandler.
func NewCourseHandler(courses courseService) *CourseHandler {
	return &CourseHandler{courses: courses}
}

// List godoc
// @Summary List courses
// @Tags Courses
// @Produce json
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /courses [get]
func (h *CourseHandler) List(c *gin.Context) {
	page, limit := pageParams(c)

	courses, pagination, err := h.courses.List(c.Request.Context(), page, limit)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, courses, pagination)
}

// Create godoc
// @Summary Create course
// @Tags Courses
// @Accept json
// @Produce json
// @Param payload body service.CreateCourseRequest true "Course payload"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /courses [post]
func (h *CourseHandler) Create(c *gin.Context) {
	var req service.CreateCourseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid course payload"))
		return
	}
	course, err := h.courses.Create(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, course)
}

// Update godoc
// @Summary Update course
// @Tags Courses
// @Accept json
// @Produce json
// @Param id path int true "Course ID"
// @Param payload body service.UpdateCourseRequest true "Course payload"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /courses/{id} [put]
func (h *CourseHandler) Update(c *gin.Context) {
	id, err := idParam(c, "id")
	if err != nil {
		response.Error(c, err)
		return
	}
	var req service.UpdateCourseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid course payload"))
		return
	}
	course, err := h.courses.Update(c.Request.Context(), id, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, course, nil)
}

// Delete godoc
// @Summary Delete course
// @Description Delete a course and all enrollments referencing it
// @Tags Courses
// @Produce json
// @Param id path int true "Course ID"
// @Success 204 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /courses/{id} [delete]
func (h *CourseHandler) Delete(c *gin.Context) {
	id, err := idParam(c, "id")
	if err != nil {
		response.Error(c, err)
		return
	}
	if err := h.courses.Delete(c.Request.Context(), id); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// StudentView godoc
// @Summary List courses annotated with the caller's enrollment state
// @Tags Courses
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /courses/student-view [get]
func (h *CourseHandler) StudentView(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	courses, err := h.courses.StudentView(c.Request.Context(), claims.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, courses, nil)
}

// SearchForStudent godoc
// @Summary Search courses a student is not enrolled in
// @Tags Courses
// @Produce json
// @Param q query string true "Name or code fragment, minimum two characters"
// @Param studentId query int true "Student ID"
// @Success 200 {object} response.Envelope
// @Router /courses/search-for-student [get]
func (h *CourseHandler) SearchForStudent(c *gin.Context) {
	q := strings.TrimSpace(c.Query("q"))
	studentID, _ := strconv.ParseInt(c.Query("studentId"), 10, 64)

	results, err := h.courses.SearchUnenrolledForStudent(c.Request.Context(), q, studentID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, results, nil)
}
