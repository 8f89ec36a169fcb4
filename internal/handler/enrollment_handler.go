package handler

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/enroll-api/internal/models"
	"github.com/noah-isme/enroll-api/internal/service"
	appErrors "github.com/noah-isme/enroll-api/pkg/errors"
	"github.com/noah-isme/enroll-api/pkg/response"
)

type enrollmentService interface {
	Enroll(ctx context.Context, caller models.AuthContext, courseID int64) (*models.Enrollment, error)
	Withdraw(ctx context.Context, caller models.AuthContext, courseID int64) error
	MyCourses(ctx context.Context, caller models.AuthContext) ([]models.Course, error)
	CoursesForStudent(ctx context.Context, studentID int64) ([]models.Course, error)
	StudentsForCourse(ctx context.Context, courseID int64) ([]models.StudentSearchResult, error)
	ListAll(ctx context.Context) ([]models.EnrollmentRecord, error)
	AdminEnroll(ctx context.Context, actor models.AuthContext, studentID, courseID int64) (*models.Enrollment, error)
	AdminWithdraw(ctx context.Context, actor models.AuthContext, studentID, courseID int64) error
	ExportRoster(ctx context.Context, format string) ([]byte, string, error)
}

// EnrollmentHandler exposes enrollment ledger endpoints.
type EnrollmentHandler struct {
	enrollments enrollmentService
}

// NewEnrollmentHandler constructs EnrollmentHandler.
func NewEnrollmentHandler(enrollments enrollmentService) *EnrollmentHandler {
	return &EnrollmentHandler{enrollments: enrollments}
}

// Enroll godoc
// @Summary Enroll the calling student in a course
// @Tags Enrollments
// @Accept json
// @Produce json
// @Param payload body object{course_id=int} true "Course to enroll in"
// @Success 201 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /enrollments [post]
func (h *EnrollmentHandler) Enroll(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var payload struct {
		CourseID int64 `json:"course_id" binding:"required,gt=0"`
	}
	if err := c.ShouldBindJSON(&payload); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "a valid course_id is required"))
		return
	}

	enrollment, err := h.enrollments.Enroll(c.Request.Context(), claims.Context(), payload.CourseID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, enrollment)
}

// Withdraw godoc
// @Summary Withdraw the calling student from a course
// @Tags Enrollments
// @Produce json
// @Param courseId path int true "Course ID"
// @Success 204 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /enrollments/{courseId} [delete]
func (h *EnrollmentHandler) Withdraw(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	courseID, err := idParam(c, "courseId")
	if err != nil {
		response.Error(c, err)
		return
	}
	if err := h.enrollments.Withdraw(c.Request.Context(), claims.Context(), courseID); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// MyCourses godoc
// @Summary List the calling student's enrolled courses
// @Tags Enrollments
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /enrollments/my-courses [get]
func (h *EnrollmentHandler) MyCourses(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	courses, err := h.enrollments.MyCourses(c.Request.Context(), claims.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, courses, nil)
}

// ListAll godoc
// @Summary List every enrollment with student and course details
// @Tags Enrollments
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /enrollments [get]
func (h *EnrollmentHandler) ListAll(c *gin.Context) {
	records, err := h.enrollments.ListAll(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, records, nil)
}

// Export godoc
// @Summary Export the enrollment roster
// @Tags Enrollments
// @Produce text/csv
// @Produce application/pdf
// @Param format query string false "csv or pdf" default(csv)
// @Success 200 {file} file
// @Router /enrollments/export [get]
func (h *EnrollmentHandler) Export(c *gin.Context) {
	format := c.DefaultQuery("format", service.ExportFormatCSV)

	data, contentType, err := h.enrollments.ExportRoster(c.Request.Context(), format)
	if err != nil {
		response.Error(c, err)
		return
	}

	filename := fmt.Sprintf("enrollments-%s.%s", time.Now().UTC().Format("20060102"), format)
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Data(http.StatusOK, contentType, data)
}

// AdminEnroll godoc
// @Summary Enroll a student in a course on their behalf
// @Tags Enrollments
// @Accept json
// @Produce json
// @Param payload body object{student_id=int,course_id=int} true "Enrollment pair"
// @Success 201 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /enrollments/admin [post]
func (h *EnrollmentHandler) AdminEnroll(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var payload struct {
		StudentID int64 `json:"student_id" binding:"required,gt=0"`
		CourseID  int64 `json:"course_id" binding:"required,gt=0"`
	}
	if err := c.ShouldBindJSON(&payload); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "valid student_id and course_id are required"))
		return
	}

	enrollment, err := h.enrollments.AdminEnroll(c.Request.Context(), claims.Context(), payload.StudentID, payload.CourseID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, enrollment)
}

// AdminWithdraw godoc
// @Summary Withdraw a student from a course on their behalf
// @Tags Enrollments
// @Produce json
// @Param studentId path int true "Student ID"
// @Param courseId path int true "Course ID"
// @Success 204 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /enrollments/admin/{studentId}/{courseId} [delete]
func (h *EnrollmentHandler) AdminWithdraw(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	studentID, err := idParam(c, "studentId")
	if err != nil {
		response.Error(c, err)
		return
	}
	courseID, err := idParam(c, "courseId")
	if err != nil {
		response.Error(c, err)
		return
	}
	if err := h.enrollments.AdminWithdraw(c.Request.Context(), claims.Context(), studentID, courseID); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// StudentCourses godoc
// @Summary List courses a student is enrolled in
// @Tags Enrollments
// @Produce json
// @Param id path int true "Student ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /students/{id}/courses [get]
func (h *EnrollmentHandler) StudentCourses(c *gin.Context) {
	studentID, err := idParam(c, "id")
	if err != nil {
		response.Error(c, err)
		return
	}
	courses, err := h.enrollments.CoursesForStudent(c.Request.Context(), studentID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, courses, nil)
}

// CourseStudents godoc
// @Summary List students enrolled in a course
// @Tags Enrollments
// @Produce json
// @Param id path int true "Course ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /courses/{id}/students [get]
func (h *EnrollmentHandler) CourseStudents(c *gin.Context) {
	courseID, err := idParam(c, "id")
	if err != nil {
		response.Error(c, err)
		return
	}
	students, err := h.enrollments.StudentsForCourse(c.Request.Context(), courseID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, students, nil)
}
