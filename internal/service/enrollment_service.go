package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"go.uber.org/zap"

	"github.com/noah-isme/enroll-api/internal/models"
	appErrors "github.com/noah-isme/enroll-api/pkg/errors"
	"github.com/noah-isme/enroll-api/pkg/export"
)

type enrollmentLedger interface {
	Create(ctx context.Context, studentID, courseID int64) error
	Delete(ctx context.Context, studentID, courseID int64) error
	ListCoursesForStudent(ctx context.Context, studentID int64) ([]models.Course, error)
	ListStudentsForCourse(ctx context.Context, courseID int64) ([]models.StudentSearchResult, error)
	ListAll(ctx context.Context) ([]models.EnrollmentRecord, error)
}

type studentResolver interface {
	FindByID(ctx context.Context, id int64) (*models.Student, error)
	FindByUserID(ctx context.Context, userID int64) (*models.Student, error)
}

type courseReader interface {
	FindByID(ctx context.Context, id int64) (*models.Course, error)
}

type auditWriter interface {
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

// EnrollmentService owns the enroll/withdraw state transitions and the
// consistency-checked read projections over the ledger.
type EnrollmentService struct {
	ledger   enrollmentLedger
	students studentResolver
	courses  courseReader
	audit    auditWriter
	csv      *export.CSVExporter
	pdf      *export.PDFExporter
	logger   *zap.Logger
}

// NewEnrollmentService constructs EnrollmentService.
func NewEnrollmentService(ledger enrollmentLedger, students studentResolver, courses courseReader, audit auditWriter, logger *zap.Logger) *EnrollmentService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EnrollmentService{
		ledger:   ledger,
		students: students,
		courses:  courses,
		audit:    audit,
		csv:      export.NewCSVExporter(),
		pdf:      export.NewPDFExporter(),
		logger:   logger,
	}
}

func (s *EnrollmentService) resolveStudent(ctx context.Context, userID int64) (*models.Student, error) {
	student, err := s.students.FindByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student profile not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve student")
	}
	return student, nil
}

// Enroll registers the caller's student profile into a course. Uniqueness is
// decided by the ledger's composite key, not by a check here: two concurrent
// calls for the same pair yield exactly one success and one conflict.
func (s *EnrollmentService) Enroll(ctx context.Context, caller models.AuthContext, courseID int64) (*models.Enrollment, error) {
	student, err := s.resolveStudent(ctx, caller.UserID)
	if err != nil {
		return nil, err
	}
	if _, err := s.courses.FindByID(ctx, courseID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}
	if err := s.ledger.Create(ctx, student.ID, courseID); err != nil {
		var appErr *appErrors.Error
		if errors.As(err, &appErr) {
			return nil, appErr
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create enrollment")
	}
	return &models.Enrollment{StudentID: student.ID, CourseID: courseID}, nil
}

// Withdraw removes the caller's enrollment in a course. Withdrawing from a
// course the student is not enrolled in is a visible failure, never a
// silent success.
func (s *EnrollmentService) Withdraw(ctx context.Context, caller models.AuthContext, courseID int64) error {
	student, err := s.resolveStudent(ctx, caller.UserID)
	if err != nil {
		return err
	}
	if err := s.ledger.Delete(ctx, student.ID, courseID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "enrollment not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete enrollment")
	}
	return nil
}

// MyCourses returns the caller's enrolled courses ordered by name.
func (s *EnrollmentService) MyCourses(ctx context.Context, caller models.AuthContext) ([]models.Course, error) {
	student, err := s.resolveStudent(ctx, caller.UserID)
	if err != nil {
		return nil, err
	}
	courses, err := s.ledger.ListCoursesForStudent(ctx, student.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list enrolled courses")
	}
	return courses, nil
}

// CoursesForStudent returns the courses a given student is enrolled in,
// addressed by student id for administrative views.
func (s *EnrollmentService) CoursesForStudent(ctx context.Context, studentID int64) ([]models.Course, error) {
	courses, err := s.ledger.ListCoursesForStudent(ctx, studentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list enrolled courses")
	}
	return courses, nil
}

// StudentsForCourse returns the roster of a course ordered by last then
// first name.
func (s *EnrollmentService) StudentsForCourse(ctx context.Context, courseID int64) ([]models.StudentSearchResult, error) {
	students, err := s.ledger.ListStudentsForCourse(ctx, courseID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list enrolled students")
	}
	return students, nil
}

// ListAll returns the administrative audit view.
func (s *EnrollmentService) ListAll(ctx context.Context) ([]models.EnrollmentRecord, error) {
	records, err := s.ledger.ListAll(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list enrollments")
	}
	return records, nil
}

// AdminEnroll creates an enrollment addressed directly by student id,
// bypassing identity resolution. Restricted to privileged callers by the
// route; missing students or courses surface as not-found from the ledger's
// foreign keys.
func (s *EnrollmentService) AdminEnroll(ctx context.Context, actor models.AuthContext, studentID, courseID int64) (*models.Enrollment, error) {
	if studentID <= 0 || courseID <= 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "student id and course id are required")
	}
	if err := s.ledger.Create(ctx, studentID, courseID); err != nil {
		var appErr *appErrors.Error
		if errors.As(err, &appErr) {
			return nil, appErr
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create enrollment")
	}
	s.recordAudit(ctx, actor, models.AuditActionEnrollmentCreate, studentID, courseID)
	return &models.Enrollment{StudentID: studentID, CourseID: courseID}, nil
}

// AdminWithdraw deletes an enrollment addressed directly by the pair.
func (s *EnrollmentService) AdminWithdraw(ctx context.Context, actor models.AuthContext, studentID, courseID int64) error {
	if err := s.ledger.Delete(ctx, studentID, courseID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "enrollment not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete enrollment")
	}
	s.recordAudit(ctx, actor, models.AuditActionEnrollmentDelete, studentID, courseID)
	return nil
}

func (s *EnrollmentService) recordAudit(ctx context.Context, actor models.AuthContext, action string, studentID, courseID int64) {
	if s.audit == nil {
		return
	}
	detail, _ := json.Marshal(map[string]int64{"student_id": studentID, "course_id": courseID})
	if err := s.audit.CreateAuditLog(ctx, &models.AuditLog{
		UserID:   &actor.UserID,
		Action:   action,
		Resource: "enrollments",
		Detail:   detail,
	}); err != nil {
		s.logger.Warn("failed to record enrollment audit log", zap.Error(err))
	}
}

// Export formats supported by ExportRoster.
const (
	ExportFormatCSV = "csv"
	ExportFormatPDF = "pdf"
)

// ExportRoster renders the audit view as a CSV or PDF table and returns the
// payload with its content type.
func (s *EnrollmentService) ExportRoster(ctx context.Context, format string) ([]byte, string, error) {
	records, err := s.ListAll(ctx)
	if err != nil {
		return nil, "", err
	}

	dataset := export.Dataset{
		Headers: []string{"Student ID", "Last Name", "First Name", "Email", "Course Code", "Course"},
		Rows:    make([]map[string]string, 0, len(records)),
	}
	for _, rec := range records {
		dataset.Rows = append(dataset.Rows, map[string]string{
			"Student ID":  strconv.FormatInt(rec.StudentID, 10),
			"Last Name":   rec.LastName,
			"First Name":  rec.FirstName,
			"Email":       rec.Email,
			"Course Code": rec.CourseCode,
			"Course":      rec.CourseName,
		})
	}

	switch format {
	case ExportFormatCSV, "":
		payload, err := s.csv.Render(dataset)
		if err != nil {
			return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render csv export")
		}
		return payload, "text/csv", nil
	case ExportFormatPDF:
		payload, err := s.pdf.Render(dataset, "Enrollment Roster")
		if err != nil {
			return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render pdf export")
		}
		return payload, "application/pdf", nil
	default:
		return nil, "", appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unsupported export format %q", format))
	}
}
