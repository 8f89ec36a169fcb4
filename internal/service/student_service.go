package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/noah-isme/enroll-api/internal/models"
	appErrors "github.com/noah-isme/enroll-api/pkg/errors"
)

type studentRepository interface {
	CreateWithUser(ctx context.Context, user *models.User, student *models.Student) error
	List(ctx context.Context, page, limit int) ([]models.StudentDetail, int, error)
	FindByID(ctx context.Context, id int64) (*models.Student, error)
	FindByUserID(ctx context.Context, userID int64) (*models.Student, error)
	Update(ctx context.Context, student *models.Student) error
	DeleteOwningUser(ctx context.Context, studentID int64) error
	Search(ctx context.Context, q string, excludeCourseID int64) ([]models.StudentSearchResult, error)
}

type emailChecker interface {
	ExistsByEmail(ctx context.Context, email string) (bool, error)
}

// CreateStudentRequest holds the payload for an admin-created student.
type CreateStudentRequest struct {
	FirstName   string `json:"first_name" validate:"required"`
	LastName    string `json:"last_name" validate:"required"`
	Email       string `json:"email" validate:"required,email"`
	Password    string `json:"password" validate:"required,min=6"`
	DateOfBirth string `json:"date_of_birth" validate:"required"`
}

// UpdateStudentRequest holds the payload for profile updates.
type UpdateStudentRequest struct {
	FirstName   string `json:"first_name" validate:"required"`
	LastName    string `json:"last_name" validate:"required"`
	DateOfBirth string `json:"date_of_birth" validate:"required"`
}

const dateLayout = "2006-01-02"

func parseDateOfBirth(raw string) (time.Time, error) {
	dob, err := time.Parse(dateLayout, raw)
	if err != nil {
		return time.Time{}, appErrors.Clone(appErrors.ErrValidation, "date of birth must be a valid date")
	}
	if dob.After(time.Now()) {
		return time.Time{}, appErrors.Clone(appErrors.ErrValidation, "date of birth cannot be in the future")
	}
	return dob, nil
}

// StudentService manages the roster: each student and its owning user form a
// single transactional unit.
type StudentService struct {
	repo      studentRepository
	users     emailChecker
	validator *validator.Validate
	logger    *zap.Logger
}

// NewStudentService constructs the student service.
func NewStudentService(repo studentRepository, users emailChecker, validate *validator.Validate, logger *zap.Logger) *StudentService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StudentService{repo: repo, users: users, validator: validate, logger: logger}
}

// List returns a page of students with pagination metadata.
func (s *StudentService) List(ctx context.Context, page, limit int) ([]models.StudentDetail, *models.Pagination, error) {
	students, total, err := s.repo.List(ctx, page, limit)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list students")
	}
	return students, models.NewPagination(total, page, limit), nil
}

// Create registers a student with its owning user in one transaction; both
// rows commit together or neither does.
func (s *StudentService) Create(ctx context.Context, req CreateStudentRequest) (*models.Student, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "all fields are required")
	}
	dob, err := parseDateOfBirth(req.DateOfBirth)
	if err != nil {
		return nil, err
	}
	taken, err := s.users.ExistsByEmail(ctx, req.Email)
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
	if err := s.repo.CreateWithUser(ctx, user, student); err != nil {
		var appErr *appErrors.Error
		if errors.As(err, &appErr) {
			return nil, appErr
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create student")
	}
	return student, nil
}

// Update rewrites a student profile, addressed by id for administrators.
func (s *StudentService) Update(ctx context.Context, id int64, req UpdateStudentRequest) (*models.Student, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "all fields are required")
	}
	dob, err := parseDateOfBirth(req.DateOfBirth)
	if err != nil {
		return nil, err
	}
	student, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}

	student.FirstName = req.FirstName
	student.LastName = req.LastName
	student.DateOfBirth = dob
	if err := s.repo.Update(ctx, student); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update student")
	}
	return student, nil
}

// UpdateOwnProfile applies the same update after verifying the caller owns
// the profile.
func (s *StudentService) UpdateOwnProfile(ctx context.Context, studentID int64, caller models.AuthContext, req UpdateStudentRequest) (*models.Student, error) {
	student, err := s.repo.FindByID(ctx, studentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	if student.UserID != caller.UserID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "you are not allowed to modify this profile")
	}
	return s.Update(ctx, studentID, req)
}

// Delete removes a student by deleting its owning user; the student and its
// enrollments cascade away in the same transaction.
func (s *StudentService) Delete(ctx context.Context, id int64) error {
	if err := s.repo.DeleteOwningUser(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete student")
	}
	return nil
}

// Search matches students by name or email, excluding those already enrolled
// in the given course. An empty query returns an empty set by contract.
func (s *StudentService) Search(ctx context.Context, q string, excludeCourseID int64) ([]models.StudentSearchResult, error) {
	if strings.TrimSpace(q) == "" {
		return []models.StudentSearchResult{}, nil
	}
	results, err := s.repo.Search(ctx, q, excludeCourseID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to search students")
	}
	if results == nil {
		results = []models.StudentSearchResult{}
	}
	return results, nil
}

// GetByUserID resolves the student profile owned by an identity.
func (s *StudentService) GetByUserID(ctx context.Context, userID int64) (*models.Student, error) {
	student, err := s.repo.FindByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student profile not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	return student, nil
}
