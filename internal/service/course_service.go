package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/enroll-api/internal/models"
	appErrors "github.com/noah-isme/enroll-api/pkg/errors"
)

type courseRepository interface {
	Create(ctx context.Context, course *models.Course) error
	FindByID(ctx context.Context, id int64) (*models.Course, error)
	ExistsByCode(ctx context.Context, code string, excludeID int64) (bool, error)
	ExistsByName(ctx context.Context, name string, excludeID int64) (bool, error)
	Update(ctx context.Context, course *models.Course) error
	Delete(ctx context.Context, id int64) error
	List(ctx context.Context, page, limit int) ([]models.Course, int, error)
	ListForStudentView(ctx context.Context, studentID int64) ([]models.CourseWithEnrollment, error)
	SearchUnenrolled(ctx context.Context, q string, studentID int64) ([]models.CourseSearchResult, error)
}

type catalogCache interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	DeleteByPattern(ctx context.Context, pattern string) error
}

type cacheObserver interface {
	RecordCacheOperation(hit bool, duration time.Duration)
}

// CreateCourseRequest holds the payload for creating catalog entries.
type CreateCourseRequest struct {
	CourseCode    string   `json:"course_code" validate:"required"`
	Name          string   `json:"name" validate:"required"`
	Description   *string  `json:"description"`
	DurationHours *float64 `json:"duration_hours" validate:"omitempty,gte=0"`
}

// UpdateCourseRequest carries partial catalog updates: nil fields keep their
// stored values, an explicitly empty description is stored as empty.
type UpdateCourseRequest struct {
	CourseCode    *string  `json:"course_code"`
	Name          *string  `json:"name"`
	Description   *string  `json:"description"`
	DurationHours *float64 `json:"duration_hours" validate:"omitempty,gte=0"`
}

const catalogCacheKeyPrefix = "courses:list:"

// CourseService handles catalog use-cases. Uniqueness of code and name is
// pre-checked so the two conflicts stay distinguishable; the schema's unique
// constraints remain the backstop under concurrent creates.
type CourseService struct {
	repo      courseRepository
	students  studentResolver
	cache     catalogCache
	metrics   cacheObserver
	cacheTTL  time.Duration
	validator *validator.Validate
	logger    *zap.Logger
}

// NewCourseService constructs the course service. Cache and metrics are
// optional.
func NewCourseService(repo courseRepository, students studentResolver, cache catalogCache, metrics cacheObserver, cacheTTL time.Duration, validate *validator.Validate, logger *zap.Logger) *CourseService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CourseService{repo: repo, students: students, cache: cache, metrics: metrics, cacheTTL: cacheTTL, validator: validate, logger: logger}
}

// Create adds a catalog entry. Code collisions take priority over name
// collisions when both would conflict.
func (s *CourseService) Create(ctx context.Context, req CreateCourseRequest) (*models.Course, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "course code and name are required")
	}
	codeTaken, err := s.repo.ExistsByCode(ctx, req.CourseCode, 0)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to validate course code")
	}
	if codeTaken {
		return nil, appErrors.Clone(appErrors.ErrConflict, "course code already in use")
	}
	nameTaken, err := s.repo.ExistsByName(ctx, req.Name, 0)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to validate course name")
	}
	if nameTaken {
		return nil, appErrors.Clone(appErrors.ErrConflict, "course name already exists")
	}

	course := &models.Course{
		CourseCode:    req.CourseCode,
		Name:          req.Name,
		Description:   req.Description,
		DurationHours: req.DurationHours,
	}
	if err := s.repo.Create(ctx, course); err != nil {
		var appErr *appErrors.Error
		if errors.As(err, &appErr) {
			return nil, appErr
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create course")
	}
	s.invalidateCatalog(ctx)
	return course, nil
}

// Get returns a single catalog entry.
func (s *CourseService) Get(ctx context.Context, id int64) (*models.Course, error) {
	course, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}
	return course, nil
}

// Update applies a partial update; uniqueness is re-validated excluding the
// record's own id whenever code or name changes.
func (s *CourseService) Update(ctx context.Context, id int64, req UpdateCourseRequest) (*models.Course, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid course payload")
	}
	course, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}

	if req.CourseCode != nil && *req.CourseCode != course.CourseCode {
		taken, err := s.repo.ExistsByCode(ctx, *req.CourseCode, id)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to validate course code")
		}
		if taken {
			return nil, appErrors.Clone(appErrors.ErrConflict, "course code already in use")
		}
		course.CourseCode = *req.CourseCode
	}
	if req.Name != nil && *req.Name != course.Name {
		taken, err := s.repo.ExistsByName(ctx, *req.Name, id)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to validate course name")
		}
		if taken {
			return nil, appErrors.Clone(appErrors.ErrConflict, "course name already exists")
		}
		course.Name = *req.Name
	}
	if req.Description != nil {
		course.Description = req.Description
	}
	if req.DurationHours != nil {
		course.DurationHours = req.DurationHours
	}

	if err := s.repo.Update(ctx, course); err != nil {
		var appErr *appErrors.Error
		if errors.As(err, &appErr) {
			return nil, appErr
		}
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update course")
	}
	s.invalidateCatalog(ctx)
	return course, nil
}

// Delete removes a catalog entry; its enrollments cascade away in the same
// statement's transaction.
func (s *CourseService) Delete(ctx context.Context, id int64) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete course")
	}
	s.invalidateCatalog(ctx)
	return nil
}

type catalogPage struct {
	Courses    []models.Course    `json:"courses"`
	Pagination *models.Pagination `json:"pagination"`
}

// List returns a page of courses plus pagination metadata, read through the
// catalog cache when one is configured.
func (s *CourseService) List(ctx context.Context, page, limit int) ([]models.Course, *models.Pagination, error) {
	key := fmt.Sprintf("%sp%d:l%d", catalogCacheKeyPrefix, page, limit)
	if s.cache != nil {
		start := time.Now()
		var cached catalogPage
		err := s.cache.Get(ctx, key, &cached)
		if s.metrics != nil {
			s.metrics.RecordCacheOperation(err == nil, time.Since(start))
		}
		if err == nil {
			return cached.Courses, cached.Pagination, nil
		}
		if !errors.Is(err, appErrors.ErrCacheMiss) {
			s.logger.Warn("catalog cache read failed", zap.Error(err))
		}
	}

	courses, total, err := s.repo.List(ctx, page, limit)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list courses")
	}
	pagination := models.NewPagination(total, page, limit)

	if s.cache != nil {
		if err := s.cache.Set(ctx, key, catalogPage{Courses: courses, Pagination: pagination}, s.cacheTTL); err != nil {
			s.logger.Warn("catalog cache write failed", zap.Error(err))
		}
	}
	return courses, pagination, nil
}

func (s *CourseService) invalidateCatalog(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.DeleteByPattern(ctx, catalogCacheKeyPrefix+"*"); err != nil {
		s.logger.Warn("catalog cache invalidation failed", zap.Error(err))
	}
}

// StudentView returns every course annotated with the caller's enrollment
// state, ordered by name.
func (s *CourseService) StudentView(ctx context.Context, caller models.AuthContext) ([]models.CourseWithEnrollment, error) {
	student, err := s.students.FindByUserID(ctx, caller.UserID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student profile not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve student")
	}
	courses, err := s.repo.ListForStudentView(ctx, student.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list courses")
	}
	return courses, nil
}

// SearchUnenrolledForStudent matches courses the student has not taken yet.
// Queries shorter than two characters return an empty result by contract.
func (s *CourseService) SearchUnenrolledForStudent(ctx context.Context, q string, studentID int64) ([]models.CourseSearchResult, error) {
	if len(strings.TrimSpace(q)) < 2 {
		return []models.CourseSearchResult{}, nil
	}
	if studentID <= 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "a valid studentId is required")
	}
	results, err := s.repo.SearchUnenrolled(ctx, q, studentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to search courses")
	}
	if results == nil {
		results = []models.CourseSearchResult{}
	}
	return results, nil
}
