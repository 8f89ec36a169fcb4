package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/enroll-api/internal/models"
	appErrors "github.com/noah-isme/enroll-api/pkg/errors"
)

type mockCourseRepo struct {
	courses    map[int64]*models.Course
	nextID     int64
	listCalls  int
	searchHits []models.CourseSearchResult
}

func (m *mockCourseRepo) Create(ctx context.Context, course *models.Course) error {
	if m.courses == nil {
		m.courses = make(map[int64]*models.Course)
	}
	m.nextID++
	course.ID = m.nextID
	stored := *course
	m.courses[course.ID] = &stored
	return nil
}

func (m *mockCourseRepo) FindByID(ctx context.Context, id int64) (*models.Course, error) {
	if c, ok := m.courses[id]; ok {
		copied := *c
		return &copied, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockCourseRepo) ExistsByCode(ctx context.Context, code string, excludeID int64) (bool, error) {
	for id, c := range m.courses {
		if c.CourseCode == code && id != excludeID {
			return true, nil
		}
	}
	return false, nil
}

func (m *mockCourseRepo) ExistsByName(ctx context.Context, name string, excludeID int64) (bool, error) {
	for id, c := range m.courses {
		if c.Name == name && id != excludeID {
			return true, nil
		}
	}
	return false, nil
}

func (m *mockCourseRepo) Update(ctx context.Context, course *models.Course) error {
	if _, ok := m.courses[course.ID]; !ok {
		return sql.ErrNoRows
	}
	stored := *course
	m.courses[course.ID] = &stored
	return nil
}

func (m *mockCourseRepo) Delete(ctx context.Context, id int64) error {
	if _, ok := m.courses[id]; !ok {
		return sql.ErrNoRows
	}
	delete(m.courses, id)
	return nil
}

func (m *mockCourseRepo) List(ctx context.Context, page, limit int) ([]models.Course, int, error) {
	m.listCalls++
	list := make([]models.Course, 0, len(m.courses))
	for _, c := range m.courses {
		list = append(list, *c)
	}
	return list, len(m.courses), nil
}

func (m *mockCourseRepo) ListForStudentView(ctx context.Context, studentID int64) ([]models.CourseWithEnrollment, error) {
	var out []models.CourseWithEnrollment
	for _, c := range m.courses {
		out = append(out, models.CourseWithEnrollment{Course: *c})
	}
	return out, nil
}

func (m *mockCourseRepo) SearchUnenrolled(ctx context.Context, q string, studentID int64) ([]models.CourseSearchResult, error) {
	return m.searchHits, nil
}

type memoryCache struct {
	store   map[string][]byte
	deleted []string
}

func (m *memoryCache) Get(ctx context.Context, key string, dest interface{}) error {
	raw, ok := m.store[key]
	if !ok {
		return appErrors.ErrCacheMiss
	}
	return json.Unmarshal(raw, dest)
}

func (m *memoryCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	if m.store == nil {
		m.store = make(map[string][]byte)
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	m.store[key] = raw
	return nil
}

func (m *memoryCache) DeleteByPattern(ctx context.Context, pattern string) error {
	m.deleted = append(m.deleted, pattern)
	m.store = nil
	return nil
}

type recordingObserver struct {
	hits   int
	misses int
}

func (o *recordingObserver) RecordCacheOperation(hit bool, duration time.Duration) {
	if hit {
		o.hits++
	} else {
		o.misses++
	}
}

func newTestCourseService(repo *mockCourseRepo, students *mockStudents, cache catalogCache) *CourseService {
	return NewCourseService(repo, students, cache, nil, time.Minute, nil, zap.NewNop())
}

func strPtr(s string) *string { return &s }

func TestCourseServiceCreate(t *testing.T) {
	repo := &mockCourseRepo{}
	svc := newTestCourseService(repo, &mockStudents{}, nil)

	course, err := svc.Create(context.Background(), CreateCourseRequest{CourseCode: "CS101", Name: "Computing"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), course.ID)
}

func TestCourseServiceCreateCodeConflictWinsOverName(t *testing.T) {
	repo := &mockCourseRepo{}
	svc := newTestCourseService(repo, &mockStudents{}, nil)
	_, err := svc.Create(context.Background(), CreateCourseRequest{CourseCode: "CS101", Name: "Computing"})
	require.NoError(t, err)

	_, err = svc.Create(context.Background(), CreateCourseRequest{CourseCode: "CS101", Name: "Computing"})
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrConflict.Status, appErr.Status)
	assert.Equal(t, "course code already in use", appErr.Message)
}

func TestCourseServiceCreateNameConflict(t *testing.T) {
	repo := &mockCourseRepo{}
	svc := newTestCourseService(repo, &mockStudents{}, nil)
	_, err := svc.Create(context.Background(), CreateCourseRequest{CourseCode: "CS101", Name: "Computing"})
	require.NoError(t, err)

	_, err = svc.Create(context.Background(), CreateCourseRequest{CourseCode: "CS102", Name: "Computing"})
	require.Error(t, err)
	assert.Equal(t, "course name already exists", appErrors.FromError(err).Message)
}

func TestCourseServiceCreateRequiresCodeAndName(t *testing.T) {
	svc := newTestCourseService(&mockCourseRepo{}, &mockStudents{}, nil)

	_, err := svc.Create(context.Background(), CreateCourseRequest{Name: "Computing"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Status, appErrors.FromError(err).Status)
}

func TestCourseServiceUpdatePartial(t *testing.T) {
	repo := &mockCourseRepo{}
	svc := newTestCourseService(repo, &mockStudents{}, nil)
	created, err := svc.Create(context.Background(), CreateCourseRequest{CourseCode: "CS101", Name: "Computing", Description: strPtr("Intro")})
	require.NoError(t, err)

	updated, err := svc.Update(context.Background(), created.ID, UpdateCourseRequest{Name: strPtr("Computing II")})
	require.NoError(t, err)
	assert.Equal(t, "CS101", updated.CourseCode)
	assert.Equal(t, "Computing II", updated.Name)
	require.NotNil(t, updated.Description)
	assert.Equal(t, "Intro", *updated.Description)
}

func TestCourseServiceUpdateClearsDescription(t *testing.T) {
	repo := &mockCourseRepo{}
	svc := newTestCourseService(repo, &mockStudents{}, nil)
	created, err := svc.Create(context.Background(), CreateCourseRequest{CourseCode: "CS101", Name: "Computing", Description: strPtr("Intro")})
	require.NoError(t, err)

	updated, err := svc.Update(context.Background(), created.ID, UpdateCourseRequest{Description: strPtr("")})
	require.NoError(t, err)
	require.NotNil(t, updated.Description)
	assert.Equal(t, "", *updated.Description)
}

func TestCourseServiceUpdateMissing(t *testing.T) {
	svc := newTestCourseService(&mockCourseRepo{}, &mockStudents{}, nil)

	_, err := svc.Update(context.Background(), 404, UpdateCourseRequest{Name: strPtr("X")})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Status, appErrors.FromError(err).Status)
}

func TestCourseServiceUpdateConflictExcludesSelf(t *testing.T) {
	repo := &mockCourseRepo{}
	svc := newTestCourseService(repo, &mockStudents{}, nil)
	created, err := svc.Create(context.Background(), CreateCourseRequest{CourseCode: "CS101", Name: "Computing"})
	require.NoError(t, err)

	// Re-submitting its own code and name is not a conflict.
	_, err = svc.Update(context.Background(), created.ID, UpdateCourseRequest{CourseCode: strPtr("CS101"), Name: strPtr("Computing")})
	require.NoError(t, err)

	_, err = svc.Create(context.Background(), CreateCourseRequest{CourseCode: "CS102", Name: "Algorithms"})
	require.NoError(t, err)

	_, err = svc.Update(context.Background(), created.ID, UpdateCourseRequest{CourseCode: strPtr("CS102")})
	require.Error(t, err)
	assert.Equal(t, "course code already in use", appErrors.FromError(err).Message)
}

func TestCourseServiceListCachesPages(t *testing.T) {
	repo := &mockCourseRepo{}
	cache := &memoryCache{}
	svc := newTestCourseService(repo, &mockStudents{}, cache)
	_, err := svc.Create(context.Background(), CreateCourseRequest{CourseCode: "CS101", Name: "Computing"})
	require.NoError(t, err)

	_, pagination, err := svc.List(context.Background(), 1, 20)
	require.NoError(t, err)
	assert.Equal(t, 1, pagination.Total)
	assert.Equal(t, 1, repo.listCalls)

	_, _, err = svc.List(context.Background(), 1, 20)
	require.NoError(t, err)
	assert.Equal(t, 1, repo.listCalls, "second read should come from cache")
}

func TestCourseServiceMutationsInvalidateCache(t *testing.T) {
	repo := &mockCourseRepo{}
	cache := &memoryCache{}
	svc := newTestCourseService(repo, &mockStudents{}, cache)

	created, err := svc.Create(context.Background(), CreateCourseRequest{CourseCode: "CS101", Name: "Computing"})
	require.NoError(t, err)

	_, _, err = svc.List(context.Background(), 1, 20)
	require.NoError(t, err)

	require.NoError(t, svc.Delete(context.Background(), created.ID))
	assert.Contains(t, cache.deleted, "courses:list:*")

	_, pagination, err := svc.List(context.Background(), 1, 20)
	require.NoError(t, err)
	assert.Equal(t, 0, pagination.Total)
}

func TestCourseServiceListWithoutCacheSkipsMetrics(t *testing.T) {
	repo := &mockCourseRepo{}
	observer := &recordingObserver{}
	svc := NewCourseService(repo, &mockStudents{}, nil, observer, 0, nil, zap.NewNop())

	_, _, err := svc.List(context.Background(), 1, 20)
	require.NoError(t, err)
	assert.Zero(t, observer.hits)
	assert.Zero(t, observer.misses, "no cache configured, nothing to count as a miss")
}

func TestCourseServiceListRecordsHitsAndMisses(t *testing.T) {
	repo := &mockCourseRepo{}
	observer := &recordingObserver{}
	svc := NewCourseService(repo, &mockStudents{}, &memoryCache{}, observer, time.Minute, nil, zap.NewNop())

	_, _, err := svc.List(context.Background(), 1, 20)
	require.NoError(t, err)
	assert.Equal(t, 1, observer.misses)

	_, _, err = svc.List(context.Background(), 1, 20)
	require.NoError(t, err)
	assert.Equal(t, 1, observer.hits)
}

func TestCourseServiceSearchShortQueryReturnsEmpty(t *testing.T) {
	repo := &mockCourseRepo{searchHits: []models.CourseSearchResult{{ID: 1, Name: "Computing", CourseCode: "CS101"}}}
	svc := newTestCourseService(repo, &mockStudents{}, nil)

	results, err := svc.SearchUnenrolledForStudent(context.Background(), " c ", 1)
	require.NoError(t, err)
	assert.Empty(t, results)

	results, err = svc.SearchUnenrolledForStudent(context.Background(), "co", 1)
	require.NoError(t, err)
	assert.Len(t, results, 1)
}

func TestCourseServiceSearchRequiresStudentID(t *testing.T) {
	svc := newTestCourseService(&mockCourseRepo{}, &mockStudents{}, nil)

	_, err := svc.SearchUnenrolledForStudent(context.Background(), "computing", 0)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Status, appErrors.FromError(err).Status)
}

func TestCourseServiceStudentViewResolvesCaller(t *testing.T) {
	repo := &mockCourseRepo{}
	students := &mockStudents{byUserID: map[int64]*models.Student{10: student(1, 10)}}
	svc := newTestCourseService(repo, students, nil)
	_, err := svc.Create(context.Background(), CreateCourseRequest{CourseCode: "CS101", Name: "Computing"})
	require.NoError(t, err)

	courses, err := svc.StudentView(context.Background(), models.AuthContext{UserID: 10, Role: models.RoleStudent})
	require.NoError(t, err)
	assert.Len(t, courses, 1)

	_, err = svc.StudentView(context.Background(), models.AuthContext{UserID: 77, Role: models.RoleStudent})
	require.Error(t, err)
	assert.Equal(t, "student profile not found", appErrors.FromError(err).Message)
}
