package service

import (
	"context"
	"database/sql"
	"net/http"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/edu-records-api/internal/models"
	appErrors "github.com/noah-isme/edu-records-api/pkg/errors"
)

type mockMarkRepo struct {
	marks      map[string]*models.Mark
	listFilter models.MarkFilter
	listResult []models.Mark
	created    []*models.Mark
	updated    []*models.Mark
	deleted    []string
}

func (m *mockMarkRepo) List(ctx context.Context, filter models.MarkFilter) ([]models.Mark, int, error) {
	m.listFilter = filter
	return m.listResult, len(m.listResult), nil
}

func (m *mockMarkRepo) FindByID(ctx context.Context, id string) (*models.Mark, error) {
	if mk, ok := m.marks[id]; ok {
		return mk, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockMarkRepo) ExistsForAssessment(ctx context.Context, studentID, subjectID, assignmentID, examType string) (bool, error) {
	for _, mk := range m.marks {
		if mk.StudentID != studentID {
			continue
		}
		if assignmentID != "" && mk.AssignmentID != nil && *mk.AssignmentID == assignmentID {
			return true, nil
		}
		if mk.SubjectID == subjectID && mk.ExamType == examType {
			return true, nil
		}
	}
	return false, nil
}

func (m *mockMarkRepo) Create(ctx context.Context, mark *models.Mark) error {
	if m.marks == nil {
		m.marks = make(map[string]*models.Mark)
	}
	m.marks[mark.ID] = mark
	m.created = append(m.created, mark)
	return nil
}

func (m *mockMarkRepo) Update(ctx context.Context, mark *models.Mark) error {
	m.updated = append(m.updated, mark)
	return nil
}

func (m *mockMarkRepo) Delete(ctx context.Context, id string) error {
	m.deleted = append(m.deleted, id)
	return nil
}

func newMarkService(repo *mockMarkRepo, policies map[models.UserRole]*models.VisibilityPolicy) *MarkService {
	gate := NewAccessGate(&mockPolicyReader{policies: policies})
	return NewMarkService(repo, gate, validator.New(), zap.NewNop())
}

func markPolicies() map[models.UserRole]*models.VisibilityPolicy {
	return map[models.UserRole]*models.VisibilityPolicy{
		models.RoleFaculty: {Role: models.RoleFaculty, ShowMarks: true, FacultyCanUpdateMarks: true},
		models.RoleStudent: {Role: models.RoleStudent, ShowMarks: true},
	}
}

func TestMarkCreateOutOfRangeRejected(t *testing.T) {
	svc := newMarkService(&mockMarkRepo{}, markPolicies())
	faculty := &models.JWTClaims{UserID: "f1", Role: models.RoleFaculty}

	_, err := svc.Create(context.Background(), faculty, models.CreateMarkRequest{
		StudentID:     "s1",
		SubjectID:     "sub1",
		ExamType:      "midterm",
		MarksObtained: 150,
		MaxMarks:      100,
	})
	require.Error(t, err)
	assert.Equal(t, http.StatusBadRequest, appStatus(t, err))
}

func TestMarkCreateWithinRangeSucceeds(t *testing.T) {
	repo := &mockMarkRepo{}
	svc := newMarkService(repo, markPolicies())
	faculty := &models.JWTClaims{UserID: "f1", Role: models.RoleFaculty}

	mark, err := svc.Create(context.Background(), faculty, models.CreateMarkRequest{
		StudentID:     "s1",
		SubjectID:     "sub1",
		ExamType:      "midterm",
		MarksObtained: 80,
		MaxMarks:      100,
	})
	require.NoError(t, err)
	assert.Equal(t, 80.0, mark.MarksObtained)
	assert.Equal(t, "f1", mark.GradedBy)
	require.Len(t, repo.created, 1)
}

func TestMarkCreateDuplicateAssessmentConflicts(t *testing.T) {
	repo := &mockMarkRepo{marks: map[string]*models.Mark{
		"m1": {ID: "m1", StudentID: "s1", SubjectID: "sub1", ExamType: "midterm", GradedBy: "f1"},
	}}
	svc := newMarkService(repo, markPolicies())
	faculty := &models.JWTClaims{UserID: "f1", Role: models.RoleFaculty}

	_, err := svc.Create(context.Background(), faculty, models.CreateMarkRequest{
		StudentID:     "s1",
		SubjectID:     "sub1",
		ExamType:      "midterm",
		MarksObtained: 60,
		MaxMarks:      100,
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
}

func TestMarkCreateFacultyDeniedWithoutFlag(t *testing.T) {
	svc := newMarkService(&mockMarkRepo{}, map[models.UserRole]*models.VisibilityPolicy{
		models.RoleFaculty: {Role: models.RoleFaculty, ShowMarks: true},
	})
	faculty := &models.JWTClaims{UserID: "f1", Role: models.RoleFaculty}

	_, err := svc.Create(context.Background(), faculty, models.CreateMarkRequest{
		StudentID:     "s1",
		SubjectID:     "sub1",
		ExamType:      "midterm",
		MarksObtained: 60,
		MaxMarks:      100,
	})
	require.Error(t, err)
	assert.Equal(t, http.StatusForbidden, appStatus(t, err))
}

func TestMarkUpdateForeignFacultyForbidden(t *testing.T) {
	repo := &mockMarkRepo{marks: map[string]*models.Mark{
		"m1": {ID: "m1", StudentID: "s1", SubjectID: "sub1", GradedBy: "f1", MarksObtained: 80, MaxMarks: 100},
	}}
	svc := newMarkService(repo, markPolicies())
	stranger := &models.JWTClaims{UserID: "f2", Role: models.RoleFaculty}

	_, err := svc.Update(context.Background(), stranger, "m1", models.UpdateMarkRequest{MarksObtained: floatptr(90)})
	require.Error(t, err)
	assert.Equal(t, http.StatusForbidden, appStatus(t, err))
}

func TestMarkUpdateByGraderSkipsRangeCheck(t *testing.T) {
	repo := &mockMarkRepo{marks: map[string]*models.Mark{
		"m1": {ID: "m1", StudentID: "s1", SubjectID: "sub1", GradedBy: "f1", MarksObtained: 80, MaxMarks: 100},
	}}
	svc := newMarkService(repo, markPolicies())
	grader := &models.JWTClaims{UserID: "f1", Role: models.RoleFaculty}

	updated, err := svc.Update(context.Background(), grader, "m1", models.UpdateMarkRequest{MarksObtained: floatptr(150)})
	require.NoError(t, err, "the update path does not validate the range")
	assert.Equal(t, 150.0, updated.MarksObtained)
}

func TestMarkListStudentScopedToSelf(t *testing.T) {
	repo := &mockMarkRepo{listResult: []models.Mark{{ID: "m1", StudentID: "s1"}}}
	svc := newMarkService(repo, markPolicies())

	_, _, err := svc.List(context.Background(), studentClaims(), models.MarkFilter{StudentID: "someone-else"})
	require.NoError(t, err)
	assert.Equal(t, "s1", repo.listFilter.StudentID)
}

func TestMarkListHODRequiresDepartmentFlag(t *testing.T) {
	svc := newMarkService(&mockMarkRepo{}, map[models.UserRole]*models.VisibilityPolicy{
		models.RoleHOD: {Role: models.RoleHOD, ShowMarks: true},
	})

	_, _, err := svc.List(context.Background(), hodClaims(), models.MarkFilter{})
	require.Error(t, err)
	assert.Equal(t, http.StatusForbidden, appStatus(t, err))
}

func TestMarkDeleteByAdmin(t *testing.T) {
	repo := &mockMarkRepo{marks: map[string]*models.Mark{
		"m1": {ID: "m1", GradedBy: "f1"},
	}}
	svc := newMarkService(repo, nil)
	admin := &models.JWTClaims{UserID: "a1", Role: models.RoleAdmin}

	require.NoError(t, svc.Delete(context.Background(), admin, "m1"))
	assert.Equal(t, []string{"m1"}, repo.deleted)
}
