package service

import (
	"context"
	"database/sql"
	"net/http"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/edu-records-api/internal/models"
)

type mockAttendanceRepo struct {
	records    map[string]*models.Attendance
	listFilter models.AttendanceFilter
	listResult []models.Attendance
	upserts    []*models.Attendance
	deleted    []string
}

func attendanceKey(studentID, subjectID string, date time.Time) string {
	return studentID + "/" + subjectID + "/" + date.Format("2006-01-02")
}

func (m *mockAttendanceRepo) List(ctx context.Context, filter models.AttendanceFilter) ([]models.Attendance, int, error) {
	m.listFilter = filter
	return m.listResult, len(m.listResult), nil
}

func (m *mockAttendanceRepo) FindByID(ctx context.Context, id string) (*models.Attendance, error) {
	for _, rec := range m.records {
		if rec.ID == id {
			return rec, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m *mockAttendanceRepo) Upsert(ctx context.Context, record *models.Attendance) error {
	if m.records == nil {
		m.records = make(map[string]*models.Attendance)
	}
	key := attendanceKey(record.StudentID, record.SubjectID, record.Date)
	if existing, ok := m.records[key]; ok {
		existing.Status = record.Status
		existing.MarkedBy = record.MarkedBy
		existing.UpdatedAt = record.UpdatedAt
		*record = *existing
	} else {
		m.records[key] = record
	}
	m.upserts = append(m.upserts, record)
	return nil
}

func (m *mockAttendanceRepo) UpdateStatus(ctx context.Context, id string, status models.AttendanceStatus, markedBy string) error {
	for _, rec := range m.records {
		if rec.ID == id {
			rec.Status = status
			rec.MarkedBy = markedBy
			return nil
		}
	}
	return sql.ErrNoRows
}

func (m *mockAttendanceRepo) Delete(ctx context.Context, id string) error {
	m.deleted = append(m.deleted, id)
	return nil
}

func newAttendanceService(repo *mockAttendanceRepo, policies map[models.UserRole]*models.VisibilityPolicy) *AttendanceService {
	gate := NewAccessGate(&mockPolicyReader{policies: policies})
	return NewAttendanceService(repo, gate, validator.New(), zap.NewNop())
}

func facultyPolicies() map[models.UserRole]*models.VisibilityPolicy {
	return map[models.UserRole]*models.VisibilityPolicy{
		models.RoleFaculty: {Role: models.RoleFaculty, ShowAttendance: true, FacultyCanUpdateAttendance: true},
		models.RoleStudent: {Role: models.RoleStudent, ShowAttendance: true},
	}
}

func TestAttendanceListStudentScopedToSelf(t *testing.T) {
	repo := &mockAttendanceRepo{listResult: []models.Attendance{{ID: "at1", StudentID: "s1"}}}
	svc := newAttendanceService(repo, facultyPolicies())

	_, _, err := svc.List(context.Background(), studentClaims(), models.AttendanceFilter{StudentID: "someone-else"})
	require.NoError(t, err)
	assert.Equal(t, "s1", repo.listFilter.StudentID, "student filters are forced to the caller's own records")
}

func TestAttendanceListHODRequiresDepartmentFlag(t *testing.T) {
	svc := newAttendanceService(&mockAttendanceRepo{}, map[models.UserRole]*models.VisibilityPolicy{
		models.RoleHOD: {Role: models.RoleHOD, ShowAttendance: true},
	})

	_, _, err := svc.List(context.Background(), hodClaims(), models.AttendanceFilter{})
	require.Error(t, err)
	assert.Equal(t, http.StatusForbidden, appStatus(t, err))
}

func TestAttendanceListDeniedWithoutPolicy(t *testing.T) {
	svc := newAttendanceService(&mockAttendanceRepo{}, nil)

	_, _, err := svc.List(context.Background(), studentClaims(), models.AttendanceFilter{})
	require.Error(t, err)
	assert.Equal(t, http.StatusForbidden, appStatus(t, err))
}

func TestAttendanceMarkCreatesRecord(t *testing.T) {
	repo := &mockAttendanceRepo{}
	svc := newAttendanceService(repo, facultyPolicies())
	faculty := &models.JWTClaims{UserID: "f1", Role: models.RoleFaculty, Department: "CS"}

	record, err := svc.Mark(context.Background(), faculty, models.MarkAttendanceRequest{
		StudentID: "s1",
		SubjectID: "sub1",
		Date:      time.Date(2026, 2, 10, 9, 30, 0, 0, time.UTC),
		Status:    models.AttendancePresent,
	})
	require.NoError(t, err)
	assert.Equal(t, models.AttendancePresent, record.Status)
	assert.Equal(t, "f1", record.MarkedBy)
	assert.Equal(t, time.Date(2026, 2, 10, 0, 0, 0, 0, time.UTC), record.Date, "the date is truncated to the day")
}

func TestAttendanceMarkSameSessionUpserts(t *testing.T) {
	repo := &mockAttendanceRepo{}
	svc := newAttendanceService(repo, facultyPolicies())
	faculty := &models.JWTClaims{UserID: "f1", Role: models.RoleFaculty}
	day := time.Date(2026, 2, 10, 0, 0, 0, 0, time.UTC)

	first, err := svc.Mark(context.Background(), faculty, models.MarkAttendanceRequest{
		StudentID: "s1", SubjectID: "sub1", Date: day, Status: models.AttendanceAbsent,
	})
	require.NoError(t, err)

	second, err := svc.Mark(context.Background(), faculty, models.MarkAttendanceRequest{
		StudentID: "s1", SubjectID: "sub1", Date: day, Status: models.AttendancePresent,
	})
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID, "same (student, subject, date) updates in place")
	assert.Equal(t, models.AttendancePresent, second.Status)
	assert.Len(t, repo.records, 1)
}

func TestAttendanceMarkFacultyDeniedWithoutUpdateFlag(t *testing.T) {
	svc := newAttendanceService(&mockAttendanceRepo{}, map[models.UserRole]*models.VisibilityPolicy{
		models.RoleFaculty: {Role: models.RoleFaculty, ShowAttendance: true},
	})
	faculty := &models.JWTClaims{UserID: "f1", Role: models.RoleFaculty}

	_, err := svc.Mark(context.Background(), faculty, models.MarkAttendanceRequest{
		StudentID: "s1", SubjectID: "sub1", Date: time.Now(), Status: models.AttendancePresent,
	})
	require.Error(t, err)
	assert.Equal(t, http.StatusForbidden, appStatus(t, err))
}

func TestAttendanceMarkUnknownStatus(t *testing.T) {
	svc := newAttendanceService(&mockAttendanceRepo{}, facultyPolicies())
	faculty := &models.JWTClaims{UserID: "f1", Role: models.RoleFaculty}

	_, err := svc.Mark(context.Background(), faculty, models.MarkAttendanceRequest{
		StudentID: "s1", SubjectID: "sub1", Date: time.Now(), Status: "SLEEPING",
	})
	require.Error(t, err)
	assert.Equal(t, http.StatusBadRequest, appStatus(t, err))
}

func TestAttendanceUpdateStatus(t *testing.T) {
	repo := &mockAttendanceRepo{records: map[string]*models.Attendance{
		"k": {ID: "at1", StudentID: "s1", SubjectID: "sub1", Status: models.AttendanceAbsent},
	}}
	svc := newAttendanceService(repo, facultyPolicies())
	faculty := &models.JWTClaims{UserID: "f1", Role: models.RoleFaculty}

	record, err := svc.UpdateStatus(context.Background(), faculty, "at1", models.AttendanceLeave)
	require.NoError(t, err)
	assert.Equal(t, models.AttendanceLeave, record.Status)
	assert.Equal(t, "f1", record.MarkedBy)
}

func TestAttendanceDeleteMissing(t *testing.T) {
	svc := newAttendanceService(&mockAttendanceRepo{}, nil)
	admin := &models.JWTClaims{UserID: "a1", Role: models.RoleAdmin}

	err := svc.Delete(context.Background(), admin, "ghost")
	require.Error(t, err)
	assert.Equal(t, http.StatusNotFound, appStatus(t, err))
}
