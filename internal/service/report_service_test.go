package service

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/edu-records-api/internal/models"
	"github.com/noah-isme/edu-records-api/internal/repository"
	"github.com/noah-isme/edu-records-api/pkg/jobs"
	"github.com/noah-isme/edu-records-api/pkg/storage"
)

type mockReportRepo struct {
	mu   sync.Mutex
	jobs map[string]*models.ReportJob
}

func newMockReportRepo() *mockReportRepo {
	return &mockReportRepo{jobs: make(map[string]*models.ReportJob)}
}

func (m *mockReportRepo) Create(_ context.Context, job *models.ReportJob) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	copied := *job
	m.jobs[job.ID] = &copied
	return nil
}

func (m *mockReportRepo) FindByID(_ context.Context, id string) (*models.ReportJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copied := *job
	return &copied, nil
}

func (m *mockReportRepo) Update(_ context.Context, id string, params repository.UpdateReportJobParams) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[id]
	if !ok {
		return sql.ErrNoRows
	}
	if params.Status != nil {
		job.Status = *params.Status
	}
	if params.ResultURL != nil {
		job.ResultURL = params.ResultURL
	}
	if params.ErrorMessage != nil {
		job.ErrorMessage = params.ErrorMessage
	}
	if params.FinishedAt != nil {
		job.FinishedAt = params.FinishedAt
	}
	return nil
}

func (m *mockReportRepo) ListByCreator(_ context.Context, createdBy string, limit int) ([]models.ReportJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.ReportJob
	for _, job := range m.jobs {
		if job.CreatedBy == createdBy {
			out = append(out, *job)
		}
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

type mockDispatcher struct {
	enqueued []jobs.Job
	err      error
}

func (m *mockDispatcher) Enqueue(job jobs.Job) error {
	if m.err != nil {
		return m.err
	}
	m.enqueued = append(m.enqueued, job)
	return nil
}

type stubAttendanceLister struct {
	records []models.Attendance
	filter  models.AttendanceFilter
}

func (s *stubAttendanceLister) List(_ context.Context, filter models.AttendanceFilter) ([]models.Attendance, int, error) {
	s.filter = filter
	return s.records, len(s.records), nil
}

type stubMarkLister struct {
	records []models.Mark
}

func (s *stubMarkLister) List(_ context.Context, _ models.MarkFilter) ([]models.Mark, int, error) {
	return s.records, len(s.records), nil
}

func newReportFixture(t *testing.T, attendance *stubAttendanceLister, marks *stubMarkLister) (*ReportService, *mockReportRepo, *mockDispatcher) {
	t.Helper()
	files, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	repo := newMockReportRepo()
	dispatcher := &mockDispatcher{}
	svc := NewReportService(
		repo,
		attendance,
		marks,
		files,
		storage.NewSignedURLSigner("report-test-secret", time.Hour),
		NewMetricsService(),
		nil,
		nil,
		ReportServiceConfig{ResultTTL: time.Hour},
	)
	svc.SetQueue(dispatcher)
	return svc, repo, dispatcher
}

func hodClaims() *models.JWTClaims {
	return &models.JWTClaims{UserID: "h1", Role: models.RoleHOD, Department: "CS"}
}

func TestReportCreateJobQueuesAndScopesHOD(t *testing.T) {
	svc, repo, dispatcher := newReportFixture(t, &stubAttendanceLister{}, &stubMarkLister{})

	job, err := svc.CreateJob(context.Background(), hodClaims(), models.CreateReportRequest{
		Type:       models.ReportTypeAttendance,
		Format:     models.ReportFormatCSV,
		Department: "EE",
	})
	require.NoError(t, err)

	assert.Equal(t, models.ReportStatusQueued, job.Status)
	assert.Equal(t, "CS", job.Params.Department, "HOD requests stay inside their own department")
	require.Len(t, dispatcher.enqueued, 1)
	assert.Equal(t, job.ID, dispatcher.enqueued[0].ID)

	stored, err := repo.FindByID(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, "h1", stored.CreatedBy)
}

func TestReportCreateJobRejectsStudents(t *testing.T) {
	svc, _, _ := newReportFixture(t, &stubAttendanceLister{}, &stubMarkLister{})

	_, err := svc.CreateJob(context.Background(), studentClaims(), models.CreateReportRequest{
		Type:   models.ReportTypeMarks,
		Format: models.ReportFormatCSV,
	})
	require.Error(t, err)
	assert.Equal(t, http.StatusForbidden, appStatus(t, err))
}

func TestReportMarkExhaustedFailsJob(t *testing.T) {
	svc, repo, _ := newReportFixture(t, &stubAttendanceLister{}, &stubMarkLister{})

	job, err := svc.CreateJob(context.Background(), hodClaims(), models.CreateReportRequest{
		Type:   models.ReportTypeAttendance,
		Format: models.ReportFormatCSV,
	})
	require.NoError(t, err)

	svc.MarkExhausted(context.Background(), job.ID, errors.New("render keeps failing"))

	stored, err := repo.FindByID(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ReportStatusFailed, stored.Status)
	require.NotNil(t, stored.ErrorMessage)
	assert.Equal(t, "export failed after retries", *stored.ErrorMessage)
}

func TestReportCreateJobMarksFailedWhenEnqueueFails(t *testing.T) {
	svc, repo, dispatcher := newReportFixture(t, &stubAttendanceLister{}, &stubMarkLister{})
	dispatcher.err = errors.New("queue is full")

	job, err := svc.CreateJob(context.Background(), hodClaims(), models.CreateReportRequest{
		Type:   models.ReportTypeAttendance,
		Format: models.ReportFormatCSV,
	})
	require.Error(t, err)
	assert.Nil(t, job)

	var stored *models.ReportJob
	for _, j := range repo.jobs {
		stored = j
	}
	require.NotNil(t, stored)
	assert.Equal(t, models.ReportStatusFailed, stored.Status)
	require.NotNil(t, stored.ErrorMessage)
}

func TestReportProcessRendersCSVAndDownloadRoundTrips(t *testing.T) {
	student := "Alice"
	subject := "Algorithms"
	attendance := &stubAttendanceLister{records: []models.Attendance{
		{
			StudentID:   "s1",
			StudentName: &student,
			SubjectID:   "sub1",
			SubjectName: &subject,
			Date:        time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC),
			Status:      models.AttendancePresent,
			MarkedBy:    "f1",
		},
	}}
	svc, repo, _ := newReportFixture(t, attendance, &stubMarkLister{})

	job, err := svc.CreateJob(context.Background(), hodClaims(), models.CreateReportRequest{
		Type:   models.ReportTypeAttendance,
		Format: models.ReportFormatCSV,
	})
	require.NoError(t, err)

	require.NoError(t, svc.Process(context.Background(), jobs.Job{ID: job.ID, Kind: string(job.Type)}))

	finished, err := repo.FindByID(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ReportStatusFinished, finished.Status)
	require.NotNil(t, finished.ResultURL)
	require.NotNil(t, finished.FinishedAt)
	assert.Equal(t, "CS", attendance.filter.Department)

	token := strings.TrimPrefix(*finished.ResultURL, "/api/v1/reports/download/")
	download, err := svc.ResolveDownload(context.Background(), token)
	require.NoError(t, err)
	defer download.File.Close()

	body, err := io.ReadAll(download.File)
	require.NoError(t, err)
	assert.Contains(t, string(body), "Alice")
	assert.Contains(t, string(body), "PRESENT")
	assert.Equal(t, models.ReportFormatCSV, download.Format)
}

func TestReportProcessRendersMarksPDF(t *testing.T) {
	marks := &stubMarkLister{records: []models.Mark{
		{StudentID: "s1", SubjectID: "sub1", ExamType: "MIDTERM", MarksObtained: 42, MaxMarks: 50, GradedBy: "f1"},
	}}
	svc, repo, _ := newReportFixture(t, &stubAttendanceLister{}, marks)

	job, err := svc.CreateJob(context.Background(), hodClaims(), models.CreateReportRequest{
		Type:   models.ReportTypeMarks,
		Format: models.ReportFormatPDF,
	})
	require.NoError(t, err)

	require.NoError(t, svc.Process(context.Background(), jobs.Job{ID: job.ID, Kind: string(job.Type)}))

	finished, err := repo.FindByID(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ReportStatusFinished, finished.Status)

	token := strings.TrimPrefix(*finished.ResultURL, "/api/v1/reports/download/")
	download, err := svc.ResolveDownload(context.Background(), token)
	require.NoError(t, err)
	defer download.File.Close()
	assert.Equal(t, models.ReportFormatPDF, download.Format)
	assert.True(t, strings.HasSuffix(download.Filename, ".pdf"))
}

func TestReportDownloadRejectsUnfinishedJob(t *testing.T) {
	svc, _, _ := newReportFixture(t, &stubAttendanceLister{}, &stubMarkLister{})

	_, err := svc.CreateJob(context.Background(), hodClaims(), models.CreateReportRequest{
		Type:   models.ReportTypeAttendance,
		Format: models.ReportFormatCSV,
	})
	require.NoError(t, err)

	_, err = svc.ResolveDownload(context.Background(), "not-a-real-token")
	require.Error(t, err)
	assert.Equal(t, http.StatusForbidden, appStatus(t, err))
}

func TestReportGetStatusEnforcesOwnership(t *testing.T) {
	svc, _, _ := newReportFixture(t, &stubAttendanceLister{}, &stubMarkLister{})

	job, err := svc.CreateJob(context.Background(), hodClaims(), models.CreateReportRequest{
		Type:   models.ReportTypeAttendance,
		Format: models.ReportFormatCSV,
	})
	require.NoError(t, err)

	_, err = svc.GetStatus(context.Background(), &models.JWTClaims{UserID: "other", Role: models.RoleFaculty}, job.ID)
	require.Error(t, err)
	assert.Equal(t, http.StatusForbidden, appStatus(t, err))

	admin := &models.JWTClaims{UserID: "a1", Role: models.RoleAdmin}
	got, err := svc.GetStatus(context.Background(), admin, job.ID)
	require.NoError(t, err)
	assert.Equal(t, job.ID, got.ID)
}
