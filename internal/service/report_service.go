package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/edu-records-api/internal/models"
	"github.com/noah-isme/edu-records-api/internal/repository"
	appErrors "github.com/noah-isme/edu-records-api/pkg/errors"
	"github.com/noah-isme/edu-records-api/pkg/export"
	"github.com/noah-isme/edu-records-api/pkg/jobs"
)

type reportJobStore interface {
	Create(ctx context.Context, job *models.ReportJob) error
	FindByID(ctx context.Context, id string) (*models.ReportJob, error)
	Update(ctx context.Context, id string, params repository.UpdateReportJobParams) error
	ListByCreator(ctx context.Context, createdBy string, limit int) ([]models.ReportJob, error)
}

type jobDispatcher interface {
	Enqueue(job jobs.Job) error
}

type attendanceLister interface {
	List(ctx context.Context, filter models.AttendanceFilter) ([]models.Attendance, int, error)
}

type markLister interface {
	List(ctx context.Context, filter models.MarkFilter) ([]models.Mark, int, error)
}

type exportFileStore interface {
	Save(filename string, data []byte) (string, error)
	Open(filename string) (*os.File, error)
	CleanupOlderThan(ttl time.Duration) ([]string, error)
}

type downloadSigner interface {
	Generate(refID, relPath string) (string, time.Time, error)
	Parse(token string, allowExpired bool) (refID, relPath string, expiresAt time.Time, err error)
}

// ReportServiceConfig governs export retention and pagination bounds.
type ReportServiceConfig struct {
	ResultTTL       time.Duration
	CleanupInterval time.Duration
	DownloadPrefix  string
	MaxRows         int
}

// ReportDownload aggregates resolved download data.
type ReportDownload struct {
	File      *os.File
	Filename  string
	Format    models.ReportFormat
	ExpiresAt time.Time
}

// ReportService queues attendance and marks exports, renders them in the
// background and serves the results through signed download tokens.
type ReportService struct {
	repo       reportJobStore
	attendance attendanceLister
	marks      markLister
	files      exportFileStore
	signer     downloadSigner
	queue      jobDispatcher
	csv        *export.CSVExporter
	pdf        *export.PDFExporter
	metrics    *MetricsService
	validator  *validator.Validate
	logger     *zap.Logger
	cfg        ReportServiceConfig
}

// NewReportService constructs the report service. Call SetQueue before the
// first CreateJob; the queue handler itself calls back into Process.
func NewReportService(repo reportJobStore, attendance attendanceLister, marks markLister, files exportFileStore, signer downloadSigner, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger, cfg ReportServiceConfig) *ReportService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ResultTTL <= 0 {
		cfg.ResultTTL = 24 * time.Hour
	}
	if cfg.DownloadPrefix == "" {
		cfg.DownloadPrefix = "/api/v1/reports/download/"
	}
	if cfg.MaxRows <= 0 {
		cfg.MaxRows = 10000
	}
	return &ReportService{
		repo:       repo,
		attendance: attendance,
		marks:      marks,
		files:      files,
		signer:     signer,
		csv:        export.NewCSVExporter(),
		pdf:        export.NewPDFExporter(),
		metrics:    metrics,
		validator:  validate,
		logger:     logger,
		cfg:        cfg,
	}
}

// SetQueue wires the dispatcher after construction; the queue handler needs
// the service and the service needs the queue.
func (s *ReportService) SetQueue(queue jobDispatcher) {
	s.queue = queue
}

// CreateJob validates the request, persists the job row and enqueues
// processing. Students may not request exports; HODs are pinned to their own
// department.
func (s *ReportService) CreateJob(ctx context.Context, claims *models.JWTClaims, req models.CreateReportRequest) (*models.ReportJob, error) {
	if claims == nil {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "missing authenticated user")
	}
	if claims.Role == models.RoleStudent {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "students may not request exports")
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid report payload")
	}
	if claims.Role == models.RoleHOD {
		req.Department = claims.Department
	}

	job := &models.ReportJob{
		ID:   uuid.NewString(),
		Type: req.Type,
		Params: models.ReportJobParams{
			Department: req.Department,
			Semester:   req.Semester,
			SubjectID:  req.SubjectID,
			Format:     req.Format,
		},
		Status:    models.ReportStatusQueued,
		CreatedBy: claims.UserID,
		CreatedAt: time.Now().UTC(),
	}

	if err := s.repo.Create(ctx, job); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create report job")
	}

	if s.queue == nil {
		return nil, appErrors.Clone(appErrors.ErrInternal, "report queue is not running")
	}
	if err := s.queue.Enqueue(jobs.Job{ID: job.ID, Kind: string(job.Type)}); err != nil {
		s.failJob(ctx, job.ID, "failed to enqueue job")
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to enqueue report job")
	}

	return job, nil
}

// GetStatus returns job metadata, creator or admin only.
func (s *ReportService) GetStatus(ctx context.Context, claims *models.JWTClaims, id string) (*models.ReportJob, error) {
	job, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "report job not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load report job")
	}
	if err := RequireOwner(claims, job.CreatedBy); err != nil {
		return nil, err
	}
	return job, nil
}

// ListOwn returns the caller's recent jobs.
func (s *ReportService) ListOwn(ctx context.Context, claims *models.JWTClaims, limit int) ([]models.ReportJob, error) {
	if claims == nil {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "missing authenticated user")
	}
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	listed, err := s.repo.ListByCreator(ctx, claims.UserID, limit)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list report jobs")
	}
	return listed, nil
}

// ResolveDownload validates the signed token and opens the export file.
func (s *ReportService) ResolveDownload(ctx context.Context, token string) (*ReportDownload, error) {
	jobID, relPath, expiresAt, err := s.signer.Parse(token, false)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "invalid or expired download token")
	}
	job, err := s.repo.FindByID(ctx, jobID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "report job not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load report job")
	}
	if job.ResultURL == nil || !strings.HasSuffix(*job.ResultURL, token) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "token mismatch")
	}
	if job.Status != models.ReportStatusFinished {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "report not ready")
	}
	file, err := s.files.Open(relPath)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to open export file")
	}
	return &ReportDownload{
		File:      file,
		Filename:  filepath.Base(relPath),
		Format:    job.Params.Format,
		ExpiresAt: expiresAt,
	}, nil
}

// Process is the queue handler: it renders the export and finishes the job.
func (s *ReportService) Process(ctx context.Context, job jobs.Job) error {
	row, err := s.repo.FindByID(ctx, job.ID)
	if err != nil {
		return fmt.Errorf("load report job %s: %w", job.ID, err)
	}

	processing := models.ReportStatusProcessing
	if err := s.repo.Update(ctx, row.ID, repository.UpdateReportJobParams{Status: &processing}); err != nil {
		s.logger.Warn("failed to mark report job processing", zap.String("job_id", row.ID), zap.Error(err))
	}

	dataset, err := s.buildDataset(ctx, row)
	if err != nil {
		s.failJob(ctx, row.ID, err.Error())
		return err
	}

	var payload []byte
	ext := "csv"
	switch row.Params.Format {
	case models.ReportFormatPDF:
		payload, err = s.pdf.Render(dataset)
		ext = "pdf"
	default:
		payload, err = s.csv.Render(dataset)
	}
	if err != nil {
		s.failJob(ctx, row.ID, "failed to render export")
		return fmt.Errorf("render export for job %s: %w", row.ID, err)
	}

	relPath := fmt.Sprintf("reports/%s.%s", row.ID, ext)
	if _, err := s.files.Save(relPath, payload); err != nil {
		s.failJob(ctx, row.ID, "failed to store export file")
		return fmt.Errorf("store export for job %s: %w", row.ID, err)
	}

	token, _, err := s.signer.Generate(row.ID, relPath)
	if err != nil {
		s.failJob(ctx, row.ID, "failed to sign download url")
		return fmt.Errorf("sign download for job %s: %w", row.ID, err)
	}

	finished := models.ReportStatusFinished
	resultURL := s.cfg.DownloadPrefix + token
	now := time.Now().UTC()
	if err := s.repo.Update(ctx, row.ID, repository.UpdateReportJobParams{
		Status:     &finished,
		ResultURL:  &resultURL,
		FinishedAt: &now,
	}); err != nil {
		return fmt.Errorf("finish report job %s: %w", row.ID, err)
	}

	s.metrics.ObserveReportJob(models.ReportStatusFinished)
	s.logger.Info("report job finished", zap.String("job_id", row.ID), zap.String("type", string(row.Type)), zap.String("format", string(row.Params.Format)))
	return nil
}

// MarkExhausted flags a job FAILED after the queue gives up retrying it,
// so it does not sit in PROCESSING forever.
func (s *ReportService) MarkExhausted(ctx context.Context, jobID string, cause error) {
	s.logger.Error("report job exhausted retries", zap.String("job_id", jobID), zap.Error(cause))
	s.failJob(ctx, jobID, "export failed after retries")
}

// StartCleanup boots a goroutine that purges expired export files.
func (s *ReportService) StartCleanup(ctx context.Context) {
	if s.cfg.CleanupInterval <= 0 {
		return
	}
	ticker := time.NewTicker(s.cfg.CleanupInterval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				removed, err := s.files.CleanupOlderThan(s.cfg.ResultTTL)
				if err != nil {
					s.logger.Warn("export cleanup failed", zap.Error(err))
					continue
				}
				if len(removed) > 0 {
					s.logger.Info("expired exports removed", zap.Int("count", len(removed)))
				}
			}
		}
	}()
}

func (s *ReportService) buildDataset(ctx context.Context, job *models.ReportJob) (export.Dataset, error) {
	switch job.Type {
	case models.ReportTypeAttendance:
		filter := models.AttendanceFilter{
			SubjectID:  job.Params.SubjectID,
			Department: job.Params.Department,
			PageSize:   s.cfg.MaxRows,
			Page:       1,
		}
		records, _, err := s.attendance.List(ctx, filter)
		if err != nil {
			return export.Dataset{}, fmt.Errorf("load attendance rows: %w", err)
		}
		dataset := export.Dataset{
			Title:       "Attendance Report",
			GeneratedAt: time.Now().UTC(),
			Columns: []export.Column{
				{Title: "Student", Weight: 3},
				{Title: "Subject", Weight: 3},
				{Title: "Date", Weight: 2, Align: "C"},
				{Title: "Status", Weight: 2, Align: "C"},
				{Title: "Marked By", Weight: 2},
			},
		}
		for _, rec := range records {
			dataset.Rows = append(dataset.Rows, []string{
				stringOrID(rec.StudentName, rec.StudentID),
				stringOrID(rec.SubjectName, rec.SubjectID),
				rec.Date.Format("2006-01-02"),
				string(rec.Status),
				rec.MarkedBy,
			})
		}
		return dataset, nil
	case models.ReportTypeMarks:
		filter := models.MarkFilter{
			SubjectID:  job.Params.SubjectID,
			Department: job.Params.Department,
			PageSize:   s.cfg.MaxRows,
			Page:       1,
		}
		records, _, err := s.marks.List(ctx, filter)
		if err != nil {
			return export.Dataset{}, fmt.Errorf("load mark rows: %w", err)
		}
		dataset := export.Dataset{
			Title:       "Marks Report",
			GeneratedAt: time.Now().UTC(),
			Columns: []export.Column{
				{Title: "Student", Weight: 3},
				{Title: "Subject", Weight: 3},
				{Title: "Exam", Weight: 2, Align: "C"},
				{Title: "Marks", Weight: 1, Align: "R"},
				{Title: "Max Marks", Weight: 1, Align: "R"},
				{Title: "Graded By", Weight: 2},
			},
		}
		for _, rec := range records {
			dataset.Rows = append(dataset.Rows, []string{
				stringOrID(rec.StudentName, rec.StudentID),
				stringOrID(rec.SubjectName, rec.SubjectID),
				rec.ExamType,
				strconv.FormatFloat(rec.MarksObtained, 'f', -1, 64),
				strconv.FormatFloat(rec.MaxMarks, 'f', -1, 64),
				rec.GradedBy,
			})
		}
		return dataset, nil
	}
	return export.Dataset{}, fmt.Errorf("unknown report type %q", job.Type)
}

func (s *ReportService) failJob(ctx context.Context, id, message string) {
	failed := models.ReportStatusFailed
	now := time.Now().UTC()
	if err := s.repo.Update(ctx, id, repository.UpdateReportJobParams{
		Status:       &failed,
		ErrorMessage: &message,
		FinishedAt:   &now,
	}); err != nil {
		s.logger.Warn("failed to mark report job failed", zap.String("job_id", id), zap.Error(err))
	}
	s.metrics.ObserveReportJob(models.ReportStatusFailed)
}

func stringOrID(name *string, id string) string {
	if name != nil && *name != "" {
		return *name
	}
	return id
}
