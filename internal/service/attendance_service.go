package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/edu-records-api/internal/models"
	appErrors "github.com/noah-isme/edu-records-api/pkg/errors"
)

type attendanceRepository interface {
	List(ctx context.Context, filter models.AttendanceFilter) ([]models.Attendance, int, error)
	FindByID(ctx context.Context, id string) (*models.Attendance, error)
	Upsert(ctx context.Context, record *models.Attendance) error
	UpdateStatus(ctx context.Context, id string, status models.AttendanceStatus, markedBy string) error
	Delete(ctx context.Context, id string) error
}

// AttendanceService manages daily attendance records keyed by
// (student, subject, date). Marking the same session twice is an update, not
// a conflict.
type AttendanceService struct {
	repo      attendanceRepository
	gate      *AccessGate
	validator *validator.Validate
	logger    *zap.Logger
	now       func() time.Time
}

// NewAttendanceService constructs an AttendanceService.
func NewAttendanceService(repo attendanceRepository, gate *AccessGate, validate *validator.Validate, logger *zap.Logger) *AttendanceService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AttendanceService{repo: repo, gate: gate, validator: validate, logger: logger, now: func() time.Time { return time.Now().UTC() }}
}

// List returns attendance rows visible to the caller. Students only ever see
// their own records regardless of any filter they pass.
func (s *AttendanceService) List(ctx context.Context, claims *models.JWTClaims, filter models.AttendanceFilter) ([]models.Attendance, *models.Pagination, error) {
	if claims == nil {
		return nil, nil, appErrors.Clone(appErrors.ErrUnauthorized, "missing authenticated user")
	}

	if claims.Role != models.RoleAdmin {
		if err := s.gate.Authorize(ctx, claims, models.FeatureAttendance); err != nil {
			return nil, nil, err
		}
	}

	switch claims.Role {
	case models.RoleStudent:
		filter.StudentID = claims.UserID
	case models.RoleHOD:
		if err := s.gate.Authorize(ctx, claims, models.FeatureHODDepartmentData); err != nil {
			return nil, nil, err
		}
		filter.Department = claims.Department
	}

	records, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list attendance")
	}

	return records, listPagination(filter.Page, filter.PageSize, total), nil
}

// Mark records or overwrites an attendance entry for a session. Faculty need
// the facultyCanUpdateAttendance flag; admins bypass the gate.
func (s *AttendanceService) Mark(ctx context.Context, claims *models.JWTClaims, req models.MarkAttendanceRequest) (*models.Attendance, error) {
	if claims == nil {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "missing authenticated user")
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid attendance payload")
	}
	if !req.Status.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unknown attendance status")
	}

	if claims.Role != models.RoleAdmin {
		if err := s.gate.Authorize(ctx, claims, models.FeatureFacultyUpdateAttendance); err != nil {
			return nil, err
		}
	}

	now := s.now()
	record := &models.Attendance{
		ID:        uuid.NewString(),
		StudentID: req.StudentID,
		SubjectID: req.SubjectID,
		Date:      req.Date.UTC().Truncate(24 * time.Hour),
		Status:    req.Status,
		MarkedBy:  claims.UserID,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.repo.Upsert(ctx, record); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to mark attendance")
	}

	return record, nil
}

// UpdateStatus changes the status of an existing attendance row.
func (s *AttendanceService) UpdateStatus(ctx context.Context, claims *models.JWTClaims, id string, status models.AttendanceStatus) (*models.Attendance, error) {
	if claims == nil {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "missing authenticated user")
	}
	if !status.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unknown attendance status")
	}

	if claims.Role != models.RoleAdmin {
		if err := s.gate.Authorize(ctx, claims, models.FeatureFacultyUpdateAttendance); err != nil {
			return nil, err
		}
	}

	record, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "attendance record not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load attendance record")
	}

	if err := s.repo.UpdateStatus(ctx, id, status, claims.UserID); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update attendance status")
	}

	record.Status = status
	record.MarkedBy = claims.UserID
	return record, nil
}

// Delete removes an attendance row permanently.
func (s *AttendanceService) Delete(ctx context.Context, claims *models.JWTClaims, id string) error {
	if claims == nil {
		return appErrors.Clone(appErrors.ErrUnauthorized, "missing authenticated user")
	}

	if _, err := s.repo.FindByID(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "attendance record not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load attendance record")
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete attendance record")
	}
	return nil
}
