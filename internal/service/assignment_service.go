package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/edu-records-api/internal/models"
	appErrors "github.com/noah-isme/edu-records-api/pkg/errors"
)

type assignmentRepository interface {
	List(ctx context.Context, filter models.AssignmentFilter) ([]models.Assignment, int, error)
	FindByID(ctx context.Context, id string) (*models.Assignment, error)
	Create(ctx context.Context, assignment *models.Assignment) error
	Update(ctx context.Context, assignment *models.Assignment) error
	SoftDelete(ctx context.Context, id string) error
	ListSubmissions(ctx context.Context, assignmentID string) ([]models.Submission, error)
	FindSubmission(ctx context.Context, assignmentID, submissionID string) (*models.Submission, error)
	FindSubmissionByStudent(ctx context.Context, assignmentID, studentID string) (*models.Submission, error)
	CreateSubmission(ctx context.Context, submission *models.Submission) (bool, error)
	GradeSubmission(ctx context.Context, assignmentID, submissionID string, marksObtained float64, feedback, gradedBy string, gradedAt time.Time) error
}

type submissionBlobStore interface {
	SaveStream(filename string, r io.Reader) (string, error)
	Delete(filename string) error
}

// AssignmentService covers the assignment lifecycle: posting, the student
// submission state machine and grading.
type AssignmentService struct {
	repo      assignmentRepository
	blobs     submissionBlobStore
	gate      *AccessGate
	validator *validator.Validate
	logger    *zap.Logger
	now       func() time.Time
}

// NewAssignmentService constructs an AssignmentService.
func NewAssignmentService(repo assignmentRepository, blobs submissionBlobStore, gate *AccessGate, validate *validator.Validate, logger *zap.Logger) *AssignmentService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AssignmentService{repo: repo, blobs: blobs, gate: gate, validator: validate, logger: logger, now: func() time.Time { return time.Now().UTC() }}
}

// List returns assignments visible to the caller. Students are scoped to
// their own department and semester, faculty to assignments they posted,
// HODs to their department.
func (s *AssignmentService) List(ctx context.Context, claims *models.JWTClaims, filter models.AssignmentFilter) ([]models.Assignment, *models.Pagination, error) {
	if claims == nil {
		return nil, nil, appErrors.Clone(appErrors.ErrUnauthorized, "missing authenticated user")
	}

	if claims.Role != models.RoleAdmin {
		if err := s.gate.Authorize(ctx, claims, models.FeatureAssignments); err != nil {
			return nil, nil, err
		}
	}

	switch claims.Role {
	case models.RoleStudent:
		filter.Department = claims.Department
		sem := claims.Semester
		filter.Semester = &sem
	case models.RoleFaculty:
		filter.CreatedBy = claims.UserID
	case models.RoleHOD:
		if err := s.gate.Authorize(ctx, claims, models.FeatureHODDepartmentData); err != nil {
			return nil, nil, err
		}
		filter.Department = claims.Department
	}

	assignments, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list assignments")
	}

	return assignments, listPagination(filter.Page, filter.PageSize, total), nil
}

// Get returns one assignment. Soft-deleted assignments look like they do not
// exist to everyone but admins.
func (s *AssignmentService) Get(ctx context.Context, claims *models.JWTClaims, id string) (*models.Assignment, error) {
	if claims == nil {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "missing authenticated user")
	}
	if claims.Role != models.RoleAdmin {
		if err := s.gate.Authorize(ctx, claims, models.FeatureAssignments); err != nil {
			return nil, err
		}
	}

	assignment, err := s.loadAssignment(ctx, id)
	if err != nil {
		return nil, err
	}
	if !assignment.Active && claims.Role != models.RoleAdmin {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "assignment not found")
	}
	return assignment, nil
}

// Create posts a new assignment owned by the caller.
func (s *AssignmentService) Create(ctx context.Context, claims *models.JWTClaims, req models.CreateAssignmentRequest) (*models.Assignment, error) {
	if claims == nil {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "missing authenticated user")
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid assignment payload")
	}

	now := s.now()
	assignment := &models.Assignment{
		ID:          uuid.NewString(),
		Title:       req.Title,
		Description: req.Description,
		SubjectID:   req.SubjectID,
		Department:  req.Department,
		Semester:    req.Semester,
		MaxMarks:    req.MaxMarks,
		DueDate:     req.DueDate.UTC(),
		CreatedBy:   claims.UserID,
		Active:      true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := s.repo.Create(ctx, assignment); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create assignment")
	}
	return assignment, nil
}

// Update patches an assignment. Only the creator or an admin may change it.
func (s *AssignmentService) Update(ctx context.Context, claims *models.JWTClaims, id string, req models.UpdateAssignmentRequest) (*models.Assignment, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid assignment payload")
	}

	assignment, err := s.loadAssignment(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := RequireOwner(claims, assignment.CreatedBy); err != nil {
		return nil, err
	}

	if req.Title != "" {
		assignment.Title = req.Title
	}
	if req.Description != "" {
		assignment.Description = req.Description
	}
	if req.SubjectID != "" {
		assignment.SubjectID = req.SubjectID
	}
	if req.Department != "" {
		assignment.Department = req.Department
	}
	if req.Semester != 0 {
		assignment.Semester = req.Semester
	}
	if req.MaxMarks != 0 {
		assignment.MaxMarks = req.MaxMarks
	}
	if req.DueDate != nil {
		assignment.DueDate = req.DueDate.UTC()
	}
	if req.Active != nil {
		assignment.Active = *req.Active
	}
	assignment.UpdatedAt = s.now()

	if err := s.repo.Update(ctx, assignment); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update assignment")
	}
	return assignment, nil
}

// Delete soft-deletes an assignment, clearing the active flag.
func (s *AssignmentService) Delete(ctx context.Context, claims *models.JWTClaims, id string) error {
	assignment, err := s.loadAssignment(ctx, id)
	if err != nil {
		return err
	}
	if err := RequireOwner(claims, assignment.CreatedBy); err != nil {
		return err
	}

	if err := s.repo.SoftDelete(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete assignment")
	}
	return nil
}

// ListSubmissions returns every submission on an assignment to its creator
// or an admin.
func (s *AssignmentService) ListSubmissions(ctx context.Context, claims *models.JWTClaims, assignmentID string) ([]models.Submission, error) {
	assignment, err := s.loadAssignment(ctx, assignmentID)
	if err != nil {
		return nil, err
	}
	if err := RequireOwner(claims, assignment.CreatedBy); err != nil {
		return nil, err
	}

	submissions, err := s.repo.ListSubmissions(ctx, assignmentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list submissions")
	}
	return submissions, nil
}

// GetOwnSubmission returns the caller's submission on an assignment.
func (s *AssignmentService) GetOwnSubmission(ctx context.Context, claims *models.JWTClaims, assignmentID string) (*models.Submission, error) {
	if claims == nil {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "missing authenticated user")
	}

	submission, err := s.repo.FindSubmissionByStudent(ctx, assignmentID, claims.UserID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "no submission for this assignment")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load submission")
	}
	return submission, nil
}

// Submit uploads the file and records the caller's submission. The blob is
// stored first and removed again if the insert loses the uniqueness race, so
// a rejected duplicate never leaves an orphaned file behind. Status is LATE
// exactly when the submission lands strictly after the due date.
func (s *AssignmentService) Submit(ctx context.Context, claims *models.JWTClaims, assignmentID, filename string, file io.Reader, comments string) (*models.Submission, error) {
	if claims == nil {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "missing authenticated user")
	}
	if err := s.gate.Authorize(ctx, claims, models.FeatureAssignments); err != nil {
		return nil, err
	}
	if file == nil || strings.TrimSpace(filename) == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "submission file is required")
	}

	assignment, err := s.loadAssignment(ctx, assignmentID)
	if err != nil {
		return nil, err
	}
	if !assignment.Active {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "assignment not found")
	}
	if assignment.Department != claims.Department || assignment.Semester != claims.Semester {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "assignment is not open to this student")
	}

	submittedAt := s.now()
	storedName := fmt.Sprintf("submissions/%s/%s_%d%s", assignmentID, claims.UserID, submittedAt.UnixNano(), filepath.Ext(filename))
	fileRef, err := s.blobs.SaveStream(storedName, file)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store submission file")
	}

	status := models.SubmissionSubmitted
	if submittedAt.After(assignment.DueDate) {
		status = models.SubmissionLate
	}

	submission := &models.Submission{
		ID:           uuid.NewString(),
		AssignmentID: assignmentID,
		StudentID:    claims.UserID,
		FileURL:      fileRef,
		Comments:     comments,
		Status:       status,
		SubmittedAt:  submittedAt,
	}

	inserted, err := s.repo.CreateSubmission(ctx, submission)
	if err != nil {
		if cleanupErr := s.blobs.Delete(fileRef); cleanupErr != nil {
			s.logger.Warn("failed to remove submission file after insert error", zap.String("file", fileRef), zap.Error(cleanupErr))
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record submission")
	}
	if !inserted {
		if cleanupErr := s.blobs.Delete(fileRef); cleanupErr != nil {
			s.logger.Warn("failed to remove duplicate submission file", zap.String("file", fileRef), zap.Error(cleanupErr))
		}
		return nil, appErrors.Clone(appErrors.ErrDuplicateSubmission, "assignment already submitted")
	}

	return submission, nil
}

// Grade records marks and feedback on a submission and moves it to GRADED.
// Only the assignment's creator or an admin may grade, and faculty also need
// the marks-update flag in their role policy. A repeated grade call
// overwrites the previous result; there is no terminal guard on the GRADED
// state.
func (s *AssignmentService) Grade(ctx context.Context, claims *models.JWTClaims, assignmentID, submissionID string, req models.GradeSubmissionRequest) (*models.Submission, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid grading payload")
	}

	assignment, err := s.loadAssignment(ctx, assignmentID)
	if err != nil {
		return nil, err
	}
	if err := RequireOwner(claims, assignment.CreatedBy); err != nil {
		return nil, err
	}
	if claims.Role != models.RoleAdmin {
		if err := s.gate.Authorize(ctx, claims, models.FeatureFacultyUpdateMarks); err != nil {
			return nil, err
		}
	}

	if _, err := s.repo.FindSubmission(ctx, assignmentID, submissionID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "submission not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load submission")
	}

	gradedAt := s.now()
	if err := s.repo.GradeSubmission(ctx, assignmentID, submissionID, req.MarksObtained, req.Feedback, claims.UserID, gradedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "submission not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to grade submission")
	}

	graded, err := s.repo.FindSubmission(ctx, assignmentID, submissionID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to reload submission")
	}
	return graded, nil
}

func (s *AssignmentService) loadAssignment(ctx context.Context, id string) (*models.Assignment, error) {
	assignment, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "assignment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load assignment")
	}
	return assignment, nil
}
