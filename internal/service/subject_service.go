package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/edu-records-api/internal/models"
	appErrors "github.com/noah-isme/edu-records-api/pkg/errors"
)

type subjectRepository interface {
	List(ctx context.Context, filter models.SubjectFilter) ([]models.Subject, int, error)
	FindByID(ctx context.Context, id string) (*models.Subject, error)
	FindByCode(ctx context.Context, code string) (*models.Subject, error)
	Create(ctx context.Context, subject *models.Subject) error
	Update(ctx context.Context, subject *models.Subject) error
	Delete(ctx context.Context, id string) error
}

// CreateSubjectRequest captures fields for creating subjects.
type CreateSubjectRequest struct {
	Code       string  `json:"code" validate:"required"`
	Name       string  `json:"name" validate:"required"`
	Department string  `json:"department" validate:"required"`
	Semester   int     `json:"semester" validate:"required,min=1,max=8"`
	Credits    int     `json:"credits" validate:"omitempty,min=1,max=10"`
	FacultyID  *string `json:"faculty_id"`
}

// UpdateSubjectRequest modifies subject fields. Absent fields stay as stored.
type UpdateSubjectRequest struct {
	Code      string  `json:"code"`
	Name      string  `json:"name"`
	Semester  *int    `json:"semester" validate:"omitempty,min=1,max=8"`
	Credits   *int    `json:"credits" validate:"omitempty,min=1,max=10"`
	FacultyID *string `json:"faculty_id"`
}

type subjectListPage struct {
	Subjects []models.Subject `json:"subjects"`
	Total    int              `json:"total"`
}

// SubjectService handles the subject catalogue. List responses are cached in
// Redis; every write invalidates the whole catalogue keyspace.
type SubjectService struct {
	repo      subjectRepository
	gate      *AccessGate
	cache     *CacheService
	validator *validator.Validate
	logger    *zap.Logger
}

// NewSubjectService creates a new subject service.
func NewSubjectService(repo subjectRepository, gate *AccessGate, cache *CacheService, validate *validator.Validate, logger *zap.Logger) *SubjectService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SubjectService{repo: repo, gate: gate, cache: cache, validator: validate, logger: logger}
}

// List returns paginated subjects scoped to the caller. Students see their
// own department and semester, faculty see subjects they teach, HODs see
// their department, admins see everything.
func (s *SubjectService) List(ctx context.Context, claims *models.JWTClaims, filter models.SubjectFilter) ([]models.Subject, *models.Pagination, error) {
	if claims == nil {
		return nil, nil, appErrors.Clone(appErrors.ErrUnauthorized, "missing authenticated user")
	}

	if claims.Role != models.RoleAdmin {
		if err := s.gate.Authorize(ctx, claims, models.FeatureSubjects); err != nil {
			return nil, nil, err
		}
	}

	switch claims.Role {
	case models.RoleStudent:
		filter.Department = claims.Department
		sem := claims.Semester
		filter.Semester = &sem
	case models.RoleFaculty:
		filter.FacultyID = claims.UserID
	case models.RoleHOD:
		if err := s.gate.Authorize(ctx, claims, models.FeatureHODDepartmentData); err != nil {
			return nil, nil, err
		}
		filter.Department = claims.Department
	}

	key := subjectListCacheKey(filter)
	var cached subjectListPage
	if hit, _ := s.cache.Get(ctx, key, &cached); hit {
		return cached.Subjects, listPagination(filter.Page, filter.PageSize, cached.Total), nil
	}

	subjects, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list subjects")
	}

	if err := s.cache.Set(ctx, key, subjectListPage{Subjects: subjects, Total: total}, 0); err != nil {
		s.logger.Warn("failed to cache subject list", zap.Error(err))
	}

	return subjects, listPagination(filter.Page, filter.PageSize, total), nil
}

// Get returns subject by identifier.
func (s *SubjectService) Get(ctx context.Context, claims *models.JWTClaims, id string) (*models.Subject, error) {
	if claims != nil && claims.Role != models.RoleAdmin {
		if err := s.gate.Authorize(ctx, claims, models.FeatureSubjects); err != nil {
			return nil, err
		}
	}

	subject, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "subject not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load subject")
	}
	return subject, nil
}

// Create adds a new subject ensuring code uniqueness.
func (s *SubjectService) Create(ctx context.Context, req CreateSubjectRequest) (*models.Subject, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid subject payload")
	}

	req.Code = strings.ToUpper(strings.TrimSpace(req.Code))

	if _, err := s.repo.FindByCode(ctx, req.Code); err == nil {
		return nil, appErrors.Clone(appErrors.ErrConflict, "subject code already exists")
	} else if !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check subject code")
	}

	credits := req.Credits
	if credits == 0 {
		credits = 3
	}

	subject := &models.Subject{
		ID:         uuid.NewString(),
		Code:       req.Code,
		Name:       req.Name,
		Department: req.Department,
		Semester:   req.Semester,
		Credits:    credits,
		FacultyID:  req.FacultyID,
	}

	if err := s.repo.Create(ctx, subject); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create subject")
	}

	s.invalidateCatalogue(ctx)
	return subject, nil
}

// Update modifies an existing subject.
func (s *SubjectService) Update(ctx context.Context, id string, req UpdateSubjectRequest) (*models.Subject, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid subject payload")
	}

	subject, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "subject not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load subject")
	}

	if req.Code != "" {
		code := strings.ToUpper(strings.TrimSpace(req.Code))
		if code != subject.Code {
			if existing, err := s.repo.FindByCode(ctx, code); err == nil && existing.ID != id {
				return nil, appErrors.Clone(appErrors.ErrConflict, "subject code already exists")
			} else if err != nil && !errors.Is(err, sql.ErrNoRows) {
				return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check subject code")
			}
			subject.Code = code
		}
	}
	if req.Name != "" {
		subject.Name = req.Name
	}
	if req.Semester != nil {
		subject.Semester = *req.Semester
	}
	if req.Credits != nil {
		subject.Credits = *req.Credits
	}
	if req.FacultyID != nil {
		subject.FacultyID = req.FacultyID
	}

	if err := s.repo.Update(ctx, subject); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update subject")
	}

	s.invalidateCatalogue(ctx)
	return subject, nil
}

// Delete removes a subject permanently.
func (s *SubjectService) Delete(ctx context.Context, id string) error {
	if _, err := s.repo.FindByID(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "subject not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load subject")
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete subject")
	}

	s.invalidateCatalogue(ctx)
	return nil
}

func (s *SubjectService) invalidateCatalogue(ctx context.Context) {
	if err := s.cache.Invalidate(ctx, "subjects:list:*"); err != nil {
		s.logger.Warn("failed to invalidate subject cache", zap.Error(err))
	}
}

func subjectListCacheKey(filter models.SubjectFilter) string {
	sem := 0
	if filter.Semester != nil {
		sem = *filter.Semester
	}
	return fmt.Sprintf("subjects:list:dept=%s:sem=%d:faculty=%s:search=%s:page=%d:size=%d:sort=%s-%s",
		filter.Department, sem, filter.FacultyID, filter.Search, filter.Page, filter.PageSize, filter.SortBy, filter.SortOrder)
}

func listPagination(page, pageSize, total int) *models.Pagination {
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 20
	}
	return &models.Pagination{Page: page, PageSize: pageSize, TotalCount: total}
}
