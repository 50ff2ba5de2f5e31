package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/noah-isme/edu-records-api/internal/models"
	appErrors "github.com/noah-isme/edu-records-api/pkg/errors"
)

type userRepository interface {
	List(ctx context.Context, filter models.UserFilter) ([]models.User, int, error)
	FindByID(ctx context.Context, id string) (*models.User, error)
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	FindByRollNumber(ctx context.Context, rollNumber string) (*models.User, error)
	Create(ctx context.Context, user *models.User) error
	Update(ctx context.Context, user *models.User) error
	Delete(ctx context.Context, id string) error
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

// CreateUserRequest represents payload for creating users.
type CreateUserRequest struct {
	Email      string          `json:"email" validate:"required,email"`
	FullName   string          `json:"full_name" validate:"required"`
	Role       models.UserRole `json:"role" validate:"required,oneof=ADMIN HOD FACULTY STUDENT"`
	Password   string          `json:"password" validate:"required,min=6"`
	Department string          `json:"department"`
	RollNumber string          `json:"roll_number"`
	Semester   int             `json:"semester" validate:"omitempty,min=1,max=8"`
	ClassName  string          `json:"class_name"`
	Active     bool            `json:"active"`
}

// UpdateUserRequest payload for updating users. All fields are optional;
// absent fields are left untouched.
type UpdateUserRequest struct {
	FullName   string           `json:"full_name"`
	Role       *models.UserRole `json:"role"`
	Department *string          `json:"department"`
	Semester   *int             `json:"semester" validate:"omitempty,min=1,max=8"`
	ClassName  *string          `json:"class_name"`
	Active     *bool            `json:"active"`
}

// UpdateProfileRequest is the self-service subset of user updates.
type UpdateProfileRequest struct {
	FullName  string `json:"full_name"`
	ClassName string `json:"class_name"`
}

// UserService handles user management workflows.
type UserService struct {
	repo      userRepository
	gate      *AccessGate
	validator *validator.Validate
	logger    *zap.Logger
}

// NewUserService creates an instance of UserService.
func NewUserService(repo userRepository, gate *AccessGate, validate *validator.Validate, logger *zap.Logger) *UserService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &UserService{repo: repo, gate: gate, validator: validate, logger: logger}
}

// List returns paginated users scoped to what the caller may see. Admins see
// everything, HODs see their own department when their policy allows it,
// faculty see students in their department, students see nobody but
// themselves via Get.
func (s *UserService) List(ctx context.Context, claims *models.JWTClaims, filter models.UserFilter) ([]models.User, *models.Pagination, error) {
	if claims == nil {
		return nil, nil, appErrors.Clone(appErrors.ErrUnauthorized, "missing authenticated user")
	}

	switch claims.Role {
	case models.RoleAdmin:
	case models.RoleHOD:
		if err := s.gate.Authorize(ctx, claims, models.FeatureHODDepartmentData); err != nil {
			return nil, nil, err
		}
		filter.Department = claims.Department
	case models.RoleFaculty:
		student := models.RoleStudent
		filter.Role = &student
		filter.Department = claims.Department
	default:
		return nil, nil, appErrors.Clone(appErrors.ErrForbidden, "students may not list users")
	}

	users, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list users")
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	pageSize := filter.PageSize
	if pageSize <= 0 {
		pageSize = 20
	}

	pagination := &models.Pagination{
		Page:       page,
		PageSize:   pageSize,
		TotalCount: total,
	}

	return users, pagination, nil
}

// Get returns a user by ID if the caller is allowed to see it.
func (s *UserService) Get(ctx context.Context, claims *models.JWTClaims, id string) (*models.User, error) {
	if claims == nil {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "missing authenticated user")
	}

	user, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load user")
	}

	if claims.Role == models.RoleAdmin || claims.UserID == user.ID {
		return user, nil
	}

	sameDepartment := user.Department != nil && *user.Department == claims.Department
	switch claims.Role {
	case models.RoleHOD:
		if err := s.gate.Authorize(ctx, claims, models.FeatureHODDepartmentData); err != nil {
			return nil, err
		}
		if sameDepartment {
			return user, nil
		}
	case models.RoleFaculty:
		if user.Role == models.RoleStudent && sameDepartment {
			return user, nil
		}
	}

	return nil, appErrors.Clone(appErrors.ErrForbidden, "not allowed to view this user")
}

// Create adds a new user. Role-variant fields follow the same rules as
// signup.
func (s *UserService) Create(ctx context.Context, req CreateUserRequest, actorID string, meta models.RequestMeta) (*models.User, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid create user payload")
	}

	switch req.Role {
	case models.RoleStudent:
		if strings.TrimSpace(req.RollNumber) == "" || req.Semester == 0 {
			return nil, appErrors.Clone(appErrors.ErrValidation, "students require roll_number and semester")
		}
	case models.RoleFaculty, models.RoleHOD:
		if strings.TrimSpace(req.Department) == "" {
			return nil, appErrors.Clone(appErrors.ErrValidation, "faculty and hod accounts require a department")
		}
	}

	email := normalizeEmail(req.Email)
	if _, err := s.repo.FindByEmail(ctx, email); err == nil {
		return nil, appErrors.Clone(appErrors.ErrConflict, "email already exists")
	} else if !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check email uniqueness")
	}

	if req.Role == models.RoleStudent {
		if _, err := s.repo.FindByRollNumber(ctx, req.RollNumber); err == nil {
			return nil, appErrors.Clone(appErrors.ErrConflict, "roll number already exists")
		} else if !errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check roll number uniqueness")
		}
	}

	passwordHash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to hash password")
	}

	user := &models.User{
		ID:           uuid.NewString(),
		Email:        email,
		FullName:     req.FullName,
		Role:         req.Role,
		Active:       req.Active,
		PasswordHash: string(passwordHash),
	}
	if req.Department != "" {
		user.Department = &req.Department
	}
	if req.Role == models.RoleStudent {
		user.RollNumber = &req.RollNumber
		user.Semester = &req.Semester
		if req.ClassName != "" {
			user.ClassName = &req.ClassName
		}
	}

	if err := s.repo.Create(ctx, user); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create user")
	}

	newPayload, _ := json.Marshal(map[string]interface{}{"id": user.ID, "email": user.Email, "role": user.Role})
	if err := s.repo.CreateAuditLog(ctx, &models.AuditLog{
		UserID:     &actorID,
		Action:     models.AuditActionUserCreate,
		Resource:   "users",
		ResourceID: &user.ID,
		NewValues:  newPayload,
		IPAddress:  meta.IP,
		UserAgent:  meta.UserAgent,
	}); err != nil {
		s.logger.Warn("failed to record user create audit log", zap.Error(err))
	}

	return user, nil
}

// Update modifies user attributes. Admin accounts keep their role for good:
// once a user is an admin the role field cannot be changed.
func (s *UserService) Update(ctx context.Context, id string, req UpdateUserRequest, actorID string, meta models.RequestMeta) (*models.User, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid update payload")
	}

	user, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load user")
	}

	oldPayload, _ := json.Marshal(map[string]interface{}{"role": user.Role, "active": user.Active})

	if req.Role != nil && *req.Role != user.Role {
		if user.Role == models.RoleAdmin {
			return nil, appErrors.Clone(appErrors.ErrValidation, "admin role cannot be changed")
		}
		if !req.Role.Valid() {
			return nil, appErrors.Clone(appErrors.ErrValidation, "unknown role")
		}
		user.Role = *req.Role
	}
	if req.FullName != "" {
		user.FullName = req.FullName
	}
	if req.Department != nil {
		user.Department = req.Department
	}
	if req.Semester != nil {
		user.Semester = req.Semester
	}
	if req.ClassName != nil {
		user.ClassName = req.ClassName
	}
	if req.Active != nil {
		user.Active = *req.Active
	}

	if err := s.repo.Update(ctx, user); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update user")
	}

	newPayload, _ := json.Marshal(map[string]interface{}{"role": user.Role, "active": user.Active})
	if err := s.repo.CreateAuditLog(ctx, &models.AuditLog{
		UserID:     &actorID,
		Action:     models.AuditActionUserUpdate,
		Resource:   "users",
		ResourceID: &user.ID,
		OldValues:  oldPayload,
		NewValues:  newPayload,
		IPAddress:  meta.IP,
		UserAgent:  meta.UserAgent,
	}); err != nil {
		s.logger.Warn("failed to record user update audit log", zap.Error(err))
	}

	return user, nil
}

// UpdateProfile applies the self-service subset of user fields to the
// caller's own record.
func (s *UserService) UpdateProfile(ctx context.Context, claims *models.JWTClaims, req UpdateProfileRequest) (*models.User, error) {
	if claims == nil {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "missing authenticated user")
	}

	user, err := s.repo.FindByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load user")
	}

	if req.FullName != "" {
		user.FullName = req.FullName
	}
	if req.ClassName != "" {
		user.ClassName = &req.ClassName
	}

	if err := s.repo.Update(ctx, user); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update profile")
	}

	return user, nil
}

// Delete removes a user record permanently.
func (s *UserService) Delete(ctx context.Context, id string, actorID string, meta models.RequestMeta) error {
	user, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load user")
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete user")
	}

	oldPayload, _ := json.Marshal(map[string]interface{}{"email": user.Email, "role": user.Role})

	if err := s.repo.CreateAuditLog(ctx, &models.AuditLog{
		UserID:     &actorID,
		Action:     models.AuditActionUserDelete,
		Resource:   "users",
		ResourceID: &user.ID,
		OldValues:  oldPayload,
		IPAddress:  meta.IP,
		UserAgent:  meta.UserAgent,
	}); err != nil {
		s.logger.Warn("failed to record user delete audit log", zap.Error(err))
	}

	return nil
}
