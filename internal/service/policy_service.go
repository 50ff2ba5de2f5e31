package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/edu-records-api/internal/models"
	appErrors "github.com/noah-isme/edu-records-api/pkg/errors"
)

type policyRepository interface {
	FindByRole(ctx context.Context, role models.UserRole) (*models.VisibilityPolicy, error)
	List(ctx context.Context) ([]models.VisibilityPolicy, error)
	Create(ctx context.Context, policy *models.VisibilityPolicy) error
	Update(ctx context.Context, policy *models.VisibilityPolicy) error
	Delete(ctx context.Context, role models.UserRole) error
}

type policyAuditWriter interface {
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

// PolicyService manages the per-role visibility policies. Writes are
// admin-only, enforced at the routing layer; reads feed the access gate
// directly from the store so there is nothing to invalidate here.
type PolicyService struct {
	repo      policyRepository
	audit     policyAuditWriter
	validator *validator.Validate
	logger    *zap.Logger
}

// NewPolicyService creates a PolicyService instance.
func NewPolicyService(repo policyRepository, audit policyAuditWriter, validate *validator.Validate, logger *zap.Logger) *PolicyService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &PolicyService{repo: repo, audit: audit, validator: validate, logger: logger}
}

// List returns every configured policy. Roles without a row simply do not
// appear; their absence means deny-all.
func (s *PolicyService) List(ctx context.Context) ([]models.VisibilityPolicy, error) {
	policies, err := s.repo.List(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list visibility policies")
	}
	return policies, nil
}

// Get returns the policy configured for a role.
func (s *PolicyService) Get(ctx context.Context, role models.UserRole) (*models.VisibilityPolicy, error) {
	if !role.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown role %q", role))
	}
	policy, err := s.repo.FindByRole(ctx, role)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "no visibility policy configured for this role")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load visibility policy")
	}
	return policy, nil
}

// Upsert creates the policy row for a role on first configuration and
// patches it afterwards. Only flags present in the request change; a fresh
// row starts with every flag false, so a partial first write still denies
// everything it does not mention.
func (s *PolicyService) Upsert(ctx context.Context, req models.UpsertVisibilityPolicyRequest, actorID string, meta models.RequestMeta) (*models.VisibilityPolicy, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid policy payload")
	}
	if !req.Role.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown role %q", req.Role))
	}

	policy, err := s.repo.FindByRole(ctx, req.Role)
	created := false
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load visibility policy")
		}
		policy = &models.VisibilityPolicy{ID: uuid.NewString(), Role: req.Role}
		created = true
	}

	oldPayload, _ := json.Marshal(policy)
	applyPolicyPatch(policy, req)

	if created {
		if err := s.repo.Create(ctx, policy); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create visibility policy")
		}
	} else {
		if err := s.repo.Update(ctx, policy); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update visibility policy")
		}
	}

	newPayload, _ := json.Marshal(policy)
	if err := s.audit.CreateAuditLog(ctx, &models.AuditLog{
		UserID:     &actorID,
		Action:     models.AuditActionPolicyUpsert,
		Resource:   "visibility_policies",
		ResourceID: &policy.ID,
		OldValues:  oldPayload,
		NewValues:  newPayload,
		IPAddress:  meta.IP,
		UserAgent:  meta.UserAgent,
	}); err != nil {
		s.logger.Warn("failed to record policy audit log", zap.Error(err))
	}

	return policy, nil
}

// Delete removes the policy row for a role, returning the role to deny-all.
func (s *PolicyService) Delete(ctx context.Context, role models.UserRole, actorID string, meta models.RequestMeta) error {
	if !role.Valid() {
		return appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown role %q", role))
	}

	if err := s.repo.Delete(ctx, role); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "no visibility policy configured for this role")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete visibility policy")
	}

	roleTag := string(role)
	if err := s.audit.CreateAuditLog(ctx, &models.AuditLog{
		UserID:     &actorID,
		Action:     models.AuditActionPolicyDelete,
		Resource:   "visibility_policies",
		ResourceID: &roleTag,
		IPAddress:  meta.IP,
		UserAgent:  meta.UserAgent,
	}); err != nil {
		s.logger.Warn("failed to record policy delete audit log", zap.Error(err))
	}

	return nil
}

func applyPolicyPatch(policy *models.VisibilityPolicy, req models.UpsertVisibilityPolicyRequest) {
	if req.ShowAssignments != nil {
		policy.ShowAssignments = *req.ShowAssignments
	}
	if req.ShowMarks != nil {
		policy.ShowMarks = *req.ShowMarks
	}
	if req.ShowAttendance != nil {
		policy.ShowAttendance = *req.ShowAttendance
	}
	if req.ShowSubjects != nil {
		policy.ShowSubjects = *req.ShowSubjects
	}
	if req.ShowFees != nil {
		policy.ShowFees = *req.ShowFees
	}
	if req.FacultyCanUpdateMarks != nil {
		policy.FacultyCanUpdateMarks = *req.FacultyCanUpdateMarks
	}
	if req.FacultyCanUpdateAttendance != nil {
		policy.FacultyCanUpdateAttendance = *req.FacultyCanUpdateAttendance
	}
	if req.HODCanViewDepartmentData != nil {
		policy.HODCanViewDepartmentData = *req.HODCanViewDepartmentData
	}
}
