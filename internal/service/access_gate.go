package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/noah-isme/edu-records-api/internal/models"
	appErrors "github.com/noah-isme/edu-records-api/pkg/errors"
)

type policyReader interface {
	FindByRole(ctx context.Context, role models.UserRole) (*models.VisibilityPolicy, error)
}

// AccessGate decides whether a request may touch a gated feature or a
// resource owned by somebody else. Policy lookups go to the store on every
// call; there is no gate-level cache, so a concurrent policy update is
// visible to the next request.
type AccessGate struct {
	policies policyReader
}

// NewAccessGate constructs a gate over the given policy reader.
func NewAccessGate(policies policyReader) *AccessGate {
	return &AccessGate{policies: policies}
}

// Decide is the pure policy check: a nil policy denies everything, otherwise
// the decision is exactly the value of the requested flag.
func Decide(policy *models.VisibilityPolicy, feature models.Feature) error {
	if policy == nil {
		return appErrors.Clone(appErrors.ErrForbidden, "no visibility policy configured for this role")
	}
	if !policy.Allows(feature) {
		return appErrors.Clone(appErrors.ErrForbidden, fmt.Sprintf("access to %s is restricted for this role", feature))
	}
	return nil
}

// Authorize loads the policy for the caller's role and applies Decide.
func (g *AccessGate) Authorize(ctx context.Context, claims *models.JWTClaims, feature models.Feature) error {
	if claims == nil {
		return appErrors.ErrUnauthorized
	}
	policy, err := g.policies.FindByRole(ctx, claims.Role)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Decide(nil, feature)
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load visibility policy")
	}
	return Decide(policy, feature)
}

// RequireOwner allows admins and the resource owner, denying everyone else.
// This check is independent of the feature flags; grading an assignment, for
// example, needs both a feature allowance and ownership.
func RequireOwner(claims *models.JWTClaims, ownerID string) error {
	if claims == nil {
		return appErrors.ErrUnauthorized
	}
	if claims.Role == models.RoleAdmin {
		return nil
	}
	if claims.UserID == ownerID {
		return nil
	}
	return appErrors.Clone(appErrors.ErrForbidden, "not authorized to modify this resource")
}
