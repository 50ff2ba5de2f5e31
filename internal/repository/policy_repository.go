package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/edu-records-api/internal/models"
)

const policyColumns = `id, role, show_assignments, show_marks, show_attendance, show_subjects, show_fees, faculty_can_update_marks, faculty_can_update_attendance, hod_can_view_department_data, created_at, updated_at`

// PolicyRepository provides database access for per-role visibility policies.
// Reads always hit the store; policies are deliberately never cached in
// process so concurrent updates take effect on the next request.
type PolicyRepository struct {
	db *sqlx.DB
}

// NewPolicyRepository creates a new instance of PolicyRepository.
func NewPolicyRepository(db *sqlx.DB) *PolicyRepository {
	return &PolicyRepository{db: db}
}

// FindByRole returns the policy for a role. Absence surfaces sql.ErrNoRows;
// callers treat a missing policy as deny-all, not as a failure.
func (r *PolicyRepository) FindByRole(ctx context.Context, role models.UserRole) (*models.VisibilityPolicy, error) {
	query := fmt.Sprintf(`SELECT %s FROM visibility_policies WHERE role = $1 LIMIT 1`, policyColumns)
	var policy models.VisibilityPolicy
	if err := r.db.GetContext(ctx, &policy, query, role); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find policy by role: %w", err)
	}
	return &policy, nil
}

// List returns all configured policies.
func (r *PolicyRepository) List(ctx context.Context) ([]models.VisibilityPolicy, error) {
	query := fmt.Sprintf(`SELECT %s FROM visibility_policies ORDER BY role ASC`, policyColumns)
	var policies []models.VisibilityPolicy
	if err := r.db.SelectContext(ctx, &policies, query); err != nil {
		return nil, fmt.Errorf("list policies: %w", err)
	}
	return policies, nil
}

// Create inserts a new policy row.
func (r *PolicyRepository) Create(ctx context.Context, policy *models.VisibilityPolicy) error {
	if policy.ID == "" {
		policy.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if policy.CreatedAt.IsZero() {
		policy.CreatedAt = now
	}
	policy.UpdatedAt = now
	const query = `INSERT INTO visibility_policies (id, role, show_assignments, show_marks, show_attendance, show_subjects, show_fees, faculty_can_update_marks, faculty_can_update_attendance, hod_can_view_department_data, created_at, updated_at)
VALUES (:id, :role, :show_assignments, :show_marks, :show_attendance, :show_subjects, :show_fees, :faculty_can_update_marks, :faculty_can_update_attendance, :hod_can_view_department_data, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, policy); err != nil {
		return fmt.Errorf("create policy: %w", err)
	}
	return nil
}

// Update persists every flag of an existing policy row.
func (r *PolicyRepository) Update(ctx context.Context, policy *models.VisibilityPolicy) error {
	policy.UpdatedAt = time.Now().UTC()
	const query = `UPDATE visibility_policies SET show_assignments = :show_assignments, show_marks = :show_marks, show_attendance = :show_attendance, show_subjects = :show_subjects, show_fees = :show_fees, faculty_can_update_marks = :faculty_can_update_marks, faculty_can_update_attendance = :faculty_can_update_attendance, hod_can_view_department_data = :hod_can_view_department_data, updated_at = :updated_at WHERE role = :role`
	if _, err := r.db.NamedExecContext(ctx, query, policy); err != nil {
		return fmt.Errorf("update policy: %w", err)
	}
	return nil
}

// Delete removes the policy for a role; subsequent gated reads for that role
// fall back to deny-all.
func (r *PolicyRepository) Delete(ctx context.Context, role models.UserRole) error {
	const query = `DELETE FROM visibility_policies WHERE role = $1`
	res, err := r.db.ExecContext(ctx, query, role)
	if err != nil {
		return fmt.Errorf("delete policy: %w", err)
	}
	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}
