package repository

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/edu-records-api/internal/models"
)

func policyRowsFor(role models.UserRole) *sqlmock.Rows {
	now := time.Now()
	return sqlmock.NewRows([]string{"id", "role", "show_assignments", "show_marks", "show_attendance", "show_subjects", "show_fees", "faculty_can_update_marks", "faculty_can_update_attendance", "hod_can_view_department_data", "created_at", "updated_at"}).
		AddRow("p1", string(role), true, false, true, true, false, false, false, false, now, now)
}

func TestPolicyFindByRole(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewPolicyRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("FROM visibility_policies WHERE role = $1 LIMIT 1")).
		WithArgs(models.RoleStudent).
		WillReturnRows(policyRowsFor(models.RoleStudent))

	policy, err := repo.FindByRole(context.Background(), models.RoleStudent)
	require.NoError(t, err)
	assert.True(t, policy.ShowAssignments)
	assert.False(t, policy.ShowMarks)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPolicyFindByRoleAbsent(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewPolicyRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("FROM visibility_policies WHERE role = $1 LIMIT 1")).
		WithArgs(models.RoleHOD).
		WillReturnError(sql.ErrNoRows)

	_, err := repo.FindByRole(context.Background(), models.RoleHOD)
	assert.True(t, errors.Is(err, sql.ErrNoRows))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPolicyDeleteMissing(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewPolicyRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM visibility_policies WHERE role = $1")).
		WithArgs(models.RoleFaculty).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.Delete(context.Background(), models.RoleFaculty)
	assert.True(t, errors.Is(err, sql.ErrNoRows))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPolicyUpsertRoundTrip(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewPolicyRepository(db)

	mock.ExpectExec("INSERT INTO visibility_policies").WillReturnResult(sqlmock.NewResult(0, 1))

	policy := &models.VisibilityPolicy{Role: models.RoleStudent, ShowAssignments: true}
	require.NoError(t, repo.Create(context.Background(), policy))
	assert.NotEmpty(t, policy.ID)

	mock.ExpectExec("UPDATE visibility_policies SET").WillReturnResult(sqlmock.NewResult(0, 1))
	policy.ShowMarks = true
	require.NoError(t, repo.Update(context.Background(), policy))
	assert.NoError(t, mock.ExpectationsWereMet())
}
