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

func TestSubjectFindByCode(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewSubjectRepository(db)

	now := time.Now()
	rows := sqlmock.NewRows([]string{"id", "name", "code", "department", "semester", "credits", "faculty_id", "faculty_name", "created_at", "updated_at"}).
		AddRow("sub1", "Algorithms", "CS301", "CS", 3, 4, nil, nil, now, now)
	mock.ExpectQuery(regexp.QuoteMeta("FROM subjects s LEFT JOIN users f ON f.id = s.faculty_id WHERE s.code = $1 LIMIT 1")).
		WithArgs("CS301").
		WillReturnRows(rows)

	subject, err := repo.FindByCode(context.Background(), "CS301")
	require.NoError(t, err)
	assert.Equal(t, "Algorithms", subject.Name)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSubjectFindByCodeAbsent(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewSubjectRepository(db)

	mock.ExpectQuery("FROM subjects").WithArgs("MISSING").WillReturnError(sql.ErrNoRows)

	_, err := repo.FindByCode(context.Background(), "MISSING")
	assert.True(t, errors.Is(err, sql.ErrNoRows))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSubjectCreate(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewSubjectRepository(db)

	mock.ExpectExec("INSERT INTO subjects").WillReturnResult(sqlmock.NewResult(0, 1))

	subject := &models.Subject{Name: "Algorithms", Code: "CS301", Department: "CS", Semester: 3, Credits: 4}
	require.NoError(t, repo.Create(context.Background(), subject))
	assert.NotEmpty(t, subject.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}
