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

func TestAttendanceUpsert(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewAttendanceRepository(db)

	mock.ExpectExec("INSERT INTO attendance .*ON CONFLICT \\(student_id, subject_id, date\\) DO UPDATE").
		WillReturnResult(sqlmock.NewResult(0, 1))

	record := &models.Attendance{
		StudentID: "s1", SubjectID: "sub1",
		Date:   time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC),
		Status: models.AttendancePresent, MarkedBy: "f1",
	}
	require.NoError(t, repo.Upsert(context.Background(), record))
	assert.NotEmpty(t, record.ID, "upsert assigns an id to fresh records")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAttendanceUpdateStatusMissing(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewAttendanceRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE attendance SET status = $2, marked_by = $3, updated_at = $4 WHERE id = $1")).
		WithArgs("missing", models.AttendanceAbsent, "f1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.UpdateStatus(context.Background(), "missing", models.AttendanceAbsent, "f1")
	assert.True(t, errors.Is(err, sql.ErrNoRows))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAttendanceListFiltersByStudent(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewAttendanceRepository(db)

	now := time.Now()
	rows := sqlmock.NewRows([]string{"id", "student_id", "student_name", "subject_id", "subject_name", "date", "status", "marked_by", "created_at", "updated_at"}).
		AddRow("att1", "s1", "Alice", "sub1", "Algorithms", now, string(models.AttendancePresent), "f1", now, now)
	mock.ExpectQuery("SELECT .* FROM attendance").WithArgs("s1").WillReturnRows(rows)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*)")).WithArgs("s1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	records, total, err := repo.List(context.Background(), models.AttendanceFilter{StudentID: "s1"})
	require.NoError(t, err)
	assert.Len(t, records, 1)
	assert.Equal(t, 1, total)
	assert.NoError(t, mock.ExpectationsWereMet())
}
