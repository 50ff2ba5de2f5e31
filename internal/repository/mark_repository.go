package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/edu-records-api/internal/models"
)

// MarkRepository provides database access for exam and assignment marks.
type MarkRepository struct {
	db *sqlx.DB
}

// NewMarkRepository creates a new instance of MarkRepository.
func NewMarkRepository(db *sqlx.DB) *MarkRepository {
	return &MarkRepository{db: db}
}

// List returns marks based on filters with total count.
func (r *MarkRepository) List(ctx context.Context, filter models.MarkFilter) ([]models.Mark, int, error) {
	baseQuery := `FROM marks m
JOIN users st ON st.id = m.student_id
JOIN subjects sub ON sub.id = m.subject_id
WHERE 1=1`
	var conditions []string
	var args []interface{}

	if filter.StudentID != "" {
		conditions = append(conditions, fmt.Sprintf("m.student_id = $%d", len(args)+1))
		args = append(args, filter.StudentID)
	}
	if filter.SubjectID != "" {
		conditions = append(conditions, fmt.Sprintf("m.subject_id = $%d", len(args)+1))
		args = append(args, filter.SubjectID)
	}
	if filter.Department != "" {
		conditions = append(conditions, fmt.Sprintf("st.department = $%d", len(args)+1))
		args = append(args, filter.Department)
	}
	if filter.ExamType != "" {
		conditions = append(conditions, fmt.Sprintf("m.exam_type = $%d", len(args)+1))
		args = append(args, filter.ExamType)
	}
	if filter.GradedBy != "" {
		conditions = append(conditions, fmt.Sprintf("m.graded_by = $%d", len(args)+1))
		args = append(args, filter.GradedBy)
	}

	if len(conditions) > 0 {
		baseQuery += " AND " + strings.Join(conditions, " AND ")
	}

	sortBy := filter.SortBy
	allowedSorts := map[string]string{
		"created_at": "m.created_at",
		"exam_type":  "m.exam_type",
	}
	column, ok := allowedSorts[sortBy]
	if !ok {
		column = "m.created_at"
	}

	sortOrder := strings.ToUpper(filter.SortOrder)
	if sortOrder != "ASC" && sortOrder != "DESC" {
		sortOrder = "DESC"
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	pageSize := filter.PageSize
	if pageSize <= 0 || pageSize > 200 {
		pageSize = 50
	}
	offset := (page - 1) * pageSize

	listQuery := fmt.Sprintf(`SELECT m.id, m.student_id, st.full_name AS student_name, m.subject_id, sub.name AS subject_name, m.assignment_id, m.exam_type, m.marks_obtained, m.max_marks, m.graded_by, m.created_at, m.updated_at %s ORDER BY %s %s LIMIT %d OFFSET %d`, baseQuery, column, sortOrder, pageSize, offset)

	var marks []models.Mark
	if err := r.db.SelectContext(ctx, &marks, listQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("list marks: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", baseQuery)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count marks: %w", err)
	}

	return marks, total, nil
}

// FindByID returns a mark by identifier.
func (r *MarkRepository) FindByID(ctx context.Context, id string) (*models.Mark, error) {
	const query = `SELECT m.id, m.student_id, st.full_name AS student_name, m.subject_id, sub.name AS subject_name, m.assignment_id, m.exam_type, m.marks_obtained, m.max_marks, m.graded_by, m.created_at, m.updated_at
FROM marks m JOIN users st ON st.id = m.student_id JOIN subjects sub ON sub.id = m.subject_id WHERE m.id = $1 LIMIT 1`
	var mark models.Mark
	if err := r.db.GetContext(ctx, &mark, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find mark by id: %w", err)
	}
	return &mark, nil
}

// ExistsForAssessment reports whether the student already has a mark for the
// given assignment or for the exam type in the subject.
func (r *MarkRepository) ExistsForAssessment(ctx context.Context, studentID, subjectID, assignmentID, examType string) (bool, error) {
	const query = `SELECT EXISTS (
SELECT 1 FROM marks WHERE student_id = $1 AND (($2 <> '' AND assignment_id = $2) OR (subject_id = $3 AND exam_type = $4)))`
	var exists bool
	if err := r.db.GetContext(ctx, &exists, query, studentID, assignmentID, subjectID, examType); err != nil {
		return false, fmt.Errorf("check mark exists: %w", err)
	}
	return exists, nil
}

// Create inserts a new mark.
func (r *MarkRepository) Create(ctx context.Context, mark *models.Mark) error {
	if mark.ID == "" {
		mark.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if mark.CreatedAt.IsZero() {
		mark.CreatedAt = now
	}
	mark.UpdatedAt = now
	const query = `INSERT INTO marks (id, student_id, subject_id, assignment_id, exam_type, marks_obtained, max_marks, graded_by, created_at, updated_at)
VALUES (:id, :student_id, :subject_id, :assignment_id, :exam_type, :marks_obtained, :max_marks, :graded_by, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, mark); err != nil {
		return fmt.Errorf("create mark: %w", err)
	}
	return nil
}

// Update updates mutable fields of a mark.
func (r *MarkRepository) Update(ctx context.Context, mark *models.Mark) error {
	mark.UpdatedAt = time.Now().UTC()
	const query = `UPDATE marks SET exam_type = :exam_type, marks_obtained = :marks_obtained, max_marks = :max_marks, updated_at = :updated_at WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, mark); err != nil {
		return fmt.Errorf("update mark: %w", err)
	}
	return nil
}

// Delete removes a mark row permanently.
func (r *MarkRepository) Delete(ctx context.Context, id string) error {
	const query = `DELETE FROM marks WHERE id = $1`
	res, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("delete mark: %w", err)
	}
	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}
