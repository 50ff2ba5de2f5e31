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

// AssignmentRepository provides database access for assignments and their
// submissions. Submissions live in their own table with a unique
// (assignment_id, student_id) constraint so duplicate prevention is atomic
// rather than a read-then-write scan.
type AssignmentRepository struct {
	db *sqlx.DB
}

// NewAssignmentRepository creates a new instance of AssignmentRepository.
func NewAssignmentRepository(db *sqlx.DB) *AssignmentRepository {
	return &AssignmentRepository{db: db}
}

// List returns active assignments based on filters with total count.
func (r *AssignmentRepository) List(ctx context.Context, filter models.AssignmentFilter) ([]models.Assignment, int, error) {
	baseQuery := `FROM assignments a LEFT JOIN users u ON u.id = a.created_by WHERE a.active = TRUE`
	var conditions []string
	var args []interface{}

	if filter.Department != "" {
		conditions = append(conditions, fmt.Sprintf("a.department = $%d", len(args)+1))
		args = append(args, filter.Department)
	}
	if filter.Semester != nil {
		conditions = append(conditions, fmt.Sprintf("a.semester = $%d", len(args)+1))
		args = append(args, *filter.Semester)
	}
	if filter.SubjectID != "" {
		conditions = append(conditions, fmt.Sprintf("a.subject_id = $%d", len(args)+1))
		args = append(args, filter.SubjectID)
	}
	if filter.CreatedBy != "" {
		conditions = append(conditions, fmt.Sprintf("a.created_by = $%d", len(args)+1))
		args = append(args, filter.CreatedBy)
	}

	if len(conditions) > 0 {
		baseQuery += " AND " + strings.Join(conditions, " AND ")
	}

	sortBy := filter.SortBy
	allowedSorts := map[string]string{
		"due_date":   "a.due_date",
		"title":      "a.title",
		"created_at": "a.created_at",
	}
	column, ok := allowedSorts[sortBy]
	if !ok {
		column = "a.due_date"
	}

	sortOrder := strings.ToUpper(filter.SortOrder)
	if sortOrder != "ASC" && sortOrder != "DESC" {
		sortOrder = "ASC"
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	pageSize := filter.PageSize
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 20
	}
	offset := (page - 1) * pageSize

	listQuery := fmt.Sprintf(`SELECT a.id, a.title, a.description, a.subject_id, a.department, a.semester, a.max_marks, a.due_date, a.created_by, u.full_name AS creator_name, a.active, a.created_at, a.updated_at %s ORDER BY %s %s LIMIT %d OFFSET %d`, baseQuery, column, sortOrder, pageSize, offset)

	var assignments []models.Assignment
	if err := r.db.SelectContext(ctx, &assignments, listQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("list assignments: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", baseQuery)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count assignments: %w", err)
	}

	return assignments, total, nil
}

// FindByID returns an assignment by identifier. Soft-deleted rows are still
// returned; callers decide whether inactive means not-found.
func (r *AssignmentRepository) FindByID(ctx context.Context, id string) (*models.Assignment, error) {
	const query = `SELECT a.id, a.title, a.description, a.subject_id, a.department, a.semester, a.max_marks, a.due_date, a.created_by, u.full_name AS creator_name, a.active, a.created_at, a.updated_at
FROM assignments a LEFT JOIN users u ON u.id = a.created_by WHERE a.id = $1 LIMIT 1`
	var assignment models.Assignment
	if err := r.db.GetContext(ctx, &assignment, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find assignment by id: %w", err)
	}
	return &assignment, nil
}

// Create inserts a new assignment.
func (r *AssignmentRepository) Create(ctx context.Context, assignment *models.Assignment) error {
	if assignment.ID == "" {
		assignment.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if assignment.CreatedAt.IsZero() {
		assignment.CreatedAt = now
	}
	assignment.UpdatedAt = now
	const query = `INSERT INTO assignments (id, title, description, subject_id, department, semester, max_marks, due_date, created_by, active, created_at, updated_at)
VALUES (:id, :title, :description, :subject_id, :department, :semester, :max_marks, :due_date, :created_by, :active, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, assignment); err != nil {
		return fmt.Errorf("create assignment: %w", err)
	}
	return nil
}

// Update updates mutable fields of an assignment.
func (r *AssignmentRepository) Update(ctx context.Context, assignment *models.Assignment) error {
	assignment.UpdatedAt = time.Now().UTC()
	const query = `UPDATE assignments SET title = :title, description = :description, subject_id = :subject_id, department = :department, semester = :semester, max_marks = :max_marks, due_date = :due_date, active = :active, updated_at = :updated_at WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, assignment); err != nil {
		return fmt.Errorf("update assignment: %w", err)
	}
	return nil
}

// SoftDelete clears the active flag, hiding the assignment from read paths.
func (r *AssignmentRepository) SoftDelete(ctx context.Context, id string) error {
	const query = `UPDATE assignments SET active = FALSE, updated_at = $2 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, time.Now().UTC()); err != nil {
		return fmt.Errorf("soft delete assignment: %w", err)
	}
	return nil
}

// ListSubmissions returns every submission for an assignment ordered by
// submission time.
func (r *AssignmentRepository) ListSubmissions(ctx context.Context, assignmentID string) ([]models.Submission, error) {
	const query = `SELECT s.id, s.assignment_id, s.student_id, u.full_name AS student_name, s.file_url, s.comments, s.status, s.submitted_at, s.marks_obtained, s.feedback, s.graded_by, s.graded_at
FROM submissions s LEFT JOIN users u ON u.id = s.student_id WHERE s.assignment_id = $1 ORDER BY s.submitted_at ASC`
	var submissions []models.Submission
	if err := r.db.SelectContext(ctx, &submissions, query, assignmentID); err != nil {
		return nil, fmt.Errorf("list submissions: %w", err)
	}
	return submissions, nil
}

// FindSubmission returns one submission of an assignment by submission id.
func (r *AssignmentRepository) FindSubmission(ctx context.Context, assignmentID, submissionID string) (*models.Submission, error) {
	const query = `SELECT s.id, s.assignment_id, s.student_id, u.full_name AS student_name, s.file_url, s.comments, s.status, s.submitted_at, s.marks_obtained, s.feedback, s.graded_by, s.graded_at
FROM submissions s LEFT JOIN users u ON u.id = s.student_id WHERE s.assignment_id = $1 AND s.id = $2 LIMIT 1`
	var submission models.Submission
	if err := r.db.GetContext(ctx, &submission, query, assignmentID, submissionID); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find submission: %w", err)
	}
	return &submission, nil
}

// FindSubmissionByStudent returns a student's submission for an assignment.
func (r *AssignmentRepository) FindSubmissionByStudent(ctx context.Context, assignmentID, studentID string) (*models.Submission, error) {
	const query = `SELECT s.id, s.assignment_id, s.student_id, u.full_name AS student_name, s.file_url, s.comments, s.status, s.submitted_at, s.marks_obtained, s.feedback, s.graded_by, s.graded_at
FROM submissions s LEFT JOIN users u ON u.id = s.student_id WHERE s.assignment_id = $1 AND s.student_id = $2 LIMIT 1`
	var submission models.Submission
	if err := r.db.GetContext(ctx, &submission, query, assignmentID, studentID); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find submission by student: %w", err)
	}
	return &submission, nil
}

// CreateSubmission inserts a submission if the student has none for the
// assignment yet. The ON CONFLICT DO NOTHING clause makes the at-most-one
// invariant atomic under concurrent identical requests; a zero row count
// reports the duplicate to the caller.
func (r *AssignmentRepository) CreateSubmission(ctx context.Context, submission *models.Submission) (bool, error) {
	if submission.ID == "" {
		submission.ID = uuid.NewString()
	}
	if submission.SubmittedAt.IsZero() {
		submission.SubmittedAt = time.Now().UTC()
	}
	const query = `INSERT INTO submissions (id, assignment_id, student_id, file_url, comments, status, submitted_at)
VALUES (:id, :assignment_id, :student_id, :file_url, :comments, :status, :submitted_at)
ON CONFLICT (assignment_id, student_id) DO NOTHING`
	res, err := r.db.NamedExecContext(ctx, query, submission)
	if err != nil {
		return false, fmt.Errorf("create submission: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("create submission rows affected: %w", err)
	}
	return affected == 1, nil
}

// GradeSubmission records the grade for a submission and moves it to GRADED.
func (r *AssignmentRepository) GradeSubmission(ctx context.Context, assignmentID, submissionID string, marksObtained float64, feedback, gradedBy string, gradedAt time.Time) error {
	const query = `UPDATE submissions SET marks_obtained = $3, feedback = $4, status = $5, graded_by = $6, graded_at = $7 WHERE assignment_id = $1 AND id = $2`
	res, err := r.db.ExecContext(ctx, query, assignmentID, submissionID, marksObtained, feedback, models.SubmissionGraded, gradedBy, gradedAt)
	if err != nil {
		return fmt.Errorf("grade submission: %w", err)
	}
	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}
