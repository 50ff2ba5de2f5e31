package models

import "time"

// SubmissionStatus tracks the lifecycle of a student submission.
type SubmissionStatus string

const (
	SubmissionSubmitted SubmissionStatus = "SUBMITTED"
	SubmissionLate      SubmissionStatus = "LATE"
	SubmissionGraded    SubmissionStatus = "GRADED"
)

// Assignment represents coursework posted by faculty for a department and
// semester. Deletion is soft: inactive assignments stay in the table but are
// invisible to every read path.
type Assignment struct {
	ID          string    `db:"id" json:"id"`
	Title       string    `db:"title" json:"title"`
	Description string    `db:"description" json:"description"`
	SubjectID   string    `db:"subject_id" json:"subject_id"`
	Department  string    `db:"department" json:"department"`
	Semester    int       `db:"semester" json:"semester"`
	MaxMarks    float64   `db:"max_marks" json:"max_marks"`
	DueDate     time.Time `db:"due_date" json:"due_date"`
	CreatedBy   string    `db:"created_by" json:"created_by"`
	CreatorName *string   `db:"creator_name" json:"creator_name,omitempty"`
	Active      bool      `db:"active" json:"active"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}

// Submission is one student's upload for an assignment. At most one row per
// (assignment, student) pair, enforced by a unique constraint.
type Submission struct {
	ID            string           `db:"id" json:"id"`
	AssignmentID  string           `db:"assignment_id" json:"assignment_id"`
	StudentID     string           `db:"student_id" json:"student_id"`
	StudentName   *string          `db:"student_name" json:"student_name,omitempty"`
	FileURL       string           `db:"file_url" json:"file_url"`
	Comments      string           `db:"comments" json:"comments,omitempty"`
	Status        SubmissionStatus `db:"status" json:"status"`
	SubmittedAt   time.Time        `db:"submitted_at" json:"submitted_at"`
	MarksObtained *float64         `db:"marks_obtained" json:"marks_obtained,omitempty"`
	Feedback      *string          `db:"feedback" json:"feedback,omitempty"`
	GradedBy      *string          `db:"graded_by" json:"graded_by,omitempty"`
	GradedAt      *time.Time       `db:"graded_at" json:"graded_at,omitempty"`
}

// AssignmentFilter captures filtering criteria for listing assignments.
type AssignmentFilter struct {
	Department string
	Semester   *int
	SubjectID  string
	CreatedBy  string
	Page       int
	PageSize   int
	SortBy     string
	SortOrder  string
}

// CreateAssignmentRequest is the payload for posting a new assignment.
type CreateAssignmentRequest struct {
	Title       string    `json:"title" validate:"required"`
	Description string    `json:"description"`
	SubjectID   string    `json:"subject_id" validate:"required"`
	Department  string    `json:"department" validate:"required"`
	Semester    int       `json:"semester" validate:"required,min=1,max=8"`
	MaxMarks    float64   `json:"max_marks" validate:"required,gt=0"`
	DueDate     time.Time `json:"due_date" validate:"required"`
}

// UpdateAssignmentRequest carries a partial assignment patch. Zero-valued
// fields are left unchanged.
type UpdateAssignmentRequest struct {
	Title       string     `json:"title"`
	Description string     `json:"description"`
	SubjectID   string     `json:"subject_id"`
	Department  string     `json:"department"`
	Semester    int        `json:"semester" validate:"omitempty,min=1,max=8"`
	MaxMarks    float64    `json:"max_marks" validate:"omitempty,gt=0"`
	DueDate     *time.Time `json:"due_date"`
	Active      *bool      `json:"active"`
}

// GradeSubmissionRequest is the payload for grading one submission.
type GradeSubmissionRequest struct {
	MarksObtained float64 `json:"marks_obtained" validate:"min=0"`
	Feedback      string  `json:"feedback"`
}
