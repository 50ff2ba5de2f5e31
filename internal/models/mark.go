package models

import "time"

// Mark records an exam or assignment score for a student, owned by the
// grading faculty member.
type Mark struct {
	ID            string    `db:"id" json:"id"`
	StudentID     string    `db:"student_id" json:"student_id"`
	StudentName   *string   `db:"student_name" json:"student_name,omitempty"`
	SubjectID     string    `db:"subject_id" json:"subject_id"`
	SubjectName   *string   `db:"subject_name" json:"subject_name,omitempty"`
	AssignmentID  *string   `db:"assignment_id" json:"assignment_id,omitempty"`
	ExamType      string    `db:"exam_type" json:"exam_type"`
	MarksObtained float64   `db:"marks_obtained" json:"marks_obtained"`
	MaxMarks      float64   `db:"max_marks" json:"max_marks"`
	GradedBy      string    `db:"graded_by" json:"graded_by"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time `db:"updated_at" json:"updated_at"`
}

// MarkFilter captures filtering criteria for listing marks.
type MarkFilter struct {
	StudentID  string
	SubjectID  string
	Department string
	ExamType   string
	GradedBy   string
	Page       int
	PageSize   int
	SortBy     string
	SortOrder  string
}

// CreateMarkRequest is the payload for submitting marks.
type CreateMarkRequest struct {
	StudentID     string  `json:"student_id" validate:"required"`
	SubjectID     string  `json:"subject_id" validate:"required"`
	AssignmentID  string  `json:"assignment_id"`
	ExamType      string  `json:"exam_type" validate:"required"`
	MarksObtained float64 `json:"marks_obtained" validate:"min=0"`
	MaxMarks      float64 `json:"max_marks" validate:"required,gt=0"`
}

// UpdateMarkRequest carries a partial mark patch.
type UpdateMarkRequest struct {
	MarksObtained *float64 `json:"marks_obtained"`
	MaxMarks      *float64 `json:"max_marks"`
	ExamType      string   `json:"exam_type"`
}
