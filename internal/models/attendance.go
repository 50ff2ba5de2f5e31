package models

import "time"

// AttendanceStatus enumerates the daily attendance states.
type AttendanceStatus string

const (
	AttendancePresent AttendanceStatus = "PRESENT"
	AttendanceAbsent  AttendanceStatus = "ABSENT"
	AttendanceLeave   AttendanceStatus = "LEAVE"
)

// Valid reports whether the status is a known attendance state.
func (s AttendanceStatus) Valid() bool {
	switch s {
	case AttendancePresent, AttendanceAbsent, AttendanceLeave:
		return true
	}
	return false
}

// Attendance records one student's presence for a subject session on a date.
// The natural key is (student, subject, date); marking the same session twice
// updates the stored status in place.
type Attendance struct {
	ID          string           `db:"id" json:"id"`
	StudentID   string           `db:"student_id" json:"student_id"`
	StudentName *string          `db:"student_name" json:"student_name,omitempty"`
	SubjectID   string           `db:"subject_id" json:"subject_id"`
	SubjectName *string          `db:"subject_name" json:"subject_name,omitempty"`
	Date        time.Time        `db:"date" json:"date"`
	Status      AttendanceStatus `db:"status" json:"status"`
	MarkedBy    string           `db:"marked_by" json:"marked_by"`
	CreatedAt   time.Time        `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time        `db:"updated_at" json:"updated_at"`
}

// AttendanceFilter captures filtering criteria for listing attendance.
type AttendanceFilter struct {
	StudentID  string
	SubjectID  string
	Department string
	Date       *time.Time
	Status     *AttendanceStatus
	Page       int
	PageSize   int
	SortBy     string
	SortOrder  string
}

// MarkAttendanceRequest is the payload for marking a session.
type MarkAttendanceRequest struct {
	StudentID string           `json:"student_id" validate:"required"`
	SubjectID string           `json:"subject_id" validate:"required"`
	Date      time.Time        `json:"date" validate:"required"`
	Status    AttendanceStatus `json:"status" validate:"required"`
}
