package models

import "time"

// Subject represents a taught course unit.
type Subject struct {
	ID          string    `db:"id" json:"id"`
	Name        string    `db:"name" json:"name"`
	Code        string    `db:"code" json:"code"`
	Department  string    `db:"department" json:"department"`
	Semester    int       `db:"semester" json:"semester"`
	Credits     int       `db:"credits" json:"credits"`
	FacultyID   *string   `db:"faculty_id" json:"faculty_id,omitempty"`
	FacultyName *string   `db:"faculty_name" json:"faculty_name,omitempty"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}

// SubjectFilter captures filtering criteria for listing subjects.
type SubjectFilter struct {
	Department string
	Semester   *int
	FacultyID  string
	Search     string
	Page       int
	PageSize   int
	SortBy     string
	SortOrder  string
}
