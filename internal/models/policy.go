package models

import "time"

// Feature identifies a capability gated by per-role visibility policies.
type Feature string

const (
	FeatureAssignments             Feature = "show_assignments"
	FeatureMarks                   Feature = "show_marks"
	FeatureAttendance              Feature = "show_attendance"
	FeatureSubjects                Feature = "show_subjects"
	FeatureFees                    Feature = "show_fees"
	FeatureFacultyUpdateMarks      Feature = "faculty_can_update_marks"
	FeatureFacultyUpdateAttendance Feature = "faculty_can_update_attendance"
	FeatureHODDepartmentData       Feature = "hod_can_view_department_data"
)

// AllFeatures lists every gated capability, used by the policy property tests.
var AllFeatures = []Feature{
	FeatureAssignments,
	FeatureMarks,
	FeatureAttendance,
	FeatureSubjects,
	FeatureFees,
	FeatureFacultyUpdateMarks,
	FeatureFacultyUpdateAttendance,
	FeatureHODDepartmentData,
}

// VisibilityPolicy is the per-role capability record. Exactly one row exists
// per role; absence of a row means every gated feature is denied for that role.
type VisibilityPolicy struct {
	ID                         string    `db:"id" json:"id"`
	Role                       UserRole  `db:"role" json:"role"`
	ShowAssignments            bool      `db:"show_assignments" json:"show_assignments"`
	ShowMarks                  bool      `db:"show_marks" json:"show_marks"`
	ShowAttendance             bool      `db:"show_attendance" json:"show_attendance"`
	ShowSubjects               bool      `db:"show_subjects" json:"show_subjects"`
	ShowFees                   bool      `db:"show_fees" json:"show_fees"`
	FacultyCanUpdateMarks      bool      `db:"faculty_can_update_marks" json:"faculty_can_update_marks"`
	FacultyCanUpdateAttendance bool      `db:"faculty_can_update_attendance" json:"faculty_can_update_attendance"`
	HODCanViewDepartmentData   bool      `db:"hod_can_view_department_data" json:"hod_can_view_department_data"`
	CreatedAt                  time.Time `db:"created_at" json:"created_at"`
	UpdatedAt                  time.Time `db:"updated_at" json:"updated_at"`
}

// Allows reports whether the policy grants the given feature. A nil policy
// denies everything.
func (p *VisibilityPolicy) Allows(feature Feature) bool {
	if p == nil {
		return false
	}
	switch feature {
	case FeatureAssignments:
		return p.ShowAssignments
	case FeatureMarks:
		return p.ShowMarks
	case FeatureAttendance:
		return p.ShowAttendance
	case FeatureSubjects:
		return p.ShowSubjects
	case FeatureFees:
		return p.ShowFees
	case FeatureFacultyUpdateMarks:
		return p.FacultyCanUpdateMarks
	case FeatureFacultyUpdateAttendance:
		return p.FacultyCanUpdateAttendance
	case FeatureHODDepartmentData:
		return p.HODCanViewDepartmentData
	}
	return false
}

// UpsertVisibilityPolicyRequest carries a partial policy update. Only fields
// present in the request change; nil pointers leave stored flags untouched.
type UpsertVisibilityPolicyRequest struct {
	Role                       UserRole `json:"role" validate:"required"`
	ShowAssignments            *bool    `json:"show_assignments"`
	ShowMarks                  *bool    `json:"show_marks"`
	ShowAttendance             *bool    `json:"show_attendance"`
	ShowSubjects               *bool    `json:"show_subjects"`
	ShowFees                   *bool    `json:"show_fees"`
	FacultyCanUpdateMarks      *bool    `json:"faculty_can_update_marks"`
	FacultyCanUpdateAttendance *bool    `json:"faculty_can_update_attendance"`
	HODCanViewDepartmentData   *bool    `json:"hod_can_view_department_data"`
}
