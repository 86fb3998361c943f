package models

import "time"

// StudentStatus represents the lifecycle of an enrollment.
type StudentStatus string

const (
	StudentStatusActive     StudentStatus = "ACTIVE"
	StudentStatusPromoted   StudentStatus = "PROMOTED"
	StudentStatusDroppedOut StudentStatus = "DROPPED_OUT"
)

// Enrollment places a student in a class and section for one academic year.
type Enrollment struct {
	ID             string        `db:"id" json:"id"`
	BranchID       string        `db:"branch_id" json:"branch_id"`
	StudentID      string        `db:"student_id" json:"student_id"`
	AdmissionNo    string        `db:"admission_no" json:"admission_no"`
	ClassID        string        `db:"class_id" json:"class_id"`
	SectionID      *string       `db:"section_id" json:"section_id,omitempty"`
	AcademicYearID string        `db:"academic_year_id" json:"academic_year_id"`
	RollNumber     *string       `db:"roll_number" json:"roll_number,omitempty"`
	IsActive       bool          `db:"is_active" json:"is_active"`
	StudentStatus  StudentStatus `db:"student_status" json:"student_status"`
	ReservationID  *string       `db:"reservation_id" json:"reservation_id,omitempty"`
	PromotedAt     *time.Time    `db:"promoted_at" json:"promoted_at,omitempty"`
	DropoutReason  *string       `db:"dropout_reason" json:"dropout_reason,omitempty"`
	DropoutDate    *time.Time    `db:"dropout_date" json:"dropout_date,omitempty"`
	CreatedAt      time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time     `db:"updated_at" json:"updated_at"`
}

// EnrollmentFilter narrows the cohort considered by promotion evaluation.
type EnrollmentFilter struct {
	ClassID        string
	AcademicYearID string
	Search         string
	ActiveOnly     bool
}
