package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// ReservationStatus is a one-way state: PENDING moves to CONFIRMED or CANCELLED and stops.
type ReservationStatus string

const (
	ReservationStatusPending   ReservationStatus = "PENDING"
	ReservationStatusConfirmed ReservationStatus = "CONFIRMED"
	ReservationStatusCancelled ReservationStatus = "CANCELLED"
)

// Terminal reports whether no further transition is allowed.
func (s ReservationStatus) Terminal() bool {
	return s == ReservationStatusConfirmed || s == ReservationStatusCancelled
}

// Reservation is a pre-enrollment application with a snapshot of the quoted fees.
type Reservation struct {
	ID                  string            `db:"id" json:"id"`
	BranchID            string            `db:"branch_id" json:"branch_id"`
	StudentName         string            `db:"student_name" json:"student_name"`
	StudentID           *string           `db:"student_id" json:"student_id,omitempty"`
	ClassID             string            `db:"class_id" json:"class_id"`
	AcademicYearID      string            `db:"academic_year_id" json:"academic_year_id"`
	ApplicationFee      decimal.Decimal   `db:"application_fee" json:"application_fee"`
	ApplicationFeePaid  decimal.Decimal   `db:"application_fee_paid" json:"application_fee_paid"`
	TuitionFee          decimal.Decimal   `db:"tuition_fee" json:"tuition_fee"`
	TransportFee        decimal.Decimal   `db:"transport_fee" json:"transport_fee"`
	BookFee             decimal.Decimal   `db:"book_fee" json:"book_fee"`
	TuitionConcession   decimal.Decimal   `db:"tuition_concession" json:"tuition_concession"`
	TransportConcession decimal.Decimal   `db:"transport_concession" json:"transport_concession"`
	ConcessionRemarks   *string           `db:"concession_remarks" json:"concession_remarks,omitempty"`
	ConcessionLock      bool              `db:"concession_lock" json:"concession_lock"`
	Status              ReservationStatus `db:"status" json:"status"`
	Remarks             *string           `db:"remarks" json:"remarks,omitempty"`
	ApplicationIncomeID *string           `db:"application_income_id" json:"application_income_id,omitempty"`
	AdmissionIncomeID   *string           `db:"admission_income_id" json:"admission_income_id,omitempty"`
	IsEnrolled          bool              `db:"is_enrolled" json:"is_enrolled"`
	EnrollmentID        *string           `db:"enrollment_id" json:"enrollment_id,omitempty"`
	CreatedAt           time.Time         `db:"created_at" json:"created_at"`
	UpdatedAt           time.Time         `db:"updated_at" json:"updated_at"`
	ConfirmedAt         *time.Time        `db:"confirmed_at" json:"confirmed_at,omitempty"`
	CancelledAt         *time.Time        `db:"cancelled_at" json:"cancelled_at,omitempty"`
}

// ReservationFilter constrains reservation listing.
type ReservationFilter struct {
	Status   ReservationStatus
	Search   string
	Page     int
	PageSize int
}

// ConfirmOptions carries the enrollment placement chosen at confirmation.
type ConfirmOptions struct {
	Remarks      *string
	AdmissionNo  string
	SectionID    *string
	RollNumber   *string
	AdmissionFee *IncomeRecord
}

// ConfirmResult is returned by every confirm call, including idempotent repeats.
type ConfirmResult struct {
	Reservation *Reservation `json:"reservation"`
	Enrollment  *Enrollment  `json:"enrollment"`
	Replayed    bool         `json:"replayed"`
}
