package dto

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/noah-isme/sma-fee-ledger/internal/models"
)

// CreateReservationRequest captures an application with its quoted fees.
type CreateReservationRequest struct {
	StudentName         string          `json:"student_name" validate:"required,max=200"`
	StudentID           *string         `json:"student_id,omitempty"`
	ClassID             string          `json:"class_id" validate:"required"`
	AcademicYearID      string          `json:"academic_year_id" validate:"required"`
	ApplicationFee      decimal.Decimal `json:"application_fee"`
	TuitionFee          decimal.Decimal `json:"tuition_fee"`
	TransportFee        decimal.Decimal `json:"transport_fee"`
	BookFee             decimal.Decimal `json:"book_fee"`
	TuitionConcession   decimal.Decimal `json:"tuition_concession"`
	TransportConcession decimal.Decimal `json:"transport_concession"`
	Remarks             *string         `json:"remarks,omitempty" validate:"omitempty,max=500"`
}

// ReservationPaymentRequest pays a reservation-level fee.
type ReservationPaymentRequest struct {
	Amount decimal.Decimal `json:"amount"`
	Method string          `json:"method" validate:"required,max=32"`
}

// ConfirmReservationRequest confirms a reservation and places the student.
type ConfirmReservationRequest struct {
	Remarks      *string                    `json:"remarks,omitempty" validate:"omitempty,max=500"`
	AdmissionFee *ReservationPaymentRequest `json:"admission_fee,omitempty"`
	AdmissionNo  string                     `json:"admission_no,omitempty" validate:"omitempty,max=64"`
	SectionID    *string                    `json:"section_id,omitempty"`
	RollNumber   *string                    `json:"roll_number,omitempty" validate:"omitempty,max=32"`
}

// CancelReservationRequest carries the cancellation note.
type CancelReservationRequest struct {
	Remarks *string `json:"remarks,omitempty" validate:"omitempty,max=500"`
}

// ReservationQuery mirrors reservation listing filters.
type ReservationQuery struct {
	Status   models.ReservationStatus
	Search   string
	Page     int
	PageSize int
}

// EligibilityQuery narrows the promotion cohort. RequireFeesPaid falls back to the configured policy.
type EligibilityQuery struct {
	ClassID         string
	AcademicYearID  string
	Search          string
	RequireFeesPaid *bool
}

// PromoteRequest promotes a batch of enrollments into the next academic year.
type PromoteRequest struct {
	NextAcademicYearID string   `json:"next_academic_year_id" validate:"required"`
	RequireFeesPaid    *bool    `json:"require_fees_paid,omitempty"`
	EnrollmentIDs      []string `json:"enrollment_ids" validate:"required,min=1,dive,required"`
}

// DropoutRequest ends an active enrollment.
type DropoutRequest struct {
	Reason string     `json:"reason" validate:"required,max=500"`
	Date   *time.Time `json:"date,omitempty"`
}
