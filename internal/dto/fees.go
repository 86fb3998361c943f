package dto

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/noah-isme/sma-fee-ledger/internal/models"
)

// PaymentDetailRequest is one line of a payment.
type PaymentDetailRequest struct {
	Purpose    models.PaymentPurpose `json:"purpose" validate:"required"`
	TermNumber *int                  `json:"term_number,omitempty"`
	Amount     decimal.Decimal       `json:"amount"`
	Method     string                `json:"method" validate:"required,max=32"`
}

// PostPaymentRequest posts one or more details against a single enrollment, addressed either by
// id or by admission number.
type PostPaymentRequest struct {
	EnrollmentID string                 `json:"enrollment_id,omitempty"`
	AdmissionNo  string                 `json:"admission_no,omitempty"`
	Details      []PaymentDetailRequest `json:"details" validate:"required,min=1,dive"`
	Remarks      *string                `json:"remarks,omitempty" validate:"omitempty,max=500"`
}

// PostPaymentResponse returns the created income records and the receipt, when one was queued.
type PostPaymentResponse struct {
	Records   []models.IncomeRecord       `json:"records"`
	Tuition   *models.TuitionFeeBalance   `json:"tuition,omitempty"`
	Transport *models.TransportFeeBalance `json:"transport,omitempty"`
	Receipt   *models.ReceiptTicket       `json:"receipt,omitempty"`
	// ReceiptPending is surfaced in response meta when the receipt could not be queued.
	ReceiptPending bool `json:"-"`
}

// ApplyPaymentRequest pays a single slot of one ledger. Book is only meaningful for tuition.
type ApplyPaymentRequest struct {
	TermNumber *int            `json:"term_number,omitempty"`
	Book       bool            `json:"book,omitempty"`
	Amount     decimal.Decimal `json:"amount"`
	Method     string          `json:"method" validate:"required,max=32"`
	Remarks    *string         `json:"remarks,omitempty" validate:"omitempty,max=500"`
}

// BalanceResponse carries the ledger selected by kind.
type BalanceResponse struct {
	EnrollmentID string                      `json:"enrollment_id"`
	Kind         models.BalanceKind          `json:"kind"`
	Tuition      *models.TuitionFeeBalance   `json:"tuition,omitempty"`
	Transport    *models.TransportFeeBalance `json:"transport,omitempty"`
}

// OutstandingResponse reports the total still owed by an enrollment.
type OutstandingResponse struct {
	EnrollmentID     string          `json:"enrollment_id"`
	TuitionBalance   decimal.Decimal `json:"tuition_balance"`
	TransportBalance decimal.Decimal `json:"transport_balance"`
	TotalOutstanding decimal.Decimal `json:"total_outstanding"`
}

// GrantConcessionRequest targets exactly one of a reservation or an enrollment. Nil amounts leave
// that ledger unchanged.
type GrantConcessionRequest struct {
	ReservationID   string           `json:"reservation_id,omitempty"`
	EnrollmentID    string           `json:"enrollment_id,omitempty"`
	TuitionAmount   *decimal.Decimal `json:"tuition_amount,omitempty"`
	TransportAmount *decimal.Decimal `json:"transport_amount,omitempty"`
	Remarks         *string          `json:"remarks,omitempty" validate:"omitempty,max=500"`
}

// IncomeQuery mirrors the income ledger filters.
type IncomeQuery struct {
	EnrollmentID string
	Purpose      models.PaymentPurpose
	From         *time.Time
	To           *time.Time
	Page         int
	PageSize     int
	Format       string
}
