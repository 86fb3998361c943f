package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// PaymentPurpose is the fee category a payment is applied against.
type PaymentPurpose string

const (
	PurposeAdmissionFee   PaymentPurpose = "ADMISSION_FEE"
	PurposeTuitionFee     PaymentPurpose = "TUITION_FEE"
	PurposeTransportFee   PaymentPurpose = "TRANSPORT_FEE"
	PurposeBookFee        PaymentPurpose = "BOOK_FEE"
	PurposeApplicationFee PaymentPurpose = "APPLICATION_FEE"
	PurposeOther          PaymentPurpose = "OTHER"
)

// Valid reports whether p is a recognised purpose.
func (p PaymentPurpose) Valid() bool {
	switch p {
	case PurposeAdmissionFee, PurposeTuitionFee, PurposeTransportFee, PurposeBookFee, PurposeApplicationFee, PurposeOther:
		return true
	}
	return false
}

// TermCount returns how many term slots the purpose addresses, zero when it is not term based.
func (p PaymentPurpose) TermCount() int {
	switch p {
	case PurposeTuitionFee:
		return TuitionTermCount
	case PurposeTransportFee:
		return TransportTermCount
	}
	return 0
}

// IncomeRecord is an append-only payment event.
type IncomeRecord struct {
	ID            string          `db:"id" json:"id"`
	BranchID      string          `db:"branch_id" json:"branch_id"`
	EnrollmentID  *string         `db:"enrollment_id" json:"enrollment_id,omitempty"`
	ReservationID *string         `db:"reservation_id" json:"reservation_id,omitempty"`
	AdmissionNo   *string         `db:"admission_no" json:"admission_no,omitempty"`
	Purpose       PaymentPurpose  `db:"purpose" json:"purpose"`
	TermNumber    *int            `db:"term_number" json:"term_number,omitempty"`
	PaidAmount    decimal.Decimal `db:"paid_amount" json:"paid_amount"`
	PaymentMethod string          `db:"payment_method" json:"payment_method"`
	Remarks       *string         `db:"remarks" json:"remarks,omitempty"`
	CreatedBy     string          `db:"created_by" json:"created_by"`
	CreatedAt     time.Time       `db:"created_at" json:"created_at"`
}

// PaymentDetail is one line of a posted payment.
type PaymentDetail struct {
	Purpose    PaymentPurpose
	TermNumber *int
	Amount     decimal.Decimal
	Method     string
}

// Slot maps a detail onto the balance it updates. ok is false for income-only purposes.
func (d PaymentDetail) Slot() (kind BalanceKind, slot PaymentSlot, ok bool) {
	switch d.Purpose {
	case PurposeTuitionFee:
		return BalanceKindTuition, TermSlot(derefInt(d.TermNumber)), true
	case PurposeTransportFee:
		return BalanceKindTransport, TermSlot(derefInt(d.TermNumber)), true
	case PurposeBookFee:
		return BalanceKindTuition, BookSlot(), true
	}
	return "", PaymentSlot{}, false
}

// PaymentPosting is a validated payment for one enrollment, ready to be written in one transaction.
type PaymentPosting struct {
	BranchID     string
	EnrollmentID string
	AdmissionNo  string
	Details      []PaymentDetail
	Remarks      *string
	CreatedBy    string
	AllowOverpay bool
}

// PostingResult reports what a posting wrote.
type PostingResult struct {
	Records   []IncomeRecord       `json:"records"`
	Tuition   *TuitionFeeBalance   `json:"tuition,omitempty"`
	Transport *TransportFeeBalance `json:"transport,omitempty"`
	Overpaid  []int                `json:"-"`
}

// IncomeFilter constrains income ledger listing and export.
type IncomeFilter struct {
	EnrollmentID string
	Purpose      PaymentPurpose
	From         *time.Time
	To           *time.Time
	Page         int
	PageSize     int
}

func derefInt(v *int) int {
	if v == nil {
		return 0
	}
	return *v
}
