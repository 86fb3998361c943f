package models

import "time"

// Audit actions recorded for ledger mutations.
const (
	AuditActionPaymentPosted        = "PAYMENT_POSTED"
	AuditActionConcessionGranted    = "CONCESSION_GRANTED"
	AuditActionReservationCreated   = "RESERVATION_CREATED"
	AuditActionReservationConfirmed = "RESERVATION_CONFIRMED"
	AuditActionReservationCancelled = "RESERVATION_CANCELLED"
	AuditActionEnrollmentPromoted   = "ENROLLMENT_PROMOTED"
	AuditActionEnrollmentDropout    = "ENROLLMENT_DROPOUT"
)

// AuditLog represents an audit trail record.
type AuditLog struct {
	ID         string    `db:"id" json:"id"`
	BranchID   string    `db:"branch_id" json:"branch_id"`
	UserID     *string   `db:"user_id" json:"user_id,omitempty"`
	Action     string    `db:"action" json:"action"`
	Resource   string    `db:"resource" json:"resource"`
	ResourceID *string   `db:"resource_id" json:"resource_id,omitempty"`
	NewValues  []byte    `db:"new_values" json:"new_values,omitempty"`
	IPAddress  string    `db:"ip_address" json:"ip_address"`
	UserAgent  string    `db:"user_agent" json:"user_agent"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}
