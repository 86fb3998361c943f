package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// PromotionEligibility is derived per enrollment, never persisted.
type PromotionEligibility struct {
	EnrollmentID       string          `db:"enrollment_id" json:"enrollment_id"`
	StudentID          string          `db:"student_id" json:"student_id"`
	AdmissionNo        string          `db:"admission_no" json:"admission_no"`
	CurrentClassID     string          `db:"class_id" json:"current_class_id"`
	TotalPendingAmount decimal.Decimal `db:"-" json:"total_pending_amount"`
	IsPromotable       bool            `db:"-" json:"is_promotable"`
}

// Promotable applies the fee-clearance policy to an outstanding amount.
func Promotable(pending decimal.Decimal, requireFeesPaid bool) bool {
	return !requireFeesPaid || !pending.IsPositive()
}

// PromotionBatch is the validated input of a promote call.
type PromotionBatch struct {
	BranchID           string
	NextAcademicYearID string
	RequireFeesPaid    bool
	EnrollmentIDs      []string
	PromotedAt         time.Time
}

// PromotionOutcome pairs the retired enrollment with its successor.
type PromotionOutcome struct {
	Previous *Enrollment `json:"previous"`
	Next     *Enrollment `json:"next"`
}
