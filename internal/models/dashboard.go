package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// FeeDashboard aggregates collections and outstanding fees for one branch.
type FeeDashboard struct {
	BranchID              string                             `json:"branch_id"`
	AcademicYearID        string                             `json:"academic_year_id,omitempty"`
	CollectedToday        decimal.Decimal                    `json:"collected_today"`
	CollectedThisMonth    decimal.Decimal                    `json:"collected_this_month"`
	CollectedByPurpose    map[PaymentPurpose]decimal.Decimal `json:"collected_by_purpose"`
	OutstandingTotal      decimal.Decimal                    `json:"outstanding_total"`
	ActiveEnrollments     int                                `json:"active_enrollments"`
	PendingReservations   int                                `json:"pending_reservations"`
	ConfirmedReservations int                                `json:"confirmed_reservations"`
	GeneratedAt           time.Time                          `json:"generated_at"`
}

// PurposeTotal is one row of the per-purpose collection aggregate.
type PurposeTotal struct {
	Purpose PaymentPurpose  `db:"purpose"`
	Total   decimal.Decimal `db:"total"`
}

// ReservationCounts holds reservation totals by status.
type ReservationCounts struct {
	Pending   int `db:"pending"`
	Confirmed int `db:"confirmed"`
}
