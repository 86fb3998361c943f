package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/sma-fee-ledger/internal/models"
)

// DashboardRepository runs the read-only aggregates behind the fee dashboard.
type DashboardRepository struct {
	db *sqlx.DB
}

// NewDashboardRepository constructs the repository.
func NewDashboardRepository(db *sqlx.DB) *DashboardRepository {
	return &DashboardRepository{db: db}
}

// CollectedBetween sums income recorded in [from, to).
func (r *DashboardRepository) CollectedBetween(ctx context.Context, branchID string, from, to time.Time) (decimal.Decimal, error) {
	const query = `SELECT COALESCE(SUM(paid_amount), 0) FROM income_records WHERE branch_id = $1 AND created_at >= $2 AND created_at < $3`
	var total decimal.Decimal
	if err := r.db.GetContext(ctx, &total, query, branchID, from, to); err != nil {
		return decimal.Zero, fmt.Errorf("sum collected income: %w", err)
	}
	return total, nil
}

// CollectedByPurpose sums income per purpose, optionally restricted to one academic year's enrollments.
func (r *DashboardRepository) CollectedByPurpose(ctx context.Context, branchID, academicYearID string) ([]models.PurposeTotal, error) {
	query := `SELECT i.purpose, COALESCE(SUM(i.paid_amount), 0) AS total FROM income_records i`
	args := []interface{}{branchID}
	if academicYearID != "" {
		query += ` JOIN enrollments e ON e.id = i.enrollment_id AND e.academic_year_id = $2`
		args = append(args, academicYearID)
	}
	query += ` WHERE i.branch_id = $1 GROUP BY i.purpose ORDER BY i.purpose`

	var totals []models.PurposeTotal
	if err := r.db.SelectContext(ctx, &totals, query, args...); err != nil {
		return nil, fmt.Errorf("sum income by purpose: %w", err)
	}
	return totals, nil
}

// ReservationCounts counts pending and confirmed reservations.
func (r *DashboardRepository) ReservationCounts(ctx context.Context, branchID, academicYearID string) (models.ReservationCounts, error) {
	query := `SELECT COUNT(*) FILTER (WHERE status = 'PENDING') AS pending,
       COUNT(*) FILTER (WHERE status = 'CONFIRMED') AS confirmed
	FROM reservations WHERE branch_id = $1`
	args := []interface{}{branchID}
	if academicYearID != "" {
		query += ` AND academic_year_id = $2`
		args = append(args, academicYearID)
	}
	var counts models.ReservationCounts
	if err := r.db.GetContext(ctx, &counts, query, args...); err != nil {
		return models.ReservationCounts{}, fmt.Errorf("count reservations: %w", err)
	}
	return counts, nil
}
