package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/sma-fee-ledger/internal/models"
)

const (
	tuitionColumns = `id, branch_id, enrollment_id, actual_fee, concession_amount, net_fee, book_fee, book_paid,
       term1_amount, term1_paid, term2_amount, term2_paid, term3_amount, term3_paid, version, updated_at`
	transportColumns = `id, branch_id, enrollment_id, actual_fee, concession_amount, total_fee,
       term1_amount, term1_paid, term2_amount, term2_paid, version, updated_at`
)

// LedgerBalances groups both ledgers of one enrollment. Transport is nil when not subscribed.
type LedgerBalances struct {
	Tuition   *models.TuitionFeeBalance
	Transport *models.TransportFeeBalance
}

// Outstanding applies the shared outstanding formula.
func (l LedgerBalances) Outstanding() decimal.Decimal {
	return models.TotalOutstanding(l.Tuition, l.Transport)
}

// ConcessionChange is a concession overwrite for one enrollment. Nil amounts leave a ledger untouched.
type ConcessionChange struct {
	BranchID     string
	EnrollmentID string
	Tuition      *decimal.Decimal
	Transport    *decimal.Decimal
	Rederive     bool
}

// FeeBalanceRepository persists tuition and transport balances with optimistic versioning.
type FeeBalanceRepository struct {
	db        *sqlx.DB
	txTimeout time.Duration
}

// NewFeeBalanceRepository constructs the repository.
func NewFeeBalanceRepository(db *sqlx.DB, txTimeout time.Duration) *FeeBalanceRepository {
	return &FeeBalanceRepository{db: db, txTimeout: txTimeout}
}

// GetTuition loads the tuition balance of an enrollment.
func (r *FeeBalanceRepository) GetTuition(ctx context.Context, branchID, enrollmentID string) (*models.TuitionFeeBalance, error) {
	return r.tuition(ctx, r.db, branchID, enrollmentID, false)
}

// GetTransport loads the transport balance of an enrollment.
func (r *FeeBalanceRepository) GetTransport(ctx context.Context, branchID, enrollmentID string) (*models.TransportFeeBalance, error) {
	return r.transport(ctx, r.db, branchID, enrollmentID, false)
}

// GetLedger loads both ledgers. A missing tuition row is sql.ErrNoRows; a missing transport row is not an error.
func (r *FeeBalanceRepository) GetLedger(ctx context.Context, branchID, enrollmentID string) (LedgerBalances, error) {
	return r.load(ctx, r.db, branchID, enrollmentID, false)
}

// SetConcession overwrites concessions in one transaction after checking the reservation lock
// under a shared row lock, so a concurrent confirm cannot interleave.
func (r *FeeBalanceRepository) SetConcession(ctx context.Context, change ConcessionChange) (LedgerBalances, error) {
	var ledger LedgerBalances
	err := withTx(ctx, r.db, r.txTimeout, func(tx *sqlx.Tx) error {
		var reservationID *string
		const enrollmentQuery = `SELECT reservation_id FROM enrollments WHERE id = $1 AND branch_id = $2`
		if err := tx.GetContext(ctx, &reservationID, enrollmentQuery, change.EnrollmentID, change.BranchID); err != nil {
			return fmt.Errorf("load enrollment reservation: %w", err)
		}
		if reservationID != nil {
			var locked bool
			const lockQuery = `SELECT concession_lock FROM reservations WHERE id = $1 FOR SHARE`
			if err := tx.GetContext(ctx, &locked, lockQuery, *reservationID); err != nil && !errors.Is(err, sql.ErrNoRows) {
				return fmt.Errorf("read concession lock: %w", err)
			}
			if locked {
				return ErrConcessionLocked
			}
		}

		var err error
		ledger, err = r.load(ctx, tx, change.BranchID, change.EnrollmentID, false)
		if err != nil {
			return err
		}
		if change.Tuition != nil {
			if err := ledger.Tuition.SetConcession(*change.Tuition, change.Rederive); err != nil {
				return err
			}
			if err := r.saveTuition(ctx, tx, ledger.Tuition); err != nil {
				return err
			}
		}
		if change.Transport != nil {
			if ledger.Transport == nil {
				return ErrTransportBalanceMissing
			}
			if err := ledger.Transport.SetConcession(*change.Transport, change.Rederive); err != nil {
				return err
			}
			if err := r.saveTransport(ctx, tx, ledger.Transport); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return LedgerBalances{}, err
	}
	return ledger, nil
}

// ApplyPayment is the store primitive used inside a posting transaction: it increments paid on
// one slot of the in-memory ledger and persists the row with a version check.
func (r *FeeBalanceRepository) ApplyPayment(ctx context.Context, ext sqlx.ExtContext, ledger *LedgerBalances, kind models.BalanceKind, slot models.PaymentSlot, amount decimal.Decimal, allowOverpay bool) (bool, error) {
	switch kind {
	case models.BalanceKindTuition:
		overpaid, err := ledger.Tuition.ApplyPayment(slot, amount, allowOverpay)
		if err != nil {
			return false, err
		}
		return overpaid, r.saveTuition(ctx, ext, ledger.Tuition)
	case models.BalanceKindTransport:
		if ledger.Transport == nil {
			return false, ErrTransportBalanceMissing
		}
		overpaid, err := ledger.Transport.ApplyPayment(slot, amount, allowOverpay)
		if err != nil {
			return false, err
		}
		return overpaid, r.saveTransport(ctx, ext, ledger.Transport)
	}
	return false, models.ErrInvalidSlot
}

func (r *FeeBalanceRepository) load(ctx context.Context, q sqlx.QueryerContext, branchID, enrollmentID string, forUpdate bool) (LedgerBalances, error) {
	tuition, err := r.tuition(ctx, q, branchID, enrollmentID, forUpdate)
	if err != nil {
		return LedgerBalances{}, err
	}
	transport, err := r.transport(ctx, q, branchID, enrollmentID, forUpdate)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return LedgerBalances{}, err
	}
	return LedgerBalances{Tuition: tuition, Transport: transport}, nil
}

func (r *FeeBalanceRepository) tuition(ctx context.Context, q sqlx.QueryerContext, branchID, enrollmentID string, forUpdate bool) (*models.TuitionFeeBalance, error) {
	query := `SELECT ` + tuitionColumns + ` FROM tuition_fee_balances WHERE enrollment_id = $1 AND branch_id = $2`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	var balance models.TuitionFeeBalance
	if err := sqlx.GetContext(ctx, q, &balance, query, enrollmentID, branchID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("get tuition balance: %w", err)
	}
	balance.Recompute()
	return &balance, nil
}

func (r *FeeBalanceRepository) transport(ctx context.Context, q sqlx.QueryerContext, branchID, enrollmentID string, forUpdate bool) (*models.TransportFeeBalance, error) {
	query := `SELECT ` + transportColumns + ` FROM transport_fee_balances WHERE enrollment_id = $1 AND branch_id = $2`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	var balance models.TransportFeeBalance
	if err := sqlx.GetContext(ctx, q, &balance, query, enrollmentID, branchID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("get transport balance: %w", err)
	}
	balance.Recompute()
	return &balance, nil
}

func (r *FeeBalanceRepository) saveTuition(ctx context.Context, ext sqlx.ExecerContext, b *models.TuitionFeeBalance) error {
	now := time.Now().UTC()
	const query = `UPDATE tuition_fee_balances SET concession_amount = $1, net_fee = $2, book_paid = $3,
       term1_amount = $4, term1_paid = $5, term2_amount = $6, term2_paid = $7, term3_amount = $8, term3_paid = $9,
       version = version + 1, updated_at = $10
	WHERE id = $11 AND version = $12`
	res, err := ext.ExecContext(ctx, query,
		b.ConcessionAmount, b.NetFee, b.BookPaid,
		b.Term1Amount, b.Term1Paid, b.Term2Amount, b.Term2Paid, b.Term3Amount, b.Term3Paid,
		now, b.ID, b.Version,
	)
	if err != nil {
		return fmt.Errorf("update tuition balance: %w", err)
	}
	if err := expectOneRow(res, "update tuition balance"); err != nil {
		return &ResourceError{ID: b.EnrollmentID, Err: err}
	}
	b.Version++
	b.UpdatedAt = now
	return nil
}

func (r *FeeBalanceRepository) saveTransport(ctx context.Context, ext sqlx.ExecerContext, b *models.TransportFeeBalance) error {
	now := time.Now().UTC()
	const query = `UPDATE transport_fee_balances SET concession_amount = $1, total_fee = $2,
       term1_amount = $3, term1_paid = $4, term2_amount = $5, term2_paid = $6,
       version = version + 1, updated_at = $7
	WHERE id = $8 AND version = $9`
	res, err := ext.ExecContext(ctx, query,
		b.ConcessionAmount, b.TotalFee,
		b.Term1Amount, b.Term1Paid, b.Term2Amount, b.Term2Paid,
		now, b.ID, b.Version,
	)
	if err != nil {
		return fmt.Errorf("update transport balance: %w", err)
	}
	if err := expectOneRow(res, "update transport balance"); err != nil {
		return &ResourceError{ID: b.EnrollmentID, Err: err}
	}
	b.Version++
	b.UpdatedAt = now
	return nil
}

func (r *FeeBalanceRepository) insertTuition(ctx context.Context, ext sqlx.ExecerContext, b *models.TuitionFeeBalance) error {
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	b.UpdatedAt = time.Now().UTC()
	const query = `INSERT INTO tuition_fee_balances (id, branch_id, enrollment_id, actual_fee, concession_amount, net_fee,
       book_fee, book_paid, term1_amount, term1_paid, term2_amount, term2_paid, term3_amount, term3_paid, version, updated_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`
	if _, err := ext.ExecContext(ctx, query,
		b.ID, b.BranchID, b.EnrollmentID, b.ActualFee, b.ConcessionAmount, b.NetFee,
		b.BookFee, b.BookPaid, b.Term1Amount, b.Term1Paid, b.Term2Amount, b.Term2Paid, b.Term3Amount, b.Term3Paid,
		b.Version, b.UpdatedAt,
	); err != nil {
		return fmt.Errorf("insert tuition balance: %w", err)
	}
	return nil
}

func (r *FeeBalanceRepository) insertTransport(ctx context.Context, ext sqlx.ExecerContext, b *models.TransportFeeBalance) error {
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	b.UpdatedAt = time.Now().UTC()
	const query = `INSERT INTO transport_fee_balances (id, branch_id, enrollment_id, actual_fee, concession_amount, total_fee,
       term1_amount, term1_paid, term2_amount, term2_paid, version, updated_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`
	if _, err := ext.ExecContext(ctx, query,
		b.ID, b.BranchID, b.EnrollmentID, b.ActualFee, b.ConcessionAmount, b.TotalFee,
		b.Term1Amount, b.Term1Paid, b.Term2Amount, b.Term2Paid, b.Version, b.UpdatedAt,
	); err != nil {
		return fmt.Errorf("insert transport balance: %w", err)
	}
	return nil
}

// LedgersFor loads the ledgers of many enrollments in two queries, keyed by enrollment id.
// Enrollments without a tuition row are absent from the map.
func (r *FeeBalanceRepository) LedgersFor(ctx context.Context, branchID string, enrollmentIDs []string) (map[string]LedgerBalances, error) {
	ledgers := make(map[string]LedgerBalances, len(enrollmentIDs))
	if len(enrollmentIDs) == 0 {
		return ledgers, nil
	}

	var tuition []models.TuitionFeeBalance
	tuitionQuery := `SELECT ` + tuitionColumns + ` FROM tuition_fee_balances WHERE branch_id = $1 AND enrollment_id = ANY($2)`
	if err := r.db.SelectContext(ctx, &tuition, tuitionQuery, branchID, pq.Array(enrollmentIDs)); err != nil {
		return nil, fmt.Errorf("list tuition balances: %w", err)
	}
	var transport []models.TransportFeeBalance
	transportQuery := `SELECT ` + transportColumns + ` FROM transport_fee_balances WHERE branch_id = $1 AND enrollment_id = ANY($2)`
	if err := r.db.SelectContext(ctx, &transport, transportQuery, branchID, pq.Array(enrollmentIDs)); err != nil {
		return nil, fmt.Errorf("list transport balances: %w", err)
	}

	for i := range tuition {
		tuition[i].Recompute()
		ledgers[tuition[i].EnrollmentID] = LedgerBalances{Tuition: &tuition[i]}
	}
	for i := range transport {
		transport[i].Recompute()
		ledger := ledgers[transport[i].EnrollmentID]
		ledger.Transport = &transport[i]
		ledgers[transport[i].EnrollmentID] = ledger
	}
	return ledgers, nil
}
