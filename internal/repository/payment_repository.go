package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sma-fee-ledger/internal/models"
)

const incomeColumns = `id, branch_id, enrollment_id, reservation_id, admission_no, purpose, term_number, paid_amount,
       payment_method, remarks, created_by, created_at`

// PaymentRepository writes income records together with the balance updates they pay for.
type PaymentRepository struct {
	db        *sqlx.DB
	balances  *FeeBalanceRepository
	txTimeout time.Duration
}

// NewPaymentRepository constructs the repository.
func NewPaymentRepository(db *sqlx.DB, balances *FeeBalanceRepository, txTimeout time.Duration) *PaymentRepository {
	return &PaymentRepository{db: db, balances: balances, txTimeout: txTimeout}
}

// Post applies every detail and appends one income record per detail in a single transaction.
// A failure on any detail rolls back all earlier updates and inserts.
func (r *PaymentRepository) Post(ctx context.Context, posting models.PaymentPosting) (*models.PostingResult, error) {
	result := &models.PostingResult{}
	err := withTx(ctx, r.db, r.txTimeout, func(tx *sqlx.Tx) error {
		ledger, err := r.balances.load(ctx, tx, posting.BranchID, posting.EnrollmentID, false)
		if err != nil {
			return err
		}

		now := time.Now().UTC()
		records := make([]models.IncomeRecord, 0, len(posting.Details))
		for i, detail := range posting.Details {
			if kind, slot, ok := detail.Slot(); ok {
				overpaid, err := r.balances.ApplyPayment(ctx, tx, &ledger, kind, slot, detail.Amount, posting.AllowOverpay)
				if err != nil {
					return fmt.Errorf("apply detail %d: %w", i+1, err)
				}
				if overpaid {
					result.Overpaid = append(result.Overpaid, i)
				}
			}

			enrollmentID := posting.EnrollmentID
			record := models.IncomeRecord{
				ID:            uuid.NewString(),
				BranchID:      posting.BranchID,
				EnrollmentID:  &enrollmentID,
				Purpose:       detail.Purpose,
				TermNumber:    detail.TermNumber,
				PaidAmount:    detail.Amount,
				PaymentMethod: detail.Method,
				Remarks:       posting.Remarks,
				CreatedBy:     posting.CreatedBy,
				CreatedAt:     now,
			}
			if posting.AdmissionNo != "" {
				admissionNo := posting.AdmissionNo
				record.AdmissionNo = &admissionNo
			}
			if err := insertIncome(ctx, tx, &record); err != nil {
				return fmt.Errorf("record detail %d: %w", i+1, err)
			}
			records = append(records, record)
		}

		result.Records = records
		result.Tuition = ledger.Tuition
		result.Transport = ledger.Transport
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// PostReservationPayment records an application or admission fee against a reservation and stamps
// the matching income id in the same transaction. The first stamped id is kept on retries.
func (r *PaymentRepository) PostReservationPayment(ctx context.Context, record models.IncomeRecord) (*models.Reservation, error) {
	if record.ReservationID == nil {
		return nil, fmt.Errorf("reservation id required")
	}
	var reservation *models.Reservation
	err := withTx(ctx, r.db, r.txTimeout, func(tx *sqlx.Tx) error {
		current, err := lockReservation(ctx, tx, record.BranchID, *record.ReservationID)
		if err != nil {
			return err
		}
		if current.Status == models.ReservationStatusCancelled {
			return &ResourceError{ID: current.ID, Err: ErrInvalidState}
		}

		if record.ID == "" {
			record.ID = uuid.NewString()
		}
		if record.CreatedAt.IsZero() {
			record.CreatedAt = time.Now().UTC()
		}
		if err := insertIncome(ctx, tx, &record); err != nil {
			return err
		}

		var (
			query string
			args  []interface{}
		)
		switch record.Purpose {
		case models.PurposeApplicationFee:
			query = `UPDATE reservations SET application_fee_paid = application_fee_paid + $1,
       application_income_id = COALESCE(application_income_id, $2), updated_at = $3 WHERE id = $4`
			args = []interface{}{record.PaidAmount, record.ID, record.CreatedAt, current.ID}
		case models.PurposeAdmissionFee:
			query = `UPDATE reservations SET admission_income_id = COALESCE(admission_income_id, $1), updated_at = $2 WHERE id = $3`
			args = []interface{}{record.ID, record.CreatedAt, current.ID}
		default:
			return fmt.Errorf("purpose %s not payable against a reservation", record.Purpose)
		}
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("stamp reservation income: %w", err)
		}

		reservation, err = getReservation(ctx, tx, record.BranchID, current.ID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return reservation, nil
}

// ListIncome returns income records newest first with the total match count.
func (r *PaymentRepository) ListIncome(ctx context.Context, branchID string, filter models.IncomeFilter) ([]models.IncomeRecord, int, error) {
	conditions := []string{"branch_id = $1"}
	args := []interface{}{branchID}
	if filter.EnrollmentID != "" {
		args = append(args, filter.EnrollmentID)
		conditions = append(conditions, fmt.Sprintf("enrollment_id = $%d", len(args)))
	}
	if filter.Purpose != "" {
		args = append(args, filter.Purpose)
		conditions = append(conditions, fmt.Sprintf("purpose = $%d", len(args)))
	}
	if filter.From != nil {
		args = append(args, *filter.From)
		conditions = append(conditions, fmt.Sprintf("created_at >= $%d", len(args)))
	}
	if filter.To != nil {
		args = append(args, *filter.To)
		conditions = append(conditions, fmt.Sprintf("created_at < $%d", len(args)))
	}
	clause := " WHERE " + strings.Join(conditions, " AND ")

	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) FROM income_records"+clause, args...); err != nil {
		return nil, 0, fmt.Errorf("count income records: %w", err)
	}

	page, size := models.NormalizePage(filter.Page, filter.PageSize)
	query := fmt.Sprintf("SELECT %s FROM income_records%s ORDER BY created_at DESC, id LIMIT %d OFFSET %d",
		incomeColumns, clause, size, (page-1)*size)
	var records []models.IncomeRecord
	if err := r.db.SelectContext(ctx, &records, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list income records: %w", err)
	}
	return records, total, nil
}

func insertIncome(ctx context.Context, ext sqlx.ExecerContext, record *models.IncomeRecord) error {
	const query = `INSERT INTO income_records (id, branch_id, enrollment_id, reservation_id, admission_no, purpose, term_number,
       paid_amount, payment_method, remarks, created_by, created_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`
	if _, err := ext.ExecContext(ctx, query,
		record.ID, record.BranchID, record.EnrollmentID, record.ReservationID, record.AdmissionNo, record.Purpose,
		record.TermNumber, record.PaidAmount, record.PaymentMethod, record.Remarks, record.CreatedBy, record.CreatedAt,
	); err != nil {
		return fmt.Errorf("insert income record: %w", err)
	}
	return nil
}
