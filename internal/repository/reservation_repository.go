package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/sma-fee-ledger/internal/models"
)

const reservationColumns = `id, branch_id, student_name, student_id, class_id, academic_year_id, application_fee,
       application_fee_paid, tuition_fee, transport_fee, book_fee, tuition_concession, transport_concession,
       concession_remarks, concession_lock, status, remarks, application_income_id, admission_income_id,
       is_enrolled, enrollment_id, created_at, updated_at, confirmed_at, cancelled_at`

// ReservationRepository persists the reservation state machine.
type ReservationRepository struct {
	db        *sqlx.DB
	txTimeout time.Duration
}

// NewReservationRepository constructs the repository.
func NewReservationRepository(db *sqlx.DB, txTimeout time.Duration) *ReservationRepository {
	return &ReservationRepository{db: db, txTimeout: txTimeout}
}

// Create inserts a PENDING, unlocked reservation.
func (r *ReservationRepository) Create(ctx context.Context, reservation *models.Reservation) error {
	if reservation.ID == "" {
		reservation.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	reservation.Status = models.ReservationStatusPending
	reservation.ConcessionLock = false
	reservation.IsEnrolled = false
	reservation.CreatedAt = now
	reservation.UpdatedAt = now

	const query = `INSERT INTO reservations (id, branch_id, student_name, student_id, class_id, academic_year_id,
       application_fee, application_fee_paid, tuition_fee, transport_fee, book_fee, tuition_concession,
       transport_concession, concession_remarks, concession_lock, status, remarks, is_enrolled, created_at, updated_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20)`
	if _, err := r.db.ExecContext(ctx, query,
		reservation.ID, reservation.BranchID, reservation.StudentName, reservation.StudentID, reservation.ClassID,
		reservation.AcademicYearID, reservation.ApplicationFee, reservation.ApplicationFeePaid, reservation.TuitionFee,
		reservation.TransportFee, reservation.BookFee, reservation.TuitionConcession, reservation.TransportConcession,
		reservation.ConcessionRemarks, reservation.ConcessionLock, reservation.Status, reservation.Remarks,
		reservation.IsEnrolled, reservation.CreatedAt, reservation.UpdatedAt,
	); err != nil {
		return fmt.Errorf("create reservation: %w", err)
	}
	return nil
}

// FindByID returns a reservation scoped to the branch or sql.ErrNoRows.
func (r *ReservationRepository) FindByID(ctx context.Context, branchID, id string) (*models.Reservation, error) {
	return getReservation(ctx, r.db, branchID, id)
}

// List returns reservations matching the filter with the total count.
func (r *ReservationRepository) List(ctx context.Context, branchID string, filter models.ReservationFilter) ([]models.Reservation, int, error) {
	conditions := []string{"branch_id = $1"}
	args := []interface{}{branchID}
	if filter.Status != "" {
		args = append(args, filter.Status)
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)))
	}
	if filter.Search != "" {
		args = append(args, "%"+strings.ToLower(filter.Search)+"%")
		conditions = append(conditions, fmt.Sprintf("LOWER(student_name) LIKE $%d", len(args)))
	}
	clause := " WHERE " + strings.Join(conditions, " AND ")

	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) FROM reservations"+clause, args...); err != nil {
		return nil, 0, fmt.Errorf("count reservations: %w", err)
	}

	page, size := models.NormalizePage(filter.Page, filter.PageSize)
	query := fmt.Sprintf("SELECT %s FROM reservations%s ORDER BY created_at DESC LIMIT %d OFFSET %d",
		reservationColumns, clause, size, (page-1)*size)
	var reservations []models.Reservation
	if err := r.db.SelectContext(ctx, &reservations, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list reservations: %w", err)
	}
	return reservations, total, nil
}

// GrantConcession sets both concessions only while the reservation is PENDING and unlocked.
// On zero affected rows the row is re-read to report why; nothing is written in that case.
func (r *ReservationRepository) GrantConcession(ctx context.Context, branchID, id string, tuition, transport decimal.Decimal, remarks *string) error {
	const query = `UPDATE reservations SET tuition_concession = $1, transport_concession = $2,
       concession_remarks = COALESCE($3, concession_remarks), updated_at = $4
	WHERE id = $5 AND branch_id = $6 AND concession_lock = FALSE AND status = 'PENDING'
	  AND $1 <= tuition_fee AND $2 <= transport_fee`
	res, err := r.db.ExecContext(ctx, query, tuition, transport, remarks, time.Now().UTC(), id, branchID)
	if err != nil {
		return mapDBError(fmt.Errorf("grant reservation concession: %w", err))
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("grant reservation concession rows affected: %w", err)
	}
	if affected > 0 {
		return nil
	}

	current, err := getReservation(ctx, r.db, branchID, id)
	if err != nil {
		return err
	}
	switch {
	case current.ConcessionLock:
		return &ResourceError{ID: id, Err: ErrConcessionLocked}
	case current.Status != models.ReservationStatusPending:
		return &ResourceError{ID: id, Err: ErrInvalidState}
	case tuition.GreaterThan(current.TuitionFee) || transport.GreaterThan(current.TransportFee):
		return &ResourceError{ID: id, Err: ErrConcessionExceedsFee}
	}
	return &ResourceError{ID: id, Err: ErrVersionConflict}
}

// ConfirmParams drives the first confirmation step.
type ConfirmParams struct {
	BranchID              string
	ReservationID         string
	Remarks               *string
	AdmissionFee          *models.IncomeRecord
	RequireApplicationFee bool
	ConfirmedAt           time.Time
}

// Confirm moves a PENDING reservation to CONFIRMED and sets the concession lock, optionally
// recording the admission fee. A CONFIRMED reservation is returned unchanged so a retried call
// can resume provisioning; the admission income is never written twice.
func (r *ReservationRepository) Confirm(ctx context.Context, params ConfirmParams) (*models.Reservation, error) {
	var reservation *models.Reservation
	err := withTx(ctx, r.db, r.txTimeout, func(tx *sqlx.Tx) error {
		current, err := lockReservation(ctx, tx, params.BranchID, params.ReservationID)
		if err != nil {
			return err
		}
		switch current.Status {
		case models.ReservationStatusConfirmed:
			reservation = current
			return nil
		case models.ReservationStatusCancelled:
			return &ResourceError{ID: current.ID, Err: ErrInvalidState}
		}
		if params.RequireApplicationFee && current.ApplicationIncomeID == nil {
			return &ResourceError{ID: current.ID, Err: ErrApplicationFeeUnpaid}
		}

		var admissionIncomeID *string
		if params.AdmissionFee != nil && current.AdmissionIncomeID == nil {
			record := *params.AdmissionFee
			if record.ID == "" {
				record.ID = uuid.NewString()
			}
			record.BranchID = current.BranchID
			record.ReservationID = &current.ID
			record.Purpose = models.PurposeAdmissionFee
			record.CreatedAt = params.ConfirmedAt
			if err := insertIncome(ctx, tx, &record); err != nil {
				return err
			}
			admissionIncomeID = &record.ID
		}

		const query = `UPDATE reservations SET status = 'CONFIRMED', concession_lock = TRUE, confirmed_at = $1,
       remarks = COALESCE($2, remarks), admission_income_id = COALESCE(admission_income_id, $3), updated_at = $1
	WHERE id = $4 AND status = 'PENDING'`
		res, err := tx.ExecContext(ctx, query, params.ConfirmedAt, params.Remarks, admissionIncomeID, current.ID)
		if err != nil {
			return fmt.Errorf("confirm reservation: %w", err)
		}
		if err := expectOneRow(res, "confirm reservation"); err != nil {
			return &ResourceError{ID: current.ID, Err: err}
		}

		reservation, err = getReservation(ctx, tx, params.BranchID, current.ID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return reservation, nil
}

// Cancel moves a PENDING reservation to CANCELLED. The concession lock is left as it was.
func (r *ReservationRepository) Cancel(ctx context.Context, branchID, id string, remarks *string) (*models.Reservation, error) {
	now := time.Now().UTC()
	const query = `UPDATE reservations SET status = 'CANCELLED', cancelled_at = $1, remarks = COALESCE($2, remarks), updated_at = $1
	WHERE id = $3 AND branch_id = $4 AND status = 'PENDING'`
	res, err := r.db.ExecContext(ctx, query, now, remarks, id, branchID)
	if err != nil {
		return nil, mapDBError(fmt.Errorf("cancel reservation: %w", err))
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("cancel reservation rows affected: %w", err)
	}

	current, err := getReservation(ctx, r.db, branchID, id)
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, &ResourceError{ID: id, Err: ErrInvalidState}
	}
	return current, nil
}

func getReservation(ctx context.Context, q sqlx.QueryerContext, branchID, id string) (*models.Reservation, error) {
	query := `SELECT ` + reservationColumns + ` FROM reservations WHERE id = $1 AND branch_id = $2`
	var reservation models.Reservation
	if err := sqlx.GetContext(ctx, q, &reservation, query, id, branchID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("get reservation: %w", err)
	}
	return &reservation, nil
}

func lockReservation(ctx context.Context, q sqlx.QueryerContext, branchID, id string) (*models.Reservation, error) {
	query := `SELECT ` + reservationColumns + ` FROM reservations WHERE id = $1 AND branch_id = $2 FOR UPDATE`
	var reservation models.Reservation
	if err := sqlx.GetContext(ctx, q, &reservation, query, id, branchID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("lock reservation: %w", err)
	}
	return &reservation, nil
}
