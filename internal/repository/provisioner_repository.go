package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/sma-fee-ledger/internal/models"
)

// ProvisionParams describes the enrollment created from a confirmed reservation.
type ProvisionParams struct {
	BranchID      string
	ReservationID string
	AdmissionNo   string
	StudentID     string
	SectionID     *string
	RollNumber    *string
}

// EnrollmentProvisioner turns a confirmed reservation into an enrollment with its fee ledgers.
type EnrollmentProvisioner struct {
	db        *sqlx.DB
	balances  *FeeBalanceRepository
	txTimeout time.Duration
}

// NewEnrollmentProvisioner constructs the provisioner.
func NewEnrollmentProvisioner(db *sqlx.DB, balances *FeeBalanceRepository, txTimeout time.Duration) *EnrollmentProvisioner {
	return &EnrollmentProvisioner{db: db, balances: balances, txTimeout: txTimeout}
}

// Provision is guarded by is_enrolled under a row lock: a second call returns the enrollment
// created by the first and replayed is true.
func (p *EnrollmentProvisioner) Provision(ctx context.Context, params ProvisionParams) (enrollment *models.Enrollment, replayed bool, err error) {
	err = withTx(ctx, p.db, p.txTimeout, func(tx *sqlx.Tx) error {
		reservation, err := lockReservation(ctx, tx, params.BranchID, params.ReservationID)
		if err != nil {
			return err
		}
		if reservation.Status != models.ReservationStatusConfirmed {
			return &ResourceError{ID: reservation.ID, Err: ErrInvalidState}
		}
		if reservation.IsEnrolled && reservation.EnrollmentID != nil {
			enrollment, err = getEnrollment(ctx, tx, params.BranchID, *reservation.EnrollmentID, false)
			replayed = true
			return err
		}

		now := time.Now().UTC()
		enrollment = &models.Enrollment{
			ID:             uuid.NewString(),
			BranchID:       reservation.BranchID,
			StudentID:      params.StudentID,
			AdmissionNo:    params.AdmissionNo,
			ClassID:        reservation.ClassID,
			SectionID:      params.SectionID,
			AcademicYearID: reservation.AcademicYearID,
			RollNumber:     params.RollNumber,
			IsActive:       true,
			StudentStatus:  models.StudentStatusActive,
			ReservationID:  &reservation.ID,
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		if err := insertEnrollment(ctx, tx, enrollment); err != nil {
			return err
		}

		var termWeights []decimal.Decimal
		fee, err := classFee(ctx, tx, reservation.BranchID, reservation.ClassID, reservation.AcademicYearID)
		switch {
		case err == nil:
			termWeights = fee.TermWeights()
		case !errors.Is(err, sql.ErrNoRows):
			return err
		}
		tuition, err := models.NewTuitionFeeBalance(reservation.BranchID, enrollment.ID,
			reservation.TuitionFee, reservation.TuitionConcession, reservation.BookFee, termWeights)
		if err != nil {
			return &ResourceError{ID: reservation.ID, Err: err}
		}
		if err := p.balances.insertTuition(ctx, tx, tuition); err != nil {
			return err
		}
		if reservation.TransportFee.IsPositive() {
			transport, err := models.NewTransportFeeBalance(reservation.BranchID, enrollment.ID,
				reservation.TransportFee, reservation.TransportConcession)
			if err != nil {
				return &ResourceError{ID: reservation.ID, Err: err}
			}
			if err := p.balances.insertTransport(ctx, tx, transport); err != nil {
				return err
			}
		}

		const query = `UPDATE reservations SET is_enrolled = TRUE, enrollment_id = $1, updated_at = $2
	WHERE id = $3 AND is_enrolled = FALSE AND status = 'CONFIRMED'`
		res, err := tx.ExecContext(ctx, query, enrollment.ID, now, reservation.ID)
		if err != nil {
			return fmt.Errorf("mark reservation enrolled: %w", err)
		}
		if err := expectOneRow(res, "mark reservation enrolled"); err != nil {
			return &ResourceError{ID: reservation.ID, Err: err}
		}
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return enrollment, replayed, nil
}
