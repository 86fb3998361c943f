package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
)

var (
	// ErrVersionConflict reports a lost optimistic update or a serialization failure.
	ErrVersionConflict = errors.New("row version changed")
	// ErrConcessionLocked reports a concession write against a locked reservation.
	ErrConcessionLocked = errors.New("concession locked")
	// ErrInvalidState reports a transition the current row state does not allow.
	ErrInvalidState = errors.New("invalid state")
	// ErrConcessionExceedsFee reports a concession above the quoted fee.
	ErrConcessionExceedsFee = errors.New("concession exceeds fee")
	// ErrApplicationFeeUnpaid reports a confirm attempted before the application fee was recorded.
	ErrApplicationFeeUnpaid = errors.New("application fee unpaid")
	// ErrTransportBalanceMissing reports a transport payment against an enrollment without transport.
	ErrTransportBalanceMissing = errors.New("transport balance missing")
	// ErrAmbiguousAdmissionNo reports more than one active enrollment sharing an admission number.
	ErrAmbiguousAdmissionNo = errors.New("admission number matches several enrollments")
)

// ResourceError attaches the offending row id to a repository error.
type ResourceError struct {
	ID  string
	Err error
}

func (e *ResourceError) Error() string { return fmt.Sprintf("%s: %v", e.ID, e.Err) }

func (e *ResourceError) Unwrap() error { return e.Err }

// PromotionBlockedError reports an enrollment that still owes fees when fee clearance is required.
type PromotionBlockedError struct {
	EnrollmentID string
	Pending      decimal.Decimal
}

func (e *PromotionBlockedError) Error() string {
	return fmt.Sprintf("enrollment %s has %s outstanding", e.EnrollmentID, e.Pending.StringFixed(2))
}

// Postgres error codes that mean "retry the transaction".
const (
	pqSerializationFailure = "40001"
	pqDeadlockDetected     = "40P01"
)

// withTx runs fn in a transaction bounded by timeout, rolling back on any error.
func withTx(ctx context.Context, db *sqlx.DB, timeout time.Duration, fn func(tx *sqlx.Tx) error) (err error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = fn(tx); err != nil {
		return mapDBError(err)
	}
	if err = tx.Commit(); err != nil {
		return mapDBError(fmt.Errorf("commit transaction: %w", err))
	}
	return nil
}

// mapDBError folds postgres contention codes into ErrVersionConflict.
func mapDBError(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case pqSerializationFailure, pqDeadlockDetected:
			return fmt.Errorf("%w: %v", ErrVersionConflict, err)
		}
	}
	return err
}

func expectOneRow(res interface{ RowsAffected() (int64, error) }, op string) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s rows affected: %w", op, err)
	}
	if affected == 0 {
		return ErrVersionConflict
	}
	return nil
}
