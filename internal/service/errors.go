package service

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/noah-isme/sma-fee-ledger/internal/models"
	"github.com/noah-isme/sma-fee-ledger/internal/repository"
	appErrors "github.com/noah-isme/sma-fee-ledger/pkg/errors"
)

// translateError maps repository and ledger errors onto API errors. resourceID is used when the
// error does not name the offending row itself; notFound is reported for sql.ErrNoRows.
func translateError(err error, action, resourceID string, notFound *appErrors.Error) error {
	if err == nil {
		return nil
	}
	var appErr *appErrors.Error
	if errors.As(err, &appErr) {
		return appErr
	}

	var blocked *repository.PromotionBlockedError
	if errors.As(err, &blocked) {
		e := tagged(appErrors.ErrPromotionBlocked, blocked.EnrollmentID, err)
		e.Message = fmt.Sprintf("enrollment has %s outstanding", blocked.Pending.StringFixed(2))
		return e
	}

	var resErr *repository.ResourceError
	if errors.As(err, &resErr) {
		resourceID = resErr.ID
	}

	switch {
	case errors.Is(err, sql.ErrNoRows):
		if notFound == nil {
			notFound = appErrors.ErrNotFound
		}
		return tagged(notFound, resourceID, err)
	case errors.Is(err, repository.ErrVersionConflict):
		return tagged(appErrors.ErrConcurrentUpdate, resourceID, err)
	case errors.Is(err, repository.ErrConcessionLocked):
		return tagged(appErrors.ErrConcessionLocked, resourceID, err)
	case errors.Is(err, repository.ErrInvalidState):
		return tagged(appErrors.ErrInvalidStateTransition, resourceID, err)
	case errors.Is(err, repository.ErrConcessionExceedsFee), errors.Is(err, models.ErrConcessionOutOfRange):
		e := tagged(appErrors.ErrValidation, resourceID, err)
		e.Message = "concession must be between zero and the fee"
		return e
	case errors.Is(err, repository.ErrApplicationFeeUnpaid):
		e := tagged(appErrors.ErrPreconditionFailed, resourceID, err)
		e.Message = "application fee has not been paid"
		return e
	case errors.Is(err, repository.ErrTransportBalanceMissing):
		e := tagged(appErrors.ErrBalanceNotFound, resourceID, err)
		e.Message = "transport balance not found"
		return e
	case errors.Is(err, repository.ErrAmbiguousAdmissionNo):
		e := tagged(appErrors.ErrConflict, resourceID, err)
		e.Message = "admission number matches more than one active enrollment"
		return e
	case errors.Is(err, models.ErrOverpayment):
		return tagged(appErrors.ErrOverpaymentRejected, resourceID, err)
	case errors.Is(err, models.ErrInvalidSlot):
		return tagged(appErrors.ErrInvalidTerm, resourceID, err)
	case errors.Is(err, models.ErrNonPositiveAmount):
		return tagged(appErrors.ErrNonPositiveAmount, resourceID, err)
	}
	return appErrors.Persistence(err, resourceID, "failed to "+action)
}

func tagged(base *appErrors.Error, resourceID string, err error) *appErrors.Error {
	e := appErrors.WithResource(base, resourceID)
	e.Err = err
	return e
}

func validationError(err error, message string) *appErrors.Error {
	return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, message)
}
