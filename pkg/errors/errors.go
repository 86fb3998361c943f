package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Error represents a typed domain error with HTTP awareness.
type Error struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	Status     int    `json:"status"`
	ResourceID string `json:"resource_id,omitempty"`
	Retryable  bool   `json:"retryable"`
	Err        error  `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	msg := e.Message
	if e.ResourceID != "" {
		msg = fmt.Sprintf("%s (%s)", msg, e.ResourceID)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

// Unwrap returns the wrapped error.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Is matches errors sharing the same code so wrapped clones still compare to the predefined values.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) || e == nil || t == nil {
		return false
	}
	return e.Code == t.Code
}

// New creates a new Error instance.
func New(code string, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message}
}

// Wrap attaches context to an existing error.
func Wrap(err error, code string, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message, Err: err}
}

// Predefined errors for common scenarios.
var (
	ErrNotFound           = New("NOT_FOUND", http.StatusNotFound, "resource not found")
	ErrForbidden          = New("FORBIDDEN", http.StatusForbidden, "forbidden")
	ErrUnauthorized       = New("UNAUTHORIZED", http.StatusUnauthorized, "unauthorized")
	ErrConflict           = New("CONFLICT", http.StatusConflict, "conflict")
	ErrPreconditionFailed = New("PRECONDITION_FAILED", http.StatusPreconditionFailed, "precondition failed")
	ErrValidation         = New("VALIDATION_ERROR", http.StatusBadRequest, "validation failed")
	ErrInternal           = New("INTERNAL_ERROR", http.StatusInternalServerError, "internal server error")
	ErrCacheMiss          = New("CACHE_MISS", http.StatusNotFound, "cache miss")

	ErrEnrollmentNotFound  = New("ENROLLMENT_NOT_FOUND", http.StatusNotFound, "enrollment not found")
	ErrReservationNotFound = New("RESERVATION_NOT_FOUND", http.StatusNotFound, "reservation not found")
	ErrBalanceNotFound     = New("BALANCE_NOT_FOUND", http.StatusNotFound, "fee balance not found")

	ErrInvalidPurpose      = New("INVALID_PURPOSE", http.StatusBadRequest, "invalid payment purpose")
	ErrMissingTermNumber   = New("MISSING_TERM_NUMBER", http.StatusBadRequest, "term number is required")
	ErrInvalidTerm         = New("INVALID_TERM", http.StatusBadRequest, "term number does not reference a fee term")
	ErrNonPositiveAmount   = New("NON_POSITIVE_AMOUNT", http.StatusBadRequest, "amount must be greater than zero")
	ErrOverpaymentRejected = New("OVERPAYMENT_REJECTED", http.StatusBadRequest, "payment exceeds outstanding balance")

	ErrConcessionLocked       = New("CONCESSION_LOCKED", http.StatusConflict, "concession already locked")
	ErrPromotionBlocked       = New("PROMOTION_BLOCKED", http.StatusConflict, "enrollment has outstanding fees")
	ErrInvalidStateTransition = New("INVALID_STATE_TRANSITION", http.StatusConflict, "transition not allowed from current status")
	ErrConcurrentUpdate       = &Error{Code: "CONCURRENT_UPDATE_CONFLICT", Status: http.StatusConflict, Message: "record was modified concurrently", Retryable: true}
	ErrPersistence            = &Error{Code: "PERSISTENCE_FAILURE", Status: http.StatusServiceUnavailable, Message: "storage failure", Retryable: true}
)

// FromError normalises any error into an *Error.
func FromError(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return Wrap(err, ErrInternal.Code, ErrInternal.Status, ErrInternal.Message)
}

// Clone returns a copy of the error allowing for message overrides.
func Clone(err *Error, message string) *Error {
	if err == nil {
		return nil
	}
	clone := *err
	if message != "" {
		clone.Message = message
	}
	return &clone
}

// WithResource returns a copy of err tagged with the offending identifier.
func WithResource(err *Error, resourceID string) *Error {
	if err == nil {
		return nil
	}
	clone := *err
	clone.ResourceID = resourceID
	return &clone
}

// Persistence wraps a storage fault as a retryable PERSISTENCE_FAILURE.
func Persistence(err error, resourceID, message string) *Error {
	clone := *ErrPersistence
	clone.Err = err
	clone.ResourceID = resourceID
	if message != "" {
		clone.Message = message
	}
	return &clone
}
