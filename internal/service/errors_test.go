package service

import (
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/noah-isme/sma-fee-ledger/internal/models"
	"github.com/noah-isme/sma-fee-ledger/internal/repository"
	appErrors "github.com/noah-isme/sma-fee-ledger/pkg/errors"
)

func TestTranslateError(t *testing.T) {
	cases := []struct {
		name      string
		err       error
		notFound  *appErrors.Error
		code      string
		status    int
		resource  string
		retryable bool
	}{
		{"no rows default", sql.ErrNoRows, nil, "NOT_FOUND", http.StatusNotFound, "row-1", false},
		{"no rows typed", fmt.Errorf("load: %w", sql.ErrNoRows), appErrors.ErrBalanceNotFound, "BALANCE_NOT_FOUND", http.StatusNotFound, "row-1", false},
		{"version conflict", repository.ErrVersionConflict, nil, "CONCURRENT_UPDATE_CONFLICT", http.StatusConflict, "row-1", true},
		{"locked", repository.ErrConcessionLocked, nil, "CONCESSION_LOCKED", http.StatusConflict, "row-1", false},
		{"state", repository.ErrInvalidState, nil, "INVALID_STATE_TRANSITION", http.StatusConflict, "row-1", false},
		{"exceeds", repository.ErrConcessionExceedsFee, nil, "VALIDATION_ERROR", http.StatusBadRequest, "row-1", false},
		{"out of range", models.ErrConcessionOutOfRange, nil, "VALIDATION_ERROR", http.StatusBadRequest, "row-1", false},
		{"overpay", models.ErrOverpayment, nil, "OVERPAYMENT_REJECTED", http.StatusBadRequest, "row-1", false},
		{"slot", models.ErrInvalidSlot, nil, "INVALID_TERM", http.StatusBadRequest, "row-1", false},
		{"resource override", &repository.ResourceError{ID: "enr-9", Err: models.ErrOverpayment}, nil, "OVERPAYMENT_REJECTED", http.StatusBadRequest, "enr-9", false},
		{"storage", errors.New("broken pipe"), nil, "PERSISTENCE_FAILURE", http.StatusServiceUnavailable, "row-1", true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := translateError(tc.err, "do work", "row-1", tc.notFound)
			var appErr *appErrors.Error
			if assert.True(t, errors.As(err, &appErr)) {
				assert.Equal(t, tc.code, appErr.Code)
				assert.Equal(t, tc.status, appErr.Status)
				assert.Equal(t, tc.resource, appErr.ResourceID)
				assert.Equal(t, tc.retryable, appErr.Retryable)
			}
			assert.True(t, errors.Is(err, tc.err), "original error stays reachable")
		})
	}
}

func TestTranslateErrorKeepsAppErrors(t *testing.T) {
	original := appErrors.WithResource(appErrors.ErrForbidden, "x")
	assert.Same(t, original, translateError(original, "do work", "row-1", nil))
	assert.Nil(t, translateError(nil, "do work", "row-1", nil))
}

func TestTranslateErrorDoesNotMutateSentinels(t *testing.T) {
	_ = translateError(repository.ErrConcessionLocked, "do work", "row-1", nil)
	assert.Empty(t, appErrors.ErrConcessionLocked.ResourceID)
	assert.Nil(t, appErrors.ErrConcessionLocked.Err)
}
