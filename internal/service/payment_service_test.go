package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-fee-ledger/internal/dto"
	"github.com/noah-isme/sma-fee-ledger/internal/models"
	"github.com/noah-isme/sma-fee-ledger/internal/repository"
	appErrors "github.com/noah-isme/sma-fee-ledger/pkg/errors"
)

func newPaymentFixture() (*PaymentService, *mockPaymentStore, *mockReceiptDispatcher, *mockCache) {
	store := &mockPaymentStore{}
	enrollments := &mockEnrollmentStore{enrollments: map[string]models.Enrollment{
		"enr-1": {ID: "enr-1", BranchID: "br-1", AdmissionNo: "ADM-1", IsActive: true},
	}}
	receipts := &mockReceiptDispatcher{}
	cache := &mockCache{}
	svc := NewPaymentService(store, enrollments, receipts, cache, nil, PaymentConfig{}, nil, zap.NewNop())
	return svc, store, receipts, cache
}

func assertAppError(t *testing.T, err error, code, resourceID string) {
	t.Helper()
	require.Error(t, err)
	var appErr *appErrors.Error
	require.True(t, errors.As(err, &appErr), "expected *errors.Error, got %T", err)
	assert.Equal(t, code, appErr.Code)
	if resourceID != "" {
		assert.Equal(t, resourceID, appErr.ResourceID)
	}
}

func TestPaymentServicePostPaymentByAdmissionNo(t *testing.T) {
	svc, store, receipts, cache := newPaymentFixture()

	resp, err := svc.PostPayment(context.Background(), "br-1", "acct-1", dto.PostPaymentRequest{
		AdmissionNo: "ADM-1",
		Details: []dto.PaymentDetailRequest{
			{Purpose: models.PurposeTuitionFee, TermNumber: intPtr(1), Amount: dec("1500.00"), Method: "CASH"},
			{Purpose: models.PurposeBookFee, Amount: dec("200.00"), Method: "CASH"},
		},
	})
	require.NoError(t, err)
	require.Len(t, resp.Records, 2)
	require.Len(t, store.postings, 1)
	assert.Equal(t, "enr-1", store.postings[0].EnrollmentID)
	assert.Equal(t, "ADM-1", store.postings[0].AdmissionNo)
	assert.Equal(t, "acct-1", store.postings[0].CreatedBy)
	assert.False(t, store.postings[0].AllowOverpay)
	assert.Equal(t, 1, receipts.calls)
	require.NotNil(t, resp.Receipt)
	assert.False(t, resp.ReceiptPending)
	assert.Equal(t, []string{"fees:dash:br-1:*"}, cache.invalidated)
}

func TestPaymentServicePostPaymentValidation(t *testing.T) {
	svc, store, _, _ := newPaymentFixture()
	ctx := context.Background()

	cases := []struct {
		name     string
		req      dto.PostPaymentRequest
		code     string
		resource string
	}{
		{
			name: "both targets",
			req: dto.PostPaymentRequest{EnrollmentID: "enr-1", AdmissionNo: "ADM-1", Details: []dto.PaymentDetailRequest{
				{Purpose: models.PurposeOther, Amount: dec("1"), Method: "CASH"},
			}},
			code: "VALIDATION_ERROR",
		},
		{
			name: "zero amount",
			req: dto.PostPaymentRequest{EnrollmentID: "enr-1", Details: []dto.PaymentDetailRequest{
				{Purpose: models.PurposeOther, Amount: dec("1"), Method: "CASH"},
				{Purpose: models.PurposeOther, Amount: dec("0"), Method: "CASH"},
			}},
			code:     "NON_POSITIVE_AMOUNT",
			resource: "details[1]",
		},
		{
			name: "unknown purpose",
			req: dto.PostPaymentRequest{EnrollmentID: "enr-1", Details: []dto.PaymentDetailRequest{
				{Purpose: "LIBRARY", Amount: dec("1"), Method: "CASH"},
			}},
			code:     "INVALID_PURPOSE",
			resource: "details[0]",
		},
		{
			name: "missing term",
			req: dto.PostPaymentRequest{EnrollmentID: "enr-1", Details: []dto.PaymentDetailRequest{
				{Purpose: models.PurposeTuitionFee, Amount: dec("1"), Method: "CASH"},
			}},
			code:     "MISSING_TERM_NUMBER",
			resource: "details[0]",
		},
		{
			name: "transport term three",
			req: dto.PostPaymentRequest{EnrollmentID: "enr-1", Details: []dto.PaymentDetailRequest{
				{Purpose: models.PurposeTransportFee, TermNumber: intPtr(3), Amount: dec("1"), Method: "CASH"},
			}},
			code:     "INVALID_TERM",
			resource: "details[0]",
		},
		{
			name: "application fee on enrollment",
			req: dto.PostPaymentRequest{EnrollmentID: "enr-1", Details: []dto.PaymentDetailRequest{
				{Purpose: models.PurposeApplicationFee, Amount: dec("1"), Method: "CASH"},
			}},
			code:     "INVALID_PURPOSE",
			resource: "details[0]",
		},
		{
			name: "missing method",
			req: dto.PostPaymentRequest{EnrollmentID: "enr-1", Details: []dto.PaymentDetailRequest{
				{Purpose: models.PurposeOther, Amount: dec("1")},
			}},
			code: "VALIDATION_ERROR",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.PostPayment(ctx, "br-1", "acct-1", tc.req)
			assertAppError(t, err, tc.code, tc.resource)
		})
	}
	assert.Empty(t, store.postings)
}

func TestPaymentServicePostPaymentTargetErrors(t *testing.T) {
	svc, _, _, _ := newPaymentFixture()
	detail := []dto.PaymentDetailRequest{{Purpose: models.PurposeOther, Amount: dec("1"), Method: "CASH"}}

	_, err := svc.PostPayment(context.Background(), "br-2", "acct-1", dto.PostPaymentRequest{EnrollmentID: "enr-1", Details: detail})
	assertAppError(t, err, "ENROLLMENT_NOT_FOUND", "enr-1")

	svc.enrollments.(*mockEnrollmentStore).ambiguous = map[string]bool{"ADM-1": true}
	_, err = svc.PostPayment(context.Background(), "br-1", "acct-1", dto.PostPaymentRequest{AdmissionNo: "ADM-1", Details: detail})
	assertAppError(t, err, "CONFLICT", "ADM-1")
}

func TestPaymentServicePostPaymentStoreErrors(t *testing.T) {
	detail := []dto.PaymentDetailRequest{{Purpose: models.PurposeTuitionFee, TermNumber: intPtr(2), Amount: dec("10"), Method: "CASH"}}

	cases := []struct {
		err  error
		code string
	}{
		{models.ErrOverpayment, "OVERPAYMENT_REJECTED"},
		{repository.ErrVersionConflict, "CONCURRENT_UPDATE_CONFLICT"},
		{repository.ErrTransportBalanceMissing, "BALANCE_NOT_FOUND"},
		{errors.New("connection reset"), "PERSISTENCE_FAILURE"},
	}
	for _, tc := range cases {
		t.Run(tc.code, func(t *testing.T) {
			svc, store, receipts, cache := newPaymentFixture()
			store.postErr = tc.err
			_, err := svc.PostPayment(context.Background(), "br-1", "acct-1", dto.PostPaymentRequest{EnrollmentID: "enr-1", Details: detail})
			assertAppError(t, err, tc.code, "enr-1")
			assert.Zero(t, receipts.calls)
			assert.Empty(t, cache.invalidated)
		})
	}
}

func TestPaymentServiceOverpayPolicyPassedThrough(t *testing.T) {
	svc, store, _, _ := newPaymentFixture()
	svc.cfg.AllowOverpay = true

	_, err := svc.PostPayment(context.Background(), "br-1", "acct-1", dto.PostPaymentRequest{EnrollmentID: "enr-1", Details: []dto.PaymentDetailRequest{
		{Purpose: models.PurposeTuitionFee, TermNumber: intPtr(1), Amount: dec("99999"), Method: "CASH"},
	}})
	require.NoError(t, err)
	assert.True(t, store.postings[0].AllowOverpay)
}

func TestPaymentServiceReceiptFailureKeepsPayment(t *testing.T) {
	svc, store, receipts, _ := newPaymentFixture()
	receipts.err = errors.New("queue full")

	resp, err := svc.PostPayment(context.Background(), "br-1", "acct-1", dto.PostPaymentRequest{EnrollmentID: "enr-1", Details: []dto.PaymentDetailRequest{
		{Purpose: models.PurposeOther, Amount: dec("50"), Method: "UPI"},
	}})
	require.NoError(t, err)
	assert.Len(t, store.postings, 1)
	assert.True(t, resp.ReceiptPending)
	assert.Nil(t, resp.Receipt)
}

func TestPaymentServiceApplyPayment(t *testing.T) {
	svc, store, _, _ := newPaymentFixture()
	ctx := context.Background()

	_, err := svc.ApplyPayment(ctx, "br-1", "acct-1", "enr-1", models.BalanceKindTuition, dto.ApplyPaymentRequest{Book: true, Amount: dec("100"), Method: "CASH"})
	require.NoError(t, err)
	require.Len(t, store.postings, 1)
	assert.Equal(t, models.PurposeBookFee, store.postings[0].Details[0].Purpose)
	assert.Nil(t, store.postings[0].Details[0].TermNumber)

	_, err = svc.ApplyPayment(ctx, "br-1", "acct-1", "enr-1", models.BalanceKindTransport, dto.ApplyPaymentRequest{TermNumber: intPtr(2), Amount: dec("100"), Method: "CASH"})
	require.NoError(t, err)
	assert.Equal(t, models.PurposeTransportFee, store.postings[1].Details[0].Purpose)

	_, err = svc.ApplyPayment(ctx, "br-1", "acct-1", "enr-1", models.BalanceKindTransport, dto.ApplyPaymentRequest{Book: true, Amount: dec("100"), Method: "CASH"})
	assertAppError(t, err, "INVALID_TERM", "")

	_, err = svc.ApplyPayment(ctx, "br-1", "acct-1", "enr-1", "HOSTEL", dto.ApplyPaymentRequest{TermNumber: intPtr(1), Amount: dec("100"), Method: "CASH"})
	assertAppError(t, err, "VALIDATION_ERROR", "")
	assert.Len(t, store.postings, 2)
}

func TestPaymentServicePostReservationPayment(t *testing.T) {
	svc, store, _, _ := newPaymentFixture()
	ctx := context.Background()

	_, err := svc.PostReservationPayment(ctx, "br-1", "acct-1", "res-1", models.PurposeTuitionFee, dec("10"), "CASH")
	assertAppError(t, err, "INVALID_PURPOSE", "")

	_, err = svc.PostReservationPayment(ctx, "br-1", "acct-1", "res-1", models.PurposeApplicationFee, dec("-1"), "CASH")
	assertAppError(t, err, "NON_POSITIVE_AMOUNT", "res-1")

	_, err = svc.PostReservationPayment(ctx, "br-1", "acct-1", "res-1", models.PurposeApplicationFee, dec("500"), "CASH")
	assertAppError(t, err, "RESERVATION_NOT_FOUND", "res-1")

	store.reservation = &models.Reservation{ID: "res-1", ApplicationFeePaid: dec("500")}
	reservation, err := svc.PostReservationPayment(ctx, "br-1", "acct-1", "res-1", models.PurposeApplicationFee, dec("500"), "CASH")
	require.NoError(t, err)
	assert.True(t, reservation.ApplicationFeePaid.Equal(dec("500")))
	last := store.resRecords[len(store.resRecords)-1]
	assert.Equal(t, "res-1", *last.ReservationID)
	assert.Nil(t, last.EnrollmentID)
}

func TestPaymentServiceListIncome(t *testing.T) {
	svc, store, _, _ := newPaymentFixture()
	store.income = []models.IncomeRecord{{ID: "a"}, {ID: "b"}, {ID: "c"}}

	records, pagination, err := svc.ListIncome(context.Background(), "br-1", dto.IncomeQuery{Page: 2, PageSize: 2})
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "c", records[0].ID)
	assert.Equal(t, 3, pagination.TotalCount)

	_, _, err = svc.ListIncome(context.Background(), "br-1", dto.IncomeQuery{Purpose: "LIBRARY"})
	assertAppError(t, err, "INVALID_PURPOSE", "")
}
