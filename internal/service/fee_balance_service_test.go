package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-fee-ledger/internal/models"
	"github.com/noah-isme/sma-fee-ledger/internal/repository"
)

func newFeeBalanceFixture(t *testing.T) (*FeeBalanceService, *mockLedgerStore) {
	t.Helper()
	tuition := newTuitionLedger("enr-1", "9000", "0")
	_, err := tuition.ApplyPayment(models.TermSlot(1), dec("3000"), false)
	require.NoError(t, err)
	transport, err := models.NewTransportFeeBalance("br-1", "enr-1", dec("2000"), dec("0"))
	require.NoError(t, err)

	ledgers := &mockLedgerStore{ledgers: map[string]repository.LedgerBalances{
		"enr-1": {Tuition: tuition, Transport: transport},
		"enr-2": {Tuition: newTuitionLedger("enr-2", "9000", "0")},
	}}
	enrollments := &mockEnrollmentStore{enrollments: map[string]models.Enrollment{
		"enr-1": {ID: "enr-1", BranchID: "br-1", IsActive: true},
		"enr-2": {ID: "enr-2", BranchID: "br-1", IsActive: true},
	}}
	return NewFeeBalanceService(ledgers, enrollments, nil, FeeBalanceConfig{TermsDerivedFromNet: true}, zap.NewNop()), ledgers
}

func TestFeeBalanceServiceGetBalance(t *testing.T) {
	svc, _ := newFeeBalanceFixture(t)
	ctx := context.Background()

	resp, err := svc.GetBalance(ctx, "br-1", "enr-1", models.BalanceKindTuition)
	require.NoError(t, err)
	require.NotNil(t, resp.Tuition)
	assert.Nil(t, resp.Transport)
	assert.Equal(t, models.FeeStatusPaid, resp.Tuition.Terms[0].Status)
	assert.Equal(t, models.FeeStatusPartial, resp.Tuition.Status)

	resp, err = svc.GetBalance(ctx, "br-1", "enr-1", models.BalanceKindTransport)
	require.NoError(t, err)
	assert.True(t, resp.Transport.OverallBalanceFee.Equal(dec("2000")))

	_, err = svc.GetBalance(ctx, "br-1", "enr-2", models.BalanceKindTransport)
	assertAppError(t, err, "BALANCE_NOT_FOUND", "enr-2")

	_, err = svc.GetBalance(ctx, "br-9", "enr-1", models.BalanceKindTuition)
	assertAppError(t, err, "ENROLLMENT_NOT_FOUND", "enr-1")

	_, err = svc.GetBalance(ctx, "br-1", "enr-1", "HOSTEL")
	assertAppError(t, err, "VALIDATION_ERROR", "")
}

func TestFeeBalanceServiceOutstanding(t *testing.T) {
	svc, _ := newFeeBalanceFixture(t)

	resp, err := svc.Outstanding(context.Background(), "br-1", "enr-1")
	require.NoError(t, err)
	assert.True(t, resp.TuitionBalance.Equal(dec("6000")), resp.TuitionBalance.String())
	assert.True(t, resp.TransportBalance.Equal(dec("2000")))
	assert.True(t, resp.TotalOutstanding.Equal(dec("8000")))
}

func TestFeeBalanceServiceSetConcessionKeepsPaid(t *testing.T) {
	svc, ledgers := newFeeBalanceFixture(t)

	resp, err := svc.SetConcession(context.Background(), "br-1", "enr-1", models.BalanceKindTuition, dec("900"))
	require.NoError(t, err)
	assert.True(t, resp.Tuition.NetFee.Equal(dec("8100")))
	assert.True(t, resp.Tuition.Term1Paid.Equal(dec("3000")))
	require.Len(t, ledgers.changes, 1)
	assert.Nil(t, ledgers.changes[0].Transport)

	_, err = svc.SetConcession(context.Background(), "br-1", "enr-1", models.BalanceKindTransport, dec("-1"))
	assertAppError(t, err, "VALIDATION_ERROR", "enr-1")
	assert.Len(t, ledgers.changes, 1)

	ledgers.setErr = repository.ErrVersionConflict
	_, err = svc.SetConcession(context.Background(), "br-1", "enr-1", models.BalanceKindTransport, dec("100"))
	assertAppError(t, err, "CONCURRENT_UPDATE_CONFLICT", "enr-1")
}
