package repository

import (
	"context"
	"errors"
	"regexp"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-fee-ledger/internal/models"
)

func TestFeeBalanceRepositoryGetTuitionDerivesSlots(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewFeeBalanceRepository(db, 0)
	mock.ExpectQuery(regexp.QuoteMeta("FROM tuition_fee_balances WHERE enrollment_id = $1 AND branch_id = $2")).
		WithArgs("enr-1", "br-1").
		WillReturnRows(tuitionRow("enr-1", 3))

	balance, err := repo.GetTuition(context.Background(), "br-1", "enr-1")
	require.NoError(t, err)
	require.Len(t, balance.Terms, 3)
	assert.Equal(t, models.FeeStatusPending, balance.Terms[0].Status)
	assert.True(t, balance.TotalBalance.Equal(decimal.NewFromInt(15800)))
	assert.Equal(t, int64(3), balance.Version)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestFeeBalanceRepositorySetConcessionLocked(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewFeeBalanceRepository(db, 0)
	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT reservation_id FROM enrollments")).
		WithArgs("enr-1", "br-1").
		WillReturnRows(sqlmock.NewRows([]string{"reservation_id"}).AddRow("res-1"))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT concession_lock FROM reservations WHERE id = $1 FOR SHARE")).
		WithArgs("res-1").
		WillReturnRows(sqlmock.NewRows([]string{"concession_lock"}).AddRow(true))
	mock.ExpectRollback()

	amount := decimal.NewFromInt(100)
	_, err := repo.SetConcession(context.Background(), ConcessionChange{BranchID: "br-1", EnrollmentID: "enr-1", Tuition: &amount, Rederive: true})
	require.ErrorIs(t, err, ErrConcessionLocked)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestFeeBalanceRepositorySetConcessionRederives(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewFeeBalanceRepository(db, 0)
	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT reservation_id FROM enrollments")).
		WillReturnRows(sqlmock.NewRows([]string{"reservation_id"}).AddRow(nil))
	mock.ExpectQuery(regexp.QuoteMeta("FROM tuition_fee_balances")).WillReturnRows(tuitionRow("enr-1", 1))
	mock.ExpectQuery(regexp.QuoteMeta("FROM transport_fee_balances")).WillReturnRows(sqlmock.NewRows(transportCols))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE tuition_fee_balances SET")).
		WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(),
			sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), "tui-1", int64(1)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	amount := decimal.NewFromInt(3000)
	ledger, err := repo.SetConcession(context.Background(), ConcessionChange{BranchID: "br-1", EnrollmentID: "enr-1", Tuition: &amount, Rederive: true})
	require.NoError(t, err)
	assert.True(t, ledger.Tuition.NetFee.Equal(decimal.NewFromInt(12000)))
	assert.True(t, ledger.Tuition.Term1Amount.Equal(decimal.NewFromInt(4000)))
	assert.Equal(t, int64(2), ledger.Tuition.Version)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestFeeBalanceRepositorySetConcessionVersionConflict(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewFeeBalanceRepository(db, 0)
	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT reservation_id FROM enrollments")).
		WillReturnRows(sqlmock.NewRows([]string{"reservation_id"}).AddRow(nil))
	mock.ExpectQuery(regexp.QuoteMeta("FROM tuition_fee_balances")).WillReturnRows(tuitionRow("enr-1", 4))
	mock.ExpectQuery(regexp.QuoteMeta("FROM transport_fee_balances")).WillReturnRows(sqlmock.NewRows(transportCols))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE tuition_fee_balances SET")).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	amount := decimal.NewFromInt(100)
	_, err := repo.SetConcession(context.Background(), ConcessionChange{BranchID: "br-1", EnrollmentID: "enr-1", Tuition: &amount})
	require.ErrorIs(t, err, ErrVersionConflict)
	var resErr *ResourceError
	require.True(t, errors.As(err, &resErr))
	assert.Equal(t, "enr-1", resErr.ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestFeeBalanceRepositoryLedgersFor(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewFeeBalanceRepository(db, 0)
	mock.ExpectQuery(regexp.QuoteMeta("FROM tuition_fee_balances WHERE branch_id = $1 AND enrollment_id = ANY($2)")).
		WillReturnRows(tuitionRow("enr-1", 0))
	mock.ExpectQuery(regexp.QuoteMeta("FROM transport_fee_balances WHERE branch_id = $1 AND enrollment_id = ANY($2)")).
		WillReturnRows(transportRow("enr-1"))

	ledgers, err := repo.LedgersFor(context.Background(), "br-1", []string{"enr-1", "enr-2"})
	require.NoError(t, err)
	require.Len(t, ledgers, 1)
	assert.True(t, ledgers["enr-1"].Outstanding().Equal(decimal.NewFromInt(18800)))
	require.NoError(t, mock.ExpectationsWereMet())
}
