package repository

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-fee-ledger/internal/models"
)

func newEnrollmentRepo(t *testing.T) (*EnrollmentRepository, sqlmock.Sqlmock, func()) {
	db, mock, cleanup := newRepoMock(t)
	return NewEnrollmentRepository(db, NewFeeBalanceRepository(db, 0), 0), mock, cleanup
}

func TestEnrollmentRepositoryFindActiveByAdmissionNoAmbiguous(t *testing.T) {
	repo, mock, cleanup := newEnrollmentRepo(t)
	defer cleanup()

	rows := sqlmock.NewRows(enrollmentCols).
		AddRow("enr-1", "br-1", "stu-1", "ADM-1", "cls-7", nil, "ay-2024", nil, true, "ACTIVE", nil, nil, nil, nil, time.Now(), time.Now()).
		AddRow("enr-2", "br-1", "stu-2", "ADM-1", "cls-8", nil, "ay-2024", nil, true, "ACTIVE", nil, nil, nil, nil, time.Now(), time.Now())
	mock.ExpectQuery(regexp.QuoteMeta("LIMIT 2")).WithArgs("br-1", "ADM-1").WillReturnRows(rows)

	_, err := repo.FindActiveByAdmissionNo(context.Background(), "br-1", "ADM-1")
	require.ErrorIs(t, err, ErrAmbiguousAdmissionNo)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryDropoutInactiveFails(t *testing.T) {
	repo, mock, cleanup := newEnrollmentRepo(t)
	defer cleanup()

	mock.ExpectExec(regexp.QuoteMeta("UPDATE enrollments SET is_active = FALSE, student_status = 'DROPPED_OUT'")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta("FROM enrollments WHERE id = $1")).WillReturnRows(enrollmentRow("enr-1", false))

	_, err := repo.Dropout(context.Background(), "br-1", "enr-1", "relocated", time.Now())
	require.ErrorIs(t, err, ErrInvalidState)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryPromoteBlockedRollsBackBatch(t *testing.T) {
	repo, mock, cleanup := newEnrollmentRepo(t)
	defer cleanup()

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("FROM enrollments WHERE id = $1 AND branch_id = $2 FOR UPDATE")).
		WithArgs("enr-1", "br-1").
		WillReturnRows(enrollmentRow("enr-1", true))
	mock.ExpectQuery(regexp.QuoteMeta("FROM tuition_fee_balances WHERE enrollment_id = $1 AND branch_id = $2 FOR UPDATE")).
		WillReturnRows(tuitionRow("enr-1", 0))
	mock.ExpectQuery(regexp.QuoteMeta("FROM transport_fee_balances")).WillReturnRows(sqlmock.NewRows(transportCols))
	mock.ExpectRollback()

	_, err := repo.Promote(context.Background(), models.PromotionBatch{
		BranchID: "br-1", NextAcademicYearID: "ay-2025", RequireFeesPaid: true, EnrollmentIDs: []string{"enr-1"}, PromotedAt: time.Now(),
	})
	var blocked *PromotionBlockedError
	require.True(t, errors.As(err, &blocked))
	assert.Equal(t, "enr-1", blocked.EnrollmentID)
	assert.Equal(t, "15800.00", blocked.Pending.StringFixed(2))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryPromoteCreatesNextYearEnrollment(t *testing.T) {
	repo, mock, cleanup := newEnrollmentRepo(t)
	defer cleanup()

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("FOR UPDATE")).WillReturnRows(enrollmentRow("enr-1", true))
	mock.ExpectQuery(regexp.QuoteMeta("FROM tuition_fee_balances")).WillReturnRows(tuitionRow("enr-1", 0))
	mock.ExpectQuery(regexp.QuoteMeta("FROM transport_fee_balances")).WillReturnRows(sqlmock.NewRows(transportCols))
	mock.ExpectExec(regexp.QuoteMeta("student_status = 'PROMOTED'")).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT next_class_id FROM classes")).
		WithArgs("cls-7", "br-1").
		WillReturnRows(sqlmock.NewRows([]string{"next_class_id"}).AddRow("cls-8"))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO enrollments")).WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectQuery(regexp.QuoteMeta("FROM class_fees cf")).
		WithArgs("br-1", "cls-8", "ay-2025").
		WillReturnRows(sqlmock.NewRows([]string{"class_id", "branch_id", "academic_year_id", "next_class_id", "tuition_fee", "book_fee",
			"term1_weight", "term2_weight", "term3_weight"}).
			AddRow("cls-8", "br-1", "ay-2025", "cls-9", "16500.00", "900.00", "1", "1", "1"))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO tuition_fee_balances")).WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	outcomes, err := repo.Promote(context.Background(), models.PromotionBatch{
		BranchID: "br-1", NextAcademicYearID: "ay-2025", RequireFeesPaid: false, EnrollmentIDs: []string{"enr-1"}, PromotedAt: time.Now(),
	})
	require.NoError(t, err)
	require.Len(t, outcomes, 1)
	assert.False(t, outcomes[0].Previous.IsActive)
	assert.Equal(t, models.StudentStatusPromoted, outcomes[0].Previous.StudentStatus)
	assert.NotNil(t, outcomes[0].Previous.PromotedAt)
	assert.Equal(t, "cls-8", outcomes[0].Next.ClassID)
	assert.Equal(t, "ay-2025", outcomes[0].Next.AcademicYearID)
	require.NoError(t, mock.ExpectationsWereMet())
}
