package repository

import (
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"
)

func newRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

var (
	tuitionCols = []string{"id", "branch_id", "enrollment_id", "actual_fee", "concession_amount", "net_fee", "book_fee", "book_paid",
		"term1_amount", "term1_paid", "term2_amount", "term2_paid", "term3_amount", "term3_paid", "version", "updated_at"}
	transportCols = []string{"id", "branch_id", "enrollment_id", "actual_fee", "concession_amount", "total_fee",
		"term1_amount", "term1_paid", "term2_amount", "term2_paid", "version", "updated_at"}
	reservationCols = []string{"id", "branch_id", "student_name", "student_id", "class_id", "academic_year_id", "application_fee",
		"application_fee_paid", "tuition_fee", "transport_fee", "book_fee", "tuition_concession", "transport_concession",
		"concession_remarks", "concession_lock", "status", "remarks", "application_income_id", "admission_income_id",
		"is_enrolled", "enrollment_id", "created_at", "updated_at", "confirmed_at", "cancelled_at"}
	enrollmentCols = []string{"id", "branch_id", "student_id", "admission_no", "class_id", "section_id", "academic_year_id", "roll_number",
		"is_active", "student_status", "reservation_id", "promoted_at", "dropout_reason", "dropout_date", "created_at", "updated_at"}
)

func tuitionRow(enrollmentID string, version int64) *sqlmock.Rows {
	return sqlmock.NewRows(tuitionCols).AddRow("tui-1", "br-1", enrollmentID, "15000.00", "0.00", "15000.00", "800.00", "0.00",
		"5000.00", "0.00", "5000.00", "0.00", "5000.00", "0.00", version, time.Now())
}

func transportRow(enrollmentID string) *sqlmock.Rows {
	return sqlmock.NewRows(transportCols).AddRow("trn-1", "br-1", enrollmentID, "3000.00", "0.00", "3000.00",
		"1500.00", "0.00", "1500.00", "0.00", int64(0), time.Now())
}

func reservationRow(id, status string, locked, enrolled bool, enrollmentID, admissionIncomeID interface{}) *sqlmock.Rows {
	now := time.Now()
	return sqlmock.NewRows(reservationCols).AddRow(id, "br-1", "Ayu Lestari", nil, "cls-7", "ay-2024", "250.00",
		"250.00", "12000.00", "3000.00", "800.00", "500.00", "0.00", nil, locked, status, nil, "inc-app", admissionIncomeID,
		enrolled, enrollmentID, now, now, nil, nil)
}

func enrollmentRow(id string, active bool) *sqlmock.Rows {
	now := time.Now()
	status := "ACTIVE"
	if !active {
		status = "DROPPED_OUT"
	}
	return sqlmock.NewRows(enrollmentCols).AddRow(id, "br-1", "stu-1", "ADM-2024-0001", "cls-7", nil, "ay-2024", nil,
		active, status, nil, nil, nil, nil, now, now)
}
