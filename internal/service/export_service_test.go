package service

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-fee-ledger/internal/dto"
	"github.com/noah-isme/sma-fee-ledger/internal/models"
)

func incomeFixture(n int) []models.IncomeRecord {
	records := make([]models.IncomeRecord, n)
	for i := range records {
		enrollmentID := fmt.Sprintf("enr-%d", i)
		records[i] = models.IncomeRecord{
			ID:            fmt.Sprintf("inc-%03d", i),
			BranchID:      "br-1",
			EnrollmentID:  &enrollmentID,
			Purpose:       models.PurposeTuitionFee,
			TermNumber:    intPtr(1 + i%3),
			PaidAmount:    dec("100.5"),
			PaymentMethod: "CASH",
			CreatedBy:     "acct-1",
			CreatedAt:     time.Date(2026, 9, 1, 8, 0, 0, 0, time.UTC),
		}
	}
	return records
}

func TestExportServiceIncomeCSVPagesThroughLedger(t *testing.T) {
	store := &mockPaymentStore{income: incomeFixture(450)}
	svc := NewExportService(store, zap.NewNop())
	svc.now = func() time.Time { return time.Date(2026, 10, 14, 0, 0, 0, 0, time.UTC) }

	result, err := svc.ExportIncome(context.Background(), "br-1", dto.IncomeQuery{Purpose: models.PurposeTuitionFee})
	require.NoError(t, err)
	assert.Equal(t, "text/csv", result.ContentType)
	assert.Equal(t, "income-br-1-20261014.csv", result.Filename)
	require.Len(t, store.incomeCalls, 3)
	assert.Equal(t, models.PurposeTuitionFee, store.incomeCalls[0].Purpose)
	assert.Equal(t, 3, store.incomeCalls[2].Page)

	rows, err := csv.NewReader(bytes.NewReader(result.Data)).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 451)
	assert.Equal(t, incomeHeaders, rows[0])
	assert.Equal(t, "inc-000", rows[1][1])
	assert.Equal(t, "100.50", rows[1][8])
	assert.Equal(t, "", rows[1][2])
}

func TestExportServiceIncomeXLSX(t *testing.T) {
	svc := NewExportService(&mockPaymentStore{income: incomeFixture(3)}, zap.NewNop())

	result, err := svc.ExportIncome(context.Background(), "br-1", dto.IncomeQuery{Format: "XLSX"})
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(result.Filename, ".xlsx"))
	assert.True(t, bytes.HasPrefix(result.Data, []byte("PK")))
}

func TestExportServiceIncomeRejectsUnknownFormat(t *testing.T) {
	store := &mockPaymentStore{}
	svc := NewExportService(store, zap.NewNop())

	_, err := svc.ExportIncome(context.Background(), "br-1", dto.IncomeQuery{Format: "pdf"})
	assertAppError(t, err, "VALIDATION_ERROR", "")

	_, err = svc.ExportIncome(context.Background(), "br-1", dto.IncomeQuery{Purpose: "LIBRARY"})
	assertAppError(t, err, "INVALID_PURPOSE", "")
	assert.Empty(t, store.incomeCalls)
}
