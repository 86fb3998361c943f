package service

import (
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-fee-ledger/internal/models"
	"github.com/noah-isme/sma-fee-ledger/pkg/jobs"
	"github.com/noah-isme/sma-fee-ledger/pkg/storage"
)

func receiptRecords() []models.IncomeRecord {
	return []models.IncomeRecord{
		{ID: "inc-1", Purpose: models.PurposeTuitionFee, TermNumber: intPtr(1), PaidAmount: dec("1500.00"), PaymentMethod: "CASH"},
		{ID: "inc-2", Purpose: models.PurposeBookFee, PaidAmount: dec("250.50"), PaymentMethod: "CASH"},
	}
}

func TestReceiptServiceDispatchInline(t *testing.T) {
	store := newMemoryObjectStore()
	signer := storage.NewSignedURLSigner("receipts-secret", time.Hour)
	svc := NewReceiptService(store, signer, nil, nil, zap.NewNop())

	ticket, err := svc.Dispatch(context.Background(), "br-1", "ADM-1", receiptRecords())
	require.NoError(t, err)
	assert.NotEmpty(t, ticket.ReceiptID)
	assert.True(t, ticket.ExpiresAt.After(time.Now()))

	file, name, err := svc.Open(context.Background(), "br-1", ticket.Token)
	require.NoError(t, err)
	defer file.Close()
	data, err := io.ReadAll(file)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), "%PDF"))
	assert.Equal(t, ticket.ReceiptID+".pdf", name)
}

func TestReceiptServiceQueuedReceiptNotReady(t *testing.T) {
	store := newMemoryObjectStore()
	signer := storage.NewSignedURLSigner("receipts-secret", time.Hour)
	svc := NewReceiptService(store, signer, nil, nil, zap.NewNop())
	queue := &recordingQueue{}
	svc.UseQueue(queue)

	ticket, err := svc.Dispatch(context.Background(), "br-1", "ADM-1", receiptRecords())
	require.NoError(t, err)
	require.Len(t, queue.jobs, 1)
	assert.Equal(t, "receipt", queue.jobs[0].Type)

	_, _, err = svc.Open(context.Background(), "br-1", ticket.Token)
	assertAppError(t, err, "NOT_FOUND", ticket.ReceiptID)

	require.NoError(t, svc.Handle(context.Background(), queue.jobs[0]))
	file, _, err := svc.Open(context.Background(), "br-1", ticket.Token)
	require.NoError(t, err)
	_ = file.Close()
}

func TestReceiptServiceRejectsBadTokens(t *testing.T) {
	svc := NewReceiptService(newMemoryObjectStore(), storage.NewSignedURLSigner("receipts-secret", time.Hour), nil, nil, zap.NewNop())

	ticket, err := svc.Dispatch(context.Background(), "br-1", "", receiptRecords())
	require.NoError(t, err)

	_, _, err = svc.Open(context.Background(), "br-1", ticket.Token+"0")
	assertAppError(t, err, "FORBIDDEN", "")

	other := NewReceiptService(newMemoryObjectStore(), storage.NewSignedURLSigner("other-secret", time.Hour), nil, nil, zap.NewNop())
	_, _, err = other.Open(context.Background(), "br-1", ticket.Token)
	assertAppError(t, err, "FORBIDDEN", "")
}

func TestReceiptServiceOpenIsBranchScoped(t *testing.T) {
	svc := NewReceiptService(newMemoryObjectStore(), storage.NewSignedURLSigner("receipts-secret", time.Hour), nil, nil, zap.NewNop())

	ticket, err := svc.Dispatch(context.Background(), "br-A", "ADM-1", receiptRecords())
	require.NoError(t, err)

	_, _, err = svc.Open(context.Background(), "br-B", ticket.Token)
	assertAppError(t, err, "FORBIDDEN", ticket.ReceiptID)

	_, _, err = svc.Open(context.Background(), "br", ticket.Token)
	assertAppError(t, err, "FORBIDDEN", ticket.ReceiptID)

	_, _, err = svc.Open(context.Background(), "", ticket.Token)
	assertAppError(t, err, "FORBIDDEN", ticket.ReceiptID)

	file, _, err := svc.Open(context.Background(), "br-A", ticket.Token)
	require.NoError(t, err)
	_ = file.Close()
}

func TestReceiptServiceHandleRejectsForeignPayload(t *testing.T) {
	svc := NewReceiptService(newMemoryObjectStore(), storage.NewSignedURLSigner("receipts-secret", time.Hour), nil, nil, zap.NewNop())

	err := svc.Handle(context.Background(), jobs.Job{ID: "x", Type: "receipt", Payload: "not a receipt"})
	require.Error(t, err)

	_, err = svc.Dispatch(context.Background(), "br-1", "ADM-1", nil)
	require.Error(t, err)
}

func TestReceiptDocumentTotals(t *testing.T) {
	doc := receiptDocument(models.ReceiptJob{ReceiptID: "r-1", AdmissionNo: "ADM-1", Records: receiptRecords(), IssuedAt: time.Now()})
	assert.Equal(t, "Total paid: 1750.50", doc.Footer)
	require.Len(t, doc.Table.Rows, 2)
	assert.Equal(t, "1", doc.Table.Rows[0]["Term"])
	assert.Equal(t, "", doc.Table.Rows[1]["Term"])
	assert.Len(t, doc.Fields, 3)
}
