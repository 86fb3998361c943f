package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-fee-ledger/internal/models"
	appErrors "github.com/noah-isme/sma-fee-ledger/pkg/errors"
	"github.com/noah-isme/sma-fee-ledger/pkg/export"
	"github.com/noah-isme/sma-fee-ledger/pkg/jobs"
	"github.com/noah-isme/sma-fee-ledger/pkg/storage"
)

const receiptJobType = "receipt"

type receiptRenderer interface {
	RenderDocument(doc export.Document) ([]byte, error)
}

type jobEnqueuer interface {
	Enqueue(job jobs.Job) error
}

// ReceiptService renders payment receipts in the background and hands out signed download links.
type ReceiptService struct {
	store    storage.ObjectStore
	signer   *storage.SignedURLSigner
	renderer receiptRenderer
	queue    jobEnqueuer
	metrics  *MetricsService
	logger   *zap.Logger
	now      func() time.Time
}

// NewReceiptService constructs a ReceiptService. Until UseQueue is called receipts render inline.
func NewReceiptService(store storage.ObjectStore, signer *storage.SignedURLSigner, renderer receiptRenderer, metrics *MetricsService, logger *zap.Logger) *ReceiptService {
	if renderer == nil {
		renderer = export.NewPDFExporter()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReceiptService{
		store:    store,
		signer:   signer,
		renderer: renderer,
		metrics:  metrics,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// UseQueue routes rendering through a worker queue whose handler is Handle.
func (s *ReceiptService) UseQueue(queue jobEnqueuer) {
	s.queue = queue
}

// Dispatch queues a receipt for the records of one posting and returns its download ticket.
func (s *ReceiptService) Dispatch(ctx context.Context, branchID, admissionNo string, records []models.IncomeRecord) (*models.ReceiptTicket, error) {
	if len(records) == 0 {
		return nil, fmt.Errorf("receipt needs at least one record")
	}
	receiptID := uuid.NewString()
	token, expiresAt, err := s.signer.Generate(receiptID, models.ReceiptKey(branchID, receiptID))
	if err != nil {
		return nil, fmt.Errorf("sign receipt link: %w", err)
	}

	payload := models.ReceiptJob{
		ReceiptID:   receiptID,
		BranchID:    branchID,
		AdmissionNo: admissionNo,
		Records:     records,
		IssuedAt:    s.now(),
	}
	job := jobs.Job{ID: receiptID, Type: receiptJobType, Payload: payload}
	if s.queue != nil {
		if err := s.queue.Enqueue(job); err != nil {
			return nil, fmt.Errorf("queue receipt: %w", err)
		}
	} else if err := s.Handle(ctx, job); err != nil {
		return nil, err
	}
	return &models.ReceiptTicket{ReceiptID: receiptID, Token: token, ExpiresAt: expiresAt}, nil
}

// Handle renders one receipt job and stores the PDF. It is the queue handler.
func (s *ReceiptService) Handle(ctx context.Context, job jobs.Job) error {
	payload, ok := job.Payload.(models.ReceiptJob)
	if !ok {
		return fmt.Errorf("unexpected receipt payload %T", job.Payload)
	}
	pdf, err := s.renderer.RenderDocument(receiptDocument(payload))
	if err != nil {
		s.metrics.RecordReceipt(false)
		return fmt.Errorf("render receipt %s: %w", payload.ReceiptID, err)
	}
	if err := s.store.Put(ctx, models.ReceiptKey(payload.BranchID, payload.ReceiptID), pdf, "application/pdf"); err != nil {
		s.metrics.RecordReceipt(false)
		return fmt.Errorf("store receipt %s: %w", payload.ReceiptID, err)
	}
	s.metrics.RecordReceipt(true)
	s.logger.Debug("receipt rendered", zap.String("receipt_id", payload.ReceiptID), zap.Int("attempt", job.Attempt))
	return nil
}

// Open validates a download token for the caller's branch and returns the stored PDF with its file name.
func (s *ReceiptService) Open(ctx context.Context, branchID, token string) (io.ReadCloser, string, error) {
	signed, err := s.signer.Parse(token, false)
	if err != nil {
		if errors.Is(err, storage.ErrTokenExpired) {
			return nil, "", appErrors.Wrap(err, appErrors.ErrForbidden.Code, appErrors.ErrForbidden.Status, "receipt link expired")
		}
		return nil, "", appErrors.Wrap(err, appErrors.ErrForbidden.Code, appErrors.ErrForbidden.Status, "invalid receipt link")
	}
	if !models.ReceiptInBranch(signed.Key, branchID) {
		return nil, "", appErrors.WithResource(appErrors.Clone(appErrors.ErrForbidden, "receipt belongs to another branch"), signed.ID)
	}
	file, err := s.store.Get(ctx, signed.Key)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			return nil, "", appErrors.WithResource(appErrors.Clone(appErrors.ErrNotFound, "receipt not rendered yet"), signed.ID)
		}
		return nil, "", appErrors.Persistence(err, signed.ID, "failed to open receipt")
	}
	return file, path.Base(signed.Key), nil
}

func receiptDocument(job models.ReceiptJob) export.Document {
	table := export.Dataset{Headers: []string{"Purpose", "Term", "Method", "Amount"}}
	total := decimal.Zero
	for _, record := range job.Records {
		term := ""
		if record.TermNumber != nil {
			term = strconv.Itoa(*record.TermNumber)
		}
		table.Rows = append(table.Rows, map[string]string{
			"Purpose": string(record.Purpose),
			"Term":    term,
			"Method":  record.PaymentMethod,
			"Amount":  record.PaidAmount.StringFixed(2),
		})
		total = total.Add(record.PaidAmount)
	}
	fields := []export.Field{
		{Label: "Receipt No", Value: job.ReceiptID},
		{Label: "Issued At", Value: job.IssuedAt.Format("2006-01-02 15:04")},
	}
	if job.AdmissionNo != "" {
		fields = append(fields, export.Field{Label: "Admission No", Value: job.AdmissionNo})
	}
	return export.Document{
		Title:  "Payment Receipt",
		Fields: fields,
		Table:  table,
		Footer: "Total paid: " + total.StringFixed(2),
	}
}
