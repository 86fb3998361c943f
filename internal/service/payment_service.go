package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-fee-ledger/internal/dto"
	"github.com/noah-isme/sma-fee-ledger/internal/models"
	"github.com/noah-isme/sma-fee-ledger/internal/repository"
	appErrors "github.com/noah-isme/sma-fee-ledger/pkg/errors"
)

type paymentStore interface {
	Post(ctx context.Context, posting models.PaymentPosting) (*models.PostingResult, error)
	PostReservationPayment(ctx context.Context, record models.IncomeRecord) (*models.Reservation, error)
	ListIncome(ctx context.Context, branchID string, filter models.IncomeFilter) ([]models.IncomeRecord, int, error)
}

type enrollmentResolver interface {
	FindByID(ctx context.Context, branchID, id string) (*models.Enrollment, error)
	FindActiveByAdmissionNo(ctx context.Context, branchID, admissionNo string) (*models.Enrollment, error)
}

type receiptDispatcher interface {
	Dispatch(ctx context.Context, branchID, admissionNo string, records []models.IncomeRecord) (*models.ReceiptTicket, error)
}

type cacheInvalidator interface {
	Invalidate(ctx context.Context, pattern string) error
}

// PaymentConfig carries the ledger policies applied at posting time.
type PaymentConfig struct {
	AllowOverpay bool
}

// PaymentService posts payments against enrollment ledgers and reservations.
type PaymentService struct {
	store       paymentStore
	enrollments enrollmentResolver
	receipts    receiptDispatcher
	cache       cacheInvalidator
	metrics     *MetricsService
	validator   *validator.Validate
	logger      *zap.Logger
	cfg         PaymentConfig
}

// NewPaymentService constructs a PaymentService. receipts and cache may be nil.
func NewPaymentService(store paymentStore, enrollments enrollmentResolver, receipts receiptDispatcher, cache cacheInvalidator, metrics *MetricsService, cfg PaymentConfig, validate *validator.Validate, logger *zap.Logger) *PaymentService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PaymentService{
		store:       store,
		enrollments: enrollments,
		receipts:    receipts,
		cache:       cache,
		metrics:     metrics,
		validator:   validate,
		logger:      logger,
		cfg:         cfg,
	}
}

// DashboardCachePattern matches every cached dashboard of a branch.
func DashboardCachePattern(branchID string) string {
	return fmt.Sprintf("fees:dash:%s:*", branchID)
}

// PostPayment validates the request, resolves the target enrollment and writes every detail in
// one transaction. Receipts are dispatched after commit and never affect the ledger.
func (s *PaymentService) PostPayment(ctx context.Context, branchID, actorID string, req dto.PostPaymentRequest) (*dto.PostPaymentResponse, error) {
	details, err := s.validatePayment(req)
	if err != nil {
		return nil, err
	}

	enrollment, err := s.resolveTarget(ctx, branchID, req)
	if err != nil {
		return nil, err
	}

	result, err := s.store.Post(ctx, models.PaymentPosting{
		BranchID:     branchID,
		EnrollmentID: enrollment.ID,
		AdmissionNo:  enrollment.AdmissionNo,
		Details:      details,
		Remarks:      req.Remarks,
		CreatedBy:    actorID,
		AllowOverpay: s.cfg.AllowOverpay,
	})
	if err != nil {
		if errors.Is(err, repository.ErrVersionConflict) {
			s.metrics.RecordConflict("post_payment")
		}
		return nil, translateError(err, "post payment", enrollment.ID, appErrors.ErrBalanceNotFound)
	}

	for _, idx := range result.Overpaid {
		s.logger.Warn("payment exceeds slot balance",
			zap.String("branch_id", branchID),
			zap.String("enrollment_id", enrollment.ID),
			zap.Int("detail", idx+1),
			zap.String("amount", details[idx].Amount.StringFixed(2)))
	}
	for _, record := range result.Records {
		s.metrics.RecordPayment(record.Purpose, record.PaidAmount)
	}
	s.invalidateDashboard(ctx, branchID)

	resp := &dto.PostPaymentResponse{Records: result.Records, Tuition: result.Tuition, Transport: result.Transport}
	if s.receipts != nil {
		ticket, err := s.receipts.Dispatch(ctx, branchID, enrollment.AdmissionNo, result.Records)
		if err != nil {
			s.logger.Warn("receipt dispatch failed", zap.String("enrollment_id", enrollment.ID), zap.Error(err))
			resp.ReceiptPending = true
		} else {
			resp.Receipt = ticket
		}
	}

	s.logger.Info("payment posted",
		zap.String("branch_id", branchID),
		zap.String("enrollment_id", enrollment.ID),
		zap.Int("details", len(result.Records)))
	return resp, nil
}

// ApplyPayment pays a single slot of one ledger. It is posted like any other payment so the
// increment is recorded in the income ledger.
func (s *PaymentService) ApplyPayment(ctx context.Context, branchID, actorID, enrollmentID string, kind models.BalanceKind, req dto.ApplyPaymentRequest) (*dto.PostPaymentResponse, error) {
	detail := dto.PaymentDetailRequest{TermNumber: req.TermNumber, Amount: req.Amount, Method: req.Method}
	switch {
	case kind == models.BalanceKindTuition && req.Book:
		detail.Purpose = models.PurposeBookFee
		detail.TermNumber = nil
	case kind == models.BalanceKindTuition:
		detail.Purpose = models.PurposeTuitionFee
	case kind == models.BalanceKindTransport && req.Book:
		return nil, appErrors.Clone(appErrors.ErrInvalidTerm, "transport balances have no book slot")
	case kind == models.BalanceKindTransport:
		detail.Purpose = models.PurposeTransportFee
	default:
		return nil, appErrors.Clone(appErrors.ErrValidation, "balance kind must be TUITION or TRANSPORT")
	}
	return s.PostPayment(ctx, branchID, actorID, dto.PostPaymentRequest{
		EnrollmentID: enrollmentID,
		Details:      []dto.PaymentDetailRequest{detail},
		Remarks:      req.Remarks,
	})
}

// PostReservationPayment records an application or admission fee against a reservation.
func (s *PaymentService) PostReservationPayment(ctx context.Context, branchID, actorID, reservationID string, purpose models.PaymentPurpose, amount decimal.Decimal, method string) (*models.Reservation, error) {
	if purpose != models.PurposeApplicationFee && purpose != models.PurposeAdmissionFee {
		return nil, appErrors.Clone(appErrors.ErrInvalidPurpose, "reservations accept application or admission fees only")
	}
	if !amount.IsPositive() {
		return nil, appErrors.WithResource(appErrors.ErrNonPositiveAmount, reservationID)
	}
	if strings.TrimSpace(method) == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "payment method is required")
	}

	reservation, err := s.store.PostReservationPayment(ctx, models.IncomeRecord{
		BranchID:      branchID,
		ReservationID: &reservationID,
		Purpose:       purpose,
		PaidAmount:    amount,
		PaymentMethod: method,
		CreatedBy:     actorID,
	})
	if err != nil {
		return nil, translateError(err, "record reservation payment", reservationID, appErrors.ErrReservationNotFound)
	}
	s.metrics.RecordPayment(purpose, amount)
	s.invalidateDashboard(ctx, branchID)
	s.logger.Info("reservation payment recorded",
		zap.String("branch_id", branchID), zap.String("reservation_id", reservationID), zap.String("purpose", string(purpose)))
	return reservation, nil
}

// ListIncome returns a page of the income ledger.
func (s *PaymentService) ListIncome(ctx context.Context, branchID string, query dto.IncomeQuery) ([]models.IncomeRecord, *models.Pagination, error) {
	if query.Purpose != "" && !query.Purpose.Valid() {
		return nil, nil, appErrors.Clone(appErrors.ErrInvalidPurpose, fmt.Sprintf("unknown purpose %q", query.Purpose))
	}
	page, size := models.NormalizePage(query.Page, query.PageSize)
	records, total, err := s.store.ListIncome(ctx, branchID, models.IncomeFilter{
		EnrollmentID: query.EnrollmentID,
		Purpose:      query.Purpose,
		From:         query.From,
		To:           query.To,
		Page:         page,
		PageSize:     size,
	})
	if err != nil {
		return nil, nil, translateError(err, "list income", "", nil)
	}
	return records, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

func (s *PaymentService) validatePayment(req dto.PostPaymentRequest) ([]models.PaymentDetail, error) {
	if (req.EnrollmentID == "") == (req.AdmissionNo == "") {
		return nil, appErrors.Clone(appErrors.ErrValidation, "exactly one of enrollment_id or admission_no is required")
	}
	if len(req.Details) == 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "at least one payment detail is required")
	}

	details := make([]models.PaymentDetail, 0, len(req.Details))
	for i, d := range req.Details {
		ref := fmt.Sprintf("details[%d]", i)
		if !d.Amount.IsPositive() {
			return nil, appErrors.WithResource(appErrors.ErrNonPositiveAmount, ref)
		}
		if !d.Purpose.Valid() {
			return nil, appErrors.WithResource(appErrors.Clone(appErrors.ErrInvalidPurpose, fmt.Sprintf("unknown purpose %q", d.Purpose)), ref)
		}
		if d.Purpose == models.PurposeApplicationFee {
			return nil, appErrors.WithResource(appErrors.Clone(appErrors.ErrInvalidPurpose, "application fees are paid against a reservation"), ref)
		}
		if terms := d.Purpose.TermCount(); terms > 0 {
			if d.TermNumber == nil {
				return nil, appErrors.WithResource(appErrors.ErrMissingTermNumber, ref)
			}
			if *d.TermNumber < 1 || *d.TermNumber > terms {
				return nil, appErrors.WithResource(appErrors.Clone(appErrors.ErrInvalidTerm, fmt.Sprintf("term must be between 1 and %d", terms)), ref)
			}
		}
		details = append(details, models.PaymentDetail{
			Purpose:    d.Purpose,
			TermNumber: d.TermNumber,
			Amount:     d.Amount,
			Method:     d.Method,
		})
	}

	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid payment payload")
	}
	return details, nil
}

func (s *PaymentService) resolveTarget(ctx context.Context, branchID string, req dto.PostPaymentRequest) (*models.Enrollment, error) {
	if req.EnrollmentID != "" {
		enrollment, err := s.enrollments.FindByID(ctx, branchID, req.EnrollmentID)
		if err != nil {
			return nil, translateError(err, "load enrollment", req.EnrollmentID, appErrors.ErrEnrollmentNotFound)
		}
		return enrollment, nil
	}
	enrollment, err := s.enrollments.FindActiveByAdmissionNo(ctx, branchID, req.AdmissionNo)
	if err != nil {
		return nil, translateError(err, "resolve admission number", req.AdmissionNo, appErrors.ErrEnrollmentNotFound)
	}
	return enrollment, nil
}

func (s *PaymentService) invalidateDashboard(ctx context.Context, branchID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, DashboardCachePattern(branchID)); err != nil {
		s.logger.Warn("dashboard cache invalidation failed", zap.String("branch_id", branchID), zap.Error(err))
	}
}
