package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-fee-ledger/internal/dto"
	"github.com/noah-isme/sma-fee-ledger/internal/models"
	"github.com/noah-isme/sma-fee-ledger/internal/repository"
	appErrors "github.com/noah-isme/sma-fee-ledger/pkg/errors"
)

type reservationStore interface {
	Create(ctx context.Context, reservation *models.Reservation) error
	FindByID(ctx context.Context, branchID, id string) (*models.Reservation, error)
	List(ctx context.Context, branchID string, filter models.ReservationFilter) ([]models.Reservation, int, error)
	Confirm(ctx context.Context, params repository.ConfirmParams) (*models.Reservation, error)
	Cancel(ctx context.Context, branchID, id string, remarks *string) (*models.Reservation, error)
}

type enrollmentCreator interface {
	Provision(ctx context.Context, params repository.ProvisionParams) (*models.Enrollment, bool, error)
}

type reservationPayments interface {
	PostReservationPayment(ctx context.Context, branchID, actorID, reservationID string, purpose models.PaymentPurpose, amount decimal.Decimal, method string) (*models.Reservation, error)
}

type classFeeReader interface {
	ClassFee(ctx context.Context, branchID, classID, academicYearID string) (*models.ClassFee, error)
}

// ReservationConfig tunes the admission lifecycle.
type ReservationConfig struct {
	RequireApplicationFee bool
}

// ReservationService drives reservations from application to enrollment.
type ReservationService struct {
	repo        reservationStore
	provisioner enrollmentCreator
	payments    reservationPayments
	enrollments enrollmentReader
	catalog     classFeeReader
	metrics     *MetricsService
	validator   *validator.Validate
	logger      *zap.Logger
	cfg         ReservationConfig
	now         func() time.Time
}

// NewReservationService constructs a ReservationService.
func NewReservationService(repo reservationStore, provisioner enrollmentCreator, payments reservationPayments, enrollments enrollmentReader, metrics *MetricsService, cfg ReservationConfig, validate *validator.Validate, logger *zap.Logger) *ReservationService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReservationService{
		repo:        repo,
		provisioner: provisioner,
		payments:    payments,
		enrollments: enrollments,
		metrics:     metrics,
		validator:   validate,
		logger:      logger,
		cfg:         cfg,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// UseCatalog quotes tuition and book fees from the class fee structure when a request omits both.
func (s *ReservationService) UseCatalog(catalog classFeeReader) {
	s.catalog = catalog
}

// Create records a new PENDING application with an unlocked concession.
func (s *ReservationService) Create(ctx context.Context, branchID string, req dto.CreateReservationRequest) (*models.Reservation, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid reservation payload")
	}
	if s.catalog != nil && req.TuitionFee.IsZero() && req.BookFee.IsZero() {
		fee, err := s.catalog.ClassFee(ctx, branchID, req.ClassID, req.AcademicYearID)
		switch {
		case err == nil:
			req.TuitionFee = fee.TuitionFee
			req.BookFee = fee.BookFee
		case !errors.Is(err, sql.ErrNoRows):
			return nil, translateError(err, "load class fee", req.ClassID, nil)
		}
	}
	for name, amount := range map[string]decimal.Decimal{
		"application_fee":      req.ApplicationFee,
		"tuition_fee":          req.TuitionFee,
		"transport_fee":        req.TransportFee,
		"book_fee":             req.BookFee,
		"tuition_concession":   req.TuitionConcession,
		"transport_concession": req.TransportConcession,
	} {
		if amount.IsNegative() {
			return nil, appErrors.Clone(appErrors.ErrValidation, name+" must not be negative")
		}
	}
	if req.TuitionConcession.GreaterThan(req.TuitionFee) || req.TransportConcession.GreaterThan(req.TransportFee) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "concession must not exceed the fee")
	}

	reservation := &models.Reservation{
		BranchID:            branchID,
		StudentName:         strings.TrimSpace(req.StudentName),
		StudentID:           req.StudentID,
		ClassID:             req.ClassID,
		AcademicYearID:      req.AcademicYearID,
		ApplicationFee:      req.ApplicationFee,
		ApplicationFeePaid:  decimal.Zero,
		TuitionFee:          req.TuitionFee,
		TransportFee:        req.TransportFee,
		BookFee:             req.BookFee,
		TuitionConcession:   req.TuitionConcession,
		TransportConcession: req.TransportConcession,
		Remarks:             req.Remarks,
	}
	if err := s.repo.Create(ctx, reservation); err != nil {
		return nil, translateError(err, "create reservation", "", nil)
	}
	s.metrics.RecordReservationTransition(models.ReservationStatusPending)
	s.logger.Info("reservation created", zap.String("branch_id", branchID), zap.String("reservation_id", reservation.ID))
	return reservation, nil
}

// Get returns one reservation.
func (s *ReservationService) Get(ctx context.Context, branchID, id string) (*models.Reservation, error) {
	reservation, err := s.repo.FindByID(ctx, branchID, id)
	if err != nil {
		return nil, translateError(err, "load reservation", id, appErrors.ErrReservationNotFound)
	}
	return reservation, nil
}

// List returns reservations with pagination metadata.
func (s *ReservationService) List(ctx context.Context, branchID string, query dto.ReservationQuery) ([]models.Reservation, *models.Pagination, error) {
	status := models.ReservationStatus(strings.ToUpper(string(query.Status)))
	switch status {
	case "", models.ReservationStatusPending, models.ReservationStatusConfirmed, models.ReservationStatusCancelled:
	default:
		return nil, nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown reservation status %q", query.Status))
	}
	page, size := models.NormalizePage(query.Page, query.PageSize)
	reservations, total, err := s.repo.List(ctx, branchID, models.ReservationFilter{
		Status:   status,
		Search:   strings.TrimSpace(query.Search),
		Page:     page,
		PageSize: size,
	})
	if err != nil {
		return nil, nil, translateError(err, "list reservations", "", nil)
	}
	return reservations, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// PayApplicationFee records the application fee. The reservation status does not change.
func (s *ReservationService) PayApplicationFee(ctx context.Context, branchID, actorID, id string, req dto.ReservationPaymentRequest) (*models.Reservation, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid application fee payload")
	}
	return s.payments.PostReservationPayment(ctx, branchID, actorID, id, models.PurposeApplicationFee, req.Amount, req.Method)
}

// Confirm locks the concession, optionally records the admission fee and provisions the
// enrollment. Repeating the call after success or after a failed provisioning step is safe.
func (s *ReservationService) Confirm(ctx context.Context, branchID, actorID, id string, req dto.ConfirmReservationRequest) (*models.ConfirmResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid confirmation payload")
	}
	if req.AdmissionFee != nil && !req.AdmissionFee.Amount.IsPositive() {
		return nil, appErrors.WithResource(appErrors.ErrNonPositiveAmount, id)
	}

	current, err := s.repo.FindByID(ctx, branchID, id)
	if err != nil {
		return nil, translateError(err, "load reservation", id, appErrors.ErrReservationNotFound)
	}
	if current.IsEnrolled && current.EnrollmentID != nil {
		enrollment, err := s.enrollments.FindByID(ctx, branchID, *current.EnrollmentID)
		if err != nil {
			return nil, translateError(err, "load enrollment", *current.EnrollmentID, appErrors.ErrEnrollmentNotFound)
		}
		return &models.ConfirmResult{Reservation: current, Enrollment: enrollment, Replayed: true}, nil
	}
	if current.Status == models.ReservationStatusCancelled {
		return nil, appErrors.WithResource(appErrors.ErrInvalidStateTransition, id)
	}

	params := repository.ConfirmParams{
		BranchID:              branchID,
		ReservationID:         id,
		Remarks:               req.Remarks,
		RequireApplicationFee: s.cfg.RequireApplicationFee,
		ConfirmedAt:           s.now(),
	}
	if req.AdmissionFee != nil {
		params.AdmissionFee = &models.IncomeRecord{
			PaidAmount:    req.AdmissionFee.Amount,
			PaymentMethod: req.AdmissionFee.Method,
			CreatedBy:     actorID,
		}
	}
	wasPending := current.Status == models.ReservationStatusPending
	confirmed, err := s.repo.Confirm(ctx, params)
	if err != nil {
		return nil, translateError(err, "confirm reservation", id, appErrors.ErrReservationNotFound)
	}
	if wasPending {
		s.metrics.RecordReservationTransition(models.ReservationStatusConfirmed)
		if params.AdmissionFee != nil {
			s.metrics.RecordPayment(models.PurposeAdmissionFee, params.AdmissionFee.PaidAmount)
		}
	}

	studentID := uuid.NewString()
	if confirmed.StudentID != nil && *confirmed.StudentID != "" {
		studentID = *confirmed.StudentID
	}
	admissionNo := strings.TrimSpace(req.AdmissionNo)
	if admissionNo == "" {
		admissionNo = generateAdmissionNo(params.ConfirmedAt)
	}
	enrollment, replayed, err := s.provisioner.Provision(ctx, repository.ProvisionParams{
		BranchID:      branchID,
		ReservationID: id,
		AdmissionNo:   admissionNo,
		StudentID:     studentID,
		SectionID:     req.SectionID,
		RollNumber:    req.RollNumber,
	})
	if err != nil {
		if errors.Is(err, repository.ErrVersionConflict) {
			s.metrics.RecordConflict("provision_enrollment")
		}
		s.logger.Warn("enrollment provisioning failed; confirm can be retried",
			zap.String("reservation_id", id), zap.Error(err))
		return nil, translateError(err, "provision enrollment", id, appErrors.ErrReservationNotFound)
	}

	confirmed.IsEnrolled = true
	confirmed.EnrollmentID = &enrollment.ID
	s.logger.Info("reservation confirmed",
		zap.String("branch_id", branchID),
		zap.String("reservation_id", id),
		zap.String("enrollment_id", enrollment.ID),
		zap.Bool("replayed", replayed))
	return &models.ConfirmResult{Reservation: confirmed, Enrollment: enrollment, Replayed: replayed}, nil
}

// Cancel moves a PENDING reservation to CANCELLED.
func (s *ReservationService) Cancel(ctx context.Context, branchID, id string, req dto.CancelReservationRequest) (*models.Reservation, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid cancellation payload")
	}
	reservation, err := s.repo.Cancel(ctx, branchID, id, req.Remarks)
	if err != nil {
		return nil, translateError(err, "cancel reservation", id, appErrors.ErrReservationNotFound)
	}
	s.metrics.RecordReservationTransition(models.ReservationStatusCancelled)
	s.logger.Info("reservation cancelled", zap.String("branch_id", branchID), zap.String("reservation_id", id))
	return reservation, nil
}

func generateAdmissionNo(at time.Time) string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))[:8]
	return fmt.Sprintf("ADM-%d-%s", at.Year(), suffix)
}
