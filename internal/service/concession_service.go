package service

import (
	"context"
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-fee-ledger/internal/dto"
	"github.com/noah-isme/sma-fee-ledger/internal/models"
	"github.com/noah-isme/sma-fee-ledger/internal/repository"
	appErrors "github.com/noah-isme/sma-fee-ledger/pkg/errors"
)

type reservationConcessionStore interface {
	FindByID(ctx context.Context, branchID, id string) (*models.Reservation, error)
	GrantConcession(ctx context.Context, branchID, id string, tuition, transport decimal.Decimal, remarks *string) error
}

type enrollmentConcessions interface {
	SetConcessions(ctx context.Context, branchID, enrollmentID string, tuition, transport *decimal.Decimal) (repository.LedgerBalances, error)
}

// ConcessionService grants concessions on reservations or on enrollment ledgers. It never sets the
// concession lock; that is done by reservation confirmation alone.
type ConcessionService struct {
	reservations reservationConcessionStore
	balances     enrollmentConcessions
	metrics      *MetricsService
	validator    *validator.Validate
	logger       *zap.Logger
}

// NewConcessionService constructs a ConcessionService.
func NewConcessionService(reservations reservationConcessionStore, balances enrollmentConcessions, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger) *ConcessionService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ConcessionService{reservations: reservations, balances: balances, metrics: metrics, validator: validate, logger: logger}
}

// GrantConcession applies the request to its single target. On failure nothing is written.
func (s *ConcessionService) GrantConcession(ctx context.Context, branchID, actorID string, req dto.GrantConcessionRequest) error {
	if err := s.validator.Struct(req); err != nil {
		return validationError(err, "invalid concession payload")
	}
	if (req.ReservationID == "") == (req.EnrollmentID == "") {
		return appErrors.Clone(appErrors.ErrValidation, "exactly one of reservation_id or enrollment_id is required")
	}
	if req.TuitionAmount == nil && req.TransportAmount == nil {
		return appErrors.Clone(appErrors.ErrValidation, "at least one concession amount is required")
	}
	for _, amount := range []*decimal.Decimal{req.TuitionAmount, req.TransportAmount} {
		if amount != nil && amount.IsNegative() {
			return appErrors.Clone(appErrors.ErrValidation, "concession must not be negative")
		}
	}

	if req.EnrollmentID != "" {
		if _, err := s.balances.SetConcessions(ctx, branchID, req.EnrollmentID, req.TuitionAmount, req.TransportAmount); err != nil {
			return err
		}
		s.logger.Info("enrollment concession granted",
			zap.String("branch_id", branchID), zap.String("enrollment_id", req.EnrollmentID), zap.String("actor_id", actorID))
		return nil
	}
	return s.grantReservation(ctx, branchID, actorID, req)
}

func (s *ConcessionService) grantReservation(ctx context.Context, branchID, actorID string, req dto.GrantConcessionRequest) error {
	reservation, err := s.reservations.FindByID(ctx, branchID, req.ReservationID)
	if err != nil {
		return translateError(err, "load reservation", req.ReservationID, appErrors.ErrReservationNotFound)
	}
	if reservation.ConcessionLock {
		return appErrors.WithResource(appErrors.ErrConcessionLocked, reservation.ID)
	}

	tuition := reservation.TuitionConcession
	if req.TuitionAmount != nil {
		tuition = *req.TuitionAmount
	}
	transport := reservation.TransportConcession
	if req.TransportAmount != nil {
		transport = *req.TransportAmount
	}
	if tuition.GreaterThan(reservation.TuitionFee) || transport.GreaterThan(reservation.TransportFee) {
		return appErrors.WithResource(appErrors.Clone(appErrors.ErrValidation, "concession must not exceed the fee"), reservation.ID)
	}

	if err := s.reservations.GrantConcession(ctx, branchID, reservation.ID, tuition, transport, req.Remarks); err != nil {
		if errors.Is(err, repository.ErrVersionConflict) {
			s.metrics.RecordConflict("grant_concession")
		}
		return translateError(err, "grant concession", reservation.ID, appErrors.ErrReservationNotFound)
	}
	s.logger.Info("reservation concession granted",
		zap.String("branch_id", branchID), zap.String("reservation_id", reservation.ID), zap.String("actor_id", actorID))
	return nil
}
