package service

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-fee-ledger/internal/dto"
	"github.com/noah-isme/sma-fee-ledger/internal/models"
	"github.com/noah-isme/sma-fee-ledger/internal/repository"
	appErrors "github.com/noah-isme/sma-fee-ledger/pkg/errors"
)

type feeBalanceStore interface {
	GetLedger(ctx context.Context, branchID, enrollmentID string) (repository.LedgerBalances, error)
	SetConcession(ctx context.Context, change repository.ConcessionChange) (repository.LedgerBalances, error)
}

type enrollmentReader interface {
	FindByID(ctx context.Context, branchID, id string) (*models.Enrollment, error)
}

// FeeBalanceConfig tunes concession behaviour on existing ledgers.
type FeeBalanceConfig struct {
	TermsDerivedFromNet bool
}

// FeeBalanceService reads per-enrollment ledgers and overwrites their concessions.
type FeeBalanceService struct {
	store       feeBalanceStore
	enrollments enrollmentReader
	metrics     *MetricsService
	logger      *zap.Logger
	cfg         FeeBalanceConfig
}

// NewFeeBalanceService constructs a FeeBalanceService.
func NewFeeBalanceService(store feeBalanceStore, enrollments enrollmentReader, metrics *MetricsService, cfg FeeBalanceConfig, logger *zap.Logger) *FeeBalanceService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FeeBalanceService{store: store, enrollments: enrollments, metrics: metrics, logger: logger, cfg: cfg}
}

// GetBalance returns the ledger of the requested kind with derived fields populated.
func (s *FeeBalanceService) GetBalance(ctx context.Context, branchID, enrollmentID string, kind models.BalanceKind) (*dto.BalanceResponse, error) {
	if !kind.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "balance kind must be TUITION or TRANSPORT")
	}
	ledger, err := s.ledger(ctx, branchID, enrollmentID)
	if err != nil {
		return nil, err
	}

	resp := &dto.BalanceResponse{EnrollmentID: enrollmentID, Kind: kind}
	switch kind {
	case models.BalanceKindTuition:
		resp.Tuition = ledger.Tuition
	case models.BalanceKindTransport:
		if ledger.Transport == nil {
			return nil, appErrors.WithResource(appErrors.Clone(appErrors.ErrBalanceNotFound, "transport balance not found"), enrollmentID)
		}
		resp.Transport = ledger.Transport
	}
	return resp, nil
}

// Outstanding returns the total still owed using the shared outstanding formula.
func (s *FeeBalanceService) Outstanding(ctx context.Context, branchID, enrollmentID string) (*dto.OutstandingResponse, error) {
	ledger, err := s.ledger(ctx, branchID, enrollmentID)
	if err != nil {
		return nil, err
	}
	resp := &dto.OutstandingResponse{
		EnrollmentID:     enrollmentID,
		TuitionBalance:   models.TotalOutstanding(ledger.Tuition, nil),
		TransportBalance: models.TotalOutstanding(nil, ledger.Transport),
	}
	resp.TotalOutstanding = ledger.Outstanding()
	return resp, nil
}

// SetConcession overwrites the concession of one ledger.
func (s *FeeBalanceService) SetConcession(ctx context.Context, branchID, enrollmentID string, kind models.BalanceKind, amount decimal.Decimal) (*dto.BalanceResponse, error) {
	if !kind.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "balance kind must be TUITION or TRANSPORT")
	}
	var ledger repository.LedgerBalances
	var err error
	if kind == models.BalanceKindTuition {
		ledger, err = s.SetConcessions(ctx, branchID, enrollmentID, &amount, nil)
	} else {
		ledger, err = s.SetConcessions(ctx, branchID, enrollmentID, nil, &amount)
	}
	if err != nil {
		return nil, err
	}
	return &dto.BalanceResponse{EnrollmentID: enrollmentID, Kind: kind, Tuition: ledger.Tuition, Transport: ledger.Transport}, nil
}

// SetConcessions overwrites the tuition and/or transport concession in one transaction. Paid
// amounts are never touched; term amounts are re-split when configured.
func (s *FeeBalanceService) SetConcessions(ctx context.Context, branchID, enrollmentID string, tuition, transport *decimal.Decimal) (repository.LedgerBalances, error) {
	if tuition == nil && transport == nil {
		return repository.LedgerBalances{}, appErrors.Clone(appErrors.ErrValidation, "at least one concession amount is required")
	}
	for _, amount := range []*decimal.Decimal{tuition, transport} {
		if amount != nil && amount.IsNegative() {
			return repository.LedgerBalances{}, appErrors.WithResource(appErrors.Clone(appErrors.ErrValidation, "concession must not be negative"), enrollmentID)
		}
	}

	if _, err := s.enrollments.FindByID(ctx, branchID, enrollmentID); err != nil {
		return repository.LedgerBalances{}, translateError(err, "load enrollment", enrollmentID, appErrors.ErrEnrollmentNotFound)
	}
	ledger, err := s.store.SetConcession(ctx, repository.ConcessionChange{
		BranchID:     branchID,
		EnrollmentID: enrollmentID,
		Tuition:      tuition,
		Transport:    transport,
		Rederive:     s.cfg.TermsDerivedFromNet,
	})
	if err != nil {
		if errors.Is(err, repository.ErrVersionConflict) {
			s.metrics.RecordConflict("set_concession")
		}
		return repository.LedgerBalances{}, translateError(err, "set concession", enrollmentID, appErrors.ErrBalanceNotFound)
	}
	s.logger.Info("concession updated", zap.String("branch_id", branchID), zap.String("enrollment_id", enrollmentID))
	return ledger, nil
}

func (s *FeeBalanceService) ledger(ctx context.Context, branchID, enrollmentID string) (repository.LedgerBalances, error) {
	if _, err := s.enrollments.FindByID(ctx, branchID, enrollmentID); err != nil {
		return repository.LedgerBalances{}, translateError(err, "load enrollment", enrollmentID, appErrors.ErrEnrollmentNotFound)
	}
	ledger, err := s.store.GetLedger(ctx, branchID, enrollmentID)
	if err != nil {
		return repository.LedgerBalances{}, translateError(err, "load fee balance", enrollmentID, appErrors.ErrBalanceNotFound)
	}
	return ledger, nil
}
