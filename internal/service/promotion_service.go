package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-fee-ledger/internal/dto"
	"github.com/noah-isme/sma-fee-ledger/internal/models"
	"github.com/noah-isme/sma-fee-ledger/internal/repository"
	appErrors "github.com/noah-isme/sma-fee-ledger/pkg/errors"
)

type promotionStore interface {
	ListActive(ctx context.Context, branchID string, filter models.EnrollmentFilter) ([]models.Enrollment, error)
	Promote(ctx context.Context, batch models.PromotionBatch) ([]models.PromotionOutcome, error)
	Dropout(ctx context.Context, branchID, id, reason string, date time.Time) (*models.Enrollment, error)
}

type ledgerReader interface {
	LedgersFor(ctx context.Context, branchID string, enrollmentIDs []string) (map[string]repository.LedgerBalances, error)
}

// PromotionConfig holds the default fee-clearance policy.
type PromotionConfig struct {
	RequireFeesPaid bool
}

// PromotionService evaluates and executes year-end promotion and dropout.
type PromotionService struct {
	enrollments promotionStore
	ledgers     ledgerReader
	cache       cacheInvalidator
	metrics     *MetricsService
	validator   *validator.Validate
	logger      *zap.Logger
	cfg         PromotionConfig
	now         func() time.Time
}

// NewPromotionService constructs a PromotionService.
func NewPromotionService(enrollments promotionStore, ledgers ledgerReader, cache cacheInvalidator, metrics *MetricsService, cfg PromotionConfig, validate *validator.Validate, logger *zap.Logger) *PromotionService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PromotionService{
		enrollments: enrollments,
		ledgers:     ledgers,
		cache:       cache,
		metrics:     metrics,
		validator:   validate,
		logger:      logger,
		cfg:         cfg,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// Evaluate reports the outstanding amount and promotability of every active enrollment in scope.
func (s *PromotionService) Evaluate(ctx context.Context, branchID string, query dto.EligibilityQuery) ([]models.PromotionEligibility, error) {
	requireFeesPaid := s.cfg.RequireFeesPaid
	if query.RequireFeesPaid != nil {
		requireFeesPaid = *query.RequireFeesPaid
	}
	enrollments, err := s.enrollments.ListActive(ctx, branchID, models.EnrollmentFilter{
		ClassID:        query.ClassID,
		AcademicYearID: query.AcademicYearID,
		Search:         strings.TrimSpace(query.Search),
		ActiveOnly:     true,
	})
	if err != nil {
		return nil, translateError(err, "list enrollments", "", nil)
	}
	if len(enrollments) == 0 {
		return []models.PromotionEligibility{}, nil
	}

	ids := make([]string, len(enrollments))
	for i, e := range enrollments {
		ids[i] = e.ID
	}
	ledgers, err := s.ledgers.LedgersFor(ctx, branchID, ids)
	if err != nil {
		return nil, translateError(err, "load fee balances", "", nil)
	}

	result := make([]models.PromotionEligibility, 0, len(enrollments))
	for _, e := range enrollments {
		pending := ledgers[e.ID].Outstanding()
		result = append(result, models.PromotionEligibility{
			EnrollmentID:       e.ID,
			StudentID:          e.StudentID,
			AdmissionNo:        e.AdmissionNo,
			CurrentClassID:     e.ClassID,
			TotalPendingAmount: pending,
			IsPromotable:       models.Promotable(pending, requireFeesPaid),
		})
	}
	return result, nil
}

// Promote re-validates eligibility under row locks and promotes the whole batch or nothing.
func (s *PromotionService) Promote(ctx context.Context, branchID, actorID string, req dto.PromoteRequest) ([]models.PromotionOutcome, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid promotion payload")
	}
	requireFeesPaid := s.cfg.RequireFeesPaid
	if req.RequireFeesPaid != nil {
		requireFeesPaid = *req.RequireFeesPaid
	}
	ids := dedupe(req.EnrollmentIDs)
	if len(ids) == 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "enrollment_ids must name at least one enrollment")
	}

	outcomes, err := s.enrollments.Promote(ctx, models.PromotionBatch{
		BranchID:           branchID,
		NextAcademicYearID: req.NextAcademicYearID,
		RequireFeesPaid:    requireFeesPaid,
		EnrollmentIDs:      ids,
		PromotedAt:         s.now(),
	})
	if err != nil {
		var blocked *repository.PromotionBlockedError
		if errors.As(err, &blocked) {
			s.metrics.RecordPromotion("blocked", len(ids))
		} else {
			s.metrics.RecordPromotion("failed", len(ids))
		}
		return nil, s.promotionError(err)
	}

	s.metrics.RecordPromotion("promoted", len(outcomes))
	if s.cache != nil {
		if err := s.cache.Invalidate(ctx, DashboardCachePattern(branchID)); err != nil {
			s.logger.Warn("dashboard cache invalidation failed", zap.String("branch_id", branchID), zap.Error(err))
		}
	}
	s.logger.Info("enrollments promoted",
		zap.String("branch_id", branchID),
		zap.String("actor_id", actorID),
		zap.String("next_academic_year_id", req.NextAcademicYearID),
		zap.Int("count", len(outcomes)))
	return outcomes, nil
}

// Dropout ends an active enrollment. Balances are kept as they are.
func (s *PromotionService) Dropout(ctx context.Context, branchID, actorID, enrollmentID string, req dto.DropoutRequest) (*models.Enrollment, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid dropout payload")
	}
	date := s.now()
	if req.Date != nil {
		date = req.Date.UTC()
	}
	enrollment, err := s.enrollments.Dropout(ctx, branchID, enrollmentID, strings.TrimSpace(req.Reason), date)
	if err != nil {
		if errors.Is(err, repository.ErrInvalidState) {
			return nil, appErrors.WithResource(appErrors.Clone(appErrors.ErrPreconditionFailed, "enrollment not active"), enrollmentID)
		}
		return nil, translateError(err, "dropout enrollment", enrollmentID, appErrors.ErrEnrollmentNotFound)
	}
	if s.cache != nil {
		if err := s.cache.Invalidate(ctx, DashboardCachePattern(branchID)); err != nil {
			s.logger.Warn("dashboard cache invalidation failed", zap.String("branch_id", branchID), zap.Error(err))
		}
	}
	s.logger.Info("enrollment dropped out",
		zap.String("branch_id", branchID), zap.String("enrollment_id", enrollmentID), zap.String("actor_id", actorID))
	return enrollment, nil
}

func (s *PromotionService) promotionError(err error) error {
	var resErr *repository.ResourceError
	id := ""
	if errors.As(err, &resErr) {
		id = resErr.ID
	}
	switch {
	case errors.Is(err, repository.ErrInvalidState):
		return tagged(appErrors.Clone(appErrors.ErrPreconditionFailed, "enrollment not active"), id, err)
	case errors.Is(err, sql.ErrNoRows):
		return tagged(appErrors.ErrEnrollmentNotFound, id, err)
	}
	return translateError(err, "promote enrollments", id, appErrors.ErrEnrollmentNotFound)
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if _, ok := seen[id]; ok || id == "" {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
