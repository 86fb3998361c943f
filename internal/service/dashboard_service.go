package service

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-fee-ledger/internal/models"
)

type dashboardStore interface {
	CollectedBetween(ctx context.Context, branchID string, from, to time.Time) (decimal.Decimal, error)
	CollectedByPurpose(ctx context.Context, branchID, academicYearID string) ([]models.PurposeTotal, error)
	ReservationCounts(ctx context.Context, branchID, academicYearID string) (models.ReservationCounts, error)
}

type activeEnrollmentLister interface {
	ListActive(ctx context.Context, branchID string, filter models.EnrollmentFilter) ([]models.Enrollment, error)
}

type dashboardCache interface {
	Get(ctx context.Context, key string, dest interface{}) (bool, error)
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
}

// DashboardServiceConfig tunes dashboard behaviour.
type DashboardServiceConfig struct {
	CacheTTL time.Duration
}

// DashboardService aggregates collections and outstanding fees per branch.
type DashboardService struct {
	store       dashboardStore
	enrollments activeEnrollmentLister
	ledgers     ledgerReader
	cache       dashboardCache
	logger      *zap.Logger
	cfg         DashboardServiceConfig
	now         func() time.Time
}

// NewDashboardService constructs a DashboardService. cache may be nil.
func NewDashboardService(store dashboardStore, enrollments activeEnrollmentLister, ledgers ledgerReader, cache dashboardCache, cfg DashboardServiceConfig, logger *zap.Logger) *DashboardService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 5 * time.Minute
	}
	return &DashboardService{
		store:       store,
		enrollments: enrollments,
		ledgers:     ledgers,
		cache:       cache,
		logger:      logger,
		cfg:         cfg,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// DashboardCacheKey is the cache key of one branch dashboard.
func DashboardCacheKey(branchID, academicYearID string) string {
	if academicYearID == "" {
		academicYearID = "all"
	}
	return fmt.Sprintf("fees:dash:%s:%s", branchID, academicYearID)
}

// Summary returns the dashboard, reporting whether it was served from cache.
func (s *DashboardService) Summary(ctx context.Context, branchID, academicYearID string) (*models.FeeDashboard, bool, error) {
	key := DashboardCacheKey(branchID, academicYearID)
	if s.cache != nil {
		var cached models.FeeDashboard
		if hit, err := s.cache.Get(ctx, key, &cached); err == nil && hit {
			return &cached, true, nil
		}
	}

	dashboard, err := s.build(ctx, branchID, academicYearID)
	if err != nil {
		return nil, false, err
	}
	s.remember(ctx, key, dashboard)
	return dashboard, false, nil
}

// Refresh rebuilds and caches the branch-wide dashboard.
func (s *DashboardService) Refresh(ctx context.Context, branchID string) error {
	dashboard, err := s.build(ctx, branchID, "")
	if err != nil {
		return err
	}
	s.remember(ctx, DashboardCacheKey(branchID, ""), dashboard)
	return nil
}

func (s *DashboardService) build(ctx context.Context, branchID, academicYearID string) (*models.FeeDashboard, error) {
	now := s.now()
	startOfDay := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	startOfMonth := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())

	today, err := s.store.CollectedBetween(ctx, branchID, startOfDay, now)
	if err != nil {
		return nil, translateError(err, "sum today's collections", branchID, nil)
	}
	month, err := s.store.CollectedBetween(ctx, branchID, startOfMonth, now)
	if err != nil {
		return nil, translateError(err, "sum monthly collections", branchID, nil)
	}
	totals, err := s.store.CollectedByPurpose(ctx, branchID, academicYearID)
	if err != nil {
		return nil, translateError(err, "sum collections by purpose", branchID, nil)
	}
	counts, err := s.store.ReservationCounts(ctx, branchID, academicYearID)
	if err != nil {
		return nil, translateError(err, "count reservations", branchID, nil)
	}
	outstanding, active, err := s.outstanding(ctx, branchID, academicYearID)
	if err != nil {
		return nil, err
	}

	byPurpose := make(map[models.PaymentPurpose]decimal.Decimal, len(totals))
	for _, t := range totals {
		byPurpose[t.Purpose] = t.Total
	}
	return &models.FeeDashboard{
		BranchID:              branchID,
		AcademicYearID:        academicYearID,
		CollectedToday:        today,
		CollectedThisMonth:    month,
		CollectedByPurpose:    byPurpose,
		OutstandingTotal:      outstanding,
		ActiveEnrollments:     active,
		PendingReservations:   counts.Pending,
		ConfirmedReservations: counts.Confirmed,
		GeneratedAt:           now,
	}, nil
}

func (s *DashboardService) outstanding(ctx context.Context, branchID, academicYearID string) (decimal.Decimal, int, error) {
	enrollments, err := s.enrollments.ListActive(ctx, branchID, models.EnrollmentFilter{AcademicYearID: academicYearID, ActiveOnly: true})
	if err != nil {
		return decimal.Zero, 0, translateError(err, "list active enrollments", branchID, nil)
	}
	if len(enrollments) == 0 {
		return decimal.Zero, 0, nil
	}
	ids := make([]string, len(enrollments))
	for i, e := range enrollments {
		ids[i] = e.ID
	}
	ledgers, err := s.ledgers.LedgersFor(ctx, branchID, ids)
	if err != nil {
		return decimal.Zero, 0, translateError(err, "load fee balances", branchID, nil)
	}
	total := decimal.Zero
	for _, id := range ids {
		total = total.Add(ledgers[id].Outstanding())
	}
	return total, len(enrollments), nil
}

func (s *DashboardService) remember(ctx context.Context, key string, dashboard *models.FeeDashboard) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Set(ctx, key, dashboard, s.cfg.CacheTTL); err != nil {
		s.logger.Warn("dashboard cache store failed", zap.String("key", key), zap.Error(err))
	}
}
