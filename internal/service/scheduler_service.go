package service

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-fee-ledger/pkg/storage"
)

type branchLister interface {
	ActiveBranches(ctx context.Context) ([]string, error)
}

type dashboardRefresher interface {
	Refresh(ctx context.Context, branchID string) error
}

// SchedulerConfig holds cron specs. An empty spec disables that job.
type SchedulerConfig struct {
	DashboardRefreshSpec string
	ReceiptCleanupSpec   string
	ReceiptTTL           time.Duration
	JobTimeout           time.Duration
}

// SchedulerService runs periodic dashboard warming and receipt cleanup.
type SchedulerService struct {
	cron       *cron.Cron
	branches   branchLister
	dashboards dashboardRefresher
	sweeper    storage.Sweeper
	logger     *zap.Logger
	cfg        SchedulerConfig
}

// NewSchedulerService constructs the scheduler. dashboards and sweeper may be nil.
func NewSchedulerService(branches branchLister, dashboards dashboardRefresher, sweeper storage.Sweeper, cfg SchedulerConfig, logger *zap.Logger) *SchedulerService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.JobTimeout <= 0 {
		cfg.JobTimeout = 2 * time.Minute
	}
	return &SchedulerService{
		cron:       cron.New(cron.WithChain(cron.Recover(cron.DefaultLogger), cron.SkipIfStillRunning(cron.DefaultLogger))),
		branches:   branches,
		dashboards: dashboards,
		sweeper:    sweeper,
		logger:     logger,
		cfg:        cfg,
	}
}

// Start registers the configured jobs and starts the cron loop.
func (s *SchedulerService) Start() error {
	if s.dashboards != nil && s.cfg.DashboardRefreshSpec != "" {
		if _, err := s.cron.AddFunc(s.cfg.DashboardRefreshSpec, s.runWithTimeout(s.RefreshDashboards)); err != nil {
			return err
		}
	}
	if s.sweeper != nil && s.cfg.ReceiptCleanupSpec != "" {
		if _, err := s.cron.AddFunc(s.cfg.ReceiptCleanupSpec, s.runWithTimeout(s.CleanupReceipts)); err != nil {
			return err
		}
	}
	s.cron.Start()
	s.logger.Info("scheduler started", zap.Int("jobs", len(s.cron.Entries())))
	return nil
}

// Stop halts the cron loop and waits for running jobs.
func (s *SchedulerService) Stop(ctx context.Context) {
	done := s.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
		s.logger.Warn("scheduler stop timed out")
	}
}

// RefreshDashboards warms the dashboard of every branch with active enrollments.
func (s *SchedulerService) RefreshDashboards(ctx context.Context) {
	branches, err := s.branches.ActiveBranches(ctx)
	if err != nil {
		s.logger.Warn("list branches for dashboard refresh failed", zap.Error(err))
		return
	}
	for _, branchID := range branches {
		if err := s.dashboards.Refresh(ctx, branchID); err != nil {
			s.logger.Warn("dashboard refresh failed", zap.String("branch_id", branchID), zap.Error(err))
		}
	}
}

// CleanupReceipts deletes rendered receipts older than their link lifetime.
func (s *SchedulerService) CleanupReceipts(ctx context.Context) {
	removed, err := s.sweeper.CleanupOlderThan(ctx, s.cfg.ReceiptTTL)
	if err != nil {
		s.logger.Warn("receipt cleanup failed", zap.Error(err))
		return
	}
	if len(removed) > 0 {
		s.logger.Info("receipts cleaned up", zap.Int("files", len(removed)))
	}
}

func (s *SchedulerService) runWithTimeout(job func(context.Context)) func() {
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.cfg.JobTimeout)
		defer cancel()
		job(ctx)
	}
}
