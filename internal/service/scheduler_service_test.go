package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type mockBranchLister struct {
	branches []string
	err      error
}

func (m *mockBranchLister) ActiveBranches(ctx context.Context) ([]string, error) {
	return m.branches, m.err
}

type mockRefresher struct {
	refreshed []string
	failFor   string
}

func (m *mockRefresher) Refresh(ctx context.Context, branchID string) error {
	m.refreshed = append(m.refreshed, branchID)
	if branchID == m.failFor {
		return errors.New("boom")
	}
	return nil
}

type mockSweeper struct {
	ttl     time.Duration
	removed []string
}

func (m *mockSweeper) CleanupOlderThan(ctx context.Context, ttl time.Duration) ([]string, error) {
	m.ttl = ttl
	return m.removed, nil
}

func TestSchedulerRefreshDashboardsContinuesPastFailures(t *testing.T) {
	refresher := &mockRefresher{failFor: "br-2"}
	svc := NewSchedulerService(&mockBranchLister{branches: []string{"br-1", "br-2", "br-3"}}, refresher, nil, SchedulerConfig{}, zap.NewNop())

	svc.RefreshDashboards(context.Background())
	assert.Equal(t, []string{"br-1", "br-2", "br-3"}, refresher.refreshed)
}

func TestSchedulerRefreshDashboardsListFailure(t *testing.T) {
	refresher := &mockRefresher{}
	svc := NewSchedulerService(&mockBranchLister{err: errors.New("down")}, refresher, nil, SchedulerConfig{}, zap.NewNop())

	svc.RefreshDashboards(context.Background())
	assert.Empty(t, refresher.refreshed)
}

func TestSchedulerCleanupReceiptsUsesTTL(t *testing.T) {
	sweeper := &mockSweeper{removed: []string{"receipts/br-1/a.pdf"}}
	svc := NewSchedulerService(&mockBranchLister{}, nil, sweeper, SchedulerConfig{ReceiptTTL: 72 * time.Hour}, zap.NewNop())

	svc.CleanupReceipts(context.Background())
	assert.Equal(t, 72*time.Hour, sweeper.ttl)
}

func TestSchedulerStartRegistersJobs(t *testing.T) {
	svc := NewSchedulerService(&mockBranchLister{}, &mockRefresher{}, &mockSweeper{}, SchedulerConfig{
		DashboardRefreshSpec: "@every 15m",
		ReceiptCleanupSpec:   "@daily",
	}, zap.NewNop())

	require.NoError(t, svc.Start())
	assert.Len(t, svc.cron.Entries(), 2)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	svc.Stop(ctx)
}

func TestSchedulerStartRejectsBadSpec(t *testing.T) {
	svc := NewSchedulerService(&mockBranchLister{}, &mockRefresher{}, nil, SchedulerConfig{DashboardRefreshSpec: "every tuesday"}, zap.NewNop())

	require.Error(t, svc.Start())
}
