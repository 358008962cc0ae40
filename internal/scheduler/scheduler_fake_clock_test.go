package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/smallbiznis/settlement/internal/clock"
	payoutdomain "github.com/smallbiznis/settlement/internal/payout/domain"
	refunddomain "github.com/smallbiznis/settlement/internal/refund/domain"
	txdomain "github.com/smallbiznis/settlement/internal/transaction/domain"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeTransactions struct {
	txdomain.Service
	expired, reconciled int
	calls               []string
}

func (f *fakeTransactions) ExpireStale(_ context.Context, limit int) (int, error) {
	f.calls = append(f.calls, "expire")
	return min(f.expired, limit), nil
}

func (f *fakeTransactions) ReconcileProcessing(_ context.Context, limit int) (int, error) {
	f.calls = append(f.calls, "reconcile")
	return min(f.reconciled, limit), nil
}

type fakeRefunds struct {
	refunddomain.Service
	err   error
	calls int
}

func (f *fakeRefunds) ReconcileUnresolved(context.Context, int) (int, error) {
	f.calls++
	return 0, f.err
}

type fakePayouts struct {
	payoutdomain.Service
	autoAt  []time.Time
	retried int
	block   bool
}

func (f *fakePayouts) RetryDue(ctx context.Context, _ int) (int, error) {
	if f.block {
		<-ctx.Done()
		return 0, ctx.Err()
	}
	f.retried++
	return 1, nil
}

func (f *fakePayouts) ReconcileProcessing(context.Context, int) (int, error) {
	return 0, nil
}

func (f *fakePayouts) RunAutoPayouts(_ context.Context, now time.Time, _ int) (payoutdomain.AutoRunResult, error) {
	f.autoAt = append(f.autoAt, now)
	return payoutdomain.AutoRunResult{BatchReference: "BAT-1", Considered: 2, Created: 1, Skipped: 1}, nil
}

func newTestScheduler(t *testing.T, cfg Config, clk clock.Clock) (*Scheduler, *fakeTransactions, *fakePayouts, *fakeRefunds) {
	t.Helper()
	restore := swapPrometheusRegistry(prometheus.NewRegistry())
	t.Cleanup(restore)

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	txs := &fakeTransactions{expired: 3, reconciled: 1}
	payouts := &fakePayouts{}
	refunds := &fakeRefunds{}
	s, err := New(Params{
		Log:          zap.NewNop(),
		Transactions: txs,
		Payouts:      payouts,
		Refunds:      refunds,
		GenID:        node,
		Clock:        clk,
		Config:       cfg,
	})
	require.NoError(t, err)
	return s, txs, payouts, refunds
}

func TestRunOnceRunsEveryJobInOrder(t *testing.T) {
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	s, txs, payouts, refunds := newTestScheduler(t, Config{}, clock.NewFakeClock(now))

	require.NoError(t, s.RunOnce(context.Background()))
	require.Equal(t, []string{"expire", "reconcile"}, txs.calls)
	require.Equal(t, 1, refunds.calls)
	require.Equal(t, 1, payouts.retried)
	require.Equal(t, []time.Time{now}, payouts.autoAt)
}

func TestRunOnceHonoursEnabledJobs(t *testing.T) {
	s, txs, payouts, refunds := newTestScheduler(t, Config{EnabledJobs: []string{"AUTO_PAYOUTS"}}, clock.NewFakeClock(time.Now()))

	require.NoError(t, s.RunOnce(context.Background()))
	require.Empty(t, txs.calls)
	require.Zero(t, refunds.calls)
	require.Zero(t, payouts.retried)
	require.Len(t, payouts.autoAt, 1)
}

func TestRunOnceJoinsJobErrors(t *testing.T) {
	s, _, payouts, refunds := newTestScheduler(t, Config{}, clock.NewFakeClock(time.Now()))
	refunds.err = errors.New("provider down")

	err := s.RunOnce(context.Background())
	require.ErrorContains(t, err, JobReconcileTransactions)
	require.ErrorContains(t, err, "provider down")
	require.Equal(t, 1, payouts.retried, "later jobs still run")
}

func TestRunOnceTreatsSlowJobAsSoftTimeout(t *testing.T) {
	s, _, payouts, _ := newTestScheduler(t, Config{JobTimeout: 5 * time.Millisecond}, clock.NewFakeClock(time.Now()))
	payouts.block = true

	require.NoError(t, s.RunOnce(context.Background()))
	require.Len(t, payouts.autoAt, 1)
}

func TestMetricsPushSkippedWithoutPusher(t *testing.T) {
	s, _, _, _ := newTestScheduler(t, Config{}, clock.NewFakeClock(time.Now()))
	require.False(t, s.isJobEnabled(JobMetricsPush))
}

func TestPushDueThrottlesByInterval(t *testing.T) {
	clk := clock.NewFakeClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	s, _, _, _ := newTestScheduler(t, Config{PushInterval: time.Minute}, clk)

	require.True(t, s.pushDue())
	clk.Advance(30 * time.Second)
	require.False(t, s.pushDue())
	clk.Advance(31 * time.Second)
	require.True(t, s.pushDue())
}

func TestNewRejectsMissingServices(t *testing.T) {
	_, err := New(Params{Log: zap.NewNop()})
	require.ErrorIs(t, err, ErrInvalidConfig)
}
