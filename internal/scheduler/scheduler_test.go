package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/smallbiznis/settlement/internal/clock"
	obsmetrics "github.com/smallbiznis/settlement/internal/observability/metrics"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newMeteredScheduler(t *testing.T, cfg Config) (*Scheduler, *prometheus.Registry, *fakePayouts) {
	t.Helper()
	registry := prometheus.NewRegistry()
	t.Cleanup(swapPrometheusRegistry(registry))
	obsmetrics.ResetSchedulerMetricsForTest()
	obsmetrics.SchedulerWithConfig(obsmetrics.Config{ServiceName: "settlement", Environment: "test"})

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	payouts := &fakePayouts{}
	s, err := New(Params{
		Log:          zap.NewNop(),
		Transactions: &fakeTransactions{expired: 3, reconciled: 1},
		Payouts:      payouts,
		Refunds:      &fakeRefunds{},
		GenID:        node,
		Clock:        clock.NewFakeClock(time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)),
		Config:       cfg,
	})
	require.NoError(t, err)
	return s, registry, payouts
}

func TestStuckPayoutRetryCountsTimeoutWithoutFailingRun(t *testing.T) {
	s, registry, payouts := newMeteredScheduler(t, Config{JobTimeout: 5 * time.Millisecond, EnabledJobs: []string{JobRetryPayouts}})
	payouts.block = true

	require.NoError(t, s.RunOnce(context.Background()))
	require.Zero(t, payouts.retried)

	job := map[string]string{"service": "settlement", "env": "test", "job": JobRetryPayouts}
	require.Equal(t, 1.0, getCounterValue(t, registry, "settlement_scheduler_job_timeouts_total", job))

	job["reason"] = obsmetrics.SchedulerJobReasonDeadlineExceeded
	require.Equal(t, 1.0, getCounterValue(t, registry, "settlement_scheduler_job_errors_total", job))
}

func TestRunOnceCountsProcessedRecordsPerResource(t *testing.T) {
	s, registry, _ := newMeteredScheduler(t, Config{BatchSize: 2})

	require.NoError(t, s.RunOnce(context.Background()))

	processed := func(job, resource string) float64 {
		return getCounterValue(t, registry, "settlement_scheduler_batch_processed_total", map[string]string{
			"service": "settlement", "env": "test", "job": job, "resource": resource,
		})
	}
	require.Equal(t, 2.0, processed(JobExpireTransactions, "transactions"), "expiry honours the batch size")
	require.Equal(t, 1.0, processed(JobReconcileTransactions, "transactions"))
	require.Equal(t, 1.0, processed(JobRetryPayouts, "payouts"))
	require.Equal(t, 1.0, processed(JobAutoPayouts, "payouts"))
}

func swapPrometheusRegistry(registry *prometheus.Registry) func() {
	oldRegisterer := prometheus.DefaultRegisterer
	oldGatherer := prometheus.DefaultGatherer
	prometheus.DefaultRegisterer = registry
	prometheus.DefaultGatherer = registry
	return func() {
		prometheus.DefaultRegisterer = oldRegisterer
		prometheus.DefaultGatherer = oldGatherer
		obsmetrics.ResetSchedulerMetricsForTest()
	}
}

func getCounterValue(t *testing.T, registry *prometheus.Registry, name string, labels map[string]string) float64 {
	t.Helper()
	metricFamilies, err := registry.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	for _, mf := range metricFamilies {
		if mf.GetName() != name {
			continue
		}
		for _, metric := range mf.Metric {
			if !labelsMatch(metric, labels) {
				continue
			}
			if metric.Counter == nil {
				t.Fatalf("metric %s is not a counter", name)
			}
			return metric.GetCounter().GetValue()
		}
	}
	t.Fatalf("metric %s with labels %v not found", name, labels)
	return 0
}

func labelsMatch(metric *dto.Metric, labels map[string]string) bool {
	if len(metric.Label) != len(labels) {
		return false
	}
	for _, label := range metric.Label {
		if labels[label.GetName()] != label.GetValue() {
			return false
		}
	}
	return true
}
