package metricspush_test

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/smallbiznis/settlement/internal/metricspush"
	refunddomain "github.com/smallbiznis/settlement/internal/refund/domain"
	dbtest "github.com/smallbiznis/settlement/internal/testutil"
	"github.com/stretchr/testify/require"
)

func TestBacklogCountsOpenRecords(t *testing.T) {
	db := dbtest.NewDB(t)
	now := time.Now().UTC()
	require.NoError(t, db.Create(&[]refunddomain.Refund{
		{ID: 1, Reference: "RF-1", TransactionID: 9, Amount: 100, Currency: "NGN", Status: refunddomain.StatusProcessing, Provider: "fake", CreatedAt: now, UpdatedAt: now},
		{ID: 2, Reference: "RF-2", TransactionID: 9, Amount: 100, Currency: "NGN", Status: refunddomain.StatusCompleted, Provider: "fake", CreatedAt: now, UpdatedAt: now},
	}).Error)

	registry := prometheus.NewRegistry()
	backlog, err := metricspush.NewBacklog(db, registry)
	require.NoError(t, err)
	require.NoError(t, backlog.Refresh(context.Background()))

	count, err := testutil.GatherAndCount(registry, "settlement_open_records")
	require.NoError(t, err)
	require.Equal(t, 6, count)
	require.Equal(t, 1.0, testutil.ToFloat64(backlog.Gauge().WithLabelValues("refunds", "processing")))
	require.Equal(t, 0.0, testutil.ToFloat64(backlog.Gauge().WithLabelValues("payouts", "pending")))
}
