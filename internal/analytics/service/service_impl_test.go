package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/smallbiznis/settlement/internal/analytics/domain"
	"github.com/smallbiznis/settlement/internal/analytics/service"
	"github.com/smallbiznis/settlement/internal/provider/adapters/fake"
	providerdomain "github.com/smallbiznis/settlement/internal/provider/domain"
	"github.com/smallbiznis/settlement/internal/testutil/harness"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestAnalyticsAggregatesCompletedPayments(t *testing.T) {
	e := harness.New(t)
	ctx := context.Background()
	svc := service.NewService(service.Params{DB: e.DB, Log: zap.NewNop(), Settlement: e.Settlement})

	e.Settle(t, harness.Sale("seller-1"))
	e.Settle(t, harness.Sale("seller-2"))
	e.Gateway.FailNext(fake.OpInitialize, providerdomain.Rejected("fake", "declined"))
	transfer := harness.Sale("seller-1")
	transfer.PaymentMethod = "bank_transfer"
	_, err := e.Transactions.Initialize(ctx, transfer)
	require.NoError(t, err)

	window := domain.Request{Start: harness.Start.Add(-time.Hour), End: harness.Start.Add(time.Hour)}
	got, err := svc.GetAnalytics(ctx, window)
	require.NoError(t, err)

	assert.Equal(t, "NGN", got.BaseCurrency)
	assert.Equal(t, int64(3), got.TotalTransactions)
	assert.Equal(t, int64(2), got.CompletedTransactions)
	assert.InDelta(t, 0.6667, got.SuccessRate, 0.00001)
	assert.Equal(t, int64(200_000), got.TotalRevenue)
	assert.Equal(t, int64(5_000), got.PlatformRevenue)
	assert.Equal(t, int64(195_000), got.SellerRevenue)
	assert.Equal(t, domain.MethodStats{Count: 2, Amount: 200_000}, got.PaymentMethodBreakdown["card"])
	assert.Equal(t, domain.MethodStats{Count: 1, Amount: 0}, got.PaymentMethodBreakdown["bank_transfer"])

	window.SellerID = "seller-1"
	got, err = svc.GetAnalytics(ctx, window)
	require.NoError(t, err)
	assert.Equal(t, int64(2), got.TotalTransactions)
	assert.InDelta(t, 0.5, got.SuccessRate, 0.00001)

	empty, err := svc.GetAnalytics(ctx, domain.Request{Start: harness.Start.Add(time.Hour), End: harness.Start.Add(2 * time.Hour)})
	require.NoError(t, err)
	assert.Zero(t, empty.TotalTransactions)
	assert.Zero(t, empty.SuccessRate)
}

func TestAnalyticsRejectsInvertedRange(t *testing.T) {
	e := harness.New(t)
	svc := service.NewService(service.Params{DB: e.DB, Log: zap.NewNop(), Settlement: e.Settlement})

	_, err := svc.GetAnalytics(context.Background(), domain.Request{Start: harness.Start, End: harness.Start})
	require.ErrorIs(t, err, domain.ErrInvalidRange)
	_, err = svc.GetAnalytics(context.Background(), domain.Request{End: harness.Start})
	require.ErrorIs(t, err, domain.ErrInvalidRange)
}
