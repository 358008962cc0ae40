package metrics

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func TestFilterAttributesDropsForbiddenLabels(t *testing.T) {
	attrs := FilterAttributes(
		attribute.String("provider", "fake"),
		attribute.String("seller_id", "s_1"),
		attribute.String("status", "completed"),
	)
	require.Len(t, attrs, 2)
	assert.Equal(t, attribute.Key("provider"), attrs[0].Key)
	assert.Equal(t, attribute.Key("status"), attrs[1].Key)
}

func TestRecordSettlementAddsAmount(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	m, err := New(Config{ServiceName: "settlement"}, provider)
	require.NoError(t, err)

	ctx := context.Background()
	m.RecordSettlement(ctx, "ngn", 97_500)
	m.RecordSettlement(ctx, "NGN", 2_500)

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(ctx, &rm))

	totals := map[string]int64{}
	for _, scope := range rm.ScopeMetrics {
		for _, md := range scope.Metrics {
			sum, ok := md.Data.(metricdata.Sum[int64])
			if !ok {
				continue
			}
			for _, dp := range sum.DataPoints {
				totals[md.Name] += dp.Value
			}
		}
	}
	assert.Equal(t, int64(2), totals["settlement_settlements_total"])
	assert.Equal(t, int64(100_000), totals["settlement_settled_amount_minor_total"])
}

func TestNilMetricsAreSafe(t *testing.T) {
	var m *Metrics
	m.RecordTransaction(context.Background(), "fake", "completed")
	m.RecordProviderCall(context.Background(), "fake", "verify", "ok")
}
