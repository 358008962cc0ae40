package metricspush

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang/snappy"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/prometheus/prompb"
	"github.com/smallbiznis/settlement/internal/config"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/protoadapt"
)

func TestRemoteWritePushesCountersAndGauges(t *testing.T) {
	registry := prometheus.NewRegistry()
	counter := prometheus.NewCounter(prometheus.CounterOpts{Name: "settled_total"})
	gauge := prometheus.NewGauge(prometheus.GaugeOpts{Name: "open_payouts"})
	hist := prometheus.NewHistogram(prometheus.HistogramOpts{Name: "latency_seconds"})
	registry.MustRegister(counter, gauge, hist)
	counter.Add(3)
	gauge.Set(2)
	hist.Observe(0.2)

	var got prompb.WriteRequest
	var auth, encoding string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		encoding = r.Header.Get("Content-Encoding")
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		raw, err := snappy.Decode(nil, body)
		require.NoError(t, err)
		require.NoError(t, proto.Unmarshal(raw, protoadapt.MessageV2Of(&got)))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	p := NewRemoteWritePusher(srv.URL, "secret")
	p.now = func() time.Time { return time.UnixMilli(1700000000000) }
	require.NoError(t, p.Push(context.Background(), registry))

	require.Equal(t, "Bearer secret", auth)
	require.Equal(t, "snappy", encoding)
	require.Len(t, got.Timeseries, 2)
	values := map[string]float64{}
	for _, ts := range got.Timeseries {
		require.Equal(t, "__name__", ts.Labels[0].Name)
		require.Equal(t, int64(1700000000000), ts.Samples[0].Timestamp)
		values[ts.Labels[0].Value] = ts.Samples[0].Value
	}
	require.Equal(t, map[string]float64{"settled_total": 3, "open_payouts": 2}, values)
}

func TestRemoteWriteReportsBadStatus(t *testing.T) {
	registry := prometheus.NewRegistry()
	c := prometheus.NewCounter(prometheus.CounterOpts{Name: "x_total"})
	registry.MustRegister(c)
	c.Inc()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	err := NewRemoteWritePusher(srv.URL, "").Push(context.Background(), registry)
	require.ErrorContains(t, err, "502")
}

func TestNewPusherDisabledOrMisconfigured(t *testing.T) {
	log := zap.NewNop()
	require.Nil(t, NewPusher(config.Config{}, log))

	cfg := config.Config{MetricsPush: config.MetricsPushConfig{Enabled: true}}
	require.Nil(t, NewPusher(cfg, log))

	cfg.MetricsPush.Endpoint = "http://gateway:9091"
	cfg.MetricsPush.Exporter = "statsd"
	require.Nil(t, NewPusher(cfg, log))

	cfg.MetricsPush.Exporter = ExporterPushgateway
	cfg.MetricsPush.Job = "settlement"
	require.IsType(t, &PushgatewayPusher{}, NewPusher(cfg, log))

	cfg.MetricsPush.Exporter = ExporterRemoteWrite
	require.IsType(t, &RemoteWritePusher{}, NewPusher(cfg, log))
}
