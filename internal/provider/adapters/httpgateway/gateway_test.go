package httpgateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/smallbiznis/settlement/internal/provider/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func newGateway(t *testing.T, handler http.HandlerFunc) *Gateway {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	g, err := New(Config{
		Name:             "Gateway",
		BaseURL:          srv.URL,
		APIKey:           "sk_test",
		WebhookSecret:    "whsec",
		Timeout:          2 * time.Second,
		FailureThreshold: 2,
		OpenTimeout:      time.Minute,
	}, zaptest.NewLogger(t))
	require.NoError(t, err)
	return g
}

func TestInitializeSendsReferenceAndAuth(t *testing.T) {
	g := newGateway(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/payments", r.URL.Path)
		assert.Equal(t, "Bearer sk_test", r.Header.Get("Authorization"))

		var body domain.PaymentRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "TXN_1", body.Reference)
		assert.Equal(t, int64(107500), body.Amount)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"gw_123","transaction_id":"tx_9","status":"pending"}`))
	})

	res, err := g.Initialize(context.Background(), domain.PaymentRequest{Reference: "TXN_1", Amount: 107500, Currency: "NGN"})
	require.NoError(t, err)
	assert.Equal(t, "gw_123", res.ExternalReference)
	assert.Equal(t, "tx_9", res.ProviderTransactionID)
	assert.Equal(t, "gateway", g.Name())
}

func TestVerifyFallsBackToReferenceLookup(t *testing.T) {
	g := newGateway(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/payments/by-reference/TXN_2", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"gw_2","status":"declined","failure_reason":"do not honor"}`))
	})

	res, err := g.Verify(context.Background(), domain.VerifyRequest{Reference: "TXN_2"})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusFailed, res.Status)
	assert.Equal(t, "gw_2", res.ExternalReference)
	assert.Equal(t, "do not honor", res.FailureReason)
}

func TestPayoutViewVerifiesPayouts(t *testing.T) {
	g := newGateway(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/payouts/po_1", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"po_1","status":"paid"}`))
	})

	res, err := g.Payouts().Verify(context.Background(), domain.VerifyRequest{Reference: "PO_1", ExternalReference: "po_1"})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, res.Status)
}

func TestErrorClassification(t *testing.T) {
	cases := []struct {
		status int
		want   error
	}{
		{http.StatusBadRequest, domain.ErrProviderRejected},
		{http.StatusUnprocessableEntity, domain.ErrProviderRejected},
		{http.StatusTooManyRequests, domain.ErrProviderUnavailable},
		{http.StatusBadGateway, domain.ErrProviderUnavailable},
	}
	for _, tc := range cases {
		t.Run(strconv.Itoa(tc.status), func(t *testing.T) {
			g := newGateway(t, func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(`{"message":"nope"}`))
			})
			_, err := g.Refund(context.Background(), domain.RefundRequest{Reference: "RFD_1", Amount: 10})
			assert.ErrorIs(t, err, tc.want)
			assert.Equal(t, "nope", domain.Reason(err))
		})
	}
}

func TestBreakerOpensOnTransientFailuresOnly(t *testing.T) {
	var hits atomic.Int32
	var status atomic.Int32
	status.Store(http.StatusBadRequest)
	g := newGateway(t, func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(int(status.Load()))
	})
	ctx := context.Background()
	req := domain.PayoutRequest{Reference: "PO_1", Amount: 1000}

	for i := 0; i < 3; i++ {
		_, err := g.Execute(ctx, req)
		assert.ErrorIs(t, err, domain.ErrProviderRejected)
	}
	assert.Equal(t, "closed", g.State())

	status.Store(http.StatusServiceUnavailable)
	for i := 0; i < 2; i++ {
		_, err := g.Execute(ctx, req)
		assert.ErrorIs(t, err, domain.ErrProviderUnavailable)
	}
	assert.Equal(t, "open", g.State())

	before := hits.Load()
	_, err := g.Execute(ctx, req)
	assert.ErrorIs(t, err, domain.ErrProviderUnavailable)
	assert.Equal(t, before, hits.Load())
}

func TestCallTimeoutKeepsDeadlineError(t *testing.T) {
	g := newGateway(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(time.Second):
		}
	})
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := g.Initialize(ctx, domain.PaymentRequest{Reference: "TXN_3"})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, "closed", g.State())
}

func slowHandler(w http.ResponseWriter, r *http.Request) {
	select {
	case <-r.Context().Done():
	case <-time.After(2 * time.Second):
	}
}

func newSlowGateway(t *testing.T, timeout time.Duration) *Gateway {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(slowHandler))
	t.Cleanup(srv.Close)
	g, err := New(Config{Name: "slow", BaseURL: srv.URL, Timeout: timeout, FailureThreshold: 5}, zaptest.NewLogger(t))
	require.NoError(t, err)
	return g
}

func TestCallerDeadlineOverridesShorterGatewayTimeout(t *testing.T) {
	g := newSlowGateway(t, 30*time.Millisecond)
	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := g.Execute(ctx, domain.PayoutRequest{Reference: "PO_9", Amount: 30000, Currency: "NGN"})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.False(t, domain.IsTransient(err), "a timed out payout may have been paid")
	assert.GreaterOrEqual(t, time.Since(start), 250*time.Millisecond)
}

func TestGatewayTimeoutWithoutDeadlineIsUnknownOutcome(t *testing.T) {
	g := newSlowGateway(t, 30*time.Millisecond)

	_, err := g.Execute(context.Background(), domain.PayoutRequest{Reference: "PO_10", Amount: 30000, Currency: "NGN"})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.False(t, domain.IsTransient(err))
	assert.NotErrorIs(t, err, domain.ErrProviderRejected)
}

type netTimeout struct{}

func (netTimeout) Error() string   { return "i/o timeout" }
func (netTimeout) Timeout() bool   { return true }
func (netTimeout) Temporary() bool { return true }

func TestIsTimeout(t *testing.T) {
	assert.True(t, isTimeout(fmt.Errorf("post: %w", context.DeadlineExceeded)))
	assert.True(t, isTimeout(&url.Error{Op: "Post", URL: "http://gw/payouts", Err: netTimeout{}}))
	assert.False(t, isTimeout(errors.New("connection refused")))
}

func TestParseCallbackVerifiesSignature(t *testing.T) {
	g := newGateway(t, func(w http.ResponseWriter, r *http.Request) {})
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	g.now = func() time.Time { return now }

	payload := []byte(`{"type":"refund.completed","data":{"id":"rf_1","reference":"RFD_1","status":"succeeded"}}`)
	ts := strconv.FormatInt(now.Unix(), 10)
	headers := http.Header{}
	headers.Set(SignatureHeader, "t="+ts+",v1="+Sign("whsec", ts, payload))

	cb, err := g.ParseCallback(payload, headers)
	require.NoError(t, err)
	assert.Equal(t, domain.CallbackRefund, cb.Kind)
	assert.Equal(t, "RFD_1", cb.Reference)
	assert.Equal(t, "rf_1", cb.ExternalReference)
	assert.Equal(t, domain.StatusCompleted, cb.Status)

	headers.Set(SignatureHeader, "t="+ts+",v1="+Sign("other", ts, payload))
	_, err = g.ParseCallback(payload, headers)
	assert.ErrorIs(t, err, domain.ErrInvalidSignature)

	stale := strconv.FormatInt(now.Add(-10*time.Minute).Unix(), 10)
	headers.Set(SignatureHeader, "t="+stale+",v1="+Sign("whsec", stale, payload))
	_, err = g.ParseCallback(payload, headers)
	assert.ErrorIs(t, err, domain.ErrInvalidSignature)
}

func TestParseCallbackRejectsUnknownEvent(t *testing.T) {
	g := newGateway(t, func(w http.ResponseWriter, r *http.Request) {})
	payload := []byte(`{"type":"customer.created","data":{"id":"c_1"}}`)
	ts := strconv.FormatInt(time.Now().Unix(), 10)
	headers := http.Header{}
	headers.Set(SignatureHeader, "t="+ts+",v1="+Sign("whsec", ts, payload))

	_, err := g.ParseCallback(payload, headers)
	assert.ErrorIs(t, err, domain.ErrInvalidCallback)
}
