// Package httpgateway talks to a generic REST payment and payout gateway.
//
// Every call goes through a circuit breaker. Transport errors, 429 and 5xx answers
// are transient (ErrProviderUnavailable); other 4xx answers are terminal
// (ErrProviderRejected). An open breaker fails fast as unavailable. Timeouts keep
// context.DeadlineExceeded in their chain because the call may have landed.
package httpgateway

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/smallbiznis/settlement/internal/provider/domain"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

type Config struct {
	Name          string
	BaseURL       string
	APIKey        string
	WebhookSecret string
	// Timeout bounds calls whose context carries no deadline. A caller
	// deadline takes precedence.
	Timeout       time.Duration

	// Breaker trips after FailureThreshold consecutive transient failures and
	// probes again after OpenTimeout.
	FailureThreshold uint32
	OpenTimeout      time.Duration
}

type Gateway struct {
	name          string
	client        *resty.Client
	breaker       *gobreaker.CircuitBreaker
	webhookSecret string
	timeout       time.Duration
	now           func() time.Time
	log           *zap.Logger
}

func New(cfg Config, log *zap.Logger) (*Gateway, error) {
	name := strings.ToLower(strings.TrimSpace(cfg.Name))
	if name == "" || strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, errors.New("httpgateway: name and base url are required")
	}
	if log == nil {
		log = zap.NewNop()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	threshold := cfg.FailureThreshold
	if threshold == 0 {
		threshold = 5
	}
	openTimeout := cfg.OpenTimeout
	if openTimeout <= 0 {
		openTimeout = 30 * time.Second
	}

	g := &Gateway{
		name:          name,
		webhookSecret: cfg.WebhookSecret,
		timeout:       timeout,
		now:           time.Now,
		log:           log.Named("provider." + name),
	}
	g.client = resty.New().
		SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
		SetRetryCount(0).
		SetHeader("Accept", "application/json").
		SetHeader("Content-Type", "application/json")
	if cfg.APIKey != "" {
		g.client.SetAuthToken(cfg.APIKey)
	}
	g.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Timeout:     openTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		// Rejections are the gateway answering correctly and do not trip the breaker.
		// Timeouts do.
		IsSuccessful: func(err error) bool {
			return err == nil || !(domain.IsTransient(err) || errors.Is(err, context.DeadlineExceeded))
		},
		OnStateChange: func(breaker string, from, to gobreaker.State) {
			g.log.Warn("provider circuit state changed",
				zap.String("circuit", breaker),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})
	return g, nil
}

func (g *Gateway) Name() string { return g.name }

// State exposes the breaker state for health reporting.
func (g *Gateway) State() string { return g.breaker.State().String() }

type chargeResponse struct {
	ID            string `json:"id"`
	Reference     string `json:"reference"`
	Status        string `json:"status"`
	FailureReason string `json:"failure_reason"`
	TransactionID string `json:"transaction_id"`
}

type errorResponse struct {
	Message string `json:"message"`
	Error   string `json:"error"`
}

func (g *Gateway) Initialize(ctx context.Context, req domain.PaymentRequest) (domain.PaymentInitResult, error) {
	var out chargeResponse
	if err := g.call(ctx, http.MethodPost, "/payments", req, &out); err != nil {
		return domain.PaymentInitResult{}, err
	}
	if out.ID == "" {
		return domain.PaymentInitResult{}, domain.Unavailable(g.name, "initialize response without id")
	}
	return domain.PaymentInitResult{ExternalReference: out.ID, ProviderTransactionID: out.TransactionID}, nil
}

func (g *Gateway) Verify(ctx context.Context, req domain.VerifyRequest) (domain.VerifyResult, error) {
	return g.lookup(ctx, "/payments", req)
}

func (g *Gateway) Refund(ctx context.Context, req domain.RefundRequest) (domain.RefundResult, error) {
	var out chargeResponse
	if err := g.call(ctx, http.MethodPost, "/refunds", req, &out); err != nil {
		return domain.RefundResult{}, err
	}
	return domain.RefundResult{ExternalReference: out.ID, Status: domain.ParseStatus(out.Status)}, nil
}

func (g *Gateway) VerifyRefund(ctx context.Context, req domain.VerifyRequest) (domain.VerifyResult, error) {
	return g.lookup(ctx, "/refunds", req)
}

func (g *Gateway) Execute(ctx context.Context, req domain.PayoutRequest) (domain.PayoutResult, error) {
	var out chargeResponse
	if err := g.call(ctx, http.MethodPost, "/payouts", req, &out); err != nil {
		return domain.PayoutResult{}, err
	}
	return domain.PayoutResult{ExternalReference: out.ID, Status: domain.ParseStatus(out.Status)}, nil
}

// payoutView adapts Gateway to PayoutAdapter, whose Verify looks up payouts.
type payoutView struct {
	*Gateway
}

func (p payoutView) Verify(ctx context.Context, req domain.VerifyRequest) (domain.VerifyResult, error) {
	return p.lookup(ctx, "/payouts", req)
}

// Payouts returns the payout side of the gateway.
func (g *Gateway) Payouts() domain.PayoutAdapter {
	return payoutView{Gateway: g}
}

func (g *Gateway) lookup(ctx context.Context, collection string, req domain.VerifyRequest) (domain.VerifyResult, error) {
	path := collection + "/" + req.ExternalReference
	if req.ExternalReference == "" {
		path = collection + "/by-reference/" + req.Reference
	}
	var out chargeResponse
	if err := g.call(ctx, http.MethodGet, path, nil, &out); err != nil {
		return domain.VerifyResult{}, err
	}
	ext := out.ID
	if ext == "" {
		ext = req.ExternalReference
	}
	return domain.VerifyResult{
		Status:            domain.ParseStatus(out.Status),
		ExternalReference: ext,
		FailureReason:     out.FailureReason,
	}, nil
}

func (g *Gateway) call(ctx context.Context, method, path string, body any, out any) error {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}
	_, err := g.breaker.Execute(func() (interface{}, error) {
		r := g.client.R().SetContext(ctx).SetResult(out).SetError(&errorResponse{})
		if body != nil {
			r.SetBody(body)
		}
		resp, err := r.Execute(method, path)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			if isTimeout(err) {
				return nil, fmt.Errorf("%s: %w (%w)", g.name, context.DeadlineExceeded, err)
			}
			return nil, domain.Unavailable(g.name, err.Error())
		}
		return nil, g.classify(resp)
	})
	switch {
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		return domain.Unavailable(g.name, "circuit open")
	case err != nil:
		return err
	}
	return nil
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

func (g *Gateway) classify(resp *resty.Response) error {
	status := resp.StatusCode()
	if status < http.StatusBadRequest {
		return nil
	}
	reason := fmt.Sprintf("http %d", status)
	if e, ok := resp.Error().(*errorResponse); ok {
		if msg := strings.TrimSpace(e.Message); msg != "" {
			reason = msg
		} else if msg := strings.TrimSpace(e.Error); msg != "" {
			reason = msg
		}
	}
	if status == http.StatusTooManyRequests || status >= http.StatusInternalServerError {
		return domain.Unavailable(g.name, reason)
	}
	return domain.Rejected(g.name, reason)
}

var (
	_ domain.PaymentAdapter = (*Gateway)(nil)
	_ domain.CallbackParser = (*Gateway)(nil)
)
