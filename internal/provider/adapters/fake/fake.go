// Package fake provides scriptable in-memory provider adapters for tests and local runs.
package fake

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/smallbiznis/settlement/internal/provider/domain"
)

type Op string

const (
	OpInitialize   Op = "initialize"
	OpVerify       Op = "verify"
	OpRefund       Op = "refund"
	OpVerifyRefund Op = "verify_refund"
	OpExecute      Op = "execute"
	OpVerifyPayout Op = "verify_payout"
)

type script struct {
	mu       sync.Mutex
	name     string
	failures map[Op][]error
	blocked  map[Op]bool
	results  map[string]domain.VerifyResult
	calls    map[Op]int
	fallback domain.Status
	// async makes refunds and payouts report pending until verified.
	async bool
}

func newScript(name string, fallback domain.Status, async bool) *script {
	return &script{
		name:     name,
		failures: map[Op][]error{},
		blocked:  map[Op]bool{},
		results:  map[string]domain.VerifyResult{},
		calls:    map[Op]int{},
		fallback: fallback,
		async:    async,
	}
}

// FailNext queues errors returned by the next calls of op, in order.
func (s *script) FailNext(op Op, errs ...error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[op] = append(s.failures[op], errs...)
}

// Block makes op wait until its context ends, simulating a provider timeout.
func (s *script) Block(op Op, blocked bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blocked[op] = blocked
}

// SetStatus fixes what verification reports for our reference.
func (s *script) SetStatus(reference string, status domain.Status, reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results[reference] = domain.VerifyResult{
		Status:            status,
		ExternalReference: s.externalRef(reference),
		FailureReason:     reason,
	}
}

func (s *script) Calls(op Op) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[op]
}

func (s *script) Name() string { return s.name }

func (s *script) externalRef(reference string) string {
	return s.name + "_" + strings.ToLower(reference)
}

func (s *script) begin(ctx context.Context, op Op) error {
	s.mu.Lock()
	s.calls[op]++
	blocked := s.blocked[op]
	var err error
	if queue := s.failures[op]; len(queue) > 0 {
		err = queue[0]
		s.failures[op] = queue[1:]
	}
	s.mu.Unlock()

	if blocked {
		<-ctx.Done()
		return ctx.Err()
	}
	return err
}

func (s *script) verify(ctx context.Context, op Op, req domain.VerifyRequest) (domain.VerifyResult, error) {
	if err := s.begin(ctx, op); err != nil {
		return domain.VerifyResult{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if res, ok := s.results[req.Reference]; ok {
		return res, nil
	}
	return domain.VerifyResult{Status: s.fallback, ExternalReference: s.externalRef(req.Reference)}, nil
}

func (s *script) asyncStatus(reference string) domain.Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	if res, ok := s.results[reference]; ok {
		return res.Status
	}
	if s.async {
		return domain.StatusPending
	}
	return s.fallback
}

// Payment is a PaymentAdapter whose verification completes by default.
type Payment struct {
	*script
}

func NewPayment(name string) *Payment {
	return &Payment{script: newScript(name, domain.StatusCompleted, false)}
}

// NewAsyncPayment reports refunds as pending until verified.
func NewAsyncPayment(name string) *Payment {
	return &Payment{script: newScript(name, domain.StatusCompleted, true)}
}

func (p *Payment) Initialize(ctx context.Context, req domain.PaymentRequest) (domain.PaymentInitResult, error) {
	if err := p.begin(ctx, OpInitialize); err != nil {
		return domain.PaymentInitResult{}, err
	}
	if req.Amount <= 0 {
		return domain.PaymentInitResult{}, domain.Rejected(p.name, "amount must be positive")
	}
	ext := p.externalRef(req.Reference)
	return domain.PaymentInitResult{ExternalReference: ext, ProviderTransactionID: "ptx_" + ext}, nil
}

func (p *Payment) Verify(ctx context.Context, req domain.VerifyRequest) (domain.VerifyResult, error) {
	return p.verify(ctx, OpVerify, req)
}

func (p *Payment) Refund(ctx context.Context, req domain.RefundRequest) (domain.RefundResult, error) {
	if err := p.begin(ctx, OpRefund); err != nil {
		return domain.RefundResult{}, err
	}
	return domain.RefundResult{ExternalReference: p.externalRef(req.Reference), Status: p.asyncStatus(req.Reference)}, nil
}

func (p *Payment) VerifyRefund(ctx context.Context, req domain.VerifyRequest) (domain.VerifyResult, error) {
	return p.verify(ctx, OpVerifyRefund, req)
}

// ParseCallback accepts an unsigned JSON body:
// {"kind":"payment","reference":"...","external_reference":"...","status":"completed"}.
func (p *Payment) ParseCallback(payload []byte, _ http.Header) (domain.Callback, error) {
	return parseCallback(payload)
}

// Payout is a PayoutAdapter. By default Execute is accepted asynchronously and
// verification completes.
type Payout struct {
	*script
}

func NewPayout(name string) *Payout {
	return &Payout{script: newScript(name, domain.StatusCompleted, true)}
}

// NewSyncPayout completes payouts inside Execute.
func NewSyncPayout(name string) *Payout {
	return &Payout{script: newScript(name, domain.StatusCompleted, false)}
}

func (p *Payout) Execute(ctx context.Context, req domain.PayoutRequest) (domain.PayoutResult, error) {
	if err := p.begin(ctx, OpExecute); err != nil {
		return domain.PayoutResult{}, err
	}
	if req.Amount <= 0 {
		return domain.PayoutResult{}, domain.Rejected(p.name, "amount must be positive")
	}
	return domain.PayoutResult{ExternalReference: p.externalRef(req.Reference), Status: p.asyncStatus(req.Reference)}, nil
}

func (p *Payout) Verify(ctx context.Context, req domain.VerifyRequest) (domain.VerifyResult, error) {
	return p.verify(ctx, OpVerifyPayout, req)
}

func (p *Payout) ParseCallback(payload []byte, _ http.Header) (domain.Callback, error) {
	return parseCallback(payload)
}

type callbackBody struct {
	Kind              string `json:"kind"`
	Reference         string `json:"reference"`
	ExternalReference string `json:"external_reference"`
	Status            string `json:"status"`
}

func parseCallback(payload []byte) (domain.Callback, error) {
	var body callbackBody
	if err := json.Unmarshal(payload, &body); err != nil {
		return domain.Callback{}, fmt.Errorf("%w: %v", domain.ErrInvalidCallback, err)
	}
	kind := domain.CallbackKind(strings.ToLower(strings.TrimSpace(body.Kind)))
	switch kind {
	case domain.CallbackPayment, domain.CallbackRefund, domain.CallbackPayout:
	default:
		return domain.Callback{}, fmt.Errorf("%w: unknown kind %q", domain.ErrInvalidCallback, body.Kind)
	}
	if body.Reference == "" && body.ExternalReference == "" {
		return domain.Callback{}, fmt.Errorf("%w: missing reference", domain.ErrInvalidCallback)
	}
	return domain.Callback{
		Kind:              kind,
		Reference:         body.Reference,
		ExternalReference: body.ExternalReference,
		Status:            domain.ParseStatus(body.Status),
	}, nil
}

var (
	_ domain.PaymentAdapter = (*Payment)(nil)
	_ domain.PayoutAdapter  = (*Payout)(nil)
	_ domain.CallbackParser = (*Payment)(nil)
)
