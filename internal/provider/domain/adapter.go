package domain

import (
	"context"
	"net/http"
	"strings"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// ParseStatus maps the vocabulary gateways commonly use onto Status. Anything it
// does not recognise is treated as still pending.
func ParseStatus(raw string) Status {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "completed", "succeeded", "success", "successful", "paid", "settled":
		return StatusCompleted
	case "failed", "declined", "rejected", "reversed", "abandoned", "cancelled", "canceled":
		return StatusFailed
	default:
		return StatusPending
	}
}

type PaymentRequest struct {
	Reference     string            `json:"reference"`
	Amount        int64             `json:"amount"`
	Currency      string            `json:"currency"`
	PaymentMethod string            `json:"payment_method"`
	PayerID       string            `json:"payer_id"`
	Description   string            `json:"description,omitempty"`
	Metadata      map[string]string `json:"metadata,omitempty"`
}

type PaymentInitResult struct {
	ExternalReference     string
	ProviderTransactionID string
}

// VerifyRequest identifies a record at the provider. ExternalReference may be empty
// when the initialize call never returned; adapters then look up by Reference.
type VerifyRequest struct {
	Reference         string
	ExternalReference string
}

type VerifyResult struct {
	Status            Status
	ExternalReference string
	FailureReason     string
}

type RefundRequest struct {
	Reference                string `json:"reference"`
	PaymentExternalReference string `json:"payment_reference"`
	Amount                   int64  `json:"amount"`
	Currency                 string `json:"currency"`
	Reason                   string `json:"reason,omitempty"`
}

type RefundResult struct {
	ExternalReference string
	Status            Status
}

type PayoutRequest struct {
	Reference string            `json:"reference"`
	SellerID  string            `json:"seller_id"`
	Amount    int64             `json:"amount"`
	Currency  string            `json:"currency"`
	Method    string            `json:"method"`
	Account   map[string]string `json:"account"`
}

// PayoutResult reports a synchronous completion when Status is completed; otherwise
// the outcome arrives through Verify or a callback.
type PayoutResult struct {
	ExternalReference string
	Status            Status
}

type PaymentAdapter interface {
	Name() string
	Initialize(ctx context.Context, req PaymentRequest) (PaymentInitResult, error)
	Verify(ctx context.Context, req VerifyRequest) (VerifyResult, error)
	Refund(ctx context.Context, req RefundRequest) (RefundResult, error)
	VerifyRefund(ctx context.Context, req VerifyRequest) (VerifyResult, error)
}

type PayoutAdapter interface {
	Name() string
	Execute(ctx context.Context, req PayoutRequest) (PayoutResult, error)
	Verify(ctx context.Context, req VerifyRequest) (VerifyResult, error)
}

type CallbackKind string

const (
	CallbackPayment CallbackKind = "payment"
	CallbackRefund  CallbackKind = "refund"
	CallbackPayout  CallbackKind = "payout"
)

// Callback is a provider notification after signature checks. Status is a hint;
// the engine always re-verifies before acting on it.
type Callback struct {
	Kind              CallbackKind
	Reference         string
	ExternalReference string
	Status            Status
}

// CallbackParser is implemented by adapters that accept webhooks.
type CallbackParser interface {
	ParseCallback(payload []byte, headers http.Header) (Callback, error)
}
