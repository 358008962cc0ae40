package domain

import (
	"context"
	"errors"
	"time"
)

var ErrInvalidRange = errors.New("invalid_date_range")

// Request selects payment transactions initiated in [Start, End).
type Request struct {
	Start    time.Time
	End      time.Time
	SellerID string
}

type MethodStats struct {
	Count  int64 `json:"count"`
	Amount int64 `json:"amount"`
}

// Analytics amounts are base-currency minor units of completed payments only.
type Analytics struct {
	Start                  time.Time              `json:"startDate"`
	End                    time.Time              `json:"endDate"`
	SellerID               string                 `json:"sellerId,omitempty"`
	BaseCurrency           string                 `json:"baseCurrency"`
	TotalTransactions      int64                  `json:"totalTransactions"`
	CompletedTransactions  int64                  `json:"completedTransactions"`
	SuccessRate            float64                `json:"successRate"`
	TotalRevenue           int64                  `json:"totalRevenue"`
	PlatformRevenue        int64                  `json:"platformRevenue"`
	SellerRevenue          int64                  `json:"sellerRevenue"`
	PaymentMethodBreakdown map[string]MethodStats `json:"paymentMethodBreakdown"`
}

// Service is read-only.
type Service interface {
	GetAnalytics(ctx context.Context, req Request) (Analytics, error)
}
