package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/smallbiznis/settlement/internal/money"
)

// MethodFee is the payout-rail charge for one method.
type MethodFee struct {
	Method     string
	Percentage decimal.Decimal
	Fixed      int64
	MinFee     *int64
	MaxFee     *int64
}

type FeeTable map[string]MethodFee

func NewFeeTable(fees []MethodFee) (FeeTable, error) {
	table := make(FeeTable, len(fees))
	for _, f := range fees {
		method := NormalizeMethod(f.Method)
		if method == "" {
			return nil, fmt.Errorf("%w: payout fee without method", ErrInvalidPayoutConfig)
		}
		if _, dup := table[method]; dup {
			return nil, fmt.Errorf("%w: duplicate payout fee for %s", ErrInvalidPayoutConfig, method)
		}
		if f.Percentage.IsNegative() || f.Fixed < 0 {
			return nil, fmt.Errorf("%w: negative payout fee for %s", ErrInvalidPayoutConfig, method)
		}
		if f.MinFee != nil && f.MaxFee != nil && *f.MinFee > *f.MaxFee {
			return nil, fmt.Errorf("%w: min fee above max fee for %s", ErrInvalidPayoutConfig, method)
		}
		f.Method = method
		table[method] = f
	}
	return table, nil
}

// Compute returns the fee charged for moving amount over method.
func (t FeeTable) Compute(method string, amount int64) (int64, error) {
	f, ok := t[NormalizeMethod(method)]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrUnsupportedPayoutMethod, method)
	}
	fee := money.Percent(amount, f.Percentage) + f.Fixed
	if f.MinFee != nil && fee < *f.MinFee {
		fee = *f.MinFee
	}
	if f.MaxFee != nil && fee > *f.MaxFee {
		fee = *f.MaxFee
	}
	return fee, nil
}

func NormalizeMethod(method string) string {
	return strings.ToLower(strings.TrimSpace(method))
}

type Frequency string

const (
	FrequencyDaily   Frequency = "daily"
	FrequencyWeekly  Frequency = "weekly"
	FrequencyMonthly Frequency = "monthly"
)

func ParseFrequency(raw string) (Frequency, error) {
	switch f := Frequency(strings.ToLower(strings.TrimSpace(raw))); f {
	case FrequencyDaily, FrequencyWeekly, FrequencyMonthly:
		return f, nil
	case "":
		return FrequencyWeekly, nil
	default:
		return "", fmt.Errorf("%w: unknown payout frequency %q", ErrInvalidPayoutConfig, raw)
	}
}

// Due reports whether a new automatic payout may be made when the previous one
// happened at last. A zero last means no payout was ever made.
func (f Frequency) Due(last, now time.Time) bool {
	if last.IsZero() {
		return true
	}
	var next time.Time
	switch f {
	case FrequencyDaily:
		next = last.AddDate(0, 0, 1)
	case FrequencyMonthly:
		next = last.AddDate(0, 1, 0)
	default:
		next = last.AddDate(0, 0, 7)
	}
	return !now.Before(next)
}

// SchedulePolicy drives automatic payouts.
type SchedulePolicy struct {
	AutoPayoutEnabled bool
	Frequency         Frequency
	MinimumAmount     int64
	MaximumAmount     int64
	HoldingPeriodDays int
}

func (p SchedulePolicy) Validate() error {
	if p.MinimumAmount < 0 || p.MaximumAmount < 0 || p.HoldingPeriodDays < 0 {
		return fmt.Errorf("%w: negative payout policy values", ErrInvalidPayoutConfig)
	}
	if p.MaximumAmount > 0 && p.MaximumAmount < p.MinimumAmount {
		return fmt.Errorf("%w: maximum amount below minimum", ErrInvalidPayoutConfig)
	}
	return nil
}

// HoldingCutoff is the newest credit time eligible for an automatic payout at now.
func (p SchedulePolicy) HoldingCutoff(now time.Time) time.Time {
	return now.AddDate(0, 0, -p.HoldingPeriodDays)
}
