package domain

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/smallbiznis/settlement/internal/money"
)

// Split divides amount between the platform and the seller. Seller-borne fees are
// carved out of the seller side so that
// commission + seller payout + sum(additional fees) == amount holds exactly.
func Split(amount int64, seller SellerContext, cfg Configuration, sellerBorne []AdditionalFee) (Snapshot, error) {
	if amount <= 0 {
		return Snapshot{}, ErrInvalidAmount
	}

	commission := money.Percent(amount, cfg.PlatformCommissionPercentage) + cfg.PlatformCommissionFixed
	if override, ok := cfg.Rates()[strings.TrimSpace(seller.UserType)]; ok {
		commission = money.Max(
			money.Percent(amount, override.Percentage)+override.Fixed,
			override.MinimumCommission,
		)
	}
	commission = money.Max(commission, cfg.MinimumCommission)

	payout := amount - commission
	if payout < 0 {
		return Snapshot{}, fmt.Errorf("%w: commission %d exceeds amount %d", ErrInvalidSplitConfiguration, commission, amount)
	}

	fees := make([]AdditionalFee, 0, len(sellerBorne))
	for _, f := range sellerBorne {
		if f.Amount <= 0 {
			continue
		}
		payout -= f.Amount
		fees = append(fees, f)
	}
	if payout < 0 {
		return Snapshot{}, fmt.Errorf("%w: seller-borne fees exceed the seller share", ErrInvalidSplitConfiguration)
	}

	return Snapshot{
		PlatformCommission: Share{
			Amount:        commission,
			Percentage:    money.ShareOf(commission, amount),
			RecipientType: RecipientTypePlatform,
		},
		SellerPayout: Share{
			Amount:        payout,
			Percentage:    money.ShareOf(payout, amount),
			RecipientID:   seller.SellerID,
			RecipientType: RecipientTypeSeller,
		},
		AdditionalFees:       fees,
		ConfigurationID:      cfg.ID,
		ConfigurationVersion: cfg.Version,
	}, nil
}

// Validate checks a configuration before it is persisted.
func (c Configuration) Validate() error {
	if strings.TrimSpace(c.Name) == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidConfiguration)
	}
	if !validPercentage(c.PlatformCommissionPercentage) {
		return fmt.Errorf("%w: platform commission percentage out of range", ErrInvalidConfiguration)
	}
	if c.PlatformCommissionFixed < 0 || c.MinimumCommission < 0 {
		return fmt.Errorf("%w: negative commission amounts", ErrInvalidConfiguration)
	}
	for role, rate := range c.Rates() {
		if strings.TrimSpace(role) == "" {
			return fmt.Errorf("%w: empty user type", ErrInvalidConfiguration)
		}
		if !validPercentage(rate.Percentage) || rate.Fixed < 0 || rate.MinimumCommission < 0 {
			return fmt.Errorf("%w: invalid rate for user type %s", ErrInvalidConfiguration, role)
		}
	}
	return nil
}

var hundred = decimal.NewFromInt(100)

func validPercentage(p decimal.Decimal) bool {
	return !p.IsNegative() && p.LessThanOrEqual(hundred)
}

// PlatformOnly is the split of a sale with no seller: the platform keeps everything
// but the seller-borne fees, which it bears itself.
func PlatformOnly(amount int64, cfg Configuration, fees []AdditionalFee) (Snapshot, error) {
	if amount <= 0 {
		return Snapshot{}, ErrInvalidAmount
	}
	kept := make([]AdditionalFee, 0, len(fees))
	commission := amount
	for _, f := range fees {
		if f.Amount <= 0 {
			continue
		}
		commission -= f.Amount
		kept = append(kept, f)
	}
	if commission < 0 {
		return Snapshot{}, fmt.Errorf("%w: fees exceed the amount", ErrInvalidSplitConfiguration)
	}
	return Snapshot{
		PlatformCommission:   Share{Amount: commission, Percentage: money.ShareOf(commission, amount), RecipientType: RecipientTypePlatform},
		SellerPayout:         Share{Amount: 0, Percentage: decimal.Zero, RecipientType: RecipientTypeSeller},
		AdditionalFees:       kept,
		ConfigurationID:      cfg.ID,
		ConfigurationVersion: cfg.Version,
	}, nil
}

// Reversal is the part of a split taken back by one refund.
type Reversal struct {
	SellerPayout int64 `json:"sellerPayout"`
	Commission   int64 `json:"commission"`
	Fees         int64 `json:"fees"`
}

// Reverse computes the reversal of refund against a split of amount. prior is what
// earlier refunds already reversed. Shares are pro-rata; the refund that completes the
// full amount takes the exact remainders, so a full refund reverses exactly what the
// split credited.
func Reverse(s Snapshot, amount, refund int64, prior Reversal) (Reversal, error) {
	refunded := prior.SellerPayout + prior.Commission + prior.Fees
	if amount <= 0 || refund <= 0 || refunded+refund > amount {
		return Reversal{}, ErrInvalidAmount
	}
	fees := s.AdditionalFeesTotal()
	if refunded+refund == amount {
		return Reversal{
			SellerPayout: s.SellerPayout.Amount - prior.SellerPayout,
			Commission:   s.PlatformCommission.Amount - prior.Commission,
			Fees:         fees - prior.Fees,
		}, nil
	}

	r := Reversal{
		Commission: money.ProRata(s.PlatformCommission.Amount, refund, amount),
		Fees:       money.ProRata(fees, refund, amount),
	}
	r.Commission = money.Min(r.Commission, s.PlatformCommission.Amount-prior.Commission)
	r.Fees = money.Min(r.Fees, fees-prior.Fees)
	r.SellerPayout = refund - r.Commission - r.Fees
	if over := r.SellerPayout - (s.SellerPayout.Amount - prior.SellerPayout); over > 0 {
		r.SellerPayout -= over
		r.Commission += over
	}
	if r.SellerPayout < 0 {
		r.Commission += r.SellerPayout
		r.SellerPayout = 0
	}
	return r, nil
}
