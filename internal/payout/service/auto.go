package service

import (
	"context"
	"errors"
	"time"

	balancedomain "github.com/smallbiznis/settlement/internal/balance/domain"
	"github.com/smallbiznis/settlement/internal/money"
	"github.com/smallbiznis/settlement/internal/payout/domain"
	"github.com/smallbiznis/settlement/internal/reference"
	"go.uber.org/zap"
)

// RunAutoPayouts pays out default accounts opted into automatic payouts whose last
// payout is older than the configured frequency. Only credits past the holding
// period count, amounts below the minimum are skipped and amounts above the
// maximum are capped. One account failing does not stop the run.
func (s *Service) RunAutoPayouts(ctx context.Context, now time.Time, limit int) (domain.AutoRunResult, error) {
	snap := s.settlement.Current()
	policy := snap.Payout.Policy
	result := domain.AutoRunResult{PayoutIDs: []string{}}
	if !policy.AutoPayoutEnabled {
		return result, nil
	}
	accounts, err := s.repo.ListAutoPayoutAccounts(ctx, s.db, limit)
	if err != nil {
		return result, err
	}
	result.BatchReference = s.refs.New(reference.PrefixBatch)
	cutoff := policy.HoldingCutoff(now)

	for _, account := range accounts {
		if ctx.Err() != nil {
			return result, ctx.Err()
		}
		result.Considered++
		log := s.log.With(
			zap.String("batch", result.BatchReference),
			zap.String("seller_id", account.SellerID),
			zap.String("currency", account.Currency),
		)

		var last time.Time
		if account.LastPayoutAt != nil {
			last = *account.LastPayoutAt
		}
		if !policy.Frequency.Due(last, now) {
			result.Skipped++
			continue
		}
		busy, err := s.repo.HasOpenPayout(ctx, s.db, account.SellerID, account.Currency)
		if err != nil {
			return result, err
		}
		if busy {
			result.Skipped++
			continue
		}
		eligible, err := s.balance.EligibleForPayout(ctx, account.SellerID, account.Currency, cutoff)
		if err != nil {
			return result, err
		}
		if eligible <= 0 || eligible < policy.MinimumAmount {
			result.Skipped++
			continue
		}
		amount := eligible
		if policy.MaximumAmount > 0 {
			amount = money.Min(amount, policy.MaximumAmount)
		}

		p, err := s.create(ctx, domain.CreateRequest{
			SellerID:  account.SellerID,
			Currency:  account.Currency,
			Amount:    &amount,
			AccountID: account.ID,
		}, createOptions{cutoff: &cutoff, automatic: true, batch: result.BatchReference})
		switch {
		case err == nil:
			result.Created++
			result.PayoutIDs = append(result.PayoutIDs, p.ID.String())
		case errors.Is(err, domain.ErrInvalidPayoutAmount), errors.Is(err, balancedomain.ErrInsufficientBalance):
			log.Info("auto payout skipped", zap.Int64("amount", amount), zap.Error(err))
			result.Skipped++
		default:
			log.Warn("auto payout failed", zap.Int64("amount", amount), zap.Error(err))
			result.Failed++
		}
	}
	return result, nil
}
