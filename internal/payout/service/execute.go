package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	ledgerdomain "github.com/smallbiznis/settlement/internal/ledger/domain"
	"github.com/smallbiznis/settlement/internal/lock"
	"github.com/smallbiznis/settlement/internal/payout/domain"
	"github.com/smallbiznis/settlement/internal/provider"
	providerdomain "github.com/smallbiznis/settlement/internal/provider/domain"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var open = []domain.Status{domain.StatusPending, domain.StatusProcessing}

func zapPayout(p *domain.Payout) []zap.Field {
	return []zap.Field{
		zap.String("payout_id", p.ID.String()),
		zap.String("reference", p.Reference),
		zap.String("seller_id", p.SellerID),
		zap.String("currency", p.Currency),
		zap.Int64("total_amount", p.TotalAmount),
		zap.String("status", string(p.Status)),
	}
}

func (s *Service) observe(name, operation string) func(provider.Outcome) {
	return func(o provider.Outcome) {
		s.obsMetrics.RecordProviderCall(context.Background(), name, operation, string(o))
	}
}

// submit sends a pending payout to the provider and applies the outcome.
func (s *Service) submit(ctx context.Context, id snowflake.ID) (*domain.Payout, error) {
	var (
		out    *domain.Payout
		before domain.Status
	)
	err := lock.WithLock(ctx, s.locker, lock.PayoutKey(id.String()), func(ctx context.Context) error {
		p, err := s.Get(ctx, id)
		if err != nil {
			return err
		}
		before = p.Status
		if p.Status != domain.StatusPending {
			out = p
			return nil
		}
		out, err = s.execute(ctx, p)
		return err
	})
	if err != nil {
		return nil, err
	}
	if out.Status != before {
		s.notify(ctx, out)
	}
	return out, nil
}

// execute makes exactly one provider attempt; transient failures are retried by
// the scheduler through next_attempt_at.
func (s *Service) execute(ctx context.Context, p *domain.Payout) (*domain.Payout, error) {
	adapter, err := s.providers.Payout(p.Provider)
	if err != nil {
		return nil, err
	}
	snap := s.settlement.Current()
	var res providerdomain.PayoutResult
	_, callErr := provider.Call(ctx, provider.CallPolicy{Attempts: 1, Timeout: snap.Payout.CallTimeout}, func(ctx context.Context) error {
		r, err := adapter.Execute(ctx, providerdomain.PayoutRequest{
			Reference: p.Reference,
			SellerID:  p.SellerID,
			Amount:    p.NetAmount,
			Currency:  p.Currency,
			Method:    p.Method,
			Account:   p.Account.Data(),
		})
		res = r
		return err
	}, s.observe(p.Provider, "payout"))

	ctx = context.WithoutCancel(ctx)
	now := s.clock.Now().UTC()
	switch {
	case callErr == nil && res.Status == providerdomain.StatusCompleted:
		if err := s.complete(ctx, p, res.ExternalReference, now); err != nil {
			return nil, err
		}
	case callErr == nil && res.Status == providerdomain.StatusFailed:
		if err := s.fail(ctx, p, "declined by provider", now); err != nil {
			return nil, err
		}
	case callErr == nil:
		changes := map[string]any{"processed_at": now, "updated_at": now, "next_attempt_at": nil}
		if res.ExternalReference != "" {
			changes["external_reference"] = res.ExternalReference
		}
		if _, err := s.repo.Transition(ctx, s.db, p.ID, []domain.Status{domain.StatusPending}, domain.StatusProcessing, changes); err != nil {
			return nil, err
		}
	case provider.IsUnknownOutcome(callErr):
		s.log.Warn("payout outcome unknown, awaiting verification", append(zapPayout(p), zap.Error(callErr))...)
		if _, err := s.repo.Transition(ctx, s.db, p.ID, []domain.Status{domain.StatusPending}, domain.StatusProcessing, map[string]any{
			"processed_at":    now,
			"updated_at":      now,
			"next_attempt_at": nil,
		}); err != nil {
			return nil, err
		}
	case providerdomain.IsTransient(callErr):
		if p.RetryCount+1 >= p.MaxRetries {
			if err := s.fail(ctx, p, "retries exhausted: "+providerdomain.Reason(callErr), now); err != nil {
				return nil, err
			}
			break
		}
		next := now.Add(provider.Backoff(snap.Payout.RetryBackoff, snap.Payout.MaxBackoff, p.RetryCount+1))
		if _, err := s.repo.ScheduleRetry(ctx, s.db, p.ID, next, providerdomain.Reason(callErr), now); err != nil {
			return nil, err
		}
		s.log.Info("payout retry scheduled", append(zapPayout(p), zap.Time("next_attempt_at", next), zap.Error(callErr))...)
	default:
		if err := s.fail(ctx, p, providerdomain.Reason(callErr), now); err != nil {
			return nil, err
		}
	}
	return s.Get(ctx, p.ID)
}

// complete releases the reservation and books the payout in one database
// transaction. A payout moves to completed only once.
func (s *Service) complete(ctx context.Context, p *domain.Payout, externalRef string, now time.Time) error {
	return lock.WithLock(ctx, s.locker, lock.BalanceKey(p.SellerID, p.Currency), func(ctx context.Context) error {
		return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			changes := map[string]any{"settled_at": now, "updated_at": now, "next_attempt_at": nil}
			if p.ProcessedAt == nil {
				changes["processed_at"] = now
			}
			if externalRef != "" && p.ExternalReference == nil {
				changes["external_reference"] = externalRef
			}
			ok, err := s.repo.Transition(ctx, tx, p.ID, open, domain.StatusCompleted, changes)
			if err != nil || !ok {
				return err
			}
			if _, err := s.balance.Release(ctx, tx, s.movement(p)); err != nil {
				return fmt.Errorf("release payout: %w", err)
			}
			if _, err := s.ledger.Post(ctx, tx, ledgerdomain.PostRequest{
				SourceType: ledgerdomain.SourceTypePayout,
				SourceID:   p.ID.String(),
				Currency:   p.Currency,
				OccurredAt: now,
				Lines: []ledgerdomain.Line{
					{Account: ledgerdomain.AccountSellerPayable, Direction: ledgerdomain.Debit, Amount: p.TotalAmount},
					{Account: ledgerdomain.AccountCashClearing, Direction: ledgerdomain.Credit, Amount: p.NetAmount},
					{Account: ledgerdomain.AccountFeeRevenue, Direction: ledgerdomain.Credit, Amount: p.Fees},
				},
			}); err != nil {
				return fmt.Errorf("post payout: %w", err)
			}
			if p.AccountID != nil {
				return s.repo.TouchAccount(ctx, tx, *p.AccountID, now)
			}
			return nil
		})
	})
}

// fail returns the reserved amount to available and un-sweeps the credits.
func (s *Service) fail(ctx context.Context, p *domain.Payout, reason string, now time.Time) error {
	return s.compensate(ctx, p, domain.StatusFailed, map[string]any{
		"failed_at":       now,
		"failure_reason":  reason,
		"updated_at":      now,
		"next_attempt_at": nil,
	}, open)
}

func (s *Service) compensate(ctx context.Context, p *domain.Payout, next domain.Status, changes map[string]any, from []domain.Status) error {
	items, err := s.repo.ListItems(ctx, s.db, p.ID)
	if err != nil {
		return err
	}
	return lock.WithLock(ctx, s.locker, lock.BalanceKey(p.SellerID, p.Currency), func(ctx context.Context) error {
		return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			ok, err := s.repo.Transition(ctx, tx, p.ID, from, next, changes)
			if err != nil || !ok {
				return err
			}
			if _, err := s.balance.Compensate(ctx, tx, s.movement(p), allocationsOf(items)); err != nil {
				return fmt.Errorf("compensate payout: %w", err)
			}
			return nil
		})
	})
}

// Cancel withdraws a payout the provider has not accepted yet.
func (s *Service) Cancel(ctx context.Context, id snowflake.ID, reason string) (*domain.Payout, error) {
	var out *domain.Payout
	err := lock.WithLock(ctx, s.locker, lock.PayoutKey(id.String()), func(ctx context.Context) error {
		p, err := s.Get(ctx, id)
		if err != nil {
			return err
		}
		if p.Status != domain.StatusPending {
			return domain.ErrInvalidPayoutState
		}
		now := s.clock.Now().UTC()
		changes := map[string]any{"cancelled_at": now, "updated_at": now, "next_attempt_at": nil}
		if reason = strings.TrimSpace(reason); reason != "" {
			changes["failure_reason"] = reason
		}
		if err := s.compensate(ctx, p, domain.StatusCancelled, changes, []domain.Status{domain.StatusPending}); err != nil {
			return err
		}
		out, err = s.Get(ctx, id)
		if err != nil {
			return err
		}
		if out.Status != domain.StatusCancelled {
			return domain.ErrInvalidPayoutState
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.notify(ctx, out)
	return out, nil
}

// Verify asks the provider about a processing payout. Pending payouts are still
// waiting for submission and are returned unchanged.
func (s *Service) Verify(ctx context.Context, id snowflake.ID) (*domain.Payout, error) {
	var (
		out    *domain.Payout
		before domain.Status
	)
	err := lock.WithLock(ctx, s.locker, lock.PayoutKey(id.String()), func(ctx context.Context) error {
		p, err := s.Get(ctx, id)
		if err != nil {
			return err
		}
		before = p.Status
		out = p
		if p.Status != domain.StatusProcessing {
			return nil
		}
		out, err = s.verifyLocked(ctx, p)
		return err
	})
	if err != nil {
		return nil, err
	}
	if out.Status != before {
		s.notify(ctx, out)
	}
	return out, nil
}

func (s *Service) verifyLocked(ctx context.Context, p *domain.Payout) (*domain.Payout, error) {
	adapter, err := s.providers.Payout(p.Provider)
	if err != nil {
		return nil, err
	}
	snap := s.settlement.Current()
	req := providerdomain.VerifyRequest{Reference: p.Reference}
	if p.ExternalReference != nil {
		req.ExternalReference = *p.ExternalReference
	}
	var res providerdomain.VerifyResult
	_, err = provider.Call(ctx, provider.CallPolicy{Attempts: 1, Timeout: snap.Payout.CallTimeout}, func(ctx context.Context) error {
		r, err := adapter.Verify(ctx, req)
		res = r
		return err
	}, s.observe(p.Provider, "payout_verify"))
	if err != nil {
		return nil, err
	}

	now := s.clock.Now().UTC()
	switch res.Status {
	case providerdomain.StatusCompleted:
		err = s.complete(ctx, p, res.ExternalReference, now)
	case providerdomain.StatusFailed:
		reason := strings.TrimSpace(res.FailureReason)
		if reason == "" {
			reason = "declined by provider"
		}
		err = s.fail(ctx, p, reason, now)
	default:
		if res.ExternalReference != "" && p.ExternalReference == nil {
			_, err = s.repo.Transition(ctx, s.db, p.ID, []domain.Status{domain.StatusProcessing}, domain.StatusProcessing, map[string]any{
				"external_reference": res.ExternalReference,
				"updated_at":         now,
			})
		}
	}
	if err != nil {
		return nil, err
	}
	return s.Get(ctx, p.ID)
}

func (s *Service) HandleCallback(ctx context.Context, cb providerdomain.Callback) (*domain.Payout, error) {
	if cb.Kind != providerdomain.CallbackPayout {
		return nil, providerdomain.ErrInvalidCallback
	}
	var (
		p   *domain.Payout
		err error
	)
	if ref := strings.TrimSpace(cb.Reference); ref != "" {
		p, err = s.repo.FindByReference(ctx, s.db, ref)
	} else if ext := strings.TrimSpace(cb.ExternalReference); ext != "" {
		p, err = s.repo.FindByExternalReference(ctx, s.db, ext)
	} else {
		return nil, providerdomain.ErrInvalidCallback
	}
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, domain.ErrPayoutNotFound
	}
	return s.Verify(ctx, p.ID)
}

func (s *Service) RetryDue(ctx context.Context, limit int) (int, error) {
	due, err := s.repo.ListRetryDue(ctx, s.db, s.clock.Now().UTC(), limit)
	if err != nil {
		return 0, err
	}
	processed := 0
	for _, p := range due {
		if ctx.Err() != nil {
			return processed, ctx.Err()
		}
		if _, err := s.submit(ctx, p.ID); err != nil {
			s.log.Warn("payout retry failed", append(zapPayout(&p), zap.Error(err))...)
			continue
		}
		processed++
	}
	return processed, nil
}

func (s *Service) ReconcileProcessing(ctx context.Context, limit int) (int, error) {
	snap := s.settlement.Current()
	before := s.clock.Now().UTC().Add(-snap.Payout.ReconcileAfter)
	stale, err := s.repo.ListStaleProcessing(ctx, s.db, before, limit)
	if err != nil {
		return 0, err
	}
	resolved := 0
	for _, p := range stale {
		if ctx.Err() != nil {
			return resolved, ctx.Err()
		}
		out, err := s.Verify(ctx, p.ID)
		if err != nil {
			if !errors.Is(err, providerdomain.ErrProviderUnavailable) {
				s.log.Warn("payout reconcile failed", append(zapPayout(&p), zap.Error(err))...)
			}
			continue
		}
		if out.Status.Terminal() {
			resolved++
		}
	}
	return resolved, nil
}
