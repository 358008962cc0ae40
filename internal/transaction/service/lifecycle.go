package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	balancedomain "github.com/smallbiznis/settlement/internal/balance/domain"
	"github.com/smallbiznis/settlement/internal/config"
	ledgerdomain "github.com/smallbiznis/settlement/internal/ledger/domain"
	"github.com/smallbiznis/settlement/internal/lock"
	"github.com/smallbiznis/settlement/internal/provider"
	providerdomain "github.com/smallbiznis/settlement/internal/provider/domain"
	"github.com/smallbiznis/settlement/internal/reference"
	"github.com/smallbiznis/settlement/internal/transaction/domain"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

var unresolved = []domain.Status{domain.StatusPending, domain.StatusProcessing}

func (s *Service) Initialize(ctx context.Context, req domain.InitializeRequest) (*domain.Transaction, error) {
	snap := s.settlement.Current()
	q, rsConfig, err := s.quote(ctx, snap, req)
	if err != nil {
		return nil, err
	}
	platformInBase, err := snap.Rates.ToBase(q.Split.PlatformCommission.Amount, q.Currency)
	if err != nil {
		return nil, err
	}
	sellerInBase, err := snap.Rates.ToBase(q.Split.SellerPayout.Amount, q.Currency)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now().UTC()
	t := &domain.Transaction{
		ID:                   s.genID.Generate(),
		Reference:            s.refs.New(reference.PrefixTransaction),
		Type:                 domain.TypePayment,
		Status:               domain.StatusPending,
		OrderID:              optional(req.OrderID),
		Amount:               q.Amount,
		Currency:             q.Currency,
		BaseCurrency:         q.BaseCurrency,
		AmountInBaseCurrency: q.AmountInBaseCurrency,
		PaymentMethod:        strings.ToLower(strings.TrimSpace(req.PaymentMethod)),
		Provider:             q.Provider,
		Category:             q.Category,
		ProviderFee:          q.ProviderFee,
		PlatformFee:          q.Split.PlatformCommission.Amount,
		ProcessingFee:        q.ProcessingFee,
		TaxAmount:            q.TaxAmount,
		TotalAmount:          q.TotalAmount,
		PayerID:              strings.TrimSpace(req.PayerID),
		PayeeID:              strings.TrimSpace(req.PayeeID),
		SellerUserType:       strings.TrimSpace(req.SellerUserType),
		Charges:              datatypes.NewJSONType(q.Charges),
		RevenueSplit:         datatypes.NewJSONType(q.Split),
		PlatformShareInBase:  platformInBase,
		SellerShareInBase:    sellerInBase,
		ConfigVersion:        q.ConfigVersion,
		RevenueShareConfigID: rsConfig.ID,
		Description:          strings.TrimSpace(req.Description),
		Metadata:             datatypes.NewJSONType(req.Metadata),
		InitiatedAt:          now,
		ExpiresAt:            now.Add(snap.Payment.Expiry),
		CreatedAt:            now,
		UpdatedAt:            now,
	}
	if err := s.repo.Insert(ctx, s.db, t); err != nil {
		return nil, err
	}

	adapter, err := s.providers.Payment(t.Provider)
	if err != nil {
		return nil, err
	}
	var res providerdomain.PaymentInitResult
	_, callErr := provider.Call(ctx, paymentPolicy(snap), func(ctx context.Context) error {
		r, err := adapter.Initialize(ctx, providerdomain.PaymentRequest{
			Reference:     t.Reference,
			Amount:        t.TotalAmount,
			Currency:      t.Currency,
			PaymentMethod: t.PaymentMethod,
			PayerID:       t.PayerID,
			Description:   t.Description,
			Metadata:      req.Metadata,
		})
		res = r
		return err
	}, s.observe(t.Provider, "initialize"))

	// The record must reach its post-call state even when the caller went away.
	persistCtx := context.WithoutCancel(ctx)
	now = s.clock.Now().UTC()
	switch {
	case callErr == nil:
		changes := map[string]any{"processing_at": now, "updated_at": now}
		if res.ExternalReference != "" {
			changes["external_reference"] = res.ExternalReference
		}
		if res.ProviderTransactionID != "" {
			changes["provider_transaction_id"] = res.ProviderTransactionID
		}
		_, err = s.repo.Transition(persistCtx, s.db, t.ID, []domain.Status{domain.StatusPending}, domain.StatusProcessing, changes)
	case provider.IsUnknownOutcome(callErr):
		s.log.Warn("provider initialize outcome unknown",
			zap.String("reference", t.Reference),
			zap.String("provider", t.Provider),
			zap.Error(callErr),
		)
		_, err = s.repo.Transition(persistCtx, s.db, t.ID, []domain.Status{domain.StatusPending}, domain.StatusProcessing, map[string]any{"processing_at": now, "updated_at": now})
	default:
		s.log.Info("provider initialize failed",
			zap.String("reference", t.Reference),
			zap.String("provider", t.Provider),
			zap.Error(callErr),
		)
		_, err = s.repo.Transition(persistCtx, s.db, t.ID, []domain.Status{domain.StatusPending}, domain.StatusFailed, map[string]any{
			"failed_at":      now,
			"failure_reason": providerdomain.Reason(callErr),
			"updated_at":     now,
		})
	}
	if err != nil {
		return nil, err
	}
	out, err := s.Get(persistCtx, t.ID)
	if err != nil {
		return nil, err
	}
	s.afterTransition(persistCtx, out)
	return out, nil
}

func paymentPolicy(snap *config.Settlement) provider.CallPolicy {
	return provider.CallPolicy{
		Attempts: snap.Payment.MaxProviderAttempts,
		Backoff:  snap.Payment.RetryBackoff,
		Timeout:  snap.Payment.CallTimeout,
	}
}

func (s *Service) observe(name, operation string) func(provider.Outcome) {
	return func(o provider.Outcome) {
		s.obsMetrics.RecordProviderCall(context.Background(), name, operation, string(o))
	}
}

func (s *Service) Verify(ctx context.Context, id snowflake.ID) (*domain.Transaction, error) {
	var (
		out    *domain.Transaction
		before domain.Status
	)
	err := lock.WithLock(ctx, s.locker, lock.TransactionKey(id.String()), func(ctx context.Context) error {
		t, err := s.Get(ctx, id)
		if err != nil {
			return err
		}
		before = t.Status
		out, err = s.verifyLocked(ctx, t)
		return err
	})
	if err != nil {
		return nil, err
	}
	if out.Status != before {
		s.afterTransition(ctx, out)
	}
	return out, nil
}

// verifyLocked asks the provider for the outcome and applies it. Terminal records
// are returned as they are so repeated verifies never settle twice.
func (s *Service) verifyLocked(ctx context.Context, t *domain.Transaction) (*domain.Transaction, error) {
	if t.Status.Terminal() {
		return t, nil
	}
	adapter, err := s.providers.Payment(t.Provider)
	if err != nil {
		return nil, err
	}

	req := providerdomain.VerifyRequest{Reference: t.Reference}
	if t.ExternalReference != nil {
		req.ExternalReference = *t.ExternalReference
	}
	var res providerdomain.VerifyResult
	_, callErr := provider.Call(ctx, paymentPolicy(s.settlement.Current()), func(ctx context.Context) error {
		r, err := adapter.Verify(ctx, req)
		res = r
		return err
	}, s.observe(t.Provider, "verify"))

	now := s.clock.Now().UTC()
	if callErr != nil {
		// A lookup the provider refuses cannot complete later; it only ages out.
		if errors.Is(callErr, providerdomain.ErrProviderRejected) && !now.Before(t.ExpiresAt) {
			return s.expire(ctx, t, now)
		}
		return nil, callErr
	}

	switch res.Status {
	case providerdomain.StatusCompleted:
		if err := s.settle(ctx, t, res.ExternalReference, now); err != nil {
			return nil, err
		}
	case providerdomain.StatusFailed:
		reason := strings.TrimSpace(res.FailureReason)
		if reason == "" {
			reason = "declined by provider"
		}
		if _, err := s.repo.Transition(ctx, s.db, t.ID, unresolved, domain.StatusFailed, map[string]any{
			"failed_at":      now,
			"failure_reason": reason,
			"updated_at":     now,
		}); err != nil {
			return nil, err
		}
	default:
		if !now.Before(t.ExpiresAt) {
			return s.expire(ctx, t, now)
		}
		if res.ExternalReference != "" && t.ExternalReference == nil {
			if err := s.repo.SetExternal(ctx, s.db, t.ID, res.ExternalReference, "", now); err != nil {
				return nil, err
			}
		}
	}
	return s.Get(ctx, t.ID)
}

func (s *Service) expire(ctx context.Context, t *domain.Transaction, now time.Time) (*domain.Transaction, error) {
	if _, err := s.repo.Transition(ctx, s.db, t.ID, unresolved, domain.StatusExpired, map[string]any{
		"expired_at": now,
		"updated_at": now,
	}); err != nil {
		return nil, err
	}
	return s.Get(ctx, t.ID)
}

// settle completes the payment and applies its split in one database transaction:
// the status change, the seller credit and the ledger entry commit together.
func (s *Service) settle(ctx context.Context, t *domain.Transaction, externalRef string, now time.Time) error {
	split := t.Split()
	seller := t.SellerID()
	apply := func(ctx context.Context) error {
		return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			changes := map[string]any{"completed_at": now, "updated_at": now}
			if externalRef != "" && t.ExternalReference == nil {
				changes["external_reference"] = externalRef
			}
			ok, err := s.repo.Transition(ctx, tx, t.ID, unresolved, domain.StatusCompleted, changes)
			if err != nil {
				return err
			}
			if !ok {
				return nil
			}
			if seller != "" && split.SellerPayout.Amount > 0 {
				if _, err := s.balance.Credit(ctx, tx, balancedomain.Movement{
					SellerID:   seller,
					Currency:   t.Currency,
					Amount:     split.SellerPayout.Amount,
					SourceType: balancedomain.SourceTransaction,
					SourceID:   t.ID.String(),
				}); err != nil {
					return fmt.Errorf("credit seller: %w", err)
				}
			}
			totals := t.Charges.Data().Totals()
			if _, err := s.ledger.Post(ctx, tx, ledgerdomain.PostRequest{
				SourceType: ledgerdomain.SourceTypeSettlement,
				SourceID:   t.ID.String(),
				Currency:   t.Currency,
				OccurredAt: now,
				Lines: []ledgerdomain.Line{
					{Account: ledgerdomain.AccountCashClearing, Direction: ledgerdomain.Debit, Amount: t.TotalAmount},
					{Account: ledgerdomain.AccountSellerPayable, Direction: ledgerdomain.Credit, Amount: split.SellerPayout.Amount},
					{Account: ledgerdomain.AccountPlatformRevenue, Direction: ledgerdomain.Credit, Amount: split.PlatformCommission.Amount},
					{Account: ledgerdomain.AccountTaxPayable, Direction: ledgerdomain.Credit, Amount: totals.Taxes},
					{Account: ledgerdomain.AccountFeeRevenue, Direction: ledgerdomain.Credit, Amount: totals.Fees},
				},
			}); err != nil {
				return fmt.Errorf("post settlement: %w", err)
			}
			return nil
		})
	}
	if seller == "" {
		return apply(ctx)
	}
	return lock.WithLock(ctx, s.locker, lock.BalanceKey(seller, t.Currency), apply)
}

func (s *Service) ExpireStale(ctx context.Context, limit int) (int, error) {
	now := s.clock.Now().UTC()
	items, err := s.repo.ListExpirable(ctx, s.db, now, limit)
	if err != nil {
		return 0, err
	}
	expired := 0
	for i := range items {
		t := &items[i]
		err := lock.WithLock(ctx, s.locker, lock.TransactionKey(t.ID.String()), func(ctx context.Context) error {
			ok, err := s.repo.Transition(ctx, s.db, t.ID, []domain.Status{domain.StatusPending}, domain.StatusExpired, map[string]any{
				"expired_at": now,
				"updated_at": now,
			})
			if err != nil || !ok {
				return err
			}
			expired++
			t.Status = domain.StatusExpired
			s.afterTransition(ctx, t)
			return nil
		})
		if err != nil {
			return expired, err
		}
	}
	return expired, nil
}

// ReconcileProcessing re-verifies records that sat in processing longer than the
// reconcile window. Provider errors are logged and the record is left for the next run.
func (s *Service) ReconcileProcessing(ctx context.Context, limit int) (int, error) {
	snap := s.settlement.Current()
	before := s.clock.Now().UTC().Add(-snap.Payment.ReconcileAfter)
	items, err := s.repo.ListStaleProcessing(ctx, s.db, before, limit)
	if err != nil {
		return 0, err
	}
	resolved := 0
	for _, item := range items {
		if ctx.Err() != nil {
			return resolved, ctx.Err()
		}
		t, err := s.Verify(ctx, item.ID)
		if err != nil {
			s.log.Warn("reconcile transaction failed",
				zap.String("reference", item.Reference),
				zap.Error(err),
			)
			continue
		}
		if t.Status.Terminal() {
			resolved++
		}
	}
	return resolved, nil
}

// HandleCallback locates the payment a webhook refers to and verifies it. The
// callback status itself is never trusted.
func (s *Service) HandleCallback(ctx context.Context, cb providerdomain.Callback) (*domain.Transaction, error) {
	if cb.Kind != providerdomain.CallbackPayment {
		return nil, providerdomain.ErrInvalidCallback
	}
	var (
		t   *domain.Transaction
		err error
	)
	if ref := strings.TrimSpace(cb.Reference); ref != "" {
		t, err = s.repo.FindByReference(ctx, s.db, ref)
	} else if ext := strings.TrimSpace(cb.ExternalReference); ext != "" {
		t, err = s.repo.FindByExternalReference(ctx, s.db, ext)
	} else {
		return nil, providerdomain.ErrInvalidCallback
	}
	if err != nil {
		return nil, err
	}
	if t == nil {
		return nil, domain.ErrTransactionNotFound
	}
	return s.Verify(ctx, t.ID)
}
