package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	balancedomain "github.com/smallbiznis/settlement/internal/balance/domain"
	"github.com/smallbiznis/settlement/internal/clock"
	"github.com/smallbiznis/settlement/internal/config"
	ledgerdomain "github.com/smallbiznis/settlement/internal/ledger/domain"
	"github.com/smallbiznis/settlement/internal/lock"
	"github.com/smallbiznis/settlement/internal/notification"
	obsmetrics "github.com/smallbiznis/settlement/internal/observability/metrics"
	"github.com/smallbiznis/settlement/internal/provider"
	"github.com/smallbiznis/settlement/internal/provider/adapters"
	providerdomain "github.com/smallbiznis/settlement/internal/provider/domain"
	"github.com/smallbiznis/settlement/internal/reference"
	"github.com/smallbiznis/settlement/internal/refund/domain"
	revsharedomain "github.com/smallbiznis/settlement/internal/revenueshare/domain"
	txdomain "github.com/smallbiznis/settlement/internal/transaction/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var unresolved = []domain.Status{domain.StatusPending, domain.StatusProcessing}

type Params struct {
	fx.In

	DB           *gorm.DB
	Log          *zap.Logger
	GenID        *snowflake.Node
	Repo         domain.Repository
	Transactions txdomain.Repository
	Settlement   *config.SettlementHolder
	Balance      balancedomain.Service
	Ledger       ledgerdomain.Service
	Providers    *adapters.Registry
	Locker       lock.Locker
	Refs         reference.Generator
	Notifier     notification.Notifier `optional:"true"`
	Clock        clock.Clock           `optional:"true"`
	ObsMetrics   *obsmetrics.Metrics   `optional:"true"`
}

type Service struct {
	db           *gorm.DB
	log          *zap.Logger
	genID        *snowflake.Node
	repo         domain.Repository
	transactions txdomain.Repository
	settlement   *config.SettlementHolder
	balance      balancedomain.Service
	ledger       ledgerdomain.Service
	providers    *adapters.Registry
	locker       lock.Locker
	refs         reference.Generator
	notifier     notification.Notifier
	clock        clock.Clock
	obsMetrics   *obsmetrics.Metrics
}

func NewService(p Params) domain.Service {
	clk := p.Clock
	if clk == nil {
		clk = clock.SystemClock{}
	}
	notifier := p.Notifier
	if notifier == nil {
		notifier = notification.Nop{}
	}
	return &Service{
		db:           p.DB,
		log:          p.Log.Named("refund.service"),
		genID:        p.GenID,
		repo:         p.Repo,
		transactions: p.Transactions,
		settlement:   p.Settlement,
		balance:      p.Balance,
		ledger:       p.Ledger,
		providers:    p.Providers,
		locker:       p.Locker,
		refs:         p.Refs,
		notifier:     notifier,
		clock:        clk,
		obsMetrics:   p.ObsMetrics,
	}
}

func (s *Service) Get(ctx context.Context, id snowflake.ID) (*domain.Refund, error) {
	r, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if r == nil {
		return nil, domain.ErrRefundNotFound
	}
	return r, nil
}

func (s *Service) ListByTransaction(ctx context.Context, transactionID snowflake.ID) ([]domain.Refund, error) {
	t, err := s.transactions.FindByID(ctx, s.db, transactionID)
	if err != nil {
		return nil, err
	}
	if t == nil {
		return nil, txdomain.ErrTransactionNotFound
	}
	return s.repo.ListByTransaction(ctx, s.db, transactionID)
}

func (s *Service) RequestRefund(ctx context.Context, req domain.Request) (*domain.Refund, error) {
	if req.Amount != nil && *req.Amount <= 0 {
		return nil, domain.ErrInvalidRefundAmount
	}
	var r *domain.Refund
	// The sum check and the insert serialize per transaction so concurrent
	// requests cannot both fit under the original amount.
	err := lock.WithLock(ctx, s.locker, lock.TransactionKey(req.TransactionID.String()), func(ctx context.Context) error {
		return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			t, err := s.transactions.FindByID(ctx, tx, req.TransactionID)
			if err != nil {
				return err
			}
			if t == nil {
				return txdomain.ErrTransactionNotFound
			}
			if t.Status != txdomain.StatusCompleted {
				return txdomain.ErrInvalidTransactionState
			}
			if _, err := s.providers.Payment(t.Provider); err != nil {
				return err
			}
			active, err := s.repo.SumActive(ctx, tx, t.ID)
			if err != nil {
				return err
			}
			amount := t.Amount - active
			if req.Amount != nil {
				amount = *req.Amount
			}
			if amount <= 0 || active+amount > t.Amount {
				return domain.ErrRefundExceedsOriginal
			}

			now := s.clock.Now().UTC()
			r = &domain.Refund{
				ID:            s.genID.Generate(),
				Reference:     s.refs.New(reference.PrefixRefund),
				TransactionID: t.ID,
				Amount:        amount,
				Currency:      t.Currency,
				Status:        domain.StatusPending,
				Reason:        strings.TrimSpace(req.Reason),
				Provider:      t.Provider,
				CreatedAt:     now,
				UpdatedAt:     now,
			}
			if orderID := strings.TrimSpace(req.OrderID); orderID != "" {
				r.OrderID = &orderID
			}
			return s.repo.Insert(ctx, tx, r)
		})
	})
	if err != nil {
		return nil, err
	}
	return s.submit(ctx, r.ID)
}

func (s *Service) observe(name, operation string) func(provider.Outcome) {
	return func(o provider.Outcome) {
		s.obsMetrics.RecordProviderCall(context.Background(), name, operation, string(o))
	}
}

func (s *Service) policy() provider.CallPolicy {
	snap := s.settlement.Current()
	return provider.CallPolicy{
		Attempts: snap.Payment.MaxProviderAttempts,
		Backoff:  snap.Payment.RetryBackoff,
		Timeout:  snap.Payment.CallTimeout,
	}
}

func (s *Service) submit(ctx context.Context, id snowflake.ID) (*domain.Refund, error) {
	var (
		out    *domain.Refund
		before domain.Status
	)
	err := lock.WithLock(ctx, s.locker, lock.RefundKey(id.String()), func(ctx context.Context) error {
		r, err := s.Get(ctx, id)
		if err != nil {
			return err
		}
		before = r.Status
		if r.Status != domain.StatusPending {
			out = r
			return nil
		}
		t, err := s.transaction(ctx, r)
		if err != nil {
			return err
		}
		adapter, err := s.providers.Payment(r.Provider)
		if err != nil {
			return err
		}
		paymentRef := t.Reference
		if t.ExternalReference != nil {
			paymentRef = *t.ExternalReference
		}

		var res providerdomain.RefundResult
		_, callErr := provider.Call(ctx, s.policy(), func(ctx context.Context) error {
			v, err := adapter.Refund(ctx, providerdomain.RefundRequest{
				Reference:                r.Reference,
				PaymentExternalReference: paymentRef,
				Amount:                   r.Amount,
				Currency:                 r.Currency,
				Reason:                   r.Reason,
			})
			res = v
			return err
		}, s.observe(r.Provider, "refund"))

		ctx = context.WithoutCancel(ctx)
		now := s.clock.Now().UTC()
		switch {
		case callErr == nil && res.Status == providerdomain.StatusCompleted:
			err = s.complete(ctx, r, t, res.ExternalReference, now)
		case callErr == nil && res.Status == providerdomain.StatusFailed:
			err = s.fail(ctx, r, "declined by provider", now)
		case callErr == nil, provider.IsUnknownOutcome(callErr):
			changes := map[string]any{"updated_at": now}
			if res.ExternalReference != "" {
				changes["external_reference"] = res.ExternalReference
			}
			_, err = s.repo.Transition(ctx, s.db, r.ID, []domain.Status{domain.StatusPending}, domain.StatusProcessing, changes)
		default:
			err = s.fail(ctx, r, providerdomain.Reason(callErr), now)
		}
		if err != nil {
			return err
		}
		out, err = s.Get(ctx, r.ID)
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

func (s *Service) transaction(ctx context.Context, r *domain.Refund) (*txdomain.Transaction, error) {
	t, err := s.transactions.FindByID(ctx, s.db, r.TransactionID)
	if err != nil {
		return nil, err
	}
	if t == nil {
		return nil, txdomain.ErrTransactionNotFound
	}
	return t, nil
}

func (s *Service) fail(ctx context.Context, r *domain.Refund, reason string, now time.Time) error {
	_, err := s.repo.Transition(ctx, s.db, r.ID, unresolved, domain.StatusFailed, map[string]any{
		"failed_at":      now,
		"failure_reason": reason,
		"updated_at":     now,
	})
	return err
}

// complete applies the reversal exactly once. The refund status change, the
// seller balance debit and the journal entry commit together; the parent
// transaction row is left untouched.
func (s *Service) complete(ctx context.Context, r *domain.Refund, t *txdomain.Transaction, externalRef string, now time.Time) error {
	seller := t.SellerID()
	apply := func(ctx context.Context) error {
		return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			prior, err := s.repo.SumReversed(ctx, tx, t.ID)
			if err != nil {
				return err
			}
			rev, err := revsharedomain.Reverse(t.Split(), t.Amount, r.Amount, prior)
			if err != nil {
				return fmt.Errorf("%w: %v", domain.ErrRefundExceedsOriginal, err)
			}

			var result balancedomain.ReversalResult
			if seller != "" && rev.SellerPayout > 0 {
				result, _, err = s.balance.Reverse(ctx, tx, balancedomain.Movement{
					SellerID:   seller,
					Currency:   t.Currency,
					Amount:     rev.SellerPayout,
					SourceType: balancedomain.SourceRefund,
					SourceID:   r.ID.String(),
				}, t.ID.String())
				if err != nil {
					return fmt.Errorf("reverse seller share: %w", err)
				}
			}

			changes := map[string]any{
				"completed_at":        now,
				"updated_at":          now,
				"seller_reversal":     rev.SellerPayout,
				"commission_reversal": rev.Commission,
				"fee_reversal":        rev.Fees,
				"receivable_amount":   result.ToReceivable,
			}
			if externalRef != "" && r.ExternalReference == nil {
				changes["external_reference"] = externalRef
			}
			ok, err := s.repo.Transition(ctx, tx, r.ID, unresolved, domain.StatusCompleted, changes)
			if err != nil {
				return err
			}
			if !ok {
				return domain.ErrInvalidRefundState
			}
			_, err = s.ledger.Post(ctx, tx, ledgerdomain.PostRequest{
				SourceType: ledgerdomain.SourceTypeRefund,
				SourceID:   r.ID.String(),
				Currency:   r.Currency,
				OccurredAt: now,
				Lines: []ledgerdomain.Line{
					{Account: ledgerdomain.AccountSellerPayable, Direction: ledgerdomain.Debit, Amount: rev.SellerPayout},
					{Account: ledgerdomain.AccountPlatformRevenue, Direction: ledgerdomain.Debit, Amount: rev.Commission},
					{Account: ledgerdomain.AccountFeeRevenue, Direction: ledgerdomain.Debit, Amount: rev.Fees},
					{Account: ledgerdomain.AccountCashClearing, Direction: ledgerdomain.Credit, Amount: r.Amount},
				},
			})
			return err
		})
	}
	if seller == "" {
		return apply(ctx)
	}
	return lock.WithLock(ctx, s.locker, lock.BalanceKey(seller, t.Currency), apply)
}

func (s *Service) Verify(ctx context.Context, id snowflake.ID) (*domain.Refund, error) {
	var (
		out    *domain.Refund
		before domain.Status
	)
	err := lock.WithLock(ctx, s.locker, lock.RefundKey(id.String()), func(ctx context.Context) error {
		r, err := s.Get(ctx, id)
		if err != nil {
			return err
		}
		before = r.Status
		out = r
		if r.Status.Terminal() {
			return nil
		}
		t, err := s.transaction(ctx, r)
		if err != nil {
			return err
		}
		adapter, err := s.providers.Payment(r.Provider)
		if err != nil {
			return err
		}
		req := providerdomain.VerifyRequest{Reference: r.Reference}
		if r.ExternalReference != nil {
			req.ExternalReference = *r.ExternalReference
		}
		var res providerdomain.VerifyResult
		if _, err := provider.Call(ctx, s.policy(), func(ctx context.Context) error {
			v, err := adapter.VerifyRefund(ctx, req)
			res = v
			return err
		}, s.observe(r.Provider, "verify_refund")); err != nil {
			return err
		}

		now := s.clock.Now().UTC()
		switch res.Status {
		case providerdomain.StatusCompleted:
			err = s.complete(ctx, r, t, res.ExternalReference, now)
		case providerdomain.StatusFailed:
			reason := strings.TrimSpace(res.FailureReason)
			if reason == "" {
				reason = "declined by provider"
			}
			err = s.fail(ctx, r, reason, now)
		default:
			if r.Status == domain.StatusPending {
				_, err = s.repo.Transition(ctx, s.db, r.ID, []domain.Status{domain.StatusPending}, domain.StatusProcessing, map[string]any{"updated_at": now})
			}
		}
		if err != nil {
			return err
		}
		out, err = s.Get(ctx, id)
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

func (s *Service) HandleCallback(ctx context.Context, cb providerdomain.Callback) (*domain.Refund, error) {
	if cb.Kind != providerdomain.CallbackRefund {
		return nil, providerdomain.ErrInvalidCallback
	}
	var (
		r   *domain.Refund
		err error
	)
	if ref := strings.TrimSpace(cb.Reference); ref != "" {
		r, err = s.repo.FindByReference(ctx, s.db, ref)
	} else if ext := strings.TrimSpace(cb.ExternalReference); ext != "" {
		r, err = s.repo.FindByExternalReference(ctx, s.db, ext)
	} else {
		return nil, providerdomain.ErrInvalidCallback
	}
	if err != nil {
		return nil, err
	}
	if r == nil {
		return nil, domain.ErrRefundNotFound
	}
	return s.Verify(ctx, r.ID)
}

func (s *Service) ReconcileUnresolved(ctx context.Context, limit int) (int, error) {
	before := s.clock.Now().UTC().Add(-s.settlement.Current().Payment.ReconcileAfter)
	items, err := s.repo.ListUnresolved(ctx, s.db, before, limit)
	if err != nil {
		return 0, err
	}
	resolved := 0
	for _, item := range items {
		if ctx.Err() != nil {
			return resolved, ctx.Err()
		}
		r, err := s.Verify(ctx, item.ID)
		if err != nil {
			if !errors.Is(err, providerdomain.ErrProviderUnavailable) {
				s.log.Warn("refund reconcile failed",
					zap.String("reference", item.Reference),
					zap.Error(err),
				)
			}
			continue
		}
		if r.Status.Terminal() {
			resolved++
		}
	}
	return resolved, nil
}

func (s *Service) afterTransition(ctx context.Context, r *domain.Refund) {
	if r == nil || !r.Status.Terminal() {
		return
	}
	s.obsMetrics.RecordRefund(ctx, string(r.Status))
	s.notifier.Notify(ctx, notification.Event{
		EntityType: notification.EntityRefund,
		EntityID:   r.ID.String(),
		Status:     string(r.Status),
		Amount:     r.Amount,
		Currency:   r.Currency,
		OccurredAt: s.clock.Now().UTC(),
	})
}
