package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	balancedomain "github.com/smallbiznis/settlement/internal/balance/domain"
	"github.com/smallbiznis/settlement/internal/config"
	"github.com/smallbiznis/settlement/internal/currency"
	"github.com/smallbiznis/settlement/internal/lock"
	"github.com/smallbiznis/settlement/internal/money"
	"github.com/smallbiznis/settlement/internal/payout/domain"
	"github.com/smallbiznis/settlement/internal/reference"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// createOptions carry what automatic runs add to a manual request.
type createOptions struct {
	cutoff    *time.Time
	automatic bool
	batch     string
}

func (s *Service) CreatePayout(ctx context.Context, req domain.CreateRequest) (*domain.Payout, error) {
	return s.create(ctx, req, createOptions{})
}

func (s *Service) create(ctx context.Context, req domain.CreateRequest, opts createOptions) (*domain.Payout, error) {
	sellerID := strings.TrimSpace(req.SellerID)
	if sellerID == "" {
		return nil, domain.ErrInvalidSeller
	}
	cur := currency.Normalize(req.Currency)
	snap := s.settlement.Current()
	if !snap.Rates.Supports(cur) {
		return nil, currency.ErrUnsupportedCurrency
	}
	if req.Amount != nil && *req.Amount <= 0 {
		return nil, domain.ErrInvalidPayoutAmount
	}
	dest, err := s.resolveDestination(ctx, snap, sellerID, cur, req)
	if err != nil {
		return nil, err
	}
	if _, err := s.providers.Payout(dest.provider); err != nil {
		return nil, err
	}

	var p *domain.Payout
	err = lock.WithLock(ctx, s.locker, lock.BalanceKey(sellerID, cur), func(ctx context.Context) error {
		amount, err := s.payoutAmount(ctx, sellerID, cur, req.Amount)
		if err != nil {
			return err
		}
		fee, err := snap.Payout.Fees.Compute(dest.method, amount)
		if err != nil {
			return err
		}
		if fee >= amount {
			return domain.ErrInvalidPayoutAmount
		}

		now := s.clock.Now().UTC()
		p = &domain.Payout{
			ID:          s.genID.Generate(),
			Reference:   s.refs.New(reference.PrefixPayout),
			SellerID:    sellerID,
			Currency:    cur,
			AccountID:   dest.accountID,
			Method:      dest.method,
			Provider:    dest.provider,
			Account:     datatypes.NewJSONType(dest.details),
			TotalAmount: amount,
			Fees:        fee,
			NetAmount:   amount - fee,
			Status:      domain.StatusPending,
			Automatic:   opts.automatic,
			Notes:       strings.TrimSpace(req.Notes),
			MaxRetries:  snap.Payout.MaxRetries,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if opts.batch != "" {
			p.BatchReference = &opts.batch
		}

		return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			if err := s.balance.Reserve(ctx, tx, s.movement(p)); err != nil {
				return err
			}
			allocations, err := s.balance.AllocateCredits(ctx, tx, sellerID, cur, amount, opts.cutoff)
			if err != nil {
				return err
			}
			if err := s.repo.Insert(ctx, tx, p); err != nil {
				return err
			}
			return s.repo.InsertItems(ctx, tx, s.buildItems(p, allocations, now))
		})
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("payout created",
		zapPayout(p)...,
	)
	return s.submit(ctx, p.ID)
}

type destination struct {
	accountID *snowflake.ID
	method    string
	provider  string
	details   map[string]string
}

func (s *Service) resolveDestination(ctx context.Context, snap *config.Settlement, sellerID, cur string, req domain.CreateRequest) (destination, error) {
	var (
		account *domain.Account
		err     error
	)
	switch {
	case req.AccountID != 0:
		account, err = s.repo.FindAccount(ctx, s.db, req.AccountID)
		if err != nil {
			return destination{}, err
		}
		if account == nil || account.SellerID != sellerID || account.Currency != cur {
			return destination{}, domain.ErrAccountNotFound
		}
	case strings.TrimSpace(req.Method) != "":
		if len(req.Account) == 0 {
			return destination{}, domain.ErrInvalidAccount
		}
		return s.withProvider(snap, destination{
			method:   domain.NormalizeMethod(req.Method),
			provider: strings.ToLower(strings.TrimSpace(req.Provider)),
			details:  req.Account,
		})
	default:
		account, err = s.repo.FindDefaultAccount(ctx, s.db, sellerID, cur)
		if err != nil {
			return destination{}, err
		}
		if account == nil {
			return destination{}, domain.ErrAccountNotFound
		}
	}
	id := account.ID
	return s.withProvider(snap, destination{
		accountID: &id,
		method:    account.Method,
		provider:  account.Provider,
		details:   account.Details.Data(),
	})
}

func (s *Service) withProvider(snap *config.Settlement, d destination) (destination, error) {
	if _, err := snap.Payout.Fees.Compute(d.method, 0); err != nil {
		return destination{}, err
	}
	if d.provider == "" {
		d.provider = snap.Payout.DefaultProvider
	}
	return d, nil
}

// payoutAmount resolves a nil request amount to the whole available balance.
func (s *Service) payoutAmount(ctx context.Context, sellerID, cur string, requested *int64) (int64, error) {
	if requested != nil {
		return *requested, nil
	}
	bal, err := s.balance.Get(ctx, sellerID, cur)
	if err != nil {
		return 0, err
	}
	if bal.AvailableBalance <= 0 {
		return 0, domain.ErrNothingToPay
	}
	return bal.AvailableBalance, nil
}

// buildItems spreads the payout fee over the swept credits pro-rata; the last item
// absorbs the rounding remainder.
func (s *Service) buildItems(p *domain.Payout, allocations []balancedomain.Allocation, now time.Time) []domain.Item {
	items := make([]domain.Item, 0, len(allocations))
	var feeLeft = p.Fees
	for i, a := range allocations {
		fee := money.ProRata(p.Fees, a.Amount, p.TotalAmount)
		if i == len(allocations)-1 {
			fee = feeLeft
		}
		fee = money.Min(fee, feeLeft)
		feeLeft -= fee
		items = append(items, domain.Item{
			ID:            s.genID.Generate(),
			PayoutID:      p.ID,
			CreditEntryID: a.CreditEntryID,
			TransactionID: a.TransactionID,
			Amount:        a.Amount,
			Fee:           fee,
			NetAmount:     a.Amount - fee,
			CreatedAt:     now,
		})
	}
	return items
}

func (s *Service) movement(p *domain.Payout) balancedomain.Movement {
	return balancedomain.Movement{
		SellerID:   p.SellerID,
		Currency:   p.Currency,
		Amount:     p.TotalAmount,
		SourceType: balancedomain.SourcePayout,
		SourceID:   p.ID.String(),
	}
}

func allocationsOf(items []domain.Item) []balancedomain.Allocation {
	out := make([]balancedomain.Allocation, 0, len(items))
	for _, it := range items {
		out = append(out, balancedomain.Allocation{
			CreditEntryID: it.CreditEntryID,
			TransactionID: it.TransactionID,
			Amount:        it.Amount,
		})
	}
	return out
}
