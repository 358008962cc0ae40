package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/settlement/internal/balance/domain"
	"github.com/smallbiznis/settlement/internal/clock"
	"github.com/smallbiznis/settlement/internal/money"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Repo  domain.Repository
	Clock clock.Clock `optional:"true"`
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	repo  domain.Repository
	clock clock.Clock
}

func NewService(p Params) domain.Service {
	clk := p.Clock
	if clk == nil {
		clk = clock.SystemClock{}
	}
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("balance.service"),
		genID: p.GenID,
		repo:  p.Repo,
		clock: clk,
	}
}

func normalize(m domain.Movement) (domain.Movement, error) {
	m.SellerID = strings.TrimSpace(m.SellerID)
	m.Currency = strings.ToUpper(strings.TrimSpace(m.Currency))
	m.SourceID = strings.TrimSpace(m.SourceID)
	switch {
	case m.SellerID == "":
		return m, domain.ErrInvalidSeller
	case m.Currency == "":
		return m, domain.ErrInvalidCurrency
	case m.SourceType == "" || m.SourceID == "":
		return m, domain.ErrInvalidSource
	case m.Amount <= 0:
		return m, domain.ErrInvalidAmount
	}
	return m, nil
}

func (s *Service) entry(m domain.Movement, kind domain.EntryKind, amount int64) *domain.Entry {
	return &domain.Entry{
		ID:         s.genID.Generate(),
		SellerID:   m.SellerID,
		Currency:   m.Currency,
		Kind:       kind,
		Amount:     amount,
		SourceType: m.SourceType,
		SourceID:   m.SourceID,
		CreatedAt:  s.clock.Now().UTC(),
	}
}

func (s *Service) ensure(ctx context.Context, tx *gorm.DB, sellerID, currency string) error {
	now := s.clock.Now().UTC()
	return s.repo.EnsureBalance(ctx, tx, &domain.SellerBalance{
		ID:        s.genID.Generate(),
		SellerID:  sellerID,
		Currency:  currency,
		CreatedAt: now,
		UpdatedAt: now,
	})
}

func (s *Service) adjust(ctx context.Context, tx *gorm.DB, m domain.Movement, d domain.Delta) (bool, error) {
	return s.repo.AdjustBalance(ctx, tx, m.SellerID, m.Currency, d, s.clock.Now().UTC())
}

func (s *Service) Credit(ctx context.Context, tx *gorm.DB, m domain.Movement) (bool, error) {
	m, err := normalize(m)
	if err != nil {
		return false, err
	}
	credit := s.entry(m, domain.EntryCredit, m.Amount)
	inserted, err := s.repo.InsertEntry(ctx, tx, credit)
	if err != nil || !inserted {
		return false, err
	}
	if err := s.ensure(ctx, tx, m.SellerID, m.Currency); err != nil {
		return false, err
	}

	current, err := s.repo.FindBalance(ctx, tx, m.SellerID, m.Currency)
	if err != nil {
		return false, err
	}
	recovered := money.Min(current.ReceivableBalance, m.Amount)
	ok, err := s.adjust(ctx, tx, m, domain.Delta{Available: m.Amount - recovered, Receivable: -recovered})
	if err != nil {
		return false, err
	}
	if !ok {
		return false, fmt.Errorf("credit %s/%s: balance changed concurrently", m.SourceType, m.SourceID)
	}

	if recovered > 0 {
		// The recovered part was never payable; mark it swept so payouts skip it.
		if _, err := s.repo.SweepCredit(ctx, tx, credit.ID, recovered); err != nil {
			return false, err
		}
		if _, err := s.repo.InsertEntry(ctx, tx, s.entry(m, domain.EntryClawbackRecovery, recovered)); err != nil {
			return false, err
		}
		s.log.Info("receivable recovered from credit",
			zap.String("seller_id", m.SellerID),
			zap.String("currency", m.Currency),
			zap.Int64("recovered", recovered),
		)
	}
	return true, nil
}

func (s *Service) Reserve(ctx context.Context, tx *gorm.DB, m domain.Movement) error {
	m, err := normalize(m)
	if err != nil {
		return err
	}
	if err := s.ensure(ctx, tx, m.SellerID, m.Currency); err != nil {
		return err
	}
	ok, err := s.adjust(ctx, tx, m, domain.Delta{Available: -m.Amount, Pending: m.Amount})
	if err != nil {
		return err
	}
	if !ok {
		return domain.ErrInsufficientBalance
	}
	inserted, err := s.repo.InsertEntry(ctx, tx, s.entry(m, domain.EntryPayoutDebit, m.Amount))
	if err != nil {
		return err
	}
	if !inserted {
		return fmt.Errorf("%w: %s already reserved", domain.ErrInvalidSource, m.SourceID)
	}
	return nil
}

func (s *Service) Release(ctx context.Context, tx *gorm.DB, m domain.Movement) (bool, error) {
	m, err := normalize(m)
	if err != nil {
		return false, err
	}
	inserted, err := s.repo.InsertEntry(ctx, tx, s.entry(m, domain.EntryPayoutRelease, m.Amount))
	if err != nil || !inserted {
		return false, err
	}
	ok, err := s.adjust(ctx, tx, m, domain.Delta{Pending: -m.Amount})
	if err != nil {
		return false, err
	}
	if !ok {
		return false, domain.ErrPendingMismatch
	}
	return true, nil
}

func (s *Service) Compensate(ctx context.Context, tx *gorm.DB, m domain.Movement, allocations []domain.Allocation) (bool, error) {
	m, err := normalize(m)
	if err != nil {
		return false, err
	}
	inserted, err := s.repo.InsertEntry(ctx, tx, s.entry(m, domain.EntryPayoutCompensation, m.Amount))
	if err != nil || !inserted {
		return false, err
	}
	ok, err := s.adjust(ctx, tx, m, domain.Delta{Available: m.Amount, Pending: -m.Amount})
	if err != nil {
		return false, err
	}
	if !ok {
		return false, domain.ErrPendingMismatch
	}
	for _, a := range allocations {
		if a.CreditEntryID == 0 || a.Amount <= 0 {
			continue
		}
		if _, err := s.repo.UnsweepCredit(ctx, tx, a.CreditEntryID, a.Amount); err != nil {
			return false, err
		}
	}
	s.log.Info("payout reservation compensated",
		zap.String("seller_id", m.SellerID),
		zap.String("payout_id", m.SourceID),
		zap.Int64("amount", m.Amount),
	)
	return true, nil
}

func (s *Service) Reverse(ctx context.Context, tx *gorm.DB, m domain.Movement, transactionID string) (domain.ReversalResult, bool, error) {
	m, err := normalize(m)
	if err != nil {
		return domain.ReversalResult{}, false, err
	}
	inserted, err := s.repo.InsertEntry(ctx, tx, s.entry(m, domain.EntryRefundReversal, m.Amount))
	if err != nil || !inserted {
		return domain.ReversalResult{}, false, err
	}
	if err := s.ensure(ctx, tx, m.SellerID, m.Currency); err != nil {
		return domain.ReversalResult{}, false, err
	}
	current, err := s.repo.FindBalance(ctx, tx, m.SellerID, m.Currency)
	if err != nil {
		return domain.ReversalResult{}, false, err
	}

	result := domain.ReversalResult{FromAvailable: money.Min(current.AvailableBalance, m.Amount)}
	result.ToReceivable = m.Amount - result.FromAvailable
	ok, err := s.adjust(ctx, tx, m, domain.Delta{Available: -result.FromAvailable, Receivable: result.ToReceivable})
	if err != nil {
		return domain.ReversalResult{}, false, err
	}
	if !ok {
		return domain.ReversalResult{}, false, fmt.Errorf("reverse %s: balance changed concurrently", m.SourceID)
	}

	// Take the refunded share out of the original credit's unswept remainder so a
	// later payout does not pay it again.
	credit, err := s.repo.FindEntry(ctx, tx, domain.EntryCredit, domain.SourceTransaction, transactionID)
	if err != nil {
		return domain.ReversalResult{}, false, err
	}
	if credit != nil {
		if take := money.Min(credit.Unswept(), m.Amount); take > 0 {
			if _, err := s.repo.ReverseCredit(ctx, tx, credit.ID, take); err != nil {
				return domain.ReversalResult{}, false, err
			}
		}
	}

	if result.ToReceivable > 0 {
		s.log.Warn("refund reversal exceeded available balance, receivable recorded",
			zap.String("seller_id", m.SellerID),
			zap.String("currency", m.Currency),
			zap.String("refund_id", m.SourceID),
			zap.Int64("receivable", result.ToReceivable),
		)
	}
	return result, true, nil
}

func (s *Service) AllocateCredits(ctx context.Context, tx *gorm.DB, sellerID, currency string, amount int64, cutoff *time.Time) ([]domain.Allocation, error) {
	if amount <= 0 {
		return nil, domain.ErrInvalidAmount
	}
	currency = strings.ToUpper(strings.TrimSpace(currency))
	credits, err := s.repo.ListUnsweptCredits(ctx, tx, strings.TrimSpace(sellerID), currency, cutoff)
	if err != nil {
		return nil, err
	}

	remaining := amount
	var out []domain.Allocation
	for _, credit := range credits {
		if remaining == 0 {
			break
		}
		take := money.Min(credit.Unswept(), remaining)
		ok, err := s.repo.SweepCredit(ctx, tx, credit.ID, take)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		out = append(out, domain.Allocation{
			CreditEntryID: credit.ID,
			TransactionID: credit.SourceID,
			Amount:        take,
		})
		remaining -= take
	}
	if remaining > 0 {
		// Available can exceed unswept credits after compensations of older
		// payouts; the residue is carried without a source transaction.
		out = append(out, domain.Allocation{Amount: remaining})
	}
	return out, nil
}

// Get returns the committed balance; a seller with no activity has a zero balance.
func (s *Service) Get(ctx context.Context, sellerID, currency string) (domain.SellerBalance, error) {
	sellerID = strings.TrimSpace(sellerID)
	currency = strings.ToUpper(strings.TrimSpace(currency))
	if sellerID == "" {
		return domain.SellerBalance{}, domain.ErrInvalidSeller
	}
	if currency == "" {
		return domain.SellerBalance{}, domain.ErrInvalidCurrency
	}
	b, err := s.repo.FindBalance(ctx, s.db, sellerID, currency)
	if err != nil {
		return domain.SellerBalance{}, err
	}
	if b == nil {
		return domain.SellerBalance{SellerID: sellerID, Currency: currency}, nil
	}
	return *b, nil
}

func (s *Service) EligibleForPayout(ctx context.Context, sellerID, currency string, cutoff time.Time) (int64, error) {
	b, err := s.Get(ctx, sellerID, currency)
	if err != nil {
		return 0, err
	}
	unswept, err := s.repo.SumUnswept(ctx, s.db, b.SellerID, b.Currency, cutoff)
	if err != nil {
		return 0, err
	}
	return money.Max(0, money.Min(unswept, b.AvailableBalance)), nil
}

func (s *Service) Entries(ctx context.Context, sellerID, currency string, limit int) ([]domain.Entry, error) {
	return s.repo.ListEntries(ctx, s.db, strings.TrimSpace(sellerID), strings.ToUpper(strings.TrimSpace(currency)), limit)
}
