package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	balancedomain "github.com/smallbiznis/settlement/internal/balance/domain"
	"github.com/smallbiznis/settlement/internal/clock"
	"github.com/smallbiznis/settlement/internal/config"
	"github.com/smallbiznis/settlement/internal/currency"
	ledgerdomain "github.com/smallbiznis/settlement/internal/ledger/domain"
	"github.com/smallbiznis/settlement/internal/lock"
	"github.com/smallbiznis/settlement/internal/notification"
	obsmetrics "github.com/smallbiznis/settlement/internal/observability/metrics"
	"github.com/smallbiznis/settlement/internal/payout/domain"
	"github.com/smallbiznis/settlement/internal/provider/adapters"
	"github.com/smallbiznis/settlement/internal/reference"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Repo       domain.Repository
	Settlement *config.SettlementHolder
	Balance    balancedomain.Service
	Ledger     ledgerdomain.Service
	Providers  *adapters.Registry
	Locker     lock.Locker
	Refs       reference.Generator
	Notifier   notification.Notifier `optional:"true"`
	Clock      clock.Clock           `optional:"true"`
	ObsMetrics *obsmetrics.Metrics   `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	repo       domain.Repository
	settlement *config.SettlementHolder
	balance    balancedomain.Service
	ledger     ledgerdomain.Service
	providers  *adapters.Registry
	locker     lock.Locker
	refs       reference.Generator
	notifier   notification.Notifier
	clock      clock.Clock
	obsMetrics *obsmetrics.Metrics
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
		db:         p.DB,
		log:        p.Log.Named("payout.service"),
		genID:      p.GenID,
		repo:       p.Repo,
		settlement: p.Settlement,
		balance:    p.Balance,
		ledger:     p.Ledger,
		providers:  p.Providers,
		locker:     p.Locker,
		refs:       p.Refs,
		notifier:   notifier,
		clock:      clk,
		obsMetrics: p.ObsMetrics,
	}
}

func (s *Service) RegisterAccount(ctx context.Context, req domain.RegisterAccountRequest) (*domain.Account, error) {
	sellerID := strings.TrimSpace(req.SellerID)
	if sellerID == "" {
		return nil, domain.ErrInvalidSeller
	}
	cur := currency.Normalize(req.Currency)
	snap := s.settlement.Current()
	if !snap.Rates.Supports(cur) {
		return nil, currency.ErrUnsupportedCurrency
	}
	method := domain.NormalizeMethod(req.Method)
	if _, err := snap.Payout.Fees.Compute(method, 0); err != nil {
		return nil, err
	}
	if len(req.Details) == 0 {
		return nil, domain.ErrInvalidAccount
	}

	now := s.clock.Now().UTC()
	account := &domain.Account{
		ID:                s.genID.Generate(),
		SellerID:          sellerID,
		Currency:          cur,
		Method:            method,
		Provider:          strings.ToLower(strings.TrimSpace(req.Provider)),
		Details:           datatypes.NewJSONType(req.Details),
		IsDefault:         req.IsDefault,
		AutoPayoutEnabled: req.AutoPayoutEnabled,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if account.IsDefault {
			if err := s.repo.ClearDefaultAccount(ctx, tx, sellerID, cur, now); err != nil {
				return err
			}
		} else {
			// The first account of a currency becomes the default.
			existing, err := s.repo.FindDefaultAccount(ctx, tx, sellerID, cur)
			if err != nil {
				return err
			}
			account.IsDefault = existing == nil
		}
		return s.repo.InsertAccount(ctx, tx, account)
	})
	if err != nil {
		return nil, err
	}
	return account, nil
}

func (s *Service) ListAccounts(ctx context.Context, sellerID string) ([]domain.Account, error) {
	sellerID = strings.TrimSpace(sellerID)
	if sellerID == "" {
		return nil, domain.ErrInvalidSeller
	}
	return s.repo.ListAccounts(ctx, s.db, sellerID)
}

func (s *Service) Get(ctx context.Context, id snowflake.ID) (*domain.Payout, error) {
	p, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, domain.ErrPayoutNotFound
	}
	return p, nil
}

func (s *Service) Items(ctx context.Context, id snowflake.ID) ([]domain.Item, error) {
	if _, err := s.Get(ctx, id); err != nil {
		return nil, err
	}
	return s.repo.ListItems(ctx, s.db, id)
}

func (s *Service) List(ctx context.Context, f domain.ListFilter) ([]domain.Payout, error) {
	return s.repo.List(ctx, s.db, f)
}

func (s *Service) notify(ctx context.Context, p *domain.Payout) {
	if p == nil {
		return
	}
	s.obsMetrics.RecordPayout(ctx, p.Method, string(p.Status))
	s.notifier.Notify(ctx, notification.Event{
		EntityType: notification.EntityPayout,
		EntityID:   p.ID.String(),
		Status:     string(p.Status),
		Amount:     p.NetAmount,
		Currency:   p.Currency,
		OccurredAt: s.clock.Now().UTC(),
	})
}
