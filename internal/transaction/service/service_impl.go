package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	balancedomain "github.com/smallbiznis/settlement/internal/balance/domain"
	"github.com/smallbiznis/settlement/internal/clock"
	"github.com/smallbiznis/settlement/internal/config"
	ledgerdomain "github.com/smallbiznis/settlement/internal/ledger/domain"
	"github.com/smallbiznis/settlement/internal/lock"
	"github.com/smallbiznis/settlement/internal/notification"
	obsmetrics "github.com/smallbiznis/settlement/internal/observability/metrics"
	"github.com/smallbiznis/settlement/internal/provider/adapters"
	"github.com/smallbiznis/settlement/internal/reference"
	revsharedomain "github.com/smallbiznis/settlement/internal/revenueshare/domain"
	"github.com/smallbiznis/settlement/internal/transaction/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const maxNoteLength = 2000

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Repo       domain.Repository
	Settlement *config.SettlementHolder
	RevShare   revsharedomain.Service
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
	revshare   revsharedomain.Service
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
		log:        p.Log.Named("transaction.service"),
		genID:      p.GenID,
		repo:       p.Repo,
		settlement: p.Settlement,
		revshare:   p.RevShare,
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

func (s *Service) Get(ctx context.Context, id snowflake.ID) (*domain.Transaction, error) {
	t, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if t == nil {
		return nil, domain.ErrTransactionNotFound
	}
	return t, nil
}

func (s *Service) GetByReference(ctx context.Context, ref string) (*domain.Transaction, error) {
	t, err := s.repo.FindByReference(ctx, s.db, strings.TrimSpace(ref))
	if err != nil {
		return nil, err
	}
	if t == nil {
		return nil, domain.ErrTransactionNotFound
	}
	return t, nil
}

func (s *Service) List(ctx context.Context, f domain.ListFilter) ([]domain.Transaction, error) {
	return s.repo.List(ctx, s.db, f)
}

// Cancel is an explicit action and only applies before the provider is involved.
func (s *Service) Cancel(ctx context.Context, id snowflake.ID, reason string) (*domain.Transaction, error) {
	var out *domain.Transaction
	err := lock.WithLock(ctx, s.locker, lock.TransactionKey(id.String()), func(ctx context.Context) error {
		t, err := s.Get(ctx, id)
		if err != nil {
			return err
		}
		if t.Status != domain.StatusPending {
			return domain.ErrInvalidTransactionState
		}
		now := s.clock.Now().UTC()
		changes := map[string]any{"cancelled_at": now, "updated_at": now}
		if reason = strings.TrimSpace(reason); reason != "" {
			changes["failure_reason"] = reason
		}
		ok, err := s.repo.Transition(ctx, s.db, id, []domain.Status{domain.StatusPending}, domain.StatusCancelled, changes)
		if err != nil {
			return err
		}
		if !ok {
			return domain.ErrInvalidTransactionState
		}
		out, err = s.Get(ctx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.afterTransition(ctx, out)
	return out, nil
}

func (s *Service) AddNote(ctx context.Context, id snowflake.ID, author, body string) (*domain.Note, error) {
	body = strings.TrimSpace(body)
	if body == "" || len(body) > maxNoteLength {
		return nil, domain.ErrInvalidNote
	}
	if _, err := s.Get(ctx, id); err != nil {
		return nil, err
	}
	note := &domain.Note{
		ID:            s.genID.Generate(),
		TransactionID: id,
		Author:        strings.TrimSpace(author),
		Body:          body,
		CreatedAt:     s.clock.Now().UTC(),
	}
	if err := s.repo.InsertNote(ctx, s.db, note); err != nil {
		return nil, err
	}
	return note, nil
}

func (s *Service) Notes(ctx context.Context, id snowflake.ID) ([]domain.Note, error) {
	if _, err := s.Get(ctx, id); err != nil {
		return nil, err
	}
	return s.repo.ListNotes(ctx, s.db, id)
}

// afterTransition publishes terminal outcomes once they are committed.
func (s *Service) afterTransition(ctx context.Context, t *domain.Transaction) {
	if t == nil || !t.Status.Terminal() {
		return
	}
	s.obsMetrics.RecordTransaction(ctx, t.Provider, string(t.Status))
	if t.Status == domain.StatusCompleted {
		s.obsMetrics.RecordSettlement(ctx, t.Currency, t.SellerShareInBase)
	}
	s.notifier.Notify(ctx, notification.Event{
		EntityType: notification.EntityTransaction,
		EntityID:   t.ID.String(),
		Status:     string(t.Status),
		Amount:     t.Amount,
		Currency:   t.Currency,
		OccurredAt: s.clock.Now().UTC(),
	})
}

func optional(v string) *string {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil
	}
	return &v
}
