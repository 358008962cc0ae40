package service

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/settlement/internal/clock"
	ledgerdomain "github.com/smallbiznis/settlement/internal/ledger/domain"
	obsmetrics "github.com/smallbiznis/settlement/internal/observability/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Clock      clock.Clock         `optional:"true"`
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	clock      clock.Clock
	obsMetrics *obsmetrics.Metrics

	mu       sync.RWMutex
	accounts map[ledgerdomain.AccountCode]snowflake.ID
}

func NewService(p Params) ledgerdomain.Service {
	clk := p.Clock
	if clk == nil {
		clk = clock.SystemClock{}
	}
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("ledger.service"),
		genID:      p.GenID,
		clock:      clk,
		obsMetrics: p.ObsMetrics,
		accounts:   map[ledgerdomain.AccountCode]snowflake.ID{},
	}
}

func (s *Service) Post(ctx context.Context, tx *gorm.DB, req ledgerdomain.PostRequest) (bool, error) {
	if strings.TrimSpace(string(req.SourceType)) == "" {
		return false, ledgerdomain.ErrInvalidSourceType
	}
	if strings.TrimSpace(req.SourceID) == "" {
		return false, ledgerdomain.ErrInvalidSourceID
	}
	currency := strings.ToUpper(strings.TrimSpace(req.Currency))
	if currency == "" {
		return false, ledgerdomain.ErrInvalidCurrency
	}
	if req.OccurredAt.IsZero() {
		return false, ledgerdomain.ErrInvalidOccurredAt
	}

	lines := ledgerdomain.Compact(req.Lines)
	if len(lines) < 2 {
		return false, ledgerdomain.ErrInvalidEntryLines
	}
	for _, line := range lines {
		if !line.Account.Known() {
			return false, ledgerdomain.ErrInvalidAccount
		}
		if line.Amount < 0 {
			return false, ledgerdomain.ErrInvalidLineAmount
		}
	}
	if err := ledgerdomain.ValidateBalanced(lines); err != nil {
		return false, err
	}

	inserted := false
	resolved := map[ledgerdomain.AccountCode]snowflake.ID{}
	post := func(tx *gorm.DB) error {
		now := s.clock.Now().UTC()
		entry := ledgerdomain.Entry{
			ID:         s.genID.Generate(),
			SourceType: req.SourceType,
			SourceID:   req.SourceID,
			Currency:   currency,
			OccurredAt: req.OccurredAt.UTC(),
			CreatedAt:  now,
		}
		result := tx.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&entry)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return nil
		}
		inserted = true

		rows := make([]ledgerdomain.EntryLine, 0, len(lines))
		for _, line := range lines {
			accountID, err := s.accountID(ctx, tx, line.Account)
			if err != nil {
				return err
			}
			resolved[line.Account] = accountID
			rows = append(rows, ledgerdomain.EntryLine{
				ID:            s.genID.Generate(),
				LedgerEntryID: entry.ID,
				AccountID:     accountID,
				Direction:     line.Direction,
				Amount:        line.Amount,
				CreatedAt:     now,
			})
		}
		return tx.WithContext(ctx).Create(&rows).Error
	}

	if tx != nil {
		// The caller owns the commit; account ids are cached on a later standalone post.
		if err := post(tx); err != nil {
			return false, err
		}
	} else {
		if err := s.db.WithContext(ctx).Transaction(post); err != nil {
			return false, err
		}
		s.mu.Lock()
		for code, id := range resolved {
			s.accounts[code] = id
		}
		s.mu.Unlock()
	}
	if inserted {
		s.obsMetrics.RecordLedgerEntry(ctx, string(req.SourceType))
	} else {
		s.log.Debug("ledger entry already posted",
			zap.String("source_type", string(req.SourceType)),
			zap.String("source_id", req.SourceID),
		)
	}
	return inserted, nil
}

// accountID resolves the account row, creating it on first use.
func (s *Service) accountID(ctx context.Context, tx *gorm.DB, code ledgerdomain.AccountCode) (snowflake.ID, error) {
	s.mu.RLock()
	id, ok := s.accounts[code]
	s.mu.RUnlock()
	if ok {
		return id, nil
	}

	account := ledgerdomain.Account{
		ID:        s.genID.Generate(),
		Code:      code,
		Name:      code.Name(),
		CreatedAt: s.clock.Now().UTC(),
	}
	if err := tx.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&account).Error; err != nil {
		return 0, err
	}
	var stored ledgerdomain.Account
	if err := tx.WithContext(ctx).Where("code = ?", code).First(&stored).Error; err != nil {
		return 0, err
	}
	return stored.ID, nil
}

func (s *Service) Lines(ctx context.Context, sourceType ledgerdomain.SourceType, sourceID string) ([]ledgerdomain.PostedLine, error) {
	var lines []ledgerdomain.PostedLine
	err := s.db.WithContext(ctx).
		Table("ledger_entry_lines AS l").
		Select("a.code AS account, l.direction, l.amount").
		Joins("JOIN ledger_entries e ON e.id = l.ledger_entry_id").
		Joins("JOIN ledger_accounts a ON a.id = l.account_id").
		Where("e.source_type = ? AND e.source_id = ?", sourceType, sourceID).
		Order("l.id").
		Scan(&lines).Error
	if err != nil {
		return nil, err
	}
	return lines, nil
}

func (s *Service) AccountBalance(ctx context.Context, code ledgerdomain.AccountCode, currency string) (int64, error) {
	if !code.Known() {
		return 0, ledgerdomain.ErrInvalidAccount
	}
	var row struct {
		Debit  int64
		Credit int64
	}
	err := s.db.WithContext(ctx).
		Table("ledger_entry_lines AS l").
		Select(`COALESCE(SUM(CASE WHEN l.direction = 'debit' THEN l.amount ELSE 0 END), 0) AS debit,
			COALESCE(SUM(CASE WHEN l.direction = 'credit' THEN l.amount ELSE 0 END), 0) AS credit`).
		Joins("JOIN ledger_entries e ON e.id = l.ledger_entry_id").
		Joins("JOIN ledger_accounts a ON a.id = l.account_id").
		Where("a.code = ? AND e.currency = ?", code, strings.ToUpper(currency)).
		Scan(&row).Error
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, err
	}
	return row.Debit - row.Credit, nil
}
