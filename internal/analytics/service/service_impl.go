package service

import (
	"context"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/smallbiznis/settlement/internal/analytics/domain"
	"github.com/smallbiznis/settlement/internal/config"
	txdomain "github.com/smallbiznis/settlement/internal/transaction/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	Settlement *config.SettlementHolder
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	settlement *config.SettlementHolder
}

func NewService(p Params) domain.Service {
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("analytics.service"),
		settlement: p.Settlement,
	}
}

type methodRow struct {
	PaymentMethod  string
	Total          int64
	Completed      int64
	Amount         int64
	PlatformAmount int64
	SellerAmount   int64
}

func (s *Service) GetAnalytics(ctx context.Context, req domain.Request) (domain.Analytics, error) {
	if req.Start.IsZero() || req.End.IsZero() || !req.Start.Before(req.End) {
		return domain.Analytics{}, domain.ErrInvalidRange
	}
	sellerID := strings.TrimSpace(req.SellerID)

	q := s.db.WithContext(ctx).
		Model(&txdomain.Transaction{}).
		Select(`payment_method,
			COUNT(*) AS total,
			SUM(CASE WHEN status = ? THEN 1 ELSE 0 END) AS completed,
			COALESCE(SUM(CASE WHEN status = ? THEN amount_in_base_currency ELSE 0 END), 0) AS amount,
			COALESCE(SUM(CASE WHEN status = ? THEN platform_share_in_base ELSE 0 END), 0) AS platform_amount,
			COALESCE(SUM(CASE WHEN status = ? THEN seller_share_in_base ELSE 0 END), 0) AS seller_amount`,
			txdomain.StatusCompleted, txdomain.StatusCompleted, txdomain.StatusCompleted, txdomain.StatusCompleted).
		Where("type = ? AND initiated_at >= ? AND initiated_at < ?", txdomain.TypePayment, req.Start.UTC(), req.End.UTC())
	if sellerID != "" {
		q = q.Where("payee_id = ?", sellerID)
	}
	var rows []methodRow
	if err := q.Group("payment_method").Order("payment_method ASC").Scan(&rows).Error; err != nil {
		return domain.Analytics{}, err
	}

	out := domain.Analytics{
		Start:                  req.Start.UTC(),
		End:                    req.End.UTC(),
		SellerID:               sellerID,
		BaseCurrency:           s.settlement.Current().Rates.Base(),
		PaymentMethodBreakdown: make(map[string]domain.MethodStats, len(rows)),
	}
	for _, row := range rows {
		out.TotalTransactions += row.Total
		out.CompletedTransactions += row.Completed
		out.TotalRevenue += row.Amount
		out.PlatformRevenue += row.PlatformAmount
		out.SellerRevenue += row.SellerAmount
		out.PaymentMethodBreakdown[row.PaymentMethod] = domain.MethodStats{Count: row.Total, Amount: row.Amount}
	}
	out.SuccessRate = successRate(out.CompletedTransactions, out.TotalTransactions)
	return out, nil
}

func successRate(completed, total int64) float64 {
	if total == 0 {
		return 0
	}
	return decimal.NewFromInt(completed).
		Div(decimal.NewFromInt(total)).
		Round(4).
		InexactFloat64()
}
