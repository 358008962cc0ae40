package repository

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/settlement/internal/balance/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) EnsureBalance(ctx context.Context, db *gorm.DB, b *domain.SellerBalance) error {
	return db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "seller_id"}, {Name: "currency"}},
			DoNothing: true,
		}).
		Create(b).Error
}

func (r *repo) FindBalance(ctx context.Context, db *gorm.DB, sellerID, currency string) (*domain.SellerBalance, error) {
	var b domain.SellerBalance
	err := db.WithContext(ctx).
		Where("seller_id = ? AND currency = ?", sellerID, currency).
		First(&b).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &b, nil
}

func (r *repo) InsertEntry(ctx context.Context, db *gorm.DB, e *domain.Entry) (bool, error) {
	res := db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "kind"}, {Name: "source_type"}, {Name: "source_id"}},
			DoNothing: true,
		}).
		Create(e)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) FindEntry(ctx context.Context, db *gorm.DB, kind domain.EntryKind, sourceType, sourceID string) (*domain.Entry, error) {
	var e domain.Entry
	err := db.WithContext(ctx).
		Where("kind = ? AND source_type = ? AND source_id = ?", kind, sourceType, sourceID).
		First(&e).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func (r *repo) AdjustBalance(ctx context.Context, db *gorm.DB, sellerID, currency string, d domain.Delta, now time.Time) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE seller_balances
		 SET available_balance = available_balance + ?,
		     pending_balance = pending_balance + ?,
		     receivable_balance = receivable_balance + ?,
		     version = version + 1,
		     updated_at = ?
		 WHERE seller_id = ? AND currency = ?
		   AND available_balance + ? >= 0
		   AND pending_balance + ? >= 0
		   AND receivable_balance + ? >= 0`,
		d.Available, d.Pending, d.Receivable,
		now,
		sellerID, currency,
		d.Available, d.Pending, d.Receivable,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) ListUnsweptCredits(ctx context.Context, db *gorm.DB, sellerID, currency string, cutoff *time.Time) ([]domain.Entry, error) {
	q := db.WithContext(ctx).
		Where("seller_id = ? AND currency = ? AND kind = ?", sellerID, currency, domain.EntryCredit).
		Where("amount - swept_amount - reversed_amount > 0")
	if cutoff != nil {
		q = q.Where("created_at <= ?", *cutoff)
	}
	var entries []domain.Entry
	if err := q.Order("created_at ASC, id ASC").Find(&entries).Error; err != nil {
		return nil, err
	}
	return entries, nil
}

func (r *repo) SweepCredit(ctx context.Context, db *gorm.DB, id snowflake.ID, amount int64) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE balance_entries
		 SET swept_amount = swept_amount + ?
		 WHERE id = ? AND kind = ? AND amount - swept_amount - reversed_amount >= ?`,
		amount, id, domain.EntryCredit, amount,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) UnsweepCredit(ctx context.Context, db *gorm.DB, id snowflake.ID, amount int64) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE balance_entries
		 SET swept_amount = swept_amount - ?
		 WHERE id = ? AND kind = ? AND swept_amount >= ?`,
		amount, id, domain.EntryCredit, amount,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) ReverseCredit(ctx context.Context, db *gorm.DB, id snowflake.ID, amount int64) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE balance_entries
		 SET reversed_amount = reversed_amount + ?
		 WHERE id = ? AND kind = ? AND amount - swept_amount - reversed_amount >= ?`,
		amount, id, domain.EntryCredit, amount,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) SumUnswept(ctx context.Context, db *gorm.DB, sellerID, currency string, cutoff time.Time) (int64, error) {
	var total int64
	err := db.WithContext(ctx).
		Model(&domain.Entry{}).
		Select("COALESCE(SUM(amount - swept_amount - reversed_amount), 0)").
		Where("seller_id = ? AND currency = ? AND kind = ? AND created_at <= ?", sellerID, currency, domain.EntryCredit, cutoff).
		Scan(&total).Error
	return total, err
}

func (r *repo) ListEntries(ctx context.Context, db *gorm.DB, sellerID, currency string, limit int) ([]domain.Entry, error) {
	if limit <= 0 || limit > 250 {
		limit = 50
	}
	var entries []domain.Entry
	err := db.WithContext(ctx).
		Where("seller_id = ? AND currency = ?", sellerID, currency).
		Order("created_at DESC, id DESC").
		Limit(limit).
		Find(&entries).Error
	return entries, err
}
