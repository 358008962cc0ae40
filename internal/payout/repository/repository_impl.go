package repository

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/settlement/internal/payout/domain"
	"gorm.io/gorm"
)

const defaultListLimit = 50

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) InsertAccount(ctx context.Context, db *gorm.DB, a *domain.Account) error {
	return db.WithContext(ctx).Create(a).Error
}

func (r *repo) FindAccount(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Account, error) {
	var a domain.Account
	err := db.WithContext(ctx).Where("id = ?", id).First(&a).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *repo) FindDefaultAccount(ctx context.Context, db *gorm.DB, sellerID, currency string) (*domain.Account, error) {
	var a domain.Account
	err := db.WithContext(ctx).
		Where("seller_id = ? AND currency = ? AND is_default = ?", sellerID, currency, true).
		Order("id DESC").
		First(&a).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *repo) ClearDefaultAccount(ctx context.Context, db *gorm.DB, sellerID, currency string, now time.Time) error {
	return db.WithContext(ctx).
		Model(&domain.Account{}).
		Where("seller_id = ? AND currency = ? AND is_default = ?", sellerID, currency, true).
		Updates(map[string]any{"is_default": false, "updated_at": now}).Error
}

func (r *repo) ListAccounts(ctx context.Context, db *gorm.DB, sellerID string) ([]domain.Account, error) {
	var out []domain.Account
	err := db.WithContext(ctx).
		Where("seller_id = ?", sellerID).
		Order("currency ASC, id ASC").
		Find(&out).Error
	return out, err
}

// ListAutoPayoutAccounts returns default accounts opted into automatic payouts,
// least recently paid first.
func (r *repo) ListAutoPayoutAccounts(ctx context.Context, db *gorm.DB, limit int) ([]domain.Account, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	var out []domain.Account
	err := db.WithContext(ctx).
		Where("auto_payout_enabled = ? AND is_default = ?", true, true).
		Order("last_payout_at IS NOT NULL, last_payout_at ASC, id ASC").
		Limit(limit).
		Find(&out).Error
	return out, err
}

func (r *repo) TouchAccount(ctx context.Context, db *gorm.DB, id snowflake.ID, at time.Time) error {
	return db.WithContext(ctx).
		Model(&domain.Account{}).
		Where("id = ?", id).
		Updates(map[string]any{"last_payout_at": at, "updated_at": at}).Error
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, p *domain.Payout) error {
	return db.WithContext(ctx).Create(p).Error
}

func (r *repo) InsertItems(ctx context.Context, db *gorm.DB, items []domain.Item) error {
	if len(items) == 0 {
		return nil
	}
	return db.WithContext(ctx).Create(&items).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Payout, error) {
	return r.findOne(ctx, db, "id = ?", id)
}

func (r *repo) FindByReference(ctx context.Context, db *gorm.DB, reference string) (*domain.Payout, error) {
	return r.findOne(ctx, db, "reference = ?", reference)
}

func (r *repo) FindByExternalReference(ctx context.Context, db *gorm.DB, externalRef string) (*domain.Payout, error) {
	return r.findOne(ctx, db, "external_reference = ?", externalRef)
}

func (r *repo) findOne(ctx context.Context, db *gorm.DB, query string, arg any) (*domain.Payout, error) {
	var p domain.Payout
	err := db.WithContext(ctx).Where(query, arg).Order("id DESC").First(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *repo) Transition(ctx context.Context, db *gorm.DB, id snowflake.ID, from []domain.Status, next domain.Status, changes map[string]any) (bool, error) {
	updates := map[string]any{"status": next}
	for k, v := range changes {
		updates[k] = v
	}
	res := db.WithContext(ctx).
		Model(&domain.Payout{}).
		Where("id = ? AND status IN ?", id, from).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) ScheduleRetry(ctx context.Context, db *gorm.DB, id snowflake.ID, next time.Time, reason string, now time.Time) (bool, error) {
	res := db.WithContext(ctx).
		Model(&domain.Payout{}).
		Where("id = ? AND status = ?", id, domain.StatusPending).
		Updates(map[string]any{
			"retry_count":     gorm.Expr("retry_count + 1"),
			"next_attempt_at": next,
			"failure_reason":  reason,
			"updated_at":      now,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB, f domain.ListFilter) ([]domain.Payout, error) {
	q := db.WithContext(ctx).Model(&domain.Payout{})
	if f.SellerID != "" {
		q = q.Where("seller_id = ?", f.SellerID)
	}
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}
	if f.Automatic != nil {
		q = q.Where("automatic = ?", *f.Automatic)
	}
	if f.MinAmount != nil {
		q = q.Where("total_amount >= ?", *f.MinAmount)
	}
	if f.BeforeID != 0 {
		q = q.Where("id < ?", f.BeforeID)
	}
	limit := f.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	var out []domain.Payout
	err := q.Order("id DESC").Limit(limit).Find(&out).Error
	return out, err
}

func (r *repo) ListItems(ctx context.Context, db *gorm.DB, payoutID snowflake.ID) ([]domain.Item, error) {
	var out []domain.Item
	err := db.WithContext(ctx).Where("payout_id = ?", payoutID).Order("id ASC").Find(&out).Error
	return out, err
}

func (r *repo) ListRetryDue(ctx context.Context, db *gorm.DB, now time.Time, limit int) ([]domain.Payout, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	var out []domain.Payout
	err := db.WithContext(ctx).
		Where("status = ? AND next_attempt_at IS NOT NULL AND next_attempt_at <= ?", domain.StatusPending, now).
		Order("next_attempt_at ASC").
		Limit(limit).
		Find(&out).Error
	return out, err
}

func (r *repo) ListStaleProcessing(ctx context.Context, db *gorm.DB, before time.Time, limit int) ([]domain.Payout, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	var out []domain.Payout
	err := db.WithContext(ctx).
		Where("status = ? AND updated_at <= ?", domain.StatusProcessing, before).
		Order("updated_at ASC").
		Limit(limit).
		Find(&out).Error
	return out, err
}

func (r *repo) HasOpenPayout(ctx context.Context, db *gorm.DB, sellerID, currency string) (bool, error) {
	var count int64
	err := db.WithContext(ctx).
		Model(&domain.Payout{}).
		Where("seller_id = ? AND currency = ? AND status IN ?", sellerID, currency,
			[]domain.Status{domain.StatusPending, domain.StatusProcessing}).
		Count(&count).Error
	return count > 0, err
}
