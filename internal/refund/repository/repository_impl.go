package repository

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/settlement/internal/refund/domain"
	revsharedomain "github.com/smallbiznis/settlement/internal/revenueshare/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, refund *domain.Refund) error {
	return db.WithContext(ctx).Create(refund).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Refund, error) {
	return r.findOne(ctx, db, "id = ?", id)
}

func (r *repo) FindByReference(ctx context.Context, db *gorm.DB, reference string) (*domain.Refund, error) {
	return r.findOne(ctx, db, "reference = ?", reference)
}

func (r *repo) FindByExternalReference(ctx context.Context, db *gorm.DB, externalRef string) (*domain.Refund, error) {
	return r.findOne(ctx, db, "external_reference = ?", externalRef)
}

func (r *repo) findOne(ctx context.Context, db *gorm.DB, query string, arg any) (*domain.Refund, error) {
	var out domain.Refund
	err := db.WithContext(ctx).Where(query, arg).Order("id DESC").First(&out).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *repo) Transition(ctx context.Context, db *gorm.DB, id snowflake.ID, from []domain.Status, next domain.Status, changes map[string]any) (bool, error) {
	updates := map[string]any{"status": next}
	for k, v := range changes {
		updates[k] = v
	}
	res := db.WithContext(ctx).
		Model(&domain.Refund{}).
		Where("id = ? AND status IN ?", id, from).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) ListByTransaction(ctx context.Context, db *gorm.DB, transactionID snowflake.ID) ([]domain.Refund, error) {
	var out []domain.Refund
	err := db.WithContext(ctx).
		Where("transaction_id = ?", transactionID).
		Order("id ASC").
		Find(&out).Error
	return out, err
}

func (r *repo) SumActive(ctx context.Context, db *gorm.DB, transactionID snowflake.ID) (int64, error) {
	var total int64
	err := db.WithContext(ctx).
		Model(&domain.Refund{}).
		Select("COALESCE(SUM(amount), 0)").
		Where("transaction_id = ? AND status <> ?", transactionID, domain.StatusFailed).
		Scan(&total).Error
	return total, err
}

func (r *repo) SumReversed(ctx context.Context, db *gorm.DB, transactionID snowflake.ID) (revsharedomain.Reversal, error) {
	var row struct {
		Seller     int64
		Commission int64
		Fees       int64
	}
	err := db.WithContext(ctx).
		Model(&domain.Refund{}).
		Select(`COALESCE(SUM(seller_reversal), 0) AS seller,
			COALESCE(SUM(commission_reversal), 0) AS commission,
			COALESCE(SUM(fee_reversal), 0) AS fees`).
		Where("transaction_id = ? AND status = ?", transactionID, domain.StatusCompleted).
		Scan(&row).Error
	if err != nil {
		return revsharedomain.Reversal{}, err
	}
	return revsharedomain.Reversal{SellerPayout: row.Seller, Commission: row.Commission, Fees: row.Fees}, nil
}

func (r *repo) ListUnresolved(ctx context.Context, db *gorm.DB, before time.Time, limit int) ([]domain.Refund, error) {
	if limit <= 0 {
		limit = 50
	}
	var out []domain.Refund
	err := db.WithContext(ctx).
		Where("status IN ? AND updated_at <= ?", []domain.Status{domain.StatusPending, domain.StatusProcessing}, before).
		Order("updated_at ASC").
		Limit(limit).
		Find(&out).Error
	return out, err
}
