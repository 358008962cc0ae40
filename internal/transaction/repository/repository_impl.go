package repository

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/settlement/internal/transaction/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, t *domain.Transaction) error {
	return db.WithContext(ctx).Create(t).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Transaction, error) {
	var t domain.Transaction
	err := db.WithContext(ctx).Where("id = ?", id).First(&t).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (r *repo) FindByReference(ctx context.Context, db *gorm.DB, reference string) (*domain.Transaction, error) {
	var t domain.Transaction
	err := db.WithContext(ctx).Where("reference = ?", reference).First(&t).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (r *repo) FindByExternalReference(ctx context.Context, db *gorm.DB, externalRef string) (*domain.Transaction, error) {
	var t domain.Transaction
	err := db.WithContext(ctx).Where("external_reference = ?", externalRef).Order("id DESC").First(&t).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (r *repo) Transition(ctx context.Context, db *gorm.DB, id snowflake.ID, from []domain.Status, next domain.Status, changes map[string]any) (bool, error) {
	updates := map[string]any{"status": next}
	for k, v := range changes {
		updates[k] = v
	}
	res := db.WithContext(ctx).
		Model(&domain.Transaction{}).
		Where("id = ? AND status IN ?", id, from).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) SetExternal(ctx context.Context, db *gorm.DB, id snowflake.ID, externalRef, providerTxnID string, now time.Time) error {
	updates := map[string]any{"updated_at": now}
	if externalRef != "" {
		updates["external_reference"] = externalRef
	}
	if providerTxnID != "" {
		updates["provider_transaction_id"] = providerTxnID
	}
	return db.WithContext(ctx).
		Model(&domain.Transaction{}).
		Where("id = ? AND status IN ?", id, []domain.Status{domain.StatusPending, domain.StatusProcessing}).
		Updates(updates).Error
}

func (r *repo) List(ctx context.Context, db *gorm.DB, f domain.ListFilter) ([]domain.Transaction, error) {
	q := db.WithContext(ctx).Model(&domain.Transaction{})
	if f.PayeeID != "" {
		q = q.Where("payee_id = ?", f.PayeeID)
	}
	if f.PayerID != "" {
		q = q.Where("payer_id = ?", f.PayerID)
	}
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}
	if f.From != nil {
		q = q.Where("initiated_at >= ?", *f.From)
	}
	if f.To != nil {
		q = q.Where("initiated_at < ?", *f.To)
	}
	if f.BeforeID != 0 {
		q = q.Where("id < ?", f.BeforeID)
	}
	limit := f.Limit
	if limit <= 0 || limit > 250 {
		limit = 50
	}
	var items []domain.Transaction
	if err := q.Order("id DESC").Limit(limit).Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) ListExpirable(ctx context.Context, db *gorm.DB, now time.Time, limit int) ([]domain.Transaction, error) {
	var items []domain.Transaction
	err := db.WithContext(ctx).
		Where("status = ? AND expires_at <= ?", domain.StatusPending, now).
		Order("expires_at ASC").
		Limit(limit).
		Find(&items).Error
	return items, err
}

func (r *repo) ListStaleProcessing(ctx context.Context, db *gorm.DB, before time.Time, limit int) ([]domain.Transaction, error) {
	var items []domain.Transaction
	err := db.WithContext(ctx).
		Where("status = ? AND updated_at <= ?", domain.StatusProcessing, before).
		Order("updated_at ASC").
		Limit(limit).
		Find(&items).Error
	return items, err
}

func (r *repo) InsertNote(ctx context.Context, db *gorm.DB, n *domain.Note) error {
	return db.WithContext(ctx).Create(n).Error
}

func (r *repo) ListNotes(ctx context.Context, db *gorm.DB, transactionID snowflake.ID) ([]domain.Note, error) {
	var notes []domain.Note
	err := db.WithContext(ctx).
		Where("transaction_id = ?", transactionID).
		Order("created_at ASC, id ASC").
		Find(&notes).Error
	return notes, err
}
