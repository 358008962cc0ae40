package repository

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/settlement/internal/revenueshare/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, cfg *domain.Configuration) error {
	return db.WithContext(ctx).Create(cfg).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Configuration, error) {
	var cfg domain.Configuration
	err := db.WithContext(ctx).Where("id = ?", id).First(&cfg).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (r *repo) FindDefault(ctx context.Context, db *gorm.DB) (*domain.Configuration, error) {
	var cfg domain.Configuration
	err := db.WithContext(ctx).
		Where("is_default = ? AND is_active = ?", true, true).
		Order("version DESC").
		First(&cfg).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB) ([]domain.Configuration, error) {
	var items []domain.Configuration
	if err := db.WithContext(ctx).Order("name ASC, version DESC").Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) Count(ctx context.Context, db *gorm.DB) (int64, error) {
	var count int64
	err := db.WithContext(ctx).Model(&domain.Configuration{}).Count(&count).Error
	return count, err
}

func (r *repo) ClearDefault(ctx context.Context, db *gorm.DB) error {
	return db.WithContext(ctx).Exec(
		`UPDATE revenue_share_configs
		 SET is_default = ?, updated_at = ?
		 WHERE is_default = ?`,
		false,
		time.Now().UTC(),
		true,
	).Error
}

func (r *repo) MarkDefault(ctx context.Context, db *gorm.DB, id snowflake.ID) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE revenue_share_configs
		 SET is_default = ?, updated_at = ?
		 WHERE id = ? AND is_active = ?`,
		true,
		time.Now().UTC(),
		id,
		true,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) Supersede(ctx context.Context, db *gorm.DB, id, by snowflake.ID) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE revenue_share_configs
		 SET is_active = ?, is_default = ?, superseded_by = ?, updated_at = ?
		 WHERE id = ? AND is_active = ?`,
		false,
		false,
		by,
		time.Now().UTC(),
		id,
		true,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}
