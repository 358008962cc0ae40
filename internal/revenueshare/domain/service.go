package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, cfg *Configuration) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Configuration, error)
	FindDefault(ctx context.Context, db *gorm.DB) (*Configuration, error)
	List(ctx context.Context, db *gorm.DB) ([]Configuration, error)
	Count(ctx context.Context, db *gorm.DB) (int64, error)
	ClearDefault(ctx context.Context, db *gorm.DB) error
	MarkDefault(ctx context.Context, db *gorm.DB, id snowflake.ID) (bool, error)
	Supersede(ctx context.Context, db *gorm.DB, id, by snowflake.ID) (bool, error)
}

type Service interface {
	Create(ctx context.Context, req CreateRequest) (*Configuration, error)
	Revise(ctx context.Context, id snowflake.ID, req ReviseRequest) (*Configuration, error)
	SetDefault(ctx context.Context, id snowflake.ID) (*Configuration, error)
	Get(ctx context.Context, id snowflake.ID) (*Configuration, error)
	GetDefault(ctx context.Context) (*Configuration, error)
	List(ctx context.Context) ([]Configuration, error)
	EnsureDefault(ctx context.Context, seed CreateRequest) (*Configuration, error)
}
