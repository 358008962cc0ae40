package domain

import (
	"context"
	"errors"

	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, entry *Entry) error
	List(ctx context.Context, db *gorm.DB, filter ListFilter) ([]Entry, error)
}

type Service interface {
	// Record writes one entry. The actor and request id come from ctx.
	Record(ctx context.Context, rec Record) (*Entry, error)
	List(ctx context.Context, filter ListFilter) ([]Entry, error)
}

var (
	ErrInvalidAction    = errors.New("invalid_action")
	ErrInvalidTimeRange = errors.New("invalid_time_range")
)
