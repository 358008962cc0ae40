package domain

import (
	"context"

	"gorm.io/gorm"
)

type Service interface {
	// Post writes the entry inside tx, or in its own transaction when tx is nil. It
	// reports false without error when the source already posted.
	Post(ctx context.Context, tx *gorm.DB, req PostRequest) (bool, error)
	Lines(ctx context.Context, sourceType SourceType, sourceID string) ([]PostedLine, error)
	// AccountBalance returns debits minus credits for the account in currency.
	AccountBalance(ctx context.Context, code AccountCode, currency string) (int64, error)
}
