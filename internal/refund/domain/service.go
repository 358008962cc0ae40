package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	providerdomain "github.com/smallbiznis/settlement/internal/provider/domain"
	revsharedomain "github.com/smallbiznis/settlement/internal/revenueshare/domain"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, r *Refund) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Refund, error)
	FindByReference(ctx context.Context, db *gorm.DB, reference string) (*Refund, error)
	FindByExternalReference(ctx context.Context, db *gorm.DB, externalRef string) (*Refund, error)
	Transition(ctx context.Context, db *gorm.DB, id snowflake.ID, from []Status, next Status, changes map[string]any) (bool, error)
	ListByTransaction(ctx context.Context, db *gorm.DB, transactionID snowflake.ID) ([]Refund, error)
	// SumActive totals every refund that is not failed.
	SumActive(ctx context.Context, db *gorm.DB, transactionID snowflake.ID) (int64, error)
	// SumReversed totals what completed refunds already took back.
	SumReversed(ctx context.Context, db *gorm.DB, transactionID snowflake.ID) (revsharedomain.Reversal, error)
	ListUnresolved(ctx context.Context, db *gorm.DB, before time.Time, limit int) ([]Refund, error)
}

type Service interface {
	// RequestRefund validates against the transaction and every earlier refund,
	// then submits to the provider. Provider errors are recorded on the refund.
	RequestRefund(ctx context.Context, req Request) (*Refund, error)
	Verify(ctx context.Context, id snowflake.ID) (*Refund, error)
	Get(ctx context.Context, id snowflake.ID) (*Refund, error)
	ListByTransaction(ctx context.Context, transactionID snowflake.ID) ([]Refund, error)
	HandleCallback(ctx context.Context, cb providerdomain.Callback) (*Refund, error)
	// ReconcileUnresolved verifies refunds still pending or processing.
	ReconcileUnresolved(ctx context.Context, limit int) (int, error)
}
