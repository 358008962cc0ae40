package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	providerdomain "github.com/smallbiznis/settlement/internal/provider/domain"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, t *Transaction) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Transaction, error)
	FindByReference(ctx context.Context, db *gorm.DB, reference string) (*Transaction, error)
	FindByExternalReference(ctx context.Context, db *gorm.DB, externalRef string) (*Transaction, error)
	// Transition moves the record from one of from to next and applies the column
	// changes; false means another writer moved it first.
	Transition(ctx context.Context, db *gorm.DB, id snowflake.ID, from []Status, next Status, changes map[string]any) (bool, error)
	SetExternal(ctx context.Context, db *gorm.DB, id snowflake.ID, externalRef, providerTxnID string, now time.Time) error
	List(ctx context.Context, db *gorm.DB, f ListFilter) ([]Transaction, error)
	ListExpirable(ctx context.Context, db *gorm.DB, now time.Time, limit int) ([]Transaction, error)
	ListStaleProcessing(ctx context.Context, db *gorm.DB, before time.Time, limit int) ([]Transaction, error)
	InsertNote(ctx context.Context, db *gorm.DB, n *Note) error
	ListNotes(ctx context.Context, db *gorm.DB, transactionID snowflake.ID) ([]Note, error)
}

type Service interface {
	// Quote prices a request without persisting it.
	Quote(ctx context.Context, req InitializeRequest) (*Quote, error)
	// Initialize persists the priced pending record, then calls the provider. Provider
	// errors are recorded on the returned record, not returned.
	Initialize(ctx context.Context, req InitializeRequest) (*Transaction, error)
	// Verify re-queries the provider and settles a completed payment exactly once.
	Verify(ctx context.Context, id snowflake.ID) (*Transaction, error)
	Cancel(ctx context.Context, id snowflake.ID, reason string) (*Transaction, error)
	Get(ctx context.Context, id snowflake.ID) (*Transaction, error)
	GetByReference(ctx context.Context, reference string) (*Transaction, error)
	List(ctx context.Context, f ListFilter) ([]Transaction, error)
	AddNote(ctx context.Context, id snowflake.ID, author, body string) (*Note, error)
	Notes(ctx context.Context, id snowflake.ID) ([]Note, error)
	// ExpireStale moves unresolved records past expires_at to expired.
	ExpireStale(ctx context.Context, limit int) (int, error)
	// ReconcileProcessing verifies records stuck in processing.
	ReconcileProcessing(ctx context.Context, limit int) (int, error)
	HandleCallback(ctx context.Context, cb providerdomain.Callback) (*Transaction, error)
}
