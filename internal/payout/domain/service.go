package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	providerdomain "github.com/smallbiznis/settlement/internal/provider/domain"
	"gorm.io/gorm"
)

type Repository interface {
	InsertAccount(ctx context.Context, db *gorm.DB, a *Account) error
	FindAccount(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Account, error)
	FindDefaultAccount(ctx context.Context, db *gorm.DB, sellerID, currency string) (*Account, error)
	ClearDefaultAccount(ctx context.Context, db *gorm.DB, sellerID, currency string, now time.Time) error
	ListAccounts(ctx context.Context, db *gorm.DB, sellerID string) ([]Account, error)
	ListAutoPayoutAccounts(ctx context.Context, db *gorm.DB, limit int) ([]Account, error)
	TouchAccount(ctx context.Context, db *gorm.DB, id snowflake.ID, at time.Time) error

	Insert(ctx context.Context, db *gorm.DB, p *Payout) error
	InsertItems(ctx context.Context, db *gorm.DB, items []Item) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Payout, error)
	FindByReference(ctx context.Context, db *gorm.DB, reference string) (*Payout, error)
	FindByExternalReference(ctx context.Context, db *gorm.DB, externalRef string) (*Payout, error)
	// Transition moves the payout from one of from to next; false means it was not
	// in any of those states.
	Transition(ctx context.Context, db *gorm.DB, id snowflake.ID, from []Status, next Status, changes map[string]any) (bool, error)
	// ScheduleRetry bumps retry_count on a pending payout.
	ScheduleRetry(ctx context.Context, db *gorm.DB, id snowflake.ID, next time.Time, reason string, now time.Time) (bool, error)
	List(ctx context.Context, db *gorm.DB, f ListFilter) ([]Payout, error)
	ListItems(ctx context.Context, db *gorm.DB, payoutID snowflake.ID) ([]Item, error)
	ListRetryDue(ctx context.Context, db *gorm.DB, now time.Time, limit int) ([]Payout, error)
	ListStaleProcessing(ctx context.Context, db *gorm.DB, before time.Time, limit int) ([]Payout, error)
	HasOpenPayout(ctx context.Context, db *gorm.DB, sellerID, currency string) (bool, error)
}

type Service interface {
	RegisterAccount(ctx context.Context, req RegisterAccountRequest) (*Account, error)
	ListAccounts(ctx context.Context, sellerID string) ([]Account, error)

	// CreatePayout reserves the amount, sweeps credits into items and submits the
	// payout. Provider errors are recorded on the payout, not returned.
	CreatePayout(ctx context.Context, req CreateRequest) (*Payout, error)
	Verify(ctx context.Context, id snowflake.ID) (*Payout, error)
	Cancel(ctx context.Context, id snowflake.ID, reason string) (*Payout, error)
	Get(ctx context.Context, id snowflake.ID) (*Payout, error)
	Items(ctx context.Context, id snowflake.ID) ([]Item, error)
	List(ctx context.Context, f ListFilter) ([]Payout, error)
	HandleCallback(ctx context.Context, cb providerdomain.Callback) (*Payout, error)

	// RetryDue resubmits pending payouts whose backoff elapsed.
	RetryDue(ctx context.Context, limit int) (int, error)
	// ReconcileProcessing verifies payouts stuck in processing.
	ReconcileProcessing(ctx context.Context, limit int) (int, error)
	RunAutoPayouts(ctx context.Context, now time.Time, limit int) (AutoRunResult, error)

	// Statement renders a PDF remittance advice.
	Statement(ctx context.Context, id snowflake.ID) ([]byte, error)
}
