package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// Repository methods run on the handle they are given, usually a transaction.
type Repository interface {
	EnsureBalance(ctx context.Context, db *gorm.DB, b *SellerBalance) error
	FindBalance(ctx context.Context, db *gorm.DB, sellerID, currency string) (*SellerBalance, error)
	InsertEntry(ctx context.Context, db *gorm.DB, e *Entry) (bool, error)
	FindEntry(ctx context.Context, db *gorm.DB, kind EntryKind, sourceType, sourceID string) (*Entry, error)
	// AdjustBalance applies the delta only if no column would go negative and reports
	// whether it did.
	AdjustBalance(ctx context.Context, db *gorm.DB, sellerID, currency string, delta Delta, now time.Time) (bool, error)
	ListUnsweptCredits(ctx context.Context, db *gorm.DB, sellerID, currency string, cutoff *time.Time) ([]Entry, error)
	SweepCredit(ctx context.Context, db *gorm.DB, id snowflake.ID, amount int64) (bool, error)
	UnsweepCredit(ctx context.Context, db *gorm.DB, id snowflake.ID, amount int64) (bool, error)
	ReverseCredit(ctx context.Context, db *gorm.DB, id snowflake.ID, amount int64) (bool, error)
	SumUnswept(ctx context.Context, db *gorm.DB, sellerID, currency string, cutoff time.Time) (int64, error)
	ListEntries(ctx context.Context, db *gorm.DB, sellerID, currency string, limit int) ([]Entry, error)
}

// Delta is a change to one balance row.
type Delta struct {
	Available  int64
	Pending    int64
	Receivable int64
}

// Service is the only writer of seller balances. Mutating methods take the caller's
// transaction so a balance change commits together with the state change that caused
// it; callers serialize per seller and currency.
type Service interface {
	// Credit applies a settled seller share once per source.
	Credit(ctx context.Context, tx *gorm.DB, m Movement) (bool, error)
	// Reserve moves amount from available to pending, or fails with ErrInsufficientBalance.
	Reserve(ctx context.Context, tx *gorm.DB, m Movement) error
	// Release drops a completed payout from pending.
	Release(ctx context.Context, tx *gorm.DB, m Movement) (bool, error)
	// Compensate returns a failed or cancelled payout to available and un-sweeps its credits.
	Compensate(ctx context.Context, tx *gorm.DB, m Movement, allocations []Allocation) (bool, error)
	// Reverse takes a refunded seller share back, leaving any shortfall as receivable.
	Reverse(ctx context.Context, tx *gorm.DB, m Movement, transactionID string) (ReversalResult, bool, error)
	// AllocateCredits sweeps amount from the oldest unswept credits.
	AllocateCredits(ctx context.Context, tx *gorm.DB, sellerID, currency string, amount int64, cutoff *time.Time) ([]Allocation, error)

	Get(ctx context.Context, sellerID, currency string) (SellerBalance, error)
	// EligibleForPayout sums unswept credits not newer than cutoff, capped by available.
	EligibleForPayout(ctx context.Context, sellerID, currency string, cutoff time.Time) (int64, error)
	Entries(ctx context.Context, sellerID, currency string, limit int) ([]Entry, error)
}
