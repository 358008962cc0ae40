package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// SellerBalance is the running ledger of one seller in one currency. Receivable is
// what the seller owes back after a refund reversed funds already paid out; later
// credits recover it first.
type SellerBalance struct {
	ID                snowflake.ID `json:"id" gorm:"primaryKey"`
	SellerID          string       `json:"sellerId" gorm:"type:varchar(64);not null;uniqueIndex:ux_seller_balances_seller_currency,priority:1"`
	Currency          string       `json:"currency" gorm:"type:varchar(3);not null;uniqueIndex:ux_seller_balances_seller_currency,priority:2"`
	AvailableBalance  int64        `json:"availableBalance" gorm:"not null;default:0"`
	PendingBalance    int64        `json:"pendingBalance" gorm:"not null;default:0"`
	ReceivableBalance int64        `json:"receivableBalance" gorm:"not null;default:0"`
	Version           int64        `json:"version" gorm:"not null;default:0"`
	CreatedAt         time.Time    `json:"createdAt" gorm:"not null"`
	UpdatedAt         time.Time    `json:"updatedAt" gorm:"not null"`
}

func (SellerBalance) TableName() string { return "seller_balances" }

type EntryKind string

const (
	EntryCredit             EntryKind = "credit"
	EntryPayoutDebit        EntryKind = "payout_debit"
	EntryPayoutRelease      EntryKind = "payout_release"
	EntryPayoutCompensation EntryKind = "payout_compensation"
	EntryRefundReversal     EntryKind = "refund_reversal"
	EntryClawbackRecovery   EntryKind = "clawback_recovery"
)

// Entry is an append-only balance movement. One source applies a kind at most once.
// SweptAmount and ReversedAmount only move on credit entries: the unswept remainder
// is what a payout may still pick up.
type Entry struct {
	ID             snowflake.ID `json:"id" gorm:"primaryKey"`
	SellerID       string       `json:"sellerId" gorm:"type:varchar(64);not null;index:ix_balance_entries_seller,priority:1"`
	Currency       string       `json:"currency" gorm:"type:varchar(3);not null;index:ix_balance_entries_seller,priority:2"`
	Kind           EntryKind    `json:"kind" gorm:"type:varchar(32);not null;uniqueIndex:ux_balance_entries_source,priority:1"`
	Amount         int64        `json:"amount" gorm:"not null"`
	SourceType     string       `json:"sourceType" gorm:"type:varchar(32);not null;uniqueIndex:ux_balance_entries_source,priority:2"`
	SourceID       string       `json:"sourceId" gorm:"type:varchar(64);not null;uniqueIndex:ux_balance_entries_source,priority:3"`
	SweptAmount    int64        `json:"sweptAmount" gorm:"not null;default:0"`
	ReversedAmount int64        `json:"reversedAmount" gorm:"not null;default:0"`
	CreatedAt      time.Time    `json:"createdAt" gorm:"not null;index"`
}

func (Entry) TableName() string { return "balance_entries" }

// Unswept is the part of a credit not yet claimed by a payout or a refund.
func (e Entry) Unswept() int64 {
	return e.Amount - e.SweptAmount - e.ReversedAmount
}

const (
	SourceTransaction = "transaction"
	SourcePayout      = "payout"
	SourceRefund      = "refund"
)

// Movement identifies the business event behind a mutation.
type Movement struct {
	SellerID   string
	Currency   string
	Amount     int64
	SourceType string
	SourceID   string
}

// Allocation is the slice of one credit swept into a payout.
type Allocation struct {
	CreditEntryID snowflake.ID
	TransactionID string
	Amount        int64
}

// ReversalResult reports how a refund reversal was absorbed.
type ReversalResult struct {
	FromAvailable int64
	ToReceivable  int64
}
