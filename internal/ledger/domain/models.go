package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// Direction represents debit or credit postings.
type Direction string

const (
	Debit  Direction = "debit"
	Credit Direction = "credit"
)

type SourceType string

const (
	SourceTypeSettlement SourceType = "settlement" // completed payment split
	SourceTypeRefund     SourceType = "refund"     // completed refund reversal
	SourceTypePayout     SourceType = "payout"     // payout paid to the seller
)

type AccountCode string

const (
	// Assets
	AccountCashClearing AccountCode = "cash_clearing"

	// Liabilities
	AccountSellerPayable AccountCode = "seller_payable"
	AccountTaxPayable    AccountCode = "tax_payable"

	// Revenue
	AccountPlatformRevenue AccountCode = "platform_revenue"
	AccountFeeRevenue      AccountCode = "fee_revenue"
)

var accountNames = map[AccountCode]string{
	AccountCashClearing:    "Cash clearing",
	AccountSellerPayable:   "Seller payable",
	AccountTaxPayable:      "Tax payable",
	AccountPlatformRevenue: "Platform revenue",
	AccountFeeRevenue:      "Fee revenue",
}

// Known reports whether code is part of the chart of accounts.
func (c AccountCode) Known() bool {
	_, ok := accountNames[c]
	return ok
}

func (c AccountCode) Name() string { return accountNames[c] }

// Account defines a chart-of-accounts entry.
type Account struct {
	ID        snowflake.ID `gorm:"primaryKey"`
	Code      AccountCode  `gorm:"type:varchar(64);not null;uniqueIndex:ux_ledger_accounts_code"`
	Name      string       `gorm:"type:text;not null"`
	CreatedAt time.Time    `gorm:"not null"`
}

func (Account) TableName() string { return "ledger_accounts" }

// Entry is the immutable header of one financial event. A source posts at most one entry.
type Entry struct {
	ID         snowflake.ID `gorm:"primaryKey"`
	SourceType SourceType   `gorm:"type:varchar(32);not null;uniqueIndex:ux_ledger_entries_source,priority:1"`
	SourceID   string       `gorm:"type:varchar(64);not null;uniqueIndex:ux_ledger_entries_source,priority:2"`
	Currency   string       `gorm:"type:varchar(3);not null"`
	OccurredAt time.Time    `gorm:"not null"`
	CreatedAt  time.Time    `gorm:"not null"`
}

func (Entry) TableName() string { return "ledger_entries" }

// EntryLine is a double-entry posting line.
type EntryLine struct {
	ID            snowflake.ID `gorm:"primaryKey"`
	LedgerEntryID snowflake.ID `gorm:"not null;index"`
	AccountID     snowflake.ID `gorm:"not null;index"`
	Direction     Direction    `gorm:"type:varchar(6);not null"`
	Amount        int64        `gorm:"not null"`
	CreatedAt     time.Time    `gorm:"not null"`
}

func (EntryLine) TableName() string { return "ledger_entry_lines" }

// Line is one posting requested by a caller.
type Line struct {
	Account   AccountCode
	Direction Direction
	Amount    int64
}

type PostRequest struct {
	SourceType SourceType
	SourceID   string
	Currency   string
	OccurredAt time.Time
	Lines      []Line
}

// PostedLine is a line read back with its account code.
type PostedLine struct {
	Account   AccountCode
	Direction Direction
	Amount    int64
}
