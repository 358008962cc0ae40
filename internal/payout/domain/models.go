package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusCancelled  Status = "cancelled"
)

func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// Account is where a seller receives money in one currency.
type Account struct {
	ID                snowflake.ID                          `json:"id" gorm:"primaryKey"`
	SellerID          string                                `json:"sellerId" gorm:"type:varchar(64);not null;index:ix_payout_accounts_seller,priority:1"`
	Currency          string                                `json:"currency" gorm:"type:varchar(3);not null;index:ix_payout_accounts_seller,priority:2"`
	Method            string                                `json:"method" gorm:"type:varchar(32);not null"`
	Provider          string                                `json:"provider,omitempty" gorm:"type:varchar(32)"`
	Details           datatypes.JSONType[map[string]string] `json:"details" gorm:"type:text;not null"`
	IsDefault         bool                                  `json:"isDefault" gorm:"not null;default:false"`
	AutoPayoutEnabled bool                                  `json:"autoPayoutEnabled" gorm:"not null;default:false;index"`
	LastPayoutAt      *time.Time                            `json:"lastPayoutAt,omitempty"`
	CreatedAt         time.Time                             `json:"createdAt" gorm:"not null"`
	UpdatedAt         time.Time                             `json:"updatedAt" gorm:"not null"`
}

func (Account) TableName() string { return "payout_accounts" }

// Payout moves swept seller credits to an account. TotalAmount is reserved from
// the balance; the seller receives NetAmount.
type Payout struct {
	ID                snowflake.ID                          `json:"id" gorm:"primaryKey"`
	Reference         string                                `json:"reference" gorm:"type:varchar(64);not null;uniqueIndex"`
	BatchReference    *string                               `json:"batchReference,omitempty" gorm:"type:varchar(64);index"`
	SellerID          string                                `json:"sellerId" gorm:"type:varchar(64);not null;index"`
	Currency          string                                `json:"currency" gorm:"type:varchar(3);not null"`
	AccountID         *snowflake.ID                         `json:"accountId,omitempty"`
	Method            string                                `json:"method" gorm:"type:varchar(32);not null"`
	Provider          string                                `json:"provider" gorm:"type:varchar(32);not null"`
	Account           datatypes.JSONType[map[string]string] `json:"account" gorm:"type:text;not null"`
	TotalAmount       int64                                 `json:"totalAmount" gorm:"not null"`
	Fees              int64                                 `json:"fees" gorm:"not null;default:0"`
	NetAmount         int64                                 `json:"netAmount" gorm:"not null"`
	Status            Status                                `json:"status" gorm:"type:varchar(16);not null;index"`
	Automatic         bool                                  `json:"automatic" gorm:"not null;default:false"`
	Notes             string                                `json:"notes,omitempty" gorm:"type:text"`
	ExternalReference *string                               `json:"externalReference,omitempty" gorm:"type:varchar(128)"`
	FailureReason     *string                               `json:"failureReason,omitempty" gorm:"type:text"`
	RetryCount        int                                   `json:"retryCount" gorm:"not null;default:0"`
	MaxRetries        int                                   `json:"maxRetries" gorm:"not null"`
	NextAttemptAt     *time.Time                            `json:"nextAttemptAt,omitempty" gorm:"index"`
	ProcessedAt       *time.Time                            `json:"processedAt,omitempty"`
	SettledAt         *time.Time                            `json:"settledAt,omitempty"`
	FailedAt          *time.Time                            `json:"failedAt,omitempty"`
	CancelledAt       *time.Time                            `json:"cancelledAt,omitempty"`
	CreatedAt         time.Time                             `json:"createdAt" gorm:"not null"`
	UpdatedAt         time.Time                             `json:"updatedAt" gorm:"not null"`
}

func (Payout) TableName() string { return "payouts" }

// Item attributes part of a payout to the credit it swept. CreditEntryID is zero
// for the residue not traceable to a single credit.
type Item struct {
	ID            snowflake.ID `json:"id" gorm:"primaryKey"`
	PayoutID      snowflake.ID `json:"payoutId" gorm:"not null;index"`
	CreditEntryID snowflake.ID `json:"creditEntryId,omitempty"`
	TransactionID string       `json:"transactionId,omitempty" gorm:"type:varchar(64)"`
	Amount        int64        `json:"amount" gorm:"not null"`
	Fee           int64        `json:"fee" gorm:"not null;default:0"`
	NetAmount     int64        `json:"netAmount" gorm:"not null"`
	CreatedAt     time.Time    `json:"createdAt" gorm:"not null"`
}

func (Item) TableName() string { return "payout_items" }

type RegisterAccountRequest struct {
	SellerID          string
	Currency          string
	Method            string
	Provider          string
	Details           map[string]string
	IsDefault         bool
	AutoPayoutEnabled bool
}

// CreateRequest asks for a payout. A nil Amount pays out the whole available
// balance. Without AccountID, inline Method and Account details are used, and
// without those the seller's default account.
type CreateRequest struct {
	SellerID  string
	Currency  string
	Amount    *int64
	AccountID snowflake.ID
	Method    string
	Provider  string
	Account   map[string]string
	Notes     string
}

type ListFilter struct {
	SellerID  string
	Status    Status
	Automatic *bool
	// MinAmount keeps payouts whose total is at least this many minor units.
	MinAmount *int64
	Limit     int
	BeforeID  snowflake.ID
}

// AutoRunResult summarises one automatic payout run.
type AutoRunResult struct {
	BatchReference string   `json:"batchReference"`
	Considered     int      `json:"considered"`
	Created        int      `json:"created"`
	Skipped        int      `json:"skipped"`
	Failed         int      `json:"failed"`
	PayoutIDs      []string `json:"payoutIds"`
}
