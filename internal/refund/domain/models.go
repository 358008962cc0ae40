package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Refund reverses part or all of one completed transaction. The reversal columns
// are filled once, when the refund completes.
type Refund struct {
	ID                 snowflake.ID `json:"id" gorm:"primaryKey"`
	Reference          string       `json:"reference" gorm:"type:varchar(64);not null;uniqueIndex"`
	TransactionID      snowflake.ID `json:"transactionId" gorm:"not null;index"`
	OrderID            *string      `json:"orderId,omitempty" gorm:"type:varchar(64)"`
	Amount             int64        `json:"amount" gorm:"not null"`
	Currency           string       `json:"currency" gorm:"type:varchar(3);not null"`
	Status             Status       `json:"status" gorm:"type:varchar(16);not null;index"`
	Reason             string       `json:"reason,omitempty" gorm:"type:text"`
	Provider           string       `json:"provider" gorm:"type:varchar(32);not null"`
	ExternalReference  *string      `json:"externalReference,omitempty" gorm:"type:varchar(128)"`
	FailureReason      *string      `json:"failureReason,omitempty" gorm:"type:text"`
	SellerReversal     int64        `json:"sellerReversal" gorm:"not null;default:0"`
	CommissionReversal int64        `json:"commissionReversal" gorm:"not null;default:0"`
	FeeReversal        int64        `json:"feeReversal" gorm:"not null;default:0"`
	ReceivableAmount   int64        `json:"receivableAmount" gorm:"not null;default:0"`
	CompletedAt        *time.Time   `json:"completedAt,omitempty"`
	FailedAt           *time.Time   `json:"failedAt,omitempty"`
	CreatedAt          time.Time    `json:"createdAt" gorm:"not null"`
	UpdatedAt          time.Time    `json:"updatedAt" gorm:"not null"`
}

func (Refund) TableName() string { return "refunds" }

// Request refunds Amount of a completed transaction; a nil Amount refunds whatever
// is not yet refunded.
type Request struct {
	TransactionID snowflake.ID
	Amount        *int64
	Reason        string
	OrderID       string
}
