package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/settlement/internal/feerule"
	revsharedomain "github.com/smallbiznis/settlement/internal/revenueshare/domain"
	"gorm.io/datatypes"
)

type Type string

const TypePayment Type = "payment"

type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusExpired    Status = "expired"
	StatusCancelled  Status = "cancelled"
)

// Terminal statuses freeze the record; only notes may be appended.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusExpired, StatusCancelled:
		return true
	}
	return false
}

// Transaction is one payment. Everything the settlement needs is computed and stored
// before the provider is called.
type Transaction struct {
	ID                    snowflake.ID                                `json:"id" gorm:"primaryKey"`
	Reference             string                                      `json:"reference" gorm:"type:varchar(64);not null;uniqueIndex"`
	Type                  Type                                        `json:"type" gorm:"type:varchar(16);not null"`
	Status                Status                                      `json:"status" gorm:"type:varchar(16);not null;index"`
	OrderID               *string                                     `json:"orderId,omitempty" gorm:"type:varchar(64);index"`
	Amount                int64                                       `json:"amount" gorm:"not null"`
	Currency              string                                      `json:"currency" gorm:"type:varchar(3);not null"`
	BaseCurrency          string                                      `json:"baseCurrency" gorm:"type:varchar(3);not null"`
	AmountInBaseCurrency  int64                                       `json:"amountInBaseCurrency" gorm:"not null"`
	PaymentMethod         string                                      `json:"paymentMethod" gorm:"type:varchar(32);not null"`
	Provider              string                                      `json:"provider" gorm:"type:varchar(32);not null"`
	Category              feerule.Category                            `json:"category" gorm:"type:varchar(32);not null"`
	ProviderFee           int64                                       `json:"providerFee" gorm:"not null;default:0"`
	PlatformFee           int64                                       `json:"platformFee" gorm:"not null;default:0"`
	ProcessingFee         int64                                       `json:"processingFee" gorm:"not null;default:0"`
	TaxAmount             int64                                       `json:"taxAmount" gorm:"not null;default:0"`
	TotalAmount           int64                                       `json:"totalAmount" gorm:"not null"`
	PayerID               string                                      `json:"payerId" gorm:"type:varchar(64);not null"`
	PayeeID               string                                      `json:"payeeId,omitempty" gorm:"type:varchar(64);index"`
	SellerUserType        string                                      `json:"sellerUserType,omitempty" gorm:"type:varchar(32)"`
	Charges               datatypes.JSONType[feerule.ItemizedCharges] `json:"charges" gorm:"type:text"`
	RevenueSplit          datatypes.JSONType[revsharedomain.Snapshot] `json:"revenueSplit" gorm:"type:text"`
	PlatformShareInBase   int64                                       `json:"platformShareInBase" gorm:"not null;default:0"`
	SellerShareInBase     int64                                       `json:"sellerShareInBase" gorm:"not null;default:0"`
	ConfigVersion         int64                                       `json:"configVersion" gorm:"not null"`
	RevenueShareConfigID  snowflake.ID                                `json:"revenueShareConfigId" gorm:"not null"`
	Description           string                                      `json:"description,omitempty" gorm:"type:text"`
	Metadata              datatypes.JSONType[map[string]string]       `json:"metadata,omitempty" gorm:"type:text"`
	ExternalReference     *string                                     `json:"externalReference,omitempty" gorm:"type:varchar(128)"`
	ProviderTransactionID *string                                     `json:"providerTransactionId,omitempty" gorm:"type:varchar(128)"`
	FailureReason         *string                                     `json:"failureReason,omitempty" gorm:"type:text"`
	InitiatedAt           time.Time                                   `json:"initiatedAt" gorm:"not null;index"`
	ExpiresAt             time.Time                                   `json:"expiresAt" gorm:"not null;index"`
	ProcessingAt          *time.Time                                  `json:"processingAt,omitempty"`
	CompletedAt           *time.Time                                  `json:"completedAt,omitempty"`
	FailedAt              *time.Time                                  `json:"failedAt,omitempty"`
	CancelledAt           *time.Time                                  `json:"cancelledAt,omitempty"`
	ExpiredAt             *time.Time                                  `json:"expiredAt,omitempty"`
	CreatedAt             time.Time                                   `json:"createdAt" gorm:"not null"`
	UpdatedAt             time.Time                                   `json:"updatedAt" gorm:"not null"`
}

func (Transaction) TableName() string { return "transactions" }

func (t *Transaction) Split() revsharedomain.Snapshot { return t.RevenueSplit.Data() }

// SellerID is the recipient of the seller share, empty for platform-only sales.
func (t *Transaction) SellerID() string { return t.Split().SellerPayout.RecipientID }

type Note struct {
	ID            snowflake.ID `json:"id" gorm:"primaryKey"`
	TransactionID snowflake.ID `json:"transactionId" gorm:"not null;index"`
	Author        string       `json:"author,omitempty" gorm:"type:varchar(64)"`
	Body          string       `json:"body" gorm:"type:text;not null"`
	CreatedAt     time.Time    `json:"createdAt" gorm:"not null"`
}

func (Note) TableName() string { return "transaction_notes" }

type InitializeRequest struct {
	OrderID        string
	Amount         int64
	Currency       string
	PaymentMethod  string
	Category       string
	PayerID        string
	PayeeID        string
	SellerUserType string
	Provider       string
	Description    string
	Metadata       map[string]string
}

// Quote is the priced transaction before anything is persisted.
type Quote struct {
	Amount               int64                   `json:"amount"`
	Currency             string                  `json:"currency"`
	BaseCurrency         string                  `json:"baseCurrency"`
	AmountInBaseCurrency int64                   `json:"amountInBaseCurrency"`
	Category             feerule.Category        `json:"category"`
	Charges              feerule.ItemizedCharges `json:"charges"`
	ProviderFee          int64                   `json:"providerFee"`
	ProcessingFee        int64                   `json:"processingFee"`
	TaxAmount            int64                   `json:"taxAmount"`
	TotalAmount          int64                   `json:"totalAmount"`
	Split                revsharedomain.Snapshot `json:"revenueSplit"`
	Provider             string                  `json:"provider"`
	ConfigVersion        int64                   `json:"configVersion"`
}

type ListFilter struct {
	PayeeID  string
	PayerID  string
	Status   Status
	From     *time.Time
	To       *time.Time
	Limit    int
	BeforeID snowflake.ID
}
