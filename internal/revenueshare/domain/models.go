package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

const (
	RecipientTypePlatform = "platform"
	RecipientTypeSeller   = "seller"
)

// UserTypeRate overrides the base commission for one seller role.
type UserTypeRate struct {
	Percentage        decimal.Decimal `json:"percentage"`
	Fixed             int64           `json:"fixed"`
	MinimumCommission int64           `json:"minimumCommission"`
}

type UserTypeRates map[string]UserTypeRate

// Configuration is one version of a named revenue share rule set. Rows are never
// edited in place once created; revisions insert a new version and supersede the old.
type Configuration struct {
	ID                           snowflake.ID                      `json:"id" gorm:"primaryKey"`
	Name                         string                            `json:"name" gorm:"type:text;not null;uniqueIndex:ux_revenue_share_configs_name_version,priority:1"`
	Version                      int                               `json:"version" gorm:"not null;uniqueIndex:ux_revenue_share_configs_name_version,priority:2"`
	PlatformCommissionPercentage decimal.Decimal                   `json:"platformCommissionPercentage" gorm:"type:numeric(9,4);not null"`
	PlatformCommissionFixed      int64                             `json:"platformCommissionFixed" gorm:"not null;default:0"`
	MinimumCommission            int64                             `json:"minimumCommission" gorm:"not null;default:0"`
	UserTypeRates                datatypes.JSONType[UserTypeRates] `json:"userTypeRates" gorm:"type:text;not null"`
	IsDefault                    bool                              `json:"isDefault" gorm:"not null;default:false;index"`
	IsActive                     bool                              `json:"isActive" gorm:"not null;default:true"`
	SupersededBy                 *snowflake.ID                     `json:"supersededBy,omitempty"`
	CreatedAt                    time.Time                         `json:"createdAt" gorm:"not null"`
	UpdatedAt                    time.Time                         `json:"updatedAt" gorm:"not null"`
}

func (Configuration) TableName() string { return "revenue_share_configs" }

func (c Configuration) Rates() UserTypeRates {
	rates := c.UserTypeRates.Data()
	if rates == nil {
		return UserTypeRates{}
	}
	return rates
}

// SellerContext identifies the party receiving the seller share.
type SellerContext struct {
	SellerID string
	UserType string
}

type Share struct {
	Amount        int64           `json:"amount"`
	Percentage    decimal.Decimal `json:"percentage"`
	RecipientID   string          `json:"recipientId,omitempty"`
	RecipientType string          `json:"recipientType"`
}

// AdditionalFee is a seller-borne charge carved out of the gross amount.
type AdditionalFee struct {
	RuleID string `json:"ruleId"`
	Name   string `json:"name"`
	Type   string `json:"type"`
	Amount int64  `json:"amount"`
}

// Snapshot is the immutable split recorded on a transaction.
type Snapshot struct {
	PlatformCommission   Share           `json:"platformCommission"`
	SellerPayout         Share           `json:"sellerPayout"`
	AdditionalFees       []AdditionalFee `json:"additionalFees"`
	ConfigurationID      snowflake.ID    `json:"configurationId"`
	ConfigurationVersion int             `json:"configurationVersion"`
}

func (s Snapshot) AdditionalFeesTotal() int64 {
	var total int64
	for _, f := range s.AdditionalFees {
		total += f.Amount
	}
	return total
}

type CreateRequest struct {
	Name                         string
	PlatformCommissionPercentage decimal.Decimal
	PlatformCommissionFixed      int64
	MinimumCommission            int64
	UserTypeRates                UserTypeRates
	IsDefault                    bool
}

type ReviseRequest struct {
	PlatformCommissionPercentage *decimal.Decimal
	PlatformCommissionFixed      *int64
	MinimumCommission            *int64
	UserTypeRates                UserTypeRates
}
