package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

const (
	ActionRevenueShareCreate     = "revenue_share.create"
	ActionRevenueShareRevise     = "revenue_share.revise"
	ActionRevenueShareSetDefault = "revenue_share.default"
	ActionPayoutCancel           = "payout.cancel"
	ActionPayoutAccountRegister  = "payout_account.register"
)

const (
	TargetRevenueShare  = "revenue_share_config"
	TargetPayout        = "payout"
	TargetPayoutAccount = "payout_account"
)

// ActorSystem is recorded when no gateway identity is attached to the request.
const ActorSystem = "system"

// Entry is an append-only record of an operator action on money-moving state.
type Entry struct {
	ID         snowflake.ID      `json:"id" gorm:"primaryKey"`
	ActorRole  string            `json:"actorRole" gorm:"type:varchar(32);not null"`
	ActorID    *string           `json:"actorId,omitempty" gorm:"type:varchar(128)"`
	Action     string            `json:"action" gorm:"type:varchar(64);not null;index"`
	TargetType string            `json:"targetType" gorm:"type:varchar(64);not null;index:idx_audit_logs_target,priority:1"`
	TargetID   *string           `json:"targetId,omitempty" gorm:"type:varchar(64);index:idx_audit_logs_target,priority:2"`
	RequestID  *string           `json:"requestId,omitempty" gorm:"type:varchar(64)"`
	Metadata   datatypes.JSONMap `json:"metadata,omitempty" gorm:"type:text"`
	CreatedAt  time.Time         `json:"createdAt" gorm:"not null;index"`
}

func (Entry) TableName() string { return "audit_logs" }

type Record struct {
	Action     string
	TargetType string
	TargetID   string
	Metadata   map[string]any
}

type ListFilter struct {
	Action     string
	TargetType string
	TargetID   string
	ActorRole  string
	From       *time.Time
	To         *time.Time
	BeforeID   snowflake.ID
	Limit      int
}
