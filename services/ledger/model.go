package ledger

import (
	"time"

	"gorm.io/datatypes"
)

// Well-known behavior categories used by the condition evaluator.
const (
	EventTypeLogin  = "login"
	EventTypeCustom = "custom"
)

// UserEvent is one immutable behavioral fact. The ledger is append-only:
// entries are never updated or deleted.
type UserEvent struct {
	ID             string            `gorm:"column:id;primaryKey" json:"id"`
	UserID         string            `gorm:"column:user_id;index;not null" json:"user_id"`
	EventType      string            `gorm:"column:event_type;index;not null" json:"event_type"`
	EventKey       string            `gorm:"column:event_key;index" json:"event_key"`
	OccurredAt     time.Time         `gorm:"column:occurred_at;not null" json:"occurred_at"`
	Metadata       datatypes.JSONMap `gorm:"column:metadata" json:"metadata"`
	IdempotencyKey *string           `gorm:"column:idempotency_key;uniqueIndex" json:"idempotency_key,omitempty"`
	CreatedAt      time.Time         `gorm:"column:created_at;autoCreateTime" json:"created_at"`
}

func (UserEvent) TableName() string { return "user_events" }
