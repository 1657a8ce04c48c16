package reward

import (
	"time"

	"gorm.io/datatypes"
)

// Reward is a payout definition attached to an Event. EventID is immutable
// after creation.
type Reward struct {
	ID               string            `gorm:"column:id;primaryKey" json:"id"`
	EventID          string            `gorm:"column:event_id;index;not null" json:"event_id"`
	Type             string            `gorm:"column:type;type:varchar(50);not null" json:"type"`
	Amount           int64             `gorm:"column:amount;not null;default:1" json:"amount"`
	Description      string            `gorm:"column:description" json:"description"`
	RequiresApproval bool              `gorm:"column:requires_approval;not null;default:false" json:"requires_approval"`
	Metadata         datatypes.JSONMap `gorm:"column:metadata" json:"metadata"`
	CreatedAt        time.Time         `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time         `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

func (Reward) TableName() string { return "rewards" }

func (r *Reward) NeedsApproval() bool {
	return r.RequiresApproval
}
