package claim

import (
	"time"

	"gorm.io/datatypes"
)

type Status string

const (
	StatusPending   Status = "PENDING"
	StatusApproved  Status = "APPROVED"
	StatusRejected  Status = "REJECTED"
	StatusCompleted Status = "COMPLETED"
)

// validTransitions is the claim state machine. REJECTED and COMPLETED are
// terminal.
var validTransitions = map[Status]map[Status]bool{
	StatusPending:  {StatusApproved: true, StatusRejected: true},
	StatusApproved: {StatusCompleted: true},
}

// RewardClaim is a user's request to redeem a reward. Once COMPLETED or
// REJECTED it is immutable history.
type RewardClaim struct {
	ID              string            `gorm:"column:id;primaryKey" json:"id"`
	UserID          string            `gorm:"column:user_id;index:idx_claims_user_event;index:idx_claims_user_reward;not null" json:"user_id"`
	EventID         string            `gorm:"column:event_id;index:idx_claims_user_event;not null" json:"event_id"`
	RewardID        string            `gorm:"column:reward_id;index:idx_claims_user_reward;not null" json:"reward_id"`
	Status          Status            `gorm:"column:status;type:varchar(50);not null" json:"status"`
	RequestDate     time.Time         `gorm:"column:request_date;not null" json:"request_date"`
	ProcessDate     *time.Time        `gorm:"column:process_date" json:"process_date,omitempty"`
	ApproverID      string            `gorm:"column:approver_id" json:"approver_id,omitempty"`
	RejectionReason string            `gorm:"column:rejection_reason" json:"rejection_reason,omitempty"`
	Metadata        datatypes.JSONMap `gorm:"column:metadata" json:"metadata"`
	CreatedAt       time.Time         `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time         `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

func (RewardClaim) TableName() string { return "reward_claims" }

func (c *RewardClaim) CanTransitionTo(next Status) bool {
	return validTransitions[c.Status][next]
}
