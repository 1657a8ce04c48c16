package event

import (
	"time"

	"gorm.io/datatypes"
)

type ConditionType string

type Status string

const (
	ConditionTypeLogin  ConditionType = "LOGIN"
	ConditionTypeCustom ConditionType = "CUSTOM"

	StatusInactive Status = "INACTIVE"
	StatusActive   Status = "ACTIVE"
	StatusExpired  Status = "EXPIRED"
)

// validTransitions is the full status transition table. Edges absent here
// raise an invalid-transition error.
var validTransitions = map[Status]map[Status]bool{
	StatusInactive: {StatusActive: true, StatusExpired: true},
	StatusActive:   {StatusInactive: true, StatusExpired: true},
	StatusExpired:  {StatusInactive: true},
}

// Event is a time-boxed campaign defining an eligibility rule.
type Event struct {
	ID              string            `gorm:"column:id;primaryKey" json:"id"`
	Name            string            `gorm:"column:name;not null" json:"name"`
	Description     string            `gorm:"column:description" json:"description"`
	ConditionType   ConditionType     `gorm:"column:condition_type;type:varchar(50);not null" json:"condition_type"`
	ConditionParams datatypes.JSONMap `gorm:"column:condition_params" json:"condition_params"`
	StartDate       time.Time         `gorm:"column:start_date;not null" json:"start_date"`
	EndDate         time.Time         `gorm:"column:end_date;not null" json:"end_date"`
	Status          Status            `gorm:"column:status;type:varchar(50);not null;default:'INACTIVE'" json:"status"`
	Metadata        datatypes.JSONMap `gorm:"column:metadata" json:"metadata"`
	CreatedAt       time.Time         `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time         `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

func (Event) TableName() string { return "events" }

func (e *Event) IsActive() bool {
	return e.Status == StatusActive
}

func (e *Event) IsWithinPeriod(now time.Time) bool {
	return !now.Before(e.StartDate) && !now.After(e.EndDate)
}

// IsValid reports whether the event can currently grant rewards. Always
// recomputed from the wall clock, never cached as a boolean.
func (e *Event) IsValid(now time.Time) bool {
	return e.IsActive() && e.IsWithinPeriod(now)
}

func (e *Event) CanTransitionTo(next Status) bool {
	return validTransitions[e.Status][next]
}

// RequiredCount reads the LOGIN threshold from condition params. JSON numbers
// arrive as float64 after a cache round trip.
func (e *Event) RequiredCount() (int64, bool) {
	switch v := e.ConditionParams["requiredCount"].(type) {
	case float64:
		return int64(v), true
	case int64:
		return v, true
	case int:
		return int64(v), true
	default:
		return 0, false
	}
}

// EventCode reads the CUSTOM behavior code from condition params.
func (e *Event) EventCode() (string, bool) {
	code, ok := e.ConditionParams["eventCode"].(string)
	return code, ok && code != ""
}
