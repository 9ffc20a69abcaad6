package models

import "time"

// Entity type discriminators used across the audit log and domain events.
const (
	EntityTypeCourse     = "course"
	EntityTypeEnrollment = "enrollment"
)

// TransitionRecord is an append-only audit row written once per successful
// state transition. Rows are never updated or deleted; rejected transition
// attempts are not recorded.
type TransitionRecord struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	EntityType string    `gorm:"size:32;index:idx_transition_entity;not null" json:"entity_type"`
	EntityID   string    `gorm:"size:36;index:idx_transition_entity;not null" json:"entity_id"`
	FromState  string    `gorm:"size:32;not null" json:"from_state"`
	ToState    string    `gorm:"size:32;not null" json:"to_state"`
	ActorID    string    `gorm:"size:64;not null" json:"actor_id"`
	CreatedAt  time.Time `json:"created_at"`
}
