package models

import (
	"time"

	"gorm.io/datatypes"
)

// Course states. A course has exactly one state at any time; active and
// rejected are terminal for this engine.
const (
	CourseStateDraft         = "draft"
	CourseStatePendingReview = "pending_review"
	CourseStateActive        = "active"
	CourseStateRejected      = "rejected"
)

// Course represents a course submitted by an instructor for review.
type Course struct {
	ID          string                      `gorm:"primaryKey;size:36" json:"id"`
	Title       string                      `gorm:"size:255;not null" json:"title"`
	Description string                      `gorm:"type:text" json:"description"`
	Category    string                      `gorm:"size:64" json:"category"`
	Level       string                      `gorm:"size:32" json:"level"`
	OwnerID     string                      `gorm:"size:64;index;not null" json:"owner_id"`
	State       string                      `gorm:"size:32;index;not null" json:"state"`
	ModuleRefs  datatypes.JSONSlice[string] `gorm:"type:json" json:"module_refs"`
	SubmittedAt time.Time                   `json:"submitted_at"`
	DecidedAt   *time.Time                  `json:"decided_at"`
	DecidedBy   *string                     `gorm:"size:64" json:"decided_by"`
	Version     int64                       `gorm:"not null;default:1" json:"version"`
	CreatedAt   time.Time                   `json:"created_at"`
	UpdatedAt   time.Time                   `json:"updated_at"`
}

// IsTerminal reports whether the course can no longer transition.
func (c Course) IsTerminal() bool {
	return c.State == CourseStateActive || c.State == CourseStateRejected
}

// IsDecided reports whether a reviewer decision has been recorded.
func (c Course) IsDecided() bool {
	return c.DecidedAt != nil && c.DecidedBy != nil
}
