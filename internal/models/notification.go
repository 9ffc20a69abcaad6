package models

import "time"

// Notification is a persisted, role-scoped copy of a dispatched workflow
// event so dashboards that were closed when the event fired still see it.
type Notification struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	UserID    string    `gorm:"size:64;index" json:"user_id"`
	Topic     string    `gorm:"size:64" json:"topic"`
	Message   string    `gorm:"type:text" json:"message"`
	Read      bool      `gorm:"not null;default:false" json:"read"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
