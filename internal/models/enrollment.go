package models

import "time"

// Enrollment states. Approved and rejected are terminal.
const (
	EnrollmentStatePending  = "pending_approval"
	EnrollmentStateApproved = "approved"
	EnrollmentStateRejected = "rejected"
)

// Enrollment represents a student's request to join an active course.
// At most one non-rejected enrollment may exist per (course, student) pair;
// the partial unique index enforces that at the database so racing requests
// cannot slip past the application-level check. Re-requesting after a
// rejection creates a new record.
type Enrollment struct {
	ID          string     `gorm:"primaryKey;size:36" json:"id"`
	CourseID    string     `gorm:"size:36;index;uniqueIndex:idx_enrollments_live_pair,where:state <> 'rejected';not null" json:"course_id"`
	StudentID   string     `gorm:"size:64;index;uniqueIndex:idx_enrollments_live_pair,where:state <> 'rejected';not null" json:"student_id"`
	State       string     `gorm:"size:32;index;not null" json:"state"`
	RequestedAt time.Time  `json:"requested_at"`
	DecidedAt   *time.Time `json:"decided_at"`
	DecidedBy   *string    `gorm:"size:64" json:"decided_by"`
	Version     int64      `gorm:"not null;default:1" json:"version"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// IsTerminal reports whether the enrollment can no longer transition.
func (e Enrollment) IsTerminal() bool {
	return e.State == EnrollmentStateApproved || e.State == EnrollmentStateRejected
}
