package dto

import (
	"time"

	"github.com/divyamsharma184/learnsphere-workflow-api/internal/models"
)

// EnrollmentRequest describes the payload for requesting enrollment in a
// course.
type EnrollmentRequest struct {
	CourseID string `json:"course_id" validate:"required,uuid4"`
}

// EnrollmentResponse is the serialized representation returned to API
// clients.
type EnrollmentResponse struct {
	ID          string     `json:"id"`
	CourseID    string     `json:"course_id"`
	StudentID   string     `json:"student_id"`
	State       string     `json:"state"`
	RequestedAt time.Time  `json:"requested_at"`
	DecidedAt   *time.Time `json:"decided_at,omitempty"`
	DecidedBy   *string    `json:"decided_by,omitempty"`
	Version     int64      `json:"version"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// NewEnrollmentResponse converts a model into a DTO.
func NewEnrollmentResponse(model models.Enrollment) EnrollmentResponse {
	return EnrollmentResponse{
		ID:          model.ID,
		CourseID:    model.CourseID,
		StudentID:   model.StudentID,
		State:       model.State,
		RequestedAt: model.RequestedAt,
		DecidedAt:   model.DecidedAt,
		DecidedBy:   model.DecidedBy,
		Version:     model.Version,
		CreatedAt:   model.CreatedAt,
		UpdatedAt:   model.UpdatedAt,
	}
}

// NewEnrollmentResponseSlice converts a slice of models into DTOs.
func NewEnrollmentResponseSlice(enrollments []models.Enrollment) []EnrollmentResponse {
	responses := make([]EnrollmentResponse, 0, len(enrollments))
	for _, enrollment := range enrollments {
		responses = append(responses, NewEnrollmentResponse(enrollment))
	}

	return responses
}
