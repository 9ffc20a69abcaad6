package dto

import (
	"time"

	"github.com/divyamsharma184/learnsphere-workflow-api/internal/models"
)

// CourseSubmitRequest describes the payload for submitting a course for
// review. ModuleRefs are opaque references into the content store and are
// never interpreted here.
type CourseSubmitRequest struct {
	Title       string   `json:"title" validate:"required,min=3,max=255"`
	Description string   `json:"description" validate:"required,min=10"`
	Category    string   `json:"category" validate:"required,max=64"`
	Level       string   `json:"level" validate:"required,oneof=beginner intermediate advanced"`
	ModuleRefs  []string `json:"module_refs" validate:"omitempty,dive,max=255"`
}

// DecisionRequest carries a reviewer decision for a pending entity.
type DecisionRequest struct {
	Decision string `json:"decision" validate:"required,oneof=approve reject"`
}

// CourseResponse is the serialized representation returned to API clients.
type CourseResponse struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Category    string     `json:"category"`
	Level       string     `json:"level"`
	OwnerID     string     `json:"owner_id"`
	State       string     `json:"state"`
	ModuleRefs  []string   `json:"module_refs"`
	SubmittedAt time.Time  `json:"submitted_at"`
	DecidedAt   *time.Time `json:"decided_at,omitempty"`
	DecidedBy   *string    `json:"decided_by,omitempty"`
	Version     int64      `json:"version"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// NewCourseResponse converts a model into a DTO.
func NewCourseResponse(model models.Course) CourseResponse {
	return CourseResponse{
		ID:          model.ID,
		Title:       model.Title,
		Description: model.Description,
		Category:    model.Category,
		Level:       model.Level,
		OwnerID:     model.OwnerID,
		State:       model.State,
		ModuleRefs:  model.ModuleRefs,
		SubmittedAt: model.SubmittedAt,
		DecidedAt:   model.DecidedAt,
		DecidedBy:   model.DecidedBy,
		Version:     model.Version,
		CreatedAt:   model.CreatedAt,
		UpdatedAt:   model.UpdatedAt,
	}
}

// NewCourseResponseSlice converts a slice of models into DTOs.
func NewCourseResponseSlice(courses []models.Course) []CourseResponse {
	responses := make([]CourseResponse, 0, len(courses))
	for _, course := range courses {
		responses = append(responses, NewCourseResponse(course))
	}

	return responses
}
