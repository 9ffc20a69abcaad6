package dto

import (
	"time"

	"github.com/divyamsharma184/learnsphere-workflow-api/internal/models"
)

// TransitionResponse is one audit-log row, exported as-is.
type TransitionResponse struct {
	EntityType string    `json:"entity_type"`
	EntityID   string    `json:"entity_id"`
	FromState  string    `json:"from_state"`
	ToState    string    `json:"to_state"`
	ActorID    string    `json:"actor_id"`
	Timestamp  time.Time `json:"timestamp"`
}

// NewTransitionResponseSlice converts audit rows into DTOs.
func NewTransitionResponseSlice(records []models.TransitionRecord) []TransitionResponse {
	responses := make([]TransitionResponse, 0, len(records))
	for _, record := range records {
		responses = append(responses, TransitionResponse{
			EntityType: record.EntityType,
			EntityID:   record.EntityID,
			FromState:  record.FromState,
			ToState:    record.ToState,
			ActorID:    record.ActorID,
			Timestamp:  record.CreatedAt,
		})
	}

	return responses
}

// NotificationResponse is the serialized representation of a persisted
// notification.
type NotificationResponse struct {
	ID        uint      `json:"id"`
	UserID    string    `json:"user_id"`
	Topic     string    `json:"topic"`
	Message   string    `json:"message"`
	Read      bool      `json:"read"`
	CreatedAt time.Time `json:"created_at"`
}

// NewNotificationResponse converts a model into a DTO.
func NewNotificationResponse(model models.Notification) NotificationResponse {
	return NotificationResponse{
		ID:        model.ID,
		UserID:    model.UserID,
		Topic:     model.Topic,
		Message:   model.Message,
		Read:      model.Read,
		CreatedAt: model.CreatedAt,
	}
}

// NewNotificationResponseSlice converts a slice of models into DTOs.
func NewNotificationResponseSlice(notifications []models.Notification) []NotificationResponse {
	responses := make([]NotificationResponse, 0, len(notifications))
	for _, notification := range notifications {
		responses = append(responses, NewNotificationResponse(notification))
	}

	return responses
}
