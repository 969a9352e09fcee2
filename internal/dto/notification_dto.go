package dto

import (
	"time"

	"github.com/linkfield/linkfield-api/internal/models"
)

// NotificationCreateRequest describes the payload to create a notification.
type NotificationCreateRequest struct {
	RecipientID uint              `json:"recipient_id" validate:"required,gt=0"`
	SenderID    uint              `json:"sender_id" validate:"omitempty,gt=0"`
	Title       string            `json:"title" validate:"required,min=1,max=255"`
	Body        string            `json:"body" validate:"omitempty,max=2000"`
	Type        string            `json:"type" validate:"required,max=64"`
	RelatedID   uint              `json:"related_id" validate:"omitempty,gt=0"`
	Metadata    map[string]string `json:"metadata" validate:"omitempty,max=16"`
}

// NotificationResponse represents notification data returned to clients.
type NotificationResponse struct {
	ID          uint              `json:"id"`
	RecipientID uint              `json:"recipient_id"`
	SenderID    uint              `json:"sender_id,omitempty"`
	Title       string            `json:"title"`
	Body        string            `json:"body,omitempty"`
	Type        string            `json:"type"`
	RelatedID   uint              `json:"related_id,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	Read        bool              `json:"read"`
	CreatedAt   time.Time         `json:"created_at"`
}

// NewNotificationResponse converts a notification model to a DTO.
func NewNotificationResponse(model models.Notification) NotificationResponse {
	response := NotificationResponse{
		ID:          model.ID,
		RecipientID: model.RecipientID,
		SenderID:    model.SenderID,
		Title:       model.Title,
		Body:        model.Body,
		Type:        model.Type,
		RelatedID:   model.RelatedID,
		Read:        model.Read,
		CreatedAt:   model.CreatedAt,
	}
	if model.Metadata != nil {
		response.Metadata = make(map[string]string)
		for key, value := range model.Metadata {
			if str, ok := value.(string); ok {
				response.Metadata[key] = str
			}
		}
	}
	return response
}

// NewNotificationResponseSlice converts a slice to DTOs.
func NewNotificationResponseSlice(items []models.Notification) []NotificationResponse {
	out := make([]NotificationResponse, 0, len(items))
	for _, item := range items {
		out = append(out, NewNotificationResponse(item))
	}
	return out
}
