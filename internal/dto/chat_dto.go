package dto

import (
	"time"

	"github.com/linkfield/linkfield-api/internal/models"
)

// ConversationCreateRequest creates a direct or group conversation.
type ConversationCreateRequest struct {
	Kind           string `json:"kind" validate:"required,oneof=direct group"`
	Name           string `json:"name" validate:"omitempty,min=1,max=128"`
	ParticipantIDs []uint `json:"participant_ids" validate:"required,min=1,dive,gt=0"`
}

// ConversationResponse is the serialized representation of a conversation.
type ConversationResponse struct {
	ID           uint                  `json:"id"`
	Kind         string                `json:"kind"`
	Name         string                `json:"name,omitempty"`
	Participants []ParticipantResponse `json:"participants,omitempty"`
	UnreadCount  int64                 `json:"unread_count"`
	LastMessage  *MessageResponse      `json:"last_message,omitempty"`
	CreatedAt    time.Time             `json:"created_at"`
	UpdatedAt    time.Time             `json:"updated_at"`
}

// ParticipantResponse identifies one member of a conversation.
type ParticipantResponse struct {
	UserID    uint   `json:"user_id"`
	Name      string `json:"name"`
	AvatarURL string `json:"avatar_url,omitempty"`
}

// MessageHistoryQuery pages through a conversation's messages.
type MessageHistoryQuery struct {
	ConversationID uint `query:"-" validate:"required,gt=0"`
	Page           int  `query:"page" validate:"omitempty,min=1"`
	PageSize       int  `query:"page_size" validate:"omitempty,min=1,max=100"`
}

// MessageResponse is the hydrated representation broadcast to rooms and
// returned by the history endpoint.
type MessageResponse struct {
	ID             uint                 `json:"id"`
	ConversationID uint                 `json:"conversation_id"`
	SenderID       uint                 `json:"sender_id"`
	SenderName     string               `json:"sender_name"`
	SenderAvatar   string               `json:"sender_avatar,omitempty"`
	Content        string               `json:"content"`
	Type           string               `json:"type"`
	Attachments    []AttachmentResponse `json:"attachments,omitempty"`
	Read           bool                 `json:"read"`
	ReadAt         *time.Time           `json:"read_at,omitempty"`
	CreatedAt      time.Time            `json:"created_at"`
}

// AttachmentResponse is the serialized representation of a stored attachment.
type AttachmentResponse struct {
	ID           uint   `json:"id"`
	FileName     string `json:"file_name"`
	URL          string `json:"url"`
	Type         string `json:"type"`
	SizeBytes    int64  `json:"size_bytes"`
	ThumbnailURL string `json:"thumbnail_url,omitempty"`
}

// NewMessageResponse converts a message model into a DTO.
func NewMessageResponse(message models.Message) MessageResponse {
	response := MessageResponse{
		ID:             message.ID,
		ConversationID: message.ConversationID,
		SenderID:       message.SenderID,
		SenderName:     message.Sender.Name,
		SenderAvatar:   message.Sender.AvatarURL,
		Content:        message.Content,
		Type:           message.Type,
		Read:           message.Read,
		ReadAt:         message.ReadAt,
		CreatedAt:      message.CreatedAt,
	}
	for _, attachment := range message.Attachments {
		response.Attachments = append(response.Attachments, AttachmentResponse{
			ID:           attachment.ID,
			FileName:     attachment.FileName,
			URL:          attachment.URL,
			Type:         attachment.Type,
			SizeBytes:    attachment.SizeBytes,
			ThumbnailURL: attachment.ThumbnailURL,
		})
	}
	return response
}

// NewMessageResponseSlice converts a slice of message models into DTOs.
func NewMessageResponseSlice(messages []models.Message) []MessageResponse {
	out := make([]MessageResponse, 0, len(messages))
	for _, message := range messages {
		out = append(out, NewMessageResponse(message))
	}
	return out
}

// NewConversationResponse converts a conversation model into a DTO.
func NewConversationResponse(conversation models.Conversation) ConversationResponse {
	response := ConversationResponse{
		ID:        conversation.ID,
		Kind:      conversation.Kind,
		Name:      conversation.Name,
		CreatedAt: conversation.CreatedAt,
		UpdatedAt: conversation.UpdatedAt,
	}
	for _, participant := range conversation.Participants {
		response.Participants = append(response.Participants, ParticipantResponse{
			UserID:    participant.UserID,
			Name:      participant.User.Name,
			AvatarURL: participant.User.AvatarURL,
		})
	}
	return response
}
