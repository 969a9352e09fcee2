package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/linkfield/linkfield-api/internal/models"
)

// ConversationRepository persists conversations and their membership.
type ConversationRepository interface {
	Create(ctx context.Context, conversation *models.Conversation) error
	FindWithParticipants(ctx context.Context, id uint) (models.Conversation, error)
	FindDirect(ctx context.Context, userA, userB uint) (models.Conversation, error)
	ListForUser(ctx context.Context, userID uint) ([]models.Conversation, error)
	IsParticipant(ctx context.Context, conversationID, userID uint) (bool, error)
}

type conversationRepository struct {
	db *gorm.DB
}

// NewConversationRepository constructs a conversation repository backed by GORM.
func NewConversationRepository(db *gorm.DB) ConversationRepository {
	return &conversationRepository{db: db}
}

func (r *conversationRepository) Create(ctx context.Context, conversation *models.Conversation) error {
	return r.db.WithContext(ctx).Create(conversation).Error
}

func (r *conversationRepository) FindWithParticipants(ctx context.Context, id uint) (models.Conversation, error) {
	var conversation models.Conversation
	err := r.db.WithContext(ctx).
		Preload("Participants").
		Preload("Participants.User").
		First(&conversation, id).Error
	if err != nil {
		return models.Conversation{}, err
	}
	return conversation, nil
}

// FindDirect returns the existing direct conversation between two users, if
// any; creating duplicates of a direct chat is the caller's job to avoid.
func (r *conversationRepository) FindDirect(ctx context.Context, userA, userB uint) (models.Conversation, error) {
	var conversation models.Conversation
	err := r.db.WithContext(ctx).
		Joins("JOIN participants pa ON pa.conversation_id = conversations.id AND pa.user_id = ?", userA).
		Joins("JOIN participants pb ON pb.conversation_id = conversations.id AND pb.user_id = ?", userB).
		Where("conversations.kind = ?", models.ConversationDirect).
		Preload("Participants").
		Preload("Participants.User").
		First(&conversation).Error
	if err != nil {
		return models.Conversation{}, err
	}
	return conversation, nil
}

func (r *conversationRepository) ListForUser(ctx context.Context, userID uint) ([]models.Conversation, error) {
	var conversations []models.Conversation
	err := r.db.WithContext(ctx).
		Joins("JOIN participants p ON p.conversation_id = conversations.id AND p.user_id = ?", userID).
		Preload("Participants").
		Preload("Participants.User").
		Order("conversations.updated_at DESC").
		Find(&conversations).Error
	if err != nil {
		return nil, err
	}
	return conversations, nil
}

func (r *conversationRepository) IsParticipant(ctx context.Context, conversationID, userID uint) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.Participant{}).
		Where("conversation_id = ? AND user_id = ?", conversationID, userID).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}
