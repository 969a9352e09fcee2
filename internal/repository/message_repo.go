package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/linkfield/linkfield-api/internal/models"
)

// ReadReceipt records one message's read transition.
type ReadReceipt struct {
	MessageID uint
	ReadAt    time.Time
}

// MessageRepository persists chat messages and their attachments.
type MessageRepository interface {
	CreateWithAttachments(ctx context.Context, message *models.Message) error
	FindHydrated(ctx context.Context, id uint) (models.Message, error)
	ListByConversation(ctx context.Context, conversationID uint, page, pageSize int) ([]models.Message, error)
	MarkRead(ctx context.Context, messageID, readerID uint) (ReadReceipt, bool, error)
	MarkAllRead(ctx context.Context, conversationID, readerID uint) ([]ReadReceipt, error)
	CountUnread(ctx context.Context, conversationID, userID uint) (int64, error)
	LatestByConversation(ctx context.Context, conversationID uint) (models.Message, error)
}

type messageRepository struct {
	db *gorm.DB
}

// NewMessageRepository constructs a message repository backed by GORM.
func NewMessageRepository(db *gorm.DB) MessageRepository {
	return &messageRepository{db: db}
}

// CreateWithAttachments persists the message together with its attachments
// and bumps the conversation's freshness timestamp, all in one transaction.
func (r *messageRepository) CreateWithAttachments(ctx context.Context, message *models.Message) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(message).Error; err != nil {
			return err
		}
		return tx.Model(&models.Conversation{}).
			Where("id = ?", message.ConversationID).
			Update("updated_at", message.CreatedAt).Error
	})
}

func (r *messageRepository) FindHydrated(ctx context.Context, id uint) (models.Message, error) {
	var message models.Message
	err := r.db.WithContext(ctx).
		Preload("Sender").
		Preload("Attachments").
		First(&message, id).Error
	if err != nil {
		return models.Message{}, err
	}
	return message, nil
}

func (r *messageRepository) ListByConversation(ctx context.Context, conversationID uint, page, pageSize int) ([]models.Message, error) {
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 50
	}
	if page <= 0 {
		page = 1
	}

	var messages []models.Message
	err := r.db.WithContext(ctx).
		Where("conversation_id = ?", conversationID).
		Preload("Sender").
		Preload("Attachments").
		Order("created_at DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&messages).Error
	if err != nil {
		return nil, err
	}

	// Reverse to chronological order ascending for clients.
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}

	return messages, nil
}

// MarkRead flips the read flag and stamps read_at in the same update. The
// guard makes the call idempotent: an already-read message, or one the
// reader sent themselves, changes nothing.
func (r *messageRepository) MarkRead(ctx context.Context, messageID, readerID uint) (ReadReceipt, bool, error) {
	now := time.Now().UTC()
	result := r.db.WithContext(ctx).
		Model(&models.Message{}).
		Where("id = ? AND read = ? AND sender_id <> ?", messageID, false, readerID).
		Updates(map[string]interface{}{"read": true, "read_at": now})
	if result.Error != nil {
		return ReadReceipt{}, false, result.Error
	}
	return ReadReceipt{MessageID: messageID, ReadAt: now}, result.RowsAffected > 0, nil
}

// MarkAllRead applies the MarkRead rule to every unread message in the
// conversation not sent by the reader, in one batch.
func (r *messageRepository) MarkAllRead(ctx context.Context, conversationID, readerID uint) ([]ReadReceipt, error) {
	var ids []uint
	err := r.db.WithContext(ctx).
		Model(&models.Message{}).
		Where("conversation_id = ? AND read = ? AND sender_id <> ?", conversationID, false, readerID).
		Pluck("id", &ids).Error
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}

	now := time.Now().UTC()
	err = r.db.WithContext(ctx).
		Model(&models.Message{}).
		Where("id IN ? AND read = ?", ids, false).
		Updates(map[string]interface{}{"read": true, "read_at": now}).Error
	if err != nil {
		return nil, err
	}

	receipts := make([]ReadReceipt, 0, len(ids))
	for _, id := range ids {
		receipts = append(receipts, ReadReceipt{MessageID: id, ReadAt: now})
	}
	return receipts, nil
}

func (r *messageRepository) CountUnread(ctx context.Context, conversationID, userID uint) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.Message{}).
		Where("conversation_id = ? AND read = ? AND sender_id <> ?", conversationID, false, userID).
		Count(&count).Error
	return count, err
}

func (r *messageRepository) LatestByConversation(ctx context.Context, conversationID uint) (models.Message, error) {
	var message models.Message
	err := r.db.WithContext(ctx).
		Where("conversation_id = ?", conversationID).
		Preload("Sender").
		Preload("Attachments").
		Order("created_at DESC").
		First(&message).Error
	if err != nil {
		return models.Message{}, err
	}
	return message, nil
}
