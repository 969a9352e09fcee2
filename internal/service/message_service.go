package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/microcosm-cc/bluemonday"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/linkfield/linkfield-api/internal/dto"
	"github.com/linkfield/linkfield-api/internal/models"
	"github.com/linkfield/linkfield-api/internal/observability"
	"github.com/linkfield/linkfield-api/internal/repository"
)

var (
	// ErrNotParticipant indicates the caller is not a member of the
	// conversation they tried to act on.
	ErrNotParticipant = errors.New("user is not a participant of the conversation")
	// ErrEmptyMessage indicates a send carried no text and no storable files.
	ErrEmptyMessage = errors.New("message has no content and no attachments")
)

// MessageFile is one raw file sent alongside a message.
type MessageFile struct {
	Name string
	Data []byte
}

// AttachmentStore classifies and stores one file, returning the attachment
// record to persist with the message.
type AttachmentStore interface {
	StoreAttachment(ctx context.Context, name string, data []byte) (models.Attachment, error)
}

// MessageService owns the send-and-persist pipeline for chat messages.
type MessageService interface {
	Send(ctx context.Context, senderID, conversationID uint, content string) (dto.MessageResponse, error)
	SendMessage(ctx context.Context, senderID, conversationID uint, content string, files []MessageFile) (dto.MessageResponse, error)
	MarkAsRead(ctx context.Context, messageID, readerID uint) (time.Time, bool, error)
	MarkAllAsRead(ctx context.Context, conversationID, readerID uint) ([]repository.ReadReceipt, error)
	CreateConversation(ctx context.Context, creatorID uint, req dto.ConversationCreateRequest) (dto.ConversationResponse, error)
	ListConversations(ctx context.Context, userID uint) ([]dto.ConversationResponse, error)
	History(ctx context.Context, userID uint, query dto.MessageHistoryQuery) ([]dto.MessageResponse, error)
}

type messageService struct {
	messages      repository.MessageRepository
	conversations repository.ConversationRepository
	attachments   AttachmentStore
	validator     *validator.Validate
	sanitizer     *bluemonday.Policy
	logger        zerolog.Logger
	tracer        trace.Tracer
}

// NewMessageService constructs the message service.
func NewMessageService(messages repository.MessageRepository, conversations repository.ConversationRepository, attachments AttachmentStore, validate *validator.Validate, logger zerolog.Logger) MessageService {
	sanitizer := bluemonday.UGCPolicy()
	sanitizer.AllowElements("br")

	return &messageService{
		messages:      messages,
		conversations: conversations,
		attachments:   attachments,
		validator:     validate,
		sanitizer:     sanitizer,
		logger:        logger.With().Str("component", "message_service").Logger(),
		tracer:        otel.Tracer("github.com/linkfield/linkfield-api/internal/service"),
	}
}

// Send is the plain-text fast path used by the realtime gateway.
func (s *messageService) Send(ctx context.Context, senderID, conversationID uint, content string) (dto.MessageResponse, error) {
	return s.SendMessage(ctx, senderID, conversationID, content, nil)
}

// SendMessage validates membership, stores any attachments, derives the
// message's content and type, and persists everything in one transaction.
// Individual file failures are logged and skipped; the message still sends
// with whatever attachments succeeded.
func (s *messageService) SendMessage(ctx context.Context, senderID, conversationID uint, content string, files []MessageFile) (dto.MessageResponse, error) {
	spanCtx, span := s.tracer.Start(ctx, "chat.send", trace.WithAttributes(
		attribute.Int("chat.conversation_id", int(conversationID)),
		attribute.Int("chat.sender_id", int(senderID)),
	))
	defer span.End()

	member, err := s.conversations.IsParticipant(spanCtx, conversationID, senderID)
	if err != nil {
		span.RecordError(err)
		return dto.MessageResponse{}, err
	}
	if !member {
		return dto.MessageResponse{}, ErrNotParticipant
	}

	clean := strings.TrimSpace(s.sanitizer.Sanitize(content))

	var stored []models.Attachment
	for _, file := range files {
		attachment, err := s.attachments.StoreAttachment(spanCtx, file.Name, file.Data)
		if err != nil {
			s.logger.Warn().Err(err).Str("file", file.Name).Msg("attachment skipped")
			continue
		}
		stored = append(stored, attachment)
	}

	if clean == "" && len(stored) == 0 {
		return dto.MessageResponse{}, ErrEmptyMessage
	}

	derivedContent, messageType := deriveContent(clean, stored)

	message := models.Message{
		ConversationID: conversationID,
		SenderID:       senderID,
		Content:        derivedContent,
		Type:           messageType,
		Attachments:    stored,
		CreatedAt:      time.Now().UTC(),
	}

	if err := s.messages.CreateWithAttachments(spanCtx, &message); err != nil {
		span.RecordError(err)
		return dto.MessageResponse{}, fmt.Errorf("persist message: %w", err)
	}

	hydrated, err := s.messages.FindHydrated(spanCtx, message.ID)
	if err != nil {
		span.RecordError(err)
		return dto.MessageResponse{}, fmt.Errorf("reload message: %w", err)
	}

	observability.MessagesSent().WithLabelValues(messageType).Inc()

	return dto.NewMessageResponse(hydrated), nil
}

// deriveContent fills in content and type when the caller sent no text.
func deriveContent(content string, attachments []models.Attachment) (string, string) {
	switch {
	case len(attachments) == 0:
		return content, models.MessageTypeText
	case content != "":
		return content, models.MessageTypeMixed
	case len(attachments) == 1:
		a := attachments[0]
		return fmt.Sprintf("[%s file: %s]", strings.ToUpper(a.Type), a.FileName), a.Type
	default:
		return fmt.Sprintf("[%d files]", len(attachments)), models.MessageTypeFiles
	}
}

// MarkAsRead flips the read flag at most once. Re-marking an already-read
// message is a valid call that changes nothing.
func (s *messageService) MarkAsRead(ctx context.Context, messageID, readerID uint) (time.Time, bool, error) {
	receipt, changed, err := s.messages.MarkRead(ctx, messageID, readerID)
	if err != nil {
		return time.Time{}, false, err
	}
	return receipt.ReadAt, changed, nil
}

// MarkAllAsRead applies the read rule to every unread message addressed to
// the reader in the conversation, in one batch.
func (s *messageService) MarkAllAsRead(ctx context.Context, conversationID, readerID uint) ([]repository.ReadReceipt, error) {
	member, err := s.conversations.IsParticipant(ctx, conversationID, readerID)
	if err != nil {
		return nil, err
	}
	if !member {
		return nil, ErrNotParticipant
	}

	return s.messages.MarkAllRead(ctx, conversationID, readerID)
}

// CreateConversation creates a group chat, or returns the existing direct
// conversation when one already links the two users.
func (s *messageService) CreateConversation(ctx context.Context, creatorID uint, req dto.ConversationCreateRequest) (dto.ConversationResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return dto.ConversationResponse{}, err
	}

	participantSet := map[uint]struct{}{creatorID: {}}
	for _, id := range req.ParticipantIDs {
		participantSet[id] = struct{}{}
	}

	if req.Kind == models.ConversationDirect {
		if len(participantSet) != 2 {
			return dto.ConversationResponse{}, errors.New("a direct conversation links exactly two users")
		}
		var other uint
		for id := range participantSet {
			if id != creatorID {
				other = id
			}
		}
		existing, err := s.conversations.FindDirect(ctx, creatorID, other)
		if err == nil {
			return dto.NewConversationResponse(existing), nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.ConversationResponse{}, err
		}
	}

	if req.Kind == models.ConversationGroup && strings.TrimSpace(req.Name) == "" {
		return dto.ConversationResponse{}, errors.New("group conversations require a name")
	}

	conversation := models.Conversation{
		Kind: req.Kind,
		Name: strings.TrimSpace(req.Name),
	}
	for id := range participantSet {
		conversation.Participants = append(conversation.Participants, models.Participant{UserID: id})
	}

	if err := s.conversations.Create(ctx, &conversation); err != nil {
		return dto.ConversationResponse{}, err
	}

	created, err := s.conversations.FindWithParticipants(ctx, conversation.ID)
	if err != nil {
		return dto.ConversationResponse{}, err
	}

	return dto.NewConversationResponse(created), nil
}

// ListConversations returns the user's conversations ordered by freshness,
// each carrying its live unread count and latest message.
func (s *messageService) ListConversations(ctx context.Context, userID uint) ([]dto.ConversationResponse, error) {
	conversations, err := s.conversations.ListForUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	out := make([]dto.ConversationResponse, 0, len(conversations))
	for _, conversation := range conversations {
		response := dto.NewConversationResponse(conversation)

		unread, err := s.messages.CountUnread(ctx, conversation.ID, userID)
		if err != nil {
			return nil, err
		}
		response.UnreadCount = unread

		latest, err := s.messages.LatestByConversation(ctx, conversation.ID)
		if err == nil {
			last := dto.NewMessageResponse(latest)
			response.LastMessage = &last
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}

		out = append(out, response)
	}

	return out, nil
}

// History pages through a conversation's messages, oldest first within the
// page. Only participants may read.
func (s *messageService) History(ctx context.Context, userID uint, query dto.MessageHistoryQuery) ([]dto.MessageResponse, error) {
	if err := s.validator.Struct(query); err != nil {
		return nil, err
	}

	member, err := s.conversations.IsParticipant(ctx, query.ConversationID, userID)
	if err != nil {
		return nil, err
	}
	if !member {
		return nil, ErrNotParticipant
	}

	messages, err := s.messages.ListByConversation(ctx, query.ConversationID, query.Page, query.PageSize)
	if err != nil {
		return nil, err
	}

	return dto.NewMessageResponseSlice(messages), nil
}
