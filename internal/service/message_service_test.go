package service

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/linkfield/linkfield-api/internal/dto"
	"github.com/linkfield/linkfield-api/internal/models"
	"github.com/linkfield/linkfield-api/internal/repository"
)

// stubAttachmentStore fabricates stored attachments without touching a blob
// store. Names listed in fail are rejected.
type stubAttachmentStore struct {
	fail map[string]bool
}

func (s *stubAttachmentStore) StoreAttachment(_ context.Context, name string, data []byte) (models.Attachment, error) {
	if s.fail[name] {
		return models.Attachment{}, errors.New("storage unavailable")
	}
	attachment := models.Attachment{
		FileName:  name,
		URL:       "https://cdn.example.com/" + name,
		Type:      ClassifyExtension(name),
		SizeBytes: int64(len(data)),
	}
	if attachment.Type == models.MessageTypeImage {
		attachment.ThumbnailURL = "https://cdn.example.com/thumb_" + name
	}
	return attachment, nil
}

func setupChatDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.User{}, &models.Conversation{}, &models.Participant{}, &models.Message{}, &models.Attachment{}))

	users := []models.User{
		{ID: 1, Name: "Alice"},
		{ID: 2, Name: "Bob"},
	}
	for i := range users {
		require.NoError(t, db.Create(&users[i]).Error)
	}

	return db
}

func newChatService(t *testing.T, db *gorm.DB, store AttachmentStore) MessageService {
	t.Helper()

	if store == nil {
		store = &stubAttachmentStore{}
	}
	return NewMessageService(
		repository.NewMessageRepository(db),
		repository.NewConversationRepository(db),
		store,
		validator.New(validator.WithRequiredStructEnabled()),
		zerolog.Nop(),
	)
}

func createConversation(t *testing.T, db *gorm.DB, id uint, userIDs ...uint) {
	t.Helper()

	conversation := models.Conversation{ID: id, Kind: models.ConversationDirect}
	for _, userID := range userIDs {
		conversation.Participants = append(conversation.Participants, models.Participant{UserID: userID})
	}
	require.NoError(t, db.Create(&conversation).Error)
}

func TestSendTextMessage(t *testing.T) {
	db := setupChatDB(t)
	createConversation(t, db, 42, 1, 2)
	svc := newChatService(t, db, nil)
	ctx := context.Background()

	message, err := svc.Send(ctx, 1, 42, "hello")
	require.NoError(t, err)
	require.Equal(t, models.MessageTypeText, message.Type)
	require.Equal(t, "hello", message.Content)
	require.Equal(t, "Alice", message.SenderName)
	require.False(t, message.Read)

	history, err := svc.History(ctx, 2, dto.MessageHistoryQuery{ConversationID: 42, Page: 1, PageSize: 50})
	require.NoError(t, err)
	require.Len(t, history, 1)
	require.Equal(t, message.ID, history[0].ID)
}

func TestSendMessageWithTwoImages(t *testing.T) {
	db := setupChatDB(t)
	createConversation(t, db, 42, 1, 2)
	svc := newChatService(t, db, nil)

	files := []MessageFile{
		{Name: "a.png", Data: []byte("png-a")},
		{Name: "b.png", Data: []byte("png-b")},
	}
	message, err := svc.SendMessage(context.Background(), 1, 42, "", files)
	require.NoError(t, err)
	require.Equal(t, models.MessageTypeFiles, message.Type)
	require.Equal(t, "[2 files]", message.Content)
	require.Len(t, message.Attachments, 2)
	for _, attachment := range message.Attachments {
		require.Equal(t, models.MessageTypeImage, attachment.Type)
		require.NotEmpty(t, attachment.ThumbnailURL)
	}
}

func TestSendSingleImageDerivation(t *testing.T) {
	db := setupChatDB(t)
	createConversation(t, db, 42, 1, 2)
	svc := newChatService(t, db, nil)

	message, err := svc.SendMessage(context.Background(), 1, 42, "", []MessageFile{{Name: "photo.png", Data: []byte("x")}})
	require.NoError(t, err)
	require.Equal(t, models.MessageTypeImage, message.Type)
	require.Equal(t, "[IMAGE file: photo.png]", message.Content)
}

func TestSendTextWithFilesIsMixed(t *testing.T) {
	db := setupChatDB(t)
	createConversation(t, db, 42, 1, 2)
	svc := newChatService(t, db, nil)

	message, err := svc.SendMessage(context.Background(), 1, 42, "see attached", []MessageFile{{Name: "doc.pdf", Data: []byte("x")}})
	require.NoError(t, err)
	require.Equal(t, models.MessageTypeMixed, message.Type)
	require.Equal(t, "see attached", message.Content)
}

func TestSendByNonParticipantPersistsNothing(t *testing.T) {
	db := setupChatDB(t)
	createConversation(t, db, 99, 1)
	svc := newChatService(t, db, nil)

	_, err := svc.Send(context.Background(), 2, 99, "let me in")
	require.ErrorIs(t, err, ErrNotParticipant)

	var count int64
	require.NoError(t, db.Model(&models.Message{}).Count(&count).Error)
	require.Zero(t, count)
}

func TestSendSkipsFailedAttachments(t *testing.T) {
	db := setupChatDB(t)
	createConversation(t, db, 42, 1, 2)
	svc := newChatService(t, db, &stubAttachmentStore{fail: map[string]bool{"bad.png": true}})

	files := []MessageFile{
		{Name: "bad.png", Data: []byte("x")},
		{Name: "good.png", Data: []byte("y")},
	}
	message, err := svc.SendMessage(context.Background(), 1, 42, "", files)
	require.NoError(t, err)
	require.Len(t, message.Attachments, 1)
	require.Equal(t, "good.png", message.Attachments[0].FileName)
}

func TestSendRejectsEmptyMessage(t *testing.T) {
	db := setupChatDB(t)
	createConversation(t, db, 42, 1, 2)
	svc := newChatService(t, db, &stubAttachmentStore{fail: map[string]bool{"bad.png": true}})
	ctx := context.Background()

	_, err := svc.Send(ctx, 1, 42, "   ")
	require.ErrorIs(t, err, ErrEmptyMessage)

	// Script content sanitizes down to nothing.
	_, err = svc.Send(ctx, 1, 42, "<script>alert(1)</script>")
	require.ErrorIs(t, err, ErrEmptyMessage)

	// All attachments failing leaves nothing to send either.
	_, err = svc.SendMessage(ctx, 1, 42, "", []MessageFile{{Name: "bad.png", Data: []byte("x")}})
	require.ErrorIs(t, err, ErrEmptyMessage)
}

func TestSendBumpsConversationFreshness(t *testing.T) {
	db := setupChatDB(t)
	createConversation(t, db, 42, 1, 2)
	svc := newChatService(t, db, nil)

	var before models.Conversation
	require.NoError(t, db.First(&before, 42).Error)

	time.Sleep(10 * time.Millisecond)
	_, err := svc.Send(context.Background(), 1, 42, "hello")
	require.NoError(t, err)

	var after models.Conversation
	require.NoError(t, db.First(&after, 42).Error)
	require.True(t, after.UpdatedAt.After(before.UpdatedAt))
}

func TestMarkAsReadIsIdempotent(t *testing.T) {
	db := setupChatDB(t)
	createConversation(t, db, 42, 1, 2)
	svc := newChatService(t, db, nil)
	ctx := context.Background()

	message, err := svc.Send(ctx, 1, 42, "hello")
	require.NoError(t, err)

	readAt, changed, err := svc.MarkAsRead(ctx, message.ID, 2)
	require.NoError(t, err)
	require.True(t, changed)
	require.False(t, readAt.IsZero())

	_, changed, err = svc.MarkAsRead(ctx, message.ID, 2)
	require.NoError(t, err)
	require.False(t, changed, "the second call is a no-op that still reports success")

	var stored models.Message
	require.NoError(t, db.First(&stored, message.ID).Error)
	require.True(t, stored.Read)
	require.NotNil(t, stored.ReadAt)
	require.WithinDuration(t, readAt, *stored.ReadAt, time.Second)
}

func TestMarkAsReadIgnoresOwnMessages(t *testing.T) {
	db := setupChatDB(t)
	createConversation(t, db, 42, 1, 2)
	svc := newChatService(t, db, nil)
	ctx := context.Background()

	message, err := svc.Send(ctx, 1, 42, "hello")
	require.NoError(t, err)

	_, changed, err := svc.MarkAsRead(ctx, message.ID, 1)
	require.NoError(t, err)
	require.False(t, changed, "a sender reading their own message flips nothing")
}

func TestMarkAllAsRead(t *testing.T) {
	db := setupChatDB(t)
	createConversation(t, db, 42, 1, 2)
	svc := newChatService(t, db, nil)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := svc.Send(ctx, 1, 42, fmt.Sprintf("message %d", i))
		require.NoError(t, err)
	}
	_, err := svc.Send(ctx, 2, 42, "reply")
	require.NoError(t, err)

	receipts, err := svc.MarkAllAsRead(ctx, 42, 2)
	require.NoError(t, err)
	require.Len(t, receipts, 3, "only messages addressed to the reader flip")

	receipts, err = svc.MarkAllAsRead(ctx, 42, 2)
	require.NoError(t, err)
	require.Empty(t, receipts)

	_, err = svc.MarkAllAsRead(ctx, 42, 3)
	require.ErrorIs(t, err, ErrNotParticipant)
}

func TestCreateConversationDirectDeduplicates(t *testing.T) {
	db := setupChatDB(t)
	svc := newChatService(t, db, nil)
	ctx := context.Background()

	first, err := svc.CreateConversation(ctx, 1, dto.ConversationCreateRequest{
		Kind:           models.ConversationDirect,
		ParticipantIDs: []uint{2},
	})
	require.NoError(t, err)
	require.Len(t, first.Participants, 2)

	second, err := svc.CreateConversation(ctx, 2, dto.ConversationCreateRequest{
		Kind:           models.ConversationDirect,
		ParticipantIDs: []uint{1},
	})
	require.NoError(t, err)
	require.Equal(t, first.ID, second.ID, "the same pair reuses the existing direct conversation")
}

func TestCreateConversationGroupRequiresName(t *testing.T) {
	db := setupChatDB(t)
	svc := newChatService(t, db, nil)
	ctx := context.Background()

	_, err := svc.CreateConversation(ctx, 1, dto.ConversationCreateRequest{
		Kind:           models.ConversationGroup,
		ParticipantIDs: []uint{2},
	})
	require.Error(t, err)

	group, err := svc.CreateConversation(ctx, 1, dto.ConversationCreateRequest{
		Kind:           models.ConversationGroup,
		Name:           "weekend plans",
		ParticipantIDs: []uint{2},
	})
	require.NoError(t, err)
	require.Equal(t, "weekend plans", group.Name)
}

func TestListConversationsCarriesUnreadAndLastMessage(t *testing.T) {
	db := setupChatDB(t)
	createConversation(t, db, 42, 1, 2)
	svc := newChatService(t, db, nil)
	ctx := context.Background()

	_, err := svc.Send(ctx, 1, 42, "first")
	require.NoError(t, err)
	latest, err := svc.Send(ctx, 1, 42, "second")
	require.NoError(t, err)

	conversations, err := svc.ListConversations(ctx, 2)
	require.NoError(t, err)
	require.Len(t, conversations, 1)
	require.Equal(t, int64(2), conversations[0].UnreadCount)
	require.NotNil(t, conversations[0].LastMessage)
	require.Equal(t, latest.ID, conversations[0].LastMessage.ID)

	// The sender's own unread count stays at zero.
	mine, err := svc.ListConversations(ctx, 1)
	require.NoError(t, err)
	require.Len(t, mine, 1)
	require.Zero(t, mine[0].UnreadCount)
}

func TestHistoryRequiresMembership(t *testing.T) {
	db := setupChatDB(t)
	createConversation(t, db, 42, 1, 2)
	svc := newChatService(t, db, nil)

	_, err := svc.History(context.Background(), 3, dto.MessageHistoryQuery{ConversationID: 42, Page: 1, PageSize: 10})
	require.ErrorIs(t, err, ErrNotParticipant)
}
