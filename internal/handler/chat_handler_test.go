package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/linkfield/linkfield-api/internal/dto"
	"github.com/linkfield/linkfield-api/internal/handler"
	"github.com/linkfield/linkfield-api/internal/realtime"
	"github.com/linkfield/linkfield-api/internal/repository"
	"github.com/linkfield/linkfield-api/internal/service"
)

type mockMessageService struct {
	message  dto.MessageResponse
	receipts []repository.ReadReceipt
	err      error

	lastContent string
	lastFiles   []service.MessageFile
}

func (m *mockMessageService) Send(ctx context.Context, senderID, conversationID uint, content string) (dto.MessageResponse, error) {
	return m.SendMessage(ctx, senderID, conversationID, content, nil)
}

func (m *mockMessageService) SendMessage(_ context.Context, _, _ uint, content string, files []service.MessageFile) (dto.MessageResponse, error) {
	m.lastContent = content
	m.lastFiles = files
	if m.err != nil {
		return dto.MessageResponse{}, m.err
	}
	return m.message, nil
}

func (m *mockMessageService) MarkAsRead(context.Context, uint, uint) (time.Time, bool, error) {
	return time.Time{}, false, m.err
}

func (m *mockMessageService) MarkAllAsRead(context.Context, uint, uint) ([]repository.ReadReceipt, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.receipts, nil
}

func (m *mockMessageService) CreateConversation(context.Context, uint, dto.ConversationCreateRequest) (dto.ConversationResponse, error) {
	if m.err != nil {
		return dto.ConversationResponse{}, m.err
	}
	return dto.ConversationResponse{ID: 42, Kind: "direct"}, nil
}

func (m *mockMessageService) ListConversations(context.Context, uint) ([]dto.ConversationResponse, error) {
	if m.err != nil {
		return nil, m.err
	}
	return []dto.ConversationResponse{{ID: 42}}, nil
}

func (m *mockMessageService) History(context.Context, uint, dto.MessageHistoryQuery) ([]dto.MessageResponse, error) {
	if m.err != nil {
		return nil, m.err
	}
	return []dto.MessageResponse{m.message}, nil
}

type mockBroadcaster struct {
	messages []dto.MessageResponse
	receipts []realtime.ReadReceiptPayload
}

func (m *mockBroadcaster) BroadcastMessage(message dto.MessageResponse) {
	m.messages = append(m.messages, message)
}

func (m *mockBroadcaster) BroadcastReadReceipt(room realtime.Room, messageID, userID uint, readAt time.Time) {
	m.receipts = append(m.receipts, realtime.ReadReceiptPayload{RoomID: room, MessageID: messageID, UserID: userID, ReadAt: readAt})
}

func newChatApp(svc service.MessageService, broadcaster handler.MessageBroadcaster, userID uint) *fiber.App {
	app := fiber.New()
	group := app.Group("/api/v1", func(c *fiber.Ctx) error {
		if userID != 0 {
			c.Locals("user_id", userID)
		}
		return c.Next()
	})
	validate := validator.New(validator.WithRequiredStructEnabled())
	handler.NewChatHandler(svc, broadcaster, validate, zerolog.New(io.Discard)).Register(group)
	return app
}

func multipartBody(t *testing.T, content string, files map[string][]byte) (*bytes.Buffer, string) {
	t.Helper()

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	require.NoError(t, writer.WriteField("content", content))
	for name, data := range files {
		part, err := writer.CreateFormFile("files", name)
		require.NoError(t, err)
		_, err = part.Write(data)
		require.NoError(t, err)
	}
	require.NoError(t, writer.Close())
	return body, writer.FormDataContentType()
}

func TestChatHandlerSendMessageBroadcastsAfterPersist(t *testing.T) {
	svc := &mockMessageService{message: dto.MessageResponse{ID: 10, ConversationID: 42, Content: "hello", Type: "text"}}
	broadcaster := &mockBroadcaster{}
	app := newChatApp(svc, broadcaster, 1)

	body, contentType := multipartBody(t, "hello", map[string][]byte{"a.png": []byte("data")})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/conversations/42/messages", body)
	req.Header.Set("Content-Type", contentType)

	resp, err := app.Test(req)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)

	require.Equal(t, "hello", svc.lastContent)
	require.Len(t, svc.lastFiles, 1)
	require.Equal(t, "a.png", svc.lastFiles[0].Name)

	require.Len(t, broadcaster.messages, 1)
	require.Equal(t, uint(10), broadcaster.messages[0].ID)
}

func TestChatHandlerSendByNonParticipant(t *testing.T) {
	svc := &mockMessageService{err: service.ErrNotParticipant}
	broadcaster := &mockBroadcaster{}
	app := newChatApp(svc, broadcaster, 2)

	body, contentType := multipartBody(t, "let me in", nil)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/conversations/99/messages", body)
	req.Header.Set("Content-Type", contentType)

	resp, err := app.Test(req)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusForbidden, resp.StatusCode)
	require.Empty(t, broadcaster.messages, "nothing is broadcast for a rejected send")
}

func TestChatHandlerSendEmptyMessage(t *testing.T) {
	svc := &mockMessageService{err: service.ErrEmptyMessage}
	app := newChatApp(svc, &mockBroadcaster{}, 1)

	body, contentType := multipartBody(t, "", nil)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/conversations/42/messages", body)
	req.Header.Set("Content-Type", contentType)

	resp, err := app.Test(req)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

func TestChatHandlerRequiresAuthentication(t *testing.T) {
	app := newChatApp(&mockMessageService{}, &mockBroadcaster{}, 0)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/v1/conversations", nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
}

func TestChatHandlerRejectsBadConversationID(t *testing.T) {
	app := newChatApp(&mockMessageService{}, &mockBroadcaster{}, 1)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/v1/conversations/abc/messages", nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

func TestChatHandlerHistory(t *testing.T) {
	svc := &mockMessageService{message: dto.MessageResponse{ID: 10, ConversationID: 42, Content: "hello"}}
	app := newChatApp(svc, &mockBroadcaster{}, 1)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/v1/conversations/42/messages?page=1&page_size=10", nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var payload struct {
		Success bool                  `json:"success"`
		Data    []dto.MessageResponse `json:"data"`
	}
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&payload))
	require.True(t, payload.Success)
	require.Len(t, payload.Data, 1)
}

func TestChatHandlerMarkAllReadBroadcastsReceipts(t *testing.T) {
	now := time.Now().UTC()
	svc := &mockMessageService{receipts: []repository.ReadReceipt{
		{MessageID: 10, ReadAt: now},
		{MessageID: 11, ReadAt: now},
	}}
	broadcaster := &mockBroadcaster{}
	app := newChatApp(svc, broadcaster, 2)

	resp, err := app.Test(httptest.NewRequest(http.MethodPost, "/api/v1/conversations/42/read", nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	require.Len(t, broadcaster.receipts, 2, "one receipt per flipped message")
	require.Equal(t, realtime.ConversationRoom(42), broadcaster.receipts[0].RoomID)
	require.Equal(t, uint(2), broadcaster.receipts[0].UserID)
}

func TestChatHandlerCreateConversation(t *testing.T) {
	app := newChatApp(&mockMessageService{}, &mockBroadcaster{}, 1)

	payload, err := json.Marshal(dto.ConversationCreateRequest{Kind: "direct", ParticipantIDs: []uint{2}})
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/conversations", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)
}
