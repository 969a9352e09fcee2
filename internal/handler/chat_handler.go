package handler

import (
	"errors"
	"io"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/linkfield/linkfield-api/internal/dto"
	"github.com/linkfield/linkfield-api/internal/middleware"
	"github.com/linkfield/linkfield-api/internal/realtime"
	"github.com/linkfield/linkfield-api/internal/service"
	"github.com/linkfield/linkfield-api/internal/utils"
)

// MessageBroadcaster re-announces durable results to live room members.
type MessageBroadcaster interface {
	BroadcastMessage(message dto.MessageResponse)
	BroadcastReadReceipt(room realtime.Room, messageID, userID uint, readAt time.Time)
}

// ChatHandler wires the conversation and message REST endpoints. The
// realtime path handles quick text sends; this surface carries attachment
// sends, history, and conversation management.
type ChatHandler struct {
	service     service.MessageService
	broadcaster MessageBroadcaster
	validator   *validator.Validate
	logger      zerolog.Logger
}

// NewChatHandler creates a chat handler instance.
func NewChatHandler(service service.MessageService, broadcaster MessageBroadcaster, validator *validator.Validate, logger zerolog.Logger) *ChatHandler {
	return &ChatHandler{
		service:     service,
		broadcaster: broadcaster,
		validator:   validator,
		logger:      logger.With().Str("component", "chat_handler").Logger(),
	}
}

// Register binds chat routes under the provided router group.
func (h *ChatHandler) Register(router fiber.Router) {
	router.Post("/conversations", h.createConversation)
	router.Get("/conversations", h.listConversations)
	router.Get("/conversations/:id/messages", h.history)
	router.Post("/conversations/:id/messages", h.sendMessage)
	router.Post("/conversations/:id/read", h.markAllRead)
}

func (h *ChatHandler) createConversation(c *fiber.Ctx) error {
	userID, ok := middleware.CurrentUserID(c)
	if !ok {
		return utils.SendError(c, fiber.StatusUnauthorized, "authentication required")
	}

	var payload dto.ConversationCreateRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}

	conversation, err := h.service.CreateConversation(c.UserContext(), userID, payload)
	if err != nil {
		return h.mapError(c, err)
	}

	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "conversation created", conversation)
}

func (h *ChatHandler) listConversations(c *fiber.Ctx) error {
	userID, ok := middleware.CurrentUserID(c)
	if !ok {
		return utils.SendError(c, fiber.StatusUnauthorized, "authentication required")
	}

	conversations, err := h.service.ListConversations(c.UserContext(), userID)
	if err != nil {
		return h.mapError(c, err)
	}

	return utils.SendSuccess(c, "conversations", conversations)
}

func (h *ChatHandler) history(c *fiber.Ctx) error {
	userID, ok := middleware.CurrentUserID(c)
	if !ok {
		return utils.SendError(c, fiber.StatusUnauthorized, "authentication required")
	}

	conversationID, err := parseIDParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid conversation id")
	}

	query := dto.MessageHistoryQuery{
		ConversationID: conversationID,
		Page:           c.QueryInt("page", 1),
		PageSize:       c.QueryInt("page_size", 50),
	}

	messages, err := h.service.History(c.UserContext(), userID, query)
	if err != nil {
		return h.mapError(c, err)
	}

	return utils.SendSuccess(c, "message history", messages)
}

// sendMessage accepts a multipart form: a "content" field plus zero or more
// "files". The persisted record is broadcast to the conversation room after
// the store commits.
func (h *ChatHandler) sendMessage(c *fiber.Ctx) error {
	userID, ok := middleware.CurrentUserID(c)
	if !ok {
		return utils.SendError(c, fiber.StatusUnauthorized, "authentication required")
	}

	conversationID, err := parseIDParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid conversation id")
	}

	content := c.FormValue("content")

	var files []service.MessageFile
	if form, err := c.MultipartForm(); err == nil && form != nil {
		for _, header := range form.File["files"] {
			handle, err := header.Open()
			if err != nil {
				h.logger.Warn().Err(err).Str("file", header.Filename).Msg("skipping unreadable upload")
				continue
			}
			data, err := io.ReadAll(handle)
			_ = handle.Close()
			if err != nil {
				h.logger.Warn().Err(err).Str("file", header.Filename).Msg("skipping unreadable upload")
				continue
			}
			files = append(files, service.MessageFile{Name: header.Filename, Data: data})
		}
	}

	message, err := h.service.SendMessage(c.UserContext(), userID, conversationID, content, files)
	if err != nil {
		return h.mapError(c, err)
	}

	h.broadcaster.BroadcastMessage(message)

	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "message sent", message)
}

func (h *ChatHandler) markAllRead(c *fiber.Ctx) error {
	userID, ok := middleware.CurrentUserID(c)
	if !ok {
		return utils.SendError(c, fiber.StatusUnauthorized, "authentication required")
	}

	conversationID, err := parseIDParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid conversation id")
	}

	receipts, err := h.service.MarkAllAsRead(c.UserContext(), conversationID, userID)
	if err != nil {
		return h.mapError(c, err)
	}

	room := realtime.ConversationRoom(conversationID)
	for _, receipt := range receipts {
		h.broadcaster.BroadcastReadReceipt(room, receipt.MessageID, userID, receipt.ReadAt)
	}

	return utils.SendSuccess(c, "messages marked read", fiber.Map{"updated": len(receipts)})
}

func (h *ChatHandler) mapError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, service.ErrNotParticipant):
		return utils.SendError(c, fiber.StatusForbidden, err.Error())
	case errors.Is(err, service.ErrEmptyMessage):
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	default:
		var validationErrors validator.ValidationErrors
		if errors.As(err, &validationErrors) {
			return utils.SendError(c, fiber.StatusBadRequest, err.Error())
		}
		h.logger.Error().Err(err).Msg("chat request failed")
		return utils.SendError(c, fiber.StatusInternalServerError, err.Error())
	}
}

func parseIDParam(c *fiber.Ctx, name string) (uint, error) {
	raw := c.Params(name)
	parsed, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || parsed == 0 {
		return 0, errors.New("invalid id")
	}
	return uint(parsed), nil
}
