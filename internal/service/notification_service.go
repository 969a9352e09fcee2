package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/microcosm-cc/bluemonday"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/datatypes"

	"github.com/linkfield/linkfield-api/internal/dto"
	"github.com/linkfield/linkfield-api/internal/models"
	"github.com/linkfield/linkfield-api/internal/observability"
	"github.com/linkfield/linkfield-api/internal/realtime"
	"github.com/linkfield/linkfield-api/internal/repository"
)

// RealtimePusher delivers events to a user's personal channel. The gateway
// implements it; tests substitute a recorder.
type RealtimePusher interface {
	PushToUser(userID uint, event realtime.Event)
}

// NotificationService persists notifications and fans them out, keeping the
// recipient's unread counter derived from the store at all times.
type NotificationService interface {
	Create(ctx context.Context, payload dto.NotificationCreateRequest) (dto.NotificationResponse, error)
	List(ctx context.Context, recipientID uint, limit, offset int) ([]dto.NotificationResponse, error)
	UnreadCount(ctx context.Context, recipientID uint) (int64, error)
	MarkRead(ctx context.Context, id, recipientID uint) (dto.NotificationResponse, error)
	MarkAllRead(ctx context.Context, recipientID uint) error
	Delete(ctx context.Context, id, recipientID uint) error
	DeleteAll(ctx context.Context, recipientID uint) error
}

type notificationService struct {
	repo      repository.NotificationRepository
	pusher    RealtimePusher
	redis     *redis.Client
	cacheTTL  time.Duration
	validator *validator.Validate
	sanitizer *bluemonday.Policy
	logger    zerolog.Logger
	tracer    trace.Tracer
}

// NewNotificationService constructs a notification service. The Redis
// client may be nil; the unread counter is then always recomputed from SQL.
func NewNotificationService(repo repository.NotificationRepository, pusher RealtimePusher, redisClient *redis.Client, cacheTTL time.Duration, validate *validator.Validate, logger zerolog.Logger) NotificationService {
	return &notificationService{
		repo:      repo,
		pusher:    pusher,
		redis:     redisClient,
		cacheTTL:  cacheTTL,
		validator: validate,
		sanitizer: bluemonday.StrictPolicy(),
		logger:    logger.With().Str("component", "notification_service").Logger(),
		tracer:    otel.Tracer("github.com/linkfield/linkfield-api/internal/service"),
	}
}

// Create persists the notification, then pushes the record and the
// recomputed unread counter to the recipient's personal channel as two
// separate events so clients can update a badge without re-rendering.
func (s *notificationService) Create(ctx context.Context, payload dto.NotificationCreateRequest) (dto.NotificationResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.NotificationResponse{}, err
	}

	title := strings.TrimSpace(s.sanitizer.Sanitize(payload.Title))
	if title == "" {
		return dto.NotificationResponse{}, errors.New("notification title empty after sanitization")
	}

	spanCtx, span := s.tracer.Start(ctx, "notifications.create", trace.WithAttributes(
		attribute.Int("notification.recipient_id", int(payload.RecipientID)),
		attribute.String("notification.type", payload.Type),
	))
	defer span.End()

	model := models.Notification{
		RecipientID: payload.RecipientID,
		SenderID:    payload.SenderID,
		Title:       title,
		Body:        strings.TrimSpace(s.sanitizer.Sanitize(payload.Body)),
		Type:        payload.Type,
		RelatedID:   payload.RelatedID,
	}
	if len(payload.Metadata) > 0 {
		model.Metadata = datatypes.JSONMap{}
		for key, value := range payload.Metadata {
			model.Metadata[key] = value
		}
	}

	if err := s.repo.Create(spanCtx, &model); err != nil {
		span.RecordError(err)
		return dto.NotificationResponse{}, err
	}

	response := dto.NewNotificationResponse(model)
	s.pusher.PushToUser(model.RecipientID, realtime.Event{Type: realtime.EventReceiveNotification, Data: response})
	s.pushUnread(spanCtx, model.RecipientID)

	observability.NotificationsPublished().WithLabelValues(response.Type).Inc()

	return response, nil
}

func (s *notificationService) List(ctx context.Context, recipientID uint, limit, offset int) ([]dto.NotificationResponse, error) {
	notifications, err := s.repo.ListByRecipient(ctx, recipientID, limit, offset)
	if err != nil {
		return nil, err
	}
	return dto.NewNotificationResponseSlice(notifications), nil
}

// UnreadCount reads through the Redis cache; the SQL count stays the source
// of truth on any miss.
func (s *notificationService) UnreadCount(ctx context.Context, recipientID uint) (int64, error) {
	if s.redis != nil {
		cached, err := s.redis.Get(ctx, s.unreadKey(recipientID)).Result()
		if err == nil {
			if count, parseErr := strconv.ParseInt(cached, 10, 64); parseErr == nil {
				return count, nil
			}
		}
	}

	count, err := s.repo.CountUnread(ctx, recipientID)
	if err != nil {
		return 0, err
	}
	s.cacheUnread(ctx, recipientID, count)
	return count, nil
}

func (s *notificationService) MarkRead(ctx context.Context, id, recipientID uint) (dto.NotificationResponse, error) {
	notification, err := s.repo.MarkRead(ctx, id, recipientID)
	if err != nil {
		return dto.NotificationResponse{}, err
	}

	s.pushUnread(ctx, recipientID)
	return dto.NewNotificationResponse(notification), nil
}

func (s *notificationService) MarkAllRead(ctx context.Context, recipientID uint) error {
	if err := s.repo.MarkAllRead(ctx, recipientID); err != nil {
		return err
	}
	s.pushUnread(ctx, recipientID)
	return nil
}

func (s *notificationService) Delete(ctx context.Context, id, recipientID uint) error {
	if err := s.repo.Delete(ctx, id, recipientID); err != nil {
		return err
	}
	s.pushUnread(ctx, recipientID)
	return nil
}

func (s *notificationService) DeleteAll(ctx context.Context, recipientID uint) error {
	if err := s.repo.DeleteAll(ctx, recipientID); err != nil {
		return err
	}
	s.pushUnread(ctx, recipientID)
	return nil
}

// pushUnread recomputes the unread counter from the store and pushes it to
// the recipient. The count is always re-derived, never incremented, so it
// cannot drift.
func (s *notificationService) pushUnread(ctx context.Context, recipientID uint) {
	count, err := s.repo.CountUnread(ctx, recipientID)
	if err != nil {
		s.logger.Warn().Err(err).Uint("recipient_id", recipientID).Msg("failed to recompute unread count")
		return
	}

	s.cacheUnread(ctx, recipientID, count)
	s.pusher.PushToUser(recipientID, realtime.Event{Type: realtime.EventUpdateUnreadCount, Data: count})
	observability.UnreadPushes().Inc()
}

func (s *notificationService) cacheUnread(ctx context.Context, recipientID uint, count int64) {
	if s.redis == nil {
		return
	}
	if err := s.redis.Set(ctx, s.unreadKey(recipientID), strconv.FormatInt(count, 10), s.cacheTTL).Err(); err != nil {
		s.logger.Warn().Err(err).Uint("recipient_id", recipientID).Msg("failed to cache unread count")
	}
}

func (s *notificationService) unreadKey(recipientID uint) string {
	return fmt.Sprintf("linkfield:unread:%d", recipientID)
}
