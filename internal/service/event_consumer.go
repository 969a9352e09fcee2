package service

import (
	"context"
	"encoding/json"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"github.com/linkfield/linkfield-api/internal/dto"
)

const (
	eventSubject    = "linkfield.events.>"
	eventQueueGroup = "linkfield-notifications"
)

// NotificationPublisher is the slice of the notification service the
// consumer drives.
type NotificationPublisher interface {
	Create(ctx context.Context, payload dto.NotificationCreateRequest) (dto.NotificationResponse, error)
}

// socialEvent is the wire shape the feature services (likes, comments,
// connection requests) publish when something notification-worthy happens.
type socialEvent struct {
	Type        string `json:"type"`
	RecipientID uint   `json:"recipient_id"`
	SenderID    uint   `json:"sender_id"`
	Title       string `json:"title"`
	Body        string `json:"body"`
	RelatedID   uint   `json:"related_id"`
}

// EventConsumer turns inbound social events from NATS into notifications.
// This is an ingest feed from sibling features, not cross-node chat fan-out.
type EventConsumer struct {
	conn          *nats.Conn
	notifications NotificationPublisher
	logger        zerolog.Logger
}

// NewEventConsumer constructs the consumer. The NATS connection may be nil,
// in which case Start is a no-op (the feed is optional in development).
func NewEventConsumer(conn *nats.Conn, notifications NotificationPublisher, logger zerolog.Logger) *EventConsumer {
	return &EventConsumer{
		conn:          conn,
		notifications: notifications,
		logger:        logger.With().Str("component", "event_consumer").Logger(),
	}
}

// Start subscribes to the social event subject as part of a queue group so
// only one consumer instance processes each event.
func (c *EventConsumer) Start(ctx context.Context) {
	if c.conn == nil {
		return
	}

	sub, err := c.conn.QueueSubscribe(eventSubject, eventQueueGroup, func(msg *nats.Msg) {
		c.handle(ctx, msg.Data)
	})
	if err != nil {
		c.logger.Error().Err(err).Msg("failed to subscribe to social events")
		return
	}

	go func() {
		<-ctx.Done()
		if err := sub.Drain(); err != nil {
			c.logger.Warn().Err(err).Msg("failed to drain social event subscription")
		}
	}()
}

func (c *EventConsumer) handle(ctx context.Context, data []byte) {
	var event socialEvent
	if err := json.Unmarshal(data, &event); err != nil {
		c.logger.Warn().Err(err).Msg("invalid social event payload")
		return
	}

	if event.RecipientID == 0 || event.Title == "" {
		c.logger.Warn().Str("type", event.Type).Msg("social event missing recipient or title")
		return
	}

	eventType := event.Type
	if eventType == "" {
		eventType = "generic"
	}

	if _, err := c.notifications.Create(ctx, dto.NotificationCreateRequest{
		RecipientID: event.RecipientID,
		SenderID:    event.SenderID,
		Title:       event.Title,
		Body:        event.Body,
		Type:        eventType,
		RelatedID:   event.RelatedID,
	}); err != nil {
		c.logger.Warn().Err(err).Str("type", eventType).Msg("failed to create notification from social event")
	}
}
