package realtime

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/linkfield/linkfield-api/internal/dto"
	"github.com/linkfield/linkfield-api/internal/observability"
)

// ErrBadRoom indicates an operation referenced a room key the gateway
// cannot act on.
var ErrBadRoom = errors.New("invalid room for operation")

// MessageSender is the slice of the message service the gateway drives.
// The fast path carries plain text only; attachment sends go over REST.
type MessageSender interface {
	Send(ctx context.Context, senderID, conversationID uint, content string) (dto.MessageResponse, error)
	MarkAsRead(ctx context.Context, messageID, readerID uint) (time.Time, bool, error)
}

// UserDirectory resolves display names for typing payloads.
type UserDirectory interface {
	DisplayName(ctx context.Context, userID uint) (string, error)
}

type opHandler func(ctx context.Context, s *session, frame Frame) error

// Gateway is the realtime endpoint clients talk to. Operations arrive as
// JSON frames and route through an explicit dispatch table so each handler
// is testable without a live transport. Any handler error is logged and
// reported to the originating session only; it never tears the socket down.
type Gateway struct {
	registry *Registry
	presence *Presence
	verifier *TokenVerifier
	messages MessageSender
	users    UserDirectory
	logger   zerolog.Logger

	mu       sync.RWMutex
	sessions map[*session]struct{}
	rooms    map[Room]map[*session]struct{}

	handlers map[string]opHandler
}

// NewGateway wires the realtime gateway.
func NewGateway(registry *Registry, verifier *TokenVerifier, messages MessageSender, users UserDirectory, logger zerolog.Logger) *Gateway {
	g := &Gateway{
		registry: registry,
		verifier: verifier,
		messages: messages,
		users:    users,
		logger:   logger.With().Str("component", "gateway").Logger(),
		sessions: make(map[*session]struct{}),
		rooms:    make(map[Room]map[*session]struct{}),
	}
	g.presence = NewPresence(g, logger)
	g.handlers = map[string]opHandler{
		OpJoinRoom:  g.handleJoinRoom,
		OpLeaveRoom: g.handleLeaveRoom,
		OpSend:      g.handleSend,
		OpTyping:    g.handleTyping,
		OpMarkRead:  g.handleMarkRead,
		OpPresence:  g.handlePresence,
		OpPing:      g.handlePing,
	}
	return g
}

// upgradeHeaderPrefix namespaces request headers stashed in Locals during
// the HTTP upgrade; the websocket conn no longer exposes them afterwards.
const upgradeHeaderPrefix = "upgrade_header:"

// fiberConnSource adapts the websocket upgrade request to ConnSource.
type fiberConnSource struct {
	conn *websocket.Conn
}

func (f fiberConnSource) Query(key string) string { return f.conn.Query(key) }

func (f fiberConnSource) Header(key string) string {
	value, _ := f.conn.Locals(upgradeHeaderPrefix + key).(string)
	return value
}

func (f fiberConnSource) Principal(key string) interface{} { return f.conn.Locals(key) }

// Handle serves one websocket connection until it drops. Identity must
// resolve before any traffic is accepted.
func (g *Gateway) Handle(conn *websocket.Conn) {
	userID, err := ResolveIdentity(fiberConnSource{conn: conn}, g.verifier)
	if err != nil {
		g.logger.Warn().Err(err).Msg("rejecting unauthenticated realtime connection")
		_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "authentication required"))
		_ = conn.Close()
		return
	}

	baseCtx, _ := conn.Locals("request_ctx").(context.Context)
	if baseCtx == nil {
		baseCtx = context.Background()
	}

	userName, err := g.users.DisplayName(baseCtx, userID)
	if err != nil || userName == "" {
		userName = fmt.Sprintf("user %d", userID)
	}

	s := newSession(uuid.NewString(), userID, userName, conn, g, baseCtx)
	g.addSession(s)

	g.logger.Info().Str("conn_id", s.id).Uint("user_id", userID).Msg("realtime session connected")
	go s.writer()
	s.reader()
	g.logger.Info().Str("conn_id", s.id).Uint("user_id", userID).Msg("realtime session disconnected")
}

func (g *Gateway) addSession(s *session) {
	g.mu.Lock()
	g.sessions[s] = struct{}{}
	g.mu.Unlock()

	observability.GatewayConnections().Inc()

	cameOnline := g.registry.Add(s.userID, s.id)
	g.presence.SessionOpened(s.userID, cameOnline)

	// Every session listens on its own personal channel from the start.
	g.join(s, UserRoom(s.userID))
}

func (g *Gateway) removeSession(s *session) {
	for _, room := range s.joinedRooms() {
		g.leave(s, room)
	}

	g.mu.Lock()
	if _, ok := g.sessions[s]; !ok {
		g.mu.Unlock()
		return
	}
	delete(g.sessions, s)
	g.mu.Unlock()

	observability.GatewayConnections().Dec()

	wentOffline := g.registry.Remove(s.userID, s.id)
	g.presence.SessionClosed(s.userID, wentOffline)
}

func (g *Gateway) join(s *session, room Room) {
	g.mu.Lock()
	members, ok := g.rooms[room]
	if !ok {
		members = make(map[*session]struct{})
		g.rooms[room] = members
	}
	members[s] = struct{}{}
	g.mu.Unlock()

	s.trackRoom(room)
	g.logger.Debug().Str("conn_id", s.id).Str("room", string(room)).Msg("session joined room")
}

func (g *Gateway) leave(s *session, room Room) {
	g.mu.Lock()
	if members, ok := g.rooms[room]; ok {
		delete(members, s)
		if len(members) == 0 {
			delete(g.rooms, room)
		}
	}
	g.mu.Unlock()

	s.forgetRoom(room)
}

// dispatch routes one inbound frame. Failures are logged and echoed to the
// caller as an error event; a failed realtime echo must never crash the
// connection.
func (g *Gateway) dispatch(ctx context.Context, s *session, frame Frame) {
	handler, ok := g.handlers[frame.Op]
	if !ok {
		g.logger.Warn().Str("op", frame.Op).Str("conn_id", s.id).Msg("unknown realtime operation")
		return
	}

	if err := handler(ctx, s, frame); err != nil {
		g.logger.Warn().Err(err).Str("op", frame.Op).Str("conn_id", s.id).Uint("user_id", s.userID).Msg("realtime operation failed")
		s.deliver(Event{Type: EventError, Data: ErrorPayload{Op: frame.Op, Reason: err.Error()}})
	}
}

func (g *Gateway) handleJoinRoom(_ context.Context, s *session, frame Frame) error {
	if frame.Room == "" {
		g.logger.Debug().Str("conn_id", s.id).Msg("join with empty room ignored")
		return nil
	}
	g.join(s, frame.Room)
	return nil
}

func (g *Gateway) handleLeaveRoom(_ context.Context, s *session, frame Frame) error {
	if frame.Room == "" {
		return nil
	}
	g.leave(s, frame.Room)
	return nil
}

func (g *Gateway) handleSend(ctx context.Context, s *session, frame Frame) error {
	conversationID, ok := frame.Room.ConversationID()
	if !ok {
		return ErrBadRoom
	}

	message, err := g.messages.Send(ctx, s.userID, conversationID, frame.Content)
	if err != nil {
		return err
	}

	g.BroadcastMessage(message)
	return nil
}

func (g *Gateway) handleTyping(_ context.Context, s *session, frame Frame) error {
	if frame.Room == "" {
		return ErrBadRoom
	}

	payload := TypingPayload{
		RoomID:   frame.Room,
		UserID:   s.userID,
		UserName: s.userName,
		IsTyping: frame.IsTyping,
	}
	// The sender never receives its own typing echo.
	g.broadcastRoom(frame.Room, Event{Type: EventUserTyping, Data: payload}, s)
	return nil
}

func (g *Gateway) handleMarkRead(ctx context.Context, s *session, frame Frame) error {
	if frame.MessageID == 0 {
		return errors.New("message id required")
	}

	readAt, changed, err := g.messages.MarkAsRead(ctx, frame.MessageID, s.userID)
	if err != nil {
		return err
	}

	// Re-marking an already-read message is a valid call but announces
	// nothing new.
	if changed {
		g.BroadcastReadReceipt(frame.Room, frame.MessageID, s.userID, readAt)
	}
	return nil
}

func (g *Gateway) handlePresence(_ context.Context, s *session, frame Frame) error {
	if frame.Online == nil {
		return errors.New("online flag required")
	}
	g.presence.Announce(s.userID, *frame.Online)
	return nil
}

func (g *Gateway) handlePing(_ context.Context, s *session, _ Frame) error {
	s.deliver(Event{Type: EventPong})
	return nil
}

// BroadcastAll fans an event out to every live session.
func (g *Gateway) BroadcastAll(event Event) {
	g.mu.RLock()
	targets := make([]*session, 0, len(g.sessions))
	for s := range g.sessions {
		targets = append(targets, s)
	}
	g.mu.RUnlock()

	observability.RealtimeEvents().WithLabelValues(event.Type).Inc()
	for _, s := range targets {
		s.deliver(event)
	}
}

// BroadcastRoom fans an event out to every session joined to the room.
func (g *Gateway) BroadcastRoom(room Room, event Event) {
	g.broadcastRoom(room, event, nil)
}

func (g *Gateway) broadcastRoom(room Room, event Event, except *session) {
	g.mu.RLock()
	members := g.rooms[room]
	targets := make([]*session, 0, len(members))
	for s := range members {
		if s == except {
			continue
		}
		targets = append(targets, s)
	}
	g.mu.RUnlock()

	observability.RealtimeEvents().WithLabelValues(event.Type).Inc()
	for _, s := range targets {
		s.deliver(event)
	}
}

// PushToUser delivers an event to every live session on the user's personal
// channel.
func (g *Gateway) PushToUser(userID uint, event Event) {
	g.broadcastRoom(UserRoom(userID), event, nil)
}

// BroadcastMessage announces a persisted message to its conversation room.
// Used by both the realtime fast path and the REST send path.
func (g *Gateway) BroadcastMessage(message dto.MessageResponse) {
	g.BroadcastRoom(ConversationRoom(message.ConversationID), Event{Type: EventReceiveMessage, Data: message})
}

// BroadcastReadReceipt announces a read transition to a conversation room.
func (g *Gateway) BroadcastReadReceipt(room Room, messageID, userID uint, readAt time.Time) {
	g.BroadcastRoom(room, Event{Type: EventMessageRead, Data: ReadReceiptPayload{
		RoomID:    room,
		MessageID: messageID,
		UserID:    userID,
		ReadAt:    readAt,
	}})
}

// RegisterRoutes binds the websocket upgrade under the provided router
// group, carrying the request context and the headers the identity
// strategies need across the upgrade.
func (g *Gateway) RegisterRoutes(router fiber.Router) {
	router.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			ctx := c.UserContext()
			if ctx == nil {
				ctx = context.Background()
			}
			c.Locals("request_ctx", ctx)
			c.Locals(upgradeHeaderPrefix+fiber.HeaderAuthorization, c.Get(fiber.HeaderAuthorization))
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	router.Get("/ws", websocket.New(g.Handle))
}
