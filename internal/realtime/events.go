package realtime

import "time"

// Server→client event types carried on the realtime channel.
const (
	EventReceiveMessage      = "receive_message"
	EventUserTyping          = "user_typing"
	EventMessageRead         = "message_read"
	EventUserOnlineStatus    = "user_online_status"
	EventReceiveNotification = "receive_notification"
	EventUpdateUnreadCount   = "update_unread_count"
	EventPong                = "pong"
	EventError               = "error"
)

// Client→server operations.
const (
	OpJoinRoom  = "join_room"
	OpLeaveRoom = "leave_room"
	OpSend      = "send"
	OpTyping    = "typing"
	OpMarkRead  = "mark_read"
	OpPresence  = "presence"
	OpPing      = "ping"
)

// Event is the envelope for every server→client payload.
type Event struct {
	Type string      `json:"type"`
	Data interface{} `json:"data,omitempty"`
}

// Frame is the envelope for every client→server operation.
type Frame struct {
	Op        string `json:"op"`
	Room      Room   `json:"room,omitempty"`
	Content   string `json:"content,omitempty"`
	MessageID uint   `json:"message_id,omitempty"`
	IsTyping  bool   `json:"is_typing,omitempty"`
	Online    *bool  `json:"online,omitempty"`
}

// TypingPayload is broadcast to every room member except the sender.
// Receivers own the auto-clear timeout; the server tracks no typing state.
type TypingPayload struct {
	RoomID   Room   `json:"room_id"`
	UserID   uint   `json:"user_id"`
	UserName string `json:"user_name"`
	IsTyping bool   `json:"is_typing"`
}

// ReadReceiptPayload announces a message read transition to a room.
type ReadReceiptPayload struct {
	RoomID    Room      `json:"room_id"`
	MessageID uint      `json:"message_id"`
	UserID    uint      `json:"user_id"`
	ReadAt    time.Time `json:"read_at"`
}

// PresencePayload announces an online/offline transition to all sessions.
type PresencePayload struct {
	UserID   uint `json:"user_id"`
	IsOnline bool `json:"is_online"`
}

// ErrorPayload reports a failed operation to the originating client only.
type ErrorPayload struct {
	Op     string `json:"op"`
	Reason string `json:"reason"`
}
