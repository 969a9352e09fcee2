package realtime

import (
	"fmt"
	"strconv"
	"strings"
)

// Room is a typed broadcast group key. Constructors below are the only way
// rooms are named, which keeps the wire format in one place.
type Room string

// ConversationRoom returns the broadcast room for a conversation.
func ConversationRoom(conversationID uint) Room {
	return Room(fmt.Sprintf("chat_%d", conversationID))
}

// UserRoom returns the personal channel for a user.
func UserRoom(userID uint) Room {
	return Room(fmt.Sprintf("user_%d", userID))
}

// ConversationID extracts the conversation identifier from a chat room key.
// The second return is false for personal channels and malformed keys.
func (r Room) ConversationID() (uint, bool) {
	raw, ok := strings.CutPrefix(string(r), "chat_")
	if !ok {
		return 0, false
	}
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || id == 0 {
		return 0, false
	}
	return uint(id), true
}

// IsUserRoom reports whether the key names a personal channel.
func (r Room) IsUserRoom() bool {
	return strings.HasPrefix(string(r), "user_")
}
