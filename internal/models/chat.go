package models

import "time"

// Conversation kinds.
const (
	ConversationDirect = "direct"
	ConversationGroup  = "group"
)

// Message content types. Mixed covers a text body sent together with files.
const (
	MessageTypeText     = "text"
	MessageTypeImage    = "image"
	MessageTypeVideo    = "video"
	MessageTypeAudio    = "audio"
	MessageTypeDocument = "document"
	MessageTypeArchive  = "archive"
	MessageTypeOther    = "other"
	MessageTypeFiles    = "files"
	MessageTypeMixed    = "mixed"
)

// Conversation represents a direct or group chat between users.
type Conversation struct {
	ID           uint          `gorm:"primaryKey" json:"id"`
	Kind         string        `gorm:"size:16;not null;default:direct" json:"kind"`
	Name         string        `gorm:"size:128" json:"name,omitempty"`
	Participants []Participant `json:"participants,omitempty"`
	CreatedAt    time.Time     `json:"created_at"`
	UpdatedAt    time.Time     `gorm:"index" json:"updated_at"`
}

// Participant binds a user to a conversation.
type Participant struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	ConversationID uint      `gorm:"index:idx_participant_conv_user,unique;not null" json:"conversation_id"`
	UserID         uint      `gorm:"index:idx_participant_conv_user,unique;index;not null" json:"user_id"`
	User           User      `json:"user,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// Message is a single chat message. Immutable after creation except for the
// read flag and its timestamp, which flip together exactly once.
type Message struct {
	ID             uint         `gorm:"primaryKey" json:"id"`
	ConversationID uint         `gorm:"index;not null" json:"conversation_id"`
	SenderID       uint         `gorm:"index;not null" json:"sender_id"`
	Sender         User         `json:"sender,omitempty"`
	Content        string       `gorm:"type:text" json:"content"`
	Type           string       `gorm:"size:16;not null;default:text" json:"type"`
	Attachments    []Attachment `json:"attachments,omitempty"`
	Read           bool         `gorm:"not null;default:false" json:"read"`
	ReadAt         *time.Time   `json:"read_at,omitempty"`
	CreatedAt      time.Time    `gorm:"index" json:"created_at"`
}

// Attachment is one stored file bound to a message, never mutated.
type Attachment struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	MessageID    uint      `gorm:"index;not null" json:"message_id"`
	FileName     string    `gorm:"size:255;not null" json:"file_name"`
	URL          string    `gorm:"size:512;not null" json:"url"`
	Type         string    `gorm:"size:16;not null" json:"type"`
	SizeBytes    int64     `json:"size_bytes"`
	ThumbnailURL string    `gorm:"size:512" json:"thumbnail_url,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}
