package models

import (
	"time"

	"gorm.io/datatypes"
)

// Notification represents one fan-out event targeted at a single user.
// Produced by any feature (like, comment, connection request, message).
type Notification struct {
	ID          uint              `gorm:"primaryKey" json:"id"`
	RecipientID uint              `gorm:"index;not null" json:"recipient_id"`
	SenderID    uint              `gorm:"index" json:"sender_id"`
	Title       string            `gorm:"size:255;not null" json:"title"`
	Body        string            `gorm:"type:text" json:"body"`
	Type        string            `gorm:"size:64;not null" json:"type"`
	RelatedID   uint              `json:"related_id,omitempty"`
	Metadata    datatypes.JSONMap `gorm:"type:json" json:"metadata,omitempty"`
	Read        bool              `gorm:"not null;default:false" json:"read"`
	CreatedAt   time.Time         `gorm:"index" json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
}
