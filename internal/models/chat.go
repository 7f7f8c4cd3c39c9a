package models

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type MessageRole string

const (
	MessageRoleUser  MessageRole = "user"
	MessageRoleModel MessageRole = "model"
)

func (r MessageRole) IsValid() bool {
	return r == MessageRoleUser || r == MessageRoleModel
}

type MessageFeedback string

const (
	FeedbackUp   MessageFeedback = "up"
	FeedbackDown MessageFeedback = "down"
)

func (f MessageFeedback) IsValid() bool {
	return f == FeedbackUp || f == FeedbackDown
}

// Citation is one grounding source attached to a completed model message.
type Citation struct {
	Title string `json:"title"`
	URL   string `json:"url"`
}

type ChatSession struct {
	ID     string `json:"id" gorm:"primaryKey;size:36"`
	UserID string `json:"user_id" gorm:"not null;index;size:255"`
	Name   string `json:"name" gorm:"not null;size:200"`

	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"-" gorm:"index"`

	// Relations
	User     User          `json:"-" gorm:"foreignKey:UserID"`
	Messages []ChatMessage `json:"messages,omitempty" gorm:"foreignKey:SessionID"`
}

func (ChatSession) TableName() string {
	return "chat_sessions"
}

type ChatMessage struct {
	ID        string      `json:"id" gorm:"primaryKey;size:36"`
	SessionID string      `json:"session_id" gorm:"not null;index;size:36"`
	Role      MessageRole `json:"role" gorm:"not null;size:10"`
	Content   string      `json:"content" gorm:"type:text"`

	// Optional image attachment (object storage URL)
	ImageURL *string `json:"image_url" gorm:"size:500"`

	// Streaming stays true from placeholder creation until the exchange
	// completes; a failed exchange deletes the row instead of clearing it.
	Streaming bool `json:"streaming" gorm:"not null;default:false"`

	Feedback  *MessageFeedback `json:"feedback" gorm:"size:10"`
	Citations datatypes.JSON   `json:"citations" gorm:"type:jsonb"`

	// Position orders messages within a session.
	Position int `json:"position" gorm:"not null;index"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Relations
	Session ChatSession `json:"-" gorm:"foreignKey:SessionID"`
}

func (ChatMessage) TableName() string {
	return "chat_messages"
}
