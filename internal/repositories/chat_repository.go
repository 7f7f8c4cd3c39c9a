package repositories

import (
	"context"

	"gorm.io/gorm"

	"github.com/sparkacademy/portal-service/internal/models"
)

// ChatRepository interface for tutor sessions and their messages
type ChatRepository interface {
	// Sessions
	CreateSession(ctx context.Context, tx *gorm.DB, session *models.ChatSession) error
	GetSession(ctx context.Context, tx *gorm.DB, id string) (*models.ChatSession, error)
	GetSessionWithMessages(ctx context.Context, tx *gorm.DB, id string) (*models.ChatSession, error)
	ListSessions(ctx context.Context, tx *gorm.DB, userID string, filters ChatSessionFilters) ([]*models.ChatSession, int64, error)
	RenameSession(ctx context.Context, tx *gorm.DB, id string, name string) error
	TouchSession(ctx context.Context, tx *gorm.DB, id string) error
	DeleteSession(ctx context.Context, tx *gorm.DB, id string) error

	// Messages
	CreateMessage(ctx context.Context, tx *gorm.DB, message *models.ChatMessage) error
	GetMessage(ctx context.Context, tx *gorm.DB, id string) (*models.ChatMessage, error)
	UpdateMessage(ctx context.Context, tx *gorm.DB, message *models.ChatMessage) error
	DeleteMessage(ctx context.Context, tx *gorm.DB, id string) error
	ListMessages(ctx context.Context, tx *gorm.DB, sessionID string) ([]*models.ChatMessage, error)
	NextPosition(ctx context.Context, tx *gorm.DB, sessionID string) (int, error)
	SetFeedback(ctx context.Context, tx *gorm.DB, messageID string, feedback models.MessageFeedback) error
}
