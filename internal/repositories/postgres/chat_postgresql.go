package postgres

import (
	"context"

	"gorm.io/gorm"

	"github.com/sparkacademy/portal-service/internal/models"
	"github.com/sparkacademy/portal-service/internal/repositories"
)

// Chat rows are never cached; a session's messages change mid-stream and
// the list order follows updated_at.
type ChatPostgreSQL struct {
	db *gorm.DB
}

func NewChatPostgreSQL(db *gorm.DB) repositories.ChatRepository {
	return &ChatPostgreSQL{db: db}
}

func (c *ChatPostgreSQL) getDB(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return c.db
}

// ===== SESSIONS =====

func (c *ChatPostgreSQL) CreateSession(ctx context.Context, tx *gorm.DB, session *models.ChatSession) error {
	db := c.getDB(tx)
	return db.WithContext(ctx).Create(session).Error
}

func (c *ChatPostgreSQL) GetSession(ctx context.Context, tx *gorm.DB, id string) (*models.ChatSession, error) {
	db := c.getDB(tx)
	var session models.ChatSession
	if err := db.WithContext(ctx).First(&session, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &session, nil
}

func (c *ChatPostgreSQL) GetSessionWithMessages(ctx context.Context, tx *gorm.DB, id string) (*models.ChatSession, error) {
	db := c.getDB(tx)
	var session models.ChatSession
	err := db.WithContext(ctx).
		Preload("Messages", func(db *gorm.DB) *gorm.DB {
			return db.Order("position ASC")
		}).
		First(&session, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &session, nil
}

func (c *ChatPostgreSQL) ListSessions(ctx context.Context, tx *gorm.DB, userID string, filters repositories.ChatSessionFilters) ([]*models.ChatSession, int64, error) {
	db := c.getDB(tx)
	var sessions []*models.ChatSession
	var total int64

	query := db.WithContext(ctx).Model(&models.ChatSession{}).Where("user_id = ?", userID)
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	query = query.Order("updated_at DESC")
	if filters.Limit > 0 {
		query = query.Limit(filters.Limit)
	}
	if filters.Offset > 0 {
		query = query.Offset(filters.Offset)
	}

	if err := query.Find(&sessions).Error; err != nil {
		return nil, 0, err
	}

	return sessions, total, nil
}

func (c *ChatPostgreSQL) RenameSession(ctx context.Context, tx *gorm.DB, id string, name string) error {
	db := c.getDB(tx)
	result := db.WithContext(ctx).Model(&models.ChatSession{}).Where("id = ?", id).Update("name", name)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// TouchSession bumps updated_at so the session list sorts by most recent
// activity, not by rename time alone.
func (c *ChatPostgreSQL) TouchSession(ctx context.Context, tx *gorm.DB, id string) error {
	db := c.getDB(tx)
	return db.WithContext(ctx).Model(&models.ChatSession{}).Where("id = ?", id).Update("updated_at", gorm.Expr("CURRENT_TIMESTAMP")).Error
}

func (c *ChatPostgreSQL) DeleteSession(ctx context.Context, tx *gorm.DB, id string) error {
	db := c.getDB(tx)
	// Remove messages first so a soft-deleted session leaves no orphans
	if err := db.WithContext(ctx).Where("session_id = ?", id).Delete(&models.ChatMessage{}).Error; err != nil {
		return err
	}
	return db.WithContext(ctx).Delete(&models.ChatSession{}, "id = ?", id).Error
}

// ===== MESSAGES =====

func (c *ChatPostgreSQL) CreateMessage(ctx context.Context, tx *gorm.DB, message *models.ChatMessage) error {
	db := c.getDB(tx)
	return db.WithContext(ctx).Create(message).Error
}

func (c *ChatPostgreSQL) GetMessage(ctx context.Context, tx *gorm.DB, id string) (*models.ChatMessage, error) {
	db := c.getDB(tx)
	var message models.ChatMessage
	if err := db.WithContext(ctx).First(&message, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &message, nil
}

func (c *ChatPostgreSQL) UpdateMessage(ctx context.Context, tx *gorm.DB, message *models.ChatMessage) error {
	db := c.getDB(tx)
	return db.WithContext(ctx).Save(message).Error
}

func (c *ChatPostgreSQL) DeleteMessage(ctx context.Context, tx *gorm.DB, id string) error {
	db := c.getDB(tx)
	return db.WithContext(ctx).Delete(&models.ChatMessage{}, "id = ?", id).Error
}

func (c *ChatPostgreSQL) ListMessages(ctx context.Context, tx *gorm.DB, sessionID string) ([]*models.ChatMessage, error) {
	db := c.getDB(tx)
	var messages []*models.ChatMessage
	err := db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("position ASC").
		Find(&messages).Error
	return messages, err
}

// NextPosition returns the position the next message in the session should
// take. Positions start at 0 and never repeat within a session.
func (c *ChatPostgreSQL) NextPosition(ctx context.Context, tx *gorm.DB, sessionID string) (int, error) {
	db := c.getDB(tx)
	var max *int
	err := db.WithContext(ctx).
		Model(&models.ChatMessage{}).
		Select("MAX(position)").
		Where("session_id = ?", sessionID).
		Scan(&max).Error
	if err != nil {
		return 0, err
	}
	if max == nil {
		return 0, nil
	}
	return *max + 1, nil
}

func (c *ChatPostgreSQL) SetFeedback(ctx context.Context, tx *gorm.DB, messageID string, feedback models.MessageFeedback) error {
	db := c.getDB(tx)
	result := db.WithContext(ctx).
		Model(&models.ChatMessage{}).
		Where("id = ?", messageID).
		Update("feedback", feedback)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
