package postgres

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/sparkacademy/portal-service/internal/models"
	"github.com/sparkacademy/portal-service/internal/repositories"
)

type MediaPostgreSQL struct {
	db *gorm.DB
}

func NewMediaPostgreSQL(db *gorm.DB) repositories.MediaRepository {
	return &MediaPostgreSQL{db: db}
}

func (m *MediaPostgreSQL) getDB(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return m.db
}

// ===== IMAGE HISTORY =====

func (m *MediaPostgreSQL) CreateImage(ctx context.Context, tx *gorm.DB, image *models.ImageGenerationResult) error {
	db := m.getDB(tx)
	return db.WithContext(ctx).Create(image).Error
}

func (m *MediaPostgreSQL) GetImage(ctx context.Context, tx *gorm.DB, id uint) (*models.ImageGenerationResult, error) {
	db := m.getDB(tx)
	var image models.ImageGenerationResult
	if err := db.WithContext(ctx).First(&image, id).Error; err != nil {
		return nil, err
	}
	return &image, nil
}

func (m *MediaPostgreSQL) ListImages(ctx context.Context, tx *gorm.DB, userID string, limit int) ([]*models.ImageGenerationResult, error) {
	db := m.getDB(tx)
	if limit <= 0 {
		limit = 50
	}

	var images []*models.ImageGenerationResult
	err := db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Limit(limit).
		Find(&images).Error
	return images, err
}

func (m *MediaPostgreSQL) DeleteImage(ctx context.Context, tx *gorm.DB, id uint) error {
	db := m.getDB(tx)
	return db.WithContext(ctx).Delete(&models.ImageGenerationResult{}, id).Error
}

func (m *MediaPostgreSQL) CountImages(ctx context.Context, tx *gorm.DB, userID string) (int64, error) {
	db := m.getDB(tx)
	var count int64
	err := db.WithContext(ctx).
		Model(&models.ImageGenerationResult{}).
		Where("user_id = ?", userID).
		Count(&count).Error
	return count, err
}

// OldestImage returns the next eviction candidate for a full history
func (m *MediaPostgreSQL) OldestImage(ctx context.Context, tx *gorm.DB, userID string) (*models.ImageGenerationResult, error) {
	db := m.getDB(tx)
	var image models.ImageGenerationResult
	err := db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at ASC").
		Order("id ASC").
		First(&image).Error
	if err != nil {
		return nil, err
	}
	return &image, nil
}

// ===== VIDEO JOBS =====

func (m *MediaPostgreSQL) CreateVideoJob(ctx context.Context, tx *gorm.DB, job *models.VideoJob) error {
	db := m.getDB(tx)
	return db.WithContext(ctx).Create(job).Error
}

func (m *MediaPostgreSQL) GetVideoJob(ctx context.Context, tx *gorm.DB, id string) (*models.VideoJob, error) {
	db := m.getDB(tx)
	var job models.VideoJob
	if err := db.WithContext(ctx).First(&job, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &job, nil
}

func (m *MediaPostgreSQL) ListVideoJobs(ctx context.Context, tx *gorm.DB, userID string, limit int) ([]*models.VideoJob, error) {
	db := m.getDB(tx)
	if limit <= 0 {
		limit = 50
	}

	var jobs []*models.VideoJob
	err := db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Limit(limit).
		Find(&jobs).Error
	return jobs, err
}

func (m *MediaPostgreSQL) UpdateVideoJob(ctx context.Context, tx *gorm.DB, job *models.VideoJob) error {
	db := m.getDB(tx)
	return db.WithContext(ctx).Save(job).Error
}

func (m *MediaPostgreSQL) DeleteVideoJob(ctx context.Context, tx *gorm.DB, id string) error {
	db := m.getDB(tx)
	return db.WithContext(ctx).Delete(&models.VideoJob{}, "id = ?", id).Error
}

func (m *MediaPostgreSQL) CountVideoJobs(ctx context.Context, tx *gorm.DB, userID string) (int64, error) {
	db := m.getDB(tx)
	var count int64
	err := db.WithContext(ctx).
		Model(&models.VideoJob{}).
		Where("user_id = ?", userID).
		Count(&count).Error
	return count, err
}

func (m *MediaPostgreSQL) OldestVideoJob(ctx context.Context, tx *gorm.DB, userID string) (*models.VideoJob, error) {
	db := m.getDB(tx)
	var job models.VideoJob
	err := db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at ASC").
		First(&job).Error
	if err != nil {
		return nil, err
	}
	return &job, nil
}

// ListPollableJobs returns jobs the poll worker should advance: anything
// non-terminal that has not been polled since the cutoff (or ever).
func (m *MediaPostgreSQL) ListPollableJobs(ctx context.Context, tx *gorm.DB, notPolledSince time.Time, limit int) ([]*models.VideoJob, error) {
	db := m.getDB(tx)
	if limit <= 0 {
		limit = 20
	}

	var jobs []*models.VideoJob
	err := db.WithContext(ctx).
		Where("status IN ?", []models.VideoJobStatus{models.VideoJobPending, models.VideoJobRunning}).
		Where("last_polled_at IS NULL OR last_polled_at <= ?", notPolledSince).
		Order("created_at ASC").
		Limit(limit).
		Find(&jobs).Error
	return jobs, err
}
