package repositories

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/sparkacademy/portal-service/internal/models"
)

// MediaRepository interface for the bounded per-user image history and the
// long-running video job lifecycle
type MediaRepository interface {
	// Image history
	CreateImage(ctx context.Context, tx *gorm.DB, image *models.ImageGenerationResult) error
	GetImage(ctx context.Context, tx *gorm.DB, id uint) (*models.ImageGenerationResult, error)
	ListImages(ctx context.Context, tx *gorm.DB, userID string, limit int) ([]*models.ImageGenerationResult, error)
	DeleteImage(ctx context.Context, tx *gorm.DB, id uint) error
	CountImages(ctx context.Context, tx *gorm.DB, userID string) (int64, error)
	// OldestImage returns the eviction candidate when the history is full
	OldestImage(ctx context.Context, tx *gorm.DB, userID string) (*models.ImageGenerationResult, error)

	// Video jobs
	CreateVideoJob(ctx context.Context, tx *gorm.DB, job *models.VideoJob) error
	GetVideoJob(ctx context.Context, tx *gorm.DB, id string) (*models.VideoJob, error)
	ListVideoJobs(ctx context.Context, tx *gorm.DB, userID string, limit int) ([]*models.VideoJob, error)
	UpdateVideoJob(ctx context.Context, tx *gorm.DB, job *models.VideoJob) error
	DeleteVideoJob(ctx context.Context, tx *gorm.DB, id string) error
	CountVideoJobs(ctx context.Context, tx *gorm.DB, userID string) (int64, error)
	OldestVideoJob(ctx context.Context, tx *gorm.DB, userID string) (*models.VideoJob, error)
	// ListPollableJobs returns non-terminal jobs not polled since the cutoff
	ListPollableJobs(ctx context.Context, tx *gorm.DB, notPolledSince time.Time, limit int) ([]*models.VideoJob, error)
}
