package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/sparkacademy/portal-service/internal/events"
	"github.com/sparkacademy/portal-service/internal/llm"
	"github.com/sparkacademy/portal-service/internal/models"
	"github.com/sparkacademy/portal-service/internal/repositories"
	"github.com/sparkacademy/portal-service/internal/storage"
	"github.com/sparkacademy/portal-service/internal/validator"
)

const (
	defaultHistoryLimit = 30
	defaultMediaListMax = 100

	// evictRetryLimit bounds the insert-time eviction loop; one oldest row
	// is removed per attempt.
	evictRetryLimit = 5

	defaultVideoPollBatch = 20
	videoPollCooldown     = 5 * time.Second

	// maxVideoPollCount fails a job the provider never finishes instead of
	// polling it forever.
	maxVideoPollCount = 120

	imageContentType = "image/png"
)

// mediaProvider is the slice of the model client the media service uses
type mediaProvider interface {
	GenerateImage(ctx context.Context, prompt string, size string) ([]byte, error)
	EditImage(ctx context.Context, prompt string, sourceURL string) ([]byte, error)
	StartVideoGeneration(ctx context.Context, prompt string) (string, error)
	GetVideoOperation(ctx context.Context, operationID string) (llm.VideoOperation, error)
	DownloadVideo(ctx context.Context, videoURL string) ([]byte, string, error)
	ImageModel() string
}

// VideoCompletedEvent is published when a render reaches succeeded
type VideoCompletedEvent struct {
	JobID       string    `json:"job_id"`
	UserID      string    `json:"user_id"`
	VideoURL    string    `json:"video_url"`
	CompletedAt time.Time `json:"completed_at"`
}

// VideoFailedEvent is published when a render reaches failed
type VideoFailedEvent struct {
	JobID    string    `json:"job_id"`
	UserID   string    `json:"user_id"`
	Error    string    `json:"error"`
	FailedAt time.Time `json:"failed_at"`
}

type mediaService struct {
	repo         repositories.Repository
	db           *gorm.DB
	logger       *slog.Logger
	validator    *validator.Validator
	publisher    events.EventPublisher
	provider     mediaProvider
	store        storage.ObjectStore
	historyLimit int
}

// NewMediaService creates a new media service instance
func NewMediaService(repo repositories.Repository, db *gorm.DB, logger *slog.Logger, v *validator.Validator, publisher events.EventPublisher, provider mediaProvider, store storage.ObjectStore, historyLimit int) MediaService {
	if historyLimit <= 0 {
		historyLimit = defaultHistoryLimit
	}
	return &mediaService{
		repo:         repo,
		db:           db,
		logger:       logger,
		validator:    v,
		publisher:    publisher,
		provider:     provider,
		store:        store,
		historyLimit: historyLimit,
	}
}

// ===== IMAGES =====

func (s *mediaService) GenerateImage(ctx context.Context, userID string, req *GenerateImageRequest) (*models.ImageGenerationResult, error) {
	s.logger.Info("Generating image", "user_id", userID)

	if err := s.validator.Validate(req); err != nil {
		return nil, err
	}

	size := req.Size
	if size == "" {
		size = "1024x1024"
	}

	data, err := s.provider.GenerateImage(ctx, req.Prompt, size)
	if err != nil {
		s.logger.Error("Image generation failed", "user_id", userID, "error", err)
		return nil, ErrProviderUnavailable
	}

	return s.storeImage(ctx, userID, strings.TrimSpace(req.Prompt), size, data)
}

func (s *mediaService) EditImage(ctx context.Context, userID string, req *EditImageRequest) (*models.ImageGenerationResult, error) {
	s.logger.Info("Editing image", "user_id", userID)

	if err := s.validator.Validate(req); err != nil {
		return nil, err
	}

	data, err := s.provider.EditImage(ctx, req.Prompt, req.SourceURL)
	if err != nil {
		s.logger.Error("Image edit failed", "user_id", userID, "error", err)
		return nil, ErrProviderUnavailable
	}

	return s.storeImage(ctx, userID, strings.TrimSpace(req.Prompt), "", data)
}

func (s *mediaService) ListImages(ctx context.Context, userID string, limit int) (*ImageListResponse, error) {
	if limit <= 0 {
		limit = s.historyLimit
	}
	if limit > defaultMediaListMax {
		limit = defaultMediaListMax
	}

	images, err := s.repo.Media().ListImages(ctx, nil, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list images: %w", err)
	}
	total, err := s.repo.Media().CountImages(ctx, nil, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to count images: %w", err)
	}

	return &ImageListResponse{
		Images: images,
		Total:  total,
	}, nil
}

func (s *mediaService) DeleteImage(ctx context.Context, userID string, id uint) error {
	s.logger.Info("Deleting image", "user_id", userID, "image_id", id)

	image, err := s.repo.Media().GetImage(ctx, nil, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrImageNotFound
		}
		return fmt.Errorf("failed to load image: %w", err)
	}
	if image.UserID != userID {
		return ErrImageAccessDenied
	}

	if err := s.repo.Media().DeleteImage(ctx, nil, id); err != nil {
		return fmt.Errorf("failed to delete image: %w", err)
	}
	s.deleteObject(image.ObjectKey)
	return nil
}

// storeImage uploads the rendered bytes and inserts the history row under
// the bounded-history rules.
func (s *mediaService) storeImage(ctx context.Context, userID string, prompt string, size string, data []byte) (*models.ImageGenerationResult, error) {
	key := storage.BuildObjectKey("images/"+userID, "generated.png")
	url, err := s.store.Put(ctx, key, data, imageContentType)
	if err != nil {
		return nil, fmt.Errorf("failed to store image: %w", err)
	}

	image := &models.ImageGenerationResult{
		UserID:    userID,
		Prompt:    prompt,
		ObjectKey: key,
		URL:       url,
		Model:     s.provider.ImageModel(),
		Size:      size,
	}
	if err := s.insertImageBounded(ctx, image); err != nil {
		s.deleteObject(key)
		return nil, err
	}

	s.logger.Info("Image stored", "user_id", userID, "image_id", image.ID)
	return image, nil
}

// insertImageBounded keeps the per-user history at the configured cap by
// evicting the oldest row and its stored object before inserting.
func (s *mediaService) insertImageBounded(ctx context.Context, image *models.ImageGenerationResult) error {
	for attempt := 0; attempt < evictRetryLimit; attempt++ {
		count, err := s.repo.Media().CountImages(ctx, nil, image.UserID)
		if err != nil {
			return fmt.Errorf("failed to count images: %w", err)
		}
		if count < int64(s.historyLimit) {
			if err := s.repo.Media().CreateImage(ctx, nil, image); err != nil {
				return fmt.Errorf("failed to record image: %w", err)
			}
			return nil
		}

		oldest, err := s.repo.Media().OldestImage(ctx, nil, image.UserID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				continue
			}
			return fmt.Errorf("failed to find eviction candidate: %w", err)
		}
		if err := s.repo.Media().DeleteImage(ctx, nil, oldest.ID); err != nil {
			return fmt.Errorf("failed to evict oldest image: %w", err)
		}
		s.deleteObject(oldest.ObjectKey)
		s.logger.Info("Evicted oldest image", "user_id", image.UserID, "image_id", oldest.ID)
	}
	return ErrHistoryEvictFailed
}

// ===== VIDEO JOBS =====

func (s *mediaService) StartVideo(ctx context.Context, userID string, req *GenerateVideoRequest) (*models.VideoJob, error) {
	s.logger.Info("Starting video job", "user_id", userID)

	if err := s.validator.Validate(req); err != nil {
		return nil, err
	}

	operationID, err := s.provider.StartVideoGeneration(ctx, req.Prompt)
	if err != nil {
		if errors.Is(err, llm.ErrVideoCapabilityUnavailable) {
			return nil, NewBusinessRuleError("video generation is not configured", "video_capability", nil)
		}
		s.logger.Error("Failed to start video generation", "user_id", userID, "error", err)
		return nil, ErrProviderUnavailable
	}

	job := &models.VideoJob{
		ID:          uuid.New().String(),
		UserID:      userID,
		Prompt:      strings.TrimSpace(req.Prompt),
		Status:      models.VideoJobPending,
		OperationID: operationID,
	}
	if err := s.insertVideoJobBounded(ctx, job); err != nil {
		return nil, err
	}

	s.logger.Info("Video job created", "user_id", userID, "job_id", job.ID)
	return job, nil
}

func (s *mediaService) GetVideoJob(ctx context.Context, userID string, id string) (*models.VideoJob, error) {
	job, err := s.repo.Media().GetVideoJob(ctx, nil, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrVideoJobNotFound
		}
		return nil, fmt.Errorf("failed to load video job: %w", err)
	}
	if job.UserID != userID {
		return nil, ErrVideoAccessDenied
	}
	return job, nil
}

func (s *mediaService) ListVideoJobs(ctx context.Context, userID string, limit int) (*VideoJobListResponse, error) {
	if limit <= 0 {
		limit = s.historyLimit
	}
	if limit > defaultMediaListMax {
		limit = defaultMediaListMax
	}

	jobs, err := s.repo.Media().ListVideoJobs(ctx, nil, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list video jobs: %w", err)
	}
	total, err := s.repo.Media().CountVideoJobs(ctx, nil, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to count video jobs: %w", err)
	}

	return &VideoJobListResponse{
		Jobs:  jobs,
		Total: total,
	}, nil
}

// insertVideoJobBounded applies the same bounded-history rules as images
func (s *mediaService) insertVideoJobBounded(ctx context.Context, job *models.VideoJob) error {
	for attempt := 0; attempt < evictRetryLimit; attempt++ {
		count, err := s.repo.Media().CountVideoJobs(ctx, nil, job.UserID)
		if err != nil {
			return fmt.Errorf("failed to count video jobs: %w", err)
		}
		if count < int64(s.historyLimit) {
			if err := s.repo.Media().CreateVideoJob(ctx, nil, job); err != nil {
				return fmt.Errorf("failed to record video job: %w", err)
			}
			return nil
		}

		oldest, err := s.repo.Media().OldestVideoJob(ctx, nil, job.UserID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				continue
			}
			return fmt.Errorf("failed to find eviction candidate: %w", err)
		}
		if err := s.repo.Media().DeleteVideoJob(ctx, nil, oldest.ID); err != nil {
			return fmt.Errorf("failed to evict oldest video job: %w", err)
		}
		if oldest.ObjectKey != nil {
			s.deleteObject(*oldest.ObjectKey)
		}
		s.logger.Info("Evicted oldest video job", "user_id", job.UserID, "job_id", oldest.ID)
	}
	return ErrHistoryEvictFailed
}

// ===== POLL WORKER =====

// PollVideoJobs advances non-terminal jobs against the provider and
// returns how many reached a terminal state this round.
func (s *mediaService) PollVideoJobs(ctx context.Context, batchSize int) (int, error) {
	if batchSize <= 0 {
		batchSize = defaultVideoPollBatch
	}

	cutoff := time.Now().UTC().Add(-videoPollCooldown)
	jobs, err := s.repo.Media().ListPollableJobs(ctx, nil, cutoff, batchSize)
	if err != nil {
		return 0, fmt.Errorf("failed to list pollable jobs: %w", err)
	}

	settled := 0
	for _, job := range jobs {
		if s.pollOne(ctx, job) {
			settled++
		}
	}
	return settled, nil
}

// pollOne advances a single job and reports whether it settled
func (s *mediaService) pollOne(ctx context.Context, job *models.VideoJob) bool {
	now := time.Now().UTC()
	job.PollCount++
	job.LastPolledAt = &now

	op, err := s.provider.GetVideoOperation(ctx, job.OperationID)
	if err != nil {
		s.logger.Warn("Video poll failed", "job_id", job.ID, "error", err)
		if job.PollCount >= maxVideoPollCount {
			s.failJob(ctx, job, "the provider stopped responding")
			return true
		}
		if err := s.repo.Media().UpdateVideoJob(ctx, nil, job); err != nil {
			s.logger.Error("Failed to update video job", "job_id", job.ID, "error", err)
		}
		return false
	}

	switch op.Status {
	case "succeeded":
		return s.completeJob(ctx, job, op)
	case "failed":
		reason := op.Error
		if reason == "" {
			reason = "the provider reported a failure"
		}
		s.failJob(ctx, job, reason)
		return true
	default:
		if op.Status == "running" {
			job.Status = models.VideoJobRunning
		}
		if job.PollCount >= maxVideoPollCount {
			s.failJob(ctx, job, "timed out waiting for the provider")
			return true
		}
		if err := s.repo.Media().UpdateVideoJob(ctx, nil, job); err != nil {
			s.logger.Error("Failed to update video job", "job_id", job.ID, "error", err)
		}
		return false
	}
}

// completeJob downloads the render, stores it and marks the job succeeded
func (s *mediaService) completeJob(ctx context.Context, job *models.VideoJob, op llm.VideoOperation) bool {
	if op.VideoURL == "" {
		s.failJob(ctx, job, "the provider finished without a video")
		return true
	}

	data, contentType, err := s.provider.DownloadVideo(ctx, op.VideoURL)
	if err != nil {
		// Leave the job non-terminal; the next poll retries the download
		s.logger.Warn("Video download failed", "job_id", job.ID, "error", err)
		if err := s.repo.Media().UpdateVideoJob(ctx, nil, job); err != nil {
			s.logger.Error("Failed to update video job", "job_id", job.ID, "error", err)
		}
		return false
	}

	key := storage.BuildObjectKey("videos/"+job.UserID, "render.mp4")
	url, err := s.store.Put(ctx, key, data, contentType)
	if err != nil {
		s.logger.Warn("Video upload failed", "job_id", job.ID, "error", err)
		if err := s.repo.Media().UpdateVideoJob(ctx, nil, job); err != nil {
			s.logger.Error("Failed to update video job", "job_id", job.ID, "error", err)
		}
		return false
	}

	job.Status = models.VideoJobSucceeded
	job.VideoURL = &url
	job.ObjectKey = &key
	job.Error = nil
	if err := s.repo.Media().UpdateVideoJob(ctx, nil, job); err != nil {
		s.logger.Error("Failed to mark video job succeeded", "job_id", job.ID, "error", err)
		s.deleteObject(key)
		return false
	}

	s.logger.Info("Video job succeeded", "job_id", job.ID, "user_id", job.UserID)

	if s.publisher != nil {
		event := VideoCompletedEvent{
			JobID:       job.ID,
			UserID:      job.UserID,
			VideoURL:    url,
			CompletedAt: time.Now().UTC(),
		}
		if err := s.publisher.Publish(ctx, events.EventTypeVideoCompleted, event); err != nil {
			s.logger.Warn("Failed to publish video completed event", "job_id", job.ID, "error", err)
		}
	}
	return true
}

func (s *mediaService) failJob(ctx context.Context, job *models.VideoJob, reason string) {
	job.Status = models.VideoJobFailed
	job.Error = &reason
	if err := s.repo.Media().UpdateVideoJob(ctx, nil, job); err != nil {
		s.logger.Error("Failed to mark video job failed", "job_id", job.ID, "error", err)
		return
	}

	s.logger.Info("Video job failed", "job_id", job.ID, "user_id", job.UserID, "reason", reason)

	if s.publisher != nil {
		event := VideoFailedEvent{
			JobID:    job.ID,
			UserID:   job.UserID,
			Error:    reason,
			FailedAt: time.Now().UTC(),
		}
		if err := s.publisher.Publish(ctx, events.EventTypeVideoFailed, event); err != nil {
			s.logger.Warn("Failed to publish video failed event", "job_id", job.ID, "error", err)
		}
	}
}

// ===== HELPER METHODS =====

// deleteObject best-effort removes a stored object on its own deadline
func (s *mediaService) deleteObject(key string) {
	if strings.TrimSpace(key) == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()

	if err := s.store.Delete(ctx, key); err != nil {
		s.logger.Warn("Failed to delete stored object", "key", key, "error", err)
	}
}
