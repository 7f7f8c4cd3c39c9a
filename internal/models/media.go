package models

import (
	"time"
)

// ImageGenerationResult is one entry of the per-user image history. The
// history is bounded: inserts beyond the configured cap evict the oldest
// rows first.
type ImageGenerationResult struct {
	ID        uint   `json:"id" gorm:"primaryKey"`
	UserID    string `json:"user_id" gorm:"not null;index;size:255"`
	Prompt    string `json:"prompt" gorm:"type:text;not null" validate:"required,min=1,max=2000"`
	ObjectKey string `json:"object_key" gorm:"not null;size:500"`
	URL       string `json:"url" gorm:"not null;size:1000"`
	Model     string `json:"model" gorm:"size:100"`
	Size      string `json:"size" gorm:"size:20"`

	CreatedAt time.Time `json:"created_at" gorm:"index"`

	// Relations
	User User `json:"-" gorm:"foreignKey:UserID"`
}

func (ImageGenerationResult) TableName() string {
	return "image_generation_results"
}

type VideoJobStatus string

const (
	VideoJobPending   VideoJobStatus = "pending"
	VideoJobRunning   VideoJobStatus = "running"
	VideoJobSucceeded VideoJobStatus = "succeeded"
	VideoJobFailed    VideoJobStatus = "failed"
)

func (s VideoJobStatus) IsValid() bool {
	switch s {
	case VideoJobPending, VideoJobRunning, VideoJobSucceeded, VideoJobFailed:
		return true
	}
	return false
}

// Terminal reports whether the job will never change state again.
func (s VideoJobStatus) Terminal() bool {
	return s == VideoJobSucceeded || s == VideoJobFailed
}

// VideoJob tracks a long-running provider video generation operation. The
// poll worker advances it until a terminal state; failed jobs are not
// retried automatically.
type VideoJob struct {
	ID     string         `json:"id" gorm:"primaryKey;size:36"`
	UserID string         `json:"user_id" gorm:"not null;index;size:255"`
	Prompt string         `json:"prompt" gorm:"type:text;not null" validate:"required,min=1,max=2000"`
	Status VideoJobStatus `json:"status" gorm:"not null;default:pending;index"`

	// OperationID is the provider-side handle for polling.
	OperationID string  `json:"operation_id" gorm:"size:500"`
	VideoURL    *string `json:"video_url" gorm:"size:1000"`
	ObjectKey   *string `json:"object_key" gorm:"size:500"`
	Error       *string `json:"error" gorm:"type:text"`

	PollCount    int        `json:"poll_count" gorm:"not null;default:0"`
	LastPolledAt *time.Time `json:"last_polled_at"`

	CreatedAt time.Time `json:"created_at" gorm:"index"`
	UpdatedAt time.Time `json:"updated_at"`

	// Relations
	User User `json:"-" gorm:"foreignKey:UserID"`
}

func (VideoJob) TableName() string {
	return "video_jobs"
}
