package repositories

import (
	"context"
	"time"

	"gorm.io/gorm"
)

// DashboardRepository interface for derived per-user analytics
type DashboardRepository interface {
	// Totals
	GetTotalQuizzes(ctx context.Context, tx *gorm.DB, userID string) (int64, error)
	GetTotalTasks(ctx context.Context, tx *gorm.DB, userID string) (int64, error)
	GetCompletedTasks(ctx context.Context, tx *gorm.DB, userID string) (int64, error)

	// Metrics
	GetAccuracy(ctx context.Context, tx *gorm.DB, userID string) (float64, error)
	GetStreakDays(ctx context.Context, tx *gorm.DB, userID string, today time.Time) (int, error)

	// Recent activity
	GetRecentResults(ctx context.Context, tx *gorm.DB, userID string, limit int) ([]RecentResultData, error)

	// Activity trends (quiz activity per day over a window)
	GetActivityTrends(ctx context.Context, tx *gorm.DB, userID string, days int) ([]ActivityTrendData, error)
}

// Data structures for dashboard responses

type ActivityTrendData struct {
	Day      string  `json:"day"`
	Quizzes  int64   `json:"quizzes"`
	Score    int64   `json:"score"`
	Total    int64   `json:"total"`
	Accuracy float64 `json:"accuracy"`
	Date     time.Time
}

type RecentResultData struct {
	ID      uint      `json:"id"`
	Subject string    `json:"subject"`
	Score   int       `json:"score"`
	Total   int       `json:"total"`
	TakenAt time.Time `json:"taken_at"`
}
