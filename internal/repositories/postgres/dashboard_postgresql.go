package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/sparkacademy/portal-service/internal/cache"
	"github.com/sparkacademy/portal-service/internal/models"
	"github.com/sparkacademy/portal-service/internal/repositories"
)

type dashboardRepository struct {
	db           *gorm.DB
	cacheManager *cache.CacheManager
}

func NewDashboardRepository(db *gorm.DB, redisClient *redis.Client) repositories.DashboardRepository {
	return &dashboardRepository{
		db:           db,
		cacheManager: cache.NewCacheManager(redisClient),
	}
}

func (r *dashboardRepository) getDB(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return r.db
}

// ===== TOTALS =====

func (r *dashboardRepository) GetTotalQuizzes(ctx context.Context, tx *gorm.DB, userID string) (int64, error) {
	db := r.getDB(tx)
	var count int64

	if err := db.WithContext(ctx).
		Model(&models.QuizResult{}).
		Where("user_id = ?", userID).
		Count(&count).Error; err != nil {
		return 0, fmt.Errorf("failed to get total quizzes: %w", err)
	}

	return count, nil
}

func (r *dashboardRepository) GetTotalTasks(ctx context.Context, tx *gorm.DB, userID string) (int64, error) {
	db := r.getDB(tx)
	var count int64

	if err := db.WithContext(ctx).
		Model(&models.Task{}).
		Where("user_id = ?", userID).
		Count(&count).Error; err != nil {
		return 0, fmt.Errorf("failed to get total tasks: %w", err)
	}

	return count, nil
}

func (r *dashboardRepository) GetCompletedTasks(ctx context.Context, tx *gorm.DB, userID string) (int64, error) {
	db := r.getDB(tx)
	var count int64

	if err := db.WithContext(ctx).
		Model(&models.Task{}).
		Where("user_id = ? AND completed = ?", userID, true).
		Count(&count).Error; err != nil {
		return 0, fmt.Errorf("failed to get completed tasks: %w", err)
	}

	return count, nil
}

// ===== METRICS =====

func (r *dashboardRepository) GetAccuracy(ctx context.Context, tx *gorm.DB, userID string) (float64, error) {
	db := r.getDB(tx)

	var row struct {
		Score int64
		Total int64
	}

	if err := db.WithContext(ctx).
		Model(&models.QuizResult{}).
		Select("COALESCE(SUM(score), 0) as score, COALESCE(SUM(total), 0) as total").
		Where("user_id = ?", userID).
		Scan(&row).Error; err != nil {
		return 0, fmt.Errorf("failed to get accuracy: %w", err)
	}

	if row.Total == 0 {
		return 0, nil
	}

	return float64(row.Score) / float64(row.Total) * 100, nil
}

// GetStreakDays counts consecutive days with at least one quiz result,
// walking backwards from today. A day without a result so far does not
// break yesterday's streak until it is actually over.
func (r *dashboardRepository) GetStreakDays(ctx context.Context, tx *gorm.DB, userID string, today time.Time) (int, error) {
	db := r.getDB(tx)

	since := today.AddDate(-1, 0, 0)
	var results []*models.QuizResult
	err := db.WithContext(ctx).
		Model(&models.QuizResult{}).
		Select("taken_at").
		Where("user_id = ? AND taken_at >= ?", userID, since).
		Find(&results).Error
	if err != nil {
		return 0, fmt.Errorf("failed to load result days: %w", err)
	}

	// Collapse timestamps to UTC days in Go; date truncation functions
	// differ between postgres and sqlite.
	days := make(map[time.Time]bool, len(results))
	for _, res := range results {
		days[res.TakenAt.UTC().Truncate(24*time.Hour)] = true
	}

	day := today.UTC().Truncate(24 * time.Hour)
	if !days[day] {
		day = day.AddDate(0, 0, -1)
	}

	streak := 0
	for days[day] {
		streak++
		day = day.AddDate(0, 0, -1)
	}

	return streak, nil
}

// ===== RECENT ACTIVITY =====

func (r *dashboardRepository) GetRecentResults(ctx context.Context, tx *gorm.DB, userID string, limit int) ([]repositories.RecentResultData, error) {
	db := r.getDB(tx)
	if limit <= 0 {
		limit = 5
	}

	var results []repositories.RecentResultData
	err := db.WithContext(ctx).
		Model(&models.QuizResult{}).
		Select("id, subject, score, total, taken_at").
		Where("user_id = ?", userID).
		Order("taken_at DESC").
		Limit(limit).
		Scan(&results).Error
	if err != nil {
		return nil, fmt.Errorf("failed to get recent results: %w", err)
	}

	return results, nil
}

// ===== ACTIVITY TRENDS =====

// GetActivityTrends buckets quiz activity per day over the window, zero
// filling days without results. Cached briefly; writes invalidate through
// the profile cache helpers.
func (r *dashboardRepository) GetActivityTrends(ctx context.Context, tx *gorm.DB, userID string, days int) ([]repositories.ActivityTrendData, error) {
	db := r.getDB(tx)
	if days <= 0 || days > 90 {
		days = 14
	}

	cacheKey := fmt.Sprintf("user:%s:trends:%d", userID, days)
	var trends []repositories.ActivityTrendData

	err := r.cacheManager.Dashboard.CacheOrExecute(ctx, cacheKey, &trends, cache.DashboardCacheConfig.TTL, func() (interface{}, error) {
		today := time.Now().UTC().Truncate(24 * time.Hour)
		since := today.AddDate(0, 0, -(days - 1))

		var results []*models.QuizResult
		err := db.WithContext(ctx).
			Model(&models.QuizResult{}).
			Select("taken_at, score, total").
			Where("user_id = ? AND taken_at >= ?", userID, since).
			Find(&results).Error
		if err != nil {
			return nil, fmt.Errorf("failed to load activity window: %w", err)
		}

		type bucket struct {
			quizzes int64
			score   int64
			total   int64
		}
		buckets := make(map[time.Time]*bucket, days)
		for _, res := range results {
			day := res.TakenAt.UTC().Truncate(24 * time.Hour)
			b := buckets[day]
			if b == nil {
				b = &bucket{}
				buckets[day] = b
			}
			b.quizzes++
			b.score += int64(res.Score)
			b.total += int64(res.Total)
		}

		computed := make([]repositories.ActivityTrendData, 0, days)
		for i := 0; i < days; i++ {
			day := since.AddDate(0, 0, i)
			point := repositories.ActivityTrendData{
				Day:  day.Format("2006-01-02"),
				Date: day,
			}
			if b := buckets[day]; b != nil {
				point.Quizzes = b.quizzes
				point.Score = b.score
				point.Total = b.total
				if b.total > 0 {
					point.Accuracy = float64(b.score) / float64(b.total) * 100
				}
			}
			computed = append(computed, point)
		}

		return computed, nil
	})
	if err != nil {
		return nil, err
	}

	return trends, nil
}
