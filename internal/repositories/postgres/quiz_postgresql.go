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

type QuizPostgreSQL struct {
	db           *gorm.DB
	helpers      *SharedHelpers
	cacheManager *cache.CacheManager
}

func NewQuizPostgreSQL(db *gorm.DB, redisClient *redis.Client) repositories.QuizRepository {
	return &QuizPostgreSQL{
		db:           db,
		helpers:      NewSharedHelpers(db),
		cacheManager: cache.NewCacheManager(redisClient),
	}
}

func (q *QuizPostgreSQL) getDB(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return q.db
}

// ===== RESULT LOG =====

func (q *QuizPostgreSQL) CreateResult(ctx context.Context, tx *gorm.DB, result *models.QuizResult) error {
	db := q.getDB(tx)
	if result.TakenAt.IsZero() {
		result.TakenAt = time.Now().UTC()
	}
	if err := db.WithContext(ctx).Create(result).Error; err != nil {
		return err
	}
	cache.InvalidateProfileCache(ctx, q.cacheManager, result.UserID)
	return nil
}

func (q *QuizPostgreSQL) ListResults(ctx context.Context, tx *gorm.DB, userID string, filters repositories.QuizResultFilters) ([]*models.QuizResult, int64, error) {
	db := q.getDB(tx)
	var results []*models.QuizResult
	var total int64

	// apply filter first
	query := db.WithContext(ctx).Model(&models.QuizResult{}).Where("user_id = ?", userID)
	query = q.helpers.ApplyQuizResultFilters(query, filters)

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	// then apply pagination and sorting
	sortBy := filters.SortBy
	if sortBy == "" {
		sortBy = "taken_at"
	}
	query = q.helpers.ApplyPaginationAndSort(query, sortBy, filters.SortOrder, filters.Limit, filters.Offset)

	if err := query.Find(&results).Error; err != nil {
		return nil, 0, err
	}

	return results, total, nil
}

func (q *QuizPostgreSQL) CountResults(ctx context.Context, tx *gorm.DB, userID string) (int64, error) {
	db := q.getDB(tx)
	var count int64
	err := db.WithContext(ctx).
		Model(&models.QuizResult{}).
		Where("user_id = ?", userID).
		Count(&count).Error
	return count, err
}

// ===== AGGREGATES =====

func (q *QuizPostgreSQL) GetQuizStats(ctx context.Context, tx *gorm.DB, userID string) (*repositories.QuizStats, error) {
	db := q.getDB(tx)

	var row struct {
		Quizzes int64
		Score   int64
		Total   int64
	}
	err := db.WithContext(ctx).
		Model(&models.QuizResult{}).
		Select("COUNT(*) as quizzes, COALESCE(SUM(score), 0) as score, COALESCE(SUM(total), 0) as total").
		Where("user_id = ?", userID).
		Scan(&row).Error
	if err != nil {
		return nil, fmt.Errorf("failed to get quiz stats: %w", err)
	}

	stats := &repositories.QuizStats{
		TotalQuizzes:   row.Quizzes,
		TotalScore:     row.Score,
		TotalQuestions: row.Total,
	}
	if row.Total > 0 {
		stats.Accuracy = float64(row.Score) / float64(row.Total) * 100
	}
	return stats, nil
}

func (q *QuizPostgreSQL) GetSubjectStats(ctx context.Context, tx *gorm.DB, userID string) ([]repositories.SubjectStats, error) {
	db := q.getDB(tx)

	var stats []repositories.SubjectStats
	err := db.WithContext(ctx).
		Model(&models.QuizResult{}).
		Select("subject, COUNT(*) as attempts, COALESCE(SUM(score), 0) as score, COALESCE(SUM(total), 0) as total, COALESCE(MAX(CAST(score AS FLOAT) / total * 100), 0) as best_score").
		Where("user_id = ?", userID).
		Group("subject").
		Order("attempts DESC").
		Scan(&stats).Error
	if err != nil {
		return nil, fmt.Errorf("failed to get subject stats: %w", err)
	}

	return stats, nil
}

// ===== CUSTOM TOPICS =====

func (q *QuizPostgreSQL) CreateTopic(ctx context.Context, tx *gorm.DB, topic *models.CustomTopic) error {
	db := q.getDB(tx)
	return db.WithContext(ctx).Create(topic).Error
}

func (q *QuizPostgreSQL) GetTopic(ctx context.Context, tx *gorm.DB, id uint) (*models.CustomTopic, error) {
	db := q.getDB(tx)
	var topic models.CustomTopic
	if err := db.WithContext(ctx).First(&topic, id).Error; err != nil {
		return nil, err
	}
	return &topic, nil
}

func (q *QuizPostgreSQL) ListTopics(ctx context.Context, tx *gorm.DB, userID string) ([]*models.CustomTopic, error) {
	db := q.getDB(tx)
	var topics []*models.CustomTopic
	err := db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at ASC").
		Find(&topics).Error
	return topics, err
}

func (q *QuizPostgreSQL) UpdateTopic(ctx context.Context, tx *gorm.DB, topic *models.CustomTopic) error {
	db := q.getDB(tx)
	return db.WithContext(ctx).Save(topic).Error
}

func (q *QuizPostgreSQL) DeleteTopic(ctx context.Context, tx *gorm.DB, id uint) error {
	db := q.getDB(tx)
	return db.WithContext(ctx).Delete(&models.CustomTopic{}, id).Error
}

// ===== CUSTOM QUIZZES =====

func (q *QuizPostgreSQL) CreateCustomQuiz(ctx context.Context, tx *gorm.DB, quiz *models.CustomQuiz) error {
	db := q.getDB(tx)
	return db.WithContext(ctx).Create(quiz).Error
}

func (q *QuizPostgreSQL) GetCustomQuiz(ctx context.Context, tx *gorm.DB, id uint) (*models.CustomQuiz, error) {
	db := q.getDB(tx)
	var quiz models.CustomQuiz
	if err := db.WithContext(ctx).First(&quiz, id).Error; err != nil {
		return nil, err
	}
	return &quiz, nil
}

func (q *QuizPostgreSQL) ListCustomQuizzes(ctx context.Context, tx *gorm.DB, userID string) ([]*models.CustomQuiz, error) {
	db := q.getDB(tx)
	var quizzes []*models.CustomQuiz
	err := db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&quizzes).Error
	return quizzes, err
}

func (q *QuizPostgreSQL) UpdateCustomQuiz(ctx context.Context, tx *gorm.DB, quiz *models.CustomQuiz) error {
	db := q.getDB(tx)
	return db.WithContext(ctx).Save(quiz).Error
}

func (q *QuizPostgreSQL) DeleteCustomQuiz(ctx context.Context, tx *gorm.DB, id uint) error {
	db := q.getDB(tx)
	return db.WithContext(ctx).Delete(&models.CustomQuiz{}, id).Error
}
