package repositories

import (
	"context"

	"gorm.io/gorm"

	"github.com/sparkacademy/portal-service/internal/models"
)

// QuizRepository interface for quiz results, custom topics and custom
// quizzes. Results are append-only: there is no update or delete.
type QuizRepository interface {
	// Result log
	CreateResult(ctx context.Context, tx *gorm.DB, result *models.QuizResult) error
	ListResults(ctx context.Context, tx *gorm.DB, userID string, filters QuizResultFilters) ([]*models.QuizResult, int64, error)
	CountResults(ctx context.Context, tx *gorm.DB, userID string) (int64, error)

	// Aggregates
	GetQuizStats(ctx context.Context, tx *gorm.DB, userID string) (*QuizStats, error)
	GetSubjectStats(ctx context.Context, tx *gorm.DB, userID string) ([]SubjectStats, error)

	// Custom topics
	CreateTopic(ctx context.Context, tx *gorm.DB, topic *models.CustomTopic) error
	GetTopic(ctx context.Context, tx *gorm.DB, id uint) (*models.CustomTopic, error)
	ListTopics(ctx context.Context, tx *gorm.DB, userID string) ([]*models.CustomTopic, error)
	UpdateTopic(ctx context.Context, tx *gorm.DB, topic *models.CustomTopic) error
	DeleteTopic(ctx context.Context, tx *gorm.DB, id uint) error

	// Custom quizzes
	CreateCustomQuiz(ctx context.Context, tx *gorm.DB, quiz *models.CustomQuiz) error
	GetCustomQuiz(ctx context.Context, tx *gorm.DB, id uint) (*models.CustomQuiz, error)
	ListCustomQuizzes(ctx context.Context, tx *gorm.DB, userID string) ([]*models.CustomQuiz, error)
	UpdateCustomQuiz(ctx context.Context, tx *gorm.DB, quiz *models.CustomQuiz) error
	DeleteCustomQuiz(ctx context.Context, tx *gorm.DB, id uint) error
}
