package repositories

import (
	"context"

	"gorm.io/gorm"

	"github.com/sparkacademy/portal-service/internal/models"
)

// UserFilters defines filters for user queries
type UserFilters struct {
	Query     string // Search query for name or email
	ClassName *string
	Limit     int // Page size
	Offset    int // Offset for pagination
}

// UserRepository interface for profile operations. The portal owns the
// gamification state (points, rank, badges, progress); identity lives in
// Casdoor and rows are provisioned from its claims on first sight.
type UserRepository interface {
	// Basic CRUD operations
	Create(ctx context.Context, tx *gorm.DB, user *models.User) error
	GetByID(ctx context.Context, tx *gorm.DB, id string) (*models.User, error)
	GetByEmail(ctx context.Context, tx *gorm.DB, email string) (*models.User, error)
	Update(ctx context.Context, tx *gorm.DB, user *models.User) error

	// Profile field updates (name, avatar, class)
	UpdateProfile(ctx context.Context, tx *gorm.DB, id string, updates map[string]interface{}) error

	// Gamification state (points, rank, badges, progress in one commit)
	SaveGamificationState(ctx context.Context, tx *gorm.DB, user *models.User) error
	ResetProgress(ctx context.Context, tx *gorm.DB, id string) error

	// List and search operations
	List(ctx context.Context, tx *gorm.DB, filters UserFilters) ([]*models.User, int64, error)
	Leaderboard(ctx context.Context, tx *gorm.DB, filters LeaderboardFilters) ([]*models.User, error)

	// Validation and checks
	ExistsByID(ctx context.Context, tx *gorm.DB, id string) (bool, error)
	ExistsByEmail(ctx context.Context, tx *gorm.DB, email string) (bool, error)
}
