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

type UserPostgreSQL struct {
	db           *gorm.DB
	helpers      *SharedHelpers
	cacheManager *cache.CacheManager
}

func NewUserPostgreSQL(db *gorm.DB, redisClient *redis.Client) repositories.UserRepository {
	return &UserPostgreSQL{
		db:           db,
		helpers:      NewSharedHelpers(db),
		cacheManager: cache.NewCacheManager(redisClient),
	}
}

func (u *UserPostgreSQL) getDB(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return u.db
}

func (u *UserPostgreSQL) Create(ctx context.Context, tx *gorm.DB, user *models.User) error {
	db := u.getDB(tx)
	if user.Rank == "" {
		user.Rank = models.RankForPoints(user.TotalPoints)
	}
	return db.WithContext(ctx).Create(user).Error
}

func (u *UserPostgreSQL) GetByID(ctx context.Context, tx *gorm.DB, id string) (*models.User, error) {
	db := u.getDB(tx)
	// Profiles are read on nearly every request, cache them briefly
	cacheKey := fmt.Sprintf("id:%s", id)
	var user models.User

	err := u.cacheManager.Profile.CacheOrExecute(ctx, cacheKey, &user, cache.ProfileCacheConfig.TTL, func() (interface{}, error) {
		var dbUser models.User
		if err := db.WithContext(ctx).First(&dbUser, "id = ?", id).Error; err != nil {
			return nil, err
		}
		return &dbUser, nil
	})

	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (u *UserPostgreSQL) GetByEmail(ctx context.Context, tx *gorm.DB, email string) (*models.User, error) {
	db := u.getDB(tx)
	var user models.User
	if err := db.WithContext(ctx).First(&user, "email = ?", email).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

func (u *UserPostgreSQL) Update(ctx context.Context, tx *gorm.DB, user *models.User) error {
	db := u.getDB(tx)
	if err := db.WithContext(ctx).Save(user).Error; err != nil {
		return err
	}
	cache.InvalidateProfileCache(ctx, u.cacheManager, user.ID)
	return nil
}

func (u *UserPostgreSQL) UpdateProfile(ctx context.Context, tx *gorm.DB, id string, updates map[string]interface{}) error {
	if len(updates) == 0 {
		return nil
	}
	db := u.getDB(tx)
	result := db.WithContext(ctx).Model(&models.User{}).Where("id = ?", id).Updates(updates)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	cache.InvalidateProfileCache(ctx, u.cacheManager, id)
	return nil
}

// SaveGamificationState persists points, rank, badges and progress in one
// update so a quiz submission never leaves them half applied.
func (u *UserPostgreSQL) SaveGamificationState(ctx context.Context, tx *gorm.DB, user *models.User) error {
	db := u.getDB(tx)
	result := db.WithContext(ctx).Model(&models.User{}).
		Where("id = ?", user.ID).
		Updates(map[string]interface{}{
			"total_points": user.TotalPoints,
			"rank":         user.Rank,
			"badges":       user.Badges,
			"progress":     user.Progress,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	cache.InvalidateProfileCache(ctx, u.cacheManager, user.ID)
	return nil
}

// ResetProgress zeroes points and the progress series and drops the rank
// back to the base tier. Earned badges stay.
func (u *UserPostgreSQL) ResetProgress(ctx context.Context, tx *gorm.DB, id string) error {
	db := u.getDB(tx)
	result := db.WithContext(ctx).Model(&models.User{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"total_points": 0,
			"rank":         models.RankBronze,
			"progress":     "[]",
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	cache.InvalidateProfileCache(ctx, u.cacheManager, id)
	return nil
}

func (u *UserPostgreSQL) List(ctx context.Context, tx *gorm.DB, filters repositories.UserFilters) ([]*models.User, int64, error) {
	db := u.getDB(tx)
	var users []*models.User
	var total int64

	query := db.WithContext(ctx).Model(&models.User{})
	if filters.Query != "" {
		like := "%" + filters.Query + "%"
		query = query.Where("full_name LIKE ? OR email LIKE ?", like, like)
	}
	if filters.ClassName != nil {
		query = query.Where("class_name = ?", *filters.ClassName)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	query = u.helpers.ApplyPaginationAndSort(query, "created_at", "desc", filters.Limit, filters.Offset)
	if err := query.Find(&users).Error; err != nil {
		return nil, 0, err
	}

	return users, total, nil
}

// Leaderboard returns users ordered by total points, optionally scoped to
// one class. Ties break on earliest sign-up for a stable ordering.
func (u *UserPostgreSQL) Leaderboard(ctx context.Context, tx *gorm.DB, filters repositories.LeaderboardFilters) ([]*models.User, error) {
	db := u.getDB(tx)

	limit := filters.Limit
	if limit <= 0 || limit > 100 {
		limit = 20
	}

	query := db.WithContext(ctx).Model(&models.User{})
	if filters.ClassName != nil {
		query = query.Where("class_name = ?", *filters.ClassName)
	}

	var users []*models.User
	err := query.
		Order("total_points DESC").
		Order("created_at ASC").
		Limit(limit).
		Find(&users).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load leaderboard: %w", err)
	}

	return users, nil
}

func (u *UserPostgreSQL) ExistsByID(ctx context.Context, tx *gorm.DB, id string) (bool, error) {
	db := u.getDB(tx)
	cacheKey := fmt.Sprintf("user:id:%s", id)

	var cached bool
	if err := u.cacheManager.Exists.Get(ctx, cacheKey, &cached); err == nil {
		return cached, nil
	}

	var count int64
	if err := db.WithContext(ctx).Model(&models.User{}).Where("id = ?", id).Count(&count).Error; err != nil {
		return false, err
	}

	exists := count > 0
	if exists {
		// Only positive results are cached; a missing row is provisioned
		// right after this check and must not read stale
		u.cacheManager.Exists.Set(ctx, cacheKey, exists, 2*time.Minute)
	}

	return exists, nil
}

func (u *UserPostgreSQL) ExistsByEmail(ctx context.Context, tx *gorm.DB, email string) (bool, error) {
	db := u.getDB(tx)
	var count int64
	if err := db.WithContext(ctx).Model(&models.User{}).Where("email = ?", email).Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}
