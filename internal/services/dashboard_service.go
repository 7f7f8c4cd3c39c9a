package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"gorm.io/gorm"

	"github.com/sparkacademy/portal-service/internal/cache"
	"github.com/sparkacademy/portal-service/internal/models"
	"github.com/sparkacademy/portal-service/internal/repositories"
)

const (
	dashboardRecentLimit = 10
	dashboardTrendDays   = 14

	defaultLeaderboardSize = 10
	maxLeaderboardSize     = 50
)

// ===== SERVICE IMPLEMENTATION =====

type dashboardService struct {
	repo   repositories.Repository
	db     *gorm.DB
	logger *slog.Logger
	cache  *cache.CacheManager
}

func NewDashboardService(repo repositories.Repository, db *gorm.DB, logger *slog.Logger, cacheManager *cache.CacheManager) DashboardService {
	return &dashboardService{
		repo:   repo,
		db:     db,
		logger: logger,
		cache:  cacheManager,
	}
}

// GetDashboard assembles the per-user overview. The assembled response is
// cached under the user's dashboard key; submitting a quiz result drops
// that key through the profile invalidation path.
func (s *dashboardService) GetDashboard(ctx context.Context, userID string) (*DashboardResponse, error) {
	key := fmt.Sprintf("user:%s:summary", userID)

	var resp DashboardResponse
	err := s.cache.Dashboard.CacheOrExecute(ctx, key, &resp, cache.DashboardCacheConfig.TTL, func() (interface{}, error) {
		return s.buildDashboard(ctx, userID)
	})
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

func (s *dashboardService) buildDashboard(ctx context.Context, userID string) (*DashboardResponse, error) {
	user, err := s.repo.User().GetByID(ctx, nil, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	dash := s.repo.Dashboard()

	totalQuizzes, err := dash.GetTotalQuizzes(ctx, nil, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get total quizzes: %w", err)
	}

	totalTasks, err := dash.GetTotalTasks(ctx, nil, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get total tasks: %w", err)
	}

	completedTasks, err := dash.GetCompletedTasks(ctx, nil, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get completed tasks: %w", err)
	}

	accuracy, err := dash.GetAccuracy(ctx, nil, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get accuracy: %w", err)
	}

	streakDays, err := dash.GetStreakDays(ctx, nil, userID, time.Now())
	if err != nil {
		return nil, fmt.Errorf("failed to get streak days: %w", err)
	}

	recentResults, err := dash.GetRecentResults(ctx, nil, userID, dashboardRecentLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to get recent results: %w", err)
	}

	trends, err := dash.GetActivityTrends(ctx, nil, userID, dashboardTrendDays)
	if err != nil {
		return nil, fmt.Errorf("failed to get activity trends: %w", err)
	}

	subjectStats, err := s.repo.Quiz().GetSubjectStats(ctx, nil, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get subject stats: %w", err)
	}

	subjects := make([]SubjectBreakdown, len(subjectStats))
	for i, stat := range subjectStats {
		subjects[i] = SubjectBreakdown{
			Subject:   stat.Subject,
			Attempts:  stat.Attempts,
			Accuracy:  roundFloat(stat.Accuracy(), 1),
			BestScore: roundFloat(stat.BestScore, 1),
		}
	}

	gamification := DashboardGamification{
		TotalPoints: user.TotalPoints,
		Rank:        user.Rank,
		BadgeCount:  len(user.BadgeSet()),
	}
	if next, remaining, ok := models.NextRankThreshold(user.TotalPoints); ok {
		gamification.NextRank = &next
		gamification.PointsToNext = remaining
	}

	return &DashboardResponse{
		Overview: DashboardOverview{
			TotalQuizzes:   totalQuizzes,
			TotalTasks:     totalTasks,
			CompletedTasks: completedTasks,
			Accuracy:       roundFloat(accuracy, 1),
			StreakDays:     streakDays,
		},
		Gamification:  gamification,
		RecentResults: recentResults,
		Subjects:      subjects,
		Progress:      user.ProgressSeries(),
		Trends:        trends,
	}, nil
}

// GetLeaderboard ranks the viewer's class by points. The entry list is
// shared per class, so IsSelf is stamped per request after retrieval
// instead of being baked into the cached value.
func (s *dashboardService) GetLeaderboard(ctx context.Context, userID string, limit int) (*LeaderboardResponse, error) {
	if limit <= 0 {
		limit = defaultLeaderboardSize
	}
	if limit > maxLeaderboardSize {
		limit = maxLeaderboardSize
	}

	user, err := s.repo.User().GetByID(ctx, nil, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	classKey := "all"
	if user.ClassName != nil && *user.ClassName != "" {
		classKey = *user.ClassName
	}
	key := fmt.Sprintf("leaderboard:%s:%d", classKey, limit)

	var entries []LeaderboardEntry
	err = s.cache.Dashboard.CacheOrExecute(ctx, key, &entries, cache.DashboardCacheConfig.TTL, func() (interface{}, error) {
		return s.buildLeaderboard(ctx, user.ClassName, limit)
	})
	if err != nil {
		return nil, err
	}

	for i := range entries {
		entries[i].IsSelf = entries[i].UserID == userID
	}

	return &LeaderboardResponse{
		ClassName: user.ClassName,
		Entries:   entries,
	}, nil
}

func (s *dashboardService) buildLeaderboard(ctx context.Context, className *string, limit int) ([]LeaderboardEntry, error) {
	users, err := s.repo.User().Leaderboard(ctx, nil, repositories.LeaderboardFilters{
		ClassName: className,
		Limit:     limit,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get leaderboard: %w", err)
	}

	entries := make([]LeaderboardEntry, len(users))
	for i, u := range users {
		entries[i] = LeaderboardEntry{
			Position:    i + 1,
			UserID:      u.ID,
			FullName:    u.FullName,
			AvatarURL:   u.AvatarURL,
			Rank:        u.Rank,
			TotalPoints: u.TotalPoints,
			BadgeCount:  len(u.BadgeSet()),
		}
	}
	return entries, nil
}

// ===== HELPER FUNCTIONS =====

func roundFloat(val float64, precision int) float64 {
	ratio := 1.0
	for i := 0; i < precision; i++ {
		ratio *= 10
	}
	return float64(int(val*ratio+0.5)) / ratio
}
