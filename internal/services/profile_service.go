package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"gorm.io/gorm"

	"github.com/sparkacademy/portal-service/internal/events"
	"github.com/sparkacademy/portal-service/internal/models"
	"github.com/sparkacademy/portal-service/internal/repositories"
	"github.com/sparkacademy/portal-service/internal/utils"
	"github.com/sparkacademy/portal-service/internal/validator"
)

type ProgressResetEvent struct {
	UserID  string    `json:"user_id"`
	ResetAt time.Time `json:"reset_at"`
}

// ===== SERVICE IMPLEMENTATION =====

type profileService struct {
	repo      repositories.Repository
	db        *gorm.DB
	logger    *slog.Logger
	validator *validator.Validator
	publisher events.EventPublisher
}

func NewProfileService(repo repositories.Repository, db *gorm.DB, logger *slog.Logger, validator *validator.Validator, publisher events.EventPublisher) ProfileService {
	return &profileService{
		repo:      repo,
		db:        db,
		logger:    logger,
		validator: validator,
		publisher: publisher,
	}
}

// EnsureUser provisions the local row for identity claims on first sight.
// Concurrent first requests race on the insert; the loser re-reads.
func (s *profileService) EnsureUser(ctx context.Context, seed *models.User) (*models.User, error) {
	if seed == nil || seed.ID == "" {
		return nil, ErrUserNotFound
	}

	user, err := s.repo.User().GetByID(ctx, nil, seed.ID)
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("failed to load user: %w", err)
	}

	s.hydrateFromDirectory(ctx, seed)

	if err := s.repo.User().Create(ctx, nil, seed); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return s.repo.User().GetByID(ctx, nil, seed.ID)
		}
		return nil, fmt.Errorf("failed to provision user: %w", err)
	}

	s.logger.Info("Provisioned new user", "user_id", seed.ID, "email", seed.Email)
	return seed, nil
}

// hydrateFromDirectory fills profile fields the token did not carry, class
// name in particular, from the identity directory. A directory outage
// leaves the seed as-is; claims are enough to provision.
func (s *profileService) hydrateFromDirectory(ctx context.Context, seed *models.User) {
	directory, err := s.repo.Identity().GetByID(ctx, seed.ID)
	if err != nil || directory == nil {
		if err != nil {
			s.logger.Warn("Identity directory lookup failed", "user_id", seed.ID, "error", err)
		}
		return
	}

	if seed.FullName == "" {
		seed.FullName = directory.FullName
	}
	if seed.Email == "" {
		seed.Email = directory.Email
	}
	if seed.AvatarURL == nil {
		seed.AvatarURL = directory.AvatarURL
	}
	if seed.ClassName == nil {
		seed.ClassName = directory.ClassName
	}
}

func (s *profileService) GetProfile(ctx context.Context, userID string) (*ProfileResponse, error) {
	user, err := s.repo.User().GetByID(ctx, nil, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to load user: %w", err)
	}

	return s.buildProfileResponse(ctx, user)
}

func (s *profileService) UpdateProfile(ctx context.Context, userID string, req *UpdateProfileRequest) (*ProfileResponse, error) {
	if err := s.validator.Validate(req); err != nil {
		return nil, err
	}

	updates := make(map[string]interface{})

	if req.FullName != nil {
		name, err := utils.SanitizePlainText(*req.FullName)
		if err != nil {
			return nil, NewBusinessRuleError("display name is empty or unsafe", "profile_name", map[string]interface{}{
				"field": "full_name",
			})
		}
		updates["full_name"] = name
	}
	if req.AvatarURL != nil {
		updates["avatar_url"] = *req.AvatarURL
	}
	if req.ClassName != nil {
		class, err := utils.SanitizePlainText(*req.ClassName)
		if err != nil {
			return nil, NewBusinessRuleError("class name is empty or unsafe", "profile_class", map[string]interface{}{
				"field": "class_name",
			})
		}
		updates["class_name"] = class
	}

	if len(updates) == 0 {
		return s.GetProfile(ctx, userID)
	}

	if err := s.repo.User().UpdateProfile(ctx, nil, userID, updates); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to update profile: %w", err)
	}

	s.logger.Info("Profile updated", "user_id", userID)
	return s.GetProfile(ctx, userID)
}

// AwardPoints grants points and recomputes the full gamification state in
// one transaction. Events go out after the commit.
func (s *profileService) AwardPoints(ctx context.Context, userID string, points int, reason string) (*AwardResult, error) {
	if points <= 0 {
		return nil, NewBusinessRuleError("points grant must be positive", "points_positive", map[string]interface{}{
			"points": points,
		})
	}

	var award *AwardResult
	err := s.repo.WithTransaction(ctx, func(txRepo repositories.Repository) error {
		user, err := txRepo.User().GetByID(ctx, nil, userID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrUserNotFound
			}
			return fmt.Errorf("failed to load user: %w", err)
		}

		award, err = awardPoints(ctx, txRepo, user, points, false)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Points awarded",
		"user_id", userID,
		"points", points,
		"reason", reason,
		"total_points", award.TotalPoints,
		"rank", award.Rank)

	publishAwardEvents(ctx, s.publisher, s.logger, userID, reason, award)
	return award, nil
}

// ResetProgress is the one sanctioned non-monotonic transition: points and
// the progress series go back to zero, badges and quiz history stay.
func (s *profileService) ResetProgress(ctx context.Context, userID string) (*ProfileResponse, error) {
	err := s.repo.WithTransaction(ctx, func(txRepo repositories.Repository) error {
		if _, err := txRepo.User().GetByID(ctx, nil, userID); err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrUserNotFound
			}
			return fmt.Errorf("failed to load user: %w", err)
		}
		return txRepo.User().ResetProgress(ctx, nil, userID)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Progress reset", "user_id", userID)

	if s.publisher != nil {
		if err := s.publisher.Publish(ctx, events.EventTypeProgressReset, ProgressResetEvent{
			UserID:  userID,
			ResetAt: time.Now().UTC(),
		}); err != nil {
			s.logger.Warn("Failed to publish progress reset event", "user_id", userID, "error", err)
		}
	}

	return s.GetProfile(ctx, userID)
}

func (s *profileService) GetRankThresholds() []models.RankThreshold {
	thresholds := make([]models.RankThreshold, len(models.RankThresholds))
	copy(thresholds, models.RankThresholds)
	return thresholds
}

func (s *profileService) buildProfileResponse(ctx context.Context, user *models.User) (*ProfileResponse, error) {
	stats, err := s.repo.Quiz().GetQuizStats(ctx, nil, user.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to get quiz stats: %w", err)
	}

	resp := &ProfileResponse{
		User:         user,
		Badges:       user.BadgeSet(),
		Progress:     user.ProgressSeries(),
		TotalQuizzes: stats.TotalQuizzes,
		Accuracy:     stats.Accuracy,
	}

	if next, remaining, ok := models.NextRankThreshold(user.TotalPoints); ok {
		resp.NextRank = &next
		resp.PointsToNext = remaining
	}

	return resp, nil
}
