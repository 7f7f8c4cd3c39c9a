package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/sparkacademy/portal-service/internal/events"
	"github.com/sparkacademy/portal-service/internal/models"
	"github.com/sparkacademy/portal-service/internal/repositories"
)

// ===== EVENT PAYLOADS =====

type PointsAwardedEvent struct {
	UserID      string    `json:"user_id"`
	Points      int       `json:"points"`
	TotalPoints int       `json:"total_points"`
	Reason      string    `json:"reason"`
	AwardedAt   time.Time `json:"awarded_at"`
}

type RankChangedEvent struct {
	UserID    string      `json:"user_id"`
	From      models.Rank `json:"from"`
	To        models.Rank `json:"to"`
	ChangedAt time.Time   `json:"changed_at"`
}

type BadgeAwardedEvent struct {
	UserID    string    `json:"user_id"`
	Badge     string    `json:"badge"`
	AwardedAt time.Time `json:"awarded_at"`
}

// ===== BADGE RULES =====

// badgeState holds the aggregates the badge rules read. Collected once
// per evaluation so every rule sees the same snapshot.
type badgeState struct {
	TotalQuizzes  int64
	TotalPoints   int
	BestScore     float64
	StreakDays    int
	SubjectCount  int
	LatestPerfect bool
}

type badgeRule struct {
	Name   string
	Earned func(s badgeState) bool
}

// badgeRules is the closed rule set. Order matters only for stable event
// emission; earning is independent per rule. Badges are monotonic: a
// rule that stops holding never removes an earned badge.
var badgeRules = []badgeRule{
	{"first-steps", func(s badgeState) bool { return s.TotalQuizzes >= 1 }},
	{"quiz-veteran", func(s badgeState) bool { return s.TotalQuizzes >= 10 }},
	{"perfectionist", func(s badgeState) bool { return s.LatestPerfect || s.BestScore >= 100 }},
	{"week-streak", func(s badgeState) bool { return s.StreakDays >= 7 }},
	{"point-collector", func(s badgeState) bool { return s.TotalPoints >= 1000 }},
	{"point-champion", func(s badgeState) bool { return s.TotalPoints >= 5000 }},
	{"explorer", func(s badgeState) bool { return s.SubjectCount >= 3 }},
	{"polymath", func(s badgeState) bool { return s.SubjectCount >= 5 }},
}

// BadgeNames returns the full catalog in rule order
func BadgeNames() []string {
	names := make([]string, 0, len(badgeRules))
	for _, rule := range badgeRules {
		names = append(names, rule.Name)
	}
	return names
}

// collectBadgeState gathers quiz aggregates through the given repository;
// inside a transaction it sees rows written earlier in the same tx.
func collectBadgeState(ctx context.Context, repo repositories.Repository, user *models.User) (badgeState, error) {
	state := badgeState{TotalPoints: user.TotalPoints}

	count, err := repo.Quiz().CountResults(ctx, nil, user.ID)
	if err != nil {
		return state, fmt.Errorf("failed to count quiz results: %w", err)
	}
	state.TotalQuizzes = count

	subjects, err := repo.Quiz().GetSubjectStats(ctx, nil, user.ID)
	if err != nil {
		return state, fmt.Errorf("failed to get subject stats: %w", err)
	}
	state.SubjectCount = len(subjects)
	for _, s := range subjects {
		if s.BestScore > state.BestScore {
			state.BestScore = s.BestScore
		}
	}

	today := time.Now().UTC()
	streak, err := repo.Dashboard().GetStreakDays(ctx, nil, user.ID, today)
	if err != nil {
		return state, fmt.Errorf("failed to get streak: %w", err)
	}
	state.StreakDays = streak

	return state, nil
}

// evaluateBadges unions newly earned badge names into the user's set and
// returns only the new ones. The earned set never shrinks.
func evaluateBadges(user *models.User, state badgeState) ([]string, error) {
	var newBadges []string
	owned := user.BadgeSet()

	for _, rule := range badgeRules {
		if user.HasBadge(rule.Name) {
			continue
		}
		if rule.Earned(state) {
			owned = append(owned, rule.Name)
			newBadges = append(newBadges, rule.Name)
		}
	}

	if len(newBadges) > 0 {
		if err := user.SetBadges(owned); err != nil {
			return nil, fmt.Errorf("failed to encode badges: %w", err)
		}
	}
	return newBadges, nil
}

// awardPoints applies a points grant to the loaded user in memory and
// persists the full gamification state: total, rank recomputed from the
// step function, a progress snapshot appended, badges re-evaluated.
// Callers publish the resulting events after their transaction commits.
func awardPoints(ctx context.Context, repo repositories.Repository, user *models.User, points int, latestPerfect bool) (*AwardResult, error) {
	oldRank := user.Rank

	user.TotalPoints += points
	user.Rank = models.RankForPoints(user.TotalPoints)

	series := user.ProgressSeries()
	series = append(series, models.ProgressSnapshot{
		Date:   time.Now().UTC(),
		Points: user.TotalPoints,
	})
	if err := user.SetProgressSeries(series); err != nil {
		return nil, fmt.Errorf("failed to encode progress series: %w", err)
	}

	state, err := collectBadgeState(ctx, repo, user)
	if err != nil {
		return nil, err
	}
	state.LatestPerfect = latestPerfect

	newBadges, err := evaluateBadges(user, state)
	if err != nil {
		return nil, err
	}

	if err := repo.User().SaveGamificationState(ctx, nil, user); err != nil {
		return nil, fmt.Errorf("failed to save gamification state: %w", err)
	}

	return &AwardResult{
		PointsAwarded: points,
		TotalPoints:   user.TotalPoints,
		Rank:          user.Rank,
		RankChanged:   user.Rank != oldRank,
		NewBadges:     newBadges,
	}, nil
}

// publishAwardEvents emits the event trail for a points grant. Publish
// failures are logged and swallowed; the user operation already succeeded.
func publishAwardEvents(ctx context.Context, publisher events.EventPublisher, logger *slog.Logger, userID string, reason string, award *AwardResult) {
	if publisher == nil || award == nil {
		return
	}
	now := time.Now().UTC()

	if err := publisher.Publish(ctx, events.EventTypePointsAwarded, PointsAwardedEvent{
		UserID:      userID,
		Points:      award.PointsAwarded,
		TotalPoints: award.TotalPoints,
		Reason:      reason,
		AwardedAt:   now,
	}); err != nil {
		logger.Warn("Failed to publish points awarded event", "user_id", userID, "error", err)
	}

	if award.RankChanged {
		if err := publisher.Publish(ctx, events.EventTypeRankChanged, RankChangedEvent{
			UserID:    userID,
			From:      models.RankForPoints(award.TotalPoints - award.PointsAwarded),
			To:        award.Rank,
			ChangedAt: now,
		}); err != nil {
			logger.Warn("Failed to publish rank changed event", "user_id", userID, "error", err)
		}
	}

	for _, badge := range award.NewBadges {
		if err := publisher.Publish(ctx, events.EventTypeBadgeAwarded, BadgeAwardedEvent{
			UserID:    userID,
			Badge:     badge,
			AwardedAt: now,
		}); err != nil {
			logger.Warn("Failed to publish badge awarded event", "user_id", userID, "badge", badge, "error", err)
		}
	}
}
