package services

import (
	"testing"

	"github.com/sparkacademy/portal-service/internal/models"
)

func TestEvaluateBadges(t *testing.T) {
	tests := []struct {
		name  string
		state badgeState
		want  []string
	}{
		{
			name:  "nothing earned",
			state: badgeState{},
			want:  nil,
		},
		{
			name:  "first quiz",
			state: badgeState{TotalQuizzes: 1},
			want:  []string{"first-steps"},
		},
		{
			name:  "veteran with subjects",
			state: badgeState{TotalQuizzes: 10, SubjectCount: 3},
			want:  []string{"first-steps", "quiz-veteran", "explorer"},
		},
		{
			name:  "perfect run",
			state: badgeState{TotalQuizzes: 1, LatestPerfect: true},
			want:  []string{"first-steps", "perfectionist"},
		},
		{
			name:  "best score reached hundred earlier",
			state: badgeState{TotalQuizzes: 2, BestScore: 100},
			want:  []string{"first-steps", "perfectionist"},
		},
		{
			name:  "week streak",
			state: badgeState{TotalQuizzes: 7, StreakDays: 7},
			want:  []string{"first-steps", "week-streak"},
		},
		{
			name:  "point champion includes collector",
			state: badgeState{TotalPoints: 5000},
			want:  []string{"point-collector", "point-champion"},
		},
		{
			name:  "polymath includes explorer",
			state: badgeState{TotalQuizzes: 5, SubjectCount: 5},
			want:  []string{"first-steps", "explorer", "polymath"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			user := &models.User{ID: "u"}

			got, err := evaluateBadges(user, tt.state)
			if err != nil {
				t.Fatalf("evaluateBadges() error = %v", err)
			}

			if len(got) != len(tt.want) {
				t.Fatalf("new badges = %v, want %v", got, tt.want)
			}
			for i := range tt.want {
				if got[i] != tt.want[i] {
					t.Fatalf("new badges = %v, want %v", got, tt.want)
				}
			}
			for _, badge := range tt.want {
				if !user.HasBadge(badge) {
					t.Fatalf("user badge set missing %s", badge)
				}
			}
		})
	}
}

func TestEvaluateBadgesNeverRevokes(t *testing.T) {
	user := &models.User{ID: "u"}
	if err := user.SetBadges([]string{"first-steps", "week-streak"}); err != nil {
		t.Fatalf("SetBadges() error = %v", err)
	}

	// A state where neither rule holds anymore
	got, err := evaluateBadges(user, badgeState{})
	if err != nil {
		t.Fatalf("evaluateBadges() error = %v", err)
	}

	if len(got) != 0 {
		t.Fatalf("new badges = %v, want none", got)
	}
	if !user.HasBadge("first-steps") || !user.HasBadge("week-streak") {
		t.Fatalf("earned badges were revoked: %v", user.BadgeSet())
	}
}

func TestBadgeNamesCatalog(t *testing.T) {
	names := BadgeNames()
	if len(names) != len(badgeRules) {
		t.Fatalf("catalog size = %d, want %d", len(names), len(badgeRules))
	}
	if names[0] != "first-steps" {
		t.Fatalf("first catalog entry = %s, want first-steps", names[0])
	}
}
