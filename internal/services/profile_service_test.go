package services

import (
	"context"
	"errors"
	"testing"

	"gorm.io/gorm"

	"github.com/sparkacademy/portal-service/internal/events"
	"github.com/sparkacademy/portal-service/internal/models"
	"github.com/sparkacademy/portal-service/internal/validator"
)

func newProfileTestService(t *testing.T) (ProfileService, *gorm.DB, *events.MockEventPublisher) {
	t.Helper()

	db := newTestDB(t)
	repo := newTestRepo(t, db)
	pub := events.NewMockEventPublisher(testLogger())
	svc := NewProfileService(repo, db, testLogger(), validator.New(), pub)
	return svc, db, pub
}

func TestEnsureUserProvisionsOnce(t *testing.T) {
	svc, _, _ := newProfileTestService(t)
	ctx := context.Background()

	seed := &models.User{ID: "casdoor-1", FullName: "Linh Tran", Email: "linh@example.com", Rank: models.RankBronze}
	created, err := svc.EnsureUser(ctx, seed)
	if err != nil {
		t.Fatalf("EnsureUser() error = %v", err)
	}
	if created.ID != "casdoor-1" {
		t.Fatalf("created ID = %s, want casdoor-1", created.ID)
	}

	// A later login with drifted claims keeps the stored row
	again, err := svc.EnsureUser(ctx, &models.User{ID: "casdoor-1", FullName: "Different Name", Email: "linh@example.com"})
	if err != nil {
		t.Fatalf("second EnsureUser() error = %v", err)
	}
	if again.FullName != "Linh Tran" {
		t.Fatalf("FullName = %q, want the stored %q", again.FullName, "Linh Tran")
	}

	if _, err := svc.EnsureUser(ctx, &models.User{}); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("EnsureUser() with empty seed error = %v, want ErrUserNotFound", err)
	}
}

func TestAwardPointsRankLadder(t *testing.T) {
	svc, db, pub := newProfileTestService(t)
	seedUser(t, db, "student-1")
	ctx := context.Background()

	first, err := svc.AwardPoints(ctx, "student-1", 600, "homework")
	if err != nil {
		t.Fatalf("AwardPoints() error = %v", err)
	}
	if first.TotalPoints != 600 || first.Rank != models.RankSilver || !first.RankChanged {
		t.Fatalf("first award = %+v, want 600 points at Silver", first)
	}
	if len(first.NewBadges) != 0 {
		t.Fatalf("first award badges = %v, want none without quiz history", first.NewBadges)
	}

	second, err := svc.AwardPoints(ctx, "student-1", 1000, "project")
	if err != nil {
		t.Fatalf("AwardPoints() error = %v", err)
	}
	if second.TotalPoints != 1600 || second.Rank != models.RankGold {
		t.Fatalf("second award = %+v, want 1600 points at Gold", second)
	}
	if len(second.NewBadges) != 1 || second.NewBadges[0] != "point-collector" {
		t.Fatalf("second award badges = %v, want [point-collector]", second.NewBadges)
	}

	if n := len(eventsOfType(pub, events.EventTypePointsAwarded)); n != 2 {
		t.Fatalf("points awarded events = %d, want 2", n)
	}
	if n := len(eventsOfType(pub, events.EventTypeRankChanged)); n != 2 {
		t.Fatalf("rank changed events = %d, want 2", n)
	}
}

func TestAwardPointsRejectsNonPositive(t *testing.T) {
	svc, db, _ := newProfileTestService(t)
	seedUser(t, db, "student-1")

	_, err := svc.AwardPoints(context.Background(), "student-1", 0, "nothing")

	var ruleErr *BusinessRuleError
	if !errors.As(err, &ruleErr) {
		t.Fatalf("AwardPoints(0) error = %v, want BusinessRuleError", err)
	}
	if ruleErr.Rule != "points_positive" {
		t.Fatalf("rule = %s, want points_positive", ruleErr.Rule)
	}
}

func TestResetProgressKeepsBadges(t *testing.T) {
	svc, db, pub := newProfileTestService(t)
	seedUser(t, db, "student-1")
	ctx := context.Background()

	if _, err := svc.AwardPoints(ctx, "student-1", 1200, "bootstrap"); err != nil {
		t.Fatalf("AwardPoints() error = %v", err)
	}

	profile, err := svc.ResetProgress(ctx, "student-1")
	if err != nil {
		t.Fatalf("ResetProgress() error = %v", err)
	}

	if profile.User.TotalPoints != 0 || profile.User.Rank != models.RankBronze {
		t.Fatalf("after reset points = %d rank = %s, want 0 at Bronze", profile.User.TotalPoints, profile.User.Rank)
	}
	if len(profile.Progress) != 0 {
		t.Fatalf("progress series after reset = %v, want empty", profile.Progress)
	}
	found := false
	for _, b := range profile.Badges {
		if b == "point-collector" {
			found = true
		}
	}
	if !found {
		t.Fatalf("badges after reset = %v, want point-collector kept", profile.Badges)
	}

	if n := len(eventsOfType(pub, events.EventTypeProgressReset)); n != 1 {
		t.Fatalf("progress reset events = %d, want 1", n)
	}
}

func TestUpdateProfileSanitizes(t *testing.T) {
	svc, db, _ := newProfileTestService(t)
	seedUser(t, db, "student-1")
	ctx := context.Background()

	name := "<b>Ana</b>"
	class := "  9A  "
	profile, err := svc.UpdateProfile(ctx, "student-1", &UpdateProfileRequest{FullName: &name, ClassName: &class})
	if err != nil {
		t.Fatalf("UpdateProfile() error = %v", err)
	}
	if profile.User.FullName != "Ana" {
		t.Fatalf("FullName = %q, want markup stripped to %q", profile.User.FullName, "Ana")
	}
	if profile.User.ClassName == nil || *profile.User.ClassName != "9A" {
		t.Fatalf("ClassName = %v, want trimmed 9A", profile.User.ClassName)
	}

	empty := "<b></b>"
	_, err = svc.UpdateProfile(ctx, "student-1", &UpdateProfileRequest{FullName: &empty})
	var ruleErr *BusinessRuleError
	if !errors.As(err, &ruleErr) || ruleErr.Rule != "profile_name" {
		t.Fatalf("UpdateProfile() with empty name error = %v, want profile_name rule", err)
	}
}

func TestUpdateProfileNoFields(t *testing.T) {
	svc, db, _ := newProfileTestService(t)
	seedUser(t, db, "student-1")

	profile, err := svc.UpdateProfile(context.Background(), "student-1", &UpdateProfileRequest{})
	if err != nil {
		t.Fatalf("UpdateProfile() error = %v", err)
	}
	if profile.User.FullName != "Test Student" {
		t.Fatalf("FullName = %q, want unchanged", profile.User.FullName)
	}
}

func TestGetProfileNextRank(t *testing.T) {
	svc, db, _ := newProfileTestService(t)
	seedUser(t, db, "student-1")
	if err := db.Model(&models.User{}).Where("id = ?", "student-1").Update("total_points", 480).Error; err != nil {
		t.Fatalf("failed to preload points: %v", err)
	}

	profile, err := svc.GetProfile(context.Background(), "student-1")
	if err != nil {
		t.Fatalf("GetProfile() error = %v", err)
	}
	if profile.NextRank == nil || *profile.NextRank != models.RankSilver {
		t.Fatalf("NextRank = %v, want Silver", profile.NextRank)
	}
	if profile.PointsToNext != 20 {
		t.Fatalf("PointsToNext = %d, want 20", profile.PointsToNext)
	}

	if err := db.Model(&models.User{}).Where("id = ?", "student-1").Update("total_points", 6000).Error; err != nil {
		t.Fatalf("failed to preload points: %v", err)
	}
	top, err := svc.GetProfile(context.Background(), "student-1")
	if err != nil {
		t.Fatalf("GetProfile() error = %v", err)
	}
	if top.NextRank != nil {
		t.Fatalf("NextRank at the top tier = %v, want nil", top.NextRank)
	}

	if _, err := svc.GetProfile(context.Background(), "ghost"); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("GetProfile() for unknown user error = %v, want ErrUserNotFound", err)
	}
}

func TestGetRankThresholdsIsACopy(t *testing.T) {
	svc, _, _ := newProfileTestService(t)

	thresholds := svc.GetRankThresholds()
	if len(thresholds) != 5 {
		t.Fatalf("thresholds = %d, want 5", len(thresholds))
	}
	thresholds[0].MinPoints = 99

	fresh := svc.GetRankThresholds()
	if fresh[0].MinPoints != 0 {
		t.Fatalf("mutating the returned slice leaked into the catalog: %+v", fresh[0])
	}
}
