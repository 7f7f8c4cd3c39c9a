package services

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/sparkacademy/portal-service/internal/cache"
	"github.com/sparkacademy/portal-service/internal/models"
	"github.com/sparkacademy/portal-service/internal/repositories"
	"github.com/sparkacademy/portal-service/internal/repositories/postgres"
)

func newDashboardTestService(t *testing.T) (DashboardService, *gorm.DB) {
	t.Helper()

	db := newTestDB(t)
	repo := newTestRepo(t, db)
	svc := NewDashboardService(repo, db, testLogger(), cache.NewCacheManager(nil))
	return svc, db
}

// newCachedDashboardService wires the service and repository against a
// miniredis instance so cache reads and invalidation can be observed.
func newCachedDashboardService(t *testing.T) (DashboardService, *gorm.DB, repositories.Repository, *cache.CacheManager) {
	t.Helper()

	db := newTestDB(t)
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	repo := postgres.NewPostgreSQLRepository(postgres.RepositoryConfig{DB: db, RedisClient: client})
	cm := cache.NewCacheManager(client)
	svc := NewDashboardService(repo, db, testLogger(), cm)
	return svc, db, repo, cm
}

func seedRankedUser(t *testing.T, db *gorm.DB, id, name string, class *string, points int) *models.User {
	t.Helper()

	user := &models.User{
		ID:          id,
		FullName:    name,
		Email:       id + "@example.com",
		ClassName:   class,
		Rank:        models.RankForPoints(points),
		TotalPoints: points,
	}
	if err := db.Create(user).Error; err != nil {
		t.Fatalf("failed to seed user %s: %v", id, err)
	}
	return user
}

func seedResult(t *testing.T, db *gorm.DB, userID, subject string, score, total int, takenAt time.Time) {
	t.Helper()

	result := &models.QuizResult{
		UserID:  userID,
		Subject: subject,
		Score:   score,
		Total:   total,
		TakenAt: takenAt,
	}
	if err := db.Create(result).Error; err != nil {
		t.Fatalf("failed to seed quiz result: %v", err)
	}
}

func TestGetDashboardAggregates(t *testing.T) {
	svc, db := newDashboardTestService(t)

	user := seedUser(t, db, "dash-user")
	user.TotalPoints = 700
	user.Rank = models.RankSilver
	if err := user.SetBadges([]string{"first-steps", "quiz-veteran"}); err != nil {
		t.Fatalf("failed to set badges: %v", err)
	}
	if err := db.Save(user).Error; err != nil {
		t.Fatalf("failed to update user: %v", err)
	}

	now := time.Now().UTC()
	seedResult(t, db, "dash-user", "Math", 10, 10, now)
	seedResult(t, db, "dash-user", "Science", 3, 5, now.Add(-2*time.Second))
	seedResult(t, db, "dash-user", "Math", 8, 10, now.Add(-24*time.Hour))

	for i, completed := range []bool{true, false, false} {
		task := &models.Task{
			UserID:    "dash-user",
			Text:      fmt.Sprintf("Task %d", i+1),
			Priority:  models.PriorityMedium,
			Completed: completed,
		}
		if err := db.Create(task).Error; err != nil {
			t.Fatalf("failed to seed task: %v", err)
		}
	}

	resp, err := svc.GetDashboard(context.Background(), "dash-user")
	if err != nil {
		t.Fatalf("GetDashboard() error = %v", err)
	}

	overview := resp.Overview
	if overview.TotalQuizzes != 3 {
		t.Errorf("TotalQuizzes = %d, want 3", overview.TotalQuizzes)
	}
	if overview.TotalTasks != 3 {
		t.Errorf("TotalTasks = %d, want 3", overview.TotalTasks)
	}
	if overview.CompletedTasks != 1 {
		t.Errorf("CompletedTasks = %d, want 1", overview.CompletedTasks)
	}
	// 21 correct out of 25 questions.
	if overview.Accuracy != 84.0 {
		t.Errorf("Accuracy = %v, want 84.0", overview.Accuracy)
	}
	if overview.StreakDays != 2 {
		t.Errorf("StreakDays = %d, want 2 (today and yesterday)", overview.StreakDays)
	}

	gam := resp.Gamification
	if gam.TotalPoints != 700 {
		t.Errorf("TotalPoints = %d, want 700", gam.TotalPoints)
	}
	if gam.Rank != models.RankSilver {
		t.Errorf("Rank = %s, want %s", gam.Rank, models.RankSilver)
	}
	if gam.BadgeCount != 2 {
		t.Errorf("BadgeCount = %d, want 2", gam.BadgeCount)
	}
	if gam.NextRank == nil || *gam.NextRank != models.RankGold {
		t.Errorf("NextRank = %v, want %s", gam.NextRank, models.RankGold)
	}
	if gam.PointsToNext != 800 {
		t.Errorf("PointsToNext = %d, want 800", gam.PointsToNext)
	}

	if len(resp.RecentResults) != 3 {
		t.Fatalf("RecentResults len = %d, want 3", len(resp.RecentResults))
	}
	if resp.RecentResults[0].Subject != "Math" || resp.RecentResults[0].Score != 10 {
		t.Errorf("RecentResults[0] = %s %d/%d, want the newest Math 10/10",
			resp.RecentResults[0].Subject, resp.RecentResults[0].Score, resp.RecentResults[0].Total)
	}

	if len(resp.Subjects) != 2 {
		t.Fatalf("Subjects len = %d, want 2", len(resp.Subjects))
	}
	math := resp.Subjects[0]
	if math.Subject != "Math" || math.Attempts != 2 {
		t.Errorf("Subjects[0] = %s with %d attempts, want Math with 2", math.Subject, math.Attempts)
	}
	if math.Accuracy != 90.0 {
		t.Errorf("Math accuracy = %v, want 90.0", math.Accuracy)
	}
	if math.BestScore != 100.0 {
		t.Errorf("Math best score = %v, want 100.0", math.BestScore)
	}
	science := resp.Subjects[1]
	if science.Subject != "Science" || science.Attempts != 1 || science.Accuracy != 60.0 {
		t.Errorf("Subjects[1] = %+v, want Science with 1 attempt at 60.0", science)
	}

	if len(resp.Trends) != 14 {
		t.Fatalf("Trends len = %d, want 14", len(resp.Trends))
	}
	today := resp.Trends[13]
	if today.Day != now.Format("2006-01-02") {
		t.Errorf("Trends[13].Day = %s, want today %s", today.Day, now.Format("2006-01-02"))
	}
	if today.Quizzes != 2 || today.Score != 13 || today.Total != 15 {
		t.Errorf("today bucket = %d quizzes %d/%d, want 2 quizzes 13/15",
			today.Quizzes, today.Score, today.Total)
	}
	if resp.Trends[12].Quizzes != 1 {
		t.Errorf("yesterday bucket quizzes = %d, want 1", resp.Trends[12].Quizzes)
	}
	if resp.Trends[0].Quizzes != 0 {
		t.Errorf("oldest bucket quizzes = %d, want zero filled", resp.Trends[0].Quizzes)
	}
}

func TestGetDashboardUnknownUser(t *testing.T) {
	svc, _ := newDashboardTestService(t)

	_, err := svc.GetDashboard(context.Background(), "ghost")
	if !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("GetDashboard() error = %v, want ErrUserNotFound", err)
	}
}

func TestGetDashboardAccuracy(t *testing.T) {
	svc, db := newDashboardTestService(t)

	seedUser(t, db, "fresh-user")
	seedUser(t, db, "one-quiz-user")
	seedResult(t, db, "one-quiz-user", "History", 7, 10, time.Now().UTC())

	fresh, err := svc.GetDashboard(context.Background(), "fresh-user")
	if err != nil {
		t.Fatalf("GetDashboard() error = %v", err)
	}
	if fresh.Overview.Accuracy != 0 {
		t.Errorf("accuracy with no quiz history = %v, want 0", fresh.Overview.Accuracy)
	}

	scored, err := svc.GetDashboard(context.Background(), "one-quiz-user")
	if err != nil {
		t.Fatalf("GetDashboard() error = %v", err)
	}
	if scored.Overview.Accuracy != 70.0 {
		t.Errorf("accuracy for 7 of 10 = %v, want 70.0", scored.Overview.Accuracy)
	}
}

func TestGetLeaderboardClassScope(t *testing.T) {
	svc, db := newDashboardTestService(t)

	classA := "9A"
	classB := "9B"
	alice := seedRankedUser(t, db, "alice", "Alice Nguyen", &classA, 900)
	if err := alice.SetBadges([]string{"first-steps"}); err != nil {
		t.Fatalf("failed to set badges: %v", err)
	}
	if err := db.Save(alice).Error; err != nil {
		t.Fatalf("failed to update alice: %v", err)
	}
	seedRankedUser(t, db, "bob", "Bob Pham", &classA, 500)
	seedRankedUser(t, db, "carol", "Carol Le", &classB, 1200)
	seedRankedUser(t, db, "dave", "Dave Vo", nil, 0)

	resp, err := svc.GetLeaderboard(context.Background(), "alice", 10)
	if err != nil {
		t.Fatalf("GetLeaderboard() error = %v", err)
	}
	if resp.ClassName == nil || *resp.ClassName != classA {
		t.Fatalf("ClassName = %v, want %s", resp.ClassName, classA)
	}
	if len(resp.Entries) != 2 {
		t.Fatalf("entries len = %d, want the two 9A students", len(resp.Entries))
	}
	first, second := resp.Entries[0], resp.Entries[1]
	if first.UserID != "alice" || first.Position != 1 || first.TotalPoints != 900 {
		t.Errorf("entries[0] = %+v, want alice in position 1 with 900 points", first)
	}
	if first.BadgeCount != 1 {
		t.Errorf("alice badge count = %d, want 1", first.BadgeCount)
	}
	if !first.IsSelf {
		t.Error("alice not flagged as self in her own view")
	}
	if second.UserID != "bob" || second.Position != 2 || second.IsSelf {
		t.Errorf("entries[1] = %+v, want bob in position 2 not flagged as self", second)
	}

	// Same class list viewed by bob flips the self flag.
	resp, err = svc.GetLeaderboard(context.Background(), "bob", 10)
	if err != nil {
		t.Fatalf("GetLeaderboard() error = %v", err)
	}
	if resp.Entries[0].IsSelf || !resp.Entries[1].IsSelf {
		t.Errorf("self flags = [%v %v], want only bob flagged",
			resp.Entries[0].IsSelf, resp.Entries[1].IsSelf)
	}

	// A student without a class sees the whole school.
	resp, err = svc.GetLeaderboard(context.Background(), "dave", 10)
	if err != nil {
		t.Fatalf("GetLeaderboard() error = %v", err)
	}
	if resp.ClassName != nil {
		t.Errorf("ClassName = %v, want nil for an unassigned student", resp.ClassName)
	}
	if len(resp.Entries) != 4 {
		t.Fatalf("entries len = %d, want all 4 students", len(resp.Entries))
	}
	wantOrder := []string{"carol", "alice", "bob", "dave"}
	for i, want := range wantOrder {
		if resp.Entries[i].UserID != want {
			t.Errorf("entries[%d] = %s, want %s", i, resp.Entries[i].UserID, want)
		}
		if resp.Entries[i].Position != i+1 {
			t.Errorf("entries[%d].Position = %d, want %d", i, resp.Entries[i].Position, i+1)
		}
	}
	if !resp.Entries[3].IsSelf {
		t.Error("dave not flagged as self at the bottom of the board")
	}

	// An explicit limit caps the board.
	resp, err = svc.GetLeaderboard(context.Background(), "dave", 1)
	if err != nil {
		t.Fatalf("GetLeaderboard() error = %v", err)
	}
	if len(resp.Entries) != 1 || resp.Entries[0].UserID != "carol" {
		t.Fatalf("entries = %+v, want only the top scorer", resp.Entries)
	}

	// A nonsense limit falls back to the default instead of failing.
	if _, err := svc.GetLeaderboard(context.Background(), "dave", -5); err != nil {
		t.Fatalf("GetLeaderboard() with negative limit error = %v", err)
	}

	if _, err := svc.GetLeaderboard(context.Background(), "ghost", 10); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("GetLeaderboard() error = %v, want ErrUserNotFound", err)
	}
}

func TestGetDashboardServesPrimedCache(t *testing.T) {
	svc, db, repo, cm := newCachedDashboardService(t)
	ctx := context.Background()

	seedUser(t, db, "cached-user")

	canned := &DashboardResponse{Overview: DashboardOverview{TotalQuizzes: 42}}
	if err := cm.Dashboard.Set(ctx, "user:cached-user:summary", canned, time.Minute); err != nil {
		t.Fatalf("failed to prime cache: %v", err)
	}

	resp, err := svc.GetDashboard(ctx, "cached-user")
	if err != nil {
		t.Fatalf("GetDashboard() error = %v", err)
	}
	if resp.Overview.TotalQuizzes != 42 {
		t.Fatalf("TotalQuizzes = %d, want the primed 42", resp.Overview.TotalQuizzes)
	}

	// Recording a result invalidates the summary, so the next read
	// rebuilds from the database.
	err = repo.Quiz().CreateResult(ctx, nil, &models.QuizResult{
		UserID:  "cached-user",
		Subject: "Math",
		Score:   4,
		Total:   5,
	})
	if err != nil {
		t.Fatalf("CreateResult() error = %v", err)
	}

	resp, err = svc.GetDashboard(ctx, "cached-user")
	if err != nil {
		t.Fatalf("GetDashboard() after invalidation error = %v", err)
	}
	if resp.Overview.TotalQuizzes != 1 {
		t.Fatalf("TotalQuizzes = %d, want 1 after rebuild", resp.Overview.TotalQuizzes)
	}
	if resp.Overview.Accuracy != 80.0 {
		t.Fatalf("Accuracy = %v, want 80.0 after rebuild", resp.Overview.Accuracy)
	}
}

func TestGetLeaderboardSharedCacheStampsSelf(t *testing.T) {
	svc, db, _, cm := newCachedDashboardService(t)
	ctx := context.Background()

	classA := "9A"
	seedRankedUser(t, db, "alice", "Alice Nguyen", &classA, 900)
	seedRankedUser(t, db, "bob", "Bob Pham", &classA, 500)

	primed := []LeaderboardEntry{
		{Position: 1, UserID: "alice", FullName: "Cached Alice", Rank: models.RankSilver, TotalPoints: 999},
	}
	if err := cm.Dashboard.Set(ctx, "leaderboard:9A:10", primed, time.Minute); err != nil {
		t.Fatalf("failed to prime cache: %v", err)
	}

	// Bob reads the cached class list and is not on it.
	resp, err := svc.GetLeaderboard(ctx, "bob", 10)
	if err != nil {
		t.Fatalf("GetLeaderboard() error = %v", err)
	}
	if len(resp.Entries) != 1 || resp.Entries[0].FullName != "Cached Alice" {
		t.Fatalf("entries = %+v, want the primed list", resp.Entries)
	}
	if resp.Entries[0].IsSelf {
		t.Error("cached entry flagged as self for a different viewer")
	}

	// Alice reads the same cached list and gets her own entry flagged.
	resp, err = svc.GetLeaderboard(ctx, "alice", 10)
	if err != nil {
		t.Fatalf("GetLeaderboard() error = %v", err)
	}
	if !resp.Entries[0].IsSelf {
		t.Error("cached entry not re-stamped as self for its owner")
	}
}
