package services

import (
	"context"
	"encoding/json"
	"errors"
	"math/rand"
	"strings"
	"testing"
	"time"

	"gorm.io/gorm"

	"github.com/sparkacademy/portal-service/internal/events"
	"github.com/sparkacademy/portal-service/internal/models"
	"github.com/sparkacademy/portal-service/internal/repositories"
	"github.com/sparkacademy/portal-service/internal/validator"
)

func newQuizTestService(t *testing.T) (QuizService, *gorm.DB, *events.MockEventPublisher, *stubGenerator) {
	t.Helper()

	db := newTestDB(t)
	repo := newTestRepo(t, db)
	pub := events.NewMockEventPublisher(testLogger())
	gen := &stubGenerator{}
	svc := NewQuizService(repo, db, testLogger(), validator.New(), pub, gen)
	return svc, db, pub, gen
}

// ===== SUBMISSION AND SCORING =====

func TestSubmitResultAwardsPoints(t *testing.T) {
	svc, db, pub, _ := newQuizTestService(t)
	seedUser(t, db, "student-1")
	ctx := context.Background()

	resp, err := svc.SubmitResult(ctx, "student-1", &SubmitQuizRequest{
		Subject: "Algebra",
		Score:   4,
		Total:   5,
	})
	if err != nil {
		t.Fatalf("SubmitResult() error = %v", err)
	}

	if resp.QuizResult.ID == 0 {
		t.Fatal("SubmitResult() did not persist the result row")
	}
	if resp.Award.PointsAwarded != 40 {
		t.Fatalf("PointsAwarded = %d, want 40", resp.Award.PointsAwarded)
	}
	if resp.Award.TotalPoints != 40 {
		t.Fatalf("TotalPoints = %d, want 40", resp.Award.TotalPoints)
	}
	if resp.Award.Rank != models.RankBronze {
		t.Fatalf("Rank = %s, want Bronze", resp.Award.Rank)
	}
	if resp.Award.RankChanged {
		t.Fatal("RankChanged = true on a 40 point grant")
	}
	if len(resp.Award.NewBadges) != 1 || resp.Award.NewBadges[0] != "first-steps" {
		t.Fatalf("NewBadges = %v, want [first-steps]", resp.Award.NewBadges)
	}

	var user models.User
	if err := db.First(&user, "id = ?", "student-1").Error; err != nil {
		t.Fatalf("failed to reload user: %v", err)
	}
	if user.TotalPoints != 40 {
		t.Fatalf("persisted TotalPoints = %d, want 40", user.TotalPoints)
	}
	if !user.HasBadge("first-steps") {
		t.Fatal("first-steps badge was not persisted")
	}
	if series := user.ProgressSeries(); len(series) != 1 || series[0].Points != 40 {
		t.Fatalf("ProgressSeries = %v, want one snapshot at 40 points", series)
	}

	completed := eventsOfType(pub, events.EventTypeQuizCompleted)
	if len(completed) != 1 {
		t.Fatalf("quiz completed events = %d, want 1", len(completed))
	}
	payload, ok := completed[0].Data.(QuizCompletedEvent)
	if !ok {
		t.Fatalf("quiz completed payload type = %T", completed[0].Data)
	}
	if payload.Subject != "Algebra" || payload.Score != 4 || payload.Total != 5 {
		t.Fatalf("quiz completed payload = %+v", payload)
	}
	if payload.Accuracy != 80 {
		t.Fatalf("quiz completed accuracy = %v, want 80", payload.Accuracy)
	}
	if n := len(eventsOfType(pub, events.EventTypePointsAwarded)); n != 1 {
		t.Fatalf("points awarded events = %d, want 1", n)
	}
	if n := len(eventsOfType(pub, events.EventTypeBadgeAwarded)); n != 1 {
		t.Fatalf("badge awarded events = %d, want 1", n)
	}
}

func TestSubmitResultPerfectScore(t *testing.T) {
	svc, db, _, _ := newQuizTestService(t)
	seedUser(t, db, "student-1")

	resp, err := svc.SubmitResult(context.Background(), "student-1", &SubmitQuizRequest{
		Subject: "Geometry",
		Score:   5,
		Total:   5,
	})
	if err != nil {
		t.Fatalf("SubmitResult() error = %v", err)
	}

	want := []string{"first-steps", "perfectionist"}
	if len(resp.Award.NewBadges) != len(want) {
		t.Fatalf("NewBadges = %v, want %v", resp.Award.NewBadges, want)
	}
	for i, badge := range want {
		if resp.Award.NewBadges[i] != badge {
			t.Fatalf("NewBadges = %v, want %v", resp.Award.NewBadges, want)
		}
	}
}

func TestSubmitResultRankChange(t *testing.T) {
	svc, db, pub, _ := newQuizTestService(t)
	seedUser(t, db, "student-1")
	if err := db.Model(&models.User{}).Where("id = ?", "student-1").Update("total_points", 480).Error; err != nil {
		t.Fatalf("failed to preload points: %v", err)
	}

	resp, err := svc.SubmitResult(context.Background(), "student-1", &SubmitQuizRequest{
		Subject: "Physics",
		Score:   5,
		Total:   5,
	})
	if err != nil {
		t.Fatalf("SubmitResult() error = %v", err)
	}

	if resp.Award.TotalPoints != 530 {
		t.Fatalf("TotalPoints = %d, want 530", resp.Award.TotalPoints)
	}
	if !resp.Award.RankChanged || resp.Award.Rank != models.RankSilver {
		t.Fatalf("award = %+v, want rank change to Silver", resp.Award)
	}

	changes := eventsOfType(pub, events.EventTypeRankChanged)
	if len(changes) != 1 {
		t.Fatalf("rank changed events = %d, want 1", len(changes))
	}
	change, ok := changes[0].Data.(RankChangedEvent)
	if !ok {
		t.Fatalf("rank changed payload type = %T", changes[0].Data)
	}
	if change.From != models.RankBronze || change.To != models.RankSilver {
		t.Fatalf("rank change = %s -> %s, want Bronze -> Silver", change.From, change.To)
	}
}

func TestSubmitResultScoreExceedsTotal(t *testing.T) {
	svc, db, _, _ := newQuizTestService(t)
	seedUser(t, db, "student-1")

	_, err := svc.SubmitResult(context.Background(), "student-1", &SubmitQuizRequest{
		Subject: "Algebra",
		Score:   6,
		Total:   5,
	})

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		t.Fatalf("SubmitResult() error = %v, want validation errors", err)
	}
	if !verrs.HasField("score") {
		t.Fatalf("validation errors = %v, want one on the score field", verrs)
	}
}

func TestSubmitResultUnknownUserRollsBack(t *testing.T) {
	svc, db, _, _ := newQuizTestService(t)

	_, err := svc.SubmitResult(context.Background(), "ghost", &SubmitQuizRequest{
		Subject: "Algebra",
		Score:   3,
		Total:   5,
	})
	if !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("SubmitResult() error = %v, want ErrUserNotFound", err)
	}

	var count int64
	if err := db.Model(&models.QuizResult{}).Count(&count).Error; err != nil {
		t.Fatalf("failed to count results: %v", err)
	}
	if count != 0 {
		t.Fatalf("result rows after rollback = %d, want 0", count)
	}
}

// ===== GENERATION =====

func TestGenerateQuizFiltersAndShuffles(t *testing.T) {
	svc, db, _, gen := newQuizTestService(t)
	seedUser(t, db, "student-1")

	gen.payload = `{"questions":[
		{"question":"What is 2+2?","options":["3","4","5"],"correct_index":1,"explanation":"Basic addition."},
		{"question":"   ","options":["a","b"],"correct_index":0},
		{"question":"Pick the even number.","options":["7","8"],"correct_index":1}
	]}`

	resp, err := svc.GenerateQuiz(context.Background(), "student-1", &GenerateQuizRequest{
		Subject:    "Arithmetic",
		Difficulty: models.DifficultyEasy,
	})
	if err != nil {
		t.Fatalf("GenerateQuiz() error = %v", err)
	}

	if resp.Subject != "Arithmetic" {
		t.Fatalf("Subject = %s, want Arithmetic", resp.Subject)
	}
	if len(resp.Questions) != 2 {
		t.Fatalf("questions = %d, want 2 after filtering", len(resp.Questions))
	}

	// Shuffling may reorder anything, but the correct index has to keep
	// pointing at the right answer text.
	wantCorrect := map[string]string{
		"What is 2+2?":          "4",
		"Pick the even number.": "8",
	}
	for _, q := range resp.Questions {
		want, ok := wantCorrect[q.Question]
		if !ok {
			t.Fatalf("unexpected question %q", q.Question)
		}
		if got := q.Options[q.CorrectIndex]; got != want {
			t.Fatalf("correct option for %q = %q, want %q", q.Question, got, want)
		}
	}

	if !strings.Contains(gen.lastUser, "5 multiple-choice") {
		t.Fatalf("prompt did not apply the default question count: %q", gen.lastUser)
	}
}

func TestGenerateQuizProviderDown(t *testing.T) {
	svc, db, _, gen := newQuizTestService(t)
	seedUser(t, db, "student-1")
	gen.err = errors.New("connection refused")

	_, err := svc.GenerateQuiz(context.Background(), "student-1", &GenerateQuizRequest{
		Subject:    "History",
		Difficulty: models.DifficultyMedium,
	})
	if !errors.Is(err, ErrProviderUnavailable) {
		t.Fatalf("GenerateQuiz() error = %v, want ErrProviderUnavailable", err)
	}
}

func TestGenerateQuizEmptyAndUnplayable(t *testing.T) {
	svc, db, _, gen := newQuizTestService(t)
	seedUser(t, db, "student-1")
	ctx := context.Background()
	req := &GenerateQuizRequest{Subject: "History", Difficulty: models.DifficultyHard}

	gen.payload = `{"questions":[]}`
	if _, err := svc.GenerateQuiz(ctx, "student-1", req); !errors.Is(err, ErrQuizEmpty) {
		t.Fatalf("empty payload error = %v, want ErrQuizEmpty", err)
	}

	gen.payload = `{"questions":[{"question":"only one option","options":["a"],"correct_index":0}]}`
	if _, err := svc.GenerateQuiz(ctx, "student-1", req); !errors.Is(err, ErrProviderResponseInvalid) {
		t.Fatalf("unplayable payload error = %v, want ErrProviderResponseInvalid", err)
	}
}

func TestShuffleOptionsKeepsCorrectAnswer(t *testing.T) {
	rng := rand.New(rand.NewSource(42))

	for i := 0; i < 200; i++ {
		q := models.QuizQuestion{
			Question:     "q",
			Options:      []string{"a", "b", "c", "d", "e"},
			CorrectIndex: rng.Intn(5),
		}
		want := q.Options[q.CorrectIndex]

		shuffleOptions(rng, &q)

		if q.CorrectIndex < 0 || q.CorrectIndex >= len(q.Options) {
			t.Fatalf("CorrectIndex = %d out of range", q.CorrectIndex)
		}
		if got := q.Options[q.CorrectIndex]; got != want {
			t.Fatalf("correct answer after shuffle = %q, want %q", got, want)
		}

		seen := make(map[string]bool, len(q.Options))
		for _, opt := range q.Options {
			seen[opt] = true
		}
		if len(seen) != 5 {
			t.Fatalf("options after shuffle = %v, want a permutation", q.Options)
		}
	}
}

func TestShuffleQuestionsPermutes(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	questions := make([]models.QuizQuestion, 10)
	for i := range questions {
		questions[i] = models.QuizQuestion{Question: string(rune('a' + i))}
	}

	shuffleQuestions(rng, questions)

	if len(questions) != 10 {
		t.Fatalf("questions = %d, want 10", len(questions))
	}
	seen := make(map[string]bool)
	for _, q := range questions {
		seen[q.Question] = true
	}
	if len(seen) != 10 {
		t.Fatal("shuffle dropped or duplicated questions")
	}
}

func TestShuffleQuestionsIdentityOnTiny(t *testing.T) {
	rng := rand.New(rand.NewSource(1))

	shuffleQuestions(rng, nil)

	single := []models.QuizQuestion{{Question: "only"}}
	shuffleQuestions(rng, single)
	if single[0].Question != "only" {
		t.Fatalf("single question = %q, want unchanged", single[0].Question)
	}
}

func TestShuffleQuestionsUniform(t *testing.T) {
	const (
		size   = 5
		trials = 10000
	)
	rng := rand.New(rand.NewSource(99))

	counts := make([][]int, size)
	for i := range counts {
		counts[i] = make([]int, size)
	}

	base := make([]models.QuizQuestion, size)
	for i := range base {
		base[i] = models.QuizQuestion{Question: string(rune('a' + i))}
	}

	work := make([]models.QuizQuestion, size)
	for trial := 0; trial < trials; trial++ {
		copy(work, base)
		shuffleQuestions(rng, work)
		for pos, q := range work {
			counts[int(q.Question[0]-'a')][pos]++
		}
	}

	// Expected trials/size hits per cell; the band is several sigma wide
	// for the fixed seed.
	for idx, row := range counts {
		for pos, n := range row {
			if n < 1700 || n > 2300 {
				t.Errorf("question %d at position %d seen %d times, want about %d",
					idx, pos, n, trials/size)
			}
		}
	}
}

func TestFilterPlayableQuestions(t *testing.T) {
	questions := []models.QuizQuestion{
		{Question: "keep", Options: []string{"a", "b"}, CorrectIndex: 1},
		{Question: "   ", Options: []string{"a", "b"}, CorrectIndex: 0},
		{Question: "one option", Options: []string{"a"}, CorrectIndex: 0},
		{Question: "index high", Options: []string{"a", "b"}, CorrectIndex: 2},
		{Question: "index negative", Options: []string{"a", "b"}, CorrectIndex: -1},
	}

	got := filterPlayableQuestions(questions)

	if len(got) != 1 {
		t.Fatalf("playable questions = %d, want 1", len(got))
	}
	if got[0].Question != "keep" {
		t.Fatalf("kept question = %q, want %q", got[0].Question, "keep")
	}
}

// ===== RESULT LISTING =====

func TestListResultsPaging(t *testing.T) {
	svc, db, _, _ := newQuizTestService(t)
	seedUser(t, db, "student-1")
	ctx := context.Background()

	now := time.Now().UTC()
	for i := 0; i < 25; i++ {
		subject := "Math"
		if i == 0 {
			subject = "Chemistry"
		}
		result := &models.QuizResult{
			UserID:  "student-1",
			Subject: subject,
			Score:   3,
			Total:   5,
			TakenAt: now.Add(-time.Duration(i) * time.Hour),
		}
		if err := db.Create(result).Error; err != nil {
			t.Fatalf("failed to seed result: %v", err)
		}
	}

	page1, err := svc.ListResults(ctx, "student-1", repositories.QuizResultFilters{})
	if err != nil {
		t.Fatalf("ListResults() error = %v", err)
	}
	if page1.Total != 25 || len(page1.Results) != 20 || page1.Page != 1 || page1.Size != 20 {
		t.Fatalf("page 1 = total %d len %d page %d size %d", page1.Total, len(page1.Results), page1.Page, page1.Size)
	}

	page2, err := svc.ListResults(ctx, "student-1", repositories.QuizResultFilters{Offset: 20})
	if err != nil {
		t.Fatalf("ListResults() error = %v", err)
	}
	if len(page2.Results) != 5 || page2.Page != 2 {
		t.Fatalf("page 2 = len %d page %d, want 5 results on page 2", len(page2.Results), page2.Page)
	}

	chemistry := "Chemistry"
	filtered, err := svc.ListResults(ctx, "student-1", repositories.QuizResultFilters{Subject: &chemistry})
	if err != nil {
		t.Fatalf("ListResults() error = %v", err)
	}
	if filtered.Total != 1 || len(filtered.Results) != 1 {
		t.Fatalf("filtered = total %d len %d, want exactly the Chemistry row", filtered.Total, len(filtered.Results))
	}
}

// ===== CUSTOM TOPICS =====

func TestCreateTopicDuplicateName(t *testing.T) {
	svc, db, _, _ := newQuizTestService(t)
	seedUser(t, db, "student-1")
	ctx := context.Background()

	topic, err := svc.CreateTopic(ctx, "student-1", &CreateTopicRequest{Name: "Biology", Icon: models.IconFlask})
	if err != nil {
		t.Fatalf("CreateTopic() error = %v", err)
	}

	if _, err := svc.CreateTopic(ctx, "student-1", &CreateTopicRequest{Name: "biology", Icon: models.IconBook}); !errors.Is(err, ErrDuplicateTopicName) {
		t.Fatalf("duplicate CreateTopic() error = %v, want ErrDuplicateTopicName", err)
	}

	// Renaming a topic to its own name is not a collision
	if _, err := svc.UpdateTopic(ctx, "student-1", topic.ID, &CreateTopicRequest{Name: "Biology", Icon: models.IconSprout}); err != nil {
		t.Fatalf("UpdateTopic() to own name error = %v", err)
	}
}

func TestTopicOwnership(t *testing.T) {
	svc, db, _, _ := newQuizTestService(t)
	seedUser(t, db, "owner")
	seedUser(t, db, "intruder")
	ctx := context.Background()

	topic, err := svc.CreateTopic(ctx, "owner", &CreateTopicRequest{Name: "Astronomy", Icon: models.IconGlobe})
	if err != nil {
		t.Fatalf("CreateTopic() error = %v", err)
	}

	if _, err := svc.UpdateTopic(ctx, "intruder", topic.ID, &CreateTopicRequest{Name: "Mine Now", Icon: models.IconGlobe}); !errors.Is(err, ErrTopicAccessDenied) {
		t.Fatalf("foreign UpdateTopic() error = %v, want ErrTopicAccessDenied", err)
	}
	if err := svc.DeleteTopic(ctx, "intruder", topic.ID); !errors.Is(err, ErrTopicAccessDenied) {
		t.Fatalf("foreign DeleteTopic() error = %v, want ErrTopicAccessDenied", err)
	}
	if _, err := svc.UpdateTopic(ctx, "owner", 9999, &CreateTopicRequest{Name: "Nope", Icon: models.IconGlobe}); !errors.Is(err, ErrTopicNotFound) {
		t.Fatalf("unknown UpdateTopic() error = %v, want ErrTopicNotFound", err)
	}

	if err := svc.DeleteTopic(ctx, "owner", topic.ID); err != nil {
		t.Fatalf("DeleteTopic() error = %v", err)
	}
	topics, err := svc.ListTopics(ctx, "owner")
	if err != nil {
		t.Fatalf("ListTopics() error = %v", err)
	}
	if len(topics) != 0 {
		t.Fatalf("topics after delete = %d, want 0", len(topics))
	}
}

// ===== CUSTOM QUIZZES =====

func TestCreateCustomQuiz(t *testing.T) {
	svc, db, _, _ := newQuizTestService(t)
	seedUser(t, db, "student-1")
	ctx := context.Background()

	quiz, err := svc.CreateCustomQuiz(ctx, "student-1", &CreateCustomQuizRequest{
		Title: "Cell Biology Review",
		Questions: []models.QuizQuestion{
			{Question: "What organelle makes energy?", Options: []string{"Nucleus", "Mitochondria"}, CorrectIndex: 1, Explanation: "Mitochondria produce ATP."},
		},
	})
	if err != nil {
		t.Fatalf("CreateCustomQuiz() error = %v", err)
	}

	if quiz.ID == 0 {
		t.Fatal("CreateCustomQuiz() did not persist the quiz")
	}
	if quiz.Subject != quiz.Title {
		t.Fatalf("Subject = %q, want the title %q", quiz.Subject, quiz.Title)
	}
	if quiz.QuestionCount != 1 {
		t.Fatalf("QuestionCount = %d, want 1", quiz.QuestionCount)
	}

	var questions []models.QuizQuestion
	if err := json.Unmarshal(quiz.Questions, &questions); err != nil {
		t.Fatalf("failed to decode stored questions: %v", err)
	}
	if len(questions) != 1 || questions[0].CorrectIndex != 1 {
		t.Fatalf("stored questions = %+v", questions)
	}
}

func TestCreateCustomQuizRejectsBadQuestions(t *testing.T) {
	svc, db, _, _ := newQuizTestService(t)
	seedUser(t, db, "student-1")

	_, err := svc.CreateCustomQuiz(context.Background(), "student-1", &CreateCustomQuizRequest{
		Title: "Broken",
		Questions: []models.QuizQuestion{
			{Question: "Only one option", Options: []string{"a"}, CorrectIndex: 0},
		},
	})

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		t.Fatalf("CreateCustomQuiz() error = %v, want validation errors", err)
	}
}

func TestCustomQuizOwnership(t *testing.T) {
	svc, db, _, _ := newQuizTestService(t)
	seedUser(t, db, "owner")
	seedUser(t, db, "intruder")
	ctx := context.Background()

	quiz, err := svc.CreateCustomQuiz(ctx, "owner", &CreateCustomQuizRequest{
		Title: "Fractions",
		Questions: []models.QuizQuestion{
			{Question: "1/2 + 1/2?", Options: []string{"1", "2"}, CorrectIndex: 0},
		},
	})
	if err != nil {
		t.Fatalf("CreateCustomQuiz() error = %v", err)
	}

	if _, err := svc.GetCustomQuiz(ctx, "intruder", quiz.ID); !errors.Is(err, ErrQuizAccessDenied) {
		t.Fatalf("foreign GetCustomQuiz() error = %v, want ErrQuizAccessDenied", err)
	}
	if _, err := svc.GetCustomQuiz(ctx, "owner", 9999); !errors.Is(err, ErrQuizNotFound) {
		t.Fatalf("unknown GetCustomQuiz() error = %v, want ErrQuizNotFound", err)
	}
	if err := svc.DeleteCustomQuiz(ctx, "intruder", quiz.ID); !errors.Is(err, ErrQuizAccessDenied) {
		t.Fatalf("foreign DeleteCustomQuiz() error = %v, want ErrQuizAccessDenied", err)
	}
}
