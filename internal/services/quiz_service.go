package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"strings"
	"sync"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/sparkacademy/portal-service/internal/events"
	"github.com/sparkacademy/portal-service/internal/models"
	"github.com/sparkacademy/portal-service/internal/repositories"
	"github.com/sparkacademy/portal-service/internal/utils"
	"github.com/sparkacademy/portal-service/internal/validator"
)

const (
	// pointsPerCorrect is the gamification reward per correct answer.
	pointsPerCorrect = 10

	defaultQuestionCount = 5
	quizMaxTokens        = 4000

	defaultResultPageSize = 20
	maxResultPageSize     = 100
)

// structuredGenerator is the slice of the model client the quiz and spark
// services consume: one structured-output completion into a destination.
type structuredGenerator interface {
	GenerateJSON(ctx context.Context, systemPrompt string, userPrompt string, maxTokens int, dest interface{}) error
}

// QuizCompletedEvent is published after a result row is committed
type QuizCompletedEvent struct {
	UserID   string    `json:"user_id"`
	Subject  string    `json:"subject"`
	Score    int       `json:"score"`
	Total    int       `json:"total"`
	Accuracy float64   `json:"accuracy"`
	TakenAt  time.Time `json:"taken_at"`
}

type quizService struct {
	repo      repositories.Repository
	db        *gorm.DB
	logger    *slog.Logger
	validator *validator.Validator
	publisher events.EventPublisher
	generator structuredGenerator

	// rng backs question shuffling and is not safe for concurrent use
	rngMu sync.Mutex
	rng   *rand.Rand
}

// NewQuizService creates a new quiz service instance
func NewQuizService(repo repositories.Repository, db *gorm.DB, logger *slog.Logger, v *validator.Validator, publisher events.EventPublisher, generator structuredGenerator) QuizService {
	return &quizService{
		repo:      repo,
		db:        db,
		logger:    logger,
		validator: v,
		publisher: publisher,
		generator: generator,
		rng:       rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// ===== GENERATION AND SCORING =====

func (s *quizService) GenerateQuiz(ctx context.Context, userID string, req *GenerateQuizRequest) (*GeneratedQuizResponse, error) {
	s.logger.Info("Generating quiz", "user_id", userID, "subject", req.Subject, "difficulty", req.Difficulty)

	if err := s.validator.Validate(req); err != nil {
		return nil, err
	}

	subject, err := utils.SanitizePlainText(req.Subject)
	if err != nil {
		return nil, NewBusinessRuleError("subject contains no usable text", "quiz_subject", map[string]interface{}{
			"subject": req.Subject,
		})
	}

	count := req.QuestionCount
	if count == 0 {
		count = defaultQuestionCount
	}

	var payload struct {
		Questions []models.QuizQuestion `json:"questions"`
	}
	if err := s.generator.GenerateJSON(ctx, quizSystemPrompt, buildQuizPrompt(subject, req.Difficulty, count), quizMaxTokens, &payload); err != nil {
		s.logger.Error("Quiz generation failed", "user_id", userID, "subject", subject, "error", err)
		return nil, ErrProviderUnavailable
	}

	if len(payload.Questions) == 0 {
		return nil, ErrQuizEmpty
	}

	questions := filterPlayableQuestions(payload.Questions)
	if len(questions) == 0 {
		s.logger.Warn("Generated quiz had no playable questions", "user_id", userID, "subject", subject, "raw_count", len(payload.Questions))
		return nil, ErrProviderResponseInvalid
	}

	s.shuffle(questions)

	s.logger.Info("Quiz generated", "user_id", userID, "subject", subject, "questions", len(questions))

	return &GeneratedQuizResponse{
		Subject:    subject,
		Difficulty: req.Difficulty,
		Questions:  questions,
	}, nil
}

func (s *quizService) SubmitResult(ctx context.Context, userID string, req *SubmitQuizRequest) (*QuizResultResponse, error) {
	s.logger.Info("Submitting quiz result", "user_id", userID, "subject", req.Subject, "score", req.Score, "total", req.Total)

	if err := s.validator.Validate(req); err != nil {
		return nil, err
	}
	if ruleErrs := s.validator.GetBusinessValidator().ValidateQuizSubmission(req.Score, req.Total); len(ruleErrs) > 0 {
		return nil, ruleErrs
	}

	subject, err := utils.SanitizePlainText(req.Subject)
	if err != nil {
		return nil, NewBusinessRuleError("subject contains no usable text", "quiz_subject", map[string]interface{}{
			"subject": req.Subject,
		})
	}

	result := &models.QuizResult{
		UserID:  userID,
		Subject: subject,
		Score:   req.Score,
		Total:   req.Total,
		TakenAt: time.Now().UTC(),
	}

	var award *AwardResult
	err = s.repo.WithTransaction(ctx, func(txRepo repositories.Repository) error {
		user, err := txRepo.User().GetByID(ctx, nil, userID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrUserNotFound
			}
			return fmt.Errorf("failed to load user: %w", err)
		}

		if err := txRepo.Quiz().CreateResult(ctx, nil, result); err != nil {
			return fmt.Errorf("failed to record quiz result: %w", err)
		}

		award, err = awardPoints(ctx, txRepo, user, req.Score*pointsPerCorrect, req.Score == req.Total)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Quiz result recorded",
		"user_id", userID,
		"subject", subject,
		"score", req.Score,
		"total", req.Total,
		"points_awarded", award.PointsAwarded,
		"rank_changed", award.RankChanged)

	if s.publisher != nil {
		event := QuizCompletedEvent{
			UserID:   userID,
			Subject:  subject,
			Score:    req.Score,
			Total:    req.Total,
			Accuracy: float64(req.Score) / float64(req.Total) * 100,
			TakenAt:  result.TakenAt,
		}
		if err := s.publisher.Publish(ctx, events.EventTypeQuizCompleted, event); err != nil {
			s.logger.Warn("Failed to publish quiz completed event", "user_id", userID, "error", err)
		}
	}
	publishAwardEvents(ctx, s.publisher, s.logger, userID, "quiz_completed", award)

	return &QuizResultResponse{
		QuizResult: result,
		Award:      *award,
	}, nil
}

func (s *quizService) ListResults(ctx context.Context, userID string, filters repositories.QuizResultFilters) (*QuizResultListResponse, error) {
	if filters.Limit <= 0 {
		filters.Limit = defaultResultPageSize
	}
	if filters.Limit > maxResultPageSize {
		filters.Limit = maxResultPageSize
	}
	if filters.Offset < 0 {
		filters.Offset = 0
	}

	results, total, err := s.repo.Quiz().ListResults(ctx, nil, userID, filters)
	if err != nil {
		return nil, fmt.Errorf("failed to list quiz results: %w", err)
	}

	return &QuizResultListResponse{
		Results: results,
		Total:   total,
		Page:    filters.Offset/filters.Limit + 1,
		Size:    filters.Limit,
	}, nil
}

// ===== CUSTOM TOPICS =====

func (s *quizService) CreateTopic(ctx context.Context, userID string, req *CreateTopicRequest) (*models.CustomTopic, error) {
	s.logger.Info("Creating custom topic", "user_id", userID, "name", req.Name)

	if err := s.validator.Validate(req); err != nil {
		return nil, err
	}

	name, err := utils.SanitizePlainText(req.Name)
	if err != nil {
		return nil, NewBusinessRuleError("topic name contains no usable text", "topic_name", map[string]interface{}{
			"name": req.Name,
		})
	}

	if err := s.checkTopicNameAvailable(ctx, userID, name, 0); err != nil {
		return nil, err
	}

	topic := &models.CustomTopic{
		UserID: userID,
		Name:   name,
		Icon:   req.Icon,
	}
	if err := s.repo.Quiz().CreateTopic(ctx, nil, topic); err != nil {
		return nil, fmt.Errorf("failed to create topic: %w", err)
	}

	return topic, nil
}

func (s *quizService) ListTopics(ctx context.Context, userID string) ([]*models.CustomTopic, error) {
	topics, err := s.repo.Quiz().ListTopics(ctx, nil, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list topics: %w", err)
	}
	return topics, nil
}

func (s *quizService) UpdateTopic(ctx context.Context, userID string, id uint, req *CreateTopicRequest) (*models.CustomTopic, error) {
	s.logger.Info("Updating custom topic", "user_id", userID, "topic_id", id)

	if err := s.validator.Validate(req); err != nil {
		return nil, err
	}

	topic, err := s.loadOwnedTopic(ctx, userID, id)
	if err != nil {
		return nil, err
	}

	name, err := utils.SanitizePlainText(req.Name)
	if err != nil {
		return nil, NewBusinessRuleError("topic name contains no usable text", "topic_name", map[string]interface{}{
			"name": req.Name,
		})
	}

	if err := s.checkTopicNameAvailable(ctx, userID, name, topic.ID); err != nil {
		return nil, err
	}

	topic.Name = name
	topic.Icon = req.Icon
	if err := s.repo.Quiz().UpdateTopic(ctx, nil, topic); err != nil {
		return nil, fmt.Errorf("failed to update topic: %w", err)
	}

	return topic, nil
}

func (s *quizService) DeleteTopic(ctx context.Context, userID string, id uint) error {
	s.logger.Info("Deleting custom topic", "user_id", userID, "topic_id", id)

	if _, err := s.loadOwnedTopic(ctx, userID, id); err != nil {
		return err
	}

	if err := s.repo.Quiz().DeleteTopic(ctx, nil, id); err != nil {
		return fmt.Errorf("failed to delete topic: %w", err)
	}
	return nil
}

// ===== CUSTOM QUIZZES =====

func (s *quizService) CreateCustomQuiz(ctx context.Context, userID string, req *CreateCustomQuizRequest) (*models.CustomQuiz, error) {
	s.logger.Info("Creating custom quiz", "user_id", userID, "title", req.Title, "questions", len(req.Questions))

	if ruleErrs := s.validator.GetBusinessValidator().ValidateCustomQuizCreate(req); len(ruleErrs) > 0 {
		return nil, ruleErrs
	}

	title, err := utils.SanitizePlainText(req.Title)
	if err != nil {
		return nil, NewBusinessRuleError("quiz title contains no usable text", "quiz_title", map[string]interface{}{
			"title": req.Title,
		})
	}

	questionsJSON, err := json.Marshal(req.Questions)
	if err != nil {
		return nil, fmt.Errorf("failed to encode questions: %w", err)
	}

	quiz := &models.CustomQuiz{
		UserID:        userID,
		Title:         title,
		Subject:       title,
		Questions:     datatypes.JSON(questionsJSON),
		QuestionCount: len(req.Questions),
	}
	if err := s.repo.Quiz().CreateCustomQuiz(ctx, nil, quiz); err != nil {
		return nil, fmt.Errorf("failed to create custom quiz: %w", err)
	}

	return quiz, nil
}

func (s *quizService) GetCustomQuiz(ctx context.Context, userID string, id uint) (*models.CustomQuiz, error) {
	return s.loadOwnedCustomQuiz(ctx, userID, id)
}

func (s *quizService) ListCustomQuizzes(ctx context.Context, userID string) ([]*models.CustomQuiz, error) {
	quizzes, err := s.repo.Quiz().ListCustomQuizzes(ctx, nil, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list custom quizzes: %w", err)
	}
	return quizzes, nil
}

func (s *quizService) DeleteCustomQuiz(ctx context.Context, userID string, id uint) error {
	s.logger.Info("Deleting custom quiz", "user_id", userID, "quiz_id", id)

	if _, err := s.loadOwnedCustomQuiz(ctx, userID, id); err != nil {
		return err
	}

	if err := s.repo.Quiz().DeleteCustomQuiz(ctx, nil, id); err != nil {
		return fmt.Errorf("failed to delete custom quiz: %w", err)
	}
	return nil
}

// ===== HELPER METHODS =====

func (s *quizService) loadOwnedTopic(ctx context.Context, userID string, id uint) (*models.CustomTopic, error) {
	topic, err := s.repo.Quiz().GetTopic(ctx, nil, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTopicNotFound
		}
		return nil, fmt.Errorf("failed to load topic: %w", err)
	}
	if topic.UserID != userID {
		return nil, ErrTopicAccessDenied
	}
	return topic, nil
}

func (s *quizService) loadOwnedCustomQuiz(ctx context.Context, userID string, id uint) (*models.CustomQuiz, error) {
	quiz, err := s.repo.Quiz().GetCustomQuiz(ctx, nil, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrQuizNotFound
		}
		return nil, fmt.Errorf("failed to load custom quiz: %w", err)
	}
	if quiz.UserID != userID {
		return nil, ErrQuizAccessDenied
	}
	return quiz, nil
}

// checkTopicNameAvailable rejects a name another topic of the same user
// already carries. excludeID skips the topic being renamed.
func (s *quizService) checkTopicNameAvailable(ctx context.Context, userID string, name string, excludeID uint) error {
	topics, err := s.repo.Quiz().ListTopics(ctx, nil, userID)
	if err != nil {
		return fmt.Errorf("failed to check topic name: %w", err)
	}
	for _, t := range topics {
		if t.ID != excludeID && strings.EqualFold(t.Name, name) {
			return ErrDuplicateTopicName
		}
	}
	return nil
}

func (s *quizService) shuffle(questions []models.QuizQuestion) {
	s.rngMu.Lock()
	defer s.rngMu.Unlock()

	shuffleQuestions(s.rng, questions)
	for i := range questions {
		shuffleOptions(s.rng, &questions[i])
	}
}

// shuffleQuestions permutes the question order in place. Empty and
// single-element lists come back unchanged.
func shuffleQuestions(rng *rand.Rand, questions []models.QuizQuestion) {
	rng.Shuffle(len(questions), func(i, j int) {
		questions[i], questions[j] = questions[j], questions[i]
	})
}

// shuffleOptions permutes the answer options of one question in place and
// keeps CorrectIndex pointing at the same answer text.
func shuffleOptions(rng *rand.Rand, q *models.QuizQuestion) {
	rng.Shuffle(len(q.Options), func(i, j int) {
		q.Options[i], q.Options[j] = q.Options[j], q.Options[i]
		switch q.CorrectIndex {
		case i:
			q.CorrectIndex = j
		case j:
			q.CorrectIndex = i
		}
	})
}

// filterPlayableQuestions drops entries the client could not render: blank
// question text, fewer than two options, or a correct index out of range.
func filterPlayableQuestions(questions []models.QuizQuestion) []models.QuizQuestion {
	playable := make([]models.QuizQuestion, 0, len(questions))
	for _, q := range questions {
		if strings.TrimSpace(q.Question) == "" {
			continue
		}
		if len(q.Options) < 2 {
			continue
		}
		if q.CorrectIndex < 0 || q.CorrectIndex >= len(q.Options) {
			continue
		}
		playable = append(playable, q)
	}
	return playable
}

const quizSystemPrompt = `You are a quiz author for a student learning portal. ` +
	`Respond with a single JSON object of the form ` +
	`{"questions":[{"question":"...","options":["...","..."],"correct_index":0,"explanation":"..."}]}. ` +
	`Each question has 2 to 6 options and exactly one correct answer. ` +
	`Keep explanations to one or two sentences. Do not include any text outside the JSON object.`

func buildQuizPrompt(subject string, difficulty models.DifficultyLevel, count int) string {
	return fmt.Sprintf("Write %d multiple-choice questions about %q at %s difficulty for a secondary-school student.", count, subject, difficulty)
}
