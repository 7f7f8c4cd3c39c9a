package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/sparkacademy/portal-service/internal/llm"
	"github.com/sparkacademy/portal-service/internal/models"
	"github.com/sparkacademy/portal-service/internal/repositories"
	"github.com/sparkacademy/portal-service/internal/utils"
	"github.com/sparkacademy/portal-service/internal/validator"
)

const (
	defaultSessionName = "New conversation"

	defaultSessionPageSize = 20
	maxSessionPageSize     = 100

	// maxHistoryTurns caps how much of the session travels to the provider
	// on each exchange.
	maxHistoryTurns = 30

	// persistTimeout bounds the cleanup and completion writes that run
	// after the request context has ended.
	persistTimeout = 10 * time.Second

	chatStreamErrorMessage = "the tutor could not finish this reply"

	// speechMaxChars bounds how much of a reply goes to synthesis
	speechMaxChars = 4000

	defaultSpeechVoice = "aura"
)

const tutorSystemPrompt = `You are a patient study tutor for secondary-school students. ` +
	`Explain step by step, prefer short paragraphs, and ask a checking question when the topic is hard. ` +
	`When you rely on an external source, cite it.`

type chatService struct {
	repo      repositories.Repository
	db        *gorm.DB
	logger    *slog.Logger
	validator *validator.Validator
	pacer     revealPacer

	// openStream dials the provider; swapped out in tests
	openStream func(ctx context.Context, turns []llm.ChatTurn) (tokenStream, error)

	// synthesize turns reply text into audio; swapped out in tests
	synthesize func(ctx context.Context, text string, voice string) ([]byte, string, error)
}

// NewChatService creates a new chat service instance
func NewChatService(repo repositories.Repository, db *gorm.DB, logger *slog.Logger, v *validator.Validator, client *llm.Client) ChatService {
	svc := &chatService{
		repo:      repo,
		db:        db,
		logger:    logger,
		validator: v,
		pacer:     newRevealPacer(),
	}
	svc.openStream = func(ctx context.Context, turns []llm.ChatTurn) (tokenStream, error) {
		return client.ChatStream(ctx, turns)
	}
	svc.synthesize = func(ctx context.Context, text string, voice string) ([]byte, string, error) {
		return client.SynthesizeSpeech(ctx, text, voice)
	}
	return svc
}

// ===== SESSIONS =====

func (s *chatService) CreateSession(ctx context.Context, userID string, req *CreateSessionRequest) (*models.ChatSession, error) {
	s.logger.Info("Creating chat session", "user_id", userID)

	if err := s.validator.Validate(req); err != nil {
		return nil, err
	}

	name := defaultSessionName
	if strings.TrimSpace(req.Name) != "" {
		sanitized, err := utils.SanitizePlainText(req.Name)
		if err != nil {
			return nil, NewBusinessRuleError("session name contains no usable text", "session_name", map[string]interface{}{
				"name": req.Name,
			})
		}
		name = sanitized
	}

	session := &models.ChatSession{
		ID:     uuid.New().String(),
		UserID: userID,
		Name:   name,
	}
	if err := s.repo.Chat().CreateSession(ctx, nil, session); err != nil {
		return nil, fmt.Errorf("failed to create chat session: %w", err)
	}

	return session, nil
}

func (s *chatService) GetSession(ctx context.Context, userID string, sessionID string) (*models.ChatSession, error) {
	session, err := s.repo.Chat().GetSessionWithMessages(ctx, nil, sessionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to load chat session: %w", err)
	}
	if session.UserID != userID {
		return nil, ErrSessionAccessDenied
	}
	return session, nil
}

func (s *chatService) ListSessions(ctx context.Context, userID string, filters repositories.ChatSessionFilters) (*ChatSessionListResponse, error) {
	if filters.Limit <= 0 {
		filters.Limit = defaultSessionPageSize
	}
	if filters.Limit > maxSessionPageSize {
		filters.Limit = maxSessionPageSize
	}
	if filters.Offset < 0 {
		filters.Offset = 0
	}

	sessions, total, err := s.repo.Chat().ListSessions(ctx, nil, userID, filters)
	if err != nil {
		return nil, fmt.Errorf("failed to list chat sessions: %w", err)
	}

	return &ChatSessionListResponse{
		Sessions: sessions,
		Total:    total,
		Page:     filters.Offset/filters.Limit + 1,
		Size:     filters.Limit,
	}, nil
}

func (s *chatService) RenameSession(ctx context.Context, userID string, sessionID string, req *RenameSessionRequest) error {
	s.logger.Info("Renaming chat session", "user_id", userID, "session_id", sessionID)

	if err := s.validator.Validate(req); err != nil {
		return err
	}

	if _, err := s.loadOwnedSession(ctx, userID, sessionID); err != nil {
		return err
	}

	name, err := utils.SanitizePlainText(req.Name)
	if err != nil {
		return NewBusinessRuleError("session name contains no usable text", "session_name", map[string]interface{}{
			"name": req.Name,
		})
	}

	if err := s.repo.Chat().RenameSession(ctx, nil, sessionID, name); err != nil {
		return fmt.Errorf("failed to rename chat session: %w", err)
	}
	return nil
}

func (s *chatService) DeleteSession(ctx context.Context, userID string, sessionID string) error {
	s.logger.Info("Deleting chat session", "user_id", userID, "session_id", sessionID)

	if _, err := s.loadOwnedSession(ctx, userID, sessionID); err != nil {
		return err
	}

	if err := s.repo.Chat().DeleteSession(ctx, nil, sessionID); err != nil {
		return fmt.Errorf("failed to delete chat session: %w", err)
	}
	return nil
}

// ===== STREAMING EXCHANGE =====

func (s *chatService) StreamMessage(ctx context.Context, userID string, sessionID string, req *SendMessageRequest) (<-chan ChatStreamEvent, error) {
	s.logger.Info("Starting chat exchange", "user_id", userID, "session_id", sessionID)

	if err := s.validator.Validate(req); err != nil {
		return nil, err
	}

	session, err := s.loadOwnedSession(ctx, userID, sessionID)
	if err != nil {
		return nil, err
	}

	content, err := utils.SanitizeMessage(req.Content)
	if err != nil {
		return nil, NewBusinessRuleError("message contains no usable text", "message_content", map[string]interface{}{
			"session_id": sessionID,
		})
	}

	history, err := s.repo.Chat().ListMessages(ctx, nil, session.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load session history: %w", err)
	}
	position, err := s.repo.Chat().NextPosition(ctx, nil, session.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to assign message position: %w", err)
	}

	userMsg := &models.ChatMessage{
		ID:        uuid.New().String(),
		SessionID: session.ID,
		Role:      models.MessageRoleUser,
		Content:   content,
		ImageURL:  req.ImageURL,
		Position:  position,
	}
	if err := s.repo.Chat().CreateMessage(ctx, nil, userMsg); err != nil {
		return nil, fmt.Errorf("failed to store user message: %w", err)
	}

	placeholder := &models.ChatMessage{
		ID:        uuid.New().String(),
		SessionID: session.ID,
		Role:      models.MessageRoleModel,
		Streaming: true,
		Position:  position + 1,
	}
	if err := s.repo.Chat().CreateMessage(ctx, nil, placeholder); err != nil {
		return nil, fmt.Errorf("failed to create reply placeholder: %w", err)
	}

	stream, err := s.openStream(ctx, buildTutorTurns(history, userMsg))
	if err != nil {
		s.logger.Error("Failed to open provider stream", "session_id", sessionID, "error", err)
		s.discardPlaceholder(placeholder.ID)
		return nil, ErrProviderUnavailable
	}

	events := make(chan ChatStreamEvent, 8)
	tokens := make(chan string, tokenBufferSize)
	outcome := &streamOutcome{}

	go consumeStream(ctx, stream, tokens, outcome)
	go s.revealLoop(ctx, placeholder, tokens, outcome, events)

	return events, nil
}

// revealLoop paces the reply to the client and settles the placeholder
// row once the exchange finishes either way.
func (s *chatService) revealLoop(ctx context.Context, placeholder *models.ChatMessage, tokens <-chan string, outcome *streamOutcome, events chan<- ChatStreamEvent) {
	defer close(events)

	final, finished := s.pacer.run(ctx, tokens, func(prefix string) {
		select {
		case events <- ChatStreamEvent{Kind: StreamDelta, Text: prefix}:
		case <-ctx.Done():
		}
	})

	if !finished || outcome.err != nil || strings.TrimSpace(final) == "" {
		s.logger.Warn("Chat exchange failed", "message_id", placeholder.ID, "finished", finished, "error", outcome.err)
		s.discardPlaceholder(placeholder.ID)
		select {
		case events <- ChatStreamEvent{Kind: StreamError, Err: chatStreamErrorMessage}:
		case <-ctx.Done():
		}
		return
	}

	// The request context may end as soon as the client saw the last
	// prefix; the completed reply is persisted on its own deadline.
	dbCtx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()

	placeholder.Content = final
	placeholder.Streaming = false
	if len(outcome.citations) > 0 {
		encoded, err := json.Marshal(outcome.citations)
		if err == nil {
			placeholder.Citations = datatypes.JSON(encoded)
		} else {
			s.logger.Warn("Failed to encode citations", "message_id", placeholder.ID, "error", err)
		}
	}

	if err := s.repo.Chat().UpdateMessage(dbCtx, nil, placeholder); err != nil {
		s.logger.Error("Failed to persist completed reply", "message_id", placeholder.ID, "error", err)
		s.discardPlaceholder(placeholder.ID)
		select {
		case events <- ChatStreamEvent{Kind: StreamError, Err: chatStreamErrorMessage}:
		case <-ctx.Done():
		}
		return
	}
	if err := s.repo.Chat().TouchSession(dbCtx, nil, placeholder.SessionID); err != nil {
		s.logger.Warn("Failed to touch session", "session_id", placeholder.SessionID, "error", err)
	}

	s.logger.Info("Chat exchange completed", "message_id", placeholder.ID, "chars", len(final), "citations", len(outcome.citations))

	select {
	case events <- ChatStreamEvent{Kind: StreamComplete, Message: placeholder}:
	case <-ctx.Done():
	}
}

// discardPlaceholder removes a reply row after a failed exchange so no
// partial content survives
func (s *chatService) discardPlaceholder(id string) {
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()

	if err := s.repo.Chat().DeleteMessage(ctx, nil, id); err != nil {
		s.logger.Error("Failed to discard reply placeholder", "message_id", id, "error", err)
	}
}

// ===== FEEDBACK =====

func (s *chatService) ProvideFeedback(ctx context.Context, userID string, messageID string, req *MessageFeedbackRequest) error {
	s.logger.Info("Recording message feedback", "user_id", userID, "message_id", messageID, "feedback", req.Feedback)

	if err := s.validator.Validate(req); err != nil {
		return err
	}

	message, err := s.repo.Chat().GetMessage(ctx, nil, messageID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrMessageNotFound
		}
		return fmt.Errorf("failed to load message: %w", err)
	}

	if _, err := s.loadOwnedSession(ctx, userID, message.SessionID); err != nil {
		return err
	}

	if message.Role != models.MessageRoleModel {
		return ErrFeedbackNotPermitted
	}
	if message.Streaming {
		return ErrMessageNotCompleted
	}

	if err := s.repo.Chat().SetFeedback(ctx, nil, messageID, req.Feedback); err != nil {
		return fmt.Errorf("failed to set feedback: %w", err)
	}
	return nil
}

// ===== READ ALOUD =====

// SpeakMessage synthesizes a completed tutor reply so the student can
// listen instead of reading
func (s *chatService) SpeakMessage(ctx context.Context, userID string, messageID string, req *SpeakMessageRequest) (*SpeechResult, error) {
	if err := s.validator.Validate(req); err != nil {
		return nil, err
	}

	message, err := s.repo.Chat().GetMessage(ctx, nil, messageID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrMessageNotFound
		}
		return nil, fmt.Errorf("failed to load message: %w", err)
	}

	if _, err := s.loadOwnedSession(ctx, userID, message.SessionID); err != nil {
		return nil, err
	}

	if message.Role != models.MessageRoleModel {
		return nil, ErrSpeechNotPermitted
	}
	if message.Streaming {
		return nil, ErrMessageNotCompleted
	}

	text := strings.TrimSpace(message.Content)
	if text == "" {
		return nil, ErrSpeechNotPermitted
	}
	if len(text) > speechMaxChars {
		text = strings.ToValidUTF8(text[:speechMaxChars], "")
	}

	voice := req.Voice
	if voice == "" {
		voice = defaultSpeechVoice
	}

	audio, contentType, err := s.synthesize(ctx, text, voice)
	if err != nil {
		s.logger.Error("Failed to synthesize reply", "message_id", messageID, "error", err)
		return nil, ErrProviderUnavailable
	}

	s.logger.Info("Reply synthesized", "message_id", messageID, "voice", voice, "audio_bytes", len(audio))

	return &SpeechResult{Audio: audio, ContentType: contentType}, nil
}

// ===== VOICE EXCHANGES =====

func (s *chatService) AppendExchange(ctx context.Context, userID string, sessionID string, input string, output string) error {
	input = strings.TrimSpace(input)
	output = strings.TrimSpace(output)
	if input == "" && output == "" {
		return nil
	}

	session, err := s.loadOwnedSession(ctx, userID, sessionID)
	if err != nil {
		return err
	}

	err = s.repo.WithTransaction(ctx, func(txRepo repositories.Repository) error {
		position, err := txRepo.Chat().NextPosition(ctx, nil, session.ID)
		if err != nil {
			return fmt.Errorf("failed to assign message position: %w", err)
		}

		userMsg := &models.ChatMessage{
			ID:        uuid.New().String(),
			SessionID: session.ID,
			Role:      models.MessageRoleUser,
			Content:   input,
			Position:  position,
		}
		if err := txRepo.Chat().CreateMessage(ctx, nil, userMsg); err != nil {
			return fmt.Errorf("failed to store voice input: %w", err)
		}

		modelMsg := &models.ChatMessage{
			ID:        uuid.New().String(),
			SessionID: session.ID,
			Role:      models.MessageRoleModel,
			Content:   output,
			Position:  position + 1,
		}
		if err := txRepo.Chat().CreateMessage(ctx, nil, modelMsg); err != nil {
			return fmt.Errorf("failed to store voice reply: %w", err)
		}

		return txRepo.Chat().TouchSession(ctx, nil, session.ID)
	})
	if err != nil {
		return err
	}

	s.logger.Info("Voice exchange appended", "user_id", userID, "session_id", sessionID)
	return nil
}

// ===== HELPER METHODS =====

func (s *chatService) loadOwnedSession(ctx context.Context, userID string, sessionID string) (*models.ChatSession, error) {
	session, err := s.repo.Chat().GetSession(ctx, nil, sessionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to load chat session: %w", err)
	}
	if session.UserID != userID {
		return nil, ErrSessionAccessDenied
	}
	return session, nil
}

// buildTutorTurns assembles the provider conversation: system prompt,
// the most recent finished history, then the new user message.
func buildTutorTurns(history []*models.ChatMessage, userMsg *models.ChatMessage) []llm.ChatTurn {
	turns := make([]llm.ChatTurn, 0, len(history)+2)
	turns = append(turns, llm.ChatTurn{Role: "system", Content: tutorSystemPrompt})

	if len(history) > maxHistoryTurns {
		history = history[len(history)-maxHistoryTurns:]
	}
	for _, msg := range history {
		// unfinished replies carry no content yet
		if msg.Streaming {
			continue
		}
		turn := llm.ChatTurn{Role: string(msg.Role), Content: msg.Content}
		if msg.ImageURL != nil {
			turn.ImageURL = *msg.ImageURL
		}
		turns = append(turns, turn)
	}

	turn := llm.ChatTurn{Role: string(models.MessageRoleUser), Content: userMsg.Content}
	if userMsg.ImageURL != nil {
		turn.ImageURL = *userMsg.ImageURL
	}
	return append(turns, turn)
}
