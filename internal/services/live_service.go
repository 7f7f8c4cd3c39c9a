package services

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/sparkacademy/portal-service/internal/events"
	"github.com/sparkacademy/portal-service/internal/live"
	"github.com/sparkacademy/portal-service/internal/utils"
	"github.com/sparkacademy/portal-service/internal/validator"
)

const (
	voiceSessionName = "Voice session"

	// exchangeQueueSize bounds how many finished exchanges can wait for
	// persistence while the relay keeps streaming audio.
	exchangeQueueSize = 16
)

// LiveSessionEndedEvent is published when a voice session closes
type LiveSessionEndedEvent struct {
	SessionID  string    `json:"session_id"`
	UserID     string    `json:"user_id"`
	Voice      string    `json:"voice"`
	State      string    `json:"state"`
	DurationMS int64     `json:"duration_ms"`
	EndedAt    time.Time `json:"ended_at"`
}

// liveDialer is the provider surface the live service needs
type liveDialer interface {
	live.ProviderDialer
	LiveConfigured() bool
}

type voiceExchange struct {
	input  string
	output string
}

// ===== SERVICE IMPLEMENTATION =====

type liveService struct {
	logger       *slog.Logger
	validator    *validator.Validator
	publisher    events.EventPublisher
	issuer       *live.TicketIssuer
	dialer       liveDialer
	chat         ChatService
	defaultVoice string
}

func NewLiveService(
	logger *slog.Logger,
	v *validator.Validator,
	publisher events.EventPublisher,
	issuer *live.TicketIssuer,
	dialer liveDialer,
	chat ChatService,
	defaultVoice string,
) LiveService {
	if defaultVoice == "" {
		defaultVoice = "aura"
	}
	return &liveService{
		logger:       logger,
		validator:    v,
		publisher:    publisher,
		issuer:       issuer,
		dialer:       dialer,
		chat:         chat,
		defaultVoice: defaultVoice,
	}
}

// IssueTicket mints a short-lived websocket grant for the user
func (s *liveService) IssueTicket(ctx context.Context, userID string, req *LiveTicketRequest) (*LiveTicketResponse, error) {
	if err := s.validator.Validate(req); err != nil {
		return nil, err
	}
	if s.issuer == nil || !s.dialer.LiveConfigured() {
		return nil, ErrLiveUnavailable
	}

	voice := req.Voice
	if voice == "" {
		voice = s.defaultVoice
	}

	ticket, expiresAt, err := s.issuer.Issue(userID, voice)
	if err != nil {
		s.logger.Error("Failed to issue live ticket", "user_id", userID, "error", err)
		return nil, ErrLiveUnavailable
	}

	s.logger.Info("Issued live ticket", "user_id", userID, "voice", voice, "expires_at", expiresAt)

	return &LiveTicketResponse{
		Ticket:    ticket,
		ExpiresAt: expiresAt,
		Voice:     voice,
	}, nil
}

// VerifyTicket checks the grant presented on the websocket handshake
func (s *liveService) VerifyTicket(ticket string) (*live.TicketClaims, error) {
	if s.issuer == nil {
		return nil, ErrLiveUnavailable
	}
	claims, err := s.issuer.Verify(ticket)
	if err != nil {
		s.logger.Warn("Rejected live ticket", "error", err)
		return nil, ErrLiveTicketInvalid
	}
	return claims, nil
}

// HandleSession relays one voice session over the upgraded connection and
// records its finished exchanges as a chat transcript.
func (s *liveService) HandleSession(ctx context.Context, claims *live.TicketClaims, conn *websocket.Conn) {
	sessionID := uuid.New().String()

	exchanges := make(chan voiceExchange, exchangeQueueSize)
	var persisted sync.WaitGroup
	persisted.Add(1)
	go func() {
		defer persisted.Done()
		s.persistExchanges(claims.UserID, exchanges)
	}()

	session := live.NewSession(sessionID, claims.UserID, claims.Voice, conn, s.dialer, utils.NewSlogLogger(s.logger))
	session.SetExchangeSink(func(userID string, input string, output string) {
		// Called from the provider read goroutine; never block it.
		select {
		case exchanges <- voiceExchange{input: input, output: output}:
		default:
			s.logger.Warn("Dropping voice exchange, persist queue is full", "user_id", userID)
		}
	})

	startedAt := time.Now()
	session.Run(ctx)
	close(exchanges)
	persisted.Wait()

	endedAt := time.Now()
	s.logger.Info("Live session finished",
		"live_session_id", sessionID,
		"user_id", claims.UserID,
		"state", string(session.State()),
		"duration_ms", endedAt.Sub(startedAt).Milliseconds())

	if s.publisher != nil {
		// The request context ends with the connection; publish on its own
		// deadline.
		publishCtx, cancel := context.WithTimeout(context.Background(), persistTimeout)
		defer cancel()
		err := s.publisher.Publish(publishCtx, events.EventTypeLiveSessionEnded, LiveSessionEndedEvent{
			SessionID:  sessionID,
			UserID:     claims.UserID,
			Voice:      claims.Voice,
			State:      string(session.State()),
			DurationMS: endedAt.Sub(startedAt).Milliseconds(),
			EndedAt:    endedAt.UTC(),
		})
		if err != nil {
			s.logger.Warn("Failed to publish live session event", "error", err)
		}
	}
}

// ===== HELPER FUNCTIONS =====

// persistExchanges drains finished exchanges into a chat session created on
// first use, so a session with no completed turns leaves no transcript.
func (s *liveService) persistExchanges(userID string, exchanges <-chan voiceExchange) {
	if s.chat == nil {
		for range exchanges {
		}
		return
	}

	chatSessionID := ""
	for exchange := range exchanges {
		ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
		if chatSessionID == "" {
			created, err := s.chat.CreateSession(ctx, userID, &CreateSessionRequest{Name: voiceSessionName})
			if err != nil {
				s.logger.Warn("Failed to create voice transcript session", "user_id", userID, "error", err)
				cancel()
				continue
			}
			chatSessionID = created.ID
		}
		if err := s.chat.AppendExchange(ctx, userID, chatSessionID, exchange.input, exchange.output); err != nil {
			s.logger.Warn("Failed to persist voice exchange", "user_id", userID, "error", err)
		}
		cancel()
	}
}
