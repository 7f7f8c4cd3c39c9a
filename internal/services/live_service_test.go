package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/sparkacademy/portal-service/internal/events"
	"github.com/sparkacademy/portal-service/internal/live"
	"github.com/sparkacademy/portal-service/internal/models"
	"github.com/sparkacademy/portal-service/internal/validator"
)

// stubDialer satisfies liveDialer without opening any connection.
type stubDialer struct {
	configured bool
}

func (d *stubDialer) DialLive(ctx context.Context, voice string) (*websocket.Conn, error) {
	return nil, errors.New("no live connection in tests")
}

func (d *stubDialer) LiveConfigured() bool {
	return d.configured
}

func newLiveTestService(t *testing.T, issuer *live.TicketIssuer, configured bool) *liveService {
	t.Helper()

	pub := events.NewMockEventPublisher(testLogger())
	svc := NewLiveService(testLogger(), validator.New(), pub, issuer, &stubDialer{configured: configured}, nil, "")
	return svc.(*liveService)
}

func TestIssueTicketRoundtrip(t *testing.T) {
	issuer := live.NewTicketIssuer("test-secret", time.Minute)
	svc := newLiveTestService(t, issuer, true)

	resp, err := svc.IssueTicket(context.Background(), "student-1", &LiveTicketRequest{Voice: "ember"})
	if err != nil {
		t.Fatalf("IssueTicket() error = %v", err)
	}
	if resp.Ticket == "" {
		t.Fatal("ticket is empty")
	}
	if resp.Voice != "ember" {
		t.Errorf("Voice = %q, want ember", resp.Voice)
	}
	if !resp.ExpiresAt.After(time.Now()) {
		t.Errorf("ExpiresAt = %v, want a future expiry", resp.ExpiresAt)
	}

	claims, err := svc.VerifyTicket(resp.Ticket)
	if err != nil {
		t.Fatalf("VerifyTicket() error = %v", err)
	}
	if claims.UserID != "student-1" || claims.Voice != "ember" {
		t.Errorf("claims = %s/%s, want student-1/ember", claims.UserID, claims.Voice)
	}
}

func TestIssueTicketDefaultVoice(t *testing.T) {
	issuer := live.NewTicketIssuer("test-secret", time.Minute)
	svc := newLiveTestService(t, issuer, true)

	resp, err := svc.IssueTicket(context.Background(), "student-1", &LiveTicketRequest{})
	if err != nil {
		t.Fatalf("IssueTicket() error = %v", err)
	}
	if resp.Voice != "aura" {
		t.Errorf("Voice = %q, want the aura default", resp.Voice)
	}
}

func TestIssueTicketValidation(t *testing.T) {
	issuer := live.NewTicketIssuer("test-secret", time.Minute)
	svc := newLiveTestService(t, issuer, true)

	_, err := svc.IssueTicket(context.Background(), "student-1", &LiveTicketRequest{Voice: "growl"})
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		t.Fatalf("IssueTicket() with unknown voice error = %v, want validation errors", err)
	}
}

func TestIssueTicketUnconfigured(t *testing.T) {
	issuer := live.NewTicketIssuer("test-secret", time.Minute)

	svc := newLiveTestService(t, issuer, false)
	if _, err := svc.IssueTicket(context.Background(), "student-1", &LiveTicketRequest{}); !errors.Is(err, ErrLiveUnavailable) {
		t.Fatalf("IssueTicket() without provider error = %v, want ErrLiveUnavailable", err)
	}

	svc = newLiveTestService(t, nil, true)
	if _, err := svc.IssueTicket(context.Background(), "student-1", &LiveTicketRequest{}); !errors.Is(err, ErrLiveUnavailable) {
		t.Fatalf("IssueTicket() without issuer error = %v, want ErrLiveUnavailable", err)
	}
	if _, err := svc.VerifyTicket("anything"); !errors.Is(err, ErrLiveUnavailable) {
		t.Fatalf("VerifyTicket() without issuer error = %v, want ErrLiveUnavailable", err)
	}
}

func TestVerifyTicketRejectsForgeries(t *testing.T) {
	issuer := live.NewTicketIssuer("test-secret", time.Minute)
	svc := newLiveTestService(t, issuer, true)

	if _, err := svc.VerifyTicket("not-a-ticket"); !errors.Is(err, ErrLiveTicketInvalid) {
		t.Fatalf("VerifyTicket() with garbage error = %v, want ErrLiveTicketInvalid", err)
	}

	// A ticket signed with a different secret does not pass.
	other := live.NewTicketIssuer("other-secret", time.Minute)
	foreign, _, err := other.Issue("student-1", "aura")
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}
	if _, err := svc.VerifyTicket(foreign); !errors.Is(err, ErrLiveTicketInvalid) {
		t.Fatalf("VerifyTicket() with foreign ticket error = %v, want ErrLiveTicketInvalid", err)
	}
}

func TestPersistExchangesCreatesTranscriptLazily(t *testing.T) {
	chatSvc, db := newChatTestService(t)

	issuer := live.NewTicketIssuer("test-secret", time.Minute)
	pub := events.NewMockEventPublisher(testLogger())
	svc := NewLiveService(testLogger(), validator.New(), pub, issuer, &stubDialer{configured: true}, chatSvc, "").(*liveService)

	// A session with no finished exchanges leaves no transcript behind.
	empty := make(chan voiceExchange)
	close(empty)
	svc.persistExchanges("student-1", empty)

	var sessions int64
	if err := db.Model(&models.ChatSession{}).Where("user_id = ?", "student-1").Count(&sessions).Error; err != nil {
		t.Fatalf("failed to count sessions: %v", err)
	}
	if sessions != 0 {
		t.Fatalf("sessions after empty run = %d, want 0", sessions)
	}

	exchanges := make(chan voiceExchange, 4)
	exchanges <- voiceExchange{input: "What is gravity?", output: "Gravity pulls masses together."}
	exchanges <- voiceExchange{input: "And on the moon?", output: "Weaker, about one sixth."}
	close(exchanges)
	svc.persistExchanges("student-1", exchanges)

	var transcript models.ChatSession
	if err := db.First(&transcript, "user_id = ?", "student-1").Error; err != nil {
		t.Fatalf("failed to load transcript session: %v", err)
	}
	if transcript.Name != voiceSessionName {
		t.Errorf("transcript name = %q, want %q", transcript.Name, voiceSessionName)
	}

	messages, err := chatSvc.repo.Chat().ListMessages(context.Background(), nil, transcript.ID)
	if err != nil {
		t.Fatalf("ListMessages() error = %v", err)
	}
	if len(messages) != 4 {
		t.Fatalf("transcript messages = %d, want 4", len(messages))
	}
	if messages[0].Content != "What is gravity?" || messages[0].Role != models.MessageRoleUser {
		t.Errorf("messages[0] = %s %q, want the first voice input", messages[0].Role, messages[0].Content)
	}
	if messages[3].Content != "Weaker, about one sixth." || messages[3].Role != models.MessageRoleModel {
		t.Errorf("messages[3] = %s %q, want the last voice reply", messages[3].Role, messages[3].Content)
	}

	// Both exchanges share the one lazily created session.
	if err := db.Model(&models.ChatSession{}).Where("user_id = ?", "student-1").Count(&sessions).Error; err != nil {
		t.Fatalf("failed to count sessions: %v", err)
	}
	if sessions != 1 {
		t.Errorf("sessions = %d, want 1", sessions)
	}
}
