package live

import (
	"strings"
	"testing"
	"time"
)

func TestTicketRoundTrip(t *testing.T) {
	issuer := NewTicketIssuer("test-secret", 2*time.Minute)

	ticket, expires, err := issuer.Issue("user-1", "aura")
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}
	if time.Until(expires) <= 0 {
		t.Fatal("expected expiry in the future")
	}

	claims, err := issuer.Verify(ticket)
	if err != nil {
		t.Fatalf("Verify() error = %v", err)
	}
	if claims.UserID != "user-1" {
		t.Fatalf("UserID = %q, want user-1", claims.UserID)
	}
	if claims.Voice != "aura" {
		t.Fatalf("Voice = %q, want aura", claims.Voice)
	}
}

func TestTicketExpiryRejected(t *testing.T) {
	issuer := NewTicketIssuer("test-secret", time.Minute)
	issued := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	issuer.now = func() time.Time { return issued }

	ticket, _, err := issuer.Issue("user-1", "aura")
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}

	// move past the TTL
	issuer.now = func() time.Time { return issued.Add(2 * time.Minute) }
	if _, err := issuer.Verify(ticket); err == nil {
		t.Fatal("expected expired ticket to be rejected")
	}
}

func TestTicketWrongSecretRejected(t *testing.T) {
	ticket, _, err := NewTicketIssuer("secret-a", time.Minute).Issue("user-1", "aura")
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}

	if _, err := NewTicketIssuer("secret-b", time.Minute).Verify(ticket); err == nil {
		t.Fatal("expected ticket signed with another secret to be rejected")
	}
}

func TestTicketTamperedPayloadRejected(t *testing.T) {
	issuer := NewTicketIssuer("test-secret", time.Minute)
	ticket, _, err := issuer.Issue("user-1", "aura")
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}

	parts := strings.Split(ticket, ".")
	if len(parts) != 3 {
		t.Fatalf("unexpected token shape: %d parts", len(parts))
	}
	tampered := parts[0] + "." + parts[1] + "x." + parts[2]
	if _, err := issuer.Verify(tampered); err == nil {
		t.Fatal("expected tampered ticket to be rejected")
	}
}

func TestStateTerminalIsSticky(t *testing.T) {
	s := &Session{state: StateIdle}

	s.setState(StateConnecting)
	s.setState(StateConnected)
	if got := s.State(); got != StateConnected {
		t.Fatalf("state = %q, want connected", got)
	}

	s.setState(StateError)
	s.setState(StateDisconnected)
	if got := s.State(); got != StateError {
		t.Fatalf("terminal state moved to %q, want error to stick", got)
	}
}

func TestStateTerminal(t *testing.T) {
	for _, tt := range []struct {
		state State
		want  bool
	}{
		{StateIdle, false},
		{StateConnecting, false},
		{StateConnected, false},
		{StateError, true},
		{StateDisconnected, true},
	} {
		if got := tt.state.Terminal(); got != tt.want {
			t.Errorf("%q.Terminal() = %v, want %v", tt.state, got, tt.want)
		}
	}
}
