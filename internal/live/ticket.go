package live

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// TicketClaims is the short-lived grant to open a live websocket
type TicketClaims struct {
	UserID string `json:"uid"`
	Voice  string `json:"voice"`
	jwt.RegisteredClaims
}

// TicketIssuer mints and verifies the tokens that authorize a websocket
// upgrade. Browsers cannot attach Authorization headers to websocket
// requests, so the ticket rides the query string instead.
type TicketIssuer struct {
	secret []byte
	ttl    time.Duration

	// now is replaceable in tests
	now func() time.Time
}

// NewTicketIssuer creates an issuer with the given signing secret and TTL
func NewTicketIssuer(secret string, ttl time.Duration) *TicketIssuer {
	if ttl <= 0 {
		ttl = 2 * time.Minute
	}
	return &TicketIssuer{
		secret: []byte(secret),
		ttl:    ttl,
		now:    time.Now,
	}
}

// Issue mints a ticket for the user and returns it with its expiry
func (t *TicketIssuer) Issue(userID string, voice string) (string, time.Time, error) {
	if len(t.secret) == 0 {
		return "", time.Time{}, errors.New("ticket secret not configured")
	}

	expires := t.now().Add(t.ttl)
	claims := TicketClaims{
		UserID: userID,
		Voice:  voice,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.New().String(),
			IssuedAt:  jwt.NewNumericDate(t.now()),
			ExpiresAt: jwt.NewNumericDate(expires),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign live ticket: %w", err)
	}
	return signed, expires, nil
}

// Verify checks the signature and expiry and returns the claims
func (t *TicketIssuer) Verify(ticket string) (*TicketClaims, error) {
	parsed, err := jwt.ParseWithClaims(ticket, &TicketClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
		}
		return t.secret, nil
	}, jwt.WithTimeFunc(func() time.Time { return t.now() }))
	if err != nil {
		return nil, fmt.Errorf("invalid live ticket: %w", err)
	}

	claims, ok := parsed.Claims.(*TicketClaims)
	if !ok || !parsed.Valid {
		return nil, errors.New("invalid live ticket")
	}
	return claims, nil
}
