package live

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/sparkacademy/portal-service/internal/utils"
)

// State is the lifecycle phase of a live session
type State string

const (
	StateIdle         State = "idle"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	StateError        State = "error"
	StateDisconnected State = "disconnected"
)

// Terminal reports whether the session has ended
func (s State) Terminal() bool {
	return s == StateError || s == StateDisconnected
}

// FailureCategory classifies why a session ended abnormally
type FailureCategory string

const (
	FailureAuth     FailureCategory = "auth"
	FailureNetwork  FailureCategory = "network"
	FailureProvider FailureCategory = "provider"
)

// Frame is the JSON message exchanged with the browser client.
//
// Client to server: "audio" (base64 16 kHz PCM), "end".
// Server to client: "ready", "audio" (base64 24 kHz PCM with play_at_ms
// and duration_ms), "input_transcript", "output_transcript",
// "turn_complete" (with the accumulated exchange), "interrupted",
// "error", "closed".
type Frame struct {
	Type       string `json:"type"`
	Data       string `json:"data,omitempty"`
	PlayAtMS   int64  `json:"play_at_ms,omitempty"`
	DurationMS int64  `json:"duration_ms,omitempty"`
	Input      string `json:"input,omitempty"`
	Output     string `json:"output,omitempty"`
	Category   string `json:"category,omitempty"`
	Message    string `json:"message,omitempty"`
}

// ProviderDialer opens the upstream realtime connection
type ProviderDialer interface {
	DialLive(ctx context.Context, voice string) (*websocket.Conn, error)
}

// ExchangeSink receives each completed voice exchange (one user turn and
// the model's reply). Called from the provider read goroutine, so
// implementations should hand off quickly.
type ExchangeSink func(userID string, input string, output string)

const (
	writeWait        = 10 * time.Second
	pongWait         = 60 * time.Second
	pingPeriod       = 54 * time.Second
	maxFrameSize     = 512 * 1024
	playbackLead     = 150 * time.Millisecond
	outputSampleRate = 24000
)

// Session relays audio between one browser client and the provider's
// realtime endpoint. It owns both connections for its lifetime.
type Session struct {
	ID     string
	UserID string
	Voice  string

	client    *websocket.Conn
	dialer    ProviderDialer
	provider  *websocket.Conn
	scheduler *PlaybackScheduler
	logger    utils.Logger
	sink      ExchangeSink

	// Transcript buffers are only touched by the provider read goroutine.
	inputBuf  strings.Builder
	outputBuf strings.Builder

	stateMu sync.Mutex
	state   State

	// writeMu serializes all writes to the client connection
	writeMu sync.Mutex

	closeOnce sync.Once
	done      chan struct{}
}

// NewSession wraps an upgraded client connection. Run must be called to
// start relaying.
func NewSession(id, userID, voice string, client *websocket.Conn, dialer ProviderDialer, logger utils.Logger) *Session {
	return &Session{
		ID:        id,
		UserID:    userID,
		Voice:     voice,
		client:    client,
		dialer:    dialer,
		scheduler: NewPlaybackScheduler(outputSampleRate, playbackLead),
		logger:    logger.With("live_session_id", id, "user_id", userID),
		state:     StateIdle,
		done:      make(chan struct{}),
	}
}

// SetExchangeSink registers a receiver for completed exchanges. Must be
// called before Run.
func (s *Session) SetExchangeSink(sink ExchangeSink) {
	s.sink = sink
}

// State returns the current lifecycle phase
func (s *Session) State() State {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	return s.state
}

// setState advances the lifecycle. Terminal states are sticky.
func (s *Session) setState(next State) {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	if s.state.Terminal() {
		return
	}
	s.state = next
}

// Run drives the session until either side hangs up or fails. Teardown is
// deferred so every exit path closes both connections exactly once.
func (s *Session) Run(ctx context.Context) {
	defer s.teardown()

	s.setState(StateConnecting)
	s.logger.Info("Live session connecting")

	provider, err := s.dialer.DialLive(ctx, s.Voice)
	if err != nil {
		s.fail(FailureNetwork, "could not reach the live endpoint", err)
		return
	}
	s.provider = provider

	s.setState(StateConnected)
	s.logger.Info("Live session connected")
	if err := s.writeClient(Frame{Type: "ready"}); err != nil {
		s.fail(FailureNetwork, "client connection lost", err)
		return
	}

	go s.pingLoop()

	providerDone := make(chan error, 1)
	go func() { providerDone <- s.providerReadPump() }()

	clientDone := make(chan error, 1)
	go func() { clientDone <- s.clientReadPump() }()

	select {
	case <-ctx.Done():
		s.setState(StateDisconnected)
	case err := <-providerDone:
		if err != nil {
			s.fail(FailureProvider, "the live provider dropped the session", err)
			return
		}
		s.setState(StateDisconnected)
	case err := <-clientDone:
		if err != nil {
			s.fail(FailureNetwork, "client connection lost", err)
			return
		}
		s.setState(StateDisconnected)
	}

	_ = s.writeClient(Frame{Type: "closed"})
	s.logger.Info("Live session ended")
}

// clientReadPump forwards client audio to the provider until the client
// hangs up. A nil return means a clean close.
func (s *Session) clientReadPump() error {
	s.client.SetReadLimit(maxFrameSize)
	_ = s.client.SetReadDeadline(time.Now().Add(pongWait))
	s.client.SetPongHandler(func(string) error {
		return s.client.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := s.client.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			select {
			case <-s.done:
				return nil
			default:
			}
			return err
		}

		var frame Frame
		if err := json.Unmarshal(raw, &frame); err != nil {
			s.logger.Warn("Ignoring malformed client frame", "error", err)
			continue
		}

		switch frame.Type {
		case "audio":
			pcm, err := base64.StdEncoding.DecodeString(frame.Data)
			if err != nil {
				s.logger.Warn("Ignoring undecodable audio frame", "error", err)
				continue
			}
			if err := s.writeProvider(Frame{Type: "audio", Data: base64.StdEncoding.EncodeToString(pcm)}); err != nil {
				return fmt.Errorf("forward audio: %w", err)
			}
		case "end":
			_ = s.writeProvider(Frame{Type: "end"})
			return nil
		default:
			s.logger.Warn("Ignoring unknown client frame", "frame_type", frame.Type)
		}
	}
}

// providerReadPump relays provider output to the client, stamping audio
// chunks with gapless play-at times. A nil return means a clean close.
func (s *Session) providerReadPump() error {
	for {
		var frame Frame
		if err := s.provider.ReadJSON(&frame); err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			select {
			case <-s.done:
				return nil
			default:
			}
			return err
		}

		switch frame.Type {
		case "audio":
			pcm, err := base64.StdEncoding.DecodeString(frame.Data)
			if err != nil {
				s.logger.Warn("Dropping undecodable provider audio", "error", err)
				continue
			}
			playAt, duration := s.scheduler.Schedule(pcm)
			out := Frame{
				Type:       "audio",
				Data:       frame.Data,
				PlayAtMS:   playAt.UnixMilli(),
				DurationMS: duration.Milliseconds(),
			}
			if err := s.writeClient(out); err != nil {
				return nil // client side reported separately
			}
		case "input_transcript":
			s.inputBuf.WriteString(frame.Data)
			if err := s.writeClient(frame); err != nil {
				return nil
			}
		case "output_transcript":
			s.outputBuf.WriteString(frame.Data)
			if err := s.writeClient(frame); err != nil {
				return nil
			}
		case "turn_complete":
			s.scheduler.Flush()
			input := s.inputBuf.String()
			output := s.outputBuf.String()
			s.inputBuf.Reset()
			s.outputBuf.Reset()
			if s.sink != nil && (input != "" || output != "") {
				s.sink(s.UserID, input, output)
			}
			if err := s.writeClient(Frame{Type: "turn_complete", Input: input, Output: output}); err != nil {
				return nil
			}
		case "interrupted":
			// A barge-in drops the partial turn; nothing is persisted
			s.scheduler.Flush()
			s.inputBuf.Reset()
			s.outputBuf.Reset()
			if err := s.writeClient(Frame{Type: "interrupted"}); err != nil {
				return nil
			}
		case "error":
			return fmt.Errorf("provider error: %s", frame.Message)
		default:
			// future provider frame types are ignored
		}
	}
}

func (s *Session) pingLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			s.writeMu.Lock()
			_ = s.client.SetWriteDeadline(time.Now().Add(writeWait))
			err := s.client.WriteMessage(websocket.PingMessage, nil)
			s.writeMu.Unlock()
			if err != nil {
				return
			}
		}
	}
}

func (s *Session) writeClient(frame Frame) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	_ = s.client.SetWriteDeadline(time.Now().Add(writeWait))
	return s.client.WriteJSON(frame)
}

func (s *Session) writeProvider(frame Frame) error {
	_ = s.provider.SetWriteDeadline(time.Now().Add(writeWait))
	return s.provider.WriteJSON(frame)
}

// fail reports the error to the client and moves the session to its
// terminal error state
func (s *Session) fail(category FailureCategory, message string, cause error) {
	s.logger.Error("Live session failed",
		"category", string(category),
		"error", cause)

	_ = s.writeClient(Frame{
		Type:     "error",
		Category: string(category),
		Message:  message,
	})
	s.setState(StateError)
}

// teardown closes both connections exactly once
func (s *Session) teardown() {
	s.closeOnce.Do(func() {
		close(s.done)

		s.writeMu.Lock()
		_ = s.client.SetWriteDeadline(time.Now().Add(writeWait))
		_ = s.client.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		s.writeMu.Unlock()

		_ = s.client.Close()
		if s.provider != nil {
			_ = s.provider.Close()
		}

		s.setState(StateDisconnected)
	})
}
