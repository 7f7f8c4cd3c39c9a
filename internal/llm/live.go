package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/gorilla/websocket"
)

var ErrLiveCapabilityUnavailable = errors.New("live session endpoint not configured")

// DialLive opens the realtime voice websocket with the provider.
// The returned connection speaks the provider's JSON frame protocol;
// internal/live owns reading and writing it.
func (c *Client) DialLive(ctx context.Context, voice string) (*websocket.Conn, error) {
	if strings.TrimSpace(c.liveURL) == "" {
		return nil, ErrLiveCapabilityUnavailable
	}

	endpoint := c.liveURL + "?model=" + url.QueryEscape(c.chatModel)
	if strings.TrimSpace(voice) != "" {
		endpoint += "&voice=" + url.QueryEscape(voice)
	}

	header := http.Header{}
	header.Set("Authorization", "Bearer "+c.apiKey)

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, endpoint, header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("live dial failed, status=%d: %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("live dial failed: %w", err)
	}
	return conn, nil
}
