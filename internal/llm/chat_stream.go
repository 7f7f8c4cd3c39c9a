package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// ChatTurn is one message in a conversation sent to the chat model
type ChatTurn struct {
	Role     string
	Content  string
	ImageURL string
}

// Citation is a grounding source attached to a completed reply
type Citation struct {
	Title string `json:"title"`
	URL   string `json:"url"`
}

// StreamEvent is one parsed chunk of a streaming chat completion.
// Done is set exactly once, on the final event.
type StreamEvent struct {
	Delta     string
	Citations []Citation
	Done      bool
}

// ChatStream reads server-sent events from a streaming chat completion
type ChatStream struct {
	body    io.ReadCloser
	scanner *bufio.Scanner
	done    bool
}

// ChatStream opens a streaming chat completion for the given conversation.
// The caller must drain the stream with Recv and then Close it.
func (c *Client) ChatStream(ctx context.Context, turns []ChatTurn) (*ChatStream, error) {
	body := map[string]any{
		"model":    c.chatModel,
		"messages": buildChatMessages(turns),
		"stream":   true,
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+chatCompletionsPath, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		defer resp.Body.Close()
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("chat stream request failed, status=%d body=%s", resp.StatusCode, truncateText(string(respBody), 400))
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	return &ChatStream{body: resp.Body, scanner: scanner}, nil
}

// Recv returns the next event from the stream. After the event with Done
// set has been returned, further calls return io.EOF.
func (s *ChatStream) Recv() (StreamEvent, error) {
	if s.done {
		return StreamEvent{}, io.EOF
	}

	for s.scanner.Scan() {
		line := strings.TrimSpace(s.scanner.Text())
		if line == "" || strings.HasPrefix(line, ":") {
			continue
		}
		data, ok := strings.CutPrefix(line, "data:")
		if !ok {
			continue
		}
		data = strings.TrimSpace(data)
		if data == "[DONE]" {
			s.done = true
			return StreamEvent{Done: true}, nil
		}

		var chunk struct {
			Choices []struct {
				Delta struct {
					Content string `json:"content"`
				} `json:"delta"`
				FinishReason string `json:"finish_reason"`
			} `json:"choices"`
			Citations []Citation `json:"citations"`
		}
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			return StreamEvent{}, fmt.Errorf("parse stream chunk failed: %w", err)
		}

		event := StreamEvent{Citations: chunk.Citations}
		if len(chunk.Choices) > 0 {
			event.Delta = chunk.Choices[0].Delta.Content
		}
		return event, nil
	}

	if err := s.scanner.Err(); err != nil {
		return StreamEvent{}, err
	}

	// Stream ended without a [DONE] marker; treat as completion
	s.done = true
	return StreamEvent{Done: true}, nil
}

// Close releases the underlying response body
func (s *ChatStream) Close() error {
	return s.body.Close()
}

func buildChatMessages(turns []ChatTurn) []map[string]any {
	messages := make([]map[string]any, 0, len(turns))
	for _, turn := range turns {
		role := turn.Role
		if role == "model" {
			role = "assistant"
		}

		if strings.TrimSpace(turn.ImageURL) == "" {
			messages = append(messages, map[string]any{
				"role":    role,
				"content": turn.Content,
			})
			continue
		}

		messages = append(messages, map[string]any{
			"role": role,
			"content": []map[string]any{
				{
					"type": "text",
					"text": turn.Content,
				},
				{
					"type": "image_url",
					"image_url": map[string]string{
						"url": turn.ImageURL,
					},
				},
			},
		})
	}
	return messages
}
