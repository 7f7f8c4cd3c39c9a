package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

var (
	ErrInvalidResponse = errors.New("invalid provider response")
)

const (
	chatCompletionsPath  = "/chat/completions"
	imageGenerationsPath = "/images/generations"
	audioSpeechPath      = "/audio/speech"
	videoGenerationsPath = "/videos/generations"
)

// Config holds connection settings for the generative model provider
type Config struct {
	BaseURL    string
	APIKey     string
	ChatModel  string
	ImageModel string
	VideoModel string
	TTSModel   string
	LiveURL    string
	Timeout    time.Duration
}

// Client talks to an OpenAI-compatible generative model provider
type Client struct {
	baseURL    string
	apiKey     string
	chatModel  string
	imageModel string
	videoModel string
	ttsModel   string
	liveURL    string
	timeout    time.Duration
	httpClient *http.Client
}

// NewClient validates the config and fills in defaults
func NewClient(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("provider api key is required")
	}
	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL == "" {
		return nil, errors.New("provider base url is required")
	}
	chatModel := strings.TrimSpace(cfg.ChatModel)
	if chatModel == "" {
		chatModel = "spark-tutor-1"
	}
	imageModel := strings.TrimSpace(cfg.ImageModel)
	if imageModel == "" {
		imageModel = "spark-image-1"
	}
	videoModel := strings.TrimSpace(cfg.VideoModel)
	if videoModel == "" {
		videoModel = "spark-video-1"
	}
	ttsModel := strings.TrimSpace(cfg.TTSModel)
	if ttsModel == "" {
		ttsModel = "spark-tts-1"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 90 * time.Second
	}

	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     strings.TrimSpace(cfg.APIKey),
		chatModel:  chatModel,
		imageModel: imageModel,
		videoModel: videoModel,
		ttsModel:   ttsModel,
		liveURL:    strings.TrimSpace(cfg.LiveURL),
		timeout:    cfg.Timeout,
		httpClient: &http.Client{},
	}, nil
}

// ImageModel returns the configured image model name
func (c *Client) ImageModel() string { return c.imageModel }

// LiveConfigured reports whether a realtime voice endpoint is set
func (c *Client) LiveConfigured() bool { return c.liveURL != "" }

// GenerateJSON asks the chat model for a structured JSON reply and
// unmarshals the payload into dest. Code fences and prose around the
// JSON object are tolerated.
func (c *Client) GenerateJSON(ctx context.Context, systemPrompt string, userPrompt string, maxTokens int, dest interface{}) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if maxTokens <= 0 {
		maxTokens = 2000
	}

	body := map[string]any{
		"model": c.chatModel,
		"messages": []map[string]any{
			{
				"role":    "system",
				"content": systemPrompt,
			},
			{
				"role":    "user",
				"content": userPrompt,
			},
		},
		"temperature": 0.7,
		"max_tokens":  maxTokens,
		"response_format": map[string]any{
			"type": "json_object",
		},
	}

	raw, err := c.doJSON(ctx, chatCompletionsPath, body)
	if err != nil {
		return err
	}
	content, err := extractAssistantContent(raw)
	if err != nil {
		return err
	}

	if err := json.Unmarshal([]byte(extractJSONPayload(content)), dest); err != nil {
		return fmt.Errorf("parse structured response failed: %w; raw=%s", err, truncateText(content, 240))
	}
	return nil
}

func (c *Client) doJSON(ctx context.Context, path string, payload any) ([]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("provider request failed, status=%d body=%s", resp.StatusCode, truncateText(string(respBody), 400))
	}
	return respBody, nil
}

func (c *Client) doGet(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("provider request failed, status=%d body=%s", resp.StatusCode, truncateText(string(respBody), 400))
	}
	return respBody, nil
}

func extractAssistantContent(raw []byte) (string, error) {
	var resp struct {
		Choices []struct {
			Message struct {
				Content any `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", ErrInvalidResponse
	}
	content := resp.Choices[0].Message.Content
	switch v := content.(type) {
	case string:
		return strings.TrimSpace(v), nil
	case []any:
		parts := make([]string, 0, len(v))
		for _, item := range v {
			m, ok := item.(map[string]any)
			if !ok {
				continue
			}
			if text, ok := m["text"].(string); ok {
				parts = append(parts, text)
			}
		}
		if len(parts) == 0 {
			return "", ErrInvalidResponse
		}
		return strings.TrimSpace(strings.Join(parts, "\n")), nil
	default:
		return "", ErrInvalidResponse
	}
}

// extractJSONPayload strips markdown fences and surrounding prose so the
// remaining text is the outermost JSON object.
func extractJSONPayload(content string) string {
	trimmed := strings.TrimSpace(content)
	if trimmed == "" {
		return "{}"
	}
	if strings.HasPrefix(trimmed, "```") {
		trimmed = strings.TrimPrefix(trimmed, "```json")
		trimmed = strings.TrimPrefix(trimmed, "```")
		trimmed = strings.TrimSuffix(trimmed, "```")
		trimmed = strings.TrimSpace(trimmed)
	}
	start := strings.Index(trimmed, "{")
	end := strings.LastIndex(trimmed, "}")
	if start >= 0 && end >= start {
		return trimmed[start : end+1]
	}
	return trimmed
}

func truncateText(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
