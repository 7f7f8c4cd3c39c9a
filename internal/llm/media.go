package llm

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

var (
	ErrVideoCapabilityUnavailable = errors.New("video generation not configured")
)

// GenerateImage renders a new image from the prompt and returns its bytes
func (c *Client) GenerateImage(ctx context.Context, prompt string, size string) ([]byte, error) {
	if strings.TrimSpace(size) == "" {
		size = "1024x1024"
	}

	body := map[string]any{
		"model":           c.imageModel,
		"prompt":          strings.TrimSpace(prompt),
		"n":               1,
		"response_format": "b64_json",
		"size":            size,
	}

	raw, err := c.doJSON(ctx, imageGenerationsPath, body)
	if err != nil {
		return nil, err
	}
	return parseGeneratedImage(raw)
}

// EditImage renders a variation of an existing image guided by the prompt.
// The source must be a URL the provider can fetch.
func (c *Client) EditImage(ctx context.Context, prompt string, sourceURL string) ([]byte, error) {
	body := map[string]any{
		"model":           c.imageModel,
		"prompt":          strings.TrimSpace(prompt),
		"image":           strings.TrimSpace(sourceURL),
		"n":               1,
		"response_format": "b64_json",
	}

	raw, err := c.doJSON(ctx, imageGenerationsPath, body)
	if err != nil {
		return nil, err
	}
	return parseGeneratedImage(raw)
}

func parseGeneratedImage(raw []byte) ([]byte, error) {
	var resp struct {
		Data []struct {
			B64JSON string `json:"b64_json"`
			URL     string `json:"url"`
		} `json:"data"`
		Error *struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("parse image generation response failed: %w", err)
	}
	if resp.Error != nil {
		return nil, fmt.Errorf("image generation failed: code=%s message=%s", resp.Error.Code, resp.Error.Message)
	}
	if len(resp.Data) == 0 {
		return nil, ErrInvalidResponse
	}

	encoded := strings.TrimSpace(resp.Data[0].B64JSON)
	if encoded == "" {
		return nil, ErrInvalidResponse
	}
	decoded, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("decode image payload failed: %w", err)
	}
	return decoded, nil
}

// SynthesizeSpeech turns text into audio and returns the bytes with their
// content type. The format is what the live session plays back (raw PCM).
func (c *Client) SynthesizeSpeech(ctx context.Context, text string, voice string) ([]byte, string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	body := map[string]any{
		"model":           c.ttsModel,
		"input":           strings.TrimSpace(text),
		"voice":           voice,
		"response_format": "pcm",
		"sample_rate":     24000,
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+audioSpeechPath, strings.NewReader(string(payload)))
	if err != nil {
		return nil, "", err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, "", err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, "", fmt.Errorf("speech synthesis failed, status=%d body=%s", resp.StatusCode, truncateText(string(respBody), 400))
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "audio/pcm"
	}
	return respBody, contentType, nil
}

// VideoOperation is the provider-side state of a long-running video render
type VideoOperation struct {
	ID       string
	Status   string
	VideoURL string
	Error    string
}

// Terminal reports whether the operation has finished, in either direction
func (op VideoOperation) Terminal() bool {
	return op.Status == "succeeded" || op.Status == "failed"
}

// StartVideoGeneration kicks off a render and returns the operation id to poll
func (c *Client) StartVideoGeneration(ctx context.Context, prompt string) (string, error) {
	if strings.TrimSpace(c.videoModel) == "" {
		return "", ErrVideoCapabilityUnavailable
	}

	body := map[string]any{
		"model":  c.videoModel,
		"prompt": strings.TrimSpace(prompt),
	}

	raw, err := c.doJSON(ctx, videoGenerationsPath, body)
	if err != nil {
		return "", err
	}

	var resp struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return "", fmt.Errorf("parse video generation response failed: %w", err)
	}
	if strings.TrimSpace(resp.ID) == "" {
		return "", ErrInvalidResponse
	}
	return resp.ID, nil
}

// GetVideoOperation polls the state of a running render
func (c *Client) GetVideoOperation(ctx context.Context, operationID string) (VideoOperation, error) {
	raw, err := c.doGet(ctx, videoGenerationsPath+"/"+url.PathEscape(operationID))
	if err != nil {
		return VideoOperation{}, err
	}

	var resp struct {
		ID     string `json:"id"`
		Status string `json:"status"`
		Output struct {
			URL string `json:"url"`
		} `json:"output"`
		Error *struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return VideoOperation{}, fmt.Errorf("parse video operation response failed: %w", err)
	}

	op := VideoOperation{
		ID:       resp.ID,
		Status:   strings.ToLower(strings.TrimSpace(resp.Status)),
		VideoURL: strings.TrimSpace(resp.Output.URL),
	}
	if resp.Error != nil {
		op.Error = resp.Error.Message
	}
	if op.ID == "" {
		op.ID = operationID
	}
	return op, nil
}

// DownloadVideo fetches the rendered video bytes from the provider URL
func (c *Client) DownloadVideo(ctx context.Context, videoURL string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, videoURL, nil)
	if err != nil {
		return nil, "", err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, "", fmt.Errorf("video download failed, status=%d body=%s", resp.StatusCode, truncateText(string(respBody), 200))
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", err
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "video/mp4"
	}
	return data, contentType, nil
}
