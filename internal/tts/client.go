package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/codebuildervaibhav/voice-annotation/internal/config"
)

// Client calls an OpenAI compatible /v1/audio/speech endpoint
type Client struct {
	URL    string
	Model  string
	Voice  string
	APIKey string
	Client *http.Client
}

func NewClient(cfg config.TTSConfig) *Client {
	return &Client{
		URL:    strings.TrimSuffix(cfg.BaseURL, "/"),
		Model:  cfg.Model,
		Voice:  cfg.Voice,
		APIKey: cfg.APIKey,
		Client: &http.Client{},
	}
}

// GenerateAudio requests MP3 speech for msg. The caller must close the
// returned body.
func (c *Client) GenerateAudio(ctx context.Context, msg string) (io.ReadCloser, error) {
	params := map[string]interface{}{
		"input":           msg,
		"model":           c.Model,
		"voice":           c.Voice,
		"response_format": "mp3",
	}

	body, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("marshal speech generation params: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.URL+"/v1/audio/speech", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build speech generation request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	if c.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.APIKey)
	}

	resp, err := c.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send speech generation request: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		return nil, fmt.Errorf("speech generation failed with status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	return resp.Body, nil
}
