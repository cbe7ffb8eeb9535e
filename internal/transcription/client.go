package transcription

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	"github.com/codebuildervaibhav/voice-annotation/internal/config"
	"github.com/codebuildervaibhav/voice-annotation/internal/metrics"
	"github.com/codebuildervaibhav/voice-annotation/internal/types"
)

// Transcriber turns a canonical WAV recording into text
type Transcriber interface {
	Transcribe(ctx context.Context, wavData []byte, language string) (*types.TranscriptionResult, error)
}

// Client calls an OpenAI compatible /v1/audio/transcriptions endpoint
type Client struct {
	URL     string
	APIKey  string
	Model   string
	Client  *http.Client
	Metrics *metrics.Metrics
}

// NewClient creates a client from configuration. A zero timeout leaves
// requests unbounded.
func NewClient(cfg config.TranscriptionConfig, m *metrics.Metrics) *Client {
	return &Client{
		URL:     strings.TrimSuffix(cfg.BaseURL, "/"),
		APIKey:  cfg.APIKey,
		Model:   cfg.Model,
		Client:  &http.Client{Timeout: cfg.Timeout()},
		Metrics: m,
	}
}

type response struct {
	Text     string  `json:"text"`
	Language string  `json:"language"`
	Duration float64 `json:"duration"`
	Segments []struct {
		Start float64 `json:"start"`
		End   float64 `json:"end"`
		Text  string  `json:"text"`
	} `json:"segments"`
}

func (c *Client) Transcribe(ctx context.Context, wavData []byte, language string) (*types.TranscriptionResult, error) {
	start := time.Now()
	result, err := c.transcribe(ctx, wavData, language)
	c.Metrics.RecordTranscription(err, time.Since(start))
	return result, err
}

func (c *Client) transcribe(ctx context.Context, wavData []byte, language string) (*types.TranscriptionResult, error) {
	var b bytes.Buffer
	multipartWriter := multipart.NewWriter(&b)

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", `form-data; name="file"; filename="audio.wav"`)
	header.Set("Content-Type", "audio/wav")
	part, err := multipartWriter.CreatePart(header)
	if err != nil {
		return nil, fmt.Errorf("creating multipart form file: %w", err)
	}
	if _, err := part.Write(wavData); err != nil {
		return nil, fmt.Errorf("write data to multipart writer: %w", err)
	}

	if err := multipartWriter.WriteField("model", c.Model); err != nil {
		return nil, fmt.Errorf("write multipart request field: %w", err)
	}
	if language != "" {
		if err := multipartWriter.WriteField("language", language); err != nil {
			return nil, fmt.Errorf("write multipart request field: %w", err)
		}
	}
	if err := multipartWriter.Close(); err != nil {
		return nil, fmt.Errorf("multipart writer close: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.URL+"/v1/audio/transcriptions", &b)
	if err != nil {
		return nil, fmt.Errorf("new transcription request: %w", err)
	}
	req.Header.Set("Content-Type", multipartWriter.FormDataContentType())
	if c.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.APIKey)
	}

	resp, err := c.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("transcription request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("transcription failed with status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var r response
	if err := json.Unmarshal(body, &r); err != nil {
		return nil, fmt.Errorf("unmarshal body: %w", err)
	}

	result := &types.TranscriptionResult{
		Text:     strings.TrimSpace(r.Text),
		Language: r.Language,
		Duration: r.Duration,
	}
	for _, seg := range r.Segments {
		result.Segments = append(result.Segments, types.Segment{
			Start: seg.Start,
			End:   seg.End,
			Text:  strings.TrimSpace(seg.Text),
		})
	}
	if result.Language == "" {
		result.Language = language
	}
	return result, nil
}
