package transcription

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/codebuildervaibhav/voice-annotation/internal/config"
	"github.com/codebuildervaibhav/voice-annotation/internal/types"
)

const (
	SpeakerA = "SPEAKER_00"
	SpeakerB = "SPEAKER_01"
)

// Labeler assigns a speaker label to the chunk at index
type Labeler func(index int) string

// AlternatingLabels labels chunks SPEAKER_00, SPEAKER_01, SPEAKER_00, ...
func AlternatingLabels(index int) string {
	if index%2 == 0 {
		return SpeakerA
	}
	return SpeakerB
}

// FixedLabel labels every chunk SPEAKER_00
func FixedLabel(int) string {
	return SpeakerA
}

// Diarizer splits a recording into fixed windows and transcribes each window
// independently. Labels come from chunk position, not from the voice.
type Diarizer struct {
	transcriber     Transcriber
	label           Labeler
	concurrency     int
	window          float64
	streamingWindow float64
}

// NewDiarizer builds a diarizer. When a speaker model URL is configured it is
// probed once and an unreachable model selects the single speaker fallback.
func NewDiarizer(ctx context.Context, t Transcriber, cfg config.DiarizationConfig, logger *slog.Logger) *Diarizer {
	d := &Diarizer{
		transcriber:     t,
		label:           AlternatingLabels,
		concurrency:     cfg.Concurrency,
		window:          cfg.WindowSeconds,
		streamingWindow: cfg.StreamingWindowSeconds,
	}
	if d.concurrency < 1 {
		d.concurrency = 1
	}

	if cfg.SpeakerModelURL != "" {
		if err := probeSpeakerModel(ctx, cfg.SpeakerModelURL); err != nil {
			logger.Warn("Speaker model unavailable, labelling all chunks as one speaker",
				"url", cfg.SpeakerModelURL, "error", err)
			d.label = FixedLabel
		} else {
			logger.Info("Speaker model reachable", "url", cfg.SpeakerModelURL)
		}
	}
	return d
}

// WithLabeler replaces the labelling policy
func (d *Diarizer) WithLabeler(l Labeler) *Diarizer {
	d.label = l
	return d
}

func probeSpeakerModel(ctx context.Context, url string) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	resp.Body.Close()
	if resp.StatusCode >= 400 {
		return fmt.Errorf("speaker model responded with status %d", resp.StatusCode)
	}
	return nil
}

// Diarize segments a full recording using the regular window
func (d *Diarizer) Diarize(ctx context.Context, wavData []byte, language string) ([]types.Segment, error) {
	return d.diarize(ctx, wavData, language, d.window)
}

// DiarizeStream segments one streamed blob using the shorter streaming window
func (d *Diarizer) DiarizeStream(ctx context.Context, wavData []byte, language string) ([]types.Segment, error) {
	return d.diarize(ctx, wavData, language, d.streamingWindow)
}

func (d *Diarizer) diarize(ctx context.Context, wavData []byte, language string, window float64) ([]types.Segment, error) {
	chunks, err := SplitWAV(wavData, window)
	if err != nil {
		return nil, err
	}

	texts := make([]string, len(chunks))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.concurrency)
	for i, chunk := range chunks {
		g.Go(func() error {
			res, err := d.transcriber.Transcribe(gctx, chunk.Data, language)
			if err != nil {
				return fmt.Errorf("transcribe chunk %d: %w", chunk.Index, err)
			}
			texts[i] = strings.TrimSpace(res.Text)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	segments := make([]types.Segment, 0, len(chunks))
	for i, chunk := range chunks {
		if texts[i] == "" {
			continue
		}
		segments = append(segments, types.Segment{
			Speaker: d.label(chunk.Index),
			Start:   chunk.Start,
			End:     chunk.End,
			Text:    texts[i],
		})
	}
	return segments, nil
}

// FormatTranscript renders segments as "SPEAKER: text" lines
func FormatTranscript(segments []types.Segment) string {
	lines := make([]string, 0, len(segments))
	for _, s := range segments {
		lines = append(lines, s.Speaker+": "+s.Text)
	}
	return strings.Join(lines, "\n")
}
