// Package ingest runs the realtime audio pipeline: container detection,
// conversion to canonical WAV, transcription, optional chunked diarization
// and answer generation.
package ingest

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"unicode/utf8"

	"github.com/codebuildervaibhav/voice-annotation/internal/llm"
	"github.com/codebuildervaibhav/voice-annotation/internal/metrics"
	"github.com/codebuildervaibhav/voice-annotation/internal/session"
	"github.com/codebuildervaibhav/voice-annotation/internal/transcription"
	"github.com/codebuildervaibhav/voice-annotation/internal/types"
)

const (
	answerErrorText  = "Error generating answer."
	processErrorText = "Error processing audio."
)

var errUnsupportedAudio = errors.New("unsupported audio format")

// Converter produces a canonical WAV file from any supported container
type Converter interface {
	ToWAV(ctx context.Context, inputPath, outputPath string, denoise bool) error
}

// Diarizer labels fixed windows of a recording
type Diarizer interface {
	Diarize(ctx context.Context, wavData []byte, language string) ([]types.Segment, error)
	DiarizeStream(ctx context.Context, wavData []byte, language string) ([]types.Segment, error)
}

// Pipeline handles the audio events of realtime sessions
type Pipeline struct {
	Converter   Converter
	Transcriber transcription.Transcriber
	Diarizer    Diarizer
	Answerer    llm.Answerer
	Sessions    *session.Store
	TempDir     string
	Persist     bool
	Logger      *slog.Logger
	Metrics     *metrics.Metrics
}

// HandleAudioBlob processes one audio_blob event and returns the event to
// emit back to the session.
func (p *Pipeline) HandleAudioBlob(ctx context.Context, sid string, raw json.RawMessage) (string, any) {
	event, payload, err := p.handleAudioBlob(ctx, sid, raw)
	if err != nil {
		p.Logger.Error("Error handling audio_blob", "session", sid, "error", err)
		p.Metrics.RecordEventError(types.EventAudioBlob)
		return types.EventTranscriptionUpdate, ErrorPayload{Text: processErrorText, Error: err.Error()}
	}
	return event, payload
}

func (p *Pipeline) handleAudioBlob(ctx context.Context, sid string, raw json.RawMessage) (string, any, error) {
	blob, err := decodeAudioBlob(raw)
	if err != nil {
		return "", nil, err
	}
	if blob.Language == "" {
		blob.Language = "en"
	}

	question := blob.Text
	var wavData []byte
	if blob.Audio != "" {
		data, err := decodeBase64(blob.Audio)
		if err != nil {
			return "", nil, err
		}

		wavData, err = p.canonicalWAV(ctx, sid, data, blob.NoiseCancellation)
		switch {
		case errors.Is(err, errUnsupportedAudio) && utf8.Valid(data):
			question = string(data)
		case err != nil:
			return "", nil, err
		}
	}

	if blob.StreamingDiarization && wavData != nil {
		return p.streamingUpdate(ctx, sid, wavData, blob.Language)
	}

	update := TranscriptionUpdate{Question: question}
	if wavData != nil {
		if blob.Diarization {
			segments, err := p.Diarizer.Diarize(ctx, wavData, blob.Language)
			if err != nil {
				return "", nil, fmt.Errorf("diarization: %w", err)
			}
			update.Diarization = segments
			update.Question = transcription.FormatTranscript(segments)
		} else {
			result, err := p.Transcriber.Transcribe(ctx, wavData, blob.Language)
			if err != nil {
				return "", nil, fmt.Errorf("transcription: %w", err)
			}
			update.Question = result.Text
		}
	}

	p.Logger.Debug("Received question", "session", sid, "language", blob.Language, "question", update.Question)

	if update.Question != "" {
		answer, err := p.Answerer.Answer(ctx, update.Question, blob.Language)
		if err != nil {
			p.Logger.Error("Answer generation failed", "session", sid, "error", err)
			answer = answerErrorText
		}
		update.Answer = answer
	}

	return types.EventTranscriptionUpdate, update, nil
}

func (p *Pipeline) streamingUpdate(ctx context.Context, sid string, wavData []byte, language string) (string, any, error) {
	segments, err := p.Diarizer.DiarizeStream(ctx, wavData, language)
	if err != nil {
		return "", nil, fmt.Errorf("streaming diarization: %w", err)
	}
	duration, err := transcription.Duration(wavData)
	if err != nil {
		return "", nil, err
	}

	shifted, total := p.Sessions.Append(sid, segments, duration)
	return types.EventStreamingDiarizationUpdate, StreamingUpdate{
		Segments:      shifted,
		Transcript:    transcription.FormatTranscript(p.Sessions.Segments(sid)),
		TotalSegments: total,
	}, nil
}

// HandleAnnotationBlob processes one annotation_audio_blob event
func (p *Pipeline) HandleAnnotationBlob(ctx context.Context, sid string, raw json.RawMessage) (string, any) {
	result, err := p.handleAnnotationBlob(ctx, sid, raw)
	if err != nil {
		p.Logger.Error("Error handling annotation_audio_blob", "session", sid, "error", err)
		p.Metrics.RecordEventError(types.EventAnnotationAudioBlob)
		return types.EventAnnotationError, ErrorPayload{Error: err.Error()}
	}
	return types.EventAnnotationTranscriptionDone, result
}

func (p *Pipeline) handleAnnotationBlob(ctx context.Context, sid string, raw json.RawMessage) (*AnnotationResult, error) {
	blob, err := decodeAnnotationBlob(raw)
	if err != nil {
		return nil, err
	}
	if blob.Audio == "" {
		return nil, errors.New("no audio data provided")
	}
	if blob.Language == "" {
		blob.Language = "en"
	}
	if blob.RecordingMode == "" {
		blob.RecordingMode = types.ModeSingle
	}

	data, err := decodeBase64(blob.Audio)
	if err != nil {
		return nil, err
	}
	wavData, err := p.canonicalWAV(ctx, sid, data, blob.NoiseCancellation)
	if err != nil {
		return nil, err
	}

	duration, err := transcription.Duration(wavData)
	if err != nil {
		return nil, err
	}

	result := &AnnotationResult{
		Language:      blob.Language,
		RecordingMode: blob.RecordingMode,
		Duration:      duration,
		WavAudio:      base64.StdEncoding.EncodeToString(wavData),
	}

	if blob.RecordingMode == types.ModeDiarization {
		segments, err := p.Diarizer.Diarize(ctx, wavData, blob.Language)
		if err != nil {
			return nil, fmt.Errorf("diarization: %w", err)
		}
		result.Segments = segments
		result.Transcript = transcription.FormatTranscript(segments)
		return result, nil
	}

	res, err := p.Transcriber.Transcribe(ctx, wavData, blob.Language)
	if err != nil {
		return nil, fmt.Errorf("transcription: %w", err)
	}
	result.Transcript = res.Text
	return result, nil
}

// canonicalWAV writes data to <temp>/<sid>.<ext>, converts it to
// <temp>/<sid>.wav and returns the WAV bytes. Both files are removed unless
// uploads are persisted.
func (p *Pipeline) canonicalWAV(ctx context.Context, sid string, data []byte, denoise bool) ([]byte, error) {
	ext, ok := transcription.DetectContainer(data)
	if !ok {
		return nil, errUnsupportedAudio
	}

	if err := os.MkdirAll(p.TempDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create temp dir: %w", err)
	}

	inputPath := filepath.Join(p.TempDir, sid+"."+ext)
	if ext == transcription.ContainerWAV {
		inputPath = filepath.Join(p.TempDir, sid+".src.wav")
	}
	wavPath := filepath.Join(p.TempDir, sid+".wav")

	if !p.Persist {
		defer p.remove(sid, inputPath)
		defer p.remove(sid, wavPath)
	}

	if err := os.WriteFile(inputPath, data, 0644); err != nil {
		return nil, fmt.Errorf("failed to save upload: %w", err)
	}
	if err := p.Converter.ToWAV(ctx, inputPath, wavPath, denoise); err != nil {
		return nil, err
	}

	wavData, err := os.ReadFile(wavPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read converted audio: %w", err)
	}
	p.Logger.Debug("Converted upload", "session", sid, "container", ext, "bytes", len(wavData))
	return wavData, nil
}

func (p *Pipeline) remove(sid, path string) {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		p.Logger.Error("Could not delete temp file", "session", sid, "path", path, "error", err)
	}
}

// Disconnect drops the accumulated state of a session
func (p *Pipeline) Disconnect(sid string) {
	p.Sessions.Clear(sid)
}
