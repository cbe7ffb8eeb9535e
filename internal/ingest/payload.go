package ingest

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"unicode/utf8"

	"github.com/codebuildervaibhav/voice-annotation/internal/types"
)

// AudioBlob is the payload of an audio_blob event
type AudioBlob struct {
	Audio                string `json:"audio"`
	Text                 string `json:"text"`
	Language             string `json:"language"`
	NoiseCancellation    bool   `json:"noise_cancellation"`
	Diarization          bool   `json:"diarization"`
	StreamingDiarization bool   `json:"streaming_diarization"`
}

// AnnotationBlob is the payload of an annotation_audio_blob event
type AnnotationBlob struct {
	Audio             string `json:"audio"`
	Language          string `json:"language"`
	RecordingMode     string `json:"recording_mode"`
	NoiseCancellation bool   `json:"noise_cancellation"`
}

// TranscriptionUpdate answers a question asked by voice or text
type TranscriptionUpdate struct {
	Question    string          `json:"question"`
	Answer      string          `json:"answer"`
	Diarization []types.Segment `json:"diarization,omitempty"`
}

// StreamingUpdate reports the segments of one streamed blob
type StreamingUpdate struct {
	Segments      []types.Segment `json:"segments"`
	Transcript    string          `json:"transcript"`
	TotalSegments int             `json:"total_segments"`
}

// AnnotationResult carries the transcript of a recording to be annotated.
// WavAudio is the base64 canonical WAV the client saves with the annotation.
type AnnotationResult struct {
	Transcript    string          `json:"transcript"`
	Language      string          `json:"language"`
	RecordingMode string          `json:"recording_mode"`
	Duration      float64         `json:"duration"`
	Segments      []types.Segment `json:"segments,omitempty"`
	WavAudio      string          `json:"wav_audio"`
}

// ErrorPayload is emitted when handling an event fails
type ErrorPayload struct {
	Text  string `json:"text,omitempty"`
	Error string `json:"error"`
}

// decodeAudioBlob accepts a JSON object, a JSON string holding the object, or
// a JSON string of bare base64 text.
func decodeAudioBlob(raw json.RawMessage) (AudioBlob, error) {
	var blob AudioBlob
	raw = bytes.TrimSpace(raw)

	if len(raw) > 0 && raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return blob, fmt.Errorf("decode payload string: %w", err)
		}
		if err := json.Unmarshal([]byte(s), &blob); err == nil {
			return blob, nil
		}
		// Bare base64 text; undecodable input leaves the question empty.
		if text, err := base64.StdEncoding.DecodeString(s); err == nil && utf8.Valid(text) {
			blob.Text = string(text)
		}
		return blob, nil
	}

	if err := json.Unmarshal(raw, &blob); err != nil {
		return blob, fmt.Errorf("decode payload: %w", err)
	}
	return blob, nil
}

func decodeAnnotationBlob(raw json.RawMessage) (AnnotationBlob, error) {
	var blob AnnotationBlob
	raw = bytes.TrimSpace(raw)

	if len(raw) > 0 && raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return blob, fmt.Errorf("decode payload string: %w", err)
		}
		raw = []byte(s)
	}
	if err := json.Unmarshal(raw, &blob); err != nil {
		return blob, fmt.Errorf("decode payload: %w", err)
	}
	return blob, nil
}

func decodeBase64(s string) ([]byte, error) {
	data, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("invalid base64 audio: %w", err)
	}
	return data, nil
}
