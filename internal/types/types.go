package types

import "time"

// Recording mode constants
const (
	ModeSingle      = "single"
	ModeDiarization = "diarization"
	ModeStreaming   = "streaming"
)

// Realtime event names
const (
	EventAudioBlob                   = "audio_blob"
	EventAnnotationAudioBlob         = "annotation_audio_blob"
	EventTranscriptionUpdate         = "transcription_update"
	EventStreamingDiarizationUpdate  = "streaming_diarization_update"
	EventAnnotationTranscriptionDone = "annotation_transcription_result"
	EventAnnotationError             = "annotation_error"
	EventDisconnect                  = "disconnect"
)

// Project groups annotations under a workspace directory
type Project struct {
	ID              string    `json:"id"`
	Name            string    `json:"project_name"`
	Description     string    `json:"description"`
	WorkspacePath   string    `json:"workspace_path"`
	CreatedAt       time.Time `json:"created_at"`
	AnnotationCount int       `json:"annotation_count"`
}

// Annotation is one recorded and transcribed audio sample
type Annotation struct {
	ID                 string    `json:"id"`
	ProjectID          string    `json:"project_id"`
	AudioFilename      string    `json:"audio_filename"`
	AudioPath          string    `json:"audio_path"`
	Transcript         string    `json:"transcript"`
	OriginalTranscript string    `json:"original_transcript"`
	RecordingMode      string    `json:"recording_mode"`
	Language           string    `json:"language"`
	Duration           float64   `json:"duration"`
	Deleted            bool      `json:"deleted"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// TranscriptionResult represents the decoded speech-to-text response
type TranscriptionResult struct {
	Text     string    `json:"text"`
	Language string    `json:"language,omitempty"`
	Duration float64   `json:"duration,omitempty"`
	Segments []Segment `json:"segments,omitempty"`
}

// Segment represents a timestamped, optionally speaker-labelled piece of transcript
type Segment struct {
	Speaker string  `json:"speaker,omitempty"`
	Start   float64 `json:"start"`
	End     float64 `json:"end"`
	Text    string  `json:"text"`
}
