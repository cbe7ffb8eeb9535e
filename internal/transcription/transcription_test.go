package transcription

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/go-audio/audio"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codebuildervaibhav/voice-annotation/internal/config"
	"github.com/codebuildervaibhav/voice-annotation/internal/types"
)

// synthWAV returns a 16 kHz mono 16-bit WAV of the given length
func synthWAV(t *testing.T, seconds float64) []byte {
	t.Helper()
	n := int(seconds * 16000)
	data := make([]int, n)
	for i := range data {
		data[i] = (i % 200) * 100
	}
	wav, err := EncodeWAV(&audio.IntBuffer{
		Format:         &audio.Format{SampleRate: 16000, NumChannels: 1},
		SourceBitDepth: 16,
		Data:           data,
	})
	require.NoError(t, err)
	return wav
}

func TestDetectContainer(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		ext  string
		ok   bool
	}{
		{"webm", []byte{0x1A, 0x45, 0xDF, 0xA3, 0x01}, ContainerWebM, true},
		{"wav", []byte("RIFF\x00\x00\x00\x00WAVEfmt "), ContainerWAV, true},
		{"ogg", []byte("OggS\x00\x02"), ContainerOgg, true},
		{"text", []byte("what is the weather"), "", false},
		{"empty", nil, "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ext, ok := DetectContainer(tt.data)
			assert.Equal(t, tt.ext, ext)
			assert.Equal(t, tt.ok, ok)
		})
	}
}

func TestConverterArgs(t *testing.T) {
	c := NewConverter(config.AudioConfig{FFmpegPath: "ffmpeg", SampleRate: 16000, Channels: 1, TempDir: t.TempDir()})

	plain := c.args("in.webm", "out.wav", false)
	assert.Equal(t, []string{"-i", "in.webm", "-ar", "16000", "-ac", "1", "-c:a", "pcm_s16le", "-y", "out.wav"}, plain)

	denoised := c.args("in.webm", "out.wav", true)
	assert.Equal(t, []string{"-i", "in.webm", "-af", "afftdn"}, denoised[:4])
}

func TestConverterMissingBinary(t *testing.T) {
	c := NewConverter(config.AudioConfig{
		FFmpegPath: "/nonexistent/ffmpeg-binary",
		SampleRate: 16000,
		Channels:   1,
		TempDir:    t.TempDir(),
	})
	_, err := c.ConvertBytes(context.Background(), []byte("data"), "webm", false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ffmpeg failed")
}

func TestValidateAudioFormat(t *testing.T) {
	assert.True(t, ValidateAudioFormat("clip.MP3"))
	assert.True(t, ValidateAudioFormat("clip.webm"))
	assert.False(t, ValidateAudioFormat("notes.txt"))
}

func TestDurationAndSplit(t *testing.T) {
	wav := synthWAV(t, 12.5)
	assert.True(t, IsWAV(wav))

	d, err := Duration(wav)
	require.NoError(t, err)
	assert.InDelta(t, 12.5, d, 0.01)

	chunks, err := SplitWAV(wav, 5)
	require.NoError(t, err)
	require.Len(t, chunks, 3)
	assert.Equal(t, 0.0, chunks[0].Start)
	assert.InDelta(t, 5.0, chunks[0].End, 0.001)
	assert.InDelta(t, 10.0, chunks[2].Start, 0.001)
	assert.InDelta(t, 12.5, chunks[2].End, 0.001)

	last, err := Duration(chunks[2].Data)
	require.NoError(t, err)
	assert.InDelta(t, 2.5, last, 0.01)

	_, err = SplitWAV(wav, 0)
	assert.Error(t, err)
}

func TestClientTranscribe(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/audio/transcriptions", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		require.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, "whisper-1", r.FormValue("model"))
		assert.Equal(t, "hi", r.FormValue("language"))

		f, hdr, err := r.FormFile("file")
		require.NoError(t, err)
		defer f.Close()
		assert.Equal(t, "audio.wav", hdr.Filename)
		assert.Equal(t, "audio/wav", hdr.Header.Get("Content-Type"))
		body, _ := io.ReadAll(f)
		assert.Equal(t, "wav-bytes", string(body))

		json.NewEncoder(w).Encode(map[string]any{"text": "  namaste  "})
	}))
	defer srv.Close()

	c := NewClient(config.TranscriptionConfig{BaseURL: srv.URL + "/", APIKey: "secret", Model: "whisper-1", TimeoutSeconds: 5}, nil)
	res, err := c.Transcribe(context.Background(), []byte("wav-bytes"), "hi")
	require.NoError(t, err)
	assert.Equal(t, "namaste", res.Text)
	assert.Equal(t, "hi", res.Language)
}

func TestClientTranscribeErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"invalid api key"}`, http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := NewClient(config.TranscriptionConfig{BaseURL: srv.URL, Model: "whisper-1"}, nil)
	_, err := c.Transcribe(context.Background(), []byte("x"), "en")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")
	assert.Contains(t, err.Error(), "invalid api key")
}

type fakeTranscriber struct {
	mu    sync.Mutex
	calls int
	texts []string
	err   error
}

func (f *fakeTranscriber) Transcribe(_ context.Context, _ []byte, _ string) (*types.TranscriptionResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	text := ""
	if f.calls < len(f.texts) {
		text = f.texts[f.calls]
	}
	f.calls++
	return &types.TranscriptionResult{Text: text}, nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestDiarizeAlternatesLabelsAndSkipsEmpty(t *testing.T) {
	ft := &fakeTranscriber{texts: []string{"one", "two", "  ", "four"}}
	cfg := config.DiarizationConfig{WindowSeconds: 10, StreamingWindowSeconds: 5, Concurrency: 1}
	d := NewDiarizer(context.Background(), ft, cfg, discardLogger())

	segments, err := d.DiarizeStream(context.Background(), synthWAV(t, 18), "en")
	require.NoError(t, err)
	assert.Equal(t, 4, ft.calls)
	require.Len(t, segments, 3)

	assert.Equal(t, SpeakerA, segments[0].Speaker)
	assert.Equal(t, "one", segments[0].Text)
	assert.Equal(t, SpeakerB, segments[1].Speaker)
	assert.Equal(t, SpeakerB, segments[2].Speaker, "chunk 3 keeps its index based label")
	assert.InDelta(t, 15.0, segments[2].Start, 0.001)

	assert.Equal(t, "SPEAKER_00: one\nSPEAKER_01: two\nSPEAKER_01: four", FormatTranscript(segments))
}

func TestDiarizeFallbackWhenSpeakerModelUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	ft := &fakeTranscriber{texts: []string{"a", "b"}}
	cfg := config.DiarizationConfig{WindowSeconds: 10, StreamingWindowSeconds: 5, Concurrency: 2, SpeakerModelURL: srv.URL}
	d := NewDiarizer(context.Background(), ft, cfg, discardLogger())

	segments, err := d.Diarize(context.Background(), synthWAV(t, 15), "en")
	require.NoError(t, err)
	require.Len(t, segments, 2)
	for _, s := range segments {
		assert.Equal(t, SpeakerA, s.Speaker)
	}
}

func TestDiarizeChunkError(t *testing.T) {
	ft := &fakeTranscriber{err: errors.New("upstream down")}
	cfg := config.DiarizationConfig{WindowSeconds: 10, StreamingWindowSeconds: 5, Concurrency: 1}
	d := NewDiarizer(context.Background(), ft, cfg, discardLogger())

	_, err := d.Diarize(context.Background(), synthWAV(t, 3), "en")
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "upstream down"))
}
