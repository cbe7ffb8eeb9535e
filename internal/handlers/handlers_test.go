package handlers

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/go-audio/audio"
	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codebuildervaibhav/voice-annotation/internal/database"
	"github.com/codebuildervaibhav/voice-annotation/internal/ingest"
	"github.com/codebuildervaibhav/voice-annotation/internal/metrics"
	"github.com/codebuildervaibhav/voice-annotation/internal/queue"
	"github.com/codebuildervaibhav/voice-annotation/internal/session"
	"github.com/codebuildervaibhav/voice-annotation/internal/storage"
	"github.com/codebuildervaibhav/voice-annotation/internal/transcription"
	"github.com/codebuildervaibhav/voice-annotation/internal/types"
)

func synthWAV(t *testing.T, seconds float64) []byte {
	t.Helper()
	wav, err := transcription.EncodeWAV(&audio.IntBuffer{
		Format:         &audio.Format{SampleRate: 16000, NumChannels: 1},
		SourceBitDepth: 16,
		Data:           make([]int, int(seconds*16000)),
	})
	require.NoError(t, err)
	return wav
}

type fakeConverter struct {
	wav  []byte
	exts []string
	err  error
}

func (f *fakeConverter) ConvertBytes(_ context.Context, _ []byte, ext string, _ bool) ([]byte, error) {
	f.exts = append(f.exts, ext)
	if f.err != nil {
		return nil, f.err
	}
	return f.wav, nil
}

type fakeSpeech struct {
	text string
	err  error
}

func (f *fakeSpeech) GenerateAudio(_ context.Context, text string) (io.ReadCloser, error) {
	f.text = text
	if f.err != nil {
		return nil, f.err
	}
	return io.NopCloser(strings.NewReader("mp3-bytes")), nil
}

type fakeExports struct {
	jobs []*queue.Job
}

func (f *fakeExports) Enqueue(job *queue.Job) bool {
	f.jobs = append(f.jobs, job)
	return true
}

type fakeAnswerer struct{}

func (fakeAnswerer) Answer(_ context.Context, question, _ string) (string, error) {
	return "answer to " + question, nil
}

type fixture struct {
	app       *fiber.App
	repo      *database.SQLiteRepository
	root      string
	converter *fakeConverter
	speech    *fakeSpeech
	exports   *fakeExports
	registry  *prometheus.Registry
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	repo, err := database.NewSQLiteRepository(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })

	root := t.TempDir()
	store := storage.NewLocalStorage(root)
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	f := &fixture{
		repo:      repo,
		root:      root,
		converter: &fakeConverter{wav: synthWAV(t, 2)},
		speech:    &fakeSpeech{},
		exports:   &fakeExports{},
		registry:  reg,
	}

	pipeline := &ingest.Pipeline{
		Answerer: fakeAnswerer{},
		Sessions: session.NewStore(100),
		TempDir:  t.TempDir(),
		Logger:   logger,
		Metrics:  m,
	}

	f.app = fiber.New(fiber.Config{ErrorHandler: ErrorHandler(logger)})
	routes := &Routes{
		Projects:    NewProjectHandler(repo, "workspaces"),
		Annotations: NewAnnotationHandler(repo, store, f.converter, f.exports, 10, logger, m),
		Audio:       NewAudioHandler(repo, store, time.Hour),
		TTS:         NewTTSHandler(f.speech),
		Realtime:    NewRealtimeHandler(pipeline, logger, m),
		Repo:        repo,
		Store:       store,
		Gatherer:    reg,
		Logger:      logger,
	}
	routes.Register(f.app)
	return f
}

func (f *fixture) do(t *testing.T, req *http.Request) (*http.Response, []byte) {
	t.Helper()
	resp, err := f.app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, body
}

func (f *fixture) doJSON(t *testing.T, method, target string, body any) (*http.Response, []byte) {
	t.Helper()
	var r io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		r = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, target, r)
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	return f.do(t, req)
}

func (f *fixture) createProject(t *testing.T, name string) types.Project {
	t.Helper()
	resp, body := f.doJSON(t, http.MethodPost, "/api/projects", map[string]string{
		"project_name": name,
		"description":  "test project",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))

	var p types.Project
	require.NoError(t, json.Unmarshal(body, &p))
	return p
}

func countFiles(t *testing.T, root string) int {
	t.Helper()
	n := 0
	err := filepath.Walk(root, func(_ string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() {
			n++
		}
		return nil
	})
	require.NoError(t, err)
	return n
}

func TestHealthAndInfo(t *testing.T) {
	f := newFixture(t)

	resp, body := f.doJSON(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "healthy")

	resp, body = f.doJSON(t, http.MethodGet, "/api/info", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var info map[string]map[string]any
	require.NoError(t, json.Unmarshal(body, &info))
	assert.Equal(t, "sqlite", info["database"]["database_mode"])
	assert.Equal(t, storage.ModeLocal, info["storage"]["storage_mode"])
}

func TestProjects(t *testing.T) {
	f := newFixture(t)

	p := f.createProject(t, "My Project")
	assert.Equal(t, "My Project", p.Name)
	assert.Equal(t, "workspaces/My_Project", p.WorkspacePath)

	resp, body := f.doJSON(t, http.MethodPost, "/api/projects", map[string]string{"project_name": "My Project"})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Contains(t, string(body), "Project name already exists")

	resp, body = f.doJSON(t, http.MethodPost, "/api/projects", map[string]string{"project_name": "  "})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, string(body), "Project name is required")

	resp, body = f.doJSON(t, http.MethodGet, "/api/projects", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var projects []types.Project
	require.NoError(t, json.Unmarshal(body, &projects))
	require.Len(t, projects, 1)
	assert.Equal(t, p.ID, projects[0].ID)
	assert.Equal(t, 0, projects[0].AnnotationCount)
}

func TestCreateAnnotationUnknownProject(t *testing.T) {
	f := newFixture(t)

	resp, body := f.doJSON(t, http.MethodPost, "/api/projects/999/annotations", map[string]any{
		"audio":      base64.StdEncoding.EncodeToString(synthWAV(t, 1)),
		"transcript": "hello",
	})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Contains(t, string(body), "Project not found")
	assert.Zero(t, countFiles(t, f.root))

	resp, _ = f.doJSON(t, http.MethodGet, "/api/projects/999/annotations", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestAnnotationLifecycle(t *testing.T) {
	f := newFixture(t)
	p := f.createProject(t, "Lifecycle")
	wav := synthWAV(t, 3)

	resp, body := f.doJSON(t, http.MethodPost, "/api/projects/"+p.ID+"/annotations", map[string]any{
		"audio":          base64.StdEncoding.EncodeToString(wav),
		"transcript":     "first take",
		"recording_mode": types.ModeSingle,
		"language":       "en",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))

	var a types.Annotation
	require.NoError(t, json.Unmarshal(body, &a))
	assert.Equal(t, "first take", a.Transcript)
	assert.Equal(t, "first take", a.OriginalTranscript)
	assert.True(t, strings.HasPrefix(a.AudioFilename, "single_"))
	assert.InDelta(t, 3.0, a.Duration, 0.01)
	assert.Empty(t, f.converter.exts, "wav input is stored without conversion")
	require.Len(t, f.exports.jobs, 1)
	assert.Equal(t, "Lifecycle", f.exports.jobs[0].ProjectName)

	stored, err := os.ReadFile(filepath.Join(f.root, "workspaces", "Lifecycle", a.AudioFilename))
	require.NoError(t, err)
	assert.Equal(t, wav, stored)

	resp, body = f.do(t, httptest.NewRequest(http.MethodGet, "/audio/"+a.AudioFilename, nil))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "audio/wav", resp.Header.Get(fiber.HeaderContentType))
	assert.Equal(t, wav, body)

	resp, _ = f.doJSON(t, http.MethodPost, "/api/annotations/"+a.ID+"/transcript", map[string]string{"transcript": "edited"})
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body = f.doJSON(t, http.MethodGet, "/api/projects/"+p.ID+"/annotations", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var list []types.Annotation
	require.NoError(t, json.Unmarshal(body, &list))
	require.Len(t, list, 1)
	assert.Equal(t, "edited", list[0].Transcript)
	assert.Equal(t, "first take", list[0].OriginalTranscript)

	resp, body = f.doJSON(t, http.MethodGet, "/api/projects", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var projects []types.Project
	require.NoError(t, json.Unmarshal(body, &projects))
	assert.Equal(t, 1, projects[0].AnnotationCount)

	resp, body = f.doJSON(t, http.MethodDelete, "/api/annotations/"+a.ID, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"success":true}`, string(body))

	resp, body = f.doJSON(t, http.MethodGet, "/api/projects/"+p.ID+"/annotations", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	list = nil
	require.NoError(t, json.Unmarshal(body, &list))
	assert.Empty(t, list)

	resp, _ = f.doJSON(t, http.MethodDelete, "/api/annotations/424242", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, _ = f.doJSON(t, http.MethodPost, "/api/annotations/424242/transcript", map[string]string{"transcript": "x"})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestCreateAnnotationValidation(t *testing.T) {
	f := newFixture(t)
	p := f.createProject(t, "Validation")
	target := "/api/projects/" + p.ID + "/annotations"
	audioB64 := base64.StdEncoding.EncodeToString(synthWAV(t, 1))

	tests := []struct {
		name string
		body map[string]any
		want string
	}{
		{"missing transcript", map[string]any{"audio": audioB64}, "Missing transcript"},
		{"missing audio", map[string]any{"transcript": "x"}, "Missing audio"},
		{"bad base64", map[string]any{"audio": "!!!", "transcript": "x"}, "Invalid base64 audio"},
		{"bad mode", map[string]any{"audio": audioB64, "transcript": "x", "recording_mode": "karaoke"}, "Unknown recording mode"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, body := f.doJSON(t, http.MethodPost, target, tt.body)
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
			assert.Contains(t, string(body), tt.want)
		})
	}
	assert.Zero(t, countFiles(t, f.root))
}

func TestCreateAnnotationMultipartConvertsAudio(t *testing.T) {
	f := newFixture(t)
	p := f.createProject(t, "Upload")

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile("file", "take.webm")
	require.NoError(t, err)
	_, err = part.Write([]byte{0x1A, 0x45, 0xDF, 0xA3, 0x9F, 0x42})
	require.NoError(t, err)
	require.NoError(t, w.WriteField("transcript", "spoken words"))
	require.NoError(t, w.WriteField("recording_mode", types.ModeDiarization))
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/projects/"+p.ID+"/annotations", &buf)
	req.Header.Set(fiber.HeaderContentType, w.FormDataContentType())
	resp, body := f.do(t, req)
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))

	var a types.Annotation
	require.NoError(t, json.Unmarshal(body, &a))
	assert.Equal(t, types.ModeDiarization, a.RecordingMode)
	assert.Equal(t, []string{"webm"}, f.converter.exts)
	assert.InDelta(t, 2.0, a.Duration, 0.01)

	stored, err := os.ReadFile(filepath.Join(f.root, "workspaces", "Upload", a.AudioFilename))
	require.NoError(t, err)
	assert.Equal(t, f.converter.wav, stored)
}

func TestCreateAnnotationMalformedMultipart(t *testing.T) {
	f := newFixture(t)
	p := f.createProject(t, "Malformed")

	body := "--XYZ\r\nContent-Disposition: form-data; name=\"transcript\"\r\n\r\nhello"
	req := httptest.NewRequest(http.MethodPost, "/api/projects/"+p.ID+"/annotations", strings.NewReader(body))
	req.Header.Set(fiber.HeaderContentType, "multipart/form-data; boundary=XYZ")
	resp, respBody := f.do(t, req)

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.JSONEq(t, `{"error":"Invalid request body"}`, string(respBody))
	assert.Zero(t, countFiles(t, f.root))
}

func TestCreateAnnotationConversionFailure(t *testing.T) {
	f := newFixture(t)
	p := f.createProject(t, "Broken")
	f.converter.err = errors.New("ffmpeg exploded")

	resp, body := f.doJSON(t, http.MethodPost, "/api/projects/"+p.ID+"/annotations", map[string]any{
		"audio":      base64.StdEncoding.EncodeToString([]byte{0x1A, 0x45, 0xDF, 0xA3}),
		"transcript": "x",
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, string(body), "Audio conversion failed")
	assert.Zero(t, countFiles(t, f.root))
}

func TestServeAudioRejectsTraversal(t *testing.T) {
	f := newFixture(t)

	for _, name := range []string{"..%2Fsecret.wav", "..secret.wav", "a%5Cb.wav"} {
		resp, body := f.do(t, httptest.NewRequest(http.MethodGet, "/audio/"+name, nil))
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, name)
		assert.Contains(t, string(body), "Invalid filename")
	}

	resp, body := f.do(t, httptest.NewRequest(http.MethodGet, "/audio/missing.wav", nil))
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Contains(t, string(body), "Audio file not found")
}

func TestTTS(t *testing.T) {
	f := newFixture(t)

	req := httptest.NewRequest(http.MethodPost, "/tts", strings.NewReader("text="))
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationForm)
	resp, body := f.do(t, req)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.JSONEq(t, `{"error":"No text provided"}`, string(body))

	req = httptest.NewRequest(http.MethodPost, "/tts", strings.NewReader("text=hello+there"))
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationForm)
	resp, body = f.do(t, req)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "audio/mpeg", resp.Header.Get(fiber.HeaderContentType))
	assert.Equal(t, "mp3-bytes", string(body))
	assert.Equal(t, "hello there", f.speech.text)

	f.speech.err = errors.New("upstream down")
	req = httptest.NewRequest(http.MethodPost, "/tts", strings.NewReader("text=hi"))
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationForm)
	resp, body = f.do(t, req)
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.JSONEq(t, `{"error":"Internal server error"}`, string(body))
}

func TestMetricsEndpoint(t *testing.T) {
	f := newFixture(t)
	f.createProject(t, "Metrics")

	resp, body := f.do(t, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "voice_realtime_sessions")
}

func TestWebSocketRequiresUpgrade(t *testing.T) {
	f := newFixture(t)

	resp, _ := f.do(t, httptest.NewRequest(http.MethodGet, "/ws", nil))
	assert.Equal(t, http.StatusUpgradeRequired, resp.StatusCode)
}

func TestRealtimeTextQuestion(t *testing.T) {
	f := newFixture(t)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go func() { _ = f.app.Listener(ln) }()
	t.Cleanup(func() { _ = f.app.Shutdown() })

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, fmt.Sprintf("ws://%s/ws", ln.Addr()), nil)
	require.NoError(t, err)
	defer conn.Close(websocket.StatusNormalClosure, "done")

	require.NoError(t, wsjson.Write(ctx, conn, map[string]any{
		"event": types.EventAudioBlob,
		"data":  map[string]any{"text": "what time is it", "language": "en"},
	}))

	var reply struct {
		Event string                     `json:"event"`
		Data  ingest.TranscriptionUpdate `json:"data"`
	}
	require.NoError(t, wsjson.Read(ctx, conn, &reply))
	assert.Equal(t, types.EventTranscriptionUpdate, reply.Event)
	assert.Equal(t, "what time is it", reply.Data.Question)
	assert.Equal(t, "answer to what time is it", reply.Data.Answer)

	require.NoError(t, wsjson.Write(ctx, conn, map[string]any{
		"event": types.EventAnnotationAudioBlob,
		"data":  map[string]any{"language": "en"},
	}))

	var failure struct {
		Event string              `json:"event"`
		Data  ingest.ErrorPayload `json:"data"`
	}
	require.NoError(t, wsjson.Read(ctx, conn, &failure))
	assert.Equal(t, types.EventAnnotationError, failure.Event)
	assert.Contains(t, failure.Data.Error, "no audio data provided")
}
