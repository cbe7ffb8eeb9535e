package tts

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/codebuildervaibhav/voice-annotation/internal/config"
)

func TestGenerateAudio(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/audio/speech", r.URL.Path)
		require.Equal(t, "Bearer k", r.Header.Get("Authorization"))

		var params map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&params))
		require.Equal(t, map[string]string{
			"input":           "hello",
			"model":           "tts-1",
			"voice":           "alloy",
			"response_format": "mp3",
		}, params)

		w.Header().Set("Content-Type", "audio/mpeg")
		w.Write([]byte("ID3fake-mp3"))
	}))
	defer srv.Close()

	c := NewClient(config.TTSConfig{BaseURL: srv.URL, APIKey: "k", Model: "tts-1", Voice: "alloy"})
	body, err := c.GenerateAudio(t.Context(), "hello")
	require.NoError(t, err)
	defer body.Close()

	data, err := io.ReadAll(body)
	require.NoError(t, err)
	require.Equal(t, "ID3fake-mp3", string(data))
}

func TestGenerateAudioErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "quota exceeded", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := NewClient(config.TTSConfig{BaseURL: srv.URL, Model: "tts-1", Voice: "alloy"})
	_, err := c.GenerateAudio(t.Context(), "hello")
	require.ErrorContains(t, err, "429")
	require.ErrorContains(t, err, "quota exceeded")
}
