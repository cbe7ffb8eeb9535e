package llm

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/codebuildervaibhav/voice-annotation/internal/config"
)

func TestPrompt(t *testing.T) {
	tests := []struct {
		lang string
		want string
	}{
		{"en", "Answer ONLY in English: why?"},
		{"hi", "उत्तर केवल हिंदी में दें: why?"},
		{"es", "Responde SOLO en español: why?"},
		{"fr", "Answer in fr: why?"},
	}
	for _, tt := range tests {
		t.Run(tt.lang, func(t *testing.T) {
			require.Equal(t, tt.want, Prompt("why?", tt.lang))
		})
	}
}

// chatServer answers every chat completion with content and records the
// last user message it saw.
func chatServer(t *testing.T, content string, lastPrompt *string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		var req struct {
			Model    string `json:"model"`
			Messages []struct {
				Role    string `json:"role"`
				Content any    `json:"content"`
			} `json:"messages"`
		}
		if err := json.Unmarshal(body, &req); err == nil && len(req.Messages) > 0 {
			if s, ok := req.Messages[len(req.Messages)-1].Content.(string); ok {
				*lastPrompt = s
			}
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"id":      "chatcmpl-1",
			"object":  "chat.completion",
			"created": 1700000000,
			"model":   req.Model,
			"choices": []map[string]any{{
				"index":         0,
				"message":       map[string]any{"role": "assistant", "content": content},
				"finish_reason": "stop",
			}},
			"usage": map[string]any{"prompt_tokens": 5, "completion_tokens": 2, "total_tokens": 7},
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestProviders(t *testing.T) {
	for _, provider := range []string{ProviderOpenAI, ProviderLangChain} {
		t.Run(provider, func(t *testing.T) {
			var prompt string
			srv := chatServer(t, " Paris ", &prompt)

			a, err := New(config.LLMConfig{
				Provider: provider,
				BaseURL:  srv.URL + "/v1",
				APIKey:   "test-key",
				Model:    "gpt-4o-mini",
			}, nil)
			require.NoError(t, err)

			answer, err := a.Answer(t.Context(), "capital of France?", "en")
			require.NoError(t, err)
			require.Equal(t, "Paris", answer)
			require.Equal(t, "Answer ONLY in English: capital of France?", prompt)
		})
	}
}

func TestOpenAIUpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"error":{"message":"boom","type":"server_error"}}`))
	}))
	defer srv.Close()

	a := NewOpenAI(config.LLMConfig{BaseURL: srv.URL + "/v1", APIKey: "k", Model: "gpt-4o-mini"}, nil)
	_, err := a.Answer(t.Context(), "q", "en")
	require.Error(t, err)
}

func TestUnknownProvider(t *testing.T) {
	_, err := New(config.LLMConfig{Provider: "bard", Model: "x"}, nil)
	require.Error(t, err)
}
