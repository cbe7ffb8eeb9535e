// Package llm generates answers to transcribed questions with a hosted
// language model.
package llm

import (
	"context"
	"fmt"
	"strings"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/codebuildervaibhav/voice-annotation/internal/config"
	"github.com/codebuildervaibhav/voice-annotation/internal/metrics"
)

const (
	ProviderOpenAI    = "openai"
	ProviderLangChain = "langchain"
)

// Answerer answers a question in the requested language
type Answerer interface {
	Answer(ctx context.Context, question, language string) (string, error)
}

// Prompt pins the answer language in front of the question
func Prompt(question, language string) string {
	switch language {
	case "en", "":
		return "Answer ONLY in English: " + question
	case "hi":
		return "उत्तर केवल हिंदी में दें: " + question
	case "es":
		return "Responde SOLO en español: " + question
	default:
		return fmt.Sprintf("Answer in %s: %s", language, question)
	}
}

// New builds the answerer for the configured provider
func New(cfg config.LLMConfig, m *metrics.Metrics) (Answerer, error) {
	switch cfg.Provider {
	case ProviderOpenAI, "":
		return NewOpenAI(cfg, m), nil
	case ProviderLangChain:
		return NewLangChain(cfg, m)
	}
	return nil, fmt.Errorf("unknown llm provider %q", cfg.Provider)
}

// OpenAI answers through the chat completions API
type OpenAI struct {
	client  oai.Client
	model   string
	metrics *metrics.Metrics
}

func NewOpenAI(cfg config.LLMConfig, m *metrics.Metrics) *OpenAI {
	reqOpts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.BaseURL))
	}

	return &OpenAI{
		client:  oai.NewClient(reqOpts...),
		model:   cfg.Model,
		metrics: m,
	}
}

func (p *OpenAI) Answer(ctx context.Context, question, language string) (string, error) {
	resp, err := p.client.Chat.Completions.New(ctx, oai.ChatCompletionNewParams{
		Model: shared.ChatModel(p.model),
		Messages: []oai.ChatCompletionMessageParamUnion{
			oai.UserMessage(Prompt(question, language)),
		},
	})
	if err == nil && len(resp.Choices) == 0 {
		err = fmt.Errorf("empty choices in response")
	}
	p.metrics.RecordLLM(err)
	if err != nil {
		return "", fmt.Errorf("openai: chat completion: %w", err)
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

// LangChain answers through a langchaingo model
type LangChain struct {
	llm     llms.Model
	metrics *metrics.Metrics
}

func NewLangChain(cfg config.LLMConfig, m *metrics.Metrics) (*LangChain, error) {
	opts := []openai.Option{
		openai.WithToken(cfg.APIKey),
		openai.WithModel(cfg.Model),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
	}

	model, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("langchain: create openai llm: %w", err)
	}
	return &LangChain{llm: model, metrics: m}, nil
}

func (l *LangChain) Answer(ctx context.Context, question, language string) (string, error) {
	answer, err := llms.GenerateFromSinglePrompt(ctx, l.llm, Prompt(question, language))
	l.metrics.RecordLLM(err)
	if err != nil {
		return "", fmt.Errorf("langchain: generate: %w", err)
	}
	return strings.TrimSpace(answer), nil
}
