package openai

import (
	"context"
	"fmt"

	"github.com/sashabaranov/go-openai"

	"conversekit/core"
)

// Config holds the configuration for the OpenAI-compatible backend.
type Config struct {
	APIKey      string `json:"-"`
	BaseURL     string `json:"base_url"` // empty = api.openai.com
	Model       string `json:"model"`
	MaxTokens   int    `json:"max_tokens"`
	Temperature float32 `json:"temperature"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Model:       openai.GPT4oMini,
		MaxTokens:   1024,
		Temperature: 0.7,
	}
}

// LLMService is an alternative text generation backend speaking the
// OpenAI chat API. The composed prompt already embeds the persona and
// serialized history, so each request is a single user message.
type LLMService struct {
	client *openai.Client
	config Config
	logger *core.Logger
}

func NewLLMService(cfg Config, logger *core.Logger) (*LLMService, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openai: API key is required")
	}
	if cfg.Model == "" {
		cfg.Model = DefaultConfig().Model
	}
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	return &LLMService{
		client: openai.NewClientWithConfig(clientCfg),
		config: cfg,
		logger: logger,
	}, nil
}

// Complete implements generate.TextBackend.
func (s *LLMService) Complete(ctx context.Context, prompt string) (string, error) {
	resp, err := s.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       s.config.Model,
		MaxTokens:   s.config.MaxTokens,
		Temperature: s.config.Temperature,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	})
	if err != nil {
		if ctx.Err() != nil {
			return "", core.ErrCancelled
		}
		return "", fmt.Errorf("openai: chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("openai: completion returned no choices")
	}
	return resp.Choices[0].Message.Content, nil
}
