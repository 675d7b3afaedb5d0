package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/cloudwego/eino-ext/components/model/claude"
	"github.com/cloudwego/eino-ext/components/model/gemini"
	einoopenai "github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"google.golang.org/genai"
)

var ErrEmptyCompletion = errors.New("model returned an empty completion")

type ChatConfig struct {
	Provider    string
	BaseURL     string
	APIKey      string
	Model       string
	Temperature float32
	MaxTokens   int
}

// ChatClient sends single-prompt completions to the configured provider.
type ChatClient struct {
	chatModel model.BaseChatModel
	cfg       ChatConfig
}

func NewChatClient(ctx context.Context, cfg ChatConfig) (*ChatClient, error) {
	var (
		chatModel model.BaseChatModel
		err       error
	)
	switch cfg.Provider {
	case "openai", "":
		chatModel, err = einoopenai.NewChatModel(ctx, &einoopenai.ChatModelConfig{
			BaseURL: cfg.BaseURL,
			APIKey:  cfg.APIKey,
			Model:   cfg.Model,
		})
	case "claude":
		var baseURL *string
		if cfg.BaseURL != "" {
			baseURL = &cfg.BaseURL
		}
		maxTokens := cfg.MaxTokens
		if maxTokens <= 0 {
			maxTokens = 1024
		}
		chatModel, err = claude.NewChatModel(ctx, &claude.Config{
			APIKey:    cfg.APIKey,
			BaseURL:   baseURL,
			Model:     cfg.Model,
			MaxTokens: maxTokens,
		})
	case "gemini":
		client, clientErr := genai.NewClient(ctx, &genai.ClientConfig{
			APIKey:  cfg.APIKey,
			Backend: genai.BackendGeminiAPI,
		})
		if clientErr != nil {
			return nil, fmt.Errorf("create gemini client failed: %w", clientErr)
		}
		chatModel, err = gemini.NewChatModel(ctx, &gemini.Config{
			Client: client,
			Model:  cfg.Model,
		})
	default:
		return nil, fmt.Errorf("unsupported llm provider %q", cfg.Provider)
	}
	if err != nil {
		return nil, fmt.Errorf("create %s chat model failed: %w", cfg.Provider, err)
	}
	return NewChatClientWithModel(chatModel, cfg), nil
}

func NewChatClientWithModel(chatModel model.BaseChatModel, cfg ChatConfig) *ChatClient {
	return &ChatClient{chatModel: chatModel, cfg: cfg}
}

// Complete sends prompt as a single user turn with the configured model and temperature.
func (c *ChatClient) Complete(ctx context.Context, prompt string) (string, error) {
	opts := []model.Option{
		model.WithModel(c.cfg.Model),
		model.WithTemperature(c.cfg.Temperature),
	}
	if c.cfg.MaxTokens > 0 {
		opts = append(opts, model.WithMaxTokens(c.cfg.MaxTokens))
	}

	msg, err := c.chatModel.Generate(ctx, []*schema.Message{schema.UserMessage(prompt)}, opts...)
	if err != nil {
		return "", fmt.Errorf("llm completion failed: %w", err)
	}
	if msg == nil || strings.TrimSpace(msg.Content) == "" {
		return "", ErrEmptyCompletion
	}
	return strings.TrimSpace(msg.Content), nil
}
