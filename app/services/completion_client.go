package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/liushuangls/go-anthropic/v2"
	"github.com/sashabaranov/go-openai"
)

// Supported completion providers
const (
	ProviderOpenAI     = "openai"
	ProviderOpenRouter = "openrouter"
	ProviderAnthropic  = "anthropic"
)

const defaultOpenRouterBaseURL = "https://openrouter.ai/api/v1"

var (
	ErrAINotConfigured = errors.New("ai provider not configured")
	ErrEmptyCompletion = errors.New("empty completion")
)

// CompletionRequest is a single-turn chat completion
type CompletionRequest struct {
	System      string
	Prompt      string
	Temperature float32
	MaxTokens   int
}

// Completer sends one prompt to a language model and returns the text reply
type Completer interface {
	Complete(ctx context.Context, req CompletionRequest) (string, error)
}

// CompleterFactory builds a Completer for the current AI settings
type CompleterFactory func(cfg AIConfig) (Completer, error)

// NewCompleter picks the client for cfg.Provider
func NewCompleter(cfg AIConfig) (Completer, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, ErrAINotConfigured
	}
	switch strings.ToLower(cfg.Provider) {
	case ProviderAnthropic:
		return NewAnthropicCompleter(cfg.APIKey, cfg.BaseURL, cfg.Model), nil
	case ProviderOpenAI, ProviderOpenRouter, "":
		baseURL := cfg.BaseURL
		if baseURL == "" && strings.EqualFold(cfg.Provider, ProviderOpenRouter) {
			baseURL = defaultOpenRouterBaseURL
		}
		return NewOpenAICompleter(cfg.APIKey, baseURL, cfg.Model), nil
	default:
		return nil, fmt.Errorf("unsupported ai provider: %s", cfg.Provider)
	}
}

// OpenAICompleter talks to any OpenAI-compatible chat completion endpoint
type OpenAICompleter struct {
	client *openai.Client
	model  string
}

func NewOpenAICompleter(apiKey, baseURL, model string) *OpenAICompleter {
	config := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = strings.TrimRight(baseURL, "/")
	}
	return &OpenAICompleter{
		client: openai.NewClientWithConfig(config),
		model:  model,
	}
}

func (c *OpenAICompleter) Complete(ctx context.Context, req CompletionRequest) (string, error) {
	messages := make([]openai.ChatCompletionMessage, 0, 2)
	if req.System != "" {
		messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: req.System})
	}
	messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: req.Prompt})

	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       c.model,
		Messages:    messages,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
		return "", ErrEmptyCompletion
	}
	return resp.Choices[0].Message.Content, nil
}

// AnthropicCompleter talks to the Anthropic messages API
type AnthropicCompleter struct {
	client *anthropic.Client
	model  string
}

func NewAnthropicCompleter(apiKey, baseURL, model string) *AnthropicCompleter {
	var opts []anthropic.ClientOption
	if baseURL != "" {
		opts = append(opts, anthropic.WithBaseURL(strings.TrimRight(baseURL, "/")))
	}
	return &AnthropicCompleter{
		client: anthropic.NewClient(apiKey, opts...),
		model:  model,
	}
}

func (c *AnthropicCompleter) Complete(ctx context.Context, req CompletionRequest) (string, error) {
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 1024
	}
	temperature := req.Temperature
	prompt := req.Prompt

	resp, err := c.client.CreateMessages(ctx, anthropic.MessagesRequest{
		Model:       anthropic.Model(c.model),
		System:      req.System,
		MaxTokens:   maxTokens,
		Temperature: &temperature,
		Messages: []anthropic.Message{
			{
				Role:    anthropic.RoleUser,
				Content: []anthropic.MessageContent{{Type: "text", Text: &prompt}},
			},
		},
	})
	if err != nil {
		return "", err
	}
	if len(resp.Content) == 0 || strings.TrimSpace(resp.Content[0].GetText()) == "" {
		return "", ErrEmptyCompletion
	}
	return resp.Content[0].GetText(), nil
}
