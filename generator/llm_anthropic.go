package generator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

const defaultAnthropicMaxTokens = 4096

// AnthropicLLM implements LLMClient with Anthropic's Messages API.
type AnthropicLLM struct {
	client    *anthropic.Client
	model     string
	maxTokens int64
}

func NewAnthropicLLMFromConfig(cfg *LLMSettings) (*AnthropicLLM, error) {
	if cfg == nil {
		return nil, errors.New("llm config is nil")
	}
	if cfg.APIKey == "" {
		return nil, errors.New("anthropic api key missing; provide llm.api_key")
	}
	if cfg.Model == "" {
		return nil, errors.New("llm model is required")
	}
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	if cfg.TimeoutSeconds > 0 {
		opts = append(opts, option.WithRequestTimeout(time.Duration(cfg.TimeoutSeconds)*time.Second))
	}
	client := anthropic.NewClient(opts...)
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultAnthropicMaxTokens
	}
	return &AnthropicLLM{client: &client, model: cfg.Model, maxTokens: maxTokens}, nil
}

func (c *AnthropicLLM) Complete(ctx context.Context, prompt Prompt) (string, error) {
	msgs := []anthropic.MessageParam{anthropic.NewUserMessage(anthropic.NewTextBlock(prompt.User))}
	// Prefill the opening brace so the reply continues as a JSON object.
	if prompt.JSON {
		msgs = append(msgs, anthropic.NewAssistantMessage(anthropic.NewTextBlock("{")))
	}

	message, err := c.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(c.model),
		MaxTokens: c.maxTokens,
		System:    []anthropic.TextBlockParam{{Text: prompt.System}},
		Messages:  msgs,
	})
	if err != nil {
		return "", fmt.Errorf("anthropic: %w", err)
	}

	var text string
	for _, block := range message.Content {
		if block.Type == "text" {
			text = block.Text
			break
		}
	}
	if text == "" {
		return "", errors.New("anthropic: empty response")
	}
	if prompt.JSON {
		text = "{" + text
	}
	return text, nil
}
