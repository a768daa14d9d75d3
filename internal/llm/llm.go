package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/joescharf/crev/internal/models"
	"github.com/joescharf/crev/internal/normalize"
)

// DefaultMaxTokens bounds the length of a review answer.
const DefaultMaxTokens = 4096

// Client wraps the Anthropic API as the reasoning service.
type Client struct {
	api       *anthropic.Client
	model     anthropic.Model
	maxTokens int64
}

// NewClient creates an LLM client with the given API key and model.
func NewClient(apiKey, model string, opts ...option.RequestOption) *Client {
	if apiKey != "" {
		opts = append(opts, option.WithAPIKey(apiKey))
	}
	// Retries belong to the caller.
	opts = append(opts, option.WithMaxRetries(0))
	client := anthropic.NewClient(opts...)
	return &Client{
		api:       &client,
		model:     anthropic.Model(model),
		maxTokens: DefaultMaxTokens,
	}
}

// WithMaxTokens overrides the response token limit.
func (c *Client) WithMaxTokens(n int64) *Client {
	if n > 0 {
		c.maxTokens = n
	}
	return c
}

// Complete sends one system+user exchange and returns the first text block.
// Transport failures, error statuses and empty answers all wrap
// models.ErrReasoningUnavailable.
func (c *Client) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	msg, err := c.api.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     c.model,
		MaxTokens: c.maxTokens,
		System: []anthropic.TextBlockParam{
			{Text: systemPrompt},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(userPrompt)),
		},
	})
	if err != nil {
		return "", fmt.Errorf("anthropic API call: %w: %v", models.ErrReasoningUnavailable, err)
	}

	// Extract text from response
	var text string
	for _, block := range msg.Content {
		if block.Type == "text" {
			text = block.Text
			break
		}
	}

	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("no text content in API response: %w", models.ErrReasoningUnavailable)
	}
	return text, nil
}

// SuggestTests asks for additional test cases and returns the fenced code
// block of the answer, or "" when the answer holds none.
func (c *Client) SuggestTests(ctx context.Context, code, tests, language string) (string, error) {
	system, user := BuildTestPrompt(code, tests, language)
	text, err := c.Complete(ctx, system, user)
	if err != nil {
		return "", err
	}
	return normalize.ExtractCodeBlock(text, language), nil
}
