// Package llm wraps an OpenAI-compatible chat completion endpoint.
package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"github.com/smallbiznis/prospector/internal/config"
	"github.com/smallbiznis/prospector/internal/executor"
)

var ErrEmptyCompletion = errors.New("empty_completion")

type Prompt struct {
	System string
	User   string
}

// Completer turns a prompt into raw completion text.
type Completer interface {
	Complete(ctx context.Context, prompt Prompt) (string, error)
}

type Client struct {
	client    *openai.Client
	model     string
	maxTokens int
}

// NewClient returns a client that fails every call with
// executor.ErrMissingCredential when no API key is configured.
func NewClient(cfg config.LLMConfig, httpClient *http.Client) *Client {
	c := &Client{model: cfg.Model, maxTokens: cfg.MaxTokens}
	if c.model == "" {
		c.model = openai.GPT4oMini
	}
	key := strings.TrimSpace(cfg.APIKey)
	if key == "" {
		return c
	}

	oc := openai.DefaultConfig(key)
	if base := strings.TrimSpace(cfg.BaseURL); base != "" {
		oc.BaseURL = base
	}
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 60 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	oc.HTTPClient = httpClient
	c.client = openai.NewClientWithConfig(oc)
	return c
}

func (c *Client) Model() string { return c.model }

func (c *Client) Complete(ctx context.Context, prompt Prompt) (string, error) {
	if c.client == nil {
		return "", fmt.Errorf("llm: %w", executor.ErrMissingCredential)
	}

	messages := make([]openai.ChatCompletionMessage, 0, 2)
	if prompt.System != "" {
		messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: prompt.System})
	}
	messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: prompt.User})

	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       c.model,
		Messages:    messages,
		MaxTokens:   c.maxTokens,
		Temperature: 0.2,
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", ErrEmptyCompletion
	}
	content := resp.Choices[0].Message.Content
	if strings.TrimSpace(content) == "" {
		return "", ErrEmptyCompletion
	}
	return content, nil
}
