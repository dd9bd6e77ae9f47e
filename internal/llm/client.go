// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package llm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

// ClientError categorizes a provider failure for reporting.
type ClientError struct {
	Message string
	Cause   error
}

func (e *ClientError) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

func (e *ClientError) Unwrap() error {
	return e.Cause
}

// Config holds provider connection settings.
type Config struct {
	// BaseURL of the OpenAI-compatible endpoint. Empty means the
	// provider's default.
	BaseURL string

	// APIKey for the provider. Local endpoints may leave it empty.
	APIKey string

	// DefaultModel used when a request doesn't name one.
	DefaultModel string

	// Timeout for non-streaming requests.
	Timeout time.Duration
}

// DefaultConfig returns settings for a local OpenAI-compatible endpoint.
func DefaultConfig() Config {
	return Config{
		BaseURL:      "http://127.0.0.1:11434/v1",
		DefaultModel: "qwen2.5:14b",
		Timeout:      60 * time.Second,
	}
}

// Client wraps the provider SDK. Safe for concurrent use.
type Client struct {
	api    *openai.Client
	cfg    Config
	logger *zap.Logger
}

// NewClient creates a client for cfg. The logger receives a diagnostic
// record for every request failure.
func NewClient(cfg Config, logger *zap.Logger) *Client {
	if cfg.DefaultModel == "" {
		cfg.DefaultModel = DefaultConfig().DefaultModel
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultConfig().Timeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	apiCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		apiCfg.BaseURL = cfg.BaseURL
	}
	apiCfg.HTTPClient = &http.Client{Timeout: cfg.Timeout}

	return &Client{
		api:    openai.NewClientWithConfig(apiCfg),
		cfg:    cfg,
		logger: logger,
	}
}

// DefaultModel returns the configured default model name.
func (c *Client) DefaultModel() string {
	return c.cfg.DefaultModel
}

// Complete sends a non-streaming request and returns the full response
// content with its token usage.
func (c *Client) Complete(ctx context.Context, messages []Message, opts GenerateOptions) (string, *Usage, error) {
	resp, err := c.api.CreateChatCompletion(ctx, c.buildRequest(messages, opts, false))
	if err != nil {
		c.logger.Error("chat completion failed", zap.Error(err))
		return "", nil, &ClientError{Message: "chat request failed", Cause: err}
	}
	if len(resp.Choices) == 0 {
		return "", nil, &ClientError{Message: "empty response from model"}
	}

	usage := &Usage{
		PromptTokens:     resp.Usage.PromptTokens,
		CompletionTokens: resp.Usage.CompletionTokens,
		TotalTokens:      resp.Usage.TotalTokens,
	}
	return resp.Choices[0].Message.Content, usage, nil
}

// StreamChan sends a streaming request and returns a channel of chunks.
// The channel is closed after the Done chunk. Cancelling ctx aborts the
// stream; the abort is delivered as an error chunk.
func (c *Client) StreamChan(ctx context.Context, messages []Message, opts GenerateOptions) <-chan StreamChunk {
	ch := make(chan StreamChunk, 16)

	go func() {
		defer close(ch)

		req := c.buildRequest(messages, opts, true)
		req.StreamOptions = &openai.StreamOptions{IncludeUsage: true}

		stream, err := c.api.CreateChatCompletionStream(ctx, req)
		if err != nil {
			c.logger.Error("failed to open stream", zap.Error(err), zap.String("model", req.Model))
			send(ctx, ch, StreamChunk{Err: &ClientError{Message: "failed to open stream", Cause: err}, Done: true})
			return
		}
		defer stream.Close()

		var usage *Usage
		for {
			resp, err := stream.Recv()
			if errors.Is(err, io.EOF) {
				send(ctx, ch, StreamChunk{Done: true, Usage: usage})
				return
			}
			if err != nil {
				if ctx.Err() != nil {
					err = ctx.Err()
				}
				c.logger.Error("stream receive failed", zap.Error(err))
				send(ctx, ch, StreamChunk{Err: &ClientError{Message: "stream interrupted", Cause: err}, Done: true})
				return
			}

			if resp.Usage != nil && resp.Usage.TotalTokens > 0 {
				usage = &Usage{
					PromptTokens:     resp.Usage.PromptTokens,
					CompletionTokens: resp.Usage.CompletionTokens,
					TotalTokens:      resp.Usage.TotalTokens,
				}
			}
			if len(resp.Choices) == 0 {
				continue
			}
			if delta := resp.Choices[0].Delta.Content; delta != "" {
				if !send(ctx, ch, StreamChunk{Content: delta}) {
					return
				}
			}
		}
	}()

	return ch
}

// send delivers a chunk unless the context has been cancelled.
func send(ctx context.Context, ch chan<- StreamChunk, chunk StreamChunk) bool {
	select {
	case ch <- chunk:
		return true
	case <-ctx.Done():
		return false
	}
}

func (c *Client) buildRequest(messages []Message, opts GenerateOptions, stream bool) openai.ChatCompletionRequest {
	model := opts.Model
	if model == "" {
		model = c.cfg.DefaultModel
	}

	req := openai.ChatCompletionRequest{
		Model:       model,
		Messages:    convertMessages(messages),
		Temperature: float32(opts.Temperature),
		Stream:      stream,
	}
	if opts.MaxTokens > 0 {
		req.MaxTokens = opts.MaxTokens
	}
	return req
}

func convertMessages(messages []Message) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, len(messages))
	for i, m := range messages {
		role := m.Role
		switch role {
		case "system", "user", "assistant":
		default:
			role = openai.ChatMessageRoleUser
		}
		out[i] = openai.ChatCompletionMessage{Role: role, Content: m.Content}
	}
	return out
}

// FormatUsage renders usage as a short status string.
func FormatUsage(u *Usage) string {
	if u == nil {
		return ""
	}
	return fmt.Sprintf("%d tokens (%d prompt, %d completion)", u.TotalTokens, u.PromptTokens, u.CompletionTokens)
}
