// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package llm provides the client for streaming chat completions from an
// OpenAI-compatible provider.
package llm

// Message is one role/content pair in the prompt history.
type Message struct {
	Role    string // "system", "user" or "assistant"
	Content string
}

// GenerateOptions control a single generation request.
type GenerateOptions struct {
	Model       string
	Temperature float64
	MaxTokens   int
}

// Usage reports the token counts for a completed generation.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// StreamChunk is one increment of a streaming response. Exactly one chunk
// carries Done=true; it may also carry final Usage. Errors are delivered
// as chunks with Err set and Done=true.
type StreamChunk struct {
	Content string
	Done    bool
	Usage   *Usage
	Err     error
}
