// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConvertMessages(t *testing.T) {
	in := []Message{
		{Role: "system", Content: "be brief"},
		{Role: "user", Content: "hi"},
		{Role: "assistant", Content: "hello"},
		{Role: "tool", Content: "unknown role falls back to user"},
	}

	out := convertMessages(in)
	assert.Len(t, out, 4)
	assert.Equal(t, "system", out[0].Role)
	assert.Equal(t, "user", out[1].Role)
	assert.Equal(t, "assistant", out[2].Role)
	assert.Equal(t, "user", out[3].Role)
	assert.Equal(t, "hi", out[1].Content)
}

func TestBuildRequest_Defaults(t *testing.T) {
	c := NewClient(Config{DefaultModel: "test-model"}, nil)

	req := c.buildRequest([]Message{{Role: "user", Content: "x"}}, GenerateOptions{Temperature: 0.7}, true)
	assert.Equal(t, "test-model", req.Model)
	assert.True(t, req.Stream)
	assert.InDelta(t, 0.7, float64(req.Temperature), 0.001)
	assert.Zero(t, req.MaxTokens, "unset max tokens stays unset")

	req = c.buildRequest(nil, GenerateOptions{Model: "other", MaxTokens: 128}, false)
	assert.Equal(t, "other", req.Model)
	assert.Equal(t, 128, req.MaxTokens)
}

func TestFormatUsage(t *testing.T) {
	assert.Empty(t, FormatUsage(nil))
	assert.Equal(t, "30 tokens (10 prompt, 20 completion)",
		FormatUsage(&Usage{PromptTokens: 10, CompletionTokens: 20, TotalTokens: 30}))
}
