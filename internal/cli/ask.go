// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/glamour"
	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/kestrelab/braid/internal/config"
	"github.com/kestrelab/braid/internal/llm"
)

// Ask sends a single question to the model and prints the completed
// response. Output is rendered as markdown on a terminal and passed
// through verbatim when piped.
func Ask(ctx context.Context, cfg *config.Config, question string, logger *zap.Logger, out io.Writer) error {
	client := llm.NewClient(llm.Config{
		BaseURL:      cfg.Model.BaseURL,
		APIKey:       cfg.Model.APIKey,
		DefaultModel: cfg.Model.Default,
		Timeout:      cfg.Timeout(),
	}, logger)

	text, usage, err := client.Complete(ctx,
		[]llm.Message{{Role: "user", Content: question}},
		llm.GenerateOptions{
			Model:       cfg.Model.Default,
			Temperature: cfg.Model.Temperature,
			MaxTokens:   cfg.Model.MaxTokens,
		})
	if err != nil {
		return err
	}

	rendered := text
	if f, ok := out.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		if r, rerr := glamour.NewTermRenderer(glamour.WithAutoStyle(), glamour.WithWordWrap(100)); rerr == nil {
			if md, rerr := r.Render(text); rerr == nil {
				rendered = md
			}
		}
	}
	fmt.Fprintln(out, rendered)

	if usage != nil {
		logger.Info("ask completed",
			zap.String("model", cfg.Model.Default),
			zap.Int("total_tokens", usage.TotalTokens))
	}
	return nil
}
