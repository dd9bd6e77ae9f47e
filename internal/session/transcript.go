// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package session

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/kestrelab/braid/internal/export"
	"github.com/kestrelab/braid/internal/thread"
)

// WriteTranscript renders the current conversation as Markdown and writes
// it through the export writer. An empty filename gets a timestamped
// default. Returns the written path.
func (c *Coordinator) WriteTranscript(ctx context.Context, filename string) (string, error) {
	c.mu.Lock()
	conv := c.current
	c.mu.Unlock()
	if conv == nil {
		return "", &StorageError{Op: "write transcript", Cause: thread.ErrNotFound}
	}

	msgs, err := c.store.Messages(ctx, conv.ID)
	if err != nil {
		return "", &StorageError{Op: "write transcript", Cause: err}
	}

	if filename == "" {
		filename = "transcript-" + time.Now().Format("20060102-150405") + ".md"
	}

	path, err := c.files.Write(conv.ID, export.File{
		Name:    filename,
		Content: renderTranscript(conv, msgs),
	})
	if err != nil {
		return "", fmt.Errorf("write transcript: %w", err)
	}
	return path, nil
}

func renderTranscript(conv *thread.Conversation, msgs []thread.Message) string {
	var sb strings.Builder
	sb.WriteString("# " + conv.Title + "\n\n")
	if conv.ThreadPath != "" {
		sb.WriteString("Thread path: " + thread.FormatThreadPath(conv) + "\n\n")
	}
	for _, m := range msgs {
		header := strings.ToUpper(string(m.Role)[:1]) + string(m.Role)[1:]
		if m.Model != "" {
			header += " (" + m.Model + ")"
		}
		sb.WriteString("## " + header + "\n\n")
		sb.WriteString(m.Content)
		sb.WriteString("\n\n")
	}
	return sb.String()
}
