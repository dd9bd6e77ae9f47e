// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"fmt"
	"strings"

	"github.com/mattn/go-runewidth"

	"github.com/kestrelab/braid/internal/session"
	"github.com/kestrelab/braid/internal/thread"
	"github.com/kestrelab/braid/internal/util"
)

// chromeLines is the vertical space taken below the viewport: input,
// prompt/notice line and status bar.
const chromeLines = 3

// View renders the whole chat screen.
func (m *Model) View() string {
	if !m.ready {
		return "loading..."
	}

	var sb strings.Builder
	sb.WriteString(m.viewport.View())
	sb.WriteString("\n")
	sb.WriteString(m.input.View())
	sb.WriteString("\n")
	sb.WriteString(m.middleLine())
	sb.WriteString("\n")
	sb.WriteString(m.statusLine())
	return sb.String()
}

// middleLine shows, in priority order: the pending : or / buffer, an
// error, a notice, or nothing.
func (m *Model) middleLine() string {
	if prompt := m.vim.PromptLine(); prompt != "" {
		return m.theme.PromptLine.Render(prompt)
	}
	if m.errText != "" {
		return m.theme.ErrorText.Render(util.Flatten(m.errText))
	}
	if m.notice != "" {
		return m.theme.Notice.Render(util.Flatten(m.notice))
	}
	return ""
}

// statusLine renders the bottom bar: mode, model, thread, token usage.
func (m *Model) statusLine() string {
	mode := m.theme.Mode.Render(m.vim.ModeString())

	parts := []string{m.status.Model}
	if m.status.Title != "" {
		parts = append(parts, fmt.Sprintf("#%d %s", m.status.ConversationID, m.status.Title))
	} else {
		parts = append(parts, "no thread")
	}
	if m.status.State == session.StateAwaitingResponse {
		parts = append(parts, "thinking...")
	}
	if m.status.Usage != nil {
		parts = append(parts, fmt.Sprintf("%d tok", m.status.Usage.TotalTokens))
	}
	info := " " + strings.Join(parts, " | ")

	avail := m.width - runewidth.StringWidth(m.vim.ModeString()) - 2
	if avail < 0 {
		avail = 0
	}
	info = runewidth.Truncate(info, avail, "...")
	pad := avail - runewidth.StringWidth(info)
	if pad < 0 {
		pad = 0
	}
	return mode + m.theme.StatusBar.Render(info+strings.Repeat(" ", pad))
}

// refreshViewport re-renders the transcript plus any in-flight text.
func (m *Model) refreshViewport() {
	if !m.ready {
		return
	}

	var sb strings.Builder
	for i := range m.transcript {
		sb.WriteString(m.renderMessage(&m.transcript[i]))
	}
	if m.streaming != "" {
		sb.WriteString(m.theme.AssistantLabel.Render("assistant"))
		sb.WriteString("\n")
		sb.WriteString(m.theme.Streaming.Render(m.streaming))
		sb.WriteString("\n")
	}
	if m.helpText != "" {
		sb.WriteString("\n")
		sb.WriteString(m.theme.HelpText.Render(m.helpText))
		sb.WriteString("\n")
	}
	m.contentLines = strings.Split(sb.String(), "\n")
	m.viewport.SetContent(sb.String())
}

// yankRange returns the rendered lines [start, end] clipped to the
// current content, joined with newlines.
func (m *Model) yankRange(start, end int) string {
	if start < 0 {
		start = 0
	}
	if end >= len(m.contentLines) {
		end = len(m.contentLines) - 1
	}
	if start > end {
		return ""
	}
	return strings.Join(m.contentLines[start:end+1], "\n")
}

// dropLines removes [start, end] from the displayed content without
// touching the transcript itself.
func (m *Model) dropLines(start, end int) {
	if start < 0 {
		start = 0
	}
	if end >= len(m.contentLines) {
		end = len(m.contentLines) - 1
	}
	if start > end {
		return
	}
	m.contentLines = append(m.contentLines[:start], m.contentLines[end+1:]...)
	m.viewport.SetContent(strings.Join(m.contentLines, "\n"))
}

func (m *Model) renderMessage(msg *thread.Message) string {
	var label string
	switch msg.Role {
	case thread.RoleUser:
		label = m.theme.UserLabel.Render("you")
	case thread.RoleAssistant:
		label = m.theme.AssistantLabel.Render("assistant")
		if msg.Model != "" {
			label += m.theme.HelpText.Render(" (" + msg.Model + ")")
		}
	default:
		label = m.theme.SystemLabel.Render(string(msg.Role))
	}

	body := msg.Content
	if msg.Role == thread.RoleAssistant && m.renderer != nil {
		if rendered, err := m.renderer.Render(msg.Content); err == nil {
			body = strings.TrimRight(rendered, "\n")
		}
	}
	return label + "\n" + body + "\n\n"
}
