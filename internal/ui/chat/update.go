// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/zap"

	"github.com/kestrelab/braid/internal/commands"
	"github.com/kestrelab/braid/internal/session"
)

// ConfigReloadedMsg is sent from outside the program when the config
// file changed on disk.
type ConfigReloadedMsg struct {
	Theme string
}

// Update is the single mutation point for UI state.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.setSize(msg.Width, msg.Height)
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	// Input intents
	case CommandSubmittedMsg:
		return m.handleCommand(msg.Raw)

	case SearchSubmittedMsg:
		inv := &commands.Invocation{Name: commands.CmdSearch, Args: strings.Fields(msg.Query)}
		return m, m.runExecute(inv)

	case YankLinesMsg:
		text := m.yankRange(msg.Start, msg.End)
		if text != "" {
			m.vim.SetRegister(text)
			m.notice = fmt.Sprintf("yanked %d line(s)", msg.End-msg.Start+1)
		}
		return m, nil

	case DeleteLinesMsg:
		// Display-only: the transcript store is append-only, so removed
		// lines come back on the next full refresh.
		text := m.yankRange(msg.Start, msg.End)
		if text != "" {
			m.vim.SetRegister(text)
			m.dropLines(msg.Start, msg.End)
			m.notice = fmt.Sprintf("removed %d line(s) from view", msg.End-msg.Start+1)
		}
		return m, nil

	case ThreadStepMsg:
		delta := msg.Delta
		return m, func() tea.Msg {
			if delta < 0 {
				_ = m.coordinator.PrevThread(context.Background())
			} else {
				_ = m.coordinator.NextThread(context.Background())
			}
			return nil
		}

	// Session events
	case MessageAppendedMsg:
		m.transcript = append(m.transcript, msg.Message)
		m.refreshViewport()
		m.viewport.GotoBottom()
		return m, nil

	case StreamingMsg:
		m.streaming = msg.Text
		m.refreshViewport()
		m.viewport.GotoBottom()
		return m, nil

	case ThreadListMsg:
		m.threads = msg.Items
		return m, nil

	case StatusMsg:
		// A conversation change resets the transcript; the coordinator
		// replays the branch history right after.
		if msg.Status.ConversationID != m.status.ConversationID {
			m.transcript = nil
			m.streaming = ""
			m.refreshViewport()
		}
		m.status = msg.Status
		m.setTheme(msg.Status.Theme)
		return m, nil

	case ErrorMsg:
		m.errText = msg.Err.Error()
		m.notice = ""
		return m, nil

	case HelpMsg:
		m.helpText = msg.Text
		m.refreshViewport()
		return m, nil

	case NoticeMsg:
		m.notice = msg.Text
		m.errText = ""
		return m, nil

	case ConfigReloadedMsg:
		m.setTheme(msg.Theme)
		return m, nil
	}

	return m, nil
}

// handleKey routes one key event: global shortcuts first, then the vim
// handler, then the insert-mode text input.
func (m *Model) handleKey(key tea.KeyMsg) (tea.Model, tea.Cmd) {
	keyStr := key.String()

	// Always available, regardless of mode.
	if keyStr == "ctrl+c" {
		m.coordinator.Cancel()
		return m, tea.Quit
	}

	// Transient chrome clears on the next keystroke.
	m.notice = ""
	if keyStr == "esc" {
		m.errText = ""
		if m.helpText != "" {
			m.helpText = ""
			m.refreshViewport()
		}
	}

	consumed, cmd := m.vim.HandleKey(key, &m.viewport, &m.input)
	if consumed {
		return m, cmd
	}

	if m.vim.Mode() == VimModeInsert {
		if keyStr == "enter" {
			text := strings.TrimSpace(m.input.Value())
			if text == "" {
				return m, nil
			}
			m.input.SetValue("")
			return m, func() tea.Msg {
				_ = m.coordinator.Submit(context.Background(), text)
				return nil
			}
		}
		var inputCmd tea.Cmd
		m.input, inputCmd = m.input.Update(key)
		return m, inputCmd
	}

	return m, nil
}

// handleCommand parses and executes a : command line.
func (m *Model) handleCommand(raw string) (tea.Model, tea.Cmd) {
	inv, err := commands.Parse(raw)
	if err != nil {
		m.errText = err.Error()
		m.logger.Debug("command rejected", zap.String("raw", raw), zap.Error(err))
		return m, nil
	}
	if inv.Name == commands.CmdQuit {
		m.coordinator.Cancel()
		return m, tea.Quit
	}
	return m, m.runExecute(inv)
}

// runExecute runs a command on the coordinator off the update loop.
// Results come back through the Display sink; only quit is handled here.
func (m *Model) runExecute(inv *commands.Invocation) tea.Cmd {
	return func() tea.Msg {
		if err := m.coordinator.Execute(context.Background(), inv); err != nil {
			if errors.Is(err, session.ErrQuit) {
				return tea.QuitMsg{}
			}
		}
		return nil
	}
}
