// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package chat provides the chat view component for the TUI.
package chat

import (
	"context"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"go.uber.org/zap"

	"github.com/kestrelab/braid/internal/session"
	"github.com/kestrelab/braid/internal/thread"
	"github.com/kestrelab/braid/internal/ui/styles"
)

// Model is the Bubble Tea model for the chat view. All mutation happens
// in Update; coordinator events arrive as typed messages via Dispatcher.
type Model struct {
	coordinator *session.Coordinator
	logger      *zap.Logger

	vim      *VimHandler
	viewport viewport.Model
	input    textinput.Model
	renderer *glamour.TermRenderer
	theme    styles.Theme

	status     session.Status
	transcript []thread.Message
	streaming  string
	// contentLines mirrors the viewport content so yank and delete
	// intents can resolve line ranges to text.
	contentLines []string
	threads    []thread.Summary
	notice     string
	errText    string
	helpText   string

	width  int
	height int
	ready  bool
}

// New builds the chat model. The coordinator is already constructed and
// wired to this program through a Dispatcher.
func New(coordinator *session.Coordinator, theme styles.Theme, logger *zap.Logger) *Model {
	if logger == nil {
		logger = zap.NewNop()
	}

	input := textinput.New()
	input.Placeholder = "press i to type, : for commands"
	input.CharLimit = 0
	input.Prompt = "> "

	return &Model{
		coordinator: coordinator,
		logger:      logger,
		vim:         NewVimHandler(),
		input:       input,
		theme:       theme,
	}
}

// Init starts the session: initial status and thread list arrive as
// messages once the coordinator pushes them.
func (m *Model) Init() tea.Cmd {
	return func() tea.Msg {
		m.coordinator.Start(context.Background())
		return nil
	}
}

// setSize lays out the viewport and rebuilds the markdown renderer for
// the new wrap width.
func (m *Model) setSize(width, height int) {
	m.width = width
	m.height = height

	vpHeight := height - chromeLines
	if vpHeight < 1 {
		vpHeight = 1
	}
	if !m.ready {
		m.viewport = viewport.New(width, vpHeight)
		m.ready = true
	} else {
		m.viewport.Width = width
		m.viewport.Height = vpHeight
	}

	renderer, err := glamour.NewTermRenderer(
		glamour.WithStandardStyle(styles.GlamourStyle(m.theme.Name)),
		glamour.WithWordWrap(width-2),
	)
	if err != nil {
		m.logger.Warn("markdown renderer init failed", zap.Error(err))
		m.renderer = nil
	} else {
		m.renderer = renderer
	}
	m.refreshViewport()
}

// setTheme swaps the style set and re-renders.
func (m *Model) setTheme(name string) {
	if name == "" || name == m.theme.Name {
		return
	}
	m.theme = styles.ByName(name)
	if m.ready {
		m.setSize(m.width, m.height)
	}
}
