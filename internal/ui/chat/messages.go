// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	tea "github.com/charmbracelet/bubbletea"

	"github.com/kestrelab/braid/internal/session"
	"github.com/kestrelab/braid/internal/thread"
)

// =============================================================================
// INPUT INTENTS (vim handler → update loop)
// =============================================================================

// CommandSubmittedMsg carries a finished : command line, sigil stripped.
type CommandSubmittedMsg struct {
	Raw string
}

// SearchSubmittedMsg carries a finished / query, sigil stripped.
type SearchSubmittedMsg struct {
	Query string
}

// ThreadStepMsg asks for thread navigation: -1 previous, +1 next.
type ThreadStepMsg struct {
	Delta int
}

// YankLinesMsg asks for the inclusive range of rendered transcript lines
// [Start, End] to be copied into the yank register.
type YankLinesMsg struct {
	Start int
	End   int
}

// DeleteLinesMsg asks for the inclusive range of rendered transcript lines
// [Start, End] to be yanked and removed from the view. The store is
// append-only, so the removal is display-only: any later transcript
// refresh rebuilds the full view.
type DeleteLinesMsg struct {
	Start int
	End   int
}

// =============================================================================
// SESSION EVENTS (coordinator → update loop)
// =============================================================================

// MessageAppendedMsg delivers a persisted message for the transcript.
type MessageAppendedMsg struct {
	Message thread.Message
}

// StreamingMsg delivers the accumulated in-flight response text. Empty
// text clears the streaming area.
type StreamingMsg struct {
	Text string
}

// ThreadListMsg delivers a refreshed thread list.
type ThreadListMsg struct {
	Items []thread.Summary
}

// StatusMsg delivers a session status snapshot.
type StatusMsg struct {
	Status session.Status
}

// ErrorMsg delivers a reported error.
type ErrorMsg struct {
	Err error
}

// HelpMsg delivers help text to show.
type HelpMsg struct {
	Text string
}

// NoticeMsg delivers a transient informational line.
type NoticeMsg struct {
	Text string
}

// =============================================================================
// DISPLAY ADAPTER
// =============================================================================

// Dispatcher adapts the coordinator's Display sink onto a running Bubble
// Tea program: every call becomes a typed message delivered through
// program.Send, so UI state only ever changes inside the update loop.
type Dispatcher struct {
	send func(tea.Msg)
}

// NewDispatcher wraps a message sender, typically (*tea.Program).Send.
func NewDispatcher(send func(tea.Msg)) *Dispatcher {
	return &Dispatcher{send: send}
}

var _ session.Display = (*Dispatcher)(nil)

func (d *Dispatcher) AppendMessage(msg thread.Message) {
	d.send(MessageAppendedMsg{Message: msg})
}

func (d *Dispatcher) UpdateStreaming(text string) {
	d.send(StreamingMsg{Text: text})
}

func (d *Dispatcher) UpdateThreadList(items []thread.Summary) {
	d.send(ThreadListMsg{Items: items})
}

func (d *Dispatcher) UpdateStatus(status session.Status) {
	d.send(StatusMsg{Status: status})
}

func (d *Dispatcher) ShowError(err error) {
	d.send(ErrorMsg{Err: err})
}

func (d *Dispatcher) ShowHelp(text string) {
	d.send(HelpMsg{Text: text})
}

func (d *Dispatcher) ShowMessage(text string) {
	d.send(NoticeMsg{Text: text})
}
