// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package chat provides the chat view component for the TUI.
//
// This file implements vim-style modal editing for the chat interface.
package chat

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
)

// =============================================================================
// VIM MODE TYPES
// =============================================================================

// VimMode represents the current vim editing mode
type VimMode int

const (
	VimModeNormal  VimMode = iota // Normal mode: navigation and commands
	VimModeInsert                 // Insert mode: text editing
	VimModeVisual                 // Visual mode: transcript line selection
	VimModeCommand                // Command mode: : commands
	VimModeSearch                 // Search mode: / queries
)

// String returns the display string for the vim mode
func (v VimMode) String() string {
	switch v {
	case VimModeNormal:
		return "NORMAL"
	case VimModeInsert:
		return "INSERT"
	case VimModeVisual:
		return "VISUAL"
	case VimModeCommand:
		return "COMMAND"
	case VimModeSearch:
		return "SEARCH"
	default:
		return "UNKNOWN"
	}
}

// historyLimit bounds the command history.
const historyLimit = 100

// =============================================================================
// VIM HANDLER
// =============================================================================

// pendingKey marks a two-key sequence awaiting its second key.
type pendingKey int

const (
	pendingNone pendingKey = iota
	pendingSetMark
	pendingJumpMark
)

// VimHandler handles vim-style navigation and editing. It is a pure state
// machine: one key event in, at most one intent message out, processed
// synchronously. Malformed input never leaves the mode or buffers in an
// undefined state.
type VimHandler struct {
	mode          VimMode
	commandBuffer string // For : commands
	searchBuffer  string // For / search

	// history holds submitted commands, most recent first.
	history    []string
	historyIdx int // -1 when not browsing

	// marks map a single key to a viewport scroll offset, session lifetime.
	marks   map[string]int
	pending pendingKey

	// register holds the last yanked text.
	register string

	visualStart int // selection anchor, a viewport scroll offset
	visualEnd   int // selection end, follows the scroll position

	count int  // numeric prefix (e.g. 5j)
	lastG bool // track if g was just pressed (for gg)
}

// NewVimHandler creates a vim handler in normal mode.
func NewVimHandler() *VimHandler {
	return &VimHandler{
		marks:      make(map[string]int),
		historyIdx: -1,
	}
}

// Mode returns current mode
func (vh *VimHandler) Mode() VimMode {
	return vh.mode
}

// ModeString returns mode as display string
func (vh *VimHandler) ModeString() string {
	return vh.mode.String()
}

// HandleKey processes a key in the current mode.
// Returns: consumed (bool), command (tea.Cmd)
func (vh *VimHandler) HandleKey(key tea.KeyMsg, vp *viewport.Model, input *textinput.Model) (bool, tea.Cmd) {
	keyStr := key.String()

	switch vh.mode {
	case VimModeNormal:
		return vh.handleNormalMode(keyStr, vp, input)
	case VimModeInsert:
		return vh.handleInsertMode(keyStr, input)
	case VimModeVisual:
		return vh.handleVisualMode(keyStr, vp)
	case VimModeCommand:
		return vh.handleCommandMode(keyStr)
	case VimModeSearch:
		return vh.handleSearchMode(keyStr)
	default:
		return false, nil
	}
}

// =============================================================================
// NORMAL MODE
// =============================================================================

func (vh *VimHandler) handleNormalMode(keyStr string, vp *viewport.Model, input *textinput.Model) (bool, tea.Cmd) {
	// A pending mark sequence consumes exactly one more key.
	if vh.pending != pendingNone {
		return vh.handlePendingMark(keyStr, vp)
	}

	// Numeric prefix for count (e.g., 5j)
	if keyStr >= "1" && keyStr <= "9" {
		vh.count = vh.count*10 + int(keyStr[0]-'0')
		return true, nil
	}

	count := vh.count
	if count == 0 {
		count = 1
	}

	var consumed bool
	var cmd tea.Cmd

	switch keyStr {
	// Navigation
	case "j":
		vp.LineDown(count)
		consumed = true
	case "k":
		vp.LineUp(count)
		consumed = true

	// Scroll
	case "ctrl+d":
		vp.HalfViewDown()
		consumed = true
	case "ctrl+u":
		vp.HalfViewUp()
		consumed = true

	// Go to
	case "g":
		if vh.lastG {
			vp.GotoTop()
			vh.lastG = false
		} else {
			vh.lastG = true
		}
		consumed = true
	case "G":
		vp.GotoBottom()
		consumed = true

	// Thread navigation
	case "[":
		consumed = true
		cmd = intent(ThreadStepMsg{Delta: -1})
	case "]":
		consumed = true
		cmd = intent(ThreadStepMsg{Delta: 1})

	// Marks
	case "m":
		vh.pending = pendingSetMark
		consumed = true
	case "'":
		vh.pending = pendingJumpMark
		consumed = true

	// Yank the current transcript line; paste lands in the input line.
	case "y":
		consumed = true
		cmd = intent(YankLinesMsg{Start: vp.YOffset, End: vp.YOffset})
	case "p":
		if vh.register != "" {
			insertAtCursor(input, vh.register)
		}
		consumed = true

	// Enter insert mode
	case "i":
		vh.enterInsertMode(input)
		consumed = true
		cmd = textinput.Blink
	case "a":
		vh.enterInsertMode(input)
		input.CursorEnd()
		consumed = true
		cmd = textinput.Blink
	case "I":
		vh.enterInsertMode(input)
		input.SetCursor(0)
		consumed = true
		cmd = textinput.Blink
	case "A":
		vh.enterInsertMode(input)
		input.CursorEnd()
		consumed = true
		cmd = textinput.Blink

	// Enter visual mode
	case "v":
		vh.enterVisualMode(vp)
		consumed = true

	// Enter command mode
	case ":":
		vh.enterCommandMode()
		consumed = true

	// Search
	case "/":
		vh.enterSearchMode()
		consumed = true

	default:
		consumed = false
	}

	// Reset count after command
	if consumed && keyStr != "g" {
		vh.count = 0
		vh.lastG = false
	}

	return consumed, cmd
}

// handlePendingMark completes an m<key> or '<key> sequence. A key that
// cannot name a mark, or a jump to an unset mark, is reported; the mode
// and existing marks are untouched either way.
func (vh *VimHandler) handlePendingMark(keyStr string, vp *viewport.Model) (bool, tea.Cmd) {
	pending := vh.pending
	vh.pending = pendingNone

	if !validMarkKey(keyStr) {
		return true, intent(ErrorMsg{Err: fmt.Errorf("invalid mark key: %s", keyStr)})
	}

	switch pending {
	case pendingSetMark:
		vh.marks[keyStr] = vp.YOffset
	case pendingJumpMark:
		offset, ok := vh.marks[keyStr]
		if !ok {
			return true, intent(ErrorMsg{Err: fmt.Errorf("mark not set: %s", keyStr)})
		}
		vp.SetYOffset(offset)
	}
	return true, nil
}

// validMarkKey reports whether a key event can name a mark.
func validMarkKey(keyStr string) bool {
	runes := []rune(keyStr)
	if len(runes) != 1 {
		return false
	}
	return unicode.IsLetter(runes[0]) || unicode.IsDigit(runes[0])
}

// =============================================================================
// INSERT MODE
// =============================================================================

func (vh *VimHandler) handleInsertMode(keyStr string, input *textinput.Model) (bool, tea.Cmd) {
	if keyStr == "esc" {
		vh.mode = VimModeNormal
		input.Blur()
		return true, nil
	}
	// Let all other keys pass through to input
	return false, nil
}

// =============================================================================
// VISUAL MODE
// =============================================================================

// handleVisualMode extends a line selection anchored at the scroll
// position where visual mode was entered. Movement keys scroll the
// viewport and drag the selection end with it.
func (vh *VimHandler) handleVisualMode(keyStr string, vp *viewport.Model) (bool, tea.Cmd) {
	if keyStr != "g" {
		defer func() { vh.lastG = false }()
	}
	switch keyStr {
	case "esc":
		vh.mode = VimModeNormal
		vh.visualStart, vh.visualEnd = 0, 0
		return true, nil
	case "j", "down":
		vp.LineDown(1)
	case "k", "up":
		vp.LineUp(1)
	case "ctrl+d":
		vp.HalfViewDown()
	case "ctrl+u":
		vp.HalfViewUp()
	case "g":
		if vh.lastG {
			vp.GotoTop()
			vh.lastG = false
		} else {
			vh.lastG = true
			return true, nil
		}
	case "G":
		vp.GotoBottom()
	case "y":
		start, end := vh.selectionRange()
		vh.mode = VimModeNormal
		return true, intent(YankLinesMsg{Start: start, End: end})
	case "d":
		start, end := vh.selectionRange()
		vh.mode = VimModeNormal
		return true, intent(DeleteLinesMsg{Start: start, End: end})
	default:
		return true, nil // visual mode swallows unbound keys
	}
	vh.visualEnd = vp.YOffset
	return true, nil
}

// selectionRange returns the selected line range in ascending order.
func (vh *VimHandler) selectionRange() (int, int) {
	start, end := vh.visualStart, vh.visualEnd
	if start > end {
		start, end = end, start
	}
	if start < 0 {
		start = 0
	}
	return start, end
}

// =============================================================================
// COMMAND MODE
// =============================================================================

func (vh *VimHandler) handleCommandMode(keyStr string) (bool, tea.Cmd) {
	switch keyStr {
	case "esc":
		vh.commandBuffer = ""
		vh.historyIdx = -1
		vh.mode = VimModeNormal
		return true, nil
	case "enter":
		raw := vh.commandBuffer
		vh.commandBuffer = ""
		vh.historyIdx = -1
		vh.mode = VimModeNormal
		if strings.TrimSpace(raw) == "" {
			return true, nil
		}
		vh.remember(raw)
		return true, intent(CommandSubmittedMsg{Raw: raw})
	case "backspace":
		if len(vh.commandBuffer) > 0 {
			vh.commandBuffer = trimLastRune(vh.commandBuffer)
		} else {
			vh.mode = VimModeNormal
		}
		return true, nil
	case "up":
		if vh.historyIdx+1 < len(vh.history) {
			vh.historyIdx++
			vh.commandBuffer = vh.history[vh.historyIdx]
		}
		return true, nil
	case "down":
		if vh.historyIdx > 0 {
			vh.historyIdx--
			vh.commandBuffer = vh.history[vh.historyIdx]
		} else if vh.historyIdx == 0 {
			vh.historyIdx = -1
			vh.commandBuffer = ""
		}
		return true, nil
	default:
		if text, ok := keyText(keyStr); ok {
			vh.commandBuffer += text
			vh.historyIdx = -1
		}
		return true, nil
	}
}

// remember prepends a submitted command to the history, skipping
// consecutive duplicates and dropping the oldest past the limit.
func (vh *VimHandler) remember(raw string) {
	if len(vh.history) > 0 && vh.history[0] == raw {
		return
	}
	vh.history = append([]string{raw}, vh.history...)
	if len(vh.history) > historyLimit {
		vh.history = vh.history[:historyLimit]
	}
}

// =============================================================================
// SEARCH MODE
// =============================================================================

func (vh *VimHandler) handleSearchMode(keyStr string) (bool, tea.Cmd) {
	switch keyStr {
	case "esc":
		vh.searchBuffer = ""
		vh.mode = VimModeNormal
		return true, nil
	case "enter":
		query := vh.searchBuffer
		vh.searchBuffer = ""
		vh.mode = VimModeNormal
		if strings.TrimSpace(query) == "" {
			return true, nil
		}
		return true, intent(SearchSubmittedMsg{Query: query})
	case "backspace":
		if len(vh.searchBuffer) > 0 {
			vh.searchBuffer = trimLastRune(vh.searchBuffer)
		} else {
			vh.mode = VimModeNormal
		}
		return true, nil
	default:
		if text, ok := keyText(keyStr); ok {
			vh.searchBuffer += text
		}
		return true, nil
	}
}

// =============================================================================
// MODE TRANSITIONS
// =============================================================================

func (vh *VimHandler) enterInsertMode(input *textinput.Model) {
	vh.mode = VimModeInsert
	input.Focus()
}

func (vh *VimHandler) enterVisualMode(vp *viewport.Model) {
	vh.mode = VimModeVisual
	vh.visualStart = vp.YOffset
	vh.visualEnd = vp.YOffset
}

func (vh *VimHandler) enterCommandMode() {
	vh.mode = VimModeCommand
	vh.commandBuffer = ""
	vh.historyIdx = -1
}

func (vh *VimHandler) enterSearchMode() {
	vh.mode = VimModeSearch
	vh.searchBuffer = ""
}

// =============================================================================
// DISPLAY HELPERS
// =============================================================================

// PromptLine returns the in-progress command or search line for display,
// sigil included, or "" outside those modes.
func (vh *VimHandler) PromptLine() string {
	switch vh.mode {
	case VimModeCommand:
		return ":" + vh.commandBuffer
	case VimModeSearch:
		return "/" + vh.searchBuffer
	default:
		return ""
	}
}

// Register returns the current yank register contents.
func (vh *VimHandler) Register() string {
	return vh.register
}

// SetRegister stores yanked text. The update loop resolves line-range
// yank intents against the rendered transcript and writes back here.
func (vh *VimHandler) SetRegister(text string) {
	vh.register = text
}

// =============================================================================
// SMALL HELPERS
// =============================================================================

// intent wraps a typed message as a command for the update loop.
func intent(msg tea.Msg) tea.Cmd {
	return func() tea.Msg { return msg }
}

// keyText maps a key event to the text it should append to a line
// buffer. Special keys are encoded by bubbletea as multi-char names and
// are rejected; the space key has been spelled both " " and "space"
// across bubbletea versions.
func keyText(keyStr string) (string, bool) {
	if keyStr == " " || keyStr == "space" {
		return " ", true
	}
	runes := []rune(keyStr)
	if len(runes) == 1 && unicode.IsPrint(runes[0]) {
		return keyStr, true
	}
	return "", false
}

func trimLastRune(s string) string {
	runes := []rune(s)
	return string(runes[:len(runes)-1])
}

func insertAtCursor(input *textinput.Model, text string) {
	runes := []rune(input.Value())
	pos := input.Position()
	if pos < 0 {
		pos = 0
	}
	if pos > len(runes) {
		pos = len(runes)
	}
	input.SetValue(string(runes[:pos]) + text + string(runes[pos:]))
	input.SetCursor(pos + len([]rune(text)))
}
