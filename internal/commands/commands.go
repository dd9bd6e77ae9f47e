// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package commands parses the colon-command surface of the TUI into typed
// invocations the session coordinator executes.
package commands

import (
	"strconv"
	"strings"
)

// Name is a canonical command name after alias resolution.
type Name string

const (
	CmdQuit   Name = "quit"
	CmdWrite  Name = "write"
	CmdModel  Name = "model"
	CmdThread Name = "thread"
	CmdSearch Name = "search"
	CmdHelp   Name = "help"
	CmdSet    Name = "set"
)

// Thread subcommands.
const (
	ThreadList   = "list"
	ThreadNew    = "new"
	ThreadBranch = "branch"
	ThreadDelete = "delete"
	ThreadSwitch = "switch"
)

// Themes accepted by `set theme`.
var Themes = []string{"dark", "light", "mono"}

// aliases maps every accepted spelling to its canonical command.
var aliases = map[string]Name{
	"q": CmdQuit, "quit": CmdQuit, "exit": CmdQuit,
	"w": CmdWrite, "write": CmdWrite, "save": CmdWrite,
	"model":  CmdModel,
	"thread": CmdThread, "t": CmdThread,
	"search": CmdSearch,
	"help":   CmdHelp, "h": CmdHelp,
	"set": CmdSet,
}

// Invocation is one parsed command.
type Invocation struct {
	Name Name

	// Sub is the subcommand for commands that support one (thread).
	Sub string

	// ThreadID is set for thread delete/switch.
	ThreadID int64

	// Args are the remaining positional arguments.
	Args []string
}

// UsageError reports malformed user input: unknown command, bad argument,
// out-of-range option value. Always recoverable, never fatal.
type UsageError struct {
	Message string
}

func (e *UsageError) Error() string {
	return e.Message
}

func usageErrorf(msg string) error {
	return &UsageError{Message: msg}
}

// Parse splits raw on whitespace, resolves the first token through the
// alias table and validates the remaining positional arguments.
func Parse(raw string) (*Invocation, error) {
	fields := strings.Fields(strings.TrimSpace(raw))
	if len(fields) == 0 {
		return nil, usageErrorf("empty command")
	}

	name, ok := aliases[strings.ToLower(fields[0])]
	if !ok {
		return nil, usageErrorf("unknown command: " + fields[0])
	}

	inv := &Invocation{Name: name, Args: fields[1:]}

	switch name {
	case CmdModel:
		if len(inv.Args) != 1 {
			return nil, usageErrorf("usage: model <name>")
		}
	case CmdSearch:
		if len(inv.Args) == 0 {
			return nil, usageErrorf("usage: search <query>")
		}
	case CmdSet:
		if len(inv.Args) != 2 {
			return nil, usageErrorf("usage: set <option> <value>")
		}
		if _, err := ParseSetOption(inv.Args[0], inv.Args[1]); err != nil {
			return nil, err
		}
	case CmdThread:
		return parseThread(inv)
	case CmdWrite:
		if len(inv.Args) > 1 {
			return nil, usageErrorf("usage: write [filename]")
		}
	case CmdHelp:
		if len(inv.Args) > 1 {
			return nil, usageErrorf("usage: help [command]")
		}
	}

	return inv, nil
}

// parseThread resolves the thread subcommand. A bare numeric argument is
// shorthand for switching to that thread; no argument lists threads.
func parseThread(inv *Invocation) (*Invocation, error) {
	if len(inv.Args) == 0 {
		inv.Sub = ThreadList
		return inv, nil
	}

	switch strings.ToLower(inv.Args[0]) {
	case ThreadList:
		inv.Sub = ThreadList
	case ThreadNew:
		inv.Sub = ThreadNew
	case ThreadBranch:
		inv.Sub = ThreadBranch
	case ThreadDelete:
		if len(inv.Args) != 2 {
			return nil, usageErrorf("usage: thread delete <id>")
		}
		id, err := parseThreadID(inv.Args[1])
		if err != nil {
			return nil, err
		}
		inv.Sub = ThreadDelete
		inv.ThreadID = id
	default:
		id, err := parseThreadID(inv.Args[0])
		if err != nil {
			return nil, err
		}
		inv.Sub = ThreadSwitch
		inv.ThreadID = id
	}

	return inv, nil
}

func parseThreadID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, usageErrorf("invalid thread id: " + s)
	}
	return id, nil
}

// =============================================================================
// SET OPTIONS
// =============================================================================

// SetOption is a validated `set` invocation.
type SetOption struct {
	Option string

	Temperature float64 // valid when Option == "temperature"
	MaxTokens   int     // valid when Option == "max_tokens"
	Theme       string  // valid when Option == "theme"
}

// ParseSetOption validates an option name and value against its range.
func ParseSetOption(option, value string) (*SetOption, error) {
	switch strings.ToLower(option) {
	case "temperature":
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return nil, usageErrorf("temperature must be a number, got " + value)
		}
		if f < 0 || f > 2 {
			return nil, usageErrorf("temperature must be between 0 and 2")
		}
		return &SetOption{Option: "temperature", Temperature: f}, nil

	case "max_tokens":
		n, err := strconv.Atoi(value)
		if err != nil || n <= 0 {
			return nil, usageErrorf("max_tokens must be a positive integer, got " + value)
		}
		return &SetOption{Option: "max_tokens", MaxTokens: n}, nil

	case "theme":
		v := strings.ToLower(value)
		for _, theme := range Themes {
			if v == theme {
				return &SetOption{Option: "theme", Theme: v}, nil
			}
		}
		return nil, usageErrorf("unknown theme " + value + " (themes: " + strings.Join(Themes, ", ") + ")")

	default:
		return nil, usageErrorf("unknown option: " + option)
	}
}

// =============================================================================
// HELP TEXT
// =============================================================================

type helpEntry struct {
	usage string
	desc  string
}

var helpEntries = map[Name]helpEntry{
	CmdQuit:   {"quit", "Exit braid (aliases: q, exit)"},
	CmdWrite:  {"write [filename]", "Export the current conversation transcript (aliases: w, save)"},
	CmdModel:  {"model <name>", "Switch the generation model"},
	CmdThread: {"thread [list|new|branch|delete <id>|<id>]", "Manage conversation threads (alias: t)"},
	CmdSearch: {"search <query>", "Search conversation titles and message content"},
	CmdHelp:   {"help [command]", "Show help (alias: h)"},
	CmdSet:    {"set <option> <value>", "Set temperature (0-2), max_tokens or theme (" + strings.Join(Themes, "/") + ")"},
}

// Help returns help text for one command, or the full listing when topic
// is empty. Unknown topics are a UsageError.
func Help(topic string) (string, error) {
	if topic != "" {
		name, ok := aliases[strings.ToLower(topic)]
		if !ok {
			return "", usageErrorf("unknown command: " + topic)
		}
		e := helpEntries[name]
		return ":" + e.usage + "\n  " + e.desc, nil
	}

	order := []Name{CmdThread, CmdModel, CmdSearch, CmdWrite, CmdSet, CmdHelp, CmdQuit}
	var sb strings.Builder
	sb.WriteString("Commands:\n")
	for _, name := range order {
		e := helpEntries[name]
		sb.WriteString("  :" + e.usage + "\n      " + e.desc + "\n")
	}
	return sb.String(), nil
}
