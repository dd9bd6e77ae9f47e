// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package cli parses braid's command line and runs the chosen entry
// point: the TUI by default, or one-shot subcommands.
package cli

import (
	"fmt"
	"strings"
)

// Command is the selected top-level entry point.
type Command int

const (
	CommandTUI Command = iota
	CommandAsk
	CommandVersion
	CommandHelp
)

// Options is the parsed command line.
type Options struct {
	Command Command

	// Question is the prompt for `braid ask`.
	Question string

	// Overrides applied on top of the config file.
	ConfigPath string
	DBPath     string
	Model      string
}

// Usage is the top-level help text.
const Usage = `braid - threaded LLM chat for the terminal

Usage:
  braid                 start the interactive TUI
  braid ask <question>  print a single response and exit
  braid version         print the version
  braid help            show this help

Flags:
  --config PATH   config file (default ~/.braid/config.toml)
  --db PATH       conversation database (default ~/.braid/braid.db)
  --model NAME    model override
`

// Parse turns raw arguments (without the program name) into Options.
// Flags may appear before or after the subcommand.
func Parse(args []string) (*Options, error) {
	opts := &Options{}
	var positional []string

	i := 0
	for i < len(args) {
		arg := args[i]
		if !strings.HasPrefix(arg, "-") {
			positional = append(positional, arg)
			i++
			continue
		}

		name := strings.TrimLeft(arg, "-")
		value := ""
		if eq := strings.Index(name, "="); eq >= 0 {
			name, value = name[:eq], name[eq+1:]
		} else {
			if i+1 >= len(args) {
				return nil, fmt.Errorf("flag --%s requires a value", name)
			}
			value = args[i+1]
			i++
		}

		switch name {
		case "config":
			opts.ConfigPath = value
		case "db":
			opts.DBPath = value
		case "model", "m":
			opts.Model = value
		default:
			return nil, fmt.Errorf("unknown flag: %s", arg)
		}
		i++
	}

	if len(positional) == 0 {
		opts.Command = CommandTUI
		return opts, nil
	}

	switch positional[0] {
	case "ask":
		if len(positional) < 2 {
			return nil, fmt.Errorf("usage: braid ask <question>")
		}
		opts.Command = CommandAsk
		opts.Question = strings.Join(positional[1:], " ")
	case "version":
		opts.Command = CommandVersion
	case "help":
		opts.Command = CommandHelp
	default:
		return nil, fmt.Errorf("unknown command: %s", positional[0])
	}
	return opts, nil
}
