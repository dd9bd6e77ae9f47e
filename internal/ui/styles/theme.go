// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package styles provides the visual styling system for the braid TUI.
package styles

import (
	"github.com/charmbracelet/lipgloss"
)

// Theme holds the styled components for the application.
type Theme struct {
	Name string

	// ==========================================================================
	// MESSAGE STYLES
	// ==========================================================================

	UserLabel      lipgloss.Style
	AssistantLabel lipgloss.Style
	SystemLabel    lipgloss.Style
	Streaming      lipgloss.Style

	// ==========================================================================
	// CHROME
	// ==========================================================================

	StatusBar  lipgloss.Style
	Mode       lipgloss.Style
	Notice     lipgloss.Style
	ErrorText  lipgloss.Style
	HelpText   lipgloss.Style
	PromptLine lipgloss.Style

	// ==========================================================================
	// THREAD LIST
	// ==========================================================================

	ThreadItem     lipgloss.Style
	ThreadSelected lipgloss.Style
}

// palette is the minimal color set a theme is built from.
type palette struct {
	accent    string
	secondary string
	muted     string
	errColor  string
	barBg     string
	barFg     string
}

func build(name string, p palette) Theme {
	return Theme{
		Name: name,

		UserLabel:      lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color(p.accent)),
		AssistantLabel: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color(p.secondary)),
		SystemLabel:    lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color(p.muted)),
		Streaming:      lipgloss.NewStyle().Foreground(lipgloss.Color(p.muted)),

		StatusBar:  lipgloss.NewStyle().Background(lipgloss.Color(p.barBg)).Foreground(lipgloss.Color(p.barFg)),
		Mode:       lipgloss.NewStyle().Bold(true).Background(lipgloss.Color(p.accent)).Foreground(lipgloss.Color(p.barBg)).Padding(0, 1),
		Notice:     lipgloss.NewStyle().Foreground(lipgloss.Color(p.secondary)),
		ErrorText:  lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color(p.errColor)),
		HelpText:   lipgloss.NewStyle().Foreground(lipgloss.Color(p.muted)),
		PromptLine: lipgloss.NewStyle().Foreground(lipgloss.Color(p.accent)),

		ThreadItem:     lipgloss.NewStyle().Foreground(lipgloss.Color(p.muted)),
		ThreadSelected: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color(p.accent)),
	}
}

// Dark is the default theme.
func Dark() Theme {
	return build("dark", palette{
		accent:    "86",  // cyan
		secondary: "212", // pink
		muted:     "245",
		errColor:  "196",
		barBg:     "236",
		barFg:     "252",
	})
}

// Light suits light terminal backgrounds.
func Light() Theme {
	return build("light", palette{
		accent:    "25", // blue
		secondary: "90", // purple
		muted:     "241",
		errColor:  "124",
		barBg:     "254",
		barFg:     "236",
	})
}

// Mono avoids color entirely; emphasis comes from weight only.
func Mono() Theme {
	t := Theme{
		Name: "mono",

		UserLabel:      lipgloss.NewStyle().Bold(true),
		AssistantLabel: lipgloss.NewStyle().Bold(true),
		SystemLabel:    lipgloss.NewStyle().Faint(true),
		Streaming:      lipgloss.NewStyle().Faint(true),

		StatusBar:  lipgloss.NewStyle().Reverse(true),
		Mode:       lipgloss.NewStyle().Bold(true).Reverse(true).Padding(0, 1),
		Notice:     lipgloss.NewStyle(),
		ErrorText:  lipgloss.NewStyle().Bold(true),
		HelpText:   lipgloss.NewStyle().Faint(true),
		PromptLine: lipgloss.NewStyle().Bold(true),

		ThreadItem:     lipgloss.NewStyle().Faint(true),
		ThreadSelected: lipgloss.NewStyle().Bold(true),
	}
	return t
}

// ByName resolves a theme name, falling back to dark.
func ByName(name string) Theme {
	switch name {
	case "light":
		return Light()
	case "mono":
		return Mono()
	default:
		return Dark()
	}
}

// GlamourStyle maps a theme to the closest glamour standard style name.
func GlamourStyle(name string) string {
	switch name {
	case "light":
		return "light"
	case "mono":
		return "notty"
	default:
		return "dark"
	}
}
