// Package ui provides terminal styling for vaultsync CLI output.
package ui

import (
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
)

// Semantic colors used across status and sync output.
var (
	ColorPass   = lipgloss.Color("#8BC34A") // green: healthy, synced
	ColorWarn   = lipgloss.Color("#FFC107") // yellow: degraded, pending
	ColorFail   = lipgloss.Color("#E53935") // red: failing
	ColorAccent = lipgloss.Color("#2196F3") // blue: headings, IDs
	ColorMuted  = lipgloss.Color("#808080") // grey: timestamps, detail
)

var (
	passStyle   = lipgloss.NewStyle().Foreground(ColorPass)
	warnStyle   = lipgloss.NewStyle().Foreground(ColorWarn)
	failStyle   = lipgloss.NewStyle().Foreground(ColorFail).Bold(true)
	accentStyle = lipgloss.NewStyle().Foreground(ColorAccent)
	mutedStyle  = lipgloss.NewStyle().Foreground(ColorMuted)
	headerStyle = lipgloss.NewStyle().Bold(true)

	// plain is true when the terminal can't render color or the user
	// disabled it (NO_COLOR, dumb terminals, pipes).
	plain = termenv.EnvColorProfile() == termenv.Ascii
)

// RenderPass renders healthy/synced text in green.
func RenderPass(s string) string {
	if plain {
		return s
	}
	return passStyle.Render(s)
}

// RenderWarn renders degraded/pending text in yellow.
func RenderWarn(s string) string {
	if plain {
		return s
	}
	return warnStyle.Render(s)
}

// RenderFail renders failing text in bold red.
func RenderFail(s string) string {
	if plain {
		return s
	}
	return failStyle.Render(s)
}

// RenderAccent renders identifiers and headings in blue.
func RenderAccent(s string) string {
	if plain {
		return s
	}
	return accentStyle.Render(s)
}

// RenderMuted renders secondary detail in grey.
func RenderMuted(s string) string {
	if plain {
		return s
	}
	return mutedStyle.Render(s)
}

// RenderHeader renders a bold section heading.
func RenderHeader(s string) string {
	if plain {
		return s
	}
	return headerStyle.Render(s)
}

// RenderHealth colors a health label by severity.
func RenderHealth(label string) string {
	switch label {
	case "healthy":
		return RenderPass(label)
	case "degraded":
		return RenderWarn(label)
	case "failing":
		return RenderFail(label)
	default:
		return label
	}
}
