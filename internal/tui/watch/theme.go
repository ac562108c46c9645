// Package watch implements the live receiver dashboard: a full-screen
// terminal UI fed by the admin API's /healthz endpoint and /v1/events
// stream.
package watch

import "github.com/charmbracelet/lipgloss"

// Theme centralizes all styling for the watch TUI.
type Theme struct {
	// Outcome colors
	StatusOK       lipgloss.Style
	StatusIgnored  lipgloss.Style
	StatusRejected lipgloss.Style

	// UI elements
	Border    lipgloss.Style
	Title     lipgloss.Style
	Header    lipgloss.Style
	Dim       lipgloss.Style
	Highlight lipgloss.Style

	// Indicators
	TickerActive   lipgloss.Style
	TickerInactive lipgloss.Style
}

func NewDefaultTheme() Theme {
	accent := lipgloss.Color("#00AF87")

	return Theme{
		StatusOK:       lipgloss.NewStyle().Foreground(lipgloss.Color("#5FD75F")),
		StatusIgnored:  lipgloss.NewStyle().Foreground(lipgloss.Color("#888888")),
		StatusRejected: lipgloss.NewStyle().Foreground(lipgloss.Color("#FF5F5F")),

		Border: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(accent),
		Title: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Padding(0, 1),
		Header: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#61AFEF")),
		Dim:       lipgloss.NewStyle().Foreground(lipgloss.Color("#888888")),
		Highlight: lipgloss.NewStyle().Foreground(lipgloss.Color("#E5C07B")),

		TickerActive:   lipgloss.NewStyle().Foreground(lipgloss.Color("#5FD75F")),
		TickerInactive: lipgloss.NewStyle().Foreground(lipgloss.Color("#444444")),
	}
}
