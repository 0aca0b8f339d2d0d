// Package tail implements the stardispatch tail TUI: a live, frame-by-frame
// view of a Datastar event stream.
package tail

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/mattjoyce/stardispatch/internal/wire"
)

// Theme centralizes all styling for the tail TUI.
type Theme struct {
	// Status colors
	StatusOK     lipgloss.Style
	StatusFailed lipgloss.Style

	// Event kinds
	Elements lipgloss.Style
	Signals  lipgloss.Style
	Other    lipgloss.Style

	// UI elements
	Border    lipgloss.Style
	Title     lipgloss.Style
	Dim       lipgloss.Style
	Highlight lipgloss.Style

	// Indicators
	TickerActive   lipgloss.Style
	TickerInactive lipgloss.Style
}

func NewDefaultTheme() Theme {
	purple := lipgloss.Color("#874BFD")

	return Theme{
		StatusOK:     lipgloss.NewStyle().Foreground(lipgloss.Color("#00FF00")),
		StatusFailed: lipgloss.NewStyle().Foreground(lipgloss.Color("#FF0000")),

		Elements: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#61AFEF")),
		Signals:  lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#C678DD")),
		Other:    lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#E5C07B")),

		Border: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(purple),
		Title: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Padding(0, 1),
		Dim:       lipgloss.NewStyle().Foreground(lipgloss.Color("#888888")),
		Highlight: lipgloss.NewStyle().Foreground(lipgloss.Color("#E5C07B")),

		TickerActive:   lipgloss.NewStyle().Foreground(lipgloss.Color("#00FF00")),
		TickerInactive: lipgloss.NewStyle().Foreground(lipgloss.Color("#444444")),
	}
}

// EventStyle picks the style for an SSE event name.
func (t Theme) EventStyle(event string) lipgloss.Style {
	switch event {
	case wire.EventPatchElements:
		return t.Elements
	case wire.EventPatchSignals:
		return t.Signals
	default:
		return t.Other
	}
}
