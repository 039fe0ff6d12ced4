// Package watch implements a live terminal view of generation runs, fed by
// the server-sent events of a running moagen API.
package watch

import "github.com/charmbracelet/lipgloss"

const (
	colorGreen  = lipgloss.Color("#00FF00")
	colorYellow = lipgloss.Color("#FFFF00")
	colorRed    = lipgloss.Color("#FF0000")
	colorPurple = lipgloss.Color("#874BFD")
	colorWhite  = lipgloss.Color("#FAFAFA")
	colorGrey   = lipgloss.Color("#888888")
	colorDark   = lipgloss.Color("#444444")
	colorAmber  = lipgloss.Color("#E5C07B")
	colorBlue   = lipgloss.Color("#61AFEF")
)

// Theme holds the styles used by every panel.
type Theme struct {
	StatusOK      lipgloss.Style
	StatusRunning lipgloss.Style
	StatusFailed  lipgloss.Style

	Border    lipgloss.Style
	Title     lipgloss.Style
	Dim       lipgloss.Style
	Highlight lipgloss.Style

	TickerActive   lipgloss.Style
	TickerInactive lipgloss.Style
	Progress       lipgloss.Style
}

func fg(c lipgloss.Color) lipgloss.Style { return lipgloss.NewStyle().Foreground(c) }

func NewDefaultTheme() Theme {
	return Theme{
		StatusOK:       fg(colorGreen),
		StatusRunning:  fg(colorYellow),
		StatusFailed:   fg(colorRed),
		Border:         lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(colorPurple),
		Title:          fg(colorWhite).Bold(true).Padding(0, 1),
		Dim:            fg(colorGrey),
		Highlight:      fg(colorAmber),
		TickerActive:   fg(colorGreen),
		TickerInactive: fg(colorDark),
		Progress:       fg(colorBlue),
	}
}
