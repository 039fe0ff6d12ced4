package watch

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
)

// HealthState is the last /healthz answer plus connection status.
type HealthState struct {
	Status        string
	UptimeSeconds int64
	Generating    bool
	Generators    int
	Connected     bool
	LastCheck     time.Time
}

func (h HealthState) label(theme Theme) string {
	switch {
	case !h.Connected:
		return theme.StatusFailed.Render("CONNECTING")
	case h.Status != "" && h.Status != "ok":
		return theme.StatusFailed.Render("DEGRADED")
	case h.Generating:
		return theme.StatusRunning.Render("GENERATING")
	default:
		return theme.StatusOK.Render("IDLE")
	}
}

func renderHeader(health HealthState, ticker Ticker, spinner Spinner, theme Theme, width int) string {
	inner := width - 4

	title := " MOAGEN WATCH " + theme.Highlight.Render(ticker.Current())
	clock := theme.Dim.Render(time.Now().Format("15:04:05"))
	gap := max(inner-lipgloss.Width(title)-lipgloss.Width(clock)-4, 1)

	since := "never"
	if last := spinner.LastEvent(); !last.IsZero() {
		since = time.Since(last).Round(time.Second).String() + " ago"
	}

	rows := []string{
		title + strings.Repeat(" ", gap) + clock + " ",
		fmt.Sprintf(" %s  uptime %s  generators: %d",
			health.label(theme),
			formatDuration(time.Duration(health.UptimeSeconds)*time.Second),
			health.Generators),
		fmt.Sprintf(" Last event: %s %s", since, spinner.Render(theme)),
	}
	return theme.Border.Width(inner).Render(lipgloss.JoinVertical(lipgloss.Left, rows...))
}

// formatDuration keeps the two most significant units.
func formatDuration(d time.Duration) string {
	secs := int(d.Seconds())
	switch {
	case d < time.Minute:
		return fmt.Sprintf("%ds", secs)
	case d < time.Hour:
		return fmt.Sprintf("%dm %ds", secs/60, secs%60)
	default:
		return fmt.Sprintf("%dh %dm", secs/3600, (secs/60)%60)
	}
}
