package watch

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/mattjoyce/moagen/internal/events"
)

func renderEventStream(eventLog []events.Event, theme Theme, width int) string {
	innerWidth := width - 4

	if len(eventLog) == 0 {
		content := lipgloss.JoinVertical(lipgloss.Left,
			theme.Title.Render("EVENT STREAM"),
			theme.Dim.Render("  Waiting for events..."),
		)
		return theme.Border.Width(innerWidth).Render(content)
	}

	var lines []string
	for i, e := range eventLog {
		if i >= 10 {
			break
		}
		lines = append(lines, formatEvent(e, theme))
	}

	eventsText := lipgloss.NewStyle().Padding(0, 1).Render(strings.Join(lines, "\n"))
	content := lipgloss.JoinVertical(lipgloss.Left,
		theme.Title.Render("EVENT STREAM"),
		eventsText,
	)

	return theme.Border.Width(innerWidth).Render(content)
}

func formatEvent(e events.Event, theme Theme) string {
	ts := theme.Dim.Render(e.At.Local().Format("15:04:05"))

	var typeStyle lipgloss.Style
	switch {
	case strings.HasSuffix(e.Type, ".completed"):
		typeStyle = theme.StatusOK
	case strings.HasSuffix(e.Type, ".failed"):
		typeStyle = theme.StatusFailed
	case strings.HasSuffix(e.Type, ".started"):
		typeStyle = theme.StatusRunning
	default:
		typeStyle = theme.Dim
	}

	typeName := typeStyle.Render(fmt.Sprintf("%-18s", e.Type))
	return fmt.Sprintf("%s %s %s", ts, typeName, eventDesc(e))
}

func eventDesc(e events.Event) string {
	var parts []string
	if e.RunID != "" {
		parts = append(parts, fmt.Sprintf("[%s]", shortID(e.RunID)))
	}

	switch {
	case strings.HasPrefix(e.Type, "dataset."):
		var p events.DatasetPayload
		_ = json.Unmarshal(e.Data, &p)
		parts = append(parts, p.Definition)
		if p.Relabeled > 0 {
			parts = append(parts, fmt.Sprintf("relabeled=%d", p.Relabeled))
		}
		if p.Error != "" {
			parts = append(parts, truncate(p.Error, 60))
		}
	case strings.HasPrefix(e.Type, "run."):
		var p events.RunPayload
		_ = json.Unmarshal(e.Data, &p)
		if e.Type == events.RunCompleted {
			parts = append(parts, fmt.Sprintf("%d/%d ok", p.Succeeded, p.Total))
		} else {
			parts = append(parts, fmt.Sprintf("%d datasets", p.Total))
		}
	default:
		parts = append(parts, truncate(string(e.Data), 60))
	}
	return strings.Join(parts, " ")
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func truncate(s string, n int) string {
	if len(s) > n {
		return s[:n] + "..."
	}
	return s
}
