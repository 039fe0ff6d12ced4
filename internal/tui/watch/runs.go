package watch

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/mattjoyce/moagen/internal/events"
)

// RunState tracks a generation run discovered from events.
type RunState struct {
	ID        string
	RunDir    string
	Total     int
	Succeeded int
	Failed    int
	Active    map[int]*DatasetState
	StartTime time.Time
	EndTime   time.Time
}

// Done reports whether run.completed was seen.
func (r *RunState) Done() bool { return !r.EndTime.IsZero() }

// DatasetState tracks one dataset currently being generated.
type DatasetState struct {
	Definition string
	StartTime  time.Time
}

// updateRunState applies one event to the run table.
func updateRunState(runs map[string]*RunState, e events.Event) {
	if e.RunID == "" {
		return
	}
	run, ok := runs[e.RunID]
	if !ok {
		run = &RunState{ID: e.RunID, Active: make(map[int]*DatasetState), StartTime: e.At}
		runs[e.RunID] = run
	}

	switch e.Type {
	case events.RunStarted, events.RunCompleted:
		var p events.RunPayload
		if err := json.Unmarshal(e.Data, &p); err != nil {
			return
		}
		run.RunDir = p.RunDir
		run.Total = p.Total
		if e.Type == events.RunCompleted {
			run.Succeeded = p.Succeeded
			run.Failed = p.Failed
			run.EndTime = e.At
			clear(run.Active)
		}

	case events.DatasetStarted, events.DatasetCompleted, events.DatasetFailed:
		var p events.DatasetPayload
		if err := json.Unmarshal(e.Data, &p); err != nil {
			return
		}
		switch e.Type {
		case events.DatasetStarted:
			run.Active[p.Position] = &DatasetState{Definition: p.Definition, StartTime: e.At}
		case events.DatasetCompleted:
			delete(run.Active, p.Position)
			run.Succeeded++
		case events.DatasetFailed:
			delete(run.Active, p.Position)
			run.Failed++
		}
	}
}

// sortedRuns returns runs newest first.
func sortedRuns(runs map[string]*RunState) []*RunState {
	out := make([]*RunState, 0, len(runs))
	for _, r := range runs {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].StartTime.Equal(out[j].StartTime) {
			return out[i].StartTime.After(out[j].StartTime)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func renderRuns(runs map[string]*RunState, selected int, theme Theme, width int) string {
	innerWidth := width - 4

	if len(runs) == 0 {
		content := lipgloss.JoinVertical(lipgloss.Left,
			theme.Title.Render("RUNS"),
			theme.Dim.Render("  No generation activity yet..."),
		)
		return theme.Border.Width(innerWidth).Render(content)
	}

	lines := []string{theme.Title.Render("RUNS")}
	for i, r := range sortedRuns(runs) {
		if i >= 5 {
			break
		}
		lines = append(lines, renderRunRow(r, i == selected, theme, innerWidth))
	}
	return theme.Border.Width(innerWidth).Render(lipgloss.JoinVertical(lipgloss.Left, lines...))
}

func renderRunRow(r *RunState, isSelected bool, theme Theme, width int) string {
	nameStyle := lipgloss.NewStyle()
	if isSelected {
		nameStyle = nameStyle.Bold(true).
			Foreground(lipgloss.Color("229")).
			Background(lipgloss.Color("57"))
	}

	status := theme.StatusRunning.Render("running")
	if r.Done() {
		status = theme.StatusOK.Render("done " + r.EndTime.Sub(r.StartTime).Round(time.Millisecond).String())
		if r.Failed > 0 {
			status = theme.StatusFailed.Render(fmt.Sprintf("done, %d failed", r.Failed))
		}
	}

	barWidth := min(30, max(10, width-60))
	var line strings.Builder
	fmt.Fprintf(&line, " %s  %s  %s",
		nameStyle.Render(fmt.Sprintf("%-8s %-20s", shortID(r.ID), r.RunDir)),
		progressBar(r.Succeeded, r.Failed, r.Total, barWidth, theme),
		status,
	)

	positions := make([]int, 0, len(r.Active))
	for pos := range r.Active {
		positions = append(positions, pos)
	}
	sort.Ints(positions)
	for _, pos := range positions {
		d := r.Active[pos]
		fmt.Fprintf(&line, "\n    └─ %s %s",
			theme.Highlight.Render(d.Definition),
			theme.Dim.Render(time.Since(d.StartTime).Round(time.Second).String()),
		)
	}
	return line.String()
}
