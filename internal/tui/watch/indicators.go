package watch

import (
	"fmt"
	"strings"
	"time"
)

// Ticker rotates on every local tick so a frozen UI is visible.
type Ticker struct {
	frames []string
	index  int
}

func NewTicker() Ticker {
	return Ticker{frames: []string{"◐", "◓", "◑", "◒"}}
}

func (t *Ticker) Tick() {
	t.index = (t.index + 1) % len(t.frames)
}

func (t Ticker) Current() string {
	return t.frames[t.index]
}

const (
	spinnerDots  = 5
	spinnerDecay = 2 * time.Second
)

// Spinner lights up on events and loses one dot per decay step.
type Spinner struct {
	dots      int
	lastEvent time.Time
}

func NewSpinner() Spinner {
	return Spinner{}
}

func (s *Spinner) OnEvent() {
	s.dots = spinnerDots
	s.lastEvent = time.Now()
}

// Decay fades the spinner based on time since the last event.
func (s *Spinner) Decay() {
	if s.dots == 0 {
		return
	}
	s.dots = max(0, spinnerDots-int(time.Since(s.lastEvent)/spinnerDecay))
}

func (s Spinner) Render(theme Theme) string {
	var result strings.Builder
	for i := range spinnerDots {
		if i < s.dots {
			result.WriteString(theme.TickerActive.Render("●"))
		} else {
			result.WriteString(theme.TickerInactive.Render("○"))
		}
	}
	return result.String()
}

func (s Spinner) LastEvent() time.Time {
	return s.lastEvent
}

// progressBar renders done/total as a fixed-width bar with a counter.
func progressBar(done, failed, total, width int, theme Theme) string {
	if total <= 0 || width <= 0 {
		return ""
	}
	okCells := done * width / total
	failCells := failed * width / total
	if okCells+failCells > width {
		failCells = width - okCells
	}
	rest := width - okCells - failCells
	return fmt.Sprintf("%s%s%s %d/%d",
		theme.Progress.Render(strings.Repeat("█", okCells)),
		theme.StatusFailed.Render(strings.Repeat("█", failCells)),
		theme.Dim.Render(strings.Repeat("░", rest)),
		done+failed, total)
}
