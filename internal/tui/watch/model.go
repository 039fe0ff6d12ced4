package watch

import (
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/mattjoyce/moagen/internal/events"
)

const (
	eventLogSize    = 50
	healthInterval  = 5 * time.Second
	reconnectDelay  = 3 * time.Second
	footerKeyLegend = " [q] Quit • [↑/↓] Select run"
)

// Model follows one moagen server: its health, the runs it is executing and
// the raw event stream.
type Model struct {
	apiURL string
	apiKey string

	width  int
	height int

	health   HealthState
	runs     map[string]*RunState
	eventLog []events.Event
	selected int
	problem  string

	ticker  Ticker
	spinner Spinner
	theme   Theme

	stream chan events.Event
}

// New returns a watch model for the server at apiURL.
func New(apiURL, apiKey string) *Model {
	return &Model{
		apiURL:  apiURL,
		apiKey:  apiKey,
		runs:    make(map[string]*RunState),
		stream:  make(chan events.Event, 100),
		ticker:  NewTicker(),
		spinner: NewSpinner(),
		theme:   NewDefaultTheme(),
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(
		tea.EnterAltScreen,
		subscribeToEvents(m.apiURL, m.apiKey, m.stream),
		receiveNextEvent(m.stream),
		m.pollHealth(0),
		secondTick(),
	)
}

func secondTick() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg { return tickMsg(t) })
}

// pollHealth fetches /healthz after delay; zero fetches immediately.
func (m Model) pollHealth(delay time.Duration) tea.Cmd {
	url, key := m.apiURL, m.apiKey
	if delay == 0 {
		return func() tea.Msg { return fetchHealth(url, key) }
	}
	return tea.Tick(delay, func(time.Time) tea.Msg { return fetchHealth(url, key) })
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.onKey(msg)
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
	case tickMsg:
		m.ticker.Tick()
		m.spinner.Decay()
		return m, secondTick()
	case eventMsg:
		m.record(events.Event(msg))
		return m, receiveNextEvent(m.stream)
	case healthMsg:
		m.health = HealthState{
			Status:        msg.Status,
			UptimeSeconds: msg.UptimeSeconds,
			Generating:    msg.Generating,
			Generators:    msg.Generators,
			Connected:     true,
			LastCheck:     time.Now(),
		}
		m.problem = ""
		return m, m.pollHealth(healthInterval)
	case sseDisconnectedMsg:
		// receiveNextEvent stays parked on the same channel across reconnects.
		m.health.Connected = false
		m.problem = "SSE disconnected, reconnecting..."
		return m, tea.Tick(reconnectDelay, func(time.Time) tea.Msg { return reconnectMsg{} })
	case reconnectMsg:
		return m, subscribeToEvents(m.apiURL, m.apiKey, m.stream)
	case errMsg:
		m.problem = msg.Error()
		return m, m.pollHealth(healthInterval)
	}
	return m, nil
}

func (m Model) onKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		return m, tea.Quit
	case "up", "k":
		m.selected = max(m.selected-1, 0)
	case "down", "j":
		m.selected = min(m.selected+1, max(len(m.runs)-1, 0))
	}
	return m, nil
}

// record folds one streamed event into the run table and the log.
func (m *Model) record(e events.Event) {
	m.eventLog = append([]events.Event{e}, m.eventLog...)
	if len(m.eventLog) > eventLogSize {
		m.eventLog = m.eventLog[:eventLogSize]
	}
	m.spinner.OnEvent()
	updateRunState(m.runs, e)

	if e.Type == events.RunStarted {
		m.health.Generating = true
	} else if e.Type == events.RunCompleted {
		m.health.Generating = false
	}
	m.health.Connected = true
	m.problem = ""
}

func (m Model) View() string {
	if m.width == 0 {
		return "Connecting to moagen..."
	}

	sections := []string{
		renderHeader(m.health, m.ticker, m.spinner, m.theme, m.width),
		renderRuns(m.runs, m.selected, m.theme, m.width),
		renderEventStream(m.eventLog, m.theme, m.width),
	}
	if m.problem != "" {
		sections = append(sections, m.theme.StatusFailed.Render(" ⚠ "+m.problem))
	}
	sections = append(sections, m.theme.Dim.Render(footerKeyLegend))

	return lipgloss.NewStyle().Margin(1, 2).Render(lipgloss.JoinVertical(lipgloss.Left, sections...))
}
