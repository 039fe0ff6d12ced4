// Package tui implements the interactive dataset-list builder.
package tui

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/google/uuid"

	"github.com/mattjoyce/moagen/internal/dataset"
	"github.com/mattjoyce/moagen/internal/loader"
)

// Action is how the builder was left.
type Action int

const (
	// ActionExit discards the list.
	ActionExit Action = iota
	// ActionGenerate hands the list to the generator.
	ActionGenerate
)

// Result is returned when the builder quits.
type Result struct {
	Action Action
	Specs  []dataset.Spec
}

type mode int

const (
	modeMenu mode = iota
	modeAdd
	modeRemove
	modeWrite
	modeFallback
)

type command struct {
	name string
	run  func(m *Model) tea.Cmd
}

var commands = []command{
	{"Add dataset", (*Model).startAdd},
	{"Remove dataset", (*Model).startRemove},
	{"Write to file", (*Model).startWrite},
	{"Clear list", (*Model).clearList},
	{"Generate datasets", (*Model).generate},
	{"Exit", (*Model).exit},
}

var (
	docStyle    = lipgloss.NewStyle().Margin(1, 2)
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#61AFEF"))
	dimStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#888888"))
	cursorStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#E5C07B"))
	okStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#00FF00"))
	errStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF0000"))
	ruleStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#874BFD"))
)

// Model is the bubbletea model of the builder.
type Model struct {
	specs  []dataset.Spec
	cursor int
	mode   mode
	input  textinput.Model

	notice  string
	failure string

	// fallbackPath is offered when writing to the chosen path fails.
	fallbackPath string

	result Result
	done   bool
}

// New creates a builder seeded with specs.
func New(specs []dataset.Spec) Model {
	ti := textinput.New()
	ti.CharLimit = 256
	ti.Width = 60
	return Model{specs: append([]dataset.Spec(nil), specs...), input: ti}
}

// Specs returns the current list.
func (m Model) Specs() []dataset.Spec { return append([]dataset.Spec(nil), m.specs...) }

// Result returns how the builder ended. Valid once the program has quit.
func (m Model) Result() Result { return m.result }

func (m Model) Init() tea.Cmd { return nil }

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	key, ok := msg.(tea.KeyMsg)
	if !ok {
		if m.mode != modeMenu {
			var cmd tea.Cmd
			m.input, cmd = m.input.Update(msg)
			return m, cmd
		}
		return m, nil
	}
	if key.Type == tea.KeyCtrlC {
		return m, m.exit()
	}

	switch m.mode {
	case modeMenu:
		return m.updateMenu(key)
	case modeFallback:
		return m.updateFallback(key)
	default:
		return m.updatePrompt(key)
	}
}

func (m Model) updateMenu(key tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch key.String() {
	case "up", "k":
		if m.cursor > 0 {
			m.cursor--
		}
	case "down", "j":
		if m.cursor < len(commands)-1 {
			m.cursor++
		}
	case "enter":
		m.clearStatus()
		cmd := commands[m.cursor].run(&m)
		return m, cmd
	case "q", "esc":
		return m, m.exit()
	default:
		n, err := strconv.Atoi(key.String())
		if err == nil && n >= 1 && n <= len(commands) {
			m.cursor = n - 1
			m.clearStatus()
			cmd := commands[m.cursor].run(&m)
			return m, cmd
		}
	}
	return m, nil
}

func (m Model) updatePrompt(key tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch key.Type {
	case tea.KeyEsc:
		m.toMenu()
		return m, nil
	case tea.KeyEnter:
		value := strings.TrimSpace(m.input.Value())
		switch m.mode {
		case modeAdd:
			m.submitAdd(value)
		case modeRemove:
			m.submitRemove(value)
		case modeWrite:
			m.submitWrite(value)
		}
		return m, nil
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(key)
	return m, cmd
}

func (m Model) updateFallback(key tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch strings.ToLower(key.String()) {
	case "y":
		if err := loader.WriteDefinitions(m.fallbackPath, m.specs); err != nil {
			m.failure = err.Error()
		} else {
			m.notice = fmt.Sprintf("Wrote %d datasets to %s", len(m.specs), m.fallbackPath)
		}
		m.mode = modeMenu
	case "n", "esc":
		m.mode = modeMenu
	}
	return m, nil
}

func (m *Model) startAdd() tea.Cmd {
	return m.prompt(modeAdd, "Agrawal_f_1_2_p_500_w_100_s_1000")
}

func (m *Model) submitAdd(value string) {
	if value == "" {
		m.toMenu()
		return
	}
	spec, err := dataset.Parse(value)
	if err != nil {
		// Stay in the prompt so the definition can be corrected.
		m.failure = err.Error()
		return
	}
	m.specs = append(m.specs, spec)
	m.toMenu()
	m.notice = "Added " + spec.String()
}

func (m *Model) startRemove() tea.Cmd {
	if len(m.specs) == 0 {
		m.failure = "The list is empty"
		return nil
	}
	return m.prompt(modeRemove, fmt.Sprintf("1-%d", len(m.specs)))
}

func (m *Model) submitRemove(value string) {
	idx, err := strconv.Atoi(value)
	if err != nil || idx < 1 || idx > len(m.specs) {
		m.failure = fmt.Sprintf("Enter a number between 1 and %d", len(m.specs))
		return
	}
	removed := m.specs[idx-1]
	m.specs = append(m.specs[:idx-1], m.specs[idx:]...)
	m.toMenu()
	m.notice = "Removed " + removed.String()
}

func (m *Model) startWrite() tea.Cmd {
	return m.prompt(modeWrite, "datasets.txt")
}

func (m *Model) submitWrite(path string) {
	if path == "" {
		m.failure = "A file path is required"
		return
	}
	if err := loader.WriteDefinitions(path, m.specs); err != nil {
		m.mode = modeFallback
		m.input.Blur()
		m.fallbackPath = uuid.NewString() + ".txt"
		m.failure = err.Error()
		return
	}
	m.toMenu()
	m.notice = fmt.Sprintf("Wrote %d datasets to %s", len(m.specs), path)
}

func (m *Model) clearList() tea.Cmd {
	m.specs = nil
	m.notice = "List cleared"
	return nil
}

func (m *Model) generate() tea.Cmd {
	m.result = Result{Action: ActionGenerate, Specs: m.Specs()}
	m.done = true
	return tea.Quit
}

func (m *Model) exit() tea.Cmd {
	m.result = Result{Action: ActionExit}
	m.done = true
	return tea.Quit
}

func (m *Model) prompt(md mode, placeholder string) tea.Cmd {
	m.mode = md
	m.input.Reset()
	m.input.Placeholder = placeholder
	return m.input.Focus()
}

func (m *Model) toMenu() {
	m.mode = modeMenu
	m.input.Blur()
	m.input.Reset()
	m.failure = ""
}

func (m *Model) clearStatus() {
	m.notice = ""
	m.failure = ""
}

func (m Model) View() string {
	if m.done {
		if m.result.Action == ActionGenerate {
			return "Generating...\n"
		}
		return "Exiting...\n"
	}

	var b strings.Builder
	rule := ruleStyle.Render(strings.Repeat("=", 40))

	b.WriteString(titleStyle.Render("INTERACTIVE MOA BULK GENERATOR") + "\n")
	b.WriteString(rule + "\n")
	b.WriteString("Datasets to generate:\n")
	if len(m.specs) == 0 {
		b.WriteString(dimStyle.Render("    (none)") + "\n")
	}
	for i, s := range m.specs {
		fmt.Fprintf(&b, "    %d. %s\n", i+1, s.String())
	}
	b.WriteString(rule + "\n")

	switch m.mode {
	case modeMenu:
		b.WriteString("Commands:\n")
		for i, c := range commands {
			line := fmt.Sprintf("%d - %s", i+1, c.name)
			if i == m.cursor {
				b.WriteString(cursorStyle.Render("  > "+line) + "\n")
			} else {
				b.WriteString("    " + line + "\n")
			}
		}
	case modeAdd:
		b.WriteString("Dataset definition:\n" + m.input.View() + "\n")
	case modeRemove:
		b.WriteString("Index of the dataset to delete:\n" + m.input.View() + "\n")
	case modeWrite:
		b.WriteString("File path to save:\n" + m.input.View() + "\n")
	case modeFallback:
		fmt.Fprintf(&b, "Writing failed. Write datasets to %s instead? (y/n)\n", m.fallbackPath)
	}

	if m.failure != "" {
		b.WriteString("\n" + errStyle.Render(m.failure) + "\n")
	}
	if m.notice != "" {
		b.WriteString("\n" + okStyle.Render(m.notice) + "\n")
	}
	if m.mode == modeMenu {
		b.WriteString("\n" + dimStyle.Render("[1-6] or [↑/↓] + enter • [q] Exit") + "\n")
	} else {
		b.WriteString("\n" + dimStyle.Render("[enter] Confirm • [esc] Back") + "\n")
	}

	return docStyle.Render(b.String())
}

// Run shows the builder on the given terminal streams until the user
// generates or exits.
func Run(specs []dataset.Spec, in io.Reader, out io.Writer) (Result, error) {
	p := tea.NewProgram(New(specs), tea.WithInput(in), tea.WithOutput(out))
	final, err := p.Run()
	if err != nil {
		return Result{}, fmt.Errorf("interactive builder: %w", err)
	}
	m, ok := final.(Model)
	if !ok {
		return Result{}, errors.New("interactive builder: unexpected model type")
	}
	return m.Result(), nil
}
