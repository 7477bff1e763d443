package viz

import (
	"fmt"
	"strconv"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/foerg/mbsim-env-sub002/internal/mbs"
	"github.com/foerg/mbsim-env-sub002/internal/scenarios"
	"github.com/go-logr/logr"
)

var (
	titleStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#00cccc")).Bold(true)
	subStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("#666688"))
	cursorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#00ffff")).Bold(true)
	selectedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#ffffff")).Bold(true)
	accentStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#ff88ff"))
	idleStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#555566"))
	keyStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("#00aaaa")).Bold(true)
	errStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("#ff4444"))
)

const (
	stateMenu = iota
	stateConfig
	stateSim
)

// field is one editable number on the configuration screen.
type field struct {
	name string
	ptr  *float64
}

type model struct {
	state, cursor int
	registry      *scenarios.Registry
	names         []string
	selected      string
	params        scenarios.Params
	dt, duration  float64
	fields        []field
	fieldCursor   int
	editing       bool
	editBuf       string
	err           error
	width, height int
	liveModel     Model
	log           logr.Logger
}

func NewInteractiveApp(r *scenarios.Registry, log logr.Logger) *model {
	return &model{
		state:    stateMenu,
		registry: r,
		names:    r.List(),
		dt:       1e-3,
		duration: 0,
		width:    80,
		height:   24,
		log:      log,
	}
}

func (m model) Init() tea.Cmd { return nil }

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		if m.state == stateSim {
			m.liveModel.resize(msg.Width, msg.Height)
		}
		return m, nil
	default:
		if m.state == stateSim {
			newLive, cmd := m.liveModel.Update(msg)
			m.liveModel = newLive.(Model)
			return m, cmd
		}
	}
	return m, nil
}

func (m model) handleKey(msg tea.KeyMsg) (model, tea.Cmd) {
	switch m.state {
	case stateMenu:
		return m.menuKey(msg)
	case stateConfig:
		return m.configKey(msg)
	case stateSim:
		newLive, cmd := m.liveModel.Update(msg)
		m.liveModel = newLive.(Model)
		return m, cmd
	}
	return m, nil
}

func (m model) menuKey(msg tea.KeyMsg) (model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		return m, tea.Quit
	case "up", "k":
		if m.cursor > 0 {
			m.cursor--
		}
	case "down", "j":
		if m.cursor < len(m.names)-1 {
			m.cursor++
		}
	case "enter", " ":
		m.selected = m.names[m.cursor]
		sc, err := m.registry.Get(m.selected)
		if err != nil {
			m.err = err
			return m, nil
		}
		m.params = sc.Defaults
		m.state, m.fieldCursor, m.err = stateConfig, 0, nil
	}
	return m, nil
}

// editable lists the timing settings and the scenario parameters. The
// pointers refer to m, so the list is rebuilt after each copy.
func (m *model) editable() []field {
	p := &m.params
	return []field{
		{"dt", &m.dt}, {"duration", &m.duration},
		{"mass", &p.Mass}, {"height", &p.Height}, {"velocity", &p.Velocity},
		{"angle", &p.Angle}, {"length", &p.Length}, {"stretch", &p.Stretch},
		{"stiffness", &p.Stiffness}, {"damping", &p.Damping}, {"mu", &p.Mu},
		{"restitution", &p.Restitution}, {"ratio", &p.Ratio}, {"torque", &p.Torque},
	}
}

func (m model) configKey(msg tea.KeyMsg) (model, tea.Cmd) {
	fields := m.editable()
	if m.editing {
		switch msg.String() {
		case "enter":
			if val, err := strconv.ParseFloat(m.editBuf, 64); err == nil {
				*fields[m.fieldCursor].ptr = val
			}
			m.editing, m.editBuf = false, ""
		case "esc":
			m.editing, m.editBuf = false, ""
		case "backspace":
			if len(m.editBuf) > 0 {
				m.editBuf = m.editBuf[:len(m.editBuf)-1]
			}
		default:
			if len(msg.String()) == 1 {
				c := msg.String()[0]
				if (c >= '0' && c <= '9') || c == '.' || c == '-' || c == 'e' {
					m.editBuf += string(c)
				}
			}
		}
		return m, nil
	}
	switch msg.String() {
	case "q", "esc":
		m.state = stateMenu
	case "up", "k":
		if m.fieldCursor > 0 {
			m.fieldCursor--
		}
	case "down", "j":
		if m.fieldCursor < len(fields)-1 {
			m.fieldCursor++
		}
	case "enter", " ":
		m.editing, m.editBuf = true, strconv.FormatFloat(*fields[m.fieldCursor].ptr, 'g', -1, 64)
	case "s":
		cmd := m.start()
		return m, cmd
	case "left", "h":
		*fields[m.fieldCursor].ptr *= 0.9
	case "right", "l":
		*fields[m.fieldCursor].ptr *= 1.1
	}
	return m, nil
}

func (m *model) start() tea.Cmd {
	if m.dt <= 0 {
		m.err = fmt.Errorf("dt must be positive")
		return nil
	}
	s, err := m.registry.Build(m.selected, m.params, mbs.DefaultSolverOptions(), m.log)
	if err != nil {
		m.err = err
		return nil
	}
	sc, _ := m.registry.Get(m.selected)
	integ, err := m.registry.Integrator(sc.Integrator, m.log)
	if err != nil {
		m.err = err
		return nil
	}
	m.liveModel = NewModel(s, integ, m.selected, m.dt, m.duration)
	m.liveModel.resize(m.width, m.height)
	m.state, m.err = stateSim, nil
	return m.liveModel.Init()
}

func (m model) View() string {
	switch m.state {
	case stateMenu:
		return m.viewMenu()
	case stateConfig:
		return m.viewConfig()
	case stateSim:
		return m.liveModel.View()
	}
	return ""
}

func keyHints(pairs ...string) string {
	var b strings.Builder
	for i := 0; i+1 < len(pairs); i += 2 {
		b.WriteString(keyStyle.Render(pairs[i]) + idleStyle.Render(" "+pairs[i+1]+"  "))
	}
	return b.String()
}

func (m model) viewMenu() string {
	var b strings.Builder
	b.WriteString("\n\n    " + titleStyle.Render("MBSIM") + "\n    " + subStyle.Render("multibody scenarios") + "\n    " + subStyle.Render("─────────────────────────") + "\n\n")
	for i, name := range m.names {
		sc, _ := m.registry.Get(name)
		if i == m.cursor {
			b.WriteString(fmt.Sprintf("    %s %s  %s\n", cursorStyle.Render("▸"), selectedStyle.Render(fmt.Sprintf("%-16s", name)), accentStyle.Render(sc.Description)))
		} else {
			b.WriteString(fmt.Sprintf("    %s  %s\n", idleStyle.Render(fmt.Sprintf("  %-16s", name)), idleStyle.Render(sc.Description)))
		}
	}
	if m.err != nil {
		b.WriteString("\n    " + errStyle.Render(m.err.Error()) + "\n")
	}
	b.WriteString("\n    " + keyHints("j/k", "navigate", "enter", "select", "q", "quit") + "\n")
	return b.String()
}

func (m model) viewConfig() string {
	var b strings.Builder
	sc, _ := m.registry.Get(m.selected)
	b.WriteString("\n\n    " + titleStyle.Render(strings.ToUpper(m.selected)) + "\n    " + subStyle.Render(sc.Description+" ("+sc.Integrator+")") + "\n    " + subStyle.Render("─────────────────────────") + "\n\n")
	for i, f := range m.editable() {
		valStr := fmt.Sprintf("%10.4g", *f.ptr)
		if m.editing && i == m.fieldCursor {
			valStr = fmt.Sprintf("%10s", m.editBuf+"_")
		}
		if i == m.fieldCursor {
			b.WriteString(fmt.Sprintf("    %s %s %s\n", cursorStyle.Render("▸"), selectedStyle.Render(fmt.Sprintf("%-12s", f.name)), accentStyle.Bold(true).Render(valStr)))
		} else {
			b.WriteString(fmt.Sprintf("    %s %s\n", idleStyle.Render(fmt.Sprintf("  %-12s", f.name)), idleStyle.Render(valStr)))
		}
	}
	if m.err != nil {
		b.WriteString("\n    " + errStyle.Render(m.err.Error()) + "\n")
	}
	b.WriteString("\n    " + keyHints("j/k", "select", "h/l", "adjust", "s", "start", "esc", "back") + "\n")
	return b.String()
}

// RunInteractive opens the scenario menu.
func RunInteractive(r *scenarios.Registry, log logr.Logger) error {
	_, err := tea.NewProgram(NewInteractiveApp(r, log), tea.WithAltScreen()).Run()
	return err
}

// RunLive shows a single model until the user quits.
func RunLive(m Model) error {
	_, err := tea.NewProgram(m, tea.WithAltScreen()).Run()
	return err
}
