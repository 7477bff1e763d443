package viz

import (
	"fmt"
	"math"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/foerg/mbsim-env-sub002/internal/dynamo"
	"github.com/foerg/mbsim-env-sub002/internal/mbs"
	"github.com/foerg/mbsim-env-sub002/internal/sim"
	"github.com/foerg/mbsim-env-sub002/internal/spatial"
	"github.com/guptarohit/asciigraph"
)

const (
	width           = 80
	height          = 24
	historyCapacity = 600
	trailLength     = 120
	bodyHalfSize    = 0.05
)

// Frame is one recorded point of a live run.
type Frame struct {
	State    dynamo.State
	Snapshot mbs.Snapshot
	Energy   float64
}

var (
	canvasStyle = lipgloss.NewStyle().Padding(1, 2)
	statsStyle  = lipgloss.NewStyle().Border(lipgloss.NormalBorder(), false, false, false, true).BorderForeground(lipgloss.Color("240")).Padding(1, 2).Width(48)
	labelStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("245")).Width(12)
	valueStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("252"))
	graphStyle  = lipgloss.NewStyle().Padding(1, 0)
	helpStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("240")).MarginTop(1)
)

type TickMsg time.Time

func tick() tea.Cmd {
	return tea.Tick(time.Second/60, func(t time.Time) tea.Msg { return TickMsg(t) })
}

// Model steps a solver in real time and renders its bodies.
type Model struct {
	solver        *mbs.Solver
	integrator    dynamo.Integrator
	name          string
	state         dynamo.State
	initialState  dynamo.State
	t, dt         float64
	duration      float64
	stepsPerTick  int
	width, height int
	canvas        *Canvas
	camera        *Camera
	running       bool
	err           error
	trails        [][]spatial.Vec3
	energyHistory []float64
	forceHistory  []float64
	history       []Frame
	playHead      int
	showHelp      bool
}

// NewModel takes an initialized solver. A zero duration runs until quit.
func NewModel(s *mbs.Solver, integ dynamo.Integrator, name string, dt, duration float64) Model {
	m := Model{
		solver:        s,
		integrator:    integ,
		name:          name,
		state:         s.InitialState(),
		initialState:  s.InitialState(),
		dt:            dt,
		duration:      duration,
		stepsPerTick:  stepsPerTick(dt),
		width:         width,
		height:        height,
		canvas:        NewCanvas(width, height),
		camera:        NewCamera(),
		running:       true,
		trails:        make([][]spatial.Vec3, len(s.AllBodies())),
		energyHistory: make([]float64, 0, historyCapacity),
		forceHistory:  make([]float64, 0, historyCapacity),
		history:       make([]Frame, 0, historyCapacity),
		playHead:      -1,
	}
	m.record()
	return m
}

// stepsPerTick roughly keeps simulated time in step with wall time at 60 ticks
// per second.
func stepsPerTick(dt float64) int {
	n := int(math.Round(1.0 / 60 / dt))
	return max(1, min(n, 200))
}

func (m Model) Init() tea.Cmd {
	return tick()
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case " ":
			m.running = !m.running
		case "r":
			m.reset()
		case "[":
			m.scrub(-1)
		case "]":
			m.scrub(1)
		case ">", ".":
			m.stepsPerTick = min(m.stepsPerTick*2, 1000)
		case "<", ",":
			m.stepsPerTick = max(m.stepsPerTick/2, 1)
		case "?":
			m.showHelp = !m.showHelp
		case "t":
			NextTheme()
		case "x":
			m.camera.RotateX(0.1)
		case "X":
			m.camera.RotateX(-0.1)
		case "y":
			m.camera.RotateY(0.1)
		case "Y":
			m.camera.RotateY(-0.1)
		case "z":
			m.camera.RotateZ(0.1)
		case "Z":
			m.camera.RotateZ(-0.1)
		case "+", "=":
			m.camera.ZoomIn()
		case "-", "_":
			m.camera.ZoomOut()
		}
	case tea.WindowSizeMsg:
		m.resize(msg.Width, msg.Height)
	case TickMsg:
		if m.running {
			if m.playHead == -1 {
				for i := 0; i < m.stepsPerTick && m.err == nil && !m.finished(); i++ {
					m.step()
				}
			} else {
				m.playHead++
				if m.playHead >= len(m.history) {
					m.playHead = -1
				}
			}
		}
		return m, tick()
	}
	return m, nil
}

func (m *Model) resize(w, h int) {
	cw := max(20, w-56)
	ch := max(8, h-4)
	if cw == m.width && ch == m.height {
		return
	}
	m.width, m.height = cw, ch
	m.canvas = NewCanvas(cw, ch)
}

func (m *Model) finished() bool {
	return m.duration > 0 && m.t >= m.duration-1e-12
}

// step advances one integrator step. A failed step stops the run and is
// shown in the side panel.
func (m *Model) step() {
	next, err := sim.Step(m.integrator, m.solver, m.state, m.t, m.dt)
	if err != nil {
		m.err = err
		m.running = false
		return
	}
	m.state = next
	m.t += m.dt
	m.record()
}

func (m *Model) record() {
	snap, err := m.solver.Snapshot(m.state, m.t)
	if err != nil {
		m.err = err
		m.running = false
		return
	}
	energy := m.solver.Energy(m.state)
	m.energyHistory = appendCapped(m.energyHistory, energy)
	peak := 0.0
	for _, l := range snap.Links {
		for _, f := range l.Forces {
			peak = math.Max(peak, math.Abs(f))
		}
	}
	m.forceHistory = appendCapped(m.forceHistory, peak)

	m.history = append(m.history, Frame{State: m.state.Clone(), Snapshot: snap, Energy: energy})
	if len(m.history) > historyCapacity {
		m.history = m.history[1:]
	}
	for i, b := range snap.Bodies {
		m.trails[i] = append(m.trails[i], b.Position)
		if len(m.trails[i]) > trailLength {
			m.trails[i] = m.trails[i][1:]
		}
	}
}

func appendCapped(s []float64, v float64) []float64 {
	s = append(s, v)
	if len(s) > historyCapacity {
		s = s[1:]
	}
	return s
}

func (m *Model) scrub(dir int) {
	if m.playHead == -1 {
		if len(m.history) == 0 {
			return
		}
		m.playHead = len(m.history) - 1
		m.running = false
	}
	m.playHead += dir
	if m.playHead < 0 {
		m.playHead = 0
	}
	if m.playHead >= len(m.history) {
		m.playHead = -1
	}
}

// reset restarts from the initial state. The solver's accepted contact state
// is re-established from that state.
func (m *Model) reset() {
	m.t = 0
	m.err = nil
	m.state = m.initialState.Clone()
	for i := range m.trails {
		m.trails[i] = m.trails[i][:0]
	}
	m.energyHistory = m.energyHistory[:0]
	m.forceHistory = m.forceHistory[:0]
	m.history = m.history[:0]
	m.playHead = -1
	if err := m.solver.Accept(m.state, 0); err != nil {
		m.err = err
	}
	m.record()
	m.running = true
}

// current returns the frame being shown.
func (m Model) current() (Frame, bool) {
	if m.playHead >= 0 && m.playHead < len(m.history) {
		return m.history[m.playHead], true
	}
	if len(m.history) == 0 {
		return Frame{}, false
	}
	return m.history[len(m.history)-1], true
}

func (m Model) View() string {
	frame, ok := m.current()
	m.draw(frame, ok)
	canvasView := canvasStyle.Render(lipgloss.NewStyle().Foreground(CurrentTheme.Scene).Render(m.canvas.String()))

	var s strings.Builder
	s.WriteString(GradientText(strings.ToUpper(m.name), CurrentTheme.Title, CurrentTheme.Scene) + "\n\n")
	s.WriteString(m.status(frame) + "\n\n")
	if m.duration > 0 {
		s.WriteString(ProgressBar(m.t/m.duration, 30) + "\n\n")
	}
	if len(m.energyHistory) > 1 {
		chart := asciigraph.Plot(m.energyHistory, asciigraph.Height(4), asciigraph.Width(30), asciigraph.Caption("Energy"))
		s.WriteString(graphStyle.Foreground(CurrentTheme.Energy).Render(chart) + "\n")
	}
	s.WriteString(labelStyle.Render("Forces") + lipgloss.NewStyle().Foreground(CurrentTheme.Force).Render(SparklineChart(m.forceHistory, 30)) + "\n")
	s.WriteString(labelStyle.Render("Time") + valueStyle.Render(fmt.Sprintf("%.3fs", frame.Snapshot.T)) + "\n")
	s.WriteString(labelStyle.Render("Energy") + valueStyle.Render(fmt.Sprintf("%.4f", frame.Energy)) + "\n")
	s.WriteString(labelStyle.Render("Steps/tick") + valueStyle.Render(fmt.Sprintf("%d", m.stepsPerTick)) + "\n")

	s.WriteString("\nBODIES\n")
	for _, b := range frame.Snapshot.Bodies {
		p := b.Position
		s.WriteString(labelStyle.Render(b.Path) + valueStyle.Render(fmt.Sprintf("%7.3f %7.3f %7.3f", p[0], p[1], p[2])) + "\n")
	}
	if len(frame.Snapshot.Links) > 0 {
		s.WriteString("\nLINKS\n")
		for _, l := range frame.Snapshot.Links {
			s.WriteString(linkLabel(l) + valueStyle.Foreground(CurrentTheme.Force).Render(formatForces(l.Forces)) + "\n")
		}
	}
	if m.err != nil {
		s.WriteString("\n" + lipgloss.NewStyle().Foreground(CurrentTheme.Error).Width(44).Render(m.err.Error()) + "\n")
	}
	s.WriteString(helpStyle.Render(Separator(30, helpStyle) + "\nSP:Pause R:Reset Q:Quit\n[ ]:Replay </>:Speed ?:Help"))

	mainView := lipgloss.JoinHorizontal(lipgloss.Top, canvasView, statsStyle.Render(s.String()))
	if m.showHelp {
		return helpText + "\n\n" + mainView
	}
	return mainView
}

const helpText = `
  Space    pause or resume
  R        reset to the initial state
  Q        quit
  [ ]      step through the recorded history
  < >      halve or double the steps per frame
  x y z    rotate the camera (shift reverses)
  + -      zoom
  T        cycle themes
  ?        toggle this help`

func (m Model) status(frame Frame) string {
	style := lipgloss.NewStyle().Bold(true)
	switch {
	case m.err != nil:
		return style.Foreground(CurrentTheme.Error).Render("FAILED")
	case m.playHead != -1:
		latest := m.history[len(m.history)-1].Snapshot.T
		return style.Foreground(CurrentTheme.Warning).Render(fmt.Sprintf("REPLAY (%.2fs)", frame.Snapshot.T-latest))
	case m.finished():
		return style.Foreground(CurrentTheme.Muted).Render("DONE")
	case !m.running:
		return style.Foreground(CurrentTheme.Warning).Render("PAUSED")
	}
	return style.Foreground(CurrentTheme.Success).Render("RUNNING")
}

// linkLabel highlights links that currently transmit a force.
func linkLabel(l mbs.LinkState) string {
	color := CurrentTheme.Muted
	for _, f := range l.Forces {
		if math.Abs(f) > 0 {
			color = CurrentTheme.Loaded
			break
		}
	}
	return labelStyle.Foreground(color).Render(l.Name)
}

func formatForces(f []float64) string {
	parts := make([]string, len(f))
	for i, v := range f {
		parts[i] = fmt.Sprintf("%.3g", v)
	}
	return strings.Join(parts, " ")
}

// draw renders the ground grid, the inertial axes, the body boxes and their
// trails.
func (m *Model) draw(frame Frame, ok bool) {
	m.canvas.Clear()
	scene := GridWireframe(8, 0.25).Append(AxesWireframe(spatial.Zero, spatial.Identity, 0.3))
	if ok {
		for i, b := range frame.Snapshot.Bodies {
			h := bodyHalfSize
			scene.Append(BoxWireframe(b.Position, b.Orientation, spatial.Vec3{h, h, h}))
			if m.playHead == -1 && i < len(m.trails) {
				for _, p := range m.trails[i] {
					scene.AddPoint(p)
				}
			}
		}
	}
	Render3D(m.canvas, scene, m.camera)
}
