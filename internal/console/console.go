// Package console is the operator terminal: a bubbletea program that follows
// the event bus and sends commands typed at its prompt.
package console

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/google/uuid"
	"github.com/muesli/reflow/wordwrap"

	"usv-kernel/internal/bus"
	"usv-kernel/internal/telemetry"
)

// teaProgram abstracts bubbletea.Program for testing.
type teaProgram interface {
	Send(tea.Msg)
}

// Subscriber is the part of the bus the console listens on.
type Subscriber interface {
	Subscribe(kind bus.Kind, name string, h bus.Handler)
}

// Publisher receives commands entered at the prompt.
type Publisher interface {
	Publish(bus.Payload)
}

// logMsg carries a line for the event log.
type logMsg struct{ line string }

type readingMsg struct{ telemetry.Reading }

type stateMsg struct{ state telemetry.VehicleState }

type actuatorMsg struct{ bus.ActuatorEvent }

type linkMsg struct{ up bool }

const maxLogs = 1000

// Console renders bus events in a full screen terminal UI.
type Console struct {
	program    teaProgram
	done       chan struct{}
	sendSignal atomic.Bool
}

// New starts the terminal program. Quitting it interrupts the process.
func New(vesselID string, pub Publisher) *Console {
	c := &Console{done: make(chan struct{})}
	c.sendSignal.Store(true)
	p := tea.NewProgram(newModel(vesselID, pub), tea.WithAltScreen())
	c.program = p
	go func() {
		_, _ = p.Run()
		close(c.done)
		if c.sendSignal.Load() {
			if proc, err := os.FindProcess(os.Getpid()); err == nil {
				_ = proc.Signal(os.Interrupt)
			}
		}
	}()
	return c
}

// Attach subscribes the console to every event kind.
func (c *Console) Attach(sub Subscriber) {
	for _, k := range bus.Kinds {
		sub.Subscribe(k, "console", c.handle)
	}
}

func (c *Console) handle(_ context.Context, ev bus.Event) error {
	ts := ev.At.Format("15:04:05.000")
	switch p := ev.Payload.(type) {
	case bus.SensorUpdateEvent:
		c.program.Send(readingMsg{p.Reading})
	case bus.StateChangeEvent:
		c.program.Send(stateMsg{p.To})
		c.program.Send(logMsg{fmt.Sprintf("%s %s %s -> %s (%s)", ts, stateStyle(p.To).Render("STATE"), p.From, p.To, p.Reason)})
	case bus.ActuatorEvent:
		c.program.Send(actuatorMsg{p})
	case bus.CommandEvent:
		c.program.Send(logMsg{fmt.Sprintf("%s CMD %s %s from %s", ts, p.ID, p.Name, p.Source)})
	case bus.CommandAckEvent:
		verdict := okStyle.Render("accepted")
		if !p.Accepted {
			verdict = errStyle.Render("rejected: " + p.Reason)
		}
		c.program.Send(logMsg{fmt.Sprintf("%s ACK %s %s %s", ts, p.ID, p.Name, verdict)})
	case bus.StatusEvent:
		switch p.Code {
		case bus.StatusLinkUp:
			c.program.Send(linkMsg{up: true})
		case bus.StatusLinkUnavailable, bus.StatusShutdown:
			c.program.Send(linkMsg{up: false})
		}
		c.program.Send(logMsg{fmt.Sprintf("%s %s %s", ts, warnStyle.Render(string(p.Code)), p.Message)})
	}
	return nil
}

// Close stops the program without interrupting the process.
func (c *Console) Close() {
	c.sendSignal.Store(false)
	c.program.Send(tea.Quit())
	if c.done != nil {
		<-c.done
	}
}

var (
	okStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	errStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	warnStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	dimStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
)

func stateStyle(s telemetry.VehicleState) lipgloss.Style {
	switch s {
	case telemetry.StateEmergency:
		return lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true)
	case telemetry.StateStop:
		return lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	case telemetry.StateCollisionDetection, telemetry.StateShoreDetection:
		return lipgloss.NewStyle().Foreground(lipgloss.Color("13"))
	default:
		return lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	}
}

type model struct {
	vesselID string
	pub      Publisher
	newID    func() string

	table    table.Model
	vp       viewport.Model
	prompt   textinput.Model
	readings map[telemetry.SensorKind]telemetry.Reading

	state    telemetry.VehicleState
	actuator telemetry.ActuatorCommand
	linkUp   bool
	overruns int

	logs       []string
	wrap       bool
	autoscroll bool
	help       bool
	prompting  bool
	width      int
	height     int
}

func newModel(vesselID string, pub Publisher) model {
	cols := []table.Column{
		{Title: "Sensor", Width: 8},
		{Title: "Values", Width: 48},
		{Title: "Updated", Width: 12},
	}
	t := table.New(table.WithColumns(cols), table.WithHeight(len(telemetry.SensorKinds)+1))
	return model{
		vesselID:   vesselID,
		pub:        pub,
		newID:      uuid.NewString,
		table:      t,
		vp:         viewport.New(0, 0),
		readings:   make(map[telemetry.SensorKind]telemetry.Reading),
		actuator:   telemetry.SafeCommand,
		autoscroll: true,
	}
}

func (m model) Init() tea.Cmd { return nil }

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.table.SetWidth(msg.Width)
		m.vp.Width = msg.Width
		m.updateViewportHeight()
		m.refreshViewport()
	case tea.KeyMsg:
		if m.prompting {
			switch msg.Type {
			case tea.KeyEnter:
				m.submit(m.prompt.Value())
				m.prompting = false
				m.updateViewportHeight()
			case tea.KeyEsc:
				m.prompting = false
				m.updateViewportHeight()
			default:
				var cmd tea.Cmd
				m.prompt, cmd = m.prompt.Update(msg)
				return m, cmd
			}
			return m, nil
		}
		if m.help {
			switch msg.String() {
			case "?", "h", "esc":
				m.help = false
			}
			return m, nil
		}
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case ":":
			m.prompt = textinput.New()
			m.prompt.Prompt = ": "
			m.prompt.Placeholder = `start | stop | emergency | resume | {"name":"manual","manual":true,"rudder":90,"motor":30}`
			m.prompt.Focus()
			m.prompting = true
			m.updateViewportHeight()
			return m, textinput.Blink
		case "!":
			m.submit(string(bus.CmdEmergency))
			return m, nil
		case "w":
			m.wrap = !m.wrap
			m.refreshViewport()
			return m, nil
		case "s":
			m.autoscroll = !m.autoscroll
			if m.autoscroll {
				m.vp.GotoBottom()
			}
			return m, nil
		case "h", "?":
			m.help = !m.help
			return m, nil
		}
		if !m.autoscroll {
			switch msg.String() {
			case "j", "down":
				m.vp.LineDown(1)
			case "k", "up":
				m.vp.LineUp(1)
			case "pgdown", "ctrl+n":
				m.vp.LineDown(10)
			case "pgup", "ctrl+p":
				m.vp.LineUp(10)
			default:
				var cmd tea.Cmd
				m.vp, cmd = m.vp.Update(msg)
				return m, cmd
			}
		}
	case logMsg:
		m.appendLog(msg.line)
	case readingMsg:
		m.readings[msg.Kind()] = msg.Reading
		m.refreshTable()
	case stateMsg:
		m.state = msg.state
	case actuatorMsg:
		m.state = msg.State
		m.actuator = msg.Command
		if msg.Overrun {
			m.overruns++
		}
	case linkMsg:
		m.linkUp = msg.up
	}
	return m, nil
}

// submit decodes a prompt line and publishes it as a command.
func (m *model) submit(line string) {
	line = strings.TrimSpace(line)
	if line == "" {
		return
	}
	cmd, err := bus.DecodeCommand([]byte(line), "console", m.newID)
	if err != nil {
		m.appendLog(fmt.Sprintf("%s %s", time.Now().Format("15:04:05.000"), errStyle.Render(err.Error())))
		return
	}
	m.pub.Publish(cmd)
}

func (m *model) appendLog(line string) {
	m.logs = append(m.logs, line)
	if len(m.logs) > maxLogs {
		m.logs = m.logs[len(m.logs)-maxLogs:]
	}
	m.refreshViewport()
}

func (m *model) refreshTable() {
	rows := make([]table.Row, 0, len(m.readings))
	for _, k := range telemetry.SensorKinds {
		r, ok := m.readings[k]
		if !ok {
			continue
		}
		parts := make([]string, 0, 3)
		for _, f := range r.Fields() {
			parts = append(parts, fmt.Sprintf("%s=%.4g", f.Name, f.Value))
		}
		rows = append(rows, table.Row{string(k), strings.Join(parts, " "), r.Time().Format("15:04:05.000")})
	}
	m.table.SetRows(rows)
}

func (m *model) refreshViewport() {
	lines := make([]string, 0, len(m.logs))
	for _, l := range m.logs {
		if m.wrap && m.vp.Width > 0 {
			lines = append(lines, wordwrap.String(l, m.vp.Width))
		} else {
			lines = append(lines, l)
		}
	}
	m.vp.SetContent(strings.Join(lines, "\n"))
	if m.autoscroll {
		m.vp.GotoBottom()
	}
}

func (m *model) updateViewportHeight() {
	used := lipgloss.Height(m.renderHeader()) + lipgloss.Height(m.table.View()) + lipgloss.Height(m.renderBottom()) + 3
	h := m.height - used
	if h < 0 {
		h = 0
	}
	m.vp.Height = h
	if m.autoscroll {
		m.vp.GotoBottom()
	}
}

func (m model) View() string {
	if m.help {
		return renderHelp()
	}
	divider := dimStyle.Render(strings.Repeat("─", m.vp.Width))
	sections := []string{
		m.renderHeader(),
		m.table.View(),
		divider,
		m.vp.View(),
		divider,
		m.renderBottom(),
	}
	return strings.Join(sections, "\n")
}

func (m model) renderHeader() string {
	link := errStyle.Render("down")
	if m.linkUp {
		link = okStyle.Render("up")
	}
	return fmt.Sprintf("USV %s | %s | %s | link %s | overruns %d",
		m.vesselID, stateStyle(m.state).Render(m.state.String()), m.actuator, link, m.overruns)
}

func (m model) renderBottom() string {
	if m.prompting {
		return m.prompt.View()
	}
	indicator := func(on bool) string {
		if on {
			return okStyle.Render("●")
		}
		return errStyle.Render("●")
	}
	return fmt.Sprintf(": command | ! emergency | Wrap %s | Scroll %s | h help | q quit",
		indicator(m.wrap), indicator(m.autoscroll))
}

func renderHelp() string {
	lines := []string{
		"Key Bindings:",
		" :  command prompt (name or JSON command)",
		" !  emergency stop",
		" w  toggle wrap for the event log",
		" s  toggle auto-scroll",
		" q  quit",
		" h/? toggle this help view",
		"",
		"When auto-scroll is disabled:",
		" j/k or up/down    scroll one line",
		" pgdown/pgup       scroll a page",
	}
	return strings.Join(lines, "\n")
}
