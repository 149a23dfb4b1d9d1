package sim

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/reflow/wordwrap"

	"infrasim/internal/chaos"
	"infrasim/internal/telemetry"
	"infrasim/internal/topology"
)

// teaProgram abstracts bubbletea.Program for testing.
type teaProgram interface {
	Send(tea.Msg)
}

// logMsg carries a log line for the event viewport.
type logMsg struct{ line string }

// componentsMsg carries the component rows of one tick.
type componentsMsg struct{ rows []telemetry.ComponentRow }

// globalMsg carries the aggregate metrics of one tick.
type globalMsg struct{ telemetry.GlobalRow }

// stateMsg carries a simulation state update.
type stateMsg struct{ telemetry.SimulationStateRow }

// scoreMsg carries the final score.
type scoreMsg struct{ telemetry.ScoreRow }

// adminMsg reports admin UI status.
type adminMsg struct{ active bool }

type setControlsMsg struct{ TUIControls }

// TUIControls lets the terminal UI act on the running simulation.
type TUIControls struct {
	InjectChaos func(chaos.Event) (chaos.Event, error)
	TogglePause func() error
}

const (
	maxLogLines         = 1000
	fallbackChaosInput  = "traffic_spike,,30s,multiplier=3"
	maxSectionHeightPct = 0.4
)

// TUIWriter renders simulation rows using a bubbletea TUI.
type TUIWriter struct {
	program    teaProgram
	done       chan struct{}
	sendSignal atomic.Bool
}

// NewTUIWriter starts a bubbletea program and returns a TUIWriter.
func NewTUIWriter(topo *topology.Topology) *TUIWriter {
	w := &TUIWriter{done: make(chan struct{})}
	w.sendSignal.Store(true)
	m := newTUIModel(topo)
	p := tea.NewProgram(m, tea.WithAltScreen())
	w.program = p
	go func() {
		_, _ = p.Run()
		close(w.done)
		if w.sendSignal.Load() {
			if proc, err := os.FindProcess(os.Getpid()); err == nil {
				_ = proc.Signal(os.Interrupt)
			}
		}
	}()
	return w
}

// Write implements ComponentWriter.
func (w *TUIWriter) Write(row telemetry.ComponentRow) error {
	w.program.Send(componentsMsg{rows: []telemetry.ComponentRow{row}})
	return nil
}

// WriteBatch sends all rows of a tick at once.
func (w *TUIWriter) WriteBatch(rows []telemetry.ComponentRow) error {
	w.program.Send(componentsMsg{rows: rows})
	return nil
}

// WriteGlobal updates the aggregate line.
func (w *TUIWriter) WriteGlobal(row telemetry.GlobalRow) error {
	w.program.Send(globalMsg{row})
	return nil
}

// WriteFailure appends a failure to the event log.
func (w *TUIWriter) WriteFailure(row telemetry.FailureRow) error {
	c := colorYellow
	if row.Severity >= 0.7 {
		c = colorRed
	}
	line := fmt.Sprintf("%s[t%d]%s %sFAIL %s%s %s %q sev=%.2f",
		colorGray, row.Tick, colorReset,
		c, row.Kind, colorReset,
		row.ComponentID, row.Message, row.Severity)
	if row.Fix != "" {
		line += fmt.Sprintf(" %sfix=%s%s", colorCyan, row.Fix, colorReset)
	}
	w.program.Send(logMsg{line: line})
	return nil
}

// WriteChaosEvent appends a chaos transition to the event log.
func (w *TUIWriter) WriteChaosEvent(row telemetry.ChaosEventRow) error {
	line := fmt.Sprintf("%s[t%d]%s %sCHAOS %s%s %s %s targets=%s",
		colorGray, row.Tick, colorReset,
		colorMagenta, row.Action, colorReset,
		row.ChaosType, row.ChaosID, strings.Join(row.Targets, ","))
	w.program.Send(logMsg{line: line})
	return nil
}

// WriteState updates the status footer.
func (w *TUIWriter) WriteState(row telemetry.SimulationStateRow) error {
	w.program.Send(stateMsg{row})
	return nil
}

// WriteScore shows the final score.
func (w *TUIWriter) WriteScore(row telemetry.ScoreRow) error {
	w.program.Send(scoreMsg{row})
	w.program.Send(logMsg{line: fmt.Sprintf("%sSCORE%s %.1f grade=%s stars=%d passed=%t",
		colorBlue, colorReset, row.Overall, row.Grade, row.Stars, row.Passed)})
	return nil
}

// SetAdminStatus updates the admin UI indicator.
func (w *TUIWriter) SetAdminStatus(active bool) {
	w.program.Send(adminMsg{active: active})
}

// SetControls wires the chaos dialog and pause key to the simulator.
func (w *TUIWriter) SetControls(c TUIControls) {
	w.program.Send(setControlsMsg{c})
}

// Close stops the TUI program and waits for it to exit.
func (w *TUIWriter) Close() {
	w.sendSignal.Store(false)
	if p, ok := w.program.(*tea.Program); ok {
		p.Quit()
	}
	if w.done != nil {
		<-w.done
	}
}

type tuiModel struct {
	topo        *topology.Topology
	order       []string
	metrics     map[string]telemetry.ComponentRow
	table       table.Model
	vp          viewport.Model
	logs        []string
	global      telemetry.GlobalRow
	state       telemetry.SimulationStateRow
	score       *telemetry.ScoreRow
	admin       bool
	wrap        bool
	autoscroll  bool
	help        bool
	width       int
	height      int
	controls    TUIControls
	chaosInput  textinput.Model
	chaosDialog bool
}

func newTUIModel(topo *topology.Topology) tuiModel {
	cols := []table.Column{
		{Title: "Component", Width: 18},
		{Title: "Type", Width: 14},
		{Title: "Util", Width: 6},
		{Title: "RPS", Width: 9},
		{Title: "p95 ms", Width: 8},
		{Title: "Err %", Width: 6},
		{Title: "Inst", Width: 5},
		{Title: "State", Width: 10},
	}
	if topo != nil {
		topo = topo.Clone()
	}
	m := tuiModel{
		topo:       topo,
		metrics:    make(map[string]telemetry.ComponentRow),
		vp:         viewport.New(0, 0),
		autoscroll: true,
	}
	if topo != nil {
		for _, n := range topo.Nodes() {
			if n.Simulated() {
				m.order = append(m.order, n.ID)
			}
		}
	}
	m.table = table.New(table.WithColumns(cols), table.WithRows(m.tableRows()), table.WithHeight(len(m.order)+1))
	return m
}

func (m tuiModel) tableRows() []table.Row {
	rows := make([]table.Row, 0, len(m.order))
	for _, id := range m.order {
		typ := ""
		if n := m.topo.Node(id); n != nil {
			typ = string(n.Type)
		}
		r, ok := m.metrics[id]
		if !ok {
			rows = append(rows, table.Row{id, typ, "-", "-", "-", "-", "-", "waiting"})
			continue
		}
		rows = append(rows, table.Row{
			id,
			typ,
			fmt.Sprintf("%.2f", r.Utilization),
			fmt.Sprintf("%.0f", r.RPS),
			fmt.Sprintf("%.0f", r.P95LatencyMs),
			fmt.Sprintf("%.1f", r.ErrorRate*100),
			strconv.Itoa(r.ReadyInstances),
			componentState(r),
		})
	}
	return rows
}

func componentState(r telemetry.ComponentRow) string {
	switch {
	case r.Crashed:
		return "CRASHED"
	case r.CircuitOpen:
		return "breaker"
	case r.Slow:
		return "slow"
	case r.Utilization > 1:
		return "overload"
	case r.AutoscalePhase != "" && r.AutoscalePhase != string(telemetry.PhaseStable):
		return r.AutoscalePhase
	}
	return "ok"
}

func (m tuiModel) Init() tea.Cmd { return nil }

func (m tuiModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.table.SetWidth(msg.Width)
		m.vp.Width = msg.Width
		m.updateViewportHeight()
		m.refreshViewport()
	case tea.KeyMsg:
		if m.chaosDialog {
			switch msg.Type {
			case tea.KeyEnter:
				m.chaosDialog = false
				m.updateViewportHeight()
				ev, err := parseChaosInput(m.chaosInput.Value())
				if err != nil {
					m.appendLog(fmt.Sprintf("%sinvalid chaos event:%s %v", colorRed, colorReset, err))
					return m, nil
				}
				return m, injectChaos(m.controls.InjectChaos, ev)
			case tea.KeyEsc:
				m.chaosDialog = false
				m.updateViewportHeight()
			default:
				var cmd tea.Cmd
				m.chaosInput, cmd = m.chaosInput.Update(msg)
				return m, cmd
			}
			return m, nil
		}
		if m.help {
			switch msg.String() {
			case "?", "h", "esc":
				m.help = false
				m.updateViewportHeight()
			}
			return m, nil
		}
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
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
		case "c":
			m.chaosInput = textinput.New()
			m.chaosInput.Placeholder = "type,targets;...,duration,key=value"
			m.chaosInput.SetValue(fallbackChaosInput)
			m.chaosInput.CursorEnd()
			m.chaosInput.Focus()
			m.chaosDialog = true
			m.updateViewportHeight()
			return m, nil
		case "p":
			if fn := m.controls.TogglePause; fn != nil {
				return m, func() tea.Msg {
					if err := fn(); err != nil {
						return logMsg{line: fmt.Sprintf("%spause:%s %v", colorRed, colorReset, err)}
					}
					return nil
				}
			}
			return m, nil
		case "h", "?":
			m.help = !m.help
			m.updateViewportHeight()
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
		return m, nil
	case logMsg:
		m.appendLog(msg.line)
	case componentsMsg:
		for _, r := range msg.rows {
			m.metrics[r.ComponentID] = r
		}
		m.table.SetRows(m.tableRows())
	case globalMsg:
		m.global = msg.GlobalRow
	case stateMsg:
		m.state = msg.SimulationStateRow
	case scoreMsg:
		sc := msg.ScoreRow
		m.score = &sc
		m.updateViewportHeight()
	case adminMsg:
		m.admin = msg.active
	case setControlsMsg:
		m.controls = msg.TUIControls
	}
	return m, nil
}

// injectChaos runs fn off the UI loop; the simulator writes its chaos row
// back through the program.
func injectChaos(fn func(chaos.Event) (chaos.Event, error), ev chaos.Event) tea.Cmd {
	if fn == nil {
		return func() tea.Msg {
			return logMsg{line: "chaos injection is not available"}
		}
	}
	return func() tea.Msg {
		if _, err := fn(ev); err != nil {
			return logMsg{line: fmt.Sprintf("%schaos rejected:%s %v", colorRed, colorReset, err)}
		}
		return nil
	}
}

func (m *tuiModel) appendLog(line string) {
	m.logs = append(m.logs, line)
	if len(m.logs) > maxLogLines {
		m.logs = m.logs[len(m.logs)-maxLogLines:]
	}
	m.refreshViewport()
}

func (m *tuiModel) updateViewportHeight() {
	used := lipgloss.Height(m.table.View()) + lipgloss.Height(m.renderBottom()) + 3
	if m.chaosDialog {
		used++
	}
	h := m.height - used
	if h < 0 {
		h = 0
	}
	if floor := int(float64(m.height) * maxSectionHeightPct); h < floor && m.height > 0 {
		m.table.SetHeight(max(1, m.height-floor-lipgloss.Height(m.renderBottom())-3))
		h = floor
	}
	m.vp.Height = h
	if m.autoscroll {
		m.vp.GotoBottom()
	}
}

func (m *tuiModel) refreshViewport() {
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

func (m tuiModel) View() string {
	if m.help {
		return m.renderHelp()
	}
	divider := strings.Repeat("─", m.vp.Width)
	sections := []string{
		m.table.View(),
		divider,
		"Events:",
		m.vp.View(),
	}
	if m.chaosDialog {
		sections = append(sections, "Inject chaos: "+m.chaosInput.View())
	}
	sections = append(sections, divider, m.renderBottom())
	return strings.Join(sections, "\n")
}

func indicator(on bool) string {
	c := lipgloss.Color("9")
	if on {
		c = lipgloss.Color("10")
	}
	return lipgloss.NewStyle().Foreground(c).Render("●")
}

func (m tuiModel) renderBottom() string {
	state := m.state.State
	if state == "" {
		state = string(StateIdle)
	}
	status := fmt.Sprintf("%sSTATE%s %s %stick=%d%s %slevel=%.2f%s %schaos=%d%s %sfailures=%d%s",
		colorBlue, colorReset, state,
		colorGray, m.state.Tick, colorReset,
		colorCyan, m.state.TrafficLevel, colorReset,
		colorMagenta, m.state.ActiveChaos, colorReset,
		colorRed, m.state.Failures, colorReset)
	global := fmt.Sprintf("%sGLOBAL%s rps=%.0f p95=%.0fms err=%.2f%% avail=%.3f%% cost=$%.2f/h crashed=%d",
		colorBlue, colorReset,
		m.global.TotalRPS, m.global.P95LatencyMs, m.global.ErrorRate*100,
		m.global.Availability, m.global.CostPerHour, m.global.CrashedNodes)
	keys := fmt.Sprintf("Admin UI %s | Wrap %s | Scroll %s | Help %s",
		indicator(m.admin), indicator(m.wrap), indicator(m.autoscroll), indicator(m.help))
	lines := []string{status, global}
	if m.score != nil {
		style := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("10"))
		if !m.score.Passed {
			style = style.Foreground(lipgloss.Color("9"))
		}
		lines = append(lines, style.Render(fmt.Sprintf("SCORE %.1f grade=%s %s",
			m.score.Overall, m.score.Grade, strings.Repeat("★", m.score.Stars))))
	}
	lines = append(lines, keys)
	return strings.Join(lines, "\n")
}

func (m tuiModel) renderHelp() string {
	lines := []string{
		"Key Bindings:",
		" q  quit",
		" c  inject chaos (type,targets;...,duration,key=value)",
		" p  pause or resume the run",
		" w  toggle wrap for the event log",
		" s  toggle auto-scroll",
		" h/? toggle this help view",
		"",
		"Chaos types: " + strings.Join(chaosTypeNames(), ", "),
		"",
		"When auto-scroll is disabled:",
		" j/k or up/down    scroll one line",
		" pgdown/pgup       scroll a page",
	}
	return strings.Join(lines, "\n")
}

func chaosTypeNames() []string {
	var names []string
	for _, t := range chaos.Types() {
		names = append(names, string(t))
	}
	return names
}

// parseChaosInput reads "type,targets,duration,key=value..." where targets
// are separated by semicolons. Empty fields keep the event defaults.
func parseChaosInput(val string) (chaos.Event, error) {
	parts := strings.Split(val, ",")
	if len(parts) == 0 || strings.TrimSpace(parts[0]) == "" {
		return chaos.Event{}, fmt.Errorf("missing chaos type")
	}
	ev := chaos.Event{Type: chaos.EventType(strings.TrimSpace(parts[0]))}
	if len(parts) > 1 {
		for _, t := range strings.Split(parts[1], ";") {
			if t = strings.TrimSpace(t); t != "" {
				ev.Targets = append(ev.Targets, t)
			}
		}
	}
	if len(parts) > 2 && strings.TrimSpace(parts[2]) != "" {
		d, err := time.ParseDuration(strings.TrimSpace(parts[2]))
		if err != nil {
			return chaos.Event{}, fmt.Errorf("duration: %w", err)
		}
		ev.Duration = d
	}
	for _, kv := range parts[min(3, len(parts)):] {
		key, raw, ok := strings.Cut(strings.TrimSpace(kv), "=")
		if !ok {
			return chaos.Event{}, fmt.Errorf("param %q is not key=value", kv)
		}
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return chaos.Event{}, fmt.Errorf("param %s: %w", key, err)
		}
		if ev.Params == nil {
			ev.Params = map[string]float64{}
		}
		ev.Params[key] = v
	}
	return ev.Normalize()
}
