package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/rs/zerolog"

	"github.com/NimbleMarkets/ntcharts/canvas/runes"
	"github.com/NimbleMarkets/ntcharts/linechart/streamlinechart"

	"github.com/gwillem/servoseq/pkg/playback"
	"github.com/gwillem/servoseq/pkg/robot"
	"github.com/gwillem/servoseq/pkg/sequence"
)

type ConsoleCommand struct {
	Loops   int    `short:"l" long:"loops" description:"Number of passes (default from config)"`
	LogFile string `long:"log-file" default:"servoseq.log" description:"Debug log file used with --verbose"`
	Args    struct {
		File string `positional-arg-name:"FILE" description:"Sequence file (default from config)"`
	} `positional-args:"yes"`
}

const (
	headerHeight = 3 // title + status + blank line
	legendHeight = 2 // legend row + blank
	footerHeight = 9 // log box height
	maxLogs      = 7 // number of log messages to show
	borderSize   = 2 // chart border
)

// Servo colors - distinct colors for each servo
var servoColors = map[robot.Servo]string{
	robot.Servo0: "196", // red
	robot.Servo1: "46",  // green
	robot.Servo2: "51",  // cyan
}

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	chartStyle  = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("240"))
	statusStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	playStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("10"))
)

func servoDataSet(s robot.Servo) string {
	return fmt.Sprintf("servo%d", s)
}

type consoleModel struct {
	ctrl     *playback.Controller
	store    *sequence.Store
	path     string
	loops    int
	chart    *streamlinechart.Model
	width    int      // terminal width
	height   int      // terminal height
	logs     []string // last N log messages
	progress playback.Progress
	quitting bool
}

func (m *consoleModel) addLog(msg string) {
	m.logs = append(m.logs, msg)
	if len(m.logs) > maxLogs {
		m.logs = m.logs[len(m.logs)-maxLogs:]
	}
}

// Messages from the controller
type eventMsg playback.Event
type logMsg string
type tickMsg time.Time

func waitForEvent(ctrl *playback.Controller) tea.Cmd {
	return func() tea.Msg {
		return eventMsg(<-ctrl.Events())
	}
}

func waitForLog(ctrl *playback.Controller) tea.Cmd {
	return func() tea.Msg {
		return logMsg(<-ctrl.Logs())
	}
}

func tick() tea.Cmd {
	return tea.Tick(100*time.Millisecond, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// chartSize calculates the size of the chart based on terminal dimensions
func (m *consoleModel) chartSize() (width, height int) {
	if m.width == 0 || m.height == 0 {
		return 80, 16 // default size before we know terminal size
	}
	width = m.width - borderSize - 2
	if width < 40 {
		width = 40
	}
	height = m.height - headerHeight - legendHeight - footerHeight - borderSize
	if height < 8 {
		height = 8
	}
	return width, height
}

func (m *consoleModel) resizeChart() {
	w, h := m.chartSize()
	m.chart.Resize(w, h)
}

func initialConsoleModel(ctrl *playback.Controller, store *sequence.Store, path string, loops int) consoleModel {
	chart := streamlinechart.New(80, 16,
		streamlinechart.WithYRange(robot.MinAngle, robot.MaxAngle),
	)

	// Set up data set styles for each servo
	for _, s := range robot.AllServos() {
		style := lipgloss.NewStyle().Foreground(lipgloss.Color(servoColors[s]))
		chart.SetDataSetStyles(servoDataSet(s), runes.ThinLineStyle, style)
	}

	return consoleModel{
		ctrl:  ctrl,
		store: store,
		path:  path,
		loops: max(1, loops),
		chart: &chart,
	}
}

func (m consoleModel) Init() tea.Cmd {
	// Start listening for events and log updates
	return tea.Batch(
		waitForEvent(m.ctrl),
		waitForLog(m.ctrl),
		tick(),
	)
}

func (m consoleModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.resizeChart()
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			if m.ctrl.Progress().State == playback.Playing {
				m.ctrl.Stop()
			}
			m.quitting = true
			return m, tea.Quit
		case "p", " ":
			m.ctrl.Play(m.store.Steps(), m.loops, nil)
		case "s", "esc":
			m.ctrl.Stop()
		case "r":
			m.ctrl.Rest()
		case "+", "=":
			m.loops++
		case "-":
			m.loops = max(1, m.loops-1)
		case "l":
			if err := m.store.LoadFile(m.path); err != nil {
				m.addLog(errorStyle.Render(err.Error()))
			} else {
				m.addLog(fmt.Sprintf("Reloaded %s: %d step(s)", m.path, m.store.Len()))
			}
		}
		m.progress = m.ctrl.Progress()
		return m, nil

	case tickMsg:
		m.progress = m.ctrl.Progress()
		return m, tick()

	case eventMsg:
		e := playback.Event(msg)
		if e.Kind == playback.EventStep {
			pose := e.Step.Pose()
			for _, s := range robot.AllServos() {
				m.chart.PushDataSet(servoDataSet(s), float64(pose.Angle(s)))
			}
			m.chart.DrawAll()
		}
		m.progress = m.ctrl.Progress()
		return m, waitForEvent(m.ctrl)

	case logMsg:
		m.addLog(renderLog(string(msg)))
		return m, waitForLog(m.ctrl)
	}

	return m, nil
}

func (m consoleModel) status() string {
	p := m.progress
	if p.State != playback.Playing {
		return statusStyle.Render(fmt.Sprintf("Idle - %d step(s), %d pass(es) planned", m.store.Len(), m.loops))
	}
	s := playStyle.Render("Playing") + statusStyle.Render(fmt.Sprintf(" - step %d/%d, pass %d/%d", p.Step, p.Steps, p.Pass, p.Loops))
	if p.Waiting {
		s += statusStyle.Render(fmt.Sprintf(", waiting %s", time.Since(p.WaitingSince).Truncate(100*time.Millisecond)))
	}
	return s
}

func (m consoleModel) View() string {
	if m.quitting {
		return "Console closed.\n"
	}

	var sb strings.Builder

	// Header
	sb.WriteString(titleStyle.Render("servoseq console"))
	sb.WriteString(fmt.Sprintf(" - %s", m.ctrl.Port()))
	if m.width > 0 {
		sb.WriteString(statusStyle.Render(fmt.Sprintf("  [%dx%d]", m.width, m.height)))
	}
	sb.WriteString("\n")
	sb.WriteString(m.status())
	sb.WriteString("\n\n")

	// Chart
	sb.WriteString(chartStyle.Render(m.chart.View()))
	sb.WriteString("\n")

	// Legend
	sb.WriteString(renderLegend())
	sb.WriteString("\n")

	// Log box
	logStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("240")).
		Width(max(20, m.width-4))

	logLines := strings.Join(m.logs, "\n")
	if len(m.logs) == 0 {
		logLines = statusStyle.Render("Waiting for the arm...")
	}
	sb.WriteString(logStyle.Render(logLines))
	sb.WriteString("\n")
	sb.WriteString(statusStyle.Render("p play  s stop  r rest  +/- passes  l reload  q quit"))
	sb.WriteString("\n")

	return sb.String()
}

func renderLegend() string {
	var items []string
	for _, s := range robot.AllServos() {
		colorStyle := lipgloss.NewStyle().Foreground(lipgloss.Color(servoColors[s])).Bold(true)
		item := colorStyle.Render("━━") + " " + servoDataSet(s)
		items = append(items, item)
	}
	return strings.Join(items, "  ")
}

func (c *ConsoleCommand) Execute(args []string) error {
	logger := zerolog.Nop()
	if opts.Verbose {
		f, err := os.OpenFile(c.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return fmt.Errorf("open log file: %w", err)
		}
		defer f.Close()
		logger = newLogger(f)
	}

	ctrl, cfg, err := connect(logger)
	if err != nil {
		return err
	}
	defer ctrl.Close()

	path := sequencePath(c.Args.File, cfg)
	store, err := loadStore(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Could not load %s: %v\n", path, err)
		store = sequence.NewStore()
	}

	loops := c.Loops
	if loops == 0 {
		loops = cfg.Loops
	}

	// Start poll loop in background
	stopLoop := startLoop(ctrl)
	defer stopLoop()

	// Run TUI
	p := tea.NewProgram(initialConsoleModel(ctrl, store, path, loops), tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("run console: %w", err)
	}
	return nil
}
