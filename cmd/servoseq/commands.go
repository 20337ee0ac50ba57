package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/gwillem/servoseq/pkg/link"
	"github.com/gwillem/servoseq/pkg/robot"
)

var (
	headerStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	subHeaderStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("14"))
	successStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	errorStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	dimStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	sentStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
)

// renderLog colors a controller log message: commands sent, replies and
// lifecycle markers.
func renderLog(msg string) string {
	_, body, _ := strings.Cut(msg, "] ")
	switch {
	case strings.HasPrefix(body, ">> "):
		return sentStyle.Render(msg)
	case strings.HasPrefix(body, "---"), strings.HasPrefix(body, "Step "):
		return subHeaderStyle.Render(msg)
	case robot.IsAck(body):
		return successStyle.Render(msg)
	default:
		return dimStyle.Render(msg)
	}
}

type PlayCommand struct {
	Loops int `short:"l" long:"loops" description:"Number of passes (default from config)"`
	Args  struct {
		File string `positional-arg-name:"FILE" description:"Sequence file (default from config)"`
	} `positional-args:"yes"`
}

func (c *PlayCommand) Execute(args []string) error {
	logger := newLogger(os.Stderr)
	ctrl, cfg, err := connect(logger)
	if err != nil {
		return err
	}
	defer ctrl.Close()

	path := sequencePath(c.Args.File, cfg)
	store, err := loadStore(path)
	if err != nil {
		return err
	}
	loops := c.Loops
	if loops == 0 {
		loops = cfg.Loops
	}

	fmt.Println(headerStyle.Render("servoseq play"))
	fmt.Printf("%s: %d step(s), %d pass(es) on %s\n\n", path, store.Len(), max(1, loops), ctrl.Port())

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	stopLogs := make(chan struct{})
	logsDone := printLogs(ctrl, stopLogs)
	stopLoop := startLoop(ctrl)

	finished := make(chan struct{})
	if !ctrl.Play(store.Steps(), loops, func() { close(finished) }) {
		stopLoop()
		close(stopLogs)
		<-logsDone
		return fmt.Errorf("sequence %s is empty", path)
	}

	select {
	case <-finished:
	case <-ctx.Done():
		ctrl.Stop()
	}

	// The rest pose is written by the poll loop right after completion.
	stopLoop()
	close(stopLogs)
	<-logsDone

	fmt.Println()
	if ctx.Err() != nil {
		fmt.Println(errorStyle.Render("Playback stopped."))
	} else {
		fmt.Println(successStyle.Render("Playback finished."))
	}
	return nil
}

type StopCommand struct{}

func (c *StopCommand) Execute(args []string) error {
	return withController(func(ctrl controllerActions) {
		ctrl.Stop()
	})
}

type RestCommand struct{}

func (c *RestCommand) Execute(args []string) error {
	return withController(func(ctrl controllerActions) {
		ctrl.Rest()
	})
}

type MoveCommand struct {
	Servo0 int `long:"s0" default:"90" description:"Servo 0 angle"`
	Servo1 int `long:"s1" default:"90" description:"Servo 1 angle"`
	Servo2 int `long:"s2" default:"90" description:"Servo 2 angle"`
	Speed  int `long:"speed" default:"60" description:"Speed in degrees per second"`
}

func (c *MoveCommand) Execute(args []string) error {
	st := robot.Step{Servo0: c.Servo0, Servo1: c.Servo1, Servo2: c.Servo2, Speed: c.Speed}
	if err := st.Validate(); err != nil {
		return err
	}
	return withController(func(ctrl controllerActions) {
		ctrl.Move(st.Pose(), st.Speed)
	})
}

// controllerActions is the part of the controller used by one-shot commands.
type controllerActions interface {
	Stop()
	Rest()
	Move(p robot.Pose, speed int) bool
	Send(line string)
}

// withController connects, runs fn and prints what was sent.
func withController(fn func(controllerActions)) error {
	ctrl, _, err := connect(newLogger(os.Stderr))
	if err != nil {
		return err
	}
	defer ctrl.Close()

	stopLogs := make(chan struct{})
	logsDone := printLogs(ctrl, stopLogs)
	fn(ctrl)
	close(stopLogs)
	<-logsDone
	return nil
}

type SendCommand struct {
	Wait      time.Duration `short:"w" long:"wait" default:"1s" description:"How long to print replies"`
	NanoAxis  string        `long:"nano-axis" description:"Send a relative move to the secondary board on this axis (x, y, z)"`
	NanoDelta int           `long:"nano-delta" default:"1" description:"Distance of the secondary board move"`
	Args      struct {
		Lines []string `positional-arg-name:"LINE" description:"Command lines"`
	} `positional-args:"yes"`
}

func (c *SendCommand) Execute(args []string) error {
	lines := c.Args.Lines
	if c.NanoAxis != "" {
		lines = append(lines, robot.NanoMove(c.NanoAxis, c.NanoDelta))
	}
	if len(lines) == 0 {
		return fmt.Errorf("nothing to send")
	}

	ctrl, _, err := connect(newLogger(os.Stderr))
	if err != nil {
		return err
	}
	defer ctrl.Close()

	stopLogs := make(chan struct{})
	logsDone := printLogs(ctrl, stopLogs)
	stopLoop := startLoop(ctrl)

	for _, line := range lines {
		if line = strings.TrimSpace(line); line != "" {
			ctrl.Send(line)
		}
	}
	time.Sleep(c.Wait)

	stopLoop()
	close(stopLogs)
	<-logsDone
	return nil
}

type PortsCommand struct{}

func (c *PortsCommand) Execute(args []string) error {
	ports, err := link.Ports()
	if err != nil {
		return err
	}
	if len(ports) == 0 {
		fmt.Println("No serial ports found.")
		return nil
	}
	for _, p := range ports {
		fmt.Println(p)
	}
	return nil
}
