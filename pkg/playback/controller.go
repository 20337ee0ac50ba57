package playback

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/gwillem/servoseq/pkg/link"
	"github.com/gwillem/servoseq/pkg/robot"
)

// DefaultPollInterval is the period of the serial poll loop.
const DefaultPollInterval = 50 * time.Millisecond

// Controller owns the serial link, runs the poll loop and routes received
// lines to the Sequencer. All writes to the arm go through Send.
type Controller struct {
	link       *link.Transport
	seq        *Sequencer
	poll       time.Duration
	ackTimeout time.Duration
	logger     zerolog.Logger

	io      sync.Mutex // guards link and pending
	pending []string

	mu      sync.RWMutex
	running bool
	lineCh  chan string
	logCh   chan string
}

// Config holds configuration for the controller.
type Config struct {
	Port         string
	Baud         int
	PollInterval time.Duration
	AckTimeout   time.Duration // zero waits forever
	Logger       zerolog.Logger
	Opener       link.Opener // defaults to link.OpenSerial
}

// NewController opens the serial port and creates a controller. The error
// wraps link.ErrConnection when the port cannot be opened.
func NewController(cfg Config) (*Controller, error) {
	logger := cfg.Logger
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}

	c := &Controller{
		poll:       cfg.PollInterval,
		ackTimeout: cfg.AckTimeout,
		logger:     logger.With().Str("component", "controller").Logger(),
		lineCh:     make(chan string, 64),
		logCh:      make(chan string, 64),
	}

	opts := []link.Option{link.WithLogger(logger.With().Str("component", "link").Logger())}
	if cfg.Opener != nil {
		opts = append(opts, link.WithOpener(cfg.Opener))
	}
	c.link = link.New(c.queueLine, opts...)
	if err := c.link.Open(cfg.Port, cfg.Baud); err != nil {
		return nil, fmt.Errorf("create controller: %w", err)
	}

	c.seq = New(c,
		WithLogger(logger.With().Str("component", "sequencer").Logger()),
		WithListener(c.logEvent),
	)
	return c, nil
}

// Close closes the serial link. Call it after Run has returned.
func (c *Controller) Close() {
	c.mu.Lock()
	c.running = false
	c.mu.Unlock()

	c.io.Lock()
	defer c.io.Unlock()
	c.link.Close()
}

// Sequencer returns the playback state machine.
func (c *Controller) Sequencer() *Sequencer {
	return c.seq
}

// Port returns the name of the open serial port.
func (c *Controller) Port() string {
	c.io.Lock()
	defer c.io.Unlock()
	return c.link.Name()
}

// Lines returns a channel that receives every line read from the arm.
func (c *Controller) Lines() <-chan string {
	return c.lineCh
}

// Logs returns a channel that receives console log messages.
func (c *Controller) Logs() <-chan string {
	return c.logCh
}

// Events returns the Sequencer's lifecycle events.
func (c *Controller) Events() <-chan Event {
	return c.seq.Events()
}

// PollInterval returns the poll loop period.
func (c *Controller) PollInterval() time.Duration {
	return c.poll
}

// Play starts playback of steps. See Sequencer.Play.
func (c *Controller) Play(steps []robot.Step, loops int, onFinished func()) bool {
	if !c.seq.Play(steps, loops, onFinished) {
		c.log("No steps in sequence")
		return false
	}
	return true
}

// Stop cancels playback and returns the arm to rest. See Sequencer.Stop.
func (c *Controller) Stop() {
	c.seq.Stop()
}

// Rest returns the arm to the rest pose.
func (c *Controller) Rest() {
	c.log("--- Returning to rest ---")
	c.seq.Rest()
}

// Move sends a pose directly. It is refused while a sequence is playing.
func (c *Controller) Move(p robot.Pose, speed int) bool {
	if !c.seq.Move(p, speed) {
		c.log("Move ignored: sequence playing")
		return false
	}
	return true
}

// Progress returns a snapshot of the playback state.
func (c *Controller) Progress() Progress {
	return c.seq.Progress()
}

// Send writes one line to the arm. It is safe for concurrent use.
func (c *Controller) Send(line string) {
	c.log(">> %s", line)
	c.io.Lock()
	defer c.io.Unlock()
	c.link.Send(line)
}

func (c *Controller) log(format string, args ...any) {
	msg := fmt.Sprintf("[%s] %s", time.Now().Format("15:04:05"), fmt.Sprintf(format, args...))
	select {
	case c.logCh <- msg:
	default:
		// Drop if channel full
	}
}

func (c *Controller) logEvent(e Event) {
	switch e.Kind {
	case EventStep:
		c.log("Step %d/%d: %s", e.Index, e.Steps, e.Step.Name)
	case EventLoop:
		c.log("--- Pass %d/%d ---", e.Pass, e.Loops)
	case EventFinished:
		c.log("--- Sequence finished ---")
	case EventStopped:
		c.log("--- Sequence stopped ---")
	}
}

// Run polls the serial link until ctx is cancelled, feeding every received
// line to the Sequencer and to Lines.
func (c *Controller) Run(ctx context.Context) error {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return fmt.Errorf("already running")
	}
	c.running = true
	c.mu.Unlock()

	c.log("Connected to %s, polling every %s", c.Port(), c.poll)
	if c.ackTimeout > 0 {
		c.log("Acknowledgment timeout %s", c.ackTimeout)
	}

	ticker := time.NewTicker(c.poll)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			c.shutdown()
			return ctx.Err()
		case <-ticker.C:
			c.step()
		}
	}
}

func (c *Controller) step() {
	c.io.Lock()
	c.link.Poll()
	lines := c.pending
	c.pending = nil
	c.io.Unlock()

	for _, line := range lines {
		c.handleLine(line)
	}

	if c.seq.Expire(c.ackTimeout) {
		c.log("No acknowledgment within %s, playback stopped", c.ackTimeout)
	}
}

// queueLine is the link callback; it runs from Poll with c.io held.
func (c *Controller) queueLine(line string) {
	c.pending = append(c.pending, line)
}

func (c *Controller) handleLine(line string) {
	c.log("%s", line)
	c.seq.OnLine(line)

	select {
	case c.lineCh <- line:
	default:
		// Drop if channel full
	}
}

func (c *Controller) shutdown() {
	c.mu.Lock()
	c.running = false
	c.mu.Unlock()
	c.logger.Debug().Msg("poll loop stopped")
}
