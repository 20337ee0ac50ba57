// Package playback drives step sequences on the arm.
//
// The Sequencer is the command/acknowledgment state machine: it issues the
// command block of one step, waits for the controller to acknowledge the
// trailing M400 and only then issues the next step. Advancement is driven
// entirely by OnLine; nothing in the Sequencer blocks or starts goroutines.
//
// The Controller owns the serial transport and runs the poll loop that feeds
// received lines into the Sequencer.
package playback

import (
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/gwillem/servoseq/pkg/robot"
)

// State is the playback state of a Sequencer.
type State int

const (
	Idle State = iota
	Playing
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Playing:
		return "playing"
	default:
		return "unknown"
	}
}

// EventKind identifies a lifecycle event.
type EventKind int

const (
	// EventStep is emitted when the command block of a step is issued.
	EventStep EventKind = iota
	// EventLoop is emitted when a pass ends and another one starts.
	EventLoop
	// EventFinished is emitted once when the last pass is acknowledged.
	EventFinished
	// EventStopped is emitted when Stop cancels an active session.
	EventStopped
)

func (k EventKind) String() string {
	switch k {
	case EventStep:
		return "step"
	case EventLoop:
		return "loop"
	case EventFinished:
		return "finished"
	case EventStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Event describes a transition of a playback session.
type Event struct {
	Kind    EventKind
	Session string
	Index   int // 1-based step number, set for EventStep
	Steps   int
	Pass    int // 1-based pass number
	Loops   int
	Step    robot.Step
}

// Progress is a snapshot of the Sequencer state.
type Progress struct {
	State        State
	Session      string
	Step         int // steps issued in the current pass
	Steps        int
	Pass         int
	Loops        int
	Waiting      bool
	WaitingSince time.Time
}

type session struct {
	id           string
	steps        []robot.Step
	next         int
	loops        int
	remaining    int
	waiting      bool
	waitingSince time.Time
	onFinished   func()
}

func (s *session) pass() int {
	return s.loops - s.remaining + 1
}

const eventBuffer = 64

// Sequencer is the playback state machine. At most one session is active at
// a time. All methods are safe for concurrent use.
type Sequencer struct {
	arm      *robot.Arm
	now      func() time.Time
	logger   zerolog.Logger
	listener func(Event)

	mu      sync.Mutex
	session *session
	gen     uint64 // bumped by Play and Stop
	events  chan Event
}

// Option configures a Sequencer.
type Option func(*Sequencer)

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) Option {
	return func(s *Sequencer) {
		s.logger = l
	}
}

// WithListener registers a function called synchronously for every event.
// It must not call back into the Sequencer.
func WithListener(fn func(Event)) Option {
	return func(s *Sequencer) {
		s.listener = fn
	}
}

// WithClock replaces time.Now, used to stamp acknowledgment waits.
func WithClock(now func() time.Time) Option {
	return func(s *Sequencer) {
		s.now = now
	}
}

// New creates an idle Sequencer that writes commands through tx.
func New(tx robot.Sender, opts ...Option) *Sequencer {
	s := &Sequencer{
		arm:    robot.NewArm(tx),
		now:    time.Now,
		logger: zerolog.Nop(),
		events: make(chan Event, eventBuffer),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Events returns a channel that receives lifecycle events. Events are
// dropped when the channel is full.
func (s *Sequencer) Events() <-chan Event {
	return s.events
}

// Play starts a session over a snapshot of steps, replacing any active
// session. loops below 1 play once. onFinished, if not nil, is called once
// when the last pass completes; it is never called for stopped sessions.
// Play returns false and does nothing when steps is empty.
func (s *Sequencer) Play(steps []robot.Step, loops int, onFinished func()) bool {
	if len(steps) == 0 {
		s.logger.Debug().Msg("play rejected: empty sequence")
		return false
	}
	loops = max(1, loops)

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.session != nil {
		s.logger.Info().Str("session", s.session.id).Msg("session replaced")
	}
	s.gen++
	s.session = &session{
		id:         uuid.NewString()[:8],
		steps:      slices.Clone(steps),
		loops:      loops,
		remaining:  loops,
		onFinished: onFinished,
	}
	s.logger.Info().
		Str("session", s.session.id).
		Int("steps", len(steps)).
		Int("loops", loops).
		Msg("playback started")

	s.issueLocked()
	return true
}

// OnLine feeds a received line into the state machine. Only acknowledgment
// lines received while a step is pending have an effect.
func (s *Sequencer) OnLine(line string) {
	s.mu.Lock()
	sess := s.session
	if sess == nil || !sess.waiting || !robot.IsAck(line) {
		s.mu.Unlock()
		return
	}
	sess.waiting = false

	if sess.next >= len(sess.steps) {
		sess.remaining--
		if sess.remaining <= 0 {
			s.session = nil
			gen := s.gen
			s.mu.Unlock()
			s.finish(sess, gen)
			return
		}
		sess.next = 0
		s.logger.Debug().Str("session", sess.id).Int("remaining", sess.remaining).Msg("loop restarted")
		s.emit(Event{Kind: EventLoop, Session: sess.id, Steps: len(sess.steps), Pass: sess.pass(), Loops: sess.loops})
	}
	s.issueLocked()
	s.mu.Unlock()
}

// finish completes sess outside the lock. gen is the generation observed when
// the session ended; the rest pose is sent only if nothing called Play or Stop
// since.
func (s *Sequencer) finish(sess *session, gen uint64) {
	s.logger.Info().Str("session", sess.id).Msg("playback finished")
	if sess.onFinished != nil {
		sess.onFinished()
	}
	s.emit(Event{Kind: EventFinished, Session: sess.id, Steps: len(sess.steps), Pass: sess.loops, Loops: sess.loops})

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gen != gen {
		return
	}
	s.arm.Rest()
}

// Stop cancels the active session, if any, then aborts motion and returns
// the arm to rest. It is safe to call in any state and always ends Idle.
func (s *Sequencer) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopLocked()
}

func (s *Sequencer) stopLocked() {
	s.gen++
	if sess := s.session; sess != nil {
		sess.waiting = false
		s.session = nil
		s.logger.Info().Str("session", sess.id).Msg("playback stopped")
		s.emit(Event{Kind: EventStopped, Session: sess.id, Steps: len(sess.steps), Pass: sess.pass(), Loops: sess.loops})
	}
	s.arm.Abort()
	s.arm.Rest()
}

// Rest commands the rest pose without touching the session.
func (s *Sequencer) Rest() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.arm.Rest()
}

// Move commands a pose directly. It is ignored while a session is playing so
// that the pending acknowledgment keeps its meaning.
func (s *Sequencer) Move(p robot.Pose, speed int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.session != nil {
		return false
	}
	s.arm.MoveTo(p, speed)
	return true
}

// State returns Playing while a session is active.
func (s *Sequencer) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.session != nil {
		return Playing
	}
	return Idle
}

// Progress returns a snapshot of the active session.
func (s *Sequencer) Progress() Progress {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess := s.session
	if sess == nil {
		return Progress{State: Idle}
	}
	return Progress{
		State:        Playing,
		Session:      sess.id,
		Step:         sess.next,
		Steps:        len(sess.steps),
		Pass:         sess.pass(),
		Loops:        sess.loops,
		Waiting:      sess.waiting,
		WaitingSince: sess.waitingSince,
	}
}

// Expire stops the session when it has waited for an acknowledgment longer
// than timeout. A timeout of zero or less never expires, leaving a silent
// controller to stall playback until Stop is called.
func (s *Sequencer) Expire(timeout time.Duration) bool {
	if timeout <= 0 {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	sess := s.session
	if sess == nil || !sess.waiting || s.now().Sub(sess.waitingSince) <= timeout {
		return false
	}
	s.logger.Warn().Str("session", sess.id).Dur("timeout", timeout).Msg("acknowledgment timed out")
	s.stopLocked()
	return true
}

// issueLocked sends the step at the session's next index and starts waiting
// for its acknowledgment. The caller holds s.mu.
func (s *Sequencer) issueLocked() {
	sess := s.session
	st := sess.steps[sess.next]
	sess.next++

	s.logger.Debug().
		Str("session", sess.id).
		Int("step", sess.next).
		Str("name", st.Name).
		Msg("issuing step")
	s.emit(Event{
		Kind:    EventStep,
		Session: sess.id,
		Index:   sess.next,
		Steps:   len(sess.steps),
		Pass:    sess.pass(),
		Loops:   sess.loops,
		Step:    st,
	})

	s.arm.Step(st)
	sess.waiting = true
	sess.waitingSince = s.now()
}

func (s *Sequencer) emit(e Event) {
	if s.listener != nil {
		s.listener(e)
	}
	select {
	case s.events <- e:
	default:
		// Drop if channel full
	}
}
