package playback

import (
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/gwillem/servoseq/pkg/robot"
)

type recorder struct {
	mu    sync.Mutex
	lines []string
}

func (r *recorder) Send(line string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lines = append(r.lines, line)
}

// take returns and clears the recorded lines.
func (r *recorder) take() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	lines := r.lines
	r.lines = nil
	return lines
}

func drain(ch <-chan Event) []Event {
	var events []Event
	for {
		select {
		case e := <-ch:
			events = append(events, e)
		default:
			return events
		}
	}
}

func kinds(events []Event) []EventKind {
	out := make([]EventKind, len(events))
	for i, e := range events {
		out[i] = e.Kind
	}
	return out
}

var restLines = []string{
	"M279",
	"M280 P0 S90 V60",
	"M280 P1 S90 V60",
	"M280 P2 S90 V60",
	"M278",
	"M400",
}

func stepA() robot.Step {
	return robot.Step{Name: "A", Servo0: 0, Servo1: 90, Servo2: 180, Speed: 60}
}

func TestSequencer_ConcreteScenario(t *testing.T) {
	require := require.New(t)

	rec := &recorder{}
	seq := New(rec)
	finished := 0

	block := []string{
		"M279",
		"M280 P0 S0 V60",
		"M280 P1 S90 V60",
		"M280 P2 S180 V60",
		"M278",
		"M400",
	}

	require.True(seq.Play([]robot.Step{stepA()}, 2, func() { finished++ }))
	require.Equal(block, rec.take())
	require.Equal(Playing, seq.State())
	require.True(seq.Progress().Waiting)

	seq.OnLine("ok")
	require.Equal(block, rec.take())
	require.Equal(2, seq.Progress().Pass)
	require.Zero(finished)

	seq.OnLine("ok")
	require.Equal(restLines, rec.take())
	require.Equal(1, finished)
	require.Equal(Idle, seq.State())

	require.Equal(
		[]EventKind{EventStep, EventLoop, EventStep, EventFinished},
		kinds(drain(seq.Events())),
	)
}

func TestSequencer_StepsGatedByAck(t *testing.T) {
	for _, tc := range []struct{ steps, loops int }{{1, 1}, {3, 1}, {2, 3}, {4, 2}} {
		rec := &recorder{}
		seq := New(rec)

		steps := make([]robot.Step, tc.steps)
		for i := range steps {
			steps[i] = robot.NewStep(string(rune('A' + i)))
			steps[i].Servo0 = i
		}

		finished := 0
		require.True(t, seq.Play(steps, tc.loops, func() { finished++ }))

		issued := 1
		for ack := 1; ack <= tc.steps*tc.loops; ack++ {
			// Lines that are not acknowledgments never advance playback.
			seq.OnLine("echo: busy processing")
			seq.OnLine("okidoki")

			lines := rec.take()
			require.Equal(t, "M400", lines[len(lines)-1])
			require.Equal(t, ack, issued)
			require.Zero(t, finished)

			seq.OnLine("ok")
			if ack < tc.steps*tc.loops {
				issued++
			}
		}

		require.Equal(t, restLines, rec.take())
		require.Equal(t, 1, finished)
		require.Equal(t, Idle, seq.State())

		var issuedEvents, finishes int
		for _, e := range drain(seq.Events()) {
			switch e.Kind {
			case EventStep:
				issuedEvents++
			case EventFinished:
				finishes++
			}
		}
		require.Equal(t, tc.steps*tc.loops, issuedEvents)
		require.Equal(t, 1, finishes)
	}
}

func TestSequencer_StepOrder(t *testing.T) {
	require := require.New(t)

	rec := &recorder{}
	seq := New(rec)
	steps := []robot.Step{
		{Name: "first", Servo0: 10, Servo1: 10, Servo2: 10, Speed: 30},
		{Name: "second", Servo0: 20, Servo1: 20, Servo2: 20, Speed: 30},
	}

	seq.Play(steps, 1, nil)
	require.Contains(rec.take(), "M280 P0 S10 V30")

	seq.OnLine("ok")
	second := rec.take()
	require.Contains(second, "M280 P0 S20 V30")
	require.NotContains(second, "M280 P0 S10 V30")

	events := drain(seq.Events())
	require.Len(events, 2)
	require.Equal(1, events[0].Index)
	require.Equal("second", events[1].Step.Name)
	require.Equal(2, events[1].Index)
}

func TestSequencer_LoopClamping(t *testing.T) {
	var outputs [][]string
	for _, loops := range []int{1, 0, -5} {
		rec := &recorder{}
		seq := New(rec)
		finished := 0

		seq.Play([]robot.Step{stepA(), robot.NewStep("B")}, loops, func() { finished++ })
		seq.OnLine("ok")
		seq.OnLine("ok")

		require.Equal(t, 1, finished, "loops=%d", loops)
		require.Equal(t, Idle, seq.State(), "loops=%d", loops)
		outputs = append(outputs, rec.take())
	}
	require.Equal(t, outputs[0], outputs[1])
	require.Equal(t, outputs[0], outputs[2])
}

func TestSequencer_PauseAndNanoCmd(t *testing.T) {
	require := require.New(t)

	rec := &recorder{}
	seq := New(rec)
	st := stepA()
	st.Pause = 500
	st.NanoCmd = "R1 g0 x5 s200"

	seq.Play([]robot.Step{st}, 1, nil)
	lines := rec.take()

	delays := 0
	for _, l := range lines {
		if strings.HasPrefix(l, "G4") {
			delays++
		}
	}
	require.Equal(1, delays)
	require.Equal([]string{"M278", "G4 P500", "R1 g0 x5 s200", "M400"}, lines[4:])
}

func TestSequencer_ZeroPauseOmitsDelay(t *testing.T) {
	rec := &recorder{}
	seq := New(rec)

	seq.Play([]robot.Step{stepA()}, 1, nil)
	for _, l := range rec.take() {
		require.False(t, strings.HasPrefix(l, "G4"), "unexpected delay line %q", l)
	}
}

func TestSequencer_AckMatching(t *testing.T) {
	require := require.New(t)

	rec := &recorder{}
	seq := New(rec)
	seq.Play([]robot.Step{stepA(), stepA()}, 1, nil)
	rec.take()

	seq.OnLine("okidoki")
	require.Empty(rec.take())
	require.True(seq.Progress().Waiting)

	seq.OnLine("T:25 ok")
	require.NotEmpty(rec.take())
	require.Equal(2, seq.Progress().Step)

	seq.OnLine("T:25 OK")
	require.Equal(restLines, rec.take())
}

func TestSequencer_IgnoresLinesWhenIdle(t *testing.T) {
	rec := &recorder{}
	seq := New(rec)

	seq.OnLine("ok")
	seq.OnLine("T:25 ok")
	require.Empty(t, rec.take())
	require.Equal(t, Idle, seq.State())
}

func TestSequencer_PlayEmptyRejected(t *testing.T) {
	rec := &recorder{}
	seq := New(rec)

	require.False(t, seq.Play(nil, 3, func() { t.Fatal("onFinished called") }))
	require.False(t, seq.Play([]robot.Step{}, 1, nil))
	require.Empty(t, rec.take())
	require.Equal(t, Idle, seq.State())
}

func TestSequencer_StopWhilePlaying(t *testing.T) {
	require := require.New(t)

	rec := &recorder{}
	seq := New(rec)
	seq.Play([]robot.Step{stepA(), stepA()}, 3, func() { t.Fatal("onFinished called after Stop") })
	rec.take()

	seq.Stop()
	want := append([]string{"M901"}, restLines...)
	require.Equal(want, rec.take())
	require.Equal(Idle, seq.State())
	require.False(seq.Progress().Waiting)

	// A late acknowledgment of the cancelled step must not advance anything.
	seq.OnLine("ok")
	require.Empty(rec.take())

	require.Equal([]EventKind{EventStep, EventStopped}, kinds(drain(seq.Events())))
}

func TestSequencer_StopWhenIdle(t *testing.T) {
	rec := &recorder{}
	seq := New(rec)

	seq.Stop()
	seq.Stop()
	want := append([]string{"M901"}, restLines...)
	require.Equal(t, append(want, want...), rec.take())
	require.Empty(t, drain(seq.Events()))
}

func TestSequencer_PlayReplacesSession(t *testing.T) {
	require := require.New(t)

	rec := &recorder{}
	seq := New(rec)
	firstDone := false
	seq.Play([]robot.Step{stepA()}, 5, func() { firstDone = true })

	second := robot.NewStep("B")
	second.Servo0 = 5
	secondDone := false
	seq.Play([]robot.Step{second}, 1, func() { secondDone = true })
	rec.take()

	seq.OnLine("ok")
	require.Equal(restLines, rec.take())
	require.False(firstDone)
	require.True(secondDone)
}

func TestSequencer_SnapshotsSteps(t *testing.T) {
	rec := &recorder{}
	seq := New(rec)
	steps := []robot.Step{stepA(), stepA()}

	seq.Play(steps, 1, nil)
	rec.take()
	steps[1].Servo0 = 42

	seq.OnLine("ok")
	require.Contains(t, rec.take(), "M280 P0 S0 V60")
}

func TestSequencer_OnFinishedCanReplay(t *testing.T) {
	require := require.New(t)

	rec := &recorder{}
	seq := New(rec)
	replays := 0
	var onFinished func()
	onFinished = func() {
		if replays < 1 {
			replays++
			seq.Play([]robot.Step{stepA()}, 1, onFinished)
		}
	}

	seq.Play([]robot.Step{stepA()}, 1, onFinished)
	rec.take()

	seq.OnLine("ok")
	lines := rec.take()
	require.Equal("M400", lines[len(lines)-1])
	require.NotEqual(restLines, lines, "rest must not clobber the new session")
	require.Equal(Playing, seq.State())

	seq.OnLine("ok")
	require.Equal(restLines, rec.take())
	require.Equal(Idle, seq.State())
}

func TestSequencer_StopFromOnFinishedRestsOnce(t *testing.T) {
	require := require.New(t)

	rec := &recorder{}
	seq := New(rec)
	seq.Play([]robot.Step{stepA()}, 1, func() { seq.Stop() })
	rec.take()

	seq.OnLine("ok")
	require.Equal(append([]string{robot.CmdAbort}, restLines...), rec.take())
	require.Equal(Idle, seq.State())
}

func TestSequencer_RestAndMove(t *testing.T) {
	require := require.New(t)

	rec := &recorder{}
	seq := New(rec)

	seq.Rest()
	require.Equal(restLines, rec.take())

	require.True(seq.Move(robot.Pose{1, 2, 3}, 20))
	require.Equal("M280 P2 S3 V20", rec.take()[3])

	seq.Play([]robot.Step{stepA()}, 1, nil)
	rec.take()
	require.False(seq.Move(robot.Pose{1, 2, 3}, 20))
	require.Empty(rec.take())
	require.Equal(Playing, seq.State())
}

func TestSequencer_Expire(t *testing.T) {
	require := require.New(t)

	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	rec := &recorder{}
	seq := New(rec, WithClock(func() time.Time { return now }))

	require.False(seq.Expire(time.Second), "idle never expires")

	seq.Play([]robot.Step{stepA()}, 1, func() { t.Fatal("onFinished called on timeout") })
	rec.take()

	now = now.Add(10 * time.Minute)
	require.False(seq.Expire(0), "zero timeout waits forever")
	require.Equal(Playing, seq.State())

	now = now.Add(-10*time.Minute + 500*time.Millisecond)
	require.False(seq.Expire(time.Second))

	now = now.Add(time.Second)
	require.True(seq.Expire(time.Second))
	require.Equal(Idle, seq.State())
	require.Equal(append([]string{"M901"}, restLines...), rec.take())
}

func TestSequencer_Listener(t *testing.T) {
	var got []EventKind
	rec := &recorder{}
	seq := New(rec, WithListener(func(e Event) { got = append(got, e.Kind) }))

	seq.Play([]robot.Step{stepA()}, 1, nil)
	seq.OnLine("ok")

	require.Equal(t, []EventKind{EventStep, EventFinished}, got)
}

func TestSequencer_ConcurrentStop(t *testing.T) {
	rec := &recorder{}
	seq := New(rec)
	steps := []robot.Step{stepA(), stepA(), stepA()}

	var wg sync.WaitGroup
	for range 4 {
		wg.Add(2)
		go func() {
			defer wg.Done()
			for range 50 {
				seq.Play(steps, 2, nil)
				seq.OnLine("ok")
			}
		}()
		go func() {
			defer wg.Done()
			for range 50 {
				seq.Stop()
				_ = seq.Progress()
			}
		}()
	}
	wg.Wait()

	seq.Stop()
	require.Equal(t, Idle, seq.State())
}
