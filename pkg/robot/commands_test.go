package robot

import (
	"slices"
	"testing"
)

func TestIsAck(t *testing.T) {
	tests := []struct {
		line string
		want bool
	}{
		{"ok", true},
		{"OK", true},
		{"T:25 ok", true},
		{"echo: busy Ok", true},
		{"okidoki", false},
		{"", false},
		{"error", false},
		{"ok 3", false},
	}

	for _, tt := range tests {
		if got := IsAck(tt.line); got != tt.want {
			t.Errorf("IsAck(%q) = %v, want %v", tt.line, got, tt.want)
		}
	}
}

func TestStepCommands(t *testing.T) {
	st := Step{Name: "A", Servo0: 0, Servo1: 90, Servo2: 180, Speed: 60}

	got := StepCommands(st)
	want := []string{
		"M279",
		"M280 P0 S0 V60",
		"M280 P1 S90 V60",
		"M280 P2 S180 V60",
		"M278",
		"M400",
	}
	if !slices.Equal(got, want) {
		t.Errorf("StepCommands() = %q, want %q", got, want)
	}
}

func TestStepCommands_PauseAndNano(t *testing.T) {
	st := Step{Servo0: 10, Servo1: 20, Servo2: 30, Speed: 45, Pause: 500, NanoCmd: "  R1 g0 y5 s200 "}

	got := StepCommands(st)
	want := []string{
		"M279",
		"M280 P0 S10 V45",
		"M280 P1 S20 V45",
		"M280 P2 S30 V45",
		"M278",
		"G4 P500",
		"R1 g0 y5 s200",
		"M400",
	}
	if !slices.Equal(got, want) {
		t.Errorf("StepCommands() = %q, want %q", got, want)
	}
}

func TestStepCommands_NoDelayForNonPositivePause(t *testing.T) {
	for _, pause := range []int{0, -10} {
		st := NewStep("p")
		st.Pause = pause
		for _, line := range StepCommands(st) {
			if line[:2] == "G4" {
				t.Errorf("pause %d emitted delay line %q", pause, line)
			}
		}
	}
}

func TestRestCommands(t *testing.T) {
	want := []string{
		"M279",
		"M280 P0 S90 V60",
		"M280 P1 S90 V60",
		"M280 P2 S90 V60",
		"M278",
		"M400",
	}
	if got := RestCommands(); !slices.Equal(got, want) {
		t.Errorf("RestCommands() = %q, want %q", got, want)
	}
}

func TestNanoMove(t *testing.T) {
	tests := []struct {
		axis  string
		delta int
		want  string
	}{
		{"x", 5, "R1 g0 x5 s200"},
		{"Z", -3, "R1 g0 z-3 s200"},
		{"q", 1, "R1 g0 y1 s200"},
		{"", 2, "R1 g0 y2 s200"},
	}

	for _, tt := range tests {
		if got := NanoMove(tt.axis, tt.delta); got != tt.want {
			t.Errorf("NanoMove(%q, %d) = %q, want %q", tt.axis, tt.delta, got, tt.want)
		}
	}
}

type recorder struct {
	lines []string
}

func (r *recorder) Send(line string) {
	r.lines = append(r.lines, line)
}

func TestArm(t *testing.T) {
	rec := &recorder{}
	arm := NewArm(rec)

	arm.Abort()
	arm.Rest()
	if len(rec.lines) != 7 || rec.lines[0] != CmdAbort {
		t.Fatalf("Abort+Rest sent %q", rec.lines)
	}

	rec.lines = nil
	arm.MoveTo(Pose{1, 2, 3}, 30)
	want := []string{"M279", "M280 P0 S1 V30", "M280 P1 S2 V30", "M280 P2 S3 V30", "M278", "M400"}
	if !slices.Equal(rec.lines, want) {
		t.Errorf("MoveTo sent %q, want %q", rec.lines, want)
	}
}
