package robot

import (
	"fmt"
	"strings"
)

// Protocol commands understood by the arm controller.
const (
	CmdBeginMove   = "M279"
	CmdExecuteMove = "M278"
	CmdWaitIdle    = "M400"
	CmdAbort       = "M901"
	CmdMountSD     = "M21"
	CmdListFiles   = "M20"
	CmdEndUpload   = "M29"
)

// AckToken terminates every acknowledgment line sent by the controller.
const AckToken = "ok"

// MoveServo formats an M280 command for a single servo.
func MoveServo(s Servo, angle, speed int) string {
	return fmt.Sprintf("M280 P%d S%d V%d", s, angle, speed)
}

// Delay formats a G4 dwell command.
func Delay(ms int) string {
	return fmt.Sprintf("G4 P%d", ms)
}

// BeginUpload formats the command that starts writing a file to the SD card.
func BeginUpload(name string) string {
	return "M28 " + name
}

// DeleteFile formats the command that removes a file from the SD card.
func DeleteFile(name string) string {
	return "M30 " + name
}

// MoveCommands returns the lines that move all servos to pose at speed:
// begin, one M280 per servo, execute. The caller appends the wait marker.
func MoveCommands(p Pose, speed int) []string {
	lines := make([]string, 0, len(p)+2)
	lines = append(lines, CmdBeginMove)
	for _, s := range AllServos() {
		lines = append(lines, MoveServo(s, p.Angle(s), speed))
	}
	return append(lines, CmdExecuteMove)
}

// StepCommands returns the full command block for one step, ending with the
// M400 acknowledgment point.
func StepCommands(st Step) []string {
	lines := MoveCommands(st.Pose(), st.Speed)
	if st.Pause > 0 {
		lines = append(lines, Delay(st.Pause))
	}
	if cmd := strings.TrimSpace(st.NanoCmd); cmd != "" {
		lines = append(lines, cmd)
	}
	return append(lines, CmdWaitIdle)
}

// RestCommands returns the lines that bring the arm back to RestPose.
func RestCommands() []string {
	return append(MoveCommands(RestPose, DefaultSpeed), CmdWaitIdle)
}

// NanoMove formats a relative move for the secondary board. Unknown axes
// fall back to y.
func NanoMove(axis string, delta int) string {
	axis = strings.ToLower(axis)
	switch axis {
	case "x", "y", "z":
	default:
		axis = "y"
	}
	return fmt.Sprintf("R1 g0 %s%d s200", axis, delta)
}

// IsAck reports whether a received line acknowledges the queued moves.
// Controllers may prefix the token with status text ("T:25 ok").
func IsAck(line string) bool {
	return strings.HasSuffix(strings.ToLower(line), AckToken)
}
