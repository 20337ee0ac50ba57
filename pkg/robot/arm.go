package robot

// Sender writes one protocol line to the arm controller.
type Sender interface {
	Send(line string)
}

// Arm issues command blocks to the arm controller. It does not wait for
// acknowledgments; callers that need gating watch for IsAck lines.
type Arm struct {
	tx Sender
}

// NewArm creates an arm that writes through tx.
func NewArm(tx Sender) *Arm {
	return &Arm{tx: tx}
}

// Step issues the command block of one step, ending with M400.
func (a *Arm) Step(st Step) {
	a.send(StepCommands(st))
}

// MoveTo moves all servos to p at speed and waits for idle.
func (a *Arm) MoveTo(p Pose, speed int) {
	a.send(append(MoveCommands(p, speed), CmdWaitIdle))
}

// Rest moves the arm to RestPose.
func (a *Arm) Rest() {
	a.send(RestCommands())
}

// Abort cancels any motion in progress on the controller.
func (a *Arm) Abort() {
	a.tx.Send(CmdAbort)
}

func (a *Arm) send(lines []string) {
	for _, line := range lines {
		a.tx.Send(line)
	}
}
