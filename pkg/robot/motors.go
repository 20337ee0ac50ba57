// Package robot provides the domain types and command protocol for the
// three-servo arm.
package robot

// Servo identifies a servo channel on the controller board (the P parameter
// of M280).
type Servo int

// Servo channels of the arm.
const (
	Servo0 Servo = iota
	Servo1
	Servo2
)

// Angle limits and defaults, in degrees and degrees per second.
const (
	MinAngle     = 0
	MaxAngle     = 180
	RestAngle    = 90
	DefaultSpeed = 60
)

// AllServos returns all servo channels in order.
func AllServos() []Servo {
	return []Servo{
		Servo0,
		Servo1,
		Servo2,
	}
}

// Pose holds a target angle for every servo.
type Pose [3]int

// Angle returns the target angle of a servo.
func (p Pose) Angle(s Servo) int {
	return p[s]
}

// RestPose is the neutral position commanded on stop and after a sequence
// completes.
var RestPose = Pose{RestAngle, RestAngle, RestAngle}
