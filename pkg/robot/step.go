package robot

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"
)

// Step is one pose of a sequence plus an optional side command.
type Step struct {
	Name    string `json:"name"`
	Servo0  int    `json:"servo0"`
	Servo1  int    `json:"servo1"`
	Servo2  int    `json:"servo2"`
	Speed   int    `json:"speed"`
	Pause   int    `json:"pause"`
	NanoCmd string `json:"nano_cmd"`
}

// NewStep returns a step at the rest pose with default speed and no pause.
func NewStep(name string) Step {
	return Step{
		Name:   name,
		Servo0: RestAngle,
		Servo1: RestAngle,
		Servo2: RestAngle,
		Speed:  DefaultSpeed,
	}
}

// Pose returns the target angles of the step.
func (s Step) Pose() Pose {
	return Pose{s.Servo0, s.Servo1, s.Servo2}
}

// SetPose sets the target angles of the step.
func (s *Step) SetPose(p Pose) {
	s.Servo0, s.Servo1, s.Servo2 = p[Servo0], p[Servo1], p[Servo2]
}

// Validate checks the step against the documented servo bounds.
func (s Step) Validate() error {
	for _, servo := range AllServos() {
		if a := s.Pose().Angle(servo); a < MinAngle || a > MaxAngle {
			return fmt.Errorf("servo%d angle %d out of range [%d, %d]", servo, a, MinAngle, MaxAngle)
		}
	}
	if s.Speed <= 0 {
		return fmt.Errorf("speed must be positive, got %d", s.Speed)
	}
	if s.Pause < 0 {
		return fmt.Errorf("pause must not be negative, got %d", s.Pause)
	}
	return nil
}

// UnmarshalJSON fills missing fields with their defaults, trims nano_cmd and
// reads pause leniently: JSON numbers are truncated and anything else,
// numeric strings included, is treated as no pause.
func (s *Step) UnmarshalJSON(data []byte) error {
	type plain Step
	aux := struct {
		*plain
		Pause json.RawMessage `json:"pause"`
	}{plain: (*plain)(s)}

	*s = NewStep("")
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	s.Pause = parsePause(aux.Pause)
	s.NanoCmd = strings.TrimSpace(s.NanoCmd)
	return nil
}

func parsePause(raw json.RawMessage) int {
	if len(raw) == 0 {
		return 0
	}
	var n float64
	if err := json.Unmarshal(raw, &n); err != nil {
		return 0
	}
	return truncate(n)
}

func truncate(n float64) int {
	if math.IsNaN(n) || math.IsInf(n, 0) {
		return 0
	}
	return int(n)
}
