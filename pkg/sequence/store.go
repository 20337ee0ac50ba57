// Package sequence stores the ordered steps of a motion sequence and
// persists them as JSON.
package sequence

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"sync"

	"github.com/gwillem/servoseq/pkg/robot"
)

// ErrFormat is returned when a sequence document cannot be decoded.
var ErrFormat = errors.New("invalid sequence format")

// Store holds an ordered list of steps. Insertion order is playback order.
// Index based edits with an out of range index are ignored.
type Store struct {
	mu    sync.RWMutex
	steps []robot.Step
}

// NewStore creates a store holding a copy of steps.
func NewStore(steps ...robot.Step) *Store {
	return &Store{steps: slices.Clone(steps)}
}

// Add appends a step.
func (s *Store) Add(st robot.Step) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.steps = append(s.steps, st)
}

// Clear removes all steps.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.steps = nil
}

// Len returns the number of steps.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.steps)
}

// Steps returns a copy of the steps.
func (s *Store) Steps() []robot.Step {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.steps)
}

// Step returns the step at index i.
func (s *Store) Step(i int) (robot.Step, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.valid(i) {
		return robot.Step{}, false
	}
	return s.steps[i], true
}

// Remove deletes the step at index i.
func (s *Store) Remove(i int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.valid(i) {
		s.steps = slices.Delete(s.steps, i, i+1)
	}
}

// Replace overwrites the step at index i.
func (s *Store) Replace(i int, st robot.Step) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.valid(i) {
		s.steps[i] = st
	}
}

// Duplicate appends a copy of the step at index i to the end.
func (s *Store) Duplicate(i int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.valid(i) {
		s.steps = append(s.steps, s.steps[i])
	}
}

func (s *Store) valid(i int) bool {
	return i >= 0 && i < len(s.steps)
}

// Save writes the steps as an indented JSON array.
func (s *Store) Save(w io.Writer) error {
	steps := s.Steps()
	if steps == nil {
		steps = []robot.Step{}
	}
	data, err := json.MarshalIndent(steps, "", "  ")
	if err != nil {
		return fmt.Errorf("encode sequence: %w", err)
	}
	data = append(data, '\n')
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("write sequence: %w", err)
	}
	return nil
}

// Load replaces the steps with the JSON array read from r. On error the
// store is left unchanged.
func (s *Store) Load(r io.Reader) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("read sequence: %w", err)
	}
	var steps []robot.Step
	if err := json.Unmarshal(data, &steps); err != nil {
		return fmt.Errorf("%w: %w", ErrFormat, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.steps = steps
	return nil
}

// SaveFile saves the steps to path.
func (s *Store) SaveFile(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create sequence file: %w", err)
	}
	if err := s.Save(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// LoadFile loads the steps from path.
func (s *Store) LoadFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open sequence file: %w", err)
	}
	defer f.Close()
	return s.Load(f)
}
