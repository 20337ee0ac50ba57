package main

import (
	"errors"
	"fmt"
	"io/fs"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/gwillem/servoseq/pkg/robot"
	"github.com/gwillem/servoseq/pkg/sequence"
)

type StepCommand struct {
	File string `short:"f" long:"file" description:"Sequence file (default from config)"`

	List      StepListCommand      `command:"list" alias:"ls" description:"Show the steps"`
	Add       StepAddCommand       `command:"add" description:"Append a step"`
	Edit      StepEditCommand      `command:"edit" description:"Replace a step"`
	Remove    StepRemoveCommand    `command:"remove" alias:"rm" description:"Delete a step"`
	Duplicate StepDuplicateCommand `command:"dup" description:"Append a copy of a step"`
	Clear     StepClearCommand     `command:"clear" description:"Delete all steps"`
}

// StepFields are the flags describing one step. Flags that are not given
// stay nil and leave the base step unchanged.
type StepFields struct {
	Name    *string `short:"n" long:"name" description:"Step name"`
	Servo0  *int    `long:"s0" description:"Servo 0 angle (default 90)"`
	Servo1  *int    `long:"s1" description:"Servo 1 angle (default 90)"`
	Servo2  *int    `long:"s2" description:"Servo 2 angle (default 90)"`
	Speed   *int    `long:"speed" description:"Speed in degrees per second (default 60)"`
	Pause   *int    `long:"pause" description:"Hold time after the move in milliseconds (default 0)"`
	NanoCmd *string `long:"nano" description:"Secondary board command sent after the move"`
}

// apply returns base with the given flags set on it.
func (f StepFields) apply(base robot.Step) (robot.Step, error) {
	st := base
	if f.Name != nil {
		st.Name = *f.Name
	}
	if f.Servo0 != nil {
		st.Servo0 = *f.Servo0
	}
	if f.Servo1 != nil {
		st.Servo1 = *f.Servo1
	}
	if f.Servo2 != nil {
		st.Servo2 = *f.Servo2
	}
	if f.Speed != nil {
		st.Speed = *f.Speed
	}
	if f.Pause != nil {
		st.Pause = *f.Pause
	}
	if f.NanoCmd != nil {
		st.NanoCmd = strings.TrimSpace(*f.NanoCmd)
	}
	if err := st.Validate(); err != nil {
		return robot.Step{}, err
	}
	return st, nil
}

// editSequence loads the sequence file, applies fn and saves it back. A
// missing file starts an empty sequence.
func editSequence(fn func(*sequence.Store) error) error {
	path, store, err := openSequence(true)
	if err != nil {
		return err
	}
	if err := fn(store); err != nil {
		return err
	}
	if err := store.SaveFile(path); err != nil {
		return err
	}
	fmt.Printf("%s: %d step(s)\n", path, store.Len())
	return nil
}

func openSequence(allowMissing bool) (string, *sequence.Store, error) {
	cfg, err := loadConfig()
	if err != nil {
		return "", nil, err
	}
	path := sequencePath(opts.Step.File, cfg)
	store := sequence.NewStore()
	if err := store.LoadFile(path); err != nil {
		if !allowMissing || !errors.Is(err, fs.ErrNotExist) {
			return "", nil, err
		}
	}
	return path, store, nil
}

// index converts a 1-based step number given by the user.
func index(store *sequence.Store, n int) (int, error) {
	if n < 1 || n > store.Len() {
		return 0, fmt.Errorf("no step %d (sequence has %d)", n, store.Len())
	}
	return n - 1, nil
}

type stepNumber struct {
	Number int `positional-arg-name:"N" required:"yes" description:"Step number, starting at 1"`
}

type StepListCommand struct{}

func (c *StepListCommand) Execute(args []string) error {
	path, store, err := openSequence(false)
	if err != nil {
		return err
	}

	fmt.Println(headerStyle.Render(path))
	if store.Len() == 0 {
		fmt.Println(dimStyle.Render("(empty)"))
		return nil
	}
	fmt.Println(renderSteps(store.Steps()))
	return nil
}

func renderSteps(steps []robot.Step) string {
	cellStyle := lipgloss.NewStyle().Padding(0, 1)
	tableHeaderStyle := cellStyle.Bold(true).Foreground(lipgloss.Color("12"))
	nameStyle := cellStyle.Foreground(lipgloss.Color("14"))

	rows := make([][]string, 0, len(steps))
	for i, st := range steps {
		rows = append(rows, []string{
			strconv.Itoa(i + 1),
			st.Name,
			strconv.Itoa(st.Servo0),
			strconv.Itoa(st.Servo1),
			strconv.Itoa(st.Servo2),
			strconv.Itoa(st.Speed),
			strconv.Itoa(st.Pause),
			st.NanoCmd,
		})
	}

	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(dimStyle).
		Headers("#", "Name", "S0", "S1", "S2", "Speed", "Pause", "Nano").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return tableHeaderStyle
			case col == 1:
				return nameStyle
			default:
				return cellStyle
			}
		})
	return t.Render()
}

type StepAddCommand struct {
	StepFields
}

func (c *StepAddCommand) Execute(args []string) error {
	return editSequence(func(store *sequence.Store) error {
		st, err := c.apply(robot.NewStep(fmt.Sprintf("Step %d", store.Len()+1)))
		if err != nil {
			return err
		}
		store.Add(st)
		return nil
	})
}

type StepEditCommand struct {
	StepFields
	Args stepNumber `positional-args:"yes"`
}

func (c *StepEditCommand) Execute(args []string) error {
	return editSequence(func(store *sequence.Store) error {
		i, err := index(store, c.Args.Number)
		if err != nil {
			return err
		}
		old, _ := store.Step(i)
		st, err := c.apply(old)
		if err != nil {
			return err
		}
		store.Replace(i, st)
		return nil
	})
}

type StepRemoveCommand struct {
	Args stepNumber `positional-args:"yes"`
}

func (c *StepRemoveCommand) Execute(args []string) error {
	return editSequence(func(store *sequence.Store) error {
		i, err := index(store, c.Args.Number)
		if err != nil {
			return err
		}
		store.Remove(i)
		return nil
	})
}

type StepDuplicateCommand struct {
	Args stepNumber `positional-args:"yes"`
}

func (c *StepDuplicateCommand) Execute(args []string) error {
	return editSequence(func(store *sequence.Store) error {
		i, err := index(store, c.Args.Number)
		if err != nil {
			return err
		}
		store.Duplicate(i)
		return nil
	})
}

type StepClearCommand struct{}

func (c *StepClearCommand) Execute(args []string) error {
	return editSequence(func(store *sequence.Store) error {
		store.Clear()
		return nil
	})
}
