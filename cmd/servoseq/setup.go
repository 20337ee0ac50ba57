package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/charmbracelet/huh"

	"github.com/gwillem/servoseq/pkg/link"
	"github.com/gwillem/servoseq/pkg/playback"
	"github.com/gwillem/servoseq/pkg/robot"
)

type SetupCommand struct{}

var baudRates = []int{9600, 57600, 115200, 250000}

func (c *SetupCommand) Execute(args []string) error {
	fmt.Println(headerStyle.Render("servoseq setup"))
	fmt.Println(dimStyle.Render("━━━━━━━━━━━━━━"))
	fmt.Println()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	// Step 1: Choose port
	port, err := choosePort(cfg.Port)
	if err != nil {
		return err
	}
	cfg.Port = port

	// Step 2: Choose baud rate and playback defaults
	baud := strconv.Itoa(cfg.Baud)
	loops := strconv.Itoa(max(1, cfg.Loops))
	seqFile := cfg.Sequence
	if seqFile == "" {
		seqFile = defaultSequenceFile
	}

	var baudOptions []huh.Option[string]
	for _, b := range baudRates {
		s := strconv.Itoa(b)
		baudOptions = append(baudOptions, huh.NewOption(s, s))
	}

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Baud rate").
				Options(baudOptions...).
				Value(&baud),
			huh.NewInput().
				Title("Sequence file").
				Value(&seqFile),
			huh.NewInput().
				Title("Default number of passes").
				Value(&loops).
				Validate(func(s string) error {
					n, err := strconv.Atoi(strings.TrimSpace(s))
					if err != nil || n < 1 {
						return fmt.Errorf("enter a number of at least 1")
					}
					return nil
				}),
		),
	)
	if err := form.Run(); err != nil {
		fmt.Println()
		os.Exit(0)
	}

	cfg.Baud, _ = strconv.Atoi(baud)
	cfg.Loops, _ = strconv.Atoi(strings.TrimSpace(loops))
	cfg.Sequence = strings.TrimSpace(seqFile)

	// Step 3: Verify by moving the arm to rest
	var verify bool
	confirm := huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title(fmt.Sprintf("Move the arm on %s to its rest pose now?", cfg.Port)).
				Affirmative("Yes").
				Negative("Skip").
				Value(&verify),
		),
	)
	if err := confirm.Run(); err != nil {
		fmt.Println()
		os.Exit(0)
	}
	if verify {
		if err := verifyPort(cfg); err != nil {
			fmt.Fprintln(os.Stderr, errorStyle.Render(err.Error()))
		} else {
			fmt.Println(successStyle.Render("Rest pose sent."))
		}
	}

	if err := cfg.SaveTo(opts.Config); err != nil {
		return fmt.Errorf("save config: %w", err)
	}

	fmt.Println()
	fmt.Println(dimStyle.Render("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━"))
	fmt.Println(successStyle.Render("Setup complete!"))
	fmt.Printf("Configuration saved to %s\n", opts.Config)
	fmt.Println()
	fmt.Println("Start the console with: " + headerStyle.Render("servoseq console"))
	return nil
}

func choosePort(current string) (string, error) {
	fmt.Println("Scanning for serial ports...")
	ports, err := link.Ports()
	if err != nil {
		return "", err
	}

	var options []huh.Option[string]
	for _, p := range ports {
		// Skip Bluetooth ports on macOS
		if strings.Contains(p, "Bluetooth") {
			continue
		}
		options = append(options, huh.NewOption(p, p))
	}
	if len(options) == 0 {
		return "", fmt.Errorf("no serial ports found, make sure the arm is connected")
	}

	port := current
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Which port is the arm on?").
				Options(options...).
				Value(&port),
		),
	)
	if err := form.Run(); err != nil {
		fmt.Println()
		os.Exit(0)
	}
	return port, nil
}

func verifyPort(cfg *robot.Config) error {
	ctrl, err := playback.NewController(playback.Config{
		Port:   cfg.Port,
		Baud:   cfg.Baud,
		Logger: newLogger(os.Stderr),
	})
	if err != nil {
		return err
	}
	defer ctrl.Close()
	ctrl.Rest()
	return nil
}
