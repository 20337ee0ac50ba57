package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/jessevdk/go-flags"
	"github.com/rs/zerolog"

	"github.com/gwillem/servoseq/pkg/playback"
	"github.com/gwillem/servoseq/pkg/robot"
	"github.com/gwillem/servoseq/pkg/sequence"
)

type Options struct {
	Config  string `short:"c" long:"config" default:"servoseq.json" description:"Configuration file"`
	Port    string `short:"p" long:"port" description:"Serial port (overrides config)"`
	Baud    int    `short:"b" long:"baud" description:"Baud rate (overrides config)"`
	Verbose bool   `short:"v" long:"verbose" description:"Enable debug logging"`

	Setup   SetupCommand   `command:"setup" description:"Choose the serial port and save the configuration"`
	Ports   PortsCommand   `command:"ports" description:"List serial ports"`
	Play    PlayCommand    `command:"play" description:"Play a sequence file"`
	Stop    StopCommand    `command:"stop" description:"Abort motion and return to rest"`
	Rest    RestCommand    `command:"rest" description:"Return the arm to the rest pose"`
	Move    MoveCommand    `command:"move" description:"Move all servos to a pose"`
	Send    SendCommand    `command:"send" description:"Send raw command lines and print the replies"`
	Step    StepCommand    `command:"step" description:"Edit a sequence file"`
	SD      SDCommand      `command:"sd" description:"Manage files on the SD card"`
	Console ConsoleCommand `command:"console" alias:"ui" description:"Interactive console with live playback"`
}

var opts Options
var parser = flags.NewParser(&opts, flags.Default)

func main() {
	parser.LongDescription = "servoseq - step sequencer for three-servo arms"

	_, err := parser.Parse()
	if err != nil {
		if flagsErr, ok := err.(*flags.Error); ok {
			if flagsErr.Type == flags.ErrHelp {
				os.Exit(0)
			}
		}
		os.Exit(1)
	}
}

func newLogger(w *os.File) zerolog.Logger {
	level := zerolog.InfoLevel
	if opts.Verbose {
		level = zerolog.DebugLevel
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: w, TimeFormat: time.TimeOnly}).
		Level(level).
		With().Timestamp().Logger()
}

// loadConfig reads the configuration file, falling back to defaults when it
// does not exist, and applies command line overrides.
func loadConfig() (*robot.Config, error) {
	cfg, err := robot.LoadConfigFrom(opts.Config)
	if errors.Is(err, fs.ErrNotExist) {
		def := robot.DefaultConfig()
		cfg, err = &def, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", opts.Config, err)
	}
	if opts.Port != "" {
		cfg.Port = opts.Port
	}
	if opts.Baud > 0 {
		cfg.Baud = opts.Baud
	}
	return cfg, nil
}

// connect opens the controller described by the configuration.
func connect(logger zerolog.Logger) (*playback.Controller, *robot.Config, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	if !cfg.IsConfigured() {
		return nil, nil, fmt.Errorf("no serial port configured, run 'servoseq setup' or pass --port")
	}

	ctrl, err := playback.NewController(playback.Config{
		Port:         cfg.Port,
		Baud:         cfg.Baud,
		PollInterval: cfg.PollInterval(),
		AckTimeout:   cfg.AckTimeout(),
		Logger:       logger,
	})
	if err != nil {
		return nil, nil, err
	}
	return ctrl, cfg, nil
}

// startLoop runs the controller poll loop in the background. The returned
// function stops it and waits until the loop has returned.
func startLoop(ctrl *playback.Controller) func() {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = ctrl.Run(ctx)
	}()
	return func() {
		cancel()
		<-done
	}
}

// printLogs prints controller log messages until the channel is drained and
// stop is closed.
func printLogs(ctrl *playback.Controller, stop <-chan struct{}) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			select {
			case msg := <-ctrl.Logs():
				fmt.Println(renderLog(msg))
			case <-stop:
				for {
					select {
					case msg := <-ctrl.Logs():
						fmt.Println(renderLog(msg))
					default:
						return
					}
				}
			}
		}
	}()
	return done
}

// sequencePath returns the sequence file named on the command line, or the
// one from the configuration.
func sequencePath(arg string, cfg *robot.Config) string {
	if arg != "" {
		return arg
	}
	if cfg != nil && cfg.Sequence != "" {
		return cfg.Sequence
	}
	return defaultSequenceFile
}

const defaultSequenceFile = "sequence.json"

func loadStore(path string) (*sequence.Store, error) {
	store := sequence.NewStore()
	if err := store.LoadFile(path); err != nil {
		return nil, err
	}
	return store, nil
}
