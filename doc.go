// Package servoseq plays step sequences on three-servo robot arms.
//
// An arm controller speaks a line-based G-code dialect over a serial port.
// servoseq turns an ordered list of steps into the matching command stream,
// waits for the controller to acknowledge each step before sending the next,
// supports looped playback and returns the arm to its rest pose when a
// sequence finishes or is stopped.
//
// # Installation
//
//	go install github.com/gwillem/servoseq/cmd/servoseq@latest
//
// # Usage
//
// First, run setup to choose the serial port:
//
//	servoseq setup
//
// Build a sequence and play it:
//
//	servoseq step add --name wave --s0 30 --s1 120 --pause 500
//	servoseq play --loops 3
//
// Or drive the arm interactively:
//
//	servoseq console
//
// # Packages
//
// The module is organized into the following packages:
//
//   - cmd/servoseq: CLI and terminal console
//   - pkg/robot: Steps, poses, protocol commands and configuration
//   - pkg/link: Line-oriented serial transport
//   - pkg/playback: Sequencer state machine and poll loop
//   - pkg/sequence: Step storage and JSON persistence
//   - pkg/sdcard: SD card file management
package servoseq
