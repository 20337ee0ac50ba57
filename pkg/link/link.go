// Package link provides a line-oriented transport over a serial port.
//
// A Transport turns the raw byte stream coming from the arm controller into
// discrete text lines and writes newline-terminated commands. Reads are
// driven from outside by calling Poll periodically; nothing in this package
// starts a goroutine.
//
// The transport is best-effort: write, read and decode failures are logged
// and swallowed so that a transient I/O hiccup never aborts playback. Only
// Open reports errors.
//
// A Transport supports one reader and one writer. Poll and Send may run on
// different goroutines, but two concurrent Sends or two concurrent Polls are
// not allowed.
package link

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"go.bug.st/serial"
)

// ErrConnection is returned when the serial port cannot be opened.
var ErrConnection = errors.New("connection error")

const (
	// DefaultBaud is the baud rate of the arm controller firmware.
	DefaultBaud = 115200
	// DefaultReadTimeout bounds a single Poll.
	DefaultReadTimeout = 5 * time.Millisecond

	readSize = 1024
)

// Port is the minimal serial port used by a Transport.
type Port interface {
	io.ReadWriteCloser

	// SetReadTimeout sets the read timeout duration.
	SetReadTimeout(timeout time.Duration) error
}

// Opener opens a named port at a baud rate.
type Opener func(name string, baud int) (Port, error)

// Transport reassembles received bytes into lines and sends command lines.
type Transport struct {
	port        Port
	name        string
	buf         []byte
	readBuf     []byte
	onLine      func(string)
	open        Opener
	readTimeout time.Duration
	logger      zerolog.Logger
}

// Option configures a Transport.
type Option func(*Transport)

// WithLogger sets the logger used for swallowed I/O errors.
func WithLogger(l zerolog.Logger) Option {
	return func(t *Transport) {
		t.logger = l
	}
}

// WithReadTimeout sets how long a single Poll may wait for data.
func WithReadTimeout(d time.Duration) Option {
	return func(t *Transport) {
		t.readTimeout = d
	}
}

// WithOpener replaces the function used to open serial ports.
func WithOpener(o Opener) Option {
	return func(t *Transport) {
		t.open = o
	}
}

// New creates a closed transport. onLine is called from Poll for every
// complete line received; it may be nil.
func New(onLine func(string), opts ...Option) *Transport {
	t := &Transport{
		onLine:      onLine,
		open:        OpenSerial,
		readTimeout: DefaultReadTimeout,
		readBuf:     make([]byte, readSize),
		logger:      zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// OpenSerial opens a serial port in 8N1 mode.
func OpenSerial(name string, baud int) (Port, error) {
	return serial.Open(name, &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
}

// Ports lists the serial ports present on the system.
func Ports() ([]string, error) {
	ports, err := serial.GetPortsList()
	if err != nil {
		return nil, fmt.Errorf("list ports: %w", err)
	}
	return ports, nil
}

// Open connects to the named port, closing any port opened before.
// On failure the transport is left closed and the error wraps ErrConnection.
func (t *Transport) Open(name string, baud int) error {
	t.Close()

	if baud <= 0 {
		baud = DefaultBaud
	}
	port, err := t.open(name, baud)
	if err != nil {
		return fmt.Errorf("%w: open %s: %w", ErrConnection, name, err)
	}
	if err := port.SetReadTimeout(t.readTimeout); err != nil {
		_ = port.Close()
		return fmt.Errorf("%w: set read timeout on %s: %w", ErrConnection, name, err)
	}

	t.port = port
	t.name = name
	t.logger.Info().Str("port", name).Int("baud", baud).Msg("serial port opened")
	return nil
}

// Attach adopts an already open port, closing any port opened before.
func (t *Transport) Attach(p Port) {
	t.Close()
	t.port = p
	t.name = "attached"
}

// Close releases the port. It is safe to call on a closed transport.
func (t *Transport) Close() {
	if t.port == nil {
		return
	}
	if err := t.port.Close(); err != nil {
		t.logger.Debug().Err(err).Str("port", t.name).Msg("close serial port")
	}
	t.logger.Info().Str("port", t.name).Msg("serial port closed")
	t.port = nil
	t.name = ""
	t.buf = t.buf[:0]
}

// IsOpen reports whether a port is attached.
func (t *Transport) IsOpen() bool {
	return t.port != nil
}

// Name returns the name of the open port, or "" when closed.
func (t *Transport) Name() string {
	return t.name
}

// Send writes text terminated by a newline. Errors are logged, not returned.
func (t *Transport) Send(text string) {
	if text == "" {
		return
	}
	if t.port == nil {
		t.logger.Debug().Str("line", text).Msg("send on closed port dropped")
		return
	}
	if !strings.HasSuffix(text, "\n") {
		text += "\n"
	}
	if _, err := t.port.Write([]byte(text)); err != nil {
		t.logger.Warn().Err(err).Str("port", t.name).Str("line", strings.TrimSpace(text)).Msg("write failed")
	}
}

// Poll reads whatever is available and emits every complete line. Partial
// lines stay buffered until their newline arrives. Poll never fails.
func (t *Transport) Poll() {
	if t.port == nil {
		return
	}
	n, err := t.port.Read(t.readBuf)
	if n > 0 {
		t.feed(t.readBuf[:n])
	}
	if err != nil {
		t.logger.Debug().Err(err).Str("port", t.name).Msg("read failed")
	}
}

func (t *Transport) feed(data []byte) {
	t.buf = append(t.buf, bytes.ToValidUTF8(data, nil)...)
	for {
		i := bytes.IndexByte(t.buf, '\n')
		if i < 0 {
			return
		}
		line := strings.TrimSpace(string(t.buf[:i]))
		t.buf = t.buf[i+1:]
		if t.onLine != nil {
			t.onLine(line)
		}
	}
}
