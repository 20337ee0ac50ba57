// Package sdcard manages files on the arm controller's SD card.
//
// Commands are relayed through the same writer as playback and are not
// gated by acknowledgments. File listings arrive asynchronously between
// "Begin file list" and "End file list" lines; feed received lines to a
// Listing to collect them.
package sdcard

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gwillem/servoseq/pkg/robot"
)

// ErrNoName is returned when a file operation is given an empty name.
var ErrNoName = errors.New("file name required")

// Card issues SD card commands.
type Card struct {
	tx robot.Sender
}

// New creates a Card that writes through tx.
func New(tx robot.Sender) *Card {
	return &Card{tx: tx}
}

// Mount mounts the SD card.
func (c *Card) Mount() {
	c.tx.Send(robot.CmdMountSD)
}

// List requests the file listing.
func (c *Card) List() {
	c.tx.Send(robot.CmdListFiles)
}

// Delete removes a file.
func (c *Card) Delete(name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return ErrNoName
	}
	c.tx.Send(robot.DeleteFile(name))
	return nil
}

// Upload writes the lines of r to the file name on the card. The closing
// M29 is sent even when reading r fails part way, so the controller leaves
// write mode; the read error is returned.
func (c *Card) Upload(name string, r io.Reader) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return ErrNoName
	}

	c.tx.Send(robot.BeginUpload(name))
	br := bufio.NewReader(r)
	var readErr error
	for {
		line, err := br.ReadString('\n')
		if line != "" {
			c.tx.Send(strings.TrimRight(line, "\r\n"))
		}
		if err != nil {
			if err != io.EOF {
				readErr = fmt.Errorf("read %s: %w", name, err)
			}
			break
		}
	}
	c.tx.Send(robot.CmdEndUpload)
	return readErr
}

// UploadFile uploads a local file under its base name.
func (c *Card) UploadFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open upload source: %w", err)
	}
	defer f.Close()
	return c.Upload(filepath.Base(path), f)
}

// File is an entry of the SD card listing.
type File struct {
	Name string
	Size int64
}

const (
	beginListing = "Begin file list"
	endListing   = "End file list"
)

// Listing collects file entries from received lines.
type Listing struct {
	files  []File
	active bool
	done   bool
}

// Feed processes one received line and reports whether it belonged to the
// listing.
func (l *Listing) Feed(line string) bool {
	switch {
	case strings.HasPrefix(line, beginListing):
		l.files = nil
		l.active = true
		l.done = false
		return true
	case strings.HasPrefix(line, endListing):
		l.active = false
		l.done = true
		return true
	case !l.active:
		return false
	}
	f, ok := ParseEntry(line)
	if ok {
		l.files = append(l.files, f)
	}
	return ok
}

// Done reports whether the end of the listing was received.
func (l *Listing) Done() bool {
	return l.done
}

// Files returns the entries collected so far.
func (l *Listing) Files() []File {
	return l.files
}

// ParseEntry parses a "NAME SIZE" listing line.
func ParseEntry(line string) (File, bool) {
	parts := strings.Fields(line)
	if len(parts) < 2 {
		return File{}, false
	}
	size, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return File{}, false
	}
	return File{Name: parts[0], Size: size}, true
}
