package main

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/gwillem/servoseq/pkg/playback"
	"github.com/gwillem/servoseq/pkg/sdcard"
)

type SDCommand struct {
	Mount  SDMountCommand  `command:"mount" description:"Mount the SD card (M21)"`
	List   SDListCommand   `command:"list" alias:"ls" description:"List files on the SD card (M20)"`
	Upload SDUploadCommand `command:"upload" description:"Upload a file (M28/M29)"`
	Delete SDDeleteCommand `command:"delete" alias:"rm" description:"Delete a file (M30)"`
}

// withCard connects and runs fn with an SD card bound to the controller.
func withCard(fn func(*playback.Controller, *sdcard.Card) error) error {
	ctrl, _, err := connect(newLogger(os.Stderr))
	if err != nil {
		return err
	}
	defer ctrl.Close()

	stopLogs := make(chan struct{})
	logsDone := printLogs(ctrl, stopLogs)
	err = fn(ctrl, sdcard.New(ctrl))
	close(stopLogs)
	<-logsDone
	return err
}

type SDMountCommand struct{}

func (c *SDMountCommand) Execute(args []string) error {
	return withCard(func(_ *playback.Controller, card *sdcard.Card) error {
		card.Mount()
		return nil
	})
}

type SDListCommand struct {
	Timeout time.Duration `short:"t" long:"timeout" default:"3s" description:"How long to wait for the listing"`
}

func (c *SDListCommand) Execute(args []string) error {
	var files []sdcard.File
	err := withCard(func(ctrl *playback.Controller, card *sdcard.Card) error {
		stopLoop := startLoop(ctrl)
		defer stopLoop()

		var listing sdcard.Listing
		card.List()
		deadline := time.After(c.Timeout)
		for !listing.Done() {
			select {
			case line := <-ctrl.Lines():
				listing.Feed(line)
			case <-deadline:
				return fmt.Errorf("no file listing within %s", c.Timeout)
			}
		}
		files = listing.Files()
		return nil
	})
	if err != nil {
		return err
	}

	fmt.Println()
	if len(files) == 0 {
		fmt.Println(dimStyle.Render("No files on SD card."))
		return nil
	}
	fmt.Println(renderFiles(files))
	return nil
}

func renderFiles(files []sdcard.File) string {
	cellStyle := lipgloss.NewStyle().Padding(0, 1)
	rows := make([][]string, 0, len(files))
	for _, f := range files {
		rows = append(rows, []string{f.Name, strconv.FormatInt(f.Size, 10)})
	}
	return table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(dimStyle).
		Headers("File", "Size").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return cellStyle.Bold(true).Foreground(lipgloss.Color("12"))
			}
			return cellStyle
		}).
		Render()
}

type SDUploadCommand struct {
	Args struct {
		File string `positional-arg-name:"FILE" required:"yes" description:"Local file to upload"`
	} `positional-args:"yes"`
}

func (c *SDUploadCommand) Execute(args []string) error {
	return withCard(func(_ *playback.Controller, card *sdcard.Card) error {
		if err := card.UploadFile(c.Args.File); err != nil {
			return err
		}
		fmt.Println(successStyle.Render("Upload sent. Run 'servoseq sd list' to refresh."))
		return nil
	})
}

type SDDeleteCommand struct {
	Args struct {
		Name string `positional-arg-name:"NAME" required:"yes" description:"File name on the SD card"`
	} `positional-args:"yes"`
}

func (c *SDDeleteCommand) Execute(args []string) error {
	return withCard(func(_ *playback.Controller, card *sdcard.Card) error {
		return card.Delete(c.Args.Name)
	})
}
