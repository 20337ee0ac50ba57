package sdcard

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

type recorder struct {
	lines []string
}

func (r *recorder) Send(line string) {
	r.lines = append(r.lines, line)
}

func TestCard_Commands(t *testing.T) {
	require := require.New(t)

	rec := &recorder{}
	card := New(rec)

	card.Mount()
	card.List()
	require.NoError(card.Delete(" MOVE1.GCO "))
	require.ErrorIs(card.Delete("  "), ErrNoName)

	require.Equal([]string{"M21", "M20", "M30 MOVE1.GCO"}, rec.lines)
}

func TestCard_Upload(t *testing.T) {
	require := require.New(t)

	rec := &recorder{}
	card := New(rec)

	src := "M279\r\nM280 P0 S10 V60\n\nM278\nM400"
	require.NoError(card.Upload("WAVE.GCO", strings.NewReader(src)))

	require.Equal([]string{
		"M28 WAVE.GCO",
		"M279",
		"M280 P0 S10 V60",
		"",
		"M278",
		"M400",
		"M29",
	}, rec.lines)
}

type failingReader struct {
	r io.Reader
}

func (f *failingReader) Read(p []byte) (int, error) {
	n, err := f.r.Read(p)
	if err == io.EOF {
		return n, errors.New("disk error")
	}
	return n, err
}

func TestCard_UploadReadErrorStillEnds(t *testing.T) {
	rec := &recorder{}
	card := New(rec)

	err := card.Upload("X.GCO", &failingReader{r: strings.NewReader("G4 P10\n")})
	require.Error(t, err)
	require.Equal(t, "M29", rec.lines[len(rec.lines)-1])
	require.Equal(t, "M28 X.GCO", rec.lines[0])
}

func TestCard_UploadFile(t *testing.T) {
	require := require.New(t)

	path := filepath.Join(t.TempDir(), "seq.gco")
	require.NoError(os.WriteFile(path, []byte("M279\nM278\n"), 0644))

	rec := &recorder{}
	require.NoError(New(rec).UploadFile(path))
	require.Equal([]string{"M28 seq.gco", "M279", "M278", "M29"}, rec.lines)

	require.Error(New(rec).UploadFile(filepath.Join(t.TempDir(), "missing")))
}

func TestListing(t *testing.T) {
	require := require.New(t)

	var l Listing
	require.False(l.Feed("MOVE.GCO 120"), "entries outside a listing are ignored")

	require.True(l.Feed("Begin file list"))
	require.True(l.Feed("MOVE1.GCO 1234"))
	require.False(l.Feed("ok"))
	require.True(l.Feed("WAVE.GCO 88"))
	require.False(l.Done())
	require.True(l.Feed("End file list"))
	require.True(l.Done())

	require.Equal([]File{{"MOVE1.GCO", 1234}, {"WAVE.GCO", 88}}, l.Files())

	require.True(l.Feed("Begin file list"))
	require.Empty(l.Files())
	require.False(l.Done())
}

func TestParseEntry(t *testing.T) {
	f, ok := ParseEntry("A.GCO 42")
	require.True(t, ok)
	require.Equal(t, File{Name: "A.GCO", Size: 42}, f)

	for _, line := range []string{"", "ok", "A.GCO big"} {
		_, ok := ParseEntry(line)
		require.False(t, ok, line)
	}
}
