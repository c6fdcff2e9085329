package app

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/hnpf/MTCLI/pkg/data"
	"github.com/hnpf/MTCLI/pkg/integrations"
	"github.com/hnpf/MTCLI/pkg/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func drain(t *testing.T, input *KeyInput) []services.Command {
	t.Helper()
	var cmds []services.Command
	for {
		cmd, err := input.Next(context.Background())
		if errors.Is(err, io.EOF) {
			return cmds
		}
		require.NoError(t, err)
		cmds = append(cmds, cmd)
	}
}

func TestKeyInputLines(t *testing.T) {
	input := NewKeyInput(strings.NewReader("\nn\n  B \nx\nquit\nl\n"), false)

	assert.Equal(t, []services.Command{
		services.CommandNext,
		services.CommandNext,
		services.CommandBack,
		services.CommandQuit,
		services.CommandNext,
	}, drain(t, input))
}

func TestKeyInputRawKeys(t *testing.T) {
	input := NewKeyInput(strings.NewReader(" \rhz\x1b[C\x1b[D\x1b[Aq\x03"), true)

	assert.Equal(t, []services.Command{
		services.CommandNext,
		services.CommandNext,
		services.CommandBack,
		services.CommandNext,
		services.CommandBack,
		services.CommandQuit,
		services.CommandQuit,
	}, drain(t, input))
}

func TestKeyInputEOFKeepsReturningEOF(t *testing.T) {
	input := NewKeyInput(strings.NewReader(""), false)

	for i := 0; i < 2; i++ {
		cmd, err := input.Next(context.Background())
		assert.ErrorIs(t, err, io.EOF)
		assert.Equal(t, services.CommandQuit, cmd)
	}
}

func TestKeyInputHonorsContext(t *testing.T) {
	r, w := io.Pipe()
	defer w.Close()
	input := NewKeyInput(r, false)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := input.Next(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func testView() services.PageView {
	return services.PageView{
		Title:   "Example Manga",
		Chapter: data.Chapter{ID: "ch1", Number: "3"},
		Index:   1,
		Total:   4,
		Frame:   integrations.Frame{Rows: []string{"@@..", "..@@"}, Width: 4, Height: 2},
	}
}

func TestInputKeepsCommandsAfterPromptAnswer(t *testing.T) {
	in := NewInput(strings.NewReader("y\nn\nb\nq\n"))

	answer, err := in.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "y\n", answer)

	assert.Equal(t, []services.Command{
		services.CommandNext,
		services.CommandBack,
		services.CommandQuit,
	}, drain(t, NewKeyInput(in, false)))
}

func TestOpenTerminalWithoutTTYReadsLines(t *testing.T) {
	var out bytes.Buffer
	term, err := OpenTerminal(NewInput(strings.NewReader("n\n")), &out)
	require.NoError(t, err)
	defer term.Close()

	w, h := term.Size()
	assert.Equal(t, 80, w)
	assert.Equal(t, 24, h)
	assert.Equal(t, []services.Command{services.CommandNext}, drain(t, term.Input))

	term.Screen.ShowMessage("hello")
	assert.Contains(t, out.String(), "hello")
	assert.NotContains(t, out.String(), "\x1b[2J")
}

func TestScreenShowPage(t *testing.T) {
	var out bytes.Buffer
	screen := NewScreen(&out, false, false, nil)

	screen.ShowPage(testView())

	text := out.String()
	assert.Contains(t, text, "Example Manga · Chapter 3 · Page 2/4")
	assert.Contains(t, text, "@@..")
	assert.Contains(t, text, "..@@")
	assert.Contains(t, text, readerHint)
	assert.NotContains(t, text, "\x1b[2J", "no clearing when not a terminal")
}

func TestScreenRawModeUsesCRLF(t *testing.T) {
	var out bytes.Buffer
	screen := NewScreen(&out, true, true, func() int { return 40 })

	screen.ShowPage(testView())
	screen.ShowMessage("You are all caught up on Example Manga.")

	text := out.String()
	assert.True(t, strings.HasPrefix(text, "\x1b[H\x1b[2J"))
	assert.Equal(t, strings.Count(text, "\n"), strings.Count(text, "\r\n"))
	assert.Contains(t, text, "caught up")
}

func TestScreenShowError(t *testing.T) {
	var out bytes.Buffer
	screen := NewScreen(&out, false, false, nil)

	screen.ShowError(errors.New("page 3 unavailable"))

	assert.Contains(t, out.String(), "Error: page 3 unavailable")
	assert.Contains(t, out.String(), "[b] previous page")
}
