package app

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/hnpf/MTCLI/pkg/app/components"
	"github.com/hnpf/MTCLI/pkg/app/styles"
	"github.com/hnpf/MTCLI/pkg/services"
	"github.com/mattn/go-isatty"
	"golang.org/x/term"
)

const readerHint = "[enter/n] next · [b] back · [q] quit"

// ChromeRows is how many terminal rows the reader uses around a frame.
const ChromeRows = 6

// KeyInput turns terminal input into reader commands. In raw mode every key
// press is a command; otherwise one line is read per command and an empty
// line means next.
type KeyInput struct {
	r   io.Reader
	raw bool

	once sync.Once
	keys chan services.Command
	err  error
}

func NewKeyInput(r io.Reader, raw bool) *KeyInput {
	return &KeyInput{r: r, raw: raw, keys: make(chan services.Command)}
}

// Next blocks until a command is typed, the input ends (io.EOF) or ctx is
// done.
func (k *KeyInput) Next(ctx context.Context) (services.Command, error) {
	k.once.Do(func() { go k.scan() })

	select {
	case <-ctx.Done():
		return services.CommandQuit, ctx.Err()
	case cmd, ok := <-k.keys:
		if !ok {
			return services.CommandQuit, k.err
		}
		return cmd, nil
	}
}

func (k *KeyInput) scan() {
	defer close(k.keys)
	if k.raw {
		k.err = k.scanKeys()
	} else {
		k.err = k.scanLines()
	}
}

func (k *KeyInput) scanLines() error {
	sc := bufio.NewScanner(k.r)
	for sc.Scan() {
		line := strings.ToLower(strings.TrimSpace(sc.Text()))
		if line == "" {
			k.keys <- services.CommandNext
			continue
		}
		if cmd, ok := keyCommand(rune(line[0])); ok {
			k.keys <- cmd
		}
	}
	if err := sc.Err(); err != nil {
		return err
	}
	return io.EOF
}

func (k *KeyInput) scanKeys() error {
	br := bufio.NewReader(k.r)
	for {
		b, err := br.ReadByte()
		if err != nil {
			return err
		}
		if b == 0x1b {
			// Arrow keys arrive as ESC [ C / ESC [ D.
			if next, err := br.ReadByte(); err != nil {
				return err
			} else if next != '[' {
				continue
			}
			arrow, err := br.ReadByte()
			if err != nil {
				return err
			}
			switch arrow {
			case 'C':
				k.keys <- services.CommandNext
			case 'D':
				k.keys <- services.CommandBack
			}
			continue
		}
		if cmd, ok := keyCommand(rune(b)); ok {
			k.keys <- cmd
		}
	}
}

func keyCommand(r rune) (services.Command, bool) {
	switch r {
	case '\r', '\n', ' ', 'n', 'N', 'l', 'L':
		return services.CommandNext, true
	case 'b', 'B', 'h', 'H':
		return services.CommandBack, true
	case 'q', 'Q', 3, 4: // ctrl-c, ctrl-d
		return services.CommandQuit, true
	}
	return 0, false
}

// Screen draws reader pages as a lipgloss panel.
type Screen struct {
	out   io.Writer
	tty   bool
	raw   bool
	width func() int
}

// NewScreen writes to out. tty enables clearing between pages; raw makes
// every newline a CRLF since raw mode disables output processing.
func NewScreen(out io.Writer, tty, raw bool, width func() int) *Screen {
	return &Screen{out: out, tty: tty, raw: raw, width: width}
}

func (s *Screen) ShowPage(view services.PageView) {
	header := view.Chapter.Label()
	if view.Title != "" {
		header = view.Title + " · " + header
	}
	header = fmt.Sprintf("%s · Page %d/%d", header, view.Index+1, view.Total)

	barWidth := view.Frame.Width + 2
	if s.width != nil {
		if w := s.width(); w > 0 && w < barWidth {
			barWidth = w
		}
	}

	var b strings.Builder
	if s.tty {
		b.WriteString("\x1b[H\x1b[2J")
	}
	b.WriteString(styles.ReaderHeaderStyle.Render(header))
	b.WriteString("\n")
	b.WriteString(styles.ReaderPageStyle.Render(view.Frame.String()))
	b.WriteString("\n")
	b.WriteString(components.ProgressBar(view.Index+1, view.Total, barWidth))
	b.WriteString("\n")
	b.WriteString(styles.ReaderHintStyle.Render(readerHint))
	b.WriteString("\n")
	s.write(b.String())
}

func (s *Screen) ShowMessage(msg string) {
	s.write(styles.ReaderMessageStyle.Render(msg) + "\n")
}

func (s *Screen) ShowError(err error) {
	s.write(styles.StatusError.Render("Error: "+err.Error()) + "\n" +
		styles.ReaderHintStyle.Render("[b] previous page · [n] retry or skip · [q] quit") + "\n")
}

func (s *Screen) write(text string) {
	if s.raw {
		text = strings.ReplaceAll(text, "\n", "\r\n")
	}
	io.WriteString(s.out, text)
}

// Input is the command input. Line prompts and the reader read through the
// same buffer, so answers a prompt read ahead are not lost to the reader.
type Input struct {
	*bufio.Reader
	file *os.File
}

func NewInput(r io.Reader) *Input {
	f, _ := r.(*os.File)
	return &Input{Reader: bufio.NewReader(r), file: f}
}

// Terminal is the reader bound to the command's input and output.
type Terminal struct {
	Input  *KeyInput
	Screen *Screen

	in      *Input
	out     *os.File
	restore *term.State
}

// OpenTerminal puts in into raw mode when both ends are terminals, so single
// key presses drive the reader. Otherwise commands are read a line at a
// time. Close must be called to restore the terminal.
func OpenTerminal(in *Input, out io.Writer) (*Terminal, error) {
	outFile, _ := out.(*os.File)
	t := &Terminal{in: in, out: outFile}
	tty := outFile != nil && isTerminal(outFile)
	raw := tty && in.file != nil && isTerminal(in.file)
	if raw {
		state, err := term.MakeRaw(int(in.file.Fd()))
		if err != nil {
			return nil, fmt.Errorf("enable raw mode: %w", err)
		}
		t.restore = state
	}
	t.Input = NewKeyInput(in, raw)
	t.Screen = NewScreen(out, tty, raw, func() int {
		w, _ := t.Size()
		return w - 2
	})
	return t, nil
}

// Size returns the terminal size, or 80x24 when it cannot be probed.
func (t *Terminal) Size() (width, height int) {
	if t.out == nil {
		return 80, 24
	}
	if w, h, ok := TerminalSize(t.out); ok {
		return w, h
	}
	return 80, 24
}

// TerminalSize probes the size of the terminal behind f.
func TerminalSize(f *os.File) (width, height int, ok bool) {
	w, h, err := term.GetSize(int(f.Fd()))
	if err != nil || w <= 0 || h <= 0 {
		return 0, 0, false
	}
	return w, h, true
}

func (t *Terminal) Close() error {
	if t.restore == nil {
		return nil
	}
	err := term.Restore(int(t.in.file.Fd()), t.restore)
	t.restore = nil
	return err
}

func isTerminal(f *os.File) bool {
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}
