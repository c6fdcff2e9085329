package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/hnpf/MTCLI/pkg/data"
	"github.com/hnpf/MTCLI/pkg/integrations"
	"github.com/hnpf/MTCLI/pkg/sources"
)

// ErrNoPages is reported when a chapter resolves to zero pages, which
// usually means it is region restricted or hosted elsewhere.
var ErrNoPages = errors.New("chapter has no readable pages")

// ErrSessionOver is returned by Handle once the session is terminal.
var ErrSessionOver = errors.New("reading session is over")

type State int

const (
	AwaitingPage State = iota
	Displaying
	Finished
	Aborted
)

func (s State) String() string {
	switch s {
	case AwaitingPage:
		return "awaiting-page"
	case Displaying:
		return "displaying"
	case Finished:
		return "finished"
	case Aborted:
		return "aborted"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

type Command int

const (
	CommandNext Command = iota
	CommandBack
	CommandQuit
)

func (c Command) String() string {
	switch c {
	case CommandNext:
		return "next"
	case CommandBack:
		return "back"
	case CommandQuit:
		return "quit"
	}
	return fmt.Sprintf("command(%d)", int(c))
}

// PageLoader fetches and renders one page.
type PageLoader func(ctx context.Context, page data.Page) (integrations.Frame, error)

// Prefetcher warms the page cache without blocking.
type Prefetcher interface {
	Prefetch(ctx context.Context, page data.Page)
}

// CommandSource yields the user's navigation commands one at a time.
type CommandSource interface {
	Next(ctx context.Context) (Command, error)
}

// PageView is what a display needs to draw the current page.
type PageView struct {
	Title   string
	Chapter data.Chapter
	Index   int
	Total   int
	Frame   integrations.Frame
}

type Display interface {
	ShowPage(view PageView)
	ShowMessage(msg string)
	ShowError(err error)
}

type SessionOption func(*Session)

// WithStartPage opens the chapter at page i instead of the first page.
// Out of range values are clamped.
func WithStartPage(i int) SessionOption {
	return func(s *Session) { s.index = i }
}

func WithPrefetcher(p Prefetcher) SessionOption {
	return func(s *Session) { s.prefetcher = p }
}

// WithOnComplete registers the hook called when the chapter is finished.
func WithOnComplete(fn func(data.Chapter)) SessionOption {
	return func(s *Session) { s.onComplete = fn }
}

// WithTitle sets the title shown in page views.
func WithTitle(title string) SessionOption {
	return func(s *Session) { s.title = title }
}

// Session walks the pages of one chapter. It is driven synchronously: one
// command in, one page out. The only concurrent work is the optional
// prefetch of the following page, which never touches session state.
type Session struct {
	title      string
	chapter    data.Chapter
	pages      []data.Page
	load       PageLoader
	prefetcher Prefetcher
	onComplete func(data.Chapter)

	state     State
	index     int
	frame     integrations.Frame
	err       error
	completed bool

	cancelPrefetch context.CancelFunc
}

func NewSession(chapter data.Chapter, pages []data.Page, load PageLoader, opts ...SessionOption) *Session {
	s := &Session{
		chapter: chapter,
		pages:   pages,
		load:    load,
		state:   AwaitingPage,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.index >= len(pages) {
		s.index = len(pages) - 1
	}
	if s.index < 0 {
		s.index = 0
	}
	return s
}

func (s *Session) State() State              { return s.state }
func (s *Session) Index() int                { return s.index }
func (s *Session) Total() int                { return len(s.pages) }
func (s *Session) Chapter() data.Chapter     { return s.chapter }
func (s *Session) Frame() integrations.Frame { return s.frame }

// Err is the failure that aborted the session. A user quit leaves it nil.
func (s *Session) Err() error { return s.err }

// View describes the page currently displayed.
func (s *Session) View() PageView {
	return PageView{
		Title:   s.title,
		Chapter: s.chapter,
		Index:   s.index,
		Total:   len(s.pages),
		Frame:   s.frame,
	}
}

// Start loads the first page. A chapter without pages aborts before
// anything is displayed.
func (s *Session) Start(ctx context.Context) error {
	if s.state != AwaitingPage {
		return ErrSessionOver
	}
	if len(s.pages) == 0 {
		return s.abort(&sources.FetchError{Kind: sources.Permanent, Err: fmt.Errorf("%s: %w", s.chapter.Label(), ErrNoPages)})
	}
	return s.loadCurrent(ctx)
}

// Handle applies one command to a displayed page.
func (s *Session) Handle(ctx context.Context, cmd Command) error {
	if s.state != Displaying {
		return ErrSessionOver
	}

	switch cmd {
	case CommandNext:
		if s.index+1 >= len(s.pages) {
			s.finish()
			return nil
		}
		s.index++
		s.state = AwaitingPage
		return s.loadCurrent(ctx)

	case CommandBack:
		if s.index == 0 {
			return nil
		}
		s.stopPrefetch()
		s.index--
		s.state = AwaitingPage
		return s.loadCurrent(ctx)

	case CommandQuit:
		s.stopPrefetch()
		s.state = Aborted
		return nil
	}
	return fmt.Errorf("unknown command %v", cmd)
}

// Run drives the session until it is terminal, reading commands from input
// and drawing pages on display. The returned error is the one that aborted
// the session, if any. A closed input counts as quit.
func (s *Session) Run(ctx context.Context, input CommandSource, display Display) error {
	if s.state == AwaitingPage {
		if err := s.Start(ctx); err != nil {
			return err
		}
	}

	for s.state == Displaying {
		display.ShowPage(s.View())

		cmd, err := input.Next(ctx)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return s.abort(ctxErr)
			}
			cmd = CommandQuit
		}
		if err := s.Handle(ctx, cmd); err != nil {
			return err
		}
	}
	return s.err
}

func (s *Session) loadCurrent(ctx context.Context) error {
	frame, err := s.load(ctx, s.pages[s.index])
	if err != nil {
		return s.abort(err)
	}
	s.frame = frame
	s.state = Displaying

	if s.prefetcher != nil && s.index+1 < len(s.pages) {
		s.stopPrefetch()
		pctx, cancel := context.WithCancel(ctx)
		s.cancelPrefetch = cancel
		s.prefetcher.Prefetch(pctx, s.pages[s.index+1])
	}
	return nil
}

func (s *Session) finish() {
	s.stopPrefetch()
	s.state = Finished
	if s.completed {
		return
	}
	s.completed = true
	if s.onComplete != nil {
		s.onComplete(s.chapter)
	}
}

func (s *Session) abort(err error) error {
	s.stopPrefetch()
	s.state = Aborted
	s.err = err
	return err
}

func (s *Session) stopPrefetch() {
	if s.cancelPrefetch != nil {
		s.cancelPrefetch()
		s.cancelPrefetch = nil
	}
}
