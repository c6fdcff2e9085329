package screens

import (
	"context"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/hnpf/MTCLI/pkg/app/styles"
	"github.com/hnpf/MTCLI/pkg/data"
	"github.com/hnpf/MTCLI/pkg/services"
)

// Controller is the part of the tracking controller the picker needs.
type Controller interface {
	Search(ctx context.Context, query string) ([]data.Manga, error)
	GetManga(ctx context.Context, id string) (*data.Manga, error)
	Tracked() []data.TrackedTitle
	IsTracked(mangaID string) bool
	Progress(mangaID string) (data.TrackedTitle, bool)
	Track(manga *data.Manga) (bool, error)
	Untrack(mangaID string) error
	Chapters(ctx context.Context, mangaID string) ([]data.Chapter, error)
}

// ChapterCounter reports the size of a cached chapter listing.
type ChapterCounter interface {
	GetMangaWithChapterCount(mangaID string) (*data.Manga, int, error)
}

type Exporter interface {
	Export(ctx context.Context, manga *data.Manga, chapters []data.Chapter) (string, error)
	GetProgressChannel() <-chan services.ExportProgress
}

// Deps are the collaborators shared by every screen. Counter and Exporter
// are optional.
type Deps struct {
	Controller Controller
	Counter    ChapterCounter
	Exporter   Exporter
}

// SwitchScreenMsg asks the root screen to change view. Data carries the
// manga id for the details view.
type SwitchScreenMsg struct {
	Screen string
	Data   any
}

// ReadMsg ends the picker and hands the manga to the terminal reader.
type ReadMsg struct {
	Manga *data.Manga
}

type screenType int

const (
	libraryView screenType = iota
	searchView
	detailsView
)

type RootScreen struct {
	ctx  context.Context
	deps Deps

	currentView screenType
	library     *LibraryScreen
	search      *SearchScreen
	details     *DetailsScreen
	selected    *data.Manga

	width  int
	height int
}

func NewRootScreen(ctx context.Context, deps Deps) *RootScreen {
	return &RootScreen{
		ctx:         ctx,
		deps:        deps,
		currentView: libraryView,
		library:     NewLibraryScreen(deps.Controller, deps.Counter),
		search:      NewSearchScreen(ctx, deps.Controller),
	}
}

// Selected is the manga chosen for reading, nil when the user quit.
func (r *RootScreen) Selected() *data.Manga { return r.selected }

func (r *RootScreen) Init() tea.Cmd {
	return tea.Batch(r.library.Init(), r.listenForExports)
}

func (r *RootScreen) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		r.width = msg.Width
		r.height = msg.Height
		r.library.Update(msg)
		r.search.Update(msg)
		if r.details != nil {
			r.details.Update(msg)
		}
		return r, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c":
			return r, tea.Quit
		case "q":
			if !r.typing() {
				return r, tea.Quit
			}
		case "tab":
			if r.currentView == detailsView {
				break
			}
			r.currentView = (r.currentView + 1) % 2
			if r.currentView == searchView {
				cmd = r.search.Init()
			} else {
				cmd = r.library.Init()
			}
			return r, cmd
		}

	case SwitchScreenMsg:
		switch msg.Screen {
		case "library":
			r.currentView = libraryView
			cmd = r.library.Init()
		case "search":
			r.currentView = searchView
			cmd = r.search.Init()
		case "details":
			if mangaID, ok := msg.Data.(string); ok {
				r.details = NewDetailsScreen(r.ctx, r.deps, mangaID)
				r.details.Update(tea.WindowSizeMsg{Width: r.width, Height: r.height})
				r.currentView = detailsView
				cmd = r.details.Init()
			}
		}
		return r, cmd

	case ReadMsg:
		r.selected = msg.Manga
		return r, tea.Quit

	case services.ExportProgress:
		if r.details != nil {
			r.details.Update(msg)
		}
		return r, r.listenForExports
	}

	switch r.currentView {
	case libraryView:
		_, cmd = r.library.Update(msg)
	case searchView:
		_, cmd = r.search.Update(msg)
	case detailsView:
		if r.details != nil {
			_, cmd = r.details.Update(msg)
		}
	}
	return r, cmd
}

// typing reports whether key presses belong to the search input.
func (r *RootScreen) typing() bool {
	return r.currentView == searchView && r.search.input.Focused()
}

func (r *RootScreen) View() string {
	var content string
	switch r.currentView {
	case libraryView:
		content = r.library.View()
	case searchView:
		content = r.search.View()
	case detailsView:
		if r.details != nil {
			content = r.details.View()
		}
	}
	if r.currentView == detailsView {
		return content
	}
	return fmt.Sprintf("%s\n\n%s", r.renderTabs(), content)
}

func (r *RootScreen) renderTabs() string {
	libraryTab := styles.InactiveTabStyle.Render("Library")
	searchTab := styles.InactiveTabStyle.Render("Search")
	if r.currentView == libraryView {
		libraryTab = styles.ActiveTabStyle.Render("Library")
	} else {
		searchTab = styles.ActiveTabStyle.Render("Search")
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, libraryTab, searchTab)
}

func (r *RootScreen) listenForExports() tea.Msg {
	if r.deps.Exporter == nil {
		return nil
	}
	progress, ok := <-r.deps.Exporter.GetProgressChannel()
	if !ok {
		return nil
	}
	return progress
}
