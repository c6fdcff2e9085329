package screens

import (
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/hnpf/MTCLI/pkg/app/components"
	"github.com/hnpf/MTCLI/pkg/app/styles"
	"github.com/hnpf/MTCLI/pkg/data"
)

type LibraryScreen struct {
	controller Controller
	counter    ChapterCounter
	titles     *components.TitleList
	width      int
	height     int
	err        error
}

func NewLibraryScreen(controller Controller, counter ChapterCounter) *LibraryScreen {
	return &LibraryScreen{
		controller: controller,
		counter:    counter,
		titles:     components.NewTitleList(),
	}
}

func (s *LibraryScreen) Init() tea.Cmd {
	return s.loadLibrary
}

func (s *LibraryScreen) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		s.width = msg.Width
		s.height = msg.Height
		s.titles.Width = msg.Width - 4
		s.titles.Height = msg.Height - 10

	case tea.KeyMsg:
		selected := s.titles.Selected()
		switch msg.String() {
		case "up", "k":
			s.titles.Prev()
		case "down", "j":
			s.titles.Next()
		case "r":
			return s, s.loadLibrary
		case "u":
			if selected != nil {
				return s, s.untrack(selected.Title.ID)
			}
		case "o":
			if selected != nil {
				manga := &data.Manga{ID: selected.Title.ID, Name: selected.Title.Name}
				return s, func() tea.Msg { return ReadMsg{Manga: manga} }
			}
		case "enter":
			if selected != nil {
				id := selected.Title.ID
				return s, func() tea.Msg {
					return SwitchScreenMsg{Screen: "details", Data: id}
				}
			}
		}

	case libraryLoadedMsg:
		s.titles.SetItems(msg.items)
		s.err = msg.err

	case untrackedMsg:
		s.err = msg.err
		return s, s.loadLibrary
	}

	return s, nil
}

func (s *LibraryScreen) View() string {
	if s.width == 0 {
		return "Loading..."
	}

	header := styles.TitleStyle.Render("Tracked titles")

	var errorMsg string
	if s.err != nil {
		errorMsg = styles.StatusError.Render(fmt.Sprintf("Error: %s", s.err)) + "\n\n"
	}

	help := styles.HelpStyle.Render(
		"↑/k ↓/j: move • enter: details • o: resume reading • u: untrack • r: refresh • tab: search • q: quit",
	)

	return fmt.Sprintf("%s\n\n%s%s\n%s", header, errorMsg, s.titles.View(), help)
}

type libraryLoadedMsg struct {
	items []components.TitleListItem
	err   error
}

type untrackedMsg struct {
	err error
}

func (s *LibraryScreen) loadLibrary() tea.Msg {
	tracked := s.controller.Tracked()
	items := make([]components.TitleListItem, len(tracked))
	for i, title := range tracked {
		items[i] = components.TitleListItem{Title: title}
		if s.counter == nil {
			continue
		}
		// A missing listing only hides the total.
		if _, total, err := s.counter.GetMangaWithChapterCount(title.ID); err == nil {
			items[i].Total = total
		}
	}
	return libraryLoadedMsg{items: items}
}

func (s *LibraryScreen) untrack(mangaID string) tea.Cmd {
	return func() tea.Msg {
		return untrackedMsg{err: s.controller.Untrack(mangaID)}
	}
}
