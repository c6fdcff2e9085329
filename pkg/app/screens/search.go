package screens

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/hnpf/MTCLI/pkg/app/styles"
	"github.com/hnpf/MTCLI/pkg/data"
)

type SearchScreen struct {
	ctx        context.Context
	controller Controller
	input      textinput.Model
	spinner    spinner.Model
	results    []data.Manga
	selected   int
	searching  bool
	searched   bool
	width      int
	height     int
	err        error
}

func NewSearchScreen(ctx context.Context, controller Controller) *SearchScreen {
	ti := textinput.New()
	ti.Placeholder = "Search manga..."
	ti.Focus()
	ti.CharLimit = 100
	ti.Width = 50

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = styles.StatusBusy

	return &SearchScreen{
		ctx:        ctx,
		controller: controller,
		input:      ti,
		spinner:    sp,
	}
}

func (s *SearchScreen) Init() tea.Cmd {
	return textinput.Blink
}

func (s *SearchScreen) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		s.width = msg.Width
		s.height = msg.Height
		return s, nil

	case spinner.TickMsg:
		if !s.searching {
			return s, nil
		}
		s.spinner, cmd = s.spinner.Update(msg)
		return s, cmd

	case tea.KeyMsg:
		if s.searching {
			return s, nil
		}

		switch msg.String() {
		case "enter":
			if s.input.Focused() {
				query := strings.TrimSpace(s.input.Value())
				if query != "" {
					s.searching = true
					return s, tea.Batch(s.spinner.Tick, s.performSearch(query))
				}
			} else if len(s.results) > 0 {
				id := s.results[s.selected].ID
				return s, func() tea.Msg {
					return SwitchScreenMsg{Screen: "details", Data: id}
				}
			}
			return s, nil

		case "esc":
			if s.input.Focused() {
				s.input.Blur()
				return s, nil
			}
			s.input.Focus()
			return s, textinput.Blink

		case "up", "k":
			if !s.input.Focused() && len(s.results) > 0 {
				s.selected = (s.selected - 1 + len(s.results)) % len(s.results)
				return s, nil
			}

		case "down", "j":
			if !s.input.Focused() && len(s.results) > 0 {
				s.selected = (s.selected + 1) % len(s.results)
				return s, nil
			}
		}

	case searchResultMsg:
		s.searching = false
		s.searched = true
		s.results = msg.results
		s.selected = 0
		s.err = msg.err
		if len(s.results) > 0 {
			s.input.Blur()
		}
		return s, nil
	}

	if s.input.Focused() {
		s.input, cmd = s.input.Update(msg)
	}
	return s, cmd
}

func (s *SearchScreen) View() string {
	if s.width == 0 {
		return "Loading..."
	}

	header := styles.TitleStyle.Render("Search MangaDex")

	inputStyle := styles.InputStyle
	if s.input.Focused() {
		inputStyle = styles.FocusedInputStyle
	}
	inputView := inputStyle.Render(s.input.View())

	var errorMsg string
	if s.err != nil {
		errorMsg = styles.StatusError.Render(fmt.Sprintf("Error: %s", s.err)) + "\n\n"
	}

	var resultsView string
	switch {
	case s.searching:
		resultsView = s.spinner.View() + " " + styles.StatusBusy.Render("Searching...")
	case len(s.results) > 0:
		resultsView = s.renderResults()
	case s.searched && s.err == nil:
		resultsView = styles.MutedStyle.Render("No results found")
	}

	help := styles.HelpStyle.Render(
		"enter: search/open • esc: switch focus • ↑/k ↓/j: move • tab: library • ctrl+c: quit",
	)

	return fmt.Sprintf("%s\n\n%s\n\n%s%s\n\n%s", header, inputView, errorMsg, resultsView, help)
}

func (s *SearchScreen) renderResults() string {
	var b strings.Builder
	b.WriteString(styles.SubtitleStyle.Render(fmt.Sprintf("Found %d results:", len(s.results))))
	b.WriteString("\n\n")

	for i, manga := range s.results {
		cardStyle := styles.CardStyle
		if i == s.selected && !s.input.Focused() {
			cardStyle = styles.ActiveCardStyle
		}

		marker := ""
		if s.controller.IsTracked(manga.ID) {
			marker = styles.StatusCompleted.Render(" ✓ tracked")
		}

		card := lipgloss.JoinVertical(
			lipgloss.Left,
			styles.SelectedStyle.Render(manga.Name)+marker,
			styles.TextStyle.Render(truncate(manga.Description, 120)),
			styles.MutedStyle.Render(fmt.Sprintf("%s • %s", manga.Status, manga.ID)),
		)
		b.WriteString(cardStyle.Width(s.width - 6).Render(card))
		b.WriteString("\n")
	}
	return b.String()
}

type searchResultMsg struct {
	results []data.Manga
	err     error
}

func (s *SearchScreen) performSearch(query string) tea.Cmd {
	return func() tea.Msg {
		results, err := s.controller.Search(s.ctx, query)
		return searchResultMsg{results: results, err: err}
	}
}

func truncate(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}
