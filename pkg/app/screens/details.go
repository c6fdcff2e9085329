package screens

import (
	"context"
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"github.com/hnpf/MTCLI/pkg/app/components"
	"github.com/hnpf/MTCLI/pkg/app/styles"
	"github.com/hnpf/MTCLI/pkg/data"
	"github.com/hnpf/MTCLI/pkg/services"
)

const visibleChapters = 10

type DetailsScreen struct {
	ctx             context.Context
	deps            Deps
	mangaID         string
	manga           *data.Manga
	chapters        []data.Chapter
	progress        data.TrackedTitle
	tracked         bool
	description     string
	selectedChapter int
	exports         *components.ExportTracker
	status          string
	width           int
	height          int
	err             error
}

func NewDetailsScreen(ctx context.Context, deps Deps, mangaID string) *DetailsScreen {
	return &DetailsScreen{
		ctx:     ctx,
		deps:    deps,
		mangaID: mangaID,
		exports: components.NewExportTracker(80),
	}
}

func (s *DetailsScreen) Init() tea.Cmd {
	return s.loadDetails
}

func (s *DetailsScreen) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		s.width = msg.Width
		s.height = msg.Height
		s.exports = components.NewExportTracker(msg.Width - 4)
		s.renderDescription()

	case tea.KeyMsg:
		switch msg.String() {
		case "up", "k":
			if s.selectedChapter > 0 {
				s.selectedChapter--
			}
		case "down", "j":
			if s.selectedChapter < len(s.chapters)-1 {
				s.selectedChapter++
			}
		case "r":
			return s, s.loadDetails
		case "t":
			if s.manga != nil {
				return s, s.toggleTracking()
			}
		case "e":
			if s.manga != nil && len(s.chapters) > 0 {
				return s, s.exportChapter(s.chapters[s.selectedChapter])
			}
		case "enter":
			if s.manga != nil {
				manga := s.manga
				return s, func() tea.Msg { return ReadMsg{Manga: manga} }
			}
		case "esc", "backspace":
			return s, func() tea.Msg {
				return SwitchScreenMsg{Screen: "library"}
			}
		}

	case detailsLoadedMsg:
		s.manga = msg.manga
		s.chapters = msg.chapters
		s.progress = msg.progress
		s.tracked = msg.tracked
		s.err = msg.err
		if s.selectedChapter >= len(s.chapters) {
			s.selectedChapter = max(0, len(s.chapters)-1)
		}
		s.renderDescription()

	case trackingToggledMsg:
		s.err = msg.err
		return s, s.loadDetails

	case exportDoneMsg:
		s.err = msg.err
		if msg.err == nil {
			s.status = "Exported to " + msg.path
		}
		s.exports.Clear()

	case services.ExportProgress:
		s.exports.Update(msg)
	}

	return s, nil
}

func (s *DetailsScreen) View() string {
	if s.width == 0 || (s.manga == nil && s.err == nil) {
		return "Loading..."
	}
	if s.manga == nil {
		return styles.StatusError.Render(fmt.Sprintf("Error: %s", s.err))
	}

	header := styles.TitleStyle.Render(s.manga.Name)

	var errorMsg string
	if s.err != nil {
		errorMsg = styles.StatusError.Render(fmt.Sprintf("Error: %s", s.err)) + "\n\n"
	}
	if s.status != "" {
		errorMsg += styles.StatusCompleted.Render(s.status) + "\n\n"
	}

	trackHelp := "t: track"
	if s.tracked {
		trackHelp = "t: untrack"
	}
	help := styles.HelpStyle.Render(
		"↑/k ↓/j: move • enter: read • " + trackHelp + " • e: export chapter • r: refresh • esc: back • q: quit",
	)

	return fmt.Sprintf("%s\n\n%s%s\n%s\n%s\n%s",
		header,
		errorMsg,
		s.renderInfo(),
		s.renderChaptersList(),
		s.exports.View(),
		help,
	)
}

func (s *DetailsScreen) renderInfo() string {
	var b strings.Builder
	b.WriteString(s.description)

	status := s.manga.Status
	if status == "" {
		status = "unknown"
	}
	b.WriteString(styles.StatusStyle(s.manga.Status).Render("Status: " + status))
	b.WriteString("\n")
	if s.tracked {
		b.WriteString(styles.StatusCompleted.Render(
			fmt.Sprintf("Tracked • %d of %d chapters read", len(s.progress.ReadChapters), len(s.chapters)),
		))
	} else {
		b.WriteString(styles.MutedStyle.Render("Not tracked"))
	}
	return styles.CardStyle.Width(max(s.width-4, 20)).Render(b.String())
}

// renderDescription renders the markdown description once per load or
// resize. Plain text is used when glamour fails.
func (s *DetailsScreen) renderDescription() {
	if s.manga == nil {
		s.description = ""
		return
	}
	raw := strings.TrimSpace(s.manga.Description)
	if raw == "" {
		s.description = styles.MutedStyle.Render("No description.") + "\n\n"
		return
	}
	wrap := max(s.width-12, 20)
	r, err := glamour.NewTermRenderer(glamour.WithAutoStyle(), glamour.WithWordWrap(wrap))
	if err == nil {
		if out, err := r.Render(raw); err == nil {
			s.description = out
			return
		}
	}
	s.description = styles.TextStyle.Render(truncate(raw, 400)) + "\n\n"
}

func (s *DetailsScreen) renderChaptersList() string {
	if len(s.chapters) == 0 {
		return styles.MutedStyle.Render("No chapters available")
	}

	var b strings.Builder
	b.WriteString(styles.SubtitleStyle.Render(fmt.Sprintf("Chapters (%d total):", len(s.chapters))))
	b.WriteString("\n\n")

	start, end := 0, len(s.chapters)
	if end > visibleChapters {
		start = max(0, s.selectedChapter-visibleChapters/2)
		end = min(len(s.chapters), start+visibleChapters)
		start = max(0, end-visibleChapters)
	}

	for i := start; i < end; i++ {
		ch := s.chapters[i]
		text := ch.Label()
		if ch.Volume != "" && ch.Volume != "0" {
			text = fmt.Sprintf("Vol. %s, %s", ch.Volume, text)
		}

		icon, style := "○", styles.TextStyle
		if s.progress.HasRead(ch.ID) {
			icon, style = "●", styles.MutedStyle
		}
		line := fmt.Sprintf("%s %s", icon, text)
		if i == s.selectedChapter {
			line = styles.SelectedStyle.Render("> " + line)
		} else {
			line = style.Render("  " + line)
		}
		b.WriteString(line)
		b.WriteString("\n")
	}

	if len(s.chapters) > visibleChapters {
		b.WriteString("\n")
		b.WriteString(styles.MutedStyle.Render(
			fmt.Sprintf("Showing %d-%d of %d chapters", start+1, end, len(s.chapters)),
		))
		b.WriteString("\n")
	}
	return b.String()
}

type detailsLoadedMsg struct {
	manga    *data.Manga
	chapters []data.Chapter
	progress data.TrackedTitle
	tracked  bool
	err      error
}

type trackingToggledMsg struct {
	err error
}

type exportDoneMsg struct {
	path string
	err  error
}

func (s *DetailsScreen) loadDetails() tea.Msg {
	c := s.deps.Controller
	manga, err := c.GetManga(s.ctx, s.mangaID)
	if err != nil {
		return detailsLoadedMsg{err: err}
	}
	progress, tracked := c.Progress(s.mangaID)
	chapters, err := c.Chapters(s.ctx, s.mangaID)
	return detailsLoadedMsg{manga: manga, chapters: chapters, progress: progress, tracked: tracked, err: err}
}

func (s *DetailsScreen) toggleTracking() tea.Cmd {
	manga, tracked := s.manga, s.tracked
	return func() tea.Msg {
		if tracked {
			return trackingToggledMsg{err: s.deps.Controller.Untrack(manga.ID)}
		}
		_, err := s.deps.Controller.Track(manga)
		return trackingToggledMsg{err: err}
	}
}

func (s *DetailsScreen) exportChapter(chapter data.Chapter) tea.Cmd {
	if s.deps.Exporter == nil {
		return func() tea.Msg { return exportDoneMsg{err: fmt.Errorf("export is not available")} }
	}
	s.status = ""
	manga := s.manga
	return func() tea.Msg {
		path, err := s.deps.Exporter.Export(s.ctx, manga, []data.Chapter{chapter})
		return exportDoneMsg{path: path, err: err}
	}
}
