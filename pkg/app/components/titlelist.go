package components

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/hnpf/MTCLI/pkg/app/styles"
	"github.com/hnpf/MTCLI/pkg/data"
)

// TitleListItem is one tracked title with its reading counts. Total is 0
// when no chapter listing has been cached yet.
type TitleListItem struct {
	Title data.TrackedTitle
	Total int
}

func (i TitleListItem) Read() int { return len(i.Title.ReadChapters) }

type TitleList struct {
	Items         []TitleListItem
	SelectedIndex int
	Width         int
	Height        int
}

func NewTitleList() *TitleList {
	return &TitleList{
		Items:  []TitleListItem{},
		Width:  80,
		Height: 20,
	}
}

func (l *TitleList) SetItems(items []TitleListItem) {
	l.Items = items
	if l.SelectedIndex >= len(items) && len(items) > 0 {
		l.SelectedIndex = len(items) - 1
	}
	if len(items) == 0 {
		l.SelectedIndex = 0
	}
}

func (l *TitleList) Next() {
	if len(l.Items) == 0 {
		return
	}
	l.SelectedIndex = (l.SelectedIndex + 1) % len(l.Items)
}

func (l *TitleList) Prev() {
	if len(l.Items) == 0 {
		return
	}
	l.SelectedIndex--
	if l.SelectedIndex < 0 {
		l.SelectedIndex = len(l.Items) - 1
	}
}

func (l *TitleList) Selected() *TitleListItem {
	if len(l.Items) == 0 || l.SelectedIndex >= len(l.Items) {
		return nil
	}
	return &l.Items[l.SelectedIndex]
}

func (l *TitleList) View() string {
	if len(l.Items) == 0 {
		empty := styles.MutedStyle.Render("No tracked titles yet. Press tab to search.")
		return lipgloss.Place(l.Width, l.Height, lipgloss.Center, lipgloss.Center, empty)
	}

	var b strings.Builder
	for i, item := range l.Items {
		cardStyle := styles.CardStyle
		if i == l.SelectedIndex {
			cardStyle = styles.ActiveCardStyle
		}

		counts := fmt.Sprintf("%d read", item.Read())
		if item.Total > 0 {
			counts = fmt.Sprintf("%d / %d read", item.Read(), item.Total)
		}
		lines := []string{
			styles.SelectedStyle.Render(item.Title.Name),
			styles.MutedStyle.Render(counts),
		}
		if item.Title.LastRead != "" {
			lines = append(lines, styles.MutedStyle.Render("Last read: "+item.Title.LastRead))
		}

		b.WriteString(cardStyle.Width(l.Width - 4).Render(lipgloss.JoinVertical(lipgloss.Left, lines...)))
		b.WriteString("\n")
	}
	return b.String()
}
