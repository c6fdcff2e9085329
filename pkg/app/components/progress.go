package components

import (
	"fmt"
	"sort"
	"strings"

	"github.com/hnpf/MTCLI/pkg/app/styles"
	"github.com/hnpf/MTCLI/pkg/services"
)

// ExportTracker keeps the latest progress of every chapter being exported.
type ExportTracker struct {
	exports map[string]*services.ExportProgress
	width   int
}

func NewExportTracker(width int) *ExportTracker {
	return &ExportTracker{
		exports: make(map[string]*services.ExportProgress),
		width:   width,
	}
}

func (p *ExportTracker) Update(progress services.ExportProgress) {
	key := progress.MangaID + ":" + progress.ChapterID
	if progress.Status == "complete" && progress.ChapterID != "" {
		delete(p.exports, key)
		return
	}
	prog := progress
	p.exports[key] = &prog
}

func (p *ExportTracker) Clear() {
	p.exports = make(map[string]*services.ExportProgress)
}

func (p *ExportTracker) HasActive() bool {
	return len(p.exports) > 0
}

func (p *ExportTracker) View() string {
	if len(p.exports) == 0 {
		return ""
	}

	keys := make([]string, 0, len(p.exports))
	for k := range p.exports {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(styles.SubtitleStyle.Render("Exporting"))
	b.WriteString("\n\n")

	for _, k := range keys {
		progress := p.exports[k]
		label := "Chapter " + progress.ChapterNumber
		if progress.ChapterNumber == "" {
			label = "Oneshot"
		}
		b.WriteString(styles.TextStyle.Render(label))
		b.WriteString("\n")

		status := progress.Status
		if progress.TotalPages > 0 {
			status = fmt.Sprintf("%s (%d/%d pages)", progress.Status, progress.CurrentPage, progress.TotalPages)
			b.WriteString(ProgressBar(progress.CurrentPage, progress.TotalPages, p.width-4))
			b.WriteString("\n")
		}
		b.WriteString(styles.StatusStyle(progress.Status).Render(status))
		b.WriteString("\n")

		if progress.Error != nil {
			b.WriteString(styles.StatusError.Render(fmt.Sprintf("Error: %s", progress.Error)))
			b.WriteString("\n")
		}
	}
	return b.String()
}

// ProgressBar renders current/total as a bar of width cells. It returns ""
// when total or width is not positive.
func ProgressBar(current, total, width int) string {
	if total <= 0 || width <= 0 {
		return ""
	}
	filled := current * width / total
	filled = max(0, min(filled, width))

	return styles.ProgressBarStyle.Render(strings.Repeat("█", filled)) +
		styles.ProgressEmptyStyle.Render(strings.Repeat("░", width-filled))
}
