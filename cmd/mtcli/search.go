package mtcli

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/hnpf/MTCLI/pkg/data"
	"github.com/spf13/cobra"
)

var searchCmd = &cobra.Command{
	Use:   "search [query]",
	Short: "Search for manga and start reading",
	Long:  "Search MangaDex, pick a result, optionally track it and read it right away",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		query := strings.Join(args, " ")
		out := cmd.OutOrStdout()

		e, err := openEnv(cmd)
		if err != nil {
			return err
		}
		defer e.Close()

		results, err := e.controller.Search(cmd.Context(), query)
		if err != nil {
			return fmt.Errorf("search failed: %w", err)
		}
		if len(results) == 0 {
			fmt.Fprintln(out, "No results found.")
			return nil
		}
		fmt.Fprintln(out, resultsTable(results, e.controller.IsTracked))

		p := e.prompter()
		i, err := p.choose("Select a title", len(results))
		if err != nil || i < 0 {
			return err
		}
		manga := results[i]
		fmt.Fprintln(out, describe(&manga))

		if e.controller.IsTracked(manga.ID) {
			fmt.Fprintf(out, "%s is already tracked.\n", manga.Name)
		} else {
			track, err := p.confirm(fmt.Sprintf("Track %s?", manga.Name), false)
			if err != nil {
				return err
			}
			if track {
				if _, err := e.controller.Track(&manga); err != nil {
					return err
				}
				fmt.Fprintf(out, "Tracking %s.\n", manga.Name)
			}
		}

		read, err := p.confirm("Read now?", true)
		if err != nil || !read {
			return err
		}
		return e.read(cmd.Context(), &manga, "")
	},
}

var (
	purple      = lipgloss.Color("99")
	headerStyle = lipgloss.NewStyle().Foreground(purple).Bold(true).Align(lipgloss.Center)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
)

func resultsTable(results []data.Manga, tracked func(string) bool) *table.Table {
	t := table.New().
		Border(lipgloss.HiddenBorder()).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		}).
		Headers("#", "Name", "Status", "")

	for i, manga := range results {
		mark := ""
		if tracked(manga.ID) {
			mark = "tracked"
		}
		t.Row(fmt.Sprintf("%d", i+1), truncateString(manga.Name, 58), manga.Status, mark)
	}
	return t
}

// describe renders the title and its markdown description.
func describe(manga *data.Manga) string {
	raw := fmt.Sprintf("# %s\n\n%s\n", manga.Name, strings.TrimSpace(manga.Description))
	r, err := glamour.NewTermRenderer(glamour.WithAutoStyle(), glamour.WithWordWrap(80))
	if err != nil {
		return raw
	}
	out, err := r.Render(raw)
	if err != nil {
		return raw
	}
	return out
}

func truncateString(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	return string(r[:maxLen-3]) + "..."
}
