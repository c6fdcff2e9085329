package mtcli

import (
	"fmt"

	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List tracked titles",
	Long:  "Display every tracked title with how many of its chapters have been read",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()

		e, err := openEnv(cmd)
		if err != nil {
			return err
		}
		defer e.Close()

		tracked := e.controller.Tracked()
		if len(tracked) == 0 {
			fmt.Fprintln(out, "No tracked titles. Use 'mtcli search' to find something to read.")
			return nil
		}

		columns := []table.Column{
			{Title: "Name", Width: 40},
			{Title: "ID", Width: 36},
			{Title: "Read", Width: 6},
			{Title: "Chapters", Width: 10},
			{Title: "Last read", Width: 36},
		}

		rows := make([]table.Row, 0, len(tracked))
		for _, title := range tracked {
			total := "?"
			if _, n, err := e.repo.GetMangaWithChapterCount(title.ID); err == nil && n > 0 {
				total = fmt.Sprintf("%d", n)
			}
			rows = append(rows, table.Row{
				truncateString(title.Name, 38),
				title.ID,
				fmt.Sprintf("%d", len(title.ReadChapters)),
				total,
				title.LastRead,
			})
		}

		t := table.New(
			table.WithColumns(columns),
			table.WithRows(rows),
			table.WithFocused(false),
			table.WithHeight(len(rows)+2),
		)

		s := table.DefaultStyles()
		s.Header = s.Header.
			BorderStyle(lipgloss.NormalBorder()).
			BorderForeground(lipgloss.Color("240")).
			BorderBottom(true).
			Bold(true)
		s.Selected = s.Cell
		t.SetStyles(s)

		fmt.Fprintf(out, "\nTracked titles (%d)\n\n", len(tracked))
		fmt.Fprintln(out, t.View())
		return nil
	},
}
