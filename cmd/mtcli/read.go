package mtcli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var readCmd = &cobra.Command{
	Use:   "read [manga-id]",
	Short: "Resume reading a title",
	Long: "Read a title from its first unread chapter. Untracked titles start at the first chapter;\n" +
		"you are offered to track them first.",
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		chapterRange, _ := cmd.Flags().GetString("chapters")

		e, err := openEnv(cmd)
		if err != nil {
			return err
		}
		defer e.Close()

		manga, err := e.controller.GetManga(cmd.Context(), args[0])
		if err != nil {
			return fmt.Errorf("failed to get manga: %w", err)
		}

		if !e.controller.IsTracked(manga.ID) {
			track, err := e.prompter().confirm(fmt.Sprintf("Track %s?", manga.Name), false)
			if err != nil {
				return err
			}
			if track {
				if _, err := e.controller.Track(manga); err != nil {
					return err
				}
			}
		}
		return e.read(cmd.Context(), manga, chapterRange)
	},
}

func init() {
	readCmd.Flags().StringP("chapters", "c", "", "Chapter range (e.g., 1-10)")
}
