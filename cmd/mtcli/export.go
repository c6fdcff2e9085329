package mtcli

import (
	"fmt"

	"github.com/hnpf/MTCLI/pkg/services"
	"github.com/spf13/cobra"
)

var exportCmd = &cobra.Command{
	Use:   "export [manga-id]",
	Short: "Export chapters as an EPUB",
	Long:  "Fetch the pages of a title's chapters into the page cache and pack them into an EPUB",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		chapterRange, _ := cmd.Flags().GetString("chapters")
		out := cmd.OutOrStdout()

		e, err := openEnv(cmd)
		if err != nil {
			return err
		}
		defer e.Close()

		manga, err := e.controller.GetManga(cmd.Context(), args[0])
		if err != nil {
			return fmt.Errorf("failed to get manga: %w", err)
		}
		chapters, err := e.controller.Chapters(cmd.Context(), manga.ID)
		if err != nil {
			return fmt.Errorf("failed to list chapters: %w", err)
		}
		if chapterRange != "" {
			chapters = services.FilterByRange(chapters, chapterRange)
			fmt.Fprintf(out, "Exporting chapters %s of %s\n", chapterRange, manga.Name)
		} else {
			fmt.Fprintf(out, "Exporting all %d chapters of %s\n", len(chapters), manga.Name)
		}
		if len(chapters) == 0 {
			return fmt.Errorf("no chapters to export")
		}

		exporter := e.exporter()
		done := make(chan struct{})
		go func() {
			defer close(done)
			for progress := range exporter.GetProgressChannel() {
				switch progress.Status {
				case "error":
					fmt.Fprintf(out, "  Chapter %s: %v\n", progress.ChapterNumber, progress.Error)
				case "complete":
					fmt.Fprintf(out, "  Chapter %s: %d pages\n", progress.ChapterNumber, progress.TotalPages)
				}
			}
		}()

		path, err := exporter.Export(cmd.Context(), manga, chapters)
		exporter.Close()
		<-done
		if err != nil {
			return fmt.Errorf("export failed: %w", err)
		}

		fmt.Fprintf(out, "EPUB created: %s\n", path)
		return nil
	},
}

func init() {
	exportCmd.Flags().StringP("chapters", "c", "", "Chapter range (e.g., 1-10)")
}
