package mtcli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var untrackCmd = &cobra.Command{
	Use:   "untrack [manga-id]",
	Short: "Stop tracking a title",
	Long:  "Stop tracking a title. Its read chapters are forgotten.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := openEnv(cmd)
		if err != nil {
			return err
		}
		defer e.Close()

		title, ok := e.controller.Progress(args[0])
		if !ok {
			return fmt.Errorf("%s is not tracked", args[0])
		}
		if err := e.controller.Untrack(title.ID); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Stopped tracking %s (%d chapters read).\n", title.Name, len(title.ReadChapters))
		return nil
	},
}
