package mtcli

import (
	"context"
	"os"
	"os/signal"

	"github.com/hnpf/MTCLI/pkg/app"
	"github.com/hnpf/MTCLI/pkg/app/screens"
	"github.com/spf13/cobra"
)

var (
	flagProfile string
	flagWidth   int
	flagHome    string
)

var rootCmd = &cobra.Command{
	Use:   "mtcli",
	Short: "Read manga as text art in your terminal",
	Long: "Search MangaDex, track what you read and read chapters rendered as text art.\n" +
		"Without a command the interactive library opens.",
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := openEnv(cmd)
		if err != nil {
			return err
		}
		defer e.Close()

		exporter := e.exporter()
		picked, err := app.NewApp(screens.Deps{
			Controller: e.controller,
			Counter:    e.repo,
			Exporter:   exporter,
		}).Run(cmd.Context())
		exporter.Close()
		if err != nil || picked == nil {
			return err
		}
		return e.read(cmd.Context(), picked, "")
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&flagProfile, "profile", "p", "", "detail profile: low, medium or high")
	rootCmd.PersistentFlags().IntVarP(&flagWidth, "width", "w", 0, "render width in columns (default: terminal width)")
	rootCmd.PersistentFlags().StringVar(&flagHome, "home", "", "data directory (default: $MTCLI_HOME or ~/.mtcli)")

	rootCmd.AddCommand(searchCmd)
	rootCmd.AddCommand(readCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(untrackCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(cacheCmd)
}

func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}
