package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ppiankov/flaircheck/internal/report"
)

var (
	runFormat string
	noColor   bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run one moderation pass and print a report",
	RunE:  runAction,
}

func init() {
	runCmd.Flags().StringVar(&runFormat, "format", report.FormatTerminal, "output format: terminal, json")
	runCmd.Flags().BoolVar(&noColor, "no-color", false, "disable ANSI colors")
	rootCmd.AddCommand(runCmd)
}

func runAction(cmd *cobra.Command, _ []string) error {
	formatter, err := report.New(runFormat, !noColor)
	if err != nil {
		return err
	}

	a, err := openApp(cmd.Context(), true)
	if err != nil {
		return err
	}
	defer a.close()

	rep, err := a.bot.RunOnce(cmd.Context())
	if err != nil {
		return fmt.Errorf("run %s: %w", rep.RunID, err)
	}
	return formatter.Format(cmd.OutOrStdout(), rep)
}
