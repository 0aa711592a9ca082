package cli

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

var pruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete ledger records older than the retention horizon",
	RunE:  pruneAction,
}

func init() {
	rootCmd.AddCommand(pruneCmd)
}

func pruneAction(cmd *cobra.Command, _ []string) error {
	a, err := openApp(cmd.Context(), false)
	if err != nil {
		return err
	}
	defer a.close()

	threshold := a.cfg.Retention.Before(time.Now())
	n, err := a.ledger.DeleteBefore(cmd.Context(), threshold)
	if err != nil {
		return fmt.Errorf("prune: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Pruned %s checks older than %s (%s).\n",
		humanize.Comma(n), a.cfg.Retention, humanize.Time(threshold))
	return nil
}
