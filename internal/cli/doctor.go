package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/ppiankov/flaircheck/internal/classify"
	"github.com/ppiankov/flaircheck/internal/config"
	"github.com/ppiankov/flaircheck/internal/store"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check configuration, credentials and ledger connectivity",
	RunE:  doctorAction,
}

func init() {
	rootCmd.AddCommand(doctorCmd)
}

func doctorAction(cmd *cobra.Command, _ []string) error {
	w := cmd.OutOrStdout()
	ok := true

	if info, err := os.Stat(configDir); err != nil || !info.IsDir() {
		printCheck(w, false, "config directory %s", configDir)
		ok = false
	} else {
		printCheck(w, true, "config directory %s", configDir)
	}

	cfg, err := config.Load(configDir)
	if err != nil {
		printCheck(w, false, "config.yaml: %v", err)
		return fmt.Errorf("some checks failed")
	}
	printCheck(w, true, "config.yaml (r/%s, %s ledger, schedule %q)", cfg.Subreddit, cfg.Storage.Driver, cfg.Schedule.Cron)

	if _, err := classify.Compile(cfg.Title.Regex); err != nil {
		printCheck(w, false, "title regex: %v", err)
		ok = false
	} else {
		printCheck(w, true, "title regex %q", cfg.Title.Regex)
	}

	if err := cfg.Reddit.CheckCredentials(); err != nil {
		printCheck(w, false, "%v", err)
		ok = false
	} else {
		printCheck(w, true, "reddit credentials for u/%s", cfg.Reddit.Username)
	}

	ledger, err := store.Open(cmd.Context(), cfg.Storage)
	if err != nil {
		printCheck(w, false, "ledger: %v", err)
		ok = false
	} else {
		defer func() { _ = ledger.Close() }()
		printCheck(w, true, "ledger %s", ledgerTarget(cfg.Storage))
		if sq, isSQLite := ledger.(*store.SQLite); isSQLite {
			if n, err := sq.Count(cmd.Context()); err == nil {
				printInfo(w, "%d posts in ledger", n)
			}
		}
	}

	if len(cfg.Flairs.Excluded()) == 0 {
		printInfo(w, "no flairs excluded: every post is treated as unflaired")
	}

	if !ok {
		return fmt.Errorf("some checks failed")
	}
	fmt.Fprintln(w, "\nAll checks passed.")
	return nil
}

func ledgerTarget(cfg config.StorageConfig) string {
	switch cfg.Driver {
	case "postgres":
		return "postgres"
	case "redis":
		return "redis " + cfg.Redis.Addr + " key " + cfg.Redis.Key
	default:
		return cfg.Path
	}
}

func printCheck(w io.Writer, pass bool, format string, args ...any) {
	mark := "FAIL"
	if pass {
		mark = " OK "
	}
	fmt.Fprintf(w, "[%s] %s\n", mark, fmt.Sprintf(format, args...))
}

func printInfo(w io.Writer, format string, args ...any) {
	fmt.Fprintf(w, "[INFO] %s\n", fmt.Sprintf(format, args...))
}
