// Package cli provides the command-line interface for flaircheck.
package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
)

// Version and Commit are set via ldflags at build time.
var (
	Version = "dev"
	Commit  = "none"
)

var configDir string

var rootCmd = &cobra.Command{
	Use:   "flaircheck",
	Short: "Moderate scheduled-match posts on a subreddit",
	Long: "flaircheck checks that new subreddit posts carry a schedule in their title, " +
		"flairs upcoming matches, removes posts with missing or past schedules, " +
		"and marks finished matches as completed.",
	SilenceUsage: true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, _ []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "flaircheck %s (%s)\n", Version, Commit)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configDir, "config", defaultConfigDir(), "config directory")
	rootCmd.AddCommand(versionCmd)
}

func defaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".flaircheck"
	}
	return filepath.Join(home, ".flaircheck")
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
