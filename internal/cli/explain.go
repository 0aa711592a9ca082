package cli

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/ppiankov/flaircheck/internal/classify"
	"github.com/ppiankov/flaircheck/internal/config"
	"github.com/ppiankov/flaircheck/internal/reddit"
)

var (
	explainCreated string
	explainNow     string
)

var explainCmd = &cobra.Command{
	Use:   "explain <title>",
	Short: "Classify a title offline and show what a run would do with it",
	Args:  cobra.ExactArgs(1),
	RunE:  explainAction,
}

func init() {
	explainCmd.Flags().StringVar(&explainCreated, "created", "", "post creation time, RFC3339 (default: one hour before --now)")
	explainCmd.Flags().StringVar(&explainNow, "now", "", "evaluation time, RFC3339 (default: current time)")
	rootCmd.AddCommand(explainCmd)
}

func explainAction(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configDir)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	now := time.Now().UTC()
	if explainNow != "" {
		if now, err = time.Parse(time.RFC3339, explainNow); err != nil {
			return fmt.Errorf("parse --now: %w", err)
		}
	}
	created := now.Add(-time.Hour)
	if explainCreated != "" {
		if created, err = time.Parse(time.RFC3339, explainCreated); err != nil {
			return fmt.Errorf("parse --created: %w", err)
		}
	}

	c, err := classify.New(cfg.Title.Regex, cfg.Title.Grace, nil)
	if err != nil {
		return err
	}

	out := c.Classify(reddit.Post{Title: args[0], CreatedAt: created}, now)
	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "title:    %q\n", args[0])
	fmt.Fprintf(w, "outcome:  %s\n", out.Kind())
	out.Accept(&explainer{w: w, now: now, cfg: cfg})
	return nil
}

// explainer prints the action a run would take for each outcome.
type explainer struct {
	w   io.Writer
	now time.Time
	cfg *config.Config
}

func (e *explainer) WithinGracePeriod(o classify.WithinGracePeriod) {
	fmt.Fprintf(e.w, "action:   none yet, post is %s old (grace %s)\n", o.Age.Round(time.Second), e.cfg.Title.Grace)
}

func (e *explainer) ValidSchedule(o classify.ValidSchedule) {
	fmt.Fprintf(e.w, "schedule: %s (%s)\n", o.At.Format(time.RFC3339), humanize.RelTime(o.At, e.now, "ago", "from now"))
	fmt.Fprintf(e.w, "action:   record, set flair %q\n", e.cfg.Flairs.Upcoming.Text)
}

func (e *explainer) PastSchedule(o classify.PastSchedule) {
	fmt.Fprintf(e.w, "schedule: %s (%s)\n", o.At.Format(time.RFC3339), humanize.RelTime(o.At, e.now, "ago", "from now"))
	fmt.Fprintln(e.w, "action:   record, comment, remove")
	fmt.Fprintf(e.w, "comment:  %s\n", e.cfg.Title.TimeMessage)
}

func (e *explainer) InvalidFormat(o classify.InvalidFormat) {
	reason := "does not match title.regex"
	var dateErr *classify.DateError
	if errors.As(o.Reason, &dateErr) {
		reason = dateErr.Error()
	}
	fmt.Fprintf(e.w, "reason:   %s\n", reason)
	fmt.Fprintln(e.w, "action:   record, comment, remove")
	fmt.Fprintf(e.w, "comment:  %s\n", e.cfg.Title.FormatMessage)
}
