package report

import (
	"fmt"
	"io"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/ppiankov/flaircheck/internal/bot"
)

// TerminalFormatter prints a human readable run summary.
type TerminalFormatter struct {
	color bool
	now   func() time.Time
}

func NewTerminal(color bool) *TerminalFormatter {
	return &TerminalFormatter{color: color, now: time.Now}
}

func (f *TerminalFormatter) Format(w io.Writer, rep bot.RunReport) error {
	header := fmt.Sprintf("flaircheck r/%s run %s, finished %s (took %s)",
		rep.Subreddit, shortID(rep.RunID),
		humanize.RelTime(rep.FinishedAt, f.now(), "ago", "from now"),
		rep.Duration().Round(time.Millisecond))
	fmt.Fprintln(w, f.bold(header))
	fmt.Fprintln(w)

	t := rep.Titles
	fmt.Fprintln(w, f.bold(fmt.Sprintf("--- Titles (%d unflaired fetched) ---", rep.Unflaired)))
	if rep.Unflaired == 0 {
		fmt.Fprintln(w, "  No unflaired posts.")
	} else {
		fmt.Fprintf(w, "  already checked:  %d\n", t.AlreadyProcessed)
		fmt.Fprintf(w, "  in grace period:  %d\n", t.Grace)
		fmt.Fprintf(w, "  %s %d\n", f.green("valid schedule:  "), t.Valid)
		fmt.Fprintf(w, "  %s %d\n", f.yellow("past schedule:   "), t.Past)
		fmt.Fprintf(w, "  %s %d\n", f.yellow("invalid format:  "), t.Invalid)
		fmt.Fprintf(w, "  recorded:         %d\n", t.Recorded)
		fmt.Fprintf(w, "  effects applied:  %d\n", t.EffectsApplied)
	}
	fmt.Fprintln(w)

	c := rep.Completed
	fmt.Fprintln(w, f.bold(fmt.Sprintf("--- Upcoming (%d fetched) ---", rep.Upcoming)))
	if rep.Upcoming == 0 {
		fmt.Fprintln(w, "  No upcoming posts.")
	} else {
		fmt.Fprintf(w, "  %s %d\n", f.green("marked completed:"), c.Flaired)
		fmt.Fprintf(w, "  still upcoming:   %d\n", c.Pending)
		fmt.Fprintf(w, "  invalid title:    %d\n", c.Invalid)
	}
	fmt.Fprintln(w)

	fmt.Fprintf(w, "Pruned %s old checks.\n", humanize.Comma(rep.Pruned))

	if problems := t.LookupFailed + t.RecordFailed + len(t.EffectFailures) + t.Panics + c.Failed; problems > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, f.red(fmt.Sprintf("%d problems:", problems)))
		if t.LookupFailed > 0 {
			fmt.Fprintf(w, "  ledger lookups failed: %d (posts skipped)\n", t.LookupFailed)
		}
		if t.RecordFailed > 0 {
			fmt.Fprintf(w, "  ledger inserts failed: %d (effects skipped)\n", t.RecordFailed)
		}
		for _, e := range t.EffectFailures {
			fmt.Fprintf(w, "  %s\n", f.dim(e.Error()))
		}
		if t.Panics > 0 {
			fmt.Fprintf(w, "  panics recovered: %d\n", t.Panics)
		}
		if c.Failed > 0 {
			fmt.Fprintf(w, "  completed flairs failed: %d\n", c.Failed)
		}
	}

	return nil
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func (f *TerminalFormatter) paint(code, s string) string {
	if !f.color {
		return s
	}
	return "\033[" + code + "m" + s + "\033[0m"
}

func (f *TerminalFormatter) bold(s string) string   { return f.paint("1", s) }
func (f *TerminalFormatter) red(s string) string    { return f.paint("31", s) }
func (f *TerminalFormatter) green(s string) string  { return f.paint("32", s) }
func (f *TerminalFormatter) yellow(s string) string { return f.paint("33", s) }
func (f *TerminalFormatter) dim(s string) string    { return f.paint("2", s) }
