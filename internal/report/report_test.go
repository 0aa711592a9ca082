package report

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/ppiankov/flaircheck/internal/bot"
	"github.com/ppiankov/flaircheck/internal/pipeline"
)

func sampleReport() bot.RunReport {
	start := time.Date(2024, 1, 10, 12, 0, 0, 0, time.UTC)
	return bot.RunReport{
		RunID:      "0f8fad5b-d9cb-469f-a165-70867728950e",
		Subreddit:  "uhcmatches",
		StartedAt:  start,
		FinishedAt: start.Add(1500 * time.Millisecond),
		Unflaired:  12,
		Titles: pipeline.Report{
			Received:         12,
			AlreadyProcessed: 5,
			Grace:            1,
			Valid:            3,
			Past:             1,
			Invalid:          2,
			Recorded:         6,
			EffectsApplied:   8,
			EffectFailures: []*pipeline.EffectError{
				{Effect: "comment", Post: "t3_x", Err: errors.New("403 forbidden")},
			},
		},
		Upcoming:  4,
		Completed: pipeline.CompletedReport{Received: 4, Flaired: 2, Pending: 2},
		Pruned:    1234,
	}
}

func TestNew(t *testing.T) {
	for _, name := range []string{"", FormatTerminal, FormatJSON} {
		if _, err := New(name, false); err != nil {
			t.Fatalf("New(%q): %v", name, err)
		}
	}
	if _, err := New("markdown", false); err == nil {
		t.Fatal("expected error for unknown format")
	}
}

func TestTerminalFormat(t *testing.T) {
	f := NewTerminal(false)
	f.now = func() time.Time { return sampleReport().FinishedAt.Add(time.Minute) }
	var buf bytes.Buffer

	if err := f.Format(&buf, sampleReport()); err != nil {
		t.Fatalf("format: %v", err)
	}
	out := buf.String()

	for _, want := range []string{
		"r/uhcmatches",
		"run 0f8fad5b",
		"1 minute ago",
		"took 1.5s",
		"12 unflaired fetched",
		"valid schedule:   3",
		"invalid format:   2",
		"marked completed: 2",
		"Pruned 1,234 old checks.",
		"1 problems:",
		"comment on t3_x: 403 forbidden",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("missing %q in:\n%s", want, out)
		}
	}
	if strings.Contains(out, "\033[") {
		t.Error("unexpected ANSI codes with color disabled")
	}
}

func TestTerminalFormat_Empty(t *testing.T) {
	var buf bytes.Buffer
	if err := NewTerminal(true).Format(&buf, bot.RunReport{Subreddit: "s"}); err != nil {
		t.Fatalf("format: %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, "No unflaired posts.") || !strings.Contains(out, "No upcoming posts.") {
		t.Errorf("missing empty markers:\n%s", out)
	}
	if strings.Contains(out, "problems") {
		t.Error("unexpected problems section")
	}
	if !strings.Contains(out, "\033[1m") {
		t.Error("expected ANSI bold with color enabled")
	}
}

func TestJSONFormat(t *testing.T) {
	var buf bytes.Buffer
	if err := NewJSON().Format(&buf, sampleReport()); err != nil {
		t.Fatalf("format: %v", err)
	}

	var got jsonReport
	if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
		t.Fatalf("invalid json: %v\n%s", err, buf.String())
	}
	if got.DurationMS != 1500 {
		t.Errorf("duration_ms = %d", got.DurationMS)
	}
	if got.Titles.Invalid != 2 || got.Completed.Flaired != 2 || got.Pruned != 1234 {
		t.Errorf("unexpected counts: %+v", got)
	}
	if len(got.Failures) != 1 || got.Failures[0].Error != "403 forbidden" {
		t.Errorf("unexpected failures: %+v", got.Failures)
	}
	if got.StartedAt != "2024-01-10T12:00:00Z" {
		t.Errorf("started_at = %s", got.StartedAt)
	}
}

func TestJSONFormat_EmptyFailuresIsArray(t *testing.T) {
	var buf bytes.Buffer
	if err := NewJSON().Format(&buf, bot.RunReport{}); err != nil {
		t.Fatalf("format: %v", err)
	}
	if !strings.Contains(buf.String(), `"effect_failures": []`) {
		t.Errorf("expected empty array:\n%s", buf.String())
	}
}
