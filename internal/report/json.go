package report

import (
	"encoding/json"
	"io"
	"time"

	"github.com/ppiankov/flaircheck/internal/bot"
)

type jsonReport struct {
	RunID      string          `json:"run_id"`
	Subreddit  string          `json:"subreddit"`
	StartedAt  string          `json:"started_at"`
	FinishedAt string          `json:"finished_at"`
	DurationMS int64           `json:"duration_ms"`
	Titles     jsonTitles      `json:"titles"`
	Completed  jsonCompleted   `json:"completed"`
	Pruned     int64           `json:"pruned"`
	Failures   []jsonEffectErr `json:"effect_failures"`
}

type jsonTitles struct {
	Fetched          int `json:"fetched"`
	AlreadyProcessed int `json:"already_processed"`
	LookupFailed     int `json:"lookup_failed"`
	Grace            int `json:"within_grace_period"`
	Valid            int `json:"valid_schedule"`
	Past             int `json:"past_schedule"`
	Invalid          int `json:"invalid_format"`
	Recorded         int `json:"recorded"`
	RecordFailed     int `json:"record_failed"`
	EffectsApplied   int `json:"effects_applied"`
	Panics           int `json:"panics"`
}

type jsonCompleted struct {
	Fetched int `json:"fetched"`
	Flaired int `json:"flaired"`
	Pending int `json:"pending"`
	Invalid int `json:"invalid"`
	Failed  int `json:"failed"`
}

type jsonEffectErr struct {
	Effect string `json:"effect"`
	Post   string `json:"post"`
	Error  string `json:"error"`
}

// JSONFormatter writes the report as indented JSON.
type JSONFormatter struct{}

func NewJSON() *JSONFormatter {
	return &JSONFormatter{}
}

func (f *JSONFormatter) Format(w io.Writer, rep bot.RunReport) error {
	t, c := rep.Titles, rep.Completed
	out := jsonReport{
		RunID:      rep.RunID,
		Subreddit:  rep.Subreddit,
		StartedAt:  rep.StartedAt.UTC().Format(time.RFC3339),
		FinishedAt: rep.FinishedAt.UTC().Format(time.RFC3339),
		DurationMS: rep.Duration().Milliseconds(),
		Titles: jsonTitles{
			Fetched:          rep.Unflaired,
			AlreadyProcessed: t.AlreadyProcessed,
			LookupFailed:     t.LookupFailed,
			Grace:            t.Grace,
			Valid:            t.Valid,
			Past:             t.Past,
			Invalid:          t.Invalid,
			Recorded:         t.Recorded,
			RecordFailed:     t.RecordFailed,
			EffectsApplied:   t.EffectsApplied,
			Panics:           t.Panics,
		},
		Completed: jsonCompleted{
			Fetched: rep.Upcoming,
			Flaired: c.Flaired,
			Pending: c.Pending,
			Invalid: c.Invalid,
			Failed:  c.Failed,
		},
		Pruned:   rep.Pruned,
		Failures: make([]jsonEffectErr, 0, len(t.EffectFailures)),
	}
	for _, e := range t.EffectFailures {
		out.Failures = append(out.Failures, jsonEffectErr{Effect: e.Effect, Post: e.Post, Error: e.Err.Error()})
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}
