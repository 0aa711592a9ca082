// Package bot wires fetching, the title pipeline, the completed pass and the
// retention sweep into one moderation run, and runs it on a schedule.
package bot

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ppiankov/flaircheck/internal/classify"
	"github.com/ppiankov/flaircheck/internal/config"
	"github.com/ppiankov/flaircheck/internal/fetch"
	"github.com/ppiankov/flaircheck/internal/pipeline"
	"github.com/ppiankov/flaircheck/internal/reddit"
	"github.com/ppiankov/flaircheck/internal/store"
)

// Fetcher supplies the two post batches of a run.
type Fetcher interface {
	FetchUnflaired(ctx context.Context, count int) ([]reddit.Post, error)
	FetchUpcoming(ctx context.Context, count int) ([]reddit.Post, error)
}

type TitlePass interface {
	ProcessPosts(ctx context.Context, posts []reddit.Post) (pipeline.Report, error)
	RemoveOldChecks(ctx context.Context) (int64, error)
}

type CompletedPass interface {
	ProcessPosts(ctx context.Context, posts []reddit.Post) pipeline.CompletedReport
}

// API is everything a run needs from the remote forum.
type API interface {
	fetch.Searcher
	pipeline.Moderator
}

// RunReport summarizes one moderation run.
type RunReport struct {
	RunID      string                   `json:"run_id"`
	Subreddit  string                   `json:"subreddit"`
	StartedAt  time.Time                `json:"started_at"`
	FinishedAt time.Time                `json:"finished_at"`
	Unflaired  int                      `json:"unflaired_fetched"`
	Titles     pipeline.Report          `json:"titles"`
	Upcoming   int                      `json:"upcoming_fetched"`
	Completed  pipeline.CompletedReport `json:"completed"`
	Pruned     int64                    `json:"pruned"`
}

func (r RunReport) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

type Bot struct {
	subreddit string
	limit     int
	fetcher   Fetcher
	titles    TitlePass
	completed CompletedPass
	now       func() time.Time
	log       *zap.Logger
}

type Options struct {
	Subreddit string
	Limit     int
	Fetcher   Fetcher
	Titles    TitlePass
	Completed CompletedPass
	Now       func() time.Time
	Logger    *zap.Logger
}

func New(opts Options) (*Bot, error) {
	if opts.Fetcher == nil || opts.Titles == nil || opts.Completed == nil {
		return nil, errors.New("bot: fetcher, title pass and completed pass are required")
	}
	if opts.Limit <= 0 {
		opts.Limit = config.DefaultFetchLimit
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Bot{
		subreddit: opts.Subreddit,
		limit:     opts.Limit,
		fetcher:   opts.Fetcher,
		titles:    opts.Titles,
		completed: opts.Completed,
		now:       opts.Now,
		log:       opts.Logger,
	}, nil
}

// FromConfig assembles a bot from loaded configuration, a remote API and an
// open ledger.
func FromConfig(cfg *config.Config, api API, ledger store.Ledger, log *zap.Logger) (*Bot, error) {
	if log == nil {
		log = zap.NewNop()
	}

	classifier, err := classify.New(cfg.Title.Regex, cfg.Title.Grace, log)
	if err != nil {
		return nil, err
	}

	fetcher, err := fetch.New(api, cfg.Subreddit, fetch.Flairs{
		Upcoming: cfg.Flairs.Upcoming.Search,
		Excluded: cfg.Flairs.Excluded(),
	}, log)
	if err != nil {
		return nil, err
	}

	titles, err := pipeline.New(pipeline.Options{
		Ledger:      ledger,
		Classifier:  classifier,
		Moderator:   api,
		Messages:    pipeline.Messages{Format: cfg.Title.FormatMessage, Time: cfg.Title.TimeMessage},
		Upcoming:    cfg.Flairs.Upcoming,
		Retention:   cfg.Retention,
		Subreddit:   cfg.Subreddit,
		Concurrency: cfg.Pipeline.Concurrency,
		Logger:      log,
	})
	if err != nil {
		return nil, err
	}

	completed, err := pipeline.NewCompletedPass(pipeline.CompletedOptions{
		Classifier:  classifier,
		Flairs:      api,
		Completed:   cfg.Flairs.Completed,
		Subreddit:   cfg.Subreddit,
		Concurrency: cfg.Pipeline.Concurrency,
		Logger:      log,
	})
	if err != nil {
		return nil, err
	}

	return New(Options{
		Subreddit: cfg.Subreddit,
		Limit:     cfg.Fetch.Limit,
		Fetcher:   fetcher,
		Titles:    titles,
		Completed: completed,
		Logger:    log,
	})
}

// RunOnce checks unflaired titles, completes past upcoming posts, then sweeps
// the ledger. A fetch failure or a failed sweep ends the run with an error;
// everything else is logged and counted in the report.
func (b *Bot) RunOnce(ctx context.Context) (RunReport, error) {
	rep := RunReport{
		RunID:     uuid.NewString(),
		Subreddit: b.subreddit,
		StartedAt: b.now(),
	}
	log := b.log.With(zap.String("run_id", rep.RunID))
	log.Info("run started", zap.String("subreddit", b.subreddit), zap.Int("limit", b.limit))

	finish := func(err error) (RunReport, error) {
		rep.FinishedAt = b.now()
		if err != nil {
			log.Error("run failed", zap.Error(err), zap.Duration("took", rep.Duration()))
			return rep, err
		}
		log.Info("run finished",
			zap.Int("checked", rep.Titles.Recorded),
			zap.Int("completed", rep.Completed.Flaired),
			zap.Int64("pruned", rep.Pruned),
			zap.Duration("took", rep.Duration()),
		)
		return rep, nil
	}

	unflaired, err := b.fetcher.FetchUnflaired(ctx, b.limit)
	if err != nil {
		return finish(fmt.Errorf("fetch unflaired posts: %w", err))
	}
	rep.Unflaired = len(unflaired)

	rep.Titles, err = b.titles.ProcessPosts(ctx, unflaired)
	if err != nil {
		return finish(fmt.Errorf("process titles: %w", err))
	}

	upcoming, err := b.fetcher.FetchUpcoming(ctx, b.limit)
	if err != nil {
		return finish(fmt.Errorf("fetch upcoming posts: %w", err))
	}
	rep.Upcoming = len(upcoming)
	rep.Completed = b.completed.ProcessPosts(ctx, upcoming)

	rep.Pruned, err = b.titles.RemoveOldChecks(ctx)
	if err != nil {
		return finish(err)
	}

	return finish(nil)
}
