package pipeline

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/sourcegraph/conc/pool"
	"go.uber.org/zap"

	"github.com/ppiankov/flaircheck/internal/classify"
	"github.com/ppiankov/flaircheck/internal/config"
	"github.com/ppiankov/flaircheck/internal/reddit"
)

// FlairSetter is the one remote call the completed pass needs.
type FlairSetter interface {
	SetFlair(ctx context.Context, subreddit, link, class, text string) error
}

// CompletedPass moves upcoming posts whose scheduled time has passed to the
// completed flair. It keeps no ledger; a post leaves the upcoming search as
// soon as its flair changes.
type CompletedPass struct {
	classifier  *classify.Classifier
	flairs      FlairSetter
	completed   config.Flair
	subreddit   string
	concurrency int
	now         func() time.Time
	log         *zap.Logger
}

type CompletedOptions struct {
	Classifier  *classify.Classifier
	Flairs      FlairSetter
	Completed   config.Flair
	Subreddit   string
	Concurrency int
	Now         func() time.Time
	Logger      *zap.Logger
}

func NewCompletedPass(opts CompletedOptions) (*CompletedPass, error) {
	if opts.Classifier == nil {
		return nil, errors.New("completed pass: classifier is required")
	}
	if opts.Flairs == nil {
		return nil, errors.New("completed pass: flair setter is required")
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = config.DefaultConcurrency
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &CompletedPass{
		classifier:  opts.Classifier,
		flairs:      opts.Flairs,
		completed:   opts.Completed,
		subreddit:   opts.Subreddit,
		concurrency: opts.Concurrency,
		now:         opts.Now,
		log:         opts.Logger.Named("completed"),
	}, nil
}

// CompletedReport counts what one completed pass did.
type CompletedReport struct {
	Received int
	Flaired  int
	Pending  int // still in the future
	Invalid  int
	Failed   int
}

// ProcessPosts flairs every post whose title date is at or before now. All
// posts are attempted; failures are logged and counted.
func (c *CompletedPass) ProcessPosts(ctx context.Context, posts []reddit.Post) CompletedReport {
	var flaired, pending, invalid, failed atomic.Int64

	c.log.Info("processing upcoming posts", zap.Int("count", len(posts)))

	workers := pool.New().WithMaxGoroutines(c.concurrency)
	for _, post := range posts {
		post := post
		workers.Go(func() {
			now := c.now()
			at, err := c.classifier.ScheduledAt(post.Title, now)
			if err != nil {
				invalid.Add(1)
				c.log.Error("upcoming post has an invalid title",
					zap.String("post", post.Name),
					zap.String("title", post.Title),
					zap.Error(err),
				)
				return
			}
			if at.After(now) {
				pending.Add(1)
				return
			}

			sub := post.Subreddit
			if sub == "" {
				sub = c.subreddit
			}
			if err := c.flairs.SetFlair(ctx, sub, post.Name, c.completed.Class, c.completed.Text); err != nil {
				failed.Add(1)
				c.log.Error("failed to set completed flair",
					zap.Error(&EffectError{Effect: "flair", Post: post.Name, Err: err}),
				)
				return
			}
			flaired.Add(1)
			c.log.Info("set completed flair",
				zap.String("post", post.Name),
				zap.Time("scheduled", at),
			)
		})
	}
	workers.Wait()

	return CompletedReport{
		Received: len(posts),
		Flaired:  int(flaired.Load()),
		Pending:  int(pending.Load()),
		Invalid:  int(invalid.Load()),
		Failed:   int(failed.Load()),
	}
}
