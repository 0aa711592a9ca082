// Package pipeline applies title-check moderation to a batch of posts exactly
// once per post, using the ledger as the only record of what was processed.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sourcegraph/conc/panics"
	"github.com/sourcegraph/conc/pool"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ppiankov/flaircheck/internal/classify"
	"github.com/ppiankov/flaircheck/internal/config"
	"github.com/ppiankov/flaircheck/internal/reddit"
	"github.com/ppiankov/flaircheck/internal/store"
)

// Moderator is the set of remote side effects a run may apply to a post.
type Moderator interface {
	Comment(ctx context.Context, thingID, text string) error
	SetFlair(ctx context.Context, subreddit, link, class, text string) error
	Remove(ctx context.Context, id string, spam bool) error
}

// Messages are the comment bodies left on rejected posts.
type Messages struct {
	Format string // title did not match
	Time   string // scheduled time already passed
}

// EffectError is one failed side effect. It is logged and counted, never
// returned from ProcessPosts.
type EffectError struct {
	Effect string // comment, remove, flair
	Post   string
	Err    error
}

func (e *EffectError) Error() string {
	return fmt.Sprintf("%s on %s: %v", e.Effect, e.Post, e.Err)
}

func (e *EffectError) Unwrap() error { return e.Err }

type Options struct {
	Ledger     store.Ledger
	Classifier *classify.Classifier
	Moderator  Moderator
	Messages   Messages
	Upcoming   config.Flair
	Retention  config.Span
	// Subreddit is used for flair calls when a post does not name its own.
	Subreddit   string
	Concurrency int
	Now         func() time.Time
	Logger      *zap.Logger
}

// Pipeline is safe to reuse across runs but a single ProcessPosts call owns
// its Report.
type Pipeline struct {
	ledger      store.Ledger
	classifier  *classify.Classifier
	mod         Moderator
	messages    Messages
	upcoming    config.Flair
	retention   config.Span
	subreddit   string
	concurrency int
	now         func() time.Time
	log         *zap.Logger
}

func New(opts Options) (*Pipeline, error) {
	if opts.Ledger == nil {
		return nil, errors.New("pipeline: ledger is required")
	}
	if opts.Classifier == nil {
		return nil, errors.New("pipeline: classifier is required")
	}
	if opts.Moderator == nil {
		return nil, errors.New("pipeline: moderator is required")
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
	return &Pipeline{
		ledger:      opts.Ledger,
		classifier:  opts.Classifier,
		mod:         opts.Moderator,
		messages:    opts.Messages,
		upcoming:    opts.Upcoming,
		retention:   opts.Retention,
		subreddit:   opts.Subreddit,
		concurrency: opts.Concurrency,
		now:         opts.Now,
		log:         opts.Logger.Named("pipeline"),
	}, nil
}

// ProcessPosts filters out posts already in the ledger, classifies the rest,
// records each classified post and applies its side effects. Posts run
// concurrently and independently. The returned error is non-nil only when
// the filter stage itself could not complete.
func (p *Pipeline) ProcessPosts(ctx context.Context, posts []reddit.Post) (Report, error) {
	rep := &tally{r: Report{Received: len(posts)}}

	fresh, err := p.filter(ctx, posts, rep)
	if err != nil {
		return rep.snapshot(), err
	}

	workers := pool.New().WithMaxGoroutines(p.concurrency)
	for _, post := range fresh {
		post := post
		workers.Go(func() {
			var pc panics.Catcher
			pc.Try(func() { p.processPost(ctx, post, rep) })
			if rec := pc.Recovered(); rec != nil {
				rep.add(func(r *Report) { r.Panics++ })
				p.log.Error("post processing panicked",
					zap.String("post", post.Name),
					zap.Error(rec.AsError()),
				)
			}
		})
	}
	workers.Wait()

	return rep.snapshot(), nil
}

// filter runs one ledger lookup per post, all at once, and keeps posts with
// no record. A failed lookup drops the post for this run.
func (p *Pipeline) filter(ctx context.Context, posts []reddit.Post, rep *tally) ([]reddit.Post, error) {
	keep := make([]bool, len(posts))

	g, gctx := errgroup.WithContext(ctx)
	for i, post := range posts {
		i, post := i, post
		g.Go(func() error {
			rec, err := p.ledger.Find(gctx, post.Name)
			if err != nil {
				if ctxErr := gctx.Err(); ctxErr != nil {
					return ctxErr
				}
				rep.add(func(r *Report) { r.LookupFailed++ })
				p.log.Error("ledger lookup failed, skipping post",
					zap.String("post", post.Name),
					zap.Error(err),
				)
				return nil
			}
			if rec != nil {
				rep.add(func(r *Report) { r.AlreadyProcessed++ })
				return nil
			}
			keep[i] = true
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("filter processed posts: %w", err)
	}

	out := make([]reddit.Post, 0, len(posts))
	for i, post := range posts {
		if keep[i] {
			out = append(out, post)
		}
	}
	return out, nil
}

func (p *Pipeline) processPost(ctx context.Context, post reddit.Post, rep *tally) {
	now := p.now()
	outcome := p.classifier.Classify(post, now)

	p.log.Debug("classified post",
		zap.String("post", post.Name),
		zap.String("title", post.Title),
		zap.String("outcome", string(outcome.Kind())),
	)

	outcome.Accept(&dispatcher{p: p, ctx: ctx, post: post, now: now, rep: rep})
}

// RemoveOldChecks deletes ledger records older than the retention horizon.
func (p *Pipeline) RemoveOldChecks(ctx context.Context) (int64, error) {
	if p.retention.IsZero() {
		return 0, errors.New("pipeline: retention is not configured")
	}
	threshold := p.retention.Before(p.now())
	n, err := p.ledger.DeleteBefore(ctx, threshold)
	if err != nil {
		return 0, fmt.Errorf("remove old checks: %w", err)
	}
	p.log.Info("removed old checks",
		zap.Int64("removed", n),
		zap.Time("before", threshold),
		zap.Stringer("retention", p.retention),
	)
	return n, nil
}

// dispatcher turns one outcome into its ledger write and effect bundle.
type dispatcher struct {
	p    *Pipeline
	ctx  context.Context
	post reddit.Post
	now  time.Time
	rep  *tally
}

var _ classify.Handler = (*dispatcher)(nil)

func (d *dispatcher) WithinGracePeriod(o classify.WithinGracePeriod) {
	d.rep.add(func(r *Report) { r.Grace++ })
	d.p.log.Info("post within grace period, skipping",
		zap.String("post", d.post.Name),
		zap.Duration("age", o.Age),
	)
}

func (d *dispatcher) ValidSchedule(o classify.ValidSchedule) {
	d.rep.add(func(r *Report) { r.Valid++ })
	if !d.record() {
		return
	}
	d.p.log.Info("title is valid, setting upcoming flair",
		zap.String("post", d.post.Name),
		zap.Time("scheduled", o.At),
	)
	d.run(effect{"flair", func(ctx context.Context) error {
		return d.p.mod.SetFlair(ctx, d.subreddit(), d.post.Name, d.p.upcoming.Class, d.p.upcoming.Text)
	}})
}

func (d *dispatcher) PastSchedule(o classify.PastSchedule) {
	d.rep.add(func(r *Report) { r.Past++ })
	if !d.record() {
		return
	}
	d.p.log.Info("scheduled time has passed, removing post",
		zap.String("post", d.post.Name),
		zap.Time("scheduled", o.At),
	)
	d.reject(d.p.messages.Time)
}

func (d *dispatcher) InvalidFormat(o classify.InvalidFormat) {
	d.rep.add(func(r *Report) { r.Invalid++ })
	if !d.record() {
		return
	}
	d.p.log.Info("title format is invalid, removing post",
		zap.String("post", d.post.Name),
		zap.String("title", d.post.Title),
		zap.NamedError("reason", o.Reason),
	)
	d.reject(d.p.messages.Format)
}

// record writes the ledger entry before any effect runs. When it fails the
// post gets no effects this run.
func (d *dispatcher) record() bool {
	if err := d.p.ledger.Insert(d.ctx, d.post.Name, d.now); err != nil {
		d.rep.add(func(r *Report) { r.RecordFailed++ })
		d.p.log.Error("ledger insert failed, skipping effects",
			zap.String("post", d.post.Name),
			zap.Error(err),
		)
		return false
	}
	d.rep.add(func(r *Report) { r.Recorded++ })
	return true
}

func (d *dispatcher) reject(message string) {
	d.run(
		effect{"comment", func(ctx context.Context) error {
			return d.p.mod.Comment(ctx, d.post.Name, message)
		}},
		effect{"remove", func(ctx context.Context) error {
			return d.p.mod.Remove(ctx, d.post.Name, false)
		}},
	)
}

func (d *dispatcher) subreddit() string {
	if d.post.Subreddit != "" {
		return d.post.Subreddit
	}
	return d.p.subreddit
}

type effect struct {
	name string
	do   func(ctx context.Context) error
}

// run starts every effect and waits for all of them. Failures are logged and
// counted; none stops a sibling.
func (d *dispatcher) run(effects ...effect) {
	group := pool.New().WithErrors()
	for _, e := range effects {
		e := e
		group.Go(func() error {
			if err := e.do(d.ctx); err != nil {
				effErr := &EffectError{Effect: e.name, Post: d.post.Name, Err: err}
				d.rep.add(func(r *Report) { r.EffectFailures = append(r.EffectFailures, effErr) })
				d.p.log.Warn("effect failed", zap.Error(effErr))
				return effErr
			}
			d.rep.add(func(r *Report) { r.EffectsApplied++ })
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		d.p.log.Debug("post finished with effect failures", zap.String("post", d.post.Name))
	}
}

// Report counts what one ProcessPosts call did.
type Report struct {
	Received         int
	AlreadyProcessed int
	LookupFailed     int
	Grace            int
	Valid            int
	Past             int
	Invalid          int
	Recorded         int
	RecordFailed     int
	EffectsApplied   int
	EffectFailures   []*EffectError
	Panics           int
}

// tally guards the Report shared by the workers of one call.
type tally struct {
	mu sync.Mutex
	r  Report
}

func (t *tally) add(f func(*Report)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	f(&t.r)
}

func (t *tally) snapshot() Report {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := t.r
	out.EffectFailures = append([]*EffectError(nil), t.r.EffectFailures...)
	return out
}
