package bot

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/ppiankov/flaircheck/internal/config"
)

// Runner is one unit of scheduled work.
type Runner interface {
	RunOnce(ctx context.Context) (RunReport, error)
}

// Scheduler runs a Runner on a cron spec. A tick that arrives while the
// previous run is still going is skipped.
type Scheduler struct {
	cron         *cron.Cron
	chain        cron.Chain
	runner       Runner
	spec         string
	runAtStartup bool
	log          *zap.Logger

	// OnReport, when set, receives every finished run.
	OnReport func(RunReport, error)
}

func NewScheduler(runner Runner, cfg config.ScheduleConfig, log *zap.Logger) (*Scheduler, error) {
	if runner == nil {
		return nil, errors.New("scheduler: runner is required")
	}
	if log == nil {
		log = zap.NewNop()
	}
	spec := cfg.Cron
	if spec == "" {
		spec = config.DefaultCron
	}

	logger := cronLogger{log.Named("cron").Sugar()}
	c := cron.New(
		cron.WithLogger(logger),
		cron.WithChain(cron.Recover(logger)),
	)

	return &Scheduler{
		cron:         c,
		chain:        cron.NewChain(cron.SkipIfStillRunning(logger)),
		runner:       runner,
		spec:         spec,
		runAtStartup: cfg.RunAtStartup,
		log:          log.Named("scheduler"),
	}, nil
}

// Run blocks until ctx is done, then waits for an in-flight run to finish.
func (s *Scheduler) Run(ctx context.Context) error {
	// One wrapped job shared by every entry, so all of them skip together.
	job := s.chain.Then(cron.FuncJob(func() { s.runOnce(ctx) }))
	if _, err := s.cron.AddJob(s.spec, job); err != nil {
		return err
	}

	s.cron.Start()
	s.log.Info("scheduler started", zap.String("spec", s.spec))

	if s.runAtStartup {
		s.cron.Schedule(&onceNow{}, job)
	}

	<-ctx.Done()
	s.log.Info("scheduler stopping")
	<-s.cron.Stop().Done()
	s.log.Info("scheduler stopped")
	return nil
}

func (s *Scheduler) runOnce(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	rep, err := s.runner.RunOnce(ctx)
	if s.OnReport != nil {
		s.OnReport(rep, err)
	}
}

// onceNow fires immediately and never again.
type onceNow struct {
	fired atomic.Bool
}

func (o *onceNow) Next(t time.Time) time.Time {
	if o.fired.Swap(true) {
		return time.Time{}
	}
	return t
}
