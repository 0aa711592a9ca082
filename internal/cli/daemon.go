package cli

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ppiankov/flaircheck/internal/bot"
	"github.com/ppiankov/flaircheck/internal/config"
)

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Run moderation passes on the configured schedule until interrupted",
	RunE:  daemonAction,
}

func init() {
	rootCmd.AddCommand(daemonCmd)
}

func daemonAction(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := openApp(ctx, true)
	if err != nil {
		return err
	}
	defer a.close()

	return runScheduler(ctx, a.bot, a.cfg.Schedule, a.log)
}

func runScheduler(ctx context.Context, runner bot.Runner, cfg config.ScheduleConfig, log *zap.Logger) error {
	sched, err := bot.NewScheduler(runner, cfg, log)
	if err != nil {
		return err
	}
	sched.OnReport = func(rep bot.RunReport, err error) {
		if err != nil {
			// RunOnce already logged the cause with its run id.
			return
		}
		log.Debug("run report",
			zap.String("run_id", rep.RunID),
			zap.Int("invalid", rep.Titles.Invalid),
			zap.Int("past", rep.Titles.Past),
			zap.Int("effect_failures", len(rep.Titles.EffectFailures)),
		)
	}
	return sched.Run(ctx)
}
