package main

import (
	"context"
	"errors"
	"os/signal"
	"syscall"

	"github.com/robfig/cron/v3"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/InhaCentury20/pass/internal/config"
	"github.com/InhaCentury20/pass/internal/crawl"
	"github.com/InhaCentury20/pass/internal/store"
)

var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Run the crawl on a cron schedule",
	Long: `Runs the crawl in-process on the configured cron spec (default "@every 6h")
until interrupted. A tick that finds a crawl still running is skipped.`,
	RunE: runSchedule,
}

func init() {
	f := scheduleCmd.Flags()
	f.String("spec", "", "cron spec (overrides config)")
	f.Bool("now", false, "run one crawl immediately before the first tick")

	rootCmd.AddCommand(scheduleCmd)
}

func runSchedule(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if spec, _ := cmd.Flags().GetString("spec"); spec != "" {
		cfg.Schedule.Spec = spec
	}
	if err := cfg.Validate(config.ScopeSchedule); err != nil {
		return err
	}
	now, _ := cmd.Flags().GetBool("now")

	st, err := initStore(ctx)
	if err != nil {
		return eris.Wrap(err, "schedule: init store")
	}
	defer st.Close() //nolint:errcheck

	log := zap.L().With(zap.String("command", "schedule"), zap.String("spec", cfg.Schedule.Spec))

	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	if _, err := c.AddFunc(cfg.Schedule.Spec, func() { scheduledCrawl(ctx, st, log) }); err != nil {
		return eris.Wrapf(err, "schedule: parse spec %q", cfg.Schedule.Spec)
	}

	if now {
		scheduledCrawl(ctx, st, log)
	}

	c.Start()
	log.Info("schedule: started")
	<-ctx.Done()

	// Wait for a running crawl to persist its checkpoint.
	<-c.Stop().Done()
	log.Info("schedule: stopped")
	return nil
}

func scheduledCrawl(ctx context.Context, st *store.PostgresStore, log *zap.Logger) {
	if ctx.Err() != nil {
		return
	}
	res, err := runCrawl(ctx, st, cfg.Crawl.MaxPages, true)
	switch {
	case errors.Is(err, crawl.ErrLocked):
		log.Warn("schedule: crawl already running elsewhere, tick skipped")
	case err != nil:
		log.Error("schedule: crawl failed", zap.Error(err))
	default:
		log.Info("schedule: crawl finished",
			zap.String("run_id", res.RunID),
			zap.Int("saved", res.Saved),
			zap.Int64("running", res.Running),
		)
	}
}
