package main

import (
	"encoding/json"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/InhaCentury20/pass/internal/config"
	"github.com/InhaCentury20/pass/internal/model"
	"github.com/InhaCentury20/pass/internal/store"
)

var extractCmd = &cobra.Command{
	Use:   "extract",
	Short: "Re-run extraction for stored announcements",
	Long: `Derives prices, eligibility, schedule and tiers for announcements already
in the database and writes them back.

Examples:
  # One announcement
  extract --id 42

  # Everything never extracted, e.g. after a failed run
  extract --pending

  # Everything, newest extraction rules
  extract --all --limit 500`,
	RunE: runExtract,
}

func init() {
	f := extractCmd.Flags()
	f.Int64("id", 0, "announcement id to extract")
	f.Bool("pending", false, "extract announcements without derived fields")
	f.Bool("all", false, "extract every announcement")
	f.Int("limit", 0, "maximum announcements to process (0 = no limit)")
	extractCmd.MarkFlagsMutuallyExclusive("id", "pending", "all")
	extractCmd.MarkFlagsOneRequired("id", "pending", "all")

	rootCmd.AddCommand(extractCmd)
}

func runExtract(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := cfg.Validate(config.ScopeExtract); err != nil {
		return err
	}

	id, _ := cmd.Flags().GetInt64("id")
	pending, _ := cmd.Flags().GetBool("pending")
	all, _ := cmd.Flags().GetBool("all")
	limit, _ := cmd.Flags().GetInt("limit")

	log := zap.L().With(zap.String("command", "extract"), zap.String("run_id", uuid.NewString()))

	st, err := initStore(ctx)
	if err != nil {
		return eris.Wrap(err, "extract: init store")
	}
	defer st.Close() //nolint:errcheck

	var announcements []model.Announcement
	if id > 0 {
		a, err := st.GetAnnouncement(ctx, id)
		if err != nil {
			return err
		}
		if a == nil {
			return eris.Errorf("extract: announcement %d not found", id)
		}
		announcements = []model.Announcement{*a}
	} else {
		announcements, err = st.ListAnnouncements(ctx, store.ListOpts{Pending: pending, All: all, Limit: limit})
		if err != nil {
			return err
		}
	}
	log.Info("extract: announcements selected", zap.Int("count", len(announcements)))

	p := newPipeline(newFetcher(cfg.Crawl), st)
	stats, err := p.Run(ctx, announcements)

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if encErr := enc.Encode(stats); encErr != nil {
		return eris.Wrap(encErr, "extract: encode stats")
	}
	return err
}
