package main

import (
	"encoding/json"
	"os"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/InhaCentury20/pass/internal/config"
)

var crawlCmd = &cobra.Command{
	Use:   "crawl",
	Short: "Crawl new notices from the SOCO board",
	Long: `Walks the SOCO notice board newest first until the stored checkpoint,
then stores and extracts every new notice in ascending listing order.

The checkpoint advances only past posts that were fully visited. A failed
fetch ends the run; the next run resumes from the failing post.`,
	RunE: runCrawlCmd,
}

func init() {
	f := crawlCmd.Flags()
	f.Int("max-pages", -1, "cap on list pages walked (-1 = use config)")
	f.Bool("no-extract", false, "store announcements without extracting derived fields")

	rootCmd.AddCommand(crawlCmd)
}

func runCrawlCmd(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := cfg.Validate(config.ScopeCrawl); err != nil {
		return err
	}

	maxPages, _ := cmd.Flags().GetInt("max-pages")
	if maxPages < 0 {
		maxPages = cfg.Crawl.MaxPages
	}
	noExtract, _ := cmd.Flags().GetBool("no-extract")

	st, err := initStore(ctx)
	if err != nil {
		return eris.Wrap(err, "crawl: init store")
	}
	defer st.Close() //nolint:errcheck

	res, runErr := runCrawl(ctx, st, maxPages, !noExtract)
	if res != nil {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(res); err != nil {
			return eris.Wrap(err, "crawl: encode result")
		}
	}
	return runErr
}
