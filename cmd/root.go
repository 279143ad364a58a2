package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/InhaCentury20/pass/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "pass",
	Short: "Housing subscription notice crawler and extractor",
	Long:  "Crawls housing subscription notices, extracts price tables, eligibility criteria and schedules from their documents, and writes them to Postgres.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
