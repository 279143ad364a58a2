package main

import (
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/InhaCentury20/pass/internal/config"
)

var checkpointCmd = &cobra.Command{
	Use:   "checkpoint",
	Short: "Inspect the crawl checkpoint",
}

var checkpointShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the sink maximum and the local checkpoint",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		if err := cfg.Validate(config.ScopeStore); err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		st, err := initStore(ctx)
		if err != nil {
			return eris.Wrap(err, "checkpoint: init store")
		}
		defer st.Close() //nolint:errcheck

		top, err := st.MaxListingNumber(ctx)
		switch {
		case err != nil:
			fmt.Fprintf(out, "sink:  unavailable (%v)\n", err)
		case top == nil:
			fmt.Fprintln(out, "sink:  empty")
		default:
			fmt.Fprintf(out, "sink:  %d\n", *top)
		}

		local, closer, err := openCheckpointStore(ctx, cfg.Crawl)
		if err != nil {
			return err
		}
		defer closer.Close() //nolint:errcheck

		v, ok, err := local.Read(ctx)
		switch {
		case err != nil:
			fmt.Fprintf(out, "local: unreadable (%v)\n", err)
		case !ok:
			fmt.Fprintf(out, "local: none (%s)\n", cfg.Crawl.CheckpointBackend)
		default:
			fmt.Fprintf(out, "local: %d (%s)\n", v, cfg.Crawl.CheckpointBackend)
		}
		return nil
	},
}

func init() {
	checkpointCmd.AddCommand(checkpointShowCmd)
	rootCmd.AddCommand(checkpointCmd)
}
