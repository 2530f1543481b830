package main

import (
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/radar-cli/internal/feed"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Poll configured feeds and store new items",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		if err := cfg.Validate("ingest"); err != nil {
			return err
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		items := feed.NewPollerFromConfig(cfg.Feed, cfg.Sources).Poll(ctx)
		n, err := st.UpsertItems(ctx, items)
		if err != nil {
			return eris.Wrap(err, "ingest: upsert items")
		}

		zap.L().Info("ingest complete",
			zap.Int("sources", len(cfg.Sources)),
			zap.Int("fetched", len(items)),
			zap.Int("new", n),
		)
		fmt.Fprintf(cmd.OutOrStdout(), "Fetched %d items, %d new\n", len(items), n)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(ingestCmd)
}
