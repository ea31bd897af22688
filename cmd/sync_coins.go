package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/tokendash/tokendash/internal/ingest"
	"github.com/tokendash/tokendash/internal/runlog"
)

var syncCoinsCmd = &cobra.Command{
	Use:   "coins",
	Short: "Extend the token metrics table from the API",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newArtemisClient()
		if err != nil {
			return err
		}
		return runJob(cmd.Context(), "coins", func(ctx context.Context) (*runlog.Summary, error) {
			sync := ingest.NewCoinSync(ingest.CoinSyncConfig{
				Tokens:  cfg.Coins.Tokens,
				Metrics: cfg.Coins.Metrics,
				CSVPath: cfg.Data.TokenCSV(),
			}, client)
			result, err := sync.Run(ctx)
			if err != nil {
				return nil, err
			}
			return &runlog.Summary{
				Cells:   result.Cells,
				Fetched: result.Fetched,
				Failed:  result.Failed,
			}, nil
		})
	},
}

func init() {
	syncCmd.AddCommand(syncCoinsCmd)
}
