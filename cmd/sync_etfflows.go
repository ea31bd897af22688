package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/tokendash/tokendash/internal/etfflow"
	"github.com/tokendash/tokendash/internal/runlog"
)

var syncETFFlowsCmd = &cobra.Command{
	Use:   "etfflows",
	Short: "Rebuild the ETF flow table from the scraped source",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runJob(cmd.Context(), "etfflows", func(ctx context.Context) (*runlog.Summary, error) {
			sync := etfflow.NewFlowSync(etfflow.FlowSyncConfig{
				BTCURLs:        cfg.ETF.BTCURLs,
				ETHURLs:        cfg.ETF.ETHURLs,
				BTCTickers:     cfg.ETF.BTCTickers,
				ETHTickers:     cfg.ETF.ETHTickers,
				CSVPath:        cfg.Data.ETFCSV(),
				ValidationPath: cfg.Data.ETFValidation(),
			})
			result, err := sync.Run(ctx)
			if err != nil {
				return nil, err
			}
			return &runlog.Summary{Cells: result.Rows, Fetched: 2}, nil
		})
	},
}

func init() {
	syncCmd.AddCommand(syncETFFlowsCmd)
}
