package main

import (
	"fmt"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/tokendash/tokendash/internal/config"
	"github.com/tokendash/tokendash/internal/ingest"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "tokendash",
	Short: "Incremental crypto dashboard data pipeline",
	Long:  "Pulls token metrics and treasury equity series from the Artemis API, scrapes published ETF flows, and maintains the CSV artifacts the dashboard reads.",
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
		// A run that produced no data at all is distinguishable for cron
		// alerting; partial failures exit zero.
		if eris.Is(err, ingest.ErrNoData) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}
