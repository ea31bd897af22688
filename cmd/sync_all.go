package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var syncAllCmd = &cobra.Command{
	Use:   "all",
	Short: "Run every sync job",
	Long:  "Runs coins, treasuries, and etfflows in order. A failing job does not stop the others; the first failure is reported after all jobs have run.",
	RunE: func(cmd *cobra.Command, args []string) error {
		jobs := []struct {
			name string
			cmd  *cobra.Command
		}{
			{"coins", syncCoinsCmd},
			{"treasuries", syncTreasuriesCmd},
			{"etfflows", syncETFFlowsCmd},
		}

		var firstErr error
		for _, job := range jobs {
			if err := job.cmd.RunE(cmd, nil); err != nil {
				zap.L().Error("sync job failed", zap.String("job", job.name), zap.Error(err))
				if firstErr == nil {
					firstErr = err
				}
			}
		}
		return firstErr
	},
}

func init() {
	syncCmd.AddCommand(syncAllCmd)
}
