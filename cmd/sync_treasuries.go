package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/tokendash/tokendash/internal/ingest"
	"github.com/tokendash/tokendash/internal/runlog"
)

var syncTreasuriesCmd = &cobra.Command{
	Use:   "treasuries",
	Short: "Extend the treasury equities table from the API",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newArtemisClient()
		if err != nil {
			return err
		}
		derived, err := ingest.LoadDerivedSpecs(cfg.Treasuries.SpecsFile)
		if err != nil {
			return err
		}
		return runJob(cmd.Context(), "treasuries", func(ctx context.Context) (*runlog.Summary, error) {
			sync := ingest.NewTreasurySync(ingest.TreasurySyncConfig{
				Equities:           cfg.Treasuries.Equities,
				Labels:             cfg.Treasuries.Labels,
				Derived:            derived,
				CSVPath:            cfg.Data.TreasuryCSV(),
				MappingPath:        cfg.Data.MappingJSON(),
				LegacyMappingPaths: cfg.Data.LegacyMappingJSON(),
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
	syncCmd.AddCommand(syncTreasuriesCmd)
}
