package main

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/tokendash/tokendash/internal/runlog"
)

var statusLimit int

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show recent sync runs",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		store, err := runlog.Open(cfg.Runlog.Path)
		if err != nil {
			return err
		}
		defer store.Close() //nolint:errcheck
		if err := store.Migrate(ctx); err != nil {
			return err
		}

		runs, err := store.Recent(ctx, statusLimit)
		if err != nil {
			return err
		}
		if len(runs) == 0 {
			fmt.Println("no runs recorded")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "STARTED\tJOB\tSTATUS\tDURATION\tCELLS\tDETAIL")
		for _, run := range runs {
			duration := "-"
			if run.FinishedAt != nil {
				duration = run.FinishedAt.Sub(run.StartedAt).Round(time.Second).String()
			}
			cells := "-"
			detail := ""
			if run.Summary != nil {
				cells = fmt.Sprintf("%d", run.Summary.Cells)
				if run.Summary.Failed > 0 {
					detail = fmt.Sprintf("%d series failed", run.Summary.Failed)
				}
			}
			if run.Error != "" {
				detail = run.Error
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
				run.StartedAt.Local().Format("2006-01-02 15:04:05"),
				run.Job, run.Status, duration, cells, detail,
			)
		}
		return w.Flush()
	},
}

func init() {
	statusCmd.Flags().IntVar(&statusLimit, "limit", 20, "number of runs to show")
	rootCmd.AddCommand(statusCmd)
}
