package main

import (
	"context"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/tokendash/tokendash/internal/runlog"
	"github.com/tokendash/tokendash/pkg/artemis"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Run data sync jobs",
}

func init() {
	rootCmd.AddCommand(syncCmd)
}

// runJob wraps one sync job with run log bookkeeping. The job's own error
// is always the one returned; log failures only warn.
func runJob(ctx context.Context, job string, fn func(context.Context) (*runlog.Summary, error)) error {
	store, err := runlog.Open(cfg.Runlog.Path)
	if err != nil {
		return err
	}
	defer store.Close() //nolint:errcheck
	if err := store.Migrate(ctx); err != nil {
		return err
	}

	run, err := store.StartRun(ctx, job)
	if err != nil {
		return err
	}

	summary, jobErr := fn(ctx)
	if jobErr != nil {
		if ferr := store.FailRun(ctx, run.ID, jobErr.Error()); ferr != nil {
			zap.L().Warn("recording run failure failed", zap.Error(ferr))
		}
		return jobErr
	}
	if cerr := store.CompleteRun(ctx, run.ID, summary); cerr != nil {
		zap.L().Warn("recording run completion failed", zap.Error(cerr))
	}
	return nil
}

func newArtemisClient() (artemis.Client, error) {
	if cfg.Artemis.APIKey == "" {
		return nil, eris.New("artemis api key not configured (set TOKENDASH_ARTEMIS_API_KEY)")
	}
	var opts []artemis.Option
	if cfg.Artemis.BaseURL != "" {
		opts = append(opts, artemis.WithBaseURL(cfg.Artemis.BaseURL))
	}
	return artemis.NewClient(cfg.Artemis.APIKey, opts...), nil
}
