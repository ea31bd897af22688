package ingest

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/tokendash/tokendash/internal/table"
	"github.com/tokendash/tokendash/pkg/artemis"
)

// CoinSyncConfig configures the token metrics sync.
type CoinSyncConfig struct {
	Tokens  []string // entity tickers, normalized to uppercase columns
	Metrics []string // series to maintain, in output order
	CSVPath string
}

// CoinSync maintains the wide token table: one row per (date, metric), one
// column per token.
type CoinSync struct {
	cfg    CoinSyncConfig
	client artemis.Client
}

// NewCoinSync creates the token sync job.
func NewCoinSync(cfg CoinSyncConfig, client artemis.Client) *CoinSync {
	return &CoinSync{cfg: cfg, client: client}
}

// Run loads the persisted table, extends every metric series from its
// resume point through today, and rewrites the table. A metric that fails
// to fetch is skipped and reported; the run only fails outright when no
// metric produced data.
func (s *CoinSync) Run(ctx context.Context) (*Result, error) {
	log := zap.L().With(zap.String("job", "coins"))

	tokens := make([]string, len(s.cfg.Tokens))
	for i, tok := range s.cfg.Tokens {
		tokens[i] = table.NormalizeEntity(tok)
	}

	tbl, err := table.Load(s.cfg.CSVPath)
	if err != nil {
		return nil, err
	}
	log.Info("loaded table", zap.Int("rows", tbl.Len()))

	end := FetchEnd()
	result := &Result{}

	for _, metric := range s.cfg.Metrics {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		start, err := FetchStart(tbl, metric, tokens)
		if err != nil {
			return nil, err
		}
		if start > end {
			log.Debug("series already current", zap.String("metric", metric))
			result.Skipped = append(result.Skipped, metric)
			continue
		}

		log.Info("fetching series",
			zap.String("metric", metric),
			zap.String("start", start),
			zap.String("end", end),
		)
		points, err := s.client.FetchMetrics(ctx, metric, tokens, start, end)
		if err != nil {
			log.Warn("series fetch failed, continuing with others",
				zap.String("metric", metric), zap.Error(err))
			result.Failed++
			result.Skipped = append(result.Skipped, fmt.Sprintf("%s: %v", metric, err))
			continue
		}
		result.Fetched++
		result.Cells += Merge(tbl, metric, points)
	}

	if result.Fetched == 0 && result.Failed > 0 {
		return nil, ErrNoData
	}

	if err := table.Write(s.cfg.CSVPath, tbl, s.cfg.Metrics, tokens); err != nil {
		return nil, err
	}
	log.Info("wrote table",
		zap.String("path", s.cfg.CSVPath),
		zap.Int("rows", tbl.Len()),
		zap.Int("cells_merged", result.Cells),
	)
	return result, nil
}
