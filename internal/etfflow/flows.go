package etfflow

import (
	"context"
	"fmt"
	"math"
	"regexp"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/rotisserie/eris"

	"github.com/tokendash/tokendash/internal/table"
)

// Series names written to the flow table.
const (
	NetFlowSeries    = "etf_net_flow_usd_millions"
	CumulativeSeries = "etf_cumulative_net_flow_usd_millions"
)

// Default source pages, with alternates in case the all-data pages move.
var (
	DefaultBTCURLs = []string{
		"https://farside.co.uk/bitcoin-etf-flow-all-data/",
		"https://farside.co.uk/btc/",
	}
	DefaultETHURLs = []string{
		"https://farside.co.uk/ethereum-etf-flow-all-data/",
		"https://farside.co.uk/eth/",
	}
)

// Authoritative USD fund ticker lists. Only columns matching these are
// summed; unit columns and the site's own totals never contribute.
var (
	DefaultBTCTickers = []string{"IBIT", "FBTC", "BITB", "ARKB", "BTCO", "EZBC", "BRRR", "HODL", "BTCW", "GBTC"}
	DefaultETHTickers = []string{"ETHA", "FETH", "ETHW", "TETH", "ETHV", "QETH", "EZET", "ETHE", "ETH"}
)

// commonExclude lists column labels never summed, matched by exact
// lowercased text.
var commonExclude = map[string]struct{}{
	"date":                    {},
	"total":                   {},
	"btc":                     {},
	"eth":                     {},
	"average":                 {},
	"maximum":                 {},
	"minimum":                 {},
	"cumulative":              {},
	"cumulative_usd_millions": {},
}

var tokenRe = regexp.MustCompile(`[A-Z0-9]+`)

func headerTokens(h string) []string {
	return tokenRe.FindAllString(strings.ToUpper(h), -1)
}

// FlowSyncConfig configures the ETF flow sync.
type FlowSyncConfig struct {
	BTCURLs    []string
	ETHURLs    []string
	BTCTickers []string
	ETHTickers []string

	CSVPath        string
	ValidationPath string
}

// FlowSync rebuilds the ETF flow table from the scraped source pages. The
// output is recomputed from scratch every run; there is no resume state.
type FlowSync struct {
	cfg        FlowSyncConfig
	transports []Transport
}

// NewFlowSync creates the flow sync job with the default transport chain.
func NewFlowSync(cfg FlowSyncConfig) *FlowSync {
	return NewFlowSyncWithTransports(cfg, NewTransports())
}

// NewFlowSyncWithTransports creates the flow sync job with an explicit
// transport chain.
func NewFlowSyncWithTransports(cfg FlowSyncConfig, transports []Transport) *FlowSync {
	if len(cfg.BTCURLs) == 0 {
		cfg.BTCURLs = DefaultBTCURLs
	}
	if len(cfg.ETHURLs) == 0 {
		cfg.ETHURLs = DefaultETHURLs
	}
	if len(cfg.BTCTickers) == 0 {
		cfg.BTCTickers = DefaultBTCTickers
	}
	if len(cfg.ETHTickers) == 0 {
		cfg.ETHTickers = DefaultETHTickers
	}
	return &FlowSync{cfg: cfg, transports: transports}
}

// assetSeries is the per-asset result of scraping one flow page: parallel
// slices in source row order.
type assetSeries struct {
	asset     string
	dates     []string
	sums      []float64
	siteTotal []float64
	hasTotal  []bool
	usedCols  []string
}

// Result summarizes one flow sync run.
type Result struct {
	Days           int
	Rows           int
	ValidationRows int
}

// Run fetches both flow pages, sums the strict ticker columns per day,
// reindexes both assets over the union date range with zero fill,
// recomputes cumulative flows, and overwrites the table and validation
// artifacts.
func (s *FlowSync) Run(ctx context.Context) (*Result, error) {
	log := zap.L().With(zap.String("job", "etfflows"))

	var btc, eth *assetSeries
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		btc, err = s.scrapeAsset(gctx, "BTC", s.cfg.BTCURLs, s.cfg.BTCTickers)
		return err
	})
	g.Go(func() error {
		var err error
		eth, err = s.scrapeAsset(gctx, "ETH", s.cfg.ETHURLs, s.cfg.ETHTickers)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	days := unionDays(btc, eth)
	if len(days) == 0 {
		return nil, eris.New("flow pages yielded no dated rows")
	}

	// Daily sums over the continuous union range; days neither page
	// mentions are zero-flow, and cumulative is rebuilt from the dailies
	// rather than trusted from the site.
	tbl := table.New()
	for _, as := range []*assetSeries{btc, eth} {
		byDate := make(map[string]float64, len(as.dates))
		for i, d := range as.dates {
			byDate[d] += as.sums[i]
		}
		cum := 0.0
		for _, day := range days {
			v := byDate[day]
			cum += v
			tbl.Upsert(day, NetFlowSeries, as.asset, round1(v))
			tbl.Upsert(day, CumulativeSeries, as.asset, round1(cum))
		}
	}

	seriesOrder := []string{CumulativeSeries, NetFlowSeries}
	if err := table.Write(s.cfg.CSVPath, tbl, seriesOrder, []string{"BTC", "ETH"}); err != nil {
		return nil, err
	}

	result := &Result{Days: len(days), Rows: tbl.Len()}
	log.Info("wrote flow table",
		zap.String("path", s.cfg.CSVPath),
		zap.Int("days", result.Days),
		zap.Int("rows", result.Rows),
	)

	n, err := s.writeValidation(btc, eth)
	if err != nil {
		return nil, err
	}
	result.ValidationRows = n
	return result, nil
}

func (s *FlowSync) scrapeAsset(ctx context.Context, asset string, urls, tickers []string) (*assetSeries, error) {
	body, err := fetchHTML(ctx, s.transports, urls)
	if err != nil {
		return nil, eris.Wrapf(err, "fetch %s flow page", asset)
	}
	grids, err := parsePage(body)
	if err != nil {
		return nil, eris.Wrapf(err, "parse %s flow page", asset)
	}
	g := pickDailyTable(grids)
	if g == nil {
		return nil, eris.Errorf("no daily flow table found on %s page", asset)
	}
	return selectSeries(g, asset, tickers)
}

// selectSeries sums the strictly matched ticker columns per dated row and
// captures the site's own total column for the audit artifact.
func selectSeries(g *grid, asset string, tickers []string) (*assetSeries, error) {
	dateIdx := findDateCol(g)
	if dateIdx < 0 {
		return nil, eris.Errorf("%s flow table has no detectable date column", asset)
	}

	usedIdx, usedCols := matchColumns(g, dateIdx, tickers)
	logMissingTickers(asset, tickers, usedCols)

	totalIdx := findSiteTotalCol(g, dateIdx)

	as := &assetSeries{asset: asset, usedCols: usedCols}
	for _, row := range g.rows {
		day, err := table.ParseDay(row[dateIdx])
		if err != nil {
			continue // footer rows, averages, blank separators
		}
		sum := 0.0
		for _, i := range usedIdx {
			sum += cleanNum(row[i])
		}
		as.dates = append(as.dates, day)
		as.sums = append(as.sums, sum)
		if totalIdx >= 0 {
			as.siteTotal = append(as.siteTotal, cleanNum(row[totalIdx]))
			as.hasTotal = append(as.hasTotal, true)
		} else {
			as.siteTotal = append(as.siteTotal, 0)
			as.hasTotal = append(as.hasTotal, false)
		}
	}

	zap.L().Info("matched flow columns",
		zap.String("asset", asset),
		zap.Int("columns", len(usedCols)),
		zap.Strings("used", usedCols),
	)
	return as, nil
}

// matchColumns binds header columns to tickers by whole-token match. Each
// column claims at most one ticker and each ticker at most one column, so
// a fund appearing twice in the header is never double counted.
func matchColumns(g *grid, dateIdx int, tickers []string) ([]int, []string) {
	remaining := make(map[string]struct{}, len(tickers))
	for _, t := range tickers {
		remaining[t] = struct{}{}
	}

	var idx []int
	var cols []string
	for i, name := range g.header {
		if i == dateIdx {
			continue
		}
		if _, excluded := commonExclude[strings.ToLower(strings.TrimSpace(name))]; excluded {
			continue
		}
		toks := make(map[string]struct{})
		for _, tok := range headerTokens(name) {
			toks[tok] = struct{}{}
		}
		// bind to the first still-unclaimed ticker, in declared order
		for _, t := range tickers {
			if _, open := remaining[t]; !open {
				continue
			}
			if _, ok := toks[t]; !ok {
				continue
			}
			idx = append(idx, i)
			cols = append(cols, name)
			delete(remaining, t)
			break
		}
		if len(remaining) == 0 {
			break
		}
	}
	return idx, cols
}

func logMissingTickers(asset string, tickers, usedCols []string) {
	found := make(map[string]struct{})
	for _, c := range usedCols {
		for _, tok := range headerTokens(c) {
			found[tok] = struct{}{}
		}
	}
	var missing []string
	for _, t := range tickers {
		if _, ok := found[t]; !ok {
			missing = append(missing, t)
		}
	}
	if len(missing) > 0 {
		zap.L().Warn("tickers not found in column headers",
			zap.String("asset", asset),
			zap.Strings("missing", missing),
		)
	}
}

// findSiteTotalCol locates the site's own total column: an exact "total"
// header first, then any header containing "total" but not "cum". Returns
// -1 when absent.
func findSiteTotalCol(g *grid, dateIdx int) int {
	for i, name := range g.header {
		if i != dateIdx && strings.EqualFold(strings.TrimSpace(name), "total") {
			return i
		}
	}
	for i, name := range g.header {
		if i == dateIdx {
			continue
		}
		lower := strings.ToLower(strings.TrimSpace(name))
		if strings.Contains(lower, "total") && !strings.Contains(lower, "cum") {
			return i
		}
	}
	return -1
}

// unionDays returns the continuous day range spanning both assets.
func unionDays(btc, eth *assetSeries) []string {
	var first, last string
	for _, as := range []*assetSeries{btc, eth} {
		for _, d := range as.dates {
			if first == "" || d < first {
				first = d
			}
			if d > last {
				last = d
			}
		}
	}
	if first == "" {
		return nil
	}
	return table.DaysBetween(first, last)
}

// writeValidation emits the audit CSV comparing our strict-ticker sums to
// the site's own totals, for rows where the site published one. Nothing is
// written when neither page carries a total column.
func (s *FlowSync) writeValidation(btc, eth *assetSeries) (int, error) {
	var records [][]string
	for _, as := range []*assetSeries{btc, eth} {
		for i, day := range as.dates {
			if !as.hasTotal[i] {
				continue
			}
			diff := as.sums[i] - as.siteTotal[i]
			records = append(records, []string{
				day,
				as.asset,
				formatRounded(as.sums[i]),
				formatRounded(as.siteTotal[i]),
				formatRounded(diff),
			})
		}
	}
	if len(records) == 0 {
		zap.L().Info("no site total column detected, skipping validation artifact")
		return 0, nil
	}

	header := []string{"date", "asset", "our_sum", "site_total", "diff"}
	if err := table.WriteCSV(s.cfg.ValidationPath, header, records); err != nil {
		return 0, err
	}
	zap.L().Info("wrote validation artifact",
		zap.String("path", s.cfg.ValidationPath),
		zap.Int("rows", len(records)),
	)
	return len(records), nil
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}

func formatRounded(v float64) string {
	return fmt.Sprintf("%.1f", round1(v))
}
