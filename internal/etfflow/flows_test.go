package etfflow

import (
	"context"
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tokendash/tokendash/internal/table"
)

// stubTransport serves canned pages by URL.
type stubTransport struct {
	pages map[string]string
}

func (s *stubTransport) Get(_ context.Context, url string) (string, error) {
	if page, ok := s.pages[url]; ok {
		return page, nil
	}
	return "", eris.Errorf("stub: no page for %s", url)
}

func btcPage() string {
	return `<html><body><table>
		<tr><th>Date</th><th>IBIT</th><th>FBTC</th><th>Total</th></tr>
		<tr><td>02 Jan 2024</td><td>100.0</td><td>50.0</td><td>150.0</td></tr>
		<tr><td>04 Jan 2024</td><td>(20.0)</td><td>-</td><td>(20.0)</td></tr>
	</table></body></html>`
}

func ethPage() string {
	return `<html><body><table>
		<tr><th>Date</th><th>ETHA</th><th>Total</th></tr>
		<tr><td>03 Jan 2024</td><td>30.0</td><td>35.0</td></tr>
	</table></body></html>`
}

func flowFixture(t *testing.T, pages map[string]string) (*FlowSync, string, string) {
	t.Helper()
	dir := t.TempDir()
	csvPath := filepath.Join(dir, "etf_data.csv")
	valPath := filepath.Join(dir, "etf_validation.csv")
	sync := NewFlowSyncWithTransports(FlowSyncConfig{
		BTCURLs:        []string{"https://btc.test/"},
		ETHURLs:        []string{"https://eth.test/"},
		CSVPath:        csvPath,
		ValidationPath: valPath,
	}, []Transport{&stubTransport{pages: pages}})
	return sync, csvPath, valPath
}

func TestFlowSync_EndToEnd(t *testing.T) {
	sync, csvPath, _ := flowFixture(t, map[string]string{
		"https://btc.test/": btcPage(),
		"https://eth.test/": ethPage(),
	})

	result, err := sync.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, result.Days, "union range 02..04 Jan")

	tbl, err := table.Load(csvPath)
	require.NoError(t, err)

	// Daily sums from strict ticker columns only, gap days zero-filled.
	v, ok := tbl.Value("2024-01-02", NetFlowSeries, "BTC")
	require.True(t, ok)
	assert.InDelta(t, 150.0, v, 1e-9)

	v, ok = tbl.Value("2024-01-03", NetFlowSeries, "BTC")
	require.True(t, ok)
	assert.Zero(t, v, "day absent from the source is zero flow")

	v, ok = tbl.Value("2024-01-04", NetFlowSeries, "BTC")
	require.True(t, ok)
	assert.InDelta(t, -20.0, v, 1e-9)

	// Cumulative recomputed from dailies.
	v, ok = tbl.Value("2024-01-04", CumulativeSeries, "BTC")
	require.True(t, ok)
	assert.InDelta(t, 130.0, v, 1e-9)

	v, ok = tbl.Value("2024-01-04", CumulativeSeries, "ETH")
	require.True(t, ok)
	assert.InDelta(t, 30.0, v, 1e-9)
}

func TestFlowSync_OverwritesPriorTable(t *testing.T) {
	sync, csvPath, _ := flowFixture(t, map[string]string{
		"https://btc.test/": btcPage(),
		"https://eth.test/": ethPage(),
	})

	stale := table.New()
	stale.Upsert("1999-12-31", NetFlowSeries, "BTC", 999)
	require.NoError(t, table.Write(csvPath, stale, []string{NetFlowSeries}, []string{"BTC"}))

	_, err := sync.Run(context.Background())
	require.NoError(t, err)

	tbl, err := table.Load(csvPath)
	require.NoError(t, err)
	_, ok := tbl.Value("1999-12-31", NetFlowSeries, "BTC")
	assert.False(t, ok, "flow table is rebuilt, not merged")
}

func TestFlowSync_ValidationArtifact(t *testing.T) {
	sync, _, valPath := flowFixture(t, map[string]string{
		"https://btc.test/": btcPage(),
		"https://eth.test/": ethPage(),
	})

	result, err := sync.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, result.ValidationRows)

	f, err := os.Open(valPath)
	require.NoError(t, err)
	defer f.Close()

	records, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 4) // header + 3 rows
	assert.Equal(t, []string{"date", "asset", "our_sum", "site_total", "diff"}, records[0])
	// ETH page total disagrees with our strict sum by -5.
	assert.Equal(t, []string{"2024-01-03", "ETH", "30.0", "35.0", "-5.0"}, records[3])
}

func TestFlowSync_FallsBackToAlternateURL(t *testing.T) {
	dir := t.TempDir()
	stub := &stubTransport{pages: map[string]string{
		"https://btc.test/alt/": btcPage(),
		"https://eth.test/":     ethPage(),
	}}
	sync := NewFlowSyncWithTransports(FlowSyncConfig{
		BTCURLs:        []string{"https://btc.test/primary/", "https://btc.test/alt/"},
		ETHURLs:        []string{"https://eth.test/"},
		CSVPath:        filepath.Join(dir, "etf_data.csv"),
		ValidationPath: filepath.Join(dir, "etf_validation.csv"),
	}, []Transport{stub})

	_, err := sync.Run(context.Background())
	require.NoError(t, err)
}

func TestFlowSync_NoTableIsFatal(t *testing.T) {
	dir := t.TempDir()
	stub := &stubTransport{pages: map[string]string{
		"https://btc.test/": "<html><body>no tables here</body></html>",
		"https://eth.test/": ethPage(),
	}}
	sync := NewFlowSyncWithTransports(FlowSyncConfig{
		BTCURLs:        []string{"https://btc.test/"},
		ETHURLs:        []string{"https://eth.test/"},
		CSVPath:        filepath.Join(dir, "etf_data.csv"),
		ValidationPath: filepath.Join(dir, "etf_validation.csv"),
	}, []Transport{stub})

	_, err := sync.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no daily flow table")
}
