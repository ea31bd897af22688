package ingest

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tokendash/tokendash/internal/keymap"
	"github.com/tokendash/tokendash/internal/table"
	"github.com/tokendash/tokendash/pkg/artemis"
)

func treasuryFixture(t *testing.T, client *fakeClient) (*TreasurySync, string, string) {
	t.Helper()
	dir := t.TempDir()
	csvPath := filepath.Join(dir, "dat_data.csv")
	mapPath := filepath.Join(dir, "dat_data_mapping.json")

	sync := NewTreasurySync(TreasurySyncConfig{
		Equities:    []string{"MSTR"},
		Labels:      []string{"mNAV", "Price", "Number of Shares Outstanding", "Net Asset Value"},
		Derived:     DefaultDerivedSpecs(),
		CSVPath:     csvPath,
		MappingPath: mapPath,
	}, client)
	return sync, csvPath, mapPath
}

func TestTreasurySync_EndToEnd(t *testing.T) {
	client := newFakeClient()
	client.metrics["EQ-MSTR"] = []string{"PRICE", "NUM_OF_SHARES", "NAV"}
	client.series["PRICE"] = map[string][]artemis.Point{
		"EQ-MSTR": {{Date: "2024-01-04", Val: 100}},
	}
	client.series["NUM_OF_SHARES"] = map[string][]artemis.Point{
		"EQ-MSTR": {{Date: "2024-01-01", Val: 1_000_000}},
	}
	client.series["NAV"] = map[string][]artemis.Point{
		"EQ-MSTR": {{Date: "2024-01-04", Val: 50_000_000}},
	}

	sync, csvPath, mapPath := treasuryFixture(t, client)
	result, err := sync.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, result.Fetched)

	tbl, err := table.Load(csvPath)
	require.NoError(t, err)

	// Shares forward-fill across the gap; mNAV lands on the price date.
	v, ok := tbl.Value("2024-01-04", "mNAV", "EQ-MSTR")
	require.True(t, ok)
	assert.InDelta(t, 2.0, v, 1e-9)

	// Mapping artifact records concrete keys and the derivation marker.
	m := keymap.Load(mapPath)
	assert.Equal(t, "PRICE", m.Get("EQ-MSTR", "Price"))
	assert.Equal(t, "NAV", m.Get("EQ-MSTR", "Net Asset Value"))
	assert.Equal(t, "DERIVED(Price*Number of Shares Outstanding/Net Asset Value)",
		m.Get("EQ-MSTR", "mNAV"))
}

func TestTreasurySync_EQPrefixNormalization(t *testing.T) {
	client := newFakeClient()
	client.series["PRICE"] = map[string][]artemis.Point{
		"EQ-SBET": {{Date: "2024-01-01", Val: 10}},
	}

	dir := t.TempDir()
	sync := NewTreasurySync(TreasurySyncConfig{
		Equities:    []string{"sbet"}, // no prefix, lowercase
		Labels:      []string{"Price"},
		CSVPath:     filepath.Join(dir, "dat_data.csv"),
		MappingPath: filepath.Join(dir, "mapping.json"),
	}, client)

	_, err := sync.Run(context.Background())
	require.NoError(t, err)

	require.NotEmpty(t, client.fetchCalls)
	assert.Equal(t, []string{"EQ-SBET"}, client.fetchCalls[0].Symbols)
}

func TestTreasurySync_PriorMappingSticks(t *testing.T) {
	client := newFakeClient()
	// Both keys advertised; candidate order prefers PRICE.
	client.metrics["EQ-MSTR"] = []string{"PRICE", "stockprice"}
	client.series["stockprice"] = map[string][]artemis.Point{
		"EQ-MSTR": {{Date: "2024-01-01", Val: 42}},
	}

	dir := t.TempDir()
	mapPath := filepath.Join(dir, "mapping.json")
	prior := make(keymap.Mapping)
	prior.Set("EQ-MSTR", "Price", "stockprice")
	require.NoError(t, keymap.Write(mapPath, prior))

	sync := NewTreasurySync(TreasurySyncConfig{
		Equities:    []string{"MSTR"},
		Labels:      []string{"Price"},
		CSVPath:     filepath.Join(dir, "dat_data.csv"),
		MappingPath: mapPath,
	}, client)

	_, err := sync.Run(context.Background())
	require.NoError(t, err)

	m := keymap.Load(mapPath)
	assert.Equal(t, "stockprice", m.Get("EQ-MSTR", "Price"),
		"prior choice must stick while still advertised")
}

func TestTreasurySync_LegacyMappingMerged(t *testing.T) {
	client := newFakeClient()
	client.metrics["EQ-MSTR"] = []string{"PRICE"}
	client.series["PRICE"] = map[string][]artemis.Point{
		"EQ-MSTR": {{Date: "2024-01-01", Val: 42}},
	}

	dir := t.TempDir()
	legacyPath := filepath.Join(dir, "dat_equities_mapping.json")
	legacy := make(keymap.Mapping)
	legacy.Set("EQ-MSTR", "Hand Tuned Label", "CUSTOM_KEY")
	require.NoError(t, keymap.Write(legacyPath, legacy))

	mapPath := filepath.Join(dir, "dat_data_mapping.json")
	sync := NewTreasurySync(TreasurySyncConfig{
		Equities:           []string{"MSTR"},
		Labels:             []string{"Price"},
		CSVPath:            filepath.Join(dir, "dat_data.csv"),
		MappingPath:        mapPath,
		LegacyMappingPaths: []string{legacyPath},
	}, client)

	_, err := sync.Run(context.Background())
	require.NoError(t, err)

	// The hand-tuned label was not recomputed this run but survives.
	m := keymap.Load(mapPath)
	assert.Equal(t, "CUSTOM_KEY", m.Get("EQ-MSTR", "Hand Tuned Label"))
}

func TestTreasurySync_UnknownAvailabilityStaysOptimistic(t *testing.T) {
	client := newFakeClient()
	client.listErr = true
	client.series["PRICE"] = map[string][]artemis.Point{
		"EQ-MSTR": {{Date: "2024-01-01", Val: 42}},
	}

	dir := t.TempDir()
	sync := NewTreasurySync(TreasurySyncConfig{
		Equities:    []string{"MSTR"},
		Labels:      []string{"Price"},
		CSVPath:     filepath.Join(dir, "dat_data.csv"),
		MappingPath: filepath.Join(dir, "mapping.json"),
	}, client)

	_, err := sync.Run(context.Background())
	require.NoError(t, err)

	tbl, err := table.Load(filepath.Join(dir, "dat_data.csv"))
	require.NoError(t, err)
	_, ok := tbl.Value("2024-01-01", "Price", "EQ-MSTR")
	assert.True(t, ok, "first candidate is fetched optimistically")
}

func TestTreasurySync_SharedKeyBatchedAcrossSymbols(t *testing.T) {
	client := newFakeClient()
	client.series["PRICE"] = map[string][]artemis.Point{
		"EQ-MSTR": {{Date: "2024-01-01", Val: 100}},
		"EQ-SBET": {{Date: "2024-01-01", Val: 10}},
	}

	dir := t.TempDir()
	sync := NewTreasurySync(TreasurySyncConfig{
		Equities:    []string{"MSTR", "SBET"},
		Labels:      []string{"Price"},
		CSVPath:     filepath.Join(dir, "dat_data.csv"),
		MappingPath: filepath.Join(dir, "mapping.json"),
	}, client)

	_, err := sync.Run(context.Background())
	require.NoError(t, err)

	require.Len(t, client.fetchCalls, 1, "symbols sharing a key fetch together")
	assert.Equal(t, []string{"EQ-MSTR", "EQ-SBET"}, client.fetchCalls[0].Symbols)
}

func TestTreasurySync_AllKeysFailedIsFatal(t *testing.T) {
	client := newFakeClient()
	client.failKeys["PRICE"] = true

	dir := t.TempDir()
	sync := NewTreasurySync(TreasurySyncConfig{
		Equities:    []string{"MSTR"},
		Labels:      []string{"Price"},
		CSVPath:     filepath.Join(dir, "dat_data.csv"),
		MappingPath: filepath.Join(dir, "mapping.json"),
	}, client)

	_, err := sync.Run(context.Background())
	assert.ErrorIs(t, err, ErrNoData)
}
