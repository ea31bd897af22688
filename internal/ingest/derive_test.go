package ingest

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tokendash/tokendash/internal/table"
)

func mnavSpec() DerivedSpec {
	return DefaultDerivedSpecs()[0]
}

func TestDerive_RatioWithForwardFilledShares(t *testing.T) {
	tbl := table.New()
	// Shares were last reported three days before the valuation date.
	tbl.Upsert("2024-01-01", "Number of Shares Outstanding", "MSTR", 1_000_000)
	tbl.Upsert("2024-01-04", "Price", "MSTR", 100)
	tbl.Upsert("2024-01-04", "Net Asset Value", "MSTR", 50_000_000)

	n := Derive(tbl, mnavSpec(), []string{"MSTR"})
	assert.Equal(t, 1, n)

	v, ok := tbl.Value("2024-01-04", "mNAV", "MSTR")
	require.True(t, ok)
	assert.InDelta(t, 2.0, v, 1e-12)

	// No price on the shares-only date: point-exact input missing.
	_, ok = tbl.Value("2024-01-01", "mNAV", "MSTR")
	assert.False(t, ok)
}

func TestDerive_ForwardFillSequence(t *testing.T) {
	// Base values [absent, 10, absent, absent, 12] must be seen as
	// [absent, 10, 10, 10, 12] by the forward-filled view.
	tbl := table.New()
	days := []string{"2024-01-01", "2024-01-02", "2024-01-03", "2024-01-04", "2024-01-05"}
	tbl.Upsert(days[1], "Number of Shares Outstanding", "MSTR", 10)
	tbl.Upsert(days[4], "Number of Shares Outstanding", "MSTR", 12)
	for _, d := range days {
		tbl.Upsert(d, "Price", "MSTR", 1)
		tbl.Upsert(d, "Net Asset Value", "MSTR", 1)
	}

	Derive(tbl, mnavSpec(), []string{"MSTR"})

	want := []struct {
		day     string
		present bool
		val     float64
	}{
		{days[0], false, 0},
		{days[1], true, 10},
		{days[2], true, 10},
		{days[3], true, 10},
		{days[4], true, 12},
	}
	for _, tc := range want {
		v, ok := tbl.Value(tc.day, "mNAV", "MSTR")
		assert.Equal(t, tc.present, ok, tc.day)
		if tc.present {
			assert.InDelta(t, tc.val, v, 1e-12, tc.day)
		}
	}
}

func TestDerive_DenominatorGuard(t *testing.T) {
	tbl := table.New()
	tbl.Upsert("2024-01-01", "Price", "MSTR", 100)
	tbl.Upsert("2024-01-01", "Number of Shares Outstanding", "MSTR", 1000)
	tbl.Upsert("2024-01-01", "Net Asset Value", "MSTR", 0) // degenerate

	tbl.Upsert("2024-01-02", "Price", "MSTR", 100)
	tbl.Upsert("2024-01-02", "Number of Shares Outstanding", "MSTR", 1000)
	// NAV absent entirely on the second day.

	n := Derive(tbl, mnavSpec(), []string{"MSTR"})
	assert.Equal(t, 0, n)
	_, ok := tbl.Value("2024-01-01", "mNAV", "MSTR")
	assert.False(t, ok)
	_, ok = tbl.Value("2024-01-02", "mNAV", "MSTR")
	assert.False(t, ok)
}

func TestDerive_RecomputeReplacesStaleRows(t *testing.T) {
	tbl := table.New()
	// A stale derived row from an earlier run whose base data is gone.
	tbl.Upsert("2023-12-01", "mNAV", "MSTR", 9.9)

	tbl.Upsert("2024-01-01", "Price", "MSTR", 100)
	tbl.Upsert("2024-01-01", "Number of Shares Outstanding", "MSTR", 1000)
	tbl.Upsert("2024-01-01", "Net Asset Value", "MSTR", 100_000)

	Derive(tbl, mnavSpec(), []string{"MSTR"})

	_, ok := tbl.Value("2023-12-01", "mNAV", "MSTR")
	assert.False(t, ok, "stale derived rows must not survive recompute")
	v, ok := tbl.Value("2024-01-01", "mNAV", "MSTR")
	require.True(t, ok)
	assert.InDelta(t, 1.0, v, 1e-12)
}

func TestDerive_Idempotent(t *testing.T) {
	tbl := table.New()
	tbl.Upsert("2024-01-01", "Price", "MSTR", 100)
	tbl.Upsert("2024-01-01", "Number of Shares Outstanding", "MSTR", 1000)
	tbl.Upsert("2024-01-01", "Net Asset Value", "MSTR", 100_000)

	first := Derive(tbl, mnavSpec(), []string{"MSTR"})
	second := Derive(tbl, mnavSpec(), []string{"MSTR"})
	assert.Equal(t, first, second)

	v, ok := tbl.Value("2024-01-01", "mNAV", "MSTR")
	require.True(t, ok)
	assert.InDelta(t, 1.0, v, 1e-12)
}

func TestDerive_PerEntityIsolation(t *testing.T) {
	tbl := table.New()
	tbl.Upsert("2024-01-01", "Price", "MSTR", 100)
	tbl.Upsert("2024-01-01", "Number of Shares Outstanding", "MSTR", 1000)
	tbl.Upsert("2024-01-01", "Net Asset Value", "MSTR", 100_000)
	// SBET has price only: contributes nothing, and does not block MSTR.
	tbl.Upsert("2024-01-01", "Price", "SBET", 50)

	n := Derive(tbl, mnavSpec(), []string{"MSTR", "SBET"})
	assert.Equal(t, 1, n)
	_, ok := tbl.Value("2024-01-01", "mNAV", "SBET")
	assert.False(t, ok)
}

func TestDerivedSpec_Marker(t *testing.T) {
	assert.Equal(t, "DERIVED(Price*Number of Shares Outstanding/Net Asset Value)", mnavSpec().Marker())
}

func TestLoadDerivedSpecs_Default(t *testing.T) {
	specs, err := LoadDerivedSpecs("")
	require.NoError(t, err)
	require.Len(t, specs, 1)
	assert.Equal(t, "mNAV", specs[0].Label)
}

func TestLoadDerivedSpecs_YAMLOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "derived.yaml")
	doc := `
derived:
  - label: tps
    multiply:
      - label: Number of Tokens Held
        forward_fill: true
    divide_by:
      label: Number of Shares Outstanding
      forward_fill: true
`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))

	specs, err := LoadDerivedSpecs(path)
	require.NoError(t, err)
	require.Len(t, specs, 1)
	assert.Equal(t, "tps", specs[0].Label)
	assert.True(t, specs[0].Multiply[0].ForwardFill)
	require.NotNil(t, specs[0].DivideBy)
	assert.Equal(t, "Number of Shares Outstanding", specs[0].DivideBy.Label)
}

func TestLoadDerivedSpecs_RejectsIncomplete(t *testing.T) {
	path := filepath.Join(t.TempDir(), "derived.yaml")
	require.NoError(t, os.WriteFile(path, []byte("derived:\n  - label: broken\n"), 0o644))

	_, err := LoadDerivedSpecs(path)
	assert.Error(t, err)
}
