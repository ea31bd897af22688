package ingest

import (
	"math"

	"github.com/tokendash/tokendash/internal/table"

	"github.com/tokendash/tokendash/pkg/artemis"
)

// Merge upserts a fetched payload into the table under the given series.
// Merging is additive and overwriting, never subtractive: entities absent
// from the payload keep whatever the table already holds. Points without a
// date or with a non-finite value are skipped; a provider trimming to an
// entity's true history start is expected, not an error. If one batch
// carries the same (date, entity) twice, the last point wins.
//
// Returns the number of cells written.
func Merge(tbl *table.Table, series string, points map[string][]artemis.Point) int {
	var n int
	for entity, pts := range points {
		for _, pt := range pts {
			if pt.Date == "" || math.IsNaN(pt.Val) || math.IsInf(pt.Val, 0) {
				continue
			}
			tbl.Upsert(pt.Date, series, entity, pt.Val)
			n++
		}
	}
	return n
}
