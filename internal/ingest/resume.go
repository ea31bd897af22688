// Package ingest contains the sync orchestrators and the policies they
// share: resume-range computation, merge, and derived-series computation.
package ingest

import (
	"github.com/rotisserie/eris"

	"github.com/tokendash/tokendash/internal/table"
)

// EarliestDate is the backfill sentinel. The provider clamps it to each
// entity's true history start, so "beginning of time" is safe to request.
const EarliestDate = "1970-01-01"

// FetchStart computes the start of the date range to fetch for one series.
//
// A series with no rows at all backfills from EarliestDate. Otherwise the
// fetch resumes the day after the latest stored date, unless any requested
// entity has no values anywhere under the series (a newly added entity), in
// which case the whole series goes back to EarliestDate so the newcomer
// backfills its history. That is a per-series decision: one combined range
// is fetched per series per run, and already-covered entities get refetched
// over the gap once as the cost of a single batched request.
func FetchStart(tbl *table.Table, series string, entities []string) (string, error) {
	maxDate, ok := tbl.MaxDate(series)
	if !ok {
		return EarliestDate, nil
	}
	for _, entity := range entities {
		if !tbl.HasValue(series, entity) {
			return EarliestDate, nil
		}
	}
	next, err := table.NextDay(maxDate)
	if err != nil {
		return "", eris.Wrapf(err, "ingest: resume start for series %q", series)
	}
	return next, nil
}

// FetchEnd returns the end of the fetch range: the day the run executes.
func FetchEnd() string {
	return table.Today()
}
