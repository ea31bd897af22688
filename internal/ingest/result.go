package ingest

import "github.com/rotisserie/eris"

// ErrNoData marks a run where every requested series failed to produce any
// data. Partial failures are contained and summarized; this sentinel is the
// one fetch-side condition that escalates to process failure.
var ErrNoData = eris.New("no data could be fetched for any requested series")

// Result summarizes one sync job run.
type Result struct {
	Cells   int      `json:"cells"`   // table cells written (fetched + derived)
	Fetched int      `json:"fetched"` // fetch calls that succeeded
	Failed  int      `json:"failed"`  // fetch calls that failed
	Skipped []string `json:"skipped,omitempty"`
}
