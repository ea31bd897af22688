package ingest

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/tokendash/tokendash/pkg/artemis"
)

// fakeClient scripts artemis responses per metric key and records the
// ranges it was asked for.
type fakeClient struct {
	series     map[string]map[string][]artemis.Point // key -> symbol -> points
	metrics    map[string][]string                   // symbol -> advertised keys
	failKeys   map[string]bool                       // keys whose fetch errors
	listErr    bool
	fetchCalls []fetchCall
}

type fetchCall struct {
	Key     string
	Symbols []string
	Start   string
	End     string
}

func newFakeClient() *fakeClient {
	return &fakeClient{
		series:   make(map[string]map[string][]artemis.Point),
		metrics:  make(map[string][]string),
		failKeys: make(map[string]bool),
	}
}

func (f *fakeClient) FetchMetrics(_ context.Context, metricKey string, symbols []string, start, end string) (map[string][]artemis.Point, error) {
	f.fetchCalls = append(f.fetchCalls, fetchCall{Key: metricKey, Symbols: symbols, Start: start, End: end})
	if f.failKeys[metricKey] {
		return nil, eris.Errorf("fake: transport failure for %s", metricKey)
	}
	out := make(map[string][]artemis.Point)
	for _, sym := range symbols {
		if points, ok := f.series[metricKey][sym]; ok {
			out[sym] = points
		}
	}
	return out, nil
}

func (f *fakeClient) ListMetrics(_ context.Context, symbol string) ([]string, error) {
	if f.listErr {
		return nil, eris.New("fake: enumeration forbidden")
	}
	return f.metrics[symbol], nil
}
