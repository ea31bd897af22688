// Package artemis provides a client for the Artemis asset metrics API.
//
// Responses are duck-typed JSON keyed by a provider-defined vocabulary of
// metric names. Decoding happens once here, at the boundary: callers only
// ever see typed Points, never raw payloads.
package artemis

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rotisserie/eris"
)

// Point is one observation of a metric for a symbol.
type Point struct {
	Date string
	Val  float64
}

// Client defines the Artemis API operations the sync jobs need.
type Client interface {
	// FetchMetrics fetches one metric's time series across symbols.
	// Symbols absent from the response map simply have no data for the
	// requested range; that is not an error.
	FetchMetrics(ctx context.Context, metricKey string, symbols []string, start, end string) (map[string][]Point, error)

	// ListMetrics enumerates the metric keys the provider advertises for a
	// symbol. Best-effort: an error means availability is unknown, not that
	// the symbol has no metrics.
	ListMetrics(ctx context.Context, symbol string) ([]string, error)
}

// symbolBatchSize caps how many symbols go into one fetch request.
const symbolBatchSize = 100

// Option configures the Artemis client.
type Option func(*httpClient)

// WithBaseURL sets a custom base URL (for testing).
func WithBaseURL(baseURL string) Option {
	return func(c *httpClient) {
		c.baseURL = strings.TrimRight(baseURL, "/")
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

type httpClient struct {
	apiKey  string
	baseURL string
	http    *http.Client
}

// NewClient creates an Artemis API client.
func NewClient(apiKey string, opts ...Option) Client {
	c := &httpClient{
		apiKey:  apiKey,
		baseURL: "https://api.artemisxyz.com",
		http: &http.Client{
			Timeout: 60 * time.Second,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// retryableStatusCode returns true if the status should trigger a retry.
func retryableStatusCode(code int) bool {
	return code == http.StatusTooManyRequests ||
		code == http.StatusInternalServerError ||
		code == http.StatusBadGateway ||
		code == http.StatusServiceUnavailable
}

// retryDo executes a request with exponential backoff on transient failures.
func (c *httpClient) retryDo(ctx context.Context, req *http.Request) ([]byte, int, error) {
	const maxAttempts = 3
	backoff := 1 * time.Second

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		resp, err := c.http.Do(req.Clone(ctx))
		if err != nil {
			lastErr = err
			if attempt < maxAttempts {
				select {
				case <-ctx.Done():
					return nil, 0, ctx.Err()
				case <-time.After(backoff):
				}
				backoff *= 2
				continue
			}
			return nil, 0, lastErr
		}

		body, readErr := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if readErr != nil {
			return nil, resp.StatusCode, eris.Wrap(readErr, "artemis: read response body")
		}

		if retryableStatusCode(resp.StatusCode) && attempt < maxAttempts {
			lastErr = eris.Errorf("artemis: status %d: %s", resp.StatusCode, string(body))
			select {
			case <-ctx.Done():
				return nil, 0, ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
			continue
		}

		return body, resp.StatusCode, nil
	}

	return nil, 0, lastErr
}

// fetchResponse mirrors the provider payload shape:
// {"data":{"symbols":{"eth":{"price":[{"date":"2024-01-01","val":100}]}}}}
// Metric arrays are decoded leniently; anything without both a date and a
// numeric value is dropped.
type fetchResponse struct {
	Data struct {
		Symbols map[string]map[string]json.RawMessage `json:"symbols"`
	} `json:"data"`
}

type rawPoint struct {
	Date string       `json:"date"`
	Val  *json.Number `json:"val"`
}

func (c *httpClient) FetchMetrics(ctx context.Context, metricKey string, symbols []string, start, end string) (map[string][]Point, error) {
	out := make(map[string][]Point)

	for batch := range chunk(symbols, symbolBatchSize) {
		reqURL := fmt.Sprintf("%s/data/%s?symbols=%s&startDate=%s&endDate=%s&APIKey=%s",
			c.baseURL,
			url.PathEscape(metricKey),
			url.QueryEscape(strings.Join(batch, ",")),
			url.QueryEscape(start),
			url.QueryEscape(end),
			url.QueryEscape(c.apiKey),
		)

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
		if err != nil {
			return nil, eris.Wrap(err, "artemis: create request")
		}
		req.Header.Set("Accept", "application/json")

		body, statusCode, err := c.retryDo(ctx, req)
		if err != nil {
			return nil, eris.Wrapf(err, "artemis: fetch %s", metricKey)
		}
		if statusCode != http.StatusOK {
			return nil, eris.Errorf("artemis: fetch %s: unexpected status %d: %s", metricKey, statusCode, truncate(body))
		}

		var resp fetchResponse
		if err := json.Unmarshal(body, &resp); err != nil {
			return nil, eris.Wrapf(err, "artemis: decode %s response", metricKey)
		}

		// The provider lowercases symbol keys; requested symbols are upper.
		bySymbol := make(map[string]map[string]json.RawMessage, len(resp.Data.Symbols))
		for sym, metrics := range resp.Data.Symbols {
			bySymbol[strings.ToLower(sym)] = metrics
		}

		for _, sym := range batch {
			metrics, ok := bySymbol[strings.ToLower(sym)]
			if !ok {
				continue
			}
			raw, ok := metrics[metricKey]
			if !ok {
				continue
			}
			var rawPoints []rawPoint
			if err := json.Unmarshal(raw, &rawPoints); err != nil {
				// Not a point array for this symbol; treat as no data.
				continue
			}
			points := make([]Point, 0, len(rawPoints))
			for _, pt := range rawPoints {
				if pt.Date == "" || pt.Val == nil {
					continue
				}
				v, err := pt.Val.Float64()
				if err != nil {
					continue
				}
				points = append(points, Point{Date: pt.Date, Val: v})
			}
			out[strings.ToUpper(sym)] = points
		}
	}

	return out, nil
}

// metricsResponse tolerates both shapes the provider has used for the
// supported-metrics listing: plain strings and single-key objects.
type metricsResponse struct {
	Data struct {
		Metrics []json.RawMessage `json:"metrics"`
	} `json:"data"`
}

func (c *httpClient) ListMetrics(ctx context.Context, symbol string) ([]string, error) {
	reqURL := fmt.Sprintf("%s/asset/%s/metric?APIKey=%s",
		c.baseURL, url.PathEscape(symbol), url.QueryEscape(c.apiKey))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, eris.Wrap(err, "artemis: create request")
	}
	req.Header.Set("Accept", "application/json")

	body, statusCode, err := c.retryDo(ctx, req)
	if err != nil {
		return nil, eris.Wrapf(err, "artemis: list metrics for %s", symbol)
	}
	if statusCode != http.StatusOK {
		return nil, eris.Errorf("artemis: list metrics for %s: unexpected status %d", symbol, statusCode)
	}

	var resp metricsResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, eris.Wrapf(err, "artemis: decode metrics listing for %s", symbol)
	}

	var keys []string
	for _, raw := range resp.Data.Metrics {
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			keys = append(keys, s)
			continue
		}
		var obj map[string]json.RawMessage
		if err := json.Unmarshal(raw, &obj); err == nil {
			for k := range obj {
				keys = append(keys, k)
			}
		}
	}
	return keys, nil
}

// chunk yields symbols in batches of at most n.
func chunk(symbols []string, n int) func(yield func([]string) bool) {
	return func(yield func([]string) bool) {
		for i := 0; i < len(symbols); i += n {
			end := min(i+n, len(symbols))
			if !yield(symbols[i:end]) {
				return
			}
		}
	}
}

func truncate(body []byte) string {
	const max = 256
	if len(body) > max {
		return string(body[:max]) + "..."
	}
	return string(body)
}
