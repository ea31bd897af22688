// Package etfflow scrapes published ETF flow tables and rebuilds the flow
// table artifact from them on every run.
package etfflow

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/tokendash/tokendash/internal/fetcher"
)

const origin = "https://farside.co.uk/"

const chromeUA = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) " +
	"AppleWebKit/537.36 (KHTML, like Gecko) " +
	"Chrome/124.0.0.0 Safari/537.36"

// browserHeaders makes requests look like an ordinary browser session. The
// source site serves 403 to bare clients.
var browserHeaders = map[string]string{
	"Accept":                    "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,*/*;q=0.8",
	"Accept-Language":           "en-US,en;q=0.9",
	"Connection":                "keep-alive",
	"Referer":                   origin,
	"Upgrade-Insecure-Requests": "1",
}

// Transport fetches one page body. Satisfied by fetcher.HTTPFetcher.
type Transport interface {
	Get(ctx context.Context, url string) (string, error)
}

// NewTransports returns the fallback chain of HTTP transports tried in
// order: a primed browser-profile client first, then a plain client.
func NewTransports() []Transport {
	browser := fetcher.NewHTTPFetcher(fetcher.HTTPOptions{
		UserAgent:    chromeUA,
		Headers:      browserHeaders,
		PrimeOrigin:  origin,
		RateLimiters: fetcher.DefaultRateLimiters(),
	})
	plain := fetcher.NewHTTPFetcher(fetcher.HTTPOptions{
		UserAgent:    chromeUA,
		RateLimiters: fetcher.DefaultRateLimiters(),
	})
	return []Transport{browser, plain}
}

// fetchHTML tries every URL against every transport in order and returns
// the first non-empty page. Alternate URLs cover the site moving its
// all-data pages.
func fetchHTML(ctx context.Context, transports []Transport, urls []string) (string, error) {
	var lastErr error
	for _, u := range urls {
		for _, tr := range transports {
			body, err := tr.Get(ctx, u)
			if err != nil {
				zap.L().Debug("flow page fetch failed, trying next transport",
					zap.String("url", u), zap.Error(err))
				lastErr = err
				continue
			}
			if body == "" {
				lastErr = eris.Errorf("empty body from %s", u)
				continue
			}
			zap.L().Info("fetched flow page", zap.String("url", u))
			return body, nil
		}
	}
	if lastErr == nil {
		lastErr = eris.New("no urls configured")
	}
	return "", eris.Wrap(lastErr, "all transports and urls failed")
}
