// Package fetcher downloads remote pages over HTTP with retry, backoff, and
// per-host rate limiting.
package fetcher

import (
	"context"
	"io"
)

// Fetcher defines the interface for downloading remote data.
type Fetcher interface {
	// Download fetches the URL and returns the response body.
	Download(ctx context.Context, url string) (io.ReadCloser, error)

	// Get fetches the URL and returns the response body as a string.
	Get(ctx context.Context, url string) (string, error)
}
