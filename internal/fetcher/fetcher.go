// Package fetcher downloads remote documents such as news feeds with
// per-host adaptive rate limiting and retries.
package fetcher

import "context"

// Fetcher defines the interface for downloading remote data.
type Fetcher interface {
	// Download fetches the URL and returns the response body.
	Download(ctx context.Context, url string) ([]byte, error)

	// DownloadIfChanged fetches the URL only if the ETag has changed.
	// Returns (body, newETag, changed, error). If not changed, body is nil and changed is false.
	DownloadIfChanged(ctx context.Context, url string, etag string) ([]byte, string, bool, error)
}
