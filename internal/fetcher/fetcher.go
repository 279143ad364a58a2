// Package fetcher downloads board pages, list responses and notice
// attachments with per-host politeness limits.
package fetcher

import (
	"context"
	"net/url"
)

// Fetcher defines the interface for downloading remote data.
type Fetcher interface {
	// Get fetches the URL and returns the whole response body.
	Get(ctx context.Context, url string) ([]byte, error)

	// PostForm submits form as application/x-www-form-urlencoded and returns
	// the whole response body.
	PostForm(ctx context.Context, url string, form url.Values) ([]byte, error)
}
