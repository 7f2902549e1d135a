// Package fetch provides the HTTP fetcher used by crawling and
// ingest.
package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/custodia-labs/campusrag/internal/core/domain"
	"github.com/custodia-labs/campusrag/internal/core/ports/driven"
)

// Ensure Fetcher implements the interface.
var _ driven.Fetcher = (*Fetcher)(nil)

// Default configuration values.
const (
	DefaultTimeout   = 30 * time.Second
	DefaultUserAgent = "campusrag/1.0 (+https://github.com/custodia-labs/campusrag)"

	// maxBodyBytes caps how much of a response is read. Institutional
	// pages beyond this are pathological and truncating them is safe.
	maxBodyBytes = 10 << 20
)

// Config holds configuration for the HTTP fetcher.
type Config struct {
	// Timeout is the per-request timeout (default: 30s).
	Timeout time.Duration

	// UserAgent identifies the crawler to the target site.
	UserAgent string
}

// Fetcher retrieves pages over HTTP. Redirects are followed; the
// final URL is reported so canonicalisation sees the real address.
type Fetcher struct {
	client    *http.Client
	userAgent string
}

// New creates an HTTP fetcher.
func New(cfg Config) *Fetcher {
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultUserAgent
	}
	return &Fetcher{
		client:    &http.Client{Timeout: cfg.Timeout},
		userAgent: cfg.UserAgent,
	}
}

// Fetch retrieves the page at url. Only HTTP success with non-empty
// bytes is returned; everything else is an error the ingest pipeline
// counts as a skipped page.
func (f *Fetcher) Fetch(ctx context.Context, url string) (*domain.RawPage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrFetchFailure, err)
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrFetchFailure, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: %s returned status %d", domain.ErrFetchFailure, url, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: reading body: %v", domain.ErrFetchFailure, err)
	}
	if len(body) == 0 {
		return nil, fmt.Errorf("%w: %s returned empty body", domain.ErrFetchFailure, url)
	}

	return &domain.RawPage{
		URL:        url,
		FinalURL:   resp.Request.URL.String(),
		StatusCode: resp.StatusCode,
		HTML:       body,
		FetchedAt:  time.Now(),
	}, nil
}
