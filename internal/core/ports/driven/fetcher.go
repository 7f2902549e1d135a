package driven

import (
	"context"

	"github.com/custodia-labs/campusrag/internal/core/domain"
)

// Fetcher retrieves raw pages over HTTP. Politeness, retries and
// robots handling are the fetcher's own concern; the core treats a
// failed fetch as a skipped page.
type Fetcher interface {
	// Fetch retrieves the page at url. Only HTTP success with
	// non-empty bytes is returned; everything else is an error.
	Fetch(ctx context.Context, url string) (*domain.RawPage, error)
}
