package driving

import (
	"context"

	"github.com/custodia-labs/campusrag/internal/core/domain"
)

// IngestService runs the indexing pipeline over a batch of URLs:
// fetch, normalise, extract, segment, associate, score, deduplicate,
// persist. Page failures are isolated; one page never aborts a batch.
type IngestService interface {
	// Ingest processes the given URLs and returns a batch report.
	Ingest(ctx context.Context, urls []string) (*domain.IngestReport, error)
}
