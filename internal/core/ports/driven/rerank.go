package driven

import "context"

// RerankService scores (query, passage) pairs with a cross-encoder.
// Called in batches over the fusion step's candidate set.
type RerankService interface {
	// Score returns one relevance score per passage, in input order.
	Score(ctx context.Context, query string, passages []string) ([]float64, error)

	// Close releases resources.
	Close() error
}
