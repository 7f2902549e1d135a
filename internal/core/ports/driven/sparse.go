package driven

import (
	"context"

	"github.com/custodia-labs/campusrag/internal/core/domain"
)

// SparseIndex provides keyword search over chunk text.
// Backed by SQLite FTS5 for BM25 scoring.
type SparseIndex interface {
	// Index adds or updates a chunk in the keyword index.
	Index(ctx context.Context, chunk domain.Chunk) error

	// Delete removes a chunk from the keyword index.
	Delete(ctx context.Context, chunkID string) error

	// Search performs a keyword search and returns matching chunk IDs
	// with scores, best first.
	Search(ctx context.Context, query string, limit int) ([]SparseHit, error)

	// Close releases resources.
	Close() error
}

// SparseHit is a keyword search result.
type SparseHit struct {
	// ChunkID is the matched chunk.
	ChunkID string

	// Score is the relevance score (BM25; higher is better).
	Score float64
}
