package driven

import (
	"context"

	"github.com/custodia-labs/campusrag/internal/core/domain"
)

// PageStore persists pages with their chunks and image records.
// Backed by SQLite for metadata storage.
//
// A page is written as an atomic unit: page, chunks and images all
// land or none do. Re-ingest is delete-then-insert, never a partial
// update.
type PageStore interface {
	// SavePage atomically stores a page with its chunks and images,
	// replacing any previous page with the same canonical URL.
	SavePage(ctx context.Context, page *domain.Page, chunks []domain.Chunk, images []domain.ImageRecord) error

	// GetPage retrieves a page by ID.
	GetPage(ctx context.Context, id string) (*domain.Page, error)

	// FindPageByCanonicalURL retrieves a page by its canonical URL.
	FindPageByCanonicalURL(ctx context.Context, canonicalURL string) (*domain.Page, error)

	// GetChunk retrieves a chunk by ID.
	GetChunk(ctx context.Context, id string) (*domain.Chunk, error)

	// GetChunks retrieves all chunks of a page, in position order.
	GetChunks(ctx context.Context, pageID string) ([]domain.Chunk, error)

	// ListChunks retrieves every indexed chunk. Used to warm the
	// vector index at startup.
	ListChunks(ctx context.Context) ([]domain.Chunk, error)

	// GetImage retrieves an image record by ID.
	GetImage(ctx context.Context, id string) (*domain.ImageRecord, error)

	// GetImages retrieves all image records of a page.
	GetImages(ctx context.Context, pageID string) ([]domain.ImageRecord, error)

	// DeletePage removes a page and cascades to its chunks and images.
	DeletePage(ctx context.Context, id string) error

	// ListPages returns all stored pages.
	ListPages(ctx context.Context) ([]domain.Page, error)
}
