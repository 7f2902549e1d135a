package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/custodia-labs/campusrag/internal/core/domain"
	"github.com/custodia-labs/campusrag/internal/core/ports/driven"
)

// Ensure PageStore implements the interface.
var _ driven.PageStore = (*PageStore)(nil)

// PageStore is an in-memory implementation of driven.PageStore, used
// in tests and as a fallback when no database path is configured.
type PageStore struct {
	mu     sync.RWMutex
	pages  map[string]domain.Page
	chunks map[string][]domain.Chunk
	images map[string][]domain.ImageRecord
}

// NewPageStore creates a new in-memory page store.
func NewPageStore() *PageStore {
	return &PageStore{
		pages:  make(map[string]domain.Page),
		chunks: make(map[string][]domain.Chunk),
		images: make(map[string][]domain.ImageRecord),
	}
}

// SavePage atomically stores a page with its chunks and images,
// replacing any previous page with the same canonical URL.
func (s *PageStore) SavePage(_ context.Context, page *domain.Page, chunks []domain.Chunk, images []domain.ImageRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, existing := range s.pages {
		if existing.CanonicalURL == page.CanonicalURL && id != page.ID {
			delete(s.pages, id)
			delete(s.chunks, id)
			delete(s.images, id)
		}
	}

	s.pages[page.ID] = *page
	s.chunks[page.ID] = append([]domain.Chunk(nil), chunks...)
	s.images[page.ID] = append([]domain.ImageRecord(nil), images...)
	return nil
}

// GetPage retrieves a page by ID.
func (s *PageStore) GetPage(_ context.Context, id string) (*domain.Page, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	page, ok := s.pages[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &page, nil
}

// FindPageByCanonicalURL retrieves a page by its canonical URL.
func (s *PageStore) FindPageByCanonicalURL(_ context.Context, canonicalURL string) (*domain.Page, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, page := range s.pages {
		if page.CanonicalURL == canonicalURL {
			p := page
			return &p, nil
		}
	}
	return nil, domain.ErrNotFound
}

// GetChunk retrieves a chunk by ID.
func (s *PageStore) GetChunk(_ context.Context, id string) (*domain.Chunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, chunks := range s.chunks {
		for _, chunk := range chunks {
			if chunk.ID == id {
				c := chunk
				return &c, nil
			}
		}
	}
	return nil, domain.ErrNotFound
}

// GetChunks retrieves all chunks of a page, in position order.
func (s *PageStore) GetChunks(_ context.Context, pageID string) ([]domain.Chunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	chunks := append([]domain.Chunk(nil), s.chunks[pageID]...)
	sort.Slice(chunks, func(i, j int) bool { return chunks[i].Position < chunks[j].Position })
	return chunks, nil
}

// ListChunks retrieves every indexed chunk.
func (s *PageStore) ListChunks(_ context.Context) ([]domain.Chunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var all []domain.Chunk
	for _, chunks := range s.chunks {
		all = append(all, chunks...)
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].PageID != all[j].PageID {
			return all[i].PageID < all[j].PageID
		}
		return all[i].Position < all[j].Position
	})
	return all, nil
}

// GetImage retrieves an image record by ID.
func (s *PageStore) GetImage(_ context.Context, id string) (*domain.ImageRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, images := range s.images {
		for _, img := range images {
			if img.ID == id {
				i := img
				return &i, nil
			}
		}
	}
	return nil, domain.ErrNotFound
}

// GetImages retrieves all image records of a page.
func (s *PageStore) GetImages(_ context.Context, pageID string) ([]domain.ImageRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.ImageRecord(nil), s.images[pageID]...), nil
}

// DeletePage removes a page and cascades to its chunks and images.
func (s *PageStore) DeletePage(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.pages[id]; !ok {
		return domain.ErrNotFound
	}
	delete(s.pages, id)
	delete(s.chunks, id)
	delete(s.images, id)
	return nil
}

// ListPages returns all stored pages.
func (s *PageStore) ListPages(_ context.Context) ([]domain.Page, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	pages := make([]domain.Page, 0, len(s.pages))
	for _, page := range s.pages {
		pages = append(pages, page)
	}
	sort.Slice(pages, func(i, j int) bool { return pages[i].CanonicalURL < pages[j].CanonicalURL })
	return pages, nil
}
