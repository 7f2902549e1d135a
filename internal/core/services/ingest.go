package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/custodia-labs/campusrag/internal/associator"
	"github.com/custodia-labs/campusrag/internal/core/domain"
	"github.com/custodia-labs/campusrag/internal/core/ports/driven"
	"github.com/custodia-labs/campusrag/internal/core/ports/driving"
	"github.com/custodia-labs/campusrag/internal/extractor"
	"github.com/custodia-labs/campusrag/internal/logger"
	"github.com/custodia-labs/campusrag/internal/normalisers/web"
	"github.com/custodia-labs/campusrag/internal/scorer"
	"github.com/custodia-labs/campusrag/internal/segmenter"
)

// Ensure IngestService implements the interface.
var _ driving.IngestService = (*IngestService)(nil)

// pageResult is the outcome of the per-page pipeline before the
// batch-level dedup barrier.
type pageResult struct {
	url    string
	page   *domain.Page
	chunks []domain.Chunk
	images []domain.ImageRecord
	err    error
}

// IngestService runs the indexing pipeline: fetch, normalise,
// extract, segment, associate, score, deduplicate, persist, index.
type IngestService struct {
	fetcher    driven.Fetcher
	normaliser driven.Normaliser
	pageStore  driven.PageStore
	sparse     driven.SparseIndex
	vector     driven.VectorIndex
	embedding  driven.EmbeddingService
	entities   driven.EntityService

	settings   domain.IngestSettings
	segmenter  *segmenter.Segmenter
	extractor  *extractor.Extractor
	associator *associator.Associator
	scorer     *scorer.Scorer
}

// NewIngestService creates an ingest service. The embedding and
// entity services are optional (can be nil); pages ingested without
// them carry no dense vectors or entity annotations.
func NewIngestService(
	fetcher driven.Fetcher,
	normaliser driven.Normaliser,
	pageStore driven.PageStore,
	sparse driven.SparseIndex,
	vector driven.VectorIndex,
	embedding driven.EmbeddingService,
	entities driven.EntityService,
	settings domain.IngestSettings,
) *IngestService {
	return &IngestService{
		fetcher:    fetcher,
		normaliser: normaliser,
		pageStore:  pageStore,
		sparse:     sparse,
		vector:     vector,
		embedding:  embedding,
		entities:   entities,
		settings:   settings,
		segmenter: segmenter.New(
			segmenter.WithTokenBand(settings.MinTokens, settings.MaxTokens),
			segmenter.WithOverlap(settings.OverlapTokens),
		),
		extractor: extractor.New(
			extractor.WithWindow(settings.ContextWindow),
			extractor.WithIconThreshold(settings.IconMaxPixels, settings.BorderlineMargin),
		),
		associator: associator.New(associator.WithThreshold(settings.OverlapThreshold)),
		scorer:     scorer.New(settings),
	}
}

// Ingest processes a batch of URLs. Pages run through the pipeline in
// parallel, meet at the dedup barrier, and are then persisted and
// indexed one page at a time. A failed page is counted and skipped,
// never aborting the batch.
func (s *IngestService) Ingest(ctx context.Context, urls []string) (*domain.IngestReport, error) {
	logger.Section("Ingest Batch")
	logger.Debug("Batch size: %d URLs", len(urls))

	report := &domain.IngestReport{}
	urls = dedupURLs(urls)
	if len(urls) == 0 {
		return report, nil
	}

	results := s.processPages(ctx, urls)

	// Dedup barrier: all pages of the batch are normalised before any
	// is persisted, so near-duplicates are resolved batch-wide.
	kept := s.dedupBarrier(ctx, results, report)

	for _, res := range kept {
		if err := s.enrich(ctx, res); err != nil {
			logger.Warn("Ingest: enrichment failed for %s: %v", res.url, err)
			report.PagesFailed++
			continue
		}
		if err := s.persist(ctx, res); err != nil {
			logger.Warn("Ingest: persisting %s failed: %v", res.url, err)
			report.PagesFailed++
			continue
		}
		report.PagesIngested++
		report.Chunks += len(res.chunks)
		report.Images += len(res.images)
	}

	logger.Info("Ingest complete: %d pages, %d chunks, %d images (%d empty, %d duplicates, %d failed)",
		report.PagesIngested, report.Chunks, report.Images,
		report.PagesEmpty, report.DuplicatesExcluded, report.PagesFailed)
	return report, nil
}

// processPages runs the per-page pipeline with bounded parallelism,
// returning results in input order.
func (s *IngestService) processPages(ctx context.Context, urls []string) []pageResult {
	workers := s.settings.Workers
	if workers <= 0 {
		workers = 1
	}
	if workers > len(urls) {
		workers = len(urls)
	}

	results := make([]pageResult, len(urls))
	jobs := make(chan int)

	var wg sync.WaitGroup
	wg.Add(workers)
	for w := 0; w < workers; w++ {
		go func() {
			defer wg.Done()
			for i := range jobs {
				results[i] = s.processPage(ctx, urls[i])
			}
		}()
	}
	for i := range urls {
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	return results
}

// processPage runs fetch through scoring for one URL.
func (s *IngestService) processPage(ctx context.Context, url string) pageResult {
	res := pageResult{url: url}

	raw, err := s.fetcher.Fetch(ctx, url)
	if err != nil {
		res.err = fmt.Errorf("%w: %s: %v", domain.ErrFetchFailure, url, err)
		return res
	}

	normalized, err := s.normaliser.Normalise(ctx, raw)
	if err != nil {
		res.err = err
		return res
	}

	page := normalized.Page
	page.ID = uuid.NewString()
	page.Simhash = associator.Signature(page.Text)
	res.page = &page

	res.images = s.extractor.Extract(res.page, normalized.Images)
	for i := range res.images {
		res.images[i].ID = uuid.NewString()
		res.images[i].PageID = page.ID
	}

	res.chunks = s.segmenter.Segment(res.page)
	for i := range res.chunks {
		res.chunks[i].ID = uuid.NewString()
		res.chunks[i].PageID = page.ID
	}

	s.associator.Link(res.page, res.chunks, res.images)
	s.scorer.ScoreAll(res.page, res.images)

	imagesByID := make(map[string]*domain.ImageRecord, len(res.images))
	for i := range res.images {
		imagesByID[res.images[i].ID] = &res.images[i]
	}
	for i := range res.chunks {
		res.chunks[i].QualityPrior = scorer.ChunkPrior(&res.chunks[i], imagesByID)
	}

	logger.Debug("Processed %s: %d chunks, %d images", url, len(res.chunks), len(res.images))
	return res
}

// dedupBarrier filters out failed, empty and near-duplicate pages.
// Earlier batch positions win ties; pages already in the store also
// suppress near-duplicate newcomers unless they share the canonical
// URL (which is a re-ingest, not a duplicate). An excluded page loses
// its chunks but its images are still stored when no other page
// already carries the same asset.
func (s *IngestService) dedupBarrier(ctx context.Context, results []pageResult, report *domain.IngestReport) []pageResult {
	type signature struct {
		hash         uint64
		canonicalURL string
	}
	var seen []signature
	knownGroups := make(map[string]bool)

	if stored, err := s.pageStore.ListPages(ctx); err == nil {
		for _, p := range stored {
			seen = append(seen, signature{hash: p.Simhash, canonicalURL: p.CanonicalURL})
			if imgs, err := s.pageStore.GetImages(ctx, p.ID); err == nil {
				for _, img := range imgs {
					knownGroups[img.DedupGroup] = true
				}
			}
		}
	} else {
		logger.Warn("Ingest: listing stored pages for dedup failed: %v", err)
	}

	var kept []pageResult
	for _, res := range results {
		switch {
		case res.err == nil:
		case errors.Is(res.err, domain.ErrEmptyContent):
			logger.Debug("Ingest: %s has no extractable content", res.url)
			report.PagesEmpty++
			continue
		default:
			logger.Warn("Ingest: %s failed: %v", res.url, res.err)
			report.PagesFailed++
			continue
		}

		duplicate := false
		for _, sig := range seen {
			if sig.canonicalURL == res.page.CanonicalURL {
				continue
			}
			if associator.IsNearDuplicate(sig.hash, res.page.Simhash, s.settings.SimhashHammingMax) {
				duplicate = true
				break
			}
		}
		if duplicate {
			logger.Debug("Ingest: %s excluded as near-duplicate", res.url)
			report.DuplicatesExcluded++
			s.persistExcludedImages(ctx, res, knownGroups, report)
			continue
		}

		seen = append(seen, signature{hash: res.page.Simhash, canonicalURL: res.page.CanonicalURL})
		for _, img := range res.images {
			knownGroups[img.DedupGroup] = true
		}
		kept = append(kept, res)
	}
	return kept
}

// persistExcludedImages stores a near-duplicate page's images that no
// other page carries, so an asset unique to the losing fetch is not
// lost. The page row is saved chunk-free: its text never reaches the
// indexes, but the images stay addressable.
func (s *IngestService) persistExcludedImages(ctx context.Context, res pageResult, knownGroups map[string]bool, report *domain.IngestReport) {
	var unique []domain.ImageRecord
	for _, img := range res.images {
		if knownGroups[img.DedupGroup] {
			continue
		}
		knownGroups[img.DedupGroup] = true
		unique = append(unique, img)
	}
	if len(unique) == 0 {
		return
	}
	if err := s.pageStore.SavePage(ctx, res.page, nil, unique); err != nil {
		logger.Warn("Ingest: saving images of excluded page %s: %v", res.url, err)
		return
	}
	logger.Debug("Ingest: kept %d unique images from excluded page %s", len(unique), res.url)
	report.Images += len(unique)
}

// enrich attaches embeddings and entities to a page's chunks. Each
// model call gets one retry; a chunk whose embedding fails twice is
// left without a dense vector rather than blocking the page.
func (s *IngestService) enrich(ctx context.Context, res pageResult) error {
	if s.embedding != nil {
		texts := make([]string, len(res.chunks))
		for i, c := range res.chunks {
			texts[i] = c.Text
		}
		vectors, err := s.embedBatch(ctx, texts)
		if err != nil {
			logger.Warn("Ingest: embedding %s failed after retry: %v", res.url, err)
		} else {
			for i := range res.chunks {
				res.chunks[i].Embedding = vectors[i]
			}
		}
	}

	if s.entities != nil {
		for i := range res.chunks {
			ents, err := s.extractEntities(ctx, res.chunks[i].Text)
			if err != nil {
				logger.Warn("Ingest: entity extraction failed for chunk %d of %s: %v", i, res.url, err)
				continue
			}
			res.chunks[i].Entities = ents
		}
	}
	return nil
}

func (s *IngestService) embedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	vectors, err := s.embedding.EmbedBatch(ctx, texts)
	if err == nil {
		return vectors, nil
	}
	logger.Debug("Embedding batch failed, retrying once: %v", err)
	vectors, err = s.embedding.EmbedBatch(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrModelCall, err)
	}
	return vectors, nil
}

func (s *IngestService) extractEntities(ctx context.Context, text string) (map[string][]string, error) {
	ents, err := s.entities.Extract(ctx, text)
	if err == nil {
		return ents, nil
	}
	ents, err = s.entities.Extract(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrModelCall, err)
	}
	return ents, nil
}

// persist atomically stores the page and updates both retrieval
// indexes. A replaced page's old chunks are removed from the indexes
// so query-time lookups never dangle.
func (s *IngestService) persist(ctx context.Context, res pageResult) error {
	var oldChunks []domain.Chunk
	if existing, err := s.pageStore.FindPageByCanonicalURL(ctx, res.page.CanonicalURL); err == nil && existing != nil {
		oldChunks, _ = s.pageStore.GetChunks(ctx, existing.ID)
	}

	if err := s.pageStore.SavePage(ctx, res.page, res.chunks, res.images); err != nil {
		return fmt.Errorf("save page: %w", err)
	}

	for _, old := range oldChunks {
		if s.sparse != nil {
			if err := s.sparse.Delete(ctx, old.ID); err != nil {
				logger.Warn("Ingest: removing stale sparse entry %s: %v", old.ID, err)
			}
		}
		if s.vector != nil {
			if err := s.vector.Delete(ctx, old.ID); err != nil {
				logger.Warn("Ingest: removing stale vector %s: %v", old.ID, err)
			}
		}
	}

	for i := range res.chunks {
		chunk := res.chunks[i]
		if s.sparse != nil {
			if err := s.sparse.Index(ctx, chunk); err != nil {
				return fmt.Errorf("index chunk %s: %w", chunk.ID, err)
			}
		}
		if s.vector != nil && len(chunk.Embedding) > 0 {
			if err := s.vector.Add(ctx, chunk.ID, chunk.Embedding); err != nil {
				return fmt.Errorf("add vector %s: %w", chunk.ID, err)
			}
		}
	}
	return nil
}

// dedupURLs canonicalises the input list and removes repeats,
// preserving first-seen order.
func dedupURLs(urls []string) []string {
	seen := make(map[string]bool, len(urls))
	var out []string
	for _, u := range urls {
		u = strings.TrimSpace(u)
		if u == "" {
			continue
		}
		canonical, err := web.CanonicalURL(u)
		if err != nil {
			logger.Warn("Ingest: skipping invalid URL %q: %v", u, err)
			continue
		}
		if seen[canonical] {
			continue
		}
		seen[canonical] = true
		out = append(out, canonical)
	}
	return out
}
