package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/custodia-labs/campusrag/internal/core/domain"
	"github.com/custodia-labs/campusrag/internal/core/ports/driven"
	"github.com/custodia-labs/campusrag/internal/core/ports/driving"
	"github.com/custodia-labs/campusrag/internal/logger"
)

// Ensure QueryService implements the interface.
var _ driving.QueryService = (*QueryService)(nil)

// rrfK is the reciprocal rank fusion constant.
const rrfK = 60

// rankedCandidate pairs a scored candidate with its hydrated chunk.
type rankedCandidate struct {
	candidate domain.Candidate
	chunk     *domain.Chunk
}

// QueryService answers free-text questions: hybrid candidate
// generation, entity boosting, cross-encoder reranking and context
// assembly with supporting images.
type QueryService struct {
	pageStore driven.PageStore
	sparse    driven.SparseIndex
	vector    driven.VectorIndex
	embedding driven.EmbeddingService
	entities  driven.EntityService
	rerank    driven.RerankService
	llm       driven.LLMService

	mu       sync.RWMutex
	settings domain.RetrievalSettings
}

// NewQueryService creates a query service. The embedding, entity,
// rerank and llm services are optional (can be nil); retrieval
// degrades to the legs that remain available.
func NewQueryService(
	pageStore driven.PageStore,
	sparse driven.SparseIndex,
	vector driven.VectorIndex,
	embedding driven.EmbeddingService,
	entities driven.EntityService,
	rerank driven.RerankService,
	llm driven.LLMService,
	settings domain.RetrievalSettings,
) *QueryService {
	return &QueryService{
		pageStore: pageStore,
		sparse:    sparse,
		vector:    vector,
		embedding: embedding,
		entities:  entities,
		rerank:    rerank,
		llm:       llm,
		settings:  settings,
	}
}

// UpdateSettings swaps the retrieval tunables. Safe to call while
// queries are in flight; each read takes a snapshot.
func (s *QueryService) UpdateSettings(settings domain.RetrievalSettings) {
	s.mu.Lock()
	s.settings = settings
	s.mu.Unlock()
	logger.Info("Retrieval settings updated")
}

func (s *QueryService) tuning() domain.RetrievalSettings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.settings
}

// Query runs the full retrieval pipeline and assembles the answer
// context. Returns domain.ErrInsufficientContext when no candidate
// clears the rerank threshold.
func (s *QueryService) Query(ctx context.Context, query string, opts domain.QueryOptions) (*domain.AnswerContext, error) {
	logger.Section("Query Execution")
	logger.Debug("Query: %q", query)

	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("%w: empty query", domain.ErrInvalidInput)
	}

	limit := opts.Limit
	if limit <= 0 {
		limit = s.tuning().DefaultLimit
	}

	queryEntities := s.queryEntities(ctx, query)
	logger.Debug("Query entities: %d", len(queryEntities))

	candidates, err := s.generateCandidates(ctx, query)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		logger.Info("No candidates generated")
		return nil, domain.ErrInsufficientContext
	}
	logger.Debug("Fused candidates: %d", len(candidates))

	ranked := s.hydrate(ctx, candidates)
	s.applyEntityBoost(ranked, queryEntities)

	ranked = s.rerankCandidates(ctx, query, ranked)

	selected, err := s.selectTop(ranked, limit)
	if err != nil {
		return nil, err
	}
	logger.Debug("Selected %d context chunks", len(selected))

	return s.assemble(ctx, query, selected, queryEntities)
}

// queryEntities extracts the query's entity surface strings, flat
// across kinds. Extraction failure disables boosting for this query
// rather than failing it.
func (s *QueryService) queryEntities(ctx context.Context, query string) []string {
	if s.entities == nil {
		return nil
	}
	kinds, err := s.entities.Extract(ctx, query)
	if err != nil {
		logger.Warn("Query entity extraction failed: %v (skipping boost)", err)
		return nil
	}
	var flat []string
	for _, surfaces := range kinds {
		for _, surface := range surfaces {
			surface = strings.TrimSpace(surface)
			if surface != "" {
				flat = append(flat, surface)
			}
		}
	}
	sort.Strings(flat)
	return flat
}

// generateCandidates runs the dense and sparse legs in parallel and
// fuses them with reciprocal rank fusion. One failed leg degrades to
// the other; both failing fails the query.
func (s *QueryService) generateCandidates(ctx context.Context, query string) ([]domain.Candidate, error) {
	var denseHits []driven.VectorHit
	var sparseHits []driven.SparseHit
	var denseErr, sparseErr error

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		denseHits, denseErr = s.denseSearch(ctx, query)
	}()
	go func() {
		defer wg.Done()
		sparseHits, sparseErr = s.sparseSearch(ctx, query)
	}()
	wg.Wait()

	if denseErr != nil && sparseErr != nil {
		logger.Warn("Both retrieval legs failed: dense=%v sparse=%v", denseErr, sparseErr)
		return nil, fmt.Errorf("retrieval: dense=%w, sparse=%w", denseErr, sparseErr)
	}
	if denseErr != nil {
		logger.Warn("Dense retrieval failed, using sparse only: %v", denseErr)
	}
	if sparseErr != nil {
		logger.Warn("Sparse retrieval failed, using dense only: %v", sparseErr)
	}

	return fuse(denseHits, sparseHits), nil
}

func (s *QueryService) denseSearch(ctx context.Context, query string) ([]driven.VectorHit, error) {
	if s.vector == nil {
		return nil, domain.ErrVectorIndexUnavailable
	}
	if s.embedding == nil {
		return nil, domain.ErrEmbeddingUnavailable
	}
	embedding, err := s.embedding.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query embedding: %w", err)
	}
	hits, err := s.vector.Search(ctx, embedding, s.tuning().DenseTopK)
	if err != nil {
		return nil, fmt.Errorf("dense search: %w", err)
	}
	logger.Debug("Dense leg: %d hits", len(hits))
	return hits, nil
}

func (s *QueryService) sparseSearch(ctx context.Context, query string) ([]driven.SparseHit, error) {
	if s.sparse == nil {
		return nil, domain.ErrSparseIndexUnavailable
	}
	hits, err := s.sparse.Search(ctx, query, s.tuning().SparseTopK)
	if err != nil {
		return nil, fmt.Errorf("sparse search: %w", err)
	}
	logger.Debug("Sparse leg: %d hits", len(hits))
	return hits, nil
}

// fuse merges the two candidate sets with reciprocal rank fusion,
// tagging each candidate with the leg(s) that produced it.
func fuse(denseHits []driven.VectorHit, sparseHits []driven.SparseHit) []domain.Candidate {
	byID := make(map[string]*domain.Candidate)

	for rank, hit := range denseHits {
		byID[hit.ChunkID] = &domain.Candidate{
			ChunkID:        hit.ChunkID,
			RetrievalScore: 1.0 / float64(rrfK+rank+1),
			BoostApplied:   1.0,
			Source:         domain.SourceDense,
		}
	}
	for rank, hit := range sparseHits {
		score := 1.0 / float64(rrfK+rank+1)
		if existing, ok := byID[hit.ChunkID]; ok {
			existing.RetrievalScore += score
			existing.Source = domain.SourceBoth
			continue
		}
		byID[hit.ChunkID] = &domain.Candidate{
			ChunkID:        hit.ChunkID,
			RetrievalScore: score,
			BoostApplied:   1.0,
			Source:         domain.SourceSparse,
		}
	}

	candidates := make([]domain.Candidate, 0, len(byID))
	for _, c := range byID {
		candidates = append(candidates, *c)
	}
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].RetrievalScore != candidates[j].RetrievalScore {
			return candidates[i].RetrievalScore > candidates[j].RetrievalScore
		}
		return candidates[i].ChunkID < candidates[j].ChunkID
	})
	return candidates
}

// hydrate loads the chunk behind each candidate, dropping candidates
// whose chunk no longer exists (stale index entries during re-ingest).
func (s *QueryService) hydrate(ctx context.Context, candidates []domain.Candidate) []rankedCandidate {
	ranked := make([]rankedCandidate, 0, len(candidates))
	for _, cand := range candidates {
		chunk, err := s.pageStore.GetChunk(ctx, cand.ChunkID)
		if err != nil {
			logger.Debug("Dropping candidate %s: %v", cand.ChunkID, err)
			continue
		}
		ranked = append(ranked, rankedCandidate{candidate: cand, chunk: chunk})
	}
	return ranked
}

// applyEntityBoost multiplies the retrieval score of candidates whose
// chunk entities match a query entity (case-insensitive substring).
func (s *QueryService) applyEntityBoost(ranked []rankedCandidate, queryEntities []string) {
	if len(queryEntities) == 0 {
		return
	}
	boost := s.tuning().EntityBoost
	boosted := 0
	for i := range ranked {
		if !chunkMatchesEntity(ranked[i].chunk, queryEntities) {
			continue
		}
		ranked[i].candidate.RetrievalScore *= boost
		ranked[i].candidate.BoostApplied = boost
		boosted++
	}
	if boosted > 0 {
		logger.Debug("Entity boost applied to %d candidates", boosted)
	}
}

// chunkMatchesEntity reports whether any of the chunk's extracted
// entity surfaces matches a query entity.
func chunkMatchesEntity(chunk *domain.Chunk, queryEntities []string) bool {
	for _, surfaces := range chunk.Entities {
		for _, surface := range surfaces {
			if matchesAny(surface, queryEntities) {
				return true
			}
		}
	}
	return false
}

// matchesAny is the entity comparison rule: case-insensitive
// substring in either direction, so "Doe" matches "Jane Doe".
func matchesAny(surface string, queryEntities []string) bool {
	surface = strings.ToLower(strings.TrimSpace(surface))
	if surface == "" {
		return false
	}
	for _, entity := range queryEntities {
		entity = strings.ToLower(entity)
		if strings.Contains(surface, entity) || strings.Contains(entity, surface) {
			return true
		}
	}
	return false
}

// rerankCandidates scores the top boosted candidates with the
// cross-encoder, in batches. Rerank unavailability or failure falls
// back to the fused ordering instead of failing the query.
func (s *QueryService) rerankCandidates(ctx context.Context, query string, ranked []rankedCandidate) []rankedCandidate {
	sortByRetrieval(ranked)

	n := s.tuning().RerankCandidates
	if n > len(ranked) {
		n = len(ranked)
	}
	head := ranked[:n]

	scores, err := s.scoreBatches(ctx, query, head)
	if errors.Is(err, domain.ErrRerankUnavailable) {
		logger.Debug("Rerank service not configured, using fused ordering")
		return ranked
	}
	if err != nil {
		logger.Warn("Rerank failed, falling back to fused ordering: %v", err)
		return ranked
	}
	for i := range head {
		score := scores[i]
		head[i].candidate.RerankScore = &score
	}

	// Reranked candidates outrank the tail that never reached the
	// cross-encoder.
	sort.SliceStable(head, func(i, j int) bool {
		a, b := head[i], head[j]
		if a.candidate.RankKey() != b.candidate.RankKey() {
			return a.candidate.RankKey() > b.candidate.RankKey()
		}
		if a.chunk.QualityPrior != b.chunk.QualityPrior {
			return a.chunk.QualityPrior > b.chunk.QualityPrior
		}
		if a.chunk.PageID != b.chunk.PageID {
			return a.chunk.PageID < b.chunk.PageID
		}
		return a.chunk.Position < b.chunk.Position
	})
	return ranked
}

func sortByRetrieval(ranked []rankedCandidate) {
	sort.SliceStable(ranked, func(i, j int) bool {
		a, b := ranked[i], ranked[j]
		if a.candidate.RetrievalScore != b.candidate.RetrievalScore {
			return a.candidate.RetrievalScore > b.candidate.RetrievalScore
		}
		if a.chunk.PageID != b.chunk.PageID {
			return a.chunk.PageID < b.chunk.PageID
		}
		return a.chunk.Position < b.chunk.Position
	})
}

// scoreBatches runs the cross-encoder over the candidates in batches,
// retrying a failed batch once. Returns ErrRerankUnavailable when no
// rerank service is configured.
func (s *QueryService) scoreBatches(ctx context.Context, query string, ranked []rankedCandidate) ([]float64, error) {
	if s.rerank == nil {
		return nil, domain.ErrRerankUnavailable
	}
	batchSize := s.tuning().RerankBatchSize
	if batchSize <= 0 {
		batchSize = len(ranked)
	}

	scores := make([]float64, 0, len(ranked))
	for start := 0; start < len(ranked); start += batchSize {
		end := start + batchSize
		if end > len(ranked) {
			end = len(ranked)
		}
		passages := make([]string, 0, end-start)
		for _, rc := range ranked[start:end] {
			passages = append(passages, rc.chunk.Text)
		}

		batch, err := s.rerank.Score(ctx, query, passages)
		if err != nil {
			logger.Debug("Rerank batch failed, retrying once: %v", err)
			batch, err = s.rerank.Score(ctx, query, passages)
			if err != nil {
				return nil, fmt.Errorf("%w: %v", domain.ErrModelCall, err)
			}
		}
		if len(batch) != len(passages) {
			return nil, fmt.Errorf("%w: rerank returned %d scores for %d passages", domain.ErrModelCall, len(batch), len(passages))
		}
		scores = append(scores, batch...)
	}
	return scores, nil
}

// selectTop applies the confidence threshold and the one-chunk-per-
// page rule. When fewer distinct pages than the limit exist, later
// chunks of already-represented pages fill the remainder.
func (s *QueryService) selectTop(ranked []rankedCandidate, limit int) ([]rankedCandidate, error) {
	// The threshold guards against answering from low-confidence
	// material; it only applies to candidates the cross-encoder
	// actually scored.
	threshold := s.tuning().RerankThreshold
	eligible := make([]rankedCandidate, 0, len(ranked))
	for _, rc := range ranked {
		if rc.candidate.RerankScore != nil && *rc.candidate.RerankScore < threshold {
			continue
		}
		eligible = append(eligible, rc)
	}
	if len(eligible) == 0 {
		return nil, domain.ErrInsufficientContext
	}

	var selected []rankedCandidate
	seenPages := make(map[string]bool)
	for _, rc := range eligible {
		if len(selected) >= limit {
			break
		}
		if seenPages[rc.chunk.PageID] {
			continue
		}
		seenPages[rc.chunk.PageID] = true
		selected = append(selected, rc)
	}
	if len(selected) < limit {
		chosen := make(map[string]bool, len(selected))
		for _, rc := range selected {
			chosen[rc.candidate.ChunkID] = true
		}
		for _, rc := range eligible {
			if len(selected) >= limit {
				break
			}
			if chosen[rc.candidate.ChunkID] {
				continue
			}
			selected = append(selected, rc)
		}
	}
	return selected, nil
}
