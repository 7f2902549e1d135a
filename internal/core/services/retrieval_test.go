package services

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/campusrag/internal/adapters/driven/storage/memory"
	"github.com/custodia-labs/campusrag/internal/core/domain"
	"github.com/custodia-labs/campusrag/internal/core/ports/driven"
)

// --- Mock implementations ---

// mockSparseIndex implements driven.SparseIndex for testing.
type mockSparseIndex struct {
	hits      []driven.SparseHit
	searchErr error
}

func (m *mockSparseIndex) Index(_ context.Context, _ domain.Chunk) error { return nil }
func (m *mockSparseIndex) Delete(_ context.Context, _ string) error      { return nil }
func (m *mockSparseIndex) Close() error                                  { return nil }

func (m *mockSparseIndex) Search(_ context.Context, _ string, limit int) ([]driven.SparseHit, error) {
	if m.searchErr != nil {
		return nil, m.searchErr
	}
	if limit > len(m.hits) {
		return m.hits, nil
	}
	return m.hits[:limit], nil
}

// mockVectorIndex implements driven.VectorIndex for testing.
type mockVectorIndex struct {
	hits      []driven.VectorHit
	searchErr error
}

func (m *mockVectorIndex) Add(_ context.Context, _ string, _ []float32) error { return nil }
func (m *mockVectorIndex) Delete(_ context.Context, _ string) error           { return nil }
func (m *mockVectorIndex) Close() error                                       { return nil }

func (m *mockVectorIndex) Search(_ context.Context, _ []float32, k int) ([]driven.VectorHit, error) {
	if m.searchErr != nil {
		return nil, m.searchErr
	}
	if k > len(m.hits) {
		return m.hits, nil
	}
	return m.hits[:k], nil
}

// mockEmbeddingService implements driven.EmbeddingService for testing.
type mockEmbeddingService struct {
	embedding []float32
	embedErr  error
}

func (m *mockEmbeddingService) Embed(_ context.Context, _ string) ([]float32, error) {
	if m.embedErr != nil {
		return nil, m.embedErr
	}
	return m.embedding, nil
}

func (m *mockEmbeddingService) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	if m.embedErr != nil {
		return nil, m.embedErr
	}
	result := make([][]float32, len(texts))
	for i := range texts {
		result[i] = m.embedding
	}
	return result, nil
}

func (m *mockEmbeddingService) Dimensions() int              { return 4 }
func (m *mockEmbeddingService) ModelName() string            { return "mock-embed" }
func (m *mockEmbeddingService) Ping(_ context.Context) error { return nil }
func (m *mockEmbeddingService) Close() error                 { return nil }

// mockEntityService implements driven.EntityService for testing.
type mockEntityService struct {
	entities map[string][]string
	err      error
}

func (m *mockEntityService) Extract(_ context.Context, _ string) (map[string][]string, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.entities, nil
}

func (m *mockEntityService) Close() error { return nil }

// mockRerankService implements driven.RerankService for testing.
type mockRerankService struct {
	scoreByPassage map[string]float64
	err            error
	calls          int
}

func (m *mockRerankService) Score(_ context.Context, _ string, passages []string) ([]float64, error) {
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	scores := make([]float64, len(passages))
	for i, p := range passages {
		scores[i] = m.scoreByPassage[p]
	}
	return scores, nil
}

func (m *mockRerankService) Close() error { return nil }

// mockLLMService implements driven.LLMService for testing.
type mockLLMService struct {
	answer string
	err    error
}

func (m *mockLLMService) Answer(_ context.Context, _, _ string) (string, error) {
	if m.err != nil {
		return "", m.err
	}
	return m.answer, nil
}

func (m *mockLLMService) Close() error { return nil }

// --- Fixtures ---

// seedStore stores three pages with one chunk each and one image on
// the first chunk.
func seedStore(t *testing.T) *memory.PageStore {
	t.Helper()
	store := memory.NewPageStore()
	ctx := context.Background()

	pages := []struct {
		pageID, chunkID, url, text string
		entities                   map[string][]string
	}{
		{"p1", "c1", "https://u.example.edu/people/jane-doe", "Jane Doe teaches Machine Learning.",
			map[string][]string{"person": {"Jane Doe"}}},
		{"p2", "c2", "https://u.example.edu/courses", "The catalog lists all courses.", nil},
		{"p3", "c3", "https://u.example.edu/about", "The university was founded in 1900.", nil},
	}
	for _, p := range pages {
		page := &domain.Page{ID: p.pageID, URL: p.url, CanonicalURL: p.url, Text: p.text}
		chunk := domain.Chunk{
			ID: p.chunkID, PageID: p.pageID, Text: p.text,
			SectionPath: []string{"Main"}, Entities: p.entities,
		}
		var images []domain.ImageRecord
		if p.pageID == "p1" {
			chunk.LinkedImages = []domain.ImageLink{{ImageID: "img1", Weight: 1.0}}
			images = []domain.ImageRecord{{
				ID: "img1", PageID: "p1",
				URL:            "https://u.example.edu/jane.jpg",
				Alt:            "Jane Doe portrait",
				ContextSnippet: "Jane Doe teaches Machine Learning.",
				QualityScore:   0.8,
				IsPrimary:      true,
				DedupGroup:     "g1",
			}}
		}
		require.NoError(t, store.SavePage(ctx, page, []domain.Chunk{chunk}, images))
	}
	return store
}

func newTestQueryService(store *memory.PageStore, sparse *mockSparseIndex, vector *mockVectorIndex,
	entities driven.EntityService, rerank driven.RerankService, llm driven.LLMService) *QueryService {
	return NewQueryService(
		store, sparse, vector,
		&mockEmbeddingService{embedding: []float32{1, 0, 0, 0}},
		entities, rerank, llm,
		domain.DefaultRetrievalSettings(),
	)
}

// --- Tests ---

func TestQueryEmptyQuery(t *testing.T) {
	svc := newTestQueryService(seedStore(t), &mockSparseIndex{}, &mockVectorIndex{}, nil, nil, nil)
	_, err := svc.Query(context.Background(), "   ", domain.QueryOptions{})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestQueryHybridFusionTagsSources(t *testing.T) {
	sparse := &mockSparseIndex{hits: []driven.SparseHit{{ChunkID: "c1", Score: 9}, {ChunkID: "c2", Score: 5}}}
	vector := &mockVectorIndex{hits: []driven.VectorHit{{ChunkID: "c1", Similarity: 0.9}, {ChunkID: "c3", Similarity: 0.5}}}

	candidates := fuse(vector.hits, sparse.hits)
	require.Len(t, candidates, 3)

	bySource := make(map[string]domain.CandidateSource)
	for _, c := range candidates {
		bySource[c.ChunkID] = c.Source
	}
	assert.Equal(t, domain.SourceBoth, bySource["c1"])
	assert.Equal(t, domain.SourceSparse, bySource["c2"])
	assert.Equal(t, domain.SourceDense, bySource["c3"])

	// The chunk found by both legs accumulates both contributions and
	// ranks first.
	assert.Equal(t, "c1", candidates[0].ChunkID)
}

func TestQueryReturnsRankedChunksWithCitations(t *testing.T) {
	store := seedStore(t)
	sparse := &mockSparseIndex{hits: []driven.SparseHit{{ChunkID: "c1", Score: 9}, {ChunkID: "c2", Score: 4}}}
	vector := &mockVectorIndex{hits: []driven.VectorHit{{ChunkID: "c1", Similarity: 0.9}}}
	rerank := &mockRerankService{scoreByPassage: map[string]float64{
		"Jane Doe teaches Machine Learning.": 0.95,
		"The catalog lists all courses.":     0.4,
	}}

	svc := newTestQueryService(store, sparse, vector, nil, rerank, nil)
	result, err := svc.Query(context.Background(), "Who teaches Machine Learning?", domain.QueryOptions{})
	require.NoError(t, err)

	require.Len(t, result.Chunks, 2)
	assert.Equal(t, "Jane Doe teaches Machine Learning.", result.Chunks[0].Text)
	assert.Equal(t, "https://u.example.edu/people/jane-doe", result.Chunks[0].Source.URL)
	assert.Equal(t, []string{"Main"}, result.Chunks[0].Source.SectionPath)
	assert.InDelta(t, 0.95, result.Chunks[0].Score, 1e-9)
	assert.Len(t, result.Sources, 2)

	// No answer model configured: extractive fallback.
	assert.Equal(t, "Jane Doe teaches Machine Learning.", result.Answer)
}

func TestQueryRerankThresholdInsufficientContext(t *testing.T) {
	store := seedStore(t)
	sparse := &mockSparseIndex{hits: []driven.SparseHit{{ChunkID: "c2", Score: 3}}}
	rerank := &mockRerankService{scoreByPassage: map[string]float64{
		"The catalog lists all courses.": 0.1,
	}}

	svc := newTestQueryService(store, sparse, &mockVectorIndex{}, nil, rerank, nil)
	_, err := svc.Query(context.Background(), "Who teaches underwater basket weaving?", domain.QueryOptions{})
	assert.ErrorIs(t, err, domain.ErrInsufficientContext)
}

func TestScoreBatchesWithoutRerankService(t *testing.T) {
	svc := newTestQueryService(seedStore(t), &mockSparseIndex{}, &mockVectorIndex{}, nil, nil, nil)
	_, err := svc.scoreBatches(context.Background(), "anything", nil)
	assert.ErrorIs(t, err, domain.ErrRerankUnavailable)
}

func TestQueryRerankFailureFallsBackToFusedOrder(t *testing.T) {
	store := seedStore(t)
	sparse := &mockSparseIndex{hits: []driven.SparseHit{{ChunkID: "c1", Score: 9}, {ChunkID: "c3", Score: 2}}}
	rerank := &mockRerankService{err: errors.New("rerank down")}

	svc := newTestQueryService(store, sparse, &mockVectorIndex{}, nil, rerank, nil)
	result, err := svc.Query(context.Background(), "machine learning", domain.QueryOptions{})
	require.NoError(t, err)

	require.NotEmpty(t, result.Chunks)
	assert.Equal(t, "Jane Doe teaches Machine Learning.", result.Chunks[0].Text)
	// One retry per batch.
	assert.Equal(t, 2, rerank.calls)
}

func TestQueryBothLegsFailing(t *testing.T) {
	store := seedStore(t)
	sparse := &mockSparseIndex{searchErr: errors.New("fts down")}
	vector := &mockVectorIndex{searchErr: errors.New("index down")}

	svc := newTestQueryService(store, sparse, vector, nil, nil, nil)
	_, err := svc.Query(context.Background(), "anything", domain.QueryOptions{})
	assert.Error(t, err)
}

func TestQueryOneLegDegradesGracefully(t *testing.T) {
	store := seedStore(t)
	sparse := &mockSparseIndex{hits: []driven.SparseHit{{ChunkID: "c3", Score: 2}}}
	vector := &mockVectorIndex{searchErr: errors.New("index down")}

	svc := newTestQueryService(store, sparse, vector, nil, nil, nil)
	result, err := svc.Query(context.Background(), "founded", domain.QueryOptions{})
	require.NoError(t, err)
	require.Len(t, result.Chunks, 1)
	assert.Equal(t, "The university was founded in 1900.", result.Chunks[0].Text)
}

func TestQueryEntityBoostPromotesMatchingChunk(t *testing.T) {
	store := seedStore(t)
	// Sparse ranks the courses chunk above Jane's.
	sparse := &mockSparseIndex{hits: []driven.SparseHit{{ChunkID: "c2", Score: 9}, {ChunkID: "c1", Score: 8}}}
	entities := &mockEntityService{entities: map[string][]string{"person": {"Jane Doe"}}}

	svc := newTestQueryService(store, sparse, &mockVectorIndex{}, entities, nil, nil)
	result, err := svc.Query(context.Background(), "What does Jane Doe teach?", domain.QueryOptions{})
	require.NoError(t, err)

	require.NotEmpty(t, result.Chunks)
	assert.Equal(t, "Jane Doe teaches Machine Learning.", result.Chunks[0].Text)
}

func TestQueryEntityExtractionFailureSkipsBoost(t *testing.T) {
	store := seedStore(t)
	sparse := &mockSparseIndex{hits: []driven.SparseHit{{ChunkID: "c2", Score: 9}}}
	entities := &mockEntityService{err: errors.New("ner down")}

	svc := newTestQueryService(store, sparse, &mockVectorIndex{}, entities, nil, nil)
	result, err := svc.Query(context.Background(), "courses", domain.QueryOptions{})
	require.NoError(t, err)
	assert.Len(t, result.Chunks, 1)
}

func TestQuerySelectsSupportingImages(t *testing.T) {
	store := seedStore(t)
	sparse := &mockSparseIndex{hits: []driven.SparseHit{{ChunkID: "c1", Score: 9}}}
	entities := &mockEntityService{entities: map[string][]string{"person": {"Jane Doe"}}}

	svc := newTestQueryService(store, sparse, &mockVectorIndex{}, entities, nil, nil)
	result, err := svc.Query(context.Background(), "Who is Jane Doe?", domain.QueryOptions{})
	require.NoError(t, err)

	require.Len(t, result.Images, 1)
	assert.Equal(t, "https://u.example.edu/jane.jpg", result.Images[0].URL)
	assert.Equal(t, "Jane Doe teaches Machine Learning.", result.Images[0].ContextSnippet)
}

func TestQueryGeneratedAnswer(t *testing.T) {
	store := seedStore(t)
	sparse := &mockSparseIndex{hits: []driven.SparseHit{{ChunkID: "c1", Score: 9}}}
	llm := &mockLLMService{answer: "Jane Doe teaches the Machine Learning course."}

	svc := newTestQueryService(store, sparse, &mockVectorIndex{}, nil, nil, llm)
	result, err := svc.Query(context.Background(), "Who teaches Machine Learning?", domain.QueryOptions{})
	require.NoError(t, err)
	assert.Equal(t, "Jane Doe teaches the Machine Learning course.", result.Answer)
}

func TestQueryAnswerGenerationFailureFallsBack(t *testing.T) {
	store := seedStore(t)
	sparse := &mockSparseIndex{hits: []driven.SparseHit{{ChunkID: "c1", Score: 9}}}
	llm := &mockLLMService{err: errors.New("model down")}

	svc := newTestQueryService(store, sparse, &mockVectorIndex{}, nil, nil, llm)
	result, err := svc.Query(context.Background(), "Who teaches Machine Learning?", domain.QueryOptions{})
	require.NoError(t, err)
	assert.Equal(t, "Jane Doe teaches Machine Learning.", result.Answer)
}

func TestQueryLimitCapsChunks(t *testing.T) {
	store := seedStore(t)
	sparse := &mockSparseIndex{hits: []driven.SparseHit{
		{ChunkID: "c1", Score: 9}, {ChunkID: "c2", Score: 8}, {ChunkID: "c3", Score: 7},
	}}

	svc := newTestQueryService(store, sparse, &mockVectorIndex{}, nil, nil, nil)
	result, err := svc.Query(context.Background(), "university", domain.QueryOptions{Limit: 2})
	require.NoError(t, err)
	assert.Len(t, result.Chunks, 2)
}

func TestQueryOneChunkPerPage(t *testing.T) {
	store := memory.NewPageStore()
	ctx := context.Background()
	page := &domain.Page{ID: "p1", URL: "https://u.example.edu/long", CanonicalURL: "https://u.example.edu/long", Text: "t"}
	chunks := []domain.Chunk{
		{ID: "c1", PageID: "p1", Text: "first section", Position: 0},
		{ID: "c2", PageID: "p1", Text: "second section", Position: 1},
	}
	require.NoError(t, store.SavePage(ctx, page, chunks, nil))
	other := &domain.Page{ID: "p2", URL: "https://u.example.edu/other", CanonicalURL: "https://u.example.edu/other", Text: "t"}
	require.NoError(t, store.SavePage(ctx, other, []domain.Chunk{{ID: "c3", PageID: "p2", Text: "other page"}}, nil))

	sparse := &mockSparseIndex{hits: []driven.SparseHit{
		{ChunkID: "c1", Score: 9}, {ChunkID: "c2", Score: 8}, {ChunkID: "c3", Score: 7},
	}}
	svc := newTestQueryService(store, sparse, &mockVectorIndex{}, nil, nil, nil)

	result, err := svc.Query(ctx, "section", domain.QueryOptions{Limit: 2})
	require.NoError(t, err)
	require.Len(t, result.Chunks, 2)
	assert.Equal(t, "first section", result.Chunks[0].Text)
	assert.Equal(t, "other page", result.Chunks[1].Text)
}

func TestQueryUpdateSettingsAppliesToNextQuery(t *testing.T) {
	store := seedStore(t)
	sparse := &mockSparseIndex{hits: []driven.SparseHit{{ChunkID: "c2", Score: 5}}}
	rerank := &mockRerankService{scoreByPassage: map[string]float64{
		"The catalog lists all courses.": 0.4,
	}}
	svc := newTestQueryService(store, sparse, &mockVectorIndex{}, nil, rerank, nil)

	// Passes the default confidence threshold.
	result, err := svc.Query(context.Background(), "courses", domain.QueryOptions{})
	require.NoError(t, err)
	require.Len(t, result.Chunks, 1)

	// A reloaded config raises the threshold above the chunk's score.
	settings := domain.DefaultRetrievalSettings()
	settings.RerankThreshold = 0.5
	svc.UpdateSettings(settings)

	_, err = svc.Query(context.Background(), "courses", domain.QueryOptions{})
	assert.ErrorIs(t, err, domain.ErrInsufficientContext)
}

func TestQueryStaleIndexEntriesDropped(t *testing.T) {
	store := seedStore(t)
	sparse := &mockSparseIndex{hits: []driven.SparseHit{
		{ChunkID: "gone", Score: 10}, {ChunkID: "c3", Score: 2},
	}}
	svc := newTestQueryService(store, sparse, &mockVectorIndex{}, nil, nil, nil)

	result, err := svc.Query(context.Background(), "founded", domain.QueryOptions{})
	require.NoError(t, err)
	require.Len(t, result.Chunks, 1)
	assert.Equal(t, "The university was founded in 1900.", result.Chunks[0].Text)
}
