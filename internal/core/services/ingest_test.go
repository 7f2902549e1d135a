package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/campusrag/internal/adapters/driven/storage/memory"
	"github.com/custodia-labs/campusrag/internal/core/domain"
	"github.com/custodia-labs/campusrag/internal/core/ports/driven"
	"github.com/custodia-labs/campusrag/internal/normalisers/web"
)

// fetchStub serves canned HTML keyed by URL.
type fetchStub struct {
	pages map[string]string
}

func (f *fetchStub) Fetch(_ context.Context, url string) (*domain.RawPage, error) {
	body, ok := f.pages[url]
	if !ok {
		return nil, errors.New("connection refused")
	}
	return &domain.RawPage{
		URL: url, FinalURL: url, StatusCode: 200,
		HTML: []byte(body), FetchedAt: time.Now(),
	}, nil
}

// recordingSparse tracks index mutations.
type recordingSparse struct {
	indexed []string
	deleted []string
}

func (r *recordingSparse) Index(_ context.Context, chunk domain.Chunk) error {
	r.indexed = append(r.indexed, chunk.ID)
	return nil
}

func (r *recordingSparse) Delete(_ context.Context, chunkID string) error {
	r.deleted = append(r.deleted, chunkID)
	return nil
}

func (r *recordingSparse) Search(_ context.Context, _ string, _ int) ([]driven.SparseHit, error) {
	return nil, nil
}

func (r *recordingSparse) Close() error { return nil }

// recordingVector tracks index mutations.
type recordingVector struct {
	added   []string
	deleted []string
}

func (r *recordingVector) Add(_ context.Context, chunkID string, _ []float32) error {
	r.added = append(r.added, chunkID)
	return nil
}

func (r *recordingVector) Delete(_ context.Context, chunkID string) error {
	r.deleted = append(r.deleted, chunkID)
	return nil
}

func (r *recordingVector) Search(_ context.Context, _ []float32, _ int) ([]driven.VectorHit, error) {
	return nil, nil
}

func (r *recordingVector) Close() error { return nil }

func testSettings() domain.IngestSettings {
	s := domain.DefaultIngestSettings()
	s.MinTokens = 5
	s.MaxTokens = 30
	s.OverlapTokens = 2
	s.Workers = 2
	return s
}

func paragraph(topic string, sentences int) string {
	var sb strings.Builder
	for i := 0; i < sentences; i++ {
		fmt.Fprintf(&sb, "The %s department offers many excellent opportunities number %d. ", topic, i)
	}
	return sb.String()
}

func pageHTML(title, body string) string {
	return fmt.Sprintf(`<html><head><title>%s</title></head><body><main><h1>%s</h1><p>%s</p></main></body></html>`,
		title, title, body)
}

func newTestIngestService(fetcher driven.Fetcher, store *memory.PageStore,
	sparse driven.SparseIndex, vector driven.VectorIndex) *IngestService {
	return NewIngestService(
		fetcher, web.New(), store, sparse, vector,
		&mockEmbeddingService{embedding: []float32{0.1, 0.2, 0.3, 0.4}},
		&mockEntityService{entities: map[string][]string{"org": {"Chemistry"}}},
		testSettings(),
	)
}

func TestIngestBatch(t *testing.T) {
	fetcher := &fetchStub{pages: map[string]string{
		"https://u.example.edu/chemistry": pageHTML("Chemistry", paragraph("chemistry", 8)),
		"https://u.example.edu/physics":   pageHTML("Physics", paragraph("physics", 8)),
	}}
	store := memory.NewPageStore()
	sparse := &recordingSparse{}
	vector := &recordingVector{}
	svc := newTestIngestService(fetcher, store, sparse, vector)

	report, err := svc.Ingest(context.Background(), []string{
		"https://u.example.edu/chemistry",
		"https://u.example.edu/physics",
		"https://u.example.edu/broken",
	})
	require.NoError(t, err)

	assert.Equal(t, 2, report.PagesIngested)
	assert.Equal(t, 1, report.PagesFailed)
	assert.Equal(t, 0, report.PagesEmpty)
	assert.Positive(t, report.Chunks)

	pages, err := store.ListPages(context.Background())
	require.NoError(t, err)
	assert.Len(t, pages, 2)

	chunks, err := store.ListChunks(context.Background())
	require.NoError(t, err)
	require.NotEmpty(t, chunks)
	assert.Len(t, sparse.indexed, len(chunks))
	assert.Len(t, vector.added, len(chunks))
	for _, c := range chunks {
		assert.NotEmpty(t, c.ID)
		assert.NotEmpty(t, c.Embedding)
		assert.Equal(t, map[string][]string{"org": {"Chemistry"}}, c.Entities)
	}
}

func TestIngestNearDuplicateExcluded(t *testing.T) {
	body := paragraph("history", 8)
	fetcher := &fetchStub{pages: map[string]string{
		"https://u.example.edu/history":       pageHTML("History", body),
		"https://u.example.edu/history-print": pageHTML("History", body),
	}}
	store := memory.NewPageStore()
	svc := newTestIngestService(fetcher, store, &recordingSparse{}, &recordingVector{})

	report, err := svc.Ingest(context.Background(), []string{
		"https://u.example.edu/history",
		"https://u.example.edu/history-print",
	})
	require.NoError(t, err)

	assert.Equal(t, 1, report.PagesIngested)
	assert.Equal(t, 1, report.DuplicatesExcluded)

	pages, err := store.ListPages(context.Background())
	require.NoError(t, err)
	require.Len(t, pages, 1)
	assert.Equal(t, "https://u.example.edu/history", pages[0].CanonicalURL)
}

func TestIngestNearDuplicateImagesSurvive(t *testing.T) {
	body := paragraph("history", 8)
	pageWithImages := func(title string, imgs ...string) string {
		var tags strings.Builder
		for _, src := range imgs {
			fmt.Fprintf(&tags, `<img src=%q alt="campus archive photo">`, src)
		}
		return fmt.Sprintf(`<html><head><title>%s</title></head><body><main><h1>%s</h1><p>%s</p>%s</main></body></html>`,
			title, title, body, tags.String())
	}
	fetcher := &fetchStub{pages: map[string]string{
		"https://u.example.edu/history":       pageWithImages("History", "/media/shared.jpg", "/media/a-photo.jpg"),
		"https://u.example.edu/history-print": pageWithImages("History", "/media/shared.jpg", "/media/b-unique-photo.jpg"),
	}}
	store := memory.NewPageStore()
	svc := newTestIngestService(fetcher, store, &recordingSparse{}, &recordingVector{})
	ctx := context.Background()

	report, err := svc.Ingest(ctx, []string{
		"https://u.example.edu/history",
		"https://u.example.edu/history-print",
	})
	require.NoError(t, err)
	assert.Equal(t, 1, report.PagesIngested)
	assert.Equal(t, 1, report.DuplicatesExcluded)

	pages, err := store.ListPages(ctx)
	require.NoError(t, err)
	require.Len(t, pages, 2)

	var urls []string
	for _, p := range pages {
		imgs, err := store.GetImages(ctx, p.ID)
		require.NoError(t, err)
		for _, img := range imgs {
			urls = append(urls, img.URL)
		}

		chunks, err := store.GetChunks(ctx, p.ID)
		require.NoError(t, err)
		if p.CanonicalURL == "https://u.example.edu/history-print" {
			// The losing fetch keeps its unique image but no text.
			assert.Empty(t, chunks)
			assert.Len(t, imgs, 1)
		} else {
			assert.NotEmpty(t, chunks)
			assert.Len(t, imgs, 2)
		}
	}
	assert.Contains(t, urls, "https://u.example.edu/media/a-photo.jpg")
	assert.Contains(t, urls, "https://u.example.edu/media/b-unique-photo.jpg")
	// The shared asset is stored once, by the winning page.
	assert.Len(t, urls, 3)
	assert.Equal(t, 3, report.Images)
}

func TestIngestEmptyPageRecorded(t *testing.T) {
	fetcher := &fetchStub{pages: map[string]string{
		"https://u.example.edu/blank": `<html><head><title>Blank</title></head><body><nav>menu only</nav></body></html>`,
	}}
	store := memory.NewPageStore()
	svc := newTestIngestService(fetcher, store, &recordingSparse{}, &recordingVector{})

	report, err := svc.Ingest(context.Background(), []string{"https://u.example.edu/blank"})
	require.NoError(t, err)

	assert.Equal(t, 0, report.PagesIngested)
	assert.Equal(t, 1, report.PagesEmpty)
}

func TestIngestReingestReplacesPage(t *testing.T) {
	url := "https://u.example.edu/chemistry"
	fetcher := &fetchStub{pages: map[string]string{
		url: pageHTML("Chemistry", paragraph("chemistry", 8)),
	}}
	store := memory.NewPageStore()
	sparse := &recordingSparse{}
	vector := &recordingVector{}
	svc := newTestIngestService(fetcher, store, sparse, vector)
	ctx := context.Background()

	_, err := svc.Ingest(ctx, []string{url})
	require.NoError(t, err)
	firstChunks := append([]string(nil), sparse.indexed...)

	fetcher.pages[url] = pageHTML("Chemistry", paragraph("advanced chemistry", 10))
	report, err := svc.Ingest(ctx, []string{url})
	require.NoError(t, err)
	assert.Equal(t, 1, report.PagesIngested)

	pages, err := store.ListPages(ctx)
	require.NoError(t, err)
	assert.Len(t, pages, 1)

	// The first ingest's chunks were removed from both indexes.
	assert.Equal(t, firstChunks, sparse.deleted)
	assert.Equal(t, firstChunks, vector.deleted)
}

func TestIngestDedupInputURLs(t *testing.T) {
	fetcher := &fetchStub{pages: map[string]string{
		"https://u.example.edu/chemistry": pageHTML("Chemistry", paragraph("chemistry", 8)),
	}}
	store := memory.NewPageStore()
	svc := newTestIngestService(fetcher, store, &recordingSparse{}, &recordingVector{})

	report, err := svc.Ingest(context.Background(), []string{
		"https://u.example.edu/chemistry",
		"https://u.example.edu/chemistry/",
		"https://u.example.edu/chemistry?utm_source=x",
	})
	require.NoError(t, err)
	assert.Equal(t, 1, report.PagesIngested)
}

func TestIngestEmptyBatch(t *testing.T) {
	svc := newTestIngestService(&fetchStub{}, memory.NewPageStore(), &recordingSparse{}, &recordingVector{})
	report, err := svc.Ingest(context.Background(), nil)
	require.NoError(t, err)
	assert.Zero(t, report.PagesIngested)
}
