package cli

import (
	"context"
	"fmt"

	"github.com/custodia-labs/campusrag/internal/core/domain"
)

// stubQueryService is a test double for driving.QueryService.
type stubQueryService struct {
	answer   *domain.AnswerContext
	err      error
	gotQuery string
	gotOpts  domain.QueryOptions
}

func (s *stubQueryService) Query(_ context.Context, query string, opts domain.QueryOptions) (*domain.AnswerContext, error) {
	s.gotQuery = query
	s.gotOpts = opts
	if s.err != nil {
		return nil, s.err
	}
	if s.answer != nil {
		return s.answer, nil
	}
	return &domain.AnswerContext{Answer: "stub answer"}, nil
}

// stubIngestService is a test double for driving.IngestService.
type stubIngestService struct {
	report  *domain.IngestReport
	err     error
	gotURLs []string
}

func (s *stubIngestService) Ingest(_ context.Context, urls []string) (*domain.IngestReport, error) {
	s.gotURLs = urls
	if s.err != nil {
		return nil, s.err
	}
	if s.report != nil {
		return s.report, nil
	}
	return &domain.IngestReport{PagesIngested: len(urls)}, nil
}

// stubFetcher serves canned HTML bodies keyed by URL.
type stubFetcher struct {
	pages map[string]string
}

func (s *stubFetcher) Fetch(_ context.Context, url string) (*domain.RawPage, error) {
	body, ok := s.pages[url]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrFetchFailure, url)
	}
	return &domain.RawPage{
		URL:        url,
		FinalURL:   url,
		StatusCode: 200,
		HTML:       []byte(body),
	}, nil
}

// setupTestServices swaps the wired services for stubs so commands
// run without touching the real adapter stack. The returned cleanup
// restores the previous wiring.
func setupTestServices() func() {
	prevQuery := queryService
	prevIngest := ingestService
	prevFetcher := webFetcher

	queryService = &stubQueryService{}
	ingestService = &stubIngestService{}
	webFetcher = &stubFetcher{}

	return func() {
		queryService = prevQuery
		ingestService = prevIngest
		webFetcher = prevFetcher
	}
}
