package mcp

import (
	"context"

	"github.com/custodia-labs/campusrag/internal/core/domain"
)

// mockQueryService is a mock implementation of driving.QueryService.
type mockQueryService struct {
	answer  *domain.AnswerContext
	err     error
	gotOpts domain.QueryOptions
}

func (m *mockQueryService) Query(
	_ context.Context,
	_ string,
	opts domain.QueryOptions,
) (*domain.AnswerContext, error) {
	m.gotOpts = opts
	return m.answer, m.err
}

// mockIngestService is a mock implementation of driving.IngestService.
type mockIngestService struct {
	report  *domain.IngestReport
	err     error
	gotURLs []string
}

func (m *mockIngestService) Ingest(
	_ context.Context,
	urls []string,
) (*domain.IngestReport, error) {
	m.gotURLs = urls
	return m.report, m.err
}
