package mcp

import (
	"context"
	"errors"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/custodia-labs/campusrag/internal/core/domain"
)

// AskInput is the input schema for the ask tool.
type AskInput struct {
	Query string `json:"query" jsonschema:"the question to answer from the indexed site"`
	Limit int    `json:"limit,omitempty" jsonschema:"maximum number of context chunks to use (default 6)"`
}

// AskOutput is the output schema for the ask tool.
type AskOutput struct {
	Answer  string         `json:"answer"`
	Found   bool           `json:"found"`
	Sources []SourceOutput `json:"sources,omitempty"`
	Images  []ImageOutput  `json:"images,omitempty"`
}

// SourceOutput is a citation for the answer.
type SourceOutput struct {
	URL         string   `json:"url"`
	SectionPath []string `json:"section_path,omitempty"`
}

// ImageOutput is a supporting image with its explaining text.
type ImageOutput struct {
	URL            string `json:"url"`
	ContextSnippet string `json:"context_snippet,omitempty"`
}

// IngestInput is the input schema for the ingest tool.
type IngestInput struct {
	URLs []string `json:"urls" jsonschema:"the page URLs to fetch and index"`
}

// IngestOutput is the output schema for the ingest tool.
type IngestOutput struct {
	PagesIngested      int `json:"pages_ingested"`
	PagesEmpty         int `json:"pages_empty"`
	PagesFailed        int `json:"pages_failed"`
	DuplicatesExcluded int `json:"duplicates_excluded"`
	Chunks             int `json:"chunks"`
	Images             int `json:"images"`
}

// registerTools registers all tool handlers with the MCP server.
func (s *Server) registerTools() {
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "ask",
		Description: "Answer a question using the indexed pages, with source citations",
	}, s.handleAsk)

	if s.ports.Ingest != nil {
		mcp.AddTool(s.server, &mcp.Tool{
			Name:        "ingest",
			Description: "Fetch and index a batch of page URLs",
		}, s.handleIngest)
	}
}

// handleAsk handles the ask tool invocation.
func (s *Server) handleAsk(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input AskInput,
) (*mcp.CallToolResult, AskOutput, error) {
	opts := domain.QueryOptions{Limit: input.Limit}

	answer, err := s.ports.Query.Query(ctx, input.Query, opts)
	if errors.Is(err, domain.ErrInsufficientContext) {
		// An unanswerable question is a result, not a failure.
		return nil, AskOutput{
			Answer: "No indexed page contains an answer to this question.",
			Found:  false,
		}, nil
	}
	if err != nil {
		return nil, AskOutput{}, err
	}

	output := AskOutput{
		Answer:  answer.Answer,
		Found:   true,
		Sources: make([]SourceOutput, len(answer.Sources)),
		Images:  make([]ImageOutput, len(answer.Images)),
	}
	for i := range answer.Sources {
		output.Sources[i] = SourceOutput{
			URL:         answer.Sources[i].URL,
			SectionPath: answer.Sources[i].SectionPath,
		}
	}
	for i := range answer.Images {
		output.Images[i] = ImageOutput{
			URL:            answer.Images[i].URL,
			ContextSnippet: answer.Images[i].ContextSnippet,
		}
	}

	return nil, output, nil
}

// handleIngest handles the ingest tool invocation.
func (s *Server) handleIngest(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input IngestInput,
) (*mcp.CallToolResult, IngestOutput, error) {
	report, err := s.ports.Ingest.Ingest(ctx, input.URLs)
	if err != nil {
		return nil, IngestOutput{}, err
	}

	return nil, IngestOutput{
		PagesIngested:      report.PagesIngested,
		PagesEmpty:         report.PagesEmpty,
		PagesFailed:        report.PagesFailed,
		DuplicatesExcluded: report.DuplicatesExcluded,
		Chunks:             report.Chunks,
		Images:             report.Images,
	}, nil
}
