package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

const (
	// uriScheme is the custom URI scheme for campusrag resources.
	uriScheme = "campusrag://"
)

// registerResources registers all resource handlers with the MCP server.
func (s *Server) registerResources() {
	// Static resource for listing indexed pages.
	s.server.AddResource(&mcp.Resource{
		URI:         uriScheme + "pages",
		Name:        "pages",
		Description: "List of all indexed pages",
		MIMEType:    "application/json",
	}, s.handlePagesResource)

	// Template for a page's chunks.
	s.server.AddResourceTemplate(&mcp.ResourceTemplate{
		URITemplate: uriScheme + "pages/{pageId}/chunks",
		Name:        "page-chunks",
		Description: "Text chunks segmented from a specific page",
		MIMEType:    "application/json",
	}, s.handleChunksResource)

	// Template for a page's normalised text.
	s.server.AddResourceTemplate(&mcp.ResourceTemplate{
		URITemplate: uriScheme + "pages/{pageId}/text",
		Name:        "page-text",
		Description: "Normalised text of a specific page",
		MIMEType:    "text/plain",
	}, s.handleTextResource)
}

// handlePagesResource returns a list of all indexed pages.
func (s *Server) handlePagesResource(
	ctx context.Context,
	req *mcp.ReadResourceRequest,
) (*mcp.ReadResourceResult, error) {
	if s.ports.Pages == nil {
		return &mcp.ReadResourceResult{
			Contents: []*mcp.ResourceContents{{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     "[]",
			}},
		}, nil
	}

	pages, err := s.ports.Pages.ListPages(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing pages: %w", err)
	}

	// Build simplified page list.
	type pageInfo struct {
		ID        string `json:"id"`
		URL       string `json:"url"`
		Title     string `json:"title"`
		FetchedAt string `json:"fetched_at"`
	}

	infos := make([]pageInfo, len(pages))
	for i := range pages {
		infos[i] = pageInfo{
			ID:        pages[i].ID,
			URL:       pages[i].CanonicalURL,
			Title:     pages[i].Title,
			FetchedAt: pages[i].FetchedAt.Format(time.RFC3339),
		}
	}

	data, err := json.MarshalIndent(infos, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshalling pages: %w", err)
	}

	return &mcp.ReadResourceResult{
		Contents: []*mcp.ResourceContents{{
			URI:      req.Params.URI,
			MIMEType: "application/json",
			Text:     string(data),
		}},
	}, nil
}

// handleChunksResource returns the chunks of a specific page.
func (s *Server) handleChunksResource(
	ctx context.Context,
	req *mcp.ReadResourceRequest,
) (*mcp.ReadResourceResult, error) {
	if s.ports.Pages == nil {
		return nil, mcp.ResourceNotFoundError(req.Params.URI)
	}

	// Extract pageId from URI: campusrag://pages/{pageId}/chunks
	pageID := extractPageID(req.Params.URI, "/chunks")
	if pageID == "" {
		return nil, mcp.ResourceNotFoundError(req.Params.URI)
	}

	chunks, err := s.ports.Pages.GetChunks(ctx, pageID)
	if err != nil {
		return nil, fmt.Errorf("getting chunks: %w", err)
	}

	// Build simplified chunk list.
	type chunkInfo struct {
		ID          string   `json:"id"`
		SectionPath []string `json:"section_path"`
		TokenCount  int      `json:"token_count"`
		Text        string   `json:"text"`
	}

	infos := make([]chunkInfo, len(chunks))
	for i := range chunks {
		infos[i] = chunkInfo{
			ID:          chunks[i].ID,
			SectionPath: chunks[i].SectionPath,
			TokenCount:  chunks[i].TokenCount,
			Text:        chunks[i].Text,
		}
	}

	data, err := json.MarshalIndent(infos, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshalling chunks: %w", err)
	}

	return &mcp.ReadResourceResult{
		Contents: []*mcp.ResourceContents{{
			URI:      req.Params.URI,
			MIMEType: "application/json",
			Text:     string(data),
		}},
	}, nil
}

// handleTextResource returns the normalised text of a specific page.
func (s *Server) handleTextResource(
	ctx context.Context,
	req *mcp.ReadResourceRequest,
) (*mcp.ReadResourceResult, error) {
	if s.ports.Pages == nil {
		return nil, mcp.ResourceNotFoundError(req.Params.URI)
	}

	// Extract pageId from URI: campusrag://pages/{pageId}/text
	pageID := extractPageID(req.Params.URI, "/text")
	if pageID == "" {
		return nil, mcp.ResourceNotFoundError(req.Params.URI)
	}

	page, err := s.ports.Pages.GetPage(ctx, pageID)
	if err != nil {
		return nil, fmt.Errorf("getting page: %w", err)
	}

	return &mcp.ReadResourceResult{
		Contents: []*mcp.ResourceContents{{
			URI:      req.Params.URI,
			MIMEType: "text/plain",
			Text:     page.Text,
		}},
	}, nil
}

// extractPageID extracts the page ID from a URI like
// campusrag://pages/{pageId}{suffix}.
func extractPageID(uri, suffix string) string {
	const prefix = uriScheme + "pages/"

	if !strings.HasPrefix(uri, prefix) {
		return ""
	}

	uri = strings.TrimPrefix(uri, prefix)
	if !strings.HasSuffix(uri, suffix) {
		return ""
	}

	return strings.TrimSuffix(uri, suffix)
}
