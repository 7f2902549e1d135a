package mcp

import (
	"github.com/custodia-labs/campusrag/internal/core/ports/driven"
	"github.com/custodia-labs/campusrag/internal/core/ports/driving"
)

// Ports aggregates the interfaces required by the MCP server.
// This provides a single injection point for dependency injection.
type Ports struct {
	// Query answers questions from the index.
	Query driving.QueryService

	// Ingest runs the indexing pipeline.
	Ingest driving.IngestService

	// Pages exposes the stored pages for resource listings.
	Pages driven.PageStore
}

// Validate ensures all required ports are set.
// Returns an error if any required port is nil.
func (p *Ports) Validate() error {
	if p.Query == nil {
		return ErrMissingQueryService
	}
	// Ingest and Pages are optional
	return nil
}
