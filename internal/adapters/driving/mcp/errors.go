// Package mcp provides an MCP (Model Context Protocol) server adapter.
// It lets AI assistants query the indexed site and trigger ingestion.
package mcp

import "errors"

// ErrMissingQueryService is returned when the query service is not provided.
var ErrMissingQueryService = errors.New("mcp: query service is required")
