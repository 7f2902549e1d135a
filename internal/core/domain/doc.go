// Package domain defines the core business entities for CampusRAG.
//
// This package is part of the hexagonal architecture's innermost layer.
// It has NO external dependencies and defines the fundamental types:
//
//   - Page: A crawled page normalised to an offset-addressable text stream
//   - Chunk: A heading-scoped retrieval unit within a page
//   - ImageRecord: A retained image with its explaining textual context
//   - Candidate: An ephemeral query-time scoring record
//   - AnswerContext: The assembled, cited result of a query
//
// # Architectural Position
//
// Domain is at the centre of the hexagon. It may only import
// the Go standard library. All other packages depend on domain,
// never the reverse.
//
// # Import Rules
//
//   - Can Import: Standard library only
//   - Cannot Import: Any internal/ package, any external dependency
package domain
