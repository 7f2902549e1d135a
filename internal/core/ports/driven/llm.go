package driven

import "context"

// LLMService generates an answer from assembled context. This is an
// optional service - when nil, the query result falls back to the top
// context chunk instead of a generated answer.
type LLMService interface {
	// Answer generates an answer to query constrained to the given
	// context text.
	Answer(ctx context.Context, query, contextText string) (string, error)

	// Close releases resources.
	Close() error
}
