package domain

import "errors"

// Domain errors represent business logic failures.
// These are distinct from infrastructure errors.
var (
	// ErrNotFound indicates a requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidInput indicates malformed or invalid input.
	ErrInvalidInput = errors.New("invalid input")

	// ErrEmptyContent indicates a page has no extractable text after
	// container selection and boilerplate removal. This is a recorded
	// outcome, not a failure surfaced to the user.
	ErrEmptyContent = errors.New("no extractable content")

	// ErrFetchFailure indicates the fetcher could not retrieve a page.
	// The page is skipped; the batch continues.
	ErrFetchFailure = errors.New("fetch failed")

	// ErrModelCall indicates an external model invocation (embedding,
	// entity extraction, rerank) failed after its retry.
	ErrModelCall = errors.New("model call failed")

	// ErrInsufficientContext indicates no candidate cleared the
	// confidence threshold. Surfaced to the end user as an explicit
	// "don't know" response, never fabricated around.
	ErrInsufficientContext = errors.New("insufficient context")

	// ErrEmbeddingUnavailable indicates the embedding service is not
	// configured. Dense retrieval is disabled without embeddings.
	ErrEmbeddingUnavailable = errors.New("embedding service unavailable")

	// ErrRerankUnavailable indicates the rerank service is not
	// configured. Queries fall back to the fused pre-rerank ordering.
	ErrRerankUnavailable = errors.New("rerank service unavailable")

	// ErrSparseIndexUnavailable indicates the keyword index is not
	// configured.
	ErrSparseIndexUnavailable = errors.New("sparse index unavailable")

	// ErrVectorIndexUnavailable indicates the vector index is not
	// configured.
	ErrVectorIndexUnavailable = errors.New("vector index unavailable")
)
